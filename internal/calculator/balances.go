package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitit/internal/models"
)

// MemberBalance represents the balance information for one member.
type MemberBalance struct {
	MemberID   string
	NetBalance decimal.Decimal // Positive = owed money, Negative = owes money
	TotalPaid  decimal.Decimal // Amount this member paid at the table
	TotalOwed  decimal.Decimal // This member's summary total
}

// CalculateBalances turns member summaries and the amounts each member paid
// at the table into balances and the transfers that settle them.
//
// Algorithm:
//   - net_balance = paid - owed for every member
//   - debtors (net < 0) are matched to creditors (net > 0) greedily, both in
//     member order, each transfer clearing the smaller of the two balances
//
// payments maps member IDs to amounts paid; members absent from it paid
// nothing. A payment for an unknown member or a negative payment is an error.
// When payments do not add up to the summaries' grand total some balance is
// left unmatched; the transfers cover as much of it as possible.
func CalculateBalances(summaries []models.MemberSummary, payments map[string]decimal.Decimal) ([]MemberBalance, []models.Transfer, error) {
	known := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		known[s.MemberID] = true
	}
	for id, amount := range payments {
		if !known[id] {
			return nil, nil, fmt.Errorf("payment from unknown member: %s", id)
		}
		if amount.IsNegative() {
			return nil, nil, fmt.Errorf("payment from %s must not be negative", id)
		}
	}

	balances := make([]MemberBalance, len(summaries))
	for i, s := range summaries {
		paid, ok := payments[s.MemberID]
		if !ok {
			paid = decimal.Zero
		}
		paid = RoundToMinor(paid)
		balances[i] = MemberBalance{
			MemberID:   s.MemberID,
			TotalPaid:  paid,
			TotalOwed:  s.Total,
			NetBalance: paid.Sub(s.Total),
		}
	}

	// Create lists of creditors (owed money) and debtors (owe money)
	var creditors, debtors []int
	remaining := make([]decimal.Decimal, len(balances))
	for i, bal := range balances {
		remaining[i] = bal.NetBalance.Abs()
		switch bal.NetBalance.Sign() {
		case 1:
			creditors = append(creditors, i)
		case -1:
			debtors = append(debtors, i)
		}
	}

	var transfers []models.Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor, creditor := debtors[i], creditors[j]

		// Amount to settle is minimum of what debtor owes and creditor is owed
		amount := decimal.Min(remaining[debtor], remaining[creditor])
		transfers = append(transfers, models.Transfer{
			FromMemberID: balances[debtor].MemberID,
			ToMemberID:   balances[creditor].MemberID,
			Amount:       amount,
		})

		remaining[debtor] = remaining[debtor].Sub(amount)
		remaining[creditor] = remaining[creditor].Sub(amount)

		// Amounts are exact, so a settled balance is exactly zero
		if remaining[debtor].IsZero() {
			i++
		}
		if remaining[creditor].IsZero() {
			j++
		}
	}

	return balances, transfers, nil
}

// SettlementPlan returns the transfers that pay back a single payer who
// covered the whole bill.
func SettlementPlan(summaries []models.MemberSummary, payerID string) ([]models.Transfer, error) {
	_, transfers, err := CalculateBalances(summaries, map[string]decimal.Decimal{
		payerID: Totals(summaries).GrandTotal,
	})
	return transfers, err
}

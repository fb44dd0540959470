// Package calculator implements the bill allocation engine.
//
// All arithmetic is done on integral minor units (cents) held in
// decimal.Decimal values, and every pool of money (the assigned items, the
// bill tax, the bill tip) is apportioned with the largest-remainder method
// from each member's exact share. For a fully assigned bill the member
// subtotals, tax shares and tip shares therefore sum back to the bill amounts
// exactly, and each is less than one cent from its exact value.
package calculator

import (
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitit/internal/models"
)

// MinorUnitExponent is the number of decimal places in the smallest currency unit.
const MinorUnitExponent = 2

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// CalculateSplit computes how much each member owes for the given items,
// bill-level tax and tip percentage.
//
// Algorithm:
//   - subtotal:    sum of price / k over the member's items, k assignees each
//   - tax share:   member_subtotal / bill_subtotal * tax
//   - tip share:   member_subtotal * tip_percent / 100
//   - total:       subtotal + tax share + tip share
//
// The bill subtotal includes unassigned items, so unassigned items lower
// everyone's tax share and are paid by nobody. A zero bill subtotal yields
// all-zero summaries. Output order matches members. Assignments referencing
// IDs not in members are ignored. Negative tax or tip are treated as zero.
//
// CalculateSplit is pure: it never mutates its arguments and returns the same
// result for the same input.
func CalculateSplit(items []models.Item, members []models.Member, tax, tipPercent decimal.Decimal) []models.MemberSummary {
	summaries := make([]models.MemberSummary, len(members))
	index := make(map[string]int, len(members))
	for i, m := range members {
		summaries[i] = models.MemberSummary{
			MemberID:   m.ID,
			MemberName: m.Name,
			Subtotal:   decimal.Zero,
			TaxShare:   decimal.Zero,
			TipShare:   decimal.Zero,
			Total:      decimal.Zero,
		}
		index[m.ID] = i
	}

	billSubtotal := decimal.Zero
	for _, item := range items {
		billSubtotal = billSubtotal.Add(toMinor(item.Price))
	}
	if billSubtotal.Sign() <= 0 {
		return summaries
	}

	// A member's exact subtotal is the sum of price/k over their items. It is
	// held as a numerator over the lcm of every k so the assigned pool can be
	// apportioned in whole cents without drifting from the exact figures.
	assigned := make([][]int, len(items))
	common := big.NewInt(1)
	for n, item := range items {
		assigned[n] = liveAssignees(item.AssignedTo, index)
		if k := len(assigned[n]); k > 0 {
			common = lcm(common, int64(k))
		}
	}
	denominator := decimal.NewFromBigInt(common, 0)

	exact := make([]decimal.Decimal, len(members))
	for i := range exact {
		exact[i] = decimal.Zero
	}
	for n, item := range items {
		assignees := assigned[n]
		k := len(assignees)
		if k == 0 {
			continue
		}

		price := toMinor(item.Price)
		weight, _ := denominator.QuoRem(decimal.NewFromInt(int64(k)), 0)
		base, rem := price.QuoRem(decimal.NewFromInt(int64(k)), 0)
		extra := int(rem.IntPart())
		for j, idx := range assignees {
			exact[idx] = exact[idx].Add(price.Mul(weight))

			// Item shares are the per-line breakdown shown to the member.
			// Leftover cents rotate by item so one member does not pick up
			// every odd cent on a long receipt.
			share := base
			if (j+k-n%k)%k < extra {
				share = share.Add(one)
			}
			summaries[idx].Items = append(summaries[idx].Items, models.ItemShare{
				ItemID: item.ID,
				Name:   item.Name,
				Amount: fromMinor(share),
			})
		}
	}
	subtotals := apportion(exact, denominator)

	// Apply proportional tax and tip on the exact subtotal
	taxMinor := toMinor(nonNegative(tax))
	tipPercent = nonNegative(tipPercent)

	taxNumerators := make([]decimal.Decimal, len(members))
	tipNumerators := make([]decimal.Decimal, len(members))
	for i, sub := range exact {
		taxNumerators[i] = sub.Mul(taxMinor)
		tipNumerators[i] = sub.Mul(tipPercent)
	}
	taxShares := apportion(taxNumerators, billSubtotal.Mul(denominator))
	tipShares := apportion(tipNumerators, hundred.Mul(denominator))

	for i := range summaries {
		s := &summaries[i]
		s.Subtotal = fromMinor(subtotals[i])
		s.TaxShare = fromMinor(taxShares[i])
		s.TipShare = fromMinor(tipShares[i])
		s.Total = fromMinor(subtotals[i].Add(taxShares[i]).Add(tipShares[i]))
	}

	return summaries
}

// Totals sums a set of member summaries. These exact sums are the figures to
// display for the whole bill.
func Totals(summaries []models.MemberSummary) models.BillTotals {
	t := models.BillTotals{
		Subtotal:   decimal.Zero,
		Tax:        decimal.Zero,
		Tip:        decimal.Zero,
		GrandTotal: decimal.Zero,
	}
	for _, s := range summaries {
		t.Subtotal = t.Subtotal.Add(s.Subtotal)
		t.Tax = t.Tax.Add(s.TaxShare)
		t.Tip = t.Tip.Add(s.TipShare)
		t.GrandTotal = t.GrandTotal.Add(s.Total)
	}
	return t
}

// RoundToMinor rounds an amount to whole minor units (half away from zero).
func RoundToMinor(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnitExponent)
}

// liveAssignees maps assigned member IDs to member indexes, dropping unknown
// and duplicate IDs. The result is in member order, not toggle order.
func liveAssignees(assignedTo []string, index map[string]int) []int {
	out := make([]int, 0, len(assignedTo))
	seen := make(map[int]bool, len(assignedTo))
	for _, id := range assignedTo {
		idx, ok := index[id]
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func lcm(a *big.Int, k int64) *big.Int {
	b := big.NewInt(k)
	g := new(big.Int).GCD(nil, nil, a, b)
	return new(big.Int).Mul(a, b.Quo(b, g))
}

// apportion divides numerators[i]/denominator into whole units so that the
// parts sum to the rounded total sum(numerators)/denominator. Units left over
// after flooring go to the largest remainders, ties broken by position.
// All numerators must be non-negative and denominator positive.
func apportion(numerators []decimal.Decimal, denominator decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(numerators))
	remainders := make([]decimal.Decimal, len(numerators))
	total, allocated := decimal.Zero, decimal.Zero
	for i, n := range numerators {
		shares[i], remainders[i] = n.QuoRem(denominator, 0)
		total = total.Add(n)
		allocated = allocated.Add(shares[i])
	}

	target, rem := total.QuoRem(denominator, 0)
	if rem.Add(rem).GreaterThanOrEqual(denominator) {
		target = target.Add(one)
	}
	leftover := int(target.Sub(allocated).IntPart())
	if leftover <= 0 {
		return shares
	}

	order := make([]int, len(numerators))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	for _, i := range order[:min(leftover, len(order))] {
		shares[i] = shares[i].Add(one)
	}
	return shares
}

func toMinor(d decimal.Decimal) decimal.Decimal {
	return d.Shift(MinorUnitExponent).Round(0)
}

func fromMinor(d decimal.Decimal) decimal.Decimal {
	return d.Shift(-MinorUnitExponent)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

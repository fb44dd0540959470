package service

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitit/internal/models"
	"github.com/mmynk/splitit/internal/workflow"
)

// Wire messages for splitit.v1.BillService. Money is always a decimal
// string with two places, e.g. "8.96".

// Empty is the request of calls that take no arguments.
type Empty struct{}

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Bill      *Bill  `json:"bill"`
}

type UploadReceiptRequest struct {
	// Image is the raw image, base64 encoded on the wire.
	Image []byte `json:"image"`
}

type AddMemberRequest struct {
	Name string `json:"name"`
}

type AddMemberResponse struct {
	Member Member `json:"member"`
	Bill   *Bill  `json:"bill"`
}

type RemoveMemberRequest struct {
	MemberID string `json:"member_id"`
}

type ToggleAssignmentRequest struct {
	ItemID   string `json:"item_id"`
	MemberID string `json:"member_id"`
}

type SetTipRequest struct {
	TipPercent string `json:"tip_percent"`
}

type GetSummaryRequest struct {
	// PayerID optionally names the member who paid the restaurant; when set
	// the response includes the transfers that settle up with them.
	PayerID string `json:"payer_id,omitempty"`
}

type SummaryResponse struct {
	Members   []MemberSummary `json:"members"`
	Totals    Totals          `json:"totals"`
	Transfers []Transfer      `json:"transfers,omitempty"`
}

type SettleRequest struct {
	MemberID string `json:"member_id"`
}

type SettlementsResponse struct {
	Settlements []Settlement `json:"settlements"`
}

// Bill is a snapshot of a session's state.
type Bill struct {
	Stage             string   `json:"stage"`
	Items             []Item   `json:"items"`
	Members           []Member `json:"members"`
	Subtotal          string   `json:"subtotal"`
	Tax               string   `json:"tax"`
	Total             string   `json:"total"`
	TipPercent        string   `json:"tip_percent"`
	Warnings          []string `json:"warnings,omitempty"`
	UnassignedItemIDs []string `json:"unassigned_item_ids,omitempty"`
	Pending           bool     `json:"pending,omitempty"`
	LastError         string   `json:"last_error,omitempty"`
}

type Item struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Price      string   `json:"price"`
	AssignedTo []string `json:"assigned_to"`
}

type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ItemShare struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type MemberSummary struct {
	MemberID   string      `json:"member_id"`
	MemberName string      `json:"member_name"`
	Subtotal   string      `json:"subtotal"`
	TaxShare   string      `json:"tax_share"`
	TipShare   string      `json:"tip_share"`
	Total      string      `json:"total"`
	Items      []ItemShare `json:"items,omitempty"`
}

type Totals struct {
	Subtotal   string `json:"subtotal"`
	Tax        string `json:"tax"`
	Tip        string `json:"tip"`
	GrandTotal string `json:"grand_total"`
}

type Transfer struct {
	FromMemberID string `json:"from_member_id"`
	ToMemberID   string `json:"to_member_id"`
	Amount       string `json:"amount"`
}

type Settlement struct {
	ID         string `json:"id"`
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
	Amount     string `json:"amount"`
	PaymentURL string `json:"payment_url"`
	CreatedAt  int64  `json:"created_at"`
	ExpiresAt  int64  `json:"expires_at,omitempty"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toBill(s workflow.State) *Bill {
	b := &Bill{
		Stage:             s.Stage.String(),
		Items:             make([]Item, 0, len(s.Items)),
		Members:           make([]Member, 0, len(s.Members)),
		Subtotal:          money(s.Subtotal),
		Tax:               money(s.Tax),
		Total:             money(s.Total),
		TipPercent:        s.TipPercent.String(),
		Warnings:          s.Warnings,
		UnassignedItemIDs: s.Unassigned,
		Pending:           s.Pending,
	}
	for _, it := range s.Items {
		assigned := it.AssignedTo
		if assigned == nil {
			assigned = []string{}
		}
		b.Items = append(b.Items, Item{ID: it.ID, Name: it.Name, Price: money(it.Price), AssignedTo: assigned})
	}
	for _, m := range s.Members {
		b.Members = append(b.Members, toMember(m))
	}
	if s.LastError != nil {
		b.LastError = s.LastError.Error()
	}
	return b
}

func toMember(m models.Member) Member {
	return Member{ID: m.ID, Name: m.Name}
}

func toSummary(summaries []models.MemberSummary, totals models.BillTotals, transfers []models.Transfer) *SummaryResponse {
	resp := &SummaryResponse{
		Members: make([]MemberSummary, 0, len(summaries)),
		Totals: Totals{
			Subtotal:   money(totals.Subtotal),
			Tax:        money(totals.Tax),
			Tip:        money(totals.Tip),
			GrandTotal: money(totals.GrandTotal),
		},
	}
	for _, ms := range summaries {
		out := MemberSummary{
			MemberID:   ms.MemberID,
			MemberName: ms.MemberName,
			Subtotal:   money(ms.Subtotal),
			TaxShare:   money(ms.TaxShare),
			TipShare:   money(ms.TipShare),
			Total:      money(ms.Total),
		}
		for _, share := range ms.Items {
			out.Items = append(out.Items, ItemShare{ItemID: share.ItemID, Name: share.Name, Amount: money(share.Amount)})
		}
		resp.Members = append(resp.Members, out)
	}
	for _, tr := range transfers {
		resp.Transfers = append(resp.Transfers, Transfer{
			FromMemberID: tr.FromMemberID,
			ToMemberID:   tr.ToMemberID,
			Amount:       money(tr.Amount),
		})
	}
	return resp
}

func toSettlement(s *models.Settlement) Settlement {
	return Settlement{
		ID:         s.ID,
		MemberID:   s.MemberID,
		MemberName: s.MemberName,
		Amount:     money(s.Amount),
		PaymentURL: s.PaymentURL,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

func toSettlements(list []*models.Settlement) *SettlementsResponse {
	resp := &SettlementsResponse{Settlements: make([]Settlement, 0, len(list))}
	for _, s := range list {
		resp.Settlements = append(resp.Settlements, toSettlement(s))
	}
	return resp
}

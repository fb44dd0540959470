package models

import "github.com/shopspring/decimal"

// ItemShare represents one member's share of a single item.
type ItemShare struct {
	ItemID string          `json:"item_id"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"` // This member's share of the item
}

// MemberSummary represents one member's calculated share of a bill.
// This is the output of the allocation engine and is recomputed on every call.
type MemberSummary struct {
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`

	// Subtotal is the sum of this member's item shares (pre-tax).
	Subtotal decimal.Decimal `json:"subtotal"`

	// TaxShare is this member's proportional share of the bill tax.
	// Calculated as: subtotal / bill_subtotal * tax
	TaxShare decimal.Decimal `json:"tax_share"`

	// TipShare is the tip on this member's own subtotal.
	// Calculated as: subtotal * tip_percent / 100
	TipShare decimal.Decimal `json:"tip_share"`

	// Total is the final amount this member owes (subtotal + tax + tip).
	Total decimal.Decimal `json:"total"`

	// Items are the items assigned to this member with their share amounts.
	Items []ItemShare `json:"items,omitempty"`
}

// BillTotals are the exact sums over a set of member summaries.
type BillTotals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Tip        decimal.Decimal `json:"tip"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

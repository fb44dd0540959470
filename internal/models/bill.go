package models

import "github.com/shopspring/decimal"

// Member represents a person splitting the bill.
type Member struct {
	// ID is the unique identifier for the member (UUID format).
	ID string `json:"id"`

	// Name is the display name. Names are not required to be unique.
	Name string `json:"name"`
}

// Item represents a single line item on a receipt.
// Items can be shared among multiple members.
type Item struct {
	// ID is the unique identifier for the item (UUID format).
	ID string `json:"id"`

	// Name is the receipt line text (e.g., "Burger", "Soda").
	Name string `json:"name"`

	// Price is the pre-tax price of this line. Fixed at creation.
	Price decimal.Decimal `json:"price"`

	// AssignedTo holds the IDs of members sharing this item, in the order
	// they were assigned. If multiple members are assigned, the item is
	// split equally among them. Empty means unassigned.
	AssignedTo []string `json:"assigned_to"`
}

// IsAssignedTo reports whether memberID shares this item.
func (i Item) IsAssignedTo(memberID string) bool {
	for _, id := range i.AssignedTo {
		if id == memberID {
			return true
		}
	}
	return false
}

// ReceiptLine is one extracted {name, price} pair before it becomes an Item.
type ReceiptLine struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Receipt is the normalised result of extracting a receipt image.
type Receipt struct {
	// Lines are the extracted line items in receipt order.
	Lines []ReceiptLine `json:"items"`

	// Subtotal is the extracted pre-tax amount, or the sum of line prices
	// when the extraction service did not report one.
	Subtotal decimal.Decimal `json:"subtotal"`

	// Tax is the bill-level tax amount (zero if not reported).
	Tax decimal.Decimal `json:"tax"`

	// Total is the extracted grand total (zero if not reported).
	Total decimal.Decimal `json:"total"`

	// Warnings lists inconsistencies the caller should surface to the user,
	// e.g. a zero total on a receipt with priced items.
	Warnings []string `json:"warnings,omitempty"`
}

package models

import "github.com/shopspring/decimal"

// Settlement represents a simulated payment link issued for one member's share.
// No money moves; the record exists so the session can show who was sent a link.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// SessionID is the bill session this settlement belongs to.
	SessionID string

	// MemberID is the member asked to pay.
	MemberID string

	// MemberName is the member's display name at the time the link was issued.
	MemberName string

	// Amount is the member's total at the time the link was issued.
	Amount decimal.Decimal

	// PaymentURL is the signed payment link.
	PaymentURL string

	// CreatedAt is the Unix timestamp when the link was issued.
	CreatedAt int64

	// ExpiresAt is the Unix timestamp after which the link token is rejected.
	ExpiresAt int64
}

// Transfer is a single payment in a settlement plan.
type Transfer struct {
	FromMemberID string          `json:"from_member_id"`
	ToMemberID   string          `json:"to_member_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// Package bill holds the mutable bill aggregate for one splitting session:
// the extracted items, the members splitting them, and the bill-level amounts.
//
// A Bill is not safe for concurrent use. It is owned by a single workflow
// controller that serializes every mutation.
package bill

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitit/internal/models"
)

// ErrValidation is the class of referential and precondition errors.
// Every error returned by a Bill mutator matches it with errors.Is.
var ErrValidation = errors.New("validation failed")

var (
	ErrUnknownItem     = fmt.Errorf("%w: unknown item", ErrValidation)
	ErrUnknownMember   = fmt.Errorf("%w: unknown member", ErrValidation)
	ErrBlankName       = fmt.Errorf("%w: member name must not be blank", ErrValidation)
	ErrItemsAlreadySet = fmt.Errorf("%w: items already set for this bill", ErrValidation)
	ErrNegativeAmount  = fmt.Errorf("%w: amount must not be negative", ErrValidation)
)

// Bill is the aggregate of items, members and bill-level amounts.
type Bill struct {
	items    []models.Item
	members  []models.Member
	subtotal decimal.Decimal
	tax      decimal.Decimal
	total    decimal.Decimal
	warnings []string
	itemsSet bool

	newID func() string
}

// Option configures a Bill.
type Option func(*Bill)

// WithIDGenerator replaces the UUID generator used for member and item IDs.
func WithIDGenerator(fn func() string) Option {
	return func(b *Bill) {
		b.newID = fn
	}
}

// WithMembers seeds the bill with existing members, keeping their IDs.
// Used when a new receipt replaces the items of a bill already in progress.
func WithMembers(members []models.Member) Option {
	return func(b *Bill) {
		b.members = append([]models.Member(nil), members...)
	}
}

// New creates an empty bill with no items.
func New(opts ...Option) *Bill {
	b := &Bill{
		subtotal: decimal.Zero,
		tax:      decimal.Zero,
		total:    decimal.Zero,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetItems populates the bill from an extracted receipt. It may be called
// once per bill; every item starts unassigned.
func (b *Bill) SetItems(r *models.Receipt) error {
	if b.itemsSet {
		return ErrItemsAlreadySet
	}
	if r.Tax.IsNegative() || r.Subtotal.IsNegative() || r.Total.IsNegative() {
		return ErrNegativeAmount
	}

	items := make([]models.Item, len(r.Lines))
	for i, line := range r.Lines {
		if line.Price.IsNegative() {
			return fmt.Errorf("%w: item %q", ErrNegativeAmount, line.Name)
		}
		items[i] = models.Item{
			ID:         b.newID(),
			Name:       line.Name,
			Price:      line.Price,
			AssignedTo: []string{},
		}
	}

	b.items = items
	b.subtotal = r.Subtotal
	b.tax = r.Tax
	b.total = r.Total
	b.warnings = append([]string(nil), r.Warnings...)
	b.itemsSet = true
	return nil
}

// AddMember creates a member with a fresh ID. Surrounding whitespace is
// trimmed from name and a name that is blank after trimming is rejected.
// Duplicate names are allowed.
func (b *Bill) AddMember(name string) (models.Member, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Member{}, ErrBlankName
	}
	m := models.Member{ID: b.newID(), Name: name}
	b.members = append(b.members, m)
	return m, nil
}

// RemoveMember deletes a member and strips its ID from every item's
// assignment set in the same call.
func (b *Bill) RemoveMember(memberID string) error {
	idx := b.memberIndex(memberID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMember, memberID)
	}

	b.members = append(b.members[:idx:idx], b.members[idx+1:]...)
	for i := range b.items {
		b.items[i].AssignedTo = without(b.items[i].AssignedTo, memberID)
	}
	return nil
}

// ToggleAssignment adds memberID to the item's assignment set if absent and
// removes it if present. Toggling the same pair twice restores the original
// assignment.
func (b *Bill) ToggleAssignment(itemID, memberID string) error {
	i := b.itemIndex(itemID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if b.memberIndex(memberID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMember, memberID)
	}

	it := &b.items[i]
	if it.IsAssignedTo(memberID) {
		it.AssignedTo = without(it.AssignedTo, memberID)
	} else {
		it.AssignedTo = append(it.AssignedTo, memberID)
	}
	return nil
}

// Items returns a copy of the items in receipt order.
func (b *Bill) Items() []models.Item {
	out := make([]models.Item, len(b.items))
	for i, it := range b.items {
		it.AssignedTo = append([]string{}, it.AssignedTo...)
		out[i] = it
	}
	return out
}

// Members returns a copy of the members in insertion order.
func (b *Bill) Members() []models.Member {
	return append([]models.Member(nil), b.members...)
}

// Member looks up a member by ID.
func (b *Bill) Member(memberID string) (models.Member, bool) {
	idx := b.memberIndex(memberID)
	if idx < 0 {
		return models.Member{}, false
	}
	return b.members[idx], true
}

// Unassigned returns the IDs of items nobody has been assigned to.
func (b *Bill) Unassigned() []string {
	var ids []string
	for _, it := range b.items {
		if len(it.AssignedTo) == 0 {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// ItemsSet reports whether SetItems has been called.
func (b *Bill) ItemsSet() bool { return b.itemsSet }

// Subtotal is the extracted (or reconstructed) subtotal.
func (b *Bill) Subtotal() decimal.Decimal { return b.subtotal }

// Tax is the bill-level tax.
func (b *Bill) Tax() decimal.Decimal { return b.tax }

// Total is the extracted grand total.
func (b *Bill) Total() decimal.Decimal { return b.total }

// Warnings are the extraction warnings carried over from the receipt.
func (b *Bill) Warnings() []string { return append([]string(nil), b.warnings...) }

func (b *Bill) itemIndex(id string) int {
	for i, it := range b.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (b *Bill) memberIndex(id string) int {
	for i, m := range b.members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

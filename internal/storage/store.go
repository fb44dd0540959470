// Package storage provides abstractions for the settlement ledger.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/splitit/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Store records the payment links issued for bill sessions.
// Bills themselves live only in memory; only settlements are stored.
type Store interface {
	// CreateSettlement persists a settlement. ID and CreatedAt are filled in
	// by the store when empty.
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error

	// GetSettlement retrieves a settlement by ID.
	// Returns an error wrapping ErrNotFound if it does not exist.
	GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error)

	// ListSettlements returns a session's settlements, oldest first.
	ListSettlements(ctx context.Context, sessionID string) ([]*models.Settlement, error)

	// DeleteSessionSettlements removes every settlement of a session and
	// returns how many were removed.
	DeleteSessionSettlements(ctx context.Context, sessionID string) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

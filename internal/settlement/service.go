// Package settlement issues simulated payment links for a finished bill.
// A member with something to pay gets a signed link; the links are recorded
// in the ledger so the session can list them. No money moves.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mmynk/splitit/internal/metrics"
	"github.com/mmynk/splitit/internal/models"
	"github.com/mmynk/splitit/internal/storage"
)

var (
	// ErrInconsistentSummary is returned when a member summary does not add up.
	ErrInconsistentSummary = errors.New("member summary is inconsistent")

	// ErrNothingOwed is returned when settling a member whose total is zero.
	ErrNothingOwed = errors.New("member owes nothing")
)

// Service issues and records payment links.
type Service struct {
	store   storage.Store
	signer  *LinkSigner
	baseURL string
	metrics *metrics.Metrics
}

// NewService creates a settlement service. Links point at baseURL/pay.
func NewService(store storage.Store, signer *LinkSigner, baseURL string, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		signer:  signer,
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: m,
	}
}

// Settle issues a payment link for one member's share. The summary must add
// up and be positive. If the member already holds an unexpired link for the
// same amount, that link is returned and nothing new is recorded.
func (s *Service) Settle(ctx context.Context, sessionID string, ms models.MemberSummary) (*models.Settlement, error) {
	if err := checkSummary(ms); err != nil {
		return nil, err
	}
	if !ms.Total.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrNothingOwed, ms.MemberName)
	}

	existing, err := s.store.ListSettlements(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.signer.now().Unix()
	for _, st := range existing {
		if st.MemberID == ms.MemberID && st.Amount.Equal(ms.Total) && (st.ExpiresAt == 0 || st.ExpiresAt > now) {
			slog.Debug("Reusing payment link", "session_id", sessionID, "member_id", ms.MemberID)
			return st, nil
		}
	}

	token, expires, err := s.signer.Generate(sessionID, ms.MemberID, ms.MemberName, ms.Total)
	if err != nil {
		return nil, err
	}
	st := &models.Settlement{
		SessionID:  sessionID,
		MemberID:   ms.MemberID,
		MemberName: ms.MemberName,
		Amount:     ms.Total,
		PaymentURL: s.baseURL + "/pay?token=" + url.QueryEscape(token),
		ExpiresAt:  expires.Unix(),
	}
	if err := s.store.CreateSettlement(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to record settlement: %w", err)
	}
	s.metrics.IncSettlements()

	slog.Info("Payment link issued", "session_id", sessionID, "member_id", ms.MemberID, "amount", ms.Total.StringFixed(2))
	return st, nil
}

// Verify checks a payment link token.
func (s *Service) Verify(token string) (*LinkClaims, error) {
	return s.signer.Verify(token)
}

// List returns the links issued for a session.
func (s *Service) List(ctx context.Context, sessionID string) ([]*models.Settlement, error) {
	return s.store.ListSettlements(ctx, sessionID)
}

// Purge removes a session's links, on reset or expiry.
func (s *Service) Purge(ctx context.Context, sessionID string) error {
	n, err := s.store.DeleteSessionSettlements(ctx, sessionID)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Debug("Settlements purged", "session_id", sessionID, "count", n)
	}
	return nil
}

// PurgeAsync purges in the background with a bounded deadline. Errors are
// logged.
func (s *Service) PurgeAsync(sessionID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Purge(ctx, sessionID); err != nil {
			slog.Error("Failed to purge settlements", "session_id", sessionID, "error", err)
		}
	}()
}

func checkSummary(ms models.MemberSummary) error {
	if ms.Subtotal.IsNegative() || ms.TaxShare.IsNegative() || ms.TipShare.IsNegative() {
		return fmt.Errorf("%w: negative amount for %s", ErrInconsistentSummary, ms.MemberName)
	}
	if want := ms.Subtotal.Add(ms.TaxShare).Add(ms.TipShare); !ms.Total.Equal(want) {
		return fmt.Errorf("%w: %s total %s, expected %s",
			ErrInconsistentSummary, ms.MemberName, ms.Total.StringFixed(2), want.StringFixed(2))
	}
	return nil
}

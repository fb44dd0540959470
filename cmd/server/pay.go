package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mmynk/splitit/internal/settlement"
)

type paymentView struct {
	SessionID  string `json:"session_id"`
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
	Amount     string `json:"amount"`
	ExpiresAt  int64  `json:"expires_at,omitempty"`
}

// payHandler resolves the token of a payment link to the share it asks for.
// Payment itself is simulated, so the page only shows who owes what.
func payHandler(settlements *settlement.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
			return
		}

		claims, err := settlements.Verify(token)
		if err != nil {
			if !errors.Is(err, settlement.ErrInvalidToken) {
				slog.Error("Failed to verify payment link", "error", err)
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": settlement.ErrInvalidToken.Error()})
			return
		}

		view := paymentView{
			SessionID:  claims.SessionID,
			MemberID:   claims.MemberID,
			MemberName: claims.MemberName,
			Amount:     claims.Amount,
		}
		if claims.ExpiresAt != nil {
			view.ExpiresAt = claims.ExpiresAt.Unix()
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitit/internal/models"
	"github.com/mmynk/splitit/internal/storage"
)

func TestSQLiteStore(t *testing.T) {
	store, err := New(MemoryDSN)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	t.Run("CreateSettlement generates ID and timestamp", func(t *testing.T) {
		s := &models.Settlement{
			SessionID:  "session-1",
			MemberID:   "m-alice",
			MemberName: "Alice",
			Amount:     decimal.RequireFromString("8.96"),
			PaymentURL: "https://pay.example/pay?token=abc",
		}
		if err := store.CreateSettlement(ctx, s); err != nil {
			t.Fatalf("CreateSettlement failed: %v", err)
		}
		if s.ID == "" {
			t.Error("Expected settlement ID to be generated")
		}
		if s.CreatedAt == 0 {
			t.Error("Expected CreatedAt to be set")
		}
	})

	t.Run("GetSettlement round trips amounts exactly", func(t *testing.T) {
		original := &models.Settlement{
			SessionID:  "session-2",
			MemberID:   "m-bob",
			MemberName: "Bob",
			Amount:     decimal.RequireFromString("6.40"),
			PaymentURL: "https://pay.example/pay?token=def",
			ExpiresAt:  1893456000,
		}
		if err := store.CreateSettlement(ctx, original); err != nil {
			t.Fatalf("CreateSettlement failed: %v", err)
		}

		got, err := store.GetSettlement(ctx, original.ID)
		if err != nil {
			t.Fatalf("GetSettlement failed: %v", err)
		}
		if got.MemberName != "Bob" || got.SessionID != "session-2" {
			t.Errorf("Unexpected settlement: %+v", got)
		}
		if !got.Amount.Equal(original.Amount) {
			t.Errorf("Amount = %s, want %s", got.Amount, original.Amount)
		}
		if got.ExpiresAt != original.ExpiresAt {
			t.Errorf("ExpiresAt = %d, want %d", got.ExpiresAt, original.ExpiresAt)
		}
	})

	t.Run("GetSettlement returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetSettlement(ctx, "missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List and delete are scoped to a session", func(t *testing.T) {
		for _, name := range []string{"Carol", "Dave"} {
			err := store.CreateSettlement(ctx, &models.Settlement{
				SessionID:  "session-3",
				MemberID:   "m-" + name,
				MemberName: name,
				Amount:     decimal.RequireFromString("1.00"),
				PaymentURL: "https://pay.example/pay",
				CreatedAt:  1700000000,
			})
			if err != nil {
				t.Fatalf("CreateSettlement failed: %v", err)
			}
		}

		list, err := store.ListSettlements(ctx, "session-3")
		if err != nil {
			t.Fatalf("ListSettlements failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("Expected 2 settlements, got %d", len(list))
		}
		if list[0].MemberName != "Carol" || list[1].MemberName != "Dave" {
			t.Errorf("Expected insertion order, got %s, %s", list[0].MemberName, list[1].MemberName)
		}

		n, err := store.DeleteSessionSettlements(ctx, "session-3")
		if err != nil {
			t.Fatalf("DeleteSessionSettlements failed: %v", err)
		}
		if n != 2 {
			t.Errorf("Deleted %d settlements, want 2", n)
		}

		list, err = store.ListSettlements(ctx, "session-3")
		if err != nil {
			t.Fatalf("ListSettlements failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("Expected no settlements after delete, got %d", len(list))
		}

		// Other sessions untouched
		other, err := store.ListSettlements(ctx, "session-2")
		if err != nil {
			t.Fatalf("ListSettlements failed: %v", err)
		}
		if len(other) != 1 {
			t.Errorf("Expected session-2 to keep 1 settlement, got %d", len(other))
		}
	})
}

func TestSQLiteStore_File(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "splitit-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "ledger.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ctx := context.Background()
	s := &models.Settlement{
		SessionID:  "session-1",
		MemberID:   "m-alice",
		MemberName: "Alice",
		Amount:     decimal.RequireFromString("12.34"),
		PaymentURL: "https://pay.example/pay",
	}
	if err := store.CreateSettlement(ctx, s); err != nil {
		t.Fatalf("CreateSettlement failed: %v", err)
	}
	store.Close()

	// Reopen: data persists and migrations are idempotent
	store, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer store.Close()

	got, err := store.GetSettlement(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSettlement after reopen failed: %v", err)
	}
	if !got.Amount.Equal(s.Amount) {
		t.Errorf("Amount = %s, want %s", got.Amount, s.Amount)
	}
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitit/internal/extraction"
	"github.com/mmynk/splitit/internal/middleware"
	"github.com/mmynk/splitit/internal/models"
	"github.com/mmynk/splitit/internal/session"
	"github.com/mmynk/splitit/internal/settlement"
	"github.com/mmynk/splitit/internal/storage/sqlite"
	"github.com/mmynk/splitit/internal/workflow"
)

func burgerReceipt() *models.Receipt {
	d := decimal.RequireFromString
	return &models.Receipt{
		Lines: []models.ReceiptLine{
			{Name: "Burger", Price: d("10.00")},
			{Name: "Soda", Price: d("2.00")},
		},
		Subtotal: d("12.00"),
		Tax:      d("1.20"),
		Total:    d("13.20"),
	}
}

// setupTestServer creates a test server backed by an in-memory ledger and
// the given extractor.
func setupTestServer(t *testing.T, extractor extraction.Extractor) (*BillServiceClient, func()) {
	t.Helper()

	store, err := sqlite.New(sqlite.MemoryDSN)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	signer, err := settlement.NewLinkSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	settlements := settlement.NewService(store, signer, "https://pay.example", nil)

	registry := session.NewRegistry(func(logger *slog.Logger) *workflow.Controller {
		return workflow.New(extractor, workflow.WithLogger(logger))
	})

	svc := NewBillService(registry, settlements)
	path, handler := NewBillServiceHandler(svc, connect.WithInterceptors(middleware.LoggingInterceptor()))

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)

	client := NewBillServiceClient(http.DefaultClient, server.URL)

	cleanup := func() {
		server.Close()
		store.Close()
	}
	return client, cleanup
}

func staticExtractor(r *models.Receipt) extraction.Extractor {
	return extraction.ExtractorFunc(func(context.Context, []byte) (*models.Receipt, error) {
		return r, nil
	})
}

func expectCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Fatalf("expected code %v, got %v (%v)", code, got, err)
	}
}

func TestBillService_FullFlow(t *testing.T) {
	client, cleanup := setupTestServer(t, staticExtractor(burgerReceipt()))
	defer cleanup()
	ctx := context.Background()

	created, err := client.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if created.SessionID == "" || created.Bill.Stage != "upload" {
		t.Fatalf("unexpected session: %+v", created)
	}
	if created.Bill.TipPercent != "18" {
		t.Errorf("expected default tip 18, got %s", created.Bill.TipPercent)
	}

	bill, err := client.UploadReceipt(ctx, []byte("fake image"))
	if err != nil {
		t.Fatalf("UploadReceipt failed: %v", err)
	}
	if bill.Stage != "members" {
		t.Errorf("expected members stage, got %s", bill.Stage)
	}
	if len(bill.Items) != 2 || bill.Items[0].Price != "10.00" || bill.Tax != "1.20" {
		t.Fatalf("unexpected items: %+v", bill)
	}

	alice, err := client.AddMember(ctx, "Alice")
	if err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	bob, err := client.AddMember(ctx, "  Bob ")
	if err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if bob.Member.Name != "Bob" {
		t.Errorf("expected trimmed name, got %q", bob.Member.Name)
	}
	if len(bob.Bill.Members) != 2 {
		t.Errorf("expected 2 members, got %d", len(bob.Bill.Members))
	}

	if _, err := client.Advance(ctx); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	burger, soda := bill.Items[0].ID, bill.Items[1].ID
	for _, toggle := range []struct{ item, member string }{
		{burger, alice.Member.ID},
		{burger, bob.Member.ID},
		{soda, alice.Member.ID},
	} {
		if _, err := client.ToggleAssignment(ctx, toggle.item, toggle.member); err != nil {
			t.Fatalf("ToggleAssignment failed: %v", err)
		}
	}

	bill, err = client.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance to summary failed: %v", err)
	}
	if bill.Stage != "summary" {
		t.Fatalf("expected summary stage, got %s", bill.Stage)
	}

	summary, err := client.GetSummary(ctx, "")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if len(summary.Members) != 2 {
		t.Fatalf("expected 2 member summaries, got %d", len(summary.Members))
	}
	a, b := summary.Members[0], summary.Members[1]
	if a.Subtotal != "7.00" || a.TaxShare != "0.70" || a.TipShare != "1.26" || a.Total != "8.96" {
		t.Errorf("unexpected Alice summary: %+v", a)
	}
	if b.Subtotal != "5.00" || b.TaxShare != "0.50" || b.TipShare != "0.90" || b.Total != "6.40" {
		t.Errorf("unexpected Bob summary: %+v", b)
	}
	if len(a.Items) != 2 {
		t.Errorf("expected Alice to have 2 item shares, got %d", len(a.Items))
	}
	if summary.Totals.GrandTotal != "15.36" || summary.Totals.Tip != "2.16" {
		t.Errorf("unexpected totals: %+v", summary.Totals)
	}

	// Alice paid; Bob owes her his share
	summary, err = client.GetSummary(ctx, alice.Member.ID)
	if err != nil {
		t.Fatalf("GetSummary with payer failed: %v", err)
	}
	if len(summary.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(summary.Transfers))
	}
	tr := summary.Transfers[0]
	if tr.FromMemberID != bob.Member.ID || tr.ToMemberID != alice.Member.ID || tr.Amount != "6.40" {
		t.Errorf("unexpected transfer: %+v", tr)
	}

	// Tip change is reflected immediately
	if _, err := client.SetTip(ctx, "20"); err != nil {
		t.Fatalf("SetTip failed: %v", err)
	}
	summary, err = client.GetSummary(ctx, "")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if summary.Members[0].TipShare != "1.40" {
		t.Errorf("expected Alice tip 1.40 at 20%%, got %s", summary.Members[0].TipShare)
	}

	link, err := client.Settle(ctx, alice.Member.ID)
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if link.MemberID != alice.Member.ID || link.Amount != "9.10" || link.PaymentURL == "" {
		t.Errorf("unexpected payment link: %+v", link)
	}
	again, err := client.Settle(ctx, alice.Member.ID)
	if err != nil {
		t.Fatalf("second Settle failed: %v", err)
	}
	if again.ID != link.ID {
		t.Errorf("expected the same link on repeat, got %s and %s", link.ID, again.ID)
	}
	if _, err := client.Settle(ctx, bob.Member.ID); err != nil {
		t.Fatalf("Settle Bob failed: %v", err)
	}
	listed, err := client.ListSettlements(ctx)
	if err != nil {
		t.Fatalf("ListSettlements failed: %v", err)
	}
	if len(listed.Settlements) != 2 {
		t.Errorf("expected 2 listed settlements, got %d", len(listed.Settlements))
	}

	_, err = client.Settle(ctx, "m-nobody")
	expectCode(t, err, connect.CodeNotFound)
	_, err = client.Settle(ctx, "")
	expectCode(t, err, connect.CodeInvalidArgument)

	bill, err = client.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if bill.Stage != "upload" || len(bill.Items) != 0 || len(bill.Members) != 0 {
		t.Errorf("expected empty upload stage after reset, got %+v", bill)
	}
	listed, err = client.ListSettlements(ctx)
	if err != nil {
		t.Fatalf("ListSettlements failed: %v", err)
	}
	if len(listed.Settlements) != 0 {
		t.Errorf("expected settlements purged on reset, got %d", len(listed.Settlements))
	}
}

func TestBillService_Errors(t *testing.T) {
	client, cleanup := setupTestServer(t, staticExtractor(burgerReceipt()))
	defer cleanup()
	ctx := context.Background()

	t.Run("missing session header", func(t *testing.T) {
		_, err := client.GetBill(ctx)
		expectCode(t, err, connect.CodeUnauthenticated)
	})

	t.Run("unknown session", func(t *testing.T) {
		client.UseSession("does-not-exist")
		_, err := client.GetBill(ctx)
		expectCode(t, err, connect.CodeNotFound)
	})

	if _, err := client.CreateSession(ctx); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	t.Run("advance from upload", func(t *testing.T) {
		_, err := client.Advance(ctx)
		expectCode(t, err, connect.CodeFailedPrecondition)
	})

	t.Run("empty image", func(t *testing.T) {
		_, err := client.UploadReceipt(ctx, nil)
		expectCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("invalid tip", func(t *testing.T) {
		_, err := client.SetTip(ctx, "lots")
		expectCode(t, err, connect.CodeInvalidArgument)
		_, err = client.SetTip(ctx, "-5")
		expectCode(t, err, connect.CodeInvalidArgument)
	})

	if _, err := client.UploadReceipt(ctx, []byte("img")); err != nil {
		t.Fatalf("UploadReceipt failed: %v", err)
	}

	t.Run("blank member name", func(t *testing.T) {
		_, err := client.AddMember(ctx, "   ")
		expectCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("no members", func(t *testing.T) {
		_, err := client.Advance(ctx)
		expectCode(t, err, connect.CodeFailedPrecondition)
	})

	t.Run("remove unknown member", func(t *testing.T) {
		_, err := client.RemoveMember(ctx, "ghost")
		expectCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("summary before summary stage", func(t *testing.T) {
		_, err := client.GetSummary(ctx, "")
		expectCode(t, err, connect.CodeFailedPrecondition)
	})

	t.Run("unassigned items block summary", func(t *testing.T) {
		if _, err := client.AddMember(ctx, "Alice"); err != nil {
			t.Fatalf("AddMember failed: %v", err)
		}
		if _, err := client.Advance(ctx); err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		_, err := client.Advance(ctx)
		expectCode(t, err, connect.CodeFailedPrecondition)

		bill, err := client.GetBill(ctx)
		if err != nil {
			t.Fatalf("GetBill failed: %v", err)
		}
		if len(bill.UnassignedItemIDs) != 2 {
			t.Errorf("expected 2 unassigned items, got %d", len(bill.UnassignedItemIDs))
		}
	})
}

func TestBillService_ExtractionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code connect.Code
	}{
		{"service down", &extraction.Error{Kind: extraction.KindUnavailable, Err: errors.New("timeout")}, connect.CodeUnavailable},
		{"malformed output", &extraction.Error{Kind: extraction.KindMalformed, Err: errors.New("bad json")}, connect.CodeInvalidArgument},
		{"missing total", &extraction.Error{Kind: extraction.KindMissingField, Err: errors.New("total")}, connect.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failing := extraction.ExtractorFunc(func(context.Context, []byte) (*models.Receipt, error) {
				return nil, tt.err
			})
			client, cleanup := setupTestServer(t, failing)
			defer cleanup()
			ctx := context.Background()

			if _, err := client.CreateSession(ctx); err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}
			_, err := client.UploadReceipt(ctx, []byte("img"))
			expectCode(t, err, tt.code)

			// Stage stays upload and the error is visible
			bill, err := client.GetBill(ctx)
			if err != nil {
				t.Fatalf("GetBill failed: %v", err)
			}
			if bill.Stage != "upload" || bill.LastError == "" {
				t.Errorf("expected upload stage with last error, got %+v", bill)
			}
		})
	}
}

func TestBillService_SessionsAreIsolated(t *testing.T) {
	first, cleanup := setupTestServer(t, staticExtractor(burgerReceipt()))
	defer cleanup()
	ctx := context.Background()

	if _, err := first.CreateSession(ctx); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := first.UploadReceipt(ctx, []byte("img")); err != nil {
		t.Fatalf("UploadReceipt failed: %v", err)
	}

	// A second client on the same server gets its own bill
	second := *first
	if _, err := second.CreateSession(ctx); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	bill, err := second.GetBill(ctx)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	if bill.Stage != "upload" || len(bill.Items) != 0 {
		t.Errorf("expected fresh session, got %+v", bill)
	}

	bill, err = first.GetBill(ctx)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	if bill.Stage != "members" {
		t.Errorf("first session should be untouched, got stage %s", bill.Stage)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitit/internal/bill"
	"github.com/mmynk/splitit/internal/calculator"
	"github.com/mmynk/splitit/internal/extraction"
	"github.com/mmynk/splitit/internal/middleware"
	"github.com/mmynk/splitit/internal/session"
	"github.com/mmynk/splitit/internal/settlement"
	"github.com/mmynk/splitit/internal/workflow"
)

// BillServiceName is the fully-qualified name of the bill service.
const BillServiceName = "splitit.v1.BillService"

// Procedure paths of splitit.v1.BillService.
const (
	CreateSessionProcedure    = "/" + BillServiceName + "/CreateSession"
	UploadReceiptProcedure    = "/" + BillServiceName + "/UploadReceipt"
	AddMemberProcedure        = "/" + BillServiceName + "/AddMember"
	RemoveMemberProcedure     = "/" + BillServiceName + "/RemoveMember"
	ToggleAssignmentProcedure = "/" + BillServiceName + "/ToggleAssignment"
	AdvanceProcedure          = "/" + BillServiceName + "/Advance"
	BackProcedure             = "/" + BillServiceName + "/Back"
	ResetProcedure            = "/" + BillServiceName + "/Reset"
	SetTipProcedure           = "/" + BillServiceName + "/SetTip"
	GetBillProcedure          = "/" + BillServiceName + "/GetBill"
	GetSummaryProcedure       = "/" + BillServiceName + "/GetSummary"
	SettleProcedure           = "/" + BillServiceName + "/Settle"
	ListSettlementsProcedure  = "/" + BillServiceName + "/ListSettlements"
)

// BillService implements splitit.v1.BillService on top of the session registry.
type BillService struct {
	sessions    *session.Registry
	settlements *settlement.Service
}

// NewBillService creates a BillService.
func NewBillService(sessions *session.Registry, settlements *settlement.Service) *BillService {
	return &BillService{sessions: sessions, settlements: settlements}
}

// NewBillServiceHandler builds an HTTP handler for every BillService
// procedure and returns the path to mount it on. The session interceptor
// is installed ahead of any interceptors passed in opts.
func NewBillServiceHandler(svc *BillService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(middleware.SessionInterceptor(CreateSessionProcedure)),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, opts...))
	mux.Handle(UploadReceiptProcedure, connect.NewUnaryHandler(UploadReceiptProcedure, svc.UploadReceipt, opts...))
	mux.Handle(AddMemberProcedure, connect.NewUnaryHandler(AddMemberProcedure, svc.AddMember, opts...))
	mux.Handle(RemoveMemberProcedure, connect.NewUnaryHandler(RemoveMemberProcedure, svc.RemoveMember, opts...))
	mux.Handle(ToggleAssignmentProcedure, connect.NewUnaryHandler(ToggleAssignmentProcedure, svc.ToggleAssignment, opts...))
	mux.Handle(AdvanceProcedure, connect.NewUnaryHandler(AdvanceProcedure, svc.Advance, opts...))
	mux.Handle(BackProcedure, connect.NewUnaryHandler(BackProcedure, svc.Back, opts...))
	mux.Handle(ResetProcedure, connect.NewUnaryHandler(ResetProcedure, svc.Reset, opts...))
	mux.Handle(SetTipProcedure, connect.NewUnaryHandler(SetTipProcedure, svc.SetTip, opts...))
	mux.Handle(GetBillProcedure, connect.NewUnaryHandler(GetBillProcedure, svc.GetBill, opts...))
	mux.Handle(GetSummaryProcedure, connect.NewUnaryHandler(GetSummaryProcedure, svc.GetSummary, opts...))
	mux.Handle(SettleProcedure, connect.NewUnaryHandler(SettleProcedure, svc.Settle, opts...))
	mux.Handle(ListSettlementsProcedure, connect.NewUnaryHandler(ListSettlementsProcedure, svc.ListSettlements, opts...))
	return "/" + BillServiceName + "/", mux
}

// CreateSession starts a new bill session. The returned ID must be sent in
// the Splitit-Session header on every other call.
func (s *BillService) CreateSession(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[CreateSessionResponse], error) {
	sess := s.sessions.Create()
	resp := connect.NewResponse(&CreateSessionResponse{
		SessionID: sess.ID,
		Bill:      toBill(sess.Controller.State()),
	})
	resp.Header().Set(middleware.SessionHeader, sess.ID)
	return resp, nil
}

// UploadReceipt extracts the receipt image and loads its items.
func (s *BillService) UploadReceipt(ctx context.Context, req *connect.Request[UploadReceiptRequest]) (*connect.Response[Bill], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Msg.Image) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("image is required"))
	}

	sess.Logger.Debug("Uploading receipt", "bytes", len(req.Msg.Image))
	if _, err := sess.Controller.Upload(ctx, req.Msg.Image); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toBill(sess.Controller.State())), nil
}

// AddMember adds a member to the bill.
func (s *BillService) AddMember(ctx context.Context, req *connect.Request[AddMemberRequest]) (*connect.Response[AddMemberResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	m, err := sess.Controller.AddMember(req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AddMemberResponse{
		Member: toMember(m),
		Bill:   toBill(sess.Controller.State()),
	}), nil
}

// RemoveMember removes a member and their assignments.
func (s *BillService) RemoveMember(ctx context.Context, req *connect.Request[RemoveMemberRequest]) (*connect.Response[Bill], error) {
	return s.mutate(ctx, func(c *workflow.Controller) error {
		return c.RemoveMember(req.Msg.MemberID)
	})
}

// ToggleAssignment flips whether a member shares an item.
func (s *BillService) ToggleAssignment(ctx context.Context, req *connect.Request[ToggleAssignmentRequest]) (*connect.Response[Bill], error) {
	return s.mutate(ctx, func(c *workflow.Controller) error {
		return c.ToggleAssignment(req.Msg.ItemID, req.Msg.MemberID)
	})
}

// Advance moves to the next stage.
func (s *BillService) Advance(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Bill], error) {
	return s.mutate(ctx, func(c *workflow.Controller) error {
		_, err := c.Advance()
		return err
	})
}

// Back moves to the previous stage.
func (s *BillService) Back(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Bill], error) {
	return s.mutate(ctx, func(c *workflow.Controller) error {
		_, err := c.Back()
		return err
	})
}

// Reset discards the bill and any payment links issued for it.
func (s *BillService) Reset(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Bill], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	sess.Controller.Reset()
	if err := s.settlements.Purge(ctx, sess.ID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toBill(sess.Controller.State())), nil
}

// SetTip changes the tip percent.
func (s *BillService) SetTip(ctx context.Context, req *connect.Request[SetTipRequest]) (*connect.Response[Bill], error) {
	tip, err := decimal.NewFromString(req.Msg.TipPercent)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid tip_percent %q", req.Msg.TipPercent))
	}
	return s.mutate(ctx, func(c *workflow.Controller) error {
		return c.SetTipPercent(tip)
	})
}

// GetBill returns the current state of the session.
func (s *BillService) GetBill(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Bill], error) {
	return s.mutate(ctx, func(*workflow.Controller) error { return nil })
}

// GetSummary returns each member's share. When payer_id is set it also
// returns the transfers that pay that member back.
func (s *BillService) GetSummary(ctx context.Context, req *connect.Request[GetSummaryRequest]) (*connect.Response[SummaryResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	summaries, totals, err := sess.Controller.Summary()
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := toSummary(summaries, totals, nil)
	if req.Msg.PayerID != "" {
		transfers, err := calculator.SettlementPlan(summaries, req.Msg.PayerID)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		resp = toSummary(summaries, totals, transfers)
	}
	return connect.NewResponse(resp), nil
}

// Settle issues a payment link for one member's share of the bill. Asking
// again for an unchanged share returns the same link.
func (s *BillService) Settle(ctx context.Context, req *connect.Request[SettleRequest]) (*connect.Response[Settlement], error) {
	if req.Msg.MemberID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("member_id is required"))
	}
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	summaries, _, err := sess.Controller.Summary()
	if err != nil {
		return nil, toConnectError(err)
	}

	for _, ms := range summaries {
		if ms.MemberID != req.Msg.MemberID {
			continue
		}
		issued, err := s.settlements.Settle(ctx, sess.ID, ms)
		if err != nil {
			return nil, toConnectError(err)
		}
		msg := toSettlement(issued)
		return connect.NewResponse(&msg), nil
	}
	return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("member %q: %w", req.Msg.MemberID, bill.ErrUnknownMember))
}

// ListSettlements returns the payment links issued in this session.
func (s *BillService) ListSettlements(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[SettlementsResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.settlements.List(ctx, sess.ID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toSettlements(list)), nil
}

func (s *BillService) session(ctx context.Context) (*session.Session, error) {
	id := middleware.GetSessionID(ctx)
	if id == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, middleware.ErrMissingSession)
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return sess, nil
}

// mutate applies fn to the caller's controller and returns the new state.
func (s *BillService) mutate(ctx context.Context, fn func(*workflow.Controller) error) (*connect.Response[Bill], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(sess.Controller); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toBill(sess.Controller.State())), nil
}

// toConnectError maps domain errors onto Connect codes.
func toConnectError(err error) error {
	var extractErr *extraction.Error
	switch {
	case errors.Is(err, session.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, workflow.ErrExtractionPending), errors.Is(err, workflow.ErrStaleResult):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, workflow.ErrWrongStage),
		errors.Is(err, workflow.ErrNoMembers),
		errors.Is(err, workflow.ErrUnassignedItems),
		errors.Is(err, settlement.ErrInconsistentSummary),
		errors.Is(err, settlement.ErrNothingOwed):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, bill.ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &extractErr):
		if extractErr.Kind == extraction.KindUnavailable {
			return connect.NewError(connect.CodeUnavailable, err)
		}
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		slog.Error("Unexpected error", "error", err)
		return connect.NewError(connect.CodeInternal, err)
	}
}

package service

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitit/internal/middleware"
)

// BillServiceClient calls splitit.v1.BillService. After CreateSession it
// sends the returned session ID on every call.
type BillServiceClient struct {
	sessionID string

	createSession    *connect.Client[Empty, CreateSessionResponse]
	uploadReceipt    *connect.Client[UploadReceiptRequest, Bill]
	addMember        *connect.Client[AddMemberRequest, AddMemberResponse]
	removeMember     *connect.Client[RemoveMemberRequest, Bill]
	toggleAssignment *connect.Client[ToggleAssignmentRequest, Bill]
	advance          *connect.Client[Empty, Bill]
	back             *connect.Client[Empty, Bill]
	reset            *connect.Client[Empty, Bill]
	setTip           *connect.Client[SetTipRequest, Bill]
	getBill          *connect.Client[Empty, Bill]
	getSummary       *connect.Client[GetSummaryRequest, SummaryResponse]
	settle           *connect.Client[SettleRequest, Settlement]
	listSettlements  *connect.Client[Empty, SettlementsResponse]
}

// NewBillServiceClient creates a client for the service at baseURL.
func NewBillServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *BillServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &BillServiceClient{
		createSession:    connect.NewClient[Empty, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		uploadReceipt:    connect.NewClient[UploadReceiptRequest, Bill](httpClient, baseURL+UploadReceiptProcedure, opts...),
		addMember:        connect.NewClient[AddMemberRequest, AddMemberResponse](httpClient, baseURL+AddMemberProcedure, opts...),
		removeMember:     connect.NewClient[RemoveMemberRequest, Bill](httpClient, baseURL+RemoveMemberProcedure, opts...),
		toggleAssignment: connect.NewClient[ToggleAssignmentRequest, Bill](httpClient, baseURL+ToggleAssignmentProcedure, opts...),
		advance:          connect.NewClient[Empty, Bill](httpClient, baseURL+AdvanceProcedure, opts...),
		back:             connect.NewClient[Empty, Bill](httpClient, baseURL+BackProcedure, opts...),
		reset:            connect.NewClient[Empty, Bill](httpClient, baseURL+ResetProcedure, opts...),
		setTip:           connect.NewClient[SetTipRequest, Bill](httpClient, baseURL+SetTipProcedure, opts...),
		getBill:          connect.NewClient[Empty, Bill](httpClient, baseURL+GetBillProcedure, opts...),
		getSummary:       connect.NewClient[GetSummaryRequest, SummaryResponse](httpClient, baseURL+GetSummaryProcedure, opts...),
		settle:           connect.NewClient[SettleRequest, Settlement](httpClient, baseURL+SettleProcedure, opts...),
		listSettlements:  connect.NewClient[Empty, SettlementsResponse](httpClient, baseURL+ListSettlementsProcedure, opts...),
	}
}

// SessionID returns the session the client is bound to.
func (c *BillServiceClient) SessionID() string { return c.sessionID }

// UseSession binds the client to an existing session.
func (c *BillServiceClient) UseSession(id string) { c.sessionID = id }

func (c *BillServiceClient) CreateSession(ctx context.Context) (*CreateSessionResponse, error) {
	resp, err := c.createSession.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return nil, err
	}
	c.sessionID = resp.Msg.SessionID
	return resp.Msg, nil
}

func (c *BillServiceClient) UploadReceipt(ctx context.Context, image []byte) (*Bill, error) {
	return call(ctx, c, c.uploadReceipt, &UploadReceiptRequest{Image: image})
}

func (c *BillServiceClient) AddMember(ctx context.Context, name string) (*AddMemberResponse, error) {
	return call(ctx, c, c.addMember, &AddMemberRequest{Name: name})
}

func (c *BillServiceClient) RemoveMember(ctx context.Context, memberID string) (*Bill, error) {
	return call(ctx, c, c.removeMember, &RemoveMemberRequest{MemberID: memberID})
}

func (c *BillServiceClient) ToggleAssignment(ctx context.Context, itemID, memberID string) (*Bill, error) {
	return call(ctx, c, c.toggleAssignment, &ToggleAssignmentRequest{ItemID: itemID, MemberID: memberID})
}

func (c *BillServiceClient) Advance(ctx context.Context) (*Bill, error) {
	return call(ctx, c, c.advance, &Empty{})
}

func (c *BillServiceClient) Back(ctx context.Context) (*Bill, error) {
	return call(ctx, c, c.back, &Empty{})
}

func (c *BillServiceClient) Reset(ctx context.Context) (*Bill, error) {
	return call(ctx, c, c.reset, &Empty{})
}

func (c *BillServiceClient) SetTip(ctx context.Context, tipPercent string) (*Bill, error) {
	return call(ctx, c, c.setTip, &SetTipRequest{TipPercent: tipPercent})
}

func (c *BillServiceClient) GetBill(ctx context.Context) (*Bill, error) {
	return call(ctx, c, c.getBill, &Empty{})
}

func (c *BillServiceClient) GetSummary(ctx context.Context, payerID string) (*SummaryResponse, error) {
	return call(ctx, c, c.getSummary, &GetSummaryRequest{PayerID: payerID})
}

func (c *BillServiceClient) Settle(ctx context.Context, memberID string) (*Settlement, error) {
	return call(ctx, c, c.settle, &SettleRequest{MemberID: memberID})
}

func (c *BillServiceClient) ListSettlements(ctx context.Context) (*SettlementsResponse, error) {
	return call(ctx, c, c.listSettlements, &Empty{})
}

func call[Req, Res any](ctx context.Context, c *BillServiceClient, client *connect.Client[Req, Res], msg *Req) (*Res, error) {
	req := connect.NewRequest(msg)
	if c.sessionID != "" {
		req.Header().Set(middleware.SessionHeader, c.sessionID)
	}
	resp, err := client.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

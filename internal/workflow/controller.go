// Package workflow drives one bill session through its stages:
//
//	Upload -> Members -> Split -> Summary
//
// Upload advances only when receipt extraction succeeds. Members advances
// once at least one member exists, Split once every item is assigned. Back
// moves to the immediately preceding stage and Reset returns to Upload from
// anywhere, discarding the bill.
//
// A Controller serializes every event under one mutex, so no two edits ever
// interleave. Only the extraction call runs outside the lock; at most one is
// in flight per session and a result arriving after Reset is discarded.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitit/internal/bill"
	"github.com/mmynk/splitit/internal/calculator"
	"github.com/mmynk/splitit/internal/extraction"
	"github.com/mmynk/splitit/internal/metrics"
	"github.com/mmynk/splitit/internal/models"
)

// Stage is a workflow state.
type Stage int

const (
	StageUpload Stage = iota
	StageMembers
	StageSplit
	StageSummary
)

func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "upload"
	case StageMembers:
		return "members"
	case StageSplit:
		return "split"
	case StageSummary:
		return "summary"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Guard violations. All match bill.ErrValidation.
var (
	ErrWrongStage      = fmt.Errorf("%w: not allowed in the current stage", bill.ErrValidation)
	ErrNoMembers       = fmt.Errorf("%w: add at least one member first", bill.ErrValidation)
	ErrUnassignedItems = fmt.Errorf("%w: every item must be assigned first", bill.ErrValidation)
	ErrNegativeTip     = fmt.Errorf("%w: tip percent must not be negative", bill.ErrValidation)
)

var (
	// ErrExtractionPending is returned when an upload arrives while another
	// extraction for the same session is still running.
	ErrExtractionPending = errors.New("a receipt is already being processed")

	// ErrStaleResult is returned to the caller of an extraction whose
	// session was reset while the call was in flight. The result is dropped.
	ErrStaleResult = errors.New("session was reset; receipt result discarded")
)

// DefaultTipPercent is the tip applied until the user picks another.
var DefaultTipPercent = decimal.NewFromInt(18)

// Controller owns the bill for one session.
type Controller struct {
	mu sync.Mutex

	extractor   extraction.Extractor
	metrics     *metrics.Metrics
	logger      *slog.Logger
	billOptions []bill.Option
	defaultTip  decimal.Decimal

	stage      Stage
	bill       *bill.Bill
	tipPercent decimal.Decimal
	generation uint64
	pending    bool
	lastErr    error
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics records transitions, extractions and allocations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithDefaultTip sets the tip percent used for new and reset bills.
func WithDefaultTip(p decimal.Decimal) Option {
	return func(c *Controller) { c.defaultTip = p }
}

// WithBillOptions passes options to every bill the controller creates.
func WithBillOptions(opts ...bill.Option) Option {
	return func(c *Controller) { c.billOptions = opts }
}

// New creates a controller in the Upload stage.
func New(extractor extraction.Extractor, opts ...Option) *Controller {
	c := &Controller{
		extractor:  extractor,
		logger:     slog.Default(),
		defaultTip: DefaultTipPercent,
		stage:      StageUpload,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tipPercent = c.defaultTip
	return c
}

// Upload extracts a receipt image and, on success, commits its items to the
// bill and moves to Members. On failure the stage stays Upload and nothing
// is committed; the caller may simply upload again.
//
// The extraction is not cancelled when ctx is: once issued its result is
// always applied, unless the session was reset meanwhile, in which case
// ErrStaleResult is returned and the result dropped. Time limits belong to
// the extractor's transport.
func (c *Controller) Upload(ctx context.Context, image []byte) (*models.Receipt, error) {
	c.mu.Lock()
	if c.stage != StageUpload {
		c.mu.Unlock()
		return nil, fmt.Errorf("upload in %s stage: %w", c.stage, ErrWrongStage)
	}
	if c.pending {
		c.mu.Unlock()
		return nil, ErrExtractionPending
	}
	c.pending = true
	c.lastErr = nil
	gen := c.generation
	c.mu.Unlock()

	start := time.Now()
	receipt, err := c.extractor.Extract(context.WithoutCancel(ctx), image)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.metrics.ObserveExtraction("stale", time.Since(start))
		c.logger.Info("Discarding extraction result after reset", "failed", err != nil)
		return nil, ErrStaleResult
	}
	c.pending = false

	if err == nil {
		opts := append(append([]bill.Option(nil), c.billOptions...), bill.WithMembers(c.members()))
		b := bill.New(opts...)
		if setErr := b.SetItems(receipt); setErr != nil {
			err = &extraction.Error{Kind: extraction.KindInvalidValue, Err: setErr}
		} else {
			c.bill = b
		}
	}
	if err != nil {
		var extractErr *extraction.Error
		if !errors.As(err, &extractErr) {
			extractErr = &extraction.Error{Kind: extraction.KindUnavailable, Err: err}
		}
		c.lastErr = extractErr
		c.metrics.ObserveExtraction(extractErr.Kind.String(), time.Since(start))
		c.logger.Error("Receipt upload failed", "error", extractErr)
		return nil, extractErr
	}

	c.metrics.ObserveExtraction("success", time.Since(start))
	for _, w := range receipt.Warnings {
		c.logger.Warn("Receipt needs review", "warning", w)
	}
	c.transition(StageMembers)
	return receipt, nil
}

// AddMember adds a member. Allowed in the Members stage.
func (c *Controller) AddMember(name string) (models.Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require(StageMembers); err != nil {
		return models.Member{}, err
	}
	m, err := c.bill.AddMember(name)
	if err != nil {
		return models.Member{}, err
	}
	c.logger.Debug("Member added", "member_id", m.ID)
	return m, nil
}

// RemoveMember removes a member and all of its assignments. Allowed in the
// Members stage.
func (c *Controller) RemoveMember(memberID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require(StageMembers); err != nil {
		return err
	}
	if err := c.bill.RemoveMember(memberID); err != nil {
		return err
	}
	c.logger.Debug("Member removed", "member_id", memberID)
	return nil
}

// ToggleAssignment flips whether a member shares an item. Allowed in the
// Split stage.
func (c *Controller) ToggleAssignment(itemID, memberID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require(StageSplit); err != nil {
		return err
	}
	return c.bill.ToggleAssignment(itemID, memberID)
}

// SetTipPercent changes the tip rate. Any non-negative value is accepted,
// including values above 100.
func (c *Controller) SetTipPercent(p decimal.Decimal) error {
	if p.IsNegative() {
		return ErrNegativeTip
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tipPercent = p
	return nil
}

// Advance moves to the next stage if its guard holds.
func (c *Controller) Advance() (Stage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.stage {
	case StageMembers:
		if len(c.bill.Members()) == 0 {
			return c.stage, ErrNoMembers
		}
		c.transition(StageSplit)
	case StageSplit:
		if unassigned := c.bill.Unassigned(); len(unassigned) > 0 {
			return c.stage, fmt.Errorf("%d unassigned items: %w", len(unassigned), ErrUnassignedItems)
		}
		c.transition(StageSummary)
	default:
		// Upload advances through Upload(); Summary is terminal
		return c.stage, fmt.Errorf("advance from %s: %w", c.stage, ErrWrongStage)
	}
	return c.stage, nil
}

// Back moves to the immediately preceding stage. The bill is kept.
func (c *Controller) Back() (Stage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage == StageUpload {
		return c.stage, fmt.Errorf("back from %s: %w", c.stage, ErrWrongStage)
	}
	c.transition(c.stage - 1)
	return c.stage, nil
}

// Reset discards the bill and members and returns to Upload. An extraction
// still in flight is released: its result will be dropped and a new upload
// may start immediately.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bill = nil
	c.generation++
	c.pending = false
	c.lastErr = nil
	c.tipPercent = c.defaultTip
	if c.stage != StageUpload {
		c.transition(StageUpload)
	}
	c.logger.Info("Session reset")
}

// Summary runs the allocation engine on the current bill. Allowed in the
// Summary stage; calling it repeatedly without edits returns identical results.
func (c *Controller) Summary() ([]models.MemberSummary, models.BillTotals, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require(StageSummary); err != nil {
		return nil, models.BillTotals{}, err
	}
	summaries := calculator.CalculateSplit(c.bill.Items(), c.bill.Members(), c.bill.Tax(), c.tipPercent)
	c.metrics.IncAllocations()
	return summaries, calculator.Totals(summaries), nil
}

// State is a read-only snapshot of the session.
type State struct {
	Stage      Stage
	Items      []models.Item
	Members    []models.Member
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	TipPercent decimal.Decimal
	Warnings   []string
	Unassigned []string
	Pending    bool
	LastError  error
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Stage:      c.stage,
		Subtotal:   decimal.Zero,
		Tax:        decimal.Zero,
		Total:      decimal.Zero,
		TipPercent: c.tipPercent,
		Pending:    c.pending,
		LastError:  c.lastErr,
	}
	if c.bill != nil {
		s.Items = c.bill.Items()
		s.Members = c.bill.Members()
		s.Subtotal = c.bill.Subtotal()
		s.Tax = c.bill.Tax()
		s.Total = c.bill.Total()
		s.Warnings = c.bill.Warnings()
		s.Unassigned = c.bill.Unassigned()
	}
	return s
}

// Pending reports whether an extraction is in flight.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Stage returns the current stage.
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

func (c *Controller) require(stage Stage) error {
	if c.stage != stage || c.bill == nil {
		return fmt.Errorf("requires %s stage, in %s: %w", stage, c.stage, ErrWrongStage)
	}
	return nil
}

func (c *Controller) members() []models.Member {
	if c.bill == nil {
		return nil
	}
	return c.bill.Members()
}

func (c *Controller) transition(to Stage) {
	from := c.stage
	c.stage = to
	c.metrics.IncTransition(from.String(), to.String())
	c.logger.Info("Stage changed", "from", from.String(), "to", to.String())
}

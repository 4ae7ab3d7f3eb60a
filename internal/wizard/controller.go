// Package wizard is the state machine behind the multi-step assessment form.
//
// A Controller owns one client's draft for the lifetime of a wizard session: it validates the
// current step, auto-saves with a debounce, emits accessibility announcements on navigation, and
// gates submission. It is safe for concurrent use; timers re-enter through the same mutex.
package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"sympto/internal/announce"
	"sympto/internal/models"
	"sympto/internal/steps"
	"sympto/internal/validation"
)

const (
	DefaultAutosaveDelay = time.Second
	DefaultFocusDelay    = 100 * time.Millisecond
	DefaultStoreTimeout  = 5 * time.Second
)

var (
	ErrNotReviewStep = errors.New("wizard: submit is only allowed from the review step")
	ErrSubmitting    = errors.New("wizard: a submission is already in progress")
	ErrClosed        = errors.New("wizard: controller is closed")
	ErrNoSubmitter   = errors.New("wizard: no submitter configured")
)

// DraftStore persists the in-progress draft. drafts.Store satisfies it.
type DraftStore interface {
	Save(ctx context.Context, d models.Draft)
	Load(ctx context.Context) (models.Draft, bool)
	Clear(ctx context.Context)
}

// Submitter sends a complete draft to the Assessment API.
type Submitter interface {
	Submit(ctx context.Context, d models.Draft) (*models.Assessment, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, d models.Draft) (*models.Assessment, error)

func (f SubmitterFunc) Submit(ctx context.Context, d models.Draft) (*models.Assessment, error) {
	return f(ctx, d)
}

// Options configures a Controller. Only Steps has no usable zero value; New fills it with
// steps.Default() when nil.
type Options struct {
	Steps     *steps.Registry
	Drafts    DraftStore
	Sink      announce.Sink
	Submitter Submitter
	Clock     clockwork.Clock
	Log       *zap.Logger

	AutosaveDelay time.Duration
	FocusDelay    time.Duration
	// StoreTimeout bounds each draft storage call. Saves run under the controller lock.
	StoreTimeout time.Duration

	// Initial pre-populates the draft when resuming or editing a server-side assessment.
	// When set, the locally stored draft is never read.
	Initial *models.Assessment
}

type Controller struct {
	mu sync.Mutex

	registry      *steps.Registry
	drafts        DraftStore
	sink          announce.Sink
	submitter     Submitter
	clock         clockwork.Clock
	log           *zap.Logger
	autosaveDelay time.Duration
	focusDelay    time.Duration
	storeTimeout  time.Duration
	hasInitial    bool

	draft       models.Draft
	step        int
	stepErrors  validation.Errors
	submitting  bool
	hydrated    bool
	initialized bool
	closed      bool

	saveTimer  clockwork.Timer
	saveGen    uint64
	focusTimer clockwork.Timer
	focusGen   uint64
}

func New(opts Options) *Controller {
	c := &Controller{
		registry:      opts.Steps,
		drafts:        opts.Drafts,
		sink:          opts.Sink,
		submitter:     opts.Submitter,
		clock:         opts.Clock,
		log:           opts.Log,
		autosaveDelay: opts.AutosaveDelay,
		focusDelay:    opts.FocusDelay,
		storeTimeout:  opts.StoreTimeout,
	}
	if c.registry == nil {
		c.registry = steps.Default()
	}
	if c.sink == nil {
		c.sink = announce.Nop{}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.With(zap.String("component", "wizard"))
	if c.autosaveDelay <= 0 {
		c.autosaveDelay = DefaultAutosaveDelay
	}
	if c.focusDelay <= 0 {
		c.focusDelay = DefaultFocusDelay
	}
	if c.storeTimeout <= 0 {
		c.storeTimeout = DefaultStoreTimeout
	}
	if opts.Initial != nil {
		c.hasInitial = true
		c.draft = opts.Initial.Draft.Clone()
	}
	c.enterStep(0)
	return c
}

// Init runs the mount-time work once: hydrate from the stored draft unless an initial record
// was supplied, then validate the first step. Later calls do nothing.
func (c *Controller) Init(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized || c.closed {
		return
	}
	c.initialized = true

	if !c.hasInitial && !c.hydrated && c.drafts != nil {
		if d, ok := c.drafts.Load(ctx); ok {
			// Wholesale replacement, not a merge.
			c.draft = d
			c.hydrated = true
			c.log.Debug("Hydrated draft from storage", zap.Int("fields", len(d.Values())))
		}
	}
	c.enterStep(c.step)
}

// SetField records a value for f and schedules an auto-save. Out-of-range values are kept and
// reported through State, never coerced.
func (c *Controller) SetField(f models.Field, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.draft.Set(f, value); err != nil {
		return err
	}
	c.fieldChanged()
	return nil
}

// ClearField unsets f and schedules an auto-save.
func (c *Controller) ClearField(f models.Field) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.draft.Clear(f); err != nil {
		return err
	}
	c.fieldChanged()
	return nil
}

func (c *Controller) fieldChanged() {
	c.stepErrors = validation.ValidateFields(c.draft, c.registry.Fields(c.step))
	c.scheduleSave()
}

// Next advances one step when the current step's fields are all valid. Otherwise it announces
// the failure, stays put, and returns the field errors as validation.Errors.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	errs := validation.ValidateFields(c.draft, c.registry.Fields(c.step))
	c.stepErrors = errs
	if len(errs) > 0 {
		c.sink.Announce(announce.For(announce.ValidationFailed, ""))
		return errs
	}

	next := min(c.step+1, c.registry.LastIndex())
	c.enterStep(next)
	c.navigated(announce.StepForward)
	return nil
}

// Prev moves back one step. Going back is never gated on validity.
func (c *Controller) Prev() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.enterStep(max(c.step-1, 0))
	c.navigated(announce.StepBack)
	return nil
}

// enterStep switches to step i and validates it before the new state is observable.
func (c *Controller) enterStep(i int) {
	c.step = i
	c.stepErrors = validation.ValidateFields(c.draft, c.registry.Fields(i))
}

func (c *Controller) navigated(ev announce.Event) {
	step, err := c.registry.At(c.step)
	if err != nil {
		return
	}
	a := announce.For(ev, step.Title)
	c.sink.Announce(a)
	c.scheduleFocus(a.Focus)
	c.log.Debug("Step changed", zap.String("step", step.ID), zap.Int("index", c.step))
}

// Submit sends the whole draft. It must be called from the review step with a complete, valid
// record. On success the draft is discarded, locally and in storage, and the wizard returns to
// the first step; on failure the draft is kept for a retry.
func (c *Controller) Submit(ctx context.Context) (*models.Assessment, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, ErrClosed
	case !c.registry.IsLast(c.step):
		c.mu.Unlock()
		return nil, ErrNotReviewStep
	case c.submitting:
		c.mu.Unlock()
		return nil, ErrSubmitting
	case c.submitter == nil:
		c.mu.Unlock()
		return nil, ErrNoSubmitter
	}
	if errs := validation.ValidateRecord(c.draft); len(errs) > 0 {
		c.stepErrors = errs
		c.sink.Announce(announce.For(announce.ValidationFailed, ""))
		c.mu.Unlock()
		return nil, errs
	}
	c.submitting = true
	payload := c.draft.Clone()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	assessment, err := c.submitter.Submit(ctx, payload)
	if err != nil {
		c.log.Error("Assessment submission failed", zap.Error(err))
		return nil, err
	}

	// The record exists upstream now, so the clear must not depend on the caller staying around.
	clearCtx, cancel := c.storeContext(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancelSave()
	if c.drafts != nil {
		c.drafts.Clear(clearCtx)
	}
	c.draft = models.Draft{}
	c.hydrated = false
	c.enterStep(0)
	c.mu.Unlock()
	c.log.Info("Assessment submitted", zap.String("assessment_id", assessment.ID))
	return assessment, nil
}

// Reset discards the draft, locally and in storage, and returns to the first step.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.cancelSave()
	if c.drafts != nil {
		clearCtx, cancel := c.storeContext(ctx)
		c.drafts.Clear(clearCtx)
		cancel()
	}
	c.draft = models.Draft{}
	c.hydrated = false
	c.enterStep(0)
	c.sink.Announce(announce.For(announce.NewAssessment, ""))
	return nil
}

// Draft returns a copy of the in-memory draft.
func (c *Controller) Draft() models.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.Clone()
}

// Close cancels pending auto-save and focus timers. The pending save is dropped, not flushed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancelSave()
	c.focusGen++
	if c.focusTimer != nil {
		c.focusTimer.Stop()
		c.focusTimer = nil
	}
}

// scheduleSave replaces any pending save with one that fires a full window after now.
func (c *Controller) scheduleSave() {
	if c.drafts == nil {
		return
	}
	c.cancelSave()
	gen := c.saveGen
	c.saveTimer = c.clock.AfterFunc(c.autosaveDelay, func() { c.flushSave(gen) })
}

func (c *Controller) cancelSave() {
	c.saveGen++
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
	}
}

func (c *Controller) flushSave(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A timer that already fired can still lose the race against Stop; the generation decides.
	if c.closed || gen != c.saveGen {
		return
	}
	c.saveTimer = nil
	ctx, cancel := c.storeContext(context.Background())
	defer cancel()
	c.drafts.Save(ctx, c.draft)
	c.sink.Announce(announce.For(announce.DraftSaving, ""))
}

// storeContext detaches ctx from its caller's cancellation and bounds it by the store timeout.
func (c *Controller) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout)
}

func (c *Controller) scheduleFocus(target string) {
	if target == "" {
		return
	}
	c.focusGen++
	gen := c.focusGen
	if c.focusTimer != nil {
		c.focusTimer.Stop()
	}
	c.focusTimer = c.clock.AfterFunc(c.focusDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.focusGen {
			return
		}
		c.focusTimer = nil
		c.sink.Focus(target)
	})
}

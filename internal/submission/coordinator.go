// Package submission sends finished assessments to the API and waits for their analysis.
package submission

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"sympto/internal/apiclient"
	"sympto/internal/models"
)

// API is the part of the Assessment API the coordinator needs. apiclient.Client satisfies it.
type API interface {
	CreateAssessment(ctx context.Context, d models.Draft) (*models.Assessment, error)
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	AnalyzeAssessment(ctx context.Context, id string) (*models.Assessment, error)
}

// SubmissionError is a failed create or analyze call, carrying the message shown to the user.
type SubmissionError struct {
	Op      string
	Message string
	Status  int
	Err     error
}

func (e *SubmissionError) Error() string { return e.Message }

func (e *SubmissionError) Unwrap() error { return e.Err }

type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
}

var DefaultPollOptions = PollOptions{MaxAttempts: 10, Interval: 3 * time.Second}

func (o PollOptions) withDefaults() PollOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultPollOptions.MaxAttempts
	}
	if o.Interval <= 0 {
		o.Interval = DefaultPollOptions.Interval
	}
	return o
}

// PollOutcome is why a poll loop stopped.
type PollOutcome int

const (
	PollAnalyzed PollOutcome = iota
	PollExhausted
	PollFailed
	PollCancelled
)

func (o PollOutcome) String() string {
	switch o {
	case PollAnalyzed:
		return "analyzed"
	case PollExhausted:
		return "exhausted"
	case PollFailed:
		return "failed"
	case PollCancelled:
		return "cancelled"
	}
	return "unknown"
}

type Options struct {
	Clock clockwork.Clock
	Log   *zap.Logger
	// Poll is read each time polling starts, so configuration reloads apply to later polls.
	Poll func() PollOptions
}

type Coordinator struct {
	api   API
	clock clockwork.Clock
	log   *zap.Logger
	poll  func() PollOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(api API, opts Options) *Coordinator {
	c := &Coordinator{api: api, clock: opts.Clock, log: opts.Log, poll: opts.Poll}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.With(zap.String("component", "submission"))
	if c.poll == nil {
		c.poll = func() PollOptions { return DefaultPollOptions }
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Submit creates the assessment. A failure comes back as *SubmissionError.
func (c *Coordinator) Submit(ctx context.Context, d models.Draft) (*models.Assessment, error) {
	a, err := c.api.CreateAssessment(ctx, d)
	if err != nil {
		return nil, c.fail("submit", err)
	}
	return a, nil
}

// RetryAnalysis asks the API to analyze id again, with the same error contract as Submit.
func (c *Coordinator) RetryAnalysis(ctx context.Context, id string) (*models.Assessment, error) {
	a, err := c.api.AnalyzeAssessment(ctx, id)
	if err != nil {
		return nil, c.fail("analyze", err)
	}
	return a, nil
}

func (c *Coordinator) fail(op string, err error) *SubmissionError {
	se := &SubmissionError{Op: op, Message: err.Error(), Err: err}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		se.Status = apiErr.Status
		se.Message = apiErr.Message
	}
	c.log.Error("Assessment request failed", zap.String("op", op), zap.Int("status", se.Status), zap.Error(err))
	return se
}

// PollForAnalysis fetches id every opts.Interval, starting one interval from now, until the
// analysis settles or MaxAttempts fetches have been made. Every fetched record is handed to
// onUpdate unless ctx was already done when the fetch returned. A cancel that lands while
// onUpdate runs is not observed, so callers that must drop late records guard them themselves.
// Fetch errors end the loop.
func (c *Coordinator) PollForAnalysis(ctx context.Context, id string, opts PollOptions, onUpdate func(*models.Assessment)) PollOutcome {
	opts = opts.withDefaults()
	log := c.log.With(zap.String("assessment_id", id))

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if !c.sleep(ctx, opts.Interval) {
			return PollCancelled
		}

		a, err := c.api.GetAssessment(ctx, id)
		if ctx.Err() != nil {
			return PollCancelled
		}
		if err != nil {
			log.Warn("Polling for analysis failed", zap.Int("attempt", attempt), zap.Error(err))
			return PollFailed
		}
		if onUpdate != nil {
			onUpdate(a)
		}
		if a.AnalysisSettled() {
			log.Debug("Analysis available", zap.Int("attempt", attempt))
			return PollAnalyzed
		}
	}

	log.Info("Stopped polling without analysis", zap.Int("attempts", opts.MaxAttempts))
	return PollExhausted
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	t := c.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.Chan():
		return ctx.Err() == nil
	}
}

// StartPolling runs PollForAnalysis in the background with the configured options. The
// returned function cancels it; onDone, if set, receives the outcome unless the poll was
// cancelled.
func (c *Coordinator) StartPolling(ctx context.Context, id string, onUpdate func(*models.Assessment), onDone func(PollOutcome)) context.CancelFunc {
	pollCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer stop()
		defer cancel()

		outcome := c.PollForAnalysis(pollCtx, id, c.poll(), onUpdate)
		if outcome != PollCancelled && onDone != nil {
			onDone(outcome)
		}
	}()
	return cancel
}

// Close cancels every running poll and waits for them to return.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"sympto/internal/announce"
	"sympto/internal/models"
	"sympto/internal/submission"
	"sympto/internal/wizard"
)

var (
	ErrNoAssessment = errors.New("no submitted assessment to analyze")
	ErrRetrying     = errors.New("analysis retry already in progress")
	ErrResultsShown = errors.New("results are shown; start a new assessment to edit")
)

// Session is one browser client's assessment flow: the wizard, its live region, and whatever
// happened after submission.
type Session struct {
	ID     string
	Wizard *wizard.Controller
	Live   *announce.LiveRegion

	coord *submission.Coordinator
	log   *zap.Logger

	mu          sync.Mutex
	current     *models.Assessment
	showResults bool
	lastErr     string
	retrying    bool
	polling     bool
	pollGen     uint64
	stopPoll    context.CancelFunc
	lastSeen    time.Time
}

// Results is what the results view renders.
type Results struct {
	Assessment      *models.Assessment  `json:"assessment,omitempty"`
	Outputs         models.ModelOutputs `json:"outputs,omitempty"`
	ShowResults     bool                `json:"showResults"`
	AnalysisPending bool                `json:"analysisPending"`
	Retrying        bool                `json:"retrying"`
	Error           string              `json:"error,omitempty"`
	Live            announce.Snapshot   `json:"live"`
}

func (s *Session) Results() Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Results{
		Assessment:      s.current,
		Outputs:         s.current.StructuredOutputs(),
		ShowResults:     s.showResults,
		AnalysisPending: s.polling && !s.current.AnalysisSettled(),
		Retrying:        s.retrying,
		Error:           s.lastErr,
		Live:            s.Live.Snapshot(),
	}
}

// SetField, ClearField, Next and Prev forward to the wizard while no results are shown. Once a
// submission succeeded the form stays locked until StartNew.
func (s *Session) SetField(f models.Field, v float64) error {
	return s.whileEditing(func() error { return s.Wizard.SetField(f, v) })
}

func (s *Session) ClearField(f models.Field) error {
	return s.whileEditing(func() error { return s.Wizard.ClearField(f) })
}

func (s *Session) Next() error {
	return s.whileEditing(s.Wizard.Next)
}

func (s *Session) Prev() error {
	return s.whileEditing(s.Wizard.Prev)
}

func (s *Session) whileEditing(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.showResults {
		return ErrResultsShown
	}
	return fn()
}

// Submit sends the wizard's draft and, when the API accepted it without analysis, starts
// polling for the result in the background. ctx must carry the caller's bearer token; polling
// keeps its values but not its cancellation.
func (s *Session) Submit(ctx context.Context) (*models.Assessment, error) {
	s.mu.Lock()
	if s.showResults {
		s.mu.Unlock()
		return nil, ErrResultsShown
	}
	s.cancelPollLocked()
	s.lastErr = ""
	s.mu.Unlock()

	a, err := s.Wizard.Submit(ctx)
	if err != nil {
		var se *submission.SubmissionError
		if errors.As(err, &se) {
			s.mu.Lock()
			s.lastErr = se.Message
			s.mu.Unlock()
			s.announce(announce.For(announce.SubmissionFailed, se.Message))
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = a
	s.showResults = true
	switch {
	case a.NeedsPolling():
		s.announce(announce.For(announce.AnalysisPending, ""))
		s.startPollLocked(context.WithoutCancel(ctx), a.ID)
	case a.HasAnyResults():
		s.announce(announce.For(announce.ResultsReady, ""))
	default:
		s.announce(announce.For(announce.SubmissionSucceeded, ""))
	}
	return a, nil
}

// RetryAnalysis asks the API to analyze the current assessment again.
func (s *Session) RetryAnalysis(ctx context.Context) (*models.Assessment, error) {
	s.mu.Lock()
	if s.current == nil || s.current.ID == "" {
		s.mu.Unlock()
		return nil, ErrNoAssessment
	}
	if s.retrying {
		s.mu.Unlock()
		return nil, ErrRetrying
	}
	s.retrying = true
	s.lastErr = ""
	s.cancelPollLocked()
	id := s.current.ID
	s.mu.Unlock()

	a, err := s.coord.RetryAnalysis(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrying = false
	if err != nil {
		s.lastErr = err.Error()
		return nil, err
	}
	s.current = a
	if a.HasAnyResults() {
		s.announce(announce.For(announce.ResultsReady, ""))
	}
	return a, nil
}

// StartNew drops the current results and the draft and returns the wizard to its first step.
func (s *Session) StartNew(ctx context.Context) error {
	s.mu.Lock()
	s.cancelPollLocked()
	s.current = nil
	s.showResults = false
	s.lastErr = ""
	s.mu.Unlock()
	return s.Wizard.Reset(ctx)
}

// showRecent displays an earlier assessment that already has results.
func (s *Session) showRecent(a *models.Assessment) {
	if a == nil || !(a.Status == models.StatusAnalyzed || a.AIAnalysis != nil) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		s.current = a
		s.showResults = true
	}
}

func (s *Session) startPollLocked(ctx context.Context, id string) {
	s.pollGen++
	gen := s.pollGen
	s.polling = true

	onUpdate := func(a *models.Assessment) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.pollGen {
			return
		}
		s.current = a
		if a.AnalysisSettled() {
			s.announce(announce.For(announce.ResultsReady, ""))
		}
	}
	onDone := func(outcome submission.PollOutcome) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.pollGen {
			return
		}
		s.polling = false
		s.log.Debug("Polling finished", zap.String("assessment_id", id), zap.Stringer("outcome", outcome))
	}
	s.stopPoll = s.coord.StartPolling(ctx, id, onUpdate, onDone)
}

func (s *Session) cancelPollLocked() {
	s.pollGen++
	s.polling = false
	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}
}

func (s *Session) announce(a announce.Announcement) {
	s.Live.Announce(a)
	if a.Focus != "" {
		s.Live.Focus(a.Focus)
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) close() {
	s.mu.Lock()
	s.cancelPollLocked()
	s.mu.Unlock()
	s.Wizard.Close()
}

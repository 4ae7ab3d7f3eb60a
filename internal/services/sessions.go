// Package services holds the per-client session registry and its background housekeeping.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"sympto/internal/announce"
	"sympto/internal/drafts"
	"sympto/internal/models"
	"sympto/internal/steps"
	"sympto/internal/submission"
	"sympto/internal/wizard"
)

// RecentFinder looks up the client's latest assessment. history.Service satisfies it.
type RecentFinder interface {
	Latest(ctx context.Context) (*models.Assessment, error)
}

// WizardTimings are read whenever a session is created.
type WizardTimings struct {
	AutosaveDelay time.Duration
	FocusDelay    time.Duration
	StoreTimeout  time.Duration
}

type ManagerOptions struct {
	KV          drafts.KV
	Coordinator *submission.Coordinator
	Recent      RecentFinder
	Steps       *steps.Registry
	Clock       clockwork.Clock
	Log         *zap.Logger
	Timings     func() WizardTimings
}

// SessionManager owns one Session per browser client ID.
type SessionManager struct {
	opts ManagerOptions
	log  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(opts ManagerOptions) *SessionManager {
	if opts.KV == nil {
		opts.KV = drafts.NewMemoryKV()
	}
	if opts.Steps == nil {
		opts.Steps = steps.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Timings == nil {
		opts.Timings = func() WizardTimings { return WizardTimings{} }
	}
	return &SessionManager{
		opts:     opts,
		log:      opts.Log.With(zap.String("component", "sessions")),
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for clientID, creating and initializing it on first use. A new
// session hydrates the wizard from the client's stored draft and shows the client's latest
// analyzed assessment, if any.
func (m *SessionManager) Get(ctx context.Context, clientID string) *Session {
	m.mu.Lock()
	s, ok := m.sessions[clientID]
	if !ok {
		s = m.newSession(clientID)
		m.sessions[clientID] = s
	}
	m.mu.Unlock()

	s.touch(m.opts.Clock.Now())
	if ok {
		return s
	}

	s.Wizard.Init(ctx)
	if m.opts.Recent != nil {
		recent, err := m.opts.Recent.Latest(ctx)
		if err != nil {
			m.log.Debug("Could not load recent assessment", zap.String("client_id", clientID), zap.Error(err))
		} else {
			s.showRecent(recent)
		}
	}
	m.log.Debug("Session created", zap.String("client_id", clientID))
	return s
}

func (m *SessionManager) newSession(clientID string) *Session {
	log := m.opts.Log.With(zap.String("client_id", clientID))
	live := announce.NewLiveRegion()
	timings := m.opts.Timings()

	var submitter wizard.Submitter
	if m.opts.Coordinator != nil {
		submitter = wizard.SubmitterFunc(m.opts.Coordinator.Submit)
	}

	return &Session{
		ID:   clientID,
		Live: live,
		Wizard: wizard.New(wizard.Options{
			Steps:         m.opts.Steps,
			Drafts:        drafts.NewStore(drafts.Scoped(m.opts.KV, clientID), log),
			Sink:          live,
			Submitter:     submitter,
			Clock:         m.opts.Clock,
			Log:           log,
			AutosaveDelay: timings.AutosaveDelay,
			FocusDelay:    timings.FocusDelay,
			StoreTimeout:  timings.StoreTimeout,
		}),
		coord: m.opts.Coordinator,
		log:   log.With(zap.String("component", "session")),
	}
}

// Lookup returns an existing session without creating one.
func (m *SessionManager) Lookup(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	return s, ok
}

// Discard closes and forgets the session. Its pending auto-save and polls are cancelled.
func (m *SessionManager) Discard(clientID string) {
	m.mu.Lock()
	s, ok := m.sessions[clientID]
	delete(m.sessions, clientID)
	m.mu.Unlock()
	if ok {
		s.close()
	}
}

// DiscardIdle discards every session not used within idle and reports how many it dropped.
func (m *SessionManager) DiscardIdle(idle time.Duration) int {
	cutoff := m.opts.Clock.Now().Add(-idle)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.close()
	}
	return len(stale)
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close discards every session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}

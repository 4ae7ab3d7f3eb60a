// Package announce turns wizard transitions into screen-reader announcements and focus moves.
package announce

import (
	"fmt"
	"sync"
)

// Event is a transition worth telling assistive technology about.
type Event int

const (
	StepForward Event = iota
	StepBack
	ValidationFailed
	DraftSaving
	SubmissionSucceeded
	ResultsReady
	AnalysisPending
	SubmissionFailed
	NewAssessment
)

// Politeness mirrors aria-live.
type Politeness string

const (
	Polite    Politeness = "polite"
	Assertive Politeness = "assertive"
)

const (
	// StepContentTarget is the container that receives focus after navigation.
	StepContentTarget = "#step-content"
	// StatusTarget is the page-level status region.
	StatusTarget = "#status-announcements"
)

// Announcement is what a sink should say, and where focus should go (empty means stay put).
type Announcement struct {
	Message    string     `json:"message"`
	Politeness Politeness `json:"politeness"`
	Focus      string     `json:"focus,omitempty"`
}

// For builds the announcement for ev. Detail is the step title for navigation events and the
// error message for SubmissionFailed.
func For(ev Event, detail string) Announcement {
	switch ev {
	case StepForward:
		return Announcement{Message: fmt.Sprintf("Moved to %s step", detail), Politeness: Assertive, Focus: StepContentTarget}
	case StepBack:
		return Announcement{Message: fmt.Sprintf("Moved back to %s step", detail), Politeness: Assertive, Focus: StepContentTarget}
	case ValidationFailed:
		return Announcement{Message: "Please complete all required fields before proceeding", Politeness: Assertive}
	case DraftSaving:
		return Announcement{Message: "Your progress is being automatically saved", Politeness: Polite}
	case SubmissionSucceeded:
		return Announcement{Message: "Assessment submitted successfully.", Politeness: Polite}
	case ResultsReady:
		return Announcement{Message: "Assessment submitted successfully. Your results are now available.", Politeness: Polite}
	case AnalysisPending:
		return Announcement{Message: "Assessment submitted. Analysis in progress...", Politeness: Polite}
	case SubmissionFailed:
		return Announcement{Message: "Assessment submission failed: " + detail, Politeness: Assertive, Focus: StatusTarget}
	case NewAssessment:
		return Announcement{Message: "Starting new health assessment...", Politeness: Polite}
	}
	return Announcement{}
}

// Sink performs the side effects: writing live-region text and moving focus.
// Both calls must be idempotent.
type Sink interface {
	Announce(Announcement)
	Focus(target string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Announce(Announcement) {}
func (Nop) Focus(string)          {}

// LiveRegion is a Sink that remembers the latest text per politeness level and the latest
// focus target, so an HTTP view can render them. Revision only moves when content changes.
type LiveRegion struct {
	mu        sync.Mutex
	polite    string
	assertive string
	focus     string
	revision  uint64
}

// Snapshot is a copy of a LiveRegion's content.
type Snapshot struct {
	Polite    string `json:"polite,omitempty"`
	Assertive string `json:"assertive,omitempty"`
	Focus     string `json:"focus,omitempty"`
	Revision  uint64 `json:"revision"`
}

func NewLiveRegion() *LiveRegion {
	return &LiveRegion{}
}

func (l *LiveRegion) Announce(a Announcement) {
	if a.Message == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	slot := &l.polite
	if a.Politeness == Assertive {
		slot = &l.assertive
	}
	if *slot == a.Message {
		return
	}
	*slot = a.Message
	l.revision++
}

func (l *LiveRegion) Focus(target string) {
	if target == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.focus == target {
		return
	}
	l.focus = target
	l.revision++
}

func (l *LiveRegion) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{Polite: l.polite, Assertive: l.assertive, Focus: l.focus, Revision: l.revision}
}

// ConsumeFocus returns the pending focus target and clears it, so a view moves focus once.
func (l *LiveRegion) ConsumeFocus() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	target := l.focus
	l.focus = ""
	return target
}

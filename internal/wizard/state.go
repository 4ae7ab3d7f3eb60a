package wizard

import (
	"sympto/internal/models"
	"sympto/internal/steps"
	"sympto/internal/validation"
)

type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepCurrent   StepStatus = "current"
	StepUpcoming  StepStatus = "upcoming"
)

// StepSummary is one entry of the progress indicator.
type StepSummary struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status StepStatus `json:"status"`
}

// State is a point-in-time snapshot of the wizard, safe to serialize and hand to a view.
type State struct {
	StepIndex  int                      `json:"stepIndex"`
	Step       steps.Step               `json:"step"`
	TotalSteps int                      `json:"totalSteps"`
	Progress   float64                  `json:"progress"`
	Steps      []StepSummary            `json:"steps"`
	Values     map[models.Field]float64 `json:"values"`
	Errors     validation.Errors        `json:"errors"`

	CanGoBack     bool `json:"canGoBack"`
	CanGoNext     bool `json:"canGoNext"`
	CanSubmit     bool `json:"canSubmit"`
	Submitting    bool `json:"submitting"`
	DraftHydrated bool `json:"draftHydrated"`
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.registry.Len()
	step, _ := c.registry.At(c.step)
	last := c.registry.IsLast(c.step)

	summaries := make([]StepSummary, 0, n)
	for i, s := range c.registry.All() {
		status := StepUpcoming
		switch {
		case i < c.step:
			status = StepCompleted
		case i == c.step:
			status = StepCurrent
		}
		summaries = append(summaries, StepSummary{ID: s.ID, Title: s.Title, Status: status})
	}

	errs := make(validation.Errors, len(c.stepErrors))
	for f, msg := range c.stepErrors {
		errs[f] = msg
	}

	return State{
		StepIndex:     c.step,
		Step:          step,
		TotalSteps:    n,
		Progress:      float64(c.step+1) / float64(n) * 100,
		Steps:         summaries,
		Values:        c.draft.Values(),
		Errors:        errs,
		CanGoBack:     c.step > 0,
		CanGoNext:     !last && len(c.stepErrors) == 0,
		CanSubmit:     last && !c.submitting && len(validation.ValidateRecord(c.draft)) == 0,
		Submitting:    c.submitting,
		DraftHydrated: c.hydrated,
	}
}

// Package steps defines the ordered pages of the assessment wizard.
package steps

import (
	"errors"
	"fmt"

	"sympto/internal/models"
)

// Step is one page of the wizard.
type Step struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Fields []models.Field `json:"fields"`
	// Component names the view that renders the step; the wizard never interprets it.
	Component string `json:"component"`
}

// Registry is the fixed, ordered list of steps.
type Registry struct {
	steps []Step
}

var ErrOutOfRange = errors.New("step index out of range")

// Default returns symptoms, lifestyle, lab results, review.
func Default() *Registry {
	r, err := New([]Step{
		{ID: "symptoms", Title: "Symptoms", Fields: models.SymptomFields, Component: "SymptomStep"},
		{ID: "lifestyle", Title: "Lifestyle", Fields: models.LifestyleFields, Component: "LifestyleStep"},
		{ID: "lab-results", Title: "Lab Results", Fields: models.LabFields, Component: "LabResultsStep"},
		{ID: "review", Title: "Review", Fields: models.AllFields(), Component: "ReviewStep"},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// New validates and builds a registry. The last step must own every field, and every field
// must also belong to some earlier step.
func New(list []Step) (*Registry, error) {
	if len(list) == 0 {
		return nil, errors.New("steps: registry needs at least one step")
	}

	seen := make(map[string]bool, len(list))
	owned := make(map[models.Field]bool)
	for i, s := range list {
		if s.ID == "" {
			return nil, fmt.Errorf("steps: step %d has no id", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("steps: duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
		for _, f := range s.Fields {
			if !models.IsField(string(f)) {
				return nil, fmt.Errorf("steps: step %q: %w: %q", s.ID, models.ErrUnknownField, f)
			}
			if i < len(list)-1 {
				owned[f] = true
			}
		}
	}

	last := list[len(list)-1]
	lastFields := make(map[models.Field]bool, len(last.Fields))
	for _, f := range last.Fields {
		lastFields[f] = true
	}
	for _, f := range models.AllFields() {
		if !lastFields[f] {
			return nil, fmt.Errorf("steps: final step %q does not own %q", last.ID, f)
		}
		if len(list) > 1 && !owned[f] {
			return nil, fmt.Errorf("steps: field %q is not collected by any step", f)
		}
	}

	out := make([]Step, len(list))
	copy(out, list)
	return &Registry{steps: out}, nil
}

// Len is the number of steps.
func (r *Registry) Len() int { return len(r.steps) }

// At returns step i.
func (r *Registry) At(i int) (Step, error) {
	if i < 0 || i >= len(r.steps) {
		return Step{}, fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	return r.steps[i], nil
}

// LastIndex is the index of the review step.
func (r *Registry) LastIndex() int { return len(r.steps) - 1 }

func (r *Registry) IsLast(i int) bool { return i == r.LastIndex() }

// Fields returns the fields owned by step i, or nil when i is out of range.
func (r *Registry) Fields(i int) []models.Field {
	if i < 0 || i >= len(r.steps) {
		return nil
	}
	return r.steps[i].Fields
}

// Index returns the position of the step with the given id.
func (r *Registry) Index(id string) (int, bool) {
	for i, s := range r.steps {
		if s.ID == id {
			return i, true
		}
	}
	return -1, false
}

// All returns a copy of the steps in order.
func (r *Registry) All() []Step {
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

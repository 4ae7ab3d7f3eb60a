package history

import (
	"math"
	"sort"
	"time"

	"sympto/internal/models"
)

type Change string

const (
	Improved Change = "Improved"
	Worsened Change = "Worsened"
	NoChange Change = "No change"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

// ChangeIndicator classifies the move from before to after. A missing side counts as no change.
func ChangeIndicator(before, after *float64, higherIsBetter bool) (Change, Direction) {
	if before == nil || after == nil || *before == *after {
		return NoChange, Flat
	}
	increase := *after > *before
	dir := Down
	if increase {
		dir = Up
	}
	if increase == higherIsBetter {
		return Improved, dir
	}
	return Worsened, dir
}

type Row struct {
	Field     models.Field `json:"field"`
	Label     string       `json:"label"`
	Unit      string       `json:"unit,omitempty"`
	Before    *float64     `json:"before"`
	After     *float64     `json:"after"`
	Change    Change       `json:"change"`
	Direction Direction    `json:"direction"`
}

type Section struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// AnalysisSummary is the comparable part of one assessment's AI analysis.
type AnalysisSummary struct {
	Available       bool     `json:"available"`
	ConfidencePct   *int     `json:"confidencePct,omitempty"`
	Insights        string   `json:"insights,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	RiskFactorCount int      `json:"riskFactorCount"`
}

type AnalysisComparison struct {
	Earlier AnalysisSummary `json:"earlier"`
	Later   AnalysisSummary `json:"later"`
	// ConfidenceDelta is later minus earlier in percentage points, set when both have a confidence.
	ConfidenceDelta *int `json:"confidenceDelta,omitempty"`
}

type Ref struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

type Comparison struct {
	Earlier  Ref                `json:"earlier"`
	Later    Ref                `json:"later"`
	Sections []Section          `json:"sections"`
	Analysis AnalysisComparison `json:"analysis"`
}

var sections = []struct {
	id     string
	title  string
	fields []models.Field
}{
	{"symptoms", "Symptoms", models.SymptomFields},
	{"lifestyle", "Lifestyle", models.LifestyleFields},
	{"labs", "Lab Results", models.LabFields},
}

// Compare lines up two assessments field by field. The older one (by CreatedAt) is treated as
// the baseline regardless of argument order.
func Compare(a, b *models.Assessment, catalog *models.Catalog) Comparison {
	earlier, later := a, b
	if later.CreatedAt.Before(earlier.CreatedAt) {
		earlier, later = later, earlier
	}

	out := Comparison{
		Earlier: Ref{ID: earlier.ID, CreatedAt: earlier.CreatedAt},
		Later:   Ref{ID: later.ID, CreatedAt: later.CreatedAt},
	}
	for _, s := range sections {
		section := Section{ID: s.id, Title: s.title, Rows: make([]Row, 0, len(s.fields))}
		for _, f := range s.fields {
			info, _ := catalog.Info(f)
			before, after := valueOf(earlier, f), valueOf(later, f)
			change, dir := ChangeIndicator(before, after, info.HigherIsBetter)
			section.Rows = append(section.Rows, Row{
				Field:     f,
				Label:     catalog.Label(f),
				Unit:      info.Unit,
				Before:    before,
				After:     after,
				Change:    change,
				Direction: dir,
			})
		}
		out.Sections = append(out.Sections, section)
	}

	out.Analysis.Earlier = summarize(earlier.AIAnalysis)
	out.Analysis.Later = summarize(later.AIAnalysis)
	if e, l := out.Analysis.Earlier.ConfidencePct, out.Analysis.Later.ConfidencePct; e != nil && l != nil {
		delta := *l - *e
		out.Analysis.ConfidenceDelta = &delta
	}
	return out
}

func valueOf(a *models.Assessment, f models.Field) *float64 {
	v, ok := a.Get(f)
	if !ok {
		return nil
	}
	return &v
}

func summarize(ai *models.AIAnalysis) AnalysisSummary {
	if ai == nil {
		return AnalysisSummary{}
	}
	s := AnalysisSummary{
		Available:       true,
		Insights:        ai.Insights,
		Recommendations: ai.Recommendations,
		RiskFactorCount: len(ai.RiskFactors),
	}
	if ai.Confidence != nil {
		pct := int(math.Round(*ai.Confidence * 100))
		s.ConfidencePct = &pct
	}
	return s
}

// chronological returns a copy of list ordered oldest first.
func chronological(list []models.Assessment) []models.Assessment {
	out := make([]models.Assessment, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

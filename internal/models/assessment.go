// assessment.go
package models

import (
	"encoding/json"
	"time"
)

// Status is the server-side lifecycle of a submitted assessment.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAnalyzed  Status = "analyzed"
)

// OutputFlag names one structured model output and its display label.
type OutputFlag struct {
	Key   string
	Label string
}

// OutputFlags are the structured deficiency flags the analysis model can return.
var OutputFlags = []OutputFlag{
	{Key: "iron_def", Label: "Iron deficiency"},
	{Key: "b12_def", Label: "Vitamin B12 deficiency"},
	{Key: "vitd_def", Label: "Vitamin D deficiency"},
	{Key: "calcium_def", Label: "Calcium deficiency"},
	{Key: "magnesium_def", Label: "Magnesium deficiency"},
	{Key: "potassium_def", Label: "Potassium deficiency"},
	{Key: "protein_def", Label: "Protein deficiency"},
	{Key: "zinc_def", Label: "Zinc deficiency"},
	{Key: "folate_def", Label: "Folate deficiency"},
	{Key: "omega3_def", Label: "Omega-3 deficiency"},
	{Key: "vitamin_b6_def", Label: "Vitamin B6 deficiency"},
	{Key: "vitamin_a_def", Label: "Vitamin A deficiency"},
	{Key: "copper_def", Label: "Copper deficiency"},
	{Key: "selenium_def", Label: "Selenium deficiency"},
	{Key: "iodine_def", Label: "Iodine deficiency"},
	{Key: "choline_def", Label: "Choline deficiency"},
	{Key: "electrolyte_imbalance", Label: "Electrolyte imbalance"},
	{Key: "general_malnutrition", Label: "General malnutrition"},
	{Key: "gut_malabsorption", Label: "Gut malabsorption"},
	{Key: "chronic_inflammation", Label: "Chronic inflammation"},
	{Key: "chronic_dehydration", Label: "Chronic dehydration"},
	{Key: "protein_quality_def", Label: "Protein quality deficiency"},
}

const severityKey = "severity"

// ModelOutputs maps a structured output key (see OutputFlags, plus "severity") to its raw value.
type ModelOutputs map[string]any

// AIAnalysis is the narrative analysis attached to an assessment.
type AIAnalysis struct {
	Insights        string       `json:"insights,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
	RiskFactors     []string     `json:"riskFactors,omitempty"`
	Confidence      *float64     `json:"confidence,omitempty"`
	ProcessedAt     *time.Time   `json:"processedAt,omitempty"`
	ModelVersion    string       `json:"modelVersion,omitempty"`
	ModelOutputs    ModelOutputs `json:"modelOutputs,omitempty"`
	Outputs         ModelOutputs `json:"outputs,omitempty"`
}

// ModelTextOutputs carries free-text guidance produced alongside the structured outputs.
type ModelTextOutputs struct {
	MedicationBrandNames  string `json:"medicationBrandNames,omitempty"`
	MedicationText        string `json:"medicationText,omitempty"`
	DietAdditions         string `json:"dietAdditions,omitempty"`
	NutrientRequirements  string `json:"nutrientRequirements,omitempty"`
	VegetarianFoodMapping string `json:"vegetarianFoodMapping,omitempty"`
	MandatoryDietChanges  string `json:"mandatoryDietChanges,omitempty"`
}

// Assessment is the record returned by the Assessment API. It is replaced wholesale by each
// response and never edited locally.
type Assessment struct {
	Draft

	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Status    Status    `json:"status"`

	AIAnalysis       *AIAnalysis       `json:"aiAnalysis,omitempty"`
	ModelOutputs     ModelOutputs      `json:"modelOutputs,omitempty"`
	AIOutputs        ModelOutputs      `json:"aiOutputs,omitempty"`
	ModelTextOutputs *ModelTextOutputs `json:"modelTextOutputs,omitempty"`

	// flat holds output flags the API reported at the top level of the record.
	flat ModelOutputs
}

type assessmentAlias Assessment

// UnmarshalJSON decodes the record and also picks up structured output flags that older API
// versions put directly on the record.
func (a *Assessment) UnmarshalJSON(data []byte) error {
	var alias assessmentAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Assessment(alias)
	a.flat = nil

	keys := make([]string, 0, len(OutputFlags)+1)
	for _, f := range OutputFlags {
		keys = append(keys, f.Key)
	}
	keys = append(keys, severityKey)
	for _, k := range keys {
		msg, ok := raw[k]
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(msg, &v); err != nil || isBlank(v) {
			continue
		}
		if a.flat == nil {
			a.flat = ModelOutputs{}
		}
		a.flat[k] = v
	}
	return nil
}

// MarshalJSON writes the record including any flat output flags it was decoded with.
func (a Assessment) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(assessmentAlias(a))
	if err != nil || len(a.flat) == 0 {
		return body, err
	}
	var merged map[string]any
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, err
	}
	for k, v := range a.flat {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// StructuredOutputs resolves the structured model outputs wherever the API placed them.
// It returns nil when there are none.
func (a *Assessment) StructuredOutputs() ModelOutputs {
	if a == nil {
		return nil
	}
	candidates := []ModelOutputs{a.ModelOutputs, a.AIOutputs}
	if a.AIAnalysis != nil {
		candidates = append(candidates, a.AIAnalysis.ModelOutputs, a.AIAnalysis.Outputs)
	}
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	if len(a.flat) > 0 {
		return a.flat
	}
	return nil
}

// Severity returns the structured severity output, if any.
func (o ModelOutputs) Severity() (any, bool) {
	v, ok := o[severityKey]
	if !ok || isBlank(v) {
		return nil, false
	}
	return v, true
}

// HasAnalysis reports whether narrative or structured analysis is attached.
func (a *Assessment) HasAnalysis() bool {
	if a == nil {
		return false
	}
	return a.AIAnalysis != nil || a.StructuredOutputs() != nil
}

// HasAnyResults also counts free-text model guidance.
func (a *Assessment) HasAnyResults() bool {
	return a.HasAnalysis() || (a != nil && a.ModelTextOutputs != nil)
}

// NeedsPolling reports whether the server accepted the assessment but analysis has not arrived.
func (a *Assessment) NeedsPolling() bool {
	return a != nil && a.Status == StatusCompleted && !a.HasAnalysis()
}

// AnalysisSettled reports whether polling can stop because analysis is available.
func (a *Assessment) AnalysisSettled() bool {
	return a != nil && (a.HasAnalysis() || a.Status == StatusAnalyzed)
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

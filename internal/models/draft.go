package models

import (
	"errors"
	"fmt"
)

// Field is the wire name of one assessment input.
type Field string

const (
	FieldFatigue    Field = "fatigue"
	FieldHairLoss   Field = "hair_loss"
	FieldAcidity    Field = "acidity"
	FieldDizziness  Field = "dizziness"
	FieldMusclePain Field = "muscle_pain"
	FieldNumbness   Field = "numbness"

	FieldVegetarian   Field = "vegetarian"
	FieldIronFoodFreq Field = "iron_food_freq"
	FieldDairyFreq    Field = "dairy_freq"
	FieldSunlightMin  Field = "sunlight_min"
	FieldJunkFoodFreq Field = "junk_food_freq"
	FieldSmoking      Field = "smoking"
	FieldAlcohol      Field = "alcohol"

	FieldHemoglobin Field = "hemoglobin"
	FieldFerritin   Field = "ferritin"
	FieldVitaminB12 Field = "vitamin_b12"
	FieldVitaminD   Field = "vitamin_d"
	FieldCalcium    Field = "calcium"
)

var (
	SymptomFields   = []Field{FieldFatigue, FieldHairLoss, FieldAcidity, FieldDizziness, FieldMusclePain, FieldNumbness}
	LifestyleFields = []Field{FieldVegetarian, FieldIronFoodFreq, FieldDairyFreq, FieldSunlightMin, FieldJunkFoodFreq, FieldSmoking, FieldAlcohol}
	LabFields       = []Field{FieldHemoglobin, FieldFerritin, FieldVitaminB12, FieldVitaminD, FieldCalcium}
)

// ErrUnknownField is returned when a caller names a field the assessment does not have.
var ErrUnknownField = errors.New("unknown assessment field")

// AllFields returns every submittable field in wizard order.
func AllFields() []Field {
	all := make([]Field, 0, len(SymptomFields)+len(LifestyleFields)+len(LabFields))
	all = append(all, SymptomFields...)
	all = append(all, LifestyleFields...)
	all = append(all, LabFields...)
	return all
}

// IsField reports whether name is one of the assessment fields.
func IsField(name string) bool {
	var d Draft
	return d.slot(Field(name)) != nil
}

// Draft is the in-progress assessment record. A nil pointer means the field is unset.
// Integer fields are carried as float64 so that non-integer input can be held and
// reported instead of being truncated.
type Draft struct {
	Fatigue    *float64 `json:"fatigue,omitempty"`
	HairLoss   *float64 `json:"hair_loss,omitempty"`
	Acidity    *float64 `json:"acidity,omitempty"`
	Dizziness  *float64 `json:"dizziness,omitempty"`
	MusclePain *float64 `json:"muscle_pain,omitempty"`
	Numbness   *float64 `json:"numbness,omitempty"`

	Vegetarian   *float64 `json:"vegetarian,omitempty"`
	IronFoodFreq *float64 `json:"iron_food_freq,omitempty"`
	DairyFreq    *float64 `json:"dairy_freq,omitempty"`
	SunlightMin  *float64 `json:"sunlight_min,omitempty"`
	JunkFoodFreq *float64 `json:"junk_food_freq,omitempty"`
	Smoking      *float64 `json:"smoking,omitempty"`
	Alcohol      *float64 `json:"alcohol,omitempty"`

	Hemoglobin *float64 `json:"hemoglobin,omitempty"`
	Ferritin   *float64 `json:"ferritin,omitempty"`
	VitaminB12 *float64 `json:"vitamin_b12,omitempty"`
	VitaminD   *float64 `json:"vitamin_d,omitempty"`
	Calcium    *float64 `json:"calcium,omitempty"`
}

func (d *Draft) slot(f Field) **float64 {
	switch f {
	case FieldFatigue:
		return &d.Fatigue
	case FieldHairLoss:
		return &d.HairLoss
	case FieldAcidity:
		return &d.Acidity
	case FieldDizziness:
		return &d.Dizziness
	case FieldMusclePain:
		return &d.MusclePain
	case FieldNumbness:
		return &d.Numbness
	case FieldVegetarian:
		return &d.Vegetarian
	case FieldIronFoodFreq:
		return &d.IronFoodFreq
	case FieldDairyFreq:
		return &d.DairyFreq
	case FieldSunlightMin:
		return &d.SunlightMin
	case FieldJunkFoodFreq:
		return &d.JunkFoodFreq
	case FieldSmoking:
		return &d.Smoking
	case FieldAlcohol:
		return &d.Alcohol
	case FieldHemoglobin:
		return &d.Hemoglobin
	case FieldFerritin:
		return &d.Ferritin
	case FieldVitaminB12:
		return &d.VitaminB12
	case FieldVitaminD:
		return &d.VitaminD
	case FieldCalcium:
		return &d.Calcium
	}
	return nil
}

// Get returns the value of f and whether it is set.
func (d Draft) Get(f Field) (float64, bool) {
	p := d.slot(f)
	if p == nil || *p == nil {
		return 0, false
	}
	return **p, true
}

// Set stores v for f.
func (d *Draft) Set(f Field, v float64) error {
	p := d.slot(f)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	*p = &v
	return nil
}

// Clear unsets f.
func (d *Draft) Clear(f Field) error {
	p := d.slot(f)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	*p = nil
	return nil
}

// Clone returns a deep copy; the copy shares no pointers with d.
func (d Draft) Clone() Draft {
	var out Draft
	for _, f := range AllFields() {
		if v, ok := d.Get(f); ok {
			_ = out.Set(f, v)
		}
	}
	return out
}

// Only returns a copy holding just the listed fields.
func (d Draft) Only(fields []Field) Draft {
	var out Draft
	for _, f := range fields {
		if v, ok := d.Get(f); ok {
			_ = out.Set(f, v)
		}
	}
	return out
}

// Values returns the set fields as a map, keyed by wire name.
func (d Draft) Values() map[Field]float64 {
	out := make(map[Field]float64)
	for _, f := range AllFields() {
		if v, ok := d.Get(f); ok {
			out[f] = v
		}
	}
	return out
}

// IsEmpty reports whether no field is set.
func (d Draft) IsEmpty() bool {
	for _, f := range AllFields() {
		if _, ok := d.Get(f); ok {
			return false
		}
	}
	return true
}

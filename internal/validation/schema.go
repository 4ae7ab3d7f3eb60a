// Package validation holds the field constraints for assessment drafts.
package validation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"sympto/internal/models"
)

// Rule declares the constraint on one field.
type Rule struct {
	Field   models.Field
	Integer bool
	Min     float64
	Max     float64
}

func (r Rule) tag() string {
	tags := []string{"finite"}
	if r.Integer {
		tags = append(tags, "integer")
	}
	tags = append(tags, fmt.Sprintf("min=%g", r.Min), fmt.Sprintf("max=%g", r.Max))
	return strings.Join(tags, ",")
}

func ordinal(f models.Field) Rule { return Rule{Field: f, Integer: true, Min: 0, Max: 3} }
func binary(f models.Field) Rule  { return Rule{Field: f, Integer: true, Min: 0, Max: 1} }
func lab(f models.Field, min, max float64) Rule {
	return Rule{Field: f, Min: min, Max: max}
}

var rules = []Rule{
	ordinal(models.FieldFatigue),
	ordinal(models.FieldHairLoss),
	ordinal(models.FieldAcidity),
	ordinal(models.FieldDizziness),
	ordinal(models.FieldMusclePain),
	ordinal(models.FieldNumbness),

	binary(models.FieldVegetarian),
	ordinal(models.FieldIronFoodFreq),
	ordinal(models.FieldDairyFreq),
	{Field: models.FieldSunlightMin, Integer: true, Min: 0, Max: 65},
	ordinal(models.FieldJunkFoodFreq),
	binary(models.FieldSmoking),
	binary(models.FieldAlcohol),

	lab(models.FieldHemoglobin, 7.2, 16.5),
	lab(models.FieldFerritin, 4.5, 165),
	lab(models.FieldVitaminB12, 108, 550),
	lab(models.FieldVitaminD, 4.5, 49.5),
	lab(models.FieldCalcium, 6.75, 11.22),
}

var byField = func() map[models.Field]Rule {
	m := make(map[models.Field]Rule, len(rules))
	for _, r := range rules {
		m[r.Field] = r
	}
	return m
}()

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("integer", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return f == math.Trunc(f)
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// RuleFor returns the declared rule for f.
func RuleFor(f models.Field) (Rule, bool) {
	r, ok := byField[f]
	return r, ok
}

// Rules returns every rule in field order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// FieldError explains why one field is invalid.
type FieldError struct {
	Field  models.Field
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ValidateField checks a single candidate value. It returns nil when the value is valid.
func ValidateField(f models.Field, value float64) *FieldError {
	rule, ok := byField[f]
	if !ok {
		return &FieldError{Field: f, Reason: "is not an assessment field"}
	}
	err := validate.Var(value, rule.tag())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &FieldError{Field: f, Reason: "is invalid"}
	}
	return &FieldError{Field: f, Reason: reason(rule, verrs[0].Tag())}
}

func reason(rule Rule, tag string) string {
	switch tag {
	case "finite":
		return "must be a number"
	case "integer":
		return "must be a whole number"
	case "min":
		return fmt.Sprintf("must be at least %g", rule.Min)
	case "max":
		return fmt.Sprintf("must be at most %g", rule.Max)
	}
	return "is invalid"
}

const reasonRequired = "is required"

// Errors maps each invalid field to its reason.
type Errors map[models.Field]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+" "+e[models.Field(f)])
	}
	return "invalid assessment: " + strings.Join(parts, "; ")
}

// Err returns e as an error, or nil when there are no field errors.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// ValidateFields checks the listed fields of d. Each listed field must be present and valid;
// fields not listed are ignored, so a partial draft can pass for one step.
func ValidateFields(d models.Draft, fields []models.Field) Errors {
	errs := Errors{}
	for _, f := range fields {
		v, ok := d.Get(f)
		if !ok {
			errs[f] = reasonRequired
			continue
		}
		if fe := ValidateField(f, v); fe != nil {
			errs[f] = fe.Reason
		}
	}
	return errs
}

// ValidateRecord checks the whole draft before submission.
func ValidateRecord(d models.Draft) Errors {
	return ValidateFields(d, models.AllFields())
}

// Valid returns the subset of d whose values pass their rules.
func Valid(d models.Draft) models.Draft {
	var out models.Draft
	for _, f := range models.AllFields() {
		v, ok := d.Get(f)
		if !ok || ValidateField(f, v) != nil {
			continue
		}
		_ = out.Set(f, v)
	}
	return out
}

package history

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sympto/internal/apiclient"
	"sympto/internal/models"
)

func ptr(v float64) *float64 { return &v }

func catalog(t *testing.T) *models.Catalog {
	t.Helper()
	c, err := models.DefaultCatalog()
	require.NoError(t, err)
	return c
}

func assessment(t *testing.T, id string, at time.Time, values map[models.Field]float64) models.Assessment {
	t.Helper()
	a := models.Assessment{ID: id, CreatedAt: at, Status: models.StatusAnalyzed}
	for f, v := range values {
		require.NoError(t, a.Set(f, v))
	}
	return a
}

func TestChangeIndicator(t *testing.T) {
	tests := []struct {
		name          string
		before, after *float64
		higherBetter  bool
		wantChange    Change
		wantDir       Direction
	}{
		{"equal", ptr(2), ptr(2), false, NoChange, Flat},
		{"missing before", nil, ptr(2), true, NoChange, Flat},
		{"missing after", ptr(2), nil, true, NoChange, Flat},
		{"symptom dropped", ptr(3), ptr(1), false, Improved, Down},
		{"symptom rose", ptr(1), ptr(3), false, Worsened, Up},
		{"lab rose", ptr(10.2), ptr(13.1), true, Improved, Up},
		{"lab dropped", ptr(40), ptr(12), true, Worsened, Down},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, dir := ChangeIndicator(tt.before, tt.after, tt.higherBetter)
			assert.Equal(t, tt.wantChange, change)
			assert.Equal(t, tt.wantDir, dir)
		})
	}
}

func TestCompareOrdersByCreatedAt(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	older := assessment(t, "a-1", t0, map[models.Field]float64{models.FieldFatigue: 3, models.FieldHemoglobin: 10.5})
	newer := assessment(t, "a-2", t0.Add(30*24*time.Hour), map[models.Field]float64{models.FieldFatigue: 1, models.FieldHemoglobin: 12})

	cmp := Compare(&newer, &older, catalog(t))

	assert.Equal(t, "a-1", cmp.Earlier.ID)
	assert.Equal(t, "a-2", cmp.Later.ID)
	require.Len(t, cmp.Sections, 3)
	assert.Equal(t, []string{"symptoms", "lifestyle", "labs"}, []string{cmp.Sections[0].ID, cmp.Sections[1].ID, cmp.Sections[2].ID})

	fatigue := cmp.Sections[0].Rows[0]
	assert.Equal(t, models.FieldFatigue, fatigue.Field)
	assert.Equal(t, "Fatigue Level", fatigue.Label)
	assert.Equal(t, Improved, fatigue.Change)
	assert.Equal(t, Down, fatigue.Direction)

	hemoglobin := cmp.Sections[2].Rows[0]
	assert.Equal(t, "g/dL", hemoglobin.Unit)
	assert.Equal(t, Improved, hemoglobin.Change)
	assert.Equal(t, Up, hemoglobin.Direction)

	vegetarian := cmp.Sections[1].Rows[0]
	assert.Nil(t, vegetarian.Before)
	assert.Equal(t, NoChange, vegetarian.Change)
}

func TestCompareAnalysis(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := assessment(t, "a-1", t0, nil)
	b := assessment(t, "a-2", t0.Add(time.Hour), nil)
	a.AIAnalysis = &models.AIAnalysis{Confidence: ptr(0.624), RiskFactors: []string{"diet"}}
	b.AIAnalysis = &models.AIAnalysis{Confidence: ptr(0.81), Recommendations: []string{"more iron"}}

	cmp := Compare(&a, &b, catalog(t))

	require.NotNil(t, cmp.Analysis.Earlier.ConfidencePct)
	assert.Equal(t, 62, *cmp.Analysis.Earlier.ConfidencePct)
	assert.Equal(t, 81, *cmp.Analysis.Later.ConfidencePct)
	require.NotNil(t, cmp.Analysis.ConfidenceDelta)
	assert.Equal(t, 19, *cmp.Analysis.ConfidenceDelta)
	assert.Equal(t, 1, cmp.Analysis.Earlier.RiskFactorCount)

	b.AIAnalysis = nil
	cmp = Compare(&a, &b, catalog(t))
	assert.False(t, cmp.Analysis.Later.Available)
	assert.Nil(t, cmp.Analysis.ConfidenceDelta)
}

type fakeAPI struct {
	byID    map[string]models.Assessment
	page    apiclient.Page
	listErr error
	deleted []string
}

func (f *fakeAPI) ListAssessments(context.Context, apiclient.ListOptions) (*apiclient.Page, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &f.page, nil
}

func (f *fakeAPI) GetAssessment(_ context.Context, id string) (*models.Assessment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, &apiclient.APIError{Status: 404, Message: "Assessment not found"}
	}
	return &a, nil
}

func (f *fakeAPI) DeleteAssessment(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) DeleteAllAssessments(context.Context) error {
	f.deleted = append(f.deleted, "*")
	return nil
}

func TestCompareByID(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	api := &fakeAPI{byID: map[string]models.Assessment{
		"a-1": assessment(t, "a-1", t0, map[models.Field]float64{models.FieldFerritin: 20}),
		"a-2": assessment(t, "a-2", t0.Add(time.Hour), map[models.Field]float64{models.FieldFerritin: 35}),
	}}
	svc := NewService(api, catalog(t), nil)

	cmp, err := svc.CompareByID(context.Background(), "a-2", "a-1")
	require.NoError(t, err)
	assert.Equal(t, "a-1", cmp.Earlier.ID)

	_, err = svc.CompareByID(context.Background(), "a-1", "missing")
	var apiErr *apiclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Status)

	_, err = svc.CompareByID(context.Background(), "a-1", "a-1")
	assert.ErrorIs(t, err, ErrSameAssessment)
}

func TestLatest(t *testing.T) {
	api := &fakeAPI{}
	svc := NewService(api, catalog(t), nil)

	a, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, a)

	api.page.Assessments = []models.Assessment{{ID: "a-9"}}
	a, err = svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a-9", a.ID)

	api.listErr = errors.New("boom")
	_, err = svc.Latest(context.Background())
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	api := &fakeAPI{}
	svc := NewService(api, catalog(t), nil)

	require.NoError(t, svc.Delete(context.Background(), "a-1"))
	require.NoError(t, svc.DeleteAll(context.Background()))
	assert.Equal(t, []string{"a-1", "*"}, api.deleted)
}

func TestTrendChart(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	list := []models.Assessment{
		assessment(t, "a-3", t0.Add(48*time.Hour), map[models.Field]float64{models.FieldHemoglobin: 13}),
		assessment(t, "a-1", t0, map[models.Field]float64{models.FieldHemoglobin: 11, models.FieldCalcium: 9}),
		assessment(t, "a-2", t0.Add(24*time.Hour), map[models.Field]float64{models.FieldHemoglobin: 12}),
	}

	line := TrendChart(list, []models.Field{models.FieldHemoglobin, models.FieldCalcium}, catalog(t))

	raw, err := json.Marshal(line.JSON())
	require.NoError(t, err)
	var decoded struct {
		Series []struct {
			Name string `json:"name"`
			Data []struct {
				Value []any `json:"value"`
			} `json:"data"`
		} `json:"series"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	require.Len(t, decoded.Series, 2)
	assert.Equal(t, "Hemoglobin (g/dL)", decoded.Series[0].Name)
	require.Len(t, decoded.Series[0].Data, 3)
	assert.Equal(t, []any{11.0, 12.0, 13.0}, []any{
		decoded.Series[0].Data[0].Value[1],
		decoded.Series[0].Data[1].Value[1],
		decoded.Series[0].Data[2].Value[1],
	})
	assert.Len(t, decoded.Series[1].Data, 1)
}

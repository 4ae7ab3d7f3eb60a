package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sympto/internal/announce"
	"sympto/internal/drafts"
	"sympto/internal/models"
	"sympto/internal/validation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var validValues = map[models.Field]float64{
	models.FieldFatigue:      1,
	models.FieldHairLoss:     0,
	models.FieldAcidity:      2,
	models.FieldDizziness:    1,
	models.FieldMusclePain:   3,
	models.FieldNumbness:     0,
	models.FieldVegetarian:   1,
	models.FieldIronFoodFreq: 2,
	models.FieldDairyFreq:    3,
	models.FieldSunlightMin:  30,
	models.FieldJunkFoodFreq: 1,
	models.FieldSmoking:      0,
	models.FieldAlcohol:      0,
	models.FieldHemoglobin:   13.5,
	models.FieldFerritin:     50,
	models.FieldVitaminB12:   300,
	models.FieldVitaminD:     30,
	models.FieldCalcium:      9.5,
}

type recordingStore struct {
	mu     sync.Mutex
	saved  []models.Draft
	stored *models.Draft
	loads  int
	clears int
}

func (s *recordingStore) Save(_ context.Context, d models.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := d.Clone()
	s.saved = append(s.saved, cp)
	s.stored = &cp
}

func (s *recordingStore) Load(context.Context) (models.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.stored == nil {
		return models.Draft{}, false
	}
	return s.stored.Clone(), true
}

func (s *recordingStore) Clear(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.stored = nil
}

func (s *recordingStore) saves() []models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Draft(nil), s.saved...)
}

func (s *recordingStore) clearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

type recordingSink struct {
	mu      sync.Mutex
	records []announce.Announcement
	focused []string
}

func (s *recordingSink) Announce(a announce.Announcement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, a)
}

func (s *recordingSink) Focus(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focused = append(s.focused, target)
}

func (s *recordingSink) last() announce.Announcement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return announce.Announcement{}
	}
	return s.records[len(s.records)-1]
}

func (s *recordingSink) focusTargets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.focused...)
}

type countingSubmitter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingSubmitter) Submit(_ context.Context, d models.Draft) (*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.Assessment{Draft: d, ID: "a-1", Status: models.StatusCompleted}, nil
}

func (s *countingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// contextKV honours cancellation the way a network-backed store does. With hold set, Set blocks
// until its context ends.
type contextKV struct {
	*drafts.MemoryKV
	hold bool

	mu      sync.Mutex
	setErrs []error
}

func (k *contextKV) Set(ctx context.Context, key, value string) error {
	if k.hold {
		<-ctx.Done()
	}
	err := ctx.Err()
	if err == nil {
		err = k.MemoryKV.Set(ctx, key, value)
	}
	k.mu.Lock()
	k.setErrs = append(k.setErrs, err)
	k.mu.Unlock()
	return err
}

func (k *contextKV) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.MemoryKV.Remove(ctx, key)
}

func (k *contextKV) setResults() []error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]error(nil), k.setErrs...)
}

func fill(t *testing.T, c *Controller, fields []models.Field) {
	t.Helper()
	for _, f := range fields {
		require.NoError(t, c.SetField(f, validValues[f]))
	}
}

// toReview fills every field and walks forward to the review step.
func toReview(t *testing.T, c *Controller) {
	t.Helper()
	fill(t, c, models.AllFields())
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Next())
	}
	require.Equal(t, 3, c.State().StepIndex)
}

func newController(t *testing.T, opts Options) *Controller {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = clockwork.NewFakeClock()
	}
	c := New(opts)
	t.Cleanup(c.Close)
	c.Init(context.Background())
	return c
}

func TestAutosaveDebounceWritesOnlyTheLastChange(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &recordingStore{}
	c := newController(t, Options{Drafts: store, Clock: clock})

	require.NoError(t, c.SetField(models.FieldFatigue, 1))
	clock.Advance(300 * time.Millisecond)
	require.NoError(t, c.SetField(models.FieldFatigue, 2))
	clock.Advance(300 * time.Millisecond)
	require.NoError(t, c.SetField(models.FieldFatigue, 3))

	// t=1599ms: the window restarted at 600ms and has not elapsed.
	clock.Advance(999 * time.Millisecond)
	assert.Empty(t, store.saves())

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(store.saves()) == 1 }, time.Second, 5*time.Millisecond)

	v, ok := store.saves()[0].Get(models.FieldFatigue)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)

	clock.Advance(5 * time.Second)
	assert.Len(t, store.saves(), 1)
}

func TestAutosaveAnnouncesPolitely(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &recordingSink{}
	c := newController(t, Options{Drafts: &recordingStore{}, Sink: sink, Clock: clock})

	require.NoError(t, c.SetField(models.FieldNumbness, 2))
	clock.Advance(DefaultAutosaveDelay)

	require.Eventually(t, func() bool {
		return sink.last() == announce.For(announce.DraftSaving, "")
	}, time.Second, 5*time.Millisecond)
}

func TestSetFieldRejectsUnknownField(t *testing.T) {
	c := newController(t, Options{})

	err := c.SetField(models.Field("blood_type"), 1)
	assert.ErrorIs(t, err, models.ErrUnknownField)
	assert.ErrorIs(t, c.ClearField(models.Field("blood_type")), models.ErrUnknownField)
}

func TestSetFieldKeepsInvalidValueAndReportsIt(t *testing.T) {
	c := newController(t, Options{})

	require.NoError(t, c.SetField(models.FieldFatigue, 7))

	v, ok := c.Draft().Get(models.FieldFatigue)
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
	assert.Equal(t, "must be at most 3", c.State().Errors[models.FieldFatigue])
}

func TestNextIsGatedOnCurrentStep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &recordingSink{}
	c := newController(t, Options{Sink: sink, Clock: clock})

	fill(t, c, models.SymptomFields[:5])
	err := c.Next()
	require.Error(t, err)

	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, validation.Errors{models.FieldNumbness: "is required"}, verrs)
	assert.Equal(t, 0, c.State().StepIndex)
	assert.Equal(t, announce.For(announce.ValidationFailed, ""), sink.last())

	fill(t, c, models.SymptomFields[5:])
	require.NoError(t, c.Next())

	state := c.State()
	assert.Equal(t, 1, state.StepIndex)
	assert.Equal(t, "lifestyle", state.Step.ID)
	assert.Equal(t, "Moved to Lifestyle step", sink.last().Message)

	// The new step is validated on entry.
	assert.Len(t, state.Errors, len(models.LifestyleFields))
	assert.False(t, state.CanGoNext)
	assert.True(t, state.CanGoBack)

	assert.Empty(t, sink.focusTargets())
	clock.Advance(DefaultFocusDelay)
	require.Eventually(t, func() bool { return len(sink.focusTargets()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{announce.StepContentTarget}, sink.focusTargets())
}

func TestPrevIsNeverGated(t *testing.T) {
	sink := &recordingSink{}
	c := newController(t, Options{Sink: sink})

	fill(t, c, models.SymptomFields)
	require.NoError(t, c.Next())
	require.NoError(t, c.SetField(models.FieldSunlightMin, 500))

	require.NoError(t, c.Prev())
	assert.Equal(t, 0, c.State().StepIndex)
	assert.Equal(t, "Moved back to Symptoms step", sink.last().Message)

	require.NoError(t, c.Prev())
	assert.Equal(t, 0, c.State().StepIndex)
}

func TestSubmitIsGated(t *testing.T) {
	sub := &countingSubmitter{}
	c := newController(t, Options{Submitter: sub})

	fill(t, c, models.AllFields())
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotReviewStep)

	toReview(t, c)
	require.NoError(t, c.SetField(models.FieldHemoglobin, 99))
	assert.False(t, c.State().CanSubmit)

	_, err = c.Submit(context.Background())
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, models.FieldHemoglobin)

	assert.Zero(t, sub.count())
}

func TestSubmitSuccessClearsDraftAndCancelsPendingSave(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &recordingStore{}
	sub := &countingSubmitter{}
	c := newController(t, Options{Drafts: store, Submitter: sub, Clock: clock})

	toReview(t, c)
	assert.True(t, c.State().CanSubmit)

	a, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a-1", a.ID)
	assert.Equal(t, 1, sub.count())
	assert.Equal(t, 1, store.clearCount())

	state := c.State()
	assert.False(t, state.Submitting)
	assert.Zero(t, state.StepIndex)
	assert.Empty(t, state.Values)
	assert.False(t, state.CanSubmit)
	assert.False(t, state.DraftHydrated)

	clock.Advance(2 * DefaultAutosaveDelay)
	assert.Empty(t, store.saves())

	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotReviewStep)
	assert.Equal(t, 1, sub.count())
}

func TestSubmitClearsStoredDraftAfterCallerCancels(t *testing.T) {
	clock := clockwork.NewFakeClock()
	kv := &contextKV{MemoryKV: drafts.NewMemoryKV()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := SubmitterFunc(func(_ context.Context, d models.Draft) (*models.Assessment, error) {
		cancel()
		return &models.Assessment{Draft: d, ID: "a-3"}, nil
	})
	c := newController(t, Options{Drafts: drafts.NewStore(kv, nil), Submitter: sub, Clock: clock})

	toReview(t, c)
	clock.Advance(DefaultAutosaveDelay)
	require.Eventually(t, func() bool { return kv.Len() == 1 }, time.Second, 5*time.Millisecond)

	a, err := c.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a-3", a.ID)
	assert.Zero(t, kv.Len())
}

func TestAutosaveGivesUpOnSlowStorage(t *testing.T) {
	clock := clockwork.NewFakeClock()
	kv := &contextKV{MemoryKV: drafts.NewMemoryKV(), hold: true}
	c := newController(t, Options{
		Drafts:       drafts.NewStore(kv, nil),
		Clock:        clock,
		StoreTimeout: 20 * time.Millisecond,
	})

	require.NoError(t, c.SetField(models.FieldFatigue, 1))
	clock.Advance(DefaultAutosaveDelay)
	require.Eventually(t, func() bool { return len(kv.setResults()) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, kv.setResults()[0], context.DeadlineExceeded)

	require.NoError(t, c.SetField(models.FieldFatigue, 2))
	assert.Equal(t, map[models.Field]float64{models.FieldFatigue: 2}, c.State().Values)
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	store := &recordingStore{}
	sub := &countingSubmitter{err: errors.New("HTTP 503: Service Unavailable")}
	c := newController(t, Options{Drafts: store, Submitter: sub})

	toReview(t, c)
	_, err := c.Submit(context.Background())
	require.EqualError(t, err, "HTTP 503: Service Unavailable")

	assert.Zero(t, store.clearCount())
	assert.False(t, c.State().Submitting)
	assert.Equal(t, validValues, c.Draft().Values())

	_, err = c.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, sub.count())
}

func TestSubmitRejectsConcurrentSubmission(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	sub := SubmitterFunc(func(_ context.Context, d models.Draft) (*models.Assessment, error) {
		close(entered)
		<-release
		return &models.Assessment{Draft: d, ID: "a-2"}, nil
	})
	c := newController(t, Options{Submitter: sub})
	toReview(t, c)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()

	<-entered
	assert.True(t, c.State().Submitting)
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitting)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.State().Submitting)
}

func TestInitHydratesFromStorageOnce(t *testing.T) {
	kv := drafts.NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, drafts.StorageKey, `{"fatigue":2,"hemoglobin":0}`))

	c := New(Options{Drafts: drafts.NewStore(kv, nil), Clock: clockwork.NewFakeClock()})
	t.Cleanup(c.Close)
	c.Init(ctx)

	state := c.State()
	assert.True(t, state.DraftHydrated)
	assert.Equal(t, map[models.Field]float64{models.FieldFatigue: 2}, state.Values)

	require.NoError(t, kv.Set(ctx, drafts.StorageKey, `{"fatigue":3}`))
	c.Init(ctx)
	assert.Equal(t, map[models.Field]float64{models.FieldFatigue: 2}, c.State().Values)
}

func TestInitialRecordWinsOverStoredDraft(t *testing.T) {
	store := &recordingStore{}
	stored := models.Draft{}
	require.NoError(t, stored.Set(models.FieldFatigue, 2))
	store.stored = &stored

	initial := &models.Assessment{ID: "a-9"}
	require.NoError(t, initial.Set(models.FieldFatigue, 1))

	c := newController(t, Options{Drafts: store, Initial: initial})

	state := c.State()
	assert.False(t, state.DraftHydrated)
	assert.Equal(t, map[models.Field]float64{models.FieldFatigue: 1}, state.Values)
	assert.Zero(t, store.loads)
}

func TestCloseCancelsPendingWork(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &recordingStore{}
	sink := &recordingSink{}
	c := New(Options{Drafts: store, Sink: sink, Clock: clock})
	c.Init(context.Background())

	fill(t, c, models.SymptomFields)
	require.NoError(t, c.Next())
	c.Close()

	clock.Advance(10 * time.Second)
	assert.Empty(t, store.saves())
	assert.Empty(t, sink.focusTargets())

	assert.ErrorIs(t, c.SetField(models.FieldFatigue, 1), ErrClosed)
	assert.ErrorIs(t, c.Next(), ErrClosed)
	c.Close()
}

func TestResetStartsOver(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &recordingStore{}
	sink := &recordingSink{}
	c := newController(t, Options{Drafts: store, Sink: sink, Clock: clock})

	fill(t, c, models.SymptomFields)
	require.NoError(t, c.Next())
	require.NoError(t, c.Reset(context.Background()))

	state := c.State()
	assert.Equal(t, 0, state.StepIndex)
	assert.Empty(t, state.Values)
	assert.Equal(t, 1, store.clearCount())
	assert.Equal(t, "Starting new health assessment...", sink.last().Message)

	clock.Advance(2 * DefaultAutosaveDelay)
	assert.Empty(t, store.saves())
}

func TestStateProgress(t *testing.T) {
	c := newController(t, Options{})

	state := c.State()
	assert.Equal(t, 4, state.TotalSteps)
	assert.InDelta(t, 25.0, state.Progress, 1e-9)
	assert.Equal(t, []StepSummary{
		{ID: "symptoms", Title: "Symptoms", Status: StepCurrent},
		{ID: "lifestyle", Title: "Lifestyle", Status: StepUpcoming},
		{ID: "lab-results", Title: "Lab Results", Status: StepUpcoming},
		{ID: "review", Title: "Review", Status: StepUpcoming},
	}, state.Steps)

	toReview(t, c)
	state = c.State()
	assert.InDelta(t, 100.0, state.Progress, 1e-9)
	assert.Equal(t, StepCompleted, state.Steps[0].Status)
	assert.False(t, state.CanGoNext)
}

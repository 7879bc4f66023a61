package exchangerate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
	"storefront/internal/store"
)

type fakeStore struct {
	mu         sync.Mutex
	cfg        *models.ExchangeRateConfig
	loadErr    error
	saveErr    error
	savedRates []float64
	manualSets int
}

func (f *fakeStore) LoadRateConfig(context.Context) (models.ExchangeRateConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return models.ExchangeRateConfig{}, f.loadErr
	}
	if f.cfg == nil {
		return models.ExchangeRateConfig{}, store.ErrNotFound
	}
	return *f.cfg, nil
}

func (f *fakeStore) SaveQuotedRate(_ context.Context, rate float64, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedRates = append(f.savedRates, rate)
	return nil
}

func (f *fakeStore) SaveManualRate(context.Context, *float64, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manualSets++
	return f.saveErr
}

type fakeSource struct {
	name  string
	rate  float64
	err   error
	calls atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(context.Context) (float64, error) {
	f.calls.Add(1)
	return f.rate, f.err
}

func ptr(v float64) *float64 { return &v }

func newTestService(st ConfigStore, sources ...QuoteSource) *Service {
	return New(st, sources, Options{Staleness: 6 * time.Hour, RefreshEvery: time.Hour, Floor: 10, DefaultRate: 50})
}

func TestLoad_ManualRateWinsWithoutFetching(t *testing.T) {
	updated := time.Now().Add(-48 * time.Hour)
	st := &fakeStore{cfg: &models.ExchangeRateConfig{
		ID:             models.ExchangeRateConfigID,
		LastQuotedRate: ptr(40),
		ManualRate:     ptr(36.5),
		UseManualRate:  true,
		LastUpdated:    &updated,
	}}
	src := &fakeSource{name: "primary", rate: 99}
	svc := newTestService(st, src)

	require.NoError(t, svc.Load(context.Background()))
	svc.Wait()

	assert.Equal(t, 36.5, svc.EffectiveRate())
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestLoad_FreshRateServedWithoutFetching(t *testing.T) {
	updated := time.Now().Add(-time.Hour)
	st := &fakeStore{cfg: &models.ExchangeRateConfig{LastQuotedRate: ptr(41.2), LastUpdated: &updated}}
	src := &fakeSource{name: "primary", rate: 99}
	svc := newTestService(st, src)

	require.NoError(t, svc.Load(context.Background()))
	svc.Wait()

	assert.Equal(t, 41.2, svc.EffectiveRate())
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestLoad_StaleRateRefreshesInBackground(t *testing.T) {
	updated := time.Now().Add(-7 * time.Hour)
	st := &fakeStore{cfg: &models.ExchangeRateConfig{LastQuotedRate: ptr(41.2), LastUpdated: &updated}}
	src := &fakeSource{name: "primary", rate: 44.7}
	svc := newTestService(st, src)

	require.NoError(t, svc.Load(context.Background()))
	svc.Wait()

	assert.Equal(t, 44.7, svc.EffectiveRate())
	assert.Equal(t, []float64{44.7}, st.savedRates)
	assert.Equal(t, "primary", svc.Current().LastSource)
}

func TestLoad_SkipLoadRefreshFetchesOnlyOnExplicitRefresh(t *testing.T) {
	updated := time.Now().Add(-7 * time.Hour)
	st := &fakeStore{cfg: &models.ExchangeRateConfig{LastQuotedRate: ptr(41.2), LastUpdated: &updated}}
	src := &fakeSource{name: "primary", rate: 44.7}
	svc := New(st, []QuoteSource{src}, Options{Staleness: 6 * time.Hour, Floor: 10, SkipLoadRefresh: true})

	require.NoError(t, svc.Load(context.Background()))
	svc.Wait()
	assert.Equal(t, int32(0), src.calls.Load())
	assert.Equal(t, 41.2, svc.EffectiveRate())

	outcome := svc.Refresh(context.Background())
	assert.Equal(t, 44.7, outcome.Rate)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, []float64{44.7}, st.savedRates)
}

func TestLoad_NoRowUsesDefaultAndRefreshes(t *testing.T) {
	st := &fakeStore{}
	src := &fakeSource{name: "primary", err: errors.New("timeout")}
	svc := newTestService(st, src)

	require.NoError(t, svc.Load(context.Background()))
	assert.Equal(t, 50.0, svc.EffectiveRate())
	svc.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 50.0, svc.EffectiveRate())
}

func TestLoad_StoreErrorKeepsDefault(t *testing.T) {
	st := &fakeStore{loadErr: errors.New("db down")}
	svc := newTestService(st)

	require.Error(t, svc.Load(context.Background()))
	assert.Equal(t, 50.0, svc.EffectiveRate())
}

func TestRefresh_AllSourcesDownKeepsCachedRateWithWarning(t *testing.T) {
	updated := time.Now().Add(-time.Hour)
	st := &fakeStore{cfg: &models.ExchangeRateConfig{LastQuotedRate: ptr(45), LastUpdated: &updated}}
	a := &fakeSource{name: "a", err: errors.New("connection refused")}
	b := &fakeSource{name: "b", err: errors.New("503")}
	svc := newTestService(st, a, b)
	require.NoError(t, svc.Load(context.Background()))

	outcome := svc.Refresh(context.Background())

	assert.Equal(t, 45.0, outcome.Rate)
	assert.NotEmpty(t, outcome.Warning)
	assert.False(t, outcome.Persisted)
	assert.Equal(t, 45.0, svc.EffectiveRate())
	assert.Empty(t, st.savedRates)
}

func TestRefresh_SanityFloorRejectsMalformedQuotes(t *testing.T) {
	st := &fakeStore{}
	zero := &fakeSource{name: "zero", rate: 0}
	fraction := &fakeSource{name: "fraction", rate: 0.027}
	atFloor := &fakeSource{name: "floor", rate: 10}
	good := &fakeSource{name: "good", rate: 36.92}
	unused := &fakeSource{name: "unused", rate: 50}
	svc := newTestService(st, zero, fraction, atFloor, good, unused)

	outcome := svc.Refresh(context.Background())

	assert.Equal(t, 36.92, outcome.Rate)
	assert.Equal(t, "good", outcome.Source)
	assert.True(t, outcome.Persisted)
	assert.Empty(t, outcome.Warning)
	assert.Equal(t, int32(0), unused.calls.Load())
}

func TestRefresh_SaveFailureStillUpdatesInMemory(t *testing.T) {
	st := &fakeStore{saveErr: errors.New("write rejected")}
	svc := newTestService(st, &fakeSource{name: "a", rate: 38})

	outcome := svc.Refresh(context.Background())

	assert.False(t, outcome.Persisted)
	assert.NotEmpty(t, outcome.Warning)
	assert.Equal(t, 38.0, svc.EffectiveRate())
}

func TestRefresh_DoesNotOverrideManualPin(t *testing.T) {
	st := &fakeStore{cfg: &models.ExchangeRateConfig{ManualRate: ptr(36.5), UseManualRate: true}}
	svc := newTestService(st, &fakeSource{name: "a", rate: 40})
	require.NoError(t, svc.Load(context.Background()))

	outcome := svc.Refresh(context.Background())

	assert.Equal(t, 40.0, outcome.Rate)
	assert.Equal(t, 36.5, svc.EffectiveRate())
	assert.Equal(t, 40.0, svc.Current().LastQuotedRate)
	assert.True(t, svc.Current().UseManualRate)
}

func TestSetManual(t *testing.T) {
	st := &fakeStore{}
	src := &fakeSource{name: "a", rate: 40}
	svc := newTestService(st, src)

	_, err := svc.SetManual(context.Background(), ptr(-1), true)
	assert.ErrorIs(t, err, ErrInvalidRate)
	_, err = svc.SetManual(context.Background(), nil, true)
	assert.ErrorIs(t, err, ErrInvalidRate)
	assert.Equal(t, 0, st.manualSets)

	snap, err := svc.SetManual(context.Background(), ptr(36.5), true)
	require.NoError(t, err)
	assert.Equal(t, 36.5, snap.EffectiveRate)

	snap, err = svc.SetManual(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 50.0, snap.EffectiveRate)
	require.NotNil(t, snap.ManualRate)
	assert.Equal(t, 36.5, *snap.ManualRate)
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestRun_SkipsTicksWhileManual(t *testing.T) {
	st := &fakeStore{cfg: &models.ExchangeRateConfig{ManualRate: ptr(36.5), UseManualRate: true}}
	src := &fakeSource{name: "a", rate: 40}
	svc := New(st, []QuoteSource{src}, Options{RefreshEvery: 5 * time.Millisecond})
	require.NoError(t, svc.Load(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	svc.Run(ctx)

	assert.Equal(t, int32(0), src.calls.Load())
}

func TestRun_RefreshesOnTick(t *testing.T) {
	src := &fakeSource{name: "a", rate: 40}
	svc := New(&fakeStore{}, []QuoteSource{src}, Options{RefreshEvery: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	svc.Run(ctx)

	assert.GreaterOrEqual(t, src.calls.Load(), int32(1))
	assert.Equal(t, 40.0, svc.EffectiveRate())
}

func TestConvertRoundsToCents(t *testing.T) {
	assert.Equal(t, "4599.00", Convert(91.98, 50).StringFixed(2))
	assert.Equal(t, "12.35", Convert(0.333, 37.1).StringFixed(2))
}

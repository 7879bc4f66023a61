// Package exchangerate keeps the effective USD to local currency rate,
// refreshed from an ordered chain of quote sources and overridable by an
// admin-pinned manual rate.
package exchangerate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"storefront/internal/config"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/store"
)

var ErrInvalidRate = errors.New("rate must be a positive finite number")

type ConfigStore interface {
	LoadRateConfig(ctx context.Context) (models.ExchangeRateConfig, error)
	SaveQuotedRate(ctx context.Context, rate float64, source string, at time.Time) error
	SaveManualRate(ctx context.Context, rate *float64, use bool) error
}

type Options struct {
	Staleness    time.Duration
	RefreshEvery time.Duration
	Floor        float64
	DefaultRate  float64
	FetchTimeout time.Duration

	// SkipLoadRefresh stops Load from starting a background refresh. Used
	// when the caller refreshes explicitly right after loading.
	SkipLoadRefresh bool
}

func OptionsFromConfig(cfg config.RateConfig) Options {
	return Options{
		Staleness:    cfg.Staleness,
		RefreshEvery: cfg.RefreshEvery,
		Floor:        cfg.SanityFloor,
		DefaultRate:  cfg.DefaultRate,
		FetchTimeout: cfg.HTTPTimeout * time.Duration(len(cfg.Sources)+1),
	}
}

// Snapshot is a consistent read of the service state.
type Snapshot struct {
	EffectiveRate  float64    `json:"effectiveRate"`
	LastQuotedRate float64    `json:"lastQuotedRate"`
	LastSource     string     `json:"lastSource,omitempty"`
	ManualRate     *float64   `json:"manualRate"`
	UseManualRate  bool       `json:"useManualRate"`
	LastUpdated    *time.Time `json:"lastUpdated"`
	Stale          bool       `json:"stale"`
}

// RefreshOutcome reports what a refresh did. Warning is set when the cached
// rate was kept or the new rate could not be saved.
type RefreshOutcome struct {
	Rate      float64 `json:"rate"`
	Source    string  `json:"source,omitempty"`
	Persisted bool    `json:"persisted"`
	Warning   string  `json:"warning,omitempty"`
}

type Service struct {
	store   ConfigStore
	sources []QuoteSource
	opts    Options
	now     func() time.Time

	mu          sync.RWMutex
	lastQuoted  float64
	lastSource  string
	manualRate  *float64
	useManual   bool
	lastUpdated *time.Time

	sfg singleflight.Group
	wg  sync.WaitGroup
}

func New(st ConfigStore, sources []QuoteSource, opts Options) *Service {
	if opts.DefaultRate <= 0 {
		opts.DefaultRate = 50
	}
	if opts.Floor <= 0 {
		opts.Floor = 10
	}
	if opts.Staleness <= 0 {
		opts.Staleness = 6 * time.Hour
	}
	if opts.RefreshEvery <= 0 {
		opts.RefreshEvery = 6 * time.Hour
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &Service{
		store:      st,
		sources:    sources,
		opts:       opts,
		now:        time.Now,
		lastQuoted: opts.DefaultRate,
	}
}

// Load reads the stored config. A missing row or a stale automatic rate
// starts a background refresh; callers never wait on the network here.
func (s *Service) Load(ctx context.Context) error {
	cfg, err := s.store.LoadRateConfig(ctx)
	if errors.Is(err, store.ErrNotFound) {
		logf("INFO", "no exchange rate config stored, using default %.2f", s.opts.DefaultRate)
		s.publishGauge()
		if !s.opts.SkipLoadRefresh {
			s.refreshAsync()
		}
		return nil
	}
	if err != nil {
		logf("ERROR", "loading stored rate failed, using default %.2f: %v", s.opts.DefaultRate, err)
		s.publishGauge()
		return err
	}

	s.mu.Lock()
	if cfg.LastQuotedRate != nil && validRate(*cfg.LastQuotedRate) {
		s.lastQuoted = *cfg.LastQuotedRate
	}
	s.lastSource = cfg.LastSource
	s.manualRate = cfg.ManualRate
	s.useManual = cfg.UseManualRate
	s.lastUpdated = cfg.LastUpdated
	manual := s.manualActiveLocked()
	stale := s.staleLocked()
	s.mu.Unlock()

	s.publishGauge()
	logf("INFO", "stored rate loaded: effective=%.2f manual=%t", s.EffectiveRate(), manual)

	if !manual && stale && !s.opts.SkipLoadRefresh {
		logf("INFO", "stored rate is outdated, refreshing")
		s.refreshAsync()
	}
	return nil
}

func (s *Service) refreshAsync() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.FetchTimeout)
		defer cancel()
		s.Refresh(ctx)
	}()
}

// Wait blocks until background refreshes started by Load have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Refresh queries sources in order and keeps the first rate above the floor.
// Concurrent callers share one in-flight refresh.
func (s *Service) Refresh(ctx context.Context) RefreshOutcome {
	v, _, _ := s.sfg.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx), nil
	})
	return v.(RefreshOutcome)
}

func (s *Service) refresh(ctx context.Context) RefreshOutcome {
	for _, src := range s.sources {
		rate, err := src.Fetch(ctx)
		if err != nil {
			metrics.RecordRateFetch(src.Name(), false)
			logf("WARN", "source %s failed: %v", src.Name(), err)
			continue
		}
		if !validRate(rate) || rate <= s.opts.Floor {
			metrics.RecordRateFetch(src.Name(), false)
			logf("WARN", "source %s returned %v, below sanity floor %.2f", src.Name(), rate, s.opts.Floor)
			continue
		}
		metrics.RecordRateFetch(src.Name(), true)
		return s.accept(ctx, rate, src.Name())
	}

	current := s.EffectiveRate()
	warning := fmt.Sprintf("could not fetch a valid exchange rate, keeping stored rate %.2f", current)
	logf("WARN", "%s", warning)
	return RefreshOutcome{Rate: current, Warning: warning}
}

func (s *Service) accept(ctx context.Context, rate float64, source string) RefreshOutcome {
	at := s.now()

	s.mu.Lock()
	s.lastQuoted = rate
	s.lastSource = source
	s.lastUpdated = &at
	s.mu.Unlock()
	s.publishGauge()

	outcome := RefreshOutcome{Rate: rate, Source: source, Persisted: true}
	if err := s.store.SaveQuotedRate(ctx, rate, source, at); err != nil {
		outcome.Persisted = false
		outcome.Warning = fmt.Sprintf("rate %.2f updated for this process only, saving failed", rate)
		logf("ERROR", "saving quoted rate failed: %v", err)
		return outcome
	}
	logf("INFO", "rate updated to %.2f from %s", rate, source)
	return outcome
}

// Run refreshes on every tick until ctx is done. Ticks are skipped while a
// manual rate is pinned.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.RefreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			manual := s.manualActiveLocked()
			s.mu.RUnlock()
			if manual {
				logf("DEBUG", "manual rate pinned, skipping scheduled refresh")
				continue
			}
			fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
			s.Refresh(fetchCtx)
			cancel()
		}
	}
}

// SetManual stores the admin override. A nil rate keeps the current manual
// rate. Turning the override off does not fetch.
func (s *Service) SetManual(ctx context.Context, rate *float64, use bool) (Snapshot, error) {
	if rate != nil && !validRate(*rate) {
		return Snapshot{}, ErrInvalidRate
	}

	s.mu.RLock()
	hasManual := s.manualRate != nil && validRate(*s.manualRate)
	s.mu.RUnlock()
	if use && rate == nil && !hasManual {
		return Snapshot{}, fmt.Errorf("%w: manual rate required", ErrInvalidRate)
	}

	if err := s.store.SaveManualRate(ctx, rate, use); err != nil {
		logf("ERROR", "saving manual rate failed: %v", err)
		return Snapshot{}, err
	}

	s.mu.Lock()
	if rate != nil {
		v := *rate
		s.manualRate = &v
	}
	s.useManual = use
	s.mu.Unlock()
	s.publishGauge()

	snap := s.Current()
	logf("INFO", "manual rate set: use=%t effective=%.2f", use, snap.EffectiveRate)
	return snap, nil
}

func (s *Service) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		EffectiveRate:  s.effectiveLocked(),
		LastQuotedRate: s.lastQuoted,
		LastSource:     s.lastSource,
		UseManualRate:  s.useManual,
		Stale:          s.staleLocked(),
	}
	if s.manualRate != nil {
		v := *s.manualRate
		snap.ManualRate = &v
	}
	if s.lastUpdated != nil {
		t := *s.lastUpdated
		snap.LastUpdated = &t
	}
	return snap
}

func (s *Service) EffectiveRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effectiveLocked()
}

// Convert turns a USD amount into local currency at the effective rate.
func (s *Service) Convert(usd float64) decimal.Decimal {
	return Convert(usd, s.EffectiveRate())
}

// Convert multiplies and rounds to cents.
func Convert(usd, rate float64) decimal.Decimal {
	return decimal.NewFromFloat(usd).Mul(decimal.NewFromFloat(rate)).Round(2)
}

func (s *Service) manualActiveLocked() bool {
	return s.useManual && s.manualRate != nil && validRate(*s.manualRate)
}

func (s *Service) effectiveLocked() float64 {
	if s.manualActiveLocked() {
		return *s.manualRate
	}
	return s.lastQuoted
}

func (s *Service) staleLocked() bool {
	if s.lastUpdated == nil {
		return true
	}
	return s.now().Sub(*s.lastUpdated) > s.opts.Staleness
}

func (s *Service) publishGauge() {
	metrics.SetExchangeRate(s.EffectiveRate())
}

func validRate(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func logf(level, format string, args ...interface{}) {
	log.Printf("[RATE] ["+level+"] "+format, args...)
}

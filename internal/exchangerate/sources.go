package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"storefront/internal/config"
	"storefront/internal/sanitize"
)

var ErrNoQuote = errors.New("no usable quote in response")

// QuoteSource fetches one USD to local currency quote.
type QuoteSource interface {
	Name() string
	Fetch(ctx context.Context) (float64, error)
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out)
}

type priceField struct {
	Price interface{} `json:"price"`
}

// PyDolar reads the BCV page: the usd monitor first, then bank monitors.
type PyDolar struct {
	URL    string
	Client *http.Client
	Floor  float64
}

var pyDolarFallbackMonitors = []string{"banesco", "mercantil_banco", "provincial", "bnc"}

func (p *PyDolar) Name() string { return "pydolar" }

func (p *PyDolar) Fetch(ctx context.Context) (float64, error) {
	var body struct {
		Monitors map[string]priceField `json:"monitors"`
	}
	if err := getJSON(ctx, p.Client, p.URL, &body); err != nil {
		return 0, err
	}

	if rate := sanitize.NumericOrZero(body.Monitors["usd"].Price); rate > p.Floor {
		return rate, nil
	}
	for _, name := range pyDolarFallbackMonitors {
		if rate := sanitize.NumericOrZero(body.Monitors[name].Price); rate > p.Floor {
			return rate, nil
		}
	}
	return 0, ErrNoQuote
}

// DolarAPI reads the official rate's "promedio" field.
type DolarAPI struct {
	URL    string
	Client *http.Client
}

func (d *DolarAPI) Name() string { return "dolarapi" }

func (d *DolarAPI) Fetch(ctx context.Context) (float64, error) {
	var body struct {
		Promedio interface{} `json:"promedio"`
	}
	if err := getJSON(ctx, d.Client, d.URL, &body); err != nil {
		return 0, err
	}
	if rate := sanitize.NumericOrZero(body.Promedio); rate > 0 {
		return rate, nil
	}
	return 0, ErrNoQuote
}

// ERAPI reads rates.VES from a USD-based open exchange rate feed.
type ERAPI struct {
	URL    string
	Client *http.Client
}

func (e *ERAPI) Name() string { return "erapi" }

func (e *ERAPI) Fetch(ctx context.Context) (float64, error) {
	var body struct {
		Rates map[string]interface{} `json:"rates"`
	}
	if err := getJSON(ctx, e.Client, e.URL, &body); err != nil {
		return 0, err
	}
	if rate := sanitize.NumericOrZero(body.Rates["VES"]); rate > 0 {
		return rate, nil
	}
	return 0, ErrNoQuote
}

type breakerSource struct {
	QuoteSource
	cb *gobreaker.CircuitBreaker[float64]
}

// WithBreaker opens after three consecutive failures and lets one trial call through after timeout.
func WithBreaker(src QuoteSource, timeout time.Duration) QuoteSource {
	return &breakerSource{
		QuoteSource: src,
		cb: gobreaker.NewCircuitBreaker[float64](gobreaker.Settings{
			Name:        src.Name(),
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logf("WARN", "source %s breaker %s -> %s", name, from, to)
			},
		}),
	}
}

func (b *breakerSource) Fetch(ctx context.Context) (float64, error) {
	return b.cb.Execute(func() (float64, error) {
		return b.QuoteSource.Fetch(ctx)
	})
}

// BuildSources turns the configured source names into breaker-wrapped sources, in order.
func BuildSources(cfg config.RateConfig, client *http.Client) ([]QuoteSource, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	sources := make([]QuoteSource, 0, len(cfg.Sources))
	for _, name := range cfg.Sources {
		var src QuoteSource
		switch name {
		case "pydolar":
			src = &PyDolar{URL: cfg.PyDolarURL, Client: client, Floor: cfg.SanityFloor}
		case "dolarapi":
			src = &DolarAPI{URL: cfg.DolarAPIURL, Client: client}
		case "erapi":
			src = &ERAPI{URL: cfg.ERAPIURL, Client: client}
		default:
			return nil, fmt.Errorf("unknown exchange rate source %q", name)
		}
		sources = append(sources, WithBreaker(src, 10*time.Minute))
	}
	return sources, nil
}

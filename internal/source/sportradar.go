package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var sourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "source_requests_total",
	Help: "Upstream data source requests by sport and outcome",
}, []string{"sport", "outcome"})

// DefaultBaseURLs are the Sportradar API roots per sport.
var DefaultBaseURLs = map[string]string{
	"nba":    "https://api.sportradar.us/nba/trial/v8/en",
	"nfl":    "https://api.sportradar.us/nfl/official/trial/v7/en",
	"mlb":    "https://api.sportradar.us/mlb/trial/v7/en",
	"nhl":    "https://api.sportradar.us/nhl/trial/v7/en",
	"ncaafb": "https://api.sportradar.us/ncaafb/trial/v7/en",
	"ncaamb": "https://api.sportradar.us/ncaamb/trial/v8/en",
}

// CacheTTLs sets how long each kind of response is cached.
type CacheTTLs struct {
	Schedule  time.Duration
	Roster    time.Duration
	Stats     time.Duration
	Summary   time.Duration
	Standings time.Duration
}

// DefaultCacheTTLs returns the provider-recommended cache lifetimes.
func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{
		Schedule:  time.Hour,
		Roster:    24 * time.Hour,
		Stats:     24 * time.Hour,
		Summary:   5 * time.Minute,
		Standings: 24 * time.Hour,
	}
}

// SportradarConfig configures the Sportradar client.
type SportradarConfig struct {
	APIKey string
	// BaseURL, when set, replaces every sport's root with BaseURL/<sport>.
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        uint64
	CacheTTLs         CacheTTLs
	Cache             Cache
	HTTPClient        *http.Client
	Logger            *zap.Logger
	Now               func() time.Time
}

// HTTPStatusError is a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) from %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// SportradarClient is a DataSource over the Sportradar REST API. Requests are
// rate limited, retried with exponential backoff on 5xx and transport errors,
// guarded by a circuit breaker per sport and cached when a Cache is set.
type SportradarClient struct {
	cfg     SportradarConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewSportradarClient creates a client, filling unset options with defaults.
func NewSportradarClient(cfg SportradarConfig) *SportradarClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.CacheTTLs == (CacheTTLs{}) {
		cfg.CacheTTLs = DefaultCacheTTLs()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &SportradarClient{
		cfg:      cfg,
		http:     client,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:   cfg.Logger.Sugar(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *SportradarClient) UpcomingGames(ctx context.Context, sport string, days int) ([]map[string]any, error) {
	if days < 1 {
		days = 1
	}
	today := c.cfg.Now().UTC()

	var games []map[string]any
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, i)
		path := fmt.Sprintf("/games/%s/schedule.json", date.Format("2006/01/02"))
		body, err := c.get(ctx, sport, path, c.cfg.CacheTTLs.Schedule)
		if err != nil {
			return nil, err
		}
		games = append(games, flexSliceOfMaps(body["games"])...)
	}
	return games, nil
}

func (c *SportradarClient) TeamRoster(ctx context.Context, sport, teamID string) (map[string]any, error) {
	path := fmt.Sprintf("/teams/%s/profile.json", url.PathEscape(teamID))
	return c.get(ctx, sport, path, c.cfg.CacheTTLs.Roster)
}

func (c *SportradarClient) PlayerStats(ctx context.Context, sport, playerID string) (map[string]any, error) {
	path := fmt.Sprintf("/seasons/%d/REG/players/%s/statistics.json", c.cfg.Now().Year(), url.PathEscape(playerID))
	return c.get(ctx, sport, path, c.cfg.CacheTTLs.Stats)
}

func (c *SportradarClient) GameSummary(ctx context.Context, sport, gameID string) (map[string]any, error) {
	path := fmt.Sprintf("/games/%s/summary.json", url.PathEscape(gameID))
	return c.get(ctx, sport, path, c.cfg.CacheTTLs.Summary)
}

func (c *SportradarClient) Standings(ctx context.Context, sport string) (map[string]any, error) {
	path := fmt.Sprintf("/seasons/%d/REG/standings.json", c.cfg.Now().Year())
	return c.get(ctx, sport, path, c.cfg.CacheTTLs.Standings)
}

func (c *SportradarClient) baseURL(sport string) (string, bool) {
	if c.cfg.BaseURL != "" {
		if _, ok := DefaultBaseURLs[sport]; !ok {
			return "", false
		}
		return c.cfg.BaseURL + "/" + sport, true
	}
	base, ok := DefaultBaseURLs[sport]
	return base, ok
}

// get returns the decoded JSON object at path, or nil when the provider
// answers 404.
func (c *SportradarClient) get(ctx context.Context, sport, path string, ttl time.Duration) (map[string]any, error) {
	base, ok := c.baseURL(sport)
	if !ok {
		return nil, fmt.Errorf("unsupported sport %q", sport)
	}
	key := sport + path

	if c.cfg.Cache != nil {
		cached, hit, err := c.cfg.Cache.Get(ctx, key)
		if err != nil {
			c.logger.Warnw("Cache read failed", "key", key, "error", err)
		} else if hit {
			var out map[string]any
			if err := json.Unmarshal(cached, &out); err == nil {
				sourceRequests.WithLabelValues(sport, "cache_hit").Inc()
				return out, nil
			}
		}
	}

	res, err := c.breaker(sport).Execute(func() (interface{}, error) {
		return c.fetch(ctx, base+path)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "breaker_open"
		}
		sourceRequests.WithLabelValues(sport, outcome).Inc()
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}

	body, _ := res.([]byte)
	if body == nil {
		sourceRequests.WithLabelValues(sport, "not_found").Inc()
		return nil, nil
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		sourceRequests.WithLabelValues(sport, "error").Inc()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	sourceRequests.WithLabelValues(sport, "ok").Inc()

	if c.cfg.Cache != nil && ttl > 0 {
		if err := c.cfg.Cache.Set(ctx, key, body, ttl); err != nil {
			c.logger.Warnw("Cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}

// fetch performs the request with rate limiting and bounded retries. A 404
// yields a nil body and no error.
func (c *SportradarClient) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	var body []byte
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			body = nil
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL}
		case resp.StatusCode >= 300:
			return backoff.Permanent(&HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL})
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 250 * time.Millisecond
	strategy.MaxElapsedTime = c.cfg.Timeout
	notify := func(err error, wait time.Duration) {
		c.logger.Warnw("Retrying upstream request", "url", rawURL, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(strategy, c.cfg.MaxRetries), ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

// breaker returns the circuit breaker for a sport, creating it on first use.
func (c *SportradarClient) breaker(sport string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[sport]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sportradar-" + sport,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warnw("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	c.breakers[sport] = cb
	return cb
}

// BreakerState reports the circuit breaker state for a sport.
func (c *SportradarClient) BreakerState(sport string) gobreaker.State {
	return c.breaker(sport).State()
}

func flexSliceOfMaps(v any) []map[string]any {
	raw, _ := v.([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Package vendorcall wraps every outbound call to a paid data provider
// with admission control: a per-provider daily spend cap, a TTL
// response cache, token-bucket rate limiting, and jittered exponential
// retry for transient failures.
package vendorcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/metrics"
	"golang.org/x/time/rate"
)

// Request identifies one provider call. Params are normalized into the
// cache key, so equivalent requests coalesce.
type Request struct {
	Provider       string
	Endpoint       string
	Params         map[string]string
	EstimatedCents int64
}

// Response is the normalized shape returned for every provider,
// independent of the provider's own schema.
type Response struct {
	Provider  string          `json:"provider"`
	Items     []domain.Record `json:"items"`
	CostCents int64           `json:"cost_cents"`
	FromCache bool            `json:"-"`
}

// ProviderConfig configures one provider's admission limits.
type ProviderConfig struct {
	BaseURL       string
	APIKey        string
	DailyCapCents int64
	RequestsPerS  float64
	Burst         int
	Timeout       time.Duration
}

// Config configures the gateway.
type Config struct {
	Providers   map[string]ProviderConfig
	CacheTTL    time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Gateway admits and dispatches vendor calls.
type Gateway struct {
	logger    *slog.Logger
	registry  *metrics.Registry
	client    *http.Client
	providers map[string]ProviderConfig
	limiters  map[string]*rate.Limiter
	budget    *Budget
	cache     *Cache

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway builds a gateway from config. The http.Client carries no
// timeout of its own; each provider's timeout bounds the request ctx.
func NewGateway(cfg Config, logger *slog.Logger, registry *metrics.Registry) *Gateway {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 4 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}

	caps := make(map[string]int64)
	limiters := make(map[string]*rate.Limiter)
	for name, p := range cfg.Providers {
		if p.DailyCapCents > 0 {
			caps[name] = p.DailyCapCents
		}
		r := rate.Limit(p.RequestsPerS)
		if p.RequestsPerS <= 0 {
			r = rate.Inf
		}
		burst := p.Burst
		if burst <= 0 {
			burst = 1
		}
		limiters[name] = rate.NewLimiter(r, burst)
	}

	return &Gateway{
		logger:      logger,
		registry:    registry,
		client:      &http.Client{},
		providers:   cfg.Providers,
		limiters:    limiters,
		budget:      NewBudget(caps),
		cache:       NewCache(cfg.CacheTTL),
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		sleep:       sleepCtx,
	}
}

// Budget exposes the spend accumulator for metrics and tests.
func (g *Gateway) Budget() *Budget { return g.budget }

// Call admits and performs one provider request. Order of admission:
// cache, then budget (fail fast, no network), then rate limit, then
// dispatch with retries.
func (g *Gateway) Call(ctx context.Context, req Request) (*Response, error) {
	provider, ok := g.providers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider)
	}

	if resp, hit := g.cache.Get(req); hit {
		g.logger.Debug("Vendor cache hit",
			slog.String("provider", req.Provider),
			slog.String("endpoint", req.Endpoint),
		)
		g.registry.Inc(metrics.DomainCalls, "cache_hits", req.Provider)
		cached := *resp
		cached.FromCache = true
		return &cached, nil
	}

	if err := g.budget.Reserve(req.Provider, req.EstimatedCents); err != nil {
		g.logger.Warn("Vendor call rejected by daily cap",
			slog.String("provider", req.Provider),
			slog.Int64("spent_cents", g.budget.SpentToday(req.Provider)),
			slog.Int64("estimated_cents", req.EstimatedCents),
		)
		g.registry.Inc(metrics.DomainCalls, "cap_rejected", req.Provider)
		return nil, err
	}

	if err := g.limiters[req.Provider].Wait(ctx); err != nil {
		g.budget.Release(req.Provider, req.EstimatedCents)
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	resp, err := g.dispatchWithRetry(ctx, provider, req)
	g.registry.Observe(metrics.DomainCalls, "latency", req.Provider, time.Since(start))
	if err != nil {
		g.budget.Release(req.Provider, req.EstimatedCents)
		g.registry.Inc(metrics.DomainCalls, "failed", req.Provider)
		return nil, err
	}

	g.budget.Commit(req.Provider, resp.CostCents, req.EstimatedCents)
	g.registry.Inc(metrics.DomainCalls, "dispatched", req.Provider)
	g.registry.Add(metrics.DomainCalls, "spend_cents", req.Provider, resp.CostCents)
	g.cache.Put(req, resp)
	g.cache.Purge()
	return resp, nil
}

// dispatchWithRetry retries transient failures with jittered
// exponential backoff: min(base*2^attempt, cap) * uniform(0.8, 1.2).
func (g *Gateway) dispatchWithRetry(ctx context.Context, provider ProviderConfig, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, g.backoff(attempt)); err != nil {
				return nil, err
			}
		}

		resp, err := g.dispatch(ctx, provider, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, err
		}
		g.registry.Inc(metrics.DomainCalls, "retries", req.Provider)
		g.logger.Warn("Vendor call failed, will retry",
			slog.String("provider", req.Provider),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", g.maxAttempts),
			slog.String("error", err.Error()),
		)
	}
	return nil, lastErr
}

// dispatch performs a single HTTP GET bounded by the provider timeout.
func (g *Gateway) dispatch(ctx context.Context, provider ProviderConfig, req Request) (*Response, error) {
	timeout := provider.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodGet, g.buildURL(provider, req), nil)
	if err != nil {
		return nil, fmt.Errorf("build vendor request: %w", err)
	}
	if provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		if isNetworkTransient(err) {
			return nil, &TransientError{Provider: req.Provider, Err: err}
		}
		return nil, fmt.Errorf("vendor request: %w", err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
		return nil, &TransientError{Provider: req.Provider, StatusCode: httpResp.StatusCode}
	case httpResp.StatusCode >= 400:
		return nil, &PermanentError{Provider: req.Provider, StatusCode: httpResp.StatusCode}
	}

	var body struct {
		Items     []domain.Record `json:"items"`
		CostCents int64           `json:"cost_cents"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode vendor response: %w", err)
	}

	cost := body.CostCents
	if cost == 0 {
		cost = req.EstimatedCents
	}
	return &Response{
		Provider:  req.Provider,
		Items:     body.Items,
		CostCents: cost,
	}, nil
}

func (g *Gateway) buildURL(provider ProviderConfig, req Request) string {
	values := url.Values{}
	for k, v := range req.Params {
		values.Set(k, v)
	}
	u := strings.TrimRight(provider.BaseURL, "/") + "/" + strings.TrimLeft(req.Endpoint, "/")
	if len(values) > 0 {
		u += "?" + values.Encode()
	}
	return u
}

func (g *Gateway) backoff(attempt int) time.Duration {
	delay := float64(g.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(g.maxDelay) {
		delay = float64(g.maxDelay)
	}
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(delay * jitter)
}

func isNetworkTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

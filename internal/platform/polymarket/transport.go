package polymarket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// TransportConfig tunes retries, rate limiting and circuit breaking for
// outbound requests.
type TransportConfig struct {
	Timeout   time.Duration
	UserAgent string

	// Per-host token bucket.
	RPS   float64
	Burst int

	// Exponential backoff on 429/5xx and network errors.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// A host's breaker opens once at least BreakerFailures requests failed
	// within breakerWindow and they make up at least BreakerFailureRatio of
	// its requests. A request counts once however many attempts it took.
	BreakerFailures     uint32
	BreakerFailureRatio float64
	BreakerCooldown     time.Duration
}

// breakerWindow is how often a closed breaker resets its counts.
const breakerWindow = time.Minute

// DefaultTransportConfig returns the production settings.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Timeout:             30 * time.Second,
		UserAgent:           "polysignal/1.0",
		RPS:                 10,
		Burst:               10,
		MaxAttempts:         6,
		BaseDelay:           700 * time.Millisecond,
		MaxDelay:            6 * time.Second,
		BreakerFailures:     5,
		BreakerFailureRatio: 0.5,
		BreakerCooldown:     30 * time.Second,
	}
}

// Response is a successful upstream response.
type Response struct {
	Body     []byte
	Status   int
	Duration time.Duration
	Attempts int
}

// Fetcher performs a GET against an absolute URL.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (Response, error)
}

// statusError is a non-2xx response. It wraps the matching domain sentinel.
type statusError struct {
	Status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// Transport is the HTTP collaborator shared by both API clients. It is safe
// for concurrent use.
type Transport struct {
	httpClient *http.Client
	cfg        TransportConfig
	logger     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker

	sleep func(ctx context.Context, d time.Duration) error
}

// NewTransport creates a Transport. A nil httpClient gets one with
// cfg.Timeout.
func NewTransport(cfg TransportConfig, httpClient *http.Client, logger *slog.Logger) *Transport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Transport{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "transport")),
		limiters:   make(map[string]*rate.Limiter),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		sleep:      sleepContext,
	}
}

// Get fetches rawURL, retrying retryable failures with exponential backoff.
func (t *Transport) Get(ctx context.Context, rawURL string) (Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Response{}, fmt.Errorf("parse url: %w", err)
	}
	host := u.Host
	limiter, breaker := t.hostControls(host)

	start := time.Now()
	out, err := breaker.Execute(func() (interface{}, error) {
		return t.attempt(ctx, host, limiter, rawURL)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Response{}, fmt.Errorf("%w: %s", domain.ErrCircuitOpen, host)
	}
	if err != nil {
		return Response{}, err
	}
	resp := out.(Response)
	resp.Duration = time.Since(start)
	return resp, nil
}

// attempt runs the retry loop for one logical request.
func (t *Transport) attempt(ctx context.Context, host string, limiter *rate.Limiter, rawURL string) (Response, error) {
	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return Response{}, err
			}
		}

		resp, err := t.do(ctx, rawURL)
		if err == nil {
			resp.Attempts = attempt
			return resp, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil || attempt == t.cfg.MaxAttempts {
			break
		}

		delay := t.backoff(attempt)
		t.logger.DebugContext(ctx, "transport: retrying",
			slog.String("host", host),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if err := t.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

func (t *Transport) do(ctx context.Context, rawURL string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if t.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", t.cfg.UserAgent)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return Response{}, err
	}
	return Response{Body: body, Status: resp.StatusCode}, nil
}

func (t *Transport) hostControls(host string) (*rate.Limiter, *gobreaker.CircuitBreaker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.breakers[host]
	if !ok {
		failures := t.cfg.BreakerFailures
		if failures == 0 {
			failures = 5
		}
		ratio := t.cfg.BreakerFailureRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.5
		}
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     host,
			Interval: breakerWindow,
			Timeout:  t.cfg.BreakerCooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.TotalFailures >= failures &&
					float64(c.TotalFailures) >= ratio*float64(c.Requests)
			},
			// Client errors mean the host answered; only 429, 5xx and
			// network errors count against it.
			IsSuccessful: func(err error) bool {
				return err == nil || !retryable(err)
			},
		})
		t.breakers[host] = b
	}

	if t.cfg.RPS <= 0 {
		return nil, b
	}
	l, ok := t.limiters[host]
	if !ok {
		burst := t.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(t.cfg.RPS), burst)
		t.limiters[host] = l
	}
	return l, b
}

func (t *Transport) backoff(attempt int) time.Duration {
	d := t.cfg.BaseDelay << (attempt - 1)
	if d <= 0 || (t.cfg.MaxDelay > 0 && d > t.cfg.MaxDelay) {
		d = t.cfg.MaxDelay
	}
	return d
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Anything else is a network or read failure.
	return true
}

// statusOf returns the HTTP status carried by err, or 0.
func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// checkHTTPStatus maps a non-2xx response to an error wrapping the domain
// sentinel for that class of failure.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := truncate(string(body), 256)
	var err error
	switch statusCode {
	case http.StatusNotFound:
		err = fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		err = fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		err = fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		err = fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
	return &statusError{Status: statusCode, err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

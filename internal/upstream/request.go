package upstream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fieldline/orbit/pkg/observability"
)

// Retry policy for transient upstream failures.
const (
	maxAttempts = 3
	backoffBase = 2 * time.Second
	backoffCap  = 30 * time.Second
)

// hardErrorBodyMax bounds how much of a rejection body is kept.
const hardErrorBodyMax = 512

// provider is one upstream host with its own credentials and rate
// budget.
type provider struct {
	baseURL string
	bearer  string
	http    *http.Client
	limiter *rate.Limiter
	backoff time.Duration
	logger  *slog.Logger
	metrics *observability.CollectMetrics
}

func newProvider(baseURL, bearer string, cfg Config) *provider {
	return &provider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		bearer:  bearer,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		backoff: backoffBase,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// getJSON performs a GET with rate limiting and retries. The raw 200
// body is returned and, when dst is non-nil, also decoded into it.
// Retries cover connection failures, 429 and 5xx; everything else
// fails immediately with a *HardError.
func (p *provider) getJSON(ctx context.Context, path string, query url.Values, dst any) ([]byte, error) {
	start := time.Now()

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			p.logger.WarnContext(ctx, "upstream: retrying request",
				"path", path,
				"attempt", attempt,
				"error", lastErr,
			)

			sleepErr := p.sleepBackoff(ctx, attempt-1)
			if sleepErr != nil {
				return nil, fmt.Errorf("waiting before retry: %w", sleepErr)
			}
		}

		waitErr := p.limiter.Wait(ctx)
		if waitErr != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", waitErr)
		}

		body, retryable, err := p.do(ctx, path, query)
		if err == nil {
			p.metrics.RecordFetch(ctx, path, time.Since(start), attempt-1)

			if dst == nil {
				return body, nil
			}

			unmarshalErr := json.Unmarshal(body, dst)
			if unmarshalErr != nil {
				return nil, fmt.Errorf("decoding %s response: %w", path, unmarshalErr)
			}

			return body, nil
		}

		if !retryable {
			return nil, err
		}

		lastErr = err
	}

	p.metrics.RecordFetch(ctx, path, time.Since(start), maxAttempts-1)

	return nil, &TransientError{Err: lastErr}
}

// do performs a single request attempt. The bool reports whether the
// failure is retryable.
func (p *provider) do(ctx context.Context, path string, query url.Values) ([]byte, bool, error) {
	target := p.baseURL + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("status %d from %s", resp.StatusCode, path)
	default:
		return nil, false, &HardError{Status: resp.StatusCode, Body: truncateBody(body)}
	}
}

// sleepBackoff waits base×2^(retries−1), capped at backoffCap.
// Cancelling ctx aborts the wait.
func (p *provider) sleepBackoff(ctx context.Context, retries int) error {
	delay := min(p.backoff<<(retries-1), backoffCap)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncateBody(body []byte) string {
	if len(body) > hardErrorBodyMax {
		body = body[:hardErrorBodyMax]
	}

	return string(body)
}

// paramsHash fingerprints a query for raw-page bookkeeping. JSON
// marshaling sorts map keys, so equal params always hash equally.
func paramsHash(query url.Values) string {
	flat := make(map[string]string, len(query))

	for key, values := range query {
		if len(values) > 0 {
			flat[key] = values[0]
		}
	}

	encoded, err := json.Marshal(flat)
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(encoded)

	return hex.EncodeToString(sum[:])[:16]
}

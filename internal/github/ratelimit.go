package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	gh "github.com/google/go-github/v57/github"

	"issuesync/internal/contextutil"
	"issuesync/internal/syncerr"
)

const (
	// DefaultMaxRetries bounds rate-limit retries of a single request.
	DefaultMaxRetries = 10
	// DefaultMaxWait is the longest reset we are willing to wait for.
	DefaultMaxWait = 2 * time.Hour
	// DefaultResetMargin is added to every reset wait.
	DefaultResetMargin = 5 * time.Second
	// abuseFallbackWait is used when a secondary limit carries no Retry-After.
	abuseFallbackWait = time.Minute
)

// RateSnapshot is the rate-limit state reported by the most recent response.
type RateSnapshot struct {
	Remaining int
	Limit     int
	Reset     time.Time
}

// call performs one API request and returns its response, which may be nil on transport errors.
type call func(ctx context.Context) (*gh.Response, error)

// do runs fn, sleeping out rate limits until the reset and retrying the same request.
// Everything that is not a rate limit fails immediately as a fatal remote error.
//
// go-github remembers the last reset and refuses requests client-side until it passes.
// The sleep always ends after that reset, so the retry reaches the server.
func (f *Fetcher) do(ctx context.Context, op string, fn call) error {
	logger := contextutil.LoggerFromContext(ctx)

	for attempt := 0; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := fn(ctx)
		f.recordRate(resp)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reset, limited := rateLimitReset(err, f.now())
		if !limited {
			return syncerr.Fatal(op, describe(err, resp))
		}
		limitErr := syncerr.Transient(op, err)
		if attempt >= f.maxRetries {
			return syncerr.Fatal(op, fmt.Errorf("giving up after %d rate limit retries: %w", attempt, limitErr))
		}

		wait := reset.Sub(f.now())
		if wait >= f.maxWait {
			return syncerr.Fatal(op, fmt.Errorf("rate limit resets in %s: %w", wait.Round(time.Second), limitErr))
		}
		if wait < 0 {
			wait = 0
		}
		wait += f.margin

		logger.WarnContext(ctx, "rate limit exceeded, waiting for reset",
			"op", op,
			"reset", reset.UTC().Format(time.RFC3339),
			"wait", wait.String(),
			"attempt", attempt+1,
		)
		if err := f.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// rateLimitReset reports whether err is a primary or secondary rate limit and when it lifts.
func rateLimitReset(err error, now time.Time) (time.Time, bool) {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.Rate.Reset.Time, true
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		if retryAfter := abuseErr.GetRetryAfter(); retryAfter > 0 {
			return now.Add(retryAfter), true
		}
		return now.Add(abuseFallbackWait), true
	}

	return time.Time{}, false
}

// describe adds the HTTP status to a remote error when there is one.
func describe(err error, resp *gh.Response) error {
	if resp != nil && resp.Response != nil {
		return fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	return err
}

func (f *Fetcher) recordRate(resp *gh.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRate = &RateSnapshot{
		Remaining: resp.Rate.Remaining,
		Limit:     resp.Rate.Limit,
		Reset:     resp.Rate.Reset.Time.UTC(),
	}
}

// LastRate returns the rate-limit state of the most recent response, or nil before the first one.
func (f *Fetcher) LastRate() *RateSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastRate == nil {
		return nil
	}
	snapshot := *f.lastRate
	return &snapshot
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

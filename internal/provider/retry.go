package provider

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2.0
)

// RetryPolicy retries rate-limited calls with exponential backoff. The wait
// after failed attempt i (0-based) is BaseDelay^i plus up to one second of
// jitter. The calling goroutine blocks while waiting; ctx is the only way out.
type RetryPolicy struct {
	// MaxRetries is the total number of attempts.
	MaxRetries int
	// BaseDelay is in seconds.
	BaseDelay float64
	// Delay replaces the backoff computation when set.
	Delay  func(attempt int) time.Duration
	Logger *slog.Logger
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.Delay != nil {
		return p.Delay(attempt)
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	seconds := math.Pow(base, float64(attempt)) + rand.Float64()
	return time.Duration(seconds * float64(time.Second))
}

// Do runs fn until it succeeds, fails with an error that is not rate limited,
// or runs out of attempts. In the last case it returns *ExhaustedRetriesError.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxRetries := p.MaxRetries
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(maxRetries-1), retry.BackoffFunc(func() (time.Duration, bool) {
		wait := p.backoff(attempt)
		attempt++
		log.WarnContext(ctx, "rate limited, retrying",
			"wait", wait.Round(100*time.Millisecond),
			"next_attempt", attempt+1,
			"max_attempts", maxRetries)
		return wait, false
	}))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if IsRateLimited(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil && ctx.Err() == nil && IsRateLimited(err) {
		return &ExhaustedRetriesError{Attempts: maxRetries}
	}
	return err
}

// IsRateLimited reports whether err looks like throttling. API errors are
// judged by status code. Transport failures and cancellation never count,
// since their messages carry request URLs such as ":generateContent".
// Anything else is judged by its message containing "429" or "rate" in any
// case.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIRequestError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "rate")
}

type retrying struct {
	next   Generator
	policy RetryPolicy
}

// WithRetry wraps g so each GenerateText call runs under policy.
func WithRetry(g Generator, policy RetryPolicy) Generator {
	return &retrying{next: g, policy: policy}
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	var text string
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = r.next.GenerateText(ctx, req)
		return err
	})
	return text, err
}

package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/service/metrics"
	"FinAlert/internal/service/ratelimit"
	"FinAlert/pkg/config"
	xhttp "FinAlert/pkg/http"
	"FinAlert/pkg/resilience"
)

// NewPolicy builds the retry policy for one upstream service from config.
func NewPolicy(name string, rc config.ResilienceConfig) *resilience.Policy {
	return resilience.New(name,
		resilience.WithAttempts(rc.MaxAttempts),
		resilience.WithBackoff(rc.BaseDelay, rc.MaxDelay),
		resilience.WithTimeout(rc.Timeout),
		resilience.WithBreaker(uint32(rc.BreakerFailures), rc.BreakerOpen),
	)
}

// HTTPServiceBase is the shared JSON-over-HTTP plumbing for upstream signal
// services. Every call goes through the rate limiter and the retry policy, and
// a call that finally fails is reported as errs.ErrSignalUnavailable.
type HTTPServiceBase struct {
	name    string
	baseURL string
	client  *xhttp.Client
	policy  *resilience.Policy
	limiter *ratelimit.Limiter
}

// NewHTTPServiceBase builds a client for baseURL. limiter may be nil.
func NewHTTPServiceBase(name, baseURL string, policy *resilience.Policy, limiter *ratelimit.Limiter, opts ...xhttp.ClientOption) *HTTPServiceBase {
	metrics.Register()
	return &HTTPServiceBase{
		name:    name,
		baseURL: baseURL,
		client:  xhttp.NewClient(opts...),
		policy:  policy,
		limiter: limiter,
	}
}

// Name is the signal source label.
func (b *HTTPServiceBase) Name() string { return b.name }

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.baseURL == "" {
		return errs.SignalUnavailable(b.name, errors.New("service url not configured"))
	}
	endpoint := b.name + path
	start := time.Now()

	err := b.policy.Do(ctx, func(ctx context.Context) error {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx, b.name); err != nil {
				return err
			}
		}
		err := b.client.PostJSON(ctx, b.baseURL+path, payload, dest)
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return resilience.Permanent(err)
		}
		return err
	})

	metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues(endpoint).Inc()
		return errs.SignalUnavailable(b.name, fmt.Errorf("post %s: %w", path, err))
	}
	return nil
}

package airtable

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// RetryPolicy is shared, read-only retry configuration.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	JitterBound time.Duration
	MaxDelay    time.Duration
	// RetryableStatuses are server-side transient statuses. 429 is always retryable.
	RetryableStatuses []int
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Multiplier:  2,
		JitterBound: 250 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		RetryableStatuses: []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// normalized fills zero values from the default policy.
func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.JitterBound < 0 {
		p.JitterBound = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.RetryableStatuses == nil {
		p.RetryableStatuses = def.RetryableStatuses
	}
	return p
}

// Delay returns the backoff before attempt+1, without jitter:
// BaseDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p RetryPolicy) retryableStatus(code int) bool {
	for _, s := range p.RetryableStatuses {
		if s == code {
			return true
		}
	}
	return false
}

// Observer receives events from the retry loop. Implementations must be safe
// for concurrent use.
type Observer interface {
	ObserveAttempt(method string, statusCode int, duration time.Duration)
	ObserveRetry(kind Kind, delay time.Duration)
	ObserveThrottle(resourceKey string, wait time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, int, time.Duration) {}
func (nopObserver) ObserveRetry(Kind, time.Duration)          {}
func (nopObserver) ObserveThrottle(string, time.Duration)     {}

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor runs a single logical request to completion.
type Executor interface {
	Execute(ctx context.Context, req RequestDescriptor) Result
}

// Coordinator wraps an Invoker with rate-limit gating and bounded retries.
type Coordinator struct {
	invoker  Invoker
	governor *Governor
	policy   RetryPolicy
	logger   zerolog.Logger
	observer Observer
	sleep    Sleeper
	jitter   func(bound time.Duration) time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger.With().Str("component", "retry_coordinator").Logger()
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) CoordinatorOption {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithSleeper replaces the suspension function. Intended for tests.
func WithSleeper(s Sleeper) CoordinatorOption {
	return func(c *Coordinator) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithJitter replaces the jitter source. Intended for tests.
func WithJitter(j func(bound time.Duration) time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if j != nil {
			c.jitter = j
		}
	}
}

// NewCoordinator creates a coordinator. A nil governor disables local gating.
func NewCoordinator(invoker Invoker, governor *Governor, policy RetryPolicy, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		invoker:  invoker,
		governor: governor,
		policy:   policy.normalized(),
		logger:   zerolog.Nop(),
		observer: nopObserver{},
		sleep:    SleepContext,
		jitter:   randomJitter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type attemptState int

const (
	stateAttempting attemptState = iota
	stateRetrying
	stateSuccess
	stateFatal
	stateExhausted
)

// attemptOutcome is the classification of a single attempt.
type attemptOutcome struct {
	payload    []byte
	failure    *Failure
	retry      bool
	retryAfter time.Duration
}

// Execute runs req until it succeeds, fails fatally, exhausts the policy or the
// context is done.
func (c *Coordinator) Execute(ctx context.Context, req RequestDescriptor) Result {
	var (
		state   = stateAttempting
		attempt = 1
		out     attemptOutcome
	)

	for {
		switch state {
		case stateAttempting:
			out = c.attempt(ctx, req, attempt)
			switch {
			case out.failure == nil:
				state = stateSuccess
			case !out.retry:
				state = stateFatal
			case attempt >= c.policy.MaxAttempts:
				state = stateExhausted
			default:
				state = stateRetrying
			}

		case stateRetrying:
			delay := c.backoff(attempt, out.retryAfter)
			c.observer.ObserveRetry(out.failure.Kind, delay)
			c.logger.Warn().
				Str("method", req.Method).
				Str("path", req.Path).
				Int("attempt", attempt).
				Int("status_code", out.failure.StatusCode).
				Str("kind", string(out.failure.Kind)).
				Dur("delay", delay).
				Msg("Retrying request")

			if err := c.sleep(ctx, delay); err != nil {
				return Failed(NewTimeoutFailure(err))
			}
			attempt++
			state = stateAttempting

		case stateSuccess:
			return Success(out.payload)

		case stateFatal:
			return Failed(out.failure)

		case stateExhausted:
			f := *out.failure
			f.Retryable = true
			f.Message = fmt.Sprintf("%s (gave up after %d attempts)", f.Message, attempt)
			c.logger.Warn().
				Str("method", req.Method).
				Str("path", req.Path).
				Int("attempts", attempt).
				Str("kind", string(f.Kind)).
				Msg("Retries exhausted")
			return Failed(&f)
		}
	}
}

// attempt waits for the governor, sends the request once and classifies the outcome.
func (c *Coordinator) attempt(ctx context.Context, req RequestDescriptor, attempt int) attemptOutcome {
	if err := c.gate(ctx, req.ResourceKey); err != nil {
		return attemptOutcome{failure: NewTimeoutFailure(err)}
	}

	start := time.Now()
	resp, err := c.invoker.Invoke(ctx, req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.observer.ObserveAttempt(req.Method, status, time.Since(start))

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Str("resource", req.ResourceKey).
		Int("attempt", attempt).
		Int("status_code", status).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("Request attempt")

	if err != nil {
		return classifyTransportError(ctx, err)
	}
	return c.classifyResponse(resp)
}

// gate blocks until the governor grants a slot for key.
func (c *Coordinator) gate(ctx context.Context, key string) error {
	if c.governor == nil {
		return ctx.Err()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := c.governor.Acquire(key)
		if wait == 0 {
			return nil
		}
		c.observer.ObserveThrottle(key, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func classifyTransportError(ctx context.Context, err error) attemptOutcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return attemptOutcome{failure: NewTimeoutFailure(ctxErr)}
	}

	var te *TransportError
	if errors.As(err, &te) && !te.Temporary {
		return attemptOutcome{failure: NewFailure(KindInvalidParameters, fmt.Sprintf("malformed request: %v", te.Err), false)}
	}

	return attemptOutcome{
		failure: NewFailure(KindTransientFailure, fmt.Sprintf("network error: %v", err), true),
		retry:   true,
	}
}

func (c *Coordinator) classifyResponse(resp *RawResponse) attemptOutcome {
	code := resp.StatusCode

	if code >= 200 && code < 300 {
		body := resp.Body
		if len(strings.TrimSpace(string(body))) == 0 {
			body = []byte(`{}`)
		}
		if !gjson.ValidBytes(body) {
			return attemptOutcome{
				failure: &Failure{Kind: KindTransientFailure, Message: "malformed response body", Retryable: true, StatusCode: code},
				retry:   true,
			}
		}
		return attemptOutcome{payload: body}
	}

	remoteCode, message := remoteError(resp.Body)
	if message == "" {
		message = http.StatusText(code)
	}
	f := &Failure{
		Message:    message,
		RemoteCode: remoteCode,
		StatusCode: code,
	}

	switch {
	case code == http.StatusTooManyRequests:
		f.Kind = KindRateLimitExhausted
		f.Retryable = true
		return attemptOutcome{failure: f, retry: true, retryAfter: RetryAfter(resp.Header)}
	case c.policy.retryableStatus(code):
		f.Kind = KindTransientFailure
		f.Retryable = true
		return attemptOutcome{failure: f, retry: true, retryAfter: RetryAfter(resp.Header)}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		f.Kind = KindUnauthorized
	case code == http.StatusNotFound:
		f.Kind = KindNotFound
	default:
		f.Kind = KindRemoteRejected
	}
	return attemptOutcome{failure: f}
}

// backoff computes the delay after a failed attempt. A Retry-After hint is a
// floor for this attempt only.
func (c *Coordinator) backoff(attempt int, floor time.Duration) time.Duration {
	d := c.policy.Delay(attempt)
	if floor > d {
		d = floor
	}
	if c.policy.JitterBound > 0 {
		d += c.jitter(c.policy.JitterBound)
	}
	return d
}

// remoteError extracts the Airtable error type and message. The shapes
// {"error":{"type":..,"message":..}}, {"error":"NOT_FOUND"} and
// {"errors":[{"error":..,"message":..}]} all occur.
func remoteError(body []byte) (code, message string) {
	if len(body) == 0 {
		return "", ""
	}
	if !gjson.ValidBytes(body) {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return "", msg
	}

	e := gjson.GetBytes(body, "error")
	switch {
	case e.IsObject():
		code = e.Get("type").String()
		message = e.Get("message").String()
	case e.Type == gjson.String:
		code = e.String()
	}
	if code == "" && message == "" {
		first := gjson.GetBytes(body, "errors.0")
		code = first.Get("error").String()
		message = first.Get("message").String()
	}
	if message == "" {
		message = gjson.GetBytes(body, "message").String()
	}
	return code, message
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// SleepContext waits for d or until ctx is done. If the deadline falls before
// d elapses it returns immediately.
func SleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		return context.DeadlineExceeded
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(bound)))
}

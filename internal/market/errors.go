package market

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a provider call failure so the router can
// decide between cooldown, retry, and moving to the next provider.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureTransient   FailureKind = "transient_error"
	FailurePermanent   FailureKind = "permanent_error"
	FailureUnsupported FailureKind = "unsupported"
)

// ProviderError is the typed outcome of a failed provider call.
type ProviderError struct {
	Provider   string
	Op         string
	Kind       FailureKind
	RetryAfter time.Duration // reset hint from a 429, zero when the provider gave none
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RateLimited marks a call rejected by the provider's rate limiter.
func RateLimited(provider, op string, retryAfter time.Duration, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: FailureRateLimited, RetryAfter: retryAfter, Err: err}
}

// Transient marks a failure worth one retry: timeouts, 5xx, bad payloads.
func Transient(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: FailureTransient, Err: err}
}

// Permanent marks a failure that will not succeed on retry.
func Permanent(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: FailurePermanent, Err: err}
}

// Unsupported marks an operation or asset the provider does not cover.
func Unsupported(provider, op string) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: FailureUnsupported}
}

func failureKind(err error) (FailureKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// IsRateLimited reports whether err is a rate-limit outcome.
func IsRateLimited(err error) bool {
	k, ok := failureKind(err)
	return ok && k == FailureRateLimited
}

// IsTransient reports whether err is a transient outcome.
func IsTransient(err error) bool {
	k, ok := failureKind(err)
	return ok && k == FailureTransient
}

// IsPermanent reports whether err is a permanent outcome.
func IsPermanent(err error) bool {
	k, ok := failureKind(err)
	return ok && k == FailurePermanent
}

// IsUnsupported reports whether err is an unsupported outcome.
func IsUnsupported(err error) bool {
	k, ok := failureKind(err)
	return ok && k == FailureUnsupported
}

// RetryAfterHint extracts the provider's reset hint, or zero.
func RetryAfterHint(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// DataKind names a routed capability, used in cache keys and
// unavailability reports.
type DataKind string

const (
	KindUniverse    DataKind = "universe"
	KindOHLCV       DataKind = "ohlcv"
	KindQuote       DataKind = "quote"
	KindDerivatives DataKind = "derivatives"
	KindOptions     DataKind = "options"
	KindOnChain     DataKind = "onchain"
	KindSentiment   DataKind = "sentiment"
)

// UnavailableError reports that every configured provider failed to
// serve a kind of data for a symbol. Callers treat the feature as
// absent rather than zero-valued.
type UnavailableError struct {
	Kind   DataKind
	Symbol string
	Last   error // last provider failure, for logs
}

func (e *UnavailableError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s unavailable from all providers", e.Kind)
	}
	return fmt.Sprintf("%s %s unavailable from all providers", e.Symbol, e.Kind)
}

func (e *UnavailableError) Unwrap() error {
	return e.Last
}

// IsUnavailable reports whether err means no provider could serve the
// request.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

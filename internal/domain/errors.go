package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups that matched nothing.
var ErrNotFound = errors.New("not found")

// ValidationError reports missing or invalid required input. It is raised
// before any network call, so no cost is ever incurred for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ConfigurationError reports that credentials or other provider configuration
// could not be acquired. Adapters mostly hide this case behind the simulated
// fallback; it surfaces only when a half-configured provider fails mid-flight
// (e.g. the token endpoint rejects the configured secret).
type ConfigurationError struct {
	Provider string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Provider, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransformError reports that an input image could not be fetched or decoded,
// or that a provider's success response contained no recognizable image.
type TransformError struct {
	Stage string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform: %s: %v", e.Stage, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// ProviderInvocationError reports a non-2xx answer from a remote capability.
// RateLimited marks HTTP 429 / quota exhaustion; such calls are never retried
// automatically, the caller has to wait and resubmit.
type ProviderInvocationError struct {
	Provider    string
	Status      int
	RateLimited bool
	Detail      string
}

func (e *ProviderInvocationError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("provider %s: rate limited (status %d)", e.Provider, e.Status)
	}
	return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.Status, e.Detail)
}

// PostProcessingError reports a per-image watermark failure. It degrades the
// affected image to its pre-watermark URL and never fails the job.
type PostProcessingError struct {
	ImageURL string
	Err      error
}

func (e *PostProcessingError) Error() string {
	return fmt.Sprintf("postprocessing: %s: %v", e.ImageURL, e.Err)
}

func (e *PostProcessingError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a rate-limited provider invocation.
func IsRateLimited(err error) bool {
	var pe *ProviderInvocationError
	return errors.As(err, &pe) && pe.RateLimited
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

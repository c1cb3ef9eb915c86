package tally

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput  = errors.New("tally: invalid input")
	ErrNotConfigured = errors.New("tally: not configured")

	// Webhook errors. Both are terminal for a delivery: the provider is
	// answered with a client error and should not retry.
	ErrVerification   = errors.New("tally: webhook verification failed")
	ErrMalformedEvent = errors.New("tally: malformed event")

	// Account errors
	ErrAccountNotFound = errors.New("tally: account not found")

	// Transaction errors
	ErrTransactionNotFound  = errors.New("tally: transaction not found")
	ErrDuplicateTransaction = errors.New("tally: duplicate transaction reference")

	// Provider errors. Lookup failures are transient from the processor's
	// point of view and surface as retryable server errors.
	ErrProviderLookup      = errors.New("tally: provider lookup failed")
	ErrProviderNotFound    = errors.New("tally: provider resource not found")
	ErrProviderAuth        = errors.New("tally: provider authentication failed")
	ErrProviderRateLimited = errors.New("tally: provider rate limited")

	// Store errors
	ErrStore           = errors.New("tally: store operation failed")
	ErrStoreNotReady   = errors.New("tally: store not ready")
	ErrStoreClosed     = errors.New("tally: store is closed")
	ErrMigrationFailed = errors.New("tally: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tally: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tally: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrProviderNotFound)
}

// IsClientError returns true for failures caused by the delivery itself.
// The provider receives a 400 and is expected not to retry.
func IsClientError(err error) bool {
	var verr ValidationError
	return errors.Is(err, ErrVerification) ||
		errors.Is(err, ErrMalformedEvent) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.As(err, &verr)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried. The webhook surface answers these with a 500 so the provider
// redelivers the event later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStore) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrProviderLookup) ||
		errors.Is(err, ErrProviderRateLimited)
}

package errors

import (
	"errors"
	"fmt"
	"time"
)

// The engine never leaks a collaborator-specific error across its boundary.
// Every failure is translated into one of the kinds below before it reaches a
// caller.  All kinds implement `error` and are matchable with errors.As.

/*
ValidationError reports malformed input: an empty or unknown parent id, a
blank message, a nonsensical budget.
*/
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

/*
NotFoundError reports a lookup miss for a document in a collection.
*/
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Collection, e.ID)
}

/*
StorageError wraps a durable-store failure.  Storage failures are fatal and
propagated unchanged to the caller.
*/
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

/*
EmbeddingUnavailableError reports that the generation/embedding collaborator
is down or timed out.  Search degrades to keyword-only; this is never
surfaced as a failure of search itself.
*/
type EmbeddingUnavailableError struct {
	Err error
}

func (e *EmbeddingUnavailableError) Error() string {
	return fmt.Sprintf("embedding unavailable: %v", e.Err)
}

func (e *EmbeddingUnavailableError) Unwrap() error { return e.Err }

/*
CompressionBudgetError reports that a token budget cannot be met without
dropping a protected entity.  The best-effort content and its achieved token
count travel with the error so callers still get a usable result.
*/
type CompressionBudgetError struct {
	Content        string
	AchievedTokens int
	TargetTokens   int
	DroppedEntity  string
}

func (e *CompressionBudgetError) Error() string {
	return fmt.Sprintf(
		"compression budget: %d tokens achieved against target %d, entity %q at risk",
		e.AchievedTokens, e.TargetTokens, e.DroppedEntity,
	)
}

/*
TimeoutError reports a collaborator call that exceeded its deadline with no
fallback result available.
*/
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsEmbeddingUnavailable reports whether err is (or wraps) an
// EmbeddingUnavailableError.
func IsEmbeddingUnavailable(err error) bool {
	var eu *EmbeddingUnavailableError
	return errors.As(err, &eu)
}

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2.0,
	}
}

// RetryWithBackoff executes a function with exponential backoff retry logic.
func RetryWithBackoff(config *RetryConfig, fn func() error) error {
	var err error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.BackoffFactor)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts, last error: %w", config.MaxAttempts, err)
}

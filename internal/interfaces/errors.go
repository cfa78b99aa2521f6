package interfaces

import "errors"

// Collaborator failure classes. Wrap with fmt.Errorf("...: %w", ...) and
// test with errors.Is at the worker that decides retry vs terminal.
var (
	// ErrPermanent marks failures that are pointless to retry: unsupported
	// symbol, malformed report, authentication failure.
	ErrPermanent = errors.New("permanent failure")

	// ErrThrottled marks provider-side throttling. Retryable, but against
	// the longer consultation backoff ceiling.
	ErrThrottled = errors.New("provider throttled")
)

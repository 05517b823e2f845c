package chat

import "errors"

var (
	// ErrGenerationInFlight refuses submit/fork/edit (and transcript reloads)
	// while a generation is streaming for the session.
	ErrGenerationInFlight = errors.New("chat: generation in flight")

	// ErrValidation rejects a malformed request synchronously, e.g. editing a
	// message the branch does not own.
	ErrValidation = errors.New("chat: invalid request")

	// ErrStreamFailed marks a transient generation-stream failure. It is
	// surfaced as a recoverable state; the caller resubmits, nothing retries
	// automatically.
	ErrStreamFailed = errors.New("chat: generation stream failed")
)

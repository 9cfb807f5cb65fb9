package api

import "errors"

// Precondition errors. These are caller errors: the requested transition is
// not valid for the workflow's current status.
var (
	ErrWorkflowNotInitialized = errors.New("workflow not initialized")
	ErrAlreadyInProgress      = errors.New("workflow already in progress")
	ErrAlreadyCompleted       = errors.New("workflow already completed")
	ErrAlreadyCancelled       = errors.New("workflow already cancelled")
	ErrNotInProgress          = errors.New("workflow not in progress")
	ErrNotPaused              = errors.New("workflow not paused")
	ErrNoRecipients           = errors.New("envelope has no recipients")
)

// ErrInconsistentRoutingState is returned when an invariant check fails, for
// example when the current routing order matches no step. It indicates a bug
// or corrupted data and is never recovered silently.
var ErrInconsistentRoutingState = errors.New("inconsistent routing state")

// Collaborator lookup errors.
var (
	ErrEnvelopeNotFound  = errors.New("envelope not found")
	ErrRecipientNotFound = errors.New("recipient not found")
)

var preconditionErrors = []error{
	ErrWorkflowNotInitialized,
	ErrAlreadyInProgress,
	ErrAlreadyCompleted,
	ErrAlreadyCancelled,
	ErrNotInProgress,
	ErrNotPaused,
	ErrNoRecipients,
}

// IsPreconditionError reports whether err is a caller error as opposed to a
// system failure.
func IsPreconditionError(err error) bool {
	for _, target := range preconditionErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

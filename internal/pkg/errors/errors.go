package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIndexing marks a failed document indexing run. The previously
	// persisted collection for that source is left untouched.
	ErrIndexing = errors.New("indexing failed")
	// ErrConversationNotFound is returned when an append or history read
	// targets a conversation id that was never created.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrDuplicateCourse is returned when registering an already known course id.
	ErrDuplicateCourse = errors.New("course already registered")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
)

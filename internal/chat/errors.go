package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired is returned before any remote call when no viewer is signed in.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrNoOpenConversation is returned by operations that act on the open thread.
	ErrNoOpenConversation = errors.New("no conversation is open")
)

// ValidationError is a local pre-flight failure. It never reaches the remote store.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RemoteOperationError wraps any failure returned by, or raised during, a remote call.
type RemoteOperationError struct {
	Op  string
	Err error
}

func (e *RemoteOperationError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteOperationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRemote reports whether err is, or wraps, a *RemoteOperationError.
func IsRemote(err error) bool {
	var re *RemoteOperationError
	return errors.As(err, &re)
}

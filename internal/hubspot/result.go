package hubspot

import (
	"errors"

	"github.com/lumenweb/contactsync/internal/domain"
)

// ErrContactNotFound is reported when an operation needs an existing remote
// contact and the email lookup comes back empty.
var ErrContactNotFound = errors.New("contact not found")

// Result is the discriminated outcome of a directory operation. Exactly one
// of RemoteID or Err is meaningful, selected by OK. Client methods never
// return raw errors past their boundary; they return a Result.
type Result struct {
	OK        bool
	RemoteID  string
	Err       string
	Operation domain.SyncOperation
}

// Ok builds a success result.
func Ok(remoteID string) Result {
	return Result{OK: true, RemoteID: remoteID}
}

// WithOperation tags the result with the remote operation that produced it,
// so the audit log can distinguish creates from updates.
func (r Result) WithOperation(op domain.SyncOperation) Result {
	r.Operation = op
	return r
}

// Fail builds a failure result from an error.
func Fail(err error) Result {
	if err == nil {
		return Result{OK: false, Err: "unknown error"}
	}
	return Result{OK: false, Err: err.Error()}
}

// NotFound reports whether the failure was a missing-contact lookup.
func (r Result) NotFound() bool {
	return !r.OK && r.Err == ErrContactNotFound.Error()
}

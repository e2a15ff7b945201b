package hubsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/hubsync_backend/models"
)

// ErrorKind classifies every failure the sync core surfaces.
type ErrorKind string

const (
	KindRemoteRejection   ErrorKind = "remote_rejection"
	KindProtocolViolation ErrorKind = "protocol_violation"
	KindValidation        ErrorKind = "validation_error"
	KindMissingParameter  ErrorKind = "missing_parameter"
	KindTransport         ErrorKind = "transport_error"
)

// SyncError is the single error type returned by the sync core.
type SyncError struct {
	Kind        ErrorKind
	Op          string
	EntityKey   string
	Message     string
	BrokenRules []models.BrokenRule
	Err         error
}

func (e *SyncError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}
	if e.EntityKey != "" {
		b.WriteString(" ")
		b.WriteString(e.EntityKey)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	for _, r := range e.BrokenRules {
		fmt.Fprintf(&b, "; %s(%s): %s", r.BrokenRuleCode, r.EntityUniqueKey, r.Message)
	}
	return b.String()
}

func (e *SyncError) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or "" when err is nil or not a SyncError.
func KindOf(err error) ErrorKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func validationError(op string, entityKey string, format string, args ...any) *SyncError {
	return &SyncError{Kind: KindValidation, Op: op, EntityKey: entityKey, Message: fmt.Sprintf(format, args...)}
}

func missingParameter(change models.PendingChange, key string) *SyncError {
	return &SyncError{
		Kind:      KindMissingParameter,
		Op:        string(change.ChangeType),
		EntityKey: change.ChangeID,
		Message:   fmt.Sprintf("parameter %q is required", key),
	}
}

// transportError classifies err coming back from the transport. Errors that are
// already SyncErrors keep their kind.
func transportError(op string, entityKey string, err error) error {
	if err == nil {
		return nil
	}
	var se *SyncError
	if errors.As(err, &se) {
		return err
	}
	return &SyncError{Kind: KindTransport, Op: op, EntityKey: entityKey, Err: err}
}

// canceled reports a context that is done as a transport failure wrapping ctx.Err().
func canceled(ctx context.Context, op string, entityKey string) error {
	if err := ctx.Err(); err != nil {
		return &SyncError{Kind: KindTransport, Op: op, EntityKey: entityKey, Message: "canceled", Err: err}
	}
	return nil
}

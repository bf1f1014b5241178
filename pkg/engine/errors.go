package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an engine error for programmatic handling.
type ErrorKind string

const (
	// KindScan indicates an unreadable mount root. Fatal to the mount.
	KindScan ErrorKind = "scan"

	// KindExportCollision indicates two units produced the same namespace
	// key. Fatal, never silently resolved.
	KindExportCollision ErrorKind = "export_collision"

	// KindCyclicImport indicates a dependency cycle between units. Fatal
	// for that unit's load; sibling subtrees are unaffected.
	KindCyclicImport ErrorKind = "cyclic_import"

	// KindAccessDenied indicates a config-store boundary violation.
	// Recoverable by the caller.
	KindAccessDenied ErrorKind = "access_denied"

	// KindKeyNotFound indicates a missing key with no default supplied.
	// Recoverable by the caller.
	KindKeyNotFound ErrorKind = "key_not_found"
)

// Error is a classified error with namespace/filesystem context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Path is the filesystem path involved, if applicable.
	Path string `json:"path,omitempty"`

	// Key is the namespace or config key involved, if applicable.
	Key string `json:"key,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if e.Key != "" {
		fmt.Fprintf(&b, " (key=%s)", e.Key)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithPath adds filesystem context to an error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithKey adds namespace key context to an error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// NewScanError creates a scan error for an unreadable mount root.
func NewScanError(message string, err error) *Error {
	return &Error{Kind: KindScan, Message: message, Err: err}
}

// NewExportCollisionError creates an export collision error for a
// namespace key claimed by more than one unit.
func NewExportCollisionError(key, message string) *Error {
	return &Error{Kind: KindExportCollision, Message: message, Key: key}
}

// NewCyclicImportError creates a cyclic import error naming the cycle,
// e.g. "a.star -> b.star -> a.star".
func NewCyclicImportError(cycle []string) *Error {
	return &Error{
		Kind:    KindCyclicImport,
		Message: fmt.Sprintf("import cycle detected: %s", strings.Join(cycle, " -> ")),
	}
}

// NewAccessDeniedError creates a config boundary violation error.
func NewAccessDeniedError(key, message string) *Error {
	return &Error{Kind: KindAccessDenied, Message: message, Key: key}
}

// NewKeyNotFoundError creates a missing-key error.
func NewKeyNotFoundError(key string) *Error {
	return &Error{Kind: KindKeyNotFound, Message: "key not found", Key: key}
}

// IsScan returns true if the error is classified as a scan failure.
func IsScan(err error) bool { return hasKind(err, KindScan) }

// IsExportCollision returns true if the error is an export collision.
func IsExportCollision(err error) bool { return hasKind(err, KindExportCollision) }

// IsCyclicImport returns true if the error is a cyclic import.
func IsCyclicImport(err error) bool { return hasKind(err, KindCyclicImport) }

// IsAccessDenied returns true if the error is a config boundary violation.
func IsAccessDenied(err error) bool { return hasKind(err, KindAccessDenied) }

// IsKeyNotFound returns true if the error is a missing key.
func IsKeyNotFound(err error) bool { return hasKind(err, KindKeyNotFound) }

func hasKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

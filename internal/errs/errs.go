// Package errs implements the error taxonomy of the ingestion/analysis
// pipeline: a closed set of kinds, not a zoo of sentinel types, so callers
// dispatch on Kind rather than type-switch on concrete errors.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the five error categories the pipeline distinguishes.
type Kind string

const (
	// Validation errors are caller errors: bad archive, bad URL, branch
	// absent, over-cap submission. Surfaced synchronously.
	Validation Kind = "validation"
	// Transient errors are retried by the scheduler: provider 5xx/timeouts,
	// DB connection drops, rate-limit throttling.
	Transient Kind = "transient"
	// Resource errors are fatal for the task but not the system: scratch
	// disk full, OOM while parsing one file.
	Resource Kind = "resource"
	// Semantic errors are recorded, not retried: parser failure on a file,
	// unresolved calls.
	Semantic Kind = "semantic"
	// Integrity errors are fatal for the repo: duplicate (origin_url,
	// branch), checksum mismatch mid-ingest.
	Integrity Kind = "integrity"
)

// Error is a taxonomy-tagged error. It wraps an underlying cause so
// errors.Is/errors.As keep working across the boundary.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a Kind-tagged error with no underlying cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, message string, cause error) error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Semantic for untagged
// errors (the conservative choice: don't retry, don't fail the repo,
// record and move on).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Semantic
}

var ErrRecordNotFound = errors.New("record not found")
var ErrDuplicateRepository = New(Validation, "already imported")
var ErrBranchNotFound = New(Validation, "branch not found")
var ErrArchiveTooLarge = New(Validation, "archive exceeds size cap")
var ErrUnsafeArchivePath = New(Validation, "archive contains unsafe path")
var ErrConcurrentIngest = New(Integrity, "ingest already running for repository")

func NewInvalidParamErr(name string, value any) error {
	return Wrap(Validation, "invalid request parameter", fmt.Errorf("%s=%v", name, value))
}

func NewMissingParamErr(name string) error {
	return Wrap(Validation, "missing required parameter", fmt.Errorf("%s", name))
}

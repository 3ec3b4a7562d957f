// Package direrrors implements the error taxonomy shared by every stage of the
// download pipeline: validation, transport, token expiry, integrity,
// decryption, cancellation, and fatal invariant violations. Components
// classify failures through this package so retry and abort decisions stay
// centralized instead of being re-derived from raw error strings at each
// call site.
package direrrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a download-pipeline error for retry and abort decisions.
type Kind int

const (
	// Validation marks inputs that violate a contract (bad UID shape,
	// read(0), a non-zero seekable high-water mark, a folder UID passed to
	// a file downloader, a missing content session key). Never retried.
	Validation Kind = iota
	// Transport marks network or HTTP failures. Retryable once at the
	// block level.
	Transport
	// AuthExpired marks an HTTP 404 on a block URL, meaning the block's
	// token has expired. Handled by transparent refresh plus an immediate
	// retry that does not consume the block's retry budget.
	AuthExpired
	// Integrity marks a block hash mismatch or a manifest signature
	// verification failure. Retryable once at the block level; fatal when
	// it is the manifest check that failed.
	Integrity
	// Decryption marks a cryptographic failure while decrypting a block or
	// thumbnail. Retryable once at the block level.
	Decryption
	// Cancellation marks an externally requested cancellation. Never
	// retried.
	Cancellation
	// FatalInvariant marks an internal state that should be impossible,
	// such as residual entries in the ongoing-block map after a full
	// drain. Always surfaced as a bug.
	FatalInvariant
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Transport:
		return "transport"
	case AuthExpired:
		return "auth_expired"
	case Integrity:
		return "integrity"
	case Decryption:
		return "decryption"
	case Cancellation:
		return "cancellation"
	case FatalInvariant:
		return "fatal_invariant"
	default:
		return "unknown"
	}
}

// Error is the typed error returned across the download pipeline. It carries
// a Kind for classification, a localized user-facing Message, and an
// optional Cause for unwrapping.
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

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// IntegrityError reports a block hash mismatch, carrying both hashes so
// callers can log or surface the discrepancy.
type IntegrityError struct {
	Message  string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s (expected %s, got %s)", e.Message, e.Expected, e.Actual)
}

// errorKind implements the kindClassifier interface so IntegrityError
// classifies as Integrity without being wrapped in an Error.
func (e *IntegrityError) errorKind() Kind { return Integrity }

// DecryptionError wraps a crypto failure with a localized message.
type DecryptionError struct {
	Message string
	Cause   error
}

func (e *DecryptionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decryption: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("decryption: %s", e.Message)
}

func (e *DecryptionError) Unwrap() error { return e.Cause }

func (e *DecryptionError) errorKind() Kind { return Decryption }

type kindClassifier interface {
	errorKind() Kind
}

// ClassOf returns the Kind an error was constructed with, or a best-effort
// classification for errors that never passed through this package:
// context.Canceled and context.DeadlineExceeded classify as Cancellation,
// anything else as Transport.
func ClassOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var kc kindClassifier
	if errors.As(err, &kc) {
		return kc.errorKind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancellation
	}
	return Transport
}

// IsAuthExpired reports whether err signals an expired block token.
func IsAuthExpired(err error) bool {
	return ClassOf(err) == AuthExpired
}

// IsCancellation reports whether err signals an external cancellation.
func IsCancellation(err error) bool {
	return ClassOf(err) == Cancellation
}

// Validationf builds a Validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

// Fatalf builds a FatalInvariant error with a formatted message.
func Fatalf(format string, args ...any) *Error {
	return New(FatalInvariant, fmt.Sprintf(format, args...))
}

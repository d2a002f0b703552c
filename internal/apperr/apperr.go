// Package apperr classifies request failures into stable codes that are safe
// to surface to callers.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, user-visible error identifier.
type Code string

const (
	CodeInputInvalid          Code = "input_invalid"
	CodeEmbeddingUnavailable  Code = "embedding_unavailable"
	CodeIndexUnavailable      Code = "index_unavailable"
	CodeClassifierUnavailable Code = "classifier_unavailable"
	CodeInternal              Code = "internal"
)

var (
	ErrInputInvalid          = errors.New("input invalid")
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrIndexUnavailable      = errors.New("index unavailable")
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrAmbiguityUnresolved marks classifier output that could not be used.
	// It never reaches callers: the gate turns it into an ambiguous verdict.
	ErrAmbiguityUnresolved = errors.New("ambiguity unresolved")
)

var sentinels = map[Code]error{
	CodeInputInvalid:          ErrInputInvalid,
	CodeEmbeddingUnavailable:  ErrEmbeddingUnavailable,
	CodeIndexUnavailable:      ErrIndexUnavailable,
	CodeClassifierUnavailable: ErrClassifierUnavailable,
}

var messages = map[Code]string{
	CodeInputInvalid:          "the request is invalid",
	CodeEmbeddingUnavailable:  "embedding service is unavailable, try again later",
	CodeIndexUnavailable:      "matching index is unavailable, try again later",
	CodeClassifierUnavailable: "query classifier is unavailable, try again later",
	CodeInternal:              "internal error",
}

// Error attaches a code and the failing operation to an underlying error.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the sentinel that belongs to the code.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Code]
	return ok && sentinel == target
}

// E wraps err with a code. A nil err yields nil.
func E(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// Invalid builds an input_invalid error.
func Invalid(op, format string, args ...any) error {
	return &Error{Code: CodeInputInvalid, Op: op, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the code carried by err, falling back to sentinel matching.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	for code, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeInternal
}

// Retryable reports whether the failure came from an upstream dependency.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeEmbeddingUnavailable, CodeIndexUnavailable, CodeClassifierUnavailable:
		return true
	default:
		return false
	}
}

// Public returns the code and a short message that can be shown to a caller.
// Input errors keep their detail; everything else is replaced by a fixed text.
func Public(err error) (Code, string) {
	code := CodeOf(err)
	if code == CodeInputInvalid {
		var appErr *Error
		if errors.As(err, &appErr) && appErr.Err != nil {
			return code, appErr.Err.Error()
		}
	}
	return code, messages[code]
}

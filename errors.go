package bashkit

import (
	"errors"
	"fmt"

	"github.com/everruns/bashkit-sub001/internal/limits"
	"github.com/everruns/bashkit-sub001/internal/syntax"
)

// ErrorKind discriminates the Error variants named in spec.md §6.
type ErrorKind int

const (
	ErrParse ErrorKind = iota
	ErrLimit
	ErrFilesystem
	ErrNetwork
	ErrInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrParse:
		return "Parse"
	case ErrLimit:
		return "Limit"
	case ErrFilesystem:
		return "Filesystem"
	case ErrNetwork:
		return "Network"
	case ErrInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the single error type exec returns, wrapping whatever the
// evaluator, parser, or filesystem actually produced so callers can both
// switch on Kind and unwrap to the underlying cause.
type Error struct {
	Kind ErrorKind
	Msg  string
	// Pos is the byte offset of a Parse error, -1 otherwise.
	Pos int
	Err error
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("bashkit: %s: %s (at byte %d)", e.Kind, e.Msg, e.Pos)
	}
	return fmt.Sprintf("bashkit: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// classifyError maps an error surfaced from the parser or evaluator onto
// the spec.md §6 Error taxonomy, preserving the original error via Unwrap.
func classifyError(err error) *Error {
	if err == nil {
		return nil
	}
	var bke *Error
	if errors.As(err, &bke) {
		return bke
	}
	var perr *syntax.ParseError
	if errors.As(err, &perr) {
		return &Error{Kind: ErrParse, Msg: perr.Msg, Pos: perr.Pos, Err: err}
	}
	var lerr *limits.Exceeded
	if errors.As(err, &lerr) {
		return &Error{Kind: ErrLimit, Msg: err.Error(), Pos: -1, Err: err}
	}
	return &Error{Kind: ErrInternal, Msg: err.Error(), Pos: -1, Err: err}
}

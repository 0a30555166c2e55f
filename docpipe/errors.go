package docpipe

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrUnsupported   = errors.New("unsupported file type")
	ErrParse         = errors.New("parse failure")
	ErrEngineMissing = errors.New("ocr engine missing")
	ErrIO            = errors.New("io failure")
)

// Error is returned by Pipeline.Extract for every extraction failure.
type Error struct {
	Kind   error
	Format Format
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %v", e.Format, e.Kind)
	}
	return fmt.Sprintf("extract %s: %v", e.Format, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a short stable label for the kind of err, or "" when err
// is not an extraction error.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrUnsupported):
		return "unsupported_type"
	case errors.Is(err, ErrEngineMissing):
		return "engine_missing"
	case errors.Is(err, ErrIO):
		return "io_failure"
	case errors.Is(err, ErrParse):
		return "parse_failure"
	default:
		return ""
	}
}

func parseErr(err error) error  { return &kindErr{kind: ErrParse, err: err} }
func ioErr(err error) error     { return &kindErr{kind: ErrIO, err: err} }
func engineErr(err error) error { return &kindErr{kind: ErrEngineMissing, err: err} }

// kindErr tags an extractor error with its kind before the dispatcher wraps
// it into an *Error.
type kindErr struct {
	kind error
	err  error
}

func (k *kindErr) Error() string { return k.err.Error() }
func (k *kindErr) Unwrap() error { return k.err }

package gridfloat

import (
	"errors"
	"fmt"
)

// Kind classifies a tile error.
type Kind int

const (
	// KindNoData means there was not enough valid data to answer a query.
	// Callers usually substitute a sentinel and carry on.
	KindNoData Kind = iota + 1
	// KindMalformedHeader means the .hdr file could not be understood.
	KindMalformedHeader
	// KindFloatSize means float32 is not four bytes on this platform.
	KindFloatSize
	// KindMissingFile means the header or data file does not exist.
	KindMissingFile
	// KindTruncatedData means the .flt file is shorter than the header says.
	KindTruncatedData
)

func (k Kind) String() string {
	switch k {
	case KindNoData:
		return "nodata"
	case KindMalformedHeader:
		return "malformed header"
	case KindFloatSize:
		return "float size"
	case KindMissingFile:
		return "missing file"
	case KindTruncatedData:
		return "truncated data"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by every tile operation that can fail.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gridfloat: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("gridfloat: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, ErrNoData) matches any NODATA error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNoData          = &Error{Kind: KindNoData}
	ErrMalformedHeader = &Error{Kind: KindMalformedHeader}
	ErrMissingFile     = &Error{Kind: KindMissingFile}
	ErrTruncatedData   = &Error{Kind: KindTruncatedData}
)

// IsNoData reports whether err is a recoverable NODATA error.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

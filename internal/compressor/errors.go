package compressor

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrDecode            = errors.New("decode failed")
	ErrEncode            = errors.New("encode failed")
	ErrNoDestination     = errors.New("no destination")
	ErrWrite             = errors.New("write failed")
	ErrCancelled         = errors.New("cancelled")
	ErrTooLarge          = errors.New("input too large")

	// ErrInvalidSettings is the only batch-fatal error.
	ErrInvalidSettings = errors.New("invalid compression settings")
)

// ErrorKind names the cause of an item failure in results and reports.
type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindDecode            ErrorKind = "decode_error"
	KindEncode            ErrorKind = "encode_error"
	KindNoDestination     ErrorKind = "no_destination"
	KindWrite             ErrorKind = "write_error"
	KindCancelled         ErrorKind = "cancelled"
	KindTooLarge          ErrorKind = "too_large"
)

var kindSentinels = map[ErrorKind]error{
	KindUnsupportedFormat: ErrUnsupportedFormat,
	KindDecode:            ErrDecode,
	KindEncode:            ErrEncode,
	KindNoDestination:     ErrNoDestination,
	KindWrite:             ErrWrite,
	KindCancelled:         ErrCancelled,
	KindTooLarge:          ErrTooLarge,
}

// ItemError is an item-scoped failure. It never aborts a batch.
type ItemError struct {
	Kind ErrorKind
	Name string
	Err  error
}

func newItemError(kind ErrorKind, name string, err error) *ItemError {
	return &ItemError{Kind: kind, Name: name, Err: err}
}

func (e *ItemError) Error() string {
	sentinel := kindSentinels[e.Kind]
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Name, sentinel)
	case errors.Is(e.Err, sentinel):
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Name, sentinel, e.Err)
	}
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the error kind.
func (e *ItemError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of an item error, or an empty kind.
func KindOf(err error) ErrorKind {
	var itemErr *ItemError
	if errors.As(err, &itemErr) {
		return itemErr.Kind
	}
	return ""
}

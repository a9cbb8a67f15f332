package relay

import (
	"context"
	"errors"
)

var (
	ErrEmptyMessage       = errors.New("no message provided")
	ErrObjectNotFound     = errors.New("object not found")
	ErrMissingName        = errors.New("object must include a name and a container")
	ErrInvalidNamePattern = errors.New("invalid object name")
	ErrContentTypeNotSet  = errors.New("missing content type")
	ErrChatNotConfigured  = errors.New("chat completion is not configured")
	ErrNoChoices          = errors.New("chat completion returned no choices")
	ErrInvalidID          = errors.New("invalid object id")
)

// Kind discriminates failures so callers (and HTTP clients) can tell
// them apart.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindTransient
	KindNotFound
	KindDownload
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindDownload:
		return "download"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a failure tagged with its Kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err into an *Error. A nil err stays nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
// Context cancellation is reported as KindTransient.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

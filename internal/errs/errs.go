// Package errs defines the error kinds shared by the query, filter and
// download stages.
//
// Every error produced by a stage is wrapped in an *Error carrying its Kind,
// so the command layer can decide between aborting the run (config, auth,
// filter, first-page query failures) and recording an isolated failure.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindAuth
	KindQuery
	KindNetwork
	KindFilter
	KindDownload
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAuth:
		return "auth"
	case KindQuery:
		return "query"
	case KindNetwork:
		return "network"
	case KindFilter:
		return "filter"
	case KindDownload:
		return "download"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Retryable is only meaningful for network
// errors: it separates transient transport failures from permanent ones.
type Error struct {
	Kind      Kind
	Op        string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, errs.Query)
// works against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	Config   = &Error{Kind: KindConfig}
	Auth     = &Error{Kind: KindAuth}
	Query    = &Error{Kind: KindQuery}
	Network  = &Error{Kind: KindNetwork}
	Filter   = &Error{Kind: KindFilter}
	Download = &Error{Kind: KindDownload}
)

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Configf(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

func Queryf(op, format string, args ...any) *Error {
	return &Error{Kind: KindQuery, Op: op, Err: fmt.Errorf(format, args...)}
}

// Transient wraps err as a retryable network error.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err, Retryable: true}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient network error.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindNetwork && e.Retryable
}

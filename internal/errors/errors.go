package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Kind classifies a domain failure. The transport maps each kind to a
// stable status code; callers match on kind, never on message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPermission
	KindNotFound
	KindState
	KindPrecondition
	KindRate
)

func (k Kind) prefix() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindPermission:
		return "PermissionError"
	case KindNotFound:
		return "NotFoundError"
	case KindState:
		return "StateError"
	case KindPrecondition:
		return "PreconditionError"
	case KindRate:
		return "RateError"
	default:
		return "Error"
	}
}

// Error is the typed failure returned by every service operation.
type Error struct {
	Kind Kind
	Msg  string
	// Codes is only set for precondition failures: sorted, de-duplicated,
	// machine-readable reasons (e.g. MISSING_GENDER).
	Codes []string
}

func (e *Error) Error() string {
	return e.Kind.prefix() + ": " + e.Msg
}

func newf(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error { return newf(KindValidation, format, args...) }
func Permission(format string, args ...any) error { return newf(KindPermission, format, args...) }
func NotFound(format string, args ...any) error   { return newf(KindNotFound, format, args...) }
func State(format string, args ...any) error      { return newf(KindState, format, args...) }
func Rate(format string, args ...any) error       { return newf(KindRate, format, args...) }

// Precondition builds a precondition failure carrying every violated code.
func Precondition(msg string, codes ...string) error {
	return WithCodes(KindPrecondition, msg, codes...)
}

// WithCodes builds an error of kind k carrying machine-readable codes.
func WithCodes(k Kind, msg string, codes ...string) error {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return &Error{Kind: k, Msg: msg, Codes: out}
}

// KindOf reports the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodesOf returns the precondition codes attached to err, if any.
func CodesOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Codes
	}
	return nil
}

// Is reports whether err is a domain error of kind k.
func Is(err error, k Kind) bool { return KindOf(err) == k }

package message

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failure carried by a Response.
type ErrorKind string

const (
	// KindNotLoggedOn: an authenticated-only request arrived before Logon.
	KindNotLoggedOn ErrorKind = "NotLoggedOn"

	// KindInvalidCredentials: the authenticator rejected a Logon.
	KindInvalidCredentials ErrorKind = "InvalidCredentials"

	// KindUnknownRequest: the request variant is not recognized.
	KindUnknownRequest ErrorKind = "UnknownRequest"

	// KindTargetNotFound: the named object is not registered.
	KindTargetNotFound ErrorKind = "TargetNotFound"

	// KindListenerNotFound: the listener is not subscribed on the target.
	KindListenerNotFound ErrorKind = "ListenerNotFound"

	// KindInvocationFailure: the invoked operation failed.
	KindInvocationFailure ErrorKind = "InvocationFailure"

	// KindMemberNotFound: the member/signature does not resolve.
	KindMemberNotFound ErrorKind = "MemberNotFound"
)

// Error is the opaque error descriptor carried inside a Response.
//
// Only the kind, the type name of the original failure and its message
// cross the wire; call stacks and cause chains are not preserved.
type Error struct {
	Kind    ErrorKind
	Type    string
	Message string
}

// NewError creates an error descriptor of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Type: string(kind), Message: fmt.Sprintf(format, args...)}
}

// WrapError describes cause as an error of the given kind, keeping the
// dynamic type name and message of cause.
func WrapError(kind ErrorKind, cause error) *Error {
	if cause == nil {
		return &Error{Kind: kind, Type: string(kind)}
	}

	var descriptor *Error
	if errors.As(cause, &descriptor) {
		return descriptor
	}

	return &Error{Kind: kind, Type: fmt.Sprintf("%T", cause), Message: cause.Error()}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, message.ErrNotLoggedOn) works on decoded responses.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotLoggedOn        = &Error{Kind: KindNotLoggedOn}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrUnknownRequest     = &Error{Kind: KindUnknownRequest}
	ErrTargetNotFound     = &Error{Kind: KindTargetNotFound}
	ErrListenerNotFound   = &Error{Kind: KindListenerNotFound}
	ErrInvocationFailure  = &Error{Kind: KindInvocationFailure}
	ErrMemberNotFound     = &Error{Kind: KindMemberNotFound}
)

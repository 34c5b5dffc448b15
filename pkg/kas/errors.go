package kas

import (
	"errors"
	"strconv"
	"strings"
)

// Kind classifies a KAS failure.
type Kind int

const (
	// KindDenied is a policy, entitlement or authorization rejection. Terminal.
	KindDenied Kind = iota + 1
	// KindTransient is a network error, timeout or 5xx. Retryable.
	KindTransient
	// KindCanceled means the caller's context ended first.
	KindCanceled
	// KindInvalidResponse is a 200 response that could not be used. Terminal.
	KindInvalidResponse
	// KindUnauthenticated means no bearer token could be obtained. Terminal.
	KindUnauthenticated
)

// Sentinels matched by errors.Is against *Error.
var (
	ErrDenied          = errors.New("kas: access denied")
	ErrTransient       = errors.New("kas: transient failure")
	ErrCanceled        = errors.New("kas: request canceled")
	ErrInvalidResponse = errors.New("kas: invalid response")
	ErrUnauthenticated = errors.New("kas: no access token")
)

// Codes carried in the error body of the rewrap endpoint.
const (
	CodePolicyBindingMismatch = "policy_binding_mismatch"
	CodeAccessDenied          = "access_denied"
	CodeUnauthenticated       = "unauthenticated"
	CodeInvalidRequest        = "invalid_request"
	CodeInvalidHeader         = "invalid_header"
	CodeInternal              = "internal"
)

func (k Kind) sentinel() error {
	switch k {
	case KindDenied:
		return ErrDenied
	case KindTransient:
		return ErrTransient
	case KindCanceled:
		return ErrCanceled
	case KindInvalidResponse:
		return ErrInvalidResponse
	case KindUnauthenticated:
		return ErrUnauthenticated
	default:
		return nil
	}
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return strings.TrimPrefix(s.Error(), "kas: ")
	}
	return "unknown"
}

// Retryable reports whether a failure of this kind may be retried.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// ErrorBody is the JSON error document returned by a KAS.
type ErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error is a classified KAS failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Code       string
	Message    string
	URL        string
	cause      error
}

func newError(kind Kind, url string, cause error) *Error {
	return &Error{Kind: kind, URL: url, cause: cause}
}

func (e *Error) Error() string {
	var msg strings.Builder
	msg.WriteString("kas: ")
	msg.WriteString(e.Kind.String())
	if e.URL != "" {
		msg.WriteString(" url=")
		msg.WriteString(e.URL)
	}
	if e.StatusCode != 0 {
		msg.WriteString(" status=")
		msg.WriteString(strconv.Itoa(e.StatusCode))
	}
	if e.Code != "" {
		msg.WriteString(" code=")
		msg.WriteString(e.Code)
	}
	if e.Message != "" {
		msg.WriteString(" message=")
		msg.WriteString(e.Message)
	}
	if e.cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.cause.Error())
	}
	return msg.String()
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// classifyStatus maps a non-200 status to a kind.
func classifyStatus(code int) Kind {
	switch {
	case code == 408, code == 429, code >= 500:
		return KindTransient
	default:
		return KindDenied
	}
}

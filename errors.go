package ferresdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// ErrorKind discriminates the closed set of failures returned by this package.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindAlreadyExists    ErrorKind = "already_exists"
	KindInvalidDimension ErrorKind = "invalid_dimension"
	KindInvalidPayload   ErrorKind = "invalid_payload"
	KindInternal         ErrorKind = "internal"
	KindBudgetExceeded   ErrorKind = "budget_exceeded"
	KindConnection       ErrorKind = "connection"
	KindUnknown          ErrorKind = "unknown"
)

// Sentinel errors for kind matching with errors.Is.
//
//	if errors.Is(err, ferresdb.ErrNotFound) {
//	    // collection, point, job or key is missing
//	}
var (
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists, Message: "resource already exists"}
	ErrInvalidDimension = &Error{Kind: KindInvalidDimension, Message: "invalid vector dimension"}
	ErrInvalidPayload   = &Error{Kind: KindInvalidPayload, Message: "invalid payload"}
	ErrInternal         = &Error{Kind: KindInternal, Message: "internal server error"}
	ErrBudgetExceeded   = &Error{Kind: KindBudgetExceeded, Message: "latency budget exceeded"}
	ErrConnection       = &Error{Kind: KindConnection, Message: "connection failed"}
	ErrUnknown          = &Error{Kind: KindUnknown, Message: "unknown error"}
)

// Programmer errors. These are reported synchronously and never cross the wire.
var (
	// ErrInvalidConfig indicates a Config that fails Validate.
	ErrInvalidConfig = errors.New("ferresdb: invalid config")

	// ErrNotConnected is returned by session data operations while disconnected.
	ErrNotConnected = errors.New("ferresdb: session not connected")

	// ErrAlreadyConnected is returned by Connect when a connection exists or is being established.
	ErrAlreadyConnected = errors.New("ferresdb: session already connected or connecting")

	// ErrCallPending is returned when a correlated call is issued while another of the
	// same kind is still awaiting its response.
	ErrCallPending = errors.New("ferresdb: correlated call already pending")

	// ErrSessionClosed is delivered to pending correlated calls when the session is closed.
	ErrSessionClosed = errors.New("ferresdb: session closed")
)

// Error is the single error type for server-reported and transport failures.
// Inspect Kind to decide how to react; Resource and Estimate are only set for
// the kinds that carry them.
type Error struct {
	// Kind is the taxonomy discriminator.
	Kind ErrorKind

	// StatusCode is the HTTP status (or the code of a streaming error frame). Zero when
	// no response was received.
	StatusCode int

	// Code is the wire error identifier as sent by the server, if any.
	Code string

	// Message is the human-readable message.
	Message string

	// Resource is the resource name parsed from not_found and already_exists messages.
	Resource string

	// Estimate is the server's cost estimate for budget_exceeded errors.
	Estimate *CostEstimate

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("ferresdb: ")
	b.WriteString(string(e.Kind))
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the transport may retry after this error.
func (e *Error) Retryable() bool {
	if e.Kind == KindConnection {
		return true
	}
	return e.StatusCode >= 500
}

// wireKinds maps server error identifiers to kinds.
var wireKinds = map[string]ErrorKind{
	"not_found":                 KindNotFound,
	"collection_not_found":      KindNotFound,
	"point_not_found":           KindNotFound,
	"job_not_found":             KindNotFound,
	"key_not_found":             KindNotFound,
	"already_exists":            KindAlreadyExists,
	"collection_already_exists": KindAlreadyExists,
	"reindex_in_progress":       KindAlreadyExists,
	"invalid_dimension":         KindInvalidDimension,
	"dimension_mismatch":        KindInvalidDimension,
	"invalid_payload":           KindInvalidPayload,
	"invalid_request":           KindInvalidPayload,
	"validation_error":          KindInvalidPayload,
	"internal":                  KindInternal,
	"internal_error":            KindInternal,
	"budget_exceeded":           KindBudgetExceeded,
}

// resourcePattern extracts the name from messages like "collection 'docs' not found".
var resourcePattern = regexp.MustCompile(`'([^']+)'`)

// NewError maps a wire error identifier, message, status code and optional extra
// context object to a typed error. Unrecognized identifiers produce KindUnknown with
// the message and status preserved. The function has no side effects.
func NewError(code, message string, statusCode int, extra json.RawMessage) *Error {
	kind, ok := wireKinds[code]
	if !ok {
		kind = KindUnknown
	}

	e := &Error{
		Kind:       kind,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}

	switch kind {
	case KindNotFound, KindAlreadyExists:
		// Best effort: a message without a quoted name keeps the plain form.
		if m := resourcePattern.FindStringSubmatch(message); m != nil {
			e.Resource = m[1]
		}
	case KindBudgetExceeded:
		if len(extra) > 0 {
			var ctx struct {
				Estimate *CostEstimate `json:"estimate"`
			}
			if err := json.Unmarshal(extra, &ctx); err == nil {
				e.Estimate = ctx.Estimate
			}
		}
	}

	return e
}

// errorBody is the JSON shape of a failed response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// errorFromResponse builds a typed error from a non-2xx response.
// Bodies that are not the documented error shape fall back to the status code.
func errorFromResponse(statusCode int, body []byte) *Error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return NewError(eb.Error, eb.Message, statusCode, body)
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &Error{
		Kind:       kindFromStatus(statusCode),
		StatusCode: statusCode,
		Message:    message,
	}
}

// kindFromStatus maps HTTP status codes to kinds when the body carries no identifier.
func kindFromStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode == http.StatusConflict:
		return KindAlreadyExists
	case statusCode == http.StatusBadRequest, statusCode == http.StatusUnprocessableEntity:
		return KindInvalidPayload
	case statusCode >= 500:
		return KindInternal
	default:
		return KindUnknown
	}
}

// invalidPayload builds a local pre-flight rejection.
func invalidPayload(format string, args ...any) *Error {
	return &Error{
		Kind:    KindInvalidPayload,
		Message: fmt.Sprintf(format, args...),
	}
}

// connectionError wraps a failure where no usable response was received.
func connectionError(message string, err error) *Error {
	return &Error{
		Kind:    KindConnection,
		Message: message,
		Err:     err,
	}
}

package ir

import "fmt"

// Kind enumerates the dispatcher-level error classes from the error
// handling design. ClientDisconnected is a sentinel, not a true error.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindModelNotFound     Kind = "model_not_found"
	KindUpstreamTransport Kind = "upstream_transport"
	KindUpstreamHTTP      Kind = "upstream_http"
	KindStreamFraming     Kind = "stream_framing"
	KindAdapterConversion Kind = "adapter_conversion"
	KindClientDisconnected Kind = "client_disconnected"
)

// Error is the typed error carried through the dispatcher so that it can
// be rendered in the client protocol's error shape without string
// sniffing.
type Error struct {
	Kind    Kind
	Details string
	Status  int    // set for KindUpstreamHTTP
	Body    []byte // set for KindUpstreamHTTP
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Details)
}

func (e *Error) Unwrap() error { return e.Err }

func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Details: fmt.Sprintf(format, args...)}
}

func ModelNotFound(alias string) *Error {
	return &Error{Kind: KindModelNotFound, Details: fmt.Sprintf("no model resolves alias %q", alias)}
}

func UpstreamTransport(err error) *Error {
	return &Error{Kind: KindUpstreamTransport, Details: "failed to reach upstream", Err: err}
}

func UpstreamHTTP(status int, body []byte) *Error {
	return &Error{Kind: KindUpstreamHTTP, Status: status, Body: body, Details: fmt.Sprintf("upstream returned status %d", status)}
}

func StreamFraming(format string, args ...any) *Error {
	return &Error{Kind: KindStreamFraming, Details: fmt.Sprintf(format, args...)}
}

func AdapterConversion(format string, args ...any) *Error {
	return &Error{Kind: KindAdapterConversion, Details: fmt.Sprintf(format, args...)}
}

// ErrClientDisconnected is the sentinel for a clean client-initiated
// stream termination; it must never be logged as an error.
var ErrClientDisconnected = &Error{Kind: KindClientDisconnected, Details: "client disconnected"}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}

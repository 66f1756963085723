package httpx

import (
	"errors"
	"fmt"

	"dqx0.com/go/httpframe/httpx/internal/http1"
)

var (
	ErrMissingCRLF         = http1.ErrMissingCRLF
	ErrMalformedHeader     = http1.ErrMalformedHeader
	ErrTruncatedBody       = http1.ErrTruncatedBody
	ErrLineTooLong         = http1.ErrLineTooLong
	ErrMalformedStartLine  = errors.New("httpx: malformed start line")
	ErrBodyTooLarge        = errors.New("httpx: body too large")
	ErrUnsupportedEncoding = errors.New("httpx: unsupported content encoding")
	ErrServerClosed        = errors.New("httpx: server closed")
)

// IOError is a socket failure. Op is one of "bind", "accept", "read",
// "write" or "dial".
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "httpx: " + e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// ParseError reports malformed message grammar. Status is the response
// code to send back, or 0 when the stream ended before anything could be
// answered.
type ParseError struct {
	Msg    string
	Status uint16
	Err    error
}

func newParseError(status uint16, msg string, err error) *ParseError {
	return &ParseError{Msg: msg, Status: status, Err: err}
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "httpx: parse: " + e.Msg + ": " + e.Err.Error()
	}
	return "httpx: parse: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// RequestError is a well-formed request the server refuses with Status.
// Handlers return it to pick the response code.
type RequestError struct {
	Status uint16
	Msg    string
}

// Errorf builds a RequestError with a formatted message.
func Errorf(status uint16, format string, args ...interface{}) *RequestError {
	return &RequestError{Status: status, Msg: fmt.Sprintf(format, args...)}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("httpx: request: %d %s", e.Status, e.Msg)
}

// HandlerError wraps any other failure raised while handling a request.
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string { return "httpx: handler: " + e.Err.Error() }
func (e *HandlerError) Unwrap() error { return e.Err }

// StatusFor maps an error to the status code sent to the client. 0 means
// the connection is closed without a response.
func StatusFor(err error) uint16 {
	if err == nil {
		return 200
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Status
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return 0
	}
	return 500
}

package httpx

import (
	"errors"
	"strconv"

	"dqx0.com/go/httpframe/httpx/internal/http1"
)

type Method uint8

const (
	GET Method = iota
	POST
	PUT
	DELETE
	HEAD
	OPTIONS
	CONNECT
	TRACE
)

var methodNames = [...]string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "CONNECT", "TRACE"}

func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return "Method(" + strconv.Itoa(int(m)) + ")"
}

// ParseMethod accepts only the canonical uppercase token.
func ParseMethod(s string) (Method, error) {
	for i, name := range methodNames {
		if s == name {
			return Method(i), nil
		}
	}
	return 0, newParseError(400, "invalid HTTP method "+strconv.Quote(s), ErrMalformedStartLine)
}

type Version uint8

const (
	HTTP10 Version = iota
	HTTP11
	HTTP20
	HTTP30
)

var versionNames = [...]string{"HTTP/1.0", "HTTP/1.1", "HTTP/2.0", "HTTP/3.0"}

func (v Version) String() string {
	if int(v) < len(versionNames) {
		return versionNames[v]
	}
	return "Version(" + strconv.Itoa(int(v)) + ")"
}

func ParseVersion(s string) (Version, error) {
	for i, name := range versionNames {
		if s == name {
			return Version(i), nil
		}
	}
	return 0, newParseError(400, "invalid HTTP version "+strconv.Quote(s), ErrMalformedStartLine)
}

// Status is a status code and its reason phrase.
type Status struct {
	Code   uint16
	Reason string
}

// StatusOf returns the status with its standard reason phrase.
func StatusOf(code uint16) Status {
	return Status{Code: code, Reason: http1.ReasonPhrase(int(code))}
}

// Frame is one structural unit of a message: a *RequestHead, a
// *ResponseHead or a *BodyChunk.
type Frame interface {
	frame()
}

// Head is the frame that starts a message.
type Head interface {
	Frame
	Headers() HeaderMap
	StartLine() string
}

type RequestHead struct {
	Method  Method
	URI     string
	Version Version
	Header  HeaderMap
}

type ResponseHead struct {
	Status  Status
	Version Version
	Header  HeaderMap
}

type BodyChunk struct {
	Bytes []byte
}

func (*RequestHead) frame()  {}
func (*ResponseHead) frame() {}
func (*BodyChunk) frame()    {}

func (h *RequestHead) Headers() HeaderMap {
	if h.Header == nil {
		h.Header = HeaderMap{}
	}
	return h.Header
}

func (h *RequestHead) StartLine() string {
	return h.Method.String() + " " + h.URI + " " + h.Version.String()
}

func (h *ResponseHead) Headers() HeaderMap {
	if h.Header == nil {
		h.Header = HeaderMap{}
	}
	return h.Header
}

func (h *ResponseHead) StartLine() string {
	line := h.Version.String() + " " + strconv.Itoa(int(h.Status.Code))
	if h.Status.Reason != "" {
		line += " " + h.Status.Reason
	}
	return line
}

// Message is one head frame optionally followed by one body frame.
type Message struct {
	Head Head
	Body *BodyChunk
}

// Frames returns the message as its frame sequence.
func (m *Message) Frames() []Frame {
	if m.Body == nil {
		return []Frame{m.Head}
	}
	return []Frame{m.Head, m.Body}
}

// BodyBytes returns the body, or nil when there is none.
func (m *Message) BodyBytes() []byte {
	if m == nil || m.Body == nil {
		return nil
	}
	return m.Body.Bytes
}

// Request returns the request head, if the message is a request.
func (m *Message) Request() (*RequestHead, bool) {
	rh, ok := m.Head.(*RequestHead)
	return rh, ok
}

// Response returns the response head, if the message is a response.
func (m *Message) Response() (*ResponseHead, bool) {
	rh, ok := m.Head.(*ResponseHead)
	return rh, ok
}

var errFrameSequence = errors.New("httpx: a message is one head frame and at most one body frame")

// MessageFromFrames validates a frame sequence and groups it into a Message.
func MessageFromFrames(frames []Frame) (*Message, error) {
	if len(frames) == 0 || len(frames) > 2 {
		return nil, errFrameSequence
	}
	head, ok := frames[0].(Head)
	if !ok {
		return nil, errFrameSequence
	}
	m := &Message{Head: head}
	if len(frames) == 2 {
		body, ok := frames[1].(*BodyChunk)
		if !ok || body == nil {
			return nil, errFrameSequence
		}
		m.Body = body
	}
	return m, nil
}

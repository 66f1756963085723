package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dqx0.com/go/httpframe/httpx/internal/http1"
)

const (
	defaultMaxHeaderBytes = 8 << 10
	defaultMaxBodyBytes   = 10 << 20
)

// ParseMessage reads one message (a request or a response) from r with the
// default line and body limits.
func ParseMessage(r io.Reader) (*Message, error) {
	return readMessage(http1.NewCursor(r, http1.DefaultChunkSize), defaultMaxHeaderBytes, defaultMaxBodyBytes)
}

// readMessage pulls a start line, the header block and, when
// Content-Length is positive, exactly that many body bytes.
func readMessage(src http1.ByteSource, lineLimit int, bodyLimit uint64) (*Message, error) {
	line, err := http1.ReadLine(src, lineLimit)
	if err != nil {
		return nil, headError("start line", err)
	}
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil, newParseError(400, "empty start line", ErrMalformedStartLine)
	}

	var head Head
	switch {
	case isMethodToken(tokens[0]):
		rh, err := parseRequestLine(tokens)
		if err != nil {
			return nil, err
		}
		head = rh
	case isVersionToken(tokens[0]):
		rh, err := parseStatusLine(tokens)
		if err != nil {
			return nil, err
		}
		head = rh
	default:
		return nil, newParseError(400, "unknown start line token "+strconv.Quote(tokens[0]), ErrMalformedStartLine)
	}

	hdr, err := http1.ReadHeaders(src, lineLimit)
	if err != nil {
		return nil, headError("headers", err)
	}
	switch h := head.(type) {
	case *RequestHead:
		h.Header = HeaderMap(hdr)
	case *ResponseHead:
		h.Header = HeaderMap(hdr)
	}

	m := &Message{Head: head}
	n := http1.ContentLength(hdr)
	if n == 0 {
		return m, nil
	}
	if bodyLimit > 0 && n > bodyLimit {
		return nil, newParseError(413, fmt.Sprintf("body of %d bytes exceeds %d", n, bodyLimit), ErrBodyTooLarge)
	}
	body, err := http1.ReadBody(src, n)
	if err != nil {
		return nil, newParseError(400, fmt.Sprintf("body: got %d of %d bytes", len(body), n), err)
	}
	m.Body = &BodyChunk{Bytes: body}
	return m, nil
}

func parseRequestLine(tokens []string) (*RequestHead, error) {
	if len(tokens) != 3 {
		return nil, newParseError(400, "request line needs method, URI and version", ErrMalformedStartLine)
	}
	method, err := ParseMethod(tokens[0])
	if err != nil {
		return nil, err
	}
	version, err := ParseVersion(tokens[2])
	if err != nil {
		return nil, err
	}
	return &RequestHead{Method: method, URI: tokens[1], Version: version}, nil
}

func parseStatusLine(tokens []string) (*ResponseHead, error) {
	if len(tokens) < 2 {
		return nil, newParseError(400, "status line has no status code", ErrMalformedStartLine)
	}
	version, err := ParseVersion(tokens[0])
	if err != nil {
		return nil, err
	}
	code, err := strconv.ParseUint(tokens[1], 10, 16)
	if err != nil {
		return nil, newParseError(400, "invalid status code "+strconv.Quote(tokens[1]), ErrMalformedStartLine)
	}
	return &ResponseHead{
		Status:  Status{Code: uint16(code), Reason: strings.Join(tokens[2:], " ")},
		Version: version,
	}, nil
}

func isMethodToken(s string) bool {
	_, err := ParseMethod(s)
	return err == nil
}

func isVersionToken(s string) bool {
	_, err := ParseVersion(s)
	return err == nil
}

func headError(where string, err error) *ParseError {
	switch {
	case errors.Is(err, http1.ErrLineTooLong):
		return newParseError(431, where, err)
	case errors.Is(err, http1.ErrMalformedHeader):
		return newParseError(400, where, err)
	default:
		return newParseError(0, where, err)
	}
}

// Serialize renders m to wire bytes. See Encode.
func Serialize(m *Message, c Compressor) ([]byte, error) {
	head, body, err := Encode(m, c)
	if err != nil {
		return nil, err
	}
	return append(head, body...), nil
}

// Encode renders the head and the body of m separately. When a body is
// present it is compressed according to the head's Content-Encoding and
// Content-Length is set to the final body length in the rendered head; m
// itself is not modified. A nil Compressor means DefaultCompressor.
func Encode(m *Message, c Compressor) (head, body []byte, err error) {
	if m == nil || m.Head == nil {
		return nil, nil, errFrameSequence
	}
	hdr := m.Head.Headers().Clone()
	if m.Body != nil {
		body = m.Body.Bytes
		if enc := contentCoding(hdr); enc != "" {
			if c == nil {
				c = DefaultCompressor
			}
			if body, err = c.Compress(enc, body); err != nil {
				return nil, nil, fmt.Errorf("httpx: compress %s: %w", enc, err)
			}
		}
		hdr["Content-Length"] = []string{strconv.Itoa(len(body))}
	}
	var buf bytes.Buffer
	if err := http1.WriteHead(&buf, m.Head.StartLine(), hdr); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), body, nil
}

func contentCoding(h HeaderMap) string {
	switch enc := h.Get("Content-Encoding"); enc {
	case "gzip", "deflate":
		return enc
	}
	return ""
}

package http1

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

var (
	ErrMissingCRLF     = errors.New("http1: stream ended before CRLF")
	ErrLineTooLong     = errors.New("http1: line too long")
	ErrMalformedHeader = errors.New("http1: malformed header line")
	ErrTruncatedBody   = errors.New("http1: truncated body")
	errNotWritable     = errors.New("http1: stream is not writable")
)

// DefaultChunkSize is the read granularity of a Cursor.
const DefaultChunkSize = 1024

const (
	lingerTimeout = 250 * time.Millisecond
	lingerBytes   = 256 << 10
)

// ByteSource yields one byte at a time. ok is false once the source is
// exhausted, failed or closed.
type ByteSource interface {
	NextByte() (b byte, ok bool)
}

// Cursor is a buffered, pull-based reader over a live connection. It also
// exposes raw writes to the same connection.
type Cursor struct {
	rw     io.Reader
	br     *bufio.Reader
	err    error
	eof    bool
	closed bool
}

func NewCursor(r io.Reader, size int) *Cursor {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Cursor{rw: r, br: bufio.NewReaderSize(r, size)}
}

func (c *Cursor) NextByte() (byte, bool) {
	if c.closed || c.eof {
		return 0, false
	}
	b, err := c.br.ReadByte()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.err = err
		}
		c.eof = true
		return 0, false
	}
	return b, true
}

// Err returns the first read error other than a clean EOF.
func (c *Cursor) Err() error { return c.err }

func (c *Cursor) Active() bool { return !c.closed }

func (c *Cursor) Write(p []byte) (int, error) {
	if c.closed {
		return 0, net.ErrClosed
	}
	w, ok := c.rw.(io.Writer)
	if !ok {
		return 0, errNotWritable
	}
	return w.Write(p)
}

// Close shuts down the write side, discards whatever the peer still sends
// for a short while so it sees our bytes instead of a reset, then closes.
// Further reads return false without touching the stream.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if cw, ok := c.rw.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
		if dl, ok := c.rw.(interface{ SetReadDeadline(time.Time) error }); ok && !c.eof {
			_ = dl.SetReadDeadline(time.Now().Add(lingerTimeout))
			_, _ = io.CopyN(io.Discard, c.br, lingerBytes)
		}
	}
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// ReadLine reads up to and including the exact sequence CRLF and returns the
// line without it. limit bounds the line length when positive.
func ReadLine(src ByteSource, limit int) (string, error) {
	var sb strings.Builder
	cr := false
	for {
		b, ok := src.NextByte()
		if !ok {
			return "", ErrMissingCRLF
		}
		if b == '\n' && cr {
			s := sb.String()
			return s[:len(s)-1], nil
		}
		cr = b == '\r'
		sb.WriteByte(b)
		if limit > 0 && sb.Len() > limit+1 {
			return "", ErrLineTooLong
		}
	}
}

// SplitHeaderLine splits "Key: a, b" into its trimmed key and value list.
func SplitHeaderLine(line string) (string, []string, error) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", nil, ErrMalformedHeader
	}
	key := strings.TrimSpace(line[:i])
	if !httpguts.ValidHeaderFieldName(key) {
		return "", nil, ErrMalformedHeader
	}
	parts := strings.Split(strings.TrimSpace(line[i+1:]), ",")
	vals := make([]string, len(parts))
	for j, p := range parts {
		vals[j] = strings.TrimSpace(p)
	}
	return key, vals, nil
}

// ReadHeaders reads header lines until the blank line. A repeated key
// replaces the earlier values.
func ReadHeaders(src ByteSource, limit int) (map[string][]string, error) {
	h := make(map[string][]string)
	for {
		line, err := ReadLine(src, limit)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		k, vv, err := SplitHeaderLine(line)
		if err != nil {
			return nil, err
		}
		h[k] = vv
	}
}

// ContentLength returns the declared body length, or 0 when the header is
// absent or not an unsigned integer.
func ContentLength(h map[string][]string) uint64 {
	vv, ok := h["Content-Length"]
	if !ok || len(vv) == 0 {
		return 0
	}
	n, err := strconv.ParseUint(vv[0], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ReadBody reads exactly n bytes. The buffer grows with the bytes that
// actually arrive, not with the declared n.
func ReadBody(src ByteSource, n uint64) ([]byte, error) {
	body := make([]byte, 0, min(n, DefaultChunkSize))
	for i := uint64(0); i < n; i++ {
		b, ok := src.NextByte()
		if !ok {
			return body, ErrTruncatedBody
		}
		body = append(body, b)
	}
	return body, nil
}

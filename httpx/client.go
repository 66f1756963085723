package httpx

import (
	"context"
	"net"
	"time"

	"dqx0.com/go/httpframe/httpx/internal/http1"
	"dqx0.com/go/httpframe/internal/obs"
)

// Client sends one request per connection and reads the response with the
// same codec the server uses.
type Client struct {
	DialTimeout time.Duration
	// Timeout bounds the exchange after the connection is established.
	Timeout time.Duration
	// MaxBodyBytes caps the response body; 0 means 10 MiB. A larger
	// declared Content-Length fails with ErrBodyTooLarge.
	MaxBodyBytes int64
	Compressor   Compressor
	Logger       obs.Logger
}

// Do dials addr ("host:port"), writes req and parses the response. The
// write side is half-closed after the request so the peer sees EOF.
func (c *Client) Do(ctx context.Context, addr string, req *Message) (*Message, error) {
	b, err := Serialize(req, c.Compressor)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: c.dialTimeout()}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &IOError{Op: "dial", Err: err}
	}
	cur := http1.NewCursor(conn, http1.DefaultChunkSize)
	defer cur.Close()
	setDeadlineWithContext(conn, c.Timeout, ctx)

	if _, err := cur.Write(b); err != nil {
		return nil, &IOError{Op: "write", Err: err}
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	res, err := readMessage(cur, defaultMaxHeaderBytes, c.bodyLimit())
	if err != nil {
		if rerr := cur.Err(); rerr != nil {
			c.logf(obs.Debug, "read from %s: %v", addr, rerr)
			return nil, &IOError{Op: "read", Err: rerr}
		}
		return nil, err
	}
	return res, nil
}

func (c *Client) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return 5 * time.Second
	}
	return c.DialTimeout
}

func (c *Client) bodyLimit() uint64 {
	if c.MaxBodyBytes <= 0 {
		return defaultMaxBodyBytes
	}
	return uint64(c.MaxBodyBytes)
}

func (c *Client) logf(level obs.Level, format string, args ...interface{}) {
	lg := c.Logger
	if lg == nil {
		lg = obs.NopLogger{}
	}
	lg.Logf(level, format, args...)
}

func setDeadlineWithContext(c net.Conn, timeout time.Duration, ctx context.Context) {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if dl, ok := ctx.Deadline(); ok {
		if d.IsZero() || dl.Before(d) {
			d = dl
		}
	}
	if !d.IsZero() {
		_ = c.SetDeadline(d)
	}
}

package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"dqx0.com/go/httpframe/httpx/internal/http1"
	"dqx0.com/go/httpframe/internal/obs"
)

// Server accepts connections and answers exactly one request per
// connection: parse, route, handle, negotiate compression, serialize,
// write, close.
type Server struct {
	Addr string
	// ReadTimeout bounds reading the whole request; 0 means 5s and a
	// negative value disables it. A client that never finishes its head is
	// dropped without a response once it expires.
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64
	// MaxConns caps the number of connections served at once when > 0.
	MaxConns   int
	Compressor Compressor

	Logger obs.Logger
	Meter  obs.Meter

	router *Router

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewServer returns a Server bound to bindAddress:port once it listens.
func NewServer(bindAddress string, port int) *Server {
	return &Server{
		Addr:   net.JoinHostPort(bindAddress, strconv.Itoa(port)),
		router: NewRouter(),
	}
}

// Router returns the route table. Routes must be added before the server
// starts accepting connections.
func (s *Server) Router() *Router {
	if s.router == nil {
		s.router = NewRouter()
	}
	return s.router
}

func (s *Server) AddRoute(method Method, prefix string, h Handler) *Server {
	s.Router().AddRoute(method, prefix, h)
	return s
}

func (s *Server) HandleFunc(method Method, prefix string, f func(context.Context, *Message) (*Message, error)) *Server {
	s.Router().HandleFunc(method, prefix, f)
	return s
}

// ListenAndServe binds Addr and serves until the listener fails or the
// server is shut down. A bind failure is returned as an *IOError.
func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = ":4221"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &IOError{Op: "bind", Err: err}
	}
	return s.Serve(ln)
}

// Serve accepts connections on l and handles each on its own goroutine.
func (s *Server) Serve(l net.Listener) error {
	if s.MaxConns > 0 {
		l = netutil.LimitListener(l, s.MaxConns)
	}
	s.Router()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()
	defer l.Close()

	s.logf(obs.Info, "listening on %s", l.Addr())
	var delay time.Duration
	for {
		c, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return &IOError{Op: "accept", Err: err}
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			s.logf(obs.Warn, "accept error: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = c.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.wg.Done()
			s.serveConn(c)
		}()
	}
}

// Shutdown stops accepting connections and waits for in-flight ones to
// finish or for ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.listener != nil {
		if err = s.listener.Close(); errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) serveConn(c net.Conn) {
	start := time.Now()
	id := genRequestID()
	s.meter().Counter("httpframe_connections_total", 1)

	cur := http1.NewCursor(c, http1.DefaultChunkSize)
	defer cur.Close()
	if rt := s.readTimeout(); rt > 0 {
		_ = c.SetReadDeadline(time.Now().Add(rt))
	}

	req, err := readMessage(cur, s.headerLimit(), s.bodyLimit())
	if err != nil {
		s.meter().Counter("httpframe_parse_errors_total", 1)
		if rerr := cur.Err(); rerr != nil {
			s.logf(obs.Debug, "conn %s from %s: read: %v", id, c.RemoteAddr(), rerr)
		}
		status := StatusFor(err)
		if status == 0 {
			s.logf(obs.Debug, "conn %s: closed without response: %v", id, err)
			return
		}
		s.logf(obs.Info, "conn %s: %v", id, err)
		s.writeStatus(c, cur, id, status, start)
		return
	}

	rh, ok := req.Request()
	if !ok {
		s.logf(obs.Info, "conn %s: received a response head, expected a request", id)
		s.writeStatus(c, cur, id, 400, start)
		return
	}
	if rh.Version != HTTP10 && rh.Version != HTTP11 {
		s.writeStatus(c, cur, id, 505, start)
		return
	}
	h, ok := s.Router().Match(rh.Method, rh.URI)
	if !ok {
		s.logf(obs.Debug, "conn %s: no route for %s %s", id, rh.Method, rh.URI)
		s.writeStatus(c, cur, id, 400, start)
		return
	}

	info := RequestInfo{
		ID:            id,
		CorrelationID: rh.Header.Get("X-Request-Id"),
		RemoteAddr:    c.RemoteAddr(),
		Trace:         traceFromHeader(rh.Header),
	}
	ctx := WithRequestInfo(context.Background(), info)
	res, err := invoke(ctx, h, req)
	if err != nil {
		var re *RequestError
		if errors.As(err, &re) {
			s.logf(obs.Info, "conn %s: %s %s: %v", id, rh.Method, rh.URI, err)
			s.writeStatus(c, cur, id, validStatus(re.Status), start)
			return
		}
		s.logf(obs.Error, "conn %s: %s %s: %v", id, rh.Method, rh.URI, &HandlerError{Err: err})
		s.writeStatus(c, cur, id, 500, start)
		return
	}
	resHead, ok := res.Response()
	if !ok || resHead == nil {
		s.logf(obs.Error, "conn %s: %s %s: handler returned no response head", id, rh.Method, rh.URI)
		s.writeStatus(c, cur, id, 500, start)
		return
	}
	if code := resHead.Status.Code; validStatus(code) != code {
		s.logf(obs.Error, "conn %s: %s %s: handler returned status %d", id, rh.Method, rh.URI, code)
		s.writeStatus(c, cur, id, 500, start)
		return
	}
	res = &Message{Head: detachHead(resHead), Body: res.Body}

	if len(res.BodyBytes()) > 0 && !res.Head.Headers().Has("Content-Encoding") {
		if enc := NegotiateEncoding(rh.Header); enc != "" {
			res.Head.Headers().Set("Content-Encoding", enc)
		}
	}
	head, body, err := Encode(res, s.Compressor)
	if err != nil {
		s.logf(obs.Error, "conn %s: encode response: %v", id, err)
		s.writeStatus(c, cur, id, 500, start)
		return
	}
	if rh.Method == HEAD {
		body = nil
	}
	s.setWriteDeadline(c)
	if _, err := cur.Write(append(head, body...)); err != nil {
		s.logf(obs.Debug, "conn %s: write: %v", id, &IOError{Op: "write", Err: err})
		return
	}
	status := res.StatusCode()
	s.logf(obs.Debug, "conn %s: %s %s -> %d (%d body bytes) in %v trace=%s correlation=%q",
		id, rh.Method, rh.URI, status, len(body), time.Since(start), info.Trace.TraceID, info.CorrelationID)
	s.observe(status, start)
}

func invoke(ctx context.Context, h Handler, req *Message) (res *Message, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	res, err = h.ServeFrames(ctx, req)
	if err == nil && (res == nil || res.Head == nil) {
		err = errors.New("nil response")
	}
	return res, err
}

// detachHead copies h with its own header map, so headers stamped on the
// way out stay off the handler's Message.
func detachHead(h *ResponseHead) *ResponseHead {
	out := *h
	out.Header = h.Header.Clone()
	return &out
}

// validStatus maps codes a handler may not send on the wire to 500.
func validStatus(code uint16) uint16 {
	if code < 100 || code > 599 {
		return 500
	}
	return code
}

func (s *Server) writeStatus(c net.Conn, cur *http1.Cursor, id string, status uint16, start time.Time) {
	s.setWriteDeadline(c)
	if err := http1.WriteStatusOnly(cur, int(status), ""); err != nil {
		s.logf(obs.Debug, "conn %s: write: %v", id, &IOError{Op: "write", Err: err})
		return
	}
	s.observe(status, start)
}

func (s *Server) observe(status uint16, start time.Time) {
	code := obs.Label{Key: "status", Value: strconv.Itoa(int(status))}
	s.meter().Counter("httpframe_responses_total", 1, code)
	s.meter().Histogram("httpframe_request_duration_seconds", time.Since(start).Seconds())
}

func (s *Server) setWriteDeadline(c net.Conn) {
	if s.WriteTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}
}

func (s *Server) readTimeout() time.Duration {
	if s.ReadTimeout == 0 {
		return 5 * time.Second
	}
	return s.ReadTimeout
}

func (s *Server) headerLimit() int {
	if s.MaxHeaderBytes <= 0 {
		return defaultMaxHeaderBytes
	}
	return s.MaxHeaderBytes
}

func (s *Server) bodyLimit() uint64 {
	if s.MaxBodyBytes <= 0 {
		return defaultMaxBodyBytes
	}
	return uint64(s.MaxBodyBytes)
}

func (s *Server) logf(level obs.Level, format string, args ...interface{}) {
	lg := s.Logger
	if lg == nil {
		lg = obs.NopLogger{}
	}
	lg.Logf(level, format, args...)
}

func (s *Server) meter() obs.Meter {
	if s.Meter != nil {
		return s.Meter
	}
	return obs.NopMeter{}
}

package httpx

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"dqx0.com/go/httpframe/internal/obs"
)

func startServer(t *testing.T, cfg func(*Server)) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := NewServer("127.0.0.1", 0)
	if cfg != nil {
		cfg(s)
	}
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, ln.Addr().String()
}

// exchange writes raw to addr, half-closes, and returns everything the
// server sends back before closing the connection.
func exchange(t *testing.T, addr, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(conn, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.(*net.TCPConn).CloseWrite()
	b, _ := io.ReadAll(conn)
	return string(b)
}

func echoHandler(_ context.Context, req *Message) (*Message, error) {
	return Text(strings.TrimPrefix(req.URI(), "/echo/")), nil
}

func withEcho(s *Server) {
	s.HandleFunc(GET, "/echo/", echoHandler)
}

func TestServer_EchoScenario(t *testing.T) {
	_, addr := startServer(t, withEcho)
	got := exchange(t, addr, "GET /echo/abc HTTP/1.1\r\nHost: x\r\n\r\n")
	want := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 3\r\n\r\nabc"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestServer_LongestPrefixDispatch(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		s.HandleFunc(GET, "/", func(context.Context, *Message) (*Message, error) {
			return NewResponse(200, nil, nil), nil
		}).HandleFunc(GET, "/files/", func(_ context.Context, req *Message) (*Message, error) {
			return Text("file:" + strings.TrimPrefix(req.URI(), "/files/")), nil
		})
	})
	got := exchange(t, addr, "GET /files/readme.txt HTTP/1.1\r\n\r\n")
	if !strings.HasSuffix(got, "\r\n\r\nfile:readme.txt") {
		t.Fatalf("got %q", got)
	}
	if got := exchange(t, addr, "GET / HTTP/1.1\r\n\r\n"); got != "HTTP/1.1 200 OK\r\n\r\n" {
		t.Fatalf("root got %q", got)
	}
}

func TestServer_GzipNegotiation(t *testing.T) {
	long := bytes.Repeat([]byte{'A'}, 4096)
	_, addr := startServer(t, func(s *Server) {
		s.HandleFunc(GET, "/big", func(context.Context, *Message) (*Message, error) {
			return NewResponse(200, nil, long), nil
		})
	})
	raw := exchange(t, addr, "GET /big HTTP/1.1\r\nAccept-Encoding: identity, gzip\r\n\r\n")
	if !strings.Contains(raw, "Content-Encoding: gzip\r\n") {
		t.Fatalf("missing Content-Encoding: %q", raw)
	}
	res, err := ParseMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(res.BodyBytes()))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	dec, _ := io.ReadAll(zr)
	if !bytes.Equal(dec, long) {
		t.Fatalf("decoded mismatch: %d vs %d", len(dec), len(long))
	}
}

func TestServer_DeflateNegotiation(t *testing.T) {
	_, addr := startServer(t, withEcho)
	raw := exchange(t, addr, "GET /echo/hello HTTP/1.1\r\nAccept-Encoding: deflate, gzip\r\n\r\n")
	res, err := ParseMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if got := res.Head.Headers().Get("Content-Encoding"); got != "deflate" {
		t.Fatalf("Content-Encoding=%q", got)
	}
	zr, err := zlib.NewReader(bytes.NewReader(res.BodyBytes()))
	if err != nil {
		t.Fatalf("zlib reader: %v", err)
	}
	dec, _ := io.ReadAll(zr)
	if string(dec) != "hello" {
		t.Fatalf("decoded %q", dec)
	}
}

func TestServer_NoEncodingWithoutBody(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		s.HandleFunc(GET, "/", func(context.Context, *Message) (*Message, error) {
			return NewResponse(200, nil, nil), nil
		})
	})
	got := exchange(t, addr, "GET / HTTP/1.1\r\nAccept-Encoding: gzip\r\n\r\n")
	if got != "HTTP/1.1 200 OK\r\n\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestServer_ErrorResponses(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		withEcho(s)
		s.HandleFunc(GET, "/fail", func(context.Context, *Message) (*Message, error) {
			return nil, errors.New("disk on fire")
		}).HandleFunc(GET, "/panic", func(context.Context, *Message) (*Message, error) {
			panic("boom")
		}).HandleFunc(GET, "/missing", func(context.Context, *Message) (*Message, error) {
			return nil, fmt.Errorf("lookup: %w", Errorf(404, "no such file"))
		}).HandleFunc(GET, "/nil", func(context.Context, *Message) (*Message, error) {
			return nil, nil
		}).HandleFunc(GET, "/request", func(context.Context, *Message) (*Message, error) {
			return NewRequest(GET, "/", nil, nil), nil
		}).HandleFunc(GET, "/zero", func(context.Context, *Message) (*Message, error) {
			return nil, Errorf(0, "no status")
		}).HandleFunc(GET, "/huge", func(context.Context, *Message) (*Message, error) {
			return nil, Errorf(700, "out of range")
		}).HandleFunc(GET, "/badresponse", func(context.Context, *Message) (*Message, error) {
			return NewResponse(0, nil, []byte("x")), nil
		})
	})
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"malformed start line", "FOO / HTTP/1.1\r\nHost: x\r\n\r\n", "HTTP/1.1 400 Bad Request\r\n\r\n"},
		{"malformed header", "GET /echo/a HTTP/1.1\r\nno colon\r\n\r\n", "HTTP/1.1 400 Bad Request\r\n\r\n"},
		{"no route", "GET /nowhere HTTP/1.1\r\n\r\n", "HTTP/1.1 400 Bad Request\r\n\r\n"},
		{"method mismatch", "POST /echo/a HTTP/1.1\r\n\r\n", "HTTP/1.1 400 Bad Request\r\n\r\n"},
		{"response head", "HTTP/1.1 200 OK\r\n\r\n", "HTTP/1.1 400 Bad Request\r\n\r\n"},
		{"http2", "GET /echo/a HTTP/2.0\r\n\r\n", "HTTP/1.1 505 HTTP Version Not Supported\r\n\r\n"},
		{"handler error", "GET /fail HTTP/1.1\r\n\r\n", "HTTP/1.1 500 Internal Server Error\r\n\r\n"},
		{"handler panic", "GET /panic HTTP/1.1\r\n\r\n", "HTTP/1.1 500 Internal Server Error\r\n\r\n"},
		{"request error", "GET /missing HTTP/1.1\r\n\r\n", "HTTP/1.1 404 Not Found\r\n\r\n"},
		{"nil response", "GET /nil HTTP/1.1\r\n\r\n", "HTTP/1.1 500 Internal Server Error\r\n\r\n"},
		{"request as response", "GET /request HTTP/1.1\r\n\r\n", "HTTP/1.1 500 Internal Server Error\r\n\r\n"},
		{"zero request error status", "GET /zero HTTP/1.1\r\n\r\n", "HTTP/1.1 500 Internal Server Error\r\n\r\n"},
		{"out of range request error status", "GET /huge HTTP/1.1\r\n\r\n", "HTTP/1.1 500 Internal Server Error\r\n\r\n"},
		{"zero response status", "GET /badresponse HTTP/1.1\r\n\r\n", "HTTP/1.1 500 Internal Server Error\r\n\r\n"},
		{"truncated body", "POST /echo/a HTTP/1.1\r\nContent-Length: 50\r\n\r\nshort", "HTTP/1.1 400 Bad Request\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exchange(t, addr, tt.raw); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestServer_MissingTerminatorGetsNoResponse(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		withEcho(s)
		s.ReadTimeout = 100 * time.Millisecond
	})
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	io.WriteString(conn, "GET /echo/a HTTP/1.1\r\nHost: x\r\n")
	b, _ := io.ReadAll(conn)
	if len(b) != 0 {
		t.Fatalf("got response %q", b)
	}
}

func TestServer_RequestBodyLength(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		s.HandleFunc(POST, "/up", func(_ context.Context, req *Message) (*Message, error) {
			return Text(fmt.Sprint(len(req.BodyBytes()))), nil
		})
	})
	for _, n := range []int{1, 2, 1024, 1500} {
		raw := fmt.Sprintf("POST /up HTTP/1.1\r\nContent-Length: %d\r\n\r\n%s", n, strings.Repeat("x", n))
		got := exchange(t, addr, raw)
		if !strings.HasSuffix(got, "\r\n\r\n"+fmt.Sprint(n)) {
			t.Fatalf("n=%d: got %q", n, got)
		}
	}
}

func TestServer_HEADOmitsBody(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		s.HandleFunc(HEAD, "/", func(context.Context, *Message) (*Message, error) {
			return Text("hello"), nil
		})
	})
	got := exchange(t, addr, "HEAD / HTTP/1.1\r\n\r\n")
	want := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\n"
	if got != want {
		t.Fatalf("got %q", got)
	}
}

func TestServer_ContextCarriesIdentity(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		s.HandleFunc(GET, "/id", func(ctx context.Context, _ *Message) (*Message, error) {
			id, ok := RequestIDFrom(ctx)
			if !ok {
				return nil, errors.New("no request id")
			}
			info, _ := RequestInfoFrom(ctx)
			if info.RemoteAddr == nil {
				return nil, errors.New("no remote address")
			}
			return Text(fmt.Sprintf("%d %s %s", len(id), info.Trace.TraceID, info.CorrelationID)), nil
		})
	})
	raw := "GET /id HTTP/1.1\r\ntraceparent: 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01\r\nX-Request-Id: abc\r\n\r\n"
	got := exchange(t, addr, raw)
	if !strings.HasSuffix(got, "\r\n\r\n32 0af7651916cd43dd8448eb211c80319c abc") {
		t.Fatalf("got %q", got)
	}
}

func TestServer_Metrics(t *testing.T) {
	m := &obs.MemMeter{}
	_, addr := startServer(t, func(s *Server) {
		withEcho(s)
		s.Meter = m
	})
	exchange(t, addr, "GET /echo/a HTTP/1.1\r\n\r\n")
	exchange(t, addr, "GET /other HTTP/1.1\r\n\r\n")
	exchange(t, addr, "BAD\r\n\r\n")
	if got := m.Count("httpframe_responses_total{status=200}"); got != 1 {
		t.Fatalf("200 responses=%v", got)
	}
	if got := m.Count("httpframe_responses_total{status=400}"); got != 2 {
		t.Fatalf("400 responses=%v", got)
	}
	if got := m.Count("httpframe_parse_errors_total"); got != 1 {
		t.Fatalf("parse errors=%v", got)
	}
	if got := m.Count("httpframe_connections_total"); got != 3 {
		t.Fatalf("connections=%v", got)
	}
}

func TestServer_LogsThroughLogger(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	lg := loggerFunc(func(level obs.Level, format string, args ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, level.String()+" "+fmt.Sprintf(format, args...))
	})
	_, addr := startServer(t, func(s *Server) {
		s.Logger = lg
		s.HandleFunc(GET, "/fail", func(context.Context, *Message) (*Message, error) {
			return nil, errors.New("disk on fire")
		})
	})
	exchange(t, addr, "GET /fail HTTP/1.1\r\n\r\n")
	mu.Lock()
	defer mu.Unlock()
	for _, l := range lines {
		if strings.HasPrefix(l, "ERROR ") && strings.Contains(l, "disk on fire") {
			return
		}
	}
	t.Fatalf("no error line in %q", lines)
}

func TestServer_LogsTraceAndCorrelation(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	lg := loggerFunc(func(level obs.Level, format string, args ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	_, addr := startServer(t, func(s *Server) {
		withEcho(s)
		s.Logger = lg
	})
	exchange(t, addr, "GET /echo/a HTTP/1.1\r\ntraceparent: 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01\r\nX-Request-Id: abc\r\n\r\n")
	// logged after the response is written
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		for _, l := range lines {
			if strings.Contains(l, "trace=0af7651916cd43dd8448eb211c80319c") && strings.Contains(l, `correlation="abc"`) {
				mu.Unlock()
				return
			}
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	t.Fatalf("no transaction line with trace in %q", lines)
}

func TestServer_SharedResponseLeftUntouched(t *testing.T) {
	shared := NewResponse(200, HeaderMap{"Content-Type": {"text/plain"}}, []byte("shared body shared body"))
	_, addr := startServer(t, func(s *Server) {
		s.HandleFunc(GET, "/shared", func(context.Context, *Message) (*Message, error) {
			return shared, nil
		})
	})
	c := &Client{Timeout: 5 * time.Second}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := NewRequest(GET, "/shared", HeaderMap{"Accept-Encoding": {"gzip"}}, nil)
			res, err := c.Do(context.Background(), addr, req)
			if err != nil {
				errs <- err
				return
			}
			if enc := res.Head.Headers().Get("Content-Encoding"); enc != "gzip" {
				errs <- fmt.Errorf("Content-Encoding=%q", enc)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if h := shared.Head.Headers(); h.Has("Content-Encoding") || h.Has("Content-Length") {
		t.Fatalf("shared headers mutated: %v", h)
	}
}

func TestServer_ConcurrentClients(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		withEcho(s)
		s.MaxConns = 4
	})
	c := &Client{Timeout: 5 * time.Second}
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("n%d", i)
			res, err := c.Do(context.Background(), addr, NewRequest(GET, "/echo/"+want, nil, nil))
			if err != nil {
				errs <- err
				return
			}
			if res.StatusCode() != 200 || string(res.BodyBytes()) != want {
				errs <- fmt.Errorf("%d %q, want %q", res.StatusCode(), res.BodyBytes(), want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestClient_PostWithBody(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		s.HandleFunc(POST, "/files/", func(_ context.Context, req *Message) (*Message, error) {
			return NewResponse(201, nil, req.BodyBytes()), nil
		})
	})
	c := &Client{}
	res, err := c.Do(context.Background(), addr, NewRequest(POST, "/files/a", nil, []byte("data")))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	rh, _ := res.Response()
	if rh.Status.Code != 201 || rh.Status.Reason != "Created" {
		t.Fatalf("status=%+v", rh.Status)
	}
	if string(res.BodyBytes()) != "data" {
		t.Fatalf("body=%q", res.BodyBytes())
	}
}

func TestClient_HugeContentLengthRejected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 18446744073709551615\r\n\r\nx")
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _ = io.Copy(io.Discard, conn)
	}()
	_, err = (&Client{Timeout: 5 * time.Second}).Do(context.Background(), ln.Addr().String(), NewRequest(GET, "/", nil, nil))
	var pe *ParseError
	if !errors.Is(err, ErrBodyTooLarge) || !errors.As(err, &pe) || pe.Status != 413 {
		t.Fatalf("err=%v", err)
	}
}

func TestClient_DialFailure(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := ln.Addr().String()
	ln.Close()
	_, err := (&Client{}).Do(context.Background(), addr, NewRequest(GET, "/", nil, nil))
	var ioe *IOError
	if !errors.As(err, &ioe) || ioe.Op != "dial" {
		t.Fatalf("err=%v", err)
	}
}

func TestListenAndServe_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	err = NewServer("127.0.0.1", port).ListenAndServe()
	var ioe *IOError
	if !errors.As(err, &ioe) || ioe.Op != "bind" {
		t.Fatalf("err=%v, want bind IOError", err)
	}
}

func TestServer_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := NewServer("127.0.0.1", 0)
	withEcho(s)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()
	exchange(t, ln.Addr().String(), "GET /echo/x HTTP/1.1\r\n\r\n")
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrServerClosed) {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

type loggerFunc func(level obs.Level, format string, args ...interface{})

func (f loggerFunc) Logf(level obs.Level, format string, args ...interface{}) { f(level, format, args...) }

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dqx0.com/go/httpframe/httpx"
	"dqx0.com/go/httpframe/internal/obs"
)

func main() {
	var (
		dir      = flag.String("directory", "", "directory served under /files/")
		addr     = flag.String("addr", "127.0.0.1", "bind address")
		port     = flag.Int("port", 4221, "listen port")
		level    = flag.String("log-level", "info", "debug, info, warn or error")
		maxConns = flag.Int("max-conns", 0, "cap on concurrent connections (0 = unlimited)")
	)
	flag.Parse()

	lg := obs.NewZerolog(os.Stderr, obs.ParseLevel(*level))
	meter := &obs.MemMeter{}

	s := httpx.NewServer(*addr, *port)
	s.Logger = lg
	s.Meter = meter
	s.MaxConns = *maxConns
	s.HandleFunc(httpx.GET, "/", root).
		HandleFunc(httpx.GET, "/echo/", echo).
		HandleFunc(httpx.GET, "/user-agent", userAgent)
	if *dir != "" {
		fs, err := newFileStore(*dir)
		if err != nil {
			lg.L.Fatal().Err(err).Str("directory", *dir).Msg("open directory")
		}
		defer fs.Close()
		s.AddRoute(httpx.GET, "/files/", httpx.HandlerFunc(fs.get)).
			AddRoute(httpx.POST, "/files/", httpx.HandlerFunc(fs.put))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	lg.L.Info().Str("addr", s.Addr).Str("directory", *dir).Msg("starting")
	err := s.ListenAndServe()
	if errors.Is(err, httpx.ErrServerClosed) {
		lg.L.Info().Interface("counters", meter.Snapshot()).Msg("stopped")
		return
	}
	lg.L.Fatal().Err(err).Msg("server failed")
}

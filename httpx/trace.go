package httpx

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

func genRequestID() string {
	return genNonZeroHex(16)
}

func genTraceID() string {
	return genNonZeroHex(16)
}

func genSpanID() string {
	return genNonZeroHex(8)
}

func genNonZeroHex(n int) string {
	b := make([]byte, n)
	for {
		if _, err := rand.Read(b); err == nil {
			for _, v := range b {
				if v != 0 {
					return hex.EncodeToString(b)
				}
			}
		}
		// retry on error or all-zero
	}
}

// parseTraceparent extracts trace-id, span-id, flags. Returns ok=false if invalid.
func parseTraceparent(v string) (traceID, spanID, flags string, ok bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", "", "", false
	}
	parts := strings.Split(v, "-")
	if len(parts) < 4 {
		return "", "", "", false
	}
	ver, tid, sid, fl := parts[0], parts[1], parts[2], parts[3]
	if len(ver) != 2 || len(tid) != 32 || len(sid) != 16 || len(fl) != 2 {
		return "", "", "", false
	}
	if !isHex(tid) || !isHex(sid) || !isHex(fl) {
		return "", "", "", false
	}
	if tid == strings.Repeat("0", 32) || sid == strings.Repeat("0", 16) {
		return "", "", "", false
	}
	return strings.ToLower(tid), strings.ToLower(sid), strings.ToLower(fl), true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			continue
		}
		return false
	}
	return true
}

// Trace carries minimal W3C trace context for propagation.
// TraceID is 32-hex, SpanID is 16-hex. Flags are 2-hex (e.g. "01").
type Trace struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Flags        string
}

// traceFromHeader continues the caller's trace when the request carries a
// valid traceparent header and starts a new one otherwise.
func traceFromHeader(h HeaderMap) Trace {
	v := h.Get("traceparent")
	if v == "" {
		v = h.Get("Traceparent")
	}
	if tid, parent, flags, ok := parseTraceparent(v); ok {
		return Trace{TraceID: tid, SpanID: genSpanID(), ParentSpanID: parent, Flags: flags}
	}
	return Trace{TraceID: genTraceID(), SpanID: genSpanID(), Flags: "01"}
}

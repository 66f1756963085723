package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestZerolog_LevelsAndFormat(t *testing.T) {
	var buf bytes.Buffer
	lg := NewZerolog(&buf, Info)
	lg.Logf(Debug, "hidden %d", 1)
	lg.Logf(Warn, "accept failed: %s", "boom")
	var ev map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if ev["level"] != "warn" {
		t.Fatalf("level=%v", ev["level"])
	}
	if ev["message"] != "accept failed: boom" {
		t.Fatalf("message=%v", ev["message"])
	}
	if _, ok := ev["time"]; !ok {
		t.Fatal("missing timestamp")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != Debug || ParseLevel("ERROR") != Error || ParseLevel("nope") != Info {
		t.Fatal("unexpected level mapping")
	}
}

func TestMemMeter(t *testing.T) {
	m := &MemMeter{}
	m.Counter("responses", 1, Label{"status", "200"})
	m.Counter("responses", 1, Label{"status", "200"})
	m.Counter("responses", 1, Label{"status", "400"})
	m.Histogram("duration", 0.1)
	if got := m.Count("responses{status=200}"); got != 2 {
		t.Fatalf("200 count=%v", got)
	}
	if got := m.Count(SeriesKey("responses", Label{"status", "400"})); got != 1 {
		t.Fatalf("400 count=%v", got)
	}
	if got := m.Observations("duration"); got != 1 {
		t.Fatalf("observations=%d", got)
	}
	if len(m.Snapshot()) != 2 {
		t.Fatalf("snapshot=%v", m.Snapshot())
	}
}

package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type class string

func (c class) String() string { return string(c) }

func TestDomainFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(Comp("dispatch"))
	log.Info("order dispatched", Order(3), Worker(1), Class(class("VIP")))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got[KeyOrder] != float64(3) || got[KeyWorker] != float64(1) || got[KeyClass] != "VIP" || got[KeyComp] != "dispatch" {
		t.Fatalf("entry = %v", got)
	}
	if c, _ := got["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller = %q", got["caller"])
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warning")
	log.Info("hidden")
	log.Warn("shown", Err(nil))
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") || strings.Contains(out, `"err"`) {
		t.Fatalf("output = %q", out)
	}
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "trace", "DEBUG", " info ", "Warning", "error"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	for _, s := range []string{"fatal", "panic", "disabled", "loud"} {
		if ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = true", s)
		}
	}
}

func TestServiceApplySwapsSinks(t *testing.T) {
	dir := t.TempDir()
	first, second := filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	defer svc.Close()
	log.Info("one")

	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}})
	log.Info("two")

	svc.Apply(Config{})
	log.Info("three")

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !strings.Contains(string(a), "one") || strings.Contains(string(a), "two") {
		t.Fatalf("first sink = %q", a)
	}
	if !strings.Contains(string(b), "two") || strings.Contains(string(b), "three") {
		t.Fatalf("second sink = %q", b)
	}
}

func TestZeroLoggerDiscards(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	l.Error("dropped", Order(1))
}

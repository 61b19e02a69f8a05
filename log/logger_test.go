package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	specs := []struct {
		in  string
		exp Level
	}{
		{"debug", Debug},
		{"INFO", Info},
		{"", Notice},
		{"warn", Warning},
		{" error ", Error},
	}

	for _, spec := range specs {
		lvl, err := ParseLevel(spec.in)
		if err != nil {
			t.Fatalf("[%q] unexpected error: %v", spec.in, err)
		}
		if lvl != spec.exp {
			t.Fatalf("[%q] expected level %s; got %s", spec.in, spec.exp, lvl)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected an error for an unknown level name")
	}
}

func TestSinkAndLevel(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(nopWriter{})

	logger := New("test")
	SetLevel(Warning)
	logger.Info("hidden")
	logger.Warning("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info message to be filtered; got %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "[test]") {
		t.Fatalf("expected warning message tagged with module name; got %q", out)
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

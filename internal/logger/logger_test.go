package logger

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// capture routes log output into a buffer for the duration of the test.
func capture(t *testing.T, verbose bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(verbose)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		log     func()
		want    string
	}{
		{"debug verbose", true, func() { Debug("chunk %d of %s", 2, "a.md") }, "[DEBUG] chunk 2 of a.md\n"},
		{"debug quiet", false, func() { Debug("chunk %d", 2) }, ""},
		{"info verbose", true, func() { Info("recovered %d", 3) }, "[INFO] recovered 3\n"},
		{"info quiet", false, func() { Info("recovered %d", 3) }, ""},
		{"warn verbose", true, func() { Warn("skipping %s: %v", "b.txt", errors.New("not UTF-8")) }, "[WARN] skipping b.txt: not UTF-8\n"},
		{"warn quiet", false, func() { Warn("skipping") }, ""},
		{"error quiet", false, func() { Error("cache %s failed", "put") }, "[ERROR] cache put failed\n"},
		{"error verbose", true, func() { Error("boom") }, "[ERROR] boom\n"},
		{"section verbose", true, func() { Section("Index Workspace") }, "\n=== Index Workspace ===\n"},
		{"section quiet", false, func() { Section("Index Workspace") }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, tt.verbose)
			tt.log()
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPercentWithoutArgsIsLiteral(t *testing.T) {
	buf := capture(t, true)

	Info("embedded 100% of chunks")

	if got := buf.String(); got != "[INFO] embedded 100% of chunks\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestSetVerbose(t *testing.T) {
	capture(t, false)
	if IsVerbose() {
		t.Fatal("expected quiet")
	}
	SetVerbose(true)
	if !IsVerbose() {
		t.Fatal("expected verbose")
	}
}

func TestSectionSeparatesRecords(t *testing.T) {
	buf := capture(t, true)

	Section("Retrieve")
	Debug("query %q", "fox")

	want := "\n=== Retrieve ===\n[DEBUG] query \"fox\"\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestL_StructuredFields(t *testing.T) {
	buf := capture(t, true)

	L().With(zap.String("doc", "a.md")).Info("indexed", zap.Int("chunks", 2))
	if err := Sync(); err != nil {
		t.Errorf("sync: %v", err)
	}

	want := `[INFO] indexed {"doc": "a.md", "chunks": 2}` + "\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestL_IsASnapshot(t *testing.T) {
	first := capture(t, true)
	held := L()

	var second bytes.Buffer
	SetOutput(&second)
	SetVerbose(false)

	held.Debug("still verbose")
	Debug("now quiet")

	if got := first.String(); got != "[DEBUG] still verbose\n" {
		t.Errorf("held logger wrote %q", got)
	}
	if second.Len() != 0 {
		t.Errorf("quiet logger wrote %q", second.String())
	}
}

func TestConcurrentLogging(t *testing.T) {
	buf := capture(t, true)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				Debug("worker %d", i)
				Section("tick")
				_ = IsVerbose()
			}
		}()
	}
	wg.Wait()

	// Every record stays whole under concurrent writers.
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	debug := 0
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "[DEBUG] worker "):
			debug++
		case line == "", line == "=== tick ===":
		default:
			t.Fatalf("interleaved record %q", line)
		}
	}
	if debug != 8*25 {
		t.Errorf("got %d debug records, want %d", debug, 8*25)
	}
}

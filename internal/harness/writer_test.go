package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCSVWriterWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "results.csv")

	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := w.WriteRow("search", "alpha", "SUCCESS", 12*time.Millisecond); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w2, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter (reopen): %v", err)
	}
	if err := w2.WriteRow("publish", "beta", "SUCCESS", 5*time.Millisecond); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), data)
	}
	if lines[0] != "timestamp,operation,term,result,delay_ms" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
}

func TestCSVWriterRejectsWriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.WriteRow("search", "alpha", "SUCCESS", time.Millisecond); err == nil {
		t.Fatal("WriteRow after Close should error")
	}
}

func TestNullWriterDiscardsSilently(t *testing.T) {
	var w NullWriter
	if err := w.WriteRow("search", "alpha", "SUCCESS", time.Millisecond); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

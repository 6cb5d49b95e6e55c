package harness

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer records one measured operation's outcome.
type Writer interface {
	WriteRow(operation, term, result string, delay time.Duration) error
	Close() error
}

// CSVWriter appends one row per measured operation to a CSV file,
// writing a header only when the file is first created (ground:
// client/tester/writer/csv.go).
type CSVWriter struct {
	mu      sync.Mutex
	file    *os.File
	writer  *csv.Writer
	flushed bool
}

// NewCSVWriter opens (or creates) filename, writing a header row if new.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create directory %q: %w", dir, err)
	}

	fileExists := false
	if _, err := os.Stat(filename); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open csv file: %w", err)
	}

	w := csv.NewWriter(file)
	if !fileExists {
		header := []string{"timestamp", "operation", "term", "result", "delay_ms"}
		if err := w.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("cannot write header: %w", err)
		}
		w.Flush()
	}

	return &CSVWriter{file: file, writer: w}, nil
}

// WriteRow appends one operation's outcome.
func (cw *CSVWriter) WriteRow(operation, term, result string, delay time.Duration) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.flushed {
		return fmt.Errorf("cannot write: writer already closed")
	}

	record := []string{
		time.Now().Format(time.RFC3339Nano),
		operation,
		term,
		result,
		fmt.Sprintf("%.3f", float64(delay.Microseconds())/1000),
	}
	if err := cw.writer.Write(record); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.flushed {
		return nil
	}
	cw.writer.Flush()
	cw.flushed = true
	if err := cw.writer.Error(); err != nil {
		_ = cw.file.Close()
		return fmt.Errorf("flush error: %w", err)
	}
	return cw.file.Close()
}

// NullWriter discards every row; used when csv.enabled=false (ground:
// client/tester/writer/nullwriter.go).
type NullWriter struct{}

func (NullWriter) WriteRow(operation, term, result string, delay time.Duration) error { return nil }
func (NullWriter) Close() error                                                       { return nil }

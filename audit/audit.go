// Package audit provides an append-only JSONL trail of analysis calls.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/evandepol/homewatch/types"
)

// Truncation caps keep the trail's file growth bounded.
const (
	maxPromptChars   = 500
	maxResponseChars = 1000
)

// Record is a single audited analysis call.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Sequence  int64          `json:"sequence"`
	Provider  types.Tier     `json:"provider"`
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt,omitempty"`
	Response  string         `json:"response,omitempty"`
	Usage     *Usage         `json:"usage,omitempty"`
	Cost      types.CostInfo `json:"cost"`
	Error     string         `json:"error,omitempty"`
}

// Usage mirrors provider token accounting when available.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Trail writes call records as one JSON object per line.
type Trail struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	echo     io.Writer
}

// Open creates or opens an audit trail in the specified directory. One file
// per process start, timestamped for rotation.
func Open(dir string) (*Trail, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	filename := fmt.Sprintf("analysis-%s.jsonl", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	return &Trail{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// EchoTo additionally mirrors each record to w (typically stdout).
func (t *Trail) EchoTo(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.echo = w
}

// Close flushes and closes the trail.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.writer.Flush(); err != nil {
		return err
	}
	return t.file.Close()
}

// Append writes one record, truncating prompt and response to their caps.
// Callers treat a write failure as log-and-continue; the analysis result
// never depends on the trail.
func (t *Trail) Append(record Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sequence++
	record.Sequence = t.sequence
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	record.Prompt = truncate(record.Prompt, maxPromptChars)
	record.Response = truncate(record.Response, maxResponseChars)

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	if _, err := t.writer.Write(line); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if _, err := t.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("flush audit trail: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("sync audit trail: %w", err)
	}

	if t.echo != nil {
		_, _ = t.echo.Write(append(line, '\n'))
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// Reader replays an audit trail file.
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates a reader for the specified trail file.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- path comes from our own Glob
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// Next reads the next record, returning io.EOF at the end of the file.
func (r *Reader) Next() (*Record, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var record Record
	if err := json.Unmarshal(r.scanner.Bytes(), &record); err != nil {
		return nil, fmt.Errorf("unmarshal audit record: %w", err)
	}
	return &record, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay walks all trail files in dir and hands records newer than since to
// the handler.
func Replay(dir string, since time.Time, handler func(*Record) error) error {
	files, err := filepath.Glob(filepath.Join(dir, "analysis-*.jsonl"))
	if err != nil {
		return fmt.Errorf("list audit files: %w", err)
	}

	for _, file := range files {
		if err := replayFile(file, since, handler); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string, since time.Time, handler func(*Record) error) error {
	reader, err := NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		record, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if record.Timestamp.After(since) {
			if err := handler(record); err != nil {
				return err
			}
		}
	}
}

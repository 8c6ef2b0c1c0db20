package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogBuffer keeps the most recent log lines in memory for /api/logs. It is
// an io.Writer meant to sit next to stderr in the logger's output.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{max: maxLines}
}

// Write implements io.Writer. An unterminated trailing line is held until
// the rest of it arrives.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.appendLineLocked(string(data[:i]))
		data = data[i+1:]
	}
	b.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (b *LogBuffer) appendLineLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		over := len(b.lines) - b.max
		b.lines = b.lines[over:]
		b.dropped += uint64(over)
	}
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

// Snapshot returns up to tail of the newest lines.
func (b *LogBuffer) Snapshot(tail int) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tail <= 0 {
		tail = 200
	}
	if tail > len(b.lines) {
		tail = len(b.lines)
	}
	lines = append([]string(nil), b.lines[len(b.lines)-tail:]...)
	return lines, b.dropped
}

func (b *LogBuffer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	tail := 200
	if s := strings.TrimSpace(r.URL.Query().Get("tail")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 5000 {
			http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
			return
		}
		tail = v
	}

	lines, dropped := b.Snapshot(tail)
	w.Header().Set("Cache-Control", "no-store")

	if strings.EqualFold(r.URL.Query().Get("format"), "text") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if dropped > 0 {
			_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
		}
		for _, line := range lines {
			_, _ = fmt.Fprintln(w, line)
		}
		return
	}

	writeJSON(w, LogsResponse{
		NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
		Dropped: dropped,
		Lines:   lines,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"cheeserun.ai/internal/sim/match"
)

// JSONLZstdWriter appends JSON lines to a zstd-compressed file. The file is
// opened on first write.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Path() string { return w.path }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// ReadJSONLZstd calls fn for every line of a file written by JSONLZstdWriter.
func ReadJSONLZstd(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	r := bufio.NewReaderSize(dec, 128*1024)
	for {
		line, err := r.ReadBytes('\n')
		if n := len(line); n > 0 && line[n-1] == '\n' {
			line = line[:n-1]
		}
		if len(line) > 0 {
			if ferr := fn(line); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// TurnLogger writes one JSONL entry per resolved turn (compressed).
type TurnLogger struct{ w *JSONLZstdWriter }

var _ match.TurnSink = (*TurnLogger)(nil)

func NewTurnLogger(matchDir string) *TurnLogger {
	return &TurnLogger{w: NewJSONLZstdWriter(filepath.Join(matchDir, "turns.jsonl.zst"))}
}

func (l *TurnLogger) WriteTurn(rec match.TurnRecord) error { return l.w.Write(rec) }
func (l *TurnLogger) Close() error                         { return l.w.Close() }
func (l *TurnLogger) Path() string                         { return l.w.Path() }

// ResultEntry summarizes a finished or aborted match.
type ResultEntry struct {
	MatchID string                    `json:"match_id"`
	Mode    string                    `json:"mode"`
	Turns   int                       `json:"turns"`
	Scores  map[string]string         `json:"scores,omitempty"`
	Actions map[string]map[string]int `json:"actions,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// ResultLogger writes match results JSONL entries (compressed).
type ResultLogger struct{ w *JSONLZstdWriter }

func NewResultLogger(matchDir string) *ResultLogger {
	return &ResultLogger{w: NewJSONLZstdWriter(filepath.Join(matchDir, "result.jsonl.zst"))}
}

func (l *ResultLogger) WriteResult(v ResultEntry) error { return l.w.Write(v) }
func (l *ResultLogger) Close() error                    { return l.w.Close() }

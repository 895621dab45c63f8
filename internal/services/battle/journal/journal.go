// Package journal appends battle outcomes to hourly zstd-compressed JSONL files.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const filePrefix = "outcomes"

// Entry is one battle outcome line.
type Entry struct {
	BattleID          string    `json:"battle_id"`
	RegionKey         string    `json:"region_key"`
	Status            string    `json:"status"`
	AttackerFactionID string    `json:"attacker_faction_id"`
	DefenderFactionID string    `json:"defender_faction_id,omitempty"`
	CurrentDefense    int64     `json:"current_defense"`
	AttackerScore     int64     `json:"attacker_score"`
	DefenderScore     int64     `json:"defender_score"`
	RegionTransferred bool      `json:"region_transferred"`
	ResolvedAt        time.Time `json:"resolved_at"`
}

// Writer appends entries to <dir>/outcomes-<source>-YYYY-MM-DD-HH.jsonl.zst.
// Every entry is written as its own zstd frame with a single write, so a
// file stays readable after a crash mid-hour.
type Writer struct {
	dir    string
	source string
	now    func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
}

// NewWriter returns a writer rooted at dir. Processes sharing dir must use
// distinct sources.
func NewWriter(dir string, source string) *Writer {
	return &Writer{dir: dir, source: strings.TrimSpace(source), now: time.Now}
}

// Append writes one entry to the current hourly file.
func (w *Writer) Append(entry Entry) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.f == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	frame := w.enc.EncodeAll(append(b, '\n'), nil)
	if _, err := w.f.Write(frame); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// Close releases the current file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	if w.enc == nil {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return fmt.Errorf("create journal encoder: %w", err)
		}
		w.enc = enc
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	w.f = f
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *Writer) pathForHour(hour string) string {
	name := filePrefix
	if w.source != "" {
		name += "-" + w.source
	}
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", name, hour))
}

// ReadFile decodes every entry of one journal file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create journal decoder: %w", err)
	}
	defer dec.Close()

	var entries []Entry
	jd := json.NewDecoder(dec)
	for {
		var entry Entry
		if err := jd.Decode(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, fmt.Errorf("decode journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
}

// Files lists the journal files under dir, ordered by source then hour.
func Files(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, filePrefix+"-*.jsonl.zst"))
}

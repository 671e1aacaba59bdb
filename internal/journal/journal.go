// Package journal is the Worker's local, append-only record of successful
// mints. It is a forensic projection, not authoritative state: the
// Monitor's ledger remains the source of truth.
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Entry is one completed mint, as appended to the journal file.
type Entry struct {
	TxID          string `json:"txid"`
	InscriptionID string `json:"inscription_id"`
	Destination   string `json:"destination"`
	TimestampMS   int64  `json:"timestamp"`
}

// Journal appends whole-record JSON lines to a flat file. A crash mid-write
// can leave a partial trailing line; Load tolerates and discards it rather
// than failing startup.
type Journal struct {
	mu   sync.Mutex
	path string
}

// Open returns a Journal bound to path. The file is created on first
// Append if it does not already exist.
func Open(path string) *Journal {
	return &Journal{path: path}
}

// Append writes e as one JSON line and fsyncs it, so a completed mint
// survives a crash immediately after the subprocess succeeds.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return err
	}
	return f.Sync()
}

// Load reads every complete entry from the journal file. A malformed or
// partial trailing line, the expected shape after a crash mid-write, is
// logged and dropped rather than failing the read.
func (j *Journal) Load() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			log.Warn("journal: discarding unreadable record", "err", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Now is a small seam so callers don't sprinkle time.Now() calls that are
// awkward to keep consistent with TimestampMS's millisecond unit.
func Now() int64 {
	return time.Now().UnixMilli()
}

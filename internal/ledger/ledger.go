// Package ledger is the monitor's durable store: a single-file SQLite
// database holding one row per observed transaction. It is the sole owner
// of transaction records; components inside the monitor process call its
// methods directly, and the worker reaches it only through the monitor's
// HTTP API.
package ledger

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	txid            TEXT PRIMARY KEY,
	first_seen_ms   INTEGER NOT NULL,
	amount_sats     INTEGER NOT NULL,
	block_height    INTEGER,
	sender_address  TEXT,
	status          TEXT NOT NULL,
	inscription_id  TEXT,
	completed_at_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
`

// Ledger serializes every mutation behind a single write lane while letting
// reads run concurrently.
type Ledger struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open creates or attaches to the single-file database at path, applying
// the schema if it is missing. A failure here is fatal to the monitor
// process: there is no usable fallback store.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	// A file-backed SQLite connection is not safe for concurrent writers;
	// the Ledger's own RWMutex is the single writer lane, so the pool only
	// needs one physical connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	log.Info("ledger opened", "path", path)
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Insert records txid if it is new. Re-ingestion of a known txid is a
// no-op: Inserted is false and the existing record, if any, is left
// untouched.
func (l *Ledger) Insert(rec Record) (inserted bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM transactions WHERE txid = ?`, rec.TxID).Scan(&exists); err != sql.ErrNoRows {
		if err != nil {
			return false, fmt.Errorf("check existing txid: %w", err)
		}
		// Row found: primary-key conflict, treat as already-ingested.
		return false, nil
	}

	_, err = tx.Exec(`
		INSERT INTO transactions
			(txid, first_seen_ms, amount_sats, block_height, sender_address, status, inscription_id, completed_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL)`,
		rec.TxID, rec.FirstSeenMS, rec.AmountSats, rec.BlockHeight, rec.SenderAddress, string(rec.Status),
	)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit insert: %w", err)
	}
	return true, nil
}

// Get returns the record for txid, or ok=false if none exists.
func (l *Ledger) Get(txid string) (rec Record, ok bool, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	row := l.db.QueryRow(`
		SELECT txid, first_seen_ms, amount_sats, block_height, sender_address, status, inscription_id, completed_at_ms
		FROM transactions WHERE txid = ?`, txid)
	rec, err = scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// ListPending returns every record with status=pending, oldest first.
func (l *Ledger) ListPending() ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(`
		SELECT txid, first_seen_ms, amount_sats, block_height, sender_address, status, inscription_id, completed_at_ms
		FROM transactions WHERE status = ? ORDER BY first_seen_ms ASC`, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListCompleted returns every completed record, newest confirmation first.
func (l *Ledger) ListCompleted() ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(`
		SELECT txid, first_seen_ms, amount_sats, block_height, sender_address, status, inscription_id, completed_at_ms
		FROM transactions WHERE status = ? ORDER BY completed_at_ms DESC`, string(StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Counts reports the total row count and the pending subset.
func (l *Ledger) Counts() (Counts, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var c Counts
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&c.Total); err != nil {
		return Counts{}, fmt.Errorf("count total: %w", err)
	}
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE status = ?`, string(StatusPending)).Scan(&c.Pending); err != nil {
		return Counts{}, fmt.Errorf("count pending: %w", err)
	}
	return c, nil
}

// Confirm transitions txid from pending to completed, recording the
// inscription id and completion time. A missing txid reports
// ConfirmNotFound; an already-completed txid and a not_required txid both
// report ConfirmAlreadyCompleted. The not_required→already_completed
// mapping is intentional and prevents accidental resurrection of a
// terminal record.
func (l *Ledger) Confirm(txid, inscriptionID string) (ConfirmResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return ConfirmNotFound, fmt.Errorf("begin confirm: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`SELECT status FROM transactions WHERE txid = ?`, txid).Scan(&status)
	if err == sql.ErrNoRows {
		return ConfirmNotFound, nil
	}
	if err != nil {
		return ConfirmNotFound, fmt.Errorf("lookup for confirm: %w", err)
	}

	switch Status(status) {
	case StatusCompleted, StatusNotRequired:
		return ConfirmAlreadyCompleted, nil
	case StatusPending:
		now := time.Now().UnixMilli()
		_, err = tx.Exec(`
			UPDATE transactions SET status = ?, inscription_id = ?, completed_at_ms = ?
			WHERE txid = ? AND status = ?`,
			string(StatusCompleted), inscriptionID, now, txid, string(StatusPending))
		if err != nil {
			return ConfirmNotFound, fmt.Errorf("apply confirm: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return ConfirmNotFound, fmt.Errorf("commit confirm: %w", err)
		}
		return ConfirmOK, nil
	default:
		return ConfirmNotFound, fmt.Errorf("unrecognized status %q for txid %s", status, txid)
	}
}

// SweepRetention deletes non-pending records older than horizon. It is
// disabled by default — callers must opt in by configuring a positive
// horizon.
func (l *Ledger) SweepRetention(horizon time.Duration) (int64, error) {
	if horizon <= 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-horizon).UnixMilli()
	res, err := l.db.Exec(`
		DELETE FROM transactions
		WHERE status != ?
		AND COALESCE(completed_at_ms, first_seen_ms) < ?`,
		string(StatusPending), cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep retention: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Info("retention sweep removed records", "count", n, "horizon", horizon)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var status string
	if err := row.Scan(
		&rec.TxID, &rec.FirstSeenMS, &rec.AmountSats, &rec.BlockHeight, &rec.SenderAddress,
		&status, &rec.InscriptionID, &rec.CompletedAtMS,
	); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

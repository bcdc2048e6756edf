// Package store is the read-only session store behind the sample
// cache: one serialized multimodal record per zero-padded decimal key.
// It uses modernc.org/sqlite for pure-Go, CGO-free access; the store is
// opened read-only with WAL so concurrent cache-build workers read
// without writer lock contention.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"fmt"

	_ "modernc.org/sqlite"
)

// KeyDigits is the zero-padding width of the ASCII decimal sample keys.
const KeyDigits = 10

// AuxInfo carries the clip-level metadata stored with every record.
type AuxInfo struct {
	StartTime float64
	EndTime   float64
	Vid       string // speaker identifier
}

// Record is one serialized session excerpt. Shapes:
//
//	PoseSeq     T x (J*3) resampled joint positions
//	VecSeq      T x poseDim direction-vector representation
//	Audio       raw samples at the configured rate
//	Spectrogram 128 x specLen
//	MFCC        numMFCC x mfccLen
type Record struct {
	Words       []TimedWord
	PoseSeq     [][]float64
	VecSeq      [][]float64
	Audio       []float64
	Spectrogram [][]float64
	MFCC        [][]float64
	Aux         AuxInfo
}

// TimedWord mirrors grid.WordEvent without importing it; the store
// stays a plain codec layer.
type TimedWord struct {
	Word  string
	Start float64
	End   float64
}

// Key renders a sample index as its store key.
func Key(idx int) string {
	return fmt.Sprintf("%0*d", KeyDigits, idx)
}

// Store wraps one sessions database.
type Store struct {
	db       *sql.DB
	writable bool
}

// Open opens an existing store read-only. Many Store handles may read
// the same file concurrently.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Create opens (creating if needed) a writable store. The write side is
// only exercised by ingestion and tests; the pipeline itself reads.
func Create(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS sessions (key TEXT PRIMARY KEY, record BLOB NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &Store{db: db, writable: true}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Count reports the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Get fetches and decodes the record at the given sample index.
func (s *Store) Get(ctx context.Context, idx int) (*Record, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM sessions WHERE key = ?`, Key(idx)).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: not found", Key(idx))
	}
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", Key(idx), err)
	}
	return decodeRecord(blob)
}

// Put stores a record under the given sample index.
func (s *Store) Put(ctx context.Context, idx int, rec *Record) error {
	if !s.writable {
		return fmt.Errorf("session store is read-only")
	}
	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (key, record) VALUES (?, ?)`, Key(idx), blob)
	if err != nil {
		return fmt.Errorf("put session %s: %w", Key(idx), err)
	}
	return nil
}

// ForEach walks all records in key order. Used to build the speaker
// vocabulary without loading the whole store.
func (s *Store) ForEach(ctx context.Context, fn func(idx int, rec *Record) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, record FROM sessions ORDER BY key`)
	if err != nil {
		return fmt.Errorf("scan sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			return fmt.Errorf("scan session row: %w", err)
		}
		rec, err := decodeRecord(blob)
		if err != nil {
			return fmt.Errorf("session %s: %w", key, err)
		}
		var idx int
		if _, err := fmt.Sscanf(key, "%d", &idx); err != nil {
			return fmt.Errorf("session key %q: %w", key, err)
		}
		if err := fn(idx, rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func encodeRecord(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode session record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(blob []byte) (*Record, error) {
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	return &rec, nil
}

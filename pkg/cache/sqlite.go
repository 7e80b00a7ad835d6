package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps entries in a single sqlite table, one row per key.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; serialize instead of retrying SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS search_cache (
			cache_key TEXT NOT NULL PRIMARY KEY,
			data TEXT NOT NULL,
			fetched_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(hash string) (Entry, error) {
	var data string

	err := s.db.QueryRow(
		`SELECT data FROM search_cache WHERE cache_key = ?`,
		hash,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}

	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, hash, err)
	}
	return e, nil
}

func (s *SQLiteStore) Save(hash string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO search_cache (cache_key, data, fetched_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(cache_key)
		 DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at`,
		hash, string(data), e.Timestamp.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) Prune(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM search_cache WHERE fetched_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

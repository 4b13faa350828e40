package httpcache

import (
	"database/sql"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record holds the cache validators remembered for one feed URL.
type Record struct {
	// URL is the feed address the validators belong to.
	URL string

	// ETag is the entity tag from the last 200 response, verbatim.
	ETag string

	// LastModified is the Last-Modified header from the last 200
	// response, verbatim. Sent back as If-Modified-Since.
	LastModified string

	// LastStatus is the status code of the most recent fetch.
	LastStatus int

	// FetchedAt is when the feed was last fetched (any status).
	FetchedAt time.Time
}

// RecordFrom captures the cache validators from a completed response.
func RecordFrom(url string, resp *http.Response, fetchedAt time.Time) *Record {
	rec := &Record{
		URL:       url,
		FetchedAt: fetchedAt,
	}
	if resp != nil {
		rec.ETag = resp.Header.Get("ETag")
		rec.LastModified = resp.Header.Get("Last-Modified")
		rec.LastStatus = resp.StatusCode
	}
	return rec
}

// ApplyConditionalHeaders sets If-None-Match and If-Modified-Since on req
// from the record's validators, so an unchanged feed answers 304 instead
// of resending its body. A nil record leaves the request untouched.
func (r *Record) ApplyConditionalHeaders(req *http.Request) {
	if r == nil {
		return
	}
	if r.ETag != "" {
		req.Header.Set("If-None-Match", r.ETag)
	}
	if r.LastModified != "" {
		req.Header.Set("If-Modified-Since", r.LastModified)
	}
}

// Store persists cache validators per feed URL in a SQLite database, so
// refreshes stay conditional across process restarts.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// WAL mode and a busy timeout keep concurrent refreshers from
	// tripping over each other.
	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS feed_cache (
			url TEXT PRIMARY KEY,
			etag TEXT NOT NULL DEFAULT '',
			last_modified TEXT NOT NULL DEFAULT '',
			last_status INTEGER NOT NULL DEFAULT 0,
			fetched_at INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the record for url, or nil when the URL has never been
// fetched.
func (s *Store) Lookup(url string) (*Record, error) {
	query := `SELECT url, etag, last_modified, last_status, fetched_at FROM feed_cache WHERE url = ?`
	row := s.db.QueryRow(query, url)

	var rec Record
	var fetchedAt int64
	err := row.Scan(&rec.URL, &rec.ETag, &rec.LastModified, &rec.LastStatus, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if fetchedAt > 0 {
		rec.FetchedAt = time.Unix(fetchedAt, 0)
	}
	return &rec, nil
}

// Save stores rec, replacing any earlier record for the same URL.
func (s *Store) Save(rec *Record) error {
	query := `INSERT INTO feed_cache (url, etag, last_modified, last_status, fetched_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET etag = excluded.etag, last_modified = excluded.last_modified,
		last_status = excluded.last_status, fetched_at = excluded.fetched_at`
	_, err := s.db.Exec(query, rec.URL, rec.ETag, rec.LastModified, rec.LastStatus, rec.FetchedAt.Unix())
	return err
}

// Touch updates the status and fetch time for url, keeping its validators.
// Used when a fetch answers 304: the stored ETag and Last-Modified still
// describe the current content.
func (s *Store) Touch(url string, status int, fetchedAt time.Time) error {
	query := `UPDATE feed_cache SET last_status = ?, fetched_at = ? WHERE url = ?`
	_, err := s.db.Exec(query, status, fetchedAt.Unix(), url)
	return err
}

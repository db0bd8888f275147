package cache

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLite is a Store backed by a sqlite database, for deployments that want
// the cache to survive restarts. It keeps the same count-bounded LRU
// contract as the in-memory store by ordering entries on a touch counter.
//
// Responses are persisted as their header block plus body bytes and
// re-parsed on load, so segment boundaries collapse into a single segment;
// the byte content of a served response is unchanged.
type SQLite struct {
	mu       sync.Mutex
	db       *sql.DB
	capacity int
	touch    int64
}

// NewSQLite opens (or creates) the cache database at filename.
// If filename is empty, an in-memory database is used.
func NewSQLite(filename string, capacity int) (*SQLite, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		url TEXT PRIMARY KEY,
		touched INTEGER,
		received_at INTEGER,
		header BLOB,
		body BLOB
	)`)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS touched_idx ON cache (touched)")
	if err != nil {
		return nil, err
	}
	s := &SQLite{
		db:       db,
		capacity: capacity,
	}
	// continue the touch sequence where the previous process left off
	err = db.QueryRow("SELECT COALESCE(MAX(touched), 0) FROM cache").Scan(&s.touch)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Exists(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var one int
	err := s.db.QueryRow("SELECT 1 FROM cache WHERE url = ?", url).Scan(&one)
	return err == nil
}

func (s *SQLite) Get(url string) (Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var header, body []byte
	var receivedAt int64
	err := s.db.QueryRow(
		"SELECT header, body, received_at FROM cache WHERE url = ?", url,
	).Scan(&header, &body, &receivedAt)
	if err != nil {
		return Response{}, false
	}
	var segments [][]byte
	if len(body) > 0 {
		segments = [][]byte{body}
	}
	res, err := ParseResponse(url, header, segments, time.Unix(receivedAt, 0))
	if err != nil {
		return Response{}, false
	}
	s.touch++
	s.db.Exec("UPDATE cache SET touched = ? WHERE url = ?", s.touch, url)
	return res, true
}

func (s *SQLite) Put(url string, res Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch++
	s.db.Exec(`INSERT OR REPLACE INTO cache
		(url, touched, received_at, header, body) VALUES (?, ?, ?, ?, ?)`,
		url, s.touch, res.ReceivedAt.Unix(), res.Header, res.Body())
	s.db.Exec(`DELETE FROM cache WHERE url IN (
		SELECT url FROM cache ORDER BY touched ASC
		LIMIT MAX((SELECT COUNT(*) FROM cache) - ?, 0))`, s.capacity)
}

func (s *SQLite) Remove(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Exec("DELETE FROM cache WHERE url = ?", url)
}

func (s *SQLite) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cache").Scan(&count); err != nil {
		return 0
	}
	return count
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	name TEXT PRIMARY KEY,
	url  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	id             INTEGER PRIMARY KEY,
	source_name    TEXT NOT NULL,
	date           TEXT NOT NULL,
	image_ref      TEXT NOT NULL,
	remote_file_id TEXT,
	UNIQUE (source_name, date)
);
CREATE TABLE IF NOT EXISTS subscriptions (
	destination_id INTEGER NOT NULL,
	source_name    TEXT NOT NULL,
	UNIQUE (destination_id, source_name)
);`

const (
	sqlUpsertSource    = `INSERT INTO sources (name, url) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET url = excluded.url;`
	sqlGetSources      = `SELECT name, url FROM sources;`
	sqlLatestEntryDate = `SELECT date FROM entries WHERE source_name = ? ORDER BY date DESC LIMIT 1;`
	sqlAppendEntry     = `INSERT OR IGNORE INTO entries (source_name, date, image_ref) VALUES (?, ?, ?);`
	sqlRandomEntry     = `SELECT id, source_name, date, image_ref, remote_file_id FROM entries WHERE source_name = ? ORDER BY RANDOM() LIMIT 1;`
	sqlEntryForDate    = `SELECT id, source_name, date, image_ref, remote_file_id FROM entries WHERE source_name = ? AND date = ?;`
	sqlSetRemoteFileID = `UPDATE entries SET remote_file_id = ? WHERE image_ref = ?;`
	sqlSubscribe       = `INSERT OR IGNORE INTO subscriptions (destination_id, source_name) VALUES (?, ?);`
	sqlUnsubscribe     = `DELETE FROM subscriptions WHERE destination_id = ? AND source_name = ?;`
	sqlIsSubscribed    = `SELECT COUNT(1) FROM subscriptions WHERE destination_id = ? AND source_name = ?;`
	sqlGetSubscribers  = `SELECT destination_id FROM subscriptions WHERE source_name = ? ORDER BY destination_id ASC;`
	sqlGetSubsAll      = `SELECT destination_id, source_name FROM subscriptions ORDER BY destination_id ASC, source_name ASC;`
)

// sqlStore is the sqlite-backed Store. A single worker goroutine owns the
// database handle; every statement, reads included, is submitted to it over
// a request channel and answered on a per-request response channel. That
// serializes access without any locking in the callers.
type sqlStore struct {
	db   Conn
	log  *slog.Logger
	reqs chan request
	done chan struct{}
	wg   sync.WaitGroup
}

type request struct {
	fn   func(db Conn) (interface{}, error)
	resp chan response
}

type response struct {
	val interface{}
	err error
}

var _ Store = (*sqlStore)(nil)

// New opens (creating if needed) the sqlite database at path and starts the
// writer worker.
func New(log *slog.Logger, path string) (Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// One connection only: sqlite handles one writer at a time and the
	// worker is the sole user of the handle anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &sqlStore{
		db:   db,
		log:  log,
		reqs: make(chan request),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	return s, nil
}

func (s *sqlStore) worker() {
	defer s.wg.Done()
	for {
		select {
		case req := <-s.reqs:
			val, err := req.fn(s.db)
			req.resp <- response{val: val, err: err}
		case <-s.done:
			// Answer anything that won the send race against Close.
			for {
				select {
				case req := <-s.reqs:
					req.resp <- response{err: ErrClosed}
				default:
					return
				}
			}
		}
	}
}

// do submits fn to the worker and blocks for its result.
func (s *sqlStore) do(fn func(db Conn) (interface{}, error)) (interface{}, error) {
	req := request{fn: fn, resp: make(chan response, 1)}
	select {
	case s.reqs <- req:
	case <-s.done:
		return nil, ErrClosed
	}
	resp := <-req.resp
	return resp.val, resp.err
}

// Close stops the worker and closes the database handle.
func (s *sqlStore) Close() error {
	close(s.done)
	s.wg.Wait()
	if c, ok := s.db.(*sqlx.DB); ok {
		return c.Close()
	}
	return nil
}

// UpsertSource inserts a source or updates its URL in place. Repeat calls
// with the same name are not an error.
func (s *sqlStore) UpsertSource(name, url string) error {
	_, err := s.do(func(db Conn) (interface{}, error) {
		return db.Exec(sqlUpsertSource, name, url)
	})
	return err
}

// Sources returns all known sources.
func (s *sqlStore) Sources() ([]Source, error) {
	val, err := s.do(func(db Conn) (interface{}, error) {
		srcs := make([]Source, 0)
		err := db.Select(&srcs, sqlGetSources)
		return srcs, err
	})
	if err != nil {
		return nil, err
	}
	return val.([]Source), nil
}

// LatestEntryDate returns the newest recorded date for the source, or
// ErrNotFound if it has no entries yet. Computed on demand since it is the
// crawl stop condition.
func (s *sqlStore) LatestEntryDate(sourceName string) (Date, error) {
	val, err := s.do(func(db Conn) (interface{}, error) {
		var d Date
		err := db.Get(&d, sqlLatestEntryDate, sourceName)
		return d, err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val.(Date), nil
}

// AppendEntry records a newly crawled entry. Inserting a (source, date)
// pair that already exists is a silent no-op: this is the dedup boundary.
func (s *sqlStore) AppendEntry(sourceName string, date Date, imageRef string) error {
	_, err := s.do(func(db Conn) (interface{}, error) {
		res, err := db.Exec(sqlAppendEntry, sourceName, date, imageRef)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			s.log.Debug("entry already indexed", "source", sourceName, "date", date)
		}
		return nil, nil
	})
	return err
}

// RandomEntry returns a uniformly random entry for the source, or
// ErrNotFound if it has none.
func (s *sqlStore) RandomEntry(sourceName string) (Entry, error) {
	return s.getEntry(sqlRandomEntry, sourceName)
}

// EntryForDate returns the source's entry for the given date, or ErrNotFound.
func (s *sqlStore) EntryForDate(sourceName string, date Date) (Entry, error) {
	return s.getEntry(sqlEntryForDate, sourceName, date)
}

func (s *sqlStore) getEntry(query string, args ...interface{}) (Entry, error) {
	val, err := s.do(func(db Conn) (interface{}, error) {
		var e Entry
		err := db.Get(&e, query, args...)
		return e, err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return val.(Entry), nil
}

// SetRemoteFileID back-fills the uploaded asset identifier for an entry.
// Best effort: a failure costs one re-upload later, so it is logged and
// swallowed.
func (s *sqlStore) SetRemoteFileID(imageRef, fileID string) {
	_, err := s.do(func(db Conn) (interface{}, error) {
		return db.Exec(sqlSetRemoteFileID, fileID, imageRef)
	})
	if err != nil {
		s.log.Warn("could not save remote file id", "image_ref", imageRef, "err", err)
	}
}

// Subscribe records that the destination wants the source's daily post.
// Subscribing twice is a no-op.
func (s *sqlStore) Subscribe(destinationID int64, sourceName string) error {
	_, err := s.do(func(db Conn) (interface{}, error) {
		return db.Exec(sqlSubscribe, destinationID, sourceName)
	})
	return err
}

// Unsubscribe removes the subscription if present. Removing an absent pair
// is a no-op.
func (s *sqlStore) Unsubscribe(destinationID int64, sourceName string) error {
	_, err := s.do(func(db Conn) (interface{}, error) {
		return db.Exec(sqlUnsubscribe, destinationID, sourceName)
	})
	return err
}

func (s *sqlStore) IsSubscribed(destinationID int64, sourceName string) (bool, error) {
	val, err := s.do(func(db Conn) (interface{}, error) {
		var n int
		err := db.Get(&n, sqlIsSubscribed, destinationID, sourceName)
		return n, err
	})
	if err != nil {
		return false, err
	}
	return val.(int) > 0, nil
}

func (s *sqlStore) SubscribersForSource(sourceName string) ([]int64, error) {
	val, err := s.do(func(db Conn) (interface{}, error) {
		ids := make([]int64, 0)
		err := db.Select(&ids, sqlGetSubscribers, sourceName)
		return ids, err
	})
	if err != nil {
		return nil, err
	}
	return val.([]int64), nil
}

func (s *sqlStore) Subscriptions() ([]Subscription, error) {
	val, err := s.do(func(db Conn) (interface{}, error) {
		subs := make([]Subscription, 0)
		err := db.Select(&subs, sqlGetSubsAll)
		return subs, err
	})
	if err != nil {
		return nil, err
	}
	return val.([]Subscription), nil
}

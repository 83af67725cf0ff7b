package store

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound signals a normal empty result, distinct from a storage failure.
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned for requests submitted after Close.
	ErrClosed = errors.New("store closed")
)

type SourceStore interface {
	UpsertSource(name, url string) error
	Sources() ([]Source, error)
}

type EntryStore interface {
	LatestEntryDate(sourceName string) (Date, error)
	AppendEntry(sourceName string, date Date, imageRef string) error
	RandomEntry(sourceName string) (Entry, error)
	EntryForDate(sourceName string, date Date) (Entry, error)
	SetRemoteFileID(imageRef, fileID string)
}

type SubscriptionStore interface {
	Subscribe(destinationID int64, sourceName string) error
	Unsubscribe(destinationID int64, sourceName string) error
	IsSubscribed(destinationID int64, sourceName string) (bool, error)
	SubscribersForSource(sourceName string) ([]int64, error)
	Subscriptions() ([]Subscription, error)
}

type Store interface {
	SourceStore
	EntryStore
	SubscriptionStore
	Close() error
}

type Conn interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
}

var _ Conn = (*sqlx.DB)(nil)

package store

import (
	"database/sql"
	"time"
)

// Date is a calendar day in ISO YYYY-MM-DD form. Stored as text, its
// lexicographic order equals calendar order, so MAX(date) works unaided.
type Date string

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return Date(t.Format(time.DateOnly))
}

// Source is one tracked comic strip series.
type Source struct {
	Name string `db:"name"`
	URL  string `db:"url"`
}

// Entry is one dated, indexed strip of a Source. Date and ImageRef never
// change after insert; RemoteFileID may be back-filled after an upload.
type Entry struct {
	ID           int64          `db:"id"`
	SourceName   string         `db:"source_name"`
	Date         Date           `db:"date"`
	ImageRef     string         `db:"image_ref"`
	RemoteFileID sql.NullString `db:"remote_file_id"`
}

// Subscription records that a destination wants the daily post for a source.
type Subscription struct {
	DestinationID int64  `db:"destination_id"`
	SourceName    string `db:"source_name"`
}

// Package comics composes the catalog and the crawl engine into the
// caller-facing operations: refreshing the index and answering random,
// today and subscription queries.
package comics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jsirkia/dailystrips/internal/scrape"
	"github.com/jsirkia/dailystrips/internal/store"
)

// Crawler indexes one source's not-yet-seen strips.
type Crawler interface {
	Crawl(ctx context.Context, src store.Source) (int, error)
}

// FrontpageLister discovers the comics available upstream.
type FrontpageLister interface {
	Frontpage(ctx context.Context) ([]scrape.Listing, error)
}

type Service struct {
	store     store.Store
	crawler   Crawler
	frontpage FrontpageLister
	log       *slog.Logger
	now       func() time.Time
}

func New(st store.Store, crawler Crawler, frontpage FrontpageLister, log *slog.Logger) *Service {
	return &Service{
		store:     st,
		crawler:   crawler,
		frontpage: frontpage,
		log:       log,
		now:       time.Now,
	}
}

// RefreshStats summarizes one refresh pass for observability.
type RefreshStats struct {
	Sources    int
	NewEntries int
	Failed     int
}

// RefreshAll discovers the upstream comic listing, upserts each source and
// crawls it. A failure on one source is logged and counted, never letting
// it abort the remaining sources. Only a failure to list the frontpage at
// all aborts the pass.
func (s *Service) RefreshAll(ctx context.Context) (RefreshStats, error) {
	var stats RefreshStats

	listings, err := s.frontpage.Frontpage(ctx)
	if err != nil {
		return stats, err
	}

	for _, l := range listings {
		if err := s.store.UpsertSource(l.Name, l.HomepageURL); err != nil {
			s.log.Error("could not save source", "source", l.Name, "err", err)
			stats.Failed++
			continue
		}
		seen, err := s.crawler.Crawl(ctx, store.Source{Name: l.Name, URL: l.HomepageURL})
		stats.NewEntries += seen
		if err != nil {
			s.log.Error("crawl failed", "source", l.Name, "new_entries", seen, "err", err)
			stats.Failed++
			continue
		}
		stats.Sources++
	}

	s.log.Info("refresh finished",
		"sources", stats.Sources,
		"new_entries", stats.NewEntries,
		"failed", stats.Failed,
	)
	return stats, nil
}

// TodayEntry returns the source's strip dated today, or nil when none has
// been indexed yet. Nothing to post is a normal outcome, not an error.
func (s *Service) TodayEntry(sourceName string) (*store.Entry, error) {
	return s.lookup(func() (store.Entry, error) {
		return s.store.EntryForDate(sourceName, store.DateOf(s.now()))
	})
}

// RandomEntry returns a uniformly random strip of the source, or nil when
// the source has no entries.
func (s *Service) RandomEntry(sourceName string) (*store.Entry, error) {
	return s.lookup(func() (store.Entry, error) {
		return s.store.RandomEntry(sourceName)
	})
}

func (s *Service) lookup(get func() (store.Entry, error)) (*store.Entry, error) {
	e, err := get()
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Sources lists the known comics for menu rendering.
func (s *Service) Sources() ([]store.Source, error) {
	return s.store.Sources()
}

func (s *Service) Subscribe(destinationID int64, sourceName string) error {
	return s.store.Subscribe(destinationID, sourceName)
}

func (s *Service) Unsubscribe(destinationID int64, sourceName string) error {
	return s.store.Unsubscribe(destinationID, sourceName)
}

func (s *Service) IsSubscribed(destinationID int64, sourceName string) (bool, error) {
	return s.store.IsSubscribed(destinationID, sourceName)
}

// MarkUploaded caches the remote asset identifier after the delivery layer
// uploaded an image, so repeat posts can skip the binary upload.
func (s *Service) MarkUploaded(imageRef, fileID string) {
	s.store.SetRemoteFileID(imageRef, fileID)
}

// DuePost is one scheduled delivery: the subscribed destination and the
// entry to post there.
type DuePost struct {
	DestinationID int64
	Entry         store.Entry
}

// DuePosts returns today's strip for every subscription that has one.
// Subscriptions whose source has no strip today are silently skipped.
func (s *Service) DuePosts() ([]DuePost, error) {
	subs, err := s.store.Subscriptions()
	if err != nil {
		return nil, err
	}

	today := store.DateOf(s.now())
	due := make([]DuePost, 0, len(subs))
	for _, sub := range subs {
		entry, err := s.store.EntryForDate(sub.SourceName, today)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		due = append(due, DuePost{DestinationID: sub.DestinationID, Entry: entry})
	}
	return due, nil
}

// Package crawl walks a comic's page history backwards from its latest
// strip until it reaches a date the catalog already knows, indexing every
// page it passes on the way.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsirkia/dailystrips/internal/scrape"
	"github.com/jsirkia/dailystrips/internal/store"
)

// PageFetcher resolves and extracts strip pages.
type PageFetcher interface {
	LatestStripURL(ctx context.Context, homepageURL string) (string, error)
	Strip(ctx context.Context, url string) (scrape.Page, error)
}

// ImageStore persists a strip image and returns its stable ref.
type ImageStore interface {
	Store(ctx context.Context, imageURL string) (string, error)
}

// EntryWriter is the slice of the catalog the engine needs.
type EntryWriter interface {
	LatestEntryDate(sourceName string) (store.Date, error)
	AppendEntry(sourceName string, date store.Date, imageRef string) error
}

type Engine struct {
	pages   PageFetcher
	images  ImageStore
	entries EntryWriter
	log     *slog.Logger

	// delay between page fetches keeps the crawl polite.
	delay time.Duration
	// maxDepth caps pages visited per crawl; 0 means unbounded. The first
	// crawl of a source otherwise walks its full history.
	maxDepth int
	after    func(d time.Duration) <-chan time.Time
}

type Args struct {
	Pages    PageFetcher
	Images   ImageStore
	Entries  EntryWriter
	Log      *slog.Logger
	Delay    time.Duration
	MaxDepth int
}

func New(a *Args) *Engine {
	return &Engine{
		pages:    a.Pages,
		images:   a.Images,
		entries:  a.Entries,
		log:      a.Log,
		delay:    a.Delay,
		maxDepth: a.MaxDepth,
		after:    time.After,
	}
}

// Crawl indexes all strips of src newer than the catalog's latest entry,
// returning how many entries it wrote. On failure the entries already
// written stay valid; the next run resumes naturally from the stop date.
func (e *Engine) Crawl(ctx context.Context, src store.Source) (int, error) {
	start := time.Now()
	e.log.Info("start crawl", "source", src.Name)

	stopDate, err := e.entries.LatestEntryDate(src.Name)
	if errors.Is(err, store.ErrNotFound) {
		stopDate = ""
	} else if err != nil {
		return 0, fmt.Errorf("latest entry date for %s: %w", src.Name, err)
	}

	pageURL, err := e.pages.LatestStripURL(ctx, src.URL)
	if err != nil {
		return 0, fmt.Errorf("resolve latest strip for %s: %w", src.Name, err)
	}

	seen := 0
	for depth := 0; e.maxDepth == 0 || depth < e.maxDepth; depth++ {
		page, err := e.pages.Strip(ctx, pageURL)
		if err != nil {
			return seen, fmt.Errorf("fetch strip %s: %w", pageURL, err)
		}

		date := store.DateOf(page.Date)
		if date == stopDate {
			e.log.Debug("already indexed, stopping", "source", src.Name, "date", date)
			break
		}

		// Image first, row second: a crash in between leaves an orphan
		// file rather than an entry pointing nowhere.
		imageRef, err := e.images.Store(ctx, page.ImageURL)
		if err != nil {
			return seen, fmt.Errorf("store image for %s %s: %w", src.Name, date, err)
		}
		if err := e.entries.AppendEntry(src.Name, date, imageRef); err != nil {
			return seen, fmt.Errorf("append entry for %s %s: %w", src.Name, date, err)
		}
		seen++

		if page.PrevURL == "" {
			e.log.Debug("start of history reached", "source", src.Name, "date", date)
			break
		}
		if page.PrevURL == pageURL {
			return seen, fmt.Errorf("loop detected at %s", pageURL)
		}
		pageURL = page.PrevURL

		if e.delay > 0 {
			select {
			case <-ctx.Done():
				return seen, ctx.Err()
			case <-e.after(e.delay):
			}
		}
	}

	e.log.Info("end crawl", "source", src.Name, "new_entries", seen, "elapsed", time.Since(start))
	return seen, nil
}

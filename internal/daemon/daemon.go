// Package daemon triggers the daily refresh-then-post cycle.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jsirkia/dailystrips/internal/comics"
)

// Service is the slice of the comics facade the daemon drives.
type Service interface {
	RefreshAll(ctx context.Context) (comics.RefreshStats, error)
	DuePosts() ([]comics.DuePost, error)
}

// Poster delivers one due post. The messaging layer supplies it; the daemon
// only decides when it runs.
type Poster func(post comics.DuePost) error

type Daemon struct {
	svc    Service
	post   Poster
	hour   int
	minute int
	log    *slog.Logger

	stop  chan struct{}
	wg    sync.WaitGroup
	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

func New(svc Service, post Poster, hour, minute int, log *slog.Logger) *Daemon {
	return &Daemon{
		svc:    svc,
		post:   post,
		hour:   hour,
		minute: minute,
		log:    log,
		stop:   make(chan struct{}),
		now:    time.Now,
		after:  time.After,
	}
}

// Run starts the daily cycle in the background.
func (d *Daemon) Run() {
	d.wg.Add(1)
	go d.loop()
}

// Stop halts the cycle and waits for an in-flight run to finish.
func (d *Daemon) Stop() {
	close(d.stop)
	d.wg.Wait()
}

func (d *Daemon) loop() {
	defer d.wg.Done()
	for {
		next := nextTick(d.now(), d.hour, d.minute)
		d.log.Debug("sleeping until next cycle", "next", next)
		select {
		case <-d.stop:
			return
		case <-d.after(next.Sub(d.now())):
			d.runOnce()
		}
	}
}

func (d *Daemon) runOnce() {
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("recovered from panic in daily cycle", "panic", p)
		}
	}()

	if _, err := d.svc.RefreshAll(context.Background()); err != nil {
		// Posting still runs: yesterday's refresh may have today's strips.
		d.log.Error("daily refresh failed", "err", err)
	}

	due, err := d.svc.DuePosts()
	if err != nil {
		d.log.Error("could not collect due posts", "err", err)
		return
	}
	for _, p := range due {
		if err := d.post(p); err != nil {
			d.log.Error("post failed", "destination", p.DestinationID, "source", p.Entry.SourceName, "err", err)
		}
	}
	d.log.Info("daily cycle finished", "posts", len(due))
}

// nextTick returns the next occurrence of hour:minute strictly after now.
func nextTick(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

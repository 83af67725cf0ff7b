package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jsirkia/dailystrips/internal/comics"
	"github.com/jsirkia/dailystrips/internal/config"
	"github.com/jsirkia/dailystrips/internal/crawl"
	"github.com/jsirkia/dailystrips/internal/daemon"
	"github.com/jsirkia/dailystrips/internal/fetch"
	"github.com/jsirkia/dailystrips/internal/images"
	"github.com/jsirkia/dailystrips/internal/scrape"
	"github.com/jsirkia/dailystrips/internal/store"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		slog.Error("could not read config", "err", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.New(log, cfg.DBPath)
	if err != nil {
		log.Error("could not open store", "path", cfg.DBPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	fetcher := fetch.New(&fetch.Args{
		Client:    &http.Client{Timeout: time.Duration(cfg.FetchTimeoutSecs) * time.Second},
		UserAgent: cfg.UserAgent,
		Retries:   cfg.FetchRetries,
		Wait:      time.Duration(cfg.FetchWaitSecs) * time.Second,
		Log:       log,
	})
	scraper := scrape.New(fetcher, cfg.BaseURL, log)

	imgs, err := images.New(fetcher, cfg.ImageDir, log)
	if err != nil {
		log.Error("could not open image store", "dir", cfg.ImageDir, "err", err)
		os.Exit(1)
	}

	engine := crawl.New(&crawl.Args{
		Pages:    scraper,
		Images:   imgs,
		Entries:  st,
		Log:      log,
		Delay:    time.Duration(cfg.CrawlDelayMillis) * time.Millisecond,
		MaxDepth: cfg.CrawlMaxDepth,
	})
	svc := comics.New(st, engine, scraper, log)

	// Catch up before the first scheduled cycle.
	if _, err := svc.RefreshAll(context.Background()); err != nil {
		log.Error("initial refresh failed", "err", err)
	}

	// The messaging layer owns actual delivery; the engine ends at the
	// delivery contract, so due posts are only surfaced here.
	post := func(p comics.DuePost) error {
		log.Info("due post",
			"destination", p.DestinationID,
			"source", p.Entry.SourceName,
			"date", p.Entry.Date,
			"image_ref", p.Entry.ImageRef,
		)
		return nil
	}

	d := daemon.New(svc, post, cfg.PostHour, cfg.PostMinute, log)
	d.Run()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	d.Stop()
}

package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsirkia/dailystrips/internal/fetch"
	"github.com/jsirkia/dailystrips/internal/testutil/slogtest"
)

const frontpageHTML = `<html><body>
<div class="cartoon-content">
  <span class="title">Fok_It</span>
  <meta itemprop="contentUrl" content="/nyt/fokit"/>
</div>
<div class="cartoon-content">
  <span class="title"> Fingerpori </span>
  <meta itemprop="contentUrl" content="/sarjakuvat/fingerpori"/>
</div>
</body></html>`

const homepageHTML = `<html><body>
<figure>
  <meta itemprop="contentUrl" content="/nyt/art-2000010001234.html"/>
  <img data-srcset="//hs.mediadelivery.fi/img/1920/latest.jpg 1920w"/>
</figure>
<figure>
  <meta itemprop="contentUrl" content="/nyt/art-2000010001233.html"/>
</figure>
</body></html>`

const stripHTML = `<html><body>
<span class="date">tiistai 5.3.2024</span>
<img data-srcset="//hs.mediadelivery.fi/img/1920/abc123.jpg 1920w"/>
<a class="article-navlink prev" href="/nyt/art-2000010001233.html">Edellinen</a>
</body></html>`

const oldestStripHTML = `<html><body>
<span class="date">5.3.</span>
<img data-srcset="//hs.mediadelivery.fi/img/1920/first.jpg 1920w"/>
</body></html>`

// fakeFetcher serves canned bodies by URL without touching the network.
type fakeFetcher struct {
	pages map[string]string
	calls []string
}

var _ fetch.Fetcher = (*fakeFetcher)(nil)

func (f *fakeFetcher) Fetch(_ context.Context, url string) (fetch.FetchedPage, error) {
	f.calls = append(f.calls, url)
	body, found := f.pages[url]
	if !found {
		return fetch.FetchedPage{URL: url, ResponseCode: 404}, assert.AnError
	}
	return fetch.FetchedPage{URL: url, ResponseCode: 200, Body: []byte(body)}, nil
}

func newTestScraper(t *testing.T, pages map[string]string) (*Scraper, *fakeFetcher) {
	t.Helper()
	ff := &fakeFetcher{pages: pages}
	s := New(ff, "https://hs.fi", slogtest.New(t))
	return s, ff
}

func TestFrontpage(t *testing.T) {
	t.Parallel()
	s, _ := newTestScraper(t, map[string]string{
		"https://hs.fi/sarjakuvat/": frontpageHTML,
	})

	listings, err := s.Frontpage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Listing{
		{Name: "Fok_It", HomepageURL: "https://hs.fi/nyt/fokit"},
		{Name: "Fingerpori", HomepageURL: "https://hs.fi/sarjakuvat/fingerpori"},
	}, listings)
}

func TestFrontpageEmpty(t *testing.T) {
	t.Parallel()
	s, _ := newTestScraper(t, map[string]string{
		"https://hs.fi/sarjakuvat/": `<html><body><p>nothing here</p></body></html>`,
	})

	_, err := s.Frontpage(context.Background())
	assert.ErrorIs(t, err, ErrNoListing)
}

func TestLatestStripURL(t *testing.T) {
	t.Parallel()
	s, _ := newTestScraper(t, map[string]string{
		"https://hs.fi/nyt/fokit": homepageHTML,
	})

	url, err := s.LatestStripURL(context.Background(), "https://hs.fi/nyt/fokit")
	require.NoError(t, err)
	assert.Equal(t, "https://hs.fi/nyt/art-2000010001234.html", url)
}

func TestStrip(t *testing.T) {
	t.Parallel()
	s, _ := newTestScraper(t, map[string]string{
		"https://hs.fi/nyt/art-2000010001234.html": stripHTML,
	})

	p, err := s.Strip(context.Background(), "https://hs.fi/nyt/art-2000010001234.html")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), p.Date)
	assert.Equal(t, "https://hs.mediadelivery.fi/img/1920/abc123.jpg", p.ImageURL)
	assert.Equal(t, "https://hs.fi/nyt/art-2000010001233.html", p.PrevURL)
}

func TestStripOldestHasNoPrevURL(t *testing.T) {
	t.Parallel()
	s, _ := newTestScraper(t, map[string]string{
		"https://hs.fi/nyt/art-2000010000001.html": oldestStripHTML,
	})
	s.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	p, err := s.Strip(context.Background(), "https://hs.fi/nyt/art-2000010000001.html")
	require.NoError(t, err)
	assert.Empty(t, p.PrevURL)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), p.Date)
}

func TestStripMissingDate(t *testing.T) {
	t.Parallel()
	s, _ := newTestScraper(t, map[string]string{
		"https://hs.fi/nyt/broken.html": `<html><body><img data-srcset="//x.jpg 1920w"/></body></html>`,
	})

	_, err := s.Strip(context.Background(), "https://hs.fi/nyt/broken.html")
	assert.ErrorIs(t, err, ErrNoDate)
}

func TestStripFetchError(t *testing.T) {
	t.Parallel()
	s, ff := newTestScraper(t, map[string]string{})

	_, err := s.Strip(context.Background(), "https://hs.fi/nyt/gone.html")
	assert.Error(t, err)
	assert.Len(t, ff.calls, 1)
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 11, 20, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		text string
		want time.Time
		err  bool
	}{
		{name: "full date", text: "5.3.2019", want: time.Date(2019, 3, 5, 0, 0, 0, 0, time.UTC)},
		{name: "full date with weekday", text: "maanantai 24.12.2018", want: time.Date(2018, 12, 24, 0, 0, 0, 0, time.UTC)},
		{name: "current year implied", text: "5.3.", want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{name: "current year with weekday", text: "tiistai 5.3.", want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{name: "surrounding whitespace", text: "  keskiviikko 1.1.2020 ", want: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "empty", text: "   ", err: true},
		{name: "garbage", text: "ei päivämäärää", err: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDate(tt.text, now)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

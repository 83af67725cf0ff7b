// Package scrape extracts comic strip fields from hs.fi archive pages: the
// frontpage listing of available strips, the link to a strip's latest page,
// and the date, image and previous-page link of an individual strip page.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"gopkg.in/xmlpath.v2"

	"github.com/jsirkia/dailystrips/internal/fetch"
)

var (
	ErrNoListing  = errors.New("no comics found on frontpage")
	ErrNoLatest   = errors.New("no latest strip link found")
	ErrNoDate     = errors.New("no date found on strip page")
	ErrNoImage    = errors.New("no image found on strip page")
	ErrNoPrevious = errors.New("no previous link found")
)

// The hs.fi archive structure. Strips live on individual article pages
// reachable backwards through the "previous" navigation link.
var (
	xpathCartoon  = xmlpath.MustCompile(`//div[contains(@class, "cartoon-content")]`)
	xpathTitle    = xmlpath.MustCompile(`//span[contains(@class, "title")]`)
	xpathPageURI  = xmlpath.MustCompile(`//meta[@itemprop="contentUrl"]/@content`)
	xpathLatest   = xmlpath.MustCompile(`//figure//meta[@itemprop="contentUrl"]/@content`)
	xpathDate     = xmlpath.MustCompile(`//span[contains(@class, "date")]`)
	xpathImage    = xmlpath.MustCompile(`//img/@data-srcset`)
	xpathPrevious = xmlpath.MustCompile(`//a[contains(@class, "article-navlink prev")]/@href`)
)

// Listing is one comic strip series advertised on the frontpage.
type Listing struct {
	Name        string
	HomepageURL string
}

// Page holds the extracted fields of one strip page. PrevURL is empty on
// the oldest page of a strip's history.
type Page struct {
	Date     time.Time
	ImageURL string
	PrevURL  string
}

type Scraper struct {
	fetcher fetch.Fetcher
	baseURL string
	log     *slog.Logger
	now     func() time.Time
}

// New returns a Scraper rooted at baseURL (e.g. "https://hs.fi").
func New(fetcher fetch.Fetcher, baseURL string, log *slog.Logger) *Scraper {
	return &Scraper{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		now:     time.Now,
	}
}

// Frontpage lists the comic strip series available under /sarjakuvat/.
func (s *Scraper) Frontpage(ctx context.Context) ([]Listing, error) {
	root, err := s.fetchDOM(ctx, s.baseURL+"/sarjakuvat/")
	if err != nil {
		return nil, err
	}

	var listings []Listing
	iter := xpathCartoon.Iter(root)
	for iter.Next() {
		node := iter.Node()
		name, ok := xpathTitle.String(node)
		if !ok {
			continue
		}
		uri, ok := xpathPageURI.String(node)
		if !ok {
			continue
		}
		listings = append(listings, Listing{
			Name:        strings.TrimSpace(name),
			HomepageURL: s.absURL(uri),
		})
	}
	if len(listings) == 0 {
		return nil, ErrNoListing
	}
	return listings, nil
}

// LatestStripURL resolves a source's homepage to the page of its newest
// strip, which is where the backward crawl starts.
func (s *Scraper) LatestStripURL(ctx context.Context, homepageURL string) (string, error) {
	root, err := s.fetchDOM(ctx, homepageURL)
	if err != nil {
		return "", err
	}
	uri, ok := xpathLatest.String(root)
	if !ok {
		return "", ErrNoLatest
	}
	return s.absURL(uri), nil
}

// Strip extracts the date, image URL and previous-page link of one strip page.
func (s *Scraper) Strip(ctx context.Context, url string) (Page, error) {
	root, err := s.fetchDOM(ctx, url)
	if err != nil {
		return Page{}, err
	}

	dateText, ok := xpathDate.String(root)
	if !ok {
		return Page{}, ErrNoDate
	}
	date, err := ParseDate(dateText, s.now())
	if err != nil {
		return Page{}, errors.Wrapf(err, "strip page %s", url)
	}

	srcset, ok := xpathImage.String(root)
	if !ok {
		return Page{}, ErrNoImage
	}

	p := Page{
		Date:     date,
		ImageURL: s.imageURL(srcset),
	}
	if prev, ok := xpathPrevious.String(root); ok {
		p.PrevURL = s.absURL(strings.TrimSpace(prev))
	}
	return p, nil
}

// fetchDOM fetches url and parses the response into an xpath-queryable DOM.
// The html.Parse round trip fixes up the tag soup xmlpath chokes on.
func (s *Scraper) fetchDOM(ctx context.Context, url string) (*xmlpath.Node, error) {
	s.log.Debug("GET", "url", url)
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s failed", url)
	}
	return parseDOM(bytes.NewReader(page.Body))
}

func parseDOM(r io.Reader) (*xmlpath.Node, error) {
	utfRdr, err := charset.NewReader(r, "text/html")
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert response to utf8")
	}
	root, err := html.Parse(utfRdr)
	if err != nil {
		return nil, errors.Wrap(err, "html failed to parse")
	}
	var b bytes.Buffer
	if err := html.Render(&b, root); err != nil {
		return nil, errors.Wrap(err, "html failed to render")
	}
	xmlRoot, err := xmlpath.ParseHTML(&b)
	if err != nil {
		return nil, errors.Wrap(err, "xmlpath failed to parse html")
	}
	return xmlRoot, nil
}

// absURL expands the URI parts found in page attributes to full URLs.
// They come in three shapes: absolute, protocol-relative and host-relative.
func (s *Scraper) absURL(uri string) string {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return uri
	case strings.HasPrefix(uri, "//"):
		return "https:" + uri
	case strings.HasPrefix(uri, "/"):
		return s.baseURL + uri
	default:
		return s.baseURL + "/" + uri
	}
}

// imageURL picks the high-res variant out of a data-srcset attribute, which
// holds whitespace-separated "<uri> <width>w" pairs.
func (s *Scraper) imageURL(srcset string) string {
	fields := strings.Fields(strings.TrimSuffix(srcset, " 1920w"))
	if len(fields) == 0 {
		return ""
	}
	return s.absURL(fields[0])
}

// ParseDate normalizes the strip date text, e.g. "maanantai 5.3.2024" or
// "5.3." for strips published in the current calendar year. The weekday
// prefix is optional; the year, when omitted, is taken from now.
func ParseDate(text string, now time.Time) (time.Time, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return time.Time{}, fmt.Errorf("empty date text")
	}
	dayPart := fields[len(fields)-1]

	if t, err := time.Parse("2.1.2006", dayPart); err == nil {
		return t, nil
	}
	// The site omits the year on strips published this year.
	t, err := time.Parse("2.1.", dayPart)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date text %q", dayPart)
	}
	return time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

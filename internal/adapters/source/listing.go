package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/pkg/logger"
)

// Default listing fetch configuration.
const (
	defaultFetchTimeout = 20 * time.Second
	defaultMaxAttempts  = 3
	defaultBackoffBase  = time.Second
)

// ListingConfig describes how to scrape one listing page.
type ListingConfig struct {
	Name          string
	URL           string
	ItemSelector  string
	TitleSelector string
	BodySelector  string

	// LinkAttr is the attribute holding the item link, read from the first
	// anchor under the item node. Defaults to href.
	LinkAttr string
}

// Listing scrapes a single listing page with configured CSS selectors.
type Listing struct {
	cfg ListingConfig

	client      *http.Client
	maxAttempts int
	backoffBase time.Duration

	clock  func() time.Time
	logger logger.Logger
}

// NewListing creates a listing source with configuration options.
func NewListing(cfg ListingConfig, opts ...Option) *Listing {
	if cfg.LinkAttr == "" {
		cfg.LinkAttr = "href"
	}

	l := &Listing{
		cfg:         cfg,
		client:      &http.Client{Timeout: defaultFetchTimeout},
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		clock:       time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Name identifies the source.
func (l *Listing) Name() string { return l.cfg.Name }

// Fetch downloads and parses the listing page. Transient fetch failures are
// retried with exponential backoff before giving up.
func (l *Listing) Fetch(ctx context.Context) ([]model.RawItem, error) {
	doc, err := l.fetchDocument(ctx)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(l.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("source %s: invalid url: %w", l.cfg.Name, err)
	}

	now := l.clock().UTC()
	var items []model.RawItem
	doc.Find(l.cfg.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(l.cfg.TitleSelector).First().Text())
		body := strings.TrimSpace(sel.Find(l.cfg.BodySelector).First().Text())
		if title == "" && body == "" {
			return
		}

		items = append(items, model.RawItem{
			ID:          model.NewID(),
			Source:      l.cfg.Name,
			Title:       title,
			Body:        body,
			SourceURL:   l.itemLink(sel, base),
			ContentHash: model.ContentHash(body),
			FetchedAt:   now,
		})
	})

	if l.logger != nil {
		l.logger.Debug(ctx, "listing fetched",
			logger.String("source", l.cfg.Name),
			logger.Int("items", len(items)),
		)
	}
	return items, nil
}

// itemLink resolves the item's link attribute against the listing URL.
func (l *Listing) itemLink(sel *goquery.Selection, base *url.URL) string {
	link := sel
	if !sel.Is("a") {
		link = sel.Find("a").First()
	}
	raw, ok := link.Attr(l.cfg.LinkAttr)
	if !ok || raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func (l *Listing) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	var lastErr error
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := l.backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		doc, err := l.fetchOnce(ctx)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if l.logger != nil {
			l.logger.Warn(ctx, "listing fetch attempt failed",
				logger.String("source", l.cfg.Name),
				logger.Int("attempt", attempt+1),
				logger.Error(err),
			)
		}
	}
	return nil, fmt.Errorf("source %s: %w", l.cfg.Name, lastErr)
}

func (l *Listing) fetchOnce(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "curator/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return doc, nil
}

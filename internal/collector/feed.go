package collector

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"time"

	"github.com/mmcdole/gofeed"

	"pubdigest/internal/domain"
)

const feedDateLayout = "2006-01-02"

// Feed maps the items of an RSS or Atom feed to records.
type Feed struct {
	url     string
	fetcher *fetcher
	parser  *gofeed.Parser
	logger  *slog.Logger
}

func newFeed(url string, f *fetcher, logger *slog.Logger) *Feed {
	return &Feed{
		url:     url,
		fetcher: f,
		parser:  gofeed.NewParser(),
		logger:  logger,
	}
}

func (f *Feed) Collect(ctx context.Context) ([]domain.RawRecord, error) {
	body, err := f.fetcher.get(ctx, f.url, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, err
	}

	feed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %w", domain.ErrIngestionParse, err)
	}

	records := make([]domain.RawRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		records = append(records, feedRecord(feed, item))
	}

	f.logger.Debug("parsed feed", "title", feed.Title, "items", len(records))
	return records, nil
}

func feedRecord(feed *gofeed.Feed, item *gofeed.Item) domain.RawRecord {
	rec := domain.RawRecord{
		URL:       strPtr(item.Link),
		Number:    strPtr(item.GUID),
		Publisher: strPtr(feed.Title),
		Subject:   strPtr(item.Title),
		DateStart: feedDate(item.PublishedParsed, item.Published),
	}
	if len(item.Categories) > 0 {
		rec.PubType = strPtr(item.Categories[0])
	}

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		name := enc.URL
		if u, err := url.Parse(enc.URL); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
			name = path.Base(u.Path)
		}
		rec.Attachments = append(rec.Attachments, domain.RawAttachment{
			Name: strPtr(name),
			URL:  strPtr(enc.URL),
		})
	}

	return rec
}

func feedDate(parsed *time.Time, raw string) *string {
	if parsed != nil {
		return strPtr(parsed.Format(feedDateLayout))
	}
	return strPtr(raw)
}

// strPtr returns nil for an empty string so absent feed fields stay absent.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

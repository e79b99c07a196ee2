package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pubdigest/internal/domain"
)

// HTML scrapes a listing page with CSS selectors, one record per element
// matched by the item selector.
type HTML struct {
	pageURL   *url.URL
	selectors domain.HTMLSelectors
	fetcher   *fetcher
	logger    *slog.Logger
}

func newHTML(rawURL string, selectors domain.HTMLSelectors, f *fetcher, logger *slog.Logger) (*HTML, error) {
	if strings.TrimSpace(selectors.Item) == "" {
		return nil, errors.New("html collector: item selector is required")
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("html collector: parse url: %w", err)
	}
	return &HTML{
		pageURL:   pageURL,
		selectors: selectors,
		fetcher:   f,
		logger:    logger,
	}, nil
}

func (h *HTML) Collect(ctx context.Context) ([]domain.RawRecord, error) {
	body, err := h.fetcher.get(ctx, h.pageURL.String(), "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", domain.ErrIngestionParse, err)
	}

	var records []domain.RawRecord
	doc.Find(h.selectors.Item).Each(func(_ int, item *goquery.Selection) {
		records = append(records, h.record(item))
	})

	h.logger.Debug("scraped page", "url", h.pageURL.String(), "items", len(records))
	return records, nil
}

func (h *HTML) record(item *goquery.Selection) domain.RawRecord {
	sel := h.selectors

	rec := domain.RawRecord{
		URL:       h.link(item, sel.URL),
		Number:    text(item, sel.Number),
		Publisher: text(item, sel.Publisher),
		PubType:   text(item, sel.PubType),
		Subject:   text(item, sel.Subject),
		DateStart: text(item, sel.DateStart),
		DateEnd:   text(item, sel.DateEnd),
	}

	if sel.Attachment == "" {
		return rec
	}

	item.Find(sel.Attachment).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		link := h.resolve(href)

		name := collapse(a.Text())
		if name == "" {
			name = path.Base(link)
		}
		rec.Attachments = append(rec.Attachments, domain.RawAttachment{
			Name: strPtr(name),
			URL:  strPtr(link),
		})
	})

	return rec
}

// link prefers the href of the selected element and falls back to its text.
func (h *HTML) link(item *goquery.Selection, selector string) *string {
	if selector == "" {
		return nil
	}
	s := item.Find(selector).First()
	if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strPtr(h.resolve(href))
	}
	return strPtr(collapse(s.Text()))
}

func (h *HTML) resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return h.pageURL.ResolveReference(ref).String()
}

func text(item *goquery.Selection, selector string) *string {
	if selector == "" {
		return nil
	}
	return strPtr(collapse(item.Find(selector).First().Text()))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

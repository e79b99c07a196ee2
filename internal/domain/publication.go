package domain

import "time"

// CollectorKind selects how raw records for a source are produced.
type CollectorKind string

const (
	CollectorCommand CollectorKind = "command"
	CollectorHTTP    CollectorKind = "http"
	CollectorFeed    CollectorKind = "feed"
	CollectorHTML    CollectorKind = "html"
)

// CollectorSpec is the collector handle of a Source.
type CollectorSpec struct {
	Kind      CollectorKind
	Command   string
	URL       string
	Timeout   time.Duration
	Selectors HTMLSelectors
}

// HTMLSelectors are CSS selectors used by the html collector. Item selects
// one element per publication; the others are evaluated inside it and may
// be empty.
type HTMLSelectors struct {
	Item       string
	URL        string
	Number     string
	Publisher  string
	PubType    string
	Subject    string
	DateStart  string
	DateEnd    string
	Attachment string
}

type Source struct {
	ID          int64
	Name        string
	Collector   CollectorSpec
	Schedule    string
	Subscribers []Subscriber
}

type Publication struct {
	ID          int64        `db:"id"`
	SourceID    int64        `db:"source_id"`
	URL         *string      `db:"url"`
	Number      *string      `db:"number"`
	Publisher   *string      `db:"publisher"`
	PubType     *string      `db:"pub_type"`
	Subject     *string      `db:"subject"`
	DateStart   *string      `db:"date_start"`
	DateEnd     *string      `db:"date_end"`
	Attachments []Attachment `db:"-"`
}

type Attachment struct {
	ID            int64  `db:"id"`
	PublicationID int64  `db:"publication_id"`
	Name          string `db:"name"`
	URL           string `db:"url"`
}

type Subscriber struct {
	ID       int64  `db:"id"`
	SourceID int64  `db:"source_id"`
	Name     string `db:"name"`
	Email    string `db:"email"`
}

// DedupKey identifies a publication within its source. Nil fields are
// absent and compare equal only to other absent fields.
type DedupKey struct {
	SourceID  int64
	URL       *string
	Number    *string
	Publisher *string
	PubType   *string
	Subject   *string
	DateStart *string
	DateEnd   *string
}

// Key returns the dedup key of p. Attachments and ID are not part of it.
func (p *Publication) Key() DedupKey {
	return DedupKey{
		SourceID:  p.SourceID,
		URL:       p.URL,
		Number:    p.Number,
		Publisher: p.Publisher,
		PubType:   p.PubType,
		Subject:   p.Subject,
		DateStart: p.DateStart,
		DateEnd:   p.DateEnd,
	}
}

// Equal compares two keys with NULL-aware semantics.
func (k DedupKey) Equal(o DedupKey) bool {
	return k.SourceID == o.SourceID &&
		nullEqual(k.URL, o.URL) &&
		nullEqual(k.Number, o.Number) &&
		nullEqual(k.Publisher, o.Publisher) &&
		nullEqual(k.PubType, o.PubType) &&
		nullEqual(k.Subject, o.Subject) &&
		nullEqual(k.DateStart, o.DateStart) &&
		nullEqual(k.DateEnd, o.DateEnd)
}

func nullEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// MaxID returns the highest publication id in pubs, or 0 for an empty slice.
func MaxID(pubs []Publication) int64 {
	var max int64
	for _, p := range pubs {
		if p.ID > max {
			max = p.ID
		}
	}
	return max
}

// Digest is a rendered notification for one source.
type Digest struct {
	Subject   string
	PlainBody string
	HTMLBody  string
}

package domain

import (
	"fmt"
	"strings"
)

// RawRecord is a publication as emitted by a collector. Missing keys and
// JSON nulls both decode to nil.
type RawRecord struct {
	URL         *string         `json:"url"`
	Number      *string         `json:"number"`
	Publisher   *string         `json:"publisher"`
	PubType     *string         `json:"pub_type"`
	Subject     *string         `json:"subject"`
	DateStart   *string         `json:"date_start"`
	DateEnd     *string         `json:"date_end"`
	Attachments []RawAttachment `json:"attachments"`
}

type RawAttachment struct {
	Name *string `json:"name"`
	URL  *string `json:"url"`
}

// Validate checks the fields a collector must always provide.
func (r *RawRecord) Validate() error {
	for i, a := range r.Attachments {
		if Normalize(a.Name) == nil {
			return fmt.Errorf("%w: attachment %d: missing name", ErrIngestionParse, i)
		}
		if Normalize(a.URL) == nil {
			return fmt.Errorf("%w: attachment %d: missing url", ErrIngestionParse, i)
		}
	}
	return nil
}

// Publication converts r into an unsaved publication of sourceID with every
// optional field normalized.
func (r *RawRecord) Publication(sourceID int64) Publication {
	pub := Publication{
		SourceID:  sourceID,
		URL:       Normalize(r.URL),
		Number:    Normalize(r.Number),
		Publisher: Normalize(r.Publisher),
		PubType:   Normalize(r.PubType),
		Subject:   Normalize(r.Subject),
		DateStart: Normalize(r.DateStart),
		DateEnd:   Normalize(r.DateEnd),
	}
	for _, a := range r.Attachments {
		pub.Attachments = append(pub.Attachments, Attachment{
			Name: *a.Name,
			URL:  *a.URL,
		})
	}
	return pub
}

// Normalize is the single place where absence is decided: nil and blank
// strings become nil, anything else is kept verbatim.
func Normalize(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}

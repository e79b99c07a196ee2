// Package render turns a batch of publications into a digest with a plain
// text and an HTML body.
package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"pubdigest/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const (
	subjectPrefix = "Newsletter "
	noSubject     = "(no subject)"
)

type Renderer struct {
	plain *texttemplate.Template
	html  *htmltemplate.Template
}

func New() (*Renderer, error) {
	plain, err := texttemplate.ParseFS(templatesFS, "templates/publications.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse plain template: %w", err)
	}
	html, err := htmltemplate.ParseFS(templatesFS, "templates/publications.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	return &Renderer{plain: plain, html: html}, nil
}

type digestView struct {
	Title string
	Count int
	Items []itemView
}

type itemView struct {
	Subject     string
	PubType     string
	Number      string
	Publisher   string
	Dates       string
	URL         string
	Attachments []domain.Attachment
}

// Render builds the digest for title listing pubs in the given order.
func (r *Renderer) Render(title string, pubs []domain.Publication) (*domain.Digest, error) {
	view := digestView{Title: title, Count: len(pubs), Items: make([]itemView, 0, len(pubs))}
	for _, p := range pubs {
		view.Items = append(view.Items, newItemView(p))
	}

	var plain, html bytes.Buffer
	if err := r.plain.Execute(&plain, view); err != nil {
		return nil, fmt.Errorf("render plain body: %w", err)
	}
	if err := r.html.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}

	return &domain.Digest{
		Subject:   subjectPrefix + title,
		PlainBody: plain.String(),
		HTMLBody:  html.String(),
	}, nil
}

func newItemView(p domain.Publication) itemView {
	item := itemView{
		Subject:     value(p.Subject),
		PubType:     value(p.PubType),
		Number:      value(p.Number),
		Publisher:   value(p.Publisher),
		Dates:       dateRange(value(p.DateStart), value(p.DateEnd)),
		URL:         value(p.URL),
		Attachments: p.Attachments,
	}
	if item.Subject == "" {
		item.Subject = noSubject
	}
	return item
}

func dateRange(start, end string) string {
	switch {
	case start != "" && end != "":
		return start + " - " + end
	case start != "":
		return "from " + start
	case end != "":
		return "until " + end
	default:
		return ""
	}
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Package registry holds the static catalog of configured sources.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"pubdigest/internal/config"
	"pubdigest/internal/domain"
)

type Registry struct {
	sources map[int64]domain.Source
}

// New builds a registry from descriptors. Duplicate ids, blank names and
// unknown collector kinds are rejected.
func New(sources []domain.Source) (*Registry, error) {
	r := &Registry{sources: make(map[int64]domain.Source, len(sources))}

	for _, src := range sources {
		if _, dup := r.sources[src.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %d", src.ID)
		}
		if strings.TrimSpace(src.Name) == "" {
			return nil, fmt.Errorf("source %d: name is required", src.ID)
		}
		switch src.Collector.Kind {
		case domain.CollectorCommand, domain.CollectorHTTP, domain.CollectorFeed, domain.CollectorHTML:
		default:
			return nil, fmt.Errorf("source %d: unknown collector kind %q", src.ID, src.Collector.Kind)
		}
		r.sources[src.ID] = src
	}

	return r, nil
}

// FromConfig converts the configured sources into a registry.
func FromConfig(cfgs []config.SourceConfig) (*Registry, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("no sources configured")
	}

	sources := make([]domain.Source, 0, len(cfgs))
	for _, c := range cfgs {
		src := domain.Source{
			ID:   c.ID,
			Name: c.Name,
			Collector: domain.CollectorSpec{
				Kind:    domain.CollectorKind(c.Collector.Kind),
				Command: c.Collector.Command,
				URL:     c.Collector.URL,
				Timeout: c.Collector.Timeout,
				Selectors: domain.HTMLSelectors{
					Item:       c.Collector.Selectors.Item,
					URL:        c.Collector.Selectors.URL,
					Number:     c.Collector.Selectors.Number,
					Publisher:  c.Collector.Selectors.Publisher,
					PubType:    c.Collector.Selectors.PubType,
					Subject:    c.Collector.Selectors.Subject,
					DateStart:  c.Collector.Selectors.DateStart,
					DateEnd:    c.Collector.Selectors.DateEnd,
					Attachment: c.Collector.Selectors.Attachment,
				},
			},
			Schedule: c.Schedule,
		}
		for _, sub := range c.Subscribers {
			src.Subscribers = append(src.Subscribers, domain.Subscriber{
				SourceID: c.ID,
				Name:     sub.Name,
				Email:    sub.Email,
			})
		}
		sources = append(sources, src)
	}

	return New(sources)
}

func (r *Registry) Lookup(id int64) (domain.Source, error) {
	src, ok := r.sources[id]
	if !ok {
		return domain.Source{}, fmt.Errorf("%w: %d", domain.ErrUnknownSource, id)
	}
	return src, nil
}

// All returns every source ordered by id.
func (r *Registry) All() []domain.Source {
	out := make([]domain.Source, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

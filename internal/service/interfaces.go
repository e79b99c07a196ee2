package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"pubdigest/internal/domain"
)

type PublicationStore interface {
	FindMatching(ctx context.Context, key domain.DedupKey) (*domain.Publication, error)
	Insert(ctx context.Context, pub *domain.Publication) (int64, error)
	ListAfter(ctx context.Context, sourceID, afterID int64) ([]domain.Publication, error)
}

type SourceStore interface {
	EnsureSource(ctx context.Context, sourceID int64) error
	Watermark(ctx context.Context, sourceID int64) (int64, error)
	AdvanceWatermark(ctx context.Context, sourceID, lastID int64) error
}

type SubscriberStore interface {
	ListBySource(ctx context.Context, sourceID int64) ([]domain.Subscriber, error)
	Add(ctx context.Context, sub domain.Subscriber) error
	EnsureDefault(ctx context.Context, sourceID int64, sub domain.Subscriber) (bool, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type SourceRegistry interface {
	Lookup(id int64) (domain.Source, error)
	All() []domain.Source
}

type Renderer interface {
	Render(title string, pubs []domain.Publication) (*domain.Digest, error)
}

type Transport interface {
	Deliver(ctx context.Context, recipient domain.Subscriber, digest *domain.Digest) error
}

type Collector interface {
	Collect(ctx context.Context) ([]domain.RawRecord, error)
}

type CollectorFactory interface {
	For(source domain.Source) (Collector, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pubdigest/internal/domain"
)

// IngestService persists the records of one collector run, skipping those
// already stored for the source.
type IngestService struct {
	publications PublicationStore
	txManager    TransactionManager
	logger       *slog.Logger
}

func NewIngestService(publications PublicationStore, txManager TransactionManager, logger *slog.Logger) *IngestService {
	return &IngestService{
		publications: publications,
		txManager:    txManager,
		logger:       logger,
	}
}

// Ingest stores every record of the batch whose dedup key is not yet known.
// The batch is validated before anything is written and persisted in a
// single transaction: on error nothing from it is kept.
func (s *IngestService) Ingest(ctx context.Context, sourceID int64, records []domain.RawRecord) (*domain.IngestStats, error) {
	logger := s.logger.With("source", sourceID)

	pubs := make([]domain.Publication, 0, len(records))
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		pubs = append(pubs, records[i].Publication(sourceID))
	}

	stats := &domain.IngestStats{SourceID: sourceID, Received: len(records)}
	if len(pubs) == 0 {
		logger.Info("nothing to ingest")
		return stats, nil
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		stats.New, stats.Duplicates = 0, 0

		for i := range pubs {
			pub := &pubs[i]

			existing, err := s.publications.FindMatching(txCtx, pub.Key())
			if err != nil {
				return fmt.Errorf("%w: find matching publication: %w", domain.ErrStorage, err)
			}
			if existing != nil {
				stats.Duplicates++
				logger.Debug("duplicate publication", "existing_id", existing.ID)
				continue
			}

			id, err := s.publications.Insert(txCtx, pub)
			if err != nil {
				return fmt.Errorf("%w: insert publication: %w", domain.ErrStorage, err)
			}
			stats.New++
			logger.Debug("stored publication", "id", id, "attachments", len(pub.Attachments))
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrStorage) {
			err = fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
		return nil, err
	}

	logger.Info("ingestion completed",
		"received", stats.Received,
		"new", stats.New,
		"duplicates", stats.Duplicates,
	)

	return stats, nil
}

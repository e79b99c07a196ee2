package sqlstore

import (
	"context"

	"github.com/jmoiron/sqlx"

	"pubdigest/internal/domain"
)

type SubscriberStore struct {
	db *sqlx.DB
}

func NewSubscriberStore(db *sqlx.DB) *SubscriberStore {
	return &SubscriberStore{db: db}
}

func (s *SubscriberStore) ListBySource(ctx context.Context, sourceID int64) ([]domain.Subscriber, error) {
	exec := GetExecutor(ctx, s.db)

	var subs []domain.Subscriber
	err := sqlx.SelectContext(ctx, exec, &subs,
		exec.Rebind("SELECT id, source_id, name, email FROM subscribers WHERE source_id = ? ORDER BY id"),
		sourceID,
	)
	return subs, err
}

// Add inserts sub into its source's mailing list; an existing email is kept.
func (s *SubscriberStore) Add(ctx context.Context, sub domain.Subscriber) error {
	exec := GetExecutor(ctx, s.db)
	_, err := exec.ExecContext(ctx,
		exec.Rebind(`
			INSERT INTO subscribers (source_id, name, email)
			VALUES (?, ?, ?)
			ON CONFLICT (source_id, email) DO NOTHING`),
		sub.SourceID, sub.Name, sub.Email,
	)
	return err
}

// EnsureDefault adds sub to the mailing list of sourceID only when the list
// is empty. It reports whether a row was inserted.
func (s *SubscriberStore) EnsureDefault(ctx context.Context, sourceID int64, sub domain.Subscriber) (bool, error) {
	inserted := false

	err := atomically(ctx, s.db, func(ctx context.Context, exec sqlx.ExtContext) error {
		var count int
		err := sqlx.GetContext(ctx, exec, &count,
			exec.Rebind("SELECT COUNT(*) FROM subscribers WHERE source_id = ?"),
			sourceID,
		)
		if err != nil || count > 0 {
			return err
		}

		sub.SourceID = sourceID
		if err := s.Add(ctx, sub); err != nil {
			return err
		}
		inserted = true
		return nil
	})

	return inserted, err
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pubdigest/internal/domain"
)

// SourceStore keeps the per-source delivery watermark.
type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

// EnsureSource inserts the source with watermark 0 unless it already exists.
func (s *SourceStore) EnsureSource(ctx context.Context, sourceID int64) error {
	exec := GetExecutor(ctx, s.db)
	_, err := exec.ExecContext(ctx,
		exec.Rebind("INSERT INTO sources (id, last_notified_id) VALUES (?, 0) ON CONFLICT (id) DO NOTHING"),
		sourceID,
	)
	return err
}

func (s *SourceStore) Watermark(ctx context.Context, sourceID int64) (int64, error) {
	exec := GetExecutor(ctx, s.db)

	var watermark int64
	err := sqlx.GetContext(ctx, exec, &watermark,
		exec.Rebind("SELECT last_notified_id FROM sources WHERE id = ?"),
		sourceID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d", domain.ErrUnknownSource, sourceID)
	}
	if err != nil {
		return 0, err
	}
	return watermark, nil
}

// AdvanceWatermark moves the watermark forward to lastID. A value not
// greater than the stored one leaves it unchanged.
func (s *SourceStore) AdvanceWatermark(ctx context.Context, sourceID, lastID int64) error {
	exec := GetExecutor(ctx, s.db)

	res, err := exec.ExecContext(ctx,
		exec.Rebind("UPDATE sources SET last_notified_id = ? WHERE id = ? AND last_notified_id < ?"),
		lastID, sourceID, lastID,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either a regression or an unknown source; only the latter is an error.
		if _, err := s.Watermark(ctx, sourceID); err != nil {
			return err
		}
	}
	return nil
}

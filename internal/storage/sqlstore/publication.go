package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"pubdigest/internal/domain"
)

const publicationColumns = "id, source_id, url, number, publisher, pub_type, subject, date_start, date_end"

// keyColumns are the nullable columns of the dedup key, in the order
// keyArgs returns their values.
var keyColumns = []string{"url", "number", "publisher", "pub_type", "subject", "date_start", "date_end"}

func keyArgs(k domain.DedupKey) []any {
	return []any{k.URL, k.Number, k.Publisher, k.PubType, k.Subject, k.DateStart, k.DateEnd}
}

type PublicationStore struct {
	db *sqlx.DB
}

func NewPublicationStore(db *sqlx.DB) *PublicationStore {
	return &PublicationStore{db: db}
}

// FindMatching returns the publication with the given dedup key, comparing
// absent fields as equal to each other. It returns nil when none exists.
func (s *PublicationStore) FindMatching(ctx context.Context, key domain.DedupKey) (*domain.Publication, error) {
	exec := GetExecutor(ctx, s.db)
	eq := nullSafeEqual(exec)

	conds := make([]string, 0, len(keyColumns)+1)
	conds = append(conds, "source_id = ?")
	for _, col := range keyColumns {
		conds = append(conds, col+" "+eq+" ?")
	}

	query := "SELECT " + publicationColumns + " FROM publications WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY id LIMIT 1"
	args := append([]any{key.SourceID}, keyArgs(key)...)

	var pub domain.Publication
	err := sqlx.GetContext(ctx, exec, &pub, exec.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

// Insert stores pub and its attachments as one unit and returns the new id.
// It joins the caller's transaction when there is one.
func (s *PublicationStore) Insert(ctx context.Context, pub *domain.Publication) (int64, error) {
	var id int64

	err := atomically(ctx, s.db, func(ctx context.Context, exec sqlx.ExtContext) error {
		query := `
			INSERT INTO publications (
				source_id, url, number, publisher, pub_type, subject, date_start, date_end
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`

		args := append([]any{pub.SourceID}, keyArgs(pub.Key())...)
		if err := exec.QueryRowxContext(ctx, exec.Rebind(query), args...).Scan(&id); err != nil {
			return fmt.Errorf("insert publication: %w", err)
		}

		for i, a := range pub.Attachments {
			_, err := exec.ExecContext(ctx,
				exec.Rebind("INSERT INTO attachments (publication_id, position, name, url) VALUES (?, ?, ?, ?)"),
				id, i, a.Name, a.URL,
			)
			if err != nil {
				return fmt.Errorf("insert attachment %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	pub.ID = id
	for i := range pub.Attachments {
		pub.Attachments[i].PublicationID = id
	}
	return id, nil
}

// ListAfter returns the publications of sourceID with id > afterID in
// ascending id order, attachments included.
func (s *PublicationStore) ListAfter(ctx context.Context, sourceID, afterID int64) ([]domain.Publication, error) {
	exec := GetExecutor(ctx, s.db)

	var pubs []domain.Publication
	query := "SELECT " + publicationColumns + " FROM publications WHERE source_id = ? AND id > ? ORDER BY id"
	if err := sqlx.SelectContext(ctx, exec, &pubs, exec.Rebind(query), sourceID, afterID); err != nil {
		return nil, fmt.Errorf("select publications: %w", err)
	}
	if len(pubs) == 0 {
		return pubs, nil
	}

	ids := make([]int64, len(pubs))
	byID := make(map[int64]int, len(pubs))
	for i, p := range pubs {
		ids[i] = p.ID
		byID[p.ID] = i
	}

	query, args, err := sqlx.In(`
		SELECT id, publication_id, name, url
		FROM attachments
		WHERE publication_id IN (?)
		ORDER BY publication_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("build attachments query: %w", err)
	}

	var atts []domain.Attachment
	if err := sqlx.SelectContext(ctx, exec, &atts, exec.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select attachments: %w", err)
	}

	for _, a := range atts {
		i := byID[a.PublicationID]
		pubs[i].Attachments = append(pubs[i].Attachments, a)
	}

	return pubs, nil
}

package sqlstore

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"

	"pubdigest/internal/domain"
	"pubdigest/internal/testutil"
)

// StoreSuite holds the repository tests shared by every backend. Embedding
// suites provide ctx and db in their setup.
type StoreSuite struct {
	suite.Suite
	ctx context.Context
	db  *sqlx.DB
}

func (s *StoreSuite) ensureSource(id int64) {
	s.Require().NoError(NewSourceStore(s.db).EnsureSource(s.ctx, id))
}

func (s *StoreSuite) countRows(table string) int {
	var n int
	s.Require().NoError(s.db.GetContext(s.ctx, &n, "SELECT COUNT(*) FROM "+table))
	return n
}

func (s *StoreSuite) TestEnsureSchema_Idempotent() {
	s.NoError(EnsureSchema(s.ctx, s.db))
	s.NoError(EnsureSchema(s.ctx, s.db))
}

func (s *StoreSuite) TestSourceStore_EnsureSource() {
	store := NewSourceStore(s.db)

	s.NoError(store.EnsureSource(s.ctx, 1))
	s.NoError(store.AdvanceWatermark(s.ctx, 1, 4))
	s.NoError(store.EnsureSource(s.ctx, 1))

	watermark, err := store.Watermark(s.ctx, 1)
	s.NoError(err)
	s.Equal(int64(4), watermark, "re-ensuring must not reset the watermark")
	s.Equal(1, s.countRows("sources"))
}

func (s *StoreSuite) TestSourceStore_Watermark_UnknownSource() {
	_, err := NewSourceStore(s.db).Watermark(s.ctx, 404)
	s.ErrorIs(err, domain.ErrUnknownSource)

	err = NewSourceStore(s.db).AdvanceWatermark(s.ctx, 404, 1)
	s.ErrorIs(err, domain.ErrUnknownSource)
}

func (s *StoreSuite) TestSourceStore_AdvanceWatermark_Monotonic() {
	store := NewSourceStore(s.db)
	s.ensureSource(1)

	for _, step := range []struct {
		advanceTo int64
		want      int64
	}{
		{advanceTo: 5, want: 5},
		{advanceTo: 3, want: 5},
		{advanceTo: 5, want: 5},
		{advanceTo: 0, want: 5},
		{advanceTo: 7, want: 7},
	} {
		s.NoError(store.AdvanceWatermark(s.ctx, 1, step.advanceTo))

		got, err := store.Watermark(s.ctx, 1)
		s.NoError(err)
		s.Equal(step.want, got, "after advancing to %d", step.advanceTo)
	}
}

func (s *StoreSuite) TestPublicationStore_InsertAndListAfter() {
	store := NewPublicationStore(s.db)
	s.ensureSource(1)
	s.ensureSource(2)

	first := &domain.Publication{
		SourceID: 1,
		URL:      testutil.Ptr("https://example.com/1"),
		Subject:  testutil.Ptr("Determina 1"),
		Attachments: []domain.Attachment{
			{Name: "b-second-by-name.pdf", URL: "https://example.com/1/a.pdf"},
			{Name: "a-first-by-name.pdf", URL: "https://example.com/1/b.pdf"},
		},
	}
	other := &domain.Publication{SourceID: 2, Subject: testutil.Ptr("Other source")}
	second := &domain.Publication{SourceID: 1, Subject: testutil.Ptr("Determina 2")}

	id1, err := store.Insert(s.ctx, first)
	s.Require().NoError(err)
	_, err = store.Insert(s.ctx, other)
	s.Require().NoError(err)
	id2, err := store.Insert(s.ctx, second)
	s.Require().NoError(err)

	s.Greater(id2, id1)
	s.Equal(id1, first.ID)
	s.Equal(id1, first.Attachments[0].PublicationID)

	pubs, err := store.ListAfter(s.ctx, 1, 0)
	s.Require().NoError(err)
	s.Require().Len(pubs, 2)
	s.Equal(id1, pubs[0].ID)
	s.Equal(id2, pubs[1].ID)
	s.Equal("Determina 1", *pubs[0].Subject)
	s.Nil(pubs[0].Number)

	s.Require().Len(pubs[0].Attachments, 2)
	s.Equal("b-second-by-name.pdf", pubs[0].Attachments[0].Name, "attachments keep insertion order")
	s.Equal("a-first-by-name.pdf", pubs[0].Attachments[1].Name)
	s.Empty(pubs[1].Attachments)

	pubs, err = store.ListAfter(s.ctx, 1, id1)
	s.Require().NoError(err)
	s.Require().Len(pubs, 1)
	s.Equal(id2, pubs[0].ID)

	pubs, err = store.ListAfter(s.ctx, 1, id2)
	s.NoError(err)
	s.Empty(pubs)
}

func (s *StoreSuite) TestPublicationStore_FindMatching_NullAware() {
	store := NewPublicationStore(s.db)
	s.ensureSource(1)
	s.ensureSource(2)

	pub := &domain.Publication{
		SourceID:  1,
		URL:       testutil.Ptr("https://example.com/albo/77"),
		Number:    testutil.Ptr("77/2024"),
		DateStart: testutil.Ptr("2024-03-01"),
	}
	id, err := store.Insert(s.ctx, pub)
	s.Require().NoError(err)

	same := pub.Key()
	found, err := store.FindMatching(s.ctx, same)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(id, found.ID)

	extraField := pub.Key()
	extraField.Publisher = testutil.Ptr("Comune")
	found, err = store.FindMatching(s.ctx, extraField)
	s.NoError(err)
	s.Nil(found, "absent must not match a value")

	missingField := pub.Key()
	missingField.Number = nil
	found, err = store.FindMatching(s.ctx, missingField)
	s.NoError(err)
	s.Nil(found, "value must not match absent")

	changed := pub.Key()
	changed.DateStart = testutil.Ptr("2024-03-02")
	found, err = store.FindMatching(s.ctx, changed)
	s.NoError(err)
	s.Nil(found)

	otherSource := pub.Key()
	otherSource.SourceID = 2
	found, err = store.FindMatching(s.ctx, otherSource)
	s.NoError(err)
	s.Nil(found)
}

func (s *StoreSuite) TestPublicationStore_FindMatching_AllAbsent() {
	store := NewPublicationStore(s.db)
	s.ensureSource(1)

	_, err := store.Insert(s.ctx, &domain.Publication{SourceID: 1})
	s.Require().NoError(err)

	found, err := store.FindMatching(s.ctx, domain.DedupKey{SourceID: 1})
	s.NoError(err)
	s.NotNil(found)
}

func (s *StoreSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	store := NewPublicationStore(s.db)
	s.ensureSource(1)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		_, err := store.Insert(ctx, &domain.Publication{
			SourceID:    1,
			Subject:     testutil.Ptr("Committed"),
			Attachments: []domain.Attachment{{Name: "a.pdf", URL: "https://example.com/a.pdf"}},
		})
		return err
	})
	s.NoError(err)

	s.Equal(1, s.countRows("publications"))
	s.Equal(1, s.countRows("attachments"))
}

func (s *StoreSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	store := NewPublicationStore(s.db)
	s.ensureSource(1)

	_, err := store.Insert(s.ctx, &domain.Publication{SourceID: 1, Subject: testutil.Ptr("Pre-existing")})
	s.Require().NoError(err)

	errBoom := errors.New("boom")
	err = tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		for i := 0; i < 2; i++ {
			_, err := store.Insert(ctx, &domain.Publication{
				SourceID:    1,
				Subject:     testutil.Ptr("Should rollback"),
				Attachments: []domain.Attachment{{Name: "x.pdf", URL: "https://example.com/x.pdf"}},
			})
			if err != nil {
				return err
			}
		}
		return errBoom
	})
	s.ErrorIs(err, errBoom)

	s.Equal(1, s.countRows("publications"))
	s.Equal(0, s.countRows("attachments"))
}

func (s *StoreSuite) TestSubscriberStore() {
	store := NewSubscriberStore(s.db)
	s.ensureSource(1)
	s.ensureSource(2)

	inserted, err := store.EnsureDefault(s.ctx, 1, domain.Subscriber{Name: "Default", Email: "default@example.com"})
	s.NoError(err)
	s.True(inserted)

	inserted, err = store.EnsureDefault(s.ctx, 1, domain.Subscriber{Name: "Default", Email: "other@example.com"})
	s.NoError(err)
	s.False(inserted, "default is only seeded into an empty list")

	s.NoError(store.Add(s.ctx, domain.Subscriber{SourceID: 2, Name: "Anna", Email: "anna@example.com"}))
	s.NoError(store.Add(s.ctx, domain.Subscriber{SourceID: 2, Name: "Anna again", Email: "anna@example.com"}))
	s.NoError(store.Add(s.ctx, domain.Subscriber{SourceID: 2, Name: "Bruno", Email: "bruno@example.com"}))

	inserted, err = store.EnsureDefault(s.ctx, 2, domain.Subscriber{Name: "Default", Email: "default@example.com"})
	s.NoError(err)
	s.False(inserted)

	subs, err := store.ListBySource(s.ctx, 1)
	s.NoError(err)
	s.Require().Len(subs, 1)
	s.Equal("default@example.com", subs[0].Email)
	s.Equal(int64(1), subs[0].SourceID)

	subs, err = store.ListBySource(s.ctx, 2)
	s.NoError(err)
	s.Require().Len(subs, 2)
	s.Equal("Anna", subs[0].Name)
	s.Equal("Bruno", subs[1].Name)

	subs, err = store.ListBySource(s.ctx, 3)
	s.NoError(err)
	s.Empty(subs)
}

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sifan077/lnurlp/internal/app/model"
	"github.com/sifan077/lnurlp/internal/infra/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func newLink(id, wallet string) *model.PayLink {
	return &model.PayLink{
		ID:                 id,
		Wallet:             wallet,
		Description:        "coffee",
		Min:                10,
		Max:                1000,
		FiatBaseMultiplier: model.DefaultFiatBaseMultiplier,
		CommentChars:       20,
	}
}

func TestPayLinkRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewPayLinkRepository(newTestDB(t))

	link := newLink("abc123", "wallet-1")
	link.Username = strPtr("alice")
	link.SuccessText = strPtr("thanks")
	link.ServedMeta = 42 // ignored on insert
	require.NoError(t, repo.Create(ctx, link))

	got, err := repo.Get(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, "wallet-1", got.Wallet)
	require.Equal(t, "coffee", got.Description)
	require.Equal(t, 10.0, got.Min)
	require.Equal(t, 1000.0, got.Max)
	require.Equal(t, "alice", got.UsernameValue())
	require.Equal(t, "thanks", *got.SuccessText)
	require.Nil(t, got.Currency)
	require.Zero(t, got.ServedMeta)
	require.Zero(t, got.ServedPR)

	byName, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "abc123", byName.ID)
}

func TestPayLinkRepository_GetNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewPayLinkRepository(newTestDB(t))

	_, err := repo.Get(ctx, "nope00")
	require.ErrorIs(t, err, ErrLinkNotFound)

	_, err = repo.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, ErrLinkNotFound)
}

func TestPayLinkRepository_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	repo := NewPayLinkRepository(newTestDB(t))

	first := newLink("aaaaaa", "w")
	first.Username = strPtr("bob")
	require.NoError(t, repo.Create(ctx, first))

	second := newLink("bbbbbb", "w")
	second.Username = strPtr("bob")
	err := repo.Create(ctx, second)
	require.ErrorIs(t, err, ErrDuplicateKey)

	exists, err := repo.UsernameExists(ctx, "bob")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestPayLinkRepository_ListOrderedByID(t *testing.T) {
	ctx := context.Background()
	repo := NewPayLinkRepository(newTestDB(t))

	for _, l := range []*model.PayLink{
		newLink("zzz111", "w1"),
		newLink("aaa111", "w2"),
		newLink("mmm111", "w1"),
		newLink("xxx111", "w3"),
	} {
		require.NoError(t, repo.Create(ctx, l))
	}

	links, err := repo.List(ctx, "w1", "w2")
	require.NoError(t, err)
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.ID)
	}
	require.Equal(t, []string{"aaa111", "mmm111", "zzz111"}, ids)

	empty, err := repo.List(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestPayLinkRepository_UpdatePartial(t *testing.T) {
	ctx := context.Background()
	repo := NewPayLinkRepository(newTestDB(t))

	link := newLink("upd123", "w")
	link.Username = strPtr("carol")
	link.SuccessURL = strPtr("https://example.com")
	require.NoError(t, repo.Create(ctx, link))

	newMax := 5000.0
	got, err := repo.Update(ctx, "upd123", PayLinkUpdate{
		Max:        &newMax,
		SuccessURL: strPtr(""),
	})
	require.NoError(t, err)
	require.Equal(t, 5000.0, got.Max)
	require.Equal(t, 10.0, got.Min)
	require.Nil(t, got.SuccessURL)
	require.Equal(t, "carol", got.UsernameValue())

	_, err = repo.Update(ctx, "missing", PayLinkUpdate{Max: &newMax})
	require.ErrorIs(t, err, ErrLinkNotFound)
}

func TestPayLinkRepository_IncrementConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewPayLinkRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, newLink("cnt123", "w")))

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Increment(ctx, "cnt123", CounterDelta{ServedMeta: 1}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repo.Increment(ctx, "cnt123", CounterDelta{ServedPR: 2})
	require.NoError(t, err)
	require.EqualValues(t, n, got.ServedMeta)
	require.EqualValues(t, 2, got.ServedPR)
}

func TestPayLinkRepository_IncrementRejectsNegativeAndMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewPayLinkRepository(newTestDB(t))

	_, err := repo.Increment(ctx, "ghost0", CounterDelta{ServedMeta: 1})
	require.ErrorIs(t, err, ErrLinkNotFound)

	_, err = repo.Increment(ctx, "ghost0", CounterDelta{ServedMeta: -1})
	require.True(t, errors.Is(err, ErrInvalidDelta))
}

func TestPayLinkRepository_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewPayLinkRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, newLink("del123", "w")))

	require.NoError(t, repo.Delete(ctx, "del123"))
	require.NoError(t, repo.Delete(ctx, "del123"))

	_, err := repo.Get(ctx, "del123")
	require.ErrorIs(t, err, ErrLinkNotFound)
}

func TestPayLinkRepository_Usernames(t *testing.T) {
	ctx := context.Background()
	repo := NewPayLinkRepository(newTestDB(t))

	named := newLink("nam123", "w")
	named.Username = strPtr("dave")
	require.NoError(t, repo.Create(ctx, named))
	require.NoError(t, repo.Create(ctx, newLink("anon12", "w")))

	names, err := repo.Usernames(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"dave"}, names)
}

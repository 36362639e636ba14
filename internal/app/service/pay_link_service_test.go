package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/sifan077/lnurlp/internal/app/model"
	"github.com/sifan077/lnurlp/internal/app/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPayLinkRepository struct {
	repository.PayLinkRepository
	createFn func(ctx context.Context, link *model.PayLink) error
	getFn    func(ctx context.Context, id string) (*model.PayLink, error)
}

func (m *mockPayLinkRepository) Create(ctx context.Context, link *model.PayLink) error {
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

func (m *mockPayLinkRepository) Get(ctx context.Context, id string) (*model.PayLink, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, repository.ErrLinkNotFound
}

func newPayLinkService(t *testing.T) PayLinkService {
	t.Helper()
	return NewPayLinkService(repository.NewPayLinkRepository(newTestDB(t)), zap.NewNop())
}

func TestNewShortID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		id, err := NewShortID()
		require.NoError(t, err)
		require.Len(t, id, 6)
		for _, c := range id {
			require.Contains(t, idAlphabet, string(c))
		}
		seen[id] = struct{}{}
	}
	require.Greater(t, len(seen), 190)
}

func TestPayLinkService_CreateReturnsStoredRecord(t *testing.T) {
	ctx := context.Background()
	svc := newPayLinkService(t)

	link, err := svc.Create(ctx, CreatePayLinkInput{
		Description:  "donations",
		Min:          10,
		Max:          1000,
		Username:     "alice",
		SuccessText:  "thank you",
		CommentChars: 42,
		Zaps:         true,
	}, "wallet-1")
	require.NoError(t, err)
	require.Len(t, link.ID, 6)

	got, err := svc.Get(ctx, link.ID)
	require.NoError(t, err)
	require.Equal(t, "wallet-1", got.Wallet)
	require.Equal(t, "donations", got.Description)
	require.Equal(t, 10.0, got.Min)
	require.Equal(t, 1000.0, got.Max)
	require.Equal(t, "alice", got.UsernameValue())
	require.Equal(t, "thank you", *got.SuccessText)
	require.Nil(t, got.SuccessURL)
	require.Nil(t, got.Currency)
	require.Equal(t, 42, got.CommentChars)
	require.True(t, got.Zaps)
	require.Equal(t, model.DefaultFiatBaseMultiplier, got.FiatBaseMultiplier)
	require.Zero(t, got.ServedMeta)
	require.Zero(t, got.ServedPR)

	byName, err := svc.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, link.ID, byName.ID)
}

func TestPayLinkService_CreateDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	svc := newPayLinkService(t)

	_, err := svc.Create(ctx, CreatePayLinkInput{Description: "a", Min: 1, Max: 2, Username: "bob"}, "w")
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreatePayLinkInput{Description: "b", Min: 1, Max: 2, Username: "bob"}, "w")
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestPayLinkService_CreateDuplicateUsernameFromColdFilter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewPayLinkRepository(db)

	first := NewPayLinkService(repo, zap.NewNop())
	_, err := first.Create(ctx, CreatePayLinkInput{Description: "a", Min: 1, Max: 2, Username: "carol"}, "w")
	require.NoError(t, err)

	// A second instance that never saw the username relies on the unique index.
	second := NewPayLinkService(repo, zap.NewNop())
	_, err = second.Create(ctx, CreatePayLinkInput{Description: "b", Min: 1, Max: 2, Username: "carol"}, "w")
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestPayLinkService_CreateInvalidUsername(t *testing.T) {
	svc := newPayLinkService(t)

	for _, name := range []string{"Alice", "has space", "emoji☕", "a@b"} {
		_, err := svc.Create(context.Background(), CreatePayLinkInput{Description: "x", Min: 1, Max: 2, Username: name}, "w")
		require.ErrorIs(t, err, ErrInvalidUsername, name)
	}
}

func TestPayLinkService_CreateRetriesIDCollision(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewPayLinkRepository(db)

	ids := []string{"same00", "same00", "fresh0"}
	gen := func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}

	svc := NewPayLinkService(repo, zap.NewNop(), WithIDGenerator(gen))
	_, err := svc.Create(ctx, CreatePayLinkInput{Description: "one", Min: 1, Max: 2}, "w")
	require.NoError(t, err)

	second, err := svc.Create(ctx, CreatePayLinkInput{Description: "two", Min: 1, Max: 2}, "w")
	require.NoError(t, err)
	require.Equal(t, "fresh0", second.ID)
}

func TestPayLinkService_CreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	calls := 0
	repo := &mockPayLinkRepository{
		createFn: func(ctx context.Context, link *model.PayLink) error {
			calls++
			return fmt.Errorf("%w: id", repository.ErrDuplicateKey)
		},
	}

	svc := NewPayLinkService(repo, nil)
	_, err := svc.Create(context.Background(), CreatePayLinkInput{Description: "x", Min: 1, Max: 2}, "w")
	require.ErrorIs(t, err, ErrIDExhausted)
	require.Equal(t, maxIDAttempts, calls)
}

func TestPayLinkService_CreateIntegrityFault(t *testing.T) {
	repo := &mockPayLinkRepository{}

	svc := NewPayLinkService(repo, nil)
	_, err := svc.Create(context.Background(), CreatePayLinkInput{Description: "x", Min: 1, Max: 2}, "w")
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestPayLinkService_UpdateRevalidatesUsername(t *testing.T) {
	ctx := context.Background()
	svc := newPayLinkService(t)

	a, err := svc.Create(ctx, CreatePayLinkInput{Description: "a", Min: 1, Max: 2, Username: "dave"}, "w")
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreatePayLinkInput{Description: "b", Min: 1, Max: 2}, "w")
	require.NoError(t, err)

	_, err = svc.Update(ctx, b.ID, UpdatePayLinkInput{Username: strPtr("dave")})
	require.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.Update(ctx, b.ID, UpdatePayLinkInput{Username: strPtr("NOT OK")})
	require.ErrorIs(t, err, ErrInvalidUsername)

	// Keeping its own username is not a conflict.
	same, err := svc.Update(ctx, a.ID, UpdatePayLinkInput{Username: strPtr("dave"), Description: strPtr("renamed")})
	require.NoError(t, err)
	require.Equal(t, "renamed", same.Description)

	cleared, err := svc.Update(ctx, a.ID, UpdatePayLinkInput{Username: strPtr("")})
	require.NoError(t, err)
	require.Nil(t, cleared.Username)

	moved, err := svc.Update(ctx, b.ID, UpdatePayLinkInput{Username: strPtr("dave")})
	require.NoError(t, err)
	require.Equal(t, "dave", moved.UsernameValue())
}

func TestPayLinkService_UpdateUnknown(t *testing.T) {
	svc := newPayLinkService(t)

	_, err := svc.Update(context.Background(), "nope00", UpdatePayLinkInput{Description: strPtr("x")})
	require.ErrorIs(t, err, repository.ErrLinkNotFound)
}

func TestPayLinkService_WarmUsernames(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewPayLinkRepository(db)
	require.NoError(t, repo.Create(ctx, &model.PayLink{ID: "seed00", Wallet: "w", Description: "x", Username: strPtr("erin")}))

	svc := NewPayLinkService(repo, zap.NewNop())
	require.NoError(t, svc.WarmUsernames(ctx))

	_, err := svc.Create(ctx, CreatePayLinkInput{Description: "b", Min: 1, Max: 2, Username: "erin"}, "w")
	require.ErrorIs(t, err, ErrUsernameTaken)
}

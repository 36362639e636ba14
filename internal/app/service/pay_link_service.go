package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sifan077/lnurlp/internal/app/model"
	"github.com/sifan077/lnurlp/internal/app/repository"
	"go.uber.org/zap"
)

const (
	linkIDLength    = 6
	maxIDAttempts   = 5
	idAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	filterCapacity  = 100_000
	filterFalseRate = 0.01
)

// IDGenerator returns a fresh short pay link id.
type IDGenerator func() (string, error)

// NewShortID returns 6 URL-safe characters drawn from crypto/rand.
func NewShortID() (string, error) {
	buf := make([]byte, linkIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate short id: %w", err)
	}
	// 64 symbols, so the low 6 bits map uniformly.
	for i, b := range buf {
		buf[i] = idAlphabet[b&63]
	}
	return string(buf), nil
}

// PayLinkService defines behaviour-level operations on pay links.
type PayLinkService interface {
	Create(ctx context.Context, input CreatePayLinkInput, walletID string) (*model.PayLink, error)
	Get(ctx context.Context, id string) (*model.PayLink, error)
	// GetByUsername resolves a lightning address local part to its pay link.
	GetByUsername(ctx context.Context, username string) (*model.PayLink, error)
	List(ctx context.Context, walletIDs ...string) ([]model.PayLink, error)
	Update(ctx context.Context, id string, input UpdatePayLinkInput) (*model.PayLink, error)
	Increment(ctx context.Context, id string, delta repository.CounterDelta) (*model.PayLink, error)
	Delete(ctx context.Context, id string) error
	// WarmUsernames loads existing usernames into the in-memory filter.
	WarmUsernames(ctx context.Context) error
}

// CreatePayLinkInput captures data required to create a pay link. Empty
// strings mean "unset".
type CreatePayLinkInput struct {
	Description        string
	Min                float64
	Max                float64
	Currency           string
	FiatBaseMultiplier int
	Username           string
	WebhookURL         string
	WebhookHeaders     string
	WebhookBody        string
	SuccessText        string
	SuccessURL         string
	CommentChars       int
	Zaps               bool
}

// UpdatePayLinkInput captures fields that can be changed on an existing pay link.
type UpdatePayLinkInput = repository.PayLinkUpdate

type payLinkService struct {
	repo      repository.PayLinkRepository
	logger    *zap.Logger
	newID     IDGenerator
	usernames *usernameFilter
}

// PayLinkOption customises a PayLinkService.
type PayLinkOption func(*payLinkService)

// WithIDGenerator replaces the short id generator.
func WithIDGenerator(gen IDGenerator) PayLinkOption {
	return func(s *payLinkService) { s.newID = gen }
}

// NewPayLinkService returns a service implementation backed by the given repository.
func NewPayLinkService(repo repository.PayLinkRepository, logger *zap.Logger, opts ...PayLinkOption) PayLinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &payLinkService{
		repo:      repo,
		logger:    logger,
		newID:     NewShortID,
		usernames: newUsernameFilter(filterCapacity, filterFalseRate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *payLinkService) WarmUsernames(ctx context.Context) error {
	names, err := s.repo.Usernames(ctx)
	if err != nil {
		return fmt.Errorf("load usernames: %w", err)
	}
	for _, name := range names {
		s.usernames.Add(name)
	}
	s.logger.Debug("username filter warmed", zap.Int("count", len(names)))
	return nil
}

func (s *payLinkService) Create(ctx context.Context, input CreatePayLinkInput, walletID string) (*model.PayLink, error) {
	if input.Username != "" {
		if err := ValidateUsername(input.Username); err != nil {
			return nil, err
		}
		if err := s.ensureUsernameFree(ctx, input.Username, ""); err != nil {
			return nil, err
		}
	}

	multiplier := input.FiatBaseMultiplier
	if multiplier <= 0 {
		multiplier = model.DefaultFiatBaseMultiplier
	}

	var id string
	for attempt := 1; ; attempt++ {
		if attempt > maxIDAttempts {
			return nil, ErrIDExhausted
		}

		var err error
		id, err = s.newID()
		if err != nil {
			return nil, err
		}

		link := &model.PayLink{
			ID:                 id,
			Wallet:             walletID,
			Description:        input.Description,
			Min:                input.Min,
			Max:                input.Max,
			Currency:           optional(input.Currency),
			FiatBaseMultiplier: multiplier,
			Username:           optional(input.Username),
			WebhookURL:         optional(input.WebhookURL),
			WebhookHeaders:     optional(input.WebhookHeaders),
			WebhookBody:        optional(input.WebhookBody),
			SuccessText:        optional(input.SuccessText),
			SuccessURL:         optional(input.SuccessURL),
			CommentChars:       input.CommentChars,
			Zaps:               input.Zaps,
		}

		err = s.repo.Create(ctx, link)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, fmt.Errorf("create pay link: %w", err)
		}
		if input.Username != "" {
			taken, lookupErr := s.repo.UsernameExists(ctx, input.Username)
			if lookupErr != nil {
				return nil, fmt.Errorf("check username: %w", lookupErr)
			}
			if taken {
				s.usernames.Add(input.Username)
				return nil, ErrUsernameTaken
			}
		}
		s.logger.Warn("pay link id collision, retrying", zap.String("id", id), zap.Int("attempt", attempt))
	}

	s.usernames.Add(input.Username)

	created, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, fmt.Errorf("%w: pay link %s missing after insert", ErrIntegrity, id)
		}
		return nil, fmt.Errorf("load created pay link: %w", err)
	}
	return created, nil
}

func (s *payLinkService) Get(ctx context.Context, id string) (*model.PayLink, error) {
	link, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get pay link: %w", err)
	}
	return link, nil
}

func (s *payLinkService) GetByUsername(ctx context.Context, username string) (*model.PayLink, error) {
	link, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get pay link by username: %w", err)
	}
	return link, nil
}

func (s *payLinkService) List(ctx context.Context, walletIDs ...string) ([]model.PayLink, error) {
	links, err := s.repo.List(ctx, walletIDs...)
	if err != nil {
		return nil, fmt.Errorf("list pay links: %w", err)
	}
	return links, nil
}

func (s *payLinkService) Update(ctx context.Context, id string, input UpdatePayLinkInput) (*model.PayLink, error) {
	if input.Username != nil && *input.Username != "" {
		if err := ValidateUsername(*input.Username); err != nil {
			return nil, err
		}
		if err := s.ensureUsernameFree(ctx, *input.Username, id); err != nil {
			return nil, err
		}
	}

	link, err := s.repo.Update(ctx, id, input)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("update pay link: %w", err)
	}
	s.usernames.Add(link.UsernameValue())
	return link, nil
}

func (s *payLinkService) Increment(ctx context.Context, id string, delta repository.CounterDelta) (*model.PayLink, error) {
	link, err := s.repo.Increment(ctx, id, delta)
	if err != nil {
		return nil, fmt.Errorf("increment pay link: %w", err)
	}
	return link, nil
}

func (s *payLinkService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete pay link: %w", err)
	}
	return nil
}

// ensureUsernameFree fails with ErrUsernameTaken when a link other than
// ownerID holds username.
func (s *payLinkService) ensureUsernameFree(ctx context.Context, username, ownerID string) error {
	if !s.usernames.MayContain(username) {
		return nil
	}

	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil
		}
		return fmt.Errorf("check username: %w", err)
	}
	if existing.ID != ownerID {
		return ErrUsernameTaken
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

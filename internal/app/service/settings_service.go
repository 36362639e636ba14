package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/sifan077/lnurlp/internal/app/model"
	"github.com/sifan077/lnurlp/internal/app/repository"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// KeyGenerator returns a new hex encoded private key.
type KeyGenerator func() (string, error)

// NewNostrPrivateKey generates a secp256k1 private key.
func NewNostrPrivateKey() (string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("generate private key: %w", err)
	}
	return hex.EncodeToString(priv.Serialize()), nil
}

// NostrPublicKey derives the x-only public key for a hex private key.
func NostrPublicKey(privateKeyHex string) (string, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil || len(raw) != btcec.PrivKeyBytesLen {
		return "", validationErrorf("nostr_private_key must be 32 hex encoded bytes")
	}
	_, pub := btcec.PrivKeyFromBytes(raw)
	return hex.EncodeToString(schnorr.SerializePubKey(pub)), nil
}

// SettingsService manages the extension-wide settings row and its relay file.
type SettingsService interface {
	GetOrCreate(ctx context.Context) (*model.ExtendedSettings, error)
	Update(ctx context.Context, settings *model.ExtendedSettings) (*model.ExtendedSettings, error)
	Delete(ctx context.Context) error
}

// SettingsDeps groups dependencies required by the settings service.
type SettingsDeps struct {
	Repo   repository.SettingsRepository
	Logger *zap.Logger
	// Fs holds the relay file; defaults to the OS filesystem.
	Fs afero.Fs
	// RelaysPath is the relay file location; empty disables the file.
	RelaysPath string
	NewKey     KeyGenerator
}

type settingsService struct {
	repo       repository.SettingsRepository
	logger     *zap.Logger
	fs         afero.Fs
	relaysPath string
	newKey     KeyGenerator
}

// NewSettingsService returns a SettingsService.
func NewSettingsService(deps SettingsDeps) SettingsService {
	s := &settingsService{
		repo:       deps.Repo,
		logger:     deps.Logger,
		fs:         deps.Fs,
		relaysPath: deps.RelaysPath,
		newKey:     deps.NewKey,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.newKey == nil {
		s.newKey = NewNostrPrivateKey
	}
	return s
}

func (s *settingsService) GetOrCreate(ctx context.Context) (*model.ExtendedSettings, error) {
	relays, err := s.readRelays()
	if err != nil {
		return nil, err
	}

	row, err := s.repo.Get(ctx)
	if errors.Is(err, repository.ErrSettingsNotFound) {
		row, err = s.create(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return s.extend(row.NostrPrivateKey, relays), nil
}

// create inserts a fresh row unless a concurrent caller won the race,
// then re-reads so every caller sees the same key.
func (s *settingsService) create(ctx context.Context) (*model.Settings, error) {
	key, err := s.newKey()
	if err != nil {
		return nil, err
	}

	inserted, err := s.repo.CreateIfAbsent(ctx, &model.Settings{NostrPrivateKey: key})
	if err != nil {
		return nil, err
	}
	if inserted {
		s.logger.Info("generated lnurlp settings")
	}
	return s.repo.Get(ctx)
}

func (s *settingsService) Update(ctx context.Context, settings *model.ExtendedSettings) (*model.ExtendedSettings, error) {
	if _, err := NostrPublicKey(settings.NostrPrivateKey); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, &model.Settings{NostrPrivateKey: settings.NostrPrivateKey}); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}

	if s.relaysPath != "" {
		if err := s.fs.MkdirAll(filepath.Dir(s.relaysPath), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create relay directory: %v", ErrSettingsIO, err)
		}
		data := []byte(FormatRelays(settings.Relays))
		if err := afero.WriteFile(s.fs, s.relaysPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("%w: write relay file: %v", ErrSettingsIO, err)
		}
	}

	return s.extend(settings.NostrPrivateKey, ParseRelays(FormatRelays(settings.Relays))), nil
}

func (s *settingsService) Delete(ctx context.Context) error {
	if err := s.repo.Delete(ctx); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	if s.relaysPath == "" {
		return nil
	}
	if err := s.fs.Remove(s.relaysPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove relay file: %v", ErrSettingsIO, err)
	}
	return nil
}

func (s *settingsService) readRelays() ([]string, error) {
	if s.relaysPath == "" {
		return []string{}, nil
	}
	data, err := afero.ReadFile(s.fs, s.relaysPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: read relay file: %v", ErrSettingsIO, err)
	}
	return ParseRelays(string(data)), nil
}

func (s *settingsService) extend(key string, relays []string) *model.ExtendedSettings {
	pub, err := NostrPublicKey(key)
	if err != nil {
		s.logger.Warn("stored nostr key is malformed", zap.Error(err))
	}
	return &model.ExtendedSettings{
		NostrPrivateKey: key,
		NostrPublicKey:  pub,
		Relays:          relays,
	}
}

// FormatRelays renders relays one per line, skipping blank entries.
func FormatRelays(relays []string) string {
	lines := make([]string, 0, len(relays))
	for _, r := range relays {
		if r = strings.TrimSpace(r); r != "" {
			lines = append(lines, r)
		}
	}
	return strings.Join(lines, "\n")
}

// ParseRelays is the inverse of FormatRelays.
func ParseRelays(data string) []string {
	relays := []string{}
	for _, line := range strings.Split(data, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			relays = append(relays, line)
		}
	}
	return relays
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"virtual-atm/models"
)

// AccountStore owns the in-memory account collection for a run and mirrors it
// to an AccountRepository. Memory is the source of truth once loaded: every
// save rewrites the medium from the collection, nothing reloads behind it.
type AccountStore struct {
	repo     AccountRepository
	logger   *zap.Logger
	accounts []models.Account
}

// NewAccountStore creates an empty store over repo.
func NewAccountStore(repo AccountRepository, logger *zap.Logger) *AccountStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountStore{repo: repo, logger: logger}
}

// Load seeds the medium when needed and reads the full account set into memory.
func (s *AccountStore) Load(ctx context.Context) error {
	seeded, err := s.repo.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	if seeded {
		s.logger.Info("AccountStore: sample accounts created", zap.Int("count", len(SampleAccounts())))
	}

	accounts, err := s.repo.LoadAll(ctx)
	switch {
	case errors.Is(err, ErrNoData):
		s.logger.Warn("AccountStore: no account data available, starting empty")
		accounts = []models.Account{}
	case err != nil:
		return fmt.Errorf("Load: %w", err)
	}

	s.accounts = accounts
	s.logger.Debug("AccountStore: accounts loaded", zap.Int("count", len(accounts)))
	return nil
}

// Accounts returns a copy of the collection.
func (s *AccountStore) Accounts() []models.Account {
	out := make([]models.Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Find looks an account up by id.
func (s *AccountStore) Find(id string) (models.Account, bool) {
	i, ok := FindByAccountID(s.accounts, id)
	if !ok {
		return models.Account{}, false
	}
	return s.accounts[i], true
}

// UpdateOne replaces the record with the same id and rewrites the medium.
// On a write error the in-memory replacement is kept.
func (s *AccountStore) UpdateOne(ctx context.Context, acc models.Account) error {
	i, ok := FindByAccountID(s.accounts, acc.AccountID())
	if !ok {
		return fmt.Errorf("UpdateOne: %w (ID: %s)", ErrAccountNotFound, acc.AccountID())
	}
	s.accounts[i] = acc
	if err := s.Save(ctx); err != nil {
		return fmt.Errorf("UpdateOne: %w", err)
	}
	return nil
}

// Save mirrors the whole collection to the medium.
func (s *AccountStore) Save(ctx context.Context) error {
	if err := s.repo.SaveAll(ctx, s.accounts); err != nil {
		s.logger.Error("AccountStore: could not persist accounts", zap.Error(err))
		return err
	}
	return nil
}

// Repository exposes the durable medium behind the store.
func (s *AccountStore) Repository() AccountRepository { return s.repo }

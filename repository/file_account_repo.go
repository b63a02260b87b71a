package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"virtual-atm/internal/util"
	"virtual-atm/models"
)

// fileAccountRepository implements AccountRepository over a flat text file.
type fileAccountRepository struct {
	path   string
	loader util.DataLoader
	logger *zap.Logger
}

// NewFileAccountRepository creates a repository backed by the file at path.
func NewFileAccountRepository(path string, logger *zap.Logger) AccountRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fileAccountRepository{
		path:   path,
		loader: util.NewLineDataLoader(logger),
		logger: logger,
	}
}

// Initialize writes the sample accounts when the data file is absent.
func (r *fileAccountRepository) Initialize(ctx context.Context) (bool, error) {
	_, err := os.Stat(r.path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("Initialize: %w", err)
	}

	r.logger.Info("FileRepository: data file not found, creating sample data", zap.String("path", r.path))
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("Initialize: %w: %w", ErrWrite, err)
		}
	}
	if err := r.SaveAll(ctx, SampleAccounts()); err != nil {
		return false, fmt.Errorf("Initialize: %w", err)
	}
	return true, nil
}

// LoadAll reads every account line from the data file.
func (r *fileAccountRepository) LoadAll(ctx context.Context) ([]models.Account, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("FileRepository: could not open accounts file, using empty account list", zap.String("path", r.path))
			return []models.Account{}, ErrNoData
		}
		return nil, fmt.Errorf("LoadAll: failed to open %s: %w", r.path, err)
	}
	defer f.Close()

	accounts, err := r.loader.LoadAccounts(f)
	if err != nil {
		return nil, fmt.Errorf("LoadAll: %w", err)
	}
	return accounts, nil
}

// SaveAll rewrites the data file through a temporary file and a rename, so a
// failed write leaves the previous contents in place.
func (r *fileAccountRepository) SaveAll(ctx context.Context, accounts []models.Account) (err error) {
	tmp := r.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("SaveAll: %w: %w", ErrWrite, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	writeErr := r.loader.WriteAccounts(f, accounts)
	if err := multierr.Append(writeErr, f.Close()); err != nil {
		return fmt.Errorf("SaveAll: %w: %w", ErrWrite, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("SaveAll: %w: %w", ErrWrite, err)
	}
	return nil
}

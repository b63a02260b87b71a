package repository

import (
	"context"
	"errors"

	"virtual-atm/models"
)

var (
	// ErrNoData signals a missing durable medium. Callers treat it as an empty set.
	ErrNoData = errors.New("no account data")
	// ErrAccountNotFound is returned by operations that require an existing record.
	ErrAccountNotFound = errors.New("account not found")
	// ErrWrite wraps every failure to persist the account set.
	ErrWrite = errors.New("durable write failed")
)

// AccountRepository defines the durable medium holding the full account set.
type AccountRepository interface {
	// Initialize creates the medium with sample accounts when it does not exist yet.
	Initialize(ctx context.Context) (seeded bool, err error)
	// LoadAll returns every valid record. A missing medium yields an empty set and ErrNoData.
	LoadAll(ctx context.Context) ([]models.Account, error)
	// SaveAll replaces the whole medium with accounts.
	SaveAll(ctx context.Context, accounts []models.Account) error
}

// FindByAccountID returns the index of id in accounts. Absence is not an error.
func FindByAccountID(accounts []models.Account, id string) (int, bool) {
	for i := range accounts {
		if accounts[i].AccountID() == id {
			return i, true
		}
	}
	return -1, false
}

// SampleAccounts is the data set written on first run.
func SampleAccounts() []models.Account {
	return []models.Account{
		models.NewAccount("12345", "1234", 1500.75),
		models.NewAccount("67890", "5678", 2750.00),
		models.NewAccount("11111", "1111", 500.25),
		models.NewAccount("22222", "2222", 10000.00),
		models.NewAccount("33333", "3333", 0.00),
	}
}

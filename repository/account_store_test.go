package repository

import (
	"context"
	"errors"
	"testing"

	"virtual-atm/models"
)

// memRepo is an in-memory AccountRepository with switchable failures.
type memRepo struct {
	stored    []models.Account
	exists    bool
	saveErr   error
	saveCalls int
}

func (m *memRepo) Initialize(ctx context.Context) (bool, error) {
	if m.exists {
		return false, nil
	}
	m.exists = true
	m.stored = SampleAccounts()
	return true, nil
}

func (m *memRepo) LoadAll(ctx context.Context) ([]models.Account, error) {
	if !m.exists {
		return []models.Account{}, ErrNoData
	}
	out := make([]models.Account, len(m.stored))
	copy(out, m.stored)
	return out, nil
}

func (m *memRepo) SaveAll(ctx context.Context, accounts []models.Account) error {
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.stored = append([]models.Account(nil), accounts...)
	return nil
}

func TestAccountStoreLoadSeeds(t *testing.T) {
	store := NewAccountStore(&memRepo{}, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(store.Accounts()); got != 5 {
		t.Fatalf("accounts=%d want=5", got)
	}
	acc, ok := store.Find("22222")
	if !ok || acc.Balance() != 10000 {
		t.Fatalf("Find(22222)=%v,%v", acc, ok)
	}
	if _, ok := store.Find("99999"); ok {
		t.Fatal("unknown id should not be found")
	}
}

func TestAccountStoreUpdateOne(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{}
	store := NewAccountStore(repo, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateOne(ctx, models.NewAccount("12345", "1234", 1000)); err != nil {
		t.Fatal(err)
	}
	if i, _ := FindByAccountID(repo.stored, "12345"); repo.stored[i].Balance() != 1000 {
		t.Fatalf("persisted balance=%.2f", repo.stored[i].Balance())
	}
	if len(repo.stored) != 5 {
		t.Fatalf("save must rewrite the full set, got %d records", len(repo.stored))
	}

	err := store.UpdateOne(ctx, models.NewAccount("00000", "0", 1))
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err=%v want ErrAccountNotFound", err)
	}
}

func TestAccountStoreWriteFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{}
	store := NewAccountStore(repo, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}
	repo.saveErr = ErrWrite

	err := store.UpdateOne(ctx, models.NewAccount("11111", "1111", 0.25))
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("err=%v want ErrWrite", err)
	}
	acc, _ := store.Find("11111")
	if acc.Balance() != 0.25 {
		t.Fatalf("in-memory balance=%.2f want=0.25", acc.Balance())
	}
	if i, _ := FindByAccountID(repo.stored, "11111"); repo.stored[i].Balance() != 500.25 {
		t.Fatal("medium should still hold the old balance")
	}
}

func TestAccountsReturnsCopy(t *testing.T) {
	store := NewAccountStore(&memRepo{}, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	list := store.Accounts()
	list[0] = models.NewAccount("12345", "0000", 0)
	if acc, _ := store.Find("12345"); !acc.ValidatePin("1234") {
		t.Fatal("mutating the returned slice leaked into the store")
	}
}

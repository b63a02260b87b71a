package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"virtual-atm/models"
	"virtual-atm/repository"
)

// fakeRepo is an in-memory AccountRepository.
type fakeRepo struct {
	stored  []models.Account
	saveErr error
	saves   int
}

func (f *fakeRepo) Initialize(ctx context.Context) (bool, error) {
	if f.stored == nil {
		f.stored = repository.SampleAccounts()
		return true, nil
	}
	return false, nil
}

func (f *fakeRepo) LoadAll(ctx context.Context) ([]models.Account, error) {
	return append([]models.Account(nil), f.stored...), nil
}

func (f *fakeRepo) SaveAll(ctx context.Context, accounts []models.Account) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.stored = append([]models.Account(nil), accounts...)
	return nil
}

func newSession(t *testing.T) (SessionService, *fakeRepo, *repository.AccountStore) {
	t.Helper()
	repo := &fakeRepo{}
	store := repository.NewAccountStore(repo, zaptest.NewLogger(t))
	if err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return NewSessionService(store, NewReconciliationService(repo, nil), zaptest.NewLogger(t)), repo, store
}

func storedBalance(t *testing.T, repo *fakeRepo, id string) float64 {
	t.Helper()
	i, ok := repository.FindByAccountID(repo.stored, id)
	if !ok {
		t.Fatalf("account %s not on medium", id)
	}
	return repo.stored[i].Balance()
}

func TestAuthenticateSuccess(t *testing.T) {
	s, _, _ := newSession(t)
	if err := s.Authenticate(context.Background(), "12345", "1234"); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("state=%v", s.State())
	}
	acc, ok := s.CurrentAccount()
	if !ok || acc.AccountID() != "12345" {
		t.Fatalf("current=%v,%v", acc, ok)
	}
}

func TestAuthenticateThreeFailuresExit(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t)

	for i := 1; i <= 2; i++ {
		err := s.Authenticate(ctx, "12345", "0000")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d err=%v", i, err)
		}
		if s.AttemptsRemaining() != MaxAuthAttempts-i {
			t.Fatalf("remaining=%d", s.AttemptsRemaining())
		}
	}
	if err := s.Authenticate(ctx, "99999", "1234"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("third attempt err=%v", err)
	}
	if s.State() != StateExited {
		t.Fatalf("state=%v want exited", s.State())
	}
	if err := s.Authenticate(ctx, "12345", "1234"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err=%v want ErrSessionClosed", err)
	}
}

func TestFailedAttemptThenSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t)
	_ = s.Authenticate(ctx, "12345", "9999")
	_ = s.Authenticate(ctx, "12345", "9999")
	if err := s.Authenticate(ctx, "12345", "1234"); err != nil {
		t.Fatal(err)
	}
	if s.AttemptsRemaining() != MaxAuthAttempts {
		t.Fatalf("remaining=%d", s.AttemptsRemaining())
	}
}

func TestOperationsRequireAuthentication(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t)
	if _, err := s.BalanceInquiry(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("inquiry err=%v", err)
	}
	if _, err := s.Withdraw(ctx, 10); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("withdraw err=%v", err)
	}
	if _, err := s.Deposit(ctx, 10); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("deposit err=%v", err)
	}
}

func TestWithdrawPersists(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	if err := s.Authenticate(ctx, "12345", "1234"); err != nil {
		t.Fatal(err)
	}

	tx, err := s.Withdraw(ctx, 500)
	if err != nil {
		t.Fatal(err)
	}
	if !tx.Successful() || tx.Type() != models.TypeWithdrawal {
		t.Fatalf("tx=%+v", tx)
	}
	if got := storedBalance(t, repo, "12345"); got != 1000.75 {
		t.Fatalf("stored=%.2f want=1000.75", got)
	}
	if acc, _ := s.CurrentAccount(); acc.Balance() != 1000.75 {
		t.Fatalf("current=%.2f", acc.Balance())
	}
}

func TestWithdrawInsufficientFundsLoggedNotPersisted(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	if err := s.Authenticate(ctx, "11111", "1111"); err != nil {
		t.Fatal(err)
	}
	saves := repo.saves

	tx, err := s.Withdraw(ctx, 600)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err=%v want ErrInsufficientFunds", err)
	}
	if tx.Successful() || !tx.Processed() {
		t.Fatalf("tx=%+v", tx)
	}
	if repo.saves != saves {
		t.Fatal("a declined withdrawal must not be written")
	}
	if h := s.History(); len(h) != 1 || h[0].Successful() {
		t.Fatalf("history=%v", h)
	}
	if got := storedBalance(t, repo, "11111"); got != 500.25 {
		t.Fatalf("stored=%.2f", got)
	}
}

func TestWithdrawExactBalance(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	if err := s.Authenticate(ctx, "11111", "1111"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Withdraw(ctx, 500.25); err != nil {
		t.Fatal(err)
	}
	if got := storedBalance(t, repo, "11111"); got != 0 {
		t.Fatalf("stored=%.2f want=0", got)
	}
}

func TestInvalidAmountsRejectedBeforeLogging(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t)
	if err := s.Authenticate(ctx, "22222", "2222"); err != nil {
		t.Fatal(err)
	}
	for _, amount := range []float64{0, -5, 0.004, math.NaN(), math.Inf(1)} {
		if _, err := s.Deposit(ctx, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Deposit(%v) err=%v", amount, err)
		}
		if _, err := s.Withdraw(ctx, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Withdraw(%v) err=%v", amount, err)
		}
	}
	if len(s.History()) != 0 {
		t.Fatalf("history=%v", s.History())
	}
}

func TestDepositAndHistoryOrder(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	if err := s.Authenticate(ctx, "33333", "3333"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Deposit(ctx, 250.5); err != nil {
		t.Fatal(err)
	}
	if _, err := s.BalanceInquiry(ctx); err != nil {
		t.Fatal(err)
	}
	if got := storedBalance(t, repo, "33333"); got != 250.5 {
		t.Fatalf("stored=%.2f", got)
	}

	h := s.History()
	if len(h) != 2 {
		t.Fatalf("history len=%d", len(h))
	}
	if h[0].Type() != models.TypeDeposit || h[1].Type() != models.TypeBalanceInquiry {
		t.Fatalf("order=%s,%s", h[0].Type(), h[1].Type())
	}
	if h[1].BalanceAtTime() != 250.5 {
		t.Fatalf("inquiry balance=%.2f", h[1].BalanceAtTime())
	}
}

func TestLogoutClearsSession(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t)
	if err := s.Authenticate(ctx, "12345", "1234"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.BalanceInquiry(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateUnauthenticated || len(s.History()) != 0 {
		t.Fatalf("state=%v history=%d", s.State(), len(s.History()))
	}
	if _, ok := s.CurrentAccount(); ok {
		t.Fatal("no account should be current after logout")
	}

	// A second user can log in on the same controller.
	if err := s.Authenticate(ctx, "67890", "5678"); err != nil {
		t.Fatal(err)
	}
	if len(s.History()) != 0 {
		t.Fatal("history leaked between users")
	}
}

func TestExitSaves(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	if err := s.Authenticate(ctx, "12345", "1234"); err != nil {
		t.Fatal(err)
	}
	saves := repo.saves
	if err := s.Exit(ctx); err != nil {
		t.Fatal(err)
	}
	if repo.saves != saves+1 {
		t.Fatalf("saves=%d want=%d", repo.saves, saves+1)
	}
	if s.State() != StateExited {
		t.Fatalf("state=%v", s.State())
	}
}

func TestWriteFailureKeepsMemoryAndReportsDrift(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	store := repository.NewAccountStore(repo, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zapcore.WarnLevel)
	s := NewSessionService(store, NewReconciliationService(repo, nil), zap.New(core))
	if err := s.Authenticate(ctx, "22222", "2222"); err != nil {
		t.Fatal(err)
	}
	repo.saveErr = repository.ErrWrite

	tx, err := s.Deposit(ctx, 100)
	if !errors.Is(err, repository.ErrWrite) {
		t.Fatalf("err=%v want ErrWrite", err)
	}
	if !tx.Successful() {
		t.Fatal("transaction outcome does not depend on the write")
	}
	if acc, _ := store.Find("22222"); acc.Balance() != 10100 {
		t.Fatalf("in-memory=%.2f want=10100", acc.Balance())
	}
	if logs.FilterMessage("Session: in-memory accounts differ from durable storage").Len() != 1 {
		t.Fatalf("drift warning missing, logs=%v", logs.All())
	}
}

func TestStateString(t *testing.T) {
	if StateLoggedOut.String() != "logged_out" || State(42).String() != "State(42)" {
		t.Fatal("unexpected State strings")
	}
}

func TestDepositOverflowRejected(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	if err := s.Authenticate(ctx, "22222", "2222"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Deposit(ctx, math.MaxFloat64); err != nil {
		t.Fatal(err)
	}
	saves := repo.saves
	before := storedBalance(t, repo, "22222")

	tx, err := s.Deposit(ctx, math.MaxFloat64)
	if !errors.Is(err, ErrDepositRejected) {
		t.Fatalf("err=%v want ErrDepositRejected", err)
	}
	if tx.Successful() || repo.saves != saves {
		t.Fatalf("overflowing deposit must not succeed or be written, tx=%+v saves=%d", tx, repo.saves)
	}
	acc, _ := s.CurrentAccount()
	if acc.Balance() != before || math.IsInf(acc.Balance(), 0) {
		t.Fatalf("balance=%v want=%v", acc.Balance(), before)
	}
	if _, err := s.Withdraw(ctx, before); err != nil {
		t.Fatalf("account should stay usable, err=%v", err)
	}
	if got := storedBalance(t, repo, "22222"); got != 0 {
		t.Fatalf("stored=%v want=0", got)
	}
}

func TestSubCentAmountRecordedRounded(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newSession(t)
	if err := s.Authenticate(ctx, "33333", "3333"); err != nil {
		t.Fatal(err)
	}
	tx, err := s.Deposit(ctx, 10.005)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Amount() != 10.01 || storedBalance(t, repo, "33333") != 10.01 {
		t.Fatalf("amount=%v stored=%v", tx.Amount(), storedBalance(t, repo, "33333"))
	}
}

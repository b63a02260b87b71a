package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"virtual-atm/models"
	"virtual-atm/repository"
)

// MaxAuthAttempts bounds one authentication sequence.
const MaxAuthAttempts = 3

// Define custom errors for the service layer
var (
	ErrInvalidCredentials = errors.New("invalid account number or PIN")
	ErrTooManyAttempts    = errors.New("maximum authentication attempts exceeded")
	ErrNotAuthenticated   = errors.New("no authenticated session")
	ErrAlreadyAuthed      = errors.New("session already authenticated")
	ErrSessionClosed      = errors.New("session has exited")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDepositRejected    = errors.New("deposit rejected")
)

// State is the session controller state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateLoggedOut
	StateExited
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateLoggedOut:
		return "logged_out"
	case StateExited:
		return "exited"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SessionService defines the ATM session controller.
type SessionService interface {
	Authenticate(ctx context.Context, accountID, pin string) error
	BalanceInquiry(ctx context.Context) (models.Transaction, error)
	Withdraw(ctx context.Context, amount float64) (models.Transaction, error)
	Deposit(ctx context.Context, amount float64) (models.Transaction, error)
	History() []models.Transaction
	CurrentAccount() (models.Account, bool)
	Logout(ctx context.Context) error
	Exit(ctx context.Context) error
	State() State
	AttemptsRemaining() int
}

// sessionServiceImpl implements SessionService. It keeps only the account id
// of the authenticated user; the AccountStore stays the owner of the record.
type sessionServiceImpl struct {
	store      *repository.AccountStore
	reconciler ReconciliationService
	logger     *zap.Logger

	state     State
	attempts  int
	accountID string
	sessionID string
	history   []models.Transaction
}

// NewSessionService creates a new session controller over a loaded store.
// reconciler may be nil.
func NewSessionService(store *repository.AccountStore, reconciler ReconciliationService, logger *zap.Logger) SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionServiceImpl{
		store:      store,
		reconciler: reconciler,
		logger:     logger,
		state:      StateUnauthenticated,
	}
}

func (s *sessionServiceImpl) State() State { return s.state }

func (s *sessionServiceImpl) AttemptsRemaining() int { return MaxAuthAttempts - s.attempts }

// Authenticate checks one (account id, PIN) attempt. The third consecutive
// failure closes the session with ErrTooManyAttempts.
func (s *sessionServiceImpl) Authenticate(ctx context.Context, accountID, pin string) error {
	switch s.state {
	case StateExited:
		return ErrSessionClosed
	case StateAuthenticated:
		return ErrAlreadyAuthed
	}

	acc, found := s.store.Find(accountID)
	if found && acc.ValidatePin(pin) {
		s.attempts = 0
		s.accountID = acc.AccountID()
		s.sessionID = uuid.NewString()
		s.history = nil
		s.state = StateAuthenticated
		s.log().Info("Session: authenticated")
		return nil
	}

	s.attempts++
	s.logger.Warn("Session: authentication failed",
		zap.String("account_id", accountID), zap.Int("attempt", s.attempts))
	if s.attempts >= MaxAuthAttempts {
		s.state = StateExited
		return fmt.Errorf("Authenticate: %w", ErrTooManyAttempts)
	}
	return fmt.Errorf("Authenticate: %w (attempts remaining: %d)", ErrInvalidCredentials, s.AttemptsRemaining())
}

// BalanceInquiry snapshots the current balance. Nothing is persisted.
func (s *sessionServiceImpl) BalanceInquiry(ctx context.Context) (models.Transaction, error) {
	acc, err := s.current()
	if err != nil {
		return models.Transaction{}, fmt.Errorf("BalanceInquiry: %w", err)
	}
	_, tx, _ := models.Apply(models.NewBalanceInquiry(), acc)
	s.history = append(s.history, tx)
	return tx, nil
}

// Withdraw applies a withdrawal. A failed withdrawal is still recorded in the
// history and returned with ErrInsufficientFunds.
func (s *sessionServiceImpl) Withdraw(ctx context.Context, amount float64) (models.Transaction, error) {
	return s.mutate(ctx, "Withdraw", amount, models.NewWithdrawal, ErrInsufficientFunds)
}

// Deposit applies a deposit. Deposits are capped only by what a balance can hold.
func (s *sessionServiceImpl) Deposit(ctx context.Context, amount float64) (models.Transaction, error) {
	return s.mutate(ctx, "Deposit", amount, models.NewDeposit, ErrDepositRejected)
}

// mutate runs a balance-changing transaction and persists the full account
// set when it succeeds. A write failure is returned but the in-memory change
// is not rolled back.
func (s *sessionServiceImpl) mutate(ctx context.Context, op string, amount float64, build func(float64) models.Transaction, failure error) (models.Transaction, error) {
	acc, err := s.current()
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%s: %w", op, err)
	}
	amount = models.RoundAmount(amount)
	if amount <= 0 {
		return models.Transaction{}, fmt.Errorf("%s: %w", op, ErrInvalidAmount)
	}

	next, tx, ok := models.Apply(build(amount), acc)
	s.history = append(s.history, tx)
	if !ok {
		s.log().Info("Session: transaction declined",
			zap.String("type", string(tx.Type())), zap.String("txn", tx.ID()), zap.Float64("amount", amount))
		return tx, fmt.Errorf("%s: %w (Balance: %s, Amount: %s)", op, failure,
			models.FormatMoney(acc.Balance()), models.FormatMoney(amount))
	}

	s.log().Info("Session: transaction applied",
		zap.String("type", string(tx.Type())), zap.String("txn", tx.ID()),
		zap.Float64("amount", amount), zap.Float64("balance", next.Balance()))

	if err := s.store.UpdateOne(ctx, next); err != nil {
		s.reportDrift(ctx)
		return tx, fmt.Errorf("%s: %w", op, err)
	}
	return tx, nil
}

// History returns the session log in insertion order.
func (s *sessionServiceImpl) History() []models.Transaction {
	out := make([]models.Transaction, len(s.history))
	copy(out, s.history)
	return out
}

// CurrentAccount returns the authenticated account as currently held by the store.
func (s *sessionServiceImpl) CurrentAccount() (models.Account, bool) {
	acc, err := s.current()
	return acc, err == nil
}

// Logout persists, drops the session log and returns to the unauthenticated state.
func (s *sessionServiceImpl) Logout(ctx context.Context) error {
	if s.state != StateAuthenticated {
		return nil
	}
	err := s.store.Save(ctx)
	s.log().Info("Session: logged out", zap.Int("transactions", len(s.history)))

	s.state = StateLoggedOut
	s.clear()
	s.state = StateUnauthenticated
	if err != nil {
		return fmt.Errorf("Logout: %w", err)
	}
	return nil
}

// Exit persists when authenticated and closes the session for good.
func (s *sessionServiceImpl) Exit(ctx context.Context) error {
	var err error
	if s.state == StateAuthenticated {
		err = s.store.Save(ctx)
		s.log().Info("Session: exiting")
	}
	s.clear()
	s.state = StateExited
	if err != nil {
		return fmt.Errorf("Exit: %w", err)
	}
	return nil
}

func (s *sessionServiceImpl) clear() {
	s.history = nil
	s.accountID = ""
	s.sessionID = ""
	s.attempts = 0
}

func (s *sessionServiceImpl) current() (models.Account, error) {
	if s.state != StateAuthenticated {
		return models.Account{}, ErrNotAuthenticated
	}
	acc, ok := s.store.Find(s.accountID)
	if !ok {
		return models.Account{}, fmt.Errorf("%w (ID: %s)", repository.ErrAccountNotFound, s.accountID)
	}
	return acc, nil
}

func (s *sessionServiceImpl) log() *zap.Logger {
	return s.logger.With(zap.String("session", s.sessionID), zap.String("account_id", s.accountID))
}

func (s *sessionServiceImpl) reportDrift(ctx context.Context) {
	if s.reconciler == nil {
		return
	}
	report, err := s.reconciler.Reconcile(ctx, s.store.Accounts())
	if err != nil {
		s.log().Warn("Session: drift check failed", zap.Error(err))
		return
	}
	if !report.Clean() {
		s.log().Warn("Session: in-memory accounts differ from durable storage",
			zap.Int("mismatched", len(report.Mismatched)),
			zap.Int("only_in_memory", len(report.OnlyInMemory)),
			zap.Int("only_on_medium", len(report.OnlyOnMedium)))
	}
}

package atm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"virtual-atm/internal/service"
	"virtual-atm/models"
)

// Terminal is the presentation side of the machine.
type Terminal interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
	ReadAmount(ctx context.Context, prompt string) (float64, error)
	ReadMenuChoice(ctx context.Context) (int, error)
	Pause(ctx context.Context) error
	ClearScreen()
	Printf(format string, args ...any)
	Success(msg string)
	Error(msg string)
	Info(msg string)
	Header(title string)
	Welcome()
	MainMenu(accountID string, balance float64)
	History(txs []models.Transaction)
}

// Menu options.
const (
	OptionExit = iota
	OptionBalanceInquiry
	OptionWithdraw
	OptionDeposit
	OptionHistory
	OptionLogout
)

// Machine runs the interactive ATM loop for one process.
type Machine struct {
	session service.SessionService
	term    Terminal
	logger  *zap.Logger
}

// NewMachine wires a session controller to a terminal.
func NewMachine(session service.SessionService, term Terminal, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{session: session, term: term, logger: logger}
}

// Run drives the menu until the user exits, input ends or ctx is cancelled.
// It returns service.ErrTooManyAttempts after an authentication lockout.
func (m *Machine) Run(ctx context.Context) error {
	m.term.Welcome()

	for {
		if err := ctx.Err(); err != nil {
			return m.exit(ctx, false)
		}

		if m.session.State() != service.StateAuthenticated {
			err := m.authenticate(ctx)
			switch {
			case errors.Is(err, service.ErrTooManyAttempts):
				m.term.Error("Authentication failed. Goodbye!")
				return err
			case err != nil:
				return m.inputEnded(ctx, err)
			}
		}

		acc, _ := m.session.CurrentAccount()
		m.term.MainMenu(acc.AccountID(), acc.Balance())
		choice, err := m.term.ReadMenuChoice(ctx)
		if err != nil {
			return m.inputEnded(ctx, err)
		}

		switch choice {
		case OptionBalanceInquiry:
			m.balanceInquiry(ctx)
		case OptionWithdraw:
			err = m.withdraw(ctx)
		case OptionDeposit:
			err = m.deposit(ctx)
		case OptionHistory:
			m.history()
		case OptionLogout:
			m.logout(ctx)
		case OptionExit:
			return m.exit(ctx, true)
		default:
			m.term.Error("Invalid option. Please try again.")
		}
		if err != nil {
			return m.inputEnded(ctx, err)
		}

		if err := m.term.Pause(ctx); err != nil {
			return m.inputEnded(ctx, err)
		}
	}
}

func (m *Machine) authenticate(ctx context.Context) error {
	m.term.Header("AUTHENTICATION")
	for {
		id, err := m.term.ReadLine(ctx, "Enter Account Number: ")
		if err != nil {
			return err
		}
		pin, err := m.term.ReadLine(ctx, "Enter PIN: ")
		if err != nil {
			return err
		}

		err = m.session.Authenticate(ctx, id, pin)
		switch {
		case err == nil:
			m.term.Success("Authentication successful!")
			m.term.Printf("\n")
			return nil
		case errors.Is(err, service.ErrInvalidCredentials):
			m.term.Error(fmt.Sprintf("Invalid account number or PIN. Attempts remaining: %d", m.session.AttemptsRemaining()))
			m.term.Printf("\n")
		case errors.Is(err, service.ErrTooManyAttempts):
			m.term.Error("Invalid account number or PIN. Attempts remaining: 0")
			m.term.Error("Maximum authentication attempts exceeded.")
			return err
		default:
			return err
		}
	}
}

func (m *Machine) balanceInquiry(ctx context.Context) {
	m.term.ClearScreen()
	m.term.Header("BALANCE INQUIRY")
	tx, err := m.session.BalanceInquiry(ctx)
	if err != nil {
		m.term.Error(err.Error())
		return
	}
	m.term.Printf("Current Balance: $%s\n", models.FormatMoney(tx.BalanceAtTime()))
	m.term.Success("Transaction completed successfully.")
}

func (m *Machine) withdraw(ctx context.Context) error {
	m.term.ClearScreen()
	m.term.Header("CASH WITHDRAWAL")
	m.showBalance()

	amount, err := m.term.ReadAmount(ctx, "Enter withdrawal amount: $")
	if err != nil {
		return err
	}
	tx, err := m.session.Withdraw(ctx, amount)
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		m.term.Error("Invalid amount. Please enter a positive value.")
	case errors.Is(err, service.ErrInsufficientFunds):
		m.term.Error("Withdrawal failed. Insufficient funds.")
	case tx.Successful():
		m.term.Success("Withdrawal successful!")
		m.term.Printf("Amount withdrawn: $%s\n", models.FormatMoney(amount))
		m.showNewBalance()
		m.reportSaveError(err)
	default:
		m.term.Error(err.Error())
	}
	return nil
}

func (m *Machine) deposit(ctx context.Context) error {
	m.term.ClearScreen()
	m.term.Header("CASH DEPOSIT")
	m.showBalance()

	amount, err := m.term.ReadAmount(ctx, "Enter deposit amount: $")
	if err != nil {
		return err
	}
	tx, err := m.session.Deposit(ctx, amount)
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		m.term.Error("Invalid amount. Please enter a positive value.")
	case errors.Is(err, service.ErrDepositRejected):
		m.term.Error("Deposit failed. The balance cannot hold this amount.")
	case tx.Successful():
		m.term.Success("Deposit successful!")
		m.term.Printf("Amount deposited: $%s\n", models.FormatMoney(amount))
		m.showNewBalance()
		m.reportSaveError(err)
	default:
		m.term.Error(err.Error())
	}
	return nil
}

func (m *Machine) history() {
	m.term.ClearScreen()
	m.term.Header("TRANSACTION HISTORY (Current Session)")
	m.term.History(m.session.History())
}

func (m *Machine) logout(ctx context.Context) {
	if err := m.session.Logout(ctx); err != nil {
		m.term.Error("Account data could not be saved: " + err.Error())
	}
	m.term.Success("Logged out successfully.")
}

// exit closes the session. farewell is set when the user chose to leave.
// The final save runs even when ctx has been cancelled.
func (m *Machine) exit(ctx context.Context, farewell bool) error {
	wasAuthenticated := m.session.State() == service.StateAuthenticated
	if err := m.session.Exit(context.WithoutCancel(ctx)); err != nil {
		m.term.Error("Account data could not be saved: " + err.Error())
	}
	if wasAuthenticated {
		m.term.Success("Logged out successfully.")
	}
	if farewell {
		m.term.Info("Thank you for using our ATM service!")
	}
	return nil
}

// inputEnded turns end of input or cancellation into an exit and passes
// other read errors up.
func (m *Machine) inputEnded(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		m.logger.Debug("Machine: input closed, exiting")
		return m.exit(ctx, false)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.logger.Info("Machine: interrupted, exiting")
		return m.exit(ctx, false)
	}
	return fmt.Errorf("Run: %w", err)
}

func (m *Machine) showBalance() {
	acc, _ := m.session.CurrentAccount()
	m.term.Printf("Current Balance: $%s\n\n", models.FormatMoney(acc.Balance()))
}

func (m *Machine) showNewBalance() {
	acc, _ := m.session.CurrentAccount()
	m.term.Printf("New balance: $%s\n", models.FormatMoney(acc.Balance()))
}

func (m *Machine) reportSaveError(err error) {
	if err != nil {
		m.term.Error("Account data could not be saved. The change is kept for this session.")
	}
}

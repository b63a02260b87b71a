package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrMalformedRecord is returned when a serialized account line cannot be parsed.
var ErrMalformedRecord = errors.New("malformed account record")

var validate = validator.New()

// Account is a single ATM account: identity, credential and balance.
// Balance changes only go through UpdateBalance, Withdraw and Deposit.
type Account struct {
	accountID string
	pin       string
	balance   float64
}

// accountRecord is the validated shape of a persisted account line.
type accountRecord struct {
	AccountID string  `validate:"required,excludesall=0x2C"`
	PIN       string  `validate:"required,excludesall=0x2C"`
	Balance   float64 `validate:"gte=0"`
}

// NewAccount builds an account; the balance is rounded to cents.
func NewAccount(accountID, pin string, balance float64) Account {
	if !finite(balance) {
		balance = 0
	}
	return Account{accountID: accountID, pin: pin, balance: roundCents(decimal.NewFromFloat(balance))}
}

func (a Account) AccountID() string { return a.accountID }

// PIN exposes the credential for persistence only.
func (a Account) PIN() string { return a.pin }

// ValidatePin compares input against the stored PIN by exact match.
func (a Account) ValidatePin(input string) bool {
	return a.pin == input
}

func (a Account) Balance() float64 { return a.balance }

// UpdateBalance applies delta when the resulting balance stays non-negative
// and representable. A delta that rounds to no change in cents is rejected.
func (a *Account) UpdateBalance(delta float64) bool {
	if !finite(delta) {
		return false
	}
	next := roundCents(decimal.NewFromFloat(a.balance).Add(decimal.NewFromFloat(delta)))
	if !finite(next) || next < 0 || next == a.balance {
		return false
	}
	a.balance = next
	return true
}

// Withdraw succeeds iff 0 < amount <= balance, with amount taken to the cent.
func (a *Account) Withdraw(amount float64) bool {
	cents := RoundAmount(amount)
	if cents <= 0 {
		return false
	}
	if decimal.NewFromFloat(a.balance).Cmp(decimal.NewFromFloat(cents)) < 0 {
		return false
	}
	return a.UpdateBalance(-cents)
}

// Deposit succeeds iff amount is at least one cent. No upper bound is
// enforced beyond what a balance can represent.
func (a *Account) Deposit(amount float64) bool {
	cents := RoundAmount(amount)
	if cents <= 0 {
		return false
	}
	return a.UpdateBalance(cents)
}

// RoundAmount rounds a requested amount to cents. Non-finite input yields 0.
func RoundAmount(amount float64) float64 {
	if !finite(amount) {
		return 0
	}
	return roundCents(decimal.NewFromFloat(amount))
}

// String renders the persisted form "accountId,pin,balance".
func (a Account) String() string {
	return fmt.Sprintf("%s,%s,%s", a.accountID, a.pin, decimal.NewFromFloat(a.balance).StringFixed(2))
}

// ParseAccount reads an account from its persisted form.
func ParseAccount(line string) (Account, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 {
		return Account{}, fmt.Errorf("ParseAccount: %w: expected 3 fields, got %d", ErrMalformedRecord, len(fields))
	}

	bal, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
	if err != nil {
		return Account{}, fmt.Errorf("ParseAccount: %w: invalid balance %q", ErrMalformedRecord, fields[2])
	}

	id, pin, balance := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), roundCents(bal)
	if err := ValidateRecord(id, pin, balance); err != nil {
		return Account{}, fmt.Errorf("ParseAccount: %w", err)
	}
	return Account{accountID: id, pin: pin, balance: balance}, nil
}

// ValidateRecord checks raw account fields coming from any durable medium.
func ValidateRecord(accountID, pin string, balance float64) error {
	if !finite(balance) {
		return fmt.Errorf("%w: balance is not a finite number", ErrMalformedRecord)
	}
	rec := accountRecord{AccountID: accountID, PIN: pin, Balance: balance}
	if err := validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %q", ErrMalformedRecord, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}

// FormatMoney renders an amount with exactly two decimals.
func FormatMoney(amount float64) string {
	if !finite(amount) {
		return fmt.Sprintf("%.2f", amount)
	}
	return decimal.NewFromFloat(amount).StringFixed(2)
}

func roundCents(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

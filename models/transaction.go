package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// TransactionType tags the kind of operation a Transaction performs.
type TransactionType string

const (
	TypeWithdrawal     TransactionType = "WITHDRAWAL"
	TypeDeposit        TransactionType = "DEPOSIT"
	TypeBalanceInquiry TransactionType = "BALANCE_INQUIRY"
)

const (
	// TransactionIDPrefix tags every generated transaction id.
	TransactionIDPrefix = "TXN"
	// TimestampLayout is YYYY-MM-DD HH:MM:SS in local time.
	TimestampLayout = "2006-01-02 15:04:05"
)

// clock is swapped in tests.
var clock = time.Now

// Transaction is one requested operation against an account. Amount, id and
// timestamp are fixed at construction; the outcome is recorded by Apply.
// Ids are random and only meaningful inside a single session.
type Transaction struct {
	txType        TransactionType
	amount        float64
	transactionID string
	timestamp     string

	processed     bool
	successful    bool
	balanceAtTime float64
}

func newTransaction(t TransactionType, amount float64) Transaction {
	return Transaction{
		txType:        t,
		amount:        amount,
		transactionID: generateTransactionID(),
		timestamp:     clock().Format(TimestampLayout),
	}
}

// NewWithdrawal creates an unprocessed withdrawal of amount.
func NewWithdrawal(amount float64) Transaction { return newTransaction(TypeWithdrawal, amount) }

// NewDeposit creates an unprocessed deposit of amount.
func NewDeposit(amount float64) Transaction { return newTransaction(TypeDeposit, amount) }

// NewBalanceInquiry creates an unprocessed balance inquiry.
func NewBalanceInquiry() Transaction { return newTransaction(TypeBalanceInquiry, 0) }

func (t Transaction) Type() TransactionType { return t.txType }
func (t Transaction) Amount() float64       { return t.amount }
func (t Transaction) ID() string            { return t.transactionID }
func (t Transaction) Timestamp() string     { return t.timestamp }
func (t Transaction) Processed() bool       { return t.processed }
func (t Transaction) Successful() bool      { return t.successful }

// BalanceAtTime is the balance snapshot taken by a processed inquiry.
func (t Transaction) BalanceAtTime() float64 { return t.balanceAtTime }

// Mutating reports whether the transaction kind can change a balance.
func (t Transaction) Mutating() bool {
	return t.txType == TypeWithdrawal || t.txType == TypeDeposit
}

// Apply processes tx against acc. It never touches its inputs: it returns the
// resulting account (unchanged on failure), the processed transaction and
// whether the operation succeeded.
func Apply(tx Transaction, acc Account) (Account, Transaction, bool) {
	next := acc
	var ok bool

	switch tx.txType {
	case TypeWithdrawal:
		ok = next.Withdraw(tx.amount)
	case TypeDeposit:
		if tx.amount > 0 {
			ok = next.Deposit(tx.amount)
		}
	case TypeBalanceInquiry:
		tx.balanceAtTime = acc.Balance()
		ok = true
	default:
		return acc, tx, false
	}

	tx.processed = true
	tx.successful = ok
	if !ok {
		return acc, tx, false
	}
	return next, tx, true
}

// Description is the one-line history entry for the transaction.
func (t Transaction) Description() string {
	switch t.txType {
	case TypeWithdrawal:
		d := "Withdrawal: $" + FormatMoney(t.amount)
		if t.processed && !t.successful {
			d += " (FAILED - Insufficient funds)"
		}
		return d
	case TypeDeposit:
		d := "Deposit: $" + FormatMoney(t.amount)
		if t.processed && !t.successful {
			d += " (FAILED - Invalid amount)"
		}
		return d
	case TypeBalanceInquiry:
		return "Balance Inquiry: $" + FormatMoney(t.balanceAtTime)
	}
	return "No details available."
}

// ResultMessage is what the terminal shows once the transaction is processed.
func (t Transaction) ResultMessage() string {
	switch t.txType {
	case TypeWithdrawal:
		if t.successful {
			return fmt.Sprintf("Withdrawal of $%s completed successfully.", FormatMoney(t.amount))
		}
		return "Withdrawal failed: Insufficient funds."
	case TypeDeposit:
		if t.successful {
			return fmt.Sprintf("Deposit of $%s completed successfully.", FormatMoney(t.amount))
		}
		return "Deposit failed."
	case TypeBalanceInquiry:
		if t.successful {
			return "Balance inquiry completed successfully."
		}
		return "Balance inquiry failed."
	}
	return "Unknown transaction."
}

// generateTransactionID returns TXN followed by a number in [100000, 999999].
func generateTransactionID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return fmt.Sprintf("%s%06d", TransactionIDPrefix, 100000+clock().UnixNano()%900000)
	}
	return fmt.Sprintf("%s%d", TransactionIDPrefix, 100000+n.Int64())
}

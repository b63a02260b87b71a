package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"virtual-atm/models"
)

// Dialect selects placeholder syntax for the SQL backend.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

const (
	createAccountsTable = "CREATE TABLE IF NOT EXISTS accounts (account_id VARCHAR(64) PRIMARY KEY, pin VARCHAR(64) NOT NULL, balance DECIMAL(15,2) NOT NULL)"
	countAccounts       = "SELECT COUNT(*) FROM accounts"
	selectAccounts      = "SELECT account_id, pin, balance FROM accounts ORDER BY account_id"
	deleteAccounts      = "DELETE FROM accounts"
	insertAccount       = "INSERT INTO accounts (account_id, pin, balance) VALUES (?, ?, ?)"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlAccountRepository implements AccountRepository for MySQL and PostgreSQL.
type sqlAccountRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewSQLAccountRepository creates a new SQL account repository.
func NewSQLAccountRepository(db *sql.DB, dialect Dialect, logger *zap.Logger) AccountRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sqlAccountRepository{db: db, dialect: dialect, logger: logger}
}

// Initialize creates the accounts table and seeds it when it holds no rows.
func (r *sqlAccountRepository) Initialize(ctx context.Context) (bool, error) {
	if _, err := r.db.ExecContext(ctx, createAccountsTable); err != nil {
		return false, fmt.Errorf("Initialize: create table: %w", err)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, countAccounts).Scan(&n); err != nil {
		return false, fmt.Errorf("Initialize: count failed: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	r.logger.Info("SQLRepository: accounts table empty, creating sample data")
	if err := r.SaveAll(ctx, SampleAccounts()); err != nil {
		return false, fmt.Errorf("Initialize: %w", err)
	}
	return true, nil
}

// LoadAll retrieves all accounts. Rows that fail record validation are skipped.
func (r *sqlAccountRepository) LoadAll(ctx context.Context) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx, selectAccounts)
	if err != nil {
		return nil, fmt.Errorf("LoadAll: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var id, pin string
		var balance float64
		if err := rows.Scan(&id, &pin, &balance); err != nil {
			return nil, fmt.Errorf("LoadAll: scan error: %w", err)
		}
		if err := models.ValidateRecord(id, pin, balance); err != nil {
			r.logger.Warn("SQLRepository: skipping invalid account row", zap.String("account_id", id), zap.Error(err))
			continue
		}
		accounts = append(accounts, models.NewAccount(id, pin, balance))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadAll: rows iteration error: %w", err)
	}
	if len(accounts) == 0 {
		return accounts, ErrNoData
	}
	return accounts, nil
}

// SaveAll replaces every row inside a single database transaction.
func (r *sqlAccountRepository) SaveAll(ctx context.Context, accounts []models.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SaveAll: %w: begin: %w", ErrWrite, err)
	}

	if err := r.replaceAll(ctx, tx, accounts); err != nil {
		return fmt.Errorf("SaveAll: %w: %w", ErrWrite, multierr.Append(err, tx.Rollback()))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SaveAll: %w: commit: %w", ErrWrite, err)
	}
	return nil
}

func (r *sqlAccountRepository) replaceAll(ctx context.Context, tx DBTX, accounts []models.Account) error {
	if _, err := tx.ExecContext(ctx, deleteAccounts); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	query := r.rebind(insertAccount)
	for _, acc := range accounts {
		balance := models.FormatMoney(acc.Balance())
		if _, err := tx.ExecContext(ctx, query, acc.AccountID(), acc.PIN(), balance); err != nil {
			return fmt.Errorf("insert %s: %w", acc.AccountID(), err)
		}
	}
	return nil
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (r *sqlAccountRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

package util

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"virtual-atm/models"
)

// DataLoader defines how account records are read from and written to a line-oriented medium.
type DataLoader interface {
	LoadAccounts(r io.Reader) ([]models.Account, error)
	WriteAccounts(w io.Writer, accounts []models.Account) error
}

// lineDataLoader implements DataLoader for "accountId,pin,balance" lines.
type lineDataLoader struct {
	logger *zap.Logger
}

// NewLineDataLoader creates a new line-oriented account loader.
func NewLineDataLoader(logger *zap.Logger) DataLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &lineDataLoader{logger: logger}
}

// LoadAccounts parses every non-empty line. Malformed lines and repeated
// account ids are skipped with a warning, so the first record for an id wins.
// Only a failing reader aborts the load.
func (l *lineDataLoader) LoadAccounts(r io.Reader) ([]models.Account, error) {
	accounts := []models.Account{}
	seen := make(map[string]int)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		acc, err := models.ParseAccount(line)
		if err != nil {
			l.logger.Warn("DataLoader: skipping malformed account record",
				zap.Int("line", lineNo), zap.String("record", line), zap.Error(err))
			continue
		}
		if first, dup := seen[acc.AccountID()]; dup {
			l.logger.Warn("DataLoader: skipping duplicate account id",
				zap.Int("line", lineNo), zap.Int("first_line", first), zap.String("account_id", acc.AccountID()))
			continue
		}
		seen[acc.AccountID()] = lineNo
		accounts = append(accounts, acc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("LoadAccounts: error reading records: %w", err)
	}
	return accounts, nil
}

// WriteAccounts writes one record per line.
func (l *lineDataLoader) WriteAccounts(w io.Writer, accounts []models.Account) error {
	bw := bufio.NewWriter(w)
	for _, acc := range accounts {
		if _, err := bw.WriteString(acc.String() + "\n"); err != nil {
			return fmt.Errorf("WriteAccounts: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("WriteAccounts: flush failed: %w", err)
	}
	return nil
}

package binlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"virtual-atm/internal/config"
	"virtual-atm/models"
)

// Row actions.
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

var ErrUnexpectedRow = errors.New("unexpected account row")

// AccountChange is one row change on the accounts table. Before is nil for
// inserts and After is nil for deletes.
type AccountChange struct {
	Action    string
	AccountID string
	Before    *models.Account
	After     *models.Account
}

// Handler receives decoded changes in binlog order.
type Handler func(ctx context.Context, change AccountChange) error

// Watcher tails the MySQL binlog for account row changes.
type Watcher struct {
	cfg    config.ReplicatorConfig
	logger *zap.Logger
}

// NewWatcher creates a watcher for cfg.Schema.cfg.Table.
func NewWatcher(cfg config.ReplicatorConfig, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{cfg: cfg, logger: logger}
}

// Run streams from the current master position until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	pos, err := w.masterPosition(ctx)
	if err != nil {
		return fmt.Errorf("Run: %w", err)
	}

	syncer := replication.NewBinlogSyncer(replication.BinlogSyncerConfig{
		ServerID:   w.cfg.ServerID,
		Flavor:     mysql.MySQLFlavor,
		Host:       w.cfg.Host,
		Port:       w.cfg.Port,
		User:       w.cfg.User,
		Password:   w.cfg.Password,
		UseDecimal: true,
	})
	defer syncer.Close()

	streamer, err := syncer.StartSync(pos)
	if err != nil {
		return fmt.Errorf("Run: failed to start binlog sync: %w", err)
	}
	w.logger.Info("Binlog: streamer started", zap.String("file", pos.Name), zap.Uint32("pos", pos.Pos))

	for {
		ev, err := streamer.GetEvent(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				w.logger.Info("Binlog: context canceled, exiting event loop")
				return nil
			}
			return fmt.Errorf("Run: error getting event from stream: %w", err)
		}
		if err := w.HandleEvent(ctx, ev, handler); err != nil {
			return fmt.Errorf("Run: %w", err)
		}
	}
}

// HandleEvent decodes ev and passes account changes to handler. Events for
// other tables are ignored.
func (w *Watcher) HandleEvent(ctx context.Context, ev *replication.BinlogEvent, handler Handler) error {
	switch e := ev.Event.(type) {
	case *replication.RotateEvent:
		w.logger.Debug("Binlog: rotated", zap.ByteString("next", e.NextLogName), zap.Uint64("pos", e.Position))
	case *replication.RowsEvent:
		if e.Table == nil || string(e.Table.Schema) != w.cfg.Schema || string(e.Table.Table) != w.cfg.Table {
			return nil
		}
		changes, err := DecodeRows(ev.Header.EventType, e)
		if err != nil {
			w.logger.Warn("Binlog: skipping undecodable rows event", zap.Error(err))
			return nil
		}
		for _, c := range changes {
			if err := handler(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeRows turns a rows event on the accounts table into changes.
// Update events carry before/after image pairs.
func DecodeRows(eventType replication.EventType, e *replication.RowsEvent) ([]AccountChange, error) {
	var action string
	switch eventType {
	case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		action = ActionInsert
	case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		action = ActionUpdate
	case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		action = ActionDelete
	default:
		return nil, fmt.Errorf("DecodeRows: %w: event type %s", ErrUnexpectedRow, eventType)
	}

	step := 1
	if action == ActionUpdate {
		step = 2
		if len(e.Rows)%2 != 0 {
			return nil, fmt.Errorf("DecodeRows: %w: odd update image count %d", ErrUnexpectedRow, len(e.Rows))
		}
	}

	changes := make([]AccountChange, 0, len(e.Rows)/step)
	for i := 0; i < len(e.Rows); i += step {
		first, err := rowAccount(e.Rows[i])
		if err != nil {
			return nil, err
		}
		change := AccountChange{Action: action, AccountID: first.AccountID()}
		switch action {
		case ActionInsert:
			change.After = &first
		case ActionDelete:
			change.Before = &first
		case ActionUpdate:
			second, err := rowAccount(e.Rows[i+1])
			if err != nil {
				return nil, err
			}
			change.Before, change.After = &first, &second
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// rowAccount reads (account_id, pin, balance) from a row image.
func rowAccount(row []interface{}) (models.Account, error) {
	if len(row) < 3 {
		return models.Account{}, fmt.Errorf("%w: %d columns", ErrUnexpectedRow, len(row))
	}
	id, ok1 := text(row[0])
	pin, ok2 := text(row[1])
	balance, ok3 := money(row[2])
	if !ok1 || !ok2 || !ok3 {
		return models.Account{}, fmt.Errorf("%w: %v", ErrUnexpectedRow, row)
	}
	return models.NewAccount(id, pin, balance), nil
}

func text(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	}
	return "", false
}

func money(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		f, _ := t.Float64()
		return f, true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return 0, false
		}
		f, _ := d.Float64()
		return f, true
	}
	return 0, false
}

// masterPosition reads the live binlog coordinates with the replication login.
func (w *Watcher) masterPosition(ctx context.Context) (mysql.Position, error) {
	dsn := mysqldrv.NewConfig()
	dsn.User = w.cfg.User
	dsn.Passwd = w.cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(w.cfg.Host, strconv.Itoa(int(w.cfg.Port)))

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return mysql.Position{}, fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	var (
		file     string
		position uint32
	)
	err = db.QueryRowContext(ctx, "SHOW MASTER STATUS").Scan(&file, &position, new(string), new(string), new(string))
	if err != nil {
		return mysql.Position{}, fmt.Errorf("failed to get master status: %w", err)
	}
	return mysql.Position{Name: file, Pos: position}, nil
}

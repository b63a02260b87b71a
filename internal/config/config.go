package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

const (
	StoreFile     = "file"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
)

// Config holds the settings of the ATM binary.
type Config struct {
	Store       string `validate:"oneof=file mysql postgres"`
	DataFile    string `validate:"required_if=Store file"`
	DatabaseDSN string `validate:"required_unless=Store file"`
	LogLevel    string `validate:"oneof=debug info warn error"`
	LogFile     string
	Color       string `validate:"oneof=auto always never"`

	Replicator ReplicatorConfig `validate:"-"`
}

// ReplicatorConfig is the binlog consumer's MySQL replication login.
type ReplicatorConfig struct {
	Host     string `validate:"required"`
	Port     uint16 `validate:"required"`
	User     string `validate:"required"`
	Password string `validate:"required"`
	ServerID uint32 `validate:"required"`
	Schema   string `validate:"required"`
	Table    string `validate:"required"`
}

// Validate checks the replication settings; only the binlog consumer needs them.
func (r ReplicatorConfig) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, describe(err))
	}
	return nil
}

// Load reads envFile (or an optional ./.env when envFile is empty) into the
// process environment and builds a validated Config from it.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("Load: reading %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("Load: reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() (Config, error) {
	port, err := uintEnv("MYSQL_REPLICATOR_PORT", 3306, 16)
	if err != nil {
		return Config{}, err
	}
	serverID, err := uintEnv("MYSQL_REPLICATOR_SERVER_ID", 101, 32)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Store:       strings.ToLower(getEnv("ATM_STORE", StoreFile)),
		DataFile:    getEnv("ATM_DATA_FILE", "data/accounts.txt"),
		DatabaseDSN: os.Getenv("DATABASE_DSN"),
		LogLevel:    strings.ToLower(getEnv("ATM_LOG_LEVEL", "warn")),
		LogFile:     os.Getenv("ATM_LOG_FILE"),
		Color:       strings.ToLower(getEnv("ATM_COLOR", "auto")),
		Replicator: ReplicatorConfig{
			Host:     getEnv("MYSQL_REPLICATOR_HOST", "127.0.0.1"),
			Port:     uint16(port),
			User:     getEnv("MYSQL_REPLICATOR_USER", "replicator"),
			Password: os.Getenv("MYSQL_REPLICATOR_PASSWORD"),
			ServerID: uint32(serverID),
			Schema:   getEnv("MYSQL_REPLICATOR_SCHEMA", "atm"),
			Table:    getEnv("MYSQL_REPLICATOR_TABLE", "accounts"),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, describe(err))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func uintEnv(key string, fallback uint64, bits int) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a valid number", ErrInvalidConfig, key, v)
	}
	return n, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, ", ")
}

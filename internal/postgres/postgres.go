package postgres

import (
	"context"
	"fmt"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	pgxslog "github.com/mcosta74/pgx-slog"
	"github.com/runixlabs/runes-indexer/pkg/logger"
)

const (
	DefaultMaxConns = 16
	DefaultMinConns = 0
	DefaultLogLevel = tracelog.LogLevelError
)

type Config struct {
	Host     string `mapstructure:"host"`     // Default is 127.0.0.1
	Port     string `mapstructure:"port"`     // Default is 5432
	User     string `mapstructure:"user"`     // Default is empty
	Password string `mapstructure:"password"` // Default is empty
	DBName   string `mapstructure:"db_name"`  // Default is postgres
	SSLMode  string `mapstructure:"ssl_mode"` // Default is prefer
	URL      string `mapstructure:"url"`      // If URL is provided, other fields are ignored

	MaxConns int32 `mapstructure:"max_conns"` // Default is 16
	MinConns int32 `mapstructure:"min_conns"` // Default is 0

	Debug bool `mapstructure:"debug"`
}

// NewPool creates a new connection pool to the database and verifies it with
// a ping before returning.
func NewPool(ctx context.Context, conf Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(conf.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse config to create a new connection pool")
	}
	poolConfig.MaxConns = utils.Default(conf.MaxConns, DefaultMaxConns)
	poolConfig.MinConns = utils.Default(conf.MinConns, DefaultMinConns)
	poolConfig.ConnConfig.Tracer = conf.QueryTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create a new connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to connect to the database")
	}

	return pool, nil
}

// String returns the connection string in DSN format, or the raw URL when
// one is configured.
func (conf Config) String() string {
	if conf.URL != "" {
		return conf.URL
	}

	host := utils.Default(conf.Host, "127.0.0.1")
	port := utils.Default(conf.Port, "5432")
	sslMode := utils.Default(conf.SSLMode, "prefer")
	dbName := utils.Default(conf.DBName, "postgres")

	connString := fmt.Sprintf("host=%s dbname=%s port=%s sslmode=%s", host, dbName, port, sslMode)
	if conf.User != "" {
		connString = fmt.Sprintf("%s user=%s", connString, conf.User)
	}
	if conf.Password != "" {
		connString = fmt.Sprintf("%s password=%s", connString, conf.Password)
	}
	return connString
}

func (conf Config) QueryTracer() pgx.QueryTracer {
	logLevel := DefaultLogLevel
	if conf.Debug {
		logLevel = tracelog.LogLevelTrace
	}
	return &tracelog.TraceLog{
		Logger:   pgxslog.NewLogger(logger.With("package", "postgres")),
		LogLevel: logLevel,
	}
}

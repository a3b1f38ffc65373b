// Package postgres provides a PostgreSQL writer for exported bank transactions.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Boelensman1/beancount-support/pkg/api"
	"github.com/Boelensman1/beancount-support/pkg/writer/buffered"
)

//go:embed 001_create_bank_transactions.sql
var migrationSQL string

const upsertSQL = `
	INSERT INTO bank_transactions (
		id, bank, booking_date, amount, currency, payee, narration, bank_transaction_code
	) VALUES ($1, $2, $3::date, $4::numeric, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		bank = EXCLUDED.bank,
		booking_date = EXCLUDED.booking_date,
		amount = EXCLUDED.amount,
		currency = EXCLUDED.currency,
		payee = EXCLUDED.payee,
		narration = EXCLUDED.narration,
		bank_transaction_code = EXCLUDED.bank_transaction_code,
		updated_at = NOW()
`

// Config holds the PostgreSQL writer configuration.
type Config struct {
	// DSN, when set, is used instead of the individual connection fields.
	DSN string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the time between automatic flushes.
	FlushInterval time.Duration

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// ConnString returns the connection string for cfg.
func (cfg Config) ConnString() string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.Database, sslMode,
	)
}

// Writer upserts transactions into the bank_transactions table, keyed by
// transaction id.
type Writer struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	buffered *buffered.Writer
}

// New connects to the database and applies the schema.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 4
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	w := &Writer{
		pool:   pool,
		logger: logger,
	}
	w.buffered = buffered.New(
		func(txns []*api.BankTransaction) error { return w.writeBatch(context.WithoutCancel(ctx), txns) },
		buffered.Config{BatchSize: cfg.BatchSize, FlushInterval: cfg.FlushInterval},
		logger.With("component", "postgres_buffer"),
	)

	if err := w.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return w, nil
}

// runMigrations runs the database migrations.
func (w *Writer) runMigrations(ctx context.Context) error {
	w.logger.Debug("running database migrations")

	if _, err := w.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	return nil
}

// Write consumes transactions from the channel and writes them in batches.
// The pool is closed when Write returns.
func (w *Writer) Write(ctx context.Context, in <-chan *api.BankTransaction) error {
	defer w.Close()
	return w.buffered.Write(ctx, in)
}

// writeBatch upserts a batch of transactions in one database transaction.
func (w *Writer) writeBatch(ctx context.Context, transactions []*api.BankTransaction) (err error) {
	if len(transactions) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, rbErr)
		}
	}()

	batch := &pgx.Batch{}
	for _, txn := range transactions {
		batch.Queue(upsertSQL,
			txn.ID,
			txn.Bank,
			txn.Date,
			txn.Amount.StringFixed(2),
			txn.Currency,
			txn.Payee,
			txn.Narration,
			txn.BankTransactionCode,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range transactions {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upserting transaction %s: %w", transactions[i].ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	w.logger.Info("wrote transaction batch", "count", len(transactions))
	return nil
}

// Close closes the database connection pool.
func (w *Writer) Close() {
	if w.pool != nil {
		w.pool.Close()
		w.logger.Debug("closed PostgreSQL connection pool")
	}
}

// Package csv implements a Writer that writes bank transactions to a CSV file.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Boelensman1/beancount-support/pkg/api"
	"github.com/Boelensman1/beancount-support/pkg/writer/buffered"
)

// Header is the first record of every file, in column order.
var Header = []string{"id", "date", "amount", "currency", "payee", "narration", "bankTransactionCode"}

// Writer writes transactions to a new CSV file with buffered batching.
type Writer struct {
	filePath string
	file     *os.File
	writer   *csv.Writer
	mu       sync.Mutex
	buffered *buffered.Writer
	logger   *slog.Logger
}

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path of the CSV file. It must not exist yet.
	FilePath string
	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	FlushInterval time.Duration
}

// New creates the CSV file and writes the header.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating csv file: %w", err)
	}

	w := &Writer{
		filePath: cfg.FilePath,
		file:     file,
		writer:   csv.NewWriter(file),
		logger:   logger,
	}

	if err := w.writeHeader(); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("writing header: %w (close error: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("writing header: %w", err)
	}

	bufCfg := buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}
	w.buffered = buffered.New(w.flushBatch, bufCfg, logger.With("component", "csv_buffer"))

	logger.Debug("csv writer initialized", "file", cfg.FilePath)
	return w, nil
}

func (w *Writer) writeHeader() error {
	if err := w.writer.Write(Header); err != nil {
		return err
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Write consumes transactions from the input channel and writes them to CSV.
// The file is closed when Write returns.
func (w *Writer) Write(ctx context.Context, in <-chan *api.BankTransaction) error {
	err := w.buffered.Write(ctx, in)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	return err
}

// flushBatch writes a batch of transactions to the CSV file.
func (w *Writer) flushBatch(transactions []*api.BankTransaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range transactions {
		if err := w.writer.Write(Record(t)); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	w.logger.Debug("wrote transactions to csv", "count", len(transactions))
	return nil
}

// Record returns the CSV columns of t in Header order.
func Record(t *api.BankTransaction) []string {
	return []string{
		t.ID,
		t.Date,
		t.Amount.StringFixed(2),
		t.Currency,
		t.Payee,
		t.Narration,
		t.BankTransactionCode,
	}
}

// Close closes the CSV file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}

	w.logger.Debug("csv writer closed", "file", w.filePath)
	return nil
}

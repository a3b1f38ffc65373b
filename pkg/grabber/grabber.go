// Package grabber exports the booked transactions of registered banks
// through a writer plugin.
package grabber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Boelensman1/beancount-support/internal/plugins"
	"github.com/Boelensman1/beancount-support/pkg/api"
	"github.com/Boelensman1/beancount-support/pkg/store"
)

// ErrAgreementExpired is returned when a bank's end user agreement is
// missing or expired. The bank has to be reconnected.
var ErrAgreementExpired = errors.New("end user agreement expired")

// epoch is the first date exported for a bank that was never imported.
var epoch = time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC)

// Store is the part of the bank store the exporter uses.
type Store interface {
	GetBankByName(name string) (store.Bank, error)
	UpdateBank(name string, mutate func(b *store.Bank)) error
	GetBanksInGroup(group string) ([]store.Bank, error)
}

// Writers looks up writer plugins by name.
type Writers interface {
	GetWriter(name string) (plugins.WriterPlugin, error)
}

// Config holds configuration for the exporter.
type Config struct {
	// ExportDir is the directory export files are created in.
	ExportDir string
	// Format is the writer plugin name.
	Format string
	// WriterConfig returns the plugin configuration for an export file path.
	// The path is empty for plugins that do not write files.
	WriterConfig func(filePath string) (json.RawMessage, error)
}

// Result describes one bank export.
type Result struct {
	Bank         string
	From         time.Time
	To           time.Time
	File         string
	Transactions int
}

// Exporter exports bank transactions.
type Exporter struct {
	store   Store
	source  api.TransactionSource
	writers Writers
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a new Exporter.
func New(st Store, source api.TransactionSource, writers Writers, cfg Config, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		store:   st,
		source:  source,
		writers: writers,
		cfg:     cfg,
		logger:  logger.With("component", "grabber"),
		now:     time.Now,
	}
}

// ExportBank exports the transactions booked since the last export up to
// and including yesterday, then records the new imported-till date.
func (e *Exporter) ExportBank(ctx context.Context, name string) (*Result, error) {
	bank, err := e.store.GetBankByName(name)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if !bank.AgreementValid(now) {
		return nil, fmt.Errorf("bank %q: %w", name, ErrAgreementExpired)
	}

	from, to, err := exportRange(bank, now)
	if err != nil {
		return nil, fmt.Errorf("bank %q: %w", name, err)
	}
	result := &Result{Bank: name, From: from, To: to}
	logger := e.logger.With("bank", name, "from", from.Format(time.DateOnly), "to", to.Format(time.DateOnly))

	plugin, err := e.writers.GetWriter(e.cfg.Format)
	if err != nil {
		return nil, err
	}

	var path string
	if ext := plugin.Extension(); ext != "" {
		path = filepath.Join(e.cfg.ExportDir, FileName(name, from, to, ext))
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("export file %s already exists", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking export file: %w", err)
		}
	}

	if from.After(to) {
		logger.Info("no new dates to export")
		return result, nil
	}

	transactions, err := e.fetch(ctx, bank, from, to)
	if err != nil {
		return nil, fmt.Errorf("bank %q: %w", name, err)
	}

	if len(transactions) > 0 {
		if err := e.write(ctx, plugin, path, transactions, logger); err != nil {
			return nil, fmt.Errorf("bank %q: %w", name, err)
		}
		result.File = path
		result.Transactions = len(transactions)
	}

	importedTill := to.Format(time.DateOnly)
	if err := e.store.UpdateBank(name, func(b *store.Bank) { b.ImportedTill = importedTill }); err != nil {
		return nil, fmt.Errorf("updating bank %q: %w", name, err)
	}

	logger.Info("bank exported", "transactions", result.Transactions, "file", result.File)
	return result, nil
}

// ExportGroup exports every bank of a group concurrently. Errors of
// individual banks are joined; successful exports are still returned.
func (e *Exporter) ExportGroup(ctx context.Context, group string) ([]*Result, error) {
	banks, err := e.store.GetBanksInGroup(group)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(banks))
	errs := make([]error, len(banks))

	var wg sync.WaitGroup
	for i, bank := range banks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.ExportBank(ctx, bank.Name)
		}()
	}
	wg.Wait()

	out := make([]*Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, errors.Join(errs...)
}

// FileName returns the export file name for a bank and date range.
func FileName(bank string, from, to time.Time, ext string) string {
	return fmt.Sprintf("%s.%s-%s.grabber.%s",
		strings.ReplaceAll(bank, ":", "."),
		from.Format("20060102"),
		to.Format("20060102"),
		ext,
	)
}

// exportRange returns the dates to export: the day after the last import
// through yesterday.
func exportRange(bank store.Bank, now time.Time) (from, to time.Time, err error) {
	y, m, d := now.Date()
	to = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	if bank.ImportedTill == "" {
		return epoch, to, nil
	}
	last, err := time.Parse(time.DateOnly, bank.ImportedTill)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing importedTill: %w", err)
	}
	return last.AddDate(0, 0, 1), to, nil
}

// fetch retrieves the booked transactions of every account concurrently,
// keeping account order.
func (e *Exporter) fetch(ctx context.Context, bank store.Bank, from, to time.Time) ([]*api.BankTransaction, error) {
	perAccount := make([][]*api.BankTransaction, len(bank.Accounts))
	errs := make([]error, len(bank.Accounts))

	var wg sync.WaitGroup
	for i, account := range bank.Accounts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txns, err := e.source.BookedTransactions(ctx, account, from, to)
			if err != nil {
				errs[i] = fmt.Errorf("fetching account %s: %w", account, err)
				return
			}
			perAccount[i] = txns
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var out []*api.BankTransaction
	for _, txns := range perAccount {
		for _, t := range txns {
			t.Bank = bank.Name
			out = append(out, t)
		}
	}
	return out, nil
}

func (e *Exporter) write(ctx context.Context, plugin plugins.WriterPlugin, path string, transactions []*api.BankTransaction, logger *slog.Logger) error {
	if path != "" {
		if err := os.MkdirAll(e.cfg.ExportDir, 0o755); err != nil {
			return fmt.Errorf("creating export dir: %w", err)
		}
	}

	writerCfg, err := e.cfg.WriterConfig(path)
	if err != nil {
		return err
	}
	writer, err := plugin.NewWriter(ctx, writerCfg, logger)
	if err != nil {
		return fmt.Errorf("creating %s writer: %w", plugin.Name(), err)
	}

	in := make(chan *api.BankTransaction, 100)
	done := make(chan error, 1)
	go func() {
		done <- writer.Write(ctx, in)
	}()

	for _, t := range transactions {
		select {
		case in <- t:
		case err := <-done:
			if err == nil {
				err = errors.New("writer stopped early")
			}
			return fmt.Errorf("writing transactions: %w", err)
		}
	}
	close(in)

	if err := <-done; err != nil {
		return fmt.Errorf("writing transactions: %w", err)
	}
	return nil
}

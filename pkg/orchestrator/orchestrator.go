// Package orchestrator runs a ledger file through the auto-posting rules.
package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/Boelensman1/beancount-support/pkg/ledger"
	"github.com/Boelensman1/beancount-support/pkg/rules"
)

// MatcherSource provides the auto-posting matchers in priority order.
type MatcherSource interface {
	GetAutoPostingMatchers() []*rules.Matcher
}

// Postprocessor applies auto-posting matchers to parsed ledgers.
type Postprocessor struct {
	source MatcherSource
	logger *slog.Logger
}

// New creates a Postprocessor reading its matchers from source.
func New(source MatcherSource, logger *slog.Logger) *Postprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postprocessor{
		source: source,
		logger: logger.With("component", "postprocessor"),
	}
}

// Stats summarises one processing run.
type Stats struct {
	Transactions int
	Matched      int
}

// Process matches every transaction of f, in file order, and appends the
// postings of the matching rule. The matcher list is read once per call.
// The first error aborts the run.
func (p *Postprocessor) Process(f *ledger.File) (Stats, error) {
	matchers := p.source.GetAutoPostingMatchers()
	stats := Stats{Transactions: len(f.Transactions)}

	for _, txn := range f.Transactions {
		m, err := rules.Apply(matchers, txn)
		if err != nil {
			return stats, fmt.Errorf("processing %s %q: %w", txn.Date.Format(ledger.DateLayout), txn.Payee, err)
		}
		if m == nil {
			p.logger.Debug("no matcher", "payee", txn.Payee, "narration", txn.Narration)
			continue
		}
		stats.Matched++
		p.logger.Debug("matched", "matcher", m.Name, "payee", txn.Payee, "postings", len(m.Postings))
	}

	p.logger.Info("processed ledger",
		"transactions", stats.Transactions,
		"matched", stats.Matched,
		"matchers", len(matchers),
	)
	return stats, nil
}

// ProcessFile parses the ledger at path, processes it and returns the
// resulting ledger text. Nothing is returned if any step fails.
func (p *Postprocessor) ProcessFile(path string) (string, error) {
	f, err := ledger.ParseFile(path)
	if err != nil {
		return "", err
	}
	if _, err := p.Process(f); err != nil {
		return "", err
	}
	return f.String(), nil
}

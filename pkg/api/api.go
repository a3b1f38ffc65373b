// Package api defines the core domain types and interfaces shared by the
// postprocessor and the bank grabber.
package api

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// The string types below only tag plain text with its role so that an account
// cannot be passed where a currency is expected.

// PostingAccount is a colon-delimited account path, e.g. "Assets:Checking".
type PostingAccount string

// Currency is a commodity code such as "EUR".
type Currency string

// TransactionsBlock is a ledger section marker line, e.g. "**** Block A".
type TransactionsBlock string

// PostingLine is the remainder of a posting line after the account.
type PostingLine string

// AutoPostingLine is an unexpanded posting template.
type AutoPostingLine string

// AutoPostingMatcherName uniquely names a rule.
type AutoPostingMatcherName string

// BankTransaction is a booked transaction as exported from a bank.
type BankTransaction struct {
	ID                  string          `json:"id"`
	Bank                string          `json:"bank"`
	Date                string          `json:"date"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Payee               string          `json:"payee"`
	Narration           string          `json:"narration"`
	BankTransactionCode string          `json:"bankTransactionCode"`
}

// TransactionSource returns the booked transactions of one account in [from, to].
type TransactionSource interface {
	BookedTransactions(ctx context.Context, accountID string, from, to time.Time) ([]*BankTransaction, error)
}

// Writer consumes transactions from a channel and writes them to a destination.
// Write returns once the channel is closed and everything has been flushed.
type Writer interface {
	Write(ctx context.Context, in <-chan *BankTransaction) error
}

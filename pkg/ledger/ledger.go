// Package ledger parses and serializes the plain-text beancount ledger that
// the postprocessor annotates.
//
// A ledger consists of blocks, each introduced by a marker line of four or
// more asterisks. Inside a block every transaction is a header line followed
// by exactly one posting:
//
//	**** Block A
//	2024-01-15 * "Grocery Store" "Weekly shop"
//	  Assets:Checking  -42.50 EUR
//
// Comment lines (starting with ';') and blank lines are ignored.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Boelensman1/beancount-support/pkg/api"
)

// DateLayout is the date format used in transaction headers.
const DateLayout = "2006-01-02"

// headerDayShift is applied to the literal header date on parse and reverted
// on serialization. Existing ledgers depend on it.
const headerDayShift = -1

// Posting is one line within a transaction.
type Posting struct {
	Flag    *string
	Account api.PostingAccount
	Line    api.PostingLine
}

// Meta summarises the first posting of a transaction. It is fixed at parse
// time and not recomputed when postings are appended.
type Meta struct {
	Account  api.PostingAccount
	Amount   decimal.Decimal
	Currency api.Currency
}

// Transaction is one ledger entry.
type Transaction struct {
	Block     api.TransactionsBlock
	Date      time.Time
	Flags     []rune
	Payee     string
	Narration string
	Postings  []Posting
	Meta      Meta
}

// HasFlag reports whether the transaction carries the given flag.
func (t *Transaction) HasFlag(flag rune) bool {
	for _, f := range t.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddPosting appends a posting. Meta is left untouched.
func (t *Transaction) AddPosting(p Posting) {
	t.Postings = append(t.Postings, p)
}

// File is a parsed ledger: an ordered set of blocks and the transactions in
// file order.
type File struct {
	Blocks       []api.TransactionsBlock
	Transactions []*Transaction
}

// HasBlock reports whether block is part of the block set.
func (f *File) HasBlock(block api.TransactionsBlock) bool {
	for _, b := range f.Blocks {
		if b == block {
			return true
		}
	}
	return false
}

// AddBlock adds block to the block set, keeping first-insertion order.
func (f *File) AddBlock(block api.TransactionsBlock) {
	if !f.HasBlock(block) {
		f.Blocks = append(f.Blocks, block)
	}
}

// GrammarError reports malformed ledger text. Line is 1-based and refers to
// the original input.
type GrammarError struct {
	Line int
	Text string
	Msg  string
}

func (e *GrammarError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

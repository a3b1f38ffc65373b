package ledger

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Boelensman1/beancount-support/pkg/api"
)

const blockPrefix = "****"

var (
	headerRe  = regexp.MustCompile(`^(\d{4}-\d\d-\d\d) ([^ ]*) "([^"]*)"(?: "([^"]*)")?$`)
	postingRe = regexp.MustCompile(`^(\w+:[\w:]*) *(.*)$`)
	amountRe  = regexp.MustCompile(`(-?\d*\.?\d*) (\w*)`)
)

// ParseFile reads and parses the ledger at path.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ledger file: %w", err)
	}
	return Parse(string(data))
}

// Parse converts ledger text into blocks and transactions. The first error
// aborts the parse; no partial result is returned.
func Parse(text string) (*File, error) {
	f := &File{}

	var (
		currentBlock api.TransactionsBlock
		building     *Transaction
	)

	for i, raw := range strings.Split(text, "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, blockPrefix) {
			currentBlock = api.TransactionsBlock(line)
			f.AddBlock(currentBlock)
			continue
		}

		if currentBlock == "" {
			return nil, &GrammarError{Line: lineNo, Text: line, Msg: "expected ledger to start with a block marker (****)"}
		}

		if building == nil {
			txn, err := parseHeader(line, currentBlock)
			if err != nil {
				return nil, &GrammarError{Line: lineNo, Text: line, Msg: err.Error()}
			}
			building = txn
			continue
		}

		posting, err := parsePosting(line)
		if err != nil {
			return nil, &GrammarError{Line: lineNo, Text: line, Msg: err.Error()}
		}

		meta, err := parseMeta(posting)
		if err != nil {
			return nil, &GrammarError{Line: lineNo, Text: line, Msg: err.Error()}
		}

		building.Postings = append(building.Postings, posting)
		building.Meta = meta
		f.Transactions = append(f.Transactions, building)
		building = nil
	}

	if building != nil {
		return nil, &GrammarError{
			Line: strings.Count(text, "\n") + 1,
			Msg:  fmt.Sprintf("transaction %q has no posting", building.Payee),
		}
	}

	return f, nil
}

func parseHeader(line string, block api.TransactionsBlock) (*Transaction, error) {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("could not parse line as transaction header")
	}

	literal, err := time.Parse(DateLayout, m[1])
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", m[1])
	}

	return &Transaction{
		Block:     block,
		Date:      literal.AddDate(0, 0, headerDayShift),
		Flags:     splitFlags(m[2]),
		Payee:     m[3],
		Narration: m[4],
	}, nil
}

// splitFlags turns the flags token into one flag per character, dropping
// repeats while keeping the order of first appearance.
func splitFlags(token string) []rune {
	flags := make([]rune, 0, len(token))
	seen := make(map[rune]bool, len(token))
	for _, r := range token {
		if seen[r] {
			continue
		}
		seen[r] = true
		flags = append(flags, r)
	}
	return flags
}

func parsePosting(line string) (Posting, error) {
	m := postingRe.FindStringSubmatch(line)
	if m == nil {
		return Posting{}, fmt.Errorf("could not parse line as posting")
	}
	return Posting{
		Account: api.PostingAccount(m[1]),
		Line:    api.PostingLine(strings.TrimSpace(m[2])),
	}, nil
}

func parseMeta(p Posting) (Meta, error) {
	m := amountRe.FindStringSubmatch(string(p.Line))
	if m == nil {
		return Meta{}, fmt.Errorf("could not extract amount and currency from %q", p.Line)
	}
	amount, err := decimal.NewFromString(m[1])
	if err != nil {
		return Meta{}, fmt.Errorf("invalid amount %q in %q", m[1], p.Line)
	}
	return Meta{
		Account:  p.Account,
		Amount:   amount,
		Currency: api.Currency(m[2]),
	}, nil
}

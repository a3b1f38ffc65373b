package ledger

import (
	"fmt"
	"os"
	"strings"
)

// String renders the ledger back to text. Blocks are emitted in set order and
// transactions in file order; every transaction and every block is followed
// by a blank line.
func (f *File) String() string {
	var lines []string
	for _, block := range f.Blocks {
		lines = append(lines, string(block))
		for _, txn := range f.Transactions {
			if txn.Block != block {
				continue
			}
			lines = append(lines, txn.header())
			for _, p := range txn.Postings {
				lines = append(lines, fmt.Sprintf("  %s     %s", p.Account, p.Line))
			}
			lines = append(lines, "")
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// WriteFile writes the rendered ledger to path.
func (f *File) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(f.String()), 0o644); err != nil {
		return fmt.Errorf("writing ledger file: %w", err)
	}
	return nil
}

// LedgerDate returns the date as written in the ledger header.
func (t *Transaction) LedgerDate() string {
	return t.Date.AddDate(0, 0, -headerDayShift).Format(DateLayout)
}

func (t *Transaction) header() string {
	narration := ""
	if t.Narration != "" {
		narration = `"` + t.Narration + `"`
	}
	line := fmt.Sprintf(`%s %s "%s" %s`, t.LedgerDate(), string(t.Flags), t.Payee, narration)
	return strings.TrimSpace(line)
}

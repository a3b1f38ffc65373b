package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Boelensman1/beancount-support/pkg/api"
	"github.com/Boelensman1/beancount-support/pkg/ledger"
)

var placeholderRe = regexp.MustCompile(`\$\{\s*([A-Za-z][A-Za-z.]*)\s*\}`)

// Placeholders lists the names a posting template may reference as ${name}.
// Names may be prefixed with "transaction." or "transaction.meta.".
var Placeholders = []string{
	"date", "payee", "narration", "flags", "block",
	"account", "amount", "currency", "amountNegated", "amountAbs",
}

// Expand substitutes the ${name} placeholders of a template line with values
// of txn. Only the names in Placeholders resolve; anything else is an error.
func Expand(line api.AutoPostingLine, txn *ledger.Transaction) (api.PostingLine, error) {
	values := templateValues(txn)

	var unknown []string
	out := placeholderRe.ReplaceAllStringFunc(string(line), func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		v, ok := values[normalizeName(name)]
		if !ok {
			unknown = append(unknown, name)
			return match
		}
		return v
	})

	if len(unknown) > 0 {
		return "", fmt.Errorf("unknown placeholder(s) %s in %q", strings.Join(unknown, ", "), line)
	}
	return api.PostingLine(out), nil
}

func normalizeName(name string) string {
	for _, prefix := range []string{"transaction.meta.", "transaction.", "meta."} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}

func templateValues(txn *ledger.Transaction) map[string]string {
	return map[string]string{
		"date":          txn.Date.Format(ledger.DateLayout),
		"payee":         txn.Payee,
		"narration":     txn.Narration,
		"flags":         string(txn.Flags),
		"block":         string(txn.Block),
		"account":       string(txn.Meta.Account),
		"amount":        txn.Meta.Amount.String(),
		"currency":      string(txn.Meta.Currency),
		"amountNegated": txn.Meta.Amount.Neg().String(),
		"amountAbs":     txn.Meta.Amount.Abs().String(),
	}
}

// Synthesize appends the matcher's postings, expanded against txn, in
// template order. Either all postings are appended or none. The transaction
// meta is not modified.
func Synthesize(txn *ledger.Transaction, m *Matcher) error {
	postings := make([]ledger.Posting, 0, len(m.Postings))
	for i, tmpl := range m.Postings {
		line, err := Expand(tmpl.Line, txn)
		if err != nil {
			return configError(m, err, "posting %d", i)
		}
		postings = append(postings, ledger.Posting{
			Flag:    tmpl.Flag,
			Account: tmpl.Account,
			Line:    line,
		})
	}

	for _, p := range postings {
		txn.AddPosting(p)
	}
	return nil
}

// Apply matches txn against matchers and synthesizes the postings of the
// matching rule. It returns the applied matcher, or nil if none matched.
func Apply(matchers []*Matcher, txn *ledger.Transaction) (*Matcher, error) {
	m, err := Match(matchers, txn)
	if err != nil || m == nil {
		return nil, err
	}
	if err := Synthesize(txn, m); err != nil {
		return nil, err
	}
	return m, nil
}

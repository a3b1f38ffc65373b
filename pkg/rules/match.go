package rules

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/Boelensman1/beancount-support/pkg/ledger"
)

// Match returns the first matcher, in slice order, whose predicate holds for
// txn. The selected matcher is then validated against the transaction; a
// validation failure is returned as an error instead of trying the next
// matcher. Match returns nil, nil when nothing matches.
func Match(matchers []*Matcher, txn *ledger.Transaction) (*Matcher, error) {
	for _, m := range matchers {
		ok, err := m.IsMatch(txn)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := m.ValidateMatch(txn); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, nil
}

// IsMatch evaluates the matcher's predicate against txn. Expectations are not
// checked; see ValidateMatch.
func (m *Matcher) IsMatch(txn *ledger.Transaction) (bool, error) {
	return m.isMatch(txn, map[*Matcher]bool{}, 0)
}

func (m *Matcher) isMatch(txn *ledger.Transaction, path map[*Matcher]bool, depth int) (bool, error) {
	if err := checkRecursion(m, path, depth); err != nil {
		return false, err
	}

	switch m.MatchType {
	case MatchTypeRegex:
		return m.isRegexMatch(txn)
	case MatchTypeComposite:
		if m.Composite == nil {
			return false, configError(m, nil, "composite matcher without options")
		}
		path[m] = true
		defer delete(path, m)
		return m.isCompositeMatch(txn, path, depth)
	case MatchTypeMachineLearning:
		return false, configError(m, ErrNotImplemented, "matchType %q", m.MatchType)
	default:
		return false, configError(m, ErrNotImplemented, "matchType %q", m.MatchType)
	}
}

func (m *Matcher) isRegexMatch(txn *ledger.Transaction) (bool, error) {
	if m.Regex == nil {
		return false, configError(m, nil, "regex matcher without options")
	}
	value, err := fieldValue(txn, m.Regex.MatchOn)
	if err != nil {
		return false, configError(m, err, "matchOn")
	}
	re, err := m.Regex.compile()
	if err != nil {
		return false, configError(m, err, "invalid regex %q", m.Regex.Regex)
	}
	return re.MatchString(value), nil
}

func (m *Matcher) isCompositeMatch(txn *ledger.Transaction, path map[*Matcher]bool, depth int) (bool, error) {
	mode := m.Composite.MatchType
	switch mode {
	case CompositeAny, CompositeAll, CompositeNone:
	default:
		return false, configError(m, nil, "unknown composite matchType %q", mode)
	}

	for _, child := range m.Composite.Matchers {
		if child == nil {
			return false, configError(m, nil, "composite matcher with empty child")
		}
		ok, err := child.isMatch(txn, path, depth+1)
		if err != nil {
			return false, err
		}
		switch {
		case mode == CompositeAny && ok:
			return true, nil
		case mode == CompositeAll && !ok:
			return false, nil
		case mode == CompositeNone && ok:
			return false, nil
		}
	}

	// Every child was consulted without settling the result early.
	return mode != CompositeAny, nil
}

// fieldValue returns the string form of a transaction field.
func fieldValue(txn *ledger.Transaction, on MatchOn) (string, error) {
	switch on {
	case MatchOnDate:
		return txn.Date.Format(ledger.DateLayout), nil
	case MatchOnPayee:
		return txn.Payee, nil
	case MatchOnNarration:
		return txn.Narration, nil
	case MatchOnAmount:
		return txn.Meta.Amount.String(), nil
	case MatchOnAccount:
		return string(txn.Meta.Account), nil
	case MatchOnCurrency:
		return string(txn.Meta.Currency), nil
	default:
		return "", fmt.Errorf("unknown field %q", on)
	}
}

// ValidateMatch checks the matcher's expectations against txn in a fixed
// order: maximum amount, minimum amount, account, currency. The first failing
// check is reported.
func (m *Matcher) ValidateMatch(txn *ledger.Transaction) error {
	amount := txn.Meta.Amount
	label := describe(txn)

	if max := decimal.NewFromFloat(m.ExpectedAmountMax); amount.GreaterThan(max) {
		return configError(m, nil, "transaction %s has amount (%s) > expectedAmountMax (%s)", label, amount, max)
	}

	if min := decimal.NewFromFloat(m.ExpectedAmountMin); amount.LessThan(min) {
		return configError(m, nil, "transaction %s has amount (%s) < expectedAmountMin (%s)", label, amount, min)
	}

	if !slices.Contains(m.ExpectedAccounts, txn.Meta.Account) {
		return configError(m, nil, "transaction %s is from unexpected account (%s)", label, txn.Meta.Account)
	}

	if m.ExpectedCurrency != txn.Meta.Currency {
		return configError(m, nil, "transaction %s has unexpected currency (%s, expected %s)", label, txn.Meta.Currency, m.ExpectedCurrency)
	}

	return nil
}

func describe(txn *ledger.Transaction) string {
	if txn.Narration == "" {
		return fmt.Sprintf("%q", txn.Payee)
	}
	return fmt.Sprintf("%q %q", txn.Payee, txn.Narration)
}

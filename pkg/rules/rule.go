// Package rules classifies ledger transactions with auto-posting matchers and
// appends the postings of the matching rule.
package rules

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Boelensman1/beancount-support/pkg/api"
)

// MatchType selects the matcher variant.
type MatchType string

// Matcher variants.
const (
	MatchTypeRegex           MatchType = "regex"
	MatchTypeComposite       MatchType = "composite"
	MatchTypeMachineLearning MatchType = "machinelearning"
)

// MatchOn names the transaction field a regex matcher is applied to.
type MatchOn string

// Matchable fields. Account and currency come from the transaction meta.
const (
	MatchOnDate      MatchOn = "date"
	MatchOnPayee     MatchOn = "payee"
	MatchOnNarration MatchOn = "narration"
	MatchOnAmount    MatchOn = "amount"
	MatchOnAccount   MatchOn = "account"
	MatchOnCurrency  MatchOn = "currency"
)

// CompositeMode combines the results of a composite matcher's children.
type CompositeMode string

// Composite modes.
const (
	CompositeAny  CompositeMode = "any"
	CompositeAll  CompositeMode = "all"
	CompositeNone CompositeMode = "none"
)

// MaxDepth bounds the nesting of composite matchers.
const MaxDepth = 32

// ErrNotImplemented is wrapped by the error returned for matcher variants
// that cannot be evaluated yet.
var ErrNotImplemented = errors.New("not implemented")

// RegexOptions configures a regex matcher. The expression is searched for
// anywhere in the field; it does not have to match the whole value.
type RegexOptions struct {
	MatchOn MatchOn `json:"matchOn"`
	Regex   string  `json:"regex"`

	re *regexp.Regexp
}

func (o *RegexOptions) compile() (*regexp.Regexp, error) {
	if o.re == nil {
		re, err := regexp.Compile(o.Regex)
		if err != nil {
			return nil, err
		}
		o.re = re
	}
	return o.re, nil
}

// CompositeOptions configures a composite matcher.
type CompositeOptions struct {
	MatchType CompositeMode `json:"matchType"`
	Matchers  []*Matcher    `json:"matchers"`
}

// MachineLearningOptions is reserved for a classifier based matcher.
type MachineLearningOptions struct {
	MinConfidence float64 `json:"minConfidence"`
}

// AutoPosting is a posting template appended when a matcher applies.
type AutoPosting struct {
	Flag    *string             `json:"flag"`
	Account api.PostingAccount  `json:"account"`
	Line    api.AutoPostingLine `json:"line"`
}

// Matcher is a named classification rule. Exactly one of Regex, Composite or
// MachineLearning is set, according to MatchType.
type Matcher struct {
	Name              api.AutoPostingMatcherName
	MatchType         MatchType
	ExpectedAmountMin float64
	ExpectedAmountMax float64
	ExpectedCurrency  api.Currency
	ExpectedAccounts  []api.PostingAccount
	Postings          []AutoPosting

	Regex           *RegexOptions
	Composite       *CompositeOptions
	MachineLearning *MachineLearningOptions
}

// RuleConfigurationError reports a misconfigured matcher: one that matched
// but failed validation, or one that cannot be evaluated.
type RuleConfigurationError struct {
	Rule api.AutoPostingMatcherName
	Msg  string
	Err  error
}

func (e *RuleConfigurationError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Rule == "" {
		return "rule configuration: " + msg
	}
	return fmt.Sprintf("rule %q: %s", e.Rule, msg)
}

func (e *RuleConfigurationError) Unwrap() error {
	return e.Err
}

func configError(m *Matcher, err error, format string, args ...any) *RuleConfigurationError {
	return &RuleConfigurationError{Rule: m.Name, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Validate checks the static configuration of a matcher tree: known variants,
// compilable expressions, bounded depth and no matcher containing itself.
func (m *Matcher) Validate() error {
	if m.Name == "" {
		return configError(m, nil, "name is required")
	}
	return m.validateTree(map[*Matcher]bool{}, 0)
}

func (m *Matcher) validateTree(path map[*Matcher]bool, depth int) error {
	if err := checkRecursion(m, path, depth); err != nil {
		return err
	}

	switch m.MatchType {
	case MatchTypeRegex:
		if m.Regex == nil {
			return configError(m, nil, "regex matcher without options")
		}
		if !knownField(m.Regex.MatchOn) {
			return configError(m, nil, "unknown matchOn %q", m.Regex.MatchOn)
		}
		if _, err := m.Regex.compile(); err != nil {
			return configError(m, err, "invalid regex %q", m.Regex.Regex)
		}
	case MatchTypeComposite:
		if m.Composite == nil {
			return configError(m, nil, "composite matcher without options")
		}
		switch m.Composite.MatchType {
		case CompositeAny, CompositeAll, CompositeNone:
		default:
			return configError(m, nil, "unknown composite matchType %q", m.Composite.MatchType)
		}
		path[m] = true
		defer delete(path, m)
		for _, child := range m.Composite.Matchers {
			if child == nil {
				return configError(m, nil, "composite matcher with empty child")
			}
			if err := child.validateTree(path, depth+1); err != nil {
				return err
			}
		}
	case MatchTypeMachineLearning:
		// Accepted in the store; evaluation fails until implemented.
	default:
		return configError(m, nil, "unknown matchType %q", m.MatchType)
	}
	return nil
}

func checkRecursion(m *Matcher, path map[*Matcher]bool, depth int) error {
	if depth > MaxDepth {
		return configError(m, nil, "composite nesting deeper than %d", MaxDepth)
	}
	if path[m] {
		return configError(m, nil, "composite matcher contains itself")
	}
	return nil
}

func knownField(on MatchOn) bool {
	switch on {
	case MatchOnDate, MatchOnPayee, MatchOnNarration, MatchOnAmount, MatchOnAccount, MatchOnCurrency:
		return true
	}
	return false
}

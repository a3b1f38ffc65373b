package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Boelensman1/beancount-support/pkg/api"
)

// matcherJSON is the persisted shape of a Matcher.
type matcherJSON struct {
	Name              api.AutoPostingMatcherName `json:"name"`
	MatchType         MatchType                  `json:"matchType"`
	MatchOptions      json.RawMessage            `json:"matchOptions"`
	ExpectedAmountMin float64                    `json:"expectedAmountMin"`
	ExpectedAmountMax float64                    `json:"expectedAmountMax"`
	ExpectedCurrency  api.Currency               `json:"expectedCurrency"`
	ExpectedAccounts  []api.PostingAccount       `json:"expectedAccounts"`
	Postings          []AutoPosting              `json:"postings"`
}

// MarshalJSON encodes the active variant as "matchOptions".
func (m *Matcher) MarshalJSON() ([]byte, error) {
	var options any
	switch m.MatchType {
	case MatchTypeRegex:
		options = m.Regex
	case MatchTypeComposite:
		options = m.Composite
	case MatchTypeMachineLearning:
		options = m.MachineLearning
	default:
		return nil, fmt.Errorf("encoding matcher %q: unknown matchType %q", m.Name, m.MatchType)
	}

	raw, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("encoding matcher %q options: %w", m.Name, err)
	}

	accounts := m.ExpectedAccounts
	if accounts == nil {
		accounts = []api.PostingAccount{}
	}
	postings := m.Postings
	if postings == nil {
		postings = []AutoPosting{}
	}

	return json.Marshal(matcherJSON{
		Name:              m.Name,
		MatchType:         m.MatchType,
		MatchOptions:      raw,
		ExpectedAmountMin: m.ExpectedAmountMin,
		ExpectedAmountMax: m.ExpectedAmountMax,
		ExpectedCurrency:  m.ExpectedCurrency,
		ExpectedAccounts:  accounts,
		Postings:          postings,
	})
}

// UnmarshalJSON decodes "matchOptions" according to "matchType".
func (m *Matcher) UnmarshalJSON(data []byte) error {
	var raw matcherJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Matcher{
		Name:              raw.Name,
		MatchType:         raw.MatchType,
		ExpectedAmountMin: raw.ExpectedAmountMin,
		ExpectedAmountMax: raw.ExpectedAmountMax,
		ExpectedCurrency:  raw.ExpectedCurrency,
		ExpectedAccounts:  raw.ExpectedAccounts,
		Postings:          raw.Postings,
	}

	options := raw.MatchOptions
	if len(bytes.TrimSpace(options)) == 0 {
		options = []byte("{}")
	}

	switch raw.MatchType {
	case MatchTypeRegex:
		m.Regex = &RegexOptions{}
		return decodeOptions(options, m.Regex, raw.Name)
	case MatchTypeComposite:
		m.Composite = &CompositeOptions{}
		return decodeOptions(options, m.Composite, raw.Name)
	case MatchTypeMachineLearning:
		m.MachineLearning = &MachineLearningOptions{}
		return decodeOptions(options, m.MachineLearning, raw.Name)
	default:
		return fmt.Errorf("decoding matcher %q: unknown matchType %q", raw.Name, raw.MatchType)
	}
}

func decodeOptions(data []byte, v any, name api.AutoPostingMatcherName) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding matcher %q options: %w", name, err)
	}
	return nil
}

// childJSON covers both child encodings: a full matcher object, and the bare
// option objects written by older versions of the menu ({"matchOn","regex"}
// for regex children, {"matchType":"any","matchers":[...]} for composites).
type childJSON struct {
	MatchType    string          `json:"matchType"`
	MatchOptions json.RawMessage `json:"matchOptions"`
	MatchOn      MatchOn         `json:"matchOn"`
	Regex        *string         `json:"regex"`
	Matchers     json.RawMessage `json:"matchers"`
}

// UnmarshalJSON decodes the children of a composite matcher.
func (o *CompositeOptions) UnmarshalJSON(data []byte) error {
	var raw struct {
		MatchType CompositeMode     `json:"matchType"`
		Matchers  []json.RawMessage `json:"matchers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.MatchType = raw.MatchType
	o.Matchers = make([]*Matcher, 0, len(raw.Matchers))
	for i, rawChild := range raw.Matchers {
		child, err := decodeChild(rawChild)
		if err != nil {
			return fmt.Errorf("decoding child %d: %w", i, err)
		}
		o.Matchers = append(o.Matchers, child)
	}
	return nil
}

func decodeChild(data []byte) (*Matcher, error) {
	var probe childJSON
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch {
	case probe.MatchOptions != nil:
		child := &Matcher{}
		if err := child.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return child, nil
	case probe.Matchers != nil:
		composite := &CompositeOptions{}
		if err := composite.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return &Matcher{MatchType: MatchTypeComposite, Composite: composite}, nil
	case probe.Regex != nil:
		return &Matcher{
			MatchType: MatchTypeRegex,
			Regex:     &RegexOptions{MatchOn: probe.MatchOn, Regex: *probe.Regex},
		}, nil
	default:
		return nil, fmt.Errorf("unrecognised matcher %s", data)
	}
}

package store

import (
	"fmt"
	"slices"

	"github.com/Boelensman1/beancount-support/pkg/api"
	"github.com/Boelensman1/beancount-support/pkg/rules"
)

type rulesData struct {
	AutoPostingMatchers []*rules.Matcher     `json:"autoPostingMatchers"`
	Accounts            []api.PostingAccount `json:"accounts"`
	PostingAccounts     []api.PostingAccount `json:"postingAccounts"`
}

func (d rulesData) clone() rulesData {
	return rulesData{
		AutoPostingMatchers: slices.Clone(d.AutoPostingMatchers),
		Accounts:            slices.Clone(d.Accounts),
		PostingAccounts:     slices.Clone(d.PostingAccounts),
	}
}

// RuleStore holds the auto-posting matchers together with the bank accounts
// they may expect and the accounts postings may be booked to.
type RuleStore struct {
	doc *document[rulesData]
}

// OpenRuleStore loads the store at path. A missing file is an empty store.
func OpenRuleStore(path string) (*RuleStore, error) {
	doc, err := openDocument[rulesData](path)
	if err != nil {
		return nil, fmt.Errorf("opening rule store: %w", err)
	}
	return &RuleStore{doc: doc}, nil
}

// GetAutoPostingMatchers returns the matchers in priority order.
func (s *RuleStore) GetAutoPostingMatchers() []*rules.Matcher {
	var out []*rules.Matcher
	s.doc.read(func(d *rulesData) { out = slices.Clone(d.AutoPostingMatchers) })
	return out
}

// GetAutoPostingMatcher returns the matcher with the given name.
func (s *RuleStore) GetAutoPostingMatcher(name api.AutoPostingMatcherName) (*rules.Matcher, error) {
	var out *rules.Matcher
	s.doc.read(func(d *rulesData) {
		if i := matcherIndex(d.AutoPostingMatchers, name); i >= 0 {
			out = d.AutoPostingMatchers[i]
		}
	})
	if out == nil {
		return nil, &NotFoundError{Kind: "matcher", Name: string(name)}
	}
	return out, nil
}

// AddAutoPostingMatcher inserts m at position order, 0 being the highest
// priority and len the lowest.
func (s *RuleStore) AddAutoPostingMatcher(m *rules.Matcher, order int) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.doc.update(rulesData.clone, func(d *rulesData) error {
		if order < 0 || order > len(d.AutoPostingMatchers) {
			return fmt.Errorf("adding matcher %q at %d of %d: %w", m.Name, order, len(d.AutoPostingMatchers), ErrInvalidOrder)
		}
		if matcherIndex(d.AutoPostingMatchers, m.Name) >= 0 {
			return &ConflictError{Kind: "matcher", Name: string(m.Name)}
		}
		d.AutoPostingMatchers = slices.Insert(d.AutoPostingMatchers, order, m)
		return nil
	})
}

// UpdateAutoPostingMatcher replaces the matcher called name, keeping its
// position. m may carry a new name as long as it stays unique.
func (s *RuleStore) UpdateAutoPostingMatcher(name api.AutoPostingMatcherName, m *rules.Matcher) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.doc.update(rulesData.clone, func(d *rulesData) error {
		i := matcherIndex(d.AutoPostingMatchers, name)
		if i < 0 {
			return &NotFoundError{Kind: "matcher", Name: string(name)}
		}
		if m.Name != name && matcherIndex(d.AutoPostingMatchers, m.Name) >= 0 {
			return &ConflictError{Kind: "matcher", Name: string(m.Name)}
		}
		d.AutoPostingMatchers[i] = m
		return nil
	})
}

// RemoveAutoPostingMatcher deletes the matcher called name.
func (s *RuleStore) RemoveAutoPostingMatcher(name api.AutoPostingMatcherName) error {
	return s.doc.update(rulesData.clone, func(d *rulesData) error {
		i := matcherIndex(d.AutoPostingMatchers, name)
		if i < 0 {
			return &NotFoundError{Kind: "matcher", Name: string(name)}
		}
		d.AutoPostingMatchers = slices.Delete(d.AutoPostingMatchers, i, i+1)
		return nil
	})
}

// GetAccounts returns the bank accounts known to the rules.
func (s *RuleStore) GetAccounts() []api.PostingAccount {
	var out []api.PostingAccount
	s.doc.read(func(d *rulesData) { out = slices.Clone(d.Accounts) })
	return out
}

// AddAccount registers a bank account.
func (s *RuleStore) AddAccount(name api.PostingAccount) error {
	return s.doc.update(rulesData.clone, func(d *rulesData) error {
		if slices.Contains(d.Accounts, name) {
			return &ConflictError{Kind: "account", Name: string(name)}
		}
		d.Accounts = append(d.Accounts, name)
		return nil
	})
}

// RemoveAccount deletes a bank account.
func (s *RuleStore) RemoveAccount(name api.PostingAccount) error {
	return s.doc.update(rulesData.clone, func(d *rulesData) error {
		i := slices.Index(d.Accounts, name)
		if i < 0 {
			return &NotFoundError{Kind: "account", Name: string(name)}
		}
		d.Accounts = slices.Delete(d.Accounts, i, i+1)
		return nil
	})
}

// GetPostingAccounts returns the accounts postings may be booked to.
func (s *RuleStore) GetPostingAccounts() []api.PostingAccount {
	var out []api.PostingAccount
	s.doc.read(func(d *rulesData) { out = slices.Clone(d.PostingAccounts) })
	return out
}

// AddPostingAccount registers an account postings may be booked to.
func (s *RuleStore) AddPostingAccount(name api.PostingAccount) error {
	return s.doc.update(rulesData.clone, func(d *rulesData) error {
		if slices.Contains(d.PostingAccounts, name) {
			return &ConflictError{Kind: "posting account", Name: string(name)}
		}
		d.PostingAccounts = append(d.PostingAccounts, name)
		return nil
	})
}

func matcherIndex(matchers []*rules.Matcher, name api.AutoPostingMatcherName) int {
	return slices.IndexFunc(matchers, func(m *rules.Matcher) bool { return m.Name == name })
}

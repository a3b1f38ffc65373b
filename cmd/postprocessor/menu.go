package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Boelensman1/beancount-support/pkg/api"
	"github.com/Boelensman1/beancount-support/pkg/rules"
)

type ruleStore interface {
	GetAccounts() []api.PostingAccount
	AddAccount(name api.PostingAccount) error
	RemoveAccount(name api.PostingAccount) error
	AddPostingAccount(name api.PostingAccount) error
	GetAutoPostingMatchers() []*rules.Matcher
	GetAutoPostingMatcher(name api.AutoPostingMatcherName) (*rules.Matcher, error)
	AddAutoPostingMatcher(m *rules.Matcher, order int) error
	UpdateAutoPostingMatcher(name api.AutoPostingMatcherName, m *rules.Matcher) error
	RemoveAutoPostingMatcher(name api.AutoPostingMatcherName) error
}

var errQuit = errors.New("quit")

type choice struct {
	key    string
	label  string
	action func() error
}

type menu struct {
	rules   ruleStore
	scanner *bufio.Scanner
	out     io.Writer
	choices []choice
}

func newMenu(rs ruleStore, in io.Reader, out io.Writer) *menu {
	m := &menu{rules: rs, scanner: bufio.NewScanner(in), out: out}
	m.choices = []choice{
		{"addAccount", "Add account", m.addAccount},
		{"removeAccount", "Remove account", m.removeAccount},
		{"addPostingAccount", "Add posting account", m.addPostingAccount},
		{"addAutoPostingMatcher", "Add auto-posting rule", m.addMatcher},
		{"editAutoPostingMatcher", "Edit auto-posting rule", m.editMatcher},
		{"removeAutoPostingMatcher", "Remove auto-posting rule", m.removeMatcher},
		{"listAutoPostingMatchers", "List auto-posting rules", m.listMatchers},
		{"process", "Process a file", m.processHint},
		{"quit", "Quit", func() error { return errQuit }},
	}
	return m
}

// run shows the menu until quit is chosen or input ends. Errors of a single
// action are printed and the menu continues.
func (m *menu) run() error {
	for {
		m.printf("\n")
		for i, c := range m.choices {
			m.printf("%d) %s\n", i+1, c.label)
		}

		answer, ok := m.prompt("Choice")
		if !ok {
			return nil
		}

		c, found := m.lookup(answer)
		if !found {
			m.printf("Unknown choice %q\n", answer)
			continue
		}

		if err := c.action(); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			m.printf("Error: %v\n", err)
		}
	}
}

func (m *menu) lookup(answer string) (choice, bool) {
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(m.choices) {
		return m.choices[n-1], true
	}
	for _, c := range m.choices {
		if strings.EqualFold(c.key, answer) {
			return c, true
		}
	}
	return choice{}, false
}

func (m *menu) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}

// prompt reads one trimmed line. ok is false once input is exhausted.
func (m *menu) prompt(label string) (string, bool) {
	m.printf("%s: ", label)
	if !m.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.scanner.Text()), true
}

func (m *menu) require(label string) (string, error) {
	answer, ok := m.prompt(label)
	if !ok {
		return "", io.EOF
	}
	if answer == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return answer, nil
}

func (m *menu) promptFloat(label string, def float64) (float64, error) {
	answer, ok := m.prompt(fmt.Sprintf("%s [%g]", label, def))
	if !ok {
		return 0, io.EOF
	}
	if answer == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(answer, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", strings.ToLower(label), err)
	}
	return v, nil
}

func (m *menu) addAccount() error {
	name, err := m.require("Account")
	if err != nil {
		return err
	}
	if err := m.rules.AddAccount(api.PostingAccount(name)); err != nil {
		return err
	}
	m.printf("Added account %s\n", name)
	return nil
}

func (m *menu) removeAccount() error {
	for _, a := range m.rules.GetAccounts() {
		m.printf("  %s\n", a)
	}
	name, err := m.require("Account")
	if err != nil {
		return err
	}
	if err := m.rules.RemoveAccount(api.PostingAccount(name)); err != nil {
		return err
	}
	m.printf("Removed account %s\n", name)
	return nil
}

func (m *menu) addPostingAccount() error {
	name, err := m.require("Posting account")
	if err != nil {
		return err
	}
	if err := m.rules.AddPostingAccount(api.PostingAccount(name)); err != nil {
		return err
	}
	m.printf("Added posting account %s\n", name)
	return nil
}

// addMatcher builds a regex rule with a single posting from prompts.
func (m *menu) addMatcher() error {
	name, err := m.require("Name")
	if err != nil {
		return err
	}
	field, err := m.require("Match on (date, payee, narration, amount, account, currency)")
	if err != nil {
		return err
	}
	regex, err := m.require("Regex")
	if err != nil {
		return err
	}
	minAmount, err := m.promptFloat("Expected amount min", -1000000)
	if err != nil {
		return err
	}
	maxAmount, err := m.promptFloat("Expected amount max", 1000000)
	if err != nil {
		return err
	}
	currency, err := m.require("Expected currency")
	if err != nil {
		return err
	}
	accounts, err := m.require("Expected accounts (comma separated)")
	if err != nil {
		return err
	}
	postingAccount, err := m.require("Posting account")
	if err != nil {
		return err
	}
	line, _ := m.prompt("Posting line (e.g. ${amountNegated} ${currency})")

	matcher := &rules.Matcher{
		Name:              api.AutoPostingMatcherName(name),
		MatchType:         rules.MatchTypeRegex,
		ExpectedAmountMin: minAmount,
		ExpectedAmountMax: maxAmount,
		ExpectedCurrency:  api.Currency(currency),
		Regex:             &rules.RegexOptions{MatchOn: rules.MatchOn(field), Regex: regex},
		Postings: []rules.AutoPosting{{
			Account: api.PostingAccount(postingAccount),
			Line:    api.AutoPostingLine(line),
		}},
	}
	for _, a := range strings.Split(accounts, ",") {
		if a = strings.TrimSpace(a); a != "" {
			matcher.ExpectedAccounts = append(matcher.ExpectedAccounts, api.PostingAccount(a))
		}
	}

	order := len(m.rules.GetAutoPostingMatchers())
	answer, _ := m.prompt(fmt.Sprintf("Position [%d]", order))
	if answer != "" {
		if order, err = strconv.Atoi(answer); err != nil {
			return fmt.Errorf("parsing position: %w", err)
		}
	}

	if err := m.rules.AddAutoPostingMatcher(matcher, order); err != nil {
		return err
	}
	m.printf("Added rule %s\n", name)
	return nil
}

// editMatcher replaces a rule with one given as a JSON document.
func (m *menu) editMatcher() error {
	name, err := m.require("Name")
	if err != nil {
		return err
	}
	current, err := m.rules.GetAutoPostingMatcher(api.AutoPostingMatcherName(name))
	if err != nil {
		return err
	}
	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encoding rule: %w", err)
	}
	m.printf("Current: %s\n", data)

	replacement, err := m.require("New rule (JSON, one line)")
	if err != nil {
		return err
	}
	var updated rules.Matcher
	if err := json.Unmarshal([]byte(replacement), &updated); err != nil {
		return fmt.Errorf("decoding rule: %w", err)
	}
	if err := m.rules.UpdateAutoPostingMatcher(current.Name, &updated); err != nil {
		return err
	}
	m.printf("Updated rule %s\n", updated.Name)
	return nil
}

func (m *menu) removeMatcher() error {
	name, err := m.require("Name")
	if err != nil {
		return err
	}
	if err := m.rules.RemoveAutoPostingMatcher(api.AutoPostingMatcherName(name)); err != nil {
		return err
	}
	m.printf("Removed rule %s\n", name)
	return nil
}

func (m *menu) listMatchers() error {
	matchers := m.rules.GetAutoPostingMatchers()
	if len(matchers) == 0 {
		m.printf("No rules\n")
		return nil
	}
	for i, matcher := range matchers {
		m.printf("%d. %s (%s)\n", i, matcher.Name, matcher.MatchType)
	}
	return nil
}

func (m *menu) processHint() error {
	m.printf("Run with a file to process it: postprocessor <file.beancount>\n")
	return nil
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Boelensman1/beancount-support/pkg/store"
)

func TestRun_TooManyArguments(t *testing.T) {
	err := run([]string{"a.beancount", "b.beancount"}, strings.NewReader(""), &bytes.Buffer{})
	if err == nil || err.Error() != "too many arguments" {
		t.Errorf("got %v, want too many arguments", err)
	}
}

func TestRun_ProcessFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("RULES_DB_PATH", filepath.Join(dir, "db.json"))

	ledgerText := "**** Block A\n" +
		"2024-01-02 * \"Albert Heijn\" \"Groceries\"\n" +
		"  Assets:Checking     -12.50 EUR\n"
	path := filepath.Join(dir, "in.beancount")
	if err := os.WriteFile(path, []byte(ledgerText), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run([]string{path}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "\"Albert Heijn\"") {
		t.Errorf("output missing transaction:\n%s", out.String())
	}
}

func TestMenu(t *testing.T) {
	rs, err := store.OpenRuleStore(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatal(err)
	}

	input := strings.Join([]string{
		"addAccount", "Assets:Checking",
		"1", "Assets:Savings",
		"removeAccount", "Assets:Savings",
		"addAccount", "Assets:Checking",
		"addAutoPostingMatcher",
		"groceries", "payee", "Albert Heijn", "", "", "EUR", "Assets:Checking",
		"Expenses:Groceries", "${amountNegated} ${currency}", "",
		"listAutoPostingMatchers",
		"process",
		"bogus",
		"quit",
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := newMenu(rs, strings.NewReader(input), &out).run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	accounts := rs.GetAccounts()
	if len(accounts) != 1 || accounts[0] != "Assets:Checking" {
		t.Errorf("accounts: got %v, want [Assets:Checking]", accounts)
	}

	matchers := rs.GetAutoPostingMatchers()
	if len(matchers) != 1 {
		t.Fatalf("got %d rules, want 1", len(matchers))
	}
	m := matchers[0]
	if m.Name != "groceries" || m.Regex == nil || m.Regex.Regex != "Albert Heijn" {
		t.Errorf("unexpected rule: %+v", m)
	}
	if m.ExpectedAmountMin != -1000000 || m.ExpectedAmountMax != 1000000 {
		t.Errorf("bounds: got [%g, %g]", m.ExpectedAmountMin, m.ExpectedAmountMax)
	}

	text := out.String()
	for _, want := range []string{
		"Error: account \"Assets:Checking\" already exists",
		"0. groceries (regex)",
		"postprocessor <file.beancount>",
		"Unknown choice \"bogus\"",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestMenu_EndOfInput(t *testing.T) {
	rs, err := store.OpenRuleStore(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatal(err)
	}

	if err := newMenu(rs, strings.NewReader("addAccount\n"), &bytes.Buffer{}).run(); err != nil {
		t.Errorf("run: %v", err)
	}
}

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Boelensman1/beancount-support/pkg/api"
	"github.com/Boelensman1/beancount-support/pkg/gocardless"
)

type fakeAPI struct {
	requisitions int
	accounts     map[string][]string
	txns         map[string][]*api.BankTransaction
}

func (f *fakeAPI) ListInstitutions(_ context.Context, country string) ([]gocardless.Institution, error) {
	if country != "NL" {
		return nil, errors.New("unsupported country")
	}
	return []gocardless.Institution{{ID: "ING_INGBNL2A", Name: "ING"}}, nil
}

func (f *fakeAPI) CreateRequisition(_ context.Context, institutionID, redirect string) (*gocardless.Requisition, error) {
	f.requisitions++
	return &gocardless.Requisition{ID: "req-new", InstitutionID: institutionID, Link: "https://example.com/link"}, nil
}

func (f *fakeAPI) ListAccounts(_ context.Context, requisitionID string) ([]string, error) {
	accounts, ok := f.accounts[requisitionID]
	if !ok {
		return nil, errors.New("unknown requisition")
	}
	return accounts, nil
}

func (f *fakeAPI) BookedTransactions(_ context.Context, accountID string, _, _ time.Time) ([]*api.BankTransaction, error) {
	var out []*api.BankTransaction
	for _, t := range f.txns[accountID] {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

type harness struct {
	t   *testing.T
	api *fakeAPI
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("GRABBER_DB_PATH", filepath.Join(dir, "grabber.db.json"))
	t.Setenv("EXPORT_DIR", filepath.Join(dir, "for-import"))
	t.Setenv("EXPORT_FORMAT", "csv")
	t.Setenv("GOCARDLESS_SECRET_ID", "id")
	t.Setenv("GOCARDLESS_SECRET_KEY", "key")

	return &harness{
		t:   t,
		dir: dir,
		api: &fakeAPI{
			accounts: map[string][]string{
				"req-new":   {"acc1"},
				"req-given": {"acc1", "acc2"},
			},
			txns: map[string][]*api.BankTransaction{
				"acc1": {{ID: "t1", Date: "2024-03-01", Amount: decimal.RequireFromString("-4.5"), Currency: "EUR"}},
			},
		},
	}
}

// exec runs the CLI with args and stdin, returning stdout.
func (h *harness) exec(stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	a := &app{
		in:     bufio.NewScanner(strings.NewReader(stdin)),
		out:    &out,
		now:    time.Now,
		newAPI: func() (bankAPI, error) { return h.api, nil },
	}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustExec(stdin string, args ...string) string {
	h.t.Helper()
	out, err := h.exec(stdin, args...)
	if err != nil {
		h.t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func TestListBanks(t *testing.T) {
	h := newHarness(t)

	out := h.mustExec("", "list-banks", "nl")
	if !strings.Contains(out, "ING: ING_INGBNL2A") {
		t.Errorf("output missing institution:\n%s", out)
	}

	out = h.mustExec("NL\n", "list-banks")
	if !strings.Contains(out, "ING: ING_INGBNL2A") {
		t.Errorf("prompted country: output missing institution:\n%s", out)
	}

	if _, err := h.exec("", "list-banks", "NLD"); err == nil {
		t.Error("expected error for three letter country code")
	}
}

func TestAddBank(t *testing.T) {
	h := newHarness(t)

	out := h.mustExec("\n", "add-bank", "Assets:ING", "ING_INGBNL2A")
	if !strings.Contains(out, "https://example.com/link") {
		t.Errorf("link not printed:\n%s", out)
	}
	if h.api.requisitions != 1 {
		t.Errorf("requisitions: got %d, want 1", h.api.requisitions)
	}

	h.mustExec("", "add-bank", "Assets:Other", "ING_INGBNL2A", "--requisition", "req-given")
	if h.api.requisitions != 1 {
		t.Errorf("--requisition should not create a requisition, got %d", h.api.requisitions)
	}

	if _, err := h.exec("", "add-bank", "Assets:ING", "ING_INGBNL2A", "--requisition", "req-given"); err == nil {
		t.Error("expected error adding a bank twice")
	}

	out = h.mustExec("", "list-added-banks")
	if out != "Assets:ING\nAssets:Other\n" {
		t.Errorf("list-added-banks: got %q", out)
	}
}

func TestGroups(t *testing.T) {
	h := newHarness(t)
	h.mustExec("", "add-bank", "a", "ING_INGBNL2A", "--requisition", "req-given")
	h.mustExec("", "add-bank", "b", "ING_INGBNL2A", "--requisition", "req-given")
	h.mustExec("", "add-group", "all")

	out := h.mustExec("", "add-banks-to-group", "all", "a", "b", "a")
	if !strings.Contains(out, "Group all: 2 bank(s)") {
		t.Errorf("got %q", out)
	}

	if _, err := h.exec("", "add-banks-to-group", "all", "missing"); err == nil {
		t.Error("expected error for unknown bank")
	}

	out = h.mustExec("", "get-csv", "all", "--group")
	if strings.Count(out, "Wrote 1 transaction(s)") != 2 {
		t.Errorf("get-csv --group:\n%s", out)
	}
}

func TestGetCSV(t *testing.T) {
	h := newHarness(t)
	h.mustExec("", "add-bank", "Assets:ING", "ING_INGBNL2A", "--requisition", "req-new")

	out := h.mustExec("", "get-csv", "Assets:ING")
	if !strings.Contains(out, "[Assets:ING] Wrote 1 transaction(s)") {
		t.Errorf("get-csv:\n%s", out)
	}

	files, err := filepath.Glob(filepath.Join(h.dir, "for-import", "Assets.ING.19700102-*.grabber.csv"))
	if err != nil || len(files) != 1 {
		t.Fatalf("export files: got %v (%v)", files, err)
	}

	out = h.mustExec("", "get-csv", "Assets:ING")
	if !strings.Contains(out, "No new dates to import") {
		t.Errorf("second get-csv:\n%s", out)
	}

	if _, err := h.exec("", "get-csv", "Assets:ING", "--group", "--bank"); err == nil {
		t.Error("expected error for --group with --bank")
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.mustExec("", "add-bank", "Assets:ING", "ING_INGBNL2A", "--requisition", "req-new")

	out := h.mustExec("", "status")
	for _, want := range []string{
		"GoCardless secrets: ✓ Set",
		"Assets:ING (imported till never): ✓ Agreement valid",
		"GoCardless API: ✓ Connected (1 institutions in NL)",
		"Status: ✓ Ready to export",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

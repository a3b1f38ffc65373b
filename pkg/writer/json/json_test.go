package json

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Boelensman1/beancount-support/pkg/api"
)

func write(t *testing.T, path string, txns ...*api.BankTransaction) *Writer {
	t.Helper()
	w, err := New(Config{FilePath: path, BatchSize: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in := make(chan *api.BankTransaction, len(txns))
	for _, txn := range txns {
		in <- txn
	}
	close(in)
	if err := w.Write(context.Background(), in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return w
}

func TestWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	write(t, path, &api.BankTransaction{ID: "t1", Amount: decimal.RequireFromString("-42.50"), Currency: "EUR"})
	w := write(t, path, &api.BankTransaction{ID: "t2", Amount: decimal.RequireFromString("10"), Currency: "EUR"})

	if w.TransactionCount() != 2 {
		t.Errorf("count: got %d, want 2", w.TransactionCount())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []*api.BankTransaction
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t2" {
		t.Fatalf("transactions: got %+v", got)
	}
	if !got[0].Amount.Equal(decimal.RequireFromString("-42.5")) {
		t.Errorf("amount: got %s", got[0].Amount)
	}
}

func TestNew_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := os.WriteFile(path, []byte("[{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{FilePath: path}, nil); err == nil {
		t.Error("expected error for corrupt file")
	}
}

package gocardless

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/Boelensman1/beancount-support/pkg/api"
)

type fakeAPI struct {
	newTokens     atomic.Int32
	refreshTokens atomic.Int32
	failures      atomic.Int32
	accessExpires int
	mux           *http.ServeMux
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{accessExpires: 86400, mux: http.NewServeMux()}

	f.mux.HandleFunc("POST /token/new/", func(w http.ResponseWriter, r *http.Request) {
		var req newTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SecretID != "id" || req.SecretKey != "key" {
			http.Error(w, `{"detail":"bad credentials"}`, http.StatusUnauthorized)
			return
		}
		f.newTokens.Add(1)
		writeJSON(w, tokenResponse{Access: "access-new", AccessExpires: f.accessExpires, Refresh: "refresh", RefreshExpires: 86400})
	})
	f.mux.HandleFunc("POST /token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		f.refreshTokens.Add(1)
		writeJSON(w, tokenResponse{Access: "access-refreshed", AccessExpires: 86400})
	})

	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access-new" && got != "Bearer access-refreshed" {
			http.Error(w, "missing token: "+got, http.StatusUnauthorized)
			return
		}
		h(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{SecretID: "id", SecretKey: "key", BaseURL: srv.URL, RetryDelay: time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresSecrets(t *testing.T) {
	if _, err := New(Config{SecretID: "id"}, nil); err == nil {
		t.Error("expected error without secret key")
	}
}

func TestListInstitutions(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handle("GET /institutions/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("country"); got != "NL" {
			t.Errorf("country: got %q, want NL", got)
		}
		writeJSON(w, []Institution{{ID: "ING_INGBNL2A", Name: "ING", BIC: "INGBNL2A", Countries: []string{"NL"}}})
	})

	c := newClient(t, srv)
	got, err := c.ListInstitutions(context.Background(), "NL")
	if err != nil {
		t.Fatalf("ListInstitutions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ING_INGBNL2A" {
		t.Errorf("institutions: got %+v", got)
	}

	if _, err := c.ListInstitutions(context.Background(), "NL"); err != nil {
		t.Fatalf("second ListInstitutions: %v", err)
	}
	if n := f.newTokens.Load(); n != 1 {
		t.Errorf("token/new calls: got %d, want 1", n)
	}
}

func TestTokenRefresh(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.accessExpires = 0
	f.handle("GET /requisitions/req-1/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Requisition{ID: "req-1", Accounts: []string{"acc-1", "acc-2"}})
	})

	c := newClient(t, srv)
	for range 2 {
		accounts, err := c.ListAccounts(context.Background(), "req-1")
		if err != nil {
			t.Fatalf("ListAccounts: %v", err)
		}
		if diff := cmp.Diff([]string{"acc-1", "acc-2"}, accounts); diff != "" {
			t.Errorf("accounts mismatch (-want +got):\n%s", diff)
		}
	}

	if n := f.newTokens.Load(); n != 1 {
		t.Errorf("token/new calls: got %d, want 1", n)
	}
	if n := f.refreshTokens.Load(); n == 0 {
		t.Error("expected the expired access token to be refreshed")
	}
}

func TestCreateRequisition(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handle("POST /requisitions/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if body["institution_id"] != "ING_INGBNL2A" || body["redirect"] != "http://localhost:6767/" {
			t.Errorf("body: got %v", body)
		}
		writeJSON(w, Requisition{ID: "req-1", Link: "https://ob.example/start"})
	})

	req, err := newClient(t, srv).CreateRequisition(context.Background(), "ING_INGBNL2A", "http://localhost:6767/")
	if err != nil {
		t.Fatalf("CreateRequisition: %v", err)
	}
	if req.ID != "req-1" || req.Link != "https://ob.example/start" {
		t.Errorf("requisition: got %+v", req)
	}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		failures  int32
		wantErr   bool
		wantCalls int32
	}{
		{name: "recovers from 503", status: http.StatusServiceUnavailable, failures: 2, wantCalls: 3},
		{name: "recovers from 429", status: http.StatusTooManyRequests, failures: 1, wantCalls: 2},
		{name: "gives up after three attempts", status: http.StatusBadGateway, failures: 5, wantErr: true, wantCalls: 3},
		{name: "does not retry 400", status: http.StatusBadRequest, failures: 5, wantErr: true, wantCalls: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, srv := newFakeAPI(t)
			var calls atomic.Int32
			f.handle("GET /accounts/acc-1/balances/", func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= tc.failures {
					http.Error(w, `{"detail":"try later"}`, tc.status)
					return
				}
				writeJSON(w, map[string]any{"balances": []Balance{{BalanceAmount: Amount{Amount: "10.00", Currency: "EUR"}}}})
			})

			_, err := newClient(t, srv).Balances(context.Background(), "acc-1")
			if (err != nil) != tc.wantErr {
				t.Fatalf("Balances: got error %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != tc.status {
					t.Errorf("error: got %v, want APIError with status %d", err, tc.status)
				}
			}
			if got := calls.Load(); got != tc.wantCalls {
				t.Errorf("calls: got %d, want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestBookedTransactions(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handle("GET /accounts/acc-1/transactions/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("date_from") != "2024-01-01" || q.Get("date_to") != "2024-01-31" {
			t.Errorf("query: got %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transactions": {
			"booked": [
				{
					"transactionId": "t1",
					"bookingDate": "2024-01-15",
					"transactionAmount": {"amount": "-42.5", "currency": "EUR"},
					"creditorName": "Grocery Store",
					"debtorName": "Me",
					"remittanceInformationUnstructured": "Weekly shop",
					"proprietaryBankTransactionCode": "PURCHASE"
				},
				{
					"transactionId": "t2",
					"bookingDate": "2024-01-20",
					"transactionAmount": {"amount": "2500", "currency": "EUR"},
					"debtorName": "Employer",
					"remittanceInformationUnstructuredArray": ["salary", "january"],
					"bankTransactionCode": "PMNT-RCDT",
					"proprietaryBankTransactionCode": "SALARY"
				},
				{
					"transactionId": "t3",
					"bookingDate": "2024-01-21",
					"transactionAmount": {"amount": "-20.123", "currency": "USD"},
					"creditorName": "Shop",
					"currencyExchange": {"sourceCurrency": "EUR", "exchangeRate": "0.8"}
				}
			],
			"pending": [
				{"transactionAmount": {"amount": "-1", "currency": "EUR"}, "valueDate": "2024-01-31"}
			]
		}}`))
	})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.Local)
	got, err := newClient(t, srv).BookedTransactions(context.Background(), "acc-1", from, to)
	if err != nil {
		t.Fatalf("BookedTransactions: %v", err)
	}

	want := []*api.BankTransaction{
		{ID: "t1", Date: "2024-01-15", Amount: decimal.RequireFromString("-42.50"), Currency: "EUR", Payee: "Grocery Store", Narration: "Weekly shop", BankTransactionCode: "PURCHASE"},
		{ID: "t2", Date: "2024-01-20", Amount: decimal.RequireFromString("2500"), Currency: "EUR", Payee: "Employer", Narration: "salary\njanuary", BankTransactionCode: "PMNT-RCDT"},
		{ID: "t3", Date: "2024-01-21", Amount: decimal.RequireFromString("-20.12"), Currency: "USD @ 1.25 EUR", Payee: "Shop"},
	}
	decimalComparer := cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, got, decimalComparer); diff != "" {
		t.Errorf("transactions mismatch (-want +got):\n%s", diff)
	}
}

func TestToBankTransaction_InvalidAmount(t *testing.T) {
	_, err := ToBankTransaction(Transaction{TransactionID: "t1", TransactionAmount: Amount{Amount: "abc", Currency: "EUR"}})
	if err == nil {
		t.Error("expected error for invalid amount")
	}
}

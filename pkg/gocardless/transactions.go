package gocardless

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/Boelensman1/beancount-support/pkg/api"
)

// homeCurrency is the currency exchange rates are not annotated for.
const homeCurrency = "EUR"

// BookedTransactions returns the booked transactions of an account in
// [from, to] in export form. Pending transactions are left out.
func (c *Client) BookedTransactions(ctx context.Context, accountID string, from, to time.Time) ([]*api.BankTransaction, error) {
	txns, err := c.ListTransactions(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]*api.BankTransaction, 0, len(txns.Booked))
	for _, t := range txns.Booked {
		bt, err := ToBankTransaction(t)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", accountID, err)
		}
		out = append(out, bt)
	}
	return out, nil
}

// ToBankTransaction converts a booked transaction to its export form.
func ToBankTransaction(t Transaction) (*api.BankTransaction, error) {
	amount, err := decimal.NewFromString(t.TransactionAmount.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: invalid amount %q: %w", t.TransactionID, t.TransactionAmount.Amount, err)
	}
	amount = amount.Round(2)

	cur := canonicalCurrency(t.TransactionAmount.Currency)
	if t.CurrencyExchange != nil && cur != homeCurrency {
		rate, err := strconv.ParseFloat(t.CurrencyExchange.ExchangeRate, 64)
		if err != nil || rate == 0 {
			return nil, fmt.Errorf("transaction %s: invalid exchange rate %q", t.TransactionID, t.CurrencyExchange.ExchangeRate)
		}
		cur += fmt.Sprintf(" @ %s %s", strconv.FormatFloat(1/rate, 'f', -1, 64), canonicalCurrency(t.CurrencyExchange.SourceCurrency))
	}

	payee := t.CreditorName
	if amount.IsPositive() {
		payee = t.DebtorName
	}

	narration := strings.Join(t.RemittanceInformationUnstructuredArray, "\n")
	if t.RemittanceInformationUnstructured != nil {
		narration = *t.RemittanceInformationUnstructured
	}

	code := t.ProprietaryBankTransactionCode
	if t.BankTransactionCode != nil {
		code = t.BankTransactionCode
	}

	return &api.BankTransaction{
		ID:                  t.TransactionID,
		Date:                t.BookingDate,
		Amount:              amount,
		Currency:            cur,
		Payee:               deref(payee),
		Narration:           narration,
		BankTransactionCode: deref(code),
	}, nil
}

// canonicalCurrency upper-cases known ISO 4217 codes and keeps anything else
// as received.
func canonicalCurrency(code string) string {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	return unit.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

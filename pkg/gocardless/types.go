package gocardless

import "fmt"

// Institution is a bank supported by the provider.
type Institution struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	BIC       string   `json:"bic"`
	Countries []string `json:"countries"`
}

// Requisition is a user's consent to access the accounts of one institution.
type Requisition struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	InstitutionID string   `json:"institution_id"`
	Agreement     string   `json:"agreement"`
	Reference     string   `json:"reference"`
	Accounts      []string `json:"accounts"`
	Link          string   `json:"link"`
}

// Amount is a decimal string with its currency.
type Amount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// CurrencyExchange describes the conversion of a foreign currency payment.
type CurrencyExchange struct {
	InstructedAmount *Amount `json:"instructedAmount,omitempty"`
	SourceCurrency   string  `json:"sourceCurrency"`
	ExchangeRate     string  `json:"exchangeRate"`
	UnitCurrency     string  `json:"unitCurrency"`
	TargetCurrency   string  `json:"targetCurrency"`
}

// Transaction is one booked or pending account transaction. Optional text
// fields are pointers so that an absent field can be told apart from an
// empty one.
type Transaction struct {
	TransactionID                          string            `json:"transactionId"`
	BookingDate                            string            `json:"bookingDate"`
	ValueDate                              string            `json:"valueDate"`
	TransactionAmount                      Amount            `json:"transactionAmount"`
	CreditorName                           *string           `json:"creditorName,omitempty"`
	DebtorName                             *string           `json:"debtorName,omitempty"`
	RemittanceInformationUnstructured      *string           `json:"remittanceInformationUnstructured,omitempty"`
	RemittanceInformationUnstructuredArray []string          `json:"remittanceInformationUnstructuredArray,omitempty"`
	BankTransactionCode                    *string           `json:"bankTransactionCode,omitempty"`
	ProprietaryBankTransactionCode         *string           `json:"proprietaryBankTransactionCode,omitempty"`
	CurrencyExchange                       *CurrencyExchange `json:"currencyExchange,omitempty"`
}

// Transactions are the transactions of an account split by status.
type Transactions struct {
	Booked  []Transaction `json:"booked"`
	Pending []Transaction `json:"pending"`
}

// Balance is an account balance of a given type.
type Balance struct {
	BalanceAmount Amount `json:"balanceAmount"`
	BalanceType   string `json:"balanceType"`
	ReferenceDate string `json:"referenceDate"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gocardless: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Package gocardless is a client for the GoCardless Bank Account Data API.
package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://bankaccountdata.gocardless.com/api/v2"

// Config holds the client settings.
type Config struct {
	SecretID  string
	SecretKey string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// HTTPClient is the underlying client; defaults to one with a 30s timeout.
	HTTPClient *http.Client
	// Attempts is the number of tries for 429 and 5xx responses (default 3).
	Attempts uint
	// RetryDelay is the initial back-off delay (default 1s).
	RetryDelay time.Duration
}

// Client talks to the API. Requests other than the token exchange carry a
// bearer token obtained and renewed by an oauth2.TokenSource.
type Client struct {
	cfg    Config
	raw    *http.Client
	authed *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, errors.New("gocardless: secret id and secret key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("gocardless: invalid base url: %w", err)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		raw:    cfg.HTTPClient,
		logger: logger.With("component", "gocardless"),
		now:    time.Now,
	}

	ts := oauth2.ReuseTokenSource(nil, &tokenSource{c: c})
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, cfg.HTTPClient)
	c.authed = oauth2.NewClient(ctx, ts)
	c.authed.Timeout = cfg.HTTPClient.Timeout

	return c, nil
}

// ListInstitutions returns the banks available in a country (ISO 3166 code).
func (c *Client) ListInstitutions(ctx context.Context, country string) ([]Institution, error) {
	var out []Institution
	q := url.Values{"country": {country}}
	if err := c.do(ctx, c.authed, http.MethodGet, "institutions/", q, nil, &out); err != nil {
		return nil, fmt.Errorf("listing institutions: %w", err)
	}
	return out, nil
}

// CreateRequisition starts the consent flow for an institution. The user
// must open the returned link; afterwards they are sent to redirect.
func (c *Client) CreateRequisition(ctx context.Context, institutionID, redirect string) (*Requisition, error) {
	body := map[string]string{
		"redirect":       redirect,
		"institution_id": institutionID,
		"reference":      uuid.NewString(),
	}
	var out Requisition
	if err := c.do(ctx, c.authed, http.MethodPost, "requisitions/", nil, body, &out); err != nil {
		return nil, fmt.Errorf("creating requisition: %w", err)
	}
	return &out, nil
}

// GetRequisition returns a requisition, including its linked accounts.
func (c *Client) GetRequisition(ctx context.Context, requisitionID string) (*Requisition, error) {
	var out Requisition
	path := "requisitions/" + url.PathEscape(requisitionID) + "/"
	if err := c.do(ctx, c.authed, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("getting requisition %s: %w", requisitionID, err)
	}
	return &out, nil
}

// ListAccounts returns the account ids linked to a requisition.
func (c *Client) ListAccounts(ctx context.Context, requisitionID string) ([]string, error) {
	req, err := c.GetRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	return req.Accounts, nil
}

// ListTransactions returns the transactions of an account booked in [from, to].
func (c *Client) ListTransactions(ctx context.Context, accountID string, from, to time.Time) (*Transactions, error) {
	var out struct {
		Transactions Transactions `json:"transactions"`
	}
	q := url.Values{
		"date_from": {from.Format(time.DateOnly)},
		"date_to":   {to.Format(time.DateOnly)},
	}
	path := "accounts/" + url.PathEscape(accountID) + "/transactions/"
	if err := c.do(ctx, c.authed, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, fmt.Errorf("listing transactions of %s: %w", accountID, err)
	}
	return &out.Transactions, nil
}

// Balances returns the balances of an account.
func (c *Client) Balances(ctx context.Context, accountID string) ([]Balance, error) {
	var out struct {
		Balances []Balance `json:"balances"`
	}
	path := "accounts/" + url.PathEscape(accountID) + "/balances/"
	if err := c.do(ctx, c.authed, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("getting balances of %s: %w", accountID, err)
	}
	return out.Balances, nil
}

// do sends a JSON request, retrying 429 and 5xx responses with exponential
// back-off, and decodes the response into out.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, query url.Values, body, out any) error {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	return retry.Do(
		func() error {
			return c.send(ctx, hc, method, endpoint, payload, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.Attempts),
		retry.Delay(c.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.Temporary()
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying request", "method", method, "path", path, "attempt", n+1, "error", err)
		}),
	)
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, endpoint string, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

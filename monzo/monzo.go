// Package monzo is the HTTP gateway to the Monzo API.
//
// The client only knows about the endpoints the balances CLI needs:
// whoami, logout, accounts, balance and pots. It expects an authorized
// http.Client, typically one built by the auth package on top of
// "golang.org/x/oauth2", which adds the "Authorization: Bearer <token>"
// header to every request.
//
// Every failure, whether the request never got a response, the status was
// not 2xx or the body was not the JSON we expected, is reported as an
// *APIError.
package monzo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// BaseURL is the production base URL for the Monzo API.
	BaseURL = "https://api.monzo.com"
	// AuthURL is where users approve access for an OAuth client.
	AuthURL = "https://auth.monzo.com/"
	// TokenURL exchanges authorization codes and refresh tokens.
	TokenURL = "https://api.monzo.com/oauth2/token"
)

//####################################################################
//## 1. CLIENT AND CORE LOGIC
//####################################################################

// Client is the Monzo API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// APIError is the single shape of every gateway failure.
//
// StatusCode is 0 when no response was received; Err then holds the
// transport error. For 2xx responses that could not be used, StatusCode is
// the real status and Err says what was wrong with the body.
type APIError struct {
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("monzo: request failed, no status code returned: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("monzo: API error (status %d): %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("monzo: API error (status %d): %s", e.StatusCode, e.Body)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// NewClient creates a new Monzo API client. The httpClient must add the
// bearer token to requests.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    BaseURL,
	}
}

// SetBaseURL overrides the default base URL, e.g. to point at a mock server.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// rawResponse is the undecoded 2xx reply, kept for error reporting.
type rawResponse struct {
	StatusCode int
	Body       []byte
}

// doRequest is the central helper for making API requests.
// The JSON reply is decoded into responseData when it is not nil.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, responseData interface{}) (*rawResponse, error) {
	fullURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, &APIError{Err: err}
	}
	if query != nil {
		fullURL.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), nil)
	if err != nil {
		return nil, &APIError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Err: fmt.Errorf("failed to execute request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	if responseData != nil {
		if err := json.Unmarshal(respBody, responseData); err != nil {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Body:       string(respBody),
				Err:        fmt.Errorf("failed to decode response body: %w", err),
			}
		}
	}
	return &rawResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// missingField reports a 2xx response that lacks a required key.
func missingField(field string, raw *rawResponse) error {
	return &APIError{
		StatusCode: raw.StatusCode,
		Body:       string(raw.Body),
		Err:        fmt.Errorf("response has no %q field", field),
	}
}

//####################################################################
//## 2. API DATA MODELS
//####################################################################

// WhoAmIResponse defines the response for the /ping/whoami endpoint.
type WhoAmIResponse struct {
	// Authenticated is true if the access token is valid.
	Authenticated bool `json:"authenticated"`
	// ClientID is the ID of the OAuth client.
	ClientID string `json:"client_id"`
	// UserID is the ID of the authenticated user.
	UserID string `json:"user_id"`
}

// Account represents a Monzo account.
type Account struct {
	// ID is the unique identifier for the account.
	ID string `json:"id"`
	// Description is the user-defined description of the account.
	Description string `json:"description"`
	// Created is the timestamp when the account was created.
	Created time.Time `json:"created"`
	// Type is the type of account, e.g., "uk_retail", "uk_retail_joint".
	Type string `json:"type,omitempty"`
	// Currency is the ISO 4217 currency code of the account.
	Currency string `json:"currency,omitempty"`
	// Closed is true once the account has been closed.
	Closed bool `json:"closed,omitempty"`
}

type listAccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// Balance represents the balance of a specific account.
type Balance struct {
	// Balance is the current available balance in minor units (e.g., pennies).
	Balance int64 `json:"balance"`
	// TotalBalance is the balance including all pots in minor units.
	TotalBalance int64 `json:"total_balance"`
	// Currency is the ISO 4217 currency code (e.g., "GBP").
	Currency string `json:"currency"`
	// SpendToday is the amount spent today in minor units.
	SpendToday int64 `json:"spend_today"`
}

// balanceResponse uses pointers so a missing key can be told apart from 0.
type balanceResponse struct {
	Balance      *int64 `json:"balance"`
	TotalBalance *int64 `json:"total_balance"`
	Currency     string `json:"currency"`
	SpendToday   int64  `json:"spend_today"`
}

// Pot represents a Monzo pot.
type Pot struct {
	// ID is the unique identifier for the pot.
	ID string `json:"id"`
	// Name is the user-defined name of the pot.
	Name string `json:"name"`
	// Style is the visual style of the pot (e.g., "beach_ball").
	Style string `json:"style"`
	// Balance is the current balance of the pot in minor units.
	Balance int64 `json:"balance"`
	// Currency is the ISO 4217 currency code.
	Currency string `json:"currency"`
	// Created is the timestamp when the pot was created.
	Created time.Time `json:"created"`
	// Updated is the timestamp when the pot was last updated.
	Updated time.Time `json:"updated"`
	// Deleted is true if the pot has been deleted.
	Deleted bool `json:"deleted"`
}

type listPotsResponse struct {
	Pots []Pot `json:"pots"`
}

//####################################################################
//## 3. API ENDPOINT METHODS
//####################################################################

// --- Authentication ---

// WhoAmI returns information about the access token in use.
func (c *Client) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	var resp WhoAmIResponse
	if _, err := c.doRequest(ctx, http.MethodGet, "/ping/whoami", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout invalidates the current access token.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/oauth2/logout", nil, nil)
	return err
}

// --- Accounts ---

// ListAccounts returns a list of accounts owned by the user.
// accountType can be used to filter ("uk_retail", "uk_retail_joint").
// Pass an empty string to list all accounts.
func (c *Client) ListAccounts(ctx context.Context, accountType string) ([]Account, error) {
	query := url.Values{}
	if accountType != "" {
		query.Set("account_type", accountType)
	}

	var resp listAccountsResponse
	raw, err := c.doRequest(ctx, http.MethodGet, "/accounts", query, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Accounts == nil {
		return nil, missingField("accounts", raw)
	}
	return resp.Accounts, nil
}

// --- Balance ---

// GetBalance returns the balance for a specific account.
func (c *Client) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	query := url.Values{}
	query.Set("account_id", accountID)

	var resp balanceResponse
	raw, err := c.doRequest(ctx, http.MethodGet, "/balance", query, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Balance == nil {
		return nil, missingField("balance", raw)
	}
	ret := &Balance{
		Balance:      *resp.Balance,
		TotalBalance: *resp.Balance,
		Currency:     resp.Currency,
		SpendToday:   resp.SpendToday,
	}
	if resp.TotalBalance != nil {
		ret.TotalBalance = *resp.TotalBalance
	}
	return ret, nil
}

// --- Pots ---

// ListPots returns a list of pots for a specific account.
func (c *Client) ListPots(ctx context.Context, accountID string) ([]Pot, error) {
	query := url.Values{}
	query.Set("current_account_id", accountID)

	var resp listPotsResponse
	raw, err := c.doRequest(ctx, http.MethodGet, "/pots", query, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Pots == nil {
		return nil, missingField("pots", raw)
	}
	return resp.Pots, nil
}

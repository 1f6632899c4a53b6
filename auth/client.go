// Package auth drives Monzo's OAuth2 authorization-code grant for a single
// user on the command line.
//
// A Client owns the token set: it loads it from the config store, obtains a
// new one through the browser flow, refreshes it and clears it on log out.
// Every successful exchange or refresh is written back to the store before
// the call returns.
//
// The Client is also an oauth2.TokenSource, so the *http.Client returned by
// HTTPClient always sends the current access token, including one obtained
// by a later refresh.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cli/browser"
	"github.com/google/uuid"
	"github.com/petermakeswebsites/monzo-balances/config"
	"github.com/petermakeswebsites/monzo-balances/monzo"
	"golang.org/x/oauth2"
)

// Endpoints are the Monzo URLs the client talks to.
type Endpoints struct {
	AuthURL  string
	TokenURL string
	APIURL   string
}

// DefaultEndpoints are the production Monzo endpoints.
var DefaultEndpoints = Endpoints{
	AuthURL:  monzo.AuthURL,
	TokenURL: monzo.TokenURL,
	APIURL:   monzo.BaseURL,
}

// EndpointsFromStore returns DefaultEndpoints with any api_url, auth_url or
// token_url override from store applied.
func EndpointsFromStore(store config.Store) Endpoints {
	ret := DefaultEndpoints
	if v, ok := store.Get(config.KeyAuthURL); ok {
		ret.AuthURL = v
	}
	if v, ok := store.Get(config.KeyTokenURL); ok {
		ret.TokenURL = v
	}
	if v, ok := store.Get(config.KeyAPIURL); ok {
		ret.APIURL = v
	}
	return ret
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoints overrides DefaultEndpoints.
func WithEndpoints(endpoints Endpoints) Option {
	return func(c *Client) { c.endpoints = endpoints }
}

// WithHTTPClient sets the client used for token calls and as the base of
// the authorized API client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.base = httpClient }
}

// WithOpener replaces the browser launcher. Pass nil to only print the URL.
func WithOpener(open func(url string) error) Option {
	return func(c *Client) { c.open = open }
}

// WithPrompter sets the console used for instructions and confirmations.
// The default reads os.Stdin and writes os.Stdout.
func WithPrompter(prompter *Prompter) Option {
	return func(c *Client) { c.prompter = prompter }
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPolicy sets the refresh policy used by Ensure.
func WithPolicy(policy Policy) Option {
	return func(c *Client) { c.policy = policy }
}

// Client is the OAuth2 client for one Monzo user.
type Client struct {
	store     config.Store
	creds     config.Credentials
	endpoints Endpoints
	base      *http.Client
	open      func(url string) error
	prompter  *Prompter
	logger    *slog.Logger
	policy    Policy
	now       func() time.Time
	newState  func() string

	api *monzo.Client

	mu     sync.Mutex
	tokens *TokenSet
	state  State
}

// New creates a client and loads any token set already in store.
func New(creds *config.Credentials, store config.Store, options ...Option) *Client {
	c := &Client{
		store:     store,
		creds:     *creds,
		endpoints: DefaultEndpoints,
		open:      browser.OpenURL,
		logger:    slog.Default(),
		policy:    DefaultPolicy,
		now:       time.Now,
		newState:  uuid.NewString,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.prompter == nil {
		c.prompter = NewPrompter(os.Stdin, os.Stdout)
	}

	c.api = monzo.NewClient(c.HTTPClient())
	c.api.SetBaseURL(c.endpoints.APIURL)

	if ts, ok := LoadTokenSet(store); ok {
		c.tokens = ts
		c.state = Authenticated
		if ts.Expired(c.now()) {
			c.state = Expired
		}
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != state {
		c.logger.Debug("auth state changed", "from", c.state, "to", state)
	}
	c.state = state
}

// TokenSet returns a copy of the current token set, or nil.
func (c *Client) TokenSet() *TokenSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		return nil
	}
	ret := *c.tokens
	return &ret
}

// API returns the Monzo client authorized by this Client's tokens.
func (c *Client) API() *monzo.Client { return c.api }

// Token implements oauth2.TokenSource with the current access token. It
// never refreshes; refreshing is RefreshAccessToken's job.
func (c *Client) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		return nil, ErrNotAuthenticated
	}
	return c.tokens.oauth2Token(), nil
}

// HTTPClient returns an *http.Client that adds the bearer token to every
// request.
func (c *Client) HTTPClient() *http.Client {
	var transport http.RoundTripper
	if c.base != nil {
		transport = c.base.Transport
	}
	return &http.Client{Transport: &oauth2.Transport{Source: c, Base: transport}}
}

func (c *Client) oauth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.endpoints.AuthURL,
			TokenURL:  c.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// oauth2Context makes golang.org/x/oauth2 use our base client for token calls.
func (c *Client) oauth2Context(ctx context.Context) context.Context {
	if c.base == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.base)
}

func (c *Client) persist(ts *TokenSet) error {
	if err := SaveTokenSet(c.store, ts); err != nil {
		return fmt.Errorf("failed to persist tokens: %w", err)
	}
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
	return nil
}

// StartAuth runs the authorization-code grant: it sends the user to Monzo,
// waits for the callback on receiver, checks the state nonce, exchanges the
// code and persists the new token set. On any failure nothing is persisted.
func (c *Client) StartAuth(ctx context.Context, receiver CallbackReceiver) error {
	redirectURL := c.creds.RedirectURI
	if r, ok := receiver.(redirector); ok && r.RedirectURL() != "" {
		redirectURL = r.RedirectURL()
	}
	conf := c.oauth2Config(redirectURL)
	state := c.newState()
	authURL := conf.AuthCodeURL(state)

	c.prompter.Printf("Open this URL in your browser to log in to Monzo:\n\n%s\n\n", authURL)
	if c.open != nil {
		if err := c.open(authURL); err != nil {
			c.logger.Warn("could not open browser", "error", err)
		}
	}
	c.logger.Info("waiting for authorization callback", "redirect_uri", redirectURL)

	params, err := receiver.Receive(ctx)
	if err != nil {
		return &AuthError{Op: "authorize", Err: err}
	}
	if e := params.Get("error"); e != "" {
		return &AuthError{Op: "authorize", Err: fmt.Errorf("provider returned %s: %s", e, params.Get("error_description"))}
	}
	if params.Get("state") != state {
		return &AuthError{Op: "authorize", Err: ErrStateMismatch}
	}
	code := params.Get("code")
	if code == "" {
		return &AuthError{Op: "authorize", Err: ErrMissingCode}
	}

	tok, err := conf.Exchange(c.oauth2Context(ctx), code)
	if err != nil {
		return &AuthError{Op: "exchange", Err: err}
	}
	ts, err := tokenSetFrom(tok, "")
	if err != nil {
		return &AuthError{Op: "exchange", Err: err}
	}
	if err := c.persist(ts); err != nil {
		return err
	}
	c.setState(AwaitingApproval)
	c.logger.Info("authorization code exchanged", "user_id", ts.UserID)
	return nil
}

// AwaitApproval blocks until the user confirms they allowed access in the
// Monzo app. Monzo withholds account data until they do.
func (c *Client) AwaitApproval(ctx context.Context) error {
	c.prompter.Printf("Please open your Monzo app, tap \"Allow access to your data\" and follow the instructions.\n")
	if _, err := c.prompter.Ask("Once approved, press [Enter] to continue: "); err != nil {
		return fmt.Errorf("waiting for approval: %w", err)
	}
	c.setState(Authenticated)
	return nil
}

// TestAPICall checks the current access token against /ping/whoami. It
// reports failure through its return values only.
func (c *Client) TestAPICall(ctx context.Context) (bool, error) {
	if c.TokenSet() == nil {
		return false, ErrNotAuthenticated
	}
	who, err := c.api.WhoAmI(ctx)
	if err != nil {
		if monzo.IsUnauthorized(err) && c.State() == Authenticated {
			c.setState(Expired)
		}
		return false, err
	}
	if !who.Authenticated {
		return false, ErrNotAuthenticated
	}
	if err := c.rememberUserID(who.UserID); err != nil {
		c.logger.Warn("failed to store user id", "error", err)
	}
	if c.State() == Expired {
		c.setState(Authenticated)
	}
	return true, nil
}

func (c *Client) rememberUserID(userID string) error {
	ts := c.TokenSet()
	if ts == nil || userID == "" || ts.UserID == userID {
		return nil
	}
	ts.UserID = userID
	return c.persist(ts)
}

// RefreshAccessToken trades the refresh token for a new token set and
// persists it. On failure the stored set is left as it was.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	current := c.TokenSet()
	if current == nil || current.RefreshToken == "" {
		return &AuthError{Op: "refresh", Err: ErrNoRefreshToken}
	}
	conf := c.oauth2Config(c.creds.RedirectURI)
	// An empty access token makes the source refresh immediately.
	src := conf.TokenSource(c.oauth2Context(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return &AuthError{Op: "refresh", Err: err}
	}
	ts, err := tokenSetFrom(tok, current.UserID)
	if err != nil {
		return &AuthError{Op: "refresh", Err: err}
	}
	if err := c.persist(ts); err != nil {
		return err
	}
	c.setState(Authenticated)
	c.logger.Info("access token refreshed")
	return nil
}

// LogOut revokes the access token and clears the stored token set.
// Revocation is best effort; only a failure to clear the store is returned.
func (c *Client) LogOut(ctx context.Context) error {
	if c.TokenSet() != nil {
		if err := c.api.Logout(ctx); err != nil {
			c.logger.Warn("token revocation failed", "error", err)
		}
	}
	if err := ClearTokenSet(c.store); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	c.mu.Lock()
	c.tokens = nil
	c.mu.Unlock()
	c.setState(LoggedOut)
	c.logger.Info("logged out")
	return nil
}

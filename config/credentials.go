package config

import (
	"errors"

	"github.com/kelseyhightower/envconfig"
)

// DefaultRedirectURI is used when neither the environment nor the store
// provide one. It must match the redirect URI registered with the client.
const DefaultRedirectURI = "http://localhost:8080/auth/callback"

// Credentials identify this OAuth client to Monzo.
type Credentials struct {
	ClientID     string `envconfig:"CLIENT_ID"`
	ClientSecret string `envconfig:"CLIENT_SECRET"`
	RedirectURI  string `envconfig:"REDIRECT_URI"`
}

// LoadCredentials reads MONZO_CLIENT_ID, MONZO_CLIENT_SECRET and
// MONZO_REDIRECT_URI, falling back to the values kept in store.
func LoadCredentials(store Store) (*Credentials, error) {
	var creds Credentials
	if err := envconfig.Process("monzo", &creds); err != nil {
		return nil, err
	}
	fallback(&creds.ClientID, store, KeyClientID)
	fallback(&creds.ClientSecret, store, KeyClientSecret)
	fallback(&creds.RedirectURI, store, KeyRedirectURI)
	if creds.RedirectURI == "" {
		creds.RedirectURI = DefaultRedirectURI
	}

	var errs []error
	if creds.ClientID == "" {
		errs = append(errs, errors.New("client id is not configured (MONZO_CLIENT_ID or client_id)"))
	}
	if creds.ClientSecret == "" {
		errs = append(errs, errors.New("client secret is not configured (MONZO_CLIENT_SECRET or client_secret)"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &creds, nil
}

func fallback(dst *string, store Store, key string) {
	if *dst != "" {
		return
	}
	if v, ok := store.Get(key); ok {
		*dst = v
	}
}

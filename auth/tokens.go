package auth

import (
	"time"

	"github.com/petermakeswebsites/monzo-balances/config"
	"golang.org/x/oauth2"
)

// TokenSet is the persisted result of a code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	// Expiry is zero when the provider did not say.
	Expiry time.Time
}

// Expired reports whether the access token is known to be past its expiry.
func (t *TokenSet) Expired(now time.Time) bool {
	return !t.Expiry.IsZero() && !now.Before(t.Expiry)
}

func (t *TokenSet) oauth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       t.Expiry,
	}
}

// tokenSetFrom validates a token response. userID is used when the
// response carries none.
func tokenSetFrom(tok *oauth2.Token, userID string) (*TokenSet, error) {
	if tok == nil || tok.AccessToken == "" || tok.RefreshToken == "" {
		return nil, ErrIncompleteToken
	}
	if id, ok := tok.Extra("user_id").(string); ok && id != "" {
		userID = id
	}
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		UserID:       userID,
		Expiry:       tok.Expiry,
	}, nil
}

// LoadTokenSet returns the stored set. A partial set (any of access token,
// refresh token or user id missing) counts as no set at all.
func LoadTokenSet(store config.Store) (*TokenSet, bool) {
	access, okAccess := store.Get(config.KeyAccessToken)
	refresh, okRefresh := store.Get(config.KeyRefreshToken)
	userID, okUser := store.Get(config.KeyUserID)
	if !okAccess || !okRefresh || !okUser {
		return nil, false
	}
	ts := &TokenSet{AccessToken: access, RefreshToken: refresh, UserID: userID}
	if v, ok := store.Get(config.KeyTokenExpiry); ok {
		if expiry, err := time.Parse(time.RFC3339, v); err == nil {
			ts.Expiry = expiry
		}
	}
	return ts, true
}

// SaveTokenSet writes the whole set in one store operation. It refuses a
// set without both tokens so the store never holds only one of them.
func SaveTokenSet(store config.Store, ts *TokenSet) error {
	if ts == nil || ts.AccessToken == "" || ts.RefreshToken == "" {
		return ErrIncompleteToken
	}
	expiry := ""
	if !ts.Expiry.IsZero() {
		expiry = ts.Expiry.UTC().Format(time.RFC3339)
	}
	return store.SetAll(map[string]string{
		config.KeyAccessToken:  ts.AccessToken,
		config.KeyRefreshToken: ts.RefreshToken,
		config.KeyUserID:       ts.UserID,
		config.KeyTokenExpiry:  expiry,
	})
}

// ClearTokenSet removes every token key from the store.
func ClearTokenSet(store config.Store) error {
	return store.SetAll(map[string]string{
		config.KeyAccessToken:  "",
		config.KeyRefreshToken: "",
		config.KeyUserID:       "",
		config.KeyTokenExpiry:  "",
	})
}

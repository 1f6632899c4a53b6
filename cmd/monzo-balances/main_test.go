package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/petermakeswebsites/monzo-balances/auth"
	"github.com/petermakeswebsites/monzo-balances/balances"
	"github.com/petermakeswebsites/monzo-balances/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMonzo struct {
	server      *httptest.Server
	accounts    string
	logoutCalls atomic.Int32
}

func newMockMonzo(t *testing.T, accounts string) *mockMonzo {
	t.Helper()
	m := &mockMonzo{accounts: accounts}
	mux := http.NewServeMux()
	authorized := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer A" {
				writeJSON(w, http.StatusUnauthorized, `{"code": "unauthorized"}`)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"access_token": "A", "refresh_token": "R"}`)
	})
	mux.HandleFunc("/ping/whoami", authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"authenticated": true, "client_id": "oauth2client_1", "user_id": "user_1"}`)
	}))
	mux.HandleFunc("/accounts", authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.accounts)
	}))
	mux.HandleFunc("/balance", authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"balance": 100}`)
	}))
	mux.HandleFunc("/pots", authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"pots": []}`)
	}))
	mux.HandleFunc("/oauth2/logout", authorized(func(w http.ResponseWriter, r *http.Request) {
		m.logoutCalls.Add(1)
		writeJSON(w, http.StatusOK, `{}`)
	}))
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

// followRedirect stands in for the browser and Monzo's consent page.
func followRedirect(authURL string) error {
	u, err := url.Parse(authURL)
	if err != nil {
		return err
	}
	q := u.Query()
	resp, err := http.Get(q.Get("redirect_uri") + "?code=code-1&state=" + url.QueryEscape(q.Get("state")))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func writeConfig(t *testing.T, m *mockMonzo) string {
	t.Helper()
	for _, key := range []string{"MONZO_CLIENT_ID", "MONZO_CLIENT_SECRET", "MONZO_REDIRECT_URI"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, err := config.OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetAll(map[string]string{
		config.KeyClientID:     "oauth2client_1",
		config.KeyClientSecret: "mnzconf.secret",
		config.KeyRedirectURI:  "http://127.0.0.1:0/auth/callback",
		config.KeyAuthURL:      m.server.URL + "/auth",
		config.KeyTokenURL:     m.server.URL + "/oauth2/token",
		config.KeyAPIURL:       m.server.URL,
	}))
	return path
}

// pasteRedirect stands in for a user who copies the redirected URL out of
// the browser and then confirms the approval prompt.
func pasteRedirect(t *testing.T) (io.Reader, func(string) error) {
	t.Helper()
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	open := func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		go fmt.Fprintf(pw, "%s?code=code-1&state=%s\n\n", q.Get("redirect_uri"), url.QueryEscape(q.Get("state")))
		return nil
	}
	return pr, open
}

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runAppWith(t, strings.NewReader("\n"), followRedirect, args...)
}

func runAppWith(t *testing.T, stdin io.Reader, open func(string) error, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{
		stdin:  stdin,
		stdout: &stdout,
		stderr: &stderr,
		open:   open,
	}
	err := a.run(context.Background(), args)
	return stdout.String(), stderr.String(), err
}

const personalAndJoint = `{"accounts": [
	{"id": "acc_personal", "type": "uk_retail", "currency": "GBP"},
	{"id": "acc_joint", "type": "uk_retail_joint", "currency": "GBP"}
]}`

func TestRun_EndToEnd(t *testing.T) {
	m := newMockMonzo(t, personalAndJoint)
	path := writeConfig(t, m)

	stdout, _, err := runApp(t, "--config", path)

	require.NoError(t, err)
	assert.Contains(t, stdout, "Personal account acc_personal")
	assert.Contains(t, stdout, "Joint account acc_joint")
	assert.Equal(t, 4, strings.Count(stdout, "£1.00"), "balance and total balance for both accounts")
	assert.Equal(t, 2, strings.Count(stdout, "no pots"))
	assert.Contains(t, stdout, "Total across accounts: £2.00")
	assert.Equal(t, int32(1), m.logoutCalls.Load())

	store, err := config.OpenFileStore(path)
	require.NoError(t, err)
	_, ok := auth.LoadTokenSet(store)
	assert.False(t, ok, "tokens are cleared after logging out")
	_, ok = store.Get(config.KeyClientID)
	assert.True(t, ok)
}

func TestRun_KeepSessionReusesTokens(t *testing.T) {
	m := newMockMonzo(t, personalAndJoint)
	path := writeConfig(t, m)

	_, _, err := runApp(t, "--config", path, "--keep-session")
	require.NoError(t, err)
	store, err := config.OpenFileStore(path)
	require.NoError(t, err)
	ts, ok := auth.LoadTokenSet(store)
	require.True(t, ok)
	assert.Equal(t, "A", ts.AccessToken)
	assert.Equal(t, "R", ts.RefreshToken)
	assert.Equal(t, "user_1", ts.UserID)

	// Second run must not need the browser.
	var stdout bytes.Buffer
	a := &app{
		stdin:  strings.NewReader(""),
		stdout: &stdout,
		stderr: &bytes.Buffer{},
		open: func(string) error {
			t.Fatal("browser must not be opened when stored tokens work")
			return nil
		},
	}
	require.NoError(t, a.run(context.Background(), []string{"--config", path}))
	assert.Contains(t, stdout.String(), "acc_joint")
	assert.Equal(t, int32(1), m.logoutCalls.Load())
}

func TestRun_OnlyJointAccountFails(t *testing.T) {
	m := newMockMonzo(t, `{"accounts": [{"id": "acc_joint", "type": "uk_retail_joint"}]}`)
	path := writeConfig(t, m)

	_, _, err := runApp(t, "--config", path)

	var validationErr *balances.ValidationError
	require.True(t, errors.As(err, &validationErr), "expected *ValidationError, got %v", err)
	assert.Contains(t, err.Error(), "personal account")
}

func TestRun_OnlyPersonalAccountWarns(t *testing.T) {
	m := newMockMonzo(t, `{"accounts": [{"id": "acc_personal", "type": "uk_retail"}]}`)
	path := writeConfig(t, m)

	stdout, stderr, err := runApp(t, "--config", path)

	require.NoError(t, err)
	assert.Contains(t, stdout, "acc_personal")
	assert.Contains(t, stderr, "could not find a joint account")
}

func TestRun_MissingCredentials(t *testing.T) {
	for _, key := range []string{"MONZO_CLIENT_ID", "MONZO_CLIENT_SECRET", "MONZO_REDIRECT_URI"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, _, err := runApp(t, "--config", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id")
}

func TestRun_Paste(t *testing.T) {
	m := newMockMonzo(t, personalAndJoint)
	path := writeConfig(t, m)
	stdin, open := pasteRedirect(t)

	stdout, _, err := runAppWith(t, stdin, open, "--config", path, "--paste")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Paste the full URL you were redirected to")
	assert.Contains(t, stdout, "Personal account acc_personal")
	assert.Equal(t, int32(1), m.logoutCalls.Load())
}

func TestRun_FallsBackToPasteWhenRedirectPortIsTaken(t *testing.T) {
	m := newMockMonzo(t, personalAndJoint)
	path := writeConfig(t, m)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	store, err := config.OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(config.KeyRedirectURI, "http://"+ln.Addr().String()+"/auth/callback"))
	stdin, open := pasteRedirect(t)

	stdout, stderr, err := runAppWith(t, stdin, open, "--config", path)

	require.NoError(t, err)
	assert.Contains(t, stderr, "cannot listen on the redirect URI")
	assert.Contains(t, stdout, "Paste the full URL you were redirected to")
	assert.Contains(t, stdout, "Joint account acc_joint")
}

func TestRun_FlagErrors(t *testing.T) {
	stdout, stderr, err := runApp(t, "--no-such-flag")

	var flagsErr *flags.Error
	require.ErrorAs(t, err, &flagsErr)
	assert.Equal(t, flags.ErrUnknownFlag, flagsErr.Type)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)

	_, _, err = runApp(t, "--help")

	require.ErrorAs(t, err, &flagsErr)
	assert.Equal(t, flags.ErrHelp, flagsErr.Type)
	assert.Contains(t, flagsErr.Message, "--keep-session")
}

package auth

import (
	"testing"
	"time"

	"github.com/petermakeswebsites/monzo-balances/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func bothOrNeither(t *testing.T, store config.Store) {
	t.Helper()
	_, hasAccess := store.Get(config.KeyAccessToken)
	_, hasRefresh := store.Get(config.KeyRefreshToken)
	assert.Equal(t, hasAccess, hasRefresh, "access and refresh tokens must be stored together")
}

func TestTokenSet_PersistenceKeepsBothOrNeither(t *testing.T) {
	expiry := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	testCases := []struct {
		description string
		seed        map[string]string
		op          func(store config.Store) error
		expectErr   bool
		expectSet   bool
	}{
		{
			description: "complete set is saved",
			op: func(store config.Store) error {
				return SaveTokenSet(store, &TokenSet{AccessToken: "A", RefreshToken: "R", UserID: "user_1", Expiry: expiry})
			},
			expectSet: true,
		},
		{
			description: "set without refresh token is rejected",
			op: func(store config.Store) error {
				return SaveTokenSet(store, &TokenSet{AccessToken: "A", UserID: "user_1"})
			},
			expectErr: true,
		},
		{
			description: "set without access token leaves previous set",
			seed:        map[string]string{config.KeyAccessToken: "A0", config.KeyRefreshToken: "R0", config.KeyUserID: "user_1"},
			op: func(store config.Store) error {
				return SaveTokenSet(store, &TokenSet{RefreshToken: "R"})
			},
			expectErr: true,
			expectSet: true,
		},
		{
			description: "clear removes both",
			seed:        map[string]string{config.KeyAccessToken: "A0", config.KeyRefreshToken: "R0", config.KeyUserID: "user_1"},
			op:          ClearTokenSet,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			store := config.NewMemoryStore(tc.seed)
			err := tc.op(store)
			if tc.expectErr {
				assert.ErrorIs(t, err, ErrIncompleteToken)
			} else {
				require.NoError(t, err)
			}
			bothOrNeither(t, store)
			_, ok := LoadTokenSet(store)
			assert.Equal(t, tc.expectSet, ok)
		})
	}
}

func TestLoadTokenSet(t *testing.T) {
	store := config.NewMemoryStore(map[string]string{
		config.KeyAccessToken:  "A",
		config.KeyRefreshToken: "R",
		config.KeyUserID:       "user_1",
		config.KeyTokenExpiry:  "2026-01-02T03:04:05Z",
	})

	ts, ok := LoadTokenSet(store)

	require.True(t, ok)
	assert.Equal(t, "A", ts.AccessToken)
	assert.Equal(t, "R", ts.RefreshToken)
	assert.Equal(t, "user_1", ts.UserID)
	assert.True(t, ts.Expiry.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.True(t, ts.Expired(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)))
	assert.False(t, ts.Expired(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLoadTokenSet_PartialIsAbsent(t *testing.T) {
	store := config.NewMemoryStore(map[string]string{
		config.KeyAccessToken: "A",
		config.KeyUserID:      "user_1",
	})

	_, ok := LoadTokenSet(store)

	assert.False(t, ok)
}

func TestTokenSetFrom(t *testing.T) {
	tok := (&oauth2.Token{AccessToken: "A", RefreshToken: "R"}).WithExtra(map[string]interface{}{"user_id": "user_2"})

	ts, err := tokenSetFrom(tok, "user_1")

	require.NoError(t, err)
	assert.Equal(t, "user_2", ts.UserID)
	assert.True(t, ts.Expiry.IsZero())

	ts, err = tokenSetFrom(&oauth2.Token{AccessToken: "A", RefreshToken: "R"}, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", ts.UserID)

	_, err = tokenSetFrom(&oauth2.Token{AccessToken: "A"}, "user_1")
	assert.ErrorIs(t, err, ErrIncompleteToken)
}

package directory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	store, err := NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	return store
}

func TestSessionStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Auth()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetAuth(Auth{
		AccessToken: "tok-1",
		User:        UserInfo{ID: "u-1", Email: "c@guidexpert.example"},
	}))
	require.NoError(t, store.SetProfile(Profile{DisplayName: "Counsellor", Slug: "counsellor"}))

	auth, ok, err := store.Auth()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-1", auth.AccessToken)
	assert.Equal(t, "u-1", auth.User.ID)

	profile, ok, err := store.Profile()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "counsellor", profile.Slug)
}

func TestSessionStoreTokenRotation(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetAuth(Auth{AccessToken: "before"}))
	token, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "before", token)

	require.NoError(t, store.SetAuth(Auth{AccessToken: "after"}))
	token, err = store.Token()
	require.NoError(t, err)
	assert.Equal(t, "after", token, "rotation takes effect on the next read")
}

func TestSessionStoreClear(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SetAuth(Auth{AccessToken: "tok"}))
	require.NoError(t, store.Clear())

	token, err := store.Token()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Clear(), "clearing twice is fine")
}

package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overachiever/overachiever-web/internal/provider"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", srv.URL, 2*time.Second)
}

func TestFetchLibrary(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathOwnedGames, r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "76561198000000001", r.URL.Query().Get("steamid"))
		w.Write([]byte(`{"response":{"games":[
			{"appid":10,"name":"Half-Life","playtime_forever":120},
			{"appid":20,"name":"Portal","playtime_forever":30}
		]}}`))
	})

	games, err := c.FetchLibrary(context.Background(), "76561198000000001")
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, int64(10), games[0].AppID)
	assert.Equal(t, "Half-Life", games[0].Name)
	assert.Equal(t, int64(120), games[0].PlaytimeForever)
}

func TestFetchSchemaKeepsDeclarationOrder(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathSchema, r.URL.Path)
		w.Write([]byte(`{"game":{"availableGameStats":{"achievements":[
			{"name":"Z_LAST","displayName":"Z"},
			{"name":"A_FIRST","displayName":"A"}
		]}}}`))
	})

	entries, err := c.FetchSchema(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Z_LAST", entries[0].APIName)
	assert.Equal(t, "A_FIRST", entries[1].APIName)
}

func TestFetchUnlocksParsesTimestamps(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"playerstats":{"success":true,"achievements":[
			{"apiname":"A1","achieved":1,"unlocktime":1700000000},
			{"apiname":"A2","achieved":1,"unlocktime":0},
			{"apiname":"A3","achieved":0,"unlocktime":0}
		]}}`))
	})

	unlocks, err := c.FetchUnlocks(context.Background(), "user", 10)
	require.NoError(t, err)
	require.Len(t, unlocks, 3)

	assert.True(t, unlocks[0].Achieved)
	require.NotNil(t, unlocks[0].UnlockTime)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *unlocks[0].UnlockTime)

	// Achieved with a zero timestamp comes back with no unlock time; the
	// engine substitutes an estimate further up.
	assert.True(t, unlocks[1].Achieved)
	assert.Nil(t, unlocks[1].UnlockTime)

	assert.False(t, unlocks[2].Achieved)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		code int
		want provider.ErrorKind
	}{
		{http.StatusTooManyRequests, provider.KindRateLimited},
		{http.StatusUnauthorized, provider.KindUnauthorized},
		{http.StatusForbidden, provider.KindUnauthorized},
		{http.StatusBadRequest, provider.KindNotFound},
		{http.StatusNotFound, provider.KindNotFound},
		{http.StatusInternalServerError, provider.KindTransient},
		{http.StatusBadGateway, provider.KindTransient},
	}

	for _, tt := range tests {
		c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.code)
		})
		_, err := c.FetchLibrary(context.Background(), "user")
		require.Error(t, err, "status %d", tt.code)
		assert.Equal(t, tt.want, provider.KindOf(err), "status %d", tt.code)
	}
}

func TestMalformedBody(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response": not json`))
	})

	_, err := c.FetchLibrary(context.Background(), "user")
	require.Error(t, err)
	assert.Equal(t, provider.KindMalformed, provider.KindOf(err))
	assert.False(t, provider.Retryable(err))
}

func TestCallTimeout(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	c.callTimeout = 50 * time.Millisecond

	_, err := c.FetchLibrary(context.Background(), "user")
	require.Error(t, err)
	assert.Equal(t, provider.KindTransient, provider.KindOf(err))
}

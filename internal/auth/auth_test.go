package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overachiever/overachiever-web/config"
	"github.com/overachiever/overachiever-web/internal/logger"
)

func testService(ttl time.Duration) *Service {
	return NewService(config.AuthConfig{
		JWTSecret:     "test-secret",
		SessionSecret: "test-session-secret",
		CallbackURL:   "http://localhost:8080/auth/steam/callback",
		TokenTTL:      ttl,
	}, nil, logger.New())
}

func TestTokenRoundTrip(t *testing.T) {
	s := testService(time.Hour)

	token, err := s.IssueToken("76561198000000001", "Gordon")
	require.NoError(t, err)

	claims, err := s.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "76561198000000001", claims.SteamID)
	assert.Equal(t, "Gordon", claims.DisplayName)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	s := testService(time.Hour)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := s.VerifyToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	s := testService(-time.Minute)

	token, err := s.IssueToken("76561198000000001", "Gordon")
	require.NoError(t, err)

	_, err = s.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	token, err := testService(time.Hour).IssueToken("76561198000000001", "Gordon")
	require.NoError(t, err)

	other := NewService(config.AuthConfig{JWTSecret: "different", TokenTTL: time.Hour}, nil, logger.New())
	_, err = other.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSteamIDFromClaimedID(t *testing.T) {
	tests := []struct {
		claimed string
		want    string
	}{
		{"https://steamcommunity.com/openid/id/76561198000000001", "76561198000000001"},
		{"https://steamcommunity.com/openid/id/76561198000000001/", "76561198000000001"},
		{"https://steamcommunity.com/openid/id/not-a-number", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, steamIDFromClaimedID(tt.claimed), "claimed %q", tt.claimed)
	}
}

func TestMiddlewareBearerToken(t *testing.T) {
	s := testService(time.Hour)
	token, err := s.IssueToken("76561198000000001", "Gordon")
	require.NoError(t, err)

	var got *Claims
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/v1/games", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "76561198000000001", got.SteamID)
}

func TestMiddlewareRejectsUnauthenticated(t *testing.T) {
	s := testService(time.Hour)
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without credentials")
	}))

	req := httptest.NewRequest("GET", "/api/v1/games", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest("GET", "/api/v1/games", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

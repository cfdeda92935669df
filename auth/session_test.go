package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tripmesh/tripmesh-server/types"
)

const testSecret = "test-secret"

func TestTokenRoundtrip(t *testing.T) {
	identity := &Identity{UserId: "u1", Username: "alice", Role: types.RoleAdmin}
	token, err := NewToken(identity, testSecret, time.Hour)
	assert.NoError(t, err)

	parsed, err := ParseToken(token, testSecret)
	assert.NoError(t, err)
	assert.Equal(t, "u1", parsed.UserId)
	assert.Equal(t, "alice", parsed.Username)
	assert.Equal(t, types.RoleAdmin, parsed.Role)
	assert.True(t, parsed.IsAdmin())
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := NewToken(&Identity{UserId: "u1"}, testSecret, time.Hour)
	assert.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := NewToken(&Identity{UserId: "u1"}, testSecret, -time.Minute)
	assert.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestParseTokenDefaultsRole(t *testing.T) {
	token, err := NewToken(&Identity{UserId: "u1"}, testSecret, time.Hour)
	assert.NoError(t, err)

	parsed, err := ParseToken(token, testSecret)
	assert.NoError(t, err)
	assert.Equal(t, types.RoleUser, parsed.Role)
	assert.False(t, parsed.IsAdmin())
}

func TestFromRequestSources(t *testing.T) {
	token, err := NewToken(&Identity{UserId: "u1", Username: "alice"}, testSecret, time.Hour)
	assert.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	identity, err := FromRequest(r, testSecret)
	assert.NoError(t, err)
	assert.Equal(t, "u1", identity.UserId)

	r = httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	identity, err = FromRequest(r, testSecret)
	assert.NoError(t, err)
	assert.Equal(t, "u1", identity.UserId)

	r = httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	r.AddCookie(&http.Cookie{Name: "session", Value: token})
	identity, err = FromRequest(r, testSecret)
	assert.NoError(t, err)
	assert.Equal(t, "u1", identity.UserId)

	r = httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	_, err = FromRequest(r, testSecret)
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestMiddleware(t *testing.T) {
	handler := Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "u1", identity.UserId)
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"authentication required"}`, w.Body.String())

	token, err := NewToken(&Identity{UserId: "u1"}, testSecret, time.Hour)
	assert.NoError(t, err)
	r = httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

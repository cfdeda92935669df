package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tripmesh/tripmesh-server/types"
)

// ErrNoIdentity is returned when no trusted identity is attached to a
// request or connection.
var ErrNoIdentity = errors.New("authentication required")

// Identity is the trusted (user, name, role) triple the authentication
// collaborator encodes into the session token. This server never checks
// credentials, it only verifies the token signature.
type Identity struct {
	UserId   string
	Username string
	Role     string
}

func (i *Identity) IsAdmin() bool {
	return i.Role == types.RoleAdmin
}

type sessionClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken verifies a signed session token and extracts the identity.
func ParseToken(tokenString, secret string) (*Identity, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrNoIdentity
	}
	role := claims.Role
	if role == "" {
		role = types.RoleUser
	}
	return &Identity{UserId: claims.Subject, Username: claims.Username, Role: role}, nil
}

// NewToken mints a session token. The production tokens come from the
// authentication collaborator; this is used by the admin CLI and tests.
func NewToken(identity *Identity, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Username: identity.Username,
		Role:     identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserId,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// FromRequest resolves the identity of an HTTP request. The token is taken
// from the Authorization header, the "token" query parameter (websocket
// upgrades cannot set headers from browsers) or the session cookie, in that
// order.
func FromRequest(r *http.Request, secret string) (*Identity, error) {
	tokenString := ""
	if h := r.Header.Get("Authorization"); h != "" {
		tokenString = strings.TrimPrefix(h, "Bearer ")
	}
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		if c, err := r.Cookie("session"); err == nil {
			tokenString = c.Value
		}
	}
	if tokenString == "" {
		return nil, ErrNoIdentity
	}
	return ParseToken(tokenString, secret)
}

type contextKey struct{}

func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(*Identity)
	return identity, ok
}

// Middleware attaches the request identity to the context, or answers 401
// if there is none. Authentication failure is fatal to the request only.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := FromRequest(r, secret)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

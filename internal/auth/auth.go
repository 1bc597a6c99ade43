package auth

import (
	"context"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Identity is the resolved caller of a request. Absence of an identity in the
// context means the request is unauthenticated.
type Identity struct {
	UserID   int64
	Email    string
	IsAdmin  bool
	IsDriver bool
}

type Claims struct {
	UserID   int64  `json:"userId"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"isAdmin"`
	IsDriver bool   `json:"isDriver"`
	jwtlib.RegisteredClaims
}

type ctxKey struct{}

var identityKey = ctxKey{}

func WithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

func FromContext(ctx context.Context) (*Identity, bool) {
	ident, ok := ctx.Value(identityKey).(*Identity)
	return ident, ok && ident != nil
}

// Middleware resolves a Bearer token into an Identity. An invalid or missing
// token does not reject the request; handlers decide what requires auth, the
// same way the gateway leaves unauthenticated requests with a null user.
func Middleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			var claims Claims
			tkn, err := jwtlib.ParseWithClaims(raw, &claims, func(t *jwtlib.Token) (any, error) {
				if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
					return nil, jwtlib.ErrSignatureInvalid
				}
				return key, nil
			})
			if err != nil || !tkn.Valid {
				next.ServeHTTP(w, r)
				return
			}

			ident := &Identity{
				UserID:   claims.UserID,
				Email:    claims.Email,
				IsAdmin:  claims.IsAdmin,
				IsDriver: claims.IsDriver,
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type senderKey struct{}

var errMissingToken = errors.New("missing bearer token")

// Authenticator verifies HS256 bearer tokens whose subject is an account id.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := a.authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="vaultpay"`)
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "invalid or missing token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), senderKey{}, accountID)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return uuid.Nil, errMissingToken
	}

	var claims jwt.RegisteredClaims
	if _, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(claims.Subject)
}

// Sign issues a token for accountID; used by tooling and tests.
func (a *Authenticator) Sign(accountID uuid.UUID, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = accountID.String()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func senderFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(senderKey{}).(uuid.UUID)
	return id, ok
}

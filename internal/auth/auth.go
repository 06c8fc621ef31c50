// Package auth guards the admin endpoints with signed bearer tokens.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lead-relay/internal/common/errors"
	"lead-relay/internal/common/logging"
)

const tokenLifetime = 24 * time.Hour

// Auth issues and validates the HS256 tokens used by the admin API.
type Auth struct {
	secret   []byte
	username string
	password string
	logger   logging.Logger
	now      func() time.Time
}

// New creates an authenticator. The secret signs tokens; username and
// password are the single admin login this service supports.
func New(secret, username, password string, logger logging.Logger) (*Auth, error) {
	if secret == "" {
		return nil, errors.ConfigError("admin token secret is required")
	}
	if username == "" || password == "" {
		return nil, errors.ConfigError("admin username and password are required")
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Auth{
		secret:   []byte(secret),
		username: username,
		password: password,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Login checks the credentials and returns a signed token.
func (a *Auth) Login(username, password string) (string, error) {
	if username != a.username || password != a.password {
		return "", errors.ValidationError("invalid username or password")
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.InternalError("failed to sign admin token", err)
	}
	return signed, nil
}

// Validate parses a token and returns the subject it was issued to.
func (a *Auth) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.ValidationError("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", errors.ValidationError("invalid admin token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", errors.ValidationError("invalid admin token")
	}
	return claims.Subject, nil
}

// RequireAuth wraps a handler so only requests with a valid bearer token
// reach it.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			unauthorized(w)
			return
		}

		subject, err := a.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			a.logger.Warn("Rejected admin request",
				logging.Field{Key: "path", Value: r.URL.Path},
				logging.Field{Key: "remote", Value: r.RemoteAddr},
			)
			unauthorized(w)
			return
		}

		r.Header.Set("X-Admin-User", subject)
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error": "authentication required"}`))
}

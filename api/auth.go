package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// IDENTITY - Bearer tokens issued by the identity service
// =============================================================================

type contextKey string

const actorContextKey contextKey = "actor"

// Claims carries the employee id in sub and the role.
type Claims struct {
	Role generic.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 tokens. Issuing is only used by tests and
// local tooling; production tokens come from the identity service.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

func (a *Authenticator) IssueToken(id generic.EmployeeID, role generic.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Verify parses a token and returns the caller it identifies.
func (a *Authenticator) Verify(tokenString string) (generic.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return generic.Actor{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return generic.Actor{}, jwt.ErrTokenInvalidClaims
	}
	switch claims.Role {
	case generic.RoleAdmin, generic.RoleEmployee:
	default:
		return generic.Actor{}, fmt.Errorf("unknown role %q: %w", claims.Role, jwt.ErrTokenInvalidClaims)
	}
	return generic.Actor{ID: generic.EmployeeID(claims.Subject), Role: claims.Role}, nil
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		actor, err := a.Verify(tokenString)
		if err != nil {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), actorContextKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin lets only admins through.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !actorFrom(r.Context()).IsAdmin() {
			writeError(w, fmt.Errorf("admin role required: %w", generic.ErrForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(ctx context.Context) generic.Actor {
	actor, _ := ctx.Value(actorContextKey).(generic.Actor)
	return actor
}

// requireSelfOrAdmin writes 403 and returns false unless the caller is the
// employee or an admin.
func requireSelfOrAdmin(w http.ResponseWriter, r *http.Request, id generic.EmployeeID) bool {
	actor := actorFrom(r.Context())
	if actor.IsAdmin() || actor.ID == id {
		return true
	}
	writeError(w, fmt.Errorf("employee %s: %w", id, generic.ErrForbidden))
	return false
}

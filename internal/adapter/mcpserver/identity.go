package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"prepmate/internal/domain"
)

// userEmailHeader carries the caller's identity. The gateway in front of the
// tool server authenticates requests; this header is trusted within the
// service boundary.
const userEmailHeader = "X-User-Email"

type contextKey string

const userEmailKey contextKey = "user-email"

// withIdentity copies the identity header into the request context so tool
// handlers can reach it.
func withIdentity(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, userEmailKey, r.Header.Get(userEmailHeader))
}

// userEmailFromContext returns the caller's normalized email. A missing
// header is an authentication failure; every tool requires an identity to
// scope its object keys.
func userEmailFromContext(ctx context.Context) (string, error) {
	email, _ := ctx.Value(userEmailKey).(string)
	if email == "" {
		return "", fmt.Errorf("%w: missing %s header", domain.ErrAuthInvalid, userEmailHeader)
	}
	return NormalizeEmail(email), nil
}

// NormalizeEmail rewrites an email address into an object key segment.
// "user@example.com" becomes "user_at_example.com".
func NormalizeEmail(email string) string {
	return strings.ReplaceAll(email, "@", "_at_")
}

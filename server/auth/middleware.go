package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type contextKey string

const (
	// PrincipalContextKey is the context key for the authenticated principal
	PrincipalContextKey contextKey = "principal"
)

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// GetPrincipalFromContext retrieves the principal from the context. Requests
// that never went through the middleware are anonymous.
func GetPrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(PrincipalContextKey).(*Principal); ok && p != nil {
		return p
	}
	return AnonymousPrincipal
}

// Current returns the principal of a gin request.
func Current(c *gin.Context) *Principal {
	return GetPrincipalFromContext(c.Request.Context())
}

// SetPrincipal replaces the principal of a gin request.
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
}

// Middleware resolves the principal of every request. Basic credentials are
// checked with authenticator and rejected with 401 when wrong. Without
// credentials the trusted casHeader, when configured, names a CAS user.
// Everything else is anonymous.
func Middleware(authenticator Authenticator, casHeader, realm string) gin.HandlerFunc {
	if realm == "" {
		realm = "MyBerkeley"
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			creds, err := parseBasicAuth(authHeader)
			if err != nil {
				requestAuth(c, realm)
				return
			}
			principal, err := authenticator.Authenticate(c.Request.Context(), creds)
			if err != nil {
				requestAuth(c, realm)
				return
			}
			SetPrincipal(c, principal)
			c.Next()
			return
		}

		if casHeader != "" {
			if user := strings.TrimSpace(c.GetHeader(casHeader)); user != "" {
				SetPrincipal(c, &Principal{ID: user, AuthType: AuthTypeCAS})
				c.Next()
				return
			}
		}

		SetPrincipal(c, AnonymousPrincipal)
		c.Next()
	}
}

// requestAuth sends WWW-Authenticate header
func requestAuth(c *gin.Context, realm string) {
	c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
	c.AbortWithStatus(http.StatusUnauthorized)
}

// parseBasicAuth parses an HTTP Basic Authentication string
func parseBasicAuth(auth string) (Credentials, error) {
	const prefix = "Basic "
	if !strings.HasPrefix(auth, prefix) {
		return Credentials{}, &Error{
			Type:    ErrInvalidCredentials,
			Message: "invalid authorization header format",
		}
	}

	encoded := auth[len(prefix):]
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Credentials{}, &Error{
			Type:    ErrInvalidCredentials,
			Message: "invalid base64 encoding",
			Err:     err,
		}
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return Credentials{}, &Error{
			Type:    ErrInvalidCredentials,
			Message: "invalid credentials format",
		}
	}

	return Credentials{
		Username: parts[0],
		Password: parts[1],
	}, nil
}

package foreignprincipal

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

// SelfServicePrefix holds the endpoints a foreign principal uses to create
// an account. They are never redirected.
const SelfServicePrefix = "/system/accountProvider/"

// Middleware resolves the foreign principal of a request and caches it on the
// request context. A CAS user unknown to the repository gets the cookie on
// first contact and a GET landing page redirect; later requests carrying a
// valid cookie go straight through.
func Middleware(svc *Service, manager *Manager, redirect string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := auth.Current(c)
		if principal.AuthType == auth.AuthTypeCAS {
			if !manager.HasPrincipalInContext(c.Request.Context(), GroupID, principal.ID) {
				c.Next()
				return
			}
			issued := false
			if existing, ok := svc.readCookie(c.Writer, c.Request).Get(); !ok || existing != principal.ID {
				svc.AddForeignPrincipal(c.Writer, principal.ID)
				issued = true
			}
			c.Request = c.Request.WithContext(WithForeignPrincipal(c.Request.Context(), mo.Some(principal.ID)))
			if issued && shouldRedirect(c.Request, redirect) {
				logger.Info("redirecting foreign principal", "userId", principal.ID, "to", redirect)
				c.Redirect(http.StatusFound, redirect)
				c.Abort()
				return
			}
			c.Next()
			return
		}

		p := svc.GetForeignPrincipal(c.Writer, c.Request)
		if id, ok := p.Get(); ok {
			logger.Debug("cookie foreign principal", "userId", id)
		}
		c.Request = c.Request.WithContext(WithForeignPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

func shouldRedirect(r *http.Request, redirect string) bool {
	if redirect == "" || r.Method != http.MethodGet {
		return false
	}
	return r.URL.Path != redirect && !strings.HasPrefix(r.URL.Path, SelfServicePrefix)
}

// AuthenticationHandler plugs the cookie into logout. It never extracts
// credentials and never asks for them.
type AuthenticationHandler struct {
	svc *Service
}

func NewAuthenticationHandler(svc *Service) *AuthenticationHandler {
	return &AuthenticationHandler{svc: svc}
}

func (h *AuthenticationHandler) DropCredentials(w http.ResponseWriter) {
	h.svc.DropForeignPrincipal(w)
}

func (h *AuthenticationHandler) Extract(*http.Request) *auth.Credentials {
	return nil
}

func (h *AuthenticationHandler) RequestCredentials(http.ResponseWriter, *http.Request) bool {
	return false
}

// Logout clears the cookie and sends the browser home.
func (h *AuthenticationHandler) Logout(c *gin.Context) {
	h.DropCredentials(c.Writer)
	target := c.Query("resource")
	if target == "" || target[0] != '/' {
		target = "/"
	}
	c.Redirect(http.StatusFound, target)
}

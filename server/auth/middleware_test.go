package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/repository/memory"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := memory.New()
	require.NoError(t, repo.CreateUser(context.Background(), "bob", "secret", nil))
	authenticator := NewRepositoryAuthenticator(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := gin.New()
	r.Use(Middleware(authenticator, "X-CAS-User", ""))
	r.GET("/whoami", func(c *gin.Context) {
		p := Current(c)
		c.JSON(http.StatusOK, gin.H{"id": p.ID, "authType": p.AuthType})
	})
	return r
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*http.Request)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "anonymous",
			setup:      func(*http.Request) {},
			wantStatus: http.StatusOK,
			wantBody:   `{"id":"anonymous","authType":""}`,
		},
		{
			name:       "basic",
			setup:      func(r *http.Request) { r.SetBasicAuth("bob", "secret") },
			wantStatus: http.StatusOK,
			wantBody:   `{"id":"bob","authType":"BASIC"}`,
		},
		{
			name:       "wrong password",
			setup:      func(r *http.Request) { r.SetBasicAuth("bob", "nope") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown user",
			setup:      func(r *http.Request) { r.SetBasicAuth("carol", "secret") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer xyz") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "cas header",
			setup:      func(r *http.Request) { r.Header.Set("X-CAS-User", " 904715 ") },
			wantStatus: http.StatusOK,
			wantBody:   `{"id":"904715","authType":"CAS"}`,
		},
	}

	r := newRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="MyBerkeley"`, rec.Header().Get("WWW-Authenticate"))
				return
			}
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestPrincipal(t *testing.T) {
	assert.True(t, AnonymousPrincipal.IsAnonymous())
	assert.True(t, (*Principal)(nil).IsAnonymous())
	assert.False(t, (*Principal)(nil).IsAdmin())
	assert.True(t, (&Principal{ID: "admin"}).IsAdmin())
	assert.Equal(t, AnonymousPrincipal, GetPrincipalFromContext(context.Background()))
}

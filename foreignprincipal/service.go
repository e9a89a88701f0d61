// Package foreignprincipal tracks people who signed in through CAS but have
// no portal account yet. Their id travels in a signed cookie until they
// provision themselves.
package foreignprincipal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/mo"
)

const (
	DefaultCookieName = "foreignprincipal"
	DefaultTTL        = 2 * time.Hour
)

// Config configures the cookie.
type Config struct {
	Secret     string
	TTL        time.Duration
	CookieName string
}

// Service signs and reads the foreign principal cookie.
type Service struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(cfg Config, logger *slog.Logger) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("foreign principal secret must be set")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &Service{
		secret:     []byte(cfg.Secret),
		ttl:        cfg.TTL,
		cookieName: cfg.CookieName,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// AddForeignPrincipal hands the browser a session cookie naming userID.
func (s *Service) AddForeignPrincipal(w http.ResponseWriter, userID string) {
	expires := s.now().Add(s.ttl)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    encodeToken(s.secret, userID, expires),
		Path:     "/",
		HttpOnly: true,
	})
	w.Header().Add("Cache-Control", `no-cache="set-cookie"`)
	w.Header().Set("Expires", expires.UTC().Format(http.TimeFormat))
	s.logger.Debug("added foreign principal cookie", "userId", userID)
}

// GetForeignPrincipal returns the principal already resolved for r, or reads
// it from the cookie. An expired or tampered cookie is cleared.
func (s *Service) GetForeignPrincipal(w http.ResponseWriter, r *http.Request) mo.Option[string] {
	if cached, ok := fromContext(r.Context()); ok {
		return cached
	}
	return s.readCookie(w, r)
}

// DropForeignPrincipal clears the cookie.
func (s *Service) DropForeignPrincipal(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func (s *Service) readCookie(w http.ResponseWriter, r *http.Request) mo.Option[string] {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return mo.None[string]()
	}
	userID, err := decodeToken(s.secret, cookie.Value, s.now())
	if err != nil {
		if errors.Is(err, errExpired) {
			s.logger.Info("clearing expired foreign principal cookie")
		} else {
			s.logger.Warn("clearing invalid foreign principal cookie", "error", err)
		}
		s.DropForeignPrincipal(w)
		return mo.None[string]()
	}
	return mo.Some(userID)
}

type contextKey struct{}

// WithForeignPrincipal caches the resolved principal on ctx.
func WithForeignPrincipal(ctx context.Context, p mo.Option[string]) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func fromContext(ctx context.Context) (mo.Option[string], bool) {
	p, ok := ctx.Value(contextKey{}).(mo.Option[string])
	return p, ok
}

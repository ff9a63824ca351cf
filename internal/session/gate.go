package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"novelhub/internal/domain"
)

// CookieName is the session cookie holding the signed session token.
const CookieName = "novelhub_session"

const ginContextKey = "novelhub.session"

// UserLookup resolves the user bound to a session.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// GateConfig wires the session gate.
type GateConfig struct {
	Tokens       *Tokens
	Store        Store
	Users        UserLookup
	CookieSecure bool
	LoginPath    string
	Logger       logrus.FieldLogger
}

// Gate establishes sessions, resolves the current user for every request and
// guards protected routes.
type Gate struct {
	tokens    *Tokens
	store     Store
	users     UserLookup
	secure    bool
	loginPath string
	log       logrus.FieldLogger
}

func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Tokens == nil || cfg.Store == nil || cfg.Users == nil {
		return nil, errors.New("session gate requires tokens, store and users")
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Gate{
		tokens:    cfg.Tokens,
		store:     cfg.Store,
		users:     cfg.Users,
		secure:    cfg.CookieSecure,
		loginPath: cfg.LoginPath,
		log:       cfg.Logger.WithField("component", "session"),
	}, nil
}

// Middleware attaches a Context to every request.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		notices := readAndClearNotices(c.Writer, c.Request, g.secure)
		rc := NewContext(nil, notices)

		if user, sessionID := g.resolve(c); user != nil {
			rc.user = user
			rc.sessionID = sessionID
		}

		c.Set(ginContextKey, rc)
		c.Next()
	}
}

// Protect aborts anonymous requests with a redirect to the login page. JSON
// and DELETE callers get 401 with the redirect target instead.
func (g *Gate) Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := FromGin(c)
		if _, err := rc.RequireAuth(); err != nil {
			g.Deny(c)
			return
		}
		c.Next()
	}
}

// Deny ends the request as unauthenticated.
func (g *Gate) Deny(c *gin.Context) {
	if c.Request.Method == http.MethodDelete || strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"redirect": g.loginPath})
		return
	}
	g.Commit(c)
	c.Redirect(http.StatusSeeOther, g.loginPath)
	c.Abort()
}

// Login binds a new session to user and sets the session cookie.
func (g *Gate) Login(c *gin.Context, user *domain.User) error {
	sessionID := uuid.NewString()
	token, expires, err := g.tokens.Issue(user.ID, user.Username, sessionID)
	if err != nil {
		return err
	}
	if err := g.store.Create(c.Request.Context(), sessionID, user.ID, g.tokens.TTL()); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})

	rc := FromGin(c)
	rc.user = user
	rc.sessionID = sessionID
	g.log.WithField("user", user.Username).Info("session established")
	return nil
}

// Logout revokes the current session and clears the cookie.
func (g *Gate) Logout(c *gin.Context) {
	rc := FromGin(c)
	if rc.sessionID != "" {
		if err := g.store.Revoke(c.Request.Context(), rc.sessionID); err != nil {
			g.log.WithError(err).Warn("revoke session failed")
		}
	}
	g.clearCookie(c.Writer)
	if rc.user != nil {
		g.log.WithField("user", rc.user.Username).Info("session closed")
	}
	rc.user = nil
	rc.sessionID = ""
}

// Commit carries every notice not yet shown over to the next request. It must
// run before the response body is written.
func (g *Gate) Commit(c *gin.Context) {
	writeNotices(c.Writer, FromGin(c).Drain(), g.secure)
}

func (g *Gate) resolve(c *gin.Context) (*domain.User, string) {
	cookie, err := c.Request.Cookie(CookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, ""
	}

	claims, err := g.tokens.Parse(cookie.Value)
	if err != nil {
		g.log.WithError(err).Debug("discarding session cookie")
		g.clearCookie(c.Writer)
		return nil, ""
	}

	ctx := c.Request.Context()
	userID, err := g.store.Lookup(ctx, claims.ID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			g.log.WithError(err).Warn("session lookup failed")
			return nil, ""
		}
		g.clearCookie(c.Writer)
		return nil, ""
	}
	if userID != claims.UserID {
		g.log.WithField("session", claims.ID).Warn("session user mismatch")
		return nil, ""
	}

	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		g.log.WithError(err).WithField("user_id", userID).Warn("session user lookup failed")
		return nil, ""
	}
	return user, claims.ID
}

func (g *Gate) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// FromGin returns the request's session Context. Requests that bypassed the
// middleware get an anonymous context.
func FromGin(c *gin.Context) *Context {
	if v, ok := c.Get(ginContextKey); ok {
		if rc, ok := v.(*Context); ok {
			return rc
		}
	}
	rc := NewContext(nil, nil)
	c.Set(ginContextKey, rc)
	return rc
}

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelhub/internal/domain"
	"novelhub/internal/repository"
)

type staticUsers map[int64]*domain.User

func (s staticUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func newTestGate(t *testing.T) (*Gate, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	gate, err := NewGate(GateConfig{
		Tokens: tokens,
		Store:  NewMemoryStore(),
		Users:  staticUsers{1: {ID: 1, Username: "ann"}},
		Logger: logger,
	})
	require.NoError(t, err)

	router := gin.New()
	router.Use(gate.Middleware())
	router.POST("/login", func(c *gin.Context) {
		if err := gate.Login(c, &domain.User{ID: 1, Username: "ann"}); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		FromGin(c).Flash(KindSuccess, "welcome")
		gate.Commit(c)
		c.Redirect(http.StatusSeeOther, "/")
	})
	router.POST("/logout", func(c *gin.Context) {
		gate.Logout(c)
		c.Status(http.StatusNoContent)
	})
	router.GET("/whoami", gate.Protect(), func(c *gin.Context) {
		user, _ := FromGin(c).CurrentUser()
		c.JSON(http.StatusOK, gin.H{"user": user.Username, "messages": FromGin(c).Drain()})
	})
	return gate, router
}

func do(router http.Handler, method, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// liveCookies keeps the last value per cookie name, dropping expired ones.
func liveCookies(jar map[string]*http.Cookie, rr *httptest.ResponseRecorder) []*http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(jar, c.Name)
			continue
		}
		jar[c.Name] = c
	}
	out := make([]*http.Cookie, 0, len(jar))
	for _, c := range jar {
		out = append(out, c)
	}
	return out
}

func TestGate_LoginResolveLogout(t *testing.T) {
	_, router := newTestGate(t)
	jar := map[string]*http.Cookie{}

	rr := do(router, http.MethodGet, "/whoami", nil)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	rr = do(router, http.MethodPost, "/login", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	cookies := liveCookies(jar, rr)

	rr = do(router, http.MethodGet, "/whoami", cookies)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"user":"ann"`)
	assert.Contains(t, rr.Body.String(), "welcome")
	cookies = liveCookies(jar, rr)

	// the flash was consumed by the previous read
	rr = do(router, http.MethodGet, "/whoami", cookies)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "welcome")

	stale := append([]*http.Cookie(nil), cookies...)
	rr = do(router, http.MethodPost, "/logout", cookies)
	require.Equal(t, http.StatusNoContent, rr.Code)

	// replaying the old cookie after logout is rejected by the store
	rr = do(router, http.MethodGet, "/whoami", stale)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestGate_ProtectJSONDeny(t *testing.T) {
	_, router := newTestGate(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Accept", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"redirect":"/login"}`, rr.Body.String())
}

func TestGate_TamperedCookieIsAnonymous(t *testing.T) {
	_, router := newTestGate(t)

	rr := do(router, http.MethodGet, "/whoami", []*http.Cookie{{Name: CookieName, Value: "forged.token.value"}})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

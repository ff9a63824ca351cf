package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"novelhub/internal/repository/sqlite"
	"novelhub/internal/service"
	"novelhub/internal/session"
	"novelhub/internal/storage"
	"novelhub/internal/upload"
)

type testServer struct {
	router *gin.Engine
	assets *storage.LocalService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "novelhub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	userRepo := sqlite.NewUserRepository(db)
	require.NoError(t, userRepo.Init(ctx))
	novelRepo := sqlite.NewNovelRepository(db)
	require.NoError(t, novelRepo.Init(ctx))

	assets, err := storage.NewLocalService(filepath.Join(t.TempDir(), "uploads"), "/uploads")
	require.NoError(t, err)

	users := service.NewUserService(userRepo, logger, service.WithHashCost(bcrypt.MinCost))
	novels := service.NewNovelService(service.NovelServiceConfig{
		Novels: novelRepo,
		Covers: upload.NewUploader(assets, logger),
		Logger: logger,
	})

	tokens, err := session.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	gate, err := session.NewGate(session.GateConfig{
		Tokens: tokens,
		Store:  session.NewMemoryStore(),
		Users:  users,
		Logger: logger,
	})
	require.NoError(t, err)

	handler, err := NewHandler(Config{
		Users:          users,
		Novels:         novels,
		Gate:           gate,
		LocalAssets:    assets,
		MaxUploadBytes: 1 << 20,
		Logger:         logger,
	})
	require.NoError(t, err)

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, assets: assets}
}

// client is one browser: it keeps the last live value of every cookie.
type client struct {
	srv *testServer
	jar map[string]*http.Cookie
}

func (s *testServer) client() *client {
	return &client{srv: s, jar: map[string]*http.Cookie{}}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.jar {
		req.AddCookie(ck)
	}
	rr := httptest.NewRecorder()
	c.srv.router.ServeHTTP(rr, req)
	for _, ck := range rr.Result().Cookies() {
		if ck.MaxAge < 0 || ck.Value == "" {
			delete(c.jar, ck.Name)
			continue
		}
		c.jar[ck.Name] = ck
	}
	return rr
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) delete(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodDelete, path, nil))
}

type coverPart struct {
	name, mimeType string
	data           []byte
}

func (c *client) postNovel(t *testing.T, fields map[string]string, cover *coverPart) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if cover != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="cover_image"; filename=%q`, cover.name))
		h.Set("Content-Type", cover.mimeType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(cover.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/novels", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}

type pageBody struct {
	Novels   []NovelResponse  `json:"novels"`
	Novel    NovelResponse    `json:"novel"`
	Errors   []map[string]any `json:"errors"`
	Username string           `json:"username"`
	Redirect string           `json:"redirect"`
	Messages []session.Notice `json:"messages"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) pageBody {
	t.Helper()
	var body pageBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func messages(body pageBody) []string {
	out := make([]string, len(body.Messages))
	for i, n := range body.Messages {
		out[i] = n.Message
	}
	return out
}

func (c *client) signup(t *testing.T, username, password string) {
	t.Helper()
	rr := c.postForm("/register", url.Values{"username": {username}, "password": {password}, "password2": {password}})
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	require.Equal(t, "/login", rr.Header().Get("Location"))

	rr = c.postForm("/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/", rr.Header().Get("Location"))

	// landing on the home page consumes the welcome notices
	require.Equal(t, http.StatusOK, c.get("/").Code)
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image")

func TestRegisterValidationRendersErrors(t *testing.T) {
	c := newTestServer(t).client()

	rr := c.postForm("/register", url.Values{"username": {"ann"}, "password": {"abc"}, "password2": {"abd"}})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "ann", body.Username)
	require.Len(t, body.Errors, 2)
	assert.Equal(t, "password_mismatch", body.Errors[0]["code"])
	assert.Equal(t, "password_too_short", body.Errors[1]["code"])
	assert.NotContains(t, rr.Body.String(), "abd")
}

func TestRegisterThenLoginFlashes(t *testing.T) {
	c := newTestServer(t).client()

	rr := c.postForm("/register", url.Values{"username": {"ann"}, "password": {"secret1"}, "password2": {"secret1"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	body := decode(t, c.get("/login"))
	assert.Equal(t, []string{msgRegistered}, messages(body))

	// shown once only
	body = decode(t, c.get("/login"))
	assert.Empty(t, body.Messages)

	rr = c.postForm("/register", url.Values{"username": {"ann"}, "password": {"secret1"}, "password2": {"secret1"}})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "username_taken", decode(t, rr).Errors[0]["code"])

	rr = c.postForm("/login", url.Values{"username": {"ann"}, "password": {"wrong-pass"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Equal(t, []string{msgBadLogin}, messages(decode(t, c.get("/login"))))

	rr = c.postForm("/login", url.Values{"username": {"nobody"}, "password": {"secret1"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, []string{msgBadLogin}, messages(decode(t, c.get("/login"))))

	rr = c.postForm("/login", url.Values{"username": {"ann"}, "password": {"secret1"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	rr = c.get("/profile")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"username":"ann"`)
	assert.Contains(t, rr.Body.String(), msgLoggedIn)

	rr = c.get("/logout")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	rr = c.get("/profile")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	c := newTestServer(t).client()

	rr := c.postNovel(t, map[string]string{"title": "t", "content": "c"}, nil)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	rr = c.delete("/novels/1")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"redirect":"/login"}`, rr.Body.String())

	rr = c.get("/novels/1/manage")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestNovelLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ann := srv.client()
	ann.signup(t, "ann", "secret1")
	bob := srv.client()
	bob.signup(t, "bob", "secret2")

	rr := ann.postNovel(t, map[string]string{
		"title":   "Dragon Road",
		"content": "A dragon walks the long road home.",
		"genre":   "Fantasy",
	}, &coverPart{name: "Cover.PNG", mimeType: "image/png", data: pngBytes})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	body := decode(t, ann.get("/genres/fantasy"))
	require.Len(t, body.Novels, 1)
	novel := body.Novels[0]
	assert.Equal(t, "ann", novel.Author)
	assert.True(t, strings.HasPrefix(novel.CoverURL, "/uploads/"), novel.CoverURL)
	assert.True(t, strings.HasSuffix(novel.CoverURL, ".png"), novel.CoverURL)

	rr = ann.get(novel.CoverURL)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, pngBytes, rr.Body.Bytes())

	body = decode(t, bob.get("/search?search=dragon"))
	require.Len(t, body.Novels, 1)
	assert.Equal(t, novel.ID, body.Novels[0].ID)

	body = decode(t, bob.get("/search?search="))
	assert.Empty(t, body.Novels)
	assert.NotNil(t, body.Novels)

	path := fmt.Sprintf("/novels/%d", novel.ID)
	assert.Equal(t, http.StatusOK, bob.get(path).Code)
	assert.Equal(t, http.StatusNotFound, bob.get(path+"/manage").Code)
	assert.Equal(t, http.StatusOK, ann.get(path+"/manage").Code)

	rr = bob.delete(path)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, http.StatusOK, bob.get(path).Code)

	rr = ann.delete(path)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/profile", decode(t, rr).Redirect)

	body = decode(t, ann.get("/profile"))
	assert.Empty(t, body.Novels)
	assert.Contains(t, messages(body), msgNovelDeleted)

	assert.Equal(t, http.StatusNotFound, ann.get(path).Code)
	assert.Equal(t, http.StatusNotFound, ann.delete(path).Code)
}

func TestCreateNovelWithRejectedCover(t *testing.T) {
	srv := newTestServer(t)
	ann := srv.client()
	ann.signup(t, "ann", "secret1")

	rr := ann.postNovel(t, map[string]string{"title": "Plain", "content": "words", "genre": "Comedy"},
		&coverPart{name: "notes.txt", mimeType: "text/plain", data: []byte("not an image")})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	body := decode(t, ann.get("/profile"))
	require.Len(t, body.Novels, 1)
	assert.Empty(t, body.Novels[0].CoverURL)

	files, err := filepath.Glob(filepath.Join(srv.assets.Dir(), "*"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCreateNovelValidationFlashes(t *testing.T) {
	ann := newTestServer(t).client()
	ann.signup(t, "ann", "secret1")

	rr := ann.postNovel(t, map[string]string{"title": " ", "content": ""}, nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/create", rr.Header().Get("Location"))

	body := decode(t, ann.get("/create"))
	assert.Len(t, body.Messages, 2)
	assert.Empty(t, decode(t, ann.get("/browse")).Novels)
}

func TestGenreRoutes(t *testing.T) {
	srv := newTestServer(t)
	ann := srv.client()
	ann.signup(t, "ann", "secret1")

	for _, n := range []struct{ title, genre string }{
		{"Sword", "Action"},
		{"Ghost", "Horror & Mystery"},
		{"Loose", "western"},
	} {
		rr := ann.postNovel(t, map[string]string{"title": n.title, "content": "body", "genre": n.genre}, nil)
		require.Equal(t, http.StatusSeeOther, rr.Code)
	}

	body := decode(t, ann.get("/genres/horror"))
	require.Len(t, body.Novels, 1)
	assert.Equal(t, "Ghost", body.Novels[0].Title)

	assert.Len(t, decode(t, ann.get("/browse")).Novels, 3)
	assert.Equal(t, http.StatusNotFound, ann.get("/genres/western").Code)
}

package http

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"novelhub/internal/domain"
	"novelhub/internal/service"
	"novelhub/internal/session"
	"novelhub/internal/storage"
)

const defaultMaxUploadBytes = 20 << 20

// Config wires the handler to its collaborators.
type Config struct {
	Users  service.UserService
	Novels service.NovelService
	Gate   *session.Gate
	// LocalAssets is served under its URL prefix when covers live on disk.
	LocalAssets    *storage.LocalService
	MaxUploadBytes int64
	Logger         logrus.FieldLogger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users          service.UserService
	novels         service.NovelService
	gate           *session.Gate
	assets         *storage.LocalService
	maxUploadBytes int64
	log            logrus.FieldLogger
}

func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Users == nil || cfg.Novels == nil || cfg.Gate == nil {
		return nil, errors.New("handler requires users, novels and gate")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Handler{
		users:          cfg.Users,
		novels:         cfg.Novels,
		gate:           cfg.Gate,
		assets:         cfg.LocalAssets,
		maxUploadBytes: cfg.MaxUploadBytes,
		log:            cfg.Logger.WithField("component", "http"),
	}, nil
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.log), h.gate.Middleware())
	router.MaxMultipartMemory = 8 << 20

	router.GET("/", h.home)
	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})

	router.GET("/login", h.page("login"))
	router.POST("/login", h.login)
	router.GET("/register", h.page("register"))
	router.POST("/register", h.register)
	router.GET("/logout", h.logout)
	router.POST("/logout", h.logout)

	router.GET("/browse", h.browse)
	router.GET("/genres/:slug", h.genre)
	router.GET("/search", h.search)
	router.GET("/novels/:id", h.getNovel)

	if h.assets != nil {
		router.Static(h.assets.URLPrefix(), h.assets.Dir())
	}

	authed := router.Group("", h.gate.Protect())
	{
		authed.GET("/create", h.createPage)
		authed.POST("/novels", h.createNovel)
		authed.GET("/novels/:id/manage", h.manageNovel)
		authed.DELETE("/novels/:id", h.deleteNovel)
		authed.GET("/profile", h.profile)
	}

	router.NoRoute(func(c *gin.Context) {
		h.render(c, http.StatusNotFound, gin.H{"error": "page not found"})
	})
}

// render writes a JSON page together with every notice due for display.
func (h *Handler) render(c *gin.Context, status int, body gin.H) {
	body["messages"] = session.FromGin(c).Drain()
	c.JSON(status, body)
}

// redirect carries pending notices over to the target page.
func (h *Handler) redirect(c *gin.Context, location string) {
	h.gate.Commit(c)
	c.Redirect(http.StatusSeeOther, location)
}

func (h *Handler) page(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.render(c, http.StatusOK, gin.H{"page": name})
	}
}

type NovelResponse struct {
	ID        int64        `json:"id"`
	Title     string       `json:"title"`
	Author    string       `json:"author"`
	Content   string       `json:"content"`
	Genre     domain.Genre `json:"genre"`
	CoverURL  string       `json:"cover_url,omitempty"`
	CreatedAt string       `json:"created_at"`
}

type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

type GenreResponse struct {
	Name domain.Genre `json:"name"`
	Slug string       `json:"slug"`
}

func (h *Handler) novelToResponse(ctx context.Context, novel domain.Novel) NovelResponse {
	return NovelResponse{
		ID:        novel.ID,
		Title:     novel.Title,
		Author:    novel.Author,
		Content:   novel.Body,
		Genre:     novel.Genre,
		CoverURL:  h.novels.CoverURL(ctx, novel),
		CreatedAt: novel.CreatedAt.Format(time.RFC3339),
	}
}

func userToResponse(user domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

// listNovels drains seq into responses. A failing query renders as an empty
// list; the failure is only logged.
func (h *Handler) listNovels(c *gin.Context, seq iter.Seq2[domain.Novel, error]) []NovelResponse {
	ctx := c.Request.Context()
	resp := []NovelResponse{}
	for novel, err := range seq {
		if err != nil {
			h.log.WithError(err).WithField("path", c.Request.URL.Path).Warn("query failed, rendering empty list")
			return []NovelResponse{}
		}
		resp = append(resp, h.novelToResponse(ctx, novel))
	}
	return resp
}

func (h *Handler) novelsToResponse(ctx context.Context, novels []domain.Novel) []NovelResponse {
	resp := make([]NovelResponse, len(novels))
	for i := range novels {
		resp[i] = h.novelToResponse(ctx, novels[i])
	}
	return resp
}

func parseNovelID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

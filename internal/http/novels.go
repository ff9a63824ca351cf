package http

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"novelhub/internal/domain"
	"novelhub/internal/service"
	"novelhub/internal/session"
	"novelhub/internal/upload"
)

const (
	msgNovelCreated = "Novel published"
	msgNovelDeleted = "Novel deleted"
	msgCoverFailed  = "Could not store the cover image, please try again"
	msgSaveFailed   = "Could not save your novel, please try again"
	msgFormTooLarge = "The submitted form is too large"
)

type createNovelRequest struct {
	Title   string `form:"title"`
	Content string `form:"content"`
	Genre   string `form:"genre"`
}

func (h *Handler) home(c *gin.Context) {
	shelves, err := h.novels.Featured(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Warn("load featured shelves failed")
		shelves = service.Shelves{}
	}
	ctx := c.Request.Context()
	h.render(c, http.StatusOK, gin.H{
		"newest":    h.novelsToResponse(ctx, shelves.Newest),
		"by_title":  h.novelsToResponse(ctx, shelves.ByTitle),
		"by_author": h.novelsToResponse(ctx, shelves.ByAuthor),
	})
}

func (h *Handler) browse(c *gin.Context) {
	h.render(c, http.StatusOK, gin.H{
		"novels": h.listNovels(c, h.novels.Browse(c.Request.Context())),
	})
}

func (h *Handler) genre(c *gin.Context) {
	genre, ok := domain.GenreFromSlug(c.Param("slug"))
	if !ok {
		h.render(c, http.StatusNotFound, gin.H{"error": "unknown genre"})
		return
	}
	h.render(c, http.StatusOK, gin.H{
		"genre":  GenreResponse{Name: genre, Slug: genre.Slug()},
		"novels": h.listNovels(c, h.novels.ByGenre(c.Request.Context(), genre)),
	})
}

func (h *Handler) search(c *gin.Context) {
	query := c.Query("search")
	h.render(c, http.StatusOK, gin.H{
		"search": query,
		"novels": h.listNovels(c, h.novels.Search(c.Request.Context(), query)),
	})
}

func (h *Handler) getNovel(c *gin.Context) {
	id, ok := parseNovelID(c)
	if !ok {
		h.render(c, http.StatusBadRequest, gin.H{"error": "invalid novel id"})
		return
	}

	novel, err := h.novels.Get(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, service.ErrNovelNotFound) {
			h.log.WithError(err).WithField("id", id).Warn("load novel failed")
		}
		h.render(c, http.StatusNotFound, gin.H{"error": "novel not found"})
		return
	}
	h.render(c, http.StatusOK, gin.H{"novel": h.novelToResponse(c.Request.Context(), *novel)})
}

func (h *Handler) manageNovel(c *gin.Context) {
	user, err := session.FromGin(c).RequireAuth()
	if err != nil {
		h.gate.Deny(c)
		return
	}
	id, ok := parseNovelID(c)
	if !ok {
		h.render(c, http.StatusBadRequest, gin.H{"error": "invalid novel id"})
		return
	}

	novel, err := h.novels.GetOwned(c.Request.Context(), id, user)
	if err != nil {
		if !errors.Is(err, service.ErrNovelNotFound) {
			h.log.WithError(err).WithField("id", id).Warn("load owned novel failed")
		}
		h.render(c, http.StatusNotFound, gin.H{"error": "novel not found"})
		return
	}
	h.render(c, http.StatusOK, gin.H{"novel": h.novelToResponse(c.Request.Context(), *novel)})
}

func (h *Handler) createPage(c *gin.Context) {
	genres := domain.Genres()
	resp := make([]GenreResponse, len(genres))
	for i, g := range genres {
		resp[i] = GenreResponse{Name: g, Slug: g.Slug()}
	}
	h.render(c, http.StatusOK, gin.H{"page": "create", "genres": resp})
}

func (h *Handler) createNovel(c *gin.Context) {
	rc := session.FromGin(c)
	user, err := rc.RequireAuth()
	if err != nil {
		h.gate.Deny(c)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	var req createNovelRequest
	if err := c.ShouldBind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rc.Flash(session.KindError, msgFormTooLarge)
		} else {
			rc.Flash(session.KindError, msgSaveFailed)
		}
		h.redirect(c, "/create")
		return
	}

	in := service.CreateNovelInput{
		Title: req.Title,
		Body:  req.Content,
		Genre: domain.ParseGenre(req.Genre),
	}
	header, err := c.FormFile("cover_image")
	switch {
	case err == nil:
		file, err := header.Open()
		if err != nil {
			h.log.WithError(err).Warn("open cover part failed")
			rc.Flash(session.KindError, msgCoverFailed)
			h.redirect(c, "/create")
			return
		}
		defer file.Close()
		in.Cover = coverFromPart(header, file)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		h.log.WithError(err).Warn("read cover part failed")
		rc.Flash(session.KindError, msgCoverFailed)
		h.redirect(c, "/create")
		return
	}

	_, err = h.novels.Create(c.Request.Context(), user, in)
	var verrs service.ValidationErrors
	switch {
	case err == nil:
		rc.Flash(session.KindSuccess, msgNovelCreated)
		h.redirect(c, "/")
	case errors.As(err, &verrs):
		for _, v := range verrs {
			rc.Flash(session.KindError, v.Message)
		}
		h.redirect(c, "/create")
	case errors.Is(err, service.ErrCoverUpload):
		rc.Flash(session.KindError, msgCoverFailed)
		h.redirect(c, "/create")
	default:
		rc.Flash(session.KindError, msgSaveFailed)
		h.redirect(c, "/create")
	}
}

func coverFromPart(header *multipart.FileHeader, file multipart.File) *upload.File {
	return &upload.File{
		MIMEType:     header.Header.Get("Content-Type"),
		OriginalName: header.Filename,
		Body:         file,
	}
}

func (h *Handler) deleteNovel(c *gin.Context) {
	rc := session.FromGin(c)
	user, err := rc.RequireAuth()
	if err != nil {
		h.gate.Deny(c)
		return
	}
	id, ok := parseNovelID(c)
	if !ok {
		h.render(c, http.StatusBadRequest, gin.H{"error": "invalid novel id"})
		return
	}

	err = h.novels.Delete(c.Request.Context(), id, user)
	switch {
	case err == nil:
		rc.Flash(session.KindSuccess, msgNovelDeleted)
		h.gate.Commit(c)
		c.JSON(http.StatusOK, gin.H{"redirect": "/profile"})
	case errors.Is(err, service.ErrNovelNotFound):
		h.render(c, http.StatusNotFound, gin.H{"error": "novel not found"})
	case errors.Is(err, service.ErrUnauthorized):
		h.render(c, http.StatusForbidden, gin.H{"error": "you can only delete your own novels"})
	default:
		h.log.WithError(err).WithField("id", id).Error("delete novel failed")
		h.render(c, http.StatusInternalServerError, gin.H{"error": "could not delete novel"})
	}
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"novelhub/internal/service"
	"novelhub/internal/session"
)

const (
	msgRegistered   = "you are now registered and can login"
	msgLoggedIn     = "You are now logged in"
	msgLoggedOut    = "You are logged out"
	msgBadLogin     = "Incorrect username or password"
	msgTryAgain     = "Something went wrong, please try again"
	msgFillAllField = "Please fill in all fields!"
)

type registerRequest struct {
	Username  string `form:"username" json:"username"`
	Password  string `form:"password" json:"password"`
	Password2 string `form:"password2" json:"password2"`
}

type loginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := h.users.Register(c.Request.Context(), service.RegistrationRequest{
		Username:        req.Username,
		Password:        req.Password,
		PasswordConfirm: req.Password2,
	})
	var verrs service.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		// passwords are never echoed back
		h.render(c, http.StatusUnprocessableEntity, gin.H{
			"page":     "register",
			"errors":   verrs,
			"username": req.Username,
		})
		return
	case err != nil:
		h.log.WithError(err).WithField("user", req.Username).Error("register failed")
		session.FromGin(c).Flash(session.KindError, msgTryAgain)
		h.redirect(c, "/register")
		return
	}

	session.FromGin(c).Flash(session.KindSuccess, msgRegistered)
	h.redirect(c, "/login")
}

func (h *Handler) login(c *gin.Context) {
	rc := session.FromGin(c)

	var req loginRequest
	if err := c.ShouldBind(&req); err != nil || req.Username == "" || req.Password == "" {
		rc.Flash(session.KindError, msgFillAllField)
		h.redirect(c, "/login")
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrBadCredentials):
		// one message for both so usernames cannot be probed
		rc.Flash(session.KindError, msgBadLogin)
		h.redirect(c, "/login")
		return
	case err != nil:
		h.log.WithError(err).Error("authenticate failed")
		rc.Flash(session.KindError, msgTryAgain)
		h.redirect(c, "/login")
		return
	}

	if _, ok := rc.CurrentUser(); ok {
		h.gate.Logout(c)
	}
	if err := h.gate.Login(c, user); err != nil {
		h.log.WithError(err).WithField("user", user.Username).Error("establish session failed")
		rc.Flash(session.KindError, msgTryAgain)
		h.redirect(c, "/login")
		return
	}

	rc.Flash(session.KindSuccess, msgLoggedIn)
	h.redirect(c, "/")
}

func (h *Handler) logout(c *gin.Context) {
	rc := session.FromGin(c)
	if _, ok := rc.CurrentUser(); ok {
		h.gate.Logout(c)
		rc.Flash(session.KindSuccess, msgLoggedOut)
	}
	h.redirect(c, "/")
}

func (h *Handler) profile(c *gin.Context) {
	user, err := session.FromGin(c).RequireAuth()
	if err != nil {
		h.gate.Deny(c)
		return
	}
	h.render(c, http.StatusOK, gin.H{
		"user":   userToResponse(*user),
		"novels": h.listNovels(c, h.novels.ByAuthor(c.Request.Context(), user.Username)),
	})
}

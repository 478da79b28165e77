// Package api serves the user store and session over HTTP.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-users/internal/logger"
	"github.com/celerix-dev/celerix-users/internal/session"
	"github.com/celerix-dev/celerix-users/internal/userstore"
	"github.com/celerix-dev/celerix-users/pkg/schema"
	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

type Handler struct {
	Store   *userstore.Store
	Session *session.Session
	Log     logger.Logger
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type activityRequest struct {
	Description string `json:"description" binding:"required"`
}

// userView is a UserRecord without the stored password.
type userView struct {
	Username  string      `json:"username"`
	Role      schema.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

func viewOf(u schema.UserRecord) userView {
	return userView{Username: u.Username, Role: u.Role, CreatedAt: u.CreatedAt}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("request failed", "path", c.FullPath(), "request_id", c.GetString(requestIDKey), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, userstore.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, userstore.ErrAdminProtected):
		return http.StatusForbidden
	case errors.Is(err, userstore.ErrUserNotFound):
		return http.StatusNotFound
	case userstore.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, sdk.ErrQuotaExceeded):
		return http.StatusInsufficientStorage
	}
	return http.StatusInternalServerError
}

func (h *Handler) Login(c *gin.Context) {
	var input credentialsRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	if !h.Session.Login(input.Username, input.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	user, _ := h.Session.CurrentUser()
	c.JSON(http.StatusOK, viewOf(user))
}

func (h *Handler) Logout(c *gin.Context) {
	h.Session.Logout()
	c.Status(http.StatusNoContent)
}

func (h *Handler) CurrentSession(c *gin.Context) {
	user, ok := h.Session.CurrentUser()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not logged in"})
		return
	}
	c.JSON(http.StatusOK, viewOf(user))
}

func (h *Handler) ListUsers(c *gin.Context) {
	users := h.Store.ListUsers()
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, viewOf(u))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var input credentialsRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	if err := h.Store.CreateUser(input.Username, input.Password); err != nil {
		h.fail(c, err)
		return
	}
	user, _ := h.Store.User(strings.TrimSpace(input.Username))
	c.JSON(http.StatusCreated, viewOf(user))
}

func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.Store.User(c.Param("username"))
	if !ok {
		h.fail(c, userstore.ErrUserNotFound)
		return
	}
	c.JSON(http.StatusOK, viewOf(user))
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.Store.DeleteUser(c.Param("username")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAllActivities returns the whole activity log, system entries included.
func (h *Handler) ListAllActivities(c *gin.Context) {
	list, err := h.Store.Activities()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) ListActivities(c *gin.Context) {
	list, err := h.Store.ActivitiesFor(c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) RecordActivity(c *gin.Context) {
	var input activityRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	if err := h.Store.RecordActivity(c.Param("username"), input.Description); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *Handler) ClearActivities(c *gin.Context) {
	if err := h.Store.ClearActivitiesFor(c.Param("username")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) StorageUsage(c *gin.Context) {
	usage, err := h.Store.StorageUsage()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (h *Handler) Reset(c *gin.Context) {
	if err := h.Store.ClearAll(); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Health(c *gin.Context) {
	if _, err := h.Store.Storage().Keys(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-users/internal/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

var registerTagNames sync.Once

// NewEngine builds the gin engine with every route. Middleware in extra runs
// before the handlers, after request ID and logging.
func NewEngine(h *Handler, extra ...gin.HandlerFunc) *gin.Engine {
	registerTagNames.Do(useJSONFieldNames)
	if h.Log == nil {
		h.Log = logger.NewNoOpLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), h.requestLogger())
	r.Use(extra...)

	r.GET("/health", h.Health)

	apiGroup := r.Group("/api", h.touchSession())
	{
		apiGroup.POST("/session", h.Login)
		apiGroup.GET("/session", h.CurrentSession)
		apiGroup.DELETE("/session", h.Logout)

		apiGroup.GET("/users", h.ListUsers)
		apiGroup.POST("/users", h.CreateUser)
		apiGroup.GET("/users/:username", h.GetUser)
		apiGroup.DELETE("/users/:username", h.DeleteUser)

		apiGroup.GET("/activities", h.ListAllActivities)
		apiGroup.GET("/users/:username/activities", h.ListActivities)
		apiGroup.POST("/users/:username/activities", h.RecordActivity)
		apiGroup.DELETE("/users/:username/activities", h.ClearActivities)

		apiGroup.GET("/storage", h.StorageUsage)
		apiGroup.POST("/reset", h.Reset)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// touchSession expires a stale session, otherwise counts the request as
// user activity.
func (h *Handler) touchSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.Session.Expire() && h.Session.IsLoggedIn() {
			if err := h.Session.Touch(); err != nil {
				h.Log.Warn("could not refresh session", "error", err)
			}
		}
		c.Next()
	}
}

// useJSONFieldNames makes validation errors report JSON field names.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, ", ")
}

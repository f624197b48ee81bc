package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalservices/queue-service/config"
	"github.com/digitalservices/queue-service/internal/auth"
)

type failingValidator struct{}

func (failingValidator) IsValid(context.Context, string) (bool, error) {
	return false, errors.New("token database unreachable")
}

func tokenRouter(v auth.Validator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/gated", TokenAuthMiddleware(v), func(c *gin.Context) {
		var body struct {
			Token     string `json:"Token"`
			ProcessID string `json:"ProcessId"`
		}
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"processId": body.ProcessID})
	})
	return router
}

func postGated(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/gated", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTokenAuthMiddleware(t *testing.T) {
	router := tokenRouter(auth.NewStatic("good"))

	t.Run("valid token reaches the handler with the body intact", func(t *testing.T) {
		w := postGated(router, `{"Token":"good","ProcessId":"P1"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"processId":"P1"}`, w.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		w := postGated(router, `{"Token":"bad","ProcessId":"P1"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Invalid token"}`, w.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		w := postGated(router, `{"ProcessId":"P1"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Invalid token"}`, w.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		w := postGated(router, `{"Token":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTokenAuthMiddlewareValidatorError(t *testing.T) {
	w := postGated(tokenRouter(failingValidator{}), `{"Token":"any"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "token database unreachable")
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 2}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiterConfigFrom(t *testing.T) {
	assert.Equal(t, DefaultRateLimiterConfig(), RateLimiterConfigFrom(config.RateLimitConfig{}))
	assert.Equal(t, RateLimiterConfig{RequestsPerSecond: 5, BurstSize: 7},
		RateLimiterConfigFrom(config.RateLimitConfig{RequestsPerSecond: 5, Burst: 7}))
}

func TestRunRateLimitMiddleware(t *testing.T) {
	assert.Nil(t, RunRateLimitMiddleware(config.RateLimitConfig{}))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", RunRateLimitMiddleware(config.RateLimitConfig{RunRequestsPerSecond: 0.001, RunBurst: 1}),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

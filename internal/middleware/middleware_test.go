package middleware_test

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tamamhuda/envlink-api-sub000/internal/middleware"
	"github.com/tamamhuda/envlink-api-sub000/internal/throttle"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	t.Run("generates one when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		id := w.Header().Get("X-Request-ID")
		require.NotEmpty(t, id)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagates the caller's", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Request-ID", "req-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	})
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLog(t)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.GET("/boom", func(c *gin.Context) {
		panic("kaput")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Request-ID", "req-boom")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body.Error)
	assert.Equal(t, "req-boom", body.RequestID)

	assert.Contains(t, buf.String(), "PANIC GET /boom: kaput")
	assert.Contains(t, buf.String(), "[req-boom]")
}

func TestRecovery_PanicLeavesQuotaUncharged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureLog(t)

	fx := newThrottleFixture(t, planLookupStub{})
	userID := uuid.New()

	router := gin.New()
	router.Use(middleware.Recovery())
	router.POST("/login", fx.throttle.Handle(throttle.NewRoute("login").Build()), func(c *gin.Context) {
		middleware.SetIdentity(c, &middleware.Identity{ID: userID})
		panic("handler died")
	})

	w := doRequest(router, http.MethodPost, "/login")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	// The panic never reached the interceptor, so the attempt stayed free.
	w = doRequest(router, http.MethodPost, "/login")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 0, fx.ledger.count())
}

func TestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("plain request line", func(t *testing.T) {
		buf := captureLog(t)

		router := gin.New()
		router.Use(middleware.RequestID())
		router.Use(middleware.Logger())
		router.GET("/ping", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Request-ID", "req-log")
		router.ServeHTTP(w, req)

		assert.Contains(t, buf.String(), "[req-log] GET /ping - 200")
		assert.NotContains(t, buf.String(), "scope=")
	})

	t.Run("throttled request line carries scope and charge state", func(t *testing.T) {
		buf := captureLog(t)

		fx := newThrottleFixture(t, planLookupStub{})
		userID := uuid.New()

		router := gin.New()
		router.Use(middleware.Logger())
		router.POST("/login", fx.throttle.Handle(throttle.NewRoute("login").Build()), func(c *gin.Context) {
			middleware.SetIdentity(c, &middleware.Identity{ID: userID})
			c.JSON(http.StatusOK, gin.H{"token": "t"})
		})

		w := doRequest(router, http.MethodPost, "/login")
		require.Equal(t, http.StatusOK, w.Code)

		assert.Contains(t, buf.String(), "scope=login")
		assert.Contains(t, buf.String(), "charge=charged-on-success")
	})
}

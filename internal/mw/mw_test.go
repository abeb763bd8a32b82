package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "limits are per IP")
}

func TestResponseCache(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	hits := 0

	r := gin.New()
	r.Use(rc.Middleware())
	r.GET("/collars", func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/collars", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/broken", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	send := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(method, path, nil)
		r.ServeHTTP(w, req)
		return w
	}

	first := send(http.MethodGet, "/collars?a=1&b=2")
	second := send(http.MethodGet, "/collars?b=2&a=1")
	assert.Equal(t, 1, hits)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, 1, rc.Len())

	send(http.MethodPost, "/broken")
	assert.Equal(t, 1, rc.Len(), "failed writes keep the cache")

	send(http.MethodPost, "/collars")
	assert.Zero(t, rc.Len())

	send(http.MethodGet, "/collars?a=1&b=2")
	assert.Equal(t, 2, hits, "writes flush the cache")
}

func TestActor(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()), Actor())
	r.GET("/whoami", func(c *gin.Context) {
		if id, ok := ActorID(c); ok {
			c.JSON(http.StatusOK, gin.H{"actor": *id})
			return
		}
		c.JSON(http.StatusOK, gin.H{"actor": nil})
	})

	testCases := []struct {
		name     string
		header   string
		code     int
		expected string
	}{
		{name: "no header", header: "", code: http.StatusOK, expected: `{"actor":null}`},
		{name: "valid header", header: "42", code: http.StatusOK, expected: `{"actor":42}`},
		{name: "garbage header", header: "abc", code: http.StatusBadRequest, expected: `{"error":"invalid X-User-ID header"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set(ActorHeader, tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
			assert.JSONEq(t, tc.expected, w.Body.String())
		})
	}
}

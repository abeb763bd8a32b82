package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// ResponseCache keeps successful GET responses in memory for a fixed TTL.
// Collar reads depend on every write, so any successful write seen by the
// cache drops all entries.
type ResponseCache struct {
	entries *cache.Cache
	ttl     time.Duration
}

type snapshot struct {
	status int
	header http.Header
	body   []byte
}

type recordingWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// NewResponseCache creates an empty cache.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{entries: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Invalidate drops every cached response.
func (rc *ResponseCache) Invalidate() {
	rc.entries.Flush()
}

// Len returns the number of live entries.
func (rc *ResponseCache) Len() int {
	return rc.entries.ItemCount()
}

// Middleware serves GETs from the cache and invalidates it after successful
// writes. Query parameters are keyed in sorted order. A non-positive TTL
// disables caching.
func (rc *ResponseCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rc.ttl <= 0 {
			c.Next()
			return
		}
		if c.Request.Method != http.MethodGet {
			c.Next()
			if ok2xx(c.Writer.Status()) {
				rc.Invalidate()
			}
			return
		}

		key := c.Request.URL.Path + "?" + c.Request.URL.Query().Encode()
		if v, found := rc.entries.Get(key); found {
			snap := v.(snapshot)
			h := c.Writer.Header()
			for k, vals := range snap.header {
				h[k] = vals
			}
			h.Set("X-Cache", "HIT")
			c.Writer.WriteHeader(snap.status)
			_, _ = c.Writer.Write(snap.body)
			c.Abort()
			return
		}

		rw := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rw
		c.Next()

		if ok2xx(rw.Status()) {
			rc.entries.Set(key, snapshot{
				status: rw.Status(),
				header: rw.Header().Clone(),
				body:   rw.buf.Bytes(),
			}, rc.ttl)
		}
	}
}

func ok2xx(status int) bool {
	return status >= 200 && status < 300
}

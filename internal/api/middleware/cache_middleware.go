package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResponseCache is the slice of the Redis client the response cache needs
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	ClearByPattern(ctx context.Context, pattern string) error
}

// CacheMiddleware caches GET responses per user. Keys have the shape
// <prefix>:response:<user id>:<path>, so clearing <prefix>:*:<user id>:*
// drops every cached view of that user.
type CacheMiddleware struct {
	cache  ResponseCache
	prefix string
	ttl    time.Duration
}

func NewCacheMiddleware(cache ResponseCache, prefix string, ttl time.Duration) *CacheMiddleware {
	return &CacheMiddleware{
		cache:  cache,
		prefix: prefix,
		ttl:    ttl,
	}
}

// responseBuffer is a custom ResponseWriter that stores the response
type responseBuffer struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func newResponseBuffer(original gin.ResponseWriter) *responseBuffer {
	return &responseBuffer{
		ResponseWriter: original,
		body:           bytes.NewBufferString(""),
	}
}

func (r *responseBuffer) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseBuffer) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// CacheResponse serves and stores successful GET responses. Register it
// after any compression middleware so the stored body is plain JSON.
func (m *CacheMiddleware) CacheResponse() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		userID, ok := GetUserID(c)
		if !ok {
			c.Next()
			return
		}
		key := m.cacheKey(userID.String(), c)

		if cached, err := m.cache.Get(c.Request.Context(), key); err == nil {
			var response map[string]interface{}
			if err := json.Unmarshal([]byte(cached), &response); err == nil {
				c.Header("X-Cache", "HIT")
				c.JSON(http.StatusOK, response)
				c.Abort()
				return
			}
		}

		writer := c.Writer
		buff := newResponseBuffer(writer)
		c.Writer = buff
		c.Header("X-Cache", "MISS")

		c.Next()

		if buff.Status() == http.StatusOK {
			if err := m.cache.Set(c.Request.Context(), key, buff.body.String(), m.ttl); err != nil {
				log.Error("Failed to cache response", zap.Error(err), zap.String("key", key))
			}
		}

		c.Writer = writer
	}
}

// CacheInvalidateUser clears the caller's cached responses after a
// successful write
func (m *CacheMiddleware) CacheInvalidateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if m.cache == nil {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		userID, ok := GetUserID(c)
		if !ok {
			return
		}
		pattern := fmt.Sprintf("%s:*:%s:*", m.prefix, userID)
		if err := m.cache.ClearByPattern(c.Request.Context(), pattern); err != nil {
			log.Error("Failed to invalidate cache", zap.Error(err), zap.String("pattern", pattern))
		}
	}
}

func (m *CacheMiddleware) cacheKey(userID string, c *gin.Context) string {
	parts := []string{m.prefix, "response", userID, strings.TrimSuffix(c.Request.URL.Path, "/")}
	if c.Request.URL.RawQuery != "" {
		parts = append(parts, c.Request.URL.RawQuery)
	}
	return strings.Join(parts, ":")
}

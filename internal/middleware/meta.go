package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

type responseMeta struct {
	start  time.Time
	values map[string]interface{}
}

// WithResponseMeta starts the request clock used for processing_time_ms.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{start: time.Now(), values: map[string]interface{}{}})
		c.Next()
	}
}

// SetMeta records a value to be returned in the envelope meta block.
func SetMeta(c *gin.Context, key string, value interface{}) {
	metaFor(c).values[key] = value
}

// SetCacheHit marks whether the response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, "cache_hit", hit)
}

// ResponseMeta returns the collected values plus the elapsed processing time.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	meta := metaFor(c)
	out := make(map[string]interface{}, len(meta.values)+1)
	for k, v := range meta.values {
		out[k] = v
	}
	out["processing_time_ms"] = time.Since(meta.start).Milliseconds()
	return out
}

// metaFor tolerates routes mounted without WithResponseMeta; the clock then
// starts at first use.
func metaFor(c *gin.Context) *responseMeta {
	if v, ok := c.Get(responseMetaKey); ok {
		if meta, ok := v.(*responseMeta); ok {
			return meta
		}
	}
	meta := &responseMeta{start: time.Now(), values: map[string]interface{}{}}
	c.Set(responseMetaKey, meta)
	return meta
}

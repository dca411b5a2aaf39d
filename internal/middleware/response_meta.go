package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"

	metaProcessingTime = "processing_time_ms"
	metaCacheHit       = "cache_hit"
)

type responseMeta struct {
	start  time.Time
	fields map[string]interface{}
}

// WithResponseMeta starts the per-request metadata that handlers attach to the envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{start: time.Now(), fields: map[string]interface{}{}})
		c.Next()
	}
}

// SetCacheHit marks whether the payload of this response came from the cache.
func SetCacheHit(c *gin.Context, hit bool) {
	if meta := lookupMeta(c); meta != nil {
		meta.fields[metaCacheHit] = hit
	}
}

// ExtractMeta returns the metadata collected so far with the elapsed processing
// time. It returns nil when WithResponseMeta is not installed.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := lookupMeta(c)
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta.fields)+1)
	for k, v := range meta.fields {
		out[k] = v
	}
	out[metaProcessingTime] = time.Since(meta.start).Milliseconds()
	return out
}

func lookupMeta(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	value, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, _ := value.(*responseMeta)
	return meta
}

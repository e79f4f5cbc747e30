package middleware

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const (
	invalidJSONMessage  = "invalid JSON body"
	bodyTooLargeMessage = "request body too large"
	defaultMaxBodyBytes = 100 * 1024
)

// JSONBodyMiddleware parses JSON request bodies up to maxBytes and caches the raw
// bytes on the context under gin.BodyBytesKey. Only objects and arrays are accepted.
func JSONBodyMiddleware(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}

	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody || c.Request.ContentLength == 0 || !isJSONContentType(c.ContentType()) {
			c.Next()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		var payload interface{}
		if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": bodyTooLargeMessage})
			case errors.Is(err, io.EOF):
				c.Next()
			default:
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": invalidJSONMessage})
			}
			return
		}

		switch payload.(type) {
		case map[string]interface{}, []interface{}:
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": invalidJSONMessage})
		}
	}
}

func isJSONContentType(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return contentType == binding.MIMEJSON || strings.HasSuffix(contentType, "+json")
}

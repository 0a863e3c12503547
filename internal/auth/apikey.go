// Package auth gates the HTTP surface behind a single shared API key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Header carries the key on requests. A standard Authorization bearer
// token is accepted as an alternative for clients that cannot set
// custom headers.
const Header = "X-FaceID-Key"

const bearerPrefix = "Bearer "

// APIKeyMiddleware rejects requests that do not present the configured
// key. An empty key disables authentication entirely.
func APIKeyMiddleware(key string) gin.HandlerFunc {
	disabled := key == ""
	want := []byte(key)

	return func(c *gin.Context) {
		if disabled {
			c.Next()
			return
		}

		provided := keyFrom(c)
		switch {
		case provided == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing api key",
			})
		case subtle.ConstantTimeCompare([]byte(provided), want) != 1:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid api key",
			})
		default:
			c.Next()
		}
	}
}

func keyFrom(c *gin.Context) string {
	if v := c.GetHeader(Header); v != "" {
		return v
	}
	if v := c.GetHeader("Authorization"); strings.HasPrefix(v, bearerPrefix) {
		return strings.TrimPrefix(v, bearerPrefix)
	}
	return ""
}

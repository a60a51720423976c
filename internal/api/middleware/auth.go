package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuthKeyHeader carries the pre-shared key on REST requests.
const AuthKeyHeader = "X-AuthKey"

// AuthKey rejects requests whose X-AuthKey header does not match key.
func AuthKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(AuthKeyHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid or missing " + AuthKeyHeader,
			})
			return
		}
		c.Next()
	}
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailtriage/internal/util"
)

// AuthMiddleware rejects any request that doesn't carry a valid admin
// bearer token. There is only one caller identity in this system, so
// unlike the register/login flow it replaces, nothing is attached to
// the gin context past "this request is authorized".
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		if err := util.ParseAdminToken(token, jwtSecret); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

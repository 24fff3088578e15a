package api

import (
	"fmt"
	"net/http"
	"strings"

	"pos-service/internal/apperr"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

const callerKey = "caller_id"

// authMiddleware resolves the caller identity from an HS256 bearer token whose subject is
// the staff user id. Requests without a token pass through anonymous.
func authMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header || tokenString == "" {
			abortUnauthenticated(c, "malformed authorization header")
			return
		}

		claims := &jwt.StandardClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			abortUnauthenticated(c, "invalid token")
			return
		}

		c.Set(callerKey, claims.Subject)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   apperr.Unauthenticated,
		"message": msg,
	})
}

// callerID is the authenticated staff id, empty for anonymous requests
func callerID(c *gin.Context) string {
	return c.GetString(callerKey)
}

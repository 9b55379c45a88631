// Package middleware provides HTTP middleware for the admin API server.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// BearerAuth guards a route group with a single static admin token,
// appropriate for a replica's admin surface which has no user
// accounts to authenticate, only an operator who holds the token.
func BearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Claims is the payload of an admin-issued JWT, used when an operator
// wants short-lived tokens instead of the static BearerAuth token.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// SignAdminToken issues a JWT for subject signed with secret.
func SignAdminToken(secret []byte, subject string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Subject: subject, RegisteredClaims: claims})
	return token.SignedString(secret)
}

// JWTAuth guards a route group with a signed admin JWT instead of a
// static token, for operators who rotate credentials.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}
		claims := &Claims{}
		_, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		c.Set("admin_subject", claims.Subject)
		c.Next()
	}
}

// Package auth is the boundary to the authentication collaborator: it
// verifies the bearer token and hands the core a trusted userId. No
// credential handling lives here.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

// ContextUserKey is where the verified user id lands on the gin context.
const ContextUserKey = "userID"

// GenerateToken signs a token for the given user id. Used by tooling and
// tests; production tokens come from the auth provider with the same shape.
func GenerateToken(userID, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
	})
	return token.SignedString([]byte(secret))
}

// VerifyToken validates the signature and returns the userId claim.
func VerifyToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	userID, ok := claims["userId"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("token has no userId claim")
	}
	return userID, nil
}

// Middleware rejects requests without a valid bearer token and exposes the
// verified user id under ContextUserKey.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		userID, err := VerifyToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextUserKey, userID)
		c.Next()
	}
}

// UserID pulls the verified user id off the gin context.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserKey)
}

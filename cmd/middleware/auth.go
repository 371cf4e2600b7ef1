package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wb-go/wbf/zlog"

	"leadcapture/internal/dto"
)

const AdminRole = "admin"

// AdminAuth guards administrative routes with an HS256 bearer token whose
// "role" claim is "admin". An empty secret turns the check off.
func AdminAuth(secret string) gin.HandlerFunc {
	if secret == "" {
		zlog.Logger.Warn().Msg("admin auth secret is empty, admin routes are unprotected")
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			dto.UnauthorizedError(c, "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		claims := jwt.MapClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			dto.UnauthorizedError(c, "invalid token")
			return
		}

		if role, _ := claims["role"].(string); role != AdminRole {
			dto.UnauthorizedError(c, "admin role required")
			return
		}

		c.Set("admin_sub", claims["sub"])
		c.Next()
	}
}

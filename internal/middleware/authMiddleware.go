package middleware

import (
	"database/sql"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/virtuex/exchange-backend/internal/models"
)

// RequireAuth verifies the bearer token and loads the user row into the gin
// context under "user".
func RequireAuth(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := userFromRequest(c, db)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

// OptionalAuth loads the user when a valid token is present and continues
// anonymously otherwise.
func OptionalAuth(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, ok := userFromRequest(c, db); ok {
			c.Set("user", user)
		}
		c.Next()
	}
}

func userFromRequest(c *gin.Context, db *sql.DB) (*models.User, bool) {
	jwtSecret := os.Getenv("ACCESS_TOKEN_SECRET")

	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	userIDStr, ok := claims["userId"].(string)
	if !ok || userIDStr == "" {
		return nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, false
	}

	var user models.User
	err = db.QueryRowContext(c.Request.Context(), `
		SELECT id, bank_id, name, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.BankID, &user.Name, &user.CreatedAt)
	if err != nil {
		return nil, false
	}
	return &user, true
}

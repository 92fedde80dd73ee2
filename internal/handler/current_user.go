package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/virtuex/exchange-backend/internal/models"
)

// GetCurrentUser returns the user loaded by the auth middleware.
func GetCurrentUser(c *gin.Context) (*models.User, error) {
	v, ok := c.Get("user")
	if !ok || v == nil {
		return nil, errors.New("user not found in context")
	}
	u, ok := v.(*models.User)
	if !ok {
		return nil, errors.New("invalid user type in context")
	}
	return u, nil
}

package controller

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/virtuex/exchange-backend/internal/models"
	"github.com/virtuex/exchange-backend/internal/repo"
	"github.com/virtuex/exchange-backend/internal/service"
)

type SignupRequest struct {
	Name     string `json:"name" binding:"required"`
	BankID   string `json:"bank_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SigninRequest struct {
	BankID   string `json:"bank_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type jwtClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

var accessTTL = 24 * time.Hour

// Signup registers a user after verifying the bank id against the ledger
// service with a zero-amount check.
func Signup(db *sql.DB, users *repo.UserRepo, ext *service.ExternalServices) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parameters"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		if err := ext.Check(ctx, req.BankID, 0); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "bank user not found"})
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "password hashing failed"})
			return
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "system error"})
			return
		}
		defer tx.Rollback()

		user := &models.User{
			BankID:   req.BankID,
			Name:     req.Name,
			Password: string(hashed),
		}
		if err := users.Insert(ctx, tx, user); err != nil {
			if errors.Is(err, repo.ErrBankIDTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "bank user conflict"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "system error"})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "system error"})
			return
		}

		ext.Send("signup", map[string]interface{}{
			"bank_id": user.BankID,
			"user_id": user.ID,
			"name":    user.Name,
		})
		c.Status(http.StatusNoContent)
	}
}

// Signin checks the password and issues a bearer token.
func Signin(db *sql.DB, users *repo.UserRepo, ext *service.ExternalServices) gin.HandlerFunc {
	return func(c *gin.Context) {
		jwtSecret := os.Getenv("ACCESS_TOKEN_SECRET")

		var req SigninRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parameters"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		user, err := users.GetByBankID(ctx, db, req.BankID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "system error"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		claims := jwtClaims{
			UserID: user.ID.String(),
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(accessTTL)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
			},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		accessToken, err := token.SignedString([]byte(jwtSecret))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "system error"})
			return
		}

		ext.Send("signin", map[string]interface{}{"user_id": user.ID})

		c.JSON(http.StatusOK, gin.H{
			"accessToken": accessToken,
			"expiresIn":   int(accessTTL.Seconds()),
			"user":        user,
		})
	}
}

// Signout exists for API symmetry; bearer tokens carry no server-side state.
func Signout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	}
}

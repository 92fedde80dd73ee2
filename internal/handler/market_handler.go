package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/virtuex/exchange-backend/internal/models"
	"github.com/virtuex/exchange-backend/internal/service"
)

type MarketHandler struct{ svc *service.InfoService }

func NewMarketHandler(s *service.InfoService) *MarketHandler { return &MarketHandler{svc: s} }

// Info serves the market overview. Anonymous requests get the shared
// snapshot; authenticated ones also get their orders settled after cursor.
func (h *MarketHandler) Info(c *gin.Context) {
	var cursor int64
	if s := c.Query("cursor"); s != "" {
		var err error
		cursor, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
	}

	var user *models.User
	if u, err := GetCurrentUser(c); err == nil {
		user = u
	}

	info, err := h.svc.Info(c.Request.Context(), user, cursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

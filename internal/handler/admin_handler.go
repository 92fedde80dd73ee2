package handler

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/virtuex/exchange-backend/internal/auditlog"
	"github.com/virtuex/exchange-backend/internal/bank"
	"github.com/virtuex/exchange-backend/internal/repo"
	"github.com/virtuex/exchange-backend/internal/service"
)

type initializeReq struct {
	BankEndpoint string `form:"bank_endpoint" binding:"required"`
	BankAppID    string `form:"bank_appid" binding:"required"`
	LogEndpoint  string `form:"log_endpoint" binding:"required"`
	LogAppID     string `form:"log_appid" binding:"required"`
}

type AdminHandler struct {
	db       *sql.DB
	settings *repo.SettingRepo
	ext      *service.ExternalServices
	log      *zap.Logger
}

func NewAdminHandler(db *sql.DB, settings *repo.SettingRepo, ext *service.ExternalServices, log *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, settings: settings, ext: ext, log: log}
}

// Initialize wipes exchange state and registers fresh external endpoints.
func (h *AdminHandler) Initialize(c *gin.Context) {
	var req initializeReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.db.ExecContext(ctx, `TRUNCATE orders, trade, users`); err != nil {
		h.log.Error("initialize truncate failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "initialize failed"})
		return
	}

	for name, val := range map[string]string{
		repo.BankEndpoint: req.BankEndpoint,
		repo.BankAppID:    req.BankAppID,
		repo.LogEndpoint:  req.LogEndpoint,
		repo.LogAppID:     req.LogAppID,
	} {
		if err := h.settings.Set(ctx, h.db, name, val); err != nil {
			h.log.Error("initialize setting store failed", zap.String("name", name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "initialize failed"})
			return
		}
	}

	bk, err := bank.NewClient(req.BankEndpoint, req.BankAppID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bank endpoint"})
		return
	}
	audit, err := auditlog.NewClient(req.LogEndpoint, req.LogAppID, h.log)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log endpoint"})
		return
	}
	h.ext.Swap(bk, audit)

	c.Status(http.StatusNoContent)
}

package handler

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/virtuex/exchange-backend/internal/repo"
	"github.com/virtuex/exchange-backend/internal/service"
)

type Handler struct {
	OrderHandler  *OrderHandler
	MarketHandler *MarketHandler
	AdminHandler  *AdminHandler
	TradeHub      *TradeHub
}

func NewHandler(db *sql.DB, orderSvc *service.OrderService, infoSvc *service.InfoService, settings *repo.SettingRepo, ext *service.ExternalServices, log *zap.Logger) *Handler {
	hub := NewTradeHub(log)
	go hub.Run()

	return &Handler{
		OrderHandler:  NewOrderHandler(orderSvc),
		MarketHandler: NewMarketHandler(infoSvc),
		AdminHandler:  NewAdminHandler(db, settings, ext, log),
		TradeHub:      hub,
	}
}

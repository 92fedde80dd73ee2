package route

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"github.com/virtuex/exchange-backend/internal/controller"
	"github.com/virtuex/exchange-backend/internal/handler"
	"github.com/virtuex/exchange-backend/internal/middleware"
	"github.com/virtuex/exchange-backend/internal/repo"
	"github.com/virtuex/exchange-backend/internal/service"
)

func AuthRoutes(r *gin.Engine, db *sql.DB, users *repo.UserRepo, ext *service.ExternalServices) {
	r.POST("/signup", controller.Signup(db, users, ext))
	r.POST("/signin", controller.Signin(db, users, ext))
	r.POST("/signout", controller.Signout())
}

func MarketRoutes(r *gin.Engine, db *sql.DB, h *handler.Handler) {
	r.POST("/initialize", h.AdminHandler.Initialize)
	r.GET("/info", middleware.OptionalAuth(db), h.MarketHandler.Info)
	r.GET("/ws", h.TradeHub.HandleWebSocket)
}

func OrderRoutes(r *gin.Engine, db *sql.DB, h *handler.Handler) {
	orders := r.Group("/")
	orders.Use(middleware.RequireAuth(db))

	orders.POST("/orders", h.OrderHandler.Place)
	orders.GET("/orders", h.OrderHandler.List)
	orders.DELETE("/order/:id", h.OrderHandler.Cancel)
}

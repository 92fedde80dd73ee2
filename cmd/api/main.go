package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/virtuex/exchange-backend/internal/auditlog"
	"github.com/virtuex/exchange-backend/internal/bank"
	"github.com/virtuex/exchange-backend/internal/data"
	"github.com/virtuex/exchange-backend/internal/handler"
	"github.com/virtuex/exchange-backend/internal/models"
	"github.com/virtuex/exchange-backend/internal/repo"
	"github.com/virtuex/exchange-backend/internal/route"
	"github.com/virtuex/exchange-backend/internal/service"
)

func main() {
	godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	r := gin.Default()
	r.SetTrustedProxies(nil)

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3001"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Upgrade", "Connection"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))

	port := os.Getenv("PORT")
	if port == "" {
		port = "10000"
	}

	pg, err := data.NewPostgres()
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pg.Close()

	rd, err := data.NewRedis()
	if err != nil {
		logger.Warn("redis connection failed, proceeding without cache", zap.Error(err))
		rd = nil
	}
	if rd != nil {
		defer rd.Close()
	}

	var cacheService *service.CacheService
	if rd != nil {
		cacheService = service.NewCacheService(rd.Client)
	}

	orderRepo := repo.NewOrderRepo(pg.DB)
	tradeRepo := repo.NewTradeRepo(pg.DB)
	userRepo := repo.NewUserRepo(pg.DB)
	settingRepo := repo.NewSettingRepo(pg.DB)

	bk, audit := externalClients(pg.DB, settingRepo, logger)
	ext := service.NewExternalServices(bk, audit)

	tradeService := service.NewTradeService(pg.DB, orderRepo, tradeRepo, userRepo, ext, ext, logger)
	orderService := service.NewOrderService(pg.DB, orderRepo, tradeRepo, userRepo, ext, ext, tradeService, logger)
	infoService := service.NewInfoService(pg.DB, orderRepo, tradeRepo, cacheService, logger)

	handle := handler.NewHandler(pg.DB, orderService, infoService, settingRepo, ext, logger)

	tradeService.OnTrade = func(trade *models.Trade) {
		handle.TradeHub.BroadcastTrade(trade)
		if cacheService != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := cacheService.InvalidateInfoSnapshot(ctx); err != nil {
				logger.Warn("snapshot invalidation failed", zap.Error(err))
			}
		}
	}

	route.AuthRoutes(r, pg.DB, userRepo, ext)
	route.MarketRoutes(r, pg.DB, handle)
	route.OrderRoutes(r, pg.DB, handle)

	if err := r.Run(":" + port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// externalClients builds the bank and audit log clients from the setting
// table, falling back to the environment until initialize is called.
func externalClients(db *sql.DB, settings *repo.SettingRepo, logger *zap.Logger) (*bank.Client, *auditlog.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	get := func(name, envKey string) string {
		if v, err := settings.Get(ctx, db, name); err == nil && v != "" {
			return v
		}
		return os.Getenv(envKey)
	}

	bankEndpoint := get(repo.BankEndpoint, "BANK_ENDPOINT")
	bankAppID := get(repo.BankAppID, "BANK_APPID")
	logEndpoint := get(repo.LogEndpoint, "LOG_ENDPOINT")
	logAppID := get(repo.LogAppID, "LOG_APPID")

	bk, err := bank.NewClient(bankEndpoint, bankAppID)
	if err != nil {
		logger.Fatal("bank client setup failed", zap.Error(err))
	}
	audit, err := auditlog.NewClient(logEndpoint, logAppID, logger)
	if err != nil {
		logger.Fatal("audit log client setup failed", zap.Error(err))
	}
	return bk, audit
}

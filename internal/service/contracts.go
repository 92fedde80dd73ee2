package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/virtuex/exchange-backend/internal/models"
	"github.com/virtuex/exchange-backend/internal/repo"
)

// OrderStore is the order-book contract the services consume. The repo
// package provides the Postgres implementation; tests substitute fakes.
type OrderStore interface {
	Insert(ctx context.Context, tx *sql.Tx, o *models.Order) error
	GetByID(ctx context.Context, q repo.Queryer, id int64) (*models.Order, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error)
	LowestSellOrder(ctx context.Context, q repo.Queryer) (*models.Order, error)
	HighestBuyOrder(ctx context.Context, q repo.Queryer) (*models.Order, error)
	SelectCrossing(ctx context.Context, tx *sql.Tx, takerType models.OrderType, price int64) ([]*models.Order, error)
	CloseAsCanceled(ctx context.Context, q repo.Queryer, id int64) error
	CloseAsTraded(ctx context.Context, tx *sql.Tx, ids []int64, tradeID int64) error
	GetByUserID(ctx context.Context, q repo.Queryer, userID uuid.UUID) ([]*models.Order, error)
	GetByUserIDAndLastTradeID(ctx context.Context, q repo.Queryer, userID uuid.UUID, tradeID int64) ([]*models.Order, error)
}

type TradeStore interface {
	Insert(ctx context.Context, tx *sql.Tx, t *models.Trade) error
	GetByID(ctx context.Context, q repo.Queryer, id int64) (*models.Trade, error)
	Latest(ctx context.Context, q repo.Queryer) (*models.Trade, error)
	Candles(ctx context.Context, q repo.Queryer, since time.Time, trunc string) ([]*models.CandlestickData, error)
}

type UserStore interface {
	GetByID(ctx context.Context, q repo.Queryer, id uuid.UUID) (*models.User, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.User, error)
	GetByBankID(ctx context.Context, q repo.Queryer, bankID string) (*models.User, error)
}

// Bank is the ledger contract. Reserve/Commit/Cancel implement the hold
// protocol; the engine never infers balance state without calling it.
type Bank interface {
	Check(ctx context.Context, bankID string, price int64) error
	Reserve(ctx context.Context, bankID string, price int64) (int64, error)
	Commit(ctx context.Context, reserveIDs []int64) error
	Cancel(ctx context.Context, reserveIDs []int64) error
}

// AuditLogger delivers structured events to the external sink without ever
// blocking or failing the caller.
type AuditLogger interface {
	Send(tag string, data interface{})
}

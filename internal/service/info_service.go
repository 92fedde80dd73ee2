package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/virtuex/exchange-backend/internal/models"
)

const snapshotTTL = time.Second

// Snapshot is the user-independent part of the /info payload.
type Snapshot struct {
	Cursor          int64                     `json:"cursor"`
	ChartBySec      []*models.CandlestickData `json:"chart_by_sec"`
	ChartByMin      []*models.CandlestickData `json:"chart_by_min"`
	ChartByHour     []*models.CandlestickData `json:"chart_by_hour"`
	LowestSellPrice int64                     `json:"lowest_sell_price,omitempty"`
	HighestBuyPrice int64                     `json:"highest_buy_price,omitempty"`
}

type Info struct {
	Snapshot
	TradedOrders []*models.Order `json:"traded_orders,omitempty"`
	EnableShare  bool            `json:"enable_share"`
}

type InfoService struct {
	db     *sql.DB
	orders OrderStore
	trades TradeStore
	cache  *CacheService // optional
	log    *zap.Logger
}

func NewInfoService(db *sql.DB, orders OrderStore, trades TradeStore, cache *CacheService, log *zap.Logger) *InfoService {
	return &InfoService{db: db, orders: orders, trades: trades, cache: cache, log: log}
}

// Info assembles the market overview. When a user is given, their orders
// settled after the client's cursor are included.
func (s *InfoService) Info(ctx context.Context, user *models.User, cursor int64) (*Info, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	info := &Info{Snapshot: *snap}
	if user != nil {
		traded, err := s.orders.GetByUserIDAndLastTradeID(ctx, s.db, user.ID, cursor)
		if err != nil {
			return nil, fmt.Errorf("traded orders: %w", err)
		}
		for _, o := range traded {
			o.User = user
			if o.TradeID != nil {
				t, err := s.trades.GetByID(ctx, s.db, *o.TradeID)
				if err != nil {
					return nil, fmt.Errorf("fetch order trade: %w", err)
				}
				o.Trade = t
			}
		}
		info.TradedOrders = traded
	}
	return info, nil
}

func (s *InfoService) snapshot(ctx context.Context) (*Snapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.GetInfoSnapshot(ctx)
		if err != nil {
			s.log.Warn("info snapshot cache read failed", zap.Error(err))
		} else if snap != nil {
			return snap, nil
		}
	}

	snap := &Snapshot{}
	latest, err := s.trades.Latest(ctx, s.db)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No trades yet: empty charts, zero cursor.
	case err != nil:
		return nil, fmt.Errorf("latest trade: %w", err)
	default:
		snap.Cursor = latest.ID
		base := latest.CreatedAt
		if snap.ChartBySec, err = s.trades.Candles(ctx, s.db, base.Add(-300*time.Second), "second"); err != nil {
			return nil, fmt.Errorf("chart by sec: %w", err)
		}
		if snap.ChartByMin, err = s.trades.Candles(ctx, s.db, base.Add(-300*time.Minute), "minute"); err != nil {
			return nil, fmt.Errorf("chart by min: %w", err)
		}
		if snap.ChartByHour, err = s.trades.Candles(ctx, s.db, base.Add(-48*time.Hour), "hour"); err != nil {
			return nil, fmt.Errorf("chart by hour: %w", err)
		}
	}

	lowest, err := s.orders.LowestSellOrder(ctx, s.db)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("lowest sell order: %w", err)
	default:
		snap.LowestSellPrice = lowest.Price
	}

	highest, err := s.orders.HighestBuyOrder(ctx, s.db)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("highest buy order: %w", err)
	default:
		snap.HighestBuyPrice = highest.Price
	}

	if s.cache != nil {
		if err := s.cache.SetInfoSnapshot(ctx, snap, snapshotTTL); err != nil {
			s.log.Warn("info snapshot cache write failed", zap.Error(err))
		}
	}
	return snap, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/virtuex/exchange-backend/internal/bank"
	"github.com/virtuex/exchange-backend/internal/models"
)

type PlaceOrderReq struct {
	Type   models.OrderType `json:"type" binding:"required,oneof=buy sell"`
	Amount int64            `json:"amount" binding:"required,gt=0"`
	Price  int64            `json:"price" binding:"required,gt=0"`
}

type OrderService struct {
	db      *sql.DB
	orders  OrderStore
	trades  TradeStore
	users   UserStore
	bank    Bank
	audit   AuditLogger
	matcher *TradeService
	log     *zap.Logger

	// inTx wraps one write flow in a transaction scope. Replaced in tests
	// to run flows without a database.
	inTx func(ctx context.Context, fn func(*sql.Tx) error) error
}

func NewOrderService(db *sql.DB, orders OrderStore, trades TradeStore, users UserStore, bk Bank, audit AuditLogger, matcher *TradeService, log *zap.Logger) *OrderService {
	s := &OrderService{
		db: db, orders: orders, trades: trades, users: users,
		bank: bk, audit: audit, matcher: matcher, log: log,
	}
	s.inTx = s.transact
	return s
}

// PlaceOrder inserts a new order and, when it crosses the opposing best
// price, runs the matcher. A matching failure never fails the placement; it
// is logged and swallowed at this boundary.
func (s *OrderService) PlaceOrder(ctx context.Context, userID uuid.UUID, req PlaceOrderReq) (*models.Order, error) {
	if req.Amount <= 0 || req.Price <= 0 {
		return nil, ErrParameterInvalid
	}
	if req.Type != models.OrderTypeBuy && req.Type != models.OrderTypeSell {
		return nil, ErrParameterInvalid
	}

	var order *models.Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// Lock the owner row before touching the bank so concurrent
		// placements by the same user are serialized.
		user, err := s.users.GetForUpdate(ctx, tx, userID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrUserNotFound
		case err != nil:
			return fmt.Errorf("lock user: %w", err)
		}

		if req.Type == models.OrderTypeBuy {
			total := req.Price * req.Amount
			if err := s.bank.Check(ctx, user.BankID, total); err != nil {
				s.audit.Send("buy.error", map[string]interface{}{
					"error":   err.Error(),
					"user_id": user.ID,
					"amount":  req.Amount,
					"price":   req.Price,
				})
				if errors.Is(err, bank.ErrCreditInsufficient) {
					return ErrCreditInsufficient
				}
				return fmt.Errorf("bank check: %w", err)
			}
		}

		order = &models.Order{
			Type:   req.Type,
			UserID: user.ID,
			Amount: req.Amount,
			Price:  req.Price,
		}
		if err := s.orders.Insert(ctx, tx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		s.audit.Send(string(order.Type)+".order", map[string]interface{}{
			"order_id": order.ID,
			"user_id":  order.UserID,
			"amount":   order.Amount,
			"price":    order.Price,
		})
		order.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if chance, err := s.matcher.HasTradeChance(ctx, order); err != nil {
		s.log.Warn("trade chance check failed", zap.Int64("order_id", order.ID), zap.Error(err))
	} else if chance {
		if err := s.matcher.RunTrade(ctx); err != nil {
			s.log.Warn("matching failed after order placement",
				zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}
	return order, nil
}

// CancelOrder closes the caller's open order. It performs no bank calls; an
// order currently locked by a matching attempt blocks here until that
// attempt's transaction ends, then reports ErrOrderAlreadyClosed.
func (s *OrderService) CancelOrder(ctx context.Context, userID uuid.UUID, orderID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		user, err := s.users.GetForUpdate(ctx, tx, userID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrUserNotFound
		case err != nil:
			return fmt.Errorf("lock user: %w", err)
		}

		order, err := s.orders.GetForUpdate(ctx, tx, orderID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrOrderNotFound
		case err != nil:
			return fmt.Errorf("lock order: %w", err)
		case order.UserID != user.ID:
			return ErrOrderNotFound
		case !order.IsOpen():
			return ErrOrderAlreadyClosed
		}

		if err := s.orders.CloseAsCanceled(ctx, tx, order.ID); err != nil {
			return fmt.Errorf("close order as canceled: %w", err)
		}
		s.audit.Send(string(order.Type)+".delete", map[string]interface{}{
			"order_id": order.ID,
			"user_id":  order.UserID,
			"reason":   "canceled",
		})
		return nil
	})
}

// ListOrders returns the user's open or traded orders with their user and
// trade relations attached.
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	orders, err := s.orders.GetByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	for _, o := range orders {
		if err := s.fetchRelations(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *OrderService) fetchRelations(ctx context.Context, o *models.Order) error {
	u, err := s.users.GetByID(ctx, s.db, o.UserID)
	if err != nil {
		return fmt.Errorf("fetch order user: %w", err)
	}
	o.User = u
	if o.TradeID != nil {
		t, err := s.trades.GetByID(ctx, s.db, *o.TradeID)
		if err != nil {
			return fmt.Errorf("fetch order trade: %w", err)
		}
		o.Trade = t
	}
	return nil
}

func (s *OrderService) transact(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

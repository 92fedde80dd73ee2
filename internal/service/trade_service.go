package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/virtuex/exchange-backend/internal/bank"
	"github.com/virtuex/exchange-backend/internal/models"
)

// TradeService is the matching engine. Each settlement attempt runs inside
// one database transaction: it locks the initiating order and its owner,
// reserves funds at the bank, accumulates crossing orders until the amount
// is filled exactly, then persists the trade and commits every reservation.
// Any failure before the commit releases every reservation taken so far.
type TradeService struct {
	db     *sql.DB
	orders OrderStore
	trades TradeStore
	users  UserStore
	bank   Bank
	audit  AuditLogger
	log    *zap.Logger

	// OnTrade, when set, is invoked after each settled trade, outside the
	// settlement transaction.
	OnTrade func(*models.Trade)

	// inTx wraps one settlement attempt in a transaction scope. Replaced in
	// tests to run attempts without a database.
	inTx func(ctx context.Context, fn func(*sql.Tx) error) error
}

func NewTradeService(db *sql.DB, orders OrderStore, trades TradeStore, users UserStore, bk Bank, audit AuditLogger, log *zap.Logger) *TradeService {
	s := &TradeService{
		db:     db,
		orders: orders,
		trades: trades,
		users:  users,
		bank:   bk,
		audit:  audit,
		log:    log,
	}
	s.inTx = s.transact
	return s
}

// transact commits when the attempt succeeded or failed with a recoverable
// outcome whose side effects (order cancellations, audit rows) must persist;
// everything else rolls back.
func (s *TradeService) transact(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	err = fn(tx)
	switch {
	case err == nil,
		errors.Is(err, ErrNoOrderForTrade),
		errors.Is(err, ErrOrderAlreadyClosed),
		errors.Is(err, bank.ErrCreditInsufficient):
		if cerr := tx.Commit(); cerr != nil {
			return fmt.Errorf("commit transaction: %w", cerr)
		}
	default:
		tx.Rollback()
	}
	return err
}

// HasTradeChance reports whether the order crosses the current best price on
// the opposing side, i.e. whether running the matcher could settle anything.
func (s *TradeService) HasTradeChance(ctx context.Context, order *models.Order) (bool, error) {
	lowest, err := s.orders.LowestSellOrder(ctx, s.db)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lowest sell order: %w", err)
	}

	highest, err := s.orders.HighestBuyOrder(ctx, s.db)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("highest buy order: %w", err)
	}

	switch order.Type {
	case models.OrderTypeBuy:
		return lowest.Price <= order.Price, nil
	case models.OrderTypeSell:
		return order.Price <= highest.Price, nil
	}
	return false, fmt.Errorf("unknown order type [%s]", order.Type)
}

// RunTrade settles crosses until none remains. After every settled trade the
// book is re-read from scratch, since state has changed. The loop stops
// cleanly when no cross exists or neither best order can be filled exactly;
// an insufficient-credit failure of an initiating order halts it with the
// error (the order itself is already canceled by then).
func (s *TradeService) RunTrade(ctx context.Context) error {
	for {
		settled, err := s.runTradeOnce(ctx)
		if err != nil {
			return err
		}
		if !settled {
			return nil
		}
	}
}

func (s *TradeService) runTradeOnce(ctx context.Context) (bool, error) {
	lowestSell, err := s.orders.LowestSellOrder(ctx, s.db)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lowest sell order: %w", err)
	}

	highestBuy, err := s.orders.HighestBuyOrder(ctx, s.db)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("highest buy order: %w", err)
	}

	if lowestSell.Price > highestBuy.Price {
		return false, nil
	}

	// Attempt the order with the larger resting amount first; if it cannot
	// be filled exactly, the smaller one still might.
	candidates := []int64{highestBuy.ID, lowestSell.ID}
	if lowestSell.Amount > highestBuy.Amount {
		candidates = []int64{lowestSell.ID, highestBuy.ID}
	}

	for _, orderID := range candidates {
		var settled *models.Trade
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			var terr error
			settled, terr = s.tryTrade(ctx, tx, orderID)
			return terr
		})
		switch {
		case err == nil:
			if s.OnTrade != nil && settled != nil {
				s.OnTrade(settled)
			}
			return true, nil
		case errors.Is(err, ErrNoOrderForTrade), errors.Is(err, ErrOrderAlreadyClosed):
			continue
		default:
			return false, err
		}
	}
	// Amounts did not line up at the current best prices.
	return false, nil
}

// tryTrade runs one settlement attempt for the given initiating order inside
// the caller's transaction and returns the settled trade.
func (s *TradeService) tryTrade(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Trade, error) {
	order, err := s.getOpenOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	restAmount := order.Amount
	unitPrice := order.Price
	// Amounts are client-supplied, so they only hint the capacity.
	capHint := order.Amount + 1
	if capHint > 64 {
		capHint = 64
	}
	reserves := make([]int64, 0, capHint)
	targets := make([]*models.Order, 0, capHint)

	rid, err := s.reserveOrder(ctx, tx, order, unitPrice)
	if err != nil {
		return nil, err
	}
	reserves = append(reserves, rid)

	defer func() {
		// Reservations not handed to Commit are released on every failure
		// path, however deep in the scan the failure happened.
		if len(reserves) > 0 {
			if cerr := s.bank.Cancel(ctx, reserves); cerr != nil {
				s.log.Warn("bank cancel failed",
					zap.Int64s("reserve_ids", reserves), zap.Error(cerr))
			}
		}
	}()

	candidates, err := s.orders.SelectCrossing(ctx, tx, order.Type, order.Price)
	if err != nil {
		return nil, fmt.Errorf("select crossing orders: %w", err)
	}

	for _, c := range candidates {
		target, err := s.getOpenOrder(ctx, tx, c.ID)
		if err != nil {
			if errors.Is(err, ErrOrderAlreadyClosed) {
				// Closed meanwhile by a cancellation or an earlier match.
				continue
			}
			return nil, err
		}
		if target.Amount > restAmount {
			// No partial fills: a candidate that overshoots is skipped.
			continue
		}
		rid, err := s.reserveOrder(ctx, tx, target, unitPrice)
		if err != nil {
			if errors.Is(err, bank.ErrCreditInsufficient) {
				continue
			}
			return nil, err
		}
		reserves = append(reserves, rid)
		targets = append(targets, target)
		restAmount -= target.Amount
		if restAmount == 0 {
			break
		}
	}
	if restAmount > 0 {
		return nil, ErrNoOrderForTrade
	}

	trade := &models.Trade{Amount: order.Amount, Price: order.Price}
	if err := s.settle(ctx, tx, trade, order, targets); err != nil {
		return nil, err
	}

	// From here the holds belong to Commit. A commit failure has an unknown
	// outcome, so these ids must never reach Cancel; the error surfaces as-is.
	committed := reserves
	reserves = nil
	if err := s.bank.Commit(ctx, committed); err != nil {
		return nil, err
	}
	return trade, nil
}

// getOpenOrder locks the order row and its owner's row for this transaction.
func (s *TradeService) getOpenOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order, err := s.orders.GetForUpdate(ctx, tx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrOrderNotFound
	case err != nil:
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if !order.IsOpen() {
		return nil, ErrOrderAlreadyClosed
	}
	order.User, err = s.users.GetForUpdate(ctx, tx, order.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock order owner: %w", err)
	}
	return order, nil
}

// reserveOrder places the hold for one order's funds movement, signed by
// side: a buy debits the account, a sell credits it. An insufficient-credit
// outcome cancels the order itself before propagating.
func (s *TradeService) reserveOrder(ctx context.Context, tx *sql.Tx, order *models.Order, price int64) (int64, error) {
	p := order.Amount * price
	if order.Type == models.OrderTypeBuy {
		p = -p
	}

	id, err := s.bank.Reserve(ctx, order.User.BankID, p)
	if err != nil {
		if errors.Is(err, bank.ErrCreditInsufficient) {
			if derr := s.cancelOrder(ctx, tx, order, "reserve_failed"); derr != nil {
				return 0, derr
			}
			s.audit.Send(string(order.Type)+".error", map[string]interface{}{
				"error":   err.Error(),
				"user_id": order.UserID,
				"amount":  order.Amount,
				"price":   price,
			})
			return 0, err
		}
		return 0, err
	}
	return id, nil
}

func (s *TradeService) cancelOrder(ctx context.Context, tx *sql.Tx, order *models.Order, reason string) error {
	if err := s.orders.CloseAsCanceled(ctx, tx, order.ID); err != nil {
		return fmt.Errorf("close order as canceled: %w", err)
	}
	s.audit.Send(string(order.Type)+".delete", map[string]interface{}{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"reason":   reason,
	})
	return nil
}

// settle makes the trade durable: one trade row, every participating order
// closed with its id, one audit event per order plus one for the trade.
func (s *TradeService) settle(ctx context.Context, tx *sql.Tx, trade *models.Trade, order *models.Order, targets []*models.Order) error {
	if err := s.trades.Insert(ctx, tx, trade); err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	s.audit.Send("trade", map[string]interface{}{
		"trade_id": trade.ID,
		"price":    trade.Price,
		"amount":   trade.Amount,
	})

	closed := append(targets, order)
	ids := make([]int64, 0, len(closed))
	for _, o := range closed {
		ids = append(ids, o.ID)
	}
	if err := s.orders.CloseAsTraded(ctx, tx, ids, trade.ID); err != nil {
		return fmt.Errorf("close traded orders: %w", err)
	}
	for _, o := range closed {
		s.audit.Send(string(o.Type)+".trade", map[string]interface{}{
			"order_id": o.ID,
			"price":    trade.Price,
			"amount":   o.Amount,
			"user_id":  o.UserID,
			"trade_id": trade.ID,
		})
	}
	return nil
}

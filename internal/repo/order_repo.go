package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/virtuex/exchange-backend/internal/models"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx so read queries can run
// inside or outside a transaction.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const orderCols = `id, type, user_id, amount, price, closed_at, trade_id, created_at`

type OrderRepo struct{ db *sql.DB }

func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

func (r *OrderRepo) Insert(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	q := `
INSERT INTO orders(type, user_id, amount, price)
VALUES($1,$2,$3,$4)
RETURNING id, created_at`
	return tx.QueryRowContext(ctx, q, o.Type, o.UserID, o.Amount, o.Price).
		Scan(&o.ID, &o.CreatedAt)
}

func (r *OrderRepo) GetByID(ctx context.Context, q Queryer, id int64) (*models.Order, error) {
	row := q.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id)
	return scanOrder(row)
}

// GetForUpdate reads one order under an exclusive row lock held until the
// caller's transaction ends.
func (r *OrderRepo) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id)
	return scanOrder(row)
}

// LowestSellOrder returns the best ask: the cheapest open sell, oldest first
// on a price tie. sql.ErrNoRows when that side of the book is empty.
func (r *OrderRepo) LowestSellOrder(ctx context.Context, q Queryer) (*models.Order, error) {
	row := q.QueryRowContext(ctx, `
SELECT `+orderCols+` FROM orders
WHERE type=$1 AND closed_at IS NULL
ORDER BY price ASC, created_at ASC
LIMIT 1`, models.OrderTypeSell)
	return scanOrder(row)
}

// HighestBuyOrder returns the best bid: the highest open buy, oldest first
// on a price tie.
func (r *OrderRepo) HighestBuyOrder(ctx context.Context, q Queryer) (*models.Order, error) {
	row := q.QueryRowContext(ctx, `
SELECT `+orderCols+` FROM orders
WHERE type=$1 AND closed_at IS NULL
ORDER BY price DESC, created_at ASC
LIMIT 1`, models.OrderTypeBuy)
	return scanOrder(row)
}

// SelectCrossing lists open orders on the opposite side whose price crosses
// the initiating order's price, best price first. The created_at tie-break is
// ascending when a buy consumes sells and descending when a sell consumes
// buys; the matching contract depends on that asymmetry.
func (r *OrderRepo) SelectCrossing(ctx context.Context, tx *sql.Tx, takerType models.OrderType, price int64) ([]*models.Order, error) {
	var q string
	if takerType == models.OrderTypeBuy {
		q = `
SELECT ` + orderCols + ` FROM orders
WHERE type=$1 AND closed_at IS NULL AND price <= $2
ORDER BY price ASC, created_at ASC, id ASC`
	} else {
		q = `
SELECT ` + orderCols + ` FROM orders
WHERE type=$1 AND closed_at IS NULL AND price >= $2
ORDER BY price DESC, created_at DESC, id DESC`
	}
	rows, err := tx.QueryContext(ctx, q, takerType.Opposite(), price)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

// CloseAsCanceled closes an open order without a trade. The caller must hold
// the row lock and must not call this twice on the same order.
func (r *OrderRepo) CloseAsCanceled(ctx context.Context, q Queryer, id int64) error {
	_, err := q.ExecContext(ctx, `UPDATE orders SET closed_at = NOW() WHERE id=$1`, id)
	return err
}

// CloseAsTraded closes every listed order with the settled trade id.
func (r *OrderRepo) CloseAsTraded(ctx context.Context, tx *sql.Tx, ids []int64, tradeID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET trade_id = $1, closed_at = NOW() WHERE id = ANY($2)`,
		tradeID, ids)
	return err
}

// GetByUserID lists a user's orders that are still open or ended in a trade
// (canceled ones are hidden), oldest first.
func (r *OrderRepo) GetByUserID(ctx context.Context, q Queryer, userID uuid.UUID) ([]*models.Order, error) {
	rows, err := q.QueryContext(ctx, `
SELECT `+orderCols+` FROM orders
WHERE user_id=$1 AND (closed_at IS NULL OR trade_id IS NOT NULL)
ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

// GetByUserIDAndLastTradeID lists the user's orders settled after the given
// trade cursor.
func (r *OrderRepo) GetByUserIDAndLastTradeID(ctx context.Context, q Queryer, userID uuid.UUID, tradeID int64) ([]*models.Order, error) {
	rows, err := q.QueryContext(ctx, `
SELECT `+orderCols+` FROM orders
WHERE user_id=$1 AND trade_id IS NOT NULL AND trade_id > $2
ORDER BY created_at ASC`, userID, tradeID)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func scanOrder(row *sql.Row) (*models.Order, error) {
	var (
		o        models.Order
		closedAt sql.NullTime
		tradeID  sql.NullInt64
	)
	if err := row.Scan(&o.ID, &o.Type, &o.UserID, &o.Amount, &o.Price, &closedAt, &tradeID, &o.CreatedAt); err != nil {
		return nil, err
	}
	applyNullable(&o, closedAt, tradeID)
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]*models.Order, error) {
	defer rows.Close()
	var out []*models.Order
	for rows.Next() {
		var (
			o        models.Order
			closedAt sql.NullTime
			tradeID  sql.NullInt64
		)
		if err := rows.Scan(&o.ID, &o.Type, &o.UserID, &o.Amount, &o.Price, &closedAt, &tradeID, &o.CreatedAt); err != nil {
			return nil, err
		}
		applyNullable(&o, closedAt, tradeID)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func applyNullable(o *models.Order, closedAt sql.NullTime, tradeID sql.NullInt64) {
	if closedAt.Valid {
		t := closedAt.Time
		o.ClosedAt = &t
	}
	if tradeID.Valid {
		id := tradeID.Int64
		o.TradeID = &id
	}
}

package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/virtuex/exchange-backend/internal/models"
)

type TradeRepo struct{ db *sql.DB }

func NewTradeRepo(db *sql.DB) *TradeRepo { return &TradeRepo{db: db} }

// Insert appends one settled trade. Trade rows are immutable afterwards.
func (r *TradeRepo) Insert(ctx context.Context, tx *sql.Tx, t *models.Trade) error {
	q := `
INSERT INTO trade(amount, price)
VALUES($1,$2)
RETURNING id, created_at`
	return tx.QueryRowContext(ctx, q, t.Amount, t.Price).Scan(&t.ID, &t.CreatedAt)
}

func (r *TradeRepo) GetByID(ctx context.Context, q Queryer, id int64) (*models.Trade, error) {
	row := q.QueryRowContext(ctx, `SELECT id, amount, price, created_at FROM trade WHERE id=$1`, id)
	return scanTrade(row)
}

func (r *TradeRepo) Latest(ctx context.Context, q Queryer) (*models.Trade, error) {
	row := q.QueryRowContext(ctx, `SELECT id, amount, price, created_at FROM trade ORDER BY id DESC LIMIT 1`)
	return scanTrade(row)
}

// Candles aggregates trades since the given time into one candlestick per
// truncation bucket ("second", "minute" or "hour").
func (r *TradeRepo) Candles(ctx context.Context, q Queryer, since time.Time, trunc string) ([]*models.CandlestickData, error) {
	query := `
SELECT m.t, a.price, b.price, m.h, m.l
FROM (
	SELECT
		date_trunc($1, created_at) AS t,
		MIN(id) AS min_id,
		MAX(id) AS max_id,
		MAX(price) AS h,
		MIN(price) AS l
	FROM trade
	WHERE created_at >= $2
	GROUP BY t
) m
JOIN trade a ON a.id = m.min_id
JOIN trade b ON b.id = m.max_id
ORDER BY m.t`
	rows, err := q.QueryContext(ctx, query, trunc, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CandlestickData
	for rows.Next() {
		var c models.CandlestickData
		if err := rows.Scan(&c.Time, &c.Open, &c.Close, &c.High, &c.Low); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func scanTrade(row *sql.Row) (*models.Trade, error) {
	var t models.Trade
	if err := row.Scan(&t.ID, &t.Amount, &t.Price, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

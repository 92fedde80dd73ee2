package repo

import (
	"context"
	"database/sql"
)

// Setting names for the external service endpoints, written by /initialize.
const (
	BankEndpoint = "bank_endpoint"
	BankAppID    = "bank_appid"
	LogEndpoint  = "log_endpoint"
	LogAppID     = "log_appid"
)

type SettingRepo struct{ db *sql.DB }

func NewSettingRepo(db *sql.DB) *SettingRepo { return &SettingRepo{db: db} }

func (r *SettingRepo) Set(ctx context.Context, q Queryer, name, val string) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO setting(name, val) VALUES($1,$2)
ON CONFLICT (name) DO UPDATE SET val = EXCLUDED.val`, name, val)
	return err
}

func (r *SettingRepo) Get(ctx context.Context, q Queryer, name string) (string, error) {
	var val string
	err := q.QueryRowContext(ctx, `SELECT val FROM setting WHERE name=$1`, name).Scan(&val)
	return val, err
}

package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/virtuex/exchange-backend/internal/models"
)

// ErrBankIDTaken is returned by Insert when the bank id is already
// registered to another user.
var ErrBankIDTaken = errors.New("bank id already registered")

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) GetByID(ctx context.Context, q Queryer, id uuid.UUID) (*models.User, error) {
	row := q.QueryRowContext(ctx, `SELECT id, bank_id, name, password, created_at FROM users WHERE id=$1`, id)
	return scanUser(row)
}

// GetForUpdate locks the user row for the caller's transaction. Every flow
// that reserves funds locks the owner row first, so concurrent reservations
// for the same account are strictly serialized.
func (r *UserRepo) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.User, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, bank_id, name, password, created_at FROM users WHERE id=$1 FOR UPDATE`, id)
	return scanUser(row)
}

func (r *UserRepo) GetByBankID(ctx context.Context, q Queryer, bankID string) (*models.User, error) {
	row := q.QueryRowContext(ctx, `SELECT id, bank_id, name, password, created_at FROM users WHERE bank_id=$1`, bankID)
	return scanUser(row)
}

// Insert assigns the user id before writing; the id column carries no
// database default.
func (r *UserRepo) Insert(ctx context.Context, q Queryer, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := q.ExecContext(ctx, `
INSERT INTO users(id, bank_id, name, password)
VALUES($1,$2,$3,$4)`, u.ID, u.BankID, u.Name, u.Password)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrBankIDTaken
		}
		return err
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.BankID, &u.Name, &u.Password, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

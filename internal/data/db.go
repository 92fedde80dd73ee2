package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Postgres struct {
	DB *sql.DB
}

func NewPostgres() (*Postgres, error) {
	host := getenv("POSTGRES_HOST", "127.0.0.1")
	port := getenv("POSTGRES_PORT", "5432")
	user := getenv("POSTGRES_USER", "exchange")
	pass := os.Getenv("POSTGRES_PASSWORD")
	dbname := getenv("POSTGRES_DB_NAME", "exchange")
	sslmode := getenv("POSTGRES_SSLMODE", "disable")

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, pass, host, port, dbname, sslmode,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	// Matching attempts hold row locks for the whole transaction, so keep
	// enough headroom for blocked placements behind a running attempt.
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(60 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Close() error {
	return p.DB.Close()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

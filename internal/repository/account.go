package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	if a.Fiat == "" {
		a.Fiat = "EUR"
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (name, api_key, api_secret, fiat)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, name, api_key, api_secret, fiat, created_at`,
		a.Name, a.APIKey, a.APISecret, strings.ToUpper(a.Fiat),
	)
	return scanAccount(row)
}

func (r *AccountRepo) Get(ctx context.Context, id int64) (*models.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, api_key, api_secret, fiat, created_at
		 FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AccountRepo) List(ctx context.Context) ([]models.Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, api_key, api_secret, fiat, created_at
		 FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.APIKey, &a.APISecret, &a.Fiat, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateKeys replaces the API credentials; empty values are kept as-is.
func (r *AccountRepo) UpdateKeys(ctx context.Context, id int64, apiKey, apiSecret string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts
		 SET api_key = COALESCE(NULLIF($2, ''), api_key),
		     api_secret = COALESCE(NULLIF($3, ''), api_secret)
		 WHERE id = $1`,
		id, apiKey, apiSecret)
	return err
}

func (r *AccountRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanAccount(row scannable) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Name, &a.APIKey, &a.APISecret, &a.Fiat, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

// PriceRepo persists the sparse historical fiat-price series. The series
// is append-only per (asset, fiat): re-fetching an interval to fill a gap
// never duplicates or overwrites existing points.
type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

// Upsert stores price points, silently skipping already-known timestamps.
// Returns the number of new rows.
func (r *PriceRepo) Upsert(ctx context.Context, points []models.PricePoint) (int, error) {
	inserted := 0
	for i := range points {
		p := &points[i]
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO historical_fiat_prices (asset, fiat, price, ts)
			 VALUES ($1,$2,$3,$4)
			 ON CONFLICT (asset, fiat, ts) DO NOTHING`,
			p.Asset, p.Fiat, p.Price, p.Timestamp,
		)
		if err != nil {
			return inserted, fmt.Errorf("upsert price %s/%s@%s: %w", p.Asset, p.Fiat, p.Timestamp, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// Series loads every stored point quoted in the given fiat, all assets,
// ordered by timestamp. The engine builds its in-memory index from this.
func (r *PriceRepo) Series(ctx context.Context, fiat string) ([]models.PricePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, asset, fiat, price, ts
		 FROM historical_fiat_prices
		 WHERE fiat = $1
		 ORDER BY asset ASC, ts ASC`, fiat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.ID, &p.Asset, &p.Fiat, &p.Price, &p.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AssetSeries loads the series for one (asset, fiat) pair.
func (r *PriceRepo) AssetSeries(ctx context.Context, asset, fiat string) ([]models.PricePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, asset, fiat, price, ts
		 FROM historical_fiat_prices
		 WHERE asset = $1 AND fiat = $2
		 ORDER BY ts ASC`, asset, fiat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.ID, &p.Asset, &p.Fiat, &p.Price, &p.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Coverage reports what the stored series contains per (asset, fiat) pair,
// so a user can see where price downloads are still needed.
func (r *PriceRepo) Coverage(ctx context.Context) ([]models.PriceCoverage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT asset, fiat, COUNT(*), MIN(ts), MAX(ts)
		 FROM historical_fiat_prices
		 GROUP BY asset, fiat
		 ORDER BY asset ASC, fiat ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PriceCoverage
	for rows.Next() {
		var c models.PriceCoverage
		if err := rows.Scan(&c.Asset, &c.Fiat, &c.Count, &c.First, &c.Last); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestTimestamp returns the newest stored point for a pair, or the zero
// time when the series is empty.
func (r *PriceRepo) LatestTimestamp(ctx context.Context, asset, fiat string) (time.Time, error) {
	var ts *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT MAX(ts) FROM historical_fiat_prices WHERE asset = $1 AND fiat = $2`,
		asset, fiat).Scan(&ts)
	if err != nil || ts == nil {
		return time.Time{}, err
	}
	return *ts, nil
}

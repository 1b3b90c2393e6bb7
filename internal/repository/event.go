package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

// EventRepo persists the normalized event history: downloaded spot
// executions, manually entered buys, and derivative closed-PnL rows.
// Exchange IDs are primary keys, so re-downloads are no-ops.
type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// UpsertSpot stores downloaded or manual spot executions, skipping
// already-known exec IDs. Returns the number of new rows.
func (r *EventRepo) UpsertSpot(ctx context.Context, events []models.Event) (int, error) {
	inserted := 0
	for i := range events {
		ev := &events[i]
		side := "BUY"
		if ev.Type == models.EventSpotSell {
			side = "SELL"
		}
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO spot_executions (exec_id, account_id, base, quote, side, qty, price, fees, ts, is_manual)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			 ON CONFLICT (exec_id) DO NOTHING`,
			ev.ExternalID, ev.AccountID, ev.Asset, ev.Quote, side,
			ev.Quantity, ev.Price, ev.Fee, ev.Timestamp, ev.Manual,
		)
		if err != nil {
			return inserted, fmt.Errorf("upsert spot execution %s: %w", ev.ExternalID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// UpsertDerivatives stores downloaded closed-PnL rows, skipping known IDs.
func (r *EventRepo) UpsertDerivatives(ctx context.Context, events []models.Event) (int, error) {
	inserted := 0
	for i := range events {
		ev := &events[i]
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO derivative_closed_pnls (pnl_id, account_id, symbol, base, quote, side, qty, closed_pnl, fees, ts)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			 ON CONFLICT (pnl_id) DO NOTHING`,
			ev.ExternalID, ev.AccountID, ev.Symbol, ev.Asset, ev.Quote, "SELL",
			ev.Quantity, ev.ClosedPnl, ev.Fee, ev.Timestamp,
		)
		if err != nil {
			return inserted, fmt.Errorf("upsert closed pnl %s: %w", ev.ExternalID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// InsertManualBuy records a buy entered by hand (e.g. an external
// acquisition the exchange download cannot know about).
func (r *EventRepo) InsertManualBuy(ctx context.Context, ev *models.Event) error {
	if ev.ExternalID == "" {
		ev.ExternalID = fmt.Sprintf("manual-%d-%d", ev.AccountID, time.Now().UnixNano())
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO spot_executions (exec_id, account_id, base, quote, side, qty, price, fees, ts, is_manual)
		 VALUES ($1,$2,$3,$4,'BUY',$5,$6,$7,$8,TRUE)`,
		ev.ExternalID, ev.AccountID, ev.Asset, ev.Quote,
		ev.Quantity, ev.Price, ev.Fee, ev.Timestamp,
	)
	return err
}

func (r *EventRepo) ListManualBuys(ctx context.Context, accountID int64) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exec_id, account_id, base, quote, side, qty, price, fees, ts, is_manual, seq
		 FROM spot_executions
		 WHERE account_id = $1 AND is_manual
		 ORDER BY ts ASC, seq ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSpotEvents(rows)
}

func (r *EventRepo) DeleteManualBuy(ctx context.Context, accountID int64, execID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM spot_executions WHERE account_id = $1 AND exec_id = $2 AND is_manual`,
		accountID, execID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("manual buy %s not found", execID)
	}
	return nil
}

// ListEvents returns the account's full normalized history up to `until`,
// ordered by timestamp with ingestion order as tie breaker. The engine
// needs everything from the beginning of time: acquisitions before the
// reporting range still seed lots.
func (r *EventRepo) ListEvents(ctx context.Context, accountID int64, until time.Time) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exec_id, account_id, base, quote, side, qty, price, fees, ts, is_manual, seq
		 FROM spot_executions
		 WHERE account_id = $1 AND ts <= $2
		 ORDER BY ts ASC, seq ASC`, accountID, until)
	if err != nil {
		return nil, err
	}
	spot, err := collectSpotEvents(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT pnl_id, account_id, symbol, base, quote, qty, closed_pnl, fees, ts, seq
		 FROM derivative_closed_pnls
		 WHERE account_id = $1 AND ts <= $2
		 ORDER BY ts ASC, seq ASC`, accountID, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := spot
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ExternalID, &ev.AccountID, &ev.Symbol, &ev.Asset, &ev.Quote,
			&ev.Quantity, &ev.ClosedPnl, &ev.Fee, &ev.Timestamp, &ev.Seq); err != nil {
			return nil, err
		}
		ev.Type = models.EventDerivativeClose
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].Seq < events[j].Seq
	})
	return events, nil
}

// LatestSpotTimestamp returns the newest downloaded (non-manual)
// execution time, or the zero time when nothing is stored yet. The sync
// scheduler uses it to pick its download window.
func (r *EventRepo) LatestSpotTimestamp(ctx context.Context, accountID int64) (time.Time, error) {
	var ts *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT MAX(ts) FROM spot_executions WHERE account_id = $1 AND NOT is_manual`,
		accountID).Scan(&ts)
	if err != nil || ts == nil {
		return time.Time{}, err
	}
	return *ts, nil
}

// --- scan helpers ---

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectSpotEvents(rows rowsIter) ([]models.Event, error) {
	var out []models.Event
	for rows.Next() {
		var ev models.Event
		var side string
		if err := rows.Scan(&ev.ExternalID, &ev.AccountID, &ev.Asset, &ev.Quote, &side,
			&ev.Quantity, &ev.Price, &ev.Fee, &ev.Timestamp, &ev.Manual, &ev.Seq); err != nil {
			return nil, err
		}
		if side == "SELL" {
			ev.Type = models.EventSpotSell
		} else {
			ev.Type = models.EventSpotBuy
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

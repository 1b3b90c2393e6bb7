package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
	"github.com/yniverz/bybit-tax-exporter/internal/tax"
)

var ErrAccountNotFound = errors.New("account not found")

// AccountSource, EventSource and PriceSource are the repository methods
// the service needs; the pgx repos satisfy them.
type AccountSource interface {
	Get(ctx context.Context, id int64) (*models.Account, error)
}

type EventSource interface {
	ListEvents(ctx context.Context, accountID int64, until time.Time) ([]models.Event, error)
}

type PriceSource interface {
	Series(ctx context.Context, fiat string) ([]models.PricePoint, error)
}

type Options struct {
	ExactTolerance time.Duration
	Window         time.Duration
	FeePolicy      tax.FeePolicy
}

// Service produces tax reports for an account: it loads the full event
// history, builds the price index in the account's fiat, runs the
// matching engine and summarizes per year.
type Service struct {
	accounts AccountSource
	events   EventSource
	prices   PriceSource
	opts     Options
}

func NewService(accounts AccountSource, events EventSource, prices PriceSource, opts Options) *Service {
	return &Service{accounts: accounts, events: events, prices: prices, opts: opts}
}

// Report is one full engine run over an account, scoped to a date range.
type Report struct {
	Account *models.Account              `json:"account"`
	From    *time.Time                   `json:"from,omitempty"`
	To      *time.Time                   `json:"to,omitempty"`
	Rows    []models.DisposalMatch       `json:"rows"`
	Fees    []models.FeeEntry            `json:"fees"`
	Gaps    []tax.PriceGap               `json:"priceGaps"`
	Years   map[int]*models.YearlyReport `json:"years"`
}

// Build runs the engine for the account over the given range. Events are
// always loaded from the beginning of history so pre-range acquisitions
// seed the lot book; the range only filters which disposals are reported.
func (s *Service) Build(ctx context.Context, accountID int64, dr tax.DateRange) (*Report, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	until := dr.To
	if until.IsZero() {
		until = time.Now().UTC()
	}
	events, err := s.events.ListEvents(ctx, accountID, until)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	points, err := s.prices.Series(ctx, account.Fiat)
	if err != nil {
		return nil, fmt.Errorf("load price series: %w", err)
	}
	index := tax.NewPriceIndex(points, s.opts.ExactTolerance, s.opts.Window)

	engine := tax.NewEngine(index, account.Fiat, s.opts.FeePolicy)
	result, err := engine.Run(accountID, events, dr)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Account: account,
		Rows:    result.Rows,
		Fees:    result.Fees,
		Gaps:    result.Gaps,
		Years:   tax.Summarize(result, accountID, account.Fiat),
	}
	if !dr.From.IsZero() {
		from := dr.From
		rep.From = &from
	}
	if !dr.To.IsZero() {
		to := dr.To
		rep.To = &to
	}
	return rep, nil
}

// BuildYear scopes a report to one calendar year in UTC.
func (s *Service) BuildYear(ctx context.Context, accountID int64, year int) (*Report, error) {
	from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0).Add(-time.Nanosecond)
	return s.Build(ctx, accountID, tax.DateRange{From: from, To: to})
}

package tax

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

// FeePolicy decides how trading fees enter the report. The exact rule is
// jurisdiction-dependent, so it is a configuration knob rather than a
// hardcoded default.
type FeePolicy string

const (
	// FeeSeparate keeps fees out of cost basis and proceeds; they are
	// converted to fiat at event time and reported as a separate total.
	FeeSeparate FeePolicy = "separate"
	// FeeToBasis capitalizes buy fees into lot cost and deducts sell
	// fees from proceeds.
	FeeToBasis FeePolicy = "basis"
)

// DateRange bounds the rows a run emits. Zero values mean unbounded.
// Events before From are still processed to seed lot state.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Contains(ts time.Time) bool {
	if !r.From.IsZero() && ts.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && ts.After(r.To) {
		return false
	}
	return true
}

// Result is the output of one engine run: the transaction-level ledger,
// fiat-converted fees, and every price gap hit along the way. Gaps are
// non-fatal; the affected rows are emitted unresolved.
type Result struct {
	Rows []models.DisposalMatch
	Fees []models.FeeEntry
	Gaps []PriceGap
}

// Engine matches disposal events against FIFO acquisition lots and values
// each leg in the reporting fiat. One run processes one account's history
// sequentially; the lot book is rebuilt from scratch every run so repeated
// runs over the same input yield identical rows.
type Engine struct {
	prices    *PriceIndex
	fiat      string
	feePolicy FeePolicy
}

func NewEngine(prices *PriceIndex, fiat string, policy FeePolicy) *Engine {
	if policy == "" {
		policy = FeeSeparate
	}
	return &Engine{prices: prices, fiat: fiat, feePolicy: policy}
}

// Run processes the full event history of one account in timestamp order
// (ties broken by ingestion order) and returns the ledger for dr.
//
// *InsufficientLotsError and *OutOfOrderLotError abort the run; price gaps
// do not.
func (e *Engine) Run(accountID int64, events []models.Event, dr DateRange) (*Result, error) {
	sorted := make([]models.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	book := NewLotBook()
	res := &Result{}
	seenGaps := make(map[string]bool)

	for i := range sorted {
		ev := &sorted[i]
		if ev.AccountID != accountID {
			return nil, fmt.Errorf("event %s belongs to account %d, not %d", ev.ExternalID, ev.AccountID, accountID)
		}

		var err error
		switch ev.Type {
		case models.EventSpotBuy:
			err = e.processBuy(ev, book, dr, res, seenGaps)
		case models.EventSpotSell:
			err = e.processSell(ev, book, dr, res, seenGaps)
		case models.EventDerivativeClose:
			e.processDerivative(ev, dr, res, seenGaps)
		default:
			err = fmt.Errorf("unknown event type %q (event %s)", ev.Type, ev.ExternalID)
		}
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (e *Engine) processBuy(ev *models.Event, book *LotBook, dr DateRange, res *Result, seen map[string]bool) error {
	rate, ok := e.quoteRate(ev.Quote, ev.Timestamp, res, seen)

	lot := &Lot{
		Asset:      ev.Asset,
		AcquiredAt: ev.Timestamp,
		Quantity:   ev.Quantity,
	}
	if ok {
		cost := ev.Quantity.Mul(ev.Price).Mul(rate.Price)
		if e.feePolicy == FeeToBasis {
			cost = cost.Add(ev.Fee.Mul(rate.Price))
		}
		lot.UnitCost = cost.Div(ev.Quantity)
	} else {
		lot.CostUnknown = true
	}
	if err := book.Add(lot); err != nil {
		return err
	}

	if e.feePolicy == FeeSeparate && ok {
		e.recordFee(ev, rate.Price, dr, res)
	}
	return nil
}

func (e *Engine) processSell(ev *models.Event, book *LotBook, dr DateRange, res *Result, seen map[string]bool) error {
	rate, ok := e.quoteRate(ev.Quote, ev.Timestamp, res, seen)

	matches, err := book.Consume(ev.Asset, ev.Quantity)
	if err != nil {
		return err
	}

	var feePerUnit decimal.Decimal
	if e.feePolicy == FeeToBasis && ok && ev.Quantity.Cmp(epsilon) > 0 {
		feePerUnit = ev.Fee.Mul(rate.Price).Div(ev.Quantity)
	}

	for _, m := range matches {
		days := holdingDays(m.Lot.AcquiredAt, ev.Timestamp)
		row := models.DisposalMatch{
			AccountID:     ev.AccountID,
			Asset:         ev.Asset,
			EventType:     models.EventSpotSell,
			DisposedAt:    ev.Timestamp,
			Quantity:      m.Quantity,
			LotAcquiredAt: m.Lot.AcquiredAt,
			HoldingDays:   days,
			Taxable:       days <= 365,
		}
		if !ok || m.Lot.CostUnknown {
			row.Unresolved = true
		} else {
			proceeds := m.Quantity.Mul(ev.Price).Mul(rate.Price).Sub(m.Quantity.Mul(feePerUnit))
			basis := m.Quantity.Mul(m.Lot.UnitCost)
			row.Proceeds = proceeds
			row.CostBasis = basis
			row.Gain = proceeds.Sub(basis)
			row.Approximate = rate.Approximate
		}
		if dr.Contains(ev.Timestamp) {
			res.Rows = append(res.Rows, row)
		}
	}

	if e.feePolicy == FeeSeparate && ok {
		e.recordFee(ev, rate.Price, dr, res)
	}
	return nil
}

func (e *Engine) processDerivative(ev *models.Event, dr DateRange, res *Result, seen map[string]bool) {
	rate, ok := e.quoteRate(ev.Quote, ev.Timestamp, res, seen)

	// Derivative PnL is a discrete closed-position figure: no lot
	// matching, no holding period, always taxable.
	row := models.DisposalMatch{
		AccountID:  ev.AccountID,
		Asset:      ev.Asset,
		EventType:  models.EventDerivativeClose,
		DisposedAt: ev.Timestamp,
		Quantity:   ev.Quantity,
		Taxable:    true,
	}
	if ok {
		row.Gain = ev.ClosedPnl.Mul(rate.Price)
		row.Approximate = rate.Approximate
	} else {
		row.Unresolved = true
	}
	if dr.Contains(ev.Timestamp) {
		res.Rows = append(res.Rows, row)
	}

	if e.feePolicy == FeeSeparate && ok {
		e.recordFee(ev, rate.Price, dr, res)
	}
}

// quoteRate resolves the fiat rate of the quote asset at ts. A gap is
// recorded once per (asset, timestamp) and reported to the caller; the
// run keeps going.
func (e *Engine) quoteRate(quote string, ts time.Time, res *Result, seen map[string]bool) (Quote, bool) {
	q, err := e.prices.PriceAt(quote, e.fiat, ts)
	if err == nil {
		return q, true
	}
	gapErr, isGap := err.(*PriceGapError)
	if !isGap {
		// PriceAt only fails with gaps today; keep the run alive either way.
		gapErr = &PriceGapError{Gap: PriceGap{Asset: quote, Fiat: e.fiat, Timestamp: ts}}
	}
	key := fmt.Sprintf("%s/%s@%d", gapErr.Gap.Asset, gapErr.Gap.Fiat, gapErr.Gap.Timestamp.Unix())
	if !seen[key] {
		seen[key] = true
		res.Gaps = append(res.Gaps, gapErr.Gap)
	}
	return Quote{}, false
}

func (e *Engine) recordFee(ev *models.Event, rate decimal.Decimal, dr DateRange, res *Result) {
	if ev.Fee.Cmp(epsilon) <= 0 || !dr.Contains(ev.Timestamp) {
		return
	}
	res.Fees = append(res.Fees, models.FeeEntry{
		AccountID: ev.AccountID,
		EventType: ev.Type,
		At:        ev.Timestamp,
		Amount:    ev.Fee.Mul(rate),
	})
}

// holdingDays is the whole number of days between acquisition and
// disposal. A disposal exactly 365 days after the buy is still taxable;
// exemption starts strictly beyond one year.
func holdingDays(acquired, disposed time.Time) int {
	return int(disposed.Sub(acquired) / (24 * time.Hour))
}

package tax

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Lot is an open acquisition: a quantity of an asset bought at a specific
// time and unit cost, consumable by later disposals. Quantity only ever
// decreases once the lot is in a book.
type Lot struct {
	Asset      string
	AcquiredAt time.Time
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal // fiat per unit, fixed at creation
	// CostUnknown marks a lot created while the acquisition price could
	// not be valued (price gap on the buy). Rows consuming it stay
	// unresolved instead of reporting a bogus gain.
	CostUnknown bool
}

// Consumption is one FIFO match: qty taken from a specific lot.
type Consumption struct {
	Lot      *Lot
	Quantity decimal.Decimal
}

// LotBook holds the open acquisition lots of one account, one FIFO queue
// per asset. It lives for a single engine run and is rebuilt from the
// event history every time.
type LotBook struct {
	queues   map[string][]*Lot
	consumed map[string]bool // asset -> Consume has run at least once
}

func NewLotBook() *LotBook {
	return &LotBook{
		queues:   make(map[string][]*Lot),
		consumed: make(map[string]bool),
	}
}

// Add appends a lot to its asset queue, keeping acquired-at order. Before
// any consumption an early lot is inserted at its sorted position; after
// consumption has started an out-of-order insert would silently corrupt
// FIFO matching, so it fails with *OutOfOrderLotError instead.
func (b *LotBook) Add(lot *Lot) error {
	q := b.queues[lot.Asset]
	if n := len(q); n > 0 && lot.AcquiredAt.Before(q[n-1].AcquiredAt) {
		if b.consumed[lot.Asset] {
			return &OutOfOrderLotError{
				Asset:      lot.Asset,
				AcquiredAt: lot.AcquiredAt,
				TailAt:     q[n-1].AcquiredAt,
			}
		}
		i := sort.Search(n, func(i int) bool { return q[i].AcquiredAt.After(lot.AcquiredAt) })
		q = append(q, nil)
		copy(q[i+1:], q[i:])
		q[i] = lot
		b.queues[lot.Asset] = q
		return nil
	}
	b.queues[lot.Asset] = append(q, lot)
	return nil
}

// Available returns the total open quantity for an asset.
func (b *LotBook) Available(asset string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range b.queues[asset] {
		total = total.Add(lot.Quantity)
	}
	return total
}

// Consume takes qty from the oldest lots first and returns one entry per
// lot touched, in consumption order. All-or-nothing: when the open
// quantity is short the book is left untouched and *InsufficientLotsError
// reports the shortfall.
func (b *LotBook) Consume(asset string, qty decimal.Decimal) ([]Consumption, error) {
	if qty.Cmp(epsilon) <= 0 {
		return nil, nil
	}
	if avail := b.Available(asset); avail.Add(epsilon).Cmp(qty) < 0 {
		return nil, &InsufficientLotsError{Asset: asset, Shortfall: qty.Sub(avail)}
	}

	b.consumed[asset] = true
	q := b.queues[asset]
	remain := qty
	var out []Consumption

	for remain.Cmp(epsilon) > 0 && len(q) > 0 {
		lot := q[0]
		take := decimal.Min(lot.Quantity, remain)
		out = append(out, Consumption{Lot: lot, Quantity: take})
		lot.Quantity = lot.Quantity.Sub(take)
		remain = remain.Sub(take)
		if lot.Quantity.Cmp(epsilon) <= 0 {
			q = q[1:]
		}
	}
	b.queues[asset] = q
	return out, nil
}

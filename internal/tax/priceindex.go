package tax

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

// PriceIndex answers point-in-time fiat price queries against a sparse
// historical series. It is immutable once built, so concurrent lookups
// from independent runs are safe without locking.
type PriceIndex struct {
	exact  time.Duration // max distance for an exact hit
	window time.Duration // max distance for a neighbor on either side
	series map[string][]models.PricePoint
}

// Quote is a resolved price. Approximate is set when only one neighbor
// existed within the window and its value was used directly.
type Quote struct {
	Price       decimal.Decimal
	Approximate bool
}

// NewPriceIndex builds an index over the given points. Points are grouped
// per (asset, fiat) pair and sorted by timestamp; duplicates are harmless.
func NewPriceIndex(points []models.PricePoint, exact, window time.Duration) *PriceIndex {
	if exact <= 0 {
		exact = time.Hour
	}
	if window <= 0 {
		window = 12 * time.Hour
	}
	series := make(map[string][]models.PricePoint)
	for _, p := range points {
		k := seriesKey(p.Asset, p.Fiat)
		series[k] = append(series[k], p)
	}
	for _, s := range series {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })
	}
	return &PriceIndex{exact: exact, window: window, series: series}
}

func seriesKey(asset, fiat string) string { return asset + "/" + fiat }

// PriceAt resolves the fiat price of asset at ts.
//
// Resolution order: exact point within the exact tolerance; linear
// interpolation between the nearest points on both sides of ts within the
// window; single-sided neighbor within the window (flagged approximate).
// Otherwise a *PriceGapError naming the missing (asset, fiat, timestamp).
func (ix *PriceIndex) PriceAt(asset, fiat string, ts time.Time) (Quote, error) {
	if asset == fiat {
		return Quote{Price: decimal.NewFromInt(1)}, nil
	}

	s := ix.series[seriesKey(asset, fiat)]
	// First point at or after ts.
	i := sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(ts) })

	var before, after *models.PricePoint
	if i > 0 {
		before = &s[i-1]
	}
	if i < len(s) {
		after = &s[i]
	}

	if after != nil && absDur(after.Timestamp.Sub(ts)) <= ix.exact {
		if before == nil || absDur(ts.Sub(before.Timestamp)) > absDur(after.Timestamp.Sub(ts)) {
			return Quote{Price: after.Price}, nil
		}
	}
	if before != nil && absDur(ts.Sub(before.Timestamp)) <= ix.exact {
		return Quote{Price: before.Price}, nil
	}

	beforeOK := before != nil && ts.Sub(before.Timestamp) <= ix.window
	afterOK := after != nil && after.Timestamp.Sub(ts) <= ix.window

	switch {
	case beforeOK && afterOK:
		return Quote{Price: interpolate(*before, *after, ts)}, nil
	case beforeOK:
		return Quote{Price: before.Price, Approximate: true}, nil
	case afterOK:
		return Quote{Price: after.Price, Approximate: true}, nil
	default:
		return Quote{}, &PriceGapError{Gap: PriceGap{Asset: asset, Fiat: fiat, Timestamp: ts}}
	}
}

// interpolate weighs the two neighbor prices by elapsed time.
func interpolate(p0, p1 models.PricePoint, ts time.Time) decimal.Decimal {
	total := p1.Timestamp.Sub(p0.Timestamp)
	if total <= 0 {
		return p0.Price
	}
	frac := decimal.NewFromFloat(float64(ts.Sub(p0.Timestamp)) / float64(total))
	return p0.Price.Add(p1.Price.Sub(p0.Price).Mul(frac))
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

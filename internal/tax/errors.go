package tax

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// epsilon absorbs rounding noise from upstream feeds when comparing
// quantities. Anything below it is treated as zero.
var epsilon = decimal.New(1, -8) // 1e-8

// PriceGap identifies a timestamp for which no usable price exists.
// It carries exactly what the caller needs to fetch more data.
type PriceGap struct {
	Asset     string    `json:"asset"`
	Fiat      string    `json:"fiat"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceGapError is returned by PriceIndex lookups when neither neighbor
// exists within the configured window. Recoverable per row.
type PriceGapError struct {
	Gap PriceGap
}

func (e *PriceGapError) Error() string {
	return fmt.Sprintf("missing %s price for %s around %s",
		e.Gap.Fiat, e.Gap.Asset, e.Gap.Timestamp.UTC().Format(time.RFC3339))
}

// InsufficientLotsError means a disposal exceeded the open lot quantity
// for an asset. Fatal for the account's run: it indicates acquisition
// history is missing (e.g. a deposit never recorded as a buy).
type InsufficientLotsError struct {
	Asset     string
	Shortfall decimal.Decimal
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("insufficient %s lots: short by %s", e.Asset, e.Shortfall)
}

// OutOfOrderLotError means a lot was added behind already-consumed lots.
// The engine pre-sorts all events, so this only fires on an upstream
// ordering bug. Fatal.
type OutOfOrderLotError struct {
	Asset      string
	AcquiredAt time.Time
	TailAt     time.Time
}

func (e *OutOfOrderLotError) Error() string {
	return fmt.Sprintf("out-of-order %s lot: acquired %s is before queue tail %s and consumption already started",
		e.Asset, e.AcquiredAt.UTC().Format(time.RFC3339), e.TailAt.UTC().Format(time.RFC3339))
}

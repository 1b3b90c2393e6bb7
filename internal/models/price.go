package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one entry of the sparse historical fiat-price series for
// an (asset, fiat) pair. The series is append-only and not necessarily
// regularly spaced.
type PricePoint struct {
	ID        int64           `json:"id"`
	Asset     string          `json:"asset"`
	Fiat      string          `json:"fiat"`
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// PriceCoverage summarizes the stored series for one (asset, fiat) pair.
type PriceCoverage struct {
	Asset string    `json:"asset"`
	Fiat  string    `json:"fiat"`
	Count int64     `json:"count"`
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

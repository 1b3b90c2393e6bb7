package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventSpotBuy         EventType = "SPOT_BUY"
	EventSpotSell        EventType = "SPOT_SELL"
	EventDerivativeClose EventType = "DERIVATIVE_CLOSE"
)

// Event is a normalized trade history entry: a downloaded spot execution,
// a manually entered buy, or a derivative closed-position PnL record.
// Events are immutable once ingested; ExternalID deduplicates re-downloads.
type Event struct {
	ExternalID string          `json:"externalId"`
	AccountID  int64           `json:"accountId"`
	Type       EventType       `json:"type"`
	Asset      string          `json:"asset"` // base asset for spot, position symbol's base for derivatives
	Quote      string          `json:"quote"` // counter asset (crypto or fiat)
	Quantity   decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`     // unit price in Quote (spot only)
	Fee        decimal.Decimal `json:"fee"`       // denominated in Quote
	ClosedPnl  decimal.Decimal `json:"closedPnl"` // net realized PnL in Quote (derivatives only)
	Symbol     string          `json:"symbol,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Manual     bool            `json:"manual"`
	Seq        int64           `json:"-"` // stable ingestion-order tie breaker
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DisposalMatch is one ledger row: a disposal quantity matched against a
// single acquisition lot (spot), or one closed derivative position.
// A spot sell that spans several lots produces several rows.
type DisposalMatch struct {
	AccountID     int64           `json:"accountId"`
	Asset         string          `json:"asset"`
	EventType     EventType       `json:"eventType"`
	DisposedAt    time.Time       `json:"disposedAt"`
	Quantity      decimal.Decimal `json:"qty"`
	LotAcquiredAt time.Time       `json:"lotAcquiredAt,omitzero"`
	HoldingDays   int             `json:"holdingDays"`
	Proceeds      decimal.Decimal `json:"proceeds"`
	CostBasis     decimal.Decimal `json:"costBasis"`
	Gain          decimal.Decimal `json:"gain"`
	Taxable       bool            `json:"taxable"`

	// Approximate marks a row valued off a single-sided price neighbor
	// instead of an exact or interpolated price.
	Approximate bool `json:"approximate,omitempty"`
	// Unresolved marks a row whose fiat value could not be computed
	// because of a price gap. Unresolved rows carry no gain figure and
	// are excluded from yearly totals.
	Unresolved bool `json:"unresolved,omitempty"`
}

// FeeEntry is a trading fee converted to the reporting fiat at event time.
type FeeEntry struct {
	AccountID int64           `json:"accountId"`
	EventType EventType       `json:"eventType"`
	At        time.Time       `json:"at"`
	Amount    decimal.Decimal `json:"amount"`
}

// AssetYear is the per-asset slice of a yearly report.
type AssetYear struct {
	Asset       string          `json:"asset"`
	TaxableGain decimal.Decimal `json:"taxableGain"`
	ExemptGain  decimal.Decimal `json:"exemptGain"`
	Disposed    decimal.Decimal `json:"disposedQty"`
	Unresolved  int             `json:"unresolved,omitempty"`
}

// YearlyReport aggregates ledger rows for one calendar year (UTC).
// It is derived data, recomputed on demand and never persisted.
type YearlyReport struct {
	Year        int                   `json:"year"`
	AccountID   int64                 `json:"accountId"`
	Fiat        string                `json:"fiat"`
	TaxableGain decimal.Decimal       `json:"taxableGain"`
	ExemptGain  decimal.Decimal       `json:"exemptGain"`
	FeeTotal    decimal.Decimal       `json:"feeTotal"`
	Unresolved  int                   `json:"unresolved"`
	ByAsset     map[string]*AssetYear `json:"byAsset"`
}

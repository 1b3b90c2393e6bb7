package tax

import (
	"errors"
	"testing"
	"time"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

func pp(asset, fiat, ts, price string) models.PricePoint {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return models.PricePoint{Asset: asset, Fiat: fiat, Timestamp: parsed, Price: dec(price)}
}

func at(ts string) time.Time {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestPriceAtExactMatch(t *testing.T) {
	ix := NewPriceIndex([]models.PricePoint{
		pp("BTC", "EUR", "2023-02-01T00:00:00Z", "25000"),
		pp("BTC", "EUR", "2023-02-02T00:00:00Z", "26000"),
	}, time.Hour, 12*time.Hour)

	q, err := ix.PriceAt("BTC", "EUR", at("2023-02-01T00:30:00Z"))
	if err != nil {
		t.Fatalf("PriceAt: %v", err)
	}
	if !q.Price.Equal(dec("25000")) {
		t.Fatalf("expected exact 25000, got %s", q.Price)
	}
	if q.Approximate {
		t.Fatal("exact match must not be approximate")
	}
}

func TestPriceAtInterpolates(t *testing.T) {
	ix := NewPriceIndex([]models.PricePoint{
		pp("USDT", "EUR", "2023-02-01T00:00:00Z", "0.80"),
		pp("USDT", "EUR", "2023-02-01T12:00:00Z", "1.00"),
	}, time.Hour, 12*time.Hour)

	// Midpoint, 6h from either neighbor: linear blend.
	q, err := ix.PriceAt("USDT", "EUR", at("2023-02-01T06:00:00Z"))
	if err != nil {
		t.Fatalf("PriceAt: %v", err)
	}
	if !q.Price.Equal(dec("0.9")) {
		t.Fatalf("expected 0.9, got %s", q.Price)
	}
	if q.Approximate {
		t.Fatal("two-sided interpolation must not be approximate")
	}

	// Quarter of the way through.
	q, err = ix.PriceAt("USDT", "EUR", at("2023-02-01T03:00:00Z"))
	if err != nil {
		t.Fatal(err)
	}
	if !q.Price.Equal(dec("0.85")) {
		t.Fatalf("expected 0.85, got %s", q.Price)
	}
}

func TestPriceAtSingleSidedIsApproximate(t *testing.T) {
	ix := NewPriceIndex([]models.PricePoint{
		pp("BTC", "EUR", "2023-02-01T00:00:00Z", "25000"),
	}, time.Hour, 12*time.Hour)

	q, err := ix.PriceAt("BTC", "EUR", at("2023-02-01T08:00:00Z"))
	if err != nil {
		t.Fatalf("PriceAt: %v", err)
	}
	if !q.Approximate {
		t.Fatal("one-sided neighbor must be flagged approximate")
	}
	if !q.Price.Equal(dec("25000")) {
		t.Fatalf("price: got %s", q.Price)
	}

	// Lookahead side works the same way.
	q, err = ix.PriceAt("BTC", "EUR", at("2023-01-31T20:00:00Z"))
	if err != nil {
		t.Fatal(err)
	}
	if !q.Approximate || !q.Price.Equal(dec("25000")) {
		t.Fatalf("lookahead neighbor: approx=%v price=%s", q.Approximate, q.Price)
	}
}

func TestPriceAtGap(t *testing.T) {
	ix := NewPriceIndex([]models.PricePoint{
		pp("BTC", "EUR", "2023-01-01T00:00:00Z", "20000"),
	}, time.Hour, 12*time.Hour)

	want := at("2023-06-15T00:00:00Z")
	_, err := ix.PriceAt("BTC", "EUR", want)
	var gap *PriceGapError
	if !errors.As(err, &gap) {
		t.Fatalf("expected *PriceGapError, got %v", err)
	}
	if gap.Gap.Asset != "BTC" || gap.Gap.Fiat != "EUR" || !gap.Gap.Timestamp.Equal(want) {
		t.Fatalf("gap must carry asset/fiat/timestamp: %+v", gap.Gap)
	}

	// Unknown pair is a gap too, not a zero price.
	_, err = ix.PriceAt("XRP", "EUR", want)
	if !errors.As(err, &gap) {
		t.Fatalf("expected gap for unknown series, got %v", err)
	}
}

func TestPriceAtFiatIdentity(t *testing.T) {
	ix := NewPriceIndex(nil, time.Hour, 12*time.Hour)
	q, err := ix.PriceAt("EUR", "EUR", at("2023-02-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("PriceAt: %v", err)
	}
	if !q.Price.Equal(dec("1")) {
		t.Fatalf("fiat/fiat rate must be 1, got %s", q.Price)
	}
}

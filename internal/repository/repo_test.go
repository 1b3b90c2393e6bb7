package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
	"github.com/yniverz/bybit-tax-exporter/internal/repository"
	"github.com/yniverz/bybit-tax-exporter/internal/testutil"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func createAccount(t *testing.T, accounts *repository.AccountRepo) *models.Account {
	t.Helper()
	account, err := accounts.Create(context.Background(), &models.Account{
		Name: fmt.Sprintf("repo-test-%d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	t.Cleanup(func() { accounts.Delete(context.Background(), account.ID) })
	return account
}

func TestAccountRepo_CRUD(t *testing.T) {
	pool := testutil.SetupPool(t)
	accounts := repository.NewAccountRepo(pool)
	ctx := context.Background()

	account := createAccount(t, accounts)
	if account.Fiat != "EUR" {
		t.Fatalf("expected default fiat EUR, got %s", account.Fiat)
	}

	got, err := accounts.Get(ctx, account.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Name != account.Name {
		t.Fatalf("unexpected account: %+v", got)
	}

	if err := accounts.UpdateKeys(ctx, account.ID, "newkey", ""); err != nil {
		t.Fatalf("UpdateKeys: %v", err)
	}
	got, err = accounts.Get(ctx, account.ID)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.APIKey != "newkey" {
		t.Fatalf("expected updated key, got %q", got.APIKey)
	}

	missing, err := accounts.Get(ctx, 1<<40)
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing account")
	}
}

func TestEventRepo_UpsertIsIdempotent(t *testing.T) {
	pool := testutil.SetupPool(t)
	accounts := repository.NewAccountRepo(pool)
	events := repository.NewEventRepo(pool)
	ctx := context.Background()

	account := createAccount(t, accounts)
	batch := []models.Event{{
		ExternalID: fmt.Sprintf("exec-%d", time.Now().UnixNano()),
		AccountID:  account.ID,
		Type:       models.EventSpotBuy,
		Asset:      "BTC",
		Quote:      "EUR",
		Quantity:   dec(t, "0.5"),
		Price:      dec(t, "30000"),
		Fee:        dec(t, "10"),
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	}}

	n, err := events.UpsertSpot(ctx, batch)
	if err != nil {
		t.Fatalf("UpsertSpot: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 inserted, got %d", n)
	}

	n, err = events.UpsertSpot(ctx, batch)
	if err != nil {
		t.Fatalf("second UpsertSpot: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected duplicate skip, got %d inserted", n)
	}
}

func TestEventRepo_ListEventsMergesAndOrders(t *testing.T) {
	pool := testutil.SetupPool(t)
	accounts := repository.NewAccountRepo(pool)
	events := repository.NewEventRepo(pool)
	ctx := context.Background()

	account := createAccount(t, accounts)
	base := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	nonce := time.Now().UnixNano()

	if _, err := events.UpsertSpot(ctx, []models.Event{{
		ExternalID: fmt.Sprintf("e1-%d", nonce), AccountID: account.ID,
		Type: models.EventSpotBuy, Asset: "BTC", Quote: "EUR",
		Quantity: dec(t, "1"), Price: dec(t, "25000"), Fee: decimal.Zero,
		Timestamp: base,
	}}); err != nil {
		t.Fatalf("UpsertSpot: %v", err)
	}
	if _, err := events.UpsertDerivatives(ctx, []models.Event{{
		ExternalID: fmt.Sprintf("p1-%d", nonce), AccountID: account.ID,
		Type: models.EventDerivativeClose, Asset: "ETH", Quote: "USDT",
		Symbol: "ETHUSDT", Quantity: dec(t, "2"), ClosedPnl: dec(t, "40"),
		Fee: decimal.Zero, Timestamp: base.Add(time.Hour),
	}}); err != nil {
		t.Fatalf("UpsertDerivatives: %v", err)
	}

	list, err := events.ListEvents(ctx, account.ID, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 events, got %d", len(list))
	}
	if list[0].Type != models.EventSpotBuy || list[1].Type != models.EventDerivativeClose {
		t.Fatalf("unexpected order: %s then %s", list[0].Type, list[1].Type)
	}

	// Cut-off excludes the later derivative close.
	list, err = events.ListEvents(ctx, account.ID, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("ListEvents with cutoff: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 event before cutoff, got %d", len(list))
	}
}

func TestEventRepo_ManualBuys(t *testing.T) {
	pool := testutil.SetupPool(t)
	accounts := repository.NewAccountRepo(pool)
	events := repository.NewEventRepo(pool)
	ctx := context.Background()

	account := createAccount(t, accounts)
	ev := models.Event{
		AccountID: account.ID,
		Type:      models.EventSpotBuy,
		Asset:     "BTC",
		Quote:     "EUR",
		Quantity:  dec(t, "0.25"),
		Price:     dec(t, "20000"),
		Fee:       decimal.Zero,
		Timestamp: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		Manual:    true,
	}
	if err := events.InsertManualBuy(ctx, &ev); err != nil {
		t.Fatalf("InsertManualBuy: %v", err)
	}
	if ev.ExternalID == "" {
		t.Fatal("expected generated external id")
	}

	buys, err := events.ListManualBuys(ctx, account.ID)
	if err != nil {
		t.Fatalf("ListManualBuys: %v", err)
	}
	if len(buys) != 1 || !buys[0].Manual {
		t.Fatalf("unexpected manual buys: %+v", buys)
	}

	if err := events.DeleteManualBuy(ctx, account.ID, ev.ExternalID); err != nil {
		t.Fatalf("DeleteManualBuy: %v", err)
	}
	if err := events.DeleteManualBuy(ctx, account.ID, ev.ExternalID); err == nil {
		t.Fatal("expected error deleting missing manual buy")
	}
}

func TestPriceRepo_UpsertAndCoverage(t *testing.T) {
	pool := testutil.SetupPool(t)
	prices := repository.NewPriceRepo(pool)
	ctx := context.Background()

	asset := fmt.Sprintf("TST%d", time.Now().UnixNano()%1000000)
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []models.PricePoint{
		{Asset: asset, Fiat: "EUR", Timestamp: base, Price: dec(t, "1.5")},
		{Asset: asset, Fiat: "EUR", Timestamp: base.AddDate(0, 0, 1), Price: dec(t, "1.6")},
	}

	n, err := prices.Upsert(ctx, points)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted, got %d", n)
	}

	n, err = prices.Upsert(ctx, points)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected duplicate skip, got %d", n)
	}

	series, err := prices.AssetSeries(ctx, asset, "EUR")
	if err != nil {
		t.Fatalf("AssetSeries: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 points, got %d", len(series))
	}

	latest, err := prices.LatestTimestamp(ctx, asset, "EUR")
	if err != nil {
		t.Fatalf("LatestTimestamp: %v", err)
	}
	if !latest.Equal(base.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected latest timestamp: %s", latest)
	}
}

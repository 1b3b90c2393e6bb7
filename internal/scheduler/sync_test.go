package scheduler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yniverz/bybit-tax-exporter/internal/external"
	"github.com/yniverz/bybit-tax-exporter/internal/models"
	"github.com/yniverz/bybit-tax-exporter/internal/notifications"
	"github.com/yniverz/bybit-tax-exporter/internal/repository"
	"github.com/yniverz/bybit-tax-exporter/internal/scheduler"
	"github.com/yniverz/bybit-tax-exporter/internal/testutil"
)

// fakeBybit serves just enough of the v5 API for a sync run.
func fakeBybit(t *testing.T) *httptest.Server {
	t.Helper()
	execTime := time.Now().UTC().Add(-24 * time.Hour).UnixMilli()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/execution/list":
			fmt.Fprintf(w, `{"retCode":0,"retMsg":"OK","result":{"nextPageCursor":"","list":[
				{"execId":"sync-e1","symbol":"BTCEUR","side":"Buy","execQty":"0.1","execPrice":"40000","execFee":"4","execTime":"%d"}
			]}}`, execTime)
		case "/v5/position/closed-pnl":
			fmt.Fprintf(w, `{"retCode":0,"retMsg":"OK","result":{"nextPageCursor":"","list":[
				{"orderId":"sync-o1","symbol":"ETHUSDT","side":"Sell","qty":"1","closedPnl":"55.5","updatedTime":"%d"}
			]}}`, execTime)
		case "/v5/market/kline":
			fmt.Fprintf(w, `{"retCode":0,"retMsg":"OK","result":{"symbol":"%s","list":[
				["%d","40000","40500","39500","40200","10","400000"]
			]}}`, r.URL.Query().Get("symbol"), execTime)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestSyncAccountNow(t *testing.T) {
	pool := testutil.SetupPool(t)
	accounts := repository.NewAccountRepo(pool)
	events := repository.NewEventRepo(pool)
	prices := repository.NewPriceRepo(pool)
	notifier := notifications.NewSender("", "TestBot")

	srv := fakeBybit(t)
	defer srv.Close()

	ctx := context.Background()
	account, err := accounts.Create(ctx, &models.Account{
		Name:      fmt.Sprintf("sync-test-%d", time.Now().UnixNano()),
		APIKey:    "k",
		APISecret: "s",
		Fiat:      "EUR",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	t.Cleanup(func() { accounts.Delete(context.Background(), account.ID) })

	sched := scheduler.NewSyncScheduler(accounts, events, prices, notifier,
		func(apiKey, apiSecret string) scheduler.ExchangeClient {
			return external.NewBybitClient(srv.URL, apiKey, apiSecret)
		},
		scheduler.SyncSchedulerConfig{
			Interval:     time.Hour,
			Lookback:     24 * time.Hour,
			HistoryStart: time.Now().UTC().Add(-48 * time.Hour),
		})

	if err := sched.SyncAccountNow(ctx, account.ID); err != nil {
		t.Fatalf("SyncAccountNow: %v", err)
	}

	stored, err := events.ListEvents(ctx, account.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(stored))
	}

	// Second run re-downloads the overlap but must not duplicate.
	if err := sched.SyncAccountNow(ctx, account.ID); err != nil {
		t.Fatalf("second SyncAccountNow: %v", err)
	}
	stored, err = events.ListEvents(ctx, account.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected sync to be idempotent, got %d events", len(stored))
	}

	series, err := prices.AssetSeries(ctx, "BTC", "EUR")
	if err != nil {
		t.Fatalf("AssetSeries: %v", err)
	}
	if len(series) == 0 {
		t.Fatal("expected price points for BTC/EUR")
	}
	t.Logf("sync stored %d events, %d BTC/EUR price points", len(stored), len(series))
}

func TestSyncSkipsAccountWithoutKeys(t *testing.T) {
	pool := testutil.SetupPool(t)
	accounts := repository.NewAccountRepo(pool)
	events := repository.NewEventRepo(pool)
	prices := repository.NewPriceRepo(pool)

	ctx := context.Background()
	account, err := accounts.Create(ctx, &models.Account{
		Name: fmt.Sprintf("sync-nokeys-%d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	t.Cleanup(func() { accounts.Delete(context.Background(), account.ID) })

	sched := scheduler.NewSyncScheduler(accounts, events, prices,
		notifications.NewSender("", ""),
		func(apiKey, apiSecret string) scheduler.ExchangeClient {
			t.Fatal("client must not be built for an account without keys")
			return nil
		},
		scheduler.SyncSchedulerConfig{})

	if err := sched.SyncAccountNow(ctx, account.ID); err != nil {
		t.Fatalf("expected skip, got %v", err)
	}
}

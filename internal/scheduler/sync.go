package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
	"github.com/yniverz/bybit-tax-exporter/internal/notifications"
	"github.com/yniverz/bybit-tax-exporter/internal/repository"
)

// ExchangeClient is the subset of the exchange API the scheduler needs.
type ExchangeClient interface {
	SpotExecutions(ctx context.Context, accountID int64, start, end time.Time) ([]models.Event, error)
	ClosedPnl(ctx context.Context, accountID int64, start, end time.Time) ([]models.Event, error)
	DailyKlines(ctx context.Context, asset, fiat string, start, end time.Time) ([]models.PricePoint, error)
}

// ClientFactory builds a client for one account's API credentials.
type ClientFactory func(apiKey, apiSecret string) ExchangeClient

type SyncSchedulerConfig struct {
	Interval     time.Duration // e.g. 6*time.Hour
	Lookback     time.Duration // overlap re-downloaded on every run, e.g. 7 days
	HistoryStart time.Time     // where a fresh account's download begins
}

// SyncScheduler periodically downloads each account's trade history and
// the daily price series its events need. Downloads overlap the last
// stored timestamp by the configured lookback; primary keys make the
// overlap harmless.
type SyncScheduler struct {
	accounts  *repository.AccountRepo
	events    *repository.EventRepo
	prices    *repository.PriceRepo
	notifier  *notifications.Sender
	newClient ClientFactory
	cfg       SyncSchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewSyncScheduler(accounts *repository.AccountRepo, events *repository.EventRepo,
	prices *repository.PriceRepo, notifier *notifications.Sender,
	newClient ClientFactory, cfg SyncSchedulerConfig) *SyncScheduler {

	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	if cfg.HistoryStart.IsZero() {
		cfg.HistoryStart = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &SyncScheduler{
		accounts:  accounts,
		events:    events,
		prices:    prices,
		notifier:  notifier,
		newClient: newClient,
		cfg:       cfg,
	}
}

func (s *SyncScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		fmt.Println("[SYNC] Already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	// Initial sync on startup (fire-and-forget)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := s.syncAll(ctx); err != nil {
			fmt.Printf("[SYNC] Initial sync failed: %v\n", err)
		}
	}()

	// Recurring ticker
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
				if err := s.syncAll(ctx); err != nil {
					fmt.Printf("[SYNC] Scheduled sync failed: %v\n", err)
				}
				cancel()
			}
		}
	}()

	fmt.Printf("[SYNC] Started (every %s, lookback %s)\n", s.cfg.Interval, s.cfg.Lookback)
}

func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	fmt.Println("[SYNC] Stopped")
}

func (s *SyncScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SyncNow triggers a full sync outside the normal schedule.
func (s *SyncScheduler) SyncNow(ctx context.Context) error {
	fmt.Println("[SYNC] Manual sync triggered")
	return s.syncAll(ctx)
}

// SyncAccountNow syncs a single account.
func (s *SyncScheduler) SyncAccountNow(ctx context.Context, accountID int64) error {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("account %d not found", accountID)
	}
	return s.syncAccount(ctx, account)
}

func (s *SyncScheduler) syncAll(ctx context.Context) error {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	var firstErr error
	for i := range accounts {
		if err := s.syncAccount(ctx, &accounts[i]); err != nil {
			fmt.Printf("[SYNC] Account %s failed: %v\n", accounts[i].Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *SyncScheduler) syncAccount(ctx context.Context, account *models.Account) error {
	if account.APIKey == "" || account.APISecret == "" {
		fmt.Printf("[SYNC] Account %s has no API credentials, skipping download\n", account.Name)
		return nil
	}

	client := s.newClient(account.APIKey, account.APISecret)
	now := time.Now().UTC()
	start := s.downloadStart(ctx, account.ID)

	fmt.Printf("[SYNC] Account %s: downloading from %s\n", account.Name, start.Format(time.RFC3339))

	spot, err := client.SpotExecutions(ctx, account.ID, start, now)
	if err != nil {
		s.notifier.SendSyncResult(account.Name, 0, 0, 0, err)
		return fmt.Errorf("download spot executions: %w", err)
	}
	spotNew, err := s.events.UpsertSpot(ctx, spot)
	if err != nil {
		return fmt.Errorf("store spot executions: %w", err)
	}

	derivatives, err := client.ClosedPnl(ctx, account.ID, start, now)
	if err != nil {
		s.notifier.SendSyncResult(account.Name, spotNew, 0, 0, err)
		return fmt.Errorf("download closed pnl: %w", err)
	}
	derivNew, err := s.events.UpsertDerivatives(ctx, derivatives)
	if err != nil {
		return fmt.Errorf("store closed pnl: %w", err)
	}

	priceNew, err := s.syncPrices(ctx, account, client, now)
	if err != nil {
		s.notifier.SendSyncResult(account.Name, spotNew, derivNew, 0, err)
		return err
	}

	fmt.Printf("[SYNC] Account %s: %d new spot, %d new pnl, %d new prices\n",
		account.Name, spotNew, derivNew, priceNew)
	if spotNew > 0 || derivNew > 0 || priceNew > 0 {
		s.notifier.SendSyncResult(account.Name, spotNew, derivNew, priceNew, nil)
	}
	return nil
}

// syncPrices downloads daily klines for every asset the account's events
// reference, so the price index can value quote-denominated trades in
// the account's fiat. Each pair resumes from its newest stored point.
func (s *SyncScheduler) syncPrices(ctx context.Context, account *models.Account,
	client ExchangeClient, now time.Time) (int, error) {

	events, err := s.events.ListEvents(ctx, account.ID, now)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	assets := make(map[string]bool)
	for i := range events {
		if events[i].Asset != "" && events[i].Asset != account.Fiat {
			assets[events[i].Asset] = true
		}
		if events[i].Quote != "" && events[i].Quote != account.Fiat {
			assets[events[i].Quote] = true
		}
	}

	total := 0
	for asset := range assets {
		start := s.cfg.HistoryStart
		if latest, err := s.prices.LatestTimestamp(ctx, asset, account.Fiat); err == nil && !latest.IsZero() {
			start = latest.Add(-s.cfg.Lookback)
		}
		points, err := client.DailyKlines(ctx, asset, account.Fiat, start, now)
		if err != nil {
			// Not every pair trades against the fiat directly; log and move on.
			fmt.Printf("[SYNC] Price download %s/%s failed: %v\n", asset, account.Fiat, err)
			continue
		}
		n, err := s.prices.Upsert(ctx, points)
		if err != nil {
			return total, fmt.Errorf("store prices %s/%s: %w", asset, account.Fiat, err)
		}
		total += n
	}
	return total, nil
}

func (s *SyncScheduler) downloadStart(ctx context.Context, accountID int64) time.Time {
	latest, err := s.events.LatestSpotTimestamp(ctx, accountID)
	if err != nil || latest.IsZero() {
		return s.cfg.HistoryStart
	}
	return latest.Add(-s.cfg.Lookback)
}

package external

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yniverz/bybit-tax-exporter/internal/httputil"
	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

const (
	recvWindow = "5000"
	pageLimit  = 100
	// Bybit caps list endpoints at a 7-day window per request.
	maxWindow = 7 * 24 * time.Hour
	// Hard stop against cursor loops on a misbehaving endpoint.
	maxPages = 200
)

// quoteSuffixes are tried longest-first when splitting a symbol like
// BTCUSDT into base and quote.
var quoteSuffixes = []string{"USDT", "USDC", "EUR", "USD", "BTC", "ETH"}

// BybitClient talks to the Bybit v5 REST API: private execution and
// closed-PnL history for an account, public klines for the price series.
type BybitClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewBybitClient(baseURL, apiKey, apiSecret string) *BybitClient {
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	return &BybitClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
	}
}

type bybitEnvelope[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
}

type executionList struct {
	List []struct {
		ExecID    string `json:"execId"`
		Symbol    string `json:"symbol"`
		Side      string `json:"side"`
		ExecQty   string `json:"execQty"`
		ExecPrice string `json:"execPrice"`
		ExecFee   string `json:"execFee"`
		ExecTime  string `json:"execTime"`
	} `json:"list"`
	NextPageCursor string `json:"nextPageCursor"`
}

type closedPnlList struct {
	List []struct {
		OrderID     string `json:"orderId"`
		Symbol      string `json:"symbol"`
		Side        string `json:"side"`
		Qty         string `json:"qty"`
		ClosedPnl   string `json:"closedPnl"`
		UpdatedTime string `json:"updatedTime"`
	} `json:"list"`
	NextPageCursor string `json:"nextPageCursor"`
}

type klineList struct {
	Symbol string     `json:"symbol"`
	List   [][]string `json:"list"`
}

// SpotExecutions downloads the account's spot fills between start and end,
// walking both the 7-day window limit and the page cursor.
func (c *BybitClient) SpotExecutions(ctx context.Context, accountID int64, start, end time.Time) ([]models.Event, error) {
	var events []models.Event

	err := c.eachWindow(start, end, func(ws, we time.Time) error {
		cursor := ""
		for page := 0; page < maxPages; page++ {
			q := url.Values{}
			q.Set("category", "spot")
			q.Set("startTime", strconv.FormatInt(ws.UnixMilli(), 10))
			q.Set("endTime", strconv.FormatInt(we.UnixMilli(), 10))
			q.Set("limit", strconv.Itoa(pageLimit))
			if cursor != "" {
				q.Set("cursor", cursor)
			}

			var out bybitEnvelope[executionList]
			if err := c.getSigned(ctx, "/v5/execution/list", q, &out); err != nil {
				return err
			}
			if out.RetCode != 0 {
				return fmt.Errorf("bybit execution list: %s (retCode %d)", out.RetMsg, out.RetCode)
			}

			for _, item := range out.Result.List {
				base, quote := SplitSymbol(item.Symbol)
				ev := models.Event{
					ExternalID: item.ExecID,
					AccountID:  accountID,
					Asset:      base,
					Quote:      quote,
					Symbol:     item.Symbol,
					Quantity:   parseDecimal(item.ExecQty),
					Price:      parseDecimal(item.ExecPrice),
					Fee:        parseDecimal(item.ExecFee),
					Timestamp:  parseMillis(item.ExecTime),
				}
				if strings.EqualFold(item.Side, "Sell") {
					ev.Type = models.EventSpotSell
				} else {
					ev.Type = models.EventSpotBuy
				}
				events = append(events, ev)
			}

			cursor = out.Result.NextPageCursor
			if cursor == "" || len(out.Result.List) == 0 {
				return nil
			}
		}
		return fmt.Errorf("bybit execution list: cursor did not terminate after %d pages", maxPages)
	})
	return events, err
}

// ClosedPnl downloads linear derivative closed-position PnL records.
func (c *BybitClient) ClosedPnl(ctx context.Context, accountID int64, start, end time.Time) ([]models.Event, error) {
	var events []models.Event

	err := c.eachWindow(start, end, func(ws, we time.Time) error {
		cursor := ""
		for page := 0; page < maxPages; page++ {
			q := url.Values{}
			q.Set("category", "linear")
			q.Set("startTime", strconv.FormatInt(ws.UnixMilli(), 10))
			q.Set("endTime", strconv.FormatInt(we.UnixMilli(), 10))
			q.Set("limit", strconv.Itoa(pageLimit))
			if cursor != "" {
				q.Set("cursor", cursor)
			}

			var out bybitEnvelope[closedPnlList]
			if err := c.getSigned(ctx, "/v5/position/closed-pnl", q, &out); err != nil {
				return err
			}
			if out.RetCode != 0 {
				return fmt.Errorf("bybit closed pnl: %s (retCode %d)", out.RetMsg, out.RetCode)
			}

			for _, item := range out.Result.List {
				base, quote := SplitSymbol(item.Symbol)
				events = append(events, models.Event{
					// The API exposes no dedicated PnL row ID; the order
					// plus close time is unique in practice.
					ExternalID: fmt.Sprintf("%s-%s", item.OrderID, item.UpdatedTime),
					AccountID:  accountID,
					Type:       models.EventDerivativeClose,
					Asset:      base,
					Quote:      quote,
					Symbol:     item.Symbol,
					Quantity:   parseDecimal(item.Qty),
					ClosedPnl:  parseDecimal(item.ClosedPnl),
					Timestamp:  parseMillis(item.UpdatedTime),
				})
			}

			cursor = out.Result.NextPageCursor
			if cursor == "" || len(out.Result.List) == 0 {
				return nil
			}
		}
		return fmt.Errorf("bybit closed pnl: cursor did not terminate after %d pages", maxPages)
	})
	return events, err
}

// DailyKlines downloads daily close prices for a spot symbol (e.g.
// BTCEUR) and maps them onto the (asset, fiat) price series. Public
// endpoint, no signature.
func (c *BybitClient) DailyKlines(ctx context.Context, asset, fiat string, start, end time.Time) ([]models.PricePoint, error) {
	symbol := asset + fiat
	var points []models.PricePoint

	// The kline endpoint pages backwards from `end`; walk until start is
	// covered or a page comes back empty.
	cursorEnd := end
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("category", "spot")
		q.Set("symbol", symbol)
		q.Set("interval", "D")
		q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
		q.Set("end", strconv.FormatInt(cursorEnd.UnixMilli(), 10))
		q.Set("limit", "1000")

		var out bybitEnvelope[klineList]
		err := httputil.DoJSON(ctx, c.httpClient, c.retry, &out, func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet,
				c.baseURL+"/v5/market/kline?"+q.Encode(), nil)
		})
		if err != nil {
			return nil, fmt.Errorf("bybit kline %s: %w", symbol, err)
		}
		if out.RetCode != 0 {
			return nil, fmt.Errorf("bybit kline %s: %s (retCode %d)", symbol, out.RetMsg, out.RetCode)
		}
		if len(out.Result.List) == 0 {
			break
		}

		oldest := cursorEnd
		for _, row := range out.Result.List {
			// Row layout: [startTime, open, high, low, close, volume, turnover].
			if len(row) < 5 {
				continue
			}
			ts := parseMillis(row[0])
			points = append(points, models.PricePoint{
				Asset:     asset,
				Fiat:      fiat,
				Timestamp: ts,
				Price:     parseDecimal(row[4]),
			})
			if ts.Before(oldest) {
				oldest = ts
			}
		}
		if !oldest.After(start) {
			break
		}
		cursorEnd = oldest.Add(-time.Millisecond)
	}
	return points, nil
}

// --- request plumbing ---

func (c *BybitClient) getSigned(ctx context.Context, path string, q url.Values, out any) error {
	return httputil.DoJSON(ctx, c.httpClient, c.retry, out, func() (*http.Request, error) {
		query := q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query, nil)
		if err != nil {
			return nil, err
		}
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
		req.Header.Set("X-BAPI-SIGN", Sign(c.apiSecret, ts+c.apiKey+recvWindow+query))
		return req, nil
	})
}

// Sign computes the Bybit v5 request signature: hex HMAC-SHA256 over
// timestamp + apiKey + recvWindow + queryString.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// SplitSymbol breaks a pair symbol into base and quote by known quote
// suffixes; unknown symbols fall back to a 3-char quote.
func SplitSymbol(symbol string) (base, quote string) {
	s := strings.ToUpper(symbol)
	for _, suffix := range quoteSuffixes {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			return s[:len(s)-len(suffix)], suffix
		}
	}
	if len(s) > 3 {
		return s[:len(s)-3], s[len(s)-3:]
	}
	return s, ""
}

func (c *BybitClient) eachWindow(start, end time.Time, fn func(ws, we time.Time) error) error {
	for ws := start; ws.Before(end); ws = ws.Add(maxWindow) {
		we := ws.Add(maxWindow)
		if we.After(end) {
			we = end
		}
		if err := fn(ws, we); err != nil {
			return err
		}
	}
	return nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

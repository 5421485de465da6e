package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"TickerLens/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using Yahoo Finance public chart API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string, timeout time.Duration) *YahooFetcher {
	return &YahooFetcher{
		BaseURL: yahooBaseURL,
		Client:  newHTTPClient(proxyURL, timeout),
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
	}
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// chartResponse is the subset of the v8 chart payload the fetcher reads.
// Quote columns are nullable: Yahoo sends null for sessions without trades.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (q chartQuote) bar(i int, ts int64) (model.OHLCV, bool) {
	c := value(q.Close, i)
	if c == nil {
		return model.OHLCV{}, false
	}
	b := model.OHLCV{Time: time.Unix(ts, 0).UTC(), Close: *c}
	if v := value(q.Open, i); v != nil {
		b.Open = *v
	}
	if v := value(q.High, i); v != nil {
		b.High = *v
	}
	if v := value(q.Low, i); v != nil {
		b.Low = *v
	}
	if v := value(q.Volume, i); v != nil {
		b.Volume = *v
	}
	return b, true
}

func value(col []*float64, i int) *float64 {
	if i < len(col) {
		return col[i]
	}
	return nil
}

func (f *YahooFetcher) chartURL(symbol string, start, end model.Date, interval model.Interval) string {
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Time().Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Time().Unix(), 10))
	q.Set("interval", string(interval))
	q.Set("events", "history")
	return fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), q.Encode())
}

// FetchBars downloads bars in [start, end) at the requested interval. Rows
// without a close are skipped.
func (f *YahooFetcher) FetchBars(ctx context.Context, symbol string, start, end model.Date, interval model.Interval) (model.Series, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.chartURL(symbol, start, end, interval), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}

	var chart chartResponse
	decodeErr := json.Unmarshal(body, &chart)
	if e := chart.Chart.Error; decodeErr == nil && e != nil {
		if e.Code == "Not Found" {
			return nil, fmt.Errorf("yahoo %s: %s: %w", symbol, e.Description, ErrUnknownSymbol)
		}
		return nil, fmt.Errorf("yahoo %s: %s: %s", symbol, e.Code, e.Description)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("yahoo %s: status 404: %w", symbol, ErrUnknownSymbol)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("yahoo %s: status %d, body: %s", symbol, resp.StatusCode, string(body))
	case decodeErr != nil:
		return nil, fmt.Errorf("yahoo decode: %w", decodeErr)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return model.Series{}, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make(model.Series, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if b, ok := quote.bar(i, ts); ok {
			bars = append(bars, b)
		}
	}
	slices.SortFunc(bars, func(a, b model.OHLCV) int { return a.Time.Compare(b.Time) })
	return bars, nil
}

package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/provider"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

const (
	defaultDataBase   = "https://data.alpaca.markets"
	defaultBrokerBase = "https://api.alpaca.markets"
	paperBrokerBase   = "https://paper-api.alpaca.markets"

	barsPageLimit = 10000
	searchLimit   = 20

	headerKeyID     = "APCA-API-KEY-ID"
	headerKeySecret = "APCA-API-SECRET-KEY"
)

// restClient serves the pull API: point-in-time fetches independent of the
// streaming lifecycle. Requests carry an explicit timeout rather than
// trusting transport defaults.
type restClient struct {
	logger     *zap.Logger
	hc         *http.Client
	cfg        models.ProviderConfig
	dataBase   string
	brokerBase string
}

func newRestClient(logger *zap.Logger, cfg models.ProviderConfig) *restClient {
	dataBase := cfg.BaseURL
	if dataBase == "" {
		dataBase = defaultDataBase
	}
	brokerBase := defaultBrokerBase
	if cfg.Sandbox {
		brokerBase = paperBrokerBase
	}
	return &restClient{
		logger:     logger,
		hc:         &http.Client{Timeout: 10 * time.Second},
		cfg:        cfg,
		dataBase:   strings.TrimRight(dataBase, "/"),
		brokerBase: brokerBase,
	}
}

func (r *restClient) getJSON(ctx context.Context, op, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set(headerKeyID, r.cfg.APIKey)
	req.Header.Set(headerKeySecret, r.cfg.APISecret)
	req.Header.Set("Content-Type", "application/json")

	res, err := r.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &provider.StatusError{Op: op, Code: res.StatusCode, Detail: strings.TrimSpace(string(body))}
	}
	return json.NewDecoder(res.Body).Decode(out)
}

type restQuote struct {
	Time     string  `json:"t"`
	BidPrice float64 `json:"bp"`
	BidSize  float64 `json:"bs"`
	AskPrice float64 `json:"ap"`
	AskSize  float64 `json:"as"`
}

type restTrade struct {
	Time     string  `json:"t"`
	Price    float64 `json:"p"`
	Size     float64 `json:"s"`
	Exchange string  `json:"x"`
}

type restBar struct {
	Time       string  `json:"t"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     float64 `json:"v"`
	VWAP       float64 `json:"vw"`
	TradeCount int64   `json:"n"`
}

type snapshotResponse struct {
	DailyBar     *restBar `json:"dailyBar"`
	PrevDailyBar *restBar `json:"prevDailyBar"`
}

// GetQuote synthesizes one canonical quote from three concurrent lookups:
// the latest quote (hard requirement), the latest trade (preferred last
// price), and the intraday snapshot (OHLC and previous close). Failures of
// the secondary calls leave their fields zero.
func (r *restClient) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	var (
		wg       sync.WaitGroup
		quoteRes struct {
			Quote restQuote `json:"quote"`
		}
		tradeRes struct {
			Trade restTrade `json:"trade"`
		}
		snapRes  snapshotResponse
		quoteErr error
		tradeErr error
		snapErr  error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		quoteErr = r.getJSON(ctx, "latest quote", fmt.Sprintf("%s/v2/stocks/%s/quotes/latest", r.dataBase, symbol), &quoteRes)
	}()
	go func() {
		defer wg.Done()
		tradeErr = r.getJSON(ctx, "latest trade", fmt.Sprintf("%s/v2/stocks/%s/trades/latest", r.dataBase, symbol), &tradeRes)
	}()
	go func() {
		defer wg.Done()
		snapErr = r.getJSON(ctx, "snapshot", fmt.Sprintf("%s/v2/stocks/%s/snapshot", r.dataBase, symbol), &snapRes)
	}()
	wg.Wait()

	if quoteErr != nil {
		return models.Quote{}, quoteErr
	}
	if tradeErr != nil {
		r.logger.Debug("Latest trade lookup failed, falling back to ask", zap.String("symbol", symbol), zap.Error(tradeErr))
	}
	if snapErr != nil {
		r.logger.Debug("Snapshot lookup failed, omitting OHLC", zap.String("symbol", symbol), zap.Error(snapErr))
	}

	last := quoteRes.Quote.AskPrice
	if tradeErr == nil && tradeRes.Trade.Price > 0 {
		last = tradeRes.Trade.Price
	}

	q := models.Quote{
		Symbol:    symbol,
		Bid:       quoteRes.Quote.BidPrice,
		Ask:       quoteRes.Quote.AskPrice,
		BidSize:   quoteRes.Quote.BidSize,
		AskSize:   quoteRes.Quote.AskSize,
		Last:      last,
		Timestamp: parseTimeMs(quoteRes.Quote.Time),
	}
	if snapErr == nil {
		if daily := snapRes.DailyBar; daily != nil {
			q.Open = daily.Open
			q.High = daily.High
			q.Low = daily.Low
			q.Volume = daily.Volume
		}
		if prev := snapRes.PrevDailyBar; prev != nil {
			q.SetChangeFrom(prev.Close)
		}
	}
	return q, nil
}

// GetBars walks the page-token cursor until the venue stops returning one,
// concatenating pages. Any page failure fails the whole call; no partial
// results.
func (r *restClient) GetBars(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))
	params.Set("timeframe", mapTimeframe(tf))
	params.Set("limit", fmt.Sprintf("%d", barsPageLimit))
	params.Set("adjustment", "split")
	params.Set("feed", "iex")

	var bars []models.Bar
	pageToken := ""
	for {
		pageURL := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", r.dataBase, symbol, params.Encode())
		if pageToken != "" {
			pageURL += "&page_token=" + url.QueryEscape(pageToken)
		}

		var page struct {
			Bars          []restBar `json:"bars"`
			NextPageToken string    `json:"next_page_token"`
		}
		if err := r.getJSON(ctx, "bars", pageURL, &page); err != nil {
			return nil, err
		}

		for _, b := range page.Bars {
			bars = append(bars, models.Bar{
				Symbol:     symbol,
				Open:       b.Open,
				High:       b.High,
				Low:        b.Low,
				Close:      b.Close,
				Volume:     b.Volume,
				Timestamp:  parseTimeMs(b.Time),
				VWAP:       b.VWAP,
				TradeCount: b.TradeCount,
			})
		}

		if page.NextPageToken == "" {
			return bars, nil
		}
		pageToken = page.NextPageToken
	}
}

// SearchSymbols filters the active asset universe by case-insensitive
// substring on symbol or name. First match wins; capped at 20.
func (r *restClient) SearchSymbols(ctx context.Context, query string) ([]models.SymbolInfo, error) {
	var assets []struct {
		Symbol     string `json:"symbol"`
		Name       string `json:"name"`
		Exchange   string `json:"exchange"`
		AssetClass string `json:"class"`
		Tradable   bool   `json:"tradable"`
	}
	assetsURL := r.brokerBase + "/v2/assets?status=active&asset_class=us_equity"
	if err := r.getJSON(ctx, "asset search", assetsURL, &assets); err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var out []models.SymbolInfo
	for _, a := range assets {
		if !strings.Contains(strings.ToLower(a.Symbol), q) && !strings.Contains(strings.ToLower(a.Name), q) {
			continue
		}
		assetType := "stock"
		if a.AssetClass == "crypto" {
			assetType = "crypto"
		}
		out = append(out, models.SymbolInfo{
			Symbol:   a.Symbol,
			Name:     a.Name,
			Exchange: a.Exchange,
			Type:     assetType,
			Tradable: a.Tradable,
		})
		if len(out) == searchLimit {
			break
		}
	}
	return out, nil
}

// GetNews translates the abstract filter into query parameters
func (r *restClient) GetNews(ctx context.Context, filter models.NewsFilter) ([]models.NewsArticle, error) {
	params := url.Values{}
	if len(filter.Symbols) > 0 {
		params.Set("symbols", strings.Join(filter.Symbols, ","))
	}
	if filter.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", filter.Limit))
	}
	if !filter.Start.IsZero() {
		params.Set("start", filter.Start.UTC().Format(time.RFC3339))
	}
	if !filter.End.IsZero() {
		params.Set("end", filter.End.UTC().Format(time.RFC3339))
	}

	var res struct {
		News []struct {
			ID        json.Number `json:"id"`
			Headline  string      `json:"headline"`
			Summary   string      `json:"summary"`
			Source    string      `json:"source"`
			URL       string      `json:"url"`
			Symbols   []string    `json:"symbols"`
			CreatedAt string      `json:"created_at"`
			UpdatedAt string      `json:"updated_at"`
			Images    []struct {
				URL  string `json:"url"`
				Size string `json:"size"`
			} `json:"images"`
		} `json:"news"`
	}
	newsURL := r.dataBase + "/v1beta1/news"
	if encoded := params.Encode(); encoded != "" {
		newsURL += "?" + encoded
	}
	if err := r.getJSON(ctx, "news", newsURL, &res); err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(res.News))
	for _, n := range res.News {
		article := models.NewsArticle{
			ID:          n.ID.String(),
			Headline:    n.Headline,
			Summary:     n.Summary,
			Source:      n.Source,
			URL:         n.URL,
			Symbols:     n.Symbols,
			PublishedAt: parseTimeMs(n.CreatedAt),
			UpdatedAt:   parseTimeMs(n.UpdatedAt),
		}
		for _, img := range n.Images {
			article.Images = append(article.Images, models.NewsImage{URL: img.URL, Size: img.Size})
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// mapTimeframe translates the abstract vocabulary to the venue's wording,
// defaulting to daily for anything unmapped
func mapTimeframe(tf models.Timeframe) string {
	switch tf {
	case models.Timeframe1Min:
		return "1Min"
	case models.Timeframe5Min:
		return "5Min"
	case models.Timeframe15Min:
		return "15Min"
	case models.Timeframe30Min:
		return "30Min"
	case models.Timeframe1Hour:
		return "1Hour"
	case models.Timeframe4Hour:
		return "4Hour"
	case models.Timeframe1Day:
		return "1Day"
	case models.Timeframe1Week:
		return "1Week"
	case models.Timeframe1Mon:
		return "1Month"
	default:
		return "1Day"
	}
}

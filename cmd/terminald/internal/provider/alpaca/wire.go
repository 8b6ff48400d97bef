package alpaca

import (
	"encoding/json"
	"time"

	"github.com/Kyle-Grantland/finterm/pkg/models"
)

// Wire shapes for the venue's streaming protocol. Every inbound frame is
// tagged with a one-letter discriminator in "T"; frames arrive either as a
// single object or as an array of heterogeneous objects.

const (
	msgTypeSuccess = "success"
	msgTypeError   = "error"
	msgTypeQuote   = "q"
	msgTypeTrade   = "t"
	msgTypeBar     = "b"
	msgTypeNews    = "n"

	ackAuthenticated = "authenticated"

	// venue error code for a rejected key/secret pair
	codeAuthFailed = 402
)

type authRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// subscribeRequest doubles as the unsubscribe message; empty channels are
// omitted from the frame entirely.
type subscribeRequest struct {
	Action string   `json:"action"`
	Quotes []string `json:"quotes,omitempty"`
	Trades []string `json:"trades,omitempty"`
	Bars   []string `json:"bars,omitempty"`
	News   []string `json:"news,omitempty"`
}

type streamFrame struct {
	Type string `json:"T"`
	Msg  string `json:"msg,omitempty"`
	Code int    `json:"code,omitempty"`

	Symbol string `json:"S,omitempty"`
	Time   string `json:"t,omitempty"`

	// quote
	BidPrice float64 `json:"bp,omitempty"`
	BidSize  float64 `json:"bs,omitempty"`
	AskPrice float64 `json:"ap,omitempty"`
	AskSize  float64 `json:"as,omitempty"`

	// trade
	Price    float64 `json:"p,omitempty"`
	Size     float64 `json:"s,omitempty"`
	Exchange string  `json:"x,omitempty"`

	// bar
	Open       float64 `json:"o,omitempty"`
	High       float64 `json:"h,omitempty"`
	Low        float64 `json:"l,omitempty"`
	Close      float64 `json:"c,omitempty"`
	Volume     float64 `json:"v,omitempty"`
	VWAP       float64 `json:"vw,omitempty"`
	TradeCount int64   `json:"n,omitempty"`

	// news
	ID        json.Number `json:"id,omitempty"`
	Headline  string      `json:"headline,omitempty"`
	Summary   string      `json:"summary,omitempty"`
	Source    string      `json:"source,omitempty"`
	URL       string      `json:"url,omitempty"`
	Symbols   []string    `json:"symbols,omitempty"`
	CreatedAt string      `json:"created_at,omitempty"`
	UpdatedAt string      `json:"updated_at,omitempty"`
}

// decodeFrames unpacks a raw payload into individual frames, preserving
// arrival order. The venue batches heterogeneous messages into one array;
// a lone object is treated as a batch of one.
func decodeFrames(data []byte) ([]streamFrame, error) {
	var frames []streamFrame
	if err := json.Unmarshal(data, &frames); err == nil {
		return frames, nil
	}
	var single streamFrame
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []streamFrame{single}, nil
}

// parseTimeMs converts the venue's RFC3339 timestamps to epoch
// milliseconds. Unparseable or absent values map to zero, never an error:
// one bad field must not sink the frame.
func parseTimeMs(value string) int64 {
	if value == "" {
		return 0
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return 0
		}
	}
	return ts.UnixMilli()
}

// normalizeQuote maps a streaming quote frame. Live ticks carry no OHLC or
// volume context; those fields stay zero and are reconciled downstream by
// the hub's merge policy.
func normalizeQuote(f streamFrame) models.Quote {
	return models.Quote{
		Symbol:    f.Symbol,
		Bid:       f.BidPrice,
		Ask:       f.AskPrice,
		BidSize:   f.BidSize,
		AskSize:   f.AskSize,
		Last:      f.AskPrice,
		Timestamp: parseTimeMs(f.Time),
	}
}

func normalizeTrade(f streamFrame) models.Trade {
	return models.Trade{
		Symbol:    f.Symbol,
		Price:     f.Price,
		Size:      f.Size,
		Timestamp: parseTimeMs(f.Time),
		Exchange:  f.Exchange,
	}
}

func normalizeBar(f streamFrame) models.Bar {
	return models.Bar{
		Symbol:     f.Symbol,
		Open:       f.Open,
		High:       f.High,
		Low:        f.Low,
		Close:      f.Close,
		Volume:     f.Volume,
		Timestamp:  parseTimeMs(f.Time),
		VWAP:       f.VWAP,
		TradeCount: f.TradeCount,
	}
}

func normalizeNews(f streamFrame) models.NewsArticle {
	return models.NewsArticle{
		ID:          f.ID.String(),
		Headline:    f.Headline,
		Summary:     f.Summary,
		Source:      f.Source,
		URL:         f.URL,
		Symbols:     f.Symbols,
		PublishedAt: parseTimeMs(f.CreatedAt),
		UpdatedAt:   parseTimeMs(f.UpdatedAt),
	}
}

package models

import "time"

// ChannelType is the axis along which streaming subscriptions are tracked
type ChannelType string

const (
	ChannelQuote ChannelType = "quote"
	ChannelTrade ChannelType = "trade"
	ChannelBar   ChannelType = "bar"
	ChannelNews  ChannelType = "news"
)

// Valid reports whether ct is one of the known channel types
func (ct ChannelType) Valid() bool {
	switch ct {
	case ChannelQuote, ChannelTrade, ChannelBar, ChannelNews:
		return true
	}
	return false
}

// SubscriptionRequest asks for streaming updates for a set of symbols on one channel
type SubscriptionRequest struct {
	Type    ChannelType `json:"type"`
	Symbols []string    `json:"symbols"`
}

// Quote is the canonical, provider-agnostic quote record.
// Timestamps are unix milliseconds throughout.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	BidSize       float64 `json:"bidSize"`
	AskSize       float64 `json:"askSize"`
	Last          float64 `json:"last"`
	Volume        float64 `json:"volume"`
	Timestamp     int64   `json:"timestamp"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
	PrevClose     float64 `json:"prevClose"`
}

// MergedOver applies q as a partial update over a previously stored quote.
// Streaming ticks carry no OHLC/volume context, so zero fields keep the
// stored value instead of clobbering it. Change figures are recomputed
// against whichever previous close survives the merge.
func (q Quote) MergedOver(prev Quote) Quote {
	out := q
	if out.Open == 0 {
		out.Open = prev.Open
	}
	if out.High == 0 {
		out.High = prev.High
	}
	if out.Low == 0 {
		out.Low = prev.Low
	}
	if out.PrevClose == 0 {
		out.PrevClose = prev.PrevClose
	}
	if out.Volume == 0 {
		out.Volume = prev.Volume
	}
	if out.Change == 0 && out.PrevClose > 0 {
		out.Change = out.Last - out.PrevClose
	}
	if out.ChangePercent == 0 && out.PrevClose > 0 {
		out.ChangePercent = (out.Last - out.PrevClose) / out.PrevClose * 100
	}
	return out
}

// SetChangeFrom records prevClose and derives change/changePercent from it.
// A missing previous close yields zero change, never NaN.
func (q *Quote) SetChangeFrom(prevClose float64) {
	q.PrevClose = prevClose
	if prevClose > 0 {
		q.Change = q.Last - prevClose
		q.ChangePercent = q.Change / prevClose * 100
	} else {
		q.Change = 0
		q.ChangePercent = 0
	}
}

// ApplyTrade folds an execution into the quote: last price and timestamp
// move, everything else stays
func (q *Quote) ApplyTrade(t Trade) {
	q.Last = t.Price
	q.Timestamp = t.Timestamp
	if q.PrevClose > 0 {
		q.Change = q.Last - q.PrevClose
		q.ChangePercent = q.Change / q.PrevClose * 100
	}
}

// Trade is a single execution reported by the venue
type Trade struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Timestamp int64   `json:"timestamp"`
	Exchange  string  `json:"exchange"`
}

// Bar is one OHLCV aggregate. VWAP and TradeCount are zero when the venue
// does not report them.
type Bar struct {
	Symbol     string  `json:"symbol"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
	Timestamp  int64   `json:"timestamp"`
	VWAP       float64 `json:"vwap,omitempty"`
	TradeCount int64   `json:"tradeCount,omitempty"`
}

// SymbolInfo describes a tradable instrument
type SymbolInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Type     string `json:"type"` // stock | etf | crypto | option | future | forex
	Tradable bool   `json:"tradable"`
}

// Timeframe is the abstract bar interval vocabulary. Providers translate it
// to their own wording.
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1m"
	Timeframe5Min  Timeframe = "5m"
	Timeframe15Min Timeframe = "15m"
	Timeframe30Min Timeframe = "30m"
	Timeframe1Hour Timeframe = "1h"
	Timeframe4Hour Timeframe = "4h"
	Timeframe1Day  Timeframe = "1D"
	Timeframe1Week Timeframe = "1W"
	Timeframe1Mon  Timeframe = "1M"
)

// Duration returns the wall-clock span of one bar at this timeframe.
// Weeks and months are approximations; daily is the fallback.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1Min:
		return time.Minute
	case Timeframe5Min:
		return 5 * time.Minute
	case Timeframe15Min:
		return 15 * time.Minute
	case Timeframe30Min:
		return 30 * time.Minute
	case Timeframe1Hour:
		return time.Hour
	case Timeframe4Hour:
		return 4 * time.Hour
	case Timeframe1Week:
		return 7 * 24 * time.Hour
	case Timeframe1Mon:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Status is the connection state pushed to consumers
type Status struct {
	Connected bool `json:"connected"`
}

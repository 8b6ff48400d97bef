// Package sim is a self-contained market-data provider that fabricates
// quotes, trades and bars with a seeded random walk. It needs no credentials
// or network, which makes it the default for development and demos.
package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/provider"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/subscriptions"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

// ID is the registry key for this provider
const ID = "sim"

const tickInterval = 100 * time.Millisecond

// instrument is one entry in the fixed synthetic universe
type instrument struct {
	info models.SymbolInfo
	base float64
}

var universe = []instrument{
	{models.SymbolInfo{Symbol: "AAPL", Name: "Apple Inc", Exchange: "NASDAQ", Type: "stock", Tradable: true}, 190},
	{models.SymbolInfo{Symbol: "MSFT", Name: "Microsoft Corp", Exchange: "NASDAQ", Type: "stock", Tradable: true}, 400},
	{models.SymbolInfo{Symbol: "GOOGL", Name: "Alphabet Inc", Exchange: "NASDAQ", Type: "stock", Tradable: true}, 150},
	{models.SymbolInfo{Symbol: "AMZN", Name: "Amazon.com Inc", Exchange: "NASDAQ", Type: "stock", Tradable: true}, 180},
	{models.SymbolInfo{Symbol: "TSLA", Name: "Tesla Inc", Exchange: "NASDAQ", Type: "stock", Tradable: true}, 240},
	{models.SymbolInfo{Symbol: "SPY", Name: "SPDR S&P 500 ETF", Exchange: "NYSE", Type: "etf", Tradable: true}, 520},
	{models.SymbolInfo{Symbol: "QQQ", Name: "Invesco QQQ Trust", Exchange: "NASDAQ", Type: "etf", Tradable: true}, 440},
}

// Provider fabricates market data for subscribed symbols on a fixed tick.
// Unknown symbols get a base price derived from their name so any symbol
// "trades".
type Provider struct {
	logger *zap.Logger
	clock  Clock
	rand   Rand

	mu        sync.Mutex
	events    provider.Events
	subs      *subscriptions.Registry
	prices    map[string]float64
	seq       map[string]int64
	connected bool
	stop      chan struct{}
}

var _ provider.MarketDataProvider = (*Provider)(nil)

// New builds a simulator. Nil clock or rand fall back to the system ones.
func New(logger *zap.Logger, clock Clock, rnd Rand) *Provider {
	if clock == nil {
		clock = systemClock{}
	}
	if rnd == nil {
		rnd = newSystemRand()
	}
	return &Provider{
		logger: logger.Named("sim"),
		clock:  clock,
		rand:   rnd,
		subs:   subscriptions.NewRegistry(),
		prices: make(map[string]float64),
		seq:    make(map[string]int64),
	}
}

func (p *Provider) Info() models.ProviderInfo {
	return models.ProviderInfo{
		ID:              ID,
		Name:            "Simulator",
		Description:     "Synthetic random-walk market data, no credentials required",
		SupportedAssets: []string{"stocks", "etfs"},
		RequiresAuth:    false,
	}
}

func (p *Provider) Initialize(_ context.Context, _ models.ProviderConfig, events provider.Events) error {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
	}
	p.events = events
	p.connected = true
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	go p.run(stop)

	events.EmitStatus(models.Status{Connected: true})
	p.logger.Info("Simulator started")
	return nil
}

func (p *Provider) Dispose() error {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.connected = false
	p.events = provider.Events{}
	p.mu.Unlock()
	p.subs.Clear()
	return nil
}

func (p *Provider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// run is the tick loop: each pass moves one subscribed symbol and emits a
// quote, plus a trade when that channel is also subscribed
func (p *Provider) run(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		symbols := p.subs.Snapshot(models.ChannelQuote)
		if len(symbols) == 0 {
			p.clock.Sleep(tickInterval)
			continue
		}

		symbol := symbols[p.rand.Intn(len(symbols))]
		q := p.tick(symbol)
		p.sink().EmitQuote(q)

		if p.subs.Has(models.ChannelTrade, symbol) {
			p.sink().EmitTrade(models.Trade{
				Symbol:    symbol,
				Price:     q.Last,
				Size:      float64(10 * (1 + p.rand.Intn(50))),
				Timestamp: q.Timestamp,
				Exchange:  "SIM",
			})
		}

		p.clock.Sleep(tickInterval)
	}
}

// tick advances the walk for symbol and returns the resulting quote
func (p *Provider) tick(symbol string) models.Quote {
	p.mu.Lock()
	price, ok := p.prices[symbol]
	if !ok {
		price = basePrice(symbol)
	}
	move := (p.rand.Float64() - 0.5) * price * 0.002
	price += move
	p.prices[symbol] = price
	p.seq[symbol]++
	p.mu.Unlock()

	spread := price * 0.0005
	q := models.Quote{
		Symbol:    symbol,
		Bid:       price - spread,
		Ask:       price + spread,
		BidSize:   float64(1 + p.rand.Intn(10)),
		AskSize:   float64(1 + p.rand.Intn(10)),
		Last:      price,
		Timestamp: p.clock.Now().UnixMilli(),
	}
	q.SetChangeFrom(basePrice(symbol))
	return q
}

func (p *Provider) GetQuote(_ context.Context, symbol string) (models.Quote, error) {
	q := p.tick(symbol)
	base := basePrice(symbol)
	q.Open = base
	q.High = q.Last * 1.01
	q.Low = q.Last * 0.99
	q.Volume = float64(1_000_000 + p.rand.Intn(9_000_000))
	return q, nil
}

// GetBars fabricates a random walk over [start, end) at the requested
// interval, anchored at the symbol's base price
func (p *Provider) GetBars(_ context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Bar, error) {
	step := tf.Duration()
	price := basePrice(symbol)

	var bars []models.Bar
	for ts := start; ts.Before(end); ts = ts.Add(step) {
		open := price
		move := (p.rand.Float64() - 0.5) * price * 0.01
		price += move
		high := open
		low := open
		if price > high {
			high = price
		}
		if price < low {
			low = price
		}
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Open:      open,
			High:      high * 1.002,
			Low:       low * 0.998,
			Close:     price,
			Volume:    float64(10_000 + p.rand.Intn(90_000)),
			Timestamp: ts.UnixMilli(),
		})
	}
	return bars, nil
}

func (p *Provider) SearchSymbols(_ context.Context, query string) ([]models.SymbolInfo, error) {
	q := strings.ToLower(query)
	var out []models.SymbolInfo
	for _, inst := range universe {
		if strings.Contains(strings.ToLower(inst.info.Symbol), q) || strings.Contains(strings.ToLower(inst.info.Name), q) {
			out = append(out, inst.info)
		}
	}
	return out, nil
}

func (p *Provider) Subscribe(req models.SubscriptionRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("unknown channel type %q", req.Type)
	}
	if req.Type == models.ChannelNews {
		return provider.ErrNewsUnsupported
	}
	p.subs.Add(req.Type, req.Symbols)
	return nil
}

func (p *Provider) Unsubscribe(req models.SubscriptionRequest) error {
	p.subs.Remove(req.Type, req.Symbols)
	return nil
}

func (p *Provider) sink() provider.Events {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

// basePrice anchors a symbol's walk. Universe symbols use their listed base;
// anything else hashes the name into a stable price so it still moves.
func basePrice(symbol string) float64 {
	for _, inst := range universe {
		if inst.info.Symbol == symbol {
			return inst.base
		}
	}
	var h uint32
	for _, c := range symbol {
		h = h*31 + uint32(c)
	}
	return 20 + float64(h%980)
}

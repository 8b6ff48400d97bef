// Package alpaca implements the Alpaca Markets provider: an IEX-feed
// websocket stream for quotes, trades and bars, a separate news stream, and
// the REST data API for point-in-time lookups.
package alpaca

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/provider"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/subscriptions"
	"github.com/Kyle-Grantland/finterm/pkg/config"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

// ID is the registry key for this provider
const ID = "alpaca"

// Provider binds the streaming and REST halves behind the common provider
// surface. It is created cold; Initialize wires credentials and opens the
// sockets.
type Provider struct {
	logger *zap.Logger
	tuning config.StreamConfig

	mu     sync.Mutex
	stream *stream
	rest   *restClient
}

var (
	_ provider.MarketDataProvider = (*Provider)(nil)
	_ provider.NewsProvider       = (*Provider)(nil)
)

// New returns an uninitialized Alpaca provider. tuning controls reconnect
// behavior and is shared with the rest of the daemon's stream settings.
func New(logger *zap.Logger, tuning config.StreamConfig) *Provider {
	return &Provider{logger: logger.Named("alpaca"), tuning: tuning}
}

func (p *Provider) Info() models.ProviderInfo {
	return models.ProviderInfo{
		ID:              ID,
		Name:            "Alpaca Markets",
		Description:     "US equities via the Alpaca IEX data feed",
		SupportedAssets: []string{"stocks", "etfs"},
		RequiresAuth:    true,
	}
}

// Initialize opens the market and news sockets and prepares the REST client.
// It returns immediately; connection state is reported through events.
func (p *Provider) Initialize(ctx context.Context, cfg models.ProviderConfig, events provider.Events) error {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return errors.New("alpaca: api key and secret are required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		p.stream.dispose()
	}

	subs := subscriptions.NewRegistry()
	p.stream = newStream(p.logger, cfg, p.tuning, events, subs, nil)
	p.rest = newRestClient(p.logger, cfg)

	p.stream.connect()
	p.stream.connectNews()
	return nil
}

func (p *Provider) Dispose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		p.stream.dispose()
		p.stream = nil
	}
	p.rest = nil
	return nil
}

func (p *Provider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream != nil && p.stream.isConnected()
}

func (p *Provider) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	rest, err := p.restOrErr()
	if err != nil {
		return models.Quote{}, err
	}
	return rest.GetQuote(ctx, symbol)
}

func (p *Provider) GetBars(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Bar, error) {
	rest, err := p.restOrErr()
	if err != nil {
		return nil, err
	}
	return rest.GetBars(ctx, symbol, tf, start, end)
}

func (p *Provider) SearchSymbols(ctx context.Context, query string) ([]models.SymbolInfo, error) {
	rest, err := p.restOrErr()
	if err != nil {
		return nil, err
	}
	return rest.SearchSymbols(ctx, query)
}

func (p *Provider) GetNews(ctx context.Context, filter models.NewsFilter) ([]models.NewsArticle, error) {
	rest, err := p.restOrErr()
	if err != nil {
		return nil, err
	}
	return rest.GetNews(ctx, filter)
}

func (p *Provider) Subscribe(req models.SubscriptionRequest) error {
	p.mu.Lock()
	st := p.stream
	p.mu.Unlock()
	if st == nil {
		return provider.ErrNotInitialized
	}
	return st.subscribe(req)
}

func (p *Provider) Unsubscribe(req models.SubscriptionRequest) error {
	p.mu.Lock()
	st := p.stream
	p.mu.Unlock()
	if st == nil {
		return provider.ErrNotInitialized
	}
	return st.unsubscribe(req)
}

func (p *Provider) restOrErr() (*restClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rest == nil {
		return nil, provider.ErrNotInitialized
	}
	return p.rest, nil
}

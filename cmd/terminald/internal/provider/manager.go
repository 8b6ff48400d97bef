package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/pkg/models"
)

// Manager owns the active provider: exactly one at a time, constructed from
// the registry, disposed before a replacement takes over. Every data
// operation funnels through here so uninitialized access fails in one place.
type Manager struct {
	registry *Registry
	events   Events
	logger   *zap.Logger

	mu       sync.Mutex
	active   MarketDataProvider
	activeID string
	news     NewsProvider // nil unless the registration declared the capability
	lastCfg  models.ProviderConfig
}

func NewManager(registry *Registry, events Events, logger *zap.Logger) *Manager {
	return &Manager{registry: registry, events: events, logger: logger}
}

// Activate disposes any current provider, builds the one registered under
// id, and initializes it with cfg. The news capability is resolved here,
// once, from the registration.
func (m *Manager) Activate(ctx context.Context, id string, cfg models.ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if err := m.active.Dispose(); err != nil {
			m.logger.Warn("Disposing previous provider failed", zap.String("provider", m.activeID), zap.Error(err))
		}
		m.active = nil
		m.activeID = ""
		m.news = nil
	}

	reg, ok := m.registry.Get(id)
	if !ok {
		return ErrUnknownProvider
	}

	p := reg.New(m.logger)

	var news NewsProvider
	if reg.News {
		np, ok := p.(NewsProvider)
		if !ok {
			return fmt.Errorf("provider %s declares the news capability but does not implement it", id)
		}
		news = np
	}

	if err := p.Initialize(ctx, cfg, m.events); err != nil {
		return err
	}

	m.active = p
	m.activeID = id
	m.lastCfg = cfg
	m.news = news

	m.logger.Info("Provider activated", zap.String("provider", id), zap.Bool("news", reg.News))
	return nil
}

// Reinitialize tears the active provider down and brings it back with fresh
// credentials. Used after the user re-enters keys.
func (m *Manager) Reinitialize(ctx context.Context, apiKey, apiSecret string) error {
	m.mu.Lock()
	id := m.activeID
	cfg := m.lastCfg
	m.mu.Unlock()

	if id == "" {
		return ErrNotInitialized
	}
	cfg.APIKey = apiKey
	cfg.APISecret = apiSecret
	return m.Activate(ctx, id, cfg)
}

func (m *Manager) Dispose() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil
	}
	err := m.active.Dispose()
	m.active = nil
	m.activeID = ""
	m.news = nil
	return err
}

func (m *Manager) current() (MarketDataProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNotInitialized
	}
	return m.active, nil
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil && m.active.IsConnected()
}

func (m *Manager) ActiveInfo() (models.ProviderInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return models.ProviderInfo{}, false
	}
	return m.active.Info(), true
}

func (m *Manager) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	p, err := m.current()
	if err != nil {
		return models.Quote{}, err
	}
	return p.GetQuote(ctx, symbol)
}

func (m *Manager) GetBars(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Bar, error) {
	p, err := m.current()
	if err != nil {
		return nil, err
	}
	return p.GetBars(ctx, symbol, tf, start, end)
}

func (m *Manager) SearchSymbols(ctx context.Context, query string) ([]models.SymbolInfo, error) {
	p, err := m.current()
	if err != nil {
		return nil, err
	}
	return p.SearchSymbols(ctx, query)
}

func (m *Manager) GetNews(ctx context.Context, filter models.NewsFilter) ([]models.NewsArticle, error) {
	m.mu.Lock()
	news := m.news
	hasActive := m.active != nil
	m.mu.Unlock()

	if !hasActive {
		return nil, ErrNotInitialized
	}
	if news == nil {
		return nil, ErrNewsUnsupported
	}
	return news.GetNews(ctx, filter)
}

func (m *Manager) Subscribe(req models.SubscriptionRequest) error {
	p, err := m.current()
	if err != nil {
		return err
	}
	return p.Subscribe(req)
}

func (m *Manager) Unsubscribe(req models.SubscriptionRequest) error {
	p, err := m.current()
	if err != nil {
		return err
	}
	return p.Unsubscribe(req)
}

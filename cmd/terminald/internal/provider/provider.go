package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kyle-Grantland/finterm/pkg/models"
)

var (
	// ErrNotInitialized is returned by data operations before a provider
	// has been activated with credentials
	ErrNotInitialized = errors.New("no active market data provider")

	// ErrCredentialsRejected means the venue refused the key/secret pair.
	// This is terminal for the connection attempt: retrying with the same
	// credentials cannot succeed, so it is surfaced distinctly from
	// transport failures and does not consume the reconnect budget.
	ErrCredentialsRejected = errors.New("venue rejected credentials")

	// ErrNewsUnsupported is returned when a news operation reaches a
	// provider registered without the news capability
	ErrNewsUnsupported = errors.New("active provider does not support news")

	// ErrUnknownProvider is returned when activating an unregistered id
	ErrUnknownProvider = errors.New("provider not found in registry")
)

// StatusError carries the HTTP status of a failed REST call so callers can
// decide their own retry policy.
type StatusError struct {
	Op     string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Code)
}

// Events is the typed sink a provider emits canonical events into. A nil
// callback is simply skipped, so partial wiring is safe.
type Events struct {
	Quote  func(models.Quote)
	Trade  func(models.Trade)
	Bar    func(models.Bar)
	Status func(models.Status)
	Error  func(error)
	News   func(models.NewsArticle)
}

func (e Events) EmitQuote(q models.Quote) {
	if e.Quote != nil {
		e.Quote(q)
	}
}

func (e Events) EmitTrade(t models.Trade) {
	if e.Trade != nil {
		e.Trade(t)
	}
}

func (e Events) EmitBar(b models.Bar) {
	if e.Bar != nil {
		e.Bar(b)
	}
}

func (e Events) EmitStatus(s models.Status) {
	if e.Status != nil {
		e.Status(s)
	}
}

func (e Events) EmitError(err error) {
	if e.Error != nil {
		e.Error(err)
	}
}

func (e Events) EmitNews(a models.NewsArticle) {
	if e.News != nil {
		e.News(a)
	}
}

// MarketDataProvider is one venue: a streaming side feeding Events and a
// request/response side for point-in-time data. Implementations own their
// connection lifecycle; Dispose must be idempotent and must stop every
// internal timer.
type MarketDataProvider interface {
	Info() models.ProviderInfo

	Initialize(ctx context.Context, cfg models.ProviderConfig, events Events) error
	Dispose() error
	IsConnected() bool

	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	GetBars(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Bar, error)
	SearchSymbols(ctx context.Context, query string) ([]models.SymbolInfo, error)

	Subscribe(req models.SubscriptionRequest) error
	Unsubscribe(req models.SubscriptionRequest) error
}

// NewsProvider is the optional news capability. Whether a provider has it is
// declared at registration time, not probed at call time.
type NewsProvider interface {
	GetNews(ctx context.Context, filter models.NewsFilter) ([]models.NewsArticle, error)
}

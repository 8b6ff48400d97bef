package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/provider"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

// Consumer is one downstream surface (a UI client, the journal, ...). Quote
// batches arrive coalesced; everything else is forwarded as it happens. A
// panicking consumer is isolated and logged, never allowed to starve the
// rest of the fan-out.
type Consumer interface {
	OnQuoteBatch(batch map[string]models.Quote)
	OnTrade(trade models.Trade)
	OnBar(bar models.Bar)
	OnStatus(status models.Status)
	OnError(err error)
	OnNews(article models.NewsArticle)
}

// SnapshotSink receives each flushed batch so late joiners can be served a
// current snapshot. Optional.
type SnapshotSink interface {
	StoreQuotes(ctx context.Context, quotes []models.Quote) error
}

// Hub decouples the streaming source from consumers: quotes are coalesced
// per symbol inside a flush window (last value wins), trades/bars/status/
// errors/news pass straight through. It also keeps the merged quote state
// and per-timeframe bar series.
type hubState struct {
	quotes map[string]models.Quote
	bars   map[seriesKey][]models.Bar
}

type Hub struct {
	logger        *zap.Logger
	flushInterval time.Duration
	sink          SnapshotSink

	// mu guards everything below; fan-out happens outside the lock
	mu         sync.Mutex
	consumers  []Consumer
	pending    map[string]models.Quote
	flushTimer *time.Timer
	state      hubState
	disposed   bool
}

func New(logger *zap.Logger, flushInterval time.Duration) *Hub {
	if flushInterval <= 0 {
		flushInterval = 50 * time.Millisecond
	}
	return &Hub{
		logger:        logger,
		flushInterval: flushInterval,
		pending:       make(map[string]models.Quote),
		state: hubState{
			quotes: make(map[string]models.Quote),
			bars:   make(map[seriesKey][]models.Bar),
		},
	}
}

// SetSnapshotSink wires the optional latest-quote cache. Call before the
// first quote arrives.
func (h *Hub) SetSnapshotSink(sink SnapshotSink) {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()
}

func (h *Hub) Register(c Consumer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.consumers {
		if existing == c {
			return
		}
	}
	h.consumers = append(h.consumers, c)
}

func (h *Hub) Unregister(c Consumer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, existing := range h.consumers {
		if existing == c {
			h.consumers = append(h.consumers[:i], h.consumers[i+1:]...)
			return
		}
	}
}

// Events returns the typed sink a provider emits into. Ingestion happens on
// the provider's reader goroutine; ordering within a wire frame is preserved
// because each emit completes before the next begins.
func (h *Hub) Events() provider.Events {
	return provider.Events{
		Quote:  h.IngestQuote,
		Trade:  h.IngestTrade,
		Bar:    h.IngestBar,
		Status: h.IngestStatus,
		Error:  h.IngestError,
		News:   h.IngestNews,
	}
}

// IngestQuote merges the update into the stored quote and parks it in the
// pending map. The flush timer is armed lazily on the first pending update
// of a window; no quotes means no timer and no empty flush ticks.
func (h *Hub) IngestQuote(q models.Quote) {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	merged := q.MergedOver(h.state.quotes[q.Symbol])
	h.state.quotes[q.Symbol] = merged
	h.pending[q.Symbol] = merged
	if h.flushTimer == nil {
		h.flushTimer = time.AfterFunc(h.flushInterval, h.flush)
	}
	h.mu.Unlock()
}

func (h *Hub) flush() {
	h.mu.Lock()
	h.flushTimer = nil
	if h.disposed || len(h.pending) == 0 {
		h.mu.Unlock()
		return
	}
	batch := h.pending
	h.pending = make(map[string]models.Quote)
	consumers := h.consumerSnapshot()
	sink := h.sink
	h.mu.Unlock()

	for _, c := range consumers {
		h.safely(func() { c.OnQuoteBatch(batch) })
	}

	if sink != nil {
		quotes := make([]models.Quote, 0, len(batch))
		for _, q := range batch {
			quotes = append(quotes, q)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := sink.StoreQuotes(ctx, quotes); err != nil {
			h.logger.Warn("Snapshot sink write failed", zap.Error(err))
		}
		cancel()
	}
}

// IngestTrade forwards immediately and folds the execution into the stored
// quote so the next snapshot reflects the latest print.
func (h *Hub) IngestTrade(t models.Trade) {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	if q, ok := h.state.quotes[t.Symbol]; ok {
		q.ApplyTrade(t)
		h.state.quotes[t.Symbol] = q
	}
	consumers := h.consumerSnapshot()
	h.mu.Unlock()

	for _, c := range consumers {
		h.safely(func() { c.OnTrade(t) })
	}
}

// IngestBar records the bar in the streamed (1m) series and forwards
// immediately.
func (h *Hub) IngestBar(b models.Bar) {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	h.upsertBarLocked(models.Timeframe1Min, b)
	consumers := h.consumerSnapshot()
	h.mu.Unlock()

	for _, c := range consumers {
		h.safely(func() { c.OnBar(b) })
	}
}

func (h *Hub) IngestStatus(s models.Status) {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	consumers := h.consumerSnapshot()
	h.mu.Unlock()

	for _, c := range consumers {
		h.safely(func() { c.OnStatus(s) })
	}
}

func (h *Hub) IngestError(err error) {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	consumers := h.consumerSnapshot()
	h.mu.Unlock()

	for _, c := range consumers {
		h.safely(func() { c.OnError(err) })
	}
}

func (h *Hub) IngestNews(a models.NewsArticle) {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	consumers := h.consumerSnapshot()
	h.mu.Unlock()

	for _, c := range consumers {
		h.safely(func() { c.OnNews(a) })
	}
}

// Dispose halts the flush timer and drops all consumers and pending state.
// Idempotent; no events can be emitted afterwards.
func (h *Hub) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return
	}
	h.disposed = true
	if h.flushTimer != nil {
		h.flushTimer.Stop()
		h.flushTimer = nil
	}
	h.consumers = nil
	h.pending = make(map[string]models.Quote)
}

func (h *Hub) consumerSnapshot() []Consumer {
	out := make([]Consumer, len(h.consumers))
	copy(out, h.consumers)
	return out
}

func (h *Hub) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Consumer panicked during fan-out", zap.Any("panic", r))
		}
	}()
	fn()
}

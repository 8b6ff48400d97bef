package hub

import "github.com/Kyle-Grantland/finterm/pkg/models"

type seriesKey struct {
	symbol    string
	timeframe models.Timeframe
}

// upsertBarLocked applies the series rule: a bar whose timestamp equals the
// last stored bar replaces it (in-progress bar update), a strictly later
// timestamp appends (bar closed). Out-of-order older bars are dropped.
// Caller holds h.mu.
func (h *Hub) upsertBarLocked(tf models.Timeframe, b models.Bar) {
	key := seriesKey{symbol: b.Symbol, timeframe: tf}
	series := h.state.bars[key]
	if n := len(series); n > 0 {
		last := series[n-1]
		if b.Timestamp == last.Timestamp {
			series[n-1] = b
			return
		}
		if b.Timestamp < last.Timestamp {
			return
		}
	}
	h.state.bars[key] = append(series, b)
}

// SetBars seeds a series from a historical fetch so streamed updates land on
// top of it.
func (h *Hub) SetBars(symbol string, tf models.Timeframe, bars []models.Bar) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return
	}
	copied := make([]models.Bar, len(bars))
	copy(copied, bars)
	h.state.bars[seriesKey{symbol: symbol, timeframe: tf}] = copied
}

// Bars returns a copy of the stored series for (symbol, timeframe)
func (h *Hub) Bars(symbol string, tf models.Timeframe) []models.Bar {
	h.mu.Lock()
	defer h.mu.Unlock()
	series := h.state.bars[seriesKey{symbol: symbol, timeframe: tf}]
	if len(series) == 0 {
		return nil
	}
	out := make([]models.Bar, len(series))
	copy(out, series)
	return out
}

// Quote returns the current merged quote for a symbol, if any
func (h *Hub) Quote(symbol string) (models.Quote, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.state.quotes[symbol]
	return q, ok
}

// Quotes returns the merged quotes for the requested symbols, skipping
// symbols never seen. Serves snapshots when no external cache is wired.
func (h *Hub) Quotes(symbols []string) []models.Quote {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.Quote, 0, len(symbols))
	for _, s := range symbols {
		if q, ok := h.state.quotes[s]; ok {
			out = append(out, q)
		}
	}
	return out
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/hub"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/protocol"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/provider"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/repository"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

// Service is the slice of the provider manager the pull API needs
type Service interface {
	Subscriber
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	GetBars(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Bar, error)
	SearchSymbols(ctx context.Context, query string) ([]models.SymbolInfo, error)
	GetNews(ctx context.Context, filter models.NewsFilter) ([]models.NewsArticle, error)
	Reinitialize(ctx context.Context, apiKey, apiSecret string) error
	IsConnected() bool
	ActiveInfo() (models.ProviderInfo, bool)
}

// Handler serves the pull API and upgrades /ws connections into hub
// consumers. Every HTTP response is wrapped in a protocol.Envelope.
type Handler struct {
	logger    *zap.Logger
	service   Service
	hub       *hub.Hub
	snapshots repository.SnapshotStore // optional
}

func NewHandler(logger *zap.Logger, service Service, h *hub.Hub, snapshots repository.SnapshotStore) *Handler {
	return &Handler{logger: logger, service: service, hub: h, snapshots: snapshots}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/quote", h.handleQuote)
	mux.HandleFunc("/api/bars", h.handleBars)
	mux.HandleFunc("/api/symbols", h.handleSymbols)
	mux.HandleFunc("/api/news", h.handleNews)
	mux.HandleFunc("/api/snapshots", h.handleSnapshots)
	mux.HandleFunc("/api/provider/status", h.handleProviderStatus)
	mux.HandleFunc("/api/provider/credentials", h.handleCredentials)
	mux.HandleFunc("/ws", h.handleWS)
	return mux
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	client := NewClient(conn, h.hub, h.service, h.logger)
	client.Start()
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	q, err := h.service.GetQuote(r.Context(), symbol)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, q)
}

func (h *Handler) handleBars(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	symbol := strings.ToUpper(strings.TrimSpace(query.Get("symbol")))
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	tf := models.Timeframe(query.Get("timeframe"))
	if tf == "" {
		tf = models.Timeframe1Day
	}

	end := time.Now().UTC()
	if raw := query.Get("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		end = parsed
	}
	start := end.Add(-30 * 24 * time.Hour)
	if raw := query.Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "start must be RFC3339")
			return
		}
		start = parsed
	}
	if !start.Before(end) {
		h.writeError(w, http.StatusBadRequest, "start must precede end")
		return
	}

	bars, err := h.service.GetBars(r.Context(), symbol, tf, start, end)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, bars)
}

func (h *Handler) handleSymbols(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	results, err := h.service.SearchSymbols(r.Context(), query)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, results)
}

func (h *Handler) handleNews(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := models.NewsFilter{}
	if raw := query.Get("symbols"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				filter.Symbols = append(filter.Symbols, s)
			}
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	articles, err := h.service.GetNews(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, articles)
}

// handleSnapshots serves last-known quotes: from the external cache when one
// is wired, otherwise from the hub's in-memory state
func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("symbols"))
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "symbols is required")
		return
	}
	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}

	if h.snapshots != nil {
		quotes, err := h.snapshots.GetSnapshots(r.Context(), symbols)
		if err == nil {
			h.writeData(w, quotes)
			return
		}
		h.logger.Warn("Snapshot cache read failed, serving hub state", zap.Error(err))
	}
	h.writeData(w, h.hub.Quotes(symbols))
}

func (h *Handler) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	info, active := h.service.ActiveInfo()
	h.writeData(w, map[string]interface{}{
		"active":    active,
		"provider":  info,
		"connected": h.service.IsConnected(),
	})
}

type credentialsRequest struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

func (h *Handler) handleCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.APIKey == "" || req.APISecret == "" {
		h.writeError(w, http.StatusBadRequest, "apiKey and apiSecret are required")
		return
	}
	if err := h.service.Reinitialize(r.Context(), req.APIKey, req.APISecret); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeData(w, map[string]bool{"reinitialized": true})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var statusErr *provider.StatusError
	switch {
	case errors.As(err, &statusErr):
		h.writeError(w, statusErr.Code, statusErr.Error())
	case errors.Is(err, provider.ErrNotInitialized):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, provider.ErrNewsUnsupported):
		h.writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, provider.ErrUnknownProvider):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeData(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.Envelope{Success: true, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.Envelope{Success: false, Error: msg})
}

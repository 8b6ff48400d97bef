package alpaca

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/provider"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/subscriptions"
	"github.com/Kyle-Grantland/finterm/pkg/config"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

const (
	defaultStreamURL     = "wss://stream.data.alpaca.markets/v2/iex"
	defaultNewsStreamURL = "wss://stream.data.alpaca.markets/v1beta1/news"
)

// ErrReconnectExhausted is emitted once the reconnect budget is spent.
// After this the stream stays down until the provider is reinitialized.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// stream owns the two venue sockets: the market-data channel and the news
// channel. The market channel reconnects with exponential backoff and
// replays quote/trade/bar subscriptions after each successful auth. The news
// channel retries on a fixed delay while news subscriptions exist and
// replays those independently.
type stream struct {
	logger *zap.Logger
	cfg    models.ProviderConfig
	tuning config.StreamConfig
	events provider.Events
	subs   *subscriptions.Registry
	dial   dialFunc

	mu             sync.Mutex
	conn           wireConn
	newsConn       wireConn
	connected      bool // market socket authenticated
	newsLive       bool // news socket authenticated
	attempts       int
	reconnectTimer *time.Timer
	newsTimer      *time.Timer
	disposed       bool
	credFailed     bool

	// serializes writes; the websocket library forbids concurrent writers
	writeMu sync.Mutex
}

func newStream(logger *zap.Logger, cfg models.ProviderConfig, tuning config.StreamConfig, events provider.Events, subs *subscriptions.Registry, dial dialFunc) *stream {
	if dial == nil {
		dial = gorillaDial
	}
	return &stream{
		logger: logger,
		cfg:    cfg,
		tuning: tuning,
		events: events,
		subs:   subs,
		dial:   dial,
	}
}

func (s *stream) marketURL() string {
	if s.cfg.WSURL != "" {
		return s.cfg.WSURL
	}
	return defaultStreamURL
}

// connect starts the market channel. Non-blocking; the connection is not
// usable until the venue acknowledges authentication.
func (s *stream) connect() {
	go s.runMarket()
}

func (s *stream) runMarket() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	url := s.marketURL()
	s.mu.Unlock()

	conn, err := s.dial(url)
	if err != nil {
		s.logger.Warn("Market stream dial failed", zap.String("url", url), zap.Error(err))
		s.handleMarketDown()
		return
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	if err := s.write(conn, authRequest{Action: "auth", Key: s.cfg.APIKey, Secret: s.cfg.APISecret}); err != nil {
		s.logger.Warn("Market stream auth write failed", zap.Error(err))
		conn.Close()
		s.handleMarketDown()
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleMarketDown()
			return
		}
		frames, err := decodeFrames(data)
		if err != nil {
			// Protocol error: drop the frame, keep the connection
			s.logger.Warn("Dropping malformed market frame", zap.Error(err))
			continue
		}
		for _, f := range frames {
			s.handleMarketFrame(f)
		}
	}
}

func (s *stream) handleMarketFrame(f streamFrame) {
	switch f.Type {
	case msgTypeSuccess:
		if f.Msg == ackAuthenticated {
			s.onAuthenticated()
		}
	case msgTypeError:
		if f.Code == codeAuthFailed {
			s.mu.Lock()
			s.credFailed = true
			s.mu.Unlock()
			s.logger.Error("Venue rejected credentials", zap.Int("code", f.Code), zap.String("msg", f.Msg))
			s.sink().EmitError(fmt.Errorf("%w: %s", provider.ErrCredentialsRejected, f.Msg))
			return
		}
		s.sink().EmitError(fmt.Errorf("venue error %d: %s", f.Code, f.Msg))
	case msgTypeQuote:
		s.sink().EmitQuote(normalizeQuote(f))
	case msgTypeTrade:
		s.sink().EmitTrade(normalizeTrade(f))
	case msgTypeBar:
		s.sink().EmitBar(normalizeBar(f))
	default:
		s.logger.Debug("Ignoring unknown market frame", zap.String("type", f.Type))
	}
}

func (s *stream) onAuthenticated() {
	s.mu.Lock()
	s.attempts = 0
	s.connected = true
	conn := s.conn
	s.mu.Unlock()

	s.logger.Info("Market stream authenticated")
	s.sink().EmitStatus(models.Status{Connected: true})

	// Replay: one combined subscribe covering every non-empty channel set
	replay := subscribeRequest{
		Action: "subscribe",
		Quotes: s.subs.Snapshot(models.ChannelQuote),
		Trades: s.subs.Snapshot(models.ChannelTrade),
		Bars:   s.subs.Snapshot(models.ChannelBar),
	}
	if len(replay.Quotes) == 0 && len(replay.Trades) == 0 && len(replay.Bars) == 0 {
		return
	}
	if err := s.write(conn, replay); err != nil {
		s.logger.Warn("Subscription replay failed", zap.Error(err))
	}
}

// handleMarketDown runs on transport close or dial failure: status goes
// false, then a reconnect is scheduled unless disposed, the credentials were
// rejected, or the budget is spent.
func (s *stream) handleMarketDown() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.connected = false
	credFailed := s.credFailed
	s.mu.Unlock()

	s.sink().EmitStatus(models.Status{Connected: false})

	if credFailed {
		return
	}
	s.scheduleReconnect()
}

func (s *stream) scheduleReconnect() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	if s.attempts >= s.tuning.MaxReconnectAttempts {
		s.mu.Unlock()
		s.logger.Error("Market stream reconnect budget spent", zap.Int("attempts", s.tuning.MaxReconnectAttempts))
		s.sink().EmitError(ErrReconnectExhausted)
		return
	}
	delay := backoffDelay(s.attempts, s.tuning.ReconnectBase, s.tuning.ReconnectMax)
	s.attempts++
	attempt := s.attempts
	s.reconnectTimer = time.AfterFunc(delay, s.runMarket)
	s.mu.Unlock()

	s.logger.Info("Market stream reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", attempt))
}

// backoffDelay doubles per attempt from base, capped at max. attempt is
// zero-based: attempt 0 waits base.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// connectNews starts the news channel. It is independent of the market
// channel: its retries are a fixed delay and never touch the market
// channel's attempt budget.
func (s *stream) connectNews() {
	go s.runNews()
}

func (s *stream) runNews() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	conn, err := s.dial(defaultNewsStreamURL)
	if err != nil {
		s.logger.Warn("News stream dial failed", zap.Error(err))
		s.handleNewsDown()
		return
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.newsConn = conn
	s.mu.Unlock()

	if err := s.write(conn, authRequest{Action: "auth", Key: s.cfg.APIKey, Secret: s.cfg.APISecret}); err != nil {
		conn.Close()
		s.handleNewsDown()
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleNewsDown()
			return
		}
		frames, err := decodeFrames(data)
		if err != nil {
			s.logger.Warn("Dropping malformed news frame", zap.Error(err))
			continue
		}
		for _, f := range frames {
			s.handleNewsFrame(f)
		}
	}
}

func (s *stream) handleNewsFrame(f streamFrame) {
	switch f.Type {
	case msgTypeSuccess:
		if f.Msg == ackAuthenticated {
			s.onNewsAuthenticated()
		}
	case msgTypeNews:
		s.sink().EmitNews(normalizeNews(f))
	}
}

func (s *stream) onNewsAuthenticated() {
	s.mu.Lock()
	s.newsLive = true
	conn := s.newsConn
	s.mu.Unlock()

	s.logger.Info("News stream authenticated")

	// Replay the news set here: without it, a transient news-socket drop
	// silently ends the news feed even though the desired set still exists.
	if symbols := s.subs.Snapshot(models.ChannelNews); len(symbols) > 0 {
		if err := s.write(conn, subscribeRequest{Action: "subscribe", News: symbols}); err != nil {
			s.logger.Warn("News subscription replay failed", zap.Error(err))
		}
	}
}

func (s *stream) handleNewsDown() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.newsConn = nil
	s.newsLive = false
	retry := s.subs.Count(models.ChannelNews) > 0
	if retry {
		s.newsTimer = time.AfterFunc(s.tuning.NewsRetryDelay, s.runNews)
	}
	s.mu.Unlock()

	if retry {
		s.logger.Info("News stream retry scheduled", zap.Duration("delay", s.tuning.NewsRetryDelay))
	}
}

// subscribe records the request and, when the relevant socket is live, sends
// the incremental wire message. Market channels send only the computed
// delta; news sends the caller-provided symbols as-is.
func (s *stream) subscribe(req models.SubscriptionRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("unknown channel type %q", req.Type)
	}

	if req.Type == models.ChannelNews {
		s.subs.Add(models.ChannelNews, req.Symbols)
		s.mu.Lock()
		conn, live := s.newsConn, s.newsLive
		s.mu.Unlock()
		if live && len(req.Symbols) > 0 {
			return s.write(conn, subscribeRequest{Action: "subscribe", News: req.Symbols})
		}
		return nil
	}

	delta := s.subs.Add(req.Type, req.Symbols)
	s.mu.Lock()
	conn, live := s.conn, s.connected
	s.mu.Unlock()
	if !live || len(delta) == 0 {
		return nil
	}

	msg := subscribeRequest{Action: "subscribe"}
	switch req.Type {
	case models.ChannelQuote:
		msg.Quotes = delta
	case models.ChannelTrade:
		msg.Trades = delta
	case models.ChannelBar:
		msg.Bars = delta
	}
	return s.write(conn, msg)
}

func (s *stream) unsubscribe(req models.SubscriptionRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("unknown channel type %q", req.Type)
	}

	if req.Type == models.ChannelNews {
		s.subs.Remove(models.ChannelNews, req.Symbols)
		s.mu.Lock()
		conn, live := s.newsConn, s.newsLive
		s.mu.Unlock()
		if live && len(req.Symbols) > 0 {
			return s.write(conn, subscribeRequest{Action: "unsubscribe", News: req.Symbols})
		}
		return nil
	}

	removed := s.subs.Remove(req.Type, req.Symbols)
	s.mu.Lock()
	conn, live := s.conn, s.connected
	s.mu.Unlock()
	if !live || len(removed) == 0 {
		return nil
	}

	msg := subscribeRequest{Action: "unsubscribe"}
	switch req.Type {
	case models.ChannelQuote:
		msg.Quotes = removed
	case models.ChannelTrade:
		msg.Trades = removed
	case models.ChannelBar:
		msg.Bars = removed
	}
	return s.write(conn, msg)
}

func (s *stream) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// dispose suppresses reconnection, stops both sockets and every timer, and
// clears the subscription sets. Safe to call more than once.
func (s *stream) dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.connected = false
	s.newsLive = false
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.newsTimer != nil {
		s.newsTimer.Stop()
		s.newsTimer = nil
	}
	conn, newsConn := s.conn, s.newsConn
	s.conn, s.newsConn = nil, nil
	s.events = provider.Events{}
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if newsConn != nil {
		newsConn.Close()
	}
	s.subs.Clear()
}

// sink returns the current event sink; dispose swaps in an empty one so no
// event can escape afterwards
func (s *stream) sink() provider.Events {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

func (s *stream) write(conn wireConn, v interface{}) error {
	if conn == nil {
		return errors.New("stream not connected")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

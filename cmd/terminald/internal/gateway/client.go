package gateway

import (
	"encoding/json"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/hub"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/protocol"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

const maxMessageSize = 512 * 1024

// Subscriber is the upstream side a client's subscribe commands reach
type Subscriber interface {
	Subscribe(req models.SubscriptionRequest) error
	Unsubscribe(req models.SubscriptionRequest) error
}

// ClientAdapter bridges one UI websocket to the hub. It registers itself as
// a hub consumer and translates deliveries into push frames; inbound frames
// carry subscribe commands that are forwarded upstream.
type ClientAdapter struct {
	conn   net.Conn
	hub    *hub.Hub
	subs   Subscriber
	send   chan []byte
	done   chan struct{}
	logger *zap.Logger

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration

	mu      sync.Mutex
	tracked map[models.ChannelType]map[string]struct{}
}

// Compile-time check to ensure ClientAdapter receives hub fan-out
var _ hub.Consumer = (*ClientAdapter)(nil)

func NewClient(conn net.Conn, h *hub.Hub, subs Subscriber, logger *zap.Logger) *ClientAdapter {
	return &ClientAdapter{
		conn:       conn,
		hub:        h,
		subs:       subs,
		send:       make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     logger,
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
		tracked:    make(map[models.ChannelType]map[string]struct{}),
	}
}

func (c *ClientAdapter) Start() {
	c.hub.Register(c)
	go c.writePump()
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.conn.RemoteAddr().String() }

func (c *ClientAdapter) OnQuoteBatch(batch map[string]models.Quote) {
	c.sendJSON(protocol.WSResponse{Type: protocol.TypeQuotes, Data: batch})
}

func (c *ClientAdapter) OnTrade(t models.Trade) {
	c.sendJSON(protocol.WSResponse{Type: protocol.TypeTrade, Data: t})
}

func (c *ClientAdapter) OnBar(b models.Bar) {
	c.sendJSON(protocol.WSResponse{Type: protocol.TypeBar, Data: b})
}

func (c *ClientAdapter) OnStatus(s models.Status) {
	c.sendJSON(protocol.WSResponse{Type: protocol.TypeStatus, Data: s})
}

func (c *ClientAdapter) OnError(err error) {
	c.sendJSON(protocol.WSResponse{Type: protocol.TypeError, Message: err.Error()})
}

func (c *ClientAdapter) OnNews(a models.NewsArticle) {
	c.sendJSON(protocol.WSResponse{Type: protocol.TypeNews, Data: a})
}

// sendJSON drops the frame when the client is gone or its buffer is full; a
// slow UI must not back up the hub
func (c *ClientAdapter) sendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- b:
	default:
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.done)
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			break
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			break
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		if header.OpCode == ws.OpClose {
			break
		}
		if header.OpCode == ws.OpPong {
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			continue
		}

		if header.OpCode == ws.OpText {
			var req protocol.WSRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				c.sendJSON(protocol.WSResponse{Type: protocol.TypeError, Message: "Invalid JSON"})
				continue
			}

			for i, s := range req.Payload.Symbols {
				req.Payload.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
			}

			c.handleCommand(req)
		}
	}
}

// track remembers what this connection asked for so unsubscribe_all and
// teardown only touch its own subscriptions
func (c *ClientAdapter) track(ct models.ChannelType, symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.tracked[ct]
	if set == nil {
		set = make(map[string]struct{})
		c.tracked[ct] = set
	}
	for _, s := range symbols {
		set[s] = struct{}{}
	}
}

func (c *ClientAdapter) untrack(ct models.ChannelType, symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.tracked[ct]
	for _, s := range symbols {
		delete(set, s)
	}
	if len(set) == 0 {
		delete(c.tracked, ct)
	}
}

// drainTracked empties the ledger and returns one request per channel,
// symbols sorted so the upstream calls are deterministic
func (c *ClientAdapter) drainTracked() []models.SubscriptionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqs := make([]models.SubscriptionRequest, 0, len(c.tracked))
	for ct, set := range c.tracked {
		symbols := make([]string, 0, len(set))
		for s := range set {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		reqs = append(reqs, models.SubscriptionRequest{Type: ct, Symbols: symbols})
	}
	c.tracked = make(map[models.ChannelType]map[string]struct{})
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Type < reqs[j].Type })
	return reqs
}

func (c *ClientAdapter) handleCommand(req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionSubscribe:
		sub := models.SubscriptionRequest{Type: req.Payload.Channel, Symbols: req.Payload.Symbols}
		if err := c.subs.Subscribe(sub); err != nil {
			c.sendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: req.ID, Status: "error", Message: err.Error()})
			return
		}
		c.track(req.Payload.Channel, req.Payload.Symbols)
		c.sendJSON(protocol.WSResponse{Type: protocol.TypeAck, ID: req.ID, Status: "success"})

		// Warm up from the hub's merged state so the UI does not wait for
		// the next tick
		if req.Payload.Channel == models.ChannelQuote {
			if quotes := c.hub.Quotes(req.Payload.Symbols); len(quotes) > 0 {
				snapshot := make(map[string]models.Quote, len(quotes))
				for _, q := range quotes {
					snapshot[q.Symbol] = q
				}
				c.sendJSON(protocol.WSResponse{Type: protocol.TypeQuotes, Data: snapshot})
			}
		}

	case protocol.ActionUnsubscribe:
		sub := models.SubscriptionRequest{Type: req.Payload.Channel, Symbols: req.Payload.Symbols}
		if err := c.subs.Unsubscribe(sub); err != nil {
			c.sendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: req.ID, Status: "error", Message: err.Error()})
			return
		}
		c.untrack(req.Payload.Channel, req.Payload.Symbols)
		c.sendJSON(protocol.WSResponse{Type: protocol.TypeAck, ID: req.ID, Status: "success"})

	case protocol.ActionUnsubscribeAll:
		for _, sub := range c.drainTracked() {
			if err := c.subs.Unsubscribe(sub); err != nil {
				c.sendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: req.ID, Status: "error", Message: err.Error()})
				return
			}
		}
		c.sendJSON(protocol.WSResponse{Type: protocol.TypeAck, ID: req.ID, Status: "success"})

	default:
		c.sendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: req.ID, Status: "error", Message: "Unknown action"})
	}
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.Write(ws.CompiledClose)
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

// Package journal streams normalized market events into Kafka as an
// append-only record, keyed by symbol so per-symbol ordering is preserved
// across partitions.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/hub"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

const writeTimeout = 2 * time.Second

// Compile-time check to ensure Journal can be registered with the hub
var _ hub.Consumer = (*Journal)(nil)

// entry is the wire envelope for one journaled event
type entry struct {
	Kind      string              `json:"kind"` // quote | trade | bar | status | news
	Timestamp int64               `json:"timestamp"`
	Quote     *models.Quote       `json:"quote,omitempty"`
	Trade     *models.Trade       `json:"trade,omitempty"`
	Bar       *models.Bar         `json:"bar,omitempty"`
	Status    *models.Status      `json:"status,omitempty"`
	News      *models.NewsArticle `json:"news,omitempty"`
}

// Journal fans hub deliveries into a Kafka topic. Write failures are logged
// and dropped; the journal must never stall the market-data path.
type Journal struct {
	logger *zap.Logger
	writer KafkaWriter
	clock  Clock
}

func NewJournal(logger *zap.Logger, writer KafkaWriter, clock Clock) *Journal {
	if clock == nil {
		clock = RealClock{}
	}
	return &Journal{logger: logger, writer: writer, clock: clock}
}

func (j *Journal) OnQuoteBatch(batch map[string]models.Quote) {
	msgs := make([]kafka.Message, 0, len(batch))
	now := j.clock.Now().UnixMilli()
	for symbol, q := range batch {
		quote := q
		payload, err := json.Marshal(entry{Kind: "quote", Timestamp: now, Quote: &quote})
		if err != nil {
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(symbol), Value: payload})
	}
	j.write(msgs...)
}

func (j *Journal) OnTrade(t models.Trade) {
	j.writeEntry(t.Symbol, entry{Kind: "trade", Timestamp: j.clock.Now().UnixMilli(), Trade: &t})
}

func (j *Journal) OnBar(b models.Bar) {
	j.writeEntry(b.Symbol, entry{Kind: "bar", Timestamp: j.clock.Now().UnixMilli(), Bar: &b})
}

func (j *Journal) OnStatus(s models.Status) {
	j.writeEntry("status", entry{Kind: "status", Timestamp: j.clock.Now().UnixMilli(), Status: &s})
}

func (j *Journal) OnError(err error) {
	// Errors are operational, not market data; they stay out of the journal
}

func (j *Journal) OnNews(a models.NewsArticle) {
	key := "news"
	if len(a.Symbols) > 0 {
		key = a.Symbols[0]
	}
	j.writeEntry(key, entry{Kind: "news", Timestamp: j.clock.Now().UnixMilli(), News: &a})
}

func (j *Journal) writeEntry(key string, e entry) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	j.write(kafka.Message{Key: []byte(key), Value: payload})
}

func (j *Journal) write(msgs ...kafka.Message) {
	if len(msgs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.writer.WriteMessages(ctx, msgs...); err != nil {
		j.logger.Error("Journal write failed", zap.Error(err))
	}
}

func (j *Journal) Close() error {
	return j.writer.Close()
}

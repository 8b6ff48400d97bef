package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Kyle-Grantland/finterm/pkg/models"
)

// MockConsumer records everything fanned out to it. PanicOnQuoteBatch makes
// it blow up on delivery, for isolation tests.
type MockConsumer struct {
	Mu                sync.Mutex
	Batches           []map[string]models.Quote
	Trades            []models.Trade
	Bars              []models.Bar
	Statuses          []models.Status
	Errors            []error
	Articles          []models.NewsArticle
	PanicOnQuoteBatch bool
}

func (m *MockConsumer) OnQuoteBatch(batch map[string]models.Quote) {
	if m.PanicOnQuoteBatch {
		panic("consumer exploded")
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	copied := make(map[string]models.Quote, len(batch))
	for k, v := range batch {
		copied[k] = v
	}
	m.Batches = append(m.Batches, copied)
}

func (m *MockConsumer) OnTrade(t models.Trade) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Trades = append(m.Trades, t)
}

func (m *MockConsumer) OnBar(b models.Bar) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Bars = append(m.Bars, b)
}

func (m *MockConsumer) OnStatus(s models.Status) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Statuses = append(m.Statuses, s)
}

func (m *MockConsumer) OnError(err error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Errors = append(m.Errors, err)
}

func (m *MockConsumer) OnNews(a models.NewsArticle) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Articles = append(m.Articles, a)
}

func (m *MockConsumer) BatchCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Batches)
}

// MockSnapshotSink captures flushed quote batches
type MockSnapshotSink struct {
	Mu     sync.Mutex
	Stored [][]models.Quote
	Err    error
}

func (m *MockSnapshotSink) StoreQuotes(_ context.Context, quotes []models.Quote) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	copied := make([]models.Quote, len(quotes))
	copy(copied, quotes)
	m.Stored = append(m.Stored, copied)
	return nil
}

// MockClock advances instantly on Sleep, for deterministic loops
type MockClock struct {
	Mu          sync.Mutex
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Sleep(d time.Duration) {
	m.Mu.Lock()
	m.CurrentTime = m.CurrentTime.Add(d)
	m.Mu.Unlock()
	// Yield so the surrounding loop can observe context cancellation
	time.Sleep(time.Microsecond)
}

// MockRand returns fixed values
type MockRand struct {
	ValInt   int
	ValFloat float64
}

func (m *MockRand) Intn(n int) int {
	if m.ValInt >= n {
		return n - 1
	}
	return m.ValInt
}

func (m *MockRand) Float64() float64 { return m.ValFloat }

// MockKafkaWriter captures journal messages
type MockKafkaWriter struct {
	Mu       sync.Mutex
	Messages []kafka.Message
	Err      error
}

func (m *MockKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

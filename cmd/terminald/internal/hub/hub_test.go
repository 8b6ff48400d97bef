package hub_test

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/hub"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/testutils"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

const testFlush = 20 * time.Millisecond

func newHub() *hub.Hub {
	return hub.New(zap.NewNop(), testFlush)
}

func waitForBatch(t *testing.T, c *testutils.MockConsumer, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.BatchCount() >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d batch(es), got %d", want, c.BatchCount())
}

func TestHub_CoalescesQuotesPerSymbol(t *testing.T) {
	h := newHub()
	c := &testutils.MockConsumer{}
	h.Register(c)

	// Three updates for AAPL and one for MSFT inside one window
	h.IngestQuote(models.Quote{Symbol: "AAPL", Last: 1})
	h.IngestQuote(models.Quote{Symbol: "AAPL", Last: 2})
	h.IngestQuote(models.Quote{Symbol: "MSFT", Last: 300})
	h.IngestQuote(models.Quote{Symbol: "AAPL", Last: 3})

	waitForBatch(t, c, 1)

	c.Mu.Lock()
	defer c.Mu.Unlock()
	if len(c.Batches) != 1 {
		t.Fatalf("Expected exactly one batch, got %d", len(c.Batches))
	}
	batch := c.Batches[0]
	if len(batch) != 2 {
		t.Errorf("Expected 2 symbols in batch, got %d", len(batch))
	}
	if batch["AAPL"].Last != 3 {
		t.Errorf("Expected last AAPL value 3, got %f", batch["AAPL"].Last)
	}
	if batch["MSFT"].Last != 300 {
		t.Errorf("Expected MSFT 300, got %f", batch["MSFT"].Last)
	}
}

func TestHub_NoQuotesNoFlush(t *testing.T) {
	h := newHub()
	c := &testutils.MockConsumer{}
	h.Register(c)

	time.Sleep(3 * testFlush)

	if c.BatchCount() != 0 {
		t.Errorf("Expected no flush without quotes, got %d batches", c.BatchCount())
	}
}

func TestHub_MergePreservesOHLCAcrossTicks(t *testing.T) {
	h := newHub()

	// Seed via a full quote (as a REST fetch would provide)
	h.IngestQuote(models.Quote{Symbol: "AAPL", Last: 150, Open: 100, High: 155, Low: 99, PrevClose: 148})
	// Streaming tick without OHLC
	h.IngestQuote(models.Quote{Symbol: "AAPL", Last: 151, Bid: 150.9, Ask: 151.1})

	q, ok := h.Quote("AAPL")
	if !ok {
		t.Fatal("Expected stored quote")
	}
	if q.Open != 100 {
		t.Errorf("Expected open preserved at 100, got %f", q.Open)
	}
	if q.Last != 151 {
		t.Errorf("Expected last updated to 151, got %f", q.Last)
	}
	if q.Change != 3 {
		t.Errorf("Expected change 3 against preserved prevClose, got %f", q.Change)
	}
}

func TestHub_TradeForwardedImmediately(t *testing.T) {
	h := newHub()
	c := &testutils.MockConsumer{}
	h.Register(c)

	h.IngestQuote(models.Quote{Symbol: "AAPL", Last: 150, PrevClose: 148})
	h.IngestTrade(models.Trade{Symbol: "AAPL", Price: 152, Size: 10, Timestamp: 42})

	c.Mu.Lock()
	trades := len(c.Trades)
	c.Mu.Unlock()
	if trades != 1 {
		t.Fatalf("Expected trade delivered immediately, got %d", trades)
	}

	if q, _ := h.Quote("AAPL"); q.Last != 152 {
		t.Errorf("Expected trade folded into stored quote, last=%f", q.Last)
	}
}

func TestHub_ConsumerIsolation(t *testing.T) {
	h := newHub()
	bad := &testutils.MockConsumer{PanicOnQuoteBatch: true}
	good := &testutils.MockConsumer{}
	h.Register(bad)
	h.Register(good)

	h.IngestQuote(models.Quote{Symbol: "AAPL", Last: 1})
	waitForBatch(t, good, 1)

	// Status events too: a panicking handler must not block the rest
	h.IngestStatus(models.Status{Connected: true})
	good.Mu.Lock()
	statuses := len(good.Statuses)
	good.Mu.Unlock()
	if statuses != 1 {
		t.Errorf("Expected status delivered past panicking consumer, got %d", statuses)
	}
}

func TestHub_BarSeriesAppendVsReplace(t *testing.T) {
	h := newHub()

	h.IngestBar(models.Bar{Symbol: "AAPL", Close: 1, Timestamp: 1000})
	h.IngestBar(models.Bar{Symbol: "AAPL", Close: 2, Timestamp: 2000})
	// Same timestamp: in-progress update replaces
	h.IngestBar(models.Bar{Symbol: "AAPL", Close: 2.5, Timestamp: 2000})
	// Older timestamp: dropped
	h.IngestBar(models.Bar{Symbol: "AAPL", Close: 9, Timestamp: 500})

	series := h.Bars("AAPL", models.Timeframe1Min)
	if len(series) != 2 {
		t.Fatalf("Expected series length 2, got %d", len(series))
	}
	if series[1].Close != 2.5 {
		t.Errorf("Expected last bar replaced with close 2.5, got %f", series[1].Close)
	}
	if series[0].Close != 1 {
		t.Errorf("Expected first bar untouched, got %f", series[0].Close)
	}
}

func TestHub_SetBarsSeedsSeries(t *testing.T) {
	h := newHub()
	h.SetBars("AAPL", models.Timeframe1Day, []models.Bar{
		{Symbol: "AAPL", Close: 1, Timestamp: 1000},
		{Symbol: "AAPL", Close: 2, Timestamp: 2000},
	})

	series := h.Bars("AAPL", models.Timeframe1Day)
	if len(series) != 2 {
		t.Fatalf("Expected seeded series of 2, got %d", len(series))
	}
}

func TestHub_SnapshotSinkReceivesFlush(t *testing.T) {
	h := newHub()
	sink := &testutils.MockSnapshotSink{}
	h.SetSnapshotSink(sink)
	c := &testutils.MockConsumer{}
	h.Register(c)

	h.IngestQuote(models.Quote{Symbol: "AAPL", Last: 1})
	waitForBatch(t, c, 1)

	sink.Mu.Lock()
	defer sink.Mu.Unlock()
	if len(sink.Stored) != 1 || len(sink.Stored[0]) != 1 {
		t.Fatalf("Expected one stored batch of one quote, got %v", sink.Stored)
	}
}

func TestHub_ErrorAndNewsPassThrough(t *testing.T) {
	h := newHub()
	c := &testutils.MockConsumer{}
	h.Register(c)

	h.IngestError(errors.New("venue hiccup"))
	h.IngestNews(models.NewsArticle{ID: "n1", Headline: "Something happened"})

	c.Mu.Lock()
	defer c.Mu.Unlock()
	if len(c.Errors) != 1 {
		t.Errorf("Expected 1 error delivered, got %d", len(c.Errors))
	}
	if len(c.Articles) != 1 || c.Articles[0].ID != "n1" {
		t.Errorf("Expected news article delivered, got %v", c.Articles)
	}
}

func TestHub_DisposeStopsDelivery(t *testing.T) {
	h := newHub()
	c := &testutils.MockConsumer{}
	h.Register(c)

	h.IngestQuote(models.Quote{Symbol: "AAPL", Last: 1})
	h.Dispose()

	time.Sleep(3 * testFlush)
	if c.BatchCount() != 0 {
		t.Errorf("Expected no flush after dispose, got %d", c.BatchCount())
	}

	// Further ingestion is a no-op
	h.IngestTrade(models.Trade{Symbol: "AAPL", Price: 1})
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if len(c.Trades) != 0 {
		t.Error("Expected no trade delivery after dispose")
	}
}

func TestHub_UnregisterStopsDeliveryToThatConsumer(t *testing.T) {
	h := newHub()
	a := &testutils.MockConsumer{}
	b := &testutils.MockConsumer{}
	h.Register(a)
	h.Register(b)
	h.Unregister(a)

	h.IngestStatus(models.Status{Connected: true})

	a.Mu.Lock()
	aGot := len(a.Statuses)
	a.Mu.Unlock()
	b.Mu.Lock()
	bGot := len(b.Statuses)
	b.Mu.Unlock()

	if aGot != 0 || bGot != 1 {
		t.Errorf("Expected only registered consumer to receive status, got a=%d b=%d", aGot, bGot)
	}
}

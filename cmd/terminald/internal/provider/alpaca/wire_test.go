package alpaca

import (
	"testing"
	"time"
)

func TestDecodeFramesArray(t *testing.T) {
	payload := []byte(`[{"T":"q","S":"AAPL","bp":189.5,"ap":189.52,"bs":3,"as":5,"t":"2024-01-02T15:04:05.123Z"},{"T":"t","S":"MSFT","p":402.1,"s":100,"x":"V","t":"2024-01-02T15:04:05Z"}]`)

	frames, err := decodeFrames(payload)
	if err != nil {
		t.Fatalf("decodeFrames returned error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if frames[0].Type != msgTypeQuote || frames[0].Symbol != "AAPL" {
		t.Errorf("First frame decoded wrong: %+v", frames[0])
	}
	if frames[1].Type != msgTypeTrade || frames[1].Price != 402.1 {
		t.Errorf("Second frame decoded wrong: %+v", frames[1])
	}
}

func TestDecodeFramesSingleObject(t *testing.T) {
	payload := []byte(`{"T":"success","msg":"authenticated"}`)

	frames, err := decodeFrames(payload)
	if err != nil {
		t.Fatalf("decodeFrames returned error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if frames[0].Type != msgTypeSuccess || frames[0].Msg != ackAuthenticated {
		t.Errorf("Frame decoded wrong: %+v", frames[0])
	}
}

func TestDecodeFramesMalformed(t *testing.T) {
	if _, err := decodeFrames([]byte(`{"T":`)); err == nil {
		t.Error("Expected error for truncated payload")
	}
}

func TestParseTimeMs(t *testing.T) {
	want := time.Date(2024, 1, 2, 15, 4, 5, 123000000, time.UTC).UnixMilli()
	if got := parseTimeMs("2024-01-02T15:04:05.123Z"); got != want {
		t.Errorf("Expected %d, got %d", want, got)
	}
	if got := parseTimeMs("2024-01-02T15:04:05Z"); got != want-123 {
		t.Errorf("Expected %d for second precision, got %d", want-123, got)
	}
	if got := parseTimeMs(""); got != 0 {
		t.Errorf("Expected 0 for empty timestamp, got %d", got)
	}
	if got := parseTimeMs("yesterday"); got != 0 {
		t.Errorf("Expected 0 for garbage timestamp, got %d", got)
	}
}

func TestNormalizeQuote(t *testing.T) {
	f := streamFrame{
		Type: msgTypeQuote, Symbol: "AAPL",
		BidPrice: 189.50, AskPrice: 189.52, BidSize: 3, AskSize: 5,
		Time: "2024-01-02T15:04:05Z",
	}
	q := normalizeQuote(f)
	if q.Symbol != "AAPL" || q.Bid != 189.50 || q.Ask != 189.52 {
		t.Errorf("Quote normalized wrong: %+v", q)
	}
	if q.Last != 189.52 {
		t.Errorf("Expected last to track ask, got %f", q.Last)
	}
	if q.Open != 0 || q.High != 0 || q.Low != 0 || q.Volume != 0 {
		t.Errorf("Streaming quote should carry no OHLC context: %+v", q)
	}
	if q.Timestamp == 0 {
		t.Error("Expected parsed timestamp")
	}
}

func TestNormalizeTrade(t *testing.T) {
	f := streamFrame{Type: msgTypeTrade, Symbol: "MSFT", Price: 402.1, Size: 100, Exchange: "V", Time: "2024-01-02T15:04:05Z"}
	tr := normalizeTrade(f)
	if tr.Symbol != "MSFT" || tr.Price != 402.1 || tr.Size != 100 || tr.Exchange != "V" {
		t.Errorf("Trade normalized wrong: %+v", tr)
	}
}

func TestNormalizeBar(t *testing.T) {
	f := streamFrame{
		Type: msgTypeBar, Symbol: "TSLA",
		Open: 240, High: 242.5, Low: 239.1, Close: 241.7, Volume: 50000,
		VWAP: 241.2, TradeCount: 380, Time: "2024-01-02T15:05:00Z",
	}
	b := normalizeBar(f)
	if b.Open != 240 || b.High != 242.5 || b.Low != 239.1 || b.Close != 241.7 {
		t.Errorf("Bar normalized wrong: %+v", b)
	}
	if b.VWAP != 241.2 || b.TradeCount != 380 {
		t.Errorf("Expected venue extras preserved: %+v", b)
	}
}

func TestNormalizeNews(t *testing.T) {
	f := streamFrame{
		Type: msgTypeNews, ID: "12345",
		Headline: "Apple announces results", Source: "benzinga",
		URL: "https://example.com/a", Symbols: []string{"AAPL"},
		CreatedAt: "2024-01-02T15:04:05Z", UpdatedAt: "2024-01-02T16:00:00Z",
	}
	a := normalizeNews(f)
	if a.ID != "12345" || a.Headline != "Apple announces results" {
		t.Errorf("Article normalized wrong: %+v", a)
	}
	if a.PublishedAt == 0 || a.UpdatedAt == 0 {
		t.Errorf("Expected timestamps parsed: %+v", a)
	}
	if len(a.Symbols) != 1 || a.Symbols[0] != "AAPL" {
		t.Errorf("Expected symbols carried through: %v", a.Symbols)
	}
}

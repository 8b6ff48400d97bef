package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/provider"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

func testRestClient(srv *httptest.Server) *restClient {
	rc := newRestClient(zap.NewNop(), models.ProviderConfig{
		APIKey:    "key",
		APISecret: "secret",
		BaseURL:   srv.URL,
	})
	rc.brokerBase = srv.URL
	return rc
}

func TestGetQuoteComposite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerKeyID) != "key" || r.Header.Get(headerKeySecret) != "secret" {
			t.Errorf("Missing auth headers on %s", r.URL.Path)
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/quotes/latest"):
			fmt.Fprint(w, `{"quote":{"t":"2024-01-02T15:04:05Z","bp":189.5,"bs":3,"ap":189.52,"as":5}}`)
		case strings.HasSuffix(r.URL.Path, "/trades/latest"):
			fmt.Fprint(w, `{"trade":{"t":"2024-01-02T15:04:06Z","p":189.51,"s":100,"x":"V"}}`)
		case strings.HasSuffix(r.URL.Path, "/snapshot"):
			fmt.Fprint(w, `{"dailyBar":{"o":188,"h":190,"l":187.5,"c":189.51,"v":1200000},"prevDailyBar":{"c":185}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	q, err := testRestClient(srv).GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote returned error: %v", err)
	}
	if q.Bid != 189.5 || q.Ask != 189.52 || q.BidSize != 3 || q.AskSize != 5 {
		t.Errorf("Quote book fields wrong: %+v", q)
	}
	if q.Last != 189.51 {
		t.Errorf("Expected last from latest trade, got %f", q.Last)
	}
	if q.Open != 188 || q.High != 190 || q.Low != 187.5 || q.Volume != 1200000 {
		t.Errorf("Daily bar fields wrong: %+v", q)
	}
	if q.PrevClose != 185 {
		t.Errorf("Expected prev close 185, got %f", q.PrevClose)
	}
	wantChange := 189.51 - 185
	if q.Change < wantChange-1e-9 || q.Change > wantChange+1e-9 {
		t.Errorf("Expected change %f, got %f", wantChange, q.Change)
	}
}

func TestGetQuoteToleratesSecondaryFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/quotes/latest") {
			fmt.Fprint(w, `{"quote":{"t":"2024-01-02T15:04:05Z","bp":189.5,"ap":189.52}}`)
			return
		}
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	q, err := testRestClient(srv).GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Expected partial quote, got error: %v", err)
	}
	if q.Last != 189.52 {
		t.Errorf("Expected last to fall back to ask, got %f", q.Last)
	}
	if q.Open != 0 || q.PrevClose != 0 || q.Change != 0 {
		t.Errorf("Expected snapshot fields omitted: %+v", q)
	}
}

func TestGetQuoteFailsWithoutQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/quotes/latest") {
			http.Error(w, "no such symbol", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := testRestClient(srv).GetQuote(context.Background(), "XXXX")
	var statusErr *provider.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", statusErr.Code)
	}
}

func TestGetBarsPaginates(t *testing.T) {
	page := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("timeframe"); got != "5Min" {
			t.Errorf("Expected timeframe 5Min, got %q", got)
		}
		page++
		switch page {
		case 1:
			if r.URL.Query().Get("page_token") != "" {
				t.Error("First page must not carry a page token")
			}
			fmt.Fprint(w, `{"bars":[{"t":"2024-01-02T15:00:00Z","o":1,"h":2,"l":0.5,"c":1.5,"v":100}],"next_page_token":"abc"}`)
		case 2:
			if got := r.URL.Query().Get("page_token"); got != "abc" {
				t.Errorf("Expected page token abc, got %q", got)
			}
			fmt.Fprint(w, `{"bars":[{"t":"2024-01-02T15:05:00Z","o":1.5,"h":2.5,"l":1,"c":2,"v":200,"vw":1.8,"n":42}],"next_page_token":""}`)
		default:
			t.Error("Pagination did not terminate")
			http.Error(w, "too many pages", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	bars, err := testRestClient(srv).GetBars(context.Background(), "AAPL", models.Timeframe5Min,
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetBars returned error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("Expected 2 bars across pages, got %d", len(bars))
	}
	if bars[0].Close != 1.5 || bars[1].Close != 2 {
		t.Errorf("Bars out of order or mismapped: %+v", bars)
	}
	if bars[1].VWAP != 1.8 || bars[1].TradeCount != 42 {
		t.Errorf("Expected venue extras preserved: %+v", bars[1])
	}
}

func TestGetBarsSurfacesVenueError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testRestClient(srv).GetBars(context.Background(), "AAPL", models.Timeframe1Day, time.Now().Add(-24*time.Hour), time.Now())
	var statusErr *provider.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", statusErr.Code)
	}
}

func TestSearchSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/assets" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `[
			{"symbol":"AAPL","name":"Apple Inc","exchange":"NASDAQ","class":"us_equity","tradable":true},
			{"symbol":"MSFT","name":"Microsoft Corp","exchange":"NASDAQ","class":"us_equity","tradable":true},
			{"symbol":"APLE","name":"Apple Hospitality REIT","exchange":"NYSE","class":"us_equity","tradable":false}
		]`)
	}))
	defer srv.Close()

	results, err := testRestClient(srv).SearchSymbols(context.Background(), "apple")
	if err != nil {
		t.Fatalf("SearchSymbols returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(results))
	}
	if results[0].Symbol != "AAPL" || results[1].Symbol != "APLE" {
		t.Errorf("Expected source order preserved, got %v", results)
	}
	if results[0].Type != "stock" || !results[0].Tradable {
		t.Errorf("Asset fields mismapped: %+v", results[0])
	}
}

func TestSearchSymbolsCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		b.WriteString("[")
		for i := 0; i < 50; i++ {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, `{"symbol":"SYM%d","name":"Common Corp %d","exchange":"NYSE","class":"us_equity","tradable":true}`, i, i)
		}
		b.WriteString("]")
		fmt.Fprint(w, b.String())
	}))
	defer srv.Close()

	results, err := testRestClient(srv).SearchSymbols(context.Background(), "common")
	if err != nil {
		t.Fatalf("SearchSymbols returned error: %v", err)
	}
	if len(results) != searchLimit {
		t.Errorf("Expected results capped at %d, got %d", searchLimit, len(results))
	}
}

func TestGetNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta1/news" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("symbols"); got != "AAPL,MSFT" {
			t.Errorf("Expected symbols AAPL,MSFT, got %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("Expected limit 5, got %q", got)
		}
		fmt.Fprint(w, `{"news":[{"id":101,"headline":"Earnings beat","summary":"Quarterly results","source":"benzinga","url":"https://example.com/n","symbols":["AAPL"],"created_at":"2024-01-02T15:04:05Z","updated_at":"2024-01-02T16:00:00Z","images":[{"url":"https://example.com/img","size":"thumb"}]}]}`)
	}))
	defer srv.Close()

	articles, err := testRestClient(srv).GetNews(context.Background(), models.NewsFilter{
		Symbols: []string{"AAPL", "MSFT"},
		Limit:   5,
	})
	if err != nil {
		t.Fatalf("GetNews returned error: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(articles))
	}
	a := articles[0]
	if a.ID != "101" || a.Headline != "Earnings beat" {
		t.Errorf("Article mismapped: %+v", a)
	}
	if a.PublishedAt == 0 || a.UpdatedAt == 0 {
		t.Errorf("Expected timestamps parsed: %+v", a)
	}
	if len(a.Images) != 1 || a.Images[0].Size != "thumb" {
		t.Errorf("Expected image carried through: %+v", a.Images)
	}
}

func TestTimeframeMapping(t *testing.T) {
	cases := map[models.Timeframe]string{
		models.Timeframe1Min:  "1Min",
		models.Timeframe5Min:  "5Min",
		models.Timeframe15Min: "15Min",
		models.Timeframe30Min: "30Min",
		models.Timeframe1Hour: "1Hour",
		models.Timeframe4Hour: "4Hour",
		models.Timeframe1Day:  "1Day",
		models.Timeframe1Week: "1Week",
		models.Timeframe1Mon:  "1Month",
		"bogus":               "1Day",
	}
	for tf, want := range cases {
		if got := mapTimeframe(tf); got != want {
			t.Errorf("Timeframe %q: expected %q, got %q", tf, want, got)
		}
	}
}

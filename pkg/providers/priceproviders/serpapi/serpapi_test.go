package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hoteliq/ratewatch/internal/keypool"
	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
)

func testProvider(t *testing.T, baseURL string, keys ...string) priceproviders.PriceProvider {
	t.Helper()
	pool := keypool.New(Key, 100, keypool.StaticSource(keys), nil)
	if err := pool.Load(context.Background(), nil); err != nil {
		t.Fatalf("pool load: %v", err)
	}
	return New(priceproviders.Config{Name: Key, Priority: 1, Enabled: true, BaseURL: baseURL}, pool)
}

var testHotel = priceproviders.HotelRef{ID: "h-1", Name: "Grand Plaza", Location: "Berlin"}

var testParams = priceproviders.SearchParams{
	CheckIn:  "2026-09-01",
	CheckOut: "2026-09-02",
	Adults:   2,
	Currency: "EUR",
}

func TestLookup_ReturnsLowestRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("engine"); got != "google_hotels" {
			t.Errorf("engine = %q", got)
		}
		if got := r.URL.Query().Get("api_key"); got != "test-key-1" {
			t.Errorf("api_key = %q", got)
		}
		w.Write([]byte(`{"properties":[{"name":"Grand Plaza","rate_per_night":{"lowest":"€120","extracted_lowest":120}}]}`))
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, "test-key-1")
	res, err := p.Lookup(context.Background(), testHotel, testParams)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Price != 120 || res.Currency != "EUR" || res.HotelID != "h-1" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Vendor != "google_hotels" {
		t.Errorf("vendor = %q", res.Vendor)
	}
}

func TestLookup_QuotaExceededMarksCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"You are out of searches for this month."}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, "key-aaaa", "key-bbbb")
	_, err := p.Lookup(context.Background(), testHotel, testParams)
	if priceproviders.KindOf(err) != priceproviders.KindExhausted {
		t.Fatalf("expected exhausted error, got %v", err)
	}

	st := p.Pool().Status()
	if st.ActiveKeys != 1 {
		t.Errorf("expected the rejected credential to be exhausted, status: %+v", st)
	}
	if st.Keys[st.CurrentKeyIndex].KeySuffix != "...bbbb" {
		t.Errorf("pool did not rotate to the second key: %+v", st)
	}
}

func TestLookup_AuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, "bad-key")
	_, err := p.Lookup(context.Background(), testHotel, testParams)
	if priceproviders.KindOf(err) != priceproviders.KindFatal {
		t.Fatalf("expected fatal error, got %v", err)
	}
	// Auth failure is not quota exhaustion; the credential stays usable.
	if st := p.Pool().Status(); st.ActiveKeys != 1 {
		t.Errorf("credential should not be exhausted on 401: %+v", st)
	}
}

func TestLookup_NoResultsIsNotFound(t *testing.T) {
	cases := map[string]string{
		"error string":     `{"error":"Google Hotels hasn't returned any results for this query."}`,
		"empty properties": `{"properties":[]}`,
		"unpriced only":    `{"properties":[{"name":"Grand Plaza","rate_per_night":{}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			p := testProvider(t, srv.URL, "test-key-1")
			_, err := p.Lookup(context.Background(), testHotel, testParams)
			if priceproviders.KindOf(err) != priceproviders.KindNotFound {
				t.Fatalf("expected not-found, got %v", err)
			}
		})
	}
}

func TestLookup_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, "test-key-1")
	_, err := p.Lookup(context.Background(), testHotel, testParams)
	if priceproviders.KindOf(err) != priceproviders.KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestLookup_EmptyPoolIsExhausted(t *testing.T) {
	p := testProvider(t, "http://unused.invalid")
	_, err := p.Lookup(context.Background(), testHotel, testParams)
	if priceproviders.KindOf(err) != priceproviders.KindExhausted {
		t.Fatalf("expected exhausted error for empty pool, got %v", err)
	}
}

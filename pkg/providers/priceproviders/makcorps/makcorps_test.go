package makcorps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hoteliq/ratewatch/internal/keypool"
	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
)

func testProvider(t *testing.T, baseURL string) priceproviders.PriceProvider {
	t.Helper()
	pool := keypool.New(Key, 100, keypool.StaticSource{"mk-key-1"}, nil)
	if err := pool.Load(context.Background(), nil); err != nil {
		t.Fatalf("pool load: %v", err)
	}
	return New(priceproviders.Config{Name: Key, Priority: 2, Enabled: true, BaseURL: baseURL}, pool)
}

var testParams = priceproviders.SearchParams{
	CheckIn:  "2026-09-01",
	CheckOut: "2026-09-02",
	Adults:   2,
	Currency: "USD",
}

func TestLookup_PicksCheapestVendor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("hotelid"); got != "mk-778" {
			t.Errorf("hotelid = %q", got)
		}
		w.Write([]byte(`{"comparison":[
			{"vendor":"Booking.com","price":145.5,"currency":"USD"},
			{"vendor":"Expedia","price":139.0,"currency":"USD"},
			{"vendor":"Agoda","price":0}
		]}`))
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL)
	hotel := priceproviders.HotelRef{ID: "h-2", Name: "Harbor View", ProviderRefID: "mk-778"}
	res, err := p.Lookup(context.Background(), hotel, testParams)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Vendor != "Expedia" || res.Price != 139.0 {
		t.Errorf("expected cheapest vendor quote, got %+v", res)
	}
}

func TestLookup_UnmappedHotelIsNotFound(t *testing.T) {
	p := testProvider(t, "http://unused.invalid")
	hotel := priceproviders.HotelRef{ID: "h-3", Name: "No Mapping Inn"}
	_, err := p.Lookup(context.Background(), hotel, testParams)
	if priceproviders.KindOf(err) != priceproviders.KindNotFound {
		t.Fatalf("expected not-found for unmapped hotel, got %v", err)
	}
	// The pool must not be touched for a hotel this provider cannot serve.
	if st := p.Pool().Status(); st.MonthlyUsage != 0 {
		t.Errorf("pool usage counted for a skipped lookup: %+v", st)
	}
}

func TestLookup_EmptyComparisonIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"comparison":[],"message":"no availability"}`))
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL)
	hotel := priceproviders.HotelRef{ID: "h-2", ProviderRefID: "mk-778"}
	_, err := p.Lookup(context.Background(), hotel, testParams)
	if priceproviders.KindOf(err) != priceproviders.KindNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestLookup_PaymentRequiredExhaustsCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"monthly request limit reached"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL)
	hotel := priceproviders.HotelRef{ID: "h-2", ProviderRefID: "mk-778"}
	_, err := p.Lookup(context.Background(), hotel, testParams)
	if priceproviders.KindOf(err) != priceproviders.KindExhausted {
		t.Fatalf("expected exhausted, got %v", err)
	}
	if st := p.Pool().Status(); st.ActiveKeys != 0 {
		t.Errorf("credential should be exhausted after 402: %+v", st)
	}
}

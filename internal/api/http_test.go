package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hoteliq/ratewatch/internal/auth"
	"github.com/hoteliq/ratewatch/internal/keypool"
	"github.com/hoteliq/ratewatch/internal/router"
	"github.com/hoteliq/ratewatch/internal/scan"
	"github.com/hoteliq/ratewatch/internal/storage"
	"github.com/hoteliq/ratewatch/pkg/providers"
	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
)

type stubProvider struct{ pool *keypool.Pool }

func (s *stubProvider) Key() string                  { return "stub" }
func (s *stubProvider) Name() string                 { return "Stub" }
func (s *stubProvider) Type() providers.ProviderType { return providers.TypeSearchAPI }
func (s *stubProvider) Priority() int                { return 1 }
func (s *stubProvider) Enabled() bool                { return true }
func (s *stubProvider) Pool() *keypool.Pool          { return s.pool }

func (s *stubProvider) Lookup(ctx context.Context, hotel priceproviders.HotelRef, params priceproviders.SearchParams) (*priceproviders.PriceResult, error) {
	return &priceproviders.PriceResult{
		HotelID:    hotel.ID,
		Provider:   "stub",
		Vendor:     "stub_vendor",
		Price:      135,
		Currency:   "EUR",
		CheckIn:    params.CheckIn,
		Adults:     params.Adults,
		ObservedAt: time.Now(),
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, storage.Storage) {
	t.Helper()
	store := storage.NewMemory()

	pool := keypool.New("stub", 100, keypool.StaticSource{"stub-key-0001"}, store)
	if err := pool.Load(context.Background(), nil); err != nil {
		t.Fatalf("pool load: %v", err)
	}
	pools := keypool.NewManager()
	pools.Register(pool)

	r := router.New([]priceproviders.PriceProvider{&stubProvider{pool: pool}})
	orchestrator := scan.New(store, r, 2, nil)

	authService, err := auth.NewService(store, false)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}

	srv := httptest.NewServer(NewServer(store, pools, r, orchestrator, authService).Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	if code := getJSON(t, srv.URL+"/healthz", nil); code != http.StatusOK {
		t.Errorf("healthz = %d", code)
	}
	if code := getJSON(t, srv.URL+"/livez", nil); code != http.StatusOK {
		t.Errorf("livez = %d", code)
	}
}

func TestKeyStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Pools []keypool.Status `json:"pools"`
	}
	if code := getJSON(t, srv.URL+"/api/keys/status", &body); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if len(body.Pools) != 1 || body.Pools[0].Provider != "stub" {
		t.Fatalf("unexpected pools: %+v", body.Pools)
	}
	if body.Pools[0].Keys[0].KeySuffix != "...0001" {
		t.Errorf("secret not masked: %+v", body.Pools[0].Keys[0])
	}

	if code := getJSON(t, srv.URL+"/api/keys/status?provider=nope", nil); code != http.StatusNotFound {
		t.Errorf("unknown provider status = %d", code)
	}
}

func TestKeyRotateRequiresProvider(t *testing.T) {
	srv, _ := newTestServer(t)
	if code := postJSON(t, srv.URL+"/api/keys/rotate", "", nil); code != http.StatusBadRequest {
		t.Errorf("rotate without provider = %d", code)
	}
}

func TestScanLifecycleOverHTTP(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	store.UpsertHotel(ctx, storage.Hotel{ID: "h-1", UserID: "u-1", Name: "Grand Plaza", IsTargetHotel: true})
	store.UpsertHotel(ctx, storage.Hotel{ID: "h-2", UserID: "u-1", Name: "Harbor View"})

	var session storage.ScanSession
	code := postJSON(t, srv.URL+"/api/scan", `{"user_id":"u-1"}`, &session)
	if code != http.StatusAccepted {
		t.Fatalf("trigger scan = %d", code)
	}
	if session.Status != storage.SessionPending || session.SessionType != storage.ScanManual {
		t.Fatalf("unexpected session: %+v", session)
	}

	deadline := time.After(5 * time.Second)
	var detail struct {
		Session     *storage.ScanSession      `json:"session"`
		Results     []storage.HotelScanResult `json:"results"`
		PricePoints []storage.PricePoint      `json:"price_points"`
	}
	for {
		if code := getJSON(t, srv.URL+"/api/sessions/"+session.ID, &detail); code != http.StatusOK {
			t.Fatalf("get session = %d", code)
		}
		if detail.Session.Status == storage.SessionCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("session stuck in %s", detail.Session.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(detail.PricePoints) != 2 || len(detail.Results) != 2 {
		t.Errorf("detail: %d points, %d results", len(detail.PricePoints), len(detail.Results))
	}

	var list struct {
		Sessions []storage.ScanSession `json:"sessions"`
	}
	getJSON(t, srv.URL+"/api/sessions?user_id=u-1", &list)
	if len(list.Sessions) != 1 {
		t.Errorf("listed %d sessions", len(list.Sessions))
	}
}

func TestTriggerScan_Validation(t *testing.T) {
	srv, _ := newTestServer(t)
	if code := postJSON(t, srv.URL+"/api/scan", `{"session_type":"manual"}`, nil); code != http.StatusBadRequest {
		t.Errorf("missing user_id = %d", code)
	}
	if code := postJSON(t, srv.URL+"/api/scan", `{"user_id":"u-1","session_type":"warp"}`, nil); code != http.StatusBadRequest {
		t.Errorf("bad session_type = %d", code)
	}
	// User exists but owns no hotels.
	if code := postJSON(t, srv.URL+"/api/scan", `{"user_id":"u-1"}`, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("no hotels = %d", code)
	}
}

func TestProvidersEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	store.UpsertProviderConfig(context.Background(), storage.ProviderConfig{
		Name: "stub", Type: "search_api", Priority: 1, Enabled: true,
	})

	var body struct {
		Providers []providerView `json:"providers"`
	}
	if code := getJSON(t, srv.URL+"/api/providers", &body); code != http.StatusOK {
		t.Fatalf("providers = %d", code)
	}
	if len(body.Providers) != 1 {
		t.Fatalf("got %d providers", len(body.Providers))
	}
	if !body.Providers[0].InChain {
		t.Errorf("stub provider should be in the routing chain: %+v", body.Providers[0])
	}
}

func TestHotelPricesEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	store.UpsertHotel(ctx, storage.Hotel{ID: "h-1", UserID: "u-1", Name: "A"})
	store.InsertPricePoint(ctx, storage.PricePoint{HotelID: "h-1", SessionID: "s-1", Price: 120, Currency: "EUR", RecordedAt: time.Now()})

	var body struct {
		PricePoints []storage.PricePoint `json:"price_points"`
	}
	if code := getJSON(t, srv.URL+"/api/hotels/h-1/prices", &body); code != http.StatusOK {
		t.Fatalf("prices = %d", code)
	}
	if len(body.PricePoints) != 1 || body.PricePoints[0].Price != 120 {
		t.Errorf("unexpected points: %+v", body.PricePoints)
	}
}

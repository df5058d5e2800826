package alerting

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hoteliq/ratewatch/internal/storage"
)

func capture(t *testing.T) (*httptest.Server, *map[string]any) {
	t.Helper()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("webhook body not JSON: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestPoolExhausted_SlackPayload(t *testing.T) {
	srv, got := capture(t)
	New(srv.URL, KindSlack).PoolExhausted("serpapi")

	if _, ok := (*got)["text"]; !ok {
		t.Errorf("slack payload missing text field: %v", *got)
	}
}

func TestPoolExhausted_GenericPayload(t *testing.T) {
	srv, got := capture(t)
	New(srv.URL, KindGeneric).PoolExhausted("serpapi")

	if (*got)["event"] != "key_pool_exhausted" || (*got)["provider"] != "serpapi" {
		t.Errorf("unexpected generic payload: %v", *got)
	}
}

func TestScanFailed_IncludesSessionID(t *testing.T) {
	srv, got := capture(t)
	New(srv.URL, KindGeneric).ScanFailed(storage.ScanSession{ID: "s-1", UserID: "u-1", SessionType: storage.ScanScheduled, Error: "db down"})

	if (*got)["session_id"] != "s-1" {
		t.Errorf("payload missing session id: %v", *got)
	}
}

func TestNilAlerterIsSafe(t *testing.T) {
	var a *Alerter
	a.PoolExhausted("serpapi")
	a.ScanFailed(storage.ScanSession{})
	a.ScanDegraded(storage.ScanSession{})
}

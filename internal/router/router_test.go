package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hoteliq/ratewatch/internal/keypool"
	"github.com/hoteliq/ratewatch/pkg/providers"
	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
)

type fakeProvider struct {
	key      string
	priority int
	enabled  bool

	mu    sync.Mutex
	calls int
	fn    func(call int) (*priceproviders.PriceResult, error)
}

func (f *fakeProvider) Key() string                  { return f.key }
func (f *fakeProvider) Name() string                 { return f.key }
func (f *fakeProvider) Type() providers.ProviderType { return providers.TypeSearchAPI }
func (f *fakeProvider) Priority() int                { return f.priority }
func (f *fakeProvider) Enabled() bool                { return f.enabled }
func (f *fakeProvider) Pool() *keypool.Pool          { return nil }

func (f *fakeProvider) Lookup(ctx context.Context, hotel priceproviders.HotelRef, params priceproviders.SearchParams) (*priceproviders.PriceResult, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()
	return f.fn(call)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func succeedWith(price float64) func(int) (*priceproviders.PriceResult, error) {
	return func(int) (*priceproviders.PriceResult, error) {
		return &priceproviders.PriceResult{Price: price, Currency: "EUR"}, nil
	}
}

func failWith(provider string, kind priceproviders.ErrorKind) func(int) (*priceproviders.PriceResult, error) {
	return func(int) (*priceproviders.PriceResult, error) {
		return nil, priceproviders.NewError(provider, kind, errors.New("boom"))
	}
}

func newTestRouter(list ...priceproviders.PriceProvider) *Router {
	r := New(list)
	r.backoffBase = time.Millisecond
	return r
}

var (
	testHotel  = priceproviders.HotelRef{ID: "h-1", Name: "Grand Plaza"}
	testParams = priceproviders.SearchParams{CheckIn: "2026-09-01", CheckOut: "2026-09-02", Adults: 2, Currency: "EUR"}
)

func TestLookup_StrictPriorityOrder(t *testing.T) {
	primary := &fakeProvider{key: "a", priority: 1, enabled: true, fn: succeedWith(100)}
	secondary := &fakeProvider{key: "b", priority: 2, enabled: true, fn: succeedWith(90)}
	r := newTestRouter(secondary, primary)

	res, err := r.Lookup(context.Background(), testHotel, testParams)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Price != 100 {
		t.Errorf("expected the priority-1 provider to answer, got price %v", res.Price)
	}
	if secondary.callCount() != 0 {
		t.Errorf("lower-priority provider was called %d times", secondary.callCount())
	}
}

func TestLookup_ExhaustedFallsThrough(t *testing.T) {
	primary := &fakeProvider{key: "a", priority: 1, enabled: true, fn: failWith("a", priceproviders.KindExhausted)}
	secondary := &fakeProvider{key: "b", priority: 2, enabled: true, fn: succeedWith(90)}
	r := newTestRouter(primary, secondary)

	res, err := r.Lookup(context.Background(), testHotel, testParams)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Price != 90 {
		t.Errorf("expected fallback provider result, got %+v", res)
	}
	if primary.callCount() != 1 {
		t.Errorf("exhausted provider should not be retried, called %d times", primary.callCount())
	}
}

func TestLookup_TransientIsRetriedInPlace(t *testing.T) {
	flaky := &fakeProvider{key: "a", priority: 1, enabled: true, fn: func(call int) (*priceproviders.PriceResult, error) {
		if call < 2 {
			return nil, priceproviders.NewError("a", priceproviders.KindTransient, errors.New("timeout"))
		}
		return &priceproviders.PriceResult{Price: 100}, nil
	}}
	secondary := &fakeProvider{key: "b", priority: 2, enabled: true, fn: succeedWith(90)}
	r := newTestRouter(flaky, secondary)

	res, err := r.Lookup(context.Background(), testHotel, testParams)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Price != 100 {
		t.Errorf("expected the flaky provider to recover, got %+v", res)
	}
	if flaky.callCount() != 3 {
		t.Errorf("expected 3 attempts against the flaky provider, got %d", flaky.callCount())
	}
	if secondary.callCount() != 0 {
		t.Errorf("fallback should not run when retries recover")
	}
}

func TestLookup_TransientOutOfRetriesFallsThrough(t *testing.T) {
	broken := &fakeProvider{key: "a", priority: 1, enabled: true, fn: failWith("a", priceproviders.KindTransient)}
	secondary := &fakeProvider{key: "b", priority: 2, enabled: true, fn: succeedWith(90)}
	r := newTestRouter(broken, secondary)

	res, err := r.Lookup(context.Background(), testHotel, testParams)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Price != 90 {
		t.Errorf("expected fallback result after retries ran out, got %+v", res)
	}
	// initial attempt + maxRetries
	if broken.callCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", broken.callCount())
	}
}

func TestLookup_FatalIsRememberedForSession(t *testing.T) {
	fatal := &fakeProvider{key: "a", priority: 1, enabled: true, fn: failWith("a", priceproviders.KindFatal)}
	secondary := &fakeProvider{key: "b", priority: 2, enabled: true, fn: succeedWith(90)}
	s := newTestRouter(fatal, secondary).Session()

	for i := 0; i < 3; i++ {
		res, err := s.Lookup(context.Background(), testHotel, testParams)
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if res.Price != 90 {
			t.Fatalf("lookup %d: expected fallback result, got %+v", i, res)
		}
	}
	if fatal.callCount() != 1 {
		t.Errorf("fatal provider called %d times, want exactly 1 for the whole session", fatal.callCount())
	}
}

func TestLookup_AllNotFoundIsEmptyResult(t *testing.T) {
	a := &fakeProvider{key: "a", priority: 1, enabled: true, fn: failWith("a", priceproviders.KindNotFound)}
	b := &fakeProvider{key: "b", priority: 2, enabled: true, fn: failWith("b", priceproviders.KindNotFound)}
	r := newTestRouter(a, b)

	res, err := r.Lookup(context.Background(), testHotel, testParams)
	if err != nil {
		t.Fatalf("no-match must not be an error, got %v", err)
	}
	if res != nil {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestLookup_AllFailedIsNoProviderAvailable(t *testing.T) {
	a := &fakeProvider{key: "a", priority: 1, enabled: true, fn: failWith("a", priceproviders.KindExhausted)}
	b := &fakeProvider{key: "b", priority: 2, enabled: true, fn: failWith("b", priceproviders.KindFatal)}
	r := newTestRouter(a, b)

	_, err := r.Lookup(context.Background(), testHotel, testParams)
	if !errors.Is(err, ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}
}

func TestLookup_DisabledProviderSkipped(t *testing.T) {
	disabled := &fakeProvider{key: "a", priority: 1, enabled: false, fn: succeedWith(100)}
	active := &fakeProvider{key: "b", priority: 2, enabled: true, fn: succeedWith(90)}
	r := newTestRouter(disabled, active)

	res, err := r.Lookup(context.Background(), testHotel, testParams)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Price != 90 || disabled.callCount() != 0 {
		t.Errorf("disabled provider participated in routing")
	}
}

func TestLookup_NoProvidersConfigured(t *testing.T) {
	r := newTestRouter()
	_, err := r.Lookup(context.Background(), testHotel, testParams)
	if !errors.Is(err, ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}
}

func TestLookup_CancelledContextStopsChain(t *testing.T) {
	a := &fakeProvider{key: "a", priority: 1, enabled: true, fn: succeedWith(100)}
	r := newTestRouter(a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Lookup(ctx, testHotel, testParams)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if a.callCount() != 0 {
		t.Errorf("provider called on a cancelled context")
	}
}

func TestBackoffSchedule_QuadruplesBetweenRetries(t *testing.T) {
	b := backoffSchedule(200 * time.Millisecond)

	want := []time.Duration{200 * time.Millisecond, 800 * time.Millisecond, 3200 * time.Millisecond}
	for i, w := range want {
		d, stop := b.Next()
		if stop {
			t.Fatalf("retry %d: schedule stopped early", i)
		}
		if d != w {
			t.Errorf("retry %d: wait = %s, want %s", i, d, w)
		}
	}
}

package cron

import (
	"context"
	"testing"
	"time"

	"github.com/hoteliq/ratewatch/internal/keypool"
	"github.com/hoteliq/ratewatch/internal/router"
	"github.com/hoteliq/ratewatch/internal/scan"
	"github.com/hoteliq/ratewatch/internal/storage"
	"github.com/hoteliq/ratewatch/pkg/providers"
	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
)

func newTestWorker(store storage.Storage) *Worker {
	o := scan.New(store, router.New(nil), 1, nil)
	return NewWorker(store, o, nil, time.Hour)
}

func TestUntilNextRun_SecondsSetting(t *testing.T) {
	store := storage.NewMemory()
	store.SetSetting(context.Background(), settingKey, "300")
	w := newTestWorker(store)

	if got := w.untilNextRun(context.Background(), time.Now()); got != 5*time.Minute {
		t.Errorf("wait = %s, want 5m", got)
	}
}

func TestUntilNextRun_CronExpression(t *testing.T) {
	store := storage.NewMemory()
	store.SetSetting(context.Background(), settingKey, "0 * * * *")
	w := newTestWorker(store)

	now := time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC)
	got := w.untilNextRun(context.Background(), now)
	if got != 30*time.Minute {
		t.Errorf("wait = %s, want 30m until the top of the hour", got)
	}
}

func TestUntilNextRun_DefaultsAndFloors(t *testing.T) {
	store := storage.NewMemory()
	w := newTestWorker(store)

	if got := w.untilNextRun(context.Background(), time.Now()); got != time.Hour {
		t.Errorf("unset setting: wait = %s, want the default", got)
	}

	store.SetSetting(context.Background(), settingKey, "1")
	if got := w.untilNextRun(context.Background(), time.Now()); got != minInterval {
		t.Errorf("tiny interval not floored: %s", got)
	}

	store.SetSetting(context.Background(), settingKey, "not-a-schedule")
	if got := w.untilNextRun(context.Background(), time.Now()); got != time.Hour {
		t.Errorf("garbage setting: wait = %s, want the default", got)
	}
}

// lockableStore wraps memory storage with a controllable advisory lock.
type lockableStore struct {
	*storage.MemoryStorage
	locked bool
	err    error
}

func (l *lockableStore) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return !l.locked, l.err
}

func (l *lockableStore) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	store := &lockableStore{MemoryStorage: storage.NewMemory(), locked: true}
	store.UpsertHotel(ctx, storage.Hotel{ID: "h-1", UserID: "u-1", Name: "A"})
	w := newTestWorker(store)

	w.RunOnce(ctx)

	sessions, err := store.ListScanSessions(ctx, "u-1", 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("worker scanned while the lock was held elsewhere")
	}
}

func TestRunOnce_ScansEveryUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	store.UpsertHotel(ctx, storage.Hotel{ID: "h-1", UserID: "u-1", Name: "A"})
	store.UpsertHotel(ctx, storage.Hotel{ID: "h-2", UserID: "u-2", Name: "B"})

	p := &stubProvider{}
	o := scan.New(store, router.New([]priceproviders.PriceProvider{p}), 1, nil)
	w := NewWorker(store, o, nil, time.Hour)

	w.RunOnce(ctx)

	for _, userID := range []string{"u-1", "u-2"} {
		sessions, _ := store.ListScanSessions(ctx, userID, 10)
		if len(sessions) != 1 {
			t.Errorf("user %s: %d sessions, want 1", userID, len(sessions))
			continue
		}
		if sessions[0].SessionType != storage.ScanScheduled {
			t.Errorf("user %s: session type %s", userID, sessions[0].SessionType)
		}
		if sessions[0].Status != storage.SessionCompleted {
			t.Errorf("user %s: session status %s", userID, sessions[0].Status)
		}
	}
}

type stubProvider struct{}

func (stubProvider) Key() string                  { return "stub" }
func (stubProvider) Name() string                 { return "stub" }
func (stubProvider) Type() providers.ProviderType { return providers.TypeSearchAPI }
func (stubProvider) Priority() int                { return 1 }
func (stubProvider) Enabled() bool                { return true }
func (stubProvider) Pool() *keypool.Pool          { return nil }

func (stubProvider) Lookup(ctx context.Context, hotel priceproviders.HotelRef, params priceproviders.SearchParams) (*priceproviders.PriceResult, error) {
	return &priceproviders.PriceResult{
		HotelID:    hotel.ID,
		Provider:   "stub",
		Vendor:     "stub",
		Price:      100,
		Currency:   "USD",
		CheckIn:    params.CheckIn,
		Adults:     params.Adults,
		ObservedAt: time.Now(),
	}, nil
}

package storage

import (
	"context"
	"testing"
	"time"
)

func TestScanSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	s := ScanSession{ID: "s-1", UserID: "u-1", SessionType: ScanManual, Status: SessionPending, CreatedAt: time.Now()}
	if err := m.CreateScanSession(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	s.Status = SessionCompleted
	now := time.Now()
	s.CompletedAt = &now
	if err := m.UpdateScanSession(ctx, s); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := m.GetScanSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Status != SessionCompleted {
		t.Fatalf("unexpected session: %+v", got)
	}

	missing, err := m.GetScanSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing session should be (nil, nil), got (%+v, %v)", missing, err)
	}
}

func TestListScanSessions_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Now()
	for i := 0; i < 5; i++ {
		m.CreateScanSession(ctx, ScanSession{
			ID:        string(rune('a' + i)),
			UserID:    "u-1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	got, err := m.ListScanSessions(ctx, "u-1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("limit ignored, got %d sessions", len(got))
	}
	if got[0].ID != "e" || got[1].ID != "d" {
		t.Errorf("not newest-first: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestPricePointsAreAppendOnlyPerSession(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i, session := range []string{"s-1", "s-1", "s-2"} {
		err := m.InsertPricePoint(ctx, PricePoint{
			HotelID:    "h-1",
			SessionID:  session,
			Price:      100 + float64(i),
			Currency:   "EUR",
			RecordedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	bySession, err := m.ListSessionPricePoints(ctx, "s-1")
	if err != nil {
		t.Fatalf("list session points: %v", err)
	}
	if len(bySession) != 2 {
		t.Errorf("session s-1 has %d points, want 2", len(bySession))
	}

	byHotel, err := m.ListHotelPricePoints(ctx, "h-1", 2)
	if err != nil {
		t.Fatalf("list hotel points: %v", err)
	}
	if len(byHotel) != 2 {
		t.Fatalf("limit ignored, got %d", len(byHotel))
	}
	if byHotel[0].Price != 102 {
		t.Errorf("not newest-first: %+v", byHotel[0])
	}
}

func TestListHotels_TargetHotelFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.UpsertHotel(ctx, Hotel{ID: "h-2", UserID: "u-1", Name: "Competitor"})
	m.UpsertHotel(ctx, Hotel{ID: "h-1", UserID: "u-1", Name: "Mine", IsTargetHotel: true})
	m.UpsertHotel(ctx, Hotel{ID: "h-3", UserID: "u-2", Name: "Other user"})

	hotels, err := m.ListHotels(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hotels) != 2 {
		t.Fatalf("got %d hotels for u-1", len(hotels))
	}
	if !hotels[0].IsTargetHotel {
		t.Errorf("target hotel not first: %+v", hotels)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	c := Credential{ID: "c-1", Provider: "serpapi", SecretRef: "key-1", MonthlyQuota: 10, CreatedAt: time.Now()}
	if err := m.SaveCredential(ctx, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	c.UsageCount = 7
	if err := m.SaveCredential(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}

	list, err := m.ListCredentials(ctx, "serpapi")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].UsageCount != 7 {
		t.Fatalf("unexpected credentials: %+v", list)
	}

	if err := m.DeleteCredential(ctx, "c-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = m.ListCredentials(ctx, "serpapi")
	if len(list) != 0 {
		t.Errorf("credential not deleted")
	}
}

func TestSettingsAndScanUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if v, err := m.GetSetting(ctx, "scan_interval"); err != nil || v != "" {
		t.Fatalf("unset setting: (%q, %v)", v, err)
	}
	m.SetSetting(ctx, "scan_interval", "3600")
	if v, _ := m.GetSetting(ctx, "scan_interval"); v != "3600" {
		t.Errorf("setting = %q", v)
	}

	m.UpsertHotel(ctx, Hotel{ID: "h-1", UserID: "u-2", Name: "B"})
	m.UpsertHotel(ctx, Hotel{ID: "h-2", UserID: "u-1", Name: "A"})
	m.UpsertHotel(ctx, Hotel{ID: "h-3", UserID: "u-1", Name: "C"})

	users, err := m.ListScanUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 || users[0] != "u-1" || users[1] != "u-2" {
		t.Errorf("unexpected users: %v", users)
	}
}

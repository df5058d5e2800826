// Package scan orchestrates price scan sessions: it resolves the hotel set
// for a user, fans lookups out over a bounded worker pool, records price
// points and per-hotel outcomes, and drives the session state machine
// pending -> running -> completed|failed.
package scan

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hoteliq/ratewatch/internal/metrics"
	"github.com/hoteliq/ratewatch/internal/router"
	"github.com/hoteliq/ratewatch/internal/storage"
	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
)

const (
	// DefaultWorkers bounds concurrent lookups per session so a large
	// hotel set does not stampede the providers.
	DefaultWorkers = 5

	defaultAdults   = 2
	defaultCurrency = "USD"
	defaultLeadDays = 30
	defaultStay     = 1
)

// Notifier is told when a session reaches a terminal state. It is invoked
// on its own goroutine after the last worker finishes, so a slow delivery
// never stalls the scan path.
type Notifier interface {
	ScanFinished(session storage.ScanSession)
}

// Request describes one scan to run.
type Request struct {
	UserID      string
	SessionType string // storage.ScanManual, ScanScheduled or ScanRapidPulse
	HotelIDs    []string
	Params      priceproviders.SearchParams
}

// Orchestrator runs scan sessions against the provider router.
type Orchestrator struct {
	store    storage.Storage
	router   *router.Router
	workers  int
	notifier Notifier // may be nil

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(store storage.Storage, r *router.Router, workers int, notifier Notifier) *Orchestrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Orchestrator{
		store:    store,
		router:   r,
		workers:  workers,
		notifier: notifier,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start creates a pending session and runs it in the background. The
// returned session is already persisted; callers poll GetScanSession for
// progress.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*storage.ScanSession, error) {
	session, hotels, params, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	// The scan outlives the HTTP request that triggered it; cancellation
	// is explicit via Cancel.
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[session.ID] = cancel
	o.mu.Unlock()

	go func() {
		defer o.forget(session.ID)
		o.run(runCtx, session, hotels, params)
	}()
	return &session, nil
}

// Run executes a scan synchronously; the scheduled worker uses it so job
// bookkeeping sees the real duration and outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*storage.ScanSession, error) {
	session, hotels, params, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	final := o.run(ctx, session, hotels, params)
	if final.Status == storage.SessionFailed {
		return &final, fmt.Errorf("scan session %s failed: %s", final.ID, final.Error)
	}
	return &final, nil
}

// Cancel stops an in-flight session. Workers finish their current lookup;
// results recorded so far are kept and completion notification is
// suppressed.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.cancels[sessionID]
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) forget(sessionID string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[sessionID]; ok {
		cancel()
		delete(o.cancels, sessionID)
	}
	o.mu.Unlock()
}

// prepare resolves the hotel set, applies stay-parameter defaults and
// persists the pending session record.
func (o *Orchestrator) prepare(ctx context.Context, req Request) (storage.ScanSession, []storage.Hotel, priceproviders.SearchParams, error) {
	hotels, err := o.resolveHotels(ctx, req)
	if err != nil {
		return storage.ScanSession{}, nil, priceproviders.SearchParams{}, err
	}
	if len(hotels) == 0 {
		return storage.ScanSession{}, nil, priceproviders.SearchParams{}, fmt.Errorf("scan: no hotels to scan for user %s", req.UserID)
	}

	session := storage.ScanSession{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		SessionType: req.SessionType,
		Status:      storage.SessionPending,
		HotelsCount: len(hotels),
		CreatedAt:   time.Now(),
	}
	if err := o.store.CreateScanSession(ctx, session); err != nil {
		return storage.ScanSession{}, nil, priceproviders.SearchParams{}, fmt.Errorf("scan: create session: %w", err)
	}
	return session, hotels, withDefaults(req.Params), nil
}

func (o *Orchestrator) resolveHotels(ctx context.Context, req Request) ([]storage.Hotel, error) {
	all, err := o.store.ListHotels(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("scan: list hotels: %w", err)
	}

	// A rapid pulse checks only the operator's own hotel.
	if req.SessionType == storage.ScanRapidPulse {
		var out []storage.Hotel
		for _, h := range all {
			if h.IsTargetHotel {
				out = append(out, h)
			}
		}
		return out, nil
	}

	if len(req.HotelIDs) == 0 {
		return all, nil
	}
	wanted := make(map[string]bool, len(req.HotelIDs))
	for _, id := range req.HotelIDs {
		wanted[id] = true
	}
	var out []storage.Hotel
	for _, h := range all {
		if wanted[h.ID] {
			out = append(out, h)
		}
	}
	return out, nil
}

func withDefaults(p priceproviders.SearchParams) priceproviders.SearchParams {
	if p.CheckIn == "" {
		p.CheckIn = time.Now().AddDate(0, 0, defaultLeadDays).Format("2006-01-02")
	}
	if p.CheckOut == "" {
		in, err := time.Parse("2006-01-02", p.CheckIn)
		if err != nil {
			in = time.Now().AddDate(0, 0, defaultLeadDays)
		}
		p.CheckOut = in.AddDate(0, 0, defaultStay).Format("2006-01-02")
	}
	if p.Adults <= 0 {
		p.Adults = defaultAdults
	}
	if p.Currency == "" {
		p.Currency = defaultCurrency
	}
	return p
}

// run drives one session to a terminal state and returns the final record.
func (o *Orchestrator) run(ctx context.Context, session storage.ScanSession, hotels []storage.Hotel, params priceproviders.SearchParams) storage.ScanSession {
	start := time.Now()

	session.Status = storage.SessionRunning
	if err := o.store.UpdateScanSession(ctx, session); err != nil {
		return o.finish(session, start, 0, fmt.Errorf("mark session running: %w", err))
	}
	log.Printf("scan: session %s (%s) started, %d hotels, %d workers",
		session.ID, session.SessionType, len(hotels), o.workers)

	routeSession := o.router.Session()
	jobs := make(chan storage.Hotel)

	// Cancellation must not abort lookups already handed to a worker:
	// their results are still persisted. The cancel signal only stops the
	// feed loop and suppresses the completion notification.
	lookupCtx := context.WithoutCancel(ctx)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failed   int
		storeErr error
	)
	recordStoreErr := func(err error) {
		mu.Lock()
		if storeErr == nil {
			storeErr = err
		}
		mu.Unlock()
	}

	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for hotel := range jobs {
				ok, err := o.scanHotel(lookupCtx, routeSession, session, hotel, params)
				if err != nil {
					recordStoreErr(err)
					continue
				}
				if !ok {
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for _, h := range hotels {
		select {
		case jobs <- h:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	session.FailedCount = failed
	final := o.finish(session, start, failed, storeErr)

	if o.notifier != nil && ctx.Err() == nil {
		go o.notifier.ScanFinished(final)
	}
	return final
}

// scanHotel performs one lookup and records its outcome. The returned bool
// is false when the hotel failed; a non-nil error means persistence broke
// and the session must fail.
func (o *Orchestrator) scanHotel(ctx context.Context, rs *router.Session, session storage.ScanSession, hotel storage.Hotel, params priceproviders.SearchParams) (bool, error) {
	hotelParams := params
	if hotel.Currency != "" {
		hotelParams.Currency = hotel.Currency
	}

	res, err := rs.Lookup(ctx, priceproviders.HotelRef{
		ID:            hotel.ID,
		Name:          hotel.Name,
		Location:      hotel.Location,
		ProviderRefID: hotel.ProviderRefID,
		Currency:      hotel.Currency,
	}, hotelParams)

	// Writes below use a background context so a cancelled scan still
	// lands the outcomes of lookups that already ran.
	writeCtx := context.Background()

	switch {
	case err != nil:
		log.Printf("scan: session %s hotel %s failed: %v", session.ID, hotel.ID, err)
		if werr := o.store.InsertHotelScanResult(writeCtx, storage.HotelScanResult{
			SessionID: session.ID,
			HotelID:   hotel.ID,
			Status:    storage.HotelResultFailed,
			Detail:    err.Error(),
			CreatedAt: time.Now(),
		}); werr != nil {
			return false, fmt.Errorf("record hotel failure: %w", werr)
		}
		return false, nil

	case res == nil:
		if werr := o.store.InsertHotelScanResult(writeCtx, storage.HotelScanResult{
			SessionID: session.ID,
			HotelID:   hotel.ID,
			Status:    storage.HotelResultNoMatch,
			CreatedAt: time.Now(),
		}); werr != nil {
			return false, fmt.Errorf("record no-match: %w", werr)
		}
		return true, nil

	default:
		if werr := o.store.InsertPricePoint(writeCtx, storage.PricePoint{
			HotelID:    hotel.ID,
			SessionID:  session.ID,
			Price:      res.Price,
			Currency:   res.Currency,
			Vendor:     res.Vendor,
			CheckIn:    res.CheckIn,
			Adults:     res.Adults,
			RecordedAt: res.ObservedAt,
		}); werr != nil {
			return false, fmt.Errorf("insert price point: %w", werr)
		}
		if werr := o.store.InsertHotelScanResult(writeCtx, storage.HotelScanResult{
			SessionID: session.ID,
			HotelID:   hotel.ID,
			Status:    storage.HotelResultOK,
			CreatedAt: time.Now(),
		}); werr != nil {
			return false, fmt.Errorf("record hotel result: %w", werr)
		}
		return true, nil
	}
}

// finish writes the terminal session record and emits metrics. Per-hotel
// failures never fail the session; only orchestration faults do.
func (o *Orchestrator) finish(session storage.ScanSession, start time.Time, failed int, fault error) storage.ScanSession {
	now := time.Now()
	session.CompletedAt = &now
	session.FailedCount = failed
	if fault != nil {
		session.Status = storage.SessionFailed
		session.Error = fault.Error()
	} else {
		session.Status = storage.SessionCompleted
	}

	if err := o.store.UpdateScanSession(context.Background(), session); err != nil {
		log.Printf("scan: persist terminal state of session %s: %v", session.ID, err)
	}

	metrics.ScanSessionsTotal.WithLabelValues(session.SessionType, session.Status).Inc()
	metrics.ScanDurationSeconds.WithLabelValues(session.SessionType).Observe(time.Since(start).Seconds())
	log.Printf("scan: session %s %s in %s (%d/%d hotels failed)",
		session.ID, session.Status, time.Since(start).Round(time.Millisecond), failed, session.HotelsCount)
	return session
}

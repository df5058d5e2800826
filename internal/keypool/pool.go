package keypool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hoteliq/ratewatch/internal/metrics"
	"github.com/hoteliq/ratewatch/internal/storage"
)

var (
	// ErrNoKeys means the pool has no credentials configured at all.
	ErrNoKeys = errors.New("keypool: no credentials configured")
	// ErrAllExhausted means every credential in the pool is exhausted.
	ErrAllExhausted = errors.New("keypool: all credentials exhausted")
)

// Store is the slice of storage the pool needs to persist credential state.
type Store interface {
	SaveCredential(ctx context.Context, c storage.Credential) error
	DeleteCredential(ctx context.Context, id string) error
}

// Pool owns all credentials for one provider and selects the current one.
// acquire/rotate/report decisions are serialized by a single mutex; the lock
// is never held across a network call — Acquire returns a credential value
// and the caller reports the outcome afterward.
type Pool struct {
	mu       sync.Mutex
	provider string
	quota    int
	source   Source
	store    Store // may be nil (memory-only pool)

	creds   []storage.Credential
	current int

	onExhausted func(provider string)
	alerted     bool
}

// New builds an empty pool for the given provider. Call Load or Reload to
// populate it from the credential source.
func New(provider string, quotaPerKey int, source Source, store Store) *Pool {
	return &Pool{
		provider: provider,
		quota:    quotaPerKey,
		source:   source,
		store:    store,
	}
}

// SetExhaustedHook registers a callback fired once when the whole pool
// exhausts (re-armed by ResetAll/Reload). Used for alerting.
func (p *Pool) SetExhaustedHook(fn func(provider string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExhausted = fn
}

func (p *Pool) Provider() string { return p.provider }

// Load populates the pool: stored credentials win (they carry usage
// counters), then the source is consulted for keys not yet persisted.
func (p *Pool) Load(ctx context.Context, stored []storage.Credential) error {
	p.mu.Lock()
	p.creds = append([]storage.Credential(nil), stored...)
	p.current = 0
	p.mu.Unlock()

	_, _, err := p.Reload(ctx)
	return err
}

func (p *Pool) usable(i int) bool {
	c := p.creds[i]
	if c.ExhaustedAt != nil {
		return false
	}
	return c.MonthlyQuota <= 0 || c.UsageCount < c.MonthlyQuota
}

// rotateLocked advances the current index circularly to the next usable
// credential. Tie-break on equal eligibility is index order, so rotation is
// deterministic. Returns false when no usable credential exists.
func (p *Pool) rotateLocked() bool {
	n := len(p.creds)
	for step := 1; step <= n; step++ {
		i := (p.current + step) % n
		if p.usable(i) {
			p.current = i
			metrics.KeyRotationsTotal.WithLabelValues(p.provider).Inc()
			return true
		}
	}
	return false
}

// Acquire returns the current credential, rotating internally past exhausted
// keys. It fails with ErrAllExhausted only when every credential is spent.
func (p *Pool) Acquire() (storage.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return storage.Credential{}, ErrNoKeys
	}
	if p.usable(p.current) {
		return p.creds[p.current], nil
	}
	if p.rotateLocked() {
		return p.creds[p.current], nil
	}

	p.fireExhaustedLocked()
	return storage.Credential{}, ErrAllExhausted
}

// ReportSuccess increments the usage counter of the given credential. When
// usage reaches the monthly quota the credential is marked exhausted so the
// next Acquire rotates past it. Persistence is asynchronous: the caller's
// critical section must not block on storage I/O.
func (p *Pool) ReportSuccess(ctx context.Context, credentialID string) {
	p.mu.Lock()
	var saved *storage.Credential
	for i := range p.creds {
		if p.creds[i].ID == credentialID {
			// A success reported after the credential was already marked
			// exhausted must not push usage past the quota.
			if p.creds[i].ExhaustedAt == nil {
				p.creds[i].UsageCount++
				if p.creds[i].MonthlyQuota > 0 && p.creds[i].UsageCount >= p.creds[i].MonthlyQuota {
					now := time.Now()
					p.creds[i].ExhaustedAt = &now
				}
				c := p.creds[i]
				saved = &c
			}
			break
		}
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	if saved != nil {
		p.persistAsync(*saved)
	}
}

// ReportQuotaExceeded marks the credential exhausted after a provider quota
// rejection and rotates so the next Acquire does not re-select it.
func (p *Pool) ReportQuotaExceeded(ctx context.Context, credentialID string) {
	p.mu.Lock()
	var saved *storage.Credential
	for i := range p.creds {
		if p.creds[i].ID == credentialID {
			if p.creds[i].ExhaustedAt == nil {
				now := time.Now()
				p.creds[i].ExhaustedAt = &now
			}
			c := p.creds[i]
			saved = &c
			break
		}
	}
	if !p.rotateLocked() {
		p.fireExhaustedLocked()
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	if saved != nil {
		log.Printf("keypool: %s credential #%d marked exhausted", p.provider, saved.PoolIndex)
		p.persistAsync(*saved)
	}
}

// Rotate force-advances the current pointer to the next usable credential.
// Exposed to the admin API.
func (p *Pool) Rotate() (storage.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return storage.Credential{}, ErrNoKeys
	}
	if !p.rotateLocked() {
		return storage.Credential{}, ErrAllExhausted
	}
	return p.creds[p.current], nil
}

// ResetAll clears usage and exhaustion on every credential and resets the
// current pointer to index 0. Explicit only — never called automatically —
// so real exhaustion is not masked. Used at the billing-period boundary.
func (p *Pool) ResetAll(ctx context.Context) error {
	p.mu.Lock()
	for i := range p.creds {
		p.creds[i].UsageCount = 0
		p.creds[i].ExhaustedAt = nil
	}
	p.current = 0
	p.alerted = false
	snapshot := append([]storage.Credential(nil), p.creds...)
	p.updateGaugesLocked()
	p.mu.Unlock()

	if p.store == nil {
		return nil
	}
	var firstErr error
	for _, c := range snapshot {
		if err := p.store.SaveCredential(ctx, c); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reload re-derives the credential set from the source. Keys that survive
// keep their usage counters; keys no longer present are removed; new keys
// are appended with zero usage. Returns (total, added).
func (p *Pool) Reload(ctx context.Context) (int, int, error) {
	if p.source == nil {
		p.mu.Lock()
		n := len(p.creds)
		p.mu.Unlock()
		return n, 0, nil
	}

	refs, err := p.source.List()
	if err != nil {
		return 0, 0, fmt.Errorf("keypool: reload %s: %w", p.provider, err)
	}

	p.mu.Lock()
	existing := make(map[string]storage.Credential, len(p.creds))
	for _, c := range p.creds {
		existing[c.SecretRef] = c
	}

	var next []storage.Credential
	var added int
	for i, ref := range refs {
		if c, ok := existing[ref]; ok {
			c.PoolIndex = i
			next = append(next, c)
			delete(existing, ref)
			continue
		}
		next = append(next, storage.Credential{
			ID:           uuid.New().String(),
			Provider:     p.provider,
			SecretRef:    ref,
			PoolIndex:    i,
			MonthlyQuota: p.quota,
			CreatedAt:    time.Now(),
		})
		added++
	}
	removed := existing
	p.creds = next
	p.current = 0
	p.alerted = false
	p.updateGaugesLocked()
	snapshot := append([]storage.Credential(nil), next...)
	p.mu.Unlock()

	if p.store != nil {
		for _, c := range snapshot {
			if err := p.store.SaveCredential(ctx, c); err != nil {
				return len(snapshot), added, err
			}
		}
		for _, c := range removed {
			if err := p.store.DeleteCredential(ctx, c.ID); err != nil {
				return len(snapshot), added, err
			}
		}
	}

	log.Printf("keypool: %s reloaded, %d keys (%d new, %d removed)", p.provider, len(snapshot), added, len(removed))
	return len(snapshot), added, nil
}

func (p *Pool) persistAsync(c storage.Credential) {
	if p.store == nil {
		return
	}
	go func() {
		if err := p.store.SaveCredential(context.Background(), c); err != nil {
			log.Printf("keypool: persist credential %s failed: %v", c.ID, err)
		}
	}()
}

func (p *Pool) fireExhaustedLocked() {
	if p.alerted || p.onExhausted == nil {
		return
	}
	p.alerted = true
	go p.onExhausted(p.provider)
}

func (p *Pool) updateGaugesLocked() {
	active, exhausted, usage := 0, 0, 0
	for i := range p.creds {
		if p.usable(i) {
			active++
		} else {
			exhausted++
		}
		usage += p.creds[i].UsageCount
	}
	metrics.UpdateKeyPoolMetrics(p.provider, active, exhausted, usage)
}

// KeyStatus is the admin view of one credential. The secret itself is never
// exposed, only its suffix.
type KeyStatus struct {
	Index       int        `json:"index"`
	KeySuffix   string     `json:"key_suffix"`
	IsCurrent   bool       `json:"is_current"`
	IsExhausted bool       `json:"is_exhausted"`
	ExhaustedAt *time.Time `json:"exhausted_at,omitempty"`
	Usage       int        `json:"usage"`
}

// Status is the admin view of the whole pool.
type Status struct {
	Provider        string      `json:"provider"`
	TotalKeys       int         `json:"total_keys"`
	ActiveKeys      int         `json:"active_keys"`
	CurrentKeyIndex int         `json:"current_key_index"`
	QuotaPerKey     int         `json:"quota_per_key"`
	MonthlyUsage    int         `json:"monthly_usage"`
	Keys            []KeyStatus `json:"keys_status"`
}

// Status returns a point-in-time snapshot for the admin API.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Provider:        p.provider,
		TotalKeys:       len(p.creds),
		CurrentKeyIndex: p.current,
		QuotaPerKey:     p.quota,
	}
	for i, c := range p.creds {
		exhausted := !p.usable(i)
		if p.usable(i) {
			st.ActiveKeys++
		}
		st.MonthlyUsage += c.UsageCount
		st.Keys = append(st.Keys, KeyStatus{
			Index:       i,
			KeySuffix:   suffix(c.SecretRef),
			IsCurrent:   i == p.current,
			IsExhausted: exhausted,
			ExhaustedAt: c.ExhaustedAt,
			Usage:       c.UsageCount,
		})
	}
	return st
}

func suffix(secret string) string {
	if len(secret) <= 4 {
		return secret
	}
	return "..." + secret[len(secret)-4:]
}

package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu          sync.RWMutex
	credentials map[string]Credential
	providers   map[string]ProviderConfig
	hotels      map[string]Hotel
	sessions    map[string]ScanSession
	points      []PricePoint
	results     []HotelScanResult
	settings    map[string]string
	users       map[string]User
	tokens      map[string]Token
	emailConfig *EmailConfig
	nextID      uint
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		credentials: make(map[string]Credential),
		providers:   make(map[string]ProviderConfig),
		hotels:      make(map[string]Hotel),
		sessions:    make(map[string]ScanSession),
		settings:    make(map[string]string),
		users:       make(map[string]User),
		tokens:      make(map[string]Token),
	}
}

// NewMemoryWithProviders returns a MemoryStorage preloaded with the given
// provider configs, so callers can avoid a separate seeding pass.
func NewMemoryWithProviders(list []ProviderConfig) *MemoryStorage {
	m := NewMemory()
	for _, p := range list {
		m.providers[p.Name] = p
	}
	return m
}

func (m *MemoryStorage) Close() error                   { return nil }
func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

// Credentials

func (m *MemoryStorage) ListCredentials(ctx context.Context, provider string) ([]Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Credential, 0)
	for _, c := range m.credentials {
		if provider == "" || c.Provider == provider {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PoolIndex < out[j].PoolIndex })
	return out, nil
}

func (m *MemoryStorage) SaveCredential(ctx context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[c.ID] = c
	return nil
}

func (m *MemoryStorage) DeleteCredential(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.credentials, id)
	return nil
}

// Provider configuration

func (m *MemoryStorage) ListProviderConfigs(ctx context.Context) ([]ProviderConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ProviderConfig, 0, len(m.providers))
	for _, p := range m.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (m *MemoryStorage) UpsertProviderConfig(ctx context.Context, pc ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[pc.Name] = pc
	return nil
}

// Hotels

func (m *MemoryStorage) ListHotels(ctx context.Context, userID string) ([]Hotel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Hotel
	for _, h := range m.hotels {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	// target hotel first, then by name for stable output
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsTargetHotel != out[j].IsTargetHotel {
			return out[i].IsTargetHotel
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *MemoryStorage) GetHotel(ctx context.Context, id string) (*Hotel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hotels[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (m *MemoryStorage) UpsertHotel(ctx context.Context, h Hotel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotels[h.ID] = h
	return nil
}

func (m *MemoryStorage) ListScanUsers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, h := range m.hotels {
		if !seen[h.UserID] {
			seen[h.UserID] = true
			out = append(out, h.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Scan sessions

func (m *MemoryStorage) CreateScanSession(ctx context.Context, s ScanSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStorage) UpdateScanSession(ctx context.Context, s ScanSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStorage) GetScanSession(ctx context.Context, id string) (*ScanSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStorage) ListScanSessions(ctx context.Context, userID string, limit int) ([]ScanSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ScanSession
	for _, s := range m.sessions {
		if userID == "" || s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Price points

func (m *MemoryStorage) InsertPricePoint(ctx context.Context, p PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now()
	}
	m.points = append(m.points, p)
	return nil
}

func (m *MemoryStorage) ListSessionPricePoints(ctx context.Context, sessionID string) ([]PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PricePoint
	for _, p := range m.points {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStorage) ListHotelPricePoints(ctx context.Context, hotelID string, limit int) ([]PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PricePoint
	for _, p := range m.points {
		if p.HotelID == hotelID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Per-hotel scan outcomes

func (m *MemoryStorage) InsertHotelScanResult(ctx context.Context, r HotelScanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.results = append(m.results, r)
	return nil
}

func (m *MemoryStorage) ListHotelScanResults(ctx context.Context, sessionID string) ([]HotelScanResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []HotelScanResult
	for _, r := range m.results {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Settings

func (m *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// Users & tokens

func (m *MemoryStorage) CreateUser(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStorage) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) CreateToken(ctx context.Context, token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.ID] = token
	return nil
}

func (m *MemoryStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok {
		now := time.Now()
		t.LastUsedAt = &now
		m.tokens[id] = t
	}
	return nil
}

// Email config

func (m *MemoryStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.emailConfig == nil {
		return nil, nil
	}
	cfg := *m.emailConfig
	return &cfg, nil
}

func (m *MemoryStorage) SaveEmailConfig(ctx context.Context, config EmailConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailConfig = &config
	return nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	// No scheduled_jobs table in memory mode.
	return nil
}

package storage

import "time"

// Credential is one external provider API key plus its usage counters.
// Exactly one credential per provider pool is "current" at any time; that
// pointer lives in the key pool, not here.
type Credential struct {
	ID           string     `json:"id" gorm:"primaryKey;column:id"`
	Provider     string     `json:"provider" gorm:"index;column:provider"`
	SecretRef    string     `json:"-" gorm:"column:secret_ref"`
	PoolIndex    int        `json:"pool_index" gorm:"column:pool_index"`
	MonthlyQuota int        `json:"monthly_quota" gorm:"column:monthly_quota"`
	UsageCount   int        `json:"usage_count" gorm:"column:usage_count"`
	ExhaustedAt  *time.Time `json:"exhausted_at,omitempty" gorm:"column:exhausted_at"`
	CreatedAt    time.Time  `json:"created_at" gorm:"column:created_at"`
}

// Exhausted reports whether the credential can no longer serve calls.
func (c Credential) Exhausted() bool {
	return c.ExhaustedAt != nil || (c.MonthlyQuota > 0 && c.UsageCount >= c.MonthlyQuota)
}

// ProviderConfig describes one price-search provider. Routing tries enabled
// providers in ascending priority order.
type ProviderConfig struct {
	Name           string `json:"name" gorm:"primaryKey;column:name"`
	Type           string `json:"type" gorm:"column:type"`
	Priority       int    `json:"priority" gorm:"column:priority"`
	Enabled        bool   `json:"enabled" gorm:"column:enabled"`
	QuotaPerKey    int    `json:"limit" gorm:"column:quota_per_key"`
	RefreshSeconds int    `json:"refresh" gorm:"column:refresh_seconds"`
}

// Session status values. Sessions move pending -> running -> completed|failed;
// failed is reserved for orchestration-level faults.
const (
	SessionPending   = "pending"
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// Session trigger types.
const (
	ScanManual     = "manual"
	ScanScheduled  = "scheduled"
	ScanRapidPulse = "rapid-pulse"
)

// ScanSession is one orchestrated batch of hotel price lookups for a user.
type ScanSession struct {
	ID          string     `json:"id" gorm:"primaryKey;column:id"`
	UserID      string     `json:"user_id" gorm:"index;column:user_id"`
	SessionType string     `json:"session_type" gorm:"column:session_type"`
	Status      string     `json:"status" gorm:"column:status"`
	HotelsCount int        `json:"hotels_count" gorm:"column:hotels_count"`
	FailedCount int        `json:"failed_count" gorm:"column:failed_count"`
	Error       string     `json:"error,omitempty" gorm:"column:error"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
}

// PricePoint is one recorded price observation for one hotel from one
// session. Append-only; never mutated after insert.
type PricePoint struct {
	ID         uint      `json:"-" gorm:"primaryKey;column:id"`
	HotelID    string    `json:"hotel_id" gorm:"index;column:hotel_id"`
	SessionID  string    `json:"session_id" gorm:"index;column:session_id"`
	Price      float64   `json:"price" gorm:"column:price"`
	Currency   string    `json:"currency" gorm:"column:currency"`
	Vendor     string    `json:"vendor" gorm:"column:vendor"`
	CheckIn    string    `json:"check_in" gorm:"column:check_in"`
	Adults     int       `json:"adults" gorm:"column:adults"`
	RecordedAt time.Time `json:"recorded_at" gorm:"column:recorded_at"`
}

// Per-hotel outcome values within a session.
const (
	HotelResultOK      = "ok"
	HotelResultNoMatch = "no_match"
	HotelResultFailed  = "failed"
)

// HotelScanResult marks the terminal outcome of one hotel within one session.
// A failed hotel keeps its last known price; the session still completes.
type HotelScanResult struct {
	ID        uint      `json:"-" gorm:"primaryKey;column:id"`
	SessionID string    `json:"session_id" gorm:"index;column:session_id"`
	HotelID   string    `json:"hotel_id" gorm:"column:hotel_id"`
	Status    string    `json:"status" gorm:"column:status"`
	Detail    string    `json:"detail,omitempty" gorm:"column:detail"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// Hotel is a tracked hotel supplied by the hotel directory; read-only input
// to the orchestrator.
type Hotel struct {
	ID            string `json:"id" gorm:"primaryKey;column:id"`
	UserID        string `json:"user_id" gorm:"index;column:user_id"`
	Name          string `json:"name" gorm:"column:name"`
	Location      string `json:"location" gorm:"column:location"`
	IsTargetHotel bool   `json:"is_target_hotel" gorm:"column:is_target_hotel"`
	ProviderRefID string `json:"provider_ref_id,omitempty" gorm:"column:provider_ref_id"`
	Currency      string `json:"currency" gorm:"column:currency"`
}

// User represents a registered operator account.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	Username     string    `json:"username" gorm:"unique;column:username"`
	Email        string    `json:"email" gorm:"column:email"`
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	Role         string    `json:"role" gorm:"column:role"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Token represents an API access token.
type Token struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	UserID     string     `json:"user_id" gorm:"column:user_id"`
	Name       string     `json:"name" gorm:"column:name"`
	TokenHash  string     `json:"-" gorm:"column:token_hash"`
	Role       string     `json:"role" gorm:"column:role"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" gorm:"column:last_used_at"`
}

// EmailConfig holds configuration for operator email notifications.
type EmailConfig struct {
	ID          string    `json:"id" gorm:"primaryKey;column:id"`
	Provider    string    `json:"provider" gorm:"column:provider"` // "smtp", "sendgrid", "resend"
	Host        string    `json:"host,omitempty" gorm:"column:host"`
	Port        int       `json:"port,omitempty" gorm:"column:port"`
	Username    string    `json:"username,omitempty" gorm:"column:username"`
	Password    string    `json:"password,omitempty" gorm:"column:password"`
	FromAddress string    `json:"from_address" gorm:"column:from_address"`
	FromName    string    `json:"from_name" gorm:"column:from_name"`
	APIKey      string    `json:"api_key,omitempty" gorm:"column:api_key"`
	Enabled     bool      `json:"enabled" gorm:"column:enabled"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
}

package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for credentials, scan sessions, price points
// and provider configuration. Lookups return (nil, nil) when a record does
// not exist.
type Storage interface {
	// Credentials
	ListCredentials(ctx context.Context, provider string) ([]Credential, error)
	SaveCredential(ctx context.Context, c Credential) error
	DeleteCredential(ctx context.Context, id string) error

	// Provider configuration
	ListProviderConfigs(ctx context.Context) ([]ProviderConfig, error)
	UpsertProviderConfig(ctx context.Context, pc ProviderConfig) error

	// Hotels (read-mostly; the directory is an external collaborator)
	ListHotels(ctx context.Context, userID string) ([]Hotel, error)
	GetHotel(ctx context.Context, id string) (*Hotel, error)
	UpsertHotel(ctx context.Context, h Hotel) error
	ListScanUsers(ctx context.Context) ([]string, error)

	// Scan sessions
	CreateScanSession(ctx context.Context, s ScanSession) error
	UpdateScanSession(ctx context.Context, s ScanSession) error
	GetScanSession(ctx context.Context, id string) (*ScanSession, error)
	ListScanSessions(ctx context.Context, userID string, limit int) ([]ScanSession, error)

	// Price points (append-only)
	InsertPricePoint(ctx context.Context, p PricePoint) error
	ListSessionPricePoints(ctx context.Context, sessionID string) ([]PricePoint, error)
	ListHotelPricePoints(ctx context.Context, hotelID string, limit int) ([]PricePoint, error)

	// Per-hotel scan outcomes
	InsertHotelScanResult(ctx context.Context, r HotelScanResult) error
	ListHotelScanResults(ctx context.Context, sessionID string) ([]HotelScanResult, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Users & tokens
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateToken(ctx context.Context, token Token) error
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)
	UpdateTokenLastUsed(ctx context.Context, id string) error

	// Email notification config
	GetEmailConfig(ctx context.Context) (*EmailConfig, error)
	SaveEmailConfig(ctx context.Context, config EmailConfig) error

	// Scheduled job bookkeeping
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error

	Ping(ctx context.Context) error
	Close() error
}

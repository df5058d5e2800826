package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var gormDialector gorm.Dialector
	if driver == "postgres" {
		gormDialector = postgres.Open(dsn)
	} else if driver == "sqlite" {
		gormDialector = sqlite.Open(dsn)
	} else {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(gormDialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return &GormStorage{db: db}, nil
}

// ScheduledJob records the last run of a named background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}

// Setting is a single key/value configuration row.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.AutoMigrate(
		&Credential{},
		&ProviderConfig{},
		&Hotel{},
		&ScanSession{},
		&PricePoint{},
		&HotelScanResult{},
		&Setting{},
		&User{},
		&Token{},
		&EmailConfig{},
		&ScheduledJob{},
	)
}

// Credentials

func (s *GormStorage) ListCredentials(ctx context.Context, provider string) ([]Credential, error) {
	var creds []Credential
	q := s.db.WithContext(ctx).Order("pool_index asc")
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	result := q.Find(&creds)
	return creds, result.Error
}

func (s *GormStorage) SaveCredential(ctx context.Context, c Credential) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&c).Error
}

func (s *GormStorage) DeleteCredential(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&Credential{}, "id = ?", id).Error
}

// Provider configuration

func (s *GormStorage) ListProviderConfigs(ctx context.Context) ([]ProviderConfig, error) {
	var configs []ProviderConfig
	result := s.db.WithContext(ctx).Order("priority asc").Find(&configs)
	return configs, result.Error
}

func (s *GormStorage) UpsertProviderConfig(ctx context.Context, pc ProviderConfig) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&pc).Error
}

// Hotels

func (s *GormStorage) ListHotels(ctx context.Context, userID string) ([]Hotel, error) {
	var hotels []Hotel
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_target_hotel desc, name asc").
		Find(&hotels)
	return hotels, result.Error
}

func (s *GormStorage) GetHotel(ctx context.Context, id string) (*Hotel, error) {
	var h Hotel
	result := s.db.WithContext(ctx).First(&h, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &h, nil
}

func (s *GormStorage) UpsertHotel(ctx context.Context, h Hotel) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&h).Error
}

func (s *GormStorage) ListScanUsers(ctx context.Context) ([]string, error) {
	var users []string
	result := s.db.WithContext(ctx).Model(&Hotel{}).
		Distinct("user_id").
		Order("user_id asc").
		Pluck("user_id", &users)
	return users, result.Error
}

// Scan sessions

func (s *GormStorage) CreateScanSession(ctx context.Context, sess ScanSession) error {
	return s.db.WithContext(ctx).Create(&sess).Error
}

func (s *GormStorage) UpdateScanSession(ctx context.Context, sess ScanSession) error {
	return s.db.WithContext(ctx).Save(&sess).Error
}

func (s *GormStorage) GetScanSession(ctx context.Context, id string) (*ScanSession, error) {
	var sess ScanSession
	result := s.db.WithContext(ctx).First(&sess, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &sess, nil
}

func (s *GormStorage) ListScanSessions(ctx context.Context, userID string, limit int) ([]ScanSession, error) {
	var sessions []ScanSession
	q := s.db.WithContext(ctx).Order("created_at desc")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	result := q.Find(&sessions)
	return sessions, result.Error
}

// Price points

func (s *GormStorage) InsertPricePoint(ctx context.Context, p PricePoint) error {
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&p).Error
}

func (s *GormStorage) ListSessionPricePoints(ctx context.Context, sessionID string) ([]PricePoint, error) {
	var points []PricePoint
	result := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("recorded_at asc").
		Find(&points)
	return points, result.Error
}

func (s *GormStorage) ListHotelPricePoints(ctx context.Context, hotelID string, limit int) ([]PricePoint, error) {
	var points []PricePoint
	q := s.db.WithContext(ctx).
		Where("hotel_id = ?", hotelID).
		Order("recorded_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	result := q.Find(&points)
	return points, result.Error
}

// Per-hotel scan outcomes

func (s *GormStorage) InsertHotelScanResult(ctx context.Context, r HotelScanResult) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&r).Error
}

func (s *GormStorage) ListHotelScanResults(ctx context.Context, sessionID string) ([]HotelScanResult, error) {
	var results []HotelScanResult
	result := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&results)
	return results, result.Error
}

// Settings

func (s *GormStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var setting Setting
	result := s.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", result.Error
	}
	return setting.Value, nil
}

func (s *GormStorage) SetSetting(ctx context.Context, key, value string) error {
	setting := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&setting).Error
}

// Users & tokens

func (s *GormStorage) CreateUser(ctx context.Context, user User) error {
	return s.db.WithContext(ctx).Create(&user).Error
}

func (s *GormStorage) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	result := s.db.WithContext(ctx).First(&user, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

func (s *GormStorage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	result := s.db.WithContext(ctx).First(&user, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

func (s *GormStorage) CreateToken(ctx context.Context, token Token) error {
	return s.db.WithContext(ctx).Create(&token).Error
}

func (s *GormStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	var token Token
	result := s.db.WithContext(ctx).First(&token, "token_hash = ?", hash)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &token, nil
}

func (s *GormStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Token{}).Where("id = ?", id).Update("last_used_at", now).Error
}

// Email config

func (s *GormStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	var config EmailConfig
	result := s.db.WithContext(ctx).First(&config)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &config, nil
}

func (s *GormStorage) SaveEmailConfig(ctx context.Context, config EmailConfig) error {
	if config.ID == "" {
		config.ID = "default"
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&config).Error
}

// Scheduled jobs

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	job := ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

// Close & Ping

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

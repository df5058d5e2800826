package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPoolStorage is a pgxpool-backed Storage for deployments that need
// connection pooling and advisory locks (multi-replica cron workers).
type PostgresPoolStorage struct {
	pool *pgxpool.Pool
}

func OpenPostgresPool(ctx context.Context, dsn string) (*PostgresPoolStorage, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/ratewatch?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &PostgresPoolStorage{pool: pool}, nil
}

func (s *PostgresPoolStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresPoolStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Stat exposes pool statistics for metrics collection.
func (s *PostgresPoolStorage) Stat() *pgxpool.Stat {
	return s.pool.Stat()
}

// Credentials

func (s *PostgresPoolStorage) ListCredentials(ctx context.Context, provider string) ([]Credential, error) {
	q := `SELECT id, provider, secret_ref, pool_index, monthly_quota, usage_count, exhausted_at, created_at
	      FROM credentials`
	args := []any{}
	if provider != "" {
		q += ` WHERE provider=$1`
		args = append(args, provider)
	}
	q += ` ORDER BY pool_index ASC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.Provider, &c.SecretRef, &c.PoolIndex, &c.MonthlyQuota, &c.UsageCount, &c.ExhaustedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) SaveCredential(ctx context.Context, c Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (id, provider, secret_ref, pool_index, monthly_quota, usage_count, exhausted_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			provider=EXCLUDED.provider,
			secret_ref=EXCLUDED.secret_ref,
			pool_index=EXCLUDED.pool_index,
			monthly_quota=EXCLUDED.monthly_quota,
			usage_count=EXCLUDED.usage_count,
			exhausted_at=EXCLUDED.exhausted_at
	`, c.ID, c.Provider, c.SecretRef, c.PoolIndex, c.MonthlyQuota, c.UsageCount, c.ExhaustedAt, c.CreatedAt)
	return err
}

func (s *PostgresPoolStorage) DeleteCredential(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id=$1`, id)
	return err
}

// Provider configuration

func (s *PostgresPoolStorage) ListProviderConfigs(ctx context.Context) ([]ProviderConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, type, priority, enabled, quota_per_key, refresh_seconds
		FROM provider_configs ORDER BY priority ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderConfig
	for rows.Next() {
		var pc ProviderConfig
		if err := rows.Scan(&pc.Name, &pc.Type, &pc.Priority, &pc.Enabled, &pc.QuotaPerKey, &pc.RefreshSeconds); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) UpsertProviderConfig(ctx context.Context, pc ProviderConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provider_configs (name, type, priority, enabled, quota_per_key, refresh_seconds)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (name) DO UPDATE SET
			type=EXCLUDED.type,
			priority=EXCLUDED.priority,
			enabled=EXCLUDED.enabled,
			quota_per_key=EXCLUDED.quota_per_key,
			refresh_seconds=EXCLUDED.refresh_seconds
	`, pc.Name, pc.Type, pc.Priority, pc.Enabled, pc.QuotaPerKey, pc.RefreshSeconds)
	return err
}

// Hotels

func (s *PostgresPoolStorage) ListHotels(ctx context.Context, userID string) ([]Hotel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, location, is_target_hotel, provider_ref_id, currency
		FROM hotels WHERE user_id=$1
		ORDER BY is_target_hotel DESC, name ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Hotel
	for rows.Next() {
		var h Hotel
		if err := rows.Scan(&h.ID, &h.UserID, &h.Name, &h.Location, &h.IsTargetHotel, &h.ProviderRefID, &h.Currency); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) GetHotel(ctx context.Context, id string) (*Hotel, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, location, is_target_hotel, provider_ref_id, currency
		FROM hotels WHERE id=$1`, id)
	var h Hotel
	if err := row.Scan(&h.ID, &h.UserID, &h.Name, &h.Location, &h.IsTargetHotel, &h.ProviderRefID, &h.Currency); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

func (s *PostgresPoolStorage) UpsertHotel(ctx context.Context, h Hotel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hotels (id, user_id, name, location, is_target_hotel, provider_ref_id, currency)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			user_id=EXCLUDED.user_id,
			name=EXCLUDED.name,
			location=EXCLUDED.location,
			is_target_hotel=EXCLUDED.is_target_hotel,
			provider_ref_id=EXCLUDED.provider_ref_id,
			currency=EXCLUDED.currency
	`, h.ID, h.UserID, h.Name, h.Location, h.IsTargetHotel, h.ProviderRefID, h.Currency)
	return err
}

func (s *PostgresPoolStorage) ListScanUsers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT user_id FROM hotels ORDER BY user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Scan sessions

func (s *PostgresPoolStorage) CreateScanSession(ctx context.Context, sess ScanSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_sessions (id, user_id, session_type, status, hotels_count, failed_count, error, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sess.ID, sess.UserID, sess.SessionType, sess.Status, sess.HotelsCount, sess.FailedCount, sess.Error, sess.CreatedAt, sess.CompletedAt)
	return err
}

func (s *PostgresPoolStorage) UpdateScanSession(ctx context.Context, sess ScanSession) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scan_sessions
		SET status=$2, hotels_count=$3, failed_count=$4, error=$5, completed_at=$6
		WHERE id=$1
	`, sess.ID, sess.Status, sess.HotelsCount, sess.FailedCount, sess.Error, sess.CompletedAt)
	return err
}

func (s *PostgresPoolStorage) GetScanSession(ctx context.Context, id string) (*ScanSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, session_type, status, hotels_count, failed_count, error, created_at, completed_at
		FROM scan_sessions WHERE id=$1`, id)
	var sess ScanSession
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.SessionType, &sess.Status, &sess.HotelsCount, &sess.FailedCount, &sess.Error, &sess.CreatedAt, &sess.CompletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresPoolStorage) ListScanSessions(ctx context.Context, userID string, limit int) ([]ScanSession, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, user_id, session_type, status, hotels_count, failed_count, error, created_at, completed_at
	      FROM scan_sessions`
	args := []any{}
	if userID != "" {
		q += ` WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, userID, limit)
	} else {
		q += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanSession
	for rows.Next() {
		var sess ScanSession
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.SessionType, &sess.Status, &sess.HotelsCount, &sess.FailedCount, &sess.Error, &sess.CreatedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Price points

func (s *PostgresPoolStorage) InsertPricePoint(ctx context.Context, p PricePoint) error {
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_points (hotel_id, session_id, price, currency, vendor, check_in, adults, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.HotelID, p.SessionID, p.Price, p.Currency, p.Vendor, p.CheckIn, p.Adults, p.RecordedAt)
	return err
}

func (s *PostgresPoolStorage) ListSessionPricePoints(ctx context.Context, sessionID string) ([]PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hotel_id, session_id, price, currency, vendor, check_in, adults, recorded_at
		FROM price_points WHERE session_id=$1 ORDER BY recorded_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPricePoints(rows)
}

func (s *PostgresPoolStorage) ListHotelPricePoints(ctx context.Context, hotelID string, limit int) ([]PricePoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, hotel_id, session_id, price, currency, vendor, check_in, adults, recorded_at
		FROM price_points WHERE hotel_id=$1 ORDER BY recorded_at DESC LIMIT $2`, hotelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPricePoints(rows)
}

func scanPricePoints(rows pgx.Rows) ([]PricePoint, error) {
	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.ID, &p.HotelID, &p.SessionID, &p.Price, &p.Currency, &p.Vendor, &p.CheckIn, &p.Adults, &p.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Per-hotel scan outcomes

func (s *PostgresPoolStorage) InsertHotelScanResult(ctx context.Context, r HotelScanResult) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hotel_scan_results (session_id, hotel_id, status, detail, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, r.SessionID, r.HotelID, r.Status, r.Detail, r.CreatedAt)
	return err
}

func (s *PostgresPoolStorage) ListHotelScanResults(ctx context.Context, sessionID string) ([]HotelScanResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, hotel_id, status, detail, created_at
		FROM hotel_scan_results WHERE session_id=$1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HotelScanResult
	for rows.Next() {
		var r HotelScanResult
		if err := rows.Scan(&r.ID, &r.SessionID, &r.HotelID, &r.Status, &r.Detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Settings

func (s *PostgresPoolStorage) GetSetting(ctx context.Context, key string) (string, error) {
	row := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (s *PostgresPoolStorage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at
	`, key, value, time.Now())
	return err
}

// Users & tokens

func (s *PostgresPoolStorage) CreateUser(ctx context.Context, user User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.CreatedAt, user.UpdatedAt)
	return err
}

func (s *PostgresPoolStorage) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, role, created_at, updated_at
		FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func (s *PostgresPoolStorage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, role, created_at, updated_at
		FROM users WHERE username=$1`, username)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *PostgresPoolStorage) CreateToken(ctx context.Context, token Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (id, user_id, name, token_hash, role, created_at, expires_at, last_used_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, token.ID, token.UserID, token.Name, token.TokenHash, token.Role, token.CreatedAt, token.ExpiresAt, token.LastUsedAt)
	return err
}

func (s *PostgresPoolStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, token_hash, role, created_at, expires_at, last_used_at
		FROM tokens WHERE token_hash=$1`, hash)
	var t Token
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.Role, &t.CreatedAt, &t.ExpiresAt, &t.LastUsedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *PostgresPoolStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE tokens SET last_used_at=$2 WHERE id=$1`, id, time.Now())
	return err
}

// Email config

func (s *PostgresPoolStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, provider, host, port, username, password, from_address, from_name, api_key, enabled, updated_at
		FROM email_configs LIMIT 1`)
	var cfg EmailConfig
	if err := row.Scan(&cfg.ID, &cfg.Provider, &cfg.Host, &cfg.Port, &cfg.Username, &cfg.Password, &cfg.FromAddress, &cfg.FromName, &cfg.APIKey, &cfg.Enabled, &cfg.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (s *PostgresPoolStorage) SaveEmailConfig(ctx context.Context, config EmailConfig) error {
	if config.ID == "" {
		config.ID = "default"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_configs (id, provider, host, port, username, password, from_address, from_name, api_key, enabled, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			provider=EXCLUDED.provider,
			host=EXCLUDED.host,
			port=EXCLUDED.port,
			username=EXCLUDED.username,
			password=EXCLUDED.password,
			from_address=EXCLUDED.from_address,
			from_name=EXCLUDED.from_name,
			api_key=EXCLUDED.api_key,
			enabled=EXCLUDED.enabled,
			updated_at=EXCLUDED.updated_at
	`, config.ID, config.Provider, config.Host, config.Port, config.Username, config.Password,
		config.FromAddress, config.FromName, config.APIKey, config.Enabled, time.Now())
	return err
}

// Scheduled jobs & advisory locks

func (s *PostgresPoolStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (name, last_run_at, last_duration_ms, last_success, last_error)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (name) DO UPDATE SET
			last_run_at=EXCLUDED.last_run_at,
			last_duration_ms=EXCLUDED.last_duration_ms,
			last_success=EXCLUDED.last_success,
			last_error=EXCLUDED.last_error
	`, name, started, dur.Milliseconds(), status, errMsg)
	return err
}

func (s *PostgresPoolStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key)
	var ok bool
	err := row.Scan(&ok)
	return ok, err
}

func (s *PostgresPoolStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key)
	var ok bool
	err := row.Scan(&ok)
	return ok, err
}

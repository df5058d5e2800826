// Package auth implements operator accounts, API tokens and role-based
// authorization. Passwords are bcrypt-hashed; tokens are stored as SHA-256
// digests so a database leak never exposes usable credentials.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hoteliq/ratewatch/internal/storage"
)

// Roles, most to least privileged.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Authorization objects.
const (
	ObjectKeys      = "keys"
	ObjectScans     = "scans"
	ObjectProviders = "providers"
	ObjectHotels    = "hotels"
	ObjectUsers     = "users"
	ObjectSettings  = "settings"
)

// Authorization actions.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

type Service struct {
	store    storage.Storage
	enforcer *casbin.Enforcer
	enabled  bool
}

func NewService(store storage.Storage, enabled bool) (*Service, error) {
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("auth: parse rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("auth: build enforcer: %w", err)
	}

	policies := [][]string{
		{RoleViewer, ObjectScans, ActionRead},
		{RoleViewer, ObjectProviders, ActionRead},
		{RoleViewer, ObjectHotels, ActionRead},
		{RoleViewer, ObjectKeys, ActionRead},
		{RoleOperator, ObjectScans, ActionWrite},
		{RoleOperator, ObjectHotels, ActionWrite},
		{RoleAdmin, ObjectKeys, ActionWrite},
		{RoleAdmin, ObjectProviders, ActionWrite},
		{RoleAdmin, ObjectUsers, ActionWrite},
		{RoleAdmin, ObjectSettings, ActionWrite},
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("auth: add policy: %w", err)
		}
	}
	// Role hierarchy: admin inherits operator inherits viewer.
	if _, err := e.AddGroupingPolicy(RoleOperator, RoleViewer); err != nil {
		return nil, err
	}
	if _, err := e.AddGroupingPolicy(RoleAdmin, RoleOperator); err != nil {
		return nil, err
	}

	return &Service{store: store, enforcer: e, enabled: enabled}, nil
}

func (s *Service) Enabled() bool { return s.enabled }

// Bootstrap creates the initial admin account if it does not exist yet.
// A blank password skips bootstrapping.
func (s *Service) Bootstrap(ctx context.Context, username, password string) error {
	if !s.enabled || password == "" {
		return nil
	}
	existing, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.CreateUser(ctx, username, "", password, RoleAdmin)
	return err
}

func (s *Service) CreateUser(ctx context.Context, username, email, password, role string) (*storage.User, error) {
	if role != RoleAdmin && role != RoleOperator && role != RoleViewer {
		return nil, fmt.Errorf("auth: unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	user := storage.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login verifies a password and mints a new API token for the user.
// Returns the plaintext token exactly once; only its hash is stored.
func (s *Service) Login(ctx context.Context, username, password string) (string, *storage.Token, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	return s.CreateToken(ctx, user.ID, "login", user.Role, 30*24*time.Hour)
}

// CreateToken mints a token with the given role and TTL (zero = no expiry).
func (s *Service) CreateToken(ctx context.Context, userID, name, role string, ttl time.Duration) (string, *storage.Token, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("auth: generate token: %w", err)
	}
	plain := "rw_" + hex.EncodeToString(raw)

	token := storage.Token{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		TokenHash: HashToken(plain),
		Role:      role,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		token.ExpiresAt = &exp
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return "", nil, err
	}
	return plain, &token, nil
}

// Authenticate resolves a plaintext token to its stored record.
func (s *Service) Authenticate(ctx context.Context, plain string) (*storage.Token, error) {
	token, err := s.store.GetTokenByHash(ctx, HashToken(plain))
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrInvalidCredentials
	}
	if token.ExpiresAt != nil && time.Now().After(*token.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	// Last-used bookkeeping is best effort and off the request path.
	go func(id string) {
		_ = s.store.UpdateTokenLastUsed(context.Background(), id)
	}(token.ID)

	return token, nil
}

// Authorize checks whether a role may perform an action on an object.
func (s *Service) Authorize(role, object, action string) bool {
	ok, err := s.enforcer.Enforce(role, object, action)
	return err == nil && ok
}

// HashToken returns the hex SHA-256 digest used for token storage.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Package gormstore implements store.Store on PostgreSQL through gorm.
//
// Row locks use SELECT … FOR UPDATE and are held until the surrounding
// transaction commits or rolls back. Uniqueness violations surface as
// store.ErrConflict through gorm's error translation.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/MrEthical07/phoneauth/internal/retry"
	"github.com/MrEthical07/phoneauth/internal/store"
)

// Config controls connection setup.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
	Connect         retry.Policy
}

// Store is the PostgreSQL-backed store.Store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to PostgreSQL, retrying the initial ping with cfg.Connect.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("gormstore: dsn required")
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:                 logger.Default.LogMode(cfg.LogLevel),
		NamingStrategy:         schema.NamingStrategy{SingularTable: true},
		TranslateError:         true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &Store{db: db}
	if err := retry.Do(ctx, cfg.Connect, s.Ping, nil); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB wraps an already configured gorm handle.
func NewFromDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the users, otp_challenges and auth_sessions
// tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&store.User{}, &store.Challenge{}, &store.Session{}); err != nil {
		return fmt.Errorf("%w: migrate: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &tx{db: db})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type tx struct {
	db *gorm.DB
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
}

func (t *tx) firstUser(ctx context.Context, query string, args ...any) (*store.User, error) {
	var u store.User
	if err := t.db.WithContext(ctx).Where(query, args...).Take(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (t *tx) UserByID(ctx context.Context, id string) (*store.User, error) {
	return t.firstUser(ctx, "id = ?", id)
}

func (t *tx) UserByPhone(ctx context.Context, countryCode, phone string) (*store.User, error) {
	return t.firstUser(ctx, "country_code = ? AND phone = ?", countryCode, phone)
}

func (t *tx) UserByEmail(ctx context.Context, email string) (*store.User, error) {
	return t.firstUser(ctx, "email = ?", email)
}

func (t *tx) UserByExternalID(ctx context.Context, externalID string) (*store.User, error) {
	return t.firstUser(ctx, "external_id = ?", externalID)
}

func (t *tx) CreateUser(ctx context.Context, u *store.User) error {
	return mapErr(t.db.WithContext(ctx).Create(u).Error)
}

func (t *tx) SaveUser(ctx context.Context, u *store.User) error {
	res := t.db.WithContext(ctx).Model(&store.User{}).Where("id = ?", u.ID).Select("*").Omit("id", "created_at").Updates(u)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) CreateChallenge(ctx context.Context, c *store.Challenge) error {
	return mapErr(t.db.WithContext(ctx).Create(c).Error)
}

func (t *tx) LockLatestChallenge(ctx context.Context, target store.Target, typ store.ChallengeType) (*store.Challenge, error) {
	q := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("type = ?", typ)
	if target.IsPhone() {
		q = q.Where("country_code = ? AND phone = ?", target.CountryCode, target.Phone)
	} else {
		q = q.Where("user_id = ? AND email = ?", target.UserID, target.Email)
	}

	var c store.Challenge
	if err := q.Order("created_at DESC").Take(&c).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (t *tx) SaveChallenge(ctx context.Context, c *store.Challenge) error {
	res := t.db.WithContext(ctx).Model(&store.Challenge{}).Where("id = ?", c.ID).
		Select("verified", "verified_at", "attempts", "provider_status", "provider_meta").
		Updates(c)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) CreateSession(ctx context.Context, s *store.Session) error {
	return mapErr(t.db.WithContext(ctx).Create(s).Error)
}

func (t *tx) DeleteSessionByDevice(ctx context.Context, userID, deviceID string) error {
	return mapErr(t.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Delete(&store.Session{}).Error)
}

func (t *tx) LockSessionByRefreshDigest(ctx context.Context, digest string) (*store.Session, error) {
	var s store.Session
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("refresh_digest = ?", digest).
		Take(&s).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (t *tx) SessionByAccessDigest(ctx context.Context, digest string) (*store.Session, error) {
	var s store.Session
	if err := t.db.WithContext(ctx).Where("access_digest = ?", digest).Take(&s).Error; err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (t *tx) SaveSession(ctx context.Context, s *store.Session) error {
	res := t.db.WithContext(ctx).Model(&store.Session{}).Where("id = ?", s.ID).Select("*").Omit("id", "created_at").Updates(s)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	res := t.db.WithContext(ctx).Model(&store.Session{}).Where("id = ?", sessionID).UpdateColumn("last_used_at", at)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) ListSessions(ctx context.Context, userID string, activeOnly bool) ([]store.Session, error) {
	q := t.db.WithContext(ctx).Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []store.Session
	if err := q.Order("last_used_at DESC").Find(&out).Error; err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (t *tx) DeactivateSessions(ctx context.Context, filter store.SessionFilter, at time.Time) (int, error) {
	q := t.db.WithContext(ctx).Model(&store.Session{}).
		Where("user_id = ? AND is_active = ?", filter.UserID, true)
	if filter.DeviceID != "" {
		q = q.Where("device_id = ?", filter.DeviceID)
	}
	if filter.ExceptDeviceID != "" {
		q = q.Where("device_id <> ?", filter.ExceptDeviceID)
	}
	res := q.Updates(map[string]any{"is_active": false, "updated_at": at})
	if res.Error != nil {
		return 0, mapErr(res.Error)
	}
	return int(res.RowsAffected), nil
}

package service

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/model"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/util"
	"bitwise74/photo-api/validators"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ShareTokenBytes   = 32
	MaxTokenAttempts  = 10
	DefaultShareDays  = 7
	DefaultMaxDays    = 30
	dayInMilliseconds = 86_400_000
)

var ErrTokenSpaceExhausted = errors.New("could not allocate a unique share token")

var sharesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "photo_share_tokens_created_total",
	Help: "Share tokens minted",
})

// ShareService mints and resolves public, time-limited image links.
type ShareService struct {
	db      *gorm.DB
	store   storage.Store
	maxDays int
	rand    io.Reader
	now     func() time.Time
}

func NewShareService(db *gorm.DB, store storage.Store, maxDays int) *ShareService {
	if maxDays < 1 {
		maxDays = DefaultMaxDays
	}

	return &ShareService{
		db:      db,
		store:   store,
		maxDays: maxDays,
		rand:    rand.Reader,
		now:     time.Now,
	}
}

// ClampDays bounds a requested lifetime to [1, maxDays].
func ClampDays(days, maxDays int) int {
	return max(1, min(days, maxDays))
}

// Create mints a token for an existing image. Uniqueness is checked against
// the table before insert instead of being left to the token's entropy.
func (s *ShareService) Create(ctx context.Context, imageKey string, expiresInDays int, createdBy string) (*model.ShareToken, error) {
	if err := validators.ValidateKey(imageKey); err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(ctx, imageKey)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, apperr.NotFound("image not found")
	}

	token, err := s.uniqueToken(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	rec := &model.ShareToken{
		Token:     token,
		ImageKey:  imageKey,
		CreatedAt: now,
		ExpiresAt: now + int64(ClampDays(expiresInDays, s.maxDays))*dayInMilliseconds,
	}

	if createdBy != "" {
		rec.CreatedBy = &createdBy
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, apperr.Upstream("share create", err)
	}

	sharesCreatedTotal.Inc()
	zap.L().Debug("Created share token", zap.String("imageKey", imageKey), zap.Int64("expiresAt", rec.ExpiresAt))

	return rec, nil
}

func (s *ShareService) uniqueToken(ctx context.Context) (string, error) {
	for range MaxTokenAttempts {
		token, err := util.GenerateToken(s.rand, ShareTokenBytes)
		if err != nil {
			return "", apperr.Internal("failed to generate share token", err)
		}

		var n int64
		err = s.db.WithContext(ctx).
			Model(&model.ShareToken{}).
			Where("token = ?", token).
			Count(&n).
			Error
		if err != nil {
			return "", apperr.Upstream("share token probe", err)
		}

		if n == 0 {
			return token, nil
		}
	}

	return "", apperr.Internal("share token collision", ErrTokenSpaceExhausted)
}

// Resolve returns the live record for token, or nil when the token is
// unknown or expired. Expired rows are left in place.
func (s *ShareService) Resolve(ctx context.Context, token string) (*model.ShareToken, error) {
	if token == "" {
		return nil, nil
	}

	rec, err := s.find(ctx, token)
	if err != nil || rec == nil {
		return nil, err
	}

	if rec.Expired(s.now().UnixMilli()) {
		return nil, nil
	}

	return rec, nil
}

// Delete revokes token. Tokens with an owner can only be revoked by that
// owner; anonymous tokens by any authenticated caller.
func (s *ShareService) Delete(ctx context.Context, token, caller string) error {
	rec, err := s.find(ctx, token)
	if err != nil {
		return err
	}

	if rec == nil {
		return apperr.NotFound("share not found")
	}

	if rec.CreatedBy != nil && *rec.CreatedBy != caller {
		return apperr.Forbidden("share belongs to another user")
	}

	err = s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&model.ShareToken{}).
		Error
	if err != nil {
		return apperr.Upstream("share delete", err)
	}

	return nil
}

// ListByCreator returns the caller's unexpired shares, newest first.
func (s *ShareService) ListByCreator(ctx context.Context, caller string) ([]model.ShareToken, error) {
	shares := []model.ShareToken{}

	err := s.db.WithContext(ctx).
		Where("created_by = ? AND expires_at >= ?", caller, s.now().UnixMilli()).
		Order("created_at DESC").
		Find(&shares).
		Error
	if err != nil {
		return nil, apperr.Upstream("share list", err)
	}

	return shares, nil
}

func (s *ShareService) find(ctx context.Context, token string) (*model.ShareToken, error) {
	var rec model.ShareToken

	err := s.db.WithContext(ctx).
		Where("token = ?", token).
		First(&rec).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, apperr.Upstream("share lookup", err)
	}

	return &rec, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
)

const profileCachePrefix = "profile:"

type profileRepository interface {
	GetByID(ctx context.Context, studentID string) (*models.StudentProfile, error)
}

// ProfileService reads synced student profiles through the Redis cache.
type ProfileService struct {
	repo   profileRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewProfileService constructs a ProfileService. cache may be nil.
func NewProfileService(repo profileRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Get returns the profile for studentID.
func (s *ProfileService) Get(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	key := profileCachePrefix + studentID
	var cached models.StudentProfile
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	profile, err := s.repo.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	if err := s.cache.Set(ctx, key, profile, s.ttl); err != nil {
		s.logger.Sugar().Debugw("profile cache write skipped", "student_id", studentID, "error", err)
	}
	return profile, nil
}

// DisplayName returns the student's full name, or "" when no profile is stored.
func (s *ProfileService) DisplayName(ctx context.Context, studentID string) string {
	if s == nil {
		return ""
	}
	profile, err := s.Get(ctx, studentID)
	if err != nil {
		return ""
	}
	return profile.FullName()
}

// Forget drops a cached profile after it has been refreshed.
func (s *ProfileService) Forget(ctx context.Context, studentID string) {
	if s == nil {
		return
	}
	_ = s.cache.Forget(ctx, profileCachePrefix+studentID)
}

// ForgetAll drops every cached profile, including students no longer in the
// directory.
func (s *ProfileService) ForgetAll(ctx context.Context) {
	if s == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, profileCachePrefix+"*")
}

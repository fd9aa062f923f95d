package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
)

// AuthConfig defines configuration for admin token flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	AdminKeyHash      string
	AuditorKeyHash    string
}

// AuthService exchanges operator keys for short-lived admin tokens.
type AuthService struct {
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "sma-gatepass-api"
	}
	return &AuthService{validator: validate, logger: logger, config: config, now: time.Now}
}

// IssueToken checks the key against the configured bcrypt hashes and returns a
// signed token carrying the matching role.
func (s *AuthService) IssueToken(_ context.Context, req models.AdminTokenRequest) (*models.AdminTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid token request")
	}

	role, ok := s.match(req.Key)
	if !ok {
		s.logger.Sugar().Warnw("admin token rejected")
		return nil, appErrors.ErrInvalidCredentials
	}

	token, issuedAt, expiresAt, err := s.generateAccessToken(role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	s.logger.Sugar().Infow("admin token issued", "role", role)
	return &models.AdminTokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(expiresAt.Sub(issuedAt).Seconds()),
		Role:        role,
		IssuedAt:    issuedAt,
	}, nil
}

func (s *AuthService) match(key string) (models.AdminRole, bool) {
	candidates := []struct {
		hash string
		role models.AdminRole
	}{
		{s.config.AdminKeyHash, models.RoleAdmin},
		{s.config.AuditorKeyHash, models.RoleAuditor},
	}
	for _, c := range candidates {
		if c.hash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(c.hash), []byte(key)) == nil {
			return c.role, true
		}
	}
	return "", false
}

// ValidateToken parses and validates a JWT token string.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithIssuer(s.config.Issuer))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) generateAccessToken(role models.AdminRole) (string, time.Time, time.Time, error) {
	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   string(role),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	return signed, issuedAt, expiresAt, nil
}

// HashKey returns the bcrypt hash stored in ADMIN_KEY_HASH or AUDITOR_KEY_HASH.
func HashKey(key string) (string, error) {
	if len(key) < 16 {
		return "", fmt.Errorf("key must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

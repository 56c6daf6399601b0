package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/pkg/config"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

type otpStore interface {
	Replace(ctx context.Context, code *models.OTPCode) error
	FindLive(ctx context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Consume(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type otpNotifier interface {
	SendOTP(email, code string, purpose models.OTPPurpose, ttlMinutes int)
}

// OTPService issues and verifies one-time passcodes. Codes are stored
// as bcrypt digests; lockout state after exhausted attempts lives in
// Redis with a TTL matching the cool-down window.
type OTPService struct {
	repo     otpStore
	redis    redis.UniversalClient
	notifier otpNotifier
	metrics  *MetricsService
	logger   *zap.Logger
	config   config.OTPConfig
}

// NewOTPService constructs an OTPService instance.
func NewOTPService(repo otpStore, redisClient redis.UniversalClient, notifier otpNotifier, metrics *MetricsService, logger *zap.Logger, cfg config.OTPConfig) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.LockoutTTL <= 0 {
		cfg.LockoutTTL = 15 * time.Minute
	}
	return &OTPService{repo: repo, redis: redisClient, notifier: notifier, metrics: metrics, logger: logger, config: cfg}
}

// GenerateCode produces a fixed-length numeric code from a
// cryptographically strong source, uniform over the code space.
func (s *OTPService) GenerateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < s.config.Length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", s.config.Length, n), nil
}

// HashCode returns a one-way digest of the code.
func (s *OTPService) HashCode(code string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}
	return string(digest), nil
}

// VerifyCode compares a candidate code against a stored digest.
func (s *OTPService) VerifyCode(code, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(code)) == nil
}

// Issue mints a fresh code for the user+purpose pair, superseding any
// outstanding one, and emails it. The plaintext never touches storage
// or logs.
func (s *OTPService) Issue(ctx context.Context, user *models.User, purpose models.OTPPurpose) error {
	if locked, err := s.isLocked(ctx, user.ID, purpose); err != nil {
		return err
	} else if locked {
		return appErrors.Clone(appErrors.ErrLocked, "too many failed attempts, try again later")
	}

	code, err := s.GenerateCode()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}
	digest, err := s.HashCode(code)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash code")
	}

	record := &models.OTPCode{
		UserID:     user.ID,
		Purpose:    purpose,
		CodeDigest: digest,
		ExpiresAt:  s.computeExpiry(),
	}
	if err := s.repo.Replace(ctx, record); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store code")
	}

	s.notifier.SendOTP(user.Email, code, purpose, int(s.config.TTL.Minutes()))
	s.metrics.ObserveOTPIssued()
	return nil
}

// Verify validates a candidate code. Single-use: a consumed code can
// never verify again. Exceeding the attempt budget locks the
// user+purpose pair for the cool-down window, during which every
// attempt fails fast regardless of code correctness.
func (s *OTPService) Verify(ctx context.Context, userID string, purpose models.OTPPurpose, code string) error {
	if locked, err := s.isLocked(ctx, userID, purpose); err != nil {
		return err
	} else if locked {
		return appErrors.Clone(appErrors.ErrLocked, "too many failed attempts, try again later")
	}

	record, err := s.repo.FindLive(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidCode, "no active code, request a new one")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load code")
	}

	if time.Now().UTC().After(record.ExpiresAt) {
		return appErrors.Clone(appErrors.ErrExpired, "code has expired, request a new one")
	}

	if !s.VerifyCode(code, record.CodeDigest) {
		attempts, err := s.repo.IncrementAttempts(ctx, record.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attempt")
		}
		if attempts >= s.config.MaxAttempts {
			if err := s.lock(ctx, userID, purpose); err != nil {
				s.logger.Warn("failed to set otp lockout", zap.Error(err))
			}
			if err := s.repo.Delete(ctx, record.ID); err != nil {
				s.logger.Warn("failed to delete exhausted otp", zap.Error(err))
			}
			s.metrics.ObserveOTPLockout()
		}
		return appErrors.Clone(appErrors.ErrInvalidCode, "verification code is incorrect")
	}

	consumed, err := s.repo.Consume(ctx, record.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume code")
	}
	if !consumed {
		return appErrors.Clone(appErrors.ErrInvalidCode, "code already used")
	}

	if err := s.redis.Del(ctx, s.lockKey(userID, purpose)).Err(); err != nil {
		s.logger.Warn("failed to clear otp lockout", zap.Error(err))
	}
	return nil
}

func (s *OTPService) computeExpiry() time.Time {
	return time.Now().UTC().Add(s.config.TTL)
}

func (s *OTPService) lockKey(userID string, purpose models.OTPPurpose) string {
	return fmt.Sprintf("otp:lock:%s:%s", userID, purpose)
}

func (s *OTPService) isLocked(ctx context.Context, userID string, purpose models.OTPPurpose) (bool, error) {
	n, err := s.redis.Exists(ctx, s.lockKey(userID, purpose)).Result()
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "lockout check failed")
	}
	return n > 0, nil
}

func (s *OTPService) lock(ctx context.Context, userID string, purpose models.OTPPurpose) error {
	return s.redis.Set(ctx, s.lockKey(userID, purpose), "1", s.config.LockoutTTL).Err()
}

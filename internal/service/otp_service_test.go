package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/pkg/config"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

type otpRepoStub struct {
	codes    map[string]*models.OTPCode
	replaced int
}

func newOTPRepoStub() *otpRepoStub {
	return &otpRepoStub{codes: make(map[string]*models.OTPCode)}
}

func (s *otpRepoStub) Replace(ctx context.Context, code *models.OTPCode) error {
	if code.ID == "" {
		code.ID = "otp-1"
	}
	for id, existing := range s.codes {
		if existing.UserID == code.UserID && existing.Purpose == code.Purpose {
			delete(s.codes, id)
		}
	}
	s.codes[code.ID] = code
	s.replaced++
	return nil
}

func (s *otpRepoStub) FindLive(ctx context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error) {
	for _, code := range s.codes {
		if code.UserID == userID && code.Purpose == purpose && code.ConsumedAt == nil {
			copy := *code
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *otpRepoStub) IncrementAttempts(ctx context.Context, id string) (int, error) {
	code, ok := s.codes[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	code.Attempts++
	return code.Attempts, nil
}

func (s *otpRepoStub) Consume(ctx context.Context, id string) (bool, error) {
	code, ok := s.codes[id]
	if !ok || code.ConsumedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	code.ConsumedAt = &now
	return true, nil
}

func (s *otpRepoStub) Delete(ctx context.Context, id string) error {
	delete(s.codes, id)
	return nil
}

type otpNotifierStub struct {
	emails   []string
	lastCode string
}

func (n *otpNotifierStub) SendOTP(email, code string, purpose models.OTPPurpose, ttlMinutes int) {
	n.emails = append(n.emails, email)
	n.lastCode = code
}

func newOTPTestService(t *testing.T) (*OTPService, *otpRepoStub, *otpNotifierStub, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newOTPRepoStub()
	notifier := &otpNotifierStub{}
	svc := NewOTPService(repo, client, notifier, nil, nil, config.OTPConfig{
		Length:      6,
		TTL:         5 * time.Minute,
		MaxAttempts: 3,
		LockoutTTL:  15 * time.Minute,
	})
	return svc, repo, notifier, mr
}

func testOTPUser() *models.User {
	return &models.User{ID: "user-1", Email: "amina@fgc-kenya.org", Role: models.RoleStudent, Active: true}
}

func TestOTPGenerateCodeShape(t *testing.T) {
	svc, _, _, _ := newOTPTestService(t)
	seen := make(map[string]int, 100)
	for i := 0; i < 100; i++ {
		code, err := svc.GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9')
		}
		seen[code]++
	}

	// Over a million-code space, 100 draws from a uniform source should
	// be close to collision-free. Allow a handful before calling it biased.
	collisions := 100 - len(seen)
	require.Less(t, collisions, 10, "generated codes collide too often to be uniformly distributed")
}

func TestOTPIssueAndVerify(t *testing.T) {
	svc, repo, notifier, _ := newOTPTestService(t)
	user := testOTPUser()

	require.NoError(t, svc.Issue(context.Background(), user, models.OTPPurposeLogin))
	require.Equal(t, []string{user.Email}, notifier.emails)
	require.Equal(t, 1, repo.replaced)

	// Only the digest is stored.
	stored, err := repo.FindLive(context.Background(), user.ID, models.OTPPurposeLogin)
	require.NoError(t, err)
	require.NotEqual(t, notifier.lastCode, stored.CodeDigest)

	require.NoError(t, svc.Verify(context.Background(), user.ID, models.OTPPurposeLogin, notifier.lastCode))
}

func TestOTPVerifyIsSingleUse(t *testing.T) {
	svc, _, notifier, _ := newOTPTestService(t)
	user := testOTPUser()

	require.NoError(t, svc.Issue(context.Background(), user, models.OTPPurposeLogin))
	require.NoError(t, svc.Verify(context.Background(), user.ID, models.OTPPurposeLogin, notifier.lastCode))

	err := svc.Verify(context.Background(), user.ID, models.OTPPurposeLogin, notifier.lastCode)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidCode))
}

func TestOTPReissueSupersedesPrevious(t *testing.T) {
	svc, _, notifier, _ := newOTPTestService(t)
	user := testOTPUser()

	require.NoError(t, svc.Issue(context.Background(), user, models.OTPPurposeLogin))
	first := notifier.lastCode
	require.NoError(t, svc.Issue(context.Background(), user, models.OTPPurposeLogin))

	if first != notifier.lastCode {
		err := svc.Verify(context.Background(), user.ID, models.OTPPurposeLogin, first)
		require.True(t, appErrors.Is(err, appErrors.ErrInvalidCode))
	}
	require.NoError(t, svc.Verify(context.Background(), user.ID, models.OTPPurposeLogin, notifier.lastCode))
}

func TestOTPVerifyWrongCodeCountsAttempts(t *testing.T) {
	svc, repo, _, _ := newOTPTestService(t)
	user := testOTPUser()

	require.NoError(t, svc.Issue(context.Background(), user, models.OTPPurposeLogin))

	err := svc.Verify(context.Background(), user.ID, models.OTPPurposeLogin, "000000")
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidCode))

	stored, err := repo.FindLive(context.Background(), user.ID, models.OTPPurposeLogin)
	require.NoError(t, err)
	require.Equal(t, 1, stored.Attempts)
}

func TestOTPLockoutAfterMaxAttempts(t *testing.T) {
	svc, _, notifier, mr := newOTPTestService(t)
	user := testOTPUser()

	require.NoError(t, svc.Issue(context.Background(), user, models.OTPPurposeLogin))

	wrong := "000000"
	if notifier.lastCode == wrong {
		wrong = "000001"
	}

	// The exhausting attempt still reads as an invalid code.
	for i := 0; i < 3; i++ {
		err := svc.Verify(context.Background(), user.ID, models.OTPPurposeLogin, wrong)
		require.True(t, appErrors.Is(err, appErrors.ErrInvalidCode))
	}

	// Once locked, even the correct code fails fast.
	err := svc.Verify(context.Background(), user.ID, models.OTPPurposeLogin, notifier.lastCode)
	require.True(t, appErrors.Is(err, appErrors.ErrLocked))

	err = svc.Issue(context.Background(), user, models.OTPPurposeLogin)
	require.True(t, appErrors.Is(err, appErrors.ErrLocked))

	// The lock expires with its TTL.
	mr.FastForward(16 * time.Minute)
	require.NoError(t, svc.Issue(context.Background(), user, models.OTPPurposeLogin))
}

func TestOTPVerifyExpiredCode(t *testing.T) {
	svc, repo, notifier, _ := newOTPTestService(t)
	user := testOTPUser()

	require.NoError(t, svc.Issue(context.Background(), user, models.OTPPurposeLogin))
	for _, code := range repo.codes {
		code.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}

	err := svc.Verify(context.Background(), user.ID, models.OTPPurposeLogin, notifier.lastCode)
	require.True(t, appErrors.Is(err, appErrors.ErrExpired))
}

func TestOTPPurposesAreIsolated(t *testing.T) {
	svc, _, notifier, _ := newOTPTestService(t)
	user := testOTPUser()

	require.NoError(t, svc.Issue(context.Background(), user, models.OTPPurposeLogin))
	loginCode := notifier.lastCode

	err := svc.Verify(context.Background(), user.ID, models.OTPPurposeVerifyEmail, loginCode)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidCode))
}

package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/logger"
	"whatsapp-panel-server/pkg/utils"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

const (
	// TOTPPeriod is the RFC 6238 time step in seconds
	TOTPPeriod = 30

	// TOTPSkew is how many steps before and after the current one are accepted
	TOTPSkew = 1

	// RecoveryCodeCount is how many recovery codes an enrolment receives
	RecoveryCodeCount = 8

	recoveryCodeHalf = 5
)

var (
	// ErrInvalidTOTP indicates TOTP or recovery code validation failure
	ErrInvalidTOTP = errors.New("invalid TOTP code")

	// ErrTwoFactorNotSetup indicates the user has no (enabled) enrolment
	ErrTwoFactorNotSetup = errors.New("two-factor authentication is not set up")

	// ErrTwoFactorAlreadyEnabled indicates setup was requested on an active enrolment
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication is already enabled")
)

var totpOpts = totp.ValidateOpts{
	Period:    TOTPPeriod,
	Skew:      TOTPSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TwoFactorService manages TOTP enrolment and verification
type TwoFactorService struct {
	repo     db.TwoFactorRepository
	profiles db.ProfileRepository
	box      *utils.SecretBox
	issuer   string
	hashCost int
	now      func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(repo db.TwoFactorRepository, profiles db.ProfileRepository, box *utils.SecretBox, issuer string) *TwoFactorService {
	if issuer == "" {
		issuer = "WhatsApp Panel"
	}
	return &TwoFactorService{
		repo:     repo,
		profiles: profiles,
		box:      box,
		issuer:   issuer,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// Setup starts (or restarts) an enrolment and returns the secret once
func (s *TwoFactorService) Setup(ctx context.Context, userID string) (*models.TwoFactorSetupResponse, error) {
	existing, err := s.repo.Get(ctx, userID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to load enrolment: %w", err)
	}
	if existing != nil && existing.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	account := userID
	if p, err := s.profiles.GetByID(ctx, userID); err == nil && p.Email != "" {
		account = p.Email
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account,
		Period:      TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	sealed, err := s.box.Seal(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}

	if err := s.repo.Save(ctx, &models.TwoFactor{UserID: userID, Secret: sealed}); err != nil {
		return nil, err
	}

	logger.Info("2FA setup started",
		zap.String("user_id", userID),
		zap.String("event_type", "2fa_setup"),
	)

	return &models.TwoFactorSetupResponse{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// Enable confirms the enrolment with a first code and returns the plain
// recovery codes. They are never retrievable again.
func (s *TwoFactorService) Enable(ctx context.Context, userID, code string) ([]string, error) {
	tf, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tf.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	step, err := s.checkTOTP(tf, code)
	if err != nil {
		logger.Warn("Enable 2FA failed - invalid TOTP code",
			zap.String("user_id", userID),
			zap.String("event_type", "invalid_totp_code"),
		)
		return nil, err
	}

	plain, hashed, err := s.newRecoveryCodes()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tf.Enabled = true
	tf.EnabledAt = &now
	tf.LastUsedStep = step
	tf.RecoveryCodes = hashed
	if err := s.repo.Save(ctx, tf); err != nil {
		logger.Error("Failed to enable TOTP in database",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to enable TOTP: %w", err)
	}

	logger.Info("2FA enabled successfully",
		zap.String("user_id", userID),
		zap.String("event_type", "2fa_enabled"),
	)
	return plain, nil
}

// Verify checks a TOTP code, or consumes a recovery code
func (s *TwoFactorService) Verify(ctx context.Context, userID, code string) error {
	tf, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if !tf.Enabled {
		return ErrTwoFactorNotSetup
	}

	if err := s.accept(tf, code); err != nil {
		logger.Warn("2FA verification failed",
			zap.String("user_id", userID),
			zap.String("event_type", "failed_totp_validation"),
		)
		return err
	}

	if err := s.repo.Save(ctx, tf); err != nil {
		return fmt.Errorf("failed to record verification: %w", err)
	}
	return nil
}

// Disable removes the enrolment after checking a code
func (s *TwoFactorService) Disable(ctx context.Context, userID, code string) error {
	tf, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	if tf.Enabled {
		if err := s.accept(tf, code); err != nil {
			return err
		}
	} else if _, err := s.checkTOTP(tf, code); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		logger.Error("Failed to disable TOTP in database",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to disable TOTP: %w", err)
	}

	logger.Info("2FA disabled successfully",
		zap.String("user_id", userID),
		zap.String("event_type", "2fa_disabled"),
	)
	return nil
}

// Status reports the enrolment state without exposing secrets
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	tf, err := s.repo.Get(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return &models.TwoFactorStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.TwoFactorStatus{
		Enabled:                tf.Enabled,
		Pending:                !tf.Enabled,
		EnabledAt:              tf.EnabledAt,
		RecoveryCodesRemaining: len(tf.RecoveryCodes),
	}, nil
}

func (s *TwoFactorService) load(ctx context.Context, userID string) (*models.TwoFactor, error) {
	tf, err := s.repo.Get(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrTwoFactorNotSetup
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load enrolment: %w", err)
	}
	return tf, nil
}

// accept validates code against an enabled enrolment and updates tf in
// place: a TOTP code advances LastUsedStep, a recovery code is removed
func (s *TwoFactorService) accept(tf *models.TwoFactor, code string) error {
	code = normalizeCode(code)
	if len(code) == int(otp.DigitsSix) {
		step, err := s.checkTOTP(tf, code)
		if err != nil {
			return err
		}
		if step <= tf.LastUsedStep {
			return ErrInvalidTOTP
		}
		tf.LastUsedStep = step
		return nil
	}

	for i, hash := range tf.RecoveryCodes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			tf.RecoveryCodes = append(tf.RecoveryCodes[:i:i], tf.RecoveryCodes[i+1:]...)
			logger.Info("Recovery code used",
				zap.String("user_id", tf.UserID),
				zap.Int("remaining", len(tf.RecoveryCodes)),
				zap.String("event_type", "recovery_code_used"),
			)
			return nil
		}
	}
	return ErrInvalidTOTP
}

// checkTOTP returns the time step the code belongs to, searching the
// current step and TOTPSkew steps on either side
func (s *TwoFactorService) checkTOTP(tf *models.TwoFactor, code string) (int64, error) {
	code = normalizeCode(code)
	if len(code) != int(otp.DigitsSix) || !isNumericCode(code) {
		return 0, ErrInvalidTOTP
	}

	secret, err := s.box.Open(tf.Secret)
	if err != nil {
		return 0, fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}
	// seeds stored before a key was configured are sealed on the next save
	if s.box.Enabled() && !utils.IsSealed(tf.Secret) {
		if sealed, err := s.box.Seal(secret); err == nil {
			tf.Secret = sealed
		}
	}

	now := s.now()
	for offset := -TOTPSkew; offset <= TOTPSkew; offset++ {
		at := now.Add(time.Duration(offset*TOTPPeriod) * time.Second)
		expected, err := totp.GenerateCodeCustom(secret, at, totpOpts)
		if err != nil {
			return 0, fmt.Errorf("failed to compute TOTP code: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return at.Unix() / TOTPPeriod, nil
		}
	}
	return 0, ErrInvalidTOTP
}

func (s *TwoFactorService) newRecoveryCodes() ([]string, []string, error) {
	plain := make([]string, 0, RecoveryCodeCount)
	hashed := make([]string, 0, RecoveryCodeCount)
	for i := 0; i < RecoveryCodeCount; i++ {
		raw, err := utils.RandomCode(2 * recoveryCodeHalf)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(raw), s.hashCost)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash recovery code: %w", err)
		}
		plain = append(plain, raw[:recoveryCodeHalf]+"-"+raw[recoveryCodeHalf:])
		hashed = append(hashed, string(hash))
	}
	return plain, hashed, nil
}

// normalizeCode drops separators and spaces; recovery codes are
// case-insensitive and may be typed with or without their dash
func normalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer(" ", "", "-", "").Replace(code)
}

func isNumericCode(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

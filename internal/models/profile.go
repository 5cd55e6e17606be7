package models

import "time"

// Profile is the panel-side record of a Supabase Auth user.
// The ID is the auth user id (JWT "sub").
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateProfileRequest represents the request body for updating the current profile
type UpdateProfileRequest struct {
	FullName string `json:"full_name" binding:"required,max=120"`
}

// TwoFactor holds a user's TOTP enrolment
type TwoFactor struct {
	UserID string `json:"user_id"`
	// Secret is the TOTP seed, sealed when an encryption key is configured
	Secret        string     `json:"-"`
	Enabled       bool       `json:"enabled"`
	RecoveryCodes []string   `json:"-"` // bcrypt hashes; consumed codes are removed
	EnabledAt     *time.Time `json:"enabled_at,omitempty"`
	LastUsedStep  int64      `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TwoFactorCodeRequest carries a TOTP or recovery code
type TwoFactorCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// TwoFactorSetupResponse is returned once when enrolment starts
type TwoFactorSetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// TwoFactorStatus is the safe view of an enrolment
type TwoFactorStatus struct {
	Enabled                bool       `json:"enabled"`
	Pending                bool       `json:"pending"`
	EnabledAt              *time.Time `json:"enabled_at,omitempty"`
	RecoveryCodesRemaining int        `json:"recovery_codes_remaining"`
}

package service

import "time"

type SetupResult struct {
	Secret        string
	OTPAuthURL    string
	QRCodeDataURL string
}

type RecoveryCodesResult struct {
	Codes       []string
	Regenerated bool
	Message     string
}

type ChallengeFactor string

const (
	FactorTOTP         ChallengeFactor = "totp"
	FactorRecoveryCode ChallengeFactor = "recovery_code"
)

type ChallengeResult struct {
	UserID                 string
	Factor                 ChallengeFactor
	RecoveryCodesRemaining int64
}

type Status struct {
	Method                 string
	IsEnabled              bool
	Pending                bool
	EnabledAt              *time.Time
	RecoveryCodesRemaining int64
}

type NotificationEvent string

const (
	NotifyMFADisabled              NotificationEvent = "mfa_disabled"
	NotifyRecoveryCodesRegenerated NotificationEvent = "recovery_codes_regenerated"
)

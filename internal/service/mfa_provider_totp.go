package service

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	defaultIssuer     = "MFA Guard"
	defaultSecretSize = 20
	qrCodeSize        = 200
)

// TOTPProvider implements RFC 6238 with the authenticator-app defaults:
// SHA1, six digits, 30 second steps, one step of skew either side.
type TOTPProvider struct {
	Issuer     string
	Period     uint
	Skew       uint
	Digits     otp.Digits
	Algorithm  otp.Algorithm
	SecretSize uint
}

func NewTOTPProvider(issuer string) *TOTPProvider {
	return &TOTPProvider{
		Issuer:     issuer,
		Period:     30,
		Skew:       1,
		Digits:     otp.DigitsSix,
		Algorithm:  otp.AlgorithmSHA1,
		SecretSize: defaultSecretSize,
	}
}

func (p *TOTPProvider) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      fallbackIssuer(p.Issuer),
		AccountName: "pending",
		Period:      p.period(),
		SecretSize:  p.secretSize(),
		Digits:      p.digits(),
		Algorithm:   p.algorithm(),
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

func (p *TOTPProvider) BuildURI(secret string, issuer string, accountLabel string) string {
	finalIssuer := issuer
	if strings.TrimSpace(finalIssuer) == "" {
		finalIssuer = fallbackIssuer(p.Issuer)
	}
	label := url.PathEscape(finalIssuer + ":" + accountLabel)
	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", finalIssuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", strconv.Itoa(p.digits().Length()))
	query.Set("period", strconv.FormatUint(uint64(p.period()), 10))
	return "otpauth://totp/" + label + "?" + query.Encode()
}

// QRCodeDataURL renders the otpauth URI as a PNG data URL.
func (p *TOTPProvider) QRCodeDataURL(uri string) (string, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return "", err
	}
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", err
	}
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buffer.Bytes()), nil
}

// ValidateCode never errors: anything malformed is simply not a match.
func (p *TOTPProvider) ValidateCode(secret string, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != p.digits().Length() || !isDigits(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at, p.validateOpts())
	return err == nil && ok
}

func (p *TOTPProvider) CodeAt(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, p.validateOpts())
}

func (p *TOTPProvider) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    p.period(),
		Skew:      p.skew(),
		Digits:    p.digits(),
		Algorithm: p.algorithm(),
	}
}

func (p *TOTPProvider) period() uint {
	if p.Period == 0 {
		return 30
	}
	return p.Period
}

func (p *TOTPProvider) skew() uint {
	if p.Skew == 0 {
		return 1
	}
	return p.Skew
}

func (p *TOTPProvider) digits() otp.Digits {
	if p.Digits == 0 {
		return otp.DigitsSix
	}
	return p.Digits
}

func (p *TOTPProvider) algorithm() otp.Algorithm {
	if p.Algorithm == 0 {
		return otp.AlgorithmSHA1
	}
	return p.Algorithm
}

func (p *TOTPProvider) secretSize() uint {
	if p.SecretSize < defaultSecretSize {
		return defaultSecretSize
	}
	return p.SecretSize
}

func fallbackIssuer(issuer string) string {
	if strings.TrimSpace(issuer) == "" {
		return defaultIssuer
	}
	return issuer
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

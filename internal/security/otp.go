package security

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	otpIssuer = "GroupBuy"
	// OTPPeriod is how long a verification code stays current.
	OTPPeriod = 10 * time.Minute
)

func otpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(OTPPeriod / time.Second),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// NewOTPSecret generates a per-user secret for verification codes.
func NewOTPSecret(account string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      otpIssuer,
		AccountName: account,
		Period:      uint(OTPPeriod / time.Second),
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("security: generate otp secret: %w", err)
	}
	return key.Secret(), nil
}

// OTPCode returns the six digit code for secret at t.
func OTPCode(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, otpOpts())
	if err != nil {
		return "", fmt.Errorf("security: generate otp code: %w", err)
	}
	return code, nil
}

// ValidateOTP reports whether code is current for secret at t.
func ValidateOTP(code, secret string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, t, otpOpts())
	return err == nil && ok
}

package auth

import (
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/moneymonitor/internal/model"
)

const (
	// MinPasswordLength はパスワードの最小文字数。
	MinPasswordLength = 8
	// maxPasswordBytes はbcryptが扱える最大バイト数。
	maxPasswordBytes = 72
	maxEmailLength   = 254
)

// dummyHash は存在しないユーザーのサインイン時に比較するハッシュ。
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("money-monitor-dummy-password"), bcrypt.DefaultCost)

// NormalizeEmail はメールアドレスを小文字化・トリムし、形式を検証する。
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > maxEmailLength {
		return "", model.NewInvalidEmailError()
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewInvalidEmailError()
	}
	return email, nil
}

// ValidatePassword はパスワードの長さを検証する。
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return model.NewWeakPasswordError(MinPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return model.NewInvalidRequestError("password must be at most 72 bytes")
	}
	return nil
}

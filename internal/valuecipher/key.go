package valuecipher

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	// keySalt は鍵導出の固定ソルト。
	// 変更すると既存の暗号文がすべて復号できなくなるため、値を維持すること。
	keySalt = "money-monitor-salt"

	// DevelopmentPassphrase はENCRYPTION_KEY未設定時に開発環境でのみ使う既定値。
	DevelopmentPassphrase = "dev-encryption-key-change-in-production"

	scryptN   = 16384
	scryptR   = 8
	scryptP   = 1
	keyLength = 32
)

// ErrMissingSecret は本番環境で暗号化キーが設定されていない場合のエラー。
var ErrMissingSecret = errors.New("ENCRYPTION_KEY must be set in production")

var (
	keyCacheMu sync.Mutex
	keyCache   = map[string][]byte{}
)

// ResolvePassphrase は暗号化パスフレーズを決定する。
// 本番環境で未設定の場合はErrMissingSecretを返し、
// それ以外では警告ログを出して開発用の既定値を返す。
func ResolvePassphrase(secret string, production bool) (string, error) {
	if secret != "" {
		return secret, nil
	}
	if production {
		return "", ErrMissingSecret
	}
	slog.Warn("ENCRYPTION_KEY is not set, using the development default key")
	return DevelopmentPassphrase, nil
}

// deriveKey はscryptでパスフレーズから32バイト鍵を導出する。
// scryptは低速なため、結果をパスフレーズ単位でプロセス内にキャッシュする。
func deriveKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is empty")
	}

	keyCacheMu.Lock()
	defer keyCacheMu.Unlock()

	if key, ok := keyCache[passphrase]; ok {
		return key, nil
	}

	key, err := scrypt.Key([]byte(passphrase), []byte(keySalt), scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	keyCache[passphrase] = key

	return key, nil
}

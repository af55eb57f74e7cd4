// Package valuecipher は金額をDBのテキスト列に格納するための認証付き暗号化を提供する。
//
// 暗号文のワイヤ形式は hex(iv) ":" hex(authTag) ":" hex(ciphertext) で、
// AES-256-GCM（16バイトIV）と関連データ "investment-value" を使用する。
// 暗号化導入前に平文で保存された値は、復号失敗時に数値として読み直す。
package valuecipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

const (
	ivSize  = 16
	tagSize = 16

	// AssociatedData は暗号文を投資額の文脈に束縛する関連データ。
	AssociatedData = "investment-value"
)

var (
	// ErrMalformed は暗号文が3つの16進セグメントに分解できない場合のエラー。
	ErrMalformed = errors.New("malformed encrypted value")
	// ErrAuthentication は認証タグの検証に失敗した場合のエラー。
	ErrAuthentication = errors.New("encrypted value failed authentication")
	// ErrInvalidAmount は暗号化対象の金額が不正な場合のエラー。
	ErrInvalidAmount = errors.New("amount must be a finite non-negative number")
)

// Source は復号結果の由来を表す。
type Source int

const (
	// SourceDecrypted は暗号文を正常に復号したことを示す。
	SourceDecrypted Source = iota
	// SourceLegacyPlaintext は復号に失敗し、入力を平文の数値として解釈したことを示す。
	SourceLegacyPlaintext
)

// String はSourceの文字列表現を返す。
func (s Source) String() string {
	switch s {
	case SourceDecrypted:
		return "decrypted"
	case SourceLegacyPlaintext:
		return "legacy_plaintext"
	default:
		return "unknown"
	}
}

// Result は復号結果。
type Result struct {
	Value  float64
	Source Source
}

// Options はCipherの任意設定。
type Options struct {
	// Logger はフォールバック発生時の警告出力先。nilの場合はslog.Default()。
	Logger *slog.Logger
	// OnLegacyFallback は平文フォールバックが成功するたびに呼ばれる。メトリクス用。
	OnLegacyFallback func(cause error)
}

// Cipher は金額の暗号化・復号を行う。並行利用可能。
type Cipher struct {
	aead             cipher.AEAD
	logger           *slog.Logger
	onLegacyFallback func(cause error)
}

// New はパスフレーズから鍵を導出してCipherを生成する。
// 鍵導出はプロセス内でキャッシュされる。
func New(passphrase string, opts Options) (*Cipher, error) {
	key, err := deriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return newWithKey(key, opts)
}

func newWithKey(key []byte, opts Options) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Cipher{
		aead:             aead,
		logger:           logger,
		onLegacyFallback: opts.OnLegacyFallback,
	}, nil
}

// Encrypt は金額を暗号化してワイヤ形式の文字列を返す。
// 呼び出しごとに新しいIVを生成するため、同じ値でも毎回異なる暗号文になる。
func (c *Cipher) Encrypt(value float64) (string, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return "", ErrInvalidAmount
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	plaintext := []byte(strconv.FormatFloat(value, 'f', -1, 64))
	sealed := c.aead.Seal(nil, iv, plaintext, []byte(AssociatedData))

	// Sealの出力は ciphertext || tag
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt はワイヤ形式の文字列を復号する。
// 形式不正または認証失敗の場合は入力全体を平文の数値として解釈し、
// それも失敗した場合のみエラーを返す。
func (c *Cipher) Decrypt(encoded string) (Result, error) {
	value, err := c.open(encoded)
	if err == nil {
		return Result{Value: value, Source: SourceDecrypted}, nil
	}

	legacy, parseErr := parseAmount(encoded)
	if parseErr != nil {
		return Result{}, fmt.Errorf("failed to decrypt value: %w", errors.Join(err, parseErr))
	}

	c.logger.Warn("decryption failed, using legacy plaintext value",
		slog.String("cause", err.Error()),
	)
	if c.onLegacyFallback != nil {
		c.onLegacyFallback(err)
	}

	return Result{Value: legacy, Source: SourceLegacyPlaintext}, nil
}

// DecryptValue はDecryptの結果から金額のみを返す。
func (c *Cipher) DecryptValue(encoded string) (float64, error) {
	res, err := c.Decrypt(encoded)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

func (c *Cipher) open(encoded string) (float64, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return 0, fmt.Errorf("%w: bad iv", ErrMalformed)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return 0, fmt.Errorf("%w: bad auth tag", ErrMalformed)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return 0, fmt.Errorf("%w: bad ciphertext", ErrMalformed)
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, []byte(AssociatedData))
	if err != nil {
		return 0, ErrAuthentication
	}

	return parseAmount(string(plaintext))
}

// parseAmount は10進文字列を有限の数値として解釈する。
func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a decimal number: %w", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}

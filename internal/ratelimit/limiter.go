package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Config は固定ウィンドウの上限と長さ。
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultAuthConfig は認証エンドポイント向けの既定値（15分間に5回）を返す。
func DefaultAuthConfig() Config {
	return Config{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
	}
}

// Status はCheckの結果。
type Status struct {
	IsLimited bool
	Remaining int
	ResetTime time.Time
}

// Limiter は識別子ごとの試行回数を数え、上限到達を判定する。
type Limiter struct {
	store  RateLimitStore
	config Config
	now    func() time.Time
}

// Option はLimiterのオプション。
type Option func(*Limiter)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter は新しいLimiterを生成する。
func NewLimiter(store RateLimitStore, config Config, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config は設定値を返す。
func (l *Limiter) Config() Config {
	return l.config
}

// Check は識別子が上限に達しているかを返す。
// エントリが無いかウィンドウが終了している場合は、ストアを変更せず満額の残り回数を返す。
func (l *Limiter) Check(ctx context.Context, id string) (Status, error) {
	now := l.now()

	e, ok, err := l.store.Get(ctx, id)
	if err != nil {
		return Status{}, fmt.Errorf("get rate limit entry: %w", err)
	}

	// 新しいウィンドウはRecordのIncrementで原子的に開く。ここでは書き込まない
	if !ok || e.Expired(now) {
		return Status{Remaining: l.config.MaxAttempts, ResetTime: now.Add(l.config.Window)}, nil
	}

	remaining := l.config.MaxAttempts - e.Count
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		IsLimited: e.Count >= l.config.MaxAttempts,
		Remaining: remaining,
		ResetTime: e.ResetAt,
	}, nil
}

// Record は現在のウィンドウに試行を1回記録する。
func (l *Limiter) Record(ctx context.Context, id string) error {
	if _, err := l.store.Increment(ctx, id, l.config.Window, l.now()); err != nil {
		return fmt.Errorf("increment rate limit entry: %w", err)
	}
	return nil
}

// Reset は識別子のエントリを削除する。認証成功時に呼ぶ。
func (l *Limiter) Reset(ctx context.Context, id string) error {
	if err := l.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete rate limit entry: %w", err)
	}
	return nil
}

// Package ratelimit は識別子（クライアントIPなど）ごとの固定ウィンドウ試行回数制限を提供する。
//
// カウンタの保存先はRateLimitStoreで差し替えられる。既定のMemoryStoreはプロセス内でのみ
// 一貫しており、複数インスタンス間では共有されない。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Entry は1つの識別子に対するウィンドウ内の試行回数。
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Expired はnow時点でウィンドウが終了しているかを返す。
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ResetAt)
}

// RateLimitStore はカウンタの保存先。
// 外部のKVS（アトミックなインクリメントとTTLを持つもの）で実装できるようにする。
type RateLimitStore interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
	// Increment は現在のウィンドウのカウントを1増やす。
	// エントリが存在しないかウィンドウが終了している場合は now+window の新しいウィンドウを作る。
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Entry, error)
	Delete(ctx context.Context, key string) error
	// DeleteExpired はnow時点でウィンドウが終了した全エントリを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// DefaultSweepInterval はMemoryStoreが期限切れエントリを掃除する間隔。
const DefaultSweepInterval = 5 * time.Minute

// MemoryStore はプロセス内メモリのRateLimitStore実装。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore は新しいMemoryStoreを生成する。
// sweepIntervalが正の場合、バックグラウンドで期限切れエントリの掃除を開始する。
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]Entry),
		stopCh:  make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

// Stop は掃除のゴルーチンを停止する。複数回呼んでもよい。
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.Expired(now) {
		e = Entry{ResetAt: now.Add(window)}
	}
	e.Count++
	s.entries[key] = e
	return e, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len は保持しているエントリ数を返す。テスト用。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			_, _ = s.DeleteExpired(context.Background(), now)
		case <-s.stopCh:
			return
		}
	}
}

var _ RateLimitStore = (*MemoryStore)(nil)

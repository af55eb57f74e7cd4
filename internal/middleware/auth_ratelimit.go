package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hitoshi/moneymonitor/internal/metrics"
	"github.com/hitoshi/moneymonitor/internal/ratelimit"
)

// NewAuthRateLimitMiddleware はクライアントIPごとに認証試行回数を制限するミドルウェアを返す。
// 上限到達中は429を返す。後段のレスポンスが4xxなら試行として記録し、2xxならカウンタをリセットする。
// 保存先の障害時はリクエストを通す。
func NewAuthRateLimitMiddleware(limiter *ratelimit.Limiter, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := ClientIP(r)

			status, err := limiter.Check(ctx, key)
			if err != nil {
				slog.Error("auth rate limit check failed",
					slog.String("client_ip", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if status.IsLimited {
				collector.RecordRateLimited("auth")
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", key),
					slog.String("limit_type", "auth"),
					slog.Time("reset_time", status.ResetTime),
				)
				writeRateLimitResponse(w, time.Until(status.ResetTime))
				return
			}

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			switch {
			case rec.statusCode >= 200 && rec.statusCode < 300:
				err = limiter.Reset(ctx, key)
			case rec.statusCode >= 400 && rec.statusCode < 500:
				err = limiter.Record(ctx, key)
			}
			if err != nil {
				slog.Error("failed to update auth rate limit",
					slog.String("client_ip", key),
					slog.String("error", err.Error()),
				)
			}
		})
	}
}

// ClientIP はリクエスト元のIPを返す。
// X-Forwarded-For等の解釈はchiのRealIPミドルウェアに任せ、ここではRemoteAddrのみを見る。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// corsPreflightMaxAge はブラウザがプリフライト結果をキャッシュしてよい時間。
const corsPreflightMaxAge = 24 * time.Hour

var (
	corsAllowedMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	corsAllowedHeaders = []string{"Content-Type", CSRFHeaderName}
	// エクスポートのファイル名・429の待ち時間・相関IDをフロントエンドから読めるようにする
	corsExposedHeaders = []string{"Content-Disposition", "Retry-After", RequestIDHeader}
)

// corsHeaders は全レスポンスに付与するCORSヘッダーを組み立てる。
// Cookie認証と併用するため、Allow-Originはワイルドカードではなく単一オリジンを返す。
func corsHeaders(allowedOrigin string) http.Header {
	h := http.Header{}
	h.Set("Access-Control-Allow-Origin", strings.TrimRight(allowedOrigin, "/"))
	h.Set("Access-Control-Allow-Methods", strings.Join(corsAllowedMethods, ", "))
	h.Set("Access-Control-Allow-Headers", strings.Join(corsAllowedHeaders, ", "))
	h.Set("Access-Control-Expose-Headers", strings.Join(corsExposedHeaders, ", "))
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Max-Age", strconv.Itoa(int(corsPreflightMaxAge.Seconds())))
	return h
}

// NewCORSMiddleware はフロントエンドのオリジンからのCookie付きリクエストを許可する。
// OPTIONSは後続に渡さず204で終える。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	fixed := corsHeaders(allowedOrigin)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, values := range fixed {
				h[name] = append([]string(nil), values...)
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/moneymonitor/internal/model"
)

const (
	// CSRFCookieName はダブルサブミット用トークンのCookie名。
	// フロントエンドが値を読んでヘッダーに載せるため、HttpOnlyにはしない。
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName は状態を変えるリクエストでトークンを送り返すヘッダー名。
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenBytes = 32
	csrfTokenTTL   = 24 * time.Hour
)

var (
	errCSRFCookieMissing = errors.New("csrf cookie missing")
	errCSRFHeaderMissing = errors.New("csrf header missing")
	errCSRFMismatch      = errors.New("csrf token mismatch")
)

// CSRFConfig はトークンCookieの属性。セッションCookieと揃える。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

type csrfGuard struct {
	config CSRFConfig
}

// NewCSRFMiddleware はダブルサブミットCookie方式でCSRFを防ぐ。
// GET/HEAD/OPTIONSは素通しし、Cookieが無ければついでに発行する。
// それ以外はCookieとX-CSRF-Tokenヘッダーが一致しなければ403を返す。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	g := csrfGuard{config: config}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				if cookieToken(r) == "" {
					if _, err := g.issue(w); err != nil {
						slog.Error("failed to issue CSRF token", slog.String("error", err.Error()))
					}
				}
			default:
				if err := verifyCSRF(r); err != nil {
					slog.Warn("CSRF validation failed",
						slog.String("reason", err.Error()),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("request_id", RequestIDFromContext(r.Context())),
					)
					WriteAPIError(w, model.NewCSRFInvalidError())
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler はGET /api/csrf-tokenを処理する。
// 手持ちのCookieがあればその値を、無ければ新しく発行した値を {"token": ...} で返す。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	g := csrfGuard{config: config}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := cookieToken(r)
		if token == "" {
			var err error
			if token, err = g.issue(w); err != nil {
				slog.Error("failed to issue CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSONBody(w, http.StatusOK, struct {
			Token string `json:"token"`
		}{token})
	})
}

func cookieToken(r *http.Request) string {
	c, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func verifyCSRF(r *http.Request) error {
	fromCookie := cookieToken(r)
	if fromCookie == "" {
		return errCSRFCookieMissing
	}
	fromHeader := r.Header.Get(CSRFHeaderName)
	if fromHeader == "" {
		return errCSRFHeaderMissing
	}
	if subtle.ConstantTimeCompare([]byte(fromCookie), []byte(fromHeader)) != 1 {
		return errCSRFMismatch
	}
	return nil
}

// issue は新しいトークンを生成し、Set-Cookieに載せて返す。
func (g csrfGuard) issue(w http.ResponseWriter) (string, error) {
	raw := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   g.config.CookieDomain,
		MaxAge:   int(csrfTokenTTL.Seconds()),
		Secure:   g.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

package middleware

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func csrfRequest(method, cookie, header string) *http.Request {
	req := httptest.NewRequest(method, "/api/portfolios/p1/investments", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: cookie})
	}
	if header != "" {
		req.Header.Set(CSRFHeaderName, header)
	}
	return req
}

func TestCSRFMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantStatus int
	}{
		{"GET without token", http.MethodGet, "", "", http.StatusOK},
		{"HEAD without token", http.MethodHead, "", "", http.StatusOK},
		{"OPTIONS without token", http.MethodOptions, "", "", http.StatusOK},
		{"POST without cookie", http.MethodPost, "", "tok", http.StatusForbidden},
		{"POST without header", http.MethodPost, "tok", "", http.StatusForbidden},
		{"POST with mismatch", http.MethodPost, "tok", "other", http.StatusForbidden},
		{"POST with matching token", http.MethodPost, "tok", "tok", http.StatusOK},
		{"PUT with matching token", http.MethodPut, "tok", "tok", http.StatusOK},
		{"PATCH without token", http.MethodPatch, "", "", http.StatusForbidden},
		{"DELETE without token", http.MethodDelete, "", "", http.StatusForbidden},
		{"DELETE with matching token", http.MethodDelete, "tok", "tok", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			h := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
			}))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, csrfRequest(tt.method, tt.cookie, tt.header))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if reached != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler reached = %v", reached)
			}
			if tt.wantStatus == http.StatusForbidden {
				body := decodeErrorBody(t, w)
				if body.Code != "CSRF_TOKEN_INVALID" || body.Category != "auth" {
					t.Errorf("body = %+v", body)
				}
			}
		})
	}
}

func TestVerifyCSRF_Reasons(t *testing.T) {
	tests := []struct {
		cookie, header string
		want           error
	}{
		{"", "x", errCSRFCookieMissing},
		{"x", "", errCSRFHeaderMissing},
		{"x", "y", errCSRFMismatch},
		{"x", "x", nil},
	}
	for _, tt := range tests {
		if err := verifyCSRF(csrfRequest(http.MethodPost, tt.cookie, tt.header)); !errors.Is(err, tt.want) {
			t.Errorf("verifyCSRF(cookie=%q, header=%q) = %v, want %v", tt.cookie, tt.header, err, tt.want)
		}
	}
}

func TestCSRFMiddleware_SafeMethodIssuesCookieOnce(t *testing.T) {
	h := NewCSRFMiddleware(CSRFConfig{CookieSecure: true, CookieDomain: "money.example.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, csrfRequest(http.MethodGet, "", ""))

	c := findCookie(w, CSRFCookieName)
	if c == nil {
		t.Fatal("GET without a token must receive a csrf cookie")
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil || len(raw) != csrfTokenBytes {
		t.Errorf("token %q is not %d random bytes (err=%v)", c.Value, csrfTokenBytes, err)
	}
	if c.HttpOnly {
		t.Error("csrf cookie must be readable from JavaScript")
	}
	if !c.Secure || c.Domain != "money.example.com" || c.Path != "/" {
		t.Errorf("cookie attributes = secure:%v domain:%q path:%q", c.Secure, c.Domain, c.Path)
	}
	if c.SameSite != http.SameSiteLaxMode || c.MaxAge != 86400 {
		t.Errorf("SameSite = %v, MaxAge = %d", c.SameSite, c.MaxAge)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, csrfRequest(http.MethodGet, "already-there", ""))
	if findCookie(w, CSRFCookieName) != nil {
		t.Error("existing csrf cookie must not be replaced")
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	h := NewCSRFTokenHandler(CSRFConfig{})

	decodeToken := func(t *testing.T, w *httptest.ResponseRecorder) string {
		t.Helper()
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
			t.Errorf("Cache-Control = %q", cc)
		}
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body.Token
	}

	t.Run("issues new token", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		token := decodeToken(t, w)
		c := findCookie(w, CSRFCookieName)
		if token == "" || c == nil || c.Value != token {
			t.Errorf("token = %q, cookie = %v; they must match", token, c)
		}
	})

	t.Run("echoes existing cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "kept-token"})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if token := decodeToken(t, w); token != "kept-token" {
			t.Errorf("token = %q, want kept-token", token)
		}
		if findCookie(w, CSRFCookieName) != nil {
			t.Error("no new cookie expected")
		}
	})

	t.Run("issued token passes the middleware", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
		token := decodeToken(t, w)

		if err := verifyCSRF(csrfRequest(http.MethodPost, token, token)); err != nil {
			t.Errorf("verifyCSRF = %v", err)
		}
	})
}

package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", unreachableDatabaseURL)
	t.Setenv("BASE_URL", "http://localhost:8080")
	t.Setenv("DB_CONNECT_TIMEOUT", "2s")
	t.Setenv("LOG_LEVEL", "info")
}

// DBに接続できない環境では各モードが起動時にエラーを返す。
func TestRun_CommandsFailWithoutDatabase(t *testing.T) {
	for _, args := range [][]string{{"serve"}, {"worker"}, {"migrate"}, {}} {
		t.Run(strings.Join(append([]string{"cmd"}, args...), "_"), func(t *testing.T) {
			setTestEnv(t)

			var buf bytes.Buffer
			if err := Run(&buf, args); err == nil {
				t.Fatalf("Run(%v) should fail without a database", args)
			}
		})
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BASE_URL", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_Healthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			u, err := url.Parse(srv.URL)
			if err != nil {
				t.Fatalf("parse server URL: %v", err)
			}
			// healthcheckは設定を読み込まないため、必須環境変数がなくても動く
			t.Setenv("DATABASE_URL", "")
			t.Setenv("SERVER_PORT", u.Port())

			err = Run(&bytes.Buffer{}, []string{"healthcheck"})
			if (err != nil) != tt.wantErr {
				t.Errorf("Run(healthcheck) error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moneymonitor/internal/auth"
	"github.com/hitoshi/moneymonitor/internal/investment"
	"github.com/hitoshi/moneymonitor/internal/middleware"
	"github.com/hitoshi/moneymonitor/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	signupFn         func(ctx context.Context, in auth.SignupInput) (*model.User, *model.Session, error)
	signinFn         func(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	signoutFn        func(ctx context.Context, token string) error
	getCurrentUserFn func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockAuthService) Signup(ctx context.Context, in auth.SignupInput) (*model.User, *model.Session, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, in)
	}
	return nil, nil, nil
}

func (m *mockAuthService) Signin(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	if m.signinFn != nil {
		return m.signinFn(ctx, email, password)
	}
	return nil, nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Signout(ctx context.Context, token string) error {
	if m.signoutFn != nil {
		return m.signoutFn(ctx, token)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, token string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, token)
	}
	return nil, model.NewUnauthorizedError()
}

type mockPortfolioService struct {
	listFn   func(ctx context.Context, userID string) ([]*model.Portfolio, error)
	createFn func(ctx context.Context, userID, name string) (*model.Portfolio, error)
	renameFn func(ctx context.Context, userID, portfolioID, name string) (*model.Portfolio, error)
	deleteFn func(ctx context.Context, userID, portfolioID string) error
}

func (m *mockPortfolioService) List(ctx context.Context, userID string) ([]*model.Portfolio, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockPortfolioService) Create(ctx context.Context, userID, name string) (*model.Portfolio, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, name)
	}
	return &model.Portfolio{ID: "p-new", UserID: userID, Name: name}, nil
}

func (m *mockPortfolioService) Rename(ctx context.Context, userID, portfolioID, name string) (*model.Portfolio, error) {
	if m.renameFn != nil {
		return m.renameFn(ctx, userID, portfolioID, name)
	}
	return &model.Portfolio{ID: portfolioID, UserID: userID, Name: name}, nil
}

func (m *mockPortfolioService) Delete(ctx context.Context, userID, portfolioID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, portfolioID)
	}
	return nil
}

type mockInvestmentService struct {
	listFn     func(ctx context.Context, userID, portfolioID, from, to string) ([]*model.Investment, error)
	upsertFn   func(ctx context.Context, userID, portfolioID string, input model.InvestmentInput) (*model.Investment, error)
	deleteFn   func(ctx context.Context, userID, portfolioID, investmentID string) error
	clearAllFn func(ctx context.Context, userID, portfolioID string) (int64, error)
	importFn   func(ctx context.Context, userID, portfolioID, text string) (*investment.ImportResult, error)
	chartFn    func(ctx context.Context, userID, portfolioID string, q investment.SeriesQuery) (*investment.ChartResult, error)
	exportFn   func(ctx context.Context, userID, portfolioID string, q investment.SeriesQuery) (*investment.ExportResult, error)
}

func (m *mockInvestmentService) List(ctx context.Context, userID, portfolioID, from, to string) ([]*model.Investment, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, portfolioID, from, to)
	}
	return nil, nil
}

func (m *mockInvestmentService) Upsert(ctx context.Context, userID, portfolioID string, input model.InvestmentInput) (*model.Investment, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, userID, portfolioID, input)
	}
	return &model.Investment{ID: "inv-1", UserID: userID, PortfolioID: portfolioID, Date: input.Date, Value: input.Value}, nil
}

func (m *mockInvestmentService) Delete(ctx context.Context, userID, portfolioID, investmentID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, portfolioID, investmentID)
	}
	return nil
}

func (m *mockInvestmentService) ClearAll(ctx context.Context, userID, portfolioID string) (int64, error) {
	if m.clearAllFn != nil {
		return m.clearAllFn(ctx, userID, portfolioID)
	}
	return 0, nil
}

func (m *mockInvestmentService) Import(ctx context.Context, userID, portfolioID, text string) (*investment.ImportResult, error) {
	if m.importFn != nil {
		return m.importFn(ctx, userID, portfolioID, text)
	}
	return &investment.ImportResult{}, nil
}

func (m *mockInvestmentService) Chart(ctx context.Context, userID, portfolioID string, q investment.SeriesQuery) (*investment.ChartResult, error) {
	if m.chartFn != nil {
		return m.chartFn(ctx, userID, portfolioID, q)
	}
	return &investment.ChartResult{}, nil
}

func (m *mockInvestmentService) Export(ctx context.Context, userID, portfolioID string, q investment.SeriesQuery) (*investment.ExportResult, error) {
	if m.exportFn != nil {
		return m.exportFn(ctx, userID, portfolioID, q)
	}
	return &investment.ExportResult{Filename: "x.csv"}, nil
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

type recordingMetrics struct {
	mu           sync.Mutex
	authFailures int
	rateLimited  []string
	requests     int
}

func (m *recordingMetrics) RecordHTTPRequest(string, int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
}

func (m *recordingMetrics) RecordAuthFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailures++
}

func (m *recordingMetrics) RecordRateLimited(limiter string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited = append(m.rateLimited, limiter)
}

func (m *recordingMetrics) RecordInvestmentsImported(int) {}
func (m *recordingMetrics) RecordCipherLegacyFallback()   {}

// --- ヘルパー ---

// withUserID はテスト用にコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeErrorCode はエラーレスポンスのcodeを取り出す。
func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v\nraw: %s", err, w.Body.String())
	}
	return body.Code
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

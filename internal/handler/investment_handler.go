package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moneymonitor/internal/investment"
	"github.com/hitoshi/moneymonitor/internal/model"
)

// DefaultImportMaxBytes はCSVアップロードサイズの既定上限（5MB）。
const DefaultImportMaxBytes int64 = 5 << 20

// multipartOverhead はmultipartの境界やヘッダー分としてファイル上限に上乗せする余裕。
const multipartOverhead int64 = 64 << 10

// InvestmentServiceInterface は投資記録ハンドラーが必要とするサービスインターフェース。
type InvestmentServiceInterface interface {
	List(ctx context.Context, userID, portfolioID, from, to string) ([]*model.Investment, error)
	Upsert(ctx context.Context, userID, portfolioID string, input model.InvestmentInput) (*model.Investment, error)
	Delete(ctx context.Context, userID, portfolioID, investmentID string) error
	ClearAll(ctx context.Context, userID, portfolioID string) (int64, error)
	Import(ctx context.Context, userID, portfolioID, text string) (*investment.ImportResult, error)
	Chart(ctx context.Context, userID, portfolioID string, q investment.SeriesQuery) (*investment.ChartResult, error)
	Export(ctx context.Context, userID, portfolioID string, q investment.SeriesQuery) (*investment.ExportResult, error)
}

// InvestmentHandler は投資記録のHTTPハンドラー。
type InvestmentHandler struct {
	service        InvestmentServiceInterface
	importMaxBytes int64
}

// NewInvestmentHandler はInvestmentHandlerを生成する。importMaxBytesが0以下なら既定値を使う。
func NewInvestmentHandler(service InvestmentServiceInterface, importMaxBytes int64) *InvestmentHandler {
	if importMaxBytes <= 0 {
		importMaxBytes = DefaultImportMaxBytes
	}
	return &InvestmentHandler{
		service:        service,
		importMaxBytes: importMaxBytes,
	}
}

type upsertInvestmentRequest struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// investmentResponse は投資記録のAPIレスポンス。valueは復号済みの金額。
type investmentResponse struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolioId"`
	Date        string    `json:"date"`
	Value       float64   `json:"value"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toInvestmentResponse(inv *model.Investment) investmentResponse {
	return investmentResponse{
		ID:          inv.ID,
		PortfolioID: inv.PortfolioID,
		Date:        inv.Date,
		Value:       inv.Value,
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
	}
}

type importErrorResponse struct {
	Errors []string `json:"errors"`
}

// List はポートフォリオの投資記録を日付昇順で返す。
// GET /api/portfolios/{id}/investments?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *InvestmentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	investments, err := h.service.List(r.Context(), userID, chi.URLParam(r, "id"), q.Get("from"), q.Get("to"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]investmentResponse, len(investments))
	for i, inv := range investments {
		resp[i] = toInvestmentResponse(inv)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Upsert は指定日の評価額を登録する。同じ日付の記録があれば置き換える。
// PUT /api/portfolios/{id}/investments
func (h *InvestmentHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req upsertInvestmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("value is required"))
		return
	}

	inv, err := h.service.Upsert(r.Context(), userID, chi.URLParam(r, "id"), model.InvestmentInput{
		Date:  req.Date,
		Value: *req.Value,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toInvestmentResponse(inv))
}

// Delete は投資記録を1件削除する。
// DELETE /api/portfolios/{id}/investments/{investmentID}
func (h *InvestmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "investmentID"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearAll はポートフォリオの投資記録を全件削除する。
// DELETE /api/portfolios/{id}/investments
func (h *InvestmentHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	n, err := h.service.ClearAll(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deletedCount": n})
}

// Chart は集計済みの系列と統計値を返す。
// GET /api/portfolios/{id}/chart?period=weekly&filter=12w
func (h *InvestmentHandler) Chart(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Chart(r.Context(), userID, chi.URLParam(r, "id"), seriesQueryFrom(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Export は集計済みの系列をCSVファイルとして返す。
// GET /api/portfolios/{id}/export?period=monthly&filter=all
func (h *InvestmentHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Export(r.Context(), userID, chi.URLParam(r, "id"), seriesQueryFrom(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": result.Filename,
	}))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, result.Content)
}

// Import はmultipartの`file`フィールドで受け取ったCSVを取り込む。
// POST /api/portfolios/{id}/import
func (h *InvestmentHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	text, apiErr, status := h.readUpload(w, r)
	if apiErr != nil {
		writeAPIErrorResponse(w, status, apiErr)
		return
	}

	result, err := h.service.Import(r.Context(), userID, chi.URLParam(r, "id"), text)
	if err != nil {
		var importErr *investment.ImportError
		if errors.As(err, &importErr) {
			writeJSON(w, http.StatusBadRequest, importErrorResponse{Errors: importErr.Errors})
			return
		}
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// readUpload はアップロードされたCSVの本文を読み取る。
// 失敗時はAPIErrorとステータスコードを返す。
func (h *InvestmentHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, *model.APIError, int) {
	r.Body = http.MaxBytesReader(w, r.Body, h.importMaxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.importMaxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", model.NewFileTooLargeError(h.importMaxBytes), http.StatusRequestEntityTooLarge
		}
		return "", model.NewInvalidFileError("Expected multipart form data with a file field"), http.StatusBadRequest
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", model.NewInvalidFileError("No file uploaded"), http.StatusBadRequest
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		return "", model.NewInvalidFileError("File must be a CSV (.csv)"), http.StatusBadRequest
	}
	if header.Size > h.importMaxBytes {
		return "", model.NewFileTooLargeError(h.importMaxBytes), http.StatusRequestEntityTooLarge
	}

	b, err := io.ReadAll(io.LimitReader(file, h.importMaxBytes+1))
	if err != nil {
		return "", model.NewInvalidFileError(fmt.Sprintf("Failed to read file: %v", err)), http.StatusBadRequest
	}
	if int64(len(b)) > h.importMaxBytes {
		return "", model.NewFileTooLargeError(h.importMaxBytes), http.StatusRequestEntityTooLarge
	}
	return string(b), nil, 0
}

func seriesQueryFrom(r *http.Request) investment.SeriesQuery {
	q := r.URL.Query()
	return investment.SeriesQuery{
		Period: q.Get("period"),
		Filter: q.Get("filter"),
	}
}

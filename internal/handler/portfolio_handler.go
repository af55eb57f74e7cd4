package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moneymonitor/internal/model"
)

// PortfolioServiceInterface はポートフォリオハンドラーが必要とするサービスインターフェース。
type PortfolioServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Portfolio, error)
	Create(ctx context.Context, userID, name string) (*model.Portfolio, error)
	Rename(ctx context.Context, userID, portfolioID, name string) (*model.Portfolio, error)
	// Delete は最後の1件や投資記録が残るポートフォリオの削除を拒否する。
	Delete(ctx context.Context, userID, portfolioID string) error
}

// PortfolioHandler はポートフォリオ管理のHTTPハンドラー。
type PortfolioHandler struct {
	service PortfolioServiceInterface
}

// NewPortfolioHandler はPortfolioHandlerを生成する。
func NewPortfolioHandler(service PortfolioServiceInterface) *PortfolioHandler {
	return &PortfolioHandler{service: service}
}

type portfolioRequest struct {
	Name string `json:"name"`
}

// portfolioResponse はポートフォリオのAPIレスポンス。
type portfolioResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toPortfolioResponse(p *model.Portfolio) portfolioResponse {
	return portfolioResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// List はユーザーのポートフォリオ一覧を返す。
// GET /api/portfolios
func (h *PortfolioHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	portfolios, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]portfolioResponse, len(portfolios))
	for i, p := range portfolios {
		resp[i] = toPortfolioResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はポートフォリオを作成する。
// POST /api/portfolios
func (h *PortfolioHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req portfolioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Create(r.Context(), userID, req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPortfolioResponse(p))
}

// Rename はポートフォリオ名を変更する。
// PATCH /api/portfolios/{id}
func (h *PortfolioHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req portfolioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Rename(r.Context(), userID, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPortfolioResponse(p))
}

// Delete はポートフォリオを削除する。
// DELETE /api/portfolios/{id}
func (h *PortfolioHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

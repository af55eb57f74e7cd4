package handler

import (
	"context"
	"net/http"
)

// UserServiceInterface はアカウント操作のサービス。
type UserServiceInterface interface {
	// Withdraw はアカウントと、それに属するポートフォリオ・投資記録を全て消す。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler は /api/users 配下を扱う。
type UserHandler struct {
	service        UserServiceInterface
	expireSessions func(http.ResponseWriter)
}

// NewUserHandler はUserHandlerを生成する。
// authが与えられた場合、退会成功時にブラウザのセッションCookieも失効させる。
func NewUserHandler(service UserServiceInterface, auth *AuthHandler) *UserHandler {
	h := &UserHandler{service: service, expireSessions: func(http.ResponseWriter) {}}
	if auth != nil {
		h.expireSessions = auth.clearSessionCookie
	}
	return h
}

// Withdraw は DELETE /api/users/me。成功時は204で本文なし。
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.expireSessions(w)
	w.WriteHeader(http.StatusNoContent)
}

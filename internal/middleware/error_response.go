package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moneymonitor/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスのJSON表現。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// statusByCode はエラーコードごとのHTTPステータス。未登録のコードは500として扱う。
var statusByCode = map[string]int{
	model.ErrCodeInvalidRequest:       http.StatusBadRequest,
	model.ErrCodeInvalidEmail:         http.StatusBadRequest,
	model.ErrCodeWeakPassword:         http.StatusBadRequest,
	model.ErrCodeInvalidPortfolioName: http.StatusBadRequest,
	model.ErrCodeInvalidDate:          http.StatusBadRequest,
	model.ErrCodeInvalidValue:         http.StatusBadRequest,
	model.ErrCodeInvalidPeriod:        http.StatusBadRequest,
	model.ErrCodeInvalidFilter:        http.StatusBadRequest,
	model.ErrCodeInvalidFile:          http.StatusBadRequest,

	model.ErrCodeUnauthorized:       http.StatusUnauthorized,
	model.ErrCodeInvalidCredentials: http.StatusUnauthorized,
	model.ErrCodeCSRFInvalid:        http.StatusForbidden,

	model.ErrCodeUserNotFound:       http.StatusNotFound,
	model.ErrCodePortfolioNotFound:  http.StatusNotFound,
	model.ErrCodeInvestmentNotFound: http.StatusNotFound,

	model.ErrCodeEmailTaken:              http.StatusConflict,
	model.ErrCodeDuplicatePortfolio:      http.StatusConflict,
	model.ErrCodeLastPortfolio:           http.StatusConflict,
	model.ErrCodePortfolioHasInvestments: http.StatusConflict,

	model.ErrCodeFileTooLarge: http.StatusRequestEntityTooLarge,
	model.ErrCodeRateLimited:  http.StatusTooManyRequests,
}

// StatusFor はAPIErrorに対応するHTTPステータスを返す。
func StatusFor(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteAPIError はエラーコードから決まるステータスでapiErrを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusFor(apiErr), apiErr)
}

// WriteErrorResponse はstatusCodeを明示してapiErrを書き込む。
// アップロード上限超過のように、コードとステータスの対応を呼び出し側が決める場合に使う。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSONBody(w, statusCode, ErrorResponseBody(*apiErr))
}

func writeJSONBody(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response body", slog.String("error", err.Error()))
	}
}

// internalError は内部エラーを利用者向けの一般的な文言に置き換えたもの。
var internalError = model.APIError{
	Code:     model.ErrCodeInternal,
	Message:  "An internal error occurred.",
	Category: "system",
	Action:   "Please wait a moment and try again.",
}

// WriteInternalServerError は詳細を伏せた500レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	apiErr := internalError
	WriteErrorResponse(w, http.StatusInternalServerError, &apiErr)
}

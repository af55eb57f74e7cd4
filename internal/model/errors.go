package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, portfolio, investment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken              = "EMAIL_TAKEN"
	ErrCodeInvalidEmail            = "INVALID_EMAIL"
	ErrCodeWeakPassword            = "WEAK_PASSWORD"
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodeRateLimited             = "RATE_LIMITED"
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
	ErrCodePortfolioNotFound       = "PORTFOLIO_NOT_FOUND"
	ErrCodeInvalidPortfolioName    = "INVALID_PORTFOLIO_NAME"
	ErrCodeDuplicatePortfolio      = "DUPLICATE_PORTFOLIO"
	ErrCodeLastPortfolio           = "LAST_PORTFOLIO"
	ErrCodePortfolioHasInvestments = "PORTFOLIO_HAS_INVESTMENTS"
	ErrCodeInvestmentNotFound      = "INVESTMENT_NOT_FOUND"
	ErrCodeInvalidDate             = "INVALID_DATE"
	ErrCodeInvalidValue            = "INVALID_VALUE"
	ErrCodeInvalidPeriod           = "INVALID_PERIOD"
	ErrCodeInvalidFilter           = "INVALID_FILTER"
	ErrCodeInvalidFile             = "INVALID_FILE"
	ErrCodeFileTooLarge            = "FILE_TOO_LARGE"
	ErrCodeCSRFInvalid             = "CSRF_TOKEN_INVALID"
	ErrCodeInternal                = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Please sign in.",
	}
}

// NewInvalidCredentialsError はサインイン失敗エラーを生成する。
// メールアドレスの存在有無を漏らさないよう、常に同じ文言を返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "An account with this email already exists.",
		Category: "auth",
		Action:   "Sign in instead, or use a different email address.",
	}
}

// NewInvalidEmailError は不正なメールアドレスのエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "Invalid email address.",
		Category: "validation",
		Action:   "Enter a valid email address.",
	}
}

// NewWeakPasswordError はパスワード長不足のエラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("Password must be at least %d characters.", minLength),
		Category: "validation",
		Action:   "Choose a longer password.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Please sign in again.",
	}
}

// NewRateLimitedError は認証試行回数超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many attempts. Please try again later.",
		Category: "auth",
		Action:   "Wait until the limit resets and try again.",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Fix the request and try again.",
	}
}

// NewPortfolioNotFoundError はポートフォリオ未検出エラーを生成する。
func NewPortfolioNotFoundError(portfolioID string) *APIError {
	return &APIError{
		Code:     ErrCodePortfolioNotFound,
		Message:  fmt.Sprintf("Portfolio not found: %s", portfolioID),
		Category: "portfolio",
		Action:   "Check the portfolio ID.",
	}
}

// NewInvalidPortfolioNameError はポートフォリオ名不正エラーを生成する。
func NewInvalidPortfolioNameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPortfolioName,
		Message:  fmt.Sprintf("Invalid portfolio name: %s", reason),
		Category: "validation",
		Action:   "Enter a name between 1 and 100 characters.",
	}
}

// NewDuplicatePortfolioError は同名ポートフォリオ重複エラーを生成する。
func NewDuplicatePortfolioError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicatePortfolio,
		Message:  fmt.Sprintf("A portfolio named %q already exists.", name),
		Category: "portfolio",
		Action:   "Choose a different name.",
	}
}

// NewLastPortfolioError は最後のポートフォリオを削除しようとした場合のエラーを生成する。
func NewLastPortfolioError() *APIError {
	return &APIError{
		Code:     ErrCodeLastPortfolio,
		Message:  "Cannot delete your last portfolio.",
		Category: "portfolio",
		Action:   "Create another portfolio before deleting this one.",
	}
}

// NewPortfolioHasInvestmentsError は記録が残っているポートフォリオを削除しようとした場合のエラーを生成する。
func NewPortfolioHasInvestmentsError(count int) *APIError {
	return &APIError{
		Code:     ErrCodePortfolioHasInvestments,
		Message:  fmt.Sprintf("Cannot delete a portfolio with investments (%d entries).", count),
		Category: "portfolio",
		Action:   "Clear all entries of this portfolio first.",
	}
}

// NewInvestmentNotFoundError は記録未検出エラーを生成する。
func NewInvestmentNotFoundError(investmentID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvestmentNotFound,
		Message:  fmt.Sprintf("Investment entry not found: %s", investmentID),
		Category: "investment",
		Action:   "Check the entry ID.",
	}
}

// NewInvalidDateError は日付形式不正エラーを生成する。
func NewInvalidDateError(date string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("Invalid date %q. Use YYYY-MM-DD format", date),
		Category: "validation",
		Action:   "Enter a real calendar date in YYYY-MM-DD format.",
	}
}

// NewInvalidValueError は金額不正エラーを生成する。
func NewInvalidValueError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidValue,
		Message:  fmt.Sprintf("Invalid value %q. Must be a positive number", value),
		Category: "validation",
		Action:   "Enter a non-negative number.",
	}
}

// NewInvalidPeriodError は集計期間指定不正エラーを生成する。
func NewInvalidPeriodError(period string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPeriod,
		Message:  fmt.Sprintf("Invalid period: %s", period),
		Category: "validation",
		Action:   "Use one of daily, weekly or monthly.",
	}
}

// NewInvalidFilterError は期間フィルタ指定不正エラーを生成する。
func NewInvalidFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("Invalid filter: %s", filter),
		Category: "validation",
		Action:   "Use all, or a number followed by d, w or m (e.g. 30d).",
	}
}

// NewInvalidFileError はアップロードファイル不正エラーを生成する。
func NewInvalidFileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFile,
		Message:  reason,
		Category: "validation",
		Action:   "Upload a .csv file with Date,Value columns.",
	}
}

// NewFileTooLargeError はアップロードサイズ超過エラーを生成する。
func NewFileTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  fmt.Sprintf("File is too large. Maximum size is %d bytes.", maxBytes),
		Category: "validation",
		Action:   "Split the file and upload the parts separately.",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/moneymonitor/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithPortfolio はユーザーと初期ポートフォリオを同一トランザクションで作成する。
	CreateWithPortfolio(ctx context.Context, user *model.User, portfolio *model.Portfolio) error

	// DeleteByID は指定IDのユーザーを削除する。
	// sessions、portfolios、investmentsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByToken はトークンでセッションを取得する。期限切れの場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)
	// ExtendExpiry はセッションの有効期限を延長する。
	ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByToken はトークンに対応するセッションを削除する。
	DeleteByToken(ctx context.Context, token string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// PortfolioRepository はポートフォリオの永続化インターフェース。
type PortfolioRepository interface {
	// Create はポートフォリオを作成する。同名が存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, portfolio *model.Portfolio) error

	// FindByID は指定IDのポートフォリオを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Portfolio, error)

	// FindByUserAndName はユーザーIDと名前で検索する。見つからない場合はnilを返す。
	FindByUserAndName(ctx context.Context, userID, name string) (*model.Portfolio, error)

	// ListByUserID はユーザーのポートフォリオを作成日時順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Portfolio, error)

	// CountByUserID はユーザーのポートフォリオ数を返す。
	CountByUserID(ctx context.Context, userID string) (int, error)

	// Rename はポートフォリオ名を変更する。
	// 見つからない場合はErrNotFound、同名が存在する場合はErrDuplicateを返す。
	Rename(ctx context.Context, id, name string) error

	// Delete はユーザーのポートフォリオを削除する。
	// ユーザーの最後のポートフォリオの場合はErrLastPortfolio、
	// 投資記録が残っている場合は*PortfolioInUseErrorを返す。
	// 判定と削除は行ロックを取った同一トランザクション内で行う。
	Delete(ctx context.Context, userID, id string) error
}

// InvestmentRepository は投資記録の永続化インターフェース。
// 金額は保存時に暗号化し、読み出し時に復号する。
type InvestmentRepository interface {
	// ListByPortfolio はポートフォリオの投資記録を日付昇順で返す。
	// from、toが空でない場合はその日付範囲（両端含む）に絞り込む。
	ListByPortfolio(ctx context.Context, portfolioID, from, to string) ([]*model.Investment, error)

	// FindByID は指定IDの投資記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Investment, error)

	// Upsert は (portfolio, date) の投資記録を作成または上書きする。
	Upsert(ctx context.Context, userID, portfolioID string, input model.InvestmentInput) (*model.Investment, error)

	// BulkUpsert は複数の投資記録を単一トランザクションでUPSERTし、件数を返す。
	// 途中でエラーが発生した場合は全件ロールバックする。
	BulkUpsert(ctx context.Context, userID, portfolioID string, inputs []model.InvestmentInput) (int, error)

	// DeleteByID は指定IDの投資記録を削除する。見つからない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByPortfolio はポートフォリオの全投資記録を削除し、削除件数を返す。
	DeleteByPortfolio(ctx context.Context, portfolioID string) (int64, error)

	// CountByPortfolio はポートフォリオの投資記録数を返す。
	CountByPortfolio(ctx context.Context, portfolioID string) (int, error)
}

// ValueCipher は投資金額の暗号化・復号を行う。
type ValueCipher interface {
	Encrypt(value float64) (string, error)
	DecryptValue(encoded string) (float64, error)
}

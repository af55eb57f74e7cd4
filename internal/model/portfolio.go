package model

import "time"

// DefaultPortfolioName はサインアップ時に自動作成されるポートフォリオ名。
const DefaultPortfolioName = "Default"

// Portfolio はユーザーが持つ名前付きの資産スナップショット集合を表す。
// 名前はユーザー内で一意。
type Portfolio struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

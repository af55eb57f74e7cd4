package model

import "time"

// DateLayout は日付の文字列表現（ISO 8601 カレンダー日付）。
const DateLayout = "2006-01-02"

// Investment はある日付におけるポートフォリオ評価額のスナップショット。
// Valueは復号済みの金額で、永続化時は暗号文になる。
// (PortfolioID, Date) は一意。
type Investment struct {
	ID          string
	UserID      string
	PortfolioID string
	Date        string // YYYY-MM-DD
	Value       float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InvestmentInput はUPSERT対象の (date, value) の組。
type InvestmentInput struct {
	Date  string
	Value float64
}

package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound は更新・削除対象が存在しない場合のエラー。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate は一意制約違反のエラー。
	ErrDuplicate = errors.New("duplicate record")
	// ErrLastPortfolio はユーザーの最後のポートフォリオを削除しようとした場合のエラー。
	ErrLastPortfolio = errors.New("cannot delete the last portfolio")
)

// PortfolioInUseError は投資記録が残っているポートフォリオを削除しようとした場合のエラー。
type PortfolioInUseError struct {
	Investments int
}

func (e *PortfolioInUseError) Error() string {
	return fmt.Sprintf("portfolio has %d investments", e.Investments)
}

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// isUniqueViolation はerrが一意制約違反かどうかを返す。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// Package user はアカウント単位の操作（退会）を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/moneymonitor/internal/model"
	"github.com/hitoshi/moneymonitor/internal/repository"
)

// PortfolioLister はユーザーのポートフォリオ一覧を返す。
type PortfolioLister interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.Portfolio, error)
}

// InvestmentCounter はポートフォリオ内の投資記録数を返す。
type InvestmentCounter interface {
	CountByPortfolio(ctx context.Context, portfolioID string) (int, error)
}

// Holdings は退会で消えるデータの件数。
type Holdings struct {
	Portfolios  int
	Investments int
}

// Service は退会処理を行う。
type Service struct {
	users       repository.UserRepository
	sessions    repository.SessionRepository
	portfolios  PortfolioLister
	investments InvestmentCounter
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	portfolios PortfolioLister,
	investments InvestmentCounter,
) *Service {
	return &Service{
		users:       users,
		sessions:    sessions,
		portfolios:  portfolios,
		investments: investments,
	}
}

// Withdraw はユーザーを退会させる。
// 先に全セッションを失効させ、その後ユーザー行を消す。
// portfolios、investmentsは外部キーのCASCADEで一緒に消える。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("find user %s: %w", userID, err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}

	holdings, err := s.countHoldings(ctx, userID)
	if err != nil {
		// 件数は記録用。取れなくても退会は続ける
		slog.Warn("退会対象データの件数取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions of %s: %w", userID, err)
	}

	if err := s.users.DeleteByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("delete user %s: %w", userID, err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
		slog.Int("portfolios", holdings.Portfolios),
		slog.Int("investments", holdings.Investments),
	)
	return nil
}

func (s *Service) countHoldings(ctx context.Context, userID string) (Holdings, error) {
	var h Holdings
	if s.portfolios == nil {
		return h, nil
	}

	list, err := s.portfolios.ListByUserID(ctx, userID)
	if err != nil {
		return h, err
	}
	h.Portfolios = len(list)

	if s.investments == nil {
		return h, nil
	}
	for _, p := range list {
		n, err := s.investments.CountByPortfolio(ctx, p.ID)
		if err != nil {
			return h, err
		}
		h.Investments += n
	}
	return h, nil
}

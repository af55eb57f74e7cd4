// Package investment は投資記録の登録・削除、CSVインポート/エクスポート、チャート用集計を提供する。
package investment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moneymonitor/internal/csvcodec"
	"github.com/hitoshi/moneymonitor/internal/metrics"
	"github.com/hitoshi/moneymonitor/internal/model"
	"github.com/hitoshi/moneymonitor/internal/repository"
)

// PortfolioGetter は所有者チェック付きでポートフォリオを取得する。
type PortfolioGetter interface {
	Get(ctx context.Context, userID, portfolioID string) (*model.Portfolio, error)
}

// Service は投資記録のサービス層。
type Service struct {
	portfolios PortfolioGetter
	repo       repository.InvestmentRepository
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(portfolios PortfolioGetter, repo repository.InvestmentRepository, collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		portfolios: portfolios,
		repo:       repo,
		metrics:    collector,
		now:        time.Now,
	}
}

// List はポートフォリオの投資記録を日付昇順で返す。from、toは省略可能（YYYY-MM-DD）。
func (s *Service) List(ctx context.Context, userID, portfolioID, from, to string) ([]*model.Investment, error) {
	if _, err := s.portfolios.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	for _, d := range []string{from, to} {
		if d != "" && !csvcodec.ValidDate(d) {
			return nil, model.NewInvalidDateError(d)
		}
	}

	investments, err := s.repo.ListByPortfolio(ctx, portfolioID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	return investments, nil
}

// Upsert は指定日の評価額を登録する。同じ日付の記録があれば上書きする。
func (s *Service) Upsert(ctx context.Context, userID, portfolioID string, input model.InvestmentInput) (*model.Investment, error) {
	if _, err := s.portfolios.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	inv, err := s.repo.Upsert(ctx, userID, portfolioID, input)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert investment: %w", err)
	}
	return inv, nil
}

// Delete は1件の投資記録を削除する。
func (s *Service) Delete(ctx context.Context, userID, portfolioID, investmentID string) error {
	if _, err := s.portfolios.Get(ctx, userID, portfolioID); err != nil {
		return err
	}
	if _, err := uuid.Parse(investmentID); err != nil {
		return model.NewInvestmentNotFoundError(investmentID)
	}

	inv, err := s.repo.FindByID(ctx, investmentID)
	if err != nil {
		return fmt.Errorf("failed to find investment: %w", err)
	}
	if inv == nil || inv.PortfolioID != portfolioID {
		return model.NewInvestmentNotFoundError(investmentID)
	}

	if err := s.repo.DeleteByID(ctx, investmentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewInvestmentNotFoundError(investmentID)
		}
		return fmt.Errorf("failed to delete investment: %w", err)
	}
	return nil
}

// ClearAll はポートフォリオの全投資記録を削除し、削除件数を返す。
func (s *Service) ClearAll(ctx context.Context, userID, portfolioID string) (int64, error) {
	if _, err := s.portfolios.Get(ctx, userID, portfolioID); err != nil {
		return 0, err
	}

	n, err := s.repo.DeleteByPortfolio(ctx, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear investments: %w", err)
	}

	slog.Info("investments cleared",
		slog.String("user_id", userID),
		slog.String("portfolio_id", portfolioID),
		slog.Int64("count", n),
	)
	return n, nil
}

func validateInput(input model.InvestmentInput) error {
	if !csvcodec.ValidDate(input.Date) {
		return model.NewInvalidDateError(input.Date)
	}
	if math.IsNaN(input.Value) || math.IsInf(input.Value, 0) || input.Value < 0 {
		return model.NewInvalidValueError(strconv.FormatFloat(input.Value, 'f', -1, 64))
	}
	return nil
}

// Package portfolio はポートフォリオ管理のドメインロジックを提供する。
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/moneymonitor/internal/model"
	"github.com/hitoshi/moneymonitor/internal/repository"
	"github.com/hitoshi/moneymonitor/internal/security"
)

// MaxNameLength はポートフォリオ名の最大文字数。
const MaxNameLength = 100

// Service はポートフォリオ管理のサービス層。
type Service struct {
	repo      repository.PortfolioRepository
	sanitizer security.TextSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.PortfolioRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{repo: repo, sanitizer: sanitizer}
}

// List はユーザーのポートフォリオ一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Portfolio, error) {
	portfolios, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	return portfolios, nil
}

// Get はユーザーが所有するポートフォリオを返す。
// 存在しない場合と他ユーザーの所有の場合は同じPORTFOLIO_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID, portfolioID string) (*model.Portfolio, error) {
	if _, err := uuid.Parse(portfolioID); err != nil {
		return nil, model.NewPortfolioNotFoundError(portfolioID)
	}

	p, err := s.repo.FindByID(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolio: %w", err)
	}
	if p == nil || p.UserID != userID {
		return nil, model.NewPortfolioNotFoundError(portfolioID)
	}
	return p, nil
}

// Create はポートフォリオを作成する。
func (s *Service) Create(ctx context.Context, userID, name string) (*model.Portfolio, error) {
	name, err := s.normalizeName(name)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &model.Portfolio{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicatePortfolioError(name)
		}
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	slog.Info("portfolio created",
		slog.String("user_id", userID),
		slog.String("portfolio_id", p.ID),
	)
	return p, nil
}

// Rename はポートフォリオ名を変更する。
func (s *Service) Rename(ctx context.Context, userID, portfolioID, name string) (*model.Portfolio, error) {
	p, err := s.Get(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}

	name, err = s.normalizeName(name)
	if err != nil {
		return nil, err
	}
	if name == p.Name {
		return p, nil
	}

	if err := s.repo.Rename(ctx, portfolioID, name); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewDuplicatePortfolioError(name)
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewPortfolioNotFoundError(portfolioID)
		}
		return nil, fmt.Errorf("failed to rename portfolio: %w", err)
	}

	p.Name = name
	p.UpdatedAt = time.Now()
	return p, nil
}

// Delete はポートフォリオを削除する。
// 最後の1つ、または投資記録が残っているポートフォリオは削除できない。
func (s *Service) Delete(ctx context.Context, userID, portfolioID string) error {
	if _, err := uuid.Parse(portfolioID); err != nil {
		return model.NewPortfolioNotFoundError(portfolioID)
	}

	err := s.repo.Delete(ctx, userID, portfolioID)
	var inUse *repository.PortfolioInUseError
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		return model.NewPortfolioNotFoundError(portfolioID)
	case errors.Is(err, repository.ErrLastPortfolio):
		return model.NewLastPortfolioError()
	case errors.As(err, &inUse):
		return model.NewPortfolioHasInvestmentsError(inUse.Investments)
	default:
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}

	slog.Info("portfolio deleted",
		slog.String("user_id", userID),
		slog.String("portfolio_id", portfolioID),
	)
	return nil
}

// normalizeName は名前をサニタイズし、空・長すぎる名前を拒否する。
func (s *Service) normalizeName(raw string) (string, error) {
	name := s.sanitizer.Sanitize(raw)
	if name == "" {
		return "", model.NewInvalidPortfolioNameError("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", model.NewInvalidPortfolioNameError(fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	return name, nil
}

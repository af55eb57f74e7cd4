package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/moneymonitor/internal/model"
)

// PostgresPortfolioRepo はPostgreSQLを使用したポートフォリオリポジトリ。
type PostgresPortfolioRepo struct {
	db *sql.DB
}

// NewPostgresPortfolioRepo はPostgresPortfolioRepoを生成する。
func NewPostgresPortfolioRepo(db *sql.DB) *PostgresPortfolioRepo {
	return &PostgresPortfolioRepo{db: db}
}

const selectPortfolioColumns = `SELECT id, user_id, name, created_at, updated_at FROM portfolios`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPortfolio(row rowScanner) (*model.Portfolio, error) {
	p := &model.Portfolio{}
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// Create はポートフォリオを作成する。
func (r *PostgresPortfolioRepo) Create(ctx context.Context, portfolio *model.Portfolio) error {
	return insertPortfolio(ctx, r.db, portfolio)
}

func insertPortfolio(ctx context.Context, db execer, p *model.Portfolio) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO portfolios (id, user_id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserID, p.Name, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("portfolio %q: %w", p.Name, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert portfolio: %w", err)
	}
	return nil
}

// FindByID は指定IDのポートフォリオを取得する。見つからない場合はnilを返す。
func (r *PostgresPortfolioRepo) FindByID(ctx context.Context, id string) (*model.Portfolio, error) {
	p, err := scanPortfolio(r.db.QueryRowContext(ctx, selectPortfolioColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolio: %w", err)
	}
	return p, nil
}

// FindByUserAndName はユーザーIDと名前で検索する。見つからない場合はnilを返す。
func (r *PostgresPortfolioRepo) FindByUserAndName(ctx context.Context, userID, name string) (*model.Portfolio, error) {
	p, err := scanPortfolio(r.db.QueryRowContext(ctx,
		selectPortfolioColumns+` WHERE user_id = $1 AND name = $2`, userID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolio by name: %w", err)
	}
	return p, nil
}

// ListByUserID はユーザーのポートフォリオを作成日時順に返す。
func (r *PostgresPortfolioRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Portfolio, error) {
	rows, err := r.db.QueryContext(ctx,
		selectPortfolioColumns+` WHERE user_id = $1 ORDER BY created_at ASC, name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := []*model.Portfolio{}
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate portfolios: %w", err)
	}
	return portfolios, nil
}

// CountByUserID はユーザーのポートフォリオ数を返す。
func (r *PostgresPortfolioRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM portfolios WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count portfolios: %w", err)
	}
	return count, nil
}

// Rename はポートフォリオ名を変更する。
func (r *PostgresPortfolioRepo) Rename(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE portfolios SET name = $2, updated_at = now() WHERE id = $1`,
		id, name,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("portfolio %q: %w", name, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to rename portfolio: %w", err)
	}
	return requireAffected(result, "portfolio", id)
}

// Delete はユーザーのポートフォリオを削除する。
// ユーザーの全ポートフォリオ行をロックしてから件数と投資記録数を確認するため、
// 同時に2つのポートフォリオを削除しても0件にはならない。
func (r *PostgresPortfolioRepo) Delete(ctx context.Context, userID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM portfolios WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		return fmt.Errorf("failed to lock portfolios: %w", err)
	}
	owned := false
	count := 0
	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		count++
		if pid == id {
			owned = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate portfolios: %w", err)
	}

	if !owned {
		return fmt.Errorf("portfolio %s: %w", id, ErrNotFound)
	}
	if count <= 1 {
		return ErrLastPortfolio
	}

	var investments int
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM investments WHERE portfolio_id = $1`, id,
	).Scan(&investments); err != nil {
		return fmt.Errorf("failed to count investments: %w", err)
	}
	if investments > 0 {
		return &PortfolioInUseError{Investments: investments}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolios WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PortfolioRepository = (*PostgresPortfolioRepo)(nil)

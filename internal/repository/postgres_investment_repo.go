package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moneymonitor/internal/database"
	"github.com/hitoshi/moneymonitor/internal/model"
)

// PostgresInvestmentRepo はPostgreSQLを使用した投資記録リポジトリ。
// value列には暗号文を保存する。
type PostgresInvestmentRepo struct {
	db     *sql.DB
	cipher ValueCipher
}

// NewPostgresInvestmentRepo はPostgresInvestmentRepoを生成する。
func NewPostgresInvestmentRepo(db *sql.DB, cipher ValueCipher) *PostgresInvestmentRepo {
	return &PostgresInvestmentRepo{db: db, cipher: cipher}
}

const selectInvestmentColumns = `SELECT id, user_id, portfolio_id, to_char(date, 'YYYY-MM-DD'), value, created_at, updated_at FROM investments`

func (r *PostgresInvestmentRepo) scan(row rowScanner) (*model.Investment, error) {
	inv := &model.Investment{}
	var encrypted string
	if err := row.Scan(&inv.ID, &inv.UserID, &inv.PortfolioID, &inv.Date, &encrypted, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	value, err := r.cipher.DecryptValue(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt investment %s: %w", inv.ID, err)
	}
	inv.Value = value
	return inv, nil
}

// ListByPortfolio はポートフォリオの投資記録を日付昇順で返す。
func (r *PostgresInvestmentRepo) ListByPortfolio(ctx context.Context, portfolioID, from, to string) ([]*model.Investment, error) {
	var sb strings.Builder
	sb.WriteString(selectInvestmentColumns)
	sb.WriteString(` WHERE portfolio_id = $1`)
	args := []any{portfolioID}
	if from != "" {
		args = append(args, from)
		fmt.Fprintf(&sb, ` AND date >= $%d`, len(args))
	}
	if to != "" {
		args = append(args, to)
		fmt.Fprintf(&sb, ` AND date <= $%d`, len(args))
	}
	sb.WriteString(` ORDER BY date ASC`)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	defer rows.Close()

	investments := []*model.Investment{}
	for rows.Next() {
		inv, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		investments = append(investments, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate investments: %w", err)
	}
	return investments, nil
}

// FindByID は指定IDの投資記録を取得する。見つからない場合はnilを返す。
func (r *PostgresInvestmentRepo) FindByID(ctx context.Context, id string) (*model.Investment, error) {
	inv, err := r.scan(r.db.QueryRowContext(ctx, selectInvestmentColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find investment: %w", err)
	}
	return inv, nil
}

// queryer は*sql.DBと*sql.Txに共通する単一行クエリ。
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// upsert は (portfolio_id, date) の一意制約でINSERTまたはUPDATEを行う。
// 既存行の場合、idとcreated_atは維持される。
func (r *PostgresInvestmentRepo) upsert(ctx context.Context, q queryer, userID, portfolioID string, input model.InvestmentInput, now time.Time) (*model.Investment, error) {
	encrypted, err := r.cipher.Encrypt(input.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt value for %s: %w", input.Date, err)
	}

	inv := &model.Investment{
		UserID:      userID,
		PortfolioID: portfolioID,
		Date:        input.Date,
		Value:       input.Value,
	}
	err = q.QueryRowContext(ctx,
		`INSERT INTO investments (id, user_id, portfolio_id, date, value, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (portfolio_id, date)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at, updated_at`,
		uuid.NewString(), userID, portfolioID, input.Date, encrypted, now,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert investment for %s: %w", input.Date, err)
	}
	return inv, nil
}

// Upsert は (portfolio, date) の投資記録を作成または上書きする。
func (r *PostgresInvestmentRepo) Upsert(ctx context.Context, userID, portfolioID string, input model.InvestmentInput) (*model.Investment, error) {
	return r.upsert(ctx, r.db, userID, portfolioID, input, time.Now())
}

// BulkUpsert は複数の投資記録を単一トランザクションでUPSERTする。
func (r *PostgresInvestmentRepo) BulkUpsert(ctx context.Context, userID, portfolioID string, inputs []model.InvestmentInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}

	now := time.Now()
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, input := range inputs {
			if _, err := r.upsert(ctx, tx, userID, portfolioID, input, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(inputs), nil
}

// DeleteByID は指定IDの投資記録を削除する。
func (r *PostgresInvestmentRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM investments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete investment: %w", err)
	}
	return requireAffected(result, "investment", id)
}

// DeleteByPortfolio はポートフォリオの全投資記録を削除し、削除件数を返す。
func (r *PostgresInvestmentRepo) DeleteByPortfolio(ctx context.Context, portfolioID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM investments WHERE portfolio_id = $1`, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete investments: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// CountByPortfolio はポートフォリオの投資記録数を返す。
func (r *PostgresInvestmentRepo) CountByPortfolio(ctx context.Context, portfolioID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM investments WHERE portfolio_id = $1`, portfolioID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count investments: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ InvestmentRepository = (*PostgresInvestmentRepo)(nil)

package investment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/moneymonitor/internal/aggregate"
	"github.com/hitoshi/moneymonitor/internal/csvcodec"
	"github.com/hitoshi/moneymonitor/internal/model"
)

// ImportResult はCSVインポートの結果。
type ImportResult struct {
	ImportedCount int `json:"importedCount"`
	TotalRows     int `json:"totalRows"`
}

// ImportError はCSVに不正な行が含まれる場合のエラー。
// 1行でも不正があればファイル全体を取り込まない。
type ImportError struct {
	Errors []string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("invalid CSV: %s", strings.Join(e.Errors, "; "))
}

// Import はCSVテキストを解析し、全行を単一トランザクションでUPSERTする。
func (s *Service) Import(ctx context.Context, userID, portfolioID, text string) (*ImportResult, error) {
	if _, err := s.portfolios.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}

	parsed := csvcodec.Parse(text)
	if !parsed.IsValid {
		return nil, &ImportError{Errors: parsed.Errors}
	}

	inputs := make([]model.InvestmentInput, len(parsed.Data))
	for i, rec := range parsed.Data {
		inputs[i] = model.InvestmentInput{Date: rec.Date, Value: rec.Value}
	}

	n, err := s.repo.BulkUpsert(ctx, userID, portfolioID, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to import investments: %w", err)
	}
	s.metrics.RecordInvestmentsImported(n)

	slog.Info("investments imported",
		slog.String("user_id", userID),
		slog.String("portfolio_id", portfolioID),
		slog.Int("count", n),
	)

	return &ImportResult{ImportedCount: n, TotalRows: len(parsed.Data)}, nil
}

// SeriesQuery はチャート・エクスポートの集計条件。
type SeriesQuery struct {
	Period string // daily, weekly, monthly（空はdaily）
	Filter string // 7d, 4w, 12m, all（空はall）
}

func (q SeriesQuery) parse() (aggregate.Period, aggregate.TimeFilter, error) {
	period, err := aggregate.ParsePeriod(q.Period)
	if err != nil {
		return "", aggregate.TimeFilter{}, model.NewInvalidPeriodError(q.Period)
	}
	filter, err := aggregate.ParseTimeFilter(q.Filter)
	if err != nil {
		return "", aggregate.TimeFilter{}, model.NewInvalidFilterError(q.Filter)
	}
	return period, filter, nil
}

// ChartResult はチャート描画用の集計系列と統計値。
type ChartResult struct {
	Period string                      `json:"period"`
	Filter string                      `json:"filter"`
	Data   []aggregate.AggregatedPoint `json:"data"`
	Stats  aggregate.Stats             `json:"stats"`
}

// Chart は投資記録を指定粒度で集計し、期間で絞り込んだ系列と統計値を返す。
func (s *Service) Chart(ctx context.Context, userID, portfolioID string, q SeriesQuery) (*ChartResult, error) {
	period, filter, err := q.parse()
	if err != nil {
		return nil, err
	}
	if _, err := s.portfolios.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}

	series, err := s.series(ctx, portfolioID, period, filter)
	if err != nil {
		return nil, err
	}

	return &ChartResult{
		Period: string(period),
		Filter: filter.String(),
		Data:   series,
		Stats:  aggregate.CalculateFilteredPortfolioStats(series),
	}, nil
}

// ExportResult はCSVエクスポートのファイル名と本文。
type ExportResult struct {
	Filename string
	Content  string
}

// Export は集計・絞り込み済みの系列をCSVとして返す。
func (s *Service) Export(ctx context.Context, userID, portfolioID string, q SeriesQuery) (*ExportResult, error) {
	period, filter, err := q.parse()
	if err != nil {
		return nil, err
	}

	p, err := s.portfolios.Get(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}

	series, err := s.series(ctx, portfolioID, period, filter)
	if err != nil {
		return nil, err
	}

	records := make([]csvcodec.Record, len(series))
	for i, pt := range series {
		records[i] = csvcodec.Record{Date: pt.Date, Value: pt.Value}
	}

	content, err := csvcodec.Generate(records)
	if err != nil {
		return nil, fmt.Errorf("failed to generate export: %w", err)
	}

	return &ExportResult{
		Filename: csvcodec.ExportFilename(p.Name, string(period), filter.String(), s.now()),
		Content:  content,
	}, nil
}

// series は所有確認済みのポートフォリオについて集計系列を組み立てる。
func (s *Service) series(ctx context.Context, portfolioID string, period aggregate.Period, filter aggregate.TimeFilter) ([]aggregate.AggregatedPoint, error) {
	investments, err := s.repo.ListByPortfolio(ctx, portfolioID, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}

	points := make([]aggregate.Point, len(investments))
	for i, inv := range investments {
		points[i] = aggregate.Point{Date: inv.Date, Value: inv.Value}
	}

	return aggregate.AggregateWithFilter(points, period, filter, s.now()), nil
}

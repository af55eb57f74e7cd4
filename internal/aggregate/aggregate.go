// Package aggregate は日次スナップショット系列を日次・週次・月次の系列に集計する。
//
// 週次・月次ではバケット内で時系列的に最後の値を代表値とする（合計・平均はしない）。
// 評価額は時点のスナップショットであり、フローではないため。
package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Period は集計粒度。
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ErrUnknownPeriod は未知の集計粒度が指定された場合のエラー。
var ErrUnknownPeriod = errors.New("unknown aggregation period")

// ParsePeriod は文字列を集計粒度に変換する。空文字列はdailyとして扱う。
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDaily:
		return PeriodDaily, nil
	case PeriodWeekly:
		return PeriodWeekly, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
	}
}

// Point は集計前の (date, value) の組。DateはYYYY-MM-DD。
type Point struct {
	Date  string
	Value float64
}

// AggregatedPoint は集計後の1点と直前の点からの変化量。
type AggregatedPoint struct {
	Date          string  `json:"date"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// Aggregate は入力を日付昇順に並べ替え、指定粒度の系列を返す。
// 最初の点のchange/changePercentは常に0。
// 未知のPeriodの場合は空の系列を返す。
func Aggregate(points []Point, period Period) []AggregatedPoint {
	if len(points) == 0 {
		return []AggregatedPoint{}
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	// YYYY-MM-DDは辞書順と時系列順が一致する
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date < sorted[j].Date
	})

	var series []Point
	switch period {
	case PeriodDaily:
		series = sorted
	case PeriodWeekly:
		series = lastPerBucket(sorted, weekStart)
	case PeriodMonthly:
		series = lastPerBucket(sorted, monthStart)
	default:
		return []AggregatedPoint{}
	}

	return withChanges(series)
}

// lastPerBucket はソート済みの系列をバケットに分け、各バケットの最後の値を残す。
// 出力の日付はバケットキー。日付として解釈できない点は無視する。
func lastPerBucket(sorted []Point, bucketKey func(time.Time) time.Time) []Point {
	var out []Point
	index := map[string]int{}

	for _, p := range sorted {
		d, err := time.Parse(dateLayout, p.Date)
		if err != nil {
			continue
		}
		key := bucketKey(d).Format(dateLayout)
		if i, ok := index[key]; ok {
			out[i].Value = p.Value
			continue
		}
		index[key] = len(out)
		out = append(out, Point{Date: key, Value: p.Value})
	}

	return out
}

// weekStart はISO週の開始日（月曜日）を返す。
func weekStart(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// monthStart は月の初日を返す。
func monthStart(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func withChanges(series []Point) []AggregatedPoint {
	out := make([]AggregatedPoint, len(series))
	for i, p := range series {
		out[i] = AggregatedPoint{Date: p.Date, Value: p.Value}
		if i == 0 {
			continue
		}
		out[i].Change, out[i].ChangePercent = delta(series[i-1].Value, p.Value)
	}
	return out
}

// delta はprevからcurへの変化量と変化率(%)を返す。
// prevが0の場合、変化率は0とする。
func delta(prev, cur float64) (change, percent float64) {
	p := decimal.NewFromFloat(prev)
	c := decimal.NewFromFloat(cur).Sub(p)
	change = c.InexactFloat64()
	if p.IsZero() {
		return change, 0
	}
	percent = c.Div(p).Mul(decimal.NewFromInt(100)).InexactFloat64()
	return change, percent
}

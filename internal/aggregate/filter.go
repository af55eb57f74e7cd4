package aggregate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidFilter は期間フィルタの書式が不正な場合のエラー。
var ErrInvalidFilter = errors.New("invalid time filter")

var filterPattern = regexp.MustCompile(`^([1-9][0-9]{0,3})([dwm])$`)

// TimeFilter は集計後に適用する直近期間フィルタ。
// ゼロ値は全期間（all）を表す。
type TimeFilter struct {
	N    int
	Unit byte // 'd', 'w', 'm'
}

// AllTime は全期間フィルタ。
var AllTime = TimeFilter{}

// ParseTimeFilter は "all", "7d", "4w", "12m" 形式の文字列を解釈する。
// 空文字列はallとして扱う。
func ParseTimeFilter(s string) (TimeFilter, error) {
	if s == "" || s == "all" {
		return AllTime, nil
	}
	m := filterPattern.FindStringSubmatch(s)
	if m == nil {
		return TimeFilter{}, fmt.Errorf("%w: %q", ErrInvalidFilter, s)
	}
	n, _ := strconv.Atoi(m[1])
	return TimeFilter{N: n, Unit: m[2][0]}, nil
}

// IsAll は全期間フィルタかどうかを返す。
func (f TimeFilter) IsAll() bool {
	return f.N == 0
}

// String はフィルタの文字列表現を返す。
func (f TimeFilter) String() string {
	if f.IsAll() {
		return "all"
	}
	return strconv.Itoa(f.N) + string(f.Unit)
}

// Cutoff はnowから遡った閾値時刻を返す。
// 月は30日の近似で、暦は考慮しない。
func (f TimeFilter) Cutoff(now time.Time) time.Time {
	var unit time.Duration
	switch f.Unit {
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	case 'm':
		unit = 30 * 24 * time.Hour
	}
	return now.Add(-time.Duration(f.N) * unit)
}

// ApplyTimeFilter はdate >= cutoff の点のみを残す。
// allまたは空入力の場合は入力をそのまま返す。
func ApplyTimeFilter(points []AggregatedPoint, f TimeFilter, now time.Time) []AggregatedPoint {
	if f.IsAll() || len(points) == 0 {
		return points
	}

	cutoff := f.Cutoff(now)
	out := make([]AggregatedPoint, 0, len(points))
	for _, p := range points {
		d, err := time.Parse(dateLayout, p.Date)
		if err != nil {
			continue
		}
		if !d.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// AggregateWithFilter は集計の後に期間フィルタを適用する。
// 変化量はフィルタ前の系列で計算されるため、先頭の点が0になるとは限らない。
func AggregateWithFilter(points []Point, period Period, f TimeFilter, now time.Time) []AggregatedPoint {
	return ApplyTimeFilter(Aggregate(points, period), f, now)
}

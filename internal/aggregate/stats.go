package aggregate

// Stats は集計済み系列の要約。
type Stats struct {
	TotalValue         float64          `json:"totalValue"`
	TotalChange        float64          `json:"totalChange"`
	TotalChangePercent float64          `json:"totalChangePercent"`
	BestDay            *AggregatedPoint `json:"bestDay"`
	WorstDay           *AggregatedPoint `json:"worstDay"`
}

// CalculateFilteredPortfolioStats は集計済み系列から要約を計算する。
// TotalValueは最後の点の値、TotalChangeは最初の点から最後の点への変化。
// BestDay/WorstDayは変化のある点の中でchangePercentが最大/最小の点で、
// 同値の場合は系列で先に現れた点を採用する。
func CalculateFilteredPortfolioStats(points []AggregatedPoint) Stats {
	if len(points) == 0 {
		return Stats{}
	}

	first := points[0]
	last := points[len(points)-1]

	var stats Stats
	stats.TotalValue = last.Value
	stats.TotalChange, stats.TotalChangePercent = delta(first.Value, last.Value)

	for i := range points {
		p := points[i]
		if p.Change == 0 && p.ChangePercent == 0 {
			continue
		}
		if stats.BestDay == nil || p.ChangePercent > stats.BestDay.ChangePercent {
			best := p
			stats.BestDay = &best
		}
		if stats.WorstDay == nil || p.ChangePercent < stats.WorstDay.ChangePercent {
			worst := p
			stats.WorstDay = &worst
		}
	}

	return stats
}

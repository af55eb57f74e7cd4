package csvcodec

import (
	"fmt"
	"strings"
	"time"
)

// ExportFilename はエクスポートファイル名
// investments-<slug>-<period>-<filter>-<YYYY-MM-DD>.csv を生成する。
func ExportFilename(portfolioName, period, filter string, day time.Time) string {
	return fmt.Sprintf("investments-%s-%s-%s-%s.csv",
		Slugify(portfolioName), period, filter, day.Format(dateLayout))
}

// Slugify は英数字以外をハイフンに置き換えた小文字のスラッグを返す。
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "portfolio"
	}
	return slug
}

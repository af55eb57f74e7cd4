// Package csvcodec は (date, value) の2列CSVの解析と生成を提供する。
package csvcodec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Header は生成するCSVのヘッダー行。
var Header = []string{"Date", "Value"}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Record はCSVの1行分のデータ。
type Record struct {
	Date  string
	Value float64
}

// ParseResult はParseの結果。
// Errorsは行番号付きの人間向けメッセージで、1件でもあればIsValidはfalse。
type ParseResult struct {
	IsValid bool
	Data    []Record
	Errors  []string
}

// Parse はCSVテキストを解析する。
// 先頭行に "date" と "value" の両方が含まれる場合はヘッダーとして読み飛ばす。
// 不正な行はエラーを記録してスキップし、解析は最後まで続ける。
// エラーの行番号はファイル上の行番号（1始まり）。
func Parse(text string) ParseResult {
	if strings.TrimSpace(text) == "" {
		return ParseResult{Errors: []string{"CSV file is empty"}}
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	start := 0
	if isHeader(lines[0]) {
		start = 1
	}

	result := ParseResult{Data: []Record{}}
	rows := 0

	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		rows++

		rec, msg := parseRow(line)
		if msg != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", i+1, msg))
			continue
		}
		result.Data = append(result.Data, rec)
	}

	if rows == 0 {
		return ParseResult{Errors: []string{"CSV file has no data rows"}}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

func isHeader(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "date") && strings.Contains(lower, "value")
}

// parseRow は1行を検証する。不正な場合は空でないメッセージを返す。
func parseRow(line string) (Record, string) {
	fields := strings.Split(line, ",")
	if len(fields) != 2 {
		return Record{}, fmt.Sprintf("Expected 2 columns (date, value), got %d", len(fields))
	}

	date := cleanField(fields[0])
	rawValue := cleanField(fields[1])

	if !ValidDate(date) {
		return Record{}, fmt.Sprintf("Invalid date %q. Use YYYY-MM-DD format", date)
	}

	value, ok := ParseValue(rawValue)
	if !ok {
		return Record{}, fmt.Sprintf("Invalid value %q. Must be a positive number", rawValue)
	}

	return Record{Date: date, Value: value}, ""
}

// cleanField は前後の空白と引用符を取り除く。
func cleanField(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
}

// ValidDate はYYYY-MM-DD形式かつ実在する日付かどうかを返す。
func ValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// ParseValue は有限かつ0以上の数値として解釈できる場合に値を返す。
func ParseValue(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// FormatValue は金額を最短の10進表現に整形する。
func FormatValue(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// Generate はヘッダー "Date,Value" 付きのCSVテキストを生成する。
func Generate(records []Record) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteCSV はrecordsをヘッダー付きCSVとしてdstに書き出す。
// 全フィールドに数式インジェクション対策を適用する。
func WriteCSV(dst io.Writer, records []Record) error {
	w := csv.NewWriter(dst)

	if err := w.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{SanitizeField(r.Date), SanitizeField(FormatValue(r.Value))}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.Date, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// SanitizeField はスプレッドシートで数式として解釈される先頭文字（= + - @）を持つ値に
// シングルクォートを前置する。
func SanitizeField(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}

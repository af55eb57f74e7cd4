package csvcodec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WithHeader(t *testing.T) {
	res := Parse("Date,Value\n2024-01-01,100000\n2024-01-02,102000.50\n")

	require.True(t, res.IsValid, "errors: %v", res.Errors)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []Record{
		{Date: "2024-01-01", Value: 100000},
		{Date: "2024-01-02", Value: 102000.5},
	}, res.Data)
}

func TestParse_WithoutHeaderQuotedAndCRLF(t *testing.T) {
	res := Parse("\"2024-01-01\", \"1.5\"\r\n\r\n 2024-01-02 ,2\r\n")

	require.True(t, res.IsValid, "errors: %v", res.Errors)
	assert.Equal(t, []Record{
		{Date: "2024-01-01", Value: 1.5},
		{Date: "2024-01-02", Value: 2},
	}, res.Data)
}

func TestParse_NegativeValue(t *testing.T) {
	res := Parse("2024-01-01,-50")

	assert.False(t, res.IsValid)
	assert.Equal(t, []string{`Row 1: Invalid value "-50". Must be a positive number`}, res.Errors)
	assert.Empty(t, res.Data)
}

func TestParse_AccumulatesRowErrors(t *testing.T) {
	text := "date,value\n" +
		"2024-01-01,100\n" +
		"2024-02-30,100\n" +
		"01/03/2024,100\n" +
		"2024-01-04,abc\n" +
		"2024-01-05\n" +
		"2024-01-06,1,2\n" +
		"2024-01-07,Infinity\n" +
		"2024-01-08,200\n"

	res := Parse(text)

	assert.False(t, res.IsValid)
	assert.Equal(t, []string{
		`Row 3: Invalid date "2024-02-30". Use YYYY-MM-DD format`,
		`Row 4: Invalid date "01/03/2024". Use YYYY-MM-DD format`,
		`Row 5: Invalid value "abc". Must be a positive number`,
		`Row 6: Expected 2 columns (date, value), got 1`,
		`Row 7: Expected 2 columns (date, value), got 3`,
		`Row 8: Invalid value "Infinity". Must be a positive number`,
	}, res.Errors)
	assert.Equal(t, []Record{
		{Date: "2024-01-01", Value: 100},
		{Date: "2024-01-08", Value: 200},
	}, res.Data)
}

func TestParse_EmptyInputs(t *testing.T) {
	for _, text := range []string{"", "   \n\n"} {
		res := Parse(text)
		assert.False(t, res.IsValid)
		assert.Equal(t, []string{"CSV file is empty"}, res.Errors)
	}

	res := Parse("Date,Value\n\n")
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"CSV file has no data rows"}, res.Errors)
}

func TestGenerate(t *testing.T) {
	out, err := Generate([]Record{
		{Date: "2024-01-01", Value: 100000},
		{Date: "2024-01-02", Value: 1234.56},
	})

	require.NoError(t, err)
	assert.Equal(t, "Date,Value\n2024-01-01,100000\n2024-01-02,1234.56\n", out)
}

func TestGenerate_Empty(t *testing.T) {
	out, err := Generate(nil)
	require.NoError(t, err)
	assert.Equal(t, "Date,Value\n", out)
}

type failingWriter struct{ err error }

func (f failingWriter) Write([]byte) (int, error) { return 0, f.err }

func TestWriteCSV_ReportsWriterError(t *testing.T) {
	diskFull := errors.New("no space left on device")

	err := WriteCSV(failingWriter{err: diskFull}, []Record{{Date: "2024-01-01", Value: 1}})

	require.Error(t, err)
	assert.ErrorIs(t, err, diskFull)
}

func TestRoundTrip(t *testing.T) {
	records := []Record{
		{Date: "2023-12-31", Value: 0},
		{Date: "2024-01-01", Value: 0.1},
		{Date: "2024-02-29", Value: 99999999.99},
		{Date: "2024-03-01", Value: 1e-6},
		{Date: "2024-03-02", Value: 123456789012},
	}

	text, err := Generate(records)
	require.NoError(t, err)
	res := Parse(text)

	require.True(t, res.IsValid, "errors: %v", res.Errors)
	assert.Equal(t, records, res.Data)
}

func TestSanitizeField(t *testing.T) {
	tests := map[string]string{
		"=SUM(A1)":   "'=SUM(A1)",
		"+1":         "'+1",
		"-1":         "'-1",
		"@cmd":       "'@cmd",
		"2024-01-01": "2024-01-01",
		"":           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeField(in), "input %q", in)
	}
}

func TestExportFilename(t *testing.T) {
	day := time.Date(2024, 5, 6, 13, 0, 0, 0, time.UTC)

	assert.Equal(t,
		"investments-my-retirement-fund-weekly-30d-2024-05-06.csv",
		ExportFilename("My Retirement  Fund!", "weekly", "30d", day),
	)
	assert.Equal(t,
		"investments-portfolio-daily-all-2024-05-06.csv",
		ExportFilename("***", "daily", "all", day),
	)
}

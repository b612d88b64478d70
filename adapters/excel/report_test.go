package excel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"powersvc/domain/design"
	"powersvc/domain/power"
)

func TestWriteReport(t *testing.T) {
	q := 0.5
	results := []power.PowerResult{
		{
			Test: design.TestHotelling, Alpha: 0.05, ActualPower: 0.807, TotalSampleSize: 34,
			BetaScale: 1, SigmaScale: 1, PowerMethod: design.PowerConditional,
		},
		{
			Test: design.TestWilks, Alpha: 0.01, ActualPower: 0.6, TotalSampleSize: 40,
			BetaScale: 1, SigmaScale: 2, PowerMethod: design.PowerQuantile, Quantile: &q,
			ConfidenceInterval: &power.ConfidenceInterval{LowerLimit: 0.4, UpperLimit: 0.75},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, results))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName, SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])

	assert.Equal(t, "HLT", rows[1][0])
	assert.Equal(t, "34", rows[1][4])
	assert.Equal(t, "CONDITIONAL", rows[1][7])
	assert.Len(t, rows[1], 8, "empty optional cells are not written")

	assert.Equal(t, "WL", rows[2][0])
	assert.Equal(t, "0.5", rows[2][8])
	assert.Equal(t, "0.4", rows[2][9])
	assert.Equal(t, "0.75", rows[2][10])
}

func TestWriteReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{SheetName}, f.GetSheetList())
}

func TestWriteReportSummarySkipsFailedPoints(t *testing.T) {
	results := []power.PowerResult{
		{Test: design.TestHotelling, ActualPower: 0.2},
		{Test: design.TestHotelling, ActualPower: 0.6},
		{Test: design.TestHotelling, ActualPower: 0.7},
		{Test: design.TestHotelling, ErrorMessage: "too few error degrees of freedom"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, results))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"Points", "3"}, rows[0])
	assert.Equal(t, []string{"Failed Points", "1"}, rows[1])
	assert.Equal(t, []string{"Min Power", "0.2"}, rows[2])
	assert.Equal(t, []string{"Median Power", "0.6"}, rows[3])
	assert.Equal(t, []string{"Max Power", "0.7"}, rows[5])
}

// Package excel renders power results as xlsx workbooks.
package excel

import (
	"fmt"
	"io"

	"github.com/montanaflynn/stats"
	"github.com/xuri/excelize/v2"

	"powersvc/domain/power"
)

// Worksheet names
const (
	SheetName    = "Power"
	SummarySheet = "Summary"
)

// Headers are the report columns, in order
var Headers = []string{
	"Test",
	"Alpha",
	"Nominal Power",
	"Actual Power",
	"Total Sample Size",
	"Beta Scale",
	"Sigma Scale",
	"Power Method",
	"Quantile",
	"CI Lower",
	"CI Upper",
	"Error",
}

// WriteReport writes one header row and one row per result to w
func WriteReport(w io.Writer, results []power.PowerResult) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return err
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	for r, res := range results {
		if err := f.SetSheetRow(SheetName, rowCell(r+2), reportRow(res)); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	if err := writeSummary(f, results); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return f.Write(w)
}

// writeSummary adds min, median, mean and max actual power over the points
// that computed without error. The sheet is omitted when there are none.
func writeSummary(f *excelize.File, results []power.PowerResult) error {
	var powers stats.Float64Data
	for _, res := range results {
		if res.ErrorMessage == "" {
			powers = append(powers, res.ActualPower)
		}
	}
	if len(powers) == 0 {
		return nil
	}

	minimum, _ := powers.Min()
	median, _ := powers.Median()
	mean, _ := powers.Mean()
	maximum, _ := powers.Max()

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Points", len(powers)},
		{"Failed Points", len(results) - len(powers)},
		{"Min Power", minimum},
		{"Median Power", median},
		{"Mean Power", mean},
		{"Max Power", maximum},
	}
	for i, row := range rows {
		row := row
		if err := f.SetSheetRow(SummarySheet, rowCell(i+1), &row); err != nil {
			return err
		}
	}
	return nil
}

func rowCell(row int) string {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	return cell
}

// reportRow leaves optional cells empty rather than writing zeros
func reportRow(res power.PowerResult) *[]interface{} {
	row := []interface{}{
		string(res.Test),
		res.Alpha,
		res.NominalPower,
		res.ActualPower,
		res.TotalSampleSize,
		res.BetaScale,
		res.SigmaScale,
		string(res.PowerMethod),
		nil,
		nil,
		nil,
		res.ErrorMessage,
	}
	if res.Quantile != nil {
		row[8] = *res.Quantile
	}
	if ci := res.ConfidenceInterval; ci != nil {
		row[9] = ci.LowerLimit
		row[10] = ci.UpperLimit
	}
	return &row
}

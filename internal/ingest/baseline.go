package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/caprock/fieldbook/internal/models"
)

// The baseline workbook is a fixed export template, so this is the one
// parser that reads by absolute row position instead of headers. The whole
// layout lives in this table: when the template shifts, edit the numbers,
// not the logic. Rows are 1-based inclusive ranges.
type baselineBlock struct {
	name       string
	start, end int
}

var baselineLayout = struct {
	dateRow    int
	firstCol   int // 1-based column where the date series starts (column C)
	blocks     []baselineBlock
	irrCell    string
	netFCFCell string
}{
	dateRow:  2,
	firstCol: 3,
	blocks: []baselineBlock{
		{"prices", 4, 8},
		{"pdpAssumptions", 10, 16},
		{"pdsiAssumptions", 18, 24},
		{"pdpCalcs", 26, 34},
		{"pdsiCalcs", 36, 44},
		{"other", 46, 48},
		{"totalCashFlow", 50, 53},
	},
	irrCell:    "B55",
	netFCFCell: "B56",
}

// ParseBaselineWorkbook parses the financial baseline export into a dataset.
// A date row that yields no valid dates produces a dataset with an empty
// DateKeys list rather than an error, so the caller can prompt for a
// re-import instead of crashing.
func ParseBaselineWorkbook(data []byte, loc *time.Location) (*models.BaselineDataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	dateKeys, colKeys := parseDateRow(rows, loc)

	ds := &models.BaselineDataset{
		DateKeys:   dateKeys,
		ImportedAt: time.Now().UTC(),
	}
	for _, blk := range baselineLayout.blocks {
		series := parseBlock(rows, blk, colKeys)
		switch blk.name {
		case "prices":
			ds.Prices = series
		case "pdpAssumptions":
			ds.PDPAssumptions = series
		case "pdsiAssumptions":
			ds.PDSIAssumptions = series
		case "pdpCalcs":
			ds.PDPCalcs = series
		case "pdsiCalcs":
			ds.PDSICalcs = series
		case "other":
			ds.Other = series
		case "totalCashFlow":
			ds.TotalCashFlow = series
		}
	}

	if v, ok := scalarCell(f, sheet, baselineLayout.irrCell); ok {
		ds.IRR = v
	}
	if v, ok := scalarCell(f, sheet, baselineLayout.netFCFCell); ok {
		ds.NetFCF = v
	}
	return ds, nil
}

// parseDateRow walks the master date row and builds the canonical ordered
// date keys plus the column-to-key alignment map every block shares. The
// raw row may contain stray empty cells between dates; those columns get no
// key and every block skips them the same way, so values stay aligned.
func parseDateRow(rows [][]string, loc *time.Location) ([]string, map[int]string) {
	colKeys := make(map[int]string)
	var keys []string

	if len(rows) < baselineLayout.dateRow {
		return keys, colKeys
	}
	dateRow := rows[baselineLayout.dateRow-1]

	for col := baselineLayout.firstCol - 1; col < len(dateRow); col++ {
		cell := strings.TrimSpace(dateRow[col])
		if cell == "" {
			continue
		}
		d, ok := ParseCellDate(cell, loc)
		if !ok {
			continue
		}
		key := d.Format("2006-01-02")
		colKeys[col] = key
		keys = append(keys, key)
	}
	return keys, colKeys
}

func parseBlock(rows [][]string, blk baselineBlock, colKeys map[int]string) []models.SeriesRow {
	var series []models.SeriesRow
	for rowNo := blk.start; rowNo <= blk.end; rowNo++ {
		if rowNo > len(rows) {
			break
		}
		row := rows[rowNo-1]
		if len(row) == 0 {
			continue
		}
		label := strings.TrimSpace(row[0])
		if label == "" {
			continue
		}
		// Several blocks repeat the date header at their top.
		if strings.EqualFold(label, "date") || strings.EqualFold(label, "month") {
			continue
		}

		values := make(map[string]float64)
		for col, key := range colKeys {
			if col >= len(row) {
				continue
			}
			if v, ok := ParseNumber(row[col]); ok {
				values[key] = v
			}
		}
		series = append(series, models.SeriesRow{Label: label, Values: values})
	}
	return series
}

func scalarCell(f *excelize.File, sheet, cell string) (float64, bool) {
	raw, err := f.GetCellValue(sheet, cell)
	if err != nil {
		return 0, false
	}
	return ParseNumber(raw)
}

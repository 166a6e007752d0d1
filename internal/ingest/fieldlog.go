package ingest

import (
	"bytes"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/caprock/fieldbook/internal/models"
)

// FieldLogRow is one parsed data row from a daily field-log sheet. Numeric
// fields are null when the cell was empty or unparseable; a bad number is
// absent, never zero.
type FieldLogRow struct {
	Sheet string
	Row   int // 1-based row in the source sheet

	WellRef        string
	TankLabel      string
	OilLevelInches sql.NullFloat64 // feet*12 + inches, the downstream unit
	GasRate        sql.NullFloat64
	InstantGasRate sql.NullFloat64
	TubingPressure sql.NullFloat64
	CasingPressure sql.NullFloat64
	LinePressure   sql.NullFloat64
	Comment        string
	Day            time.Time
	Extra          map[string]string // unmapped columns, kept as metadata
}

// HasData reports whether the row carries at least one data point beyond the
// well identifier. Identifier-only rows are dropped.
func (r FieldLogRow) HasData() bool {
	return r.OilLevelInches.Valid || r.GasRate.Valid || r.InstantGasRate.Valid ||
		r.TubingPressure.Valid || r.CasingPressure.Valid || r.LinePressure.Valid
}

type FieldLogParse struct {
	Rows   []FieldLogRow
	Errors []models.ImportError
}

type fieldColumn int

const (
	colWell fieldColumn = iota
	colTank
	colOilFeet
	colOilInches
	colGasRate
	colInstantGas
	colTubing
	colCasing
	colLine
	colComment
	colDate
)

// classifyHeader matches a header label to an expected field by substring
// and synonym, order-independent and tolerant of extra columns. The more
// specific checks run first ("instant gas" before "gas").
func classifyHeader(h string) (fieldColumn, bool) {
	h = strings.ToLower(strings.TrimSpace(h))
	switch {
	case h == "":
		return 0, false
	case strings.Contains(h, "well") || strings.Contains(h, "lease") || strings.Contains(h, "api"):
		return colWell, true
	case strings.Contains(h, "tank"):
		return colTank, true
	case strings.Contains(h, "instant") || strings.Contains(h, "inst gas"):
		return colInstantGas, true
	case strings.Contains(h, "gas"):
		return colGasRate, true
	case strings.Contains(h, "tubing") || strings.Contains(h, "tbg"):
		return colTubing, true
	case strings.Contains(h, "casing") || strings.Contains(h, "csg"):
		return colCasing, true
	case strings.Contains(h, "line"):
		return colLine, true
	case strings.Contains(h, "feet") || strings.Contains(h, "(ft") || strings.Contains(h, " ft"):
		return colOilFeet, true
	case strings.Contains(h, "inch") || strings.Contains(h, "(in") || strings.Contains(h, " in"):
		return colOilInches, true
	case strings.Contains(h, "comment") || strings.Contains(h, "remark") || strings.Contains(h, "note"):
		return colComment, true
	case strings.Contains(h, "date"):
		return colDate, true
	}
	return 0, false
}

// ParseFieldLogWorkbook parses a workbook where each sheet holds one
// calendar day of field readings. Sheets are independent: a sheet that
// cannot be parsed records an error and the rest continue. Only a workbook
// with unreadable bytes or zero sheets fails outright.
func ParseFieldLogWorkbook(data []byte, loc *time.Location) (*FieldLogParse, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	result := &FieldLogParse{}
	for _, sheet := range sheets {
		parseFieldLogSheet(f, sheet, loc, result)
	}
	return result, nil
}

func parseFieldLogSheet(f *excelize.File, sheet string, loc *time.Location, out *FieldLogParse) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		out.Errors = append(out.Errors, models.ImportError{Sheet: sheet, Message: fmt.Sprintf("read sheet: %v", err)})
		return
	}
	if len(rows) < 2 {
		return
	}

	cols := make(map[fieldColumn]int)
	extras := make(map[int]string)
	for i, h := range rows[0] {
		field, ok := classifyHeader(h)
		if !ok {
			if strings.TrimSpace(h) != "" {
				extras[i] = strings.TrimSpace(h)
			}
			continue
		}
		if _, claimed := cols[field]; !claimed {
			cols[field] = i
		}
	}

	wellCol, ok := cols[colWell]
	if !ok {
		out.Errors = append(out.Errors, models.ImportError{Sheet: sheet, Message: "no well identifier column found"})
		return
	}

	sheetDate, sheetDateOK := ParseSheetDate(sheet, loc)
	_, hasDateCol := cols[colDate]
	if !sheetDateOK && !hasDateCol {
		out.Errors = append(out.Errors, models.ImportError{Sheet: sheet, Message: "cannot determine date from sheet name and no date column"})
		return
	}

	cell := func(row []string, field fieldColumn) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	num := func(row []string, field fieldColumn) sql.NullFloat64 {
		if v, ok := ParseNumber(cell(row, field)); ok {
			return sql.NullFloat64{Float64: v, Valid: true}
		}
		return sql.NullFloat64{}
	}

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if wellCol >= len(row) {
			continue
		}
		ref := strings.TrimSpace(row[wellCol])
		if ref == "" {
			continue
		}

		// Row-level date wins over the sheet-name date; an unparseable
		// row date falls back to the sheet date.
		day := sheetDate
		if hasDateCol {
			if d, ok := ParseCellDate(cell(row, colDate), loc); ok {
				day = d
			} else if !sheetDateOK {
				out.Errors = append(out.Errors, models.ImportError{Sheet: sheet, Row: i + 1, Message: "no usable date for row"})
				continue
			}
		}

		r := FieldLogRow{
			Sheet:          sheet,
			Row:            i + 1,
			WellRef:        ref,
			TankLabel:      normalizeTankLabel(cell(row, colTank)),
			GasRate:        num(row, colGasRate),
			InstantGasRate: num(row, colInstantGas),
			TubingPressure: num(row, colTubing),
			CasingPressure: num(row, colCasing),
			LinePressure:   num(row, colLine),
			Comment:        cell(row, colComment),
			Day:            day,
		}

		feet := num(row, colOilFeet)
		inches := num(row, colOilInches)
		if feet.Valid || inches.Valid {
			r.OilLevelInches = sql.NullFloat64{Float64: feet.Float64*12 + inches.Float64, Valid: true}
		}

		for col, header := range extras {
			if col < len(row) {
				if v := strings.TrimSpace(row[col]); v != "" {
					if r.Extra == nil {
						r.Extra = make(map[string]string)
					}
					r.Extra[header] = v
				}
			}
		}

		if !r.HasData() {
			continue
		}
		out.Rows = append(out.Rows, r)
	}
}

// normalizeTankLabel turns bare tank numbers ("1") into the stored label
// form ("Tank 1"). A row with oil data but no tank cell lands on Tank 1.
func normalizeTankLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Tank 1"
	}
	if strings.HasPrefix(strings.ToLower(s), "tank") {
		return "Tank " + strings.TrimSpace(s[4:])
	}
	return "Tank " + s
}

package ingest

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/caprock/fieldbook/internal/models"
)

// WellRosterRow is one parsed line of a well-roster CSV.
type WellRosterRow struct {
	Row           int
	WellNumber    string
	Name          string
	APIAlt        string
	SecondaryName string
	Status        string
	TankFactor    sql.NullFloat64
}

func classifyRosterHeader(h string) (string, bool) {
	h = strings.ToLower(strings.TrimSpace(h))
	switch {
	case h == "":
		return "", false
	case strings.Contains(h, "alt"):
		return "apiAlt", true
	case strings.Contains(h, "secondary") || strings.Contains(h, "aka"):
		return "secondaryName", true
	case strings.Contains(h, "number") || strings.Contains(h, "api") || h == "well":
		return "wellNumber", true
	case strings.Contains(h, "name") || strings.Contains(h, "well"):
		return "name", true
	case strings.Contains(h, "status") || strings.Contains(h, "active"):
		return "status", true
	case strings.Contains(h, "factor") || strings.Contains(h, "bbl"):
		return "tankFactor", true
	}
	return "", false
}

// ParseWellRoster parses a header-mapped well roster CSV. Rows without a
// well number are reported and skipped, not fatal.
func ParseWellRoster(r io.Reader) ([]WellRosterRow, []models.ImportError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int)
	for i, h := range header {
		if field, ok := classifyRosterHeader(h); ok {
			if _, claimed := cols[field]; !claimed {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["wellNumber"]; !ok {
		return nil, nil, fmt.Errorf("no well number column found")
	}

	cell := func(rec []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []WellRosterRow
	var errs []models.ImportError
	for rowNo := 2; ; rowNo++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, models.ImportError{Row: rowNo, Message: fmt.Sprintf("read row: %v", err)})
			continue
		}

		row := WellRosterRow{
			Row:           rowNo,
			WellNumber:    cell(rec, "wellNumber"),
			Name:          cell(rec, "name"),
			APIAlt:        cell(rec, "apiAlt"),
			SecondaryName: cell(rec, "secondaryName"),
			Status:        normalizeStatus(cell(rec, "status")),
		}
		if row.WellNumber == "" {
			errs = append(errs, models.ImportError{Row: rowNo, Message: "missing well number"})
			continue
		}
		if v, ok := ParseNumber(cell(rec, "tankFactor")); ok {
			row.TankFactor = sql.NullFloat64{Float64: v, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows, errs, nil
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inactive", "shut-in", "shut in", "plugged", "no", "false", "0":
		return "inactive"
	default:
		return "active"
	}
}

package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var digitRun = regexp.MustCompile(`\d+`)

// Layouts the operator's workbooks have been seen to use for literal dates.
var cellDateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
	"01-02-06",
	"Jan 2, 2006",
	"2-Jan-06",
	"Jan-06",
}

// ParseSheetDate infers a calendar day from a field-log sheet name. Sheet
// names encode the day as a digit token: 6 digits are MMDDYY, 5 digits are
// MM D YY with a single-digit day. Anything else falls through to the
// literal date layouts.
func ParseSheetDate(name string, loc *time.Location) (time.Time, bool) {
	token := digitRun.FindString(name)
	switch len(token) {
	case 6:
		return civilDate(token[0:2], token[2:4], token[4:6], loc)
	case 5:
		return civilDate(token[0:2], token[2:3], token[3:5], loc)
	}
	return ParseCellDate(strings.TrimSpace(name), loc)
}

func civilDate(mm, dd, yy string, loc *time.Location) (time.Time, bool) {
	month, err := strconv.Atoi(mm)
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dd)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yy)
	if err != nil {
		return time.Time{}, false
	}
	t := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, loc)
	// Reject rollover like 023125 -> Mar 3.
	if int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// excelEpoch is the zero of Excel's 1900 date system. The system's day 1 is
// 1900-01-01, and it inherits Lotus 1-2-3's phantom 1900-02-29, which the
// offset to Dec 30 1899 absorbs for all modern dates.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseExcelSerial converts an Excel date serial to a calendar day. Serials
// outside [1900, 2100] yield false rather than a nonsense date.
func ParseExcelSerial(serial float64, loc *time.Location) (time.Time, bool) {
	if serial <= 0 {
		return time.Time{}, false
	}
	t := excelEpoch.AddDate(0, 0, int(serial))
	if t.Year() < 1900 || t.Year() > 2100 {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
}

// ParseCellDate parses a workbook cell that holds either an Excel serial
// number or a literal date string.
func ParseCellDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return ParseExcelSerial(serial, loc)
	}
	for _, layout := range cellDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			if t.Year() >= 1900 && t.Year() <= 2100 {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// ParseNumber parses a numeric cell, tolerating thousands separators and
// currency/percent decorations. Unparseable values are absent, not zero.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	// Accounting exports wrap negatives in parentheses.
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

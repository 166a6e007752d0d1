// Package analytics computes production rates and daily aggregates from
// already-persisted time series. Every function is total: missing data
// yields a "no data" value (zero, invalid NullFloat64, empty slice), never
// an error, because gaps in field data are the steady state, not a fault.
package analytics

import (
	"database/sql"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/caprock/fieldbook/internal/models"
)

const dayLayout = "2006-01-02"

// McfPerBOE converts gas volume to barrels of oil equivalent.
// 6 Mcf of gas carries roughly the energy of one barrel of oil.
const McfPerBOE = 6.0

// TankFactorToBarrels converts a tank level in inches to barrels. A factor
// of zero or less means the well's tank factor is unconfigured; the result
// is then 0, not an error.
func TankFactorToBarrels(levelInches, tankFactor float64) float64 {
	if tankFactor <= 0 {
		return 0
	}
	return levelInches * tankFactor
}

// Rate is the day-over-day production rate between two samples, rounded to
// one decimal. It cannot be computed when there is no previous sample or no
// elapsed time; the result is then invalid rather than zero, because
// "unknown" and "not producing" are different answers.
func Rate(current float64, previous sql.NullFloat64, daysElapsed int) sql.NullFloat64 {
	if !previous.Valid || daysElapsed <= 0 {
		return models.NoRate
	}
	r := (current - previous.Float64) / float64(daysElapsed)
	return sql.NullFloat64{Float64: math.Round(r*10) / 10, Valid: true}
}

// BOE combines oil and gas rates into barrels of oil equivalent.
func BOE(oilRate, gasRate float64) float64 {
	return oilRate + gasRate/McfPerBOE
}

// DaysBetween returns the whole calendar days from one day key to another.
// Malformed keys yield 0.
func DaysBetween(from, to string) int {
	a, err1 := time.Parse(dayLayout, from)
	b, err2 := time.Parse(dayLayout, to)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}

// PreviousDay returns the calendar day immediately before a day key.
func PreviousDay(day string) string {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(dayLayout)
}

// Series is an immutable snapshot of the persisted time series, indexed for
// the lookups the aggregate build needs. Build one per analytics request;
// methods are safe to call concurrently.
type Series struct {
	wells map[string]models.Well
	// gaugings per well|tank, sorted ascending by day.
	gaugings map[string][]models.TankGauging
	tanksFor map[string][]string
	// readings per well|meterType, sorted ascending by day.
	readings map[string][]models.MeterReading
	// activity holds every well|day with at least one gauging or reading.
	activity map[string]bool
}

func seriesKey(wellID, slot string) string {
	return wellID + "|" + slot
}

// NewSeries indexes a snapshot of wells, gaugings and readings.
func NewSeries(wells []models.Well, gaugings []models.TankGauging, readings []models.MeterReading) *Series {
	s := &Series{
		wells:    make(map[string]models.Well, len(wells)),
		gaugings: make(map[string][]models.TankGauging),
		tanksFor: make(map[string][]string),
		readings: make(map[string][]models.MeterReading),
		activity: make(map[string]bool),
	}
	for _, w := range wells {
		s.wells[w.ID] = w
	}
	for _, g := range gaugings {
		key := seriesKey(g.WellID, g.TankLabel)
		if len(s.gaugings[key]) == 0 {
			s.tanksFor[g.WellID] = append(s.tanksFor[g.WellID], g.TankLabel)
		}
		s.gaugings[key] = append(s.gaugings[key], g)
		s.activity[seriesKey(g.WellID, g.Day)] = true
	}
	for _, r := range readings {
		key := seriesKey(r.WellID, r.MeterType)
		s.readings[key] = append(s.readings[key], r)
		s.activity[seriesKey(r.WellID, r.Day)] = true
	}
	for key := range s.gaugings {
		list := s.gaugings[key]
		sort.Slice(list, func(i, j int) bool { return list[i].Day < list[j].Day })
	}
	for key := range s.readings {
		list := s.readings[key]
		sort.Slice(list, func(i, j int) bool { return list[i].Day < list[j].Day })
	}
	for wellID := range s.tanksFor {
		sort.Strings(s.tanksFor[wellID])
	}
	return s
}

// gaugingOn returns the gauging for a tank on an exact day.
func (s *Series) gaugingOn(wellID, tank, day string) (models.TankGauging, bool) {
	for _, g := range s.gaugings[seriesKey(wellID, tank)] {
		if g.Day == day {
			return g, true
		}
		if g.Day > day {
			break
		}
	}
	return models.TankGauging{}, false
}

// gaugingBefore returns the latest gauging for a tank strictly before a day.
// "Previous" is the most recent earlier sample, not necessarily yesterday.
func (s *Series) gaugingBefore(wellID, tank, day string) (models.TankGauging, bool) {
	list := s.gaugings[seriesKey(wellID, tank)]
	i := sort.Search(len(list), func(i int) bool { return list[i].Day >= day })
	if i == 0 {
		return models.TankGauging{}, false
	}
	return list[i-1], true
}

// ReadingOn returns the latest same-day reading of one meter type.
func (s *Series) ReadingOn(wellID, meterType, day string) (models.MeterReading, bool) {
	var found models.MeterReading
	var ok bool
	for _, r := range s.readings[seriesKey(wellID, meterType)] {
		if r.Day == day {
			found, ok = r, true
		}
		if r.Day > day {
			break
		}
	}
	return found, ok
}

// LatestReading returns the most recent reading of one meter type on or
// before a day.
func (s *Series) LatestReading(wellID, meterType, day string) (models.MeterReading, bool) {
	list := s.readings[seriesKey(wellID, meterType)]
	i := sort.Search(len(list), func(i int) bool { return list[i].Day > day })
	if i == 0 {
		return models.MeterReading{}, false
	}
	return list[i-1], true
}

// OilRateOn computes a well's oil production rate for one day: the sum of
// per-tank rates between that day's gauging and each tank's previous
// gauging. Negative tank deltas are oil pickups (haul-offs), not negative
// production, and are excluded from the sum.
func (s *Series) OilRateOn(wellID, day string) sql.NullFloat64 {
	w, ok := s.wells[wellID]
	if !ok {
		return models.NoRate
	}

	var total float64
	var any bool
	for _, tank := range s.tanksFor[wellID] {
		cur, ok := s.gaugingOn(wellID, tank, day)
		if !ok {
			continue
		}
		prev, ok := s.gaugingBefore(wellID, tank, day)
		if !ok {
			continue
		}
		curBbl := TankFactorToBarrels(cur.LevelInches, w.TankFactor)
		prevBbl := TankFactorToBarrels(prev.LevelInches, w.TankFactor)
		r := Rate(curBbl, sql.NullFloat64{Float64: prevBbl, Valid: true}, DaysBetween(prev.Day, cur.Day))
		if !r.Valid {
			continue
		}
		any = true
		if r.Float64 > 0 {
			total += r.Float64
		}
	}
	if !any {
		return models.NoRate
	}
	return sql.NullFloat64{Float64: math.Round(total*10) / 10, Valid: true}
}

// GasRateOn returns a well's gas rate for one day: the latest same-day
// Gas Rate reading. Meters report a rate directly, so no differencing.
func (s *Series) GasRateOn(wellID, day string) sql.NullFloat64 {
	r, ok := s.ReadingOn(wellID, models.MeterGasRate, day)
	if !ok {
		return models.NoRate
	}
	return sql.NullFloat64{Float64: r.Value, Valid: true}
}

// GasChange is the day-over-day change in a well's gas rate. Unlike oil,
// this compares against the immediately preceding calendar day only; a gap
// means no change can be stated.
func (s *Series) GasChange(wellID, day string) sql.NullFloat64 {
	cur := s.GasRateOn(wellID, day)
	if !cur.Valid {
		return models.NoRate
	}
	prev := s.GasRateOn(wellID, PreviousDay(day))
	return Rate(cur.Float64, prev, 1)
}

// Online reports whether a well has at least one gauging or reading on a
// day.
func (s *Series) Online(wellID, day string) bool {
	return s.activity[seriesKey(wellID, day)]
}

// Inactive reports whether a well should be flagged inactive as of a day.
// The check looks at yesterday, not today, so wells are not flagged before
// the current day's data entry is complete.
func (s *Series) Inactive(wellID, day string) bool {
	return !s.Online(wellID, PreviousDay(day))
}

// DailyAggregate is field-wide production for one civil day.
type DailyAggregate struct {
	Day     string  `json:"day"`
	OilRate float64 `json:"oilRate"`
	GasRate float64 `json:"gasRate"`
	BOE     float64 `json:"boe"`
}

// DailyAggregates builds the per-day field totals for an inclusive day
// range. The day axis is the union of every calendar day in the range and
// every day with data, so a day without samples appears with zeros instead
// of being silently absent.
func (s *Series) DailyAggregates(from, to string) []DailyAggregate {
	days := map[string]bool{}
	start, err1 := time.Parse(dayLayout, from)
	end, err2 := time.Parse(dayLayout, to)
	if err1 == nil && err2 == nil {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			days[d.Format(dayLayout)] = true
		}
	}
	for key := range s.activity {
		day := key[strings.LastIndexByte(key, '|')+1:]
		if day >= from && day <= to {
			days[day] = true
		}
	}

	ordered := make([]string, 0, len(days))
	for d := range days {
		ordered = append(ordered, d)
	}
	sort.Strings(ordered)

	out := make([]DailyAggregate, 0, len(ordered))
	for _, day := range ordered {
		agg := DailyAggregate{Day: day}
		for wellID := range s.wells {
			if oil := s.OilRateOn(wellID, day); oil.Valid && oil.Float64 > 0 {
				agg.OilRate += oil.Float64
			}
			if gas := s.GasRateOn(wellID, day); gas.Valid {
				agg.GasRate += gas.Float64
			}
		}
		agg.BOE = BOE(agg.OilRate, agg.GasRate)
		out = append(out, agg)
	}
	return out
}

// MonthlyAverage is the arithmetic mean of the daily aggregates. Days
// without data are already zeros in the aggregate build, so they weigh the
// mean down rather than being skipped.
func MonthlyAverage(days []DailyAggregate) DailyAggregate {
	if len(days) == 0 {
		return DailyAggregate{}
	}
	var avg DailyAggregate
	for _, d := range days {
		avg.OilRate += d.OilRate
		avg.GasRate += d.GasRate
		avg.BOE += d.BOE
	}
	n := float64(len(days))
	avg.OilRate /= n
	avg.GasRate /= n
	avg.BOE /= n
	return avg
}

package analytics

import (
	"database/sql"
	"sort"
	"time"

	"github.com/caprock/fieldbook/internal/models"
)

// WellStatus is one well's current standing for the dashboard. Rate fields
// are pointers so "not computable" serializes as null, not 0.
type WellStatus struct {
	models.Well
	OilRate   *float64 `json:"oilRate"`
	GasRate   *float64 `json:"gasRate"`
	GasChange *float64 `json:"gasChange"`
	Online    bool     `json:"online"`
	Inactive  bool     `json:"inactive"`
	BOE       *float64 `json:"boe"`
}

// Dashboard is the month-to-date field summary plus per-well status rows.
type Dashboard struct {
	Day     string           `json:"day"`
	Month   []DailyAggregate `json:"month"`
	Average DailyAggregate   `json:"average"`
	Wells   []WellStatus     `json:"wells"`
}

// BuildDashboard assembles the month-to-date dashboard as of now.
func BuildDashboard(s *Series, now time.Time, loc *time.Location) *Dashboard {
	today := models.DayKey(now, loc)
	monthStart := models.DayKey(time.Date(now.In(loc).Year(), now.In(loc).Month(), 1, 0, 0, 0, 0, loc), loc)

	month := s.DailyAggregates(monthStart, today)
	d := &Dashboard{
		Day:     today,
		Month:   month,
		Average: MonthlyAverage(month),
	}

	wells := make([]models.Well, 0, len(s.wells))
	for _, w := range s.wells {
		wells = append(wells, w)
	}
	sort.Slice(wells, func(i, j int) bool { return wells[i].WellNumber < wells[j].WellNumber })

	for _, w := range wells {
		oil := s.OilRateOn(w.ID, today)
		gas := s.GasRateOn(w.ID, today)
		st := WellStatus{
			Well:      w,
			OilRate:   nullable(oil),
			GasRate:   nullable(gas),
			GasChange: nullable(s.GasChange(w.ID, today)),
			Online:    s.Online(w.ID, today),
			Inactive:  s.Inactive(w.ID, today),
		}
		if oil.Valid || gas.Valid {
			var o, g float64
			if oil.Valid {
				o = oil.Float64
			}
			if gas.Valid {
				g = gas.Float64
			}
			boe := BOE(o, g)
			st.BOE = &boe
		}
		d.Wells = append(d.Wells, st)
	}
	return d
}

func nullable(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

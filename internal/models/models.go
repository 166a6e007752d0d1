package models

import (
	"database/sql"
	"time"
)

// Record type names as stored in the document store. The strings match the
// collection names used by the legacy system so old exports restore cleanly.
const (
	RecordTypeWell         = "wells"
	RecordTypeTankGauging  = "tankGaugings"
	RecordTypeMeterReading = "meterReadings"
	RecordTypeBaseline     = "baselineModel"
)

type Well struct {
	ID            string  `json:"id"`
	WellNumber    string  `json:"wellNumber"`
	Name          string  `json:"name"`
	APIAlt        string  `json:"apiAlt,omitempty"`
	SecondaryName string  `json:"secondaryName,omitempty"`
	Status        string  `json:"status"` // "active" or "inactive"
	TankFactor    float64 `json:"tankFactor,omitempty"` // barrels per inch, 0 = unconfigured
}

func (w Well) Active() bool {
	return w.Status != "inactive"
}

// TankGauging is one tank level measurement for one civil day.
// Day is a YYYY-MM-DD key in the operator's timezone.
type TankGauging struct {
	ID          string            `json:"id"`
	WellID      string            `json:"wellId"`
	TankLabel   string            `json:"tankLabel"`
	LevelInches float64           `json:"levelInches"`
	Day         string            `json:"day"`
	OwnerUserID string            `json:"ownerUserId,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type MeterReading struct {
	ID          string            `json:"id"`
	WellID      string            `json:"wellId"`
	MeterType   string            `json:"meterType"`
	Value       float64           `json:"value"`
	Unit        string            `json:"unit,omitempty"`
	Day         string            `json:"day"`
	OwnerUserID string            `json:"ownerUserId,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SeriesRow is one labeled row of the baseline model, values keyed by the
// dataset's shared date keys.
type SeriesRow struct {
	Label  string             `json:"label"`
	Values map[string]float64 `json:"values"`
}

// BaselineDataset is a singleton: each import replaces the whole record.
type BaselineDataset struct {
	ID              string      `json:"id"`
	DateKeys        []string    `json:"dateKeys"`
	Prices          []SeriesRow `json:"prices"`
	PDPAssumptions  []SeriesRow `json:"pdpAssumptions"`
	PDSIAssumptions []SeriesRow `json:"pdsiAssumptions"`
	PDPCalcs        []SeriesRow `json:"pdpCalcs"`
	PDSICalcs       []SeriesRow `json:"pdsiCalcs"`
	Other           []SeriesRow `json:"other"`
	TotalCashFlow   []SeriesRow `json:"totalCashFlow"`
	IRR             float64     `json:"irr"`
	NetFCF          float64     `json:"netFcf"`
	ImportedAt      time.Time   `json:"importedAt"`
}

type ImportError struct {
	Sheet   string `json:"sheet,omitempty"`
	Row     int    `json:"row,omitempty"`
	Message string `json:"error"`
}

type FieldLogCounts struct {
	TankGaugings  int `json:"tankGaugings"`
	MeterReadings int `json:"meterReadings"`
}

type FieldLogResult struct {
	Success  bool           `json:"success"`
	Imported FieldLogCounts `json:"imported"`
	Skipped  int            `json:"skipped"`
	Errors   []ImportError  `json:"errors"`
}

type WellRosterResult struct {
	Success  bool          `json:"success"`
	Imported int           `json:"imported"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

type BaselineResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DayKey normalizes an instant to the operator's civil day. All stored time
// series use these keys so one field day's readings group together no matter
// what UTC offset the source carried.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// NoRate is the "cannot be computed" sentinel returned by rate calculations.
var NoRate = sql.NullFloat64{}

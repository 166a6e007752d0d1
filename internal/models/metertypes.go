package models

import "strings"

// Canonical meter type names. Historical records carry case variants of the
// same strings, so comparisons go through NormalizeMeterType.
const (
	MeterGasRate        = "Gas Rate"
	MeterInstantGasRate = "Instant Gas Rate"
	MeterTubingPressure = "Tubing Pressure"
	MeterCasingPressure = "Casing Pressure"
	MeterLinePressure   = "Line Pressure"
)

var meterSynonyms = map[string]string{
	"gas rate":         MeterGasRate,
	"gas":              MeterGasRate,
	"mcf":              MeterGasRate,
	"instant gas rate": MeterInstantGasRate,
	"instant gas":      MeterInstantGasRate,
	"inst gas":         MeterInstantGasRate,
	"tubing pressure":  MeterTubingPressure,
	"tubing":           MeterTubingPressure,
	"tbg":              MeterTubingPressure,
	"tbg pressure":     MeterTubingPressure,
	"casing pressure":  MeterCasingPressure,
	"casing":           MeterCasingPressure,
	"csg":              MeterCasingPressure,
	"csg pressure":     MeterCasingPressure,
	"line pressure":    MeterLinePressure,
	"line":             MeterLinePressure,
}

// NormalizeMeterType maps a free-form meter type string onto its canonical
// name. Unknown types are returned trimmed but otherwise untouched so stored
// history never gets corrupted by a lookup miss.
func NormalizeMeterType(s string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if canonical, ok := meterSynonyms[key]; ok {
		return canonical, true
	}
	return strings.TrimSpace(s), false
}

// MeterUnit returns the conventional unit for a canonical meter type.
func MeterUnit(meterType string) string {
	switch meterType {
	case MeterGasRate, MeterInstantGasRate:
		return "MCF"
	case MeterTubingPressure, MeterCasingPressure, MeterLinePressure:
		return "PSI"
	}
	return ""
}

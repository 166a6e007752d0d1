// Package reconcile turns parsed import rows into document-store operations
// with idempotent replace semantics. The store has no uniqueness
// constraint, so "at most one record per (well, slot, day)" is enforced
// purely by emitting a delete for the prior record before the new insert.
package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caprock/fieldbook/internal/docstore"
	"github.com/caprock/fieldbook/internal/ingest"
	"github.com/caprock/fieldbook/internal/models"
	"github.com/caprock/fieldbook/internal/wellindex"
)

// Snapshot maps existing record keys to their ids, built from the store
// state the caller read before reconciling.
type Snapshot struct {
	gaugings map[string]string
	readings map[string]string
}

func NewSnapshot(gaugings []models.TankGauging, readings []models.MeterReading) *Snapshot {
	s := &Snapshot{
		gaugings: make(map[string]string, len(gaugings)),
		readings: make(map[string]string, len(readings)),
	}
	for _, g := range gaugings {
		s.gaugings[recordKey(g.WellID, g.TankLabel, g.Day)] = g.ID
	}
	for _, r := range readings {
		meterType, _ := models.NormalizeMeterType(r.MeterType)
		s.readings[recordKey(r.WellID, meterType, r.Day)] = r.ID
	}
	return s
}

func recordKey(wellID, slot, day string) string {
	return wellID + "|" + slot + "|" + day
}

// op is one ordered store operation. Within a plan, the delete for a key
// always precedes the insert that replaces it.
type op struct {
	deleteID string
	upsert   *docstore.Record
}

type plan struct {
	ops     []op
	skipped int
	errors  []models.ImportError
}

// runState tracks keys already deleted during this import run, so several
// rows targeting the same key emit only one delete. It is scoped to a
// single plan build, never shared across imports.
type runState struct {
	deleted map[string]bool
}

func buildFieldLogPlan(rows []ingest.FieldLogRow, idx *wellindex.Index, snap *Snapshot, ownerID string, loc *time.Location) *plan {
	p := &plan{}
	state := runState{deleted: make(map[string]bool)}

	for _, row := range rows {
		well, ok := idx.Resolve(row.WellRef)
		if !ok {
			p.errors = append(p.errors, models.ImportError{
				Sheet:   row.Sheet,
				Row:     row.Row,
				Message: fmt.Sprintf("unknown well %q", row.WellRef),
			})
			p.skipped++
			continue
		}

		day := models.DayKey(row.Day, loc)
		meta := rowMetadata(row)

		if row.OilLevelInches.Valid {
			g := models.TankGauging{
				ID:          uuid.NewString(),
				WellID:      well.ID,
				TankLabel:   row.TankLabel,
				LevelInches: row.OilLevelInches.Float64,
				Day:         day,
				OwnerUserID: ownerID,
				Metadata:    meta,
			}
			rec, err := docstore.NewRecord(g.ID, models.RecordTypeTankGauging, g)
			if err != nil {
				p.errors = append(p.errors, models.ImportError{Sheet: row.Sheet, Row: row.Row, Message: err.Error()})
				continue
			}
			p.replace(&state, snap.gaugings, recordKey(well.ID, g.TankLabel, day), rec)
		}

		for _, m := range rowMeters(row) {
			r := models.MeterReading{
				ID:          uuid.NewString(),
				WellID:      well.ID,
				MeterType:   m.meterType,
				Value:       m.value,
				Unit:        models.MeterUnit(m.meterType),
				Day:         day,
				OwnerUserID: ownerID,
				Metadata:    meta,
			}
			rec, err := docstore.NewRecord(r.ID, models.RecordTypeMeterReading, r)
			if err != nil {
				p.errors = append(p.errors, models.ImportError{Sheet: row.Sheet, Row: row.Row, Message: err.Error()})
				continue
			}
			p.replace(&state, snap.readings, recordKey(well.ID, m.meterType, day), rec)
		}
	}
	return p
}

// replace emits the delete-before-insert pair for one key. The prior
// record's delete is emitted at most once per run.
func (p *plan) replace(state *runState, existing map[string]string, key string, rec docstore.Record) {
	if id, ok := existing[key]; ok && !state.deleted[key] {
		p.ops = append(p.ops, op{deleteID: id})
		state.deleted[key] = true
	}
	p.ops = append(p.ops, op{upsert: &rec})
}

type meterValue struct {
	meterType string
	value     float64
}

func rowMeters(row ingest.FieldLogRow) []meterValue {
	var out []meterValue
	if row.GasRate.Valid {
		out = append(out, meterValue{models.MeterGasRate, row.GasRate.Float64})
	}
	if row.InstantGasRate.Valid {
		out = append(out, meterValue{models.MeterInstantGasRate, row.InstantGasRate.Float64})
	}
	if row.TubingPressure.Valid {
		out = append(out, meterValue{models.MeterTubingPressure, row.TubingPressure.Float64})
	}
	if row.CasingPressure.Valid {
		out = append(out, meterValue{models.MeterCasingPressure, row.CasingPressure.Float64})
	}
	if row.LinePressure.Valid {
		out = append(out, meterValue{models.MeterLinePressure, row.LinePressure.Float64})
	}
	return out
}

func rowMetadata(row ingest.FieldLogRow) map[string]string {
	meta := map[string]string{"sheet": row.Sheet}
	if row.Comment != "" {
		meta["comment"] = row.Comment
	}
	for k, v := range row.Extra {
		meta[k] = v
	}
	return meta
}

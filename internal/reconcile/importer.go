package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/caprock/fieldbook/internal/docstore"
	"github.com/caprock/fieldbook/internal/ingest"
	"github.com/caprock/fieldbook/internal/metrics"
	"github.com/caprock/fieldbook/internal/models"
	"github.com/caprock/fieldbook/internal/wellindex"
)

// batchSize bounds each store transaction; the collaborator documents a
// 50-100 operation limit.
const batchSize = 75

// Importer orchestrates imports against the document store. The mutex
// serializes imports process-wide: the delete-before-insert sequence for a
// key must never interleave with another import touching the same key.
type Importer struct {
	store docstore.Store
	loc   *time.Location
	mu    sync.Mutex
}

func NewImporter(store docstore.Store, loc *time.Location) *Importer {
	return &Importer{store: store, loc: loc}
}

// ImportFieldLogs parses a field-log workbook and reconciles it into the
// store. Re-importing the same workbook replaces records instead of
// accumulating duplicates. Only unreadable bytes fail hard; everything
// else is reported in the result.
func (im *Importer) ImportFieldLogs(ctx context.Context, data []byte, ownerID string) (*models.FieldLogResult, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	parsed, err := ingest.ParseFieldLogWorkbook(data, im.loc)
	if err != nil {
		metrics.WorkbooksImported.WithLabelValues("fieldlog", "failed").Inc()
		return nil, err
	}

	wells, err := im.loadWells(ctx)
	if err != nil {
		return nil, err
	}
	idx := wellindex.New(wells)

	gaugings, readings, err := im.loadTimeSeries(ctx)
	if err != nil {
		return nil, err
	}
	snap := NewSnapshot(gaugings, readings)

	p := buildFieldLogPlan(parsed.Rows, idx, snap, ownerID, im.loc)
	committed, commitErrs := im.commit(ctx, p.ops)
	errs := append(parsed.Errors, p.errors...)
	errs = append(errs, commitErrs...)

	// Counts come from committed batches, not the plan: after a batch
	// failure the result must not claim records that never landed.
	counts := models.FieldLogCounts{
		TankGaugings:  committed[models.RecordTypeTankGauging],
		MeterReadings: committed[models.RecordTypeMeterReading],
	}
	result := &models.FieldLogResult{
		Success:  len(errs) == 0,
		Imported: counts,
		Skipped:  p.skipped,
		Errors:   errs,
	}

	status := "ok"
	if !result.Success {
		status = "partial"
	}
	metrics.WorkbooksImported.WithLabelValues("fieldlog", status).Inc()
	metrics.RecordsWritten.WithLabelValues(models.RecordTypeTankGauging).Add(float64(counts.TankGaugings))
	metrics.RecordsWritten.WithLabelValues(models.RecordTypeMeterReading).Add(float64(counts.MeterReadings))
	metrics.RowsSkipped.Add(float64(p.skipped))
	metrics.ImportErrors.Add(float64(len(errs)))

	log.Printf("import: field logs done: %d gaugings, %d readings, %d skipped, %d errors",
		counts.TankGaugings, counts.MeterReadings, p.skipped, len(errs))
	return result, nil
}

// ImportBaseline replaces the entire baseline dataset: every existing
// baseline record is deleted, then exactly one new record is inserted.
func (im *Importer) ImportBaseline(ctx context.Context, data []byte) (*models.BaselineResult, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	ds, err := ingest.ParseBaselineWorkbook(data, im.loc)
	if err != nil {
		metrics.WorkbooksImported.WithLabelValues("baseline", "failed").Inc()
		return nil, err
	}
	if len(ds.DateKeys) == 0 {
		metrics.WorkbooksImported.WithLabelValues("baseline", "failed").Inc()
		return &models.BaselineResult{Error: "baseline date row contained no valid dates"}, nil
	}

	existing, err := im.store.Query(ctx, models.RecordTypeBaseline)
	if err != nil {
		return nil, fmt.Errorf("query baseline records: %w", err)
	}

	var ops []op
	for _, r := range existing {
		ops = append(ops, op{deleteID: r.ID})
	}

	ds.ID = uuid.NewString()
	rec, err := docstore.NewRecord(ds.ID, models.RecordTypeBaseline, ds)
	if err != nil {
		return nil, err
	}
	ops = append(ops, op{upsert: &rec})

	if _, errs := im.commit(ctx, ops); len(errs) > 0 {
		metrics.WorkbooksImported.WithLabelValues("baseline", "failed").Inc()
		return &models.BaselineResult{Error: errs[0].Message}, nil
	}

	metrics.WorkbooksImported.WithLabelValues("baseline", "ok").Inc()
	metrics.RecordsWritten.WithLabelValues(models.RecordTypeBaseline).Inc()
	log.Printf("import: baseline replaced, %d date keys", len(ds.DateKeys))
	return &models.BaselineResult{Success: true, ID: ds.ID}, nil
}

// ImportWellRoster upserts the well registry from a CSV. Existing wells are
// matched by well number and keep their ids; unchanged rows are skipped.
func (im *Importer) ImportWellRoster(ctx context.Context, r io.Reader) (*models.WellRosterResult, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	rows, rowErrs, err := ingest.ParseWellRoster(r)
	if err != nil {
		metrics.WorkbooksImported.WithLabelValues("roster", "failed").Inc()
		return nil, err
	}

	wells, err := im.loadWells(ctx)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[string]models.Well, len(wells))
	for _, w := range wells {
		byNumber[wellindex.Normalize(w.WellNumber)] = w
	}

	result := &models.WellRosterResult{Errors: rowErrs}
	var ops []op
	for _, row := range rows {
		w := models.Well{
			WellNumber:    row.WellNumber,
			Name:          row.Name,
			APIAlt:        row.APIAlt,
			SecondaryName: row.SecondaryName,
			Status:        row.Status,
		}
		if row.TankFactor.Valid {
			w.TankFactor = row.TankFactor.Float64
		}

		if prev, ok := byNumber[wellindex.Normalize(row.WellNumber)]; ok {
			w.ID = prev.ID
			if !row.TankFactor.Valid {
				w.TankFactor = prev.TankFactor
			}
			if w == prev {
				result.Skipped++
				continue
			}
			result.Updated++
		} else {
			w.ID = uuid.NewString()
			result.Imported++
		}

		rec, err := docstore.NewRecord(w.ID, models.RecordTypeWell, w)
		if err != nil {
			result.Errors = append(result.Errors, models.ImportError{Row: row.Row, Message: err.Error()})
			continue
		}
		ops = append(ops, op{upsert: &rec})
	}

	committed, commitErrs := im.commit(ctx, ops)
	result.Errors = append(result.Errors, commitErrs...)
	result.Success = len(result.Errors) == 0

	status := "ok"
	if !result.Success {
		status = "partial"
	}
	metrics.WorkbooksImported.WithLabelValues("roster", status).Inc()
	metrics.RecordsWritten.WithLabelValues(models.RecordTypeWell).Add(float64(committed[models.RecordTypeWell]))
	return result, nil
}

// CleanupOrphans deletes gaugings and readings whose well no longer
// exists. Returns the number of records removed.
func (im *Importer) CleanupOrphans(ctx context.Context) (int, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	wells, err := im.loadWells(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(wells))
	for _, w := range wells {
		known[w.ID] = true
	}

	gaugings, readings, err := im.loadTimeSeries(ctx)
	if err != nil {
		return 0, err
	}

	var ops []op
	for _, g := range gaugings {
		if !known[g.WellID] {
			ops = append(ops, op{deleteID: g.ID})
		}
	}
	for _, r := range readings {
		if !known[r.WellID] {
			ops = append(ops, op{deleteID: r.ID})
		}
	}

	if _, errs := im.commit(ctx, ops); len(errs) > 0 {
		return 0, fmt.Errorf("cleanup: %s", errs[0].Message)
	}
	return len(ops), nil
}

// Restore re-ingests a JSON export of the legacy system: a top-level object
// mapping collection names to collections in either array or keyed-map
// shape.
func (im *Importer) Restore(ctx context.Context, r io.Reader) (map[string]int, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	var export map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}

	counts := make(map[string]int)
	for _, recordType := range []string{
		models.RecordTypeWell,
		models.RecordTypeTankGauging,
		models.RecordTypeMeterReading,
		models.RecordTypeBaseline,
	} {
		raw, ok := export[recordType]
		if !ok {
			continue
		}
		recs, err := docstore.ToList(recordType, raw)
		if err != nil {
			return nil, err
		}

		// The baseline is a singleton dataset: restoring one from an
		// export replaces whatever was imported since, same as a fresh
		// baseline import would.
		if recordType == models.RecordTypeBaseline {
			existing, err := im.store.Query(ctx, recordType)
			if err != nil {
				return nil, fmt.Errorf("query baseline records: %w", err)
			}
			ids := make([]string, 0, len(existing))
			for _, rec := range existing {
				ids = append(ids, rec.ID)
			}
			if err := im.retryBatch(ctx, func() error {
				return im.store.BatchDelete(ctx, ids)
			}); err != nil {
				return nil, fmt.Errorf("restore %s: %w", recordType, err)
			}
		}

		for start := 0; start < len(recs); start += batchSize {
			end := min(start+batchSize, len(recs))
			if err := im.retryBatch(ctx, func() error {
				return im.store.BatchUpsert(ctx, recs[start:end])
			}); err != nil {
				return nil, fmt.Errorf("restore %s: %w", recordType, err)
			}
		}
		counts[recordType] = len(recs)
		metrics.RecordsWritten.WithLabelValues(recordType).Add(float64(len(recs)))
	}
	return counts, nil
}

// commit applies ops in order, in batches. Within a batch the deletes run
// before the upserts, so a key's delete always lands in the same or an
// earlier batch than its insert. A failed batch becomes one error entry;
// prior batches stay committed (partial success). The returned map counts
// upserted records per record type, committed batches only.
func (im *Importer) commit(ctx context.Context, ops []op) (map[string]int, []models.ImportError) {
	committed := make(map[string]int)
	var errs []models.ImportError
	batchNo := 0
	for start := 0; start < len(ops); start += batchSize {
		end := min(start+batchSize, len(ops))
		batchNo++

		var deletes []string
		var upserts []docstore.Record
		for _, o := range ops[start:end] {
			if o.deleteID != "" {
				deletes = append(deletes, o.deleteID)
			} else if o.upsert != nil {
				upserts = append(upserts, *o.upsert)
			}
		}

		err := im.retryBatch(ctx, func() error {
			if err := im.store.BatchDelete(ctx, deletes); err != nil {
				return err
			}
			return im.store.BatchUpsert(ctx, upserts)
		})
		if err != nil {
			metrics.BatchFailures.Inc()
			errs = append(errs, models.ImportError{
				Message: fmt.Sprintf("write batch %d (%d ops): %v", batchNo, end-start, err),
			})
			continue
		}
		for _, r := range upserts {
			committed[r.Type]++
		}
	}
	return committed, errs
}

func (im *Importer) retryBatch(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return fn()
	}, backoff.WithContext(bo, ctx))
}

func (im *Importer) loadWells(ctx context.Context) ([]models.Well, error) {
	recs, err := im.store.Query(ctx, models.RecordTypeWell)
	if err != nil {
		return nil, fmt.Errorf("query wells: %w", err)
	}
	return docstore.Decode[models.Well](recs)
}

func (im *Importer) loadTimeSeries(ctx context.Context) ([]models.TankGauging, []models.MeterReading, error) {
	grecs, err := im.store.Query(ctx, models.RecordTypeTankGauging)
	if err != nil {
		return nil, nil, fmt.Errorf("query tank gaugings: %w", err)
	}
	gaugings, err := docstore.Decode[models.TankGauging](grecs)
	if err != nil {
		return nil, nil, err
	}

	rrecs, err := im.store.Query(ctx, models.RecordTypeMeterReading)
	if err != nil {
		return nil, nil, fmt.Errorf("query meter readings: %w", err)
	}
	readings, err := docstore.Decode[models.MeterReading](rrecs)
	if err != nil {
		return nil, nil, err
	}
	return gaugings, readings, nil
}

package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cenkalti/backoff/v4"
	"github.com/xuri/excelize/v2"

	"github.com/caprock/fieldbook/internal/docstore"
	"github.com/caprock/fieldbook/internal/models"
)

func setupImporter(t *testing.T) (*Importer, *docstore.SQLite) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := docstore.NewSQLite(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	return NewImporter(store, loc), store
}

func seedWells(t *testing.T, store *docstore.SQLite, wells ...models.Well) {
	t.Helper()
	var recs []docstore.Record
	for _, w := range wells {
		rec, err := docstore.NewRecord(w.ID, models.RecordTypeWell, w)
		if err != nil {
			t.Fatalf("NewRecord: %v", err)
		}
		recs = append(recs, rec)
	}
	if err := store.BatchUpsert(context.Background(), recs); err != nil {
		t.Fatalf("seed wells: %v", err)
	}
}

func buildWorkbook(t *testing.T, sheets map[string][][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	first := true
	for name, rows := range sheets {
		if first {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
			first = false
		} else {
			if _, err := f.NewSheet(name); err != nil {
				t.Fatalf("new sheet: %v", err)
			}
		}
		for i, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				t.Fatalf("set row: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func queryGaugings(t *testing.T, store *docstore.SQLite) []models.TankGauging {
	t.Helper()
	recs, err := store.Query(context.Background(), models.RecordTypeTankGauging)
	if err != nil {
		t.Fatalf("query gaugings: %v", err)
	}
	gaugings, err := docstore.Decode[models.TankGauging](recs)
	if err != nil {
		t.Fatalf("decode gaugings: %v", err)
	}
	return gaugings
}

func queryReadings(t *testing.T, store *docstore.SQLite) []models.MeterReading {
	t.Helper()
	recs, err := store.Query(context.Background(), models.RecordTypeMeterReading)
	if err != nil {
		t.Fatalf("query readings: %v", err)
	}
	readings, err := docstore.Decode[models.MeterReading](recs)
	if err != nil {
		t.Fatalf("decode readings: %v", err)
	}
	return readings
}

var twoSheetWorkbook = map[string][][]interface{}{
	"112225": {
		{"Well", "Tank", "Oil (ft)", "Oil (in)", "Gas Rate"},
		{"Smith 1-H", 1, 9, 6, 50},
	},
	"12125": {
		{"Well", "Tank", "Oil (ft)", "Oil (in)", "Gas Rate"},
		{"Smith 1-H", 1, 9, 6, 50},
	},
}

func TestImportFieldLogs_TwoSheets(t *testing.T) {
	im, store := setupImporter(t)
	seedWells(t, store, models.Well{ID: "w1", WellNumber: "42-1", Name: "Smith 1-H", TankFactor: 5.5})

	result, err := im.ImportFieldLogs(context.Background(), buildWorkbook(t, twoSheetWorkbook), "u1")
	if err != nil {
		t.Fatalf("ImportFieldLogs: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Imported.TankGaugings != 2 || result.Imported.MeterReadings != 2 {
		t.Fatalf("imported = %+v, want 2 gaugings and 2 readings", result.Imported)
	}

	gaugings := queryGaugings(t, store)
	if len(gaugings) != 2 {
		t.Fatalf("stored gaugings = %d, want 2", len(gaugings))
	}
	byDay := map[string]models.TankGauging{}
	for _, g := range gaugings {
		byDay[g.Day] = g
	}
	g, ok := byDay["2025-11-22"]
	if !ok {
		t.Fatalf("no gauging for 2025-11-22: %+v", byDay)
	}
	if g.LevelInches != 114 || g.TankLabel != "Tank 1" || g.WellID != "w1" {
		t.Errorf("gauging = %+v, want 114in Tank 1 on w1", g)
	}
	if _, ok := byDay["2025-12-01"]; !ok {
		t.Errorf("no gauging for 2025-12-01: %+v", byDay)
	}

	readings := queryReadings(t, store)
	if len(readings) != 2 {
		t.Fatalf("stored readings = %d, want 2", len(readings))
	}
	for _, r := range readings {
		if r.MeterType != models.MeterGasRate || r.Value != 50 || r.Unit != "MCF" {
			t.Errorf("reading = %+v, want Gas Rate 50 MCF", r)
		}
	}
}

func TestImportFieldLogs_Idempotent(t *testing.T) {
	im, store := setupImporter(t)
	seedWells(t, store, models.Well{ID: "w1", WellNumber: "42-1", Name: "Smith 1-H"})

	data := buildWorkbook(t, twoSheetWorkbook)
	ctx := context.Background()

	if _, err := im.ImportFieldLogs(ctx, data, "u1"); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if _, err := im.ImportFieldLogs(ctx, data, "u1"); err != nil {
		t.Fatalf("second import: %v", err)
	}

	gaugings := queryGaugings(t, store)
	if len(gaugings) != 2 {
		t.Fatalf("after re-import gaugings = %d, want 2 (no duplicates)", len(gaugings))
	}
	readings := queryReadings(t, store)
	if len(readings) != 2 {
		t.Fatalf("after re-import readings = %d, want 2 (no duplicates)", len(readings))
	}

	// At most one record per (well, tank, day).
	keys := map[string]int{}
	for _, g := range gaugings {
		keys[g.WellID+"|"+g.TankLabel+"|"+g.Day]++
	}
	for k, n := range keys {
		if n != 1 {
			t.Errorf("key %s has %d records, want 1", k, n)
		}
	}
}

func TestImportFieldLogs_UnknownWellSkipped(t *testing.T) {
	im, store := setupImporter(t)
	seedWells(t, store, models.Well{ID: "w1", WellNumber: "42-1", Name: "Smith 1-H"})

	data := buildWorkbook(t, map[string][][]interface{}{
		"112225": {
			{"Well", "Oil (ft)", "Oil (in)"},
			{"Smith 1-H", 9, 6},
			{"No Such Well", 4, 0},
		},
	})

	result, err := im.ImportFieldLogs(context.Background(), data, "u1")
	if err != nil {
		t.Fatalf("ImportFieldLogs: %v", err)
	}
	if result.Success {
		t.Error("result.Success = true, want false with an unresolved well")
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	if len(result.Errors) != 1 || result.Errors[0].Sheet != "112225" || result.Errors[0].Row != 3 {
		t.Errorf("Errors = %+v, want one at sheet 112225 row 3", result.Errors)
	}
	if got := len(queryGaugings(t, store)); got != 1 {
		t.Errorf("stored gaugings = %d, want 1 (resolved row still lands)", got)
	}
}

// rejectingStore passes writes through to a real store until a given batch
// number, then rejects every upsert, standing in for a store that starts
// refusing writes mid-import.
type rejectingStore struct {
	docstore.Store
	rejectFrom int
	upserts    int
}

func (s *rejectingStore) BatchUpsert(ctx context.Context, recs []docstore.Record) error {
	s.upserts++
	if s.upserts >= s.rejectFrom {
		return backoff.Permanent(errors.New("store rejected batch"))
	}
	return s.Store.BatchUpsert(ctx, recs)
}

func TestImportFieldLogs_BatchFailurePartialSuccess(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := docstore.NewSQLite(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seedWells(t, store, models.Well{ID: "w1", WellNumber: "42-1", Name: "Smith 1-H"})

	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	rejecting := &rejectingStore{Store: store, rejectFrom: 2}
	im := NewImporter(rejecting, loc)

	// 80 gauging rows span two batches of 75 ops; the second batch's
	// upsert is rejected.
	rows := [][]interface{}{{"Well", "Tank", "Oil (in)"}}
	for i := 1; i <= 80; i++ {
		rows = append(rows, []interface{}{"Smith 1-H", i, 10 + i})
	}
	data := buildWorkbook(t, map[string][][]interface{}{"112225": rows})

	result, err := im.ImportFieldLogs(context.Background(), data, "u1")
	if err != nil {
		t.Fatalf("ImportFieldLogs: %v", err)
	}
	if result.Success {
		t.Error("result.Success = true, want false after a failed batch")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %+v, want exactly one aggregated batch error", result.Errors)
	}
	if msg := result.Errors[0].Message; !strings.Contains(msg, "write batch 2") {
		t.Errorf("error message = %q, want it to name batch 2", msg)
	}

	// The first batch stays committed and the counts reflect only what
	// actually landed, not what the plan attempted.
	if result.Imported.TankGaugings != 75 {
		t.Errorf("Imported.TankGaugings = %d, want 75", result.Imported.TankGaugings)
	}
	if got := len(queryGaugings(t, store)); got != 75 {
		t.Errorf("stored gaugings = %d, want 75 from the committed batch", got)
	}
}

func TestImportBaseline_ReplacesSingleton(t *testing.T) {
	im, store := setupImporter(t)
	ctx := context.Background()

	makeBaseline := func(price string) []byte {
		f := excelize.NewFile()
		if err := f.SetSheetName("Sheet1", "Model"); err != nil {
			t.Fatalf("rename: %v", err)
		}
		dates := []interface{}{"2025-01-31", "2025-02-28"}
		if err := f.SetSheetRow("Model", "C2", &dates); err != nil {
			t.Fatalf("dates: %v", err)
		}
		prices := []interface{}{"Oil Price", "", price, price}
		if err := f.SetSheetRow("Model", "A4", &prices); err != nil {
			t.Fatalf("prices: %v", err)
		}
		buf, err := f.WriteToBuffer()
		if err != nil {
			t.Fatalf("write: %v", err)
		}
		return buf.Bytes()
	}

	r1, err := im.ImportBaseline(ctx, makeBaseline("70"))
	if err != nil {
		t.Fatalf("first baseline import: %v", err)
	}
	if !r1.Success || r1.ID == "" {
		t.Fatalf("first result = %+v", r1)
	}

	r2, err := im.ImportBaseline(ctx, makeBaseline("75"))
	if err != nil {
		t.Fatalf("second baseline import: %v", err)
	}
	if !r2.Success {
		t.Fatalf("second result = %+v", r2)
	}

	recs, err := store.Query(ctx, models.RecordTypeBaseline)
	if err != nil {
		t.Fatalf("query baseline: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("baseline records = %d, want 1 (replace, not accumulate)", len(recs))
	}
	if recs[0].ID != r2.ID {
		t.Errorf("surviving id = %s, want %s", recs[0].ID, r2.ID)
	}

	datasets, err := docstore.Decode[models.BaselineDataset](recs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := datasets[0].Prices[0].Values["2025-01-31"]; got != 75 {
		t.Errorf("price = %v, want 75 from second import", got)
	}
}

func TestImportBaseline_NoDatesRejected(t *testing.T) {
	im, store := setupImporter(t)

	f := excelize.NewFile()
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	result, err := im.ImportBaseline(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("ImportBaseline: %v", err)
	}
	if result.Success || result.Error == "" {
		t.Fatalf("result = %+v, want rejection with error message", result)
	}

	recs, _ := store.Query(context.Background(), models.RecordTypeBaseline)
	if len(recs) != 0 {
		t.Errorf("baseline records = %d, want 0 (nothing written)", len(recs))
	}
}

func TestImportWellRoster(t *testing.T) {
	im, store := setupImporter(t)
	seedWells(t, store, models.Well{ID: "w1", WellNumber: "42-1", Name: "Old Name", Status: "active", TankFactor: 5.5})

	csvData := "Well Number,Well Name,Status,Tank Factor\n" +
		"42-1,Smith 1-H,Active,\n" + // updated, keeps id and tank factor
		"42-2,Jones 2,Active,3.0\n" // new

	result, err := im.ImportWellRoster(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ImportWellRoster: %v", err)
	}
	if !result.Success || result.Imported != 1 || result.Updated != 1 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want 1 imported, 1 updated", result)
	}

	recs, _ := store.Query(context.Background(), models.RecordTypeWell)
	wells, err := docstore.Decode[models.Well](recs)
	if err != nil {
		t.Fatalf("decode wells: %v", err)
	}
	if len(wells) != 2 {
		t.Fatalf("wells = %d, want 2", len(wells))
	}
	byNumber := map[string]models.Well{}
	for _, w := range wells {
		byNumber[w.WellNumber] = w
	}
	updated := byNumber["42-1"]
	if updated.ID != "w1" || updated.Name != "Smith 1-H" {
		t.Errorf("updated well = %+v, want same id with new name", updated)
	}
	if updated.TankFactor != 5.5 {
		t.Errorf("TankFactor = %v, want 5.5 preserved when CSV cell empty", updated.TankFactor)
	}

	// Re-import of identical data is all skips.
	again, err := im.ImportWellRoster(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("second roster import: %v", err)
	}
	if again.Imported != 0 || again.Updated != 0 || again.Skipped != 2 {
		t.Errorf("second result = %+v, want 2 skipped", again)
	}
}

func TestCleanupOrphans(t *testing.T) {
	im, store := setupImporter(t)
	ctx := context.Background()
	seedWells(t, store, models.Well{ID: "w1", WellNumber: "42-1", Name: "Smith 1-H"})

	g1, _ := docstore.NewRecord("g1", models.RecordTypeTankGauging, models.TankGauging{ID: "g1", WellID: "w1", TankLabel: "Tank 1", Day: "2025-11-22"})
	g2, _ := docstore.NewRecord("g2", models.RecordTypeTankGauging, models.TankGauging{ID: "g2", WellID: "gone", TankLabel: "Tank 1", Day: "2025-11-22"})
	m1, _ := docstore.NewRecord("m1", models.RecordTypeMeterReading, models.MeterReading{ID: "m1", WellID: "gone", MeterType: models.MeterGasRate, Day: "2025-11-22"})
	if err := store.BatchUpsert(ctx, []docstore.Record{g1, g2, m1}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := im.CleanupOrphans(ctx)
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	if got := len(queryGaugings(t, store)); got != 1 {
		t.Errorf("gaugings left = %d, want 1", got)
	}
	if got := len(queryReadings(t, store)); got != 0 {
		t.Errorf("readings left = %d, want 0", got)
	}
}

func TestRestore_ArrayAndKeyedShapes(t *testing.T) {
	im, store := setupImporter(t)

	export := `{
		"wells": [{"id":"w1","wellNumber":"42-1","name":"Smith 1-H","status":"active"}],
		"tankGaugings": {"g1": {"wellId":"w1","tankLabel":"Tank 1","levelInches":114,"day":"2025-11-22"}}
	}`

	counts, err := im.Restore(context.Background(), strings.NewReader(export))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if counts[models.RecordTypeWell] != 1 || counts[models.RecordTypeTankGauging] != 1 {
		t.Fatalf("counts = %+v", counts)
	}

	gaugings := queryGaugings(t, store)
	if len(gaugings) != 1 || gaugings[0].LevelInches != 114 {
		t.Fatalf("gaugings = %+v", gaugings)
	}
}

func TestRestore_ReplacesBaseline(t *testing.T) {
	im, store := setupImporter(t)
	ctx := context.Background()

	prior, err := docstore.NewRecord("b1", models.RecordTypeBaseline, models.BaselineDataset{
		ID: "b1", DateKeys: []string{"2024-12-31"},
	})
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if err := store.BatchUpsert(ctx, []docstore.Record{prior}); err != nil {
		t.Fatalf("seed baseline: %v", err)
	}

	export := `{"baselineModel": [{"id":"b2","dateKeys":["2025-01-31"]}]}`
	counts, err := im.Restore(ctx, strings.NewReader(export))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if counts[models.RecordTypeBaseline] != 1 {
		t.Fatalf("counts = %+v", counts)
	}

	recs, err := store.Query(ctx, models.RecordTypeBaseline)
	if err != nil {
		t.Fatalf("query baseline: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("baseline records = %d, want 1 (restore replaces the singleton)", len(recs))
	}
	if recs[0].ID != "b2" {
		t.Errorf("surviving id = %s, want b2 from the export", recs[0].ID)
	}
}

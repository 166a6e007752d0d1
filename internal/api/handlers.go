package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/caprock/fieldbook/internal/analytics"
	"github.com/caprock/fieldbook/internal/docstore"
	"github.com/caprock/fieldbook/internal/models"
)

// Upload bodies are workbooks, not video. 32 MB is far beyond any real
// field-log export.
const maxUploadBytes = 32 << 20

type HealthStatus struct {
	Status string `json:"status"`
	Wells  int    `json:"wells"`
	Day    string `json:"day"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.Query(r.Context(), models.RecordTypeWell)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, HealthStatus{
		Status: "ok",
		Wells:  len(recs),
		Day:    models.DayKey(time.Now(), s.loc),
	})
}

func (s *Server) handleWells(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.Query(r.Context(), models.RecordTypeWell)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	wells, err := docstore.Decode[models.Well](recs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, wells)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	series, err := s.loadSeries(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, analytics.BuildDashboard(series, time.Now(), s.loc))
}

func (s *Server) handleBaseline(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.Query(r.Context(), models.RecordTypeBaseline)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(recs) == 0 {
		http.Error(w, "no baseline imported", http.StatusNotFound)
		return
	}
	datasets, err := docstore.Decode[models.BaselineDataset](recs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, datasets[0])
}

func (s *Server) handleImportFieldLogs(w http.ResponseWriter, r *http.Request) {
	data, ok := s.uploadBytes(w, r)
	if !ok {
		return
	}
	result, err := s.importer.ImportFieldLogs(r.Context(), data, r.FormValue("userId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleImportBaseline(w http.ResponseWriter, r *http.Request) {
	data, ok := s.uploadBytes(w, r)
	if !ok {
		return
	}
	result, err := s.importer.ImportBaseline(r.Context(), data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleImportWells(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file upload", http.StatusBadRequest)
		return
	}
	defer file.Close()

	result, err := s.importer.ImportWellRoster(r.Context(), file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, result)
}

// uploadBytes reads the workbook out of a multipart POST. The parsers work
// on an in-memory buffer, so the whole file is read up front.
func (s *Server) uploadBytes(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file upload", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return data, true
}

func (s *Server) loadSeries(r *http.Request) (*analytics.Series, error) {
	ctx := r.Context()
	wellRecs, err := s.store.Query(ctx, models.RecordTypeWell)
	if err != nil {
		return nil, err
	}
	wells, err := docstore.Decode[models.Well](wellRecs)
	if err != nil {
		return nil, err
	}

	gaugingRecs, err := s.store.Query(ctx, models.RecordTypeTankGauging)
	if err != nil {
		return nil, err
	}
	gaugings, err := docstore.Decode[models.TankGauging](gaugingRecs)
	if err != nil {
		return nil, err
	}

	readingRecs, err := s.store.Query(ctx, models.RecordTypeMeterReading)
	if err != nil {
		return nil, err
	}
	readings, err := docstore.Decode[models.MeterReading](readingRecs)
	if err != nil {
		return nil, err
	}
	return analytics.NewSeries(wells, gaugings, readings), nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

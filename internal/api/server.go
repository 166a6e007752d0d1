// Package api is the HTTP surface consumed by the office UI: JSON reads
// for the dashboard plus multipart upload endpoints that feed the importer.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caprock/fieldbook/internal/docstore"
	"github.com/caprock/fieldbook/internal/reconcile"
)

type Server struct {
	store    docstore.Store
	importer *reconcile.Importer
	port     string
	loc      *time.Location
}

func NewServer(store docstore.Store, importer *reconcile.Importer, port string, loc *time.Location) *Server {
	return &Server{
		store:    store,
		importer: importer,
		port:     port,
		loc:      loc,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/wells", s.handleWells)
	mux.HandleFunc("/api/dashboard", s.handleDashboard)
	mux.HandleFunc("/api/baseline", s.handleBaseline)
	mux.HandleFunc("/api/import/field-logs", s.handleImportFieldLogs)
	mux.HandleFunc("/api/import/baseline", s.handleImportBaseline)
	mux.HandleFunc("/api/import/wells", s.handleImportWells)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

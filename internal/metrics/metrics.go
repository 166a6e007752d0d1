package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkbooksImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldbook_workbooks_imported_total",
			Help: "Total workbook imports by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldbook_records_written_total",
			Help: "Total records written to the document store",
		},
		[]string{"record_type"},
	)

	RowsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldbook_import_rows_skipped_total",
			Help: "Total import rows skipped (unresolved wells, missing data)",
		},
	)

	ImportErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldbook_import_errors_total",
			Help: "Total row and sheet errors accumulated during imports",
		},
	)

	BatchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldbook_store_batch_failures_total",
			Help: "Total failed write batches against the document store",
		},
	)
)

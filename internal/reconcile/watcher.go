package reconcile

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/caprock/fieldbook/internal/ingest"
)

// Watcher polls the FTP drop folder the pumpers upload workbooks to and
// imports anything it has not seen before. Files whose names mention the
// baseline model go through the baseline importer; everything else is a
// field log.
type Watcher struct {
	drop     *ingest.DropFolder
	importer *Importer
	interval time.Duration
	ownerID  string
	seen     map[string]bool
}

func NewWatcher(drop *ingest.DropFolder, importer *Importer, interval time.Duration, ownerID string) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Watcher{
		drop:     drop,
		importer: importer,
		interval: interval,
		ownerID:  ownerID,
		seen:     make(map[string]bool),
	}
}

func (w *Watcher) Run(ctx context.Context) {
	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("watcher: shutting down")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	names, err := w.drop.List()
	if err != nil {
		log.Printf("watcher: list drop folder: %v", err)
		return
	}

	for _, name := range names {
		if w.seen[name] {
			continue
		}
		data, err := w.drop.Fetch(name)
		if err != nil {
			log.Printf("watcher: fetch %s: %v", name, err)
			continue
		}

		if strings.Contains(strings.ToLower(name), "baseline") {
			result, err := w.importer.ImportBaseline(ctx, data)
			if err != nil {
				log.Printf("watcher: import baseline %s: %v", name, err)
				continue
			}
			if result.Success {
				log.Printf("watcher: imported baseline %s as %s", name, result.ID)
			} else {
				log.Printf("watcher: baseline %s rejected: %s", name, result.Error)
			}
		} else {
			result, err := w.importer.ImportFieldLogs(ctx, data, w.ownerID)
			if err != nil {
				log.Printf("watcher: import %s: %v", name, err)
				continue
			}
			log.Printf("watcher: imported %s: %d gaugings, %d readings, %d errors",
				name, result.Imported.TankGaugings, result.Imported.MeterReadings, len(result.Errors))
		}
		w.seen[name] = true
	}
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	_ "modernc.org/sqlite"

	"github.com/caprock/fieldbook/internal/api"
	"github.com/caprock/fieldbook/internal/docstore"
	"github.com/caprock/fieldbook/internal/ingest"
	"github.com/caprock/fieldbook/internal/reconcile"
)

type cli struct {
	DB       string `env:"FIELDBOOK_DB" default:"data/fieldbook.db" help:"Path to SQLite database."`
	Timezone string `env:"FIELDBOOK_TZ" default:"America/Chicago" help:"Operator civil timezone for day keys."`

	Serve          serveCmd   `cmd:"" help:"Run the HTTP server, optionally with the FTP drop-folder watcher."`
	Import         importCmd  `cmd:"" help:"Import a workbook or well roster from a local file."`
	Restore        restoreCmd `cmd:"" help:"Restore records from a legacy JSON export."`
	CleanupOrphans cleanupCmd `cmd:"" name:"cleanup-orphans" help:"Delete gaugings and readings whose well no longer exists."`
}

type appCtx struct {
	store    *docstore.SQLite
	importer *reconcile.Importer
	loc      *time.Location
}

type serveCmd struct {
	Port         string        `env:"FIELDBOOK_PORT" default:"8080" help:"HTTP server port."`
	FTPAddr      string        `env:"FIELDBOOK_FTP_ADDR" help:"FTP drop-folder address (host:port). Empty disables the watcher."`
	FTPUser      string        `env:"FIELDBOOK_FTP_USER" help:"FTP username."`
	FTPPass      string        `env:"FIELDBOOK_FTP_PASS" help:"FTP password."`
	FTPDir       string        `env:"FIELDBOOK_FTP_DIR" default:"/" help:"Directory to watch on the FTP server."`
	PollInterval time.Duration `env:"FIELDBOOK_POLL_INTERVAL" default:"15m" help:"Drop-folder polling interval."`
	OwnerID      string        `env:"FIELDBOOK_OWNER_ID" help:"User id recorded on watcher-imported rows."`
}

func (c *serveCmd) Run(app *appCtx) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if c.FTPAddr != "" {
		drop := ingest.NewDropFolder(c.FTPAddr, c.FTPUser, c.FTPPass, c.FTPDir)
		watcher := reconcile.NewWatcher(drop, app.importer, c.PollInterval, c.OwnerID)
		go watcher.Run(ctx)
	} else {
		log.Println("drop-folder watcher disabled (no FTP address)")
	}

	server := api.NewServer(app.store, app.importer, c.Port, app.loc)
	log.Printf("starting server on :%s", c.Port)
	return server.Run(ctx)
}

type importCmd struct {
	Logs     importLogsCmd     `cmd:"" help:"Import a field-log workbook (.xlsx)."`
	Baseline importBaselineCmd `cmd:"" help:"Import the financial baseline workbook."`
	Wells    importWellsCmd    `cmd:"" help:"Import the well roster CSV."`
}

type importLogsCmd struct {
	File    string `arg:"" type:"existingfile" help:"Workbook file."`
	OwnerID string `env:"FIELDBOOK_OWNER_ID" help:"User id recorded on imported rows."`
}

func (c *importLogsCmd) Run(app *appCtx) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	result, err := app.importer.ImportFieldLogs(context.Background(), data, c.OwnerID)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		log.Printf("import: %s row %d: %s", e.Sheet, e.Row, e.Message)
	}
	if !result.Success {
		return fmt.Errorf("import finished with %d errors", len(result.Errors))
	}
	return nil
}

type importBaselineCmd struct {
	File string `arg:"" type:"existingfile" help:"Baseline workbook file."`
}

func (c *importBaselineCmd) Run(app *appCtx) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	result, err := app.importer.ImportBaseline(context.Background(), data)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("baseline rejected: %s", result.Error)
	}
	log.Printf("import: baseline %s", result.ID)
	return nil
}

type importWellsCmd struct {
	File string `arg:"" type:"existingfile" help:"Well roster CSV file."`
}

func (c *importWellsCmd) Run(app *appCtx) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := app.importer.ImportWellRoster(context.Background(), f)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		log.Printf("import: row %d: %s", e.Row, e.Message)
	}
	log.Printf("import: wells done: %d new, %d updated, %d unchanged",
		result.Imported, result.Updated, result.Skipped)
	if !result.Success {
		return fmt.Errorf("roster import finished with %d errors", len(result.Errors))
	}
	return nil
}

type restoreCmd struct {
	File string `arg:"" type:"existingfile" help:"Legacy JSON export file."`
}

func (c *restoreCmd) Run(app *appCtx) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	counts, err := app.importer.Restore(context.Background(), f)
	if err != nil {
		return err
	}
	for recordType, n := range counts {
		log.Printf("restore: %s: %d records", recordType, n)
	}
	return nil
}

type cleanupCmd struct{}

func (c *cleanupCmd) Run(app *appCtx) error {
	n, err := app.importer.CleanupOrphans(context.Background())
	if err != nil {
		return err
	}
	log.Printf("cleanup: removed %d orphaned records", n)
	return nil
}

func main() {
	var c cli
	ktx := kong.Parse(&c,
		kong.Name("fieldbook"),
		kong.Description("Production accounting: field-log ingestion and analytics."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	db, err := sql.Open("sqlite", c.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	// Load timezone once at startup
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Warning: could not load %s timezone, using UTC: %v", c.Timezone, err)
		loc = time.UTC
	}

	store := docstore.NewSQLite(db)
	if err := store.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")

	app := &appCtx{
		store:    store,
		importer: reconcile.NewImporter(store, loc),
		loc:      loc,
	}
	ktx.FatalIfErrorf(ktx.Run(app))
}

package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OCAP2/softbody/internal/config"
	"github.com/OCAP2/softbody/internal/database"
	"github.com/OCAP2/softbody/internal/model"
	v1 "github.com/OCAP2/softbody/internal/storage/memory/export/v1"
	pgstorage "github.com/OCAP2/softbody/internal/storage/postgres"
)

// cliDB loads the config and opens the database the offline commands read.
func cliDB(configDir, path string) (*database.Manager, error) {
	// a missing config file leaves the defaults in place
	_ = config.Load(configDir)
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()
	return openDB(log, path)
}

func listSessions(configDir string, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("sessions", pflag.ContinueOnError)
	dbPath := fs.String("db", "", "SQLite file to read instead of Postgres")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := cliDB(configDir, *dbPath)
	if err != nil {
		return err
	}
	defer m.Close()

	sessions, err := pgstorage.ListSessions(m.DB)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTARTED\tENDED\tTICK HZ")
	for _, s := range sessions {
		ended := "-"
		if s.EndedAt != nil {
			ended = s.EndedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.ID, s.Name, s.StartedAt.UTC().Format(time.RFC3339), ended, s.TickHz)
	}
	return tw.Flush()
}

func exportSessions(configDir string, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	dbPath := fs.String("db", "", "SQLite file to read instead of Postgres")
	outDir := fs.String("out", ".", "directory the exports are written to")
	compress := fs.Bool("gzip", true, "gzip the JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids := fs.Args()
	if len(ids) == 0 {
		return fmt.Errorf("no session IDs provided")
	}

	m, err := cliDB(configDir, *dbPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, id := range ids {
		start := time.Now()
		data, err := pgstorage.LoadSession(m.DB, id)
		if err != nil {
			return err
		}
		path := filepath.Join(*outDir, id+".json")
		if *compress {
			path += ".gz"
		}
		if err := writeExport(path, v1.Build(data), *compress); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s -> %s (%s)\n", id, path, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func writeExport(path string, export v1.Export, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if !compress {
		return json.NewEncoder(f).Encode(export)
	}
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(export); err != nil {
		return err
	}
	return gz.Close()
}

// migrateBackups copies the SQLite dumps in dir into the target database
// and renames each migrated file to *.migrated.
func migrateBackups(configDir string, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	dir := fs.String("dir", "./sessions", "directory holding the SQLite dumps")
	target := fs.String("to", "", "SQLite file to migrate into instead of Postgres")
	if err := fs.Parse(args); err != nil {
		return err
	}

	paths, err := database.GetBackupDBPaths(*dir)
	if err != nil {
		return fmt.Errorf("error getting backup database paths: %w", err)
	}

	dst, err := cliDB(configDir, *target)
	if err != nil {
		return err
	}
	defer dst.Close()
	if err := dst.Setup(); err != nil {
		return err
	}

	migrated := 0
	for _, path := range paths {
		if err := migrateFile(dst, path, out); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := os.Rename(path, path+".migrated"); err != nil {
			fmt.Fprintf(out, "failed to rename %s: %v\n", path, err)
		}
		migrated++
	}
	fmt.Fprintf(out, "Migrated %d backups, delete them to avoid future duplication.\n", migrated)
	return nil
}

func migrateFile(dst *database.Manager, path string, out io.Writer) error {
	src := database.NewManager(dst.Logger)
	if err := src.ConnectSQLite(path); err != nil {
		return err
	}
	defer src.Close()

	return dst.DB.Transaction(func(tx *gorm.DB) error {
		steps := []func() (int, error){
			func() (int, error) { return migrateTable[model.Session](src.DB, tx, nil) },
			func() (int, error) { return migrateTable[model.Vehicle](src.DB, tx, nil) },
			func() (int, error) {
				return migrateTable(src.DB, tx, func(r *model.VehicleSnapshot) { r.ID = 0 })
			},
			func() (int, error) {
				return migrateTable(src.DB, tx, func(r *model.SimEvent) { r.ID = 0 })
			},
			func() (int, error) {
				return migrateTable(src.DB, tx, func(r *model.SavedState) { r.ID = 0 })
			},
			func() (int, error) { return migrateTable[model.Performance](src.DB, tx, nil) },
		}
		total := 0
		for _, step := range steps {
			n, err := step()
			if err != nil {
				return err
			}
			total += n
		}
		fmt.Fprintf(out, "%s: %d rows\n", filepath.Base(path), total)
		return nil
	})
}

// migrateTable copies every row of M from src to dst. reset clears
// auto-increment keys so the target assigns new ones.
func migrateTable[M any](src, dst *gorm.DB, reset func(*M)) (int, error) {
	var rows []M
	if err := src.Find(&rows).Error; err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if reset != nil {
		for i := range rows {
			reset(&rows[i])
		}
	}
	err := dst.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, 1000).Error
	return len(rows), err
}

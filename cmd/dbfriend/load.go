package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbfriend/dbfriend/internal/config"
	"github.com/dbfriend/dbfriend/internal/gio"
	"github.com/dbfriend/dbfriend/internal/logging"
	"github.com/dbfriend/dbfriend/internal/pgdb"
	"github.com/dbfriend/dbfriend/internal/sync"
)

var loadCmd = &cobra.Command{
	Use:   "load <path>",
	Short: "Load spatial files from a file or directory into PostGIS",
	Long: `Load GeoJSON and GeoPackage files into PostGIS.

When <path> is a directory, every supported file in it is loaded, each
into a table named after the file. A failing file is reported and the
run continues with the next one.

The database password is read from DBFRIEND_PASSWORD, never a flag.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	f := loadCmd.Flags()
	f.String("schema", "public", "target schema")
	f.String("table", "", "load every file into this table instead of per-file tables")
	f.String("key", "", "attribute column to join incoming features on")
	f.Int("epsg", 0, "reproject datasets to this EPSG code before loading")
	f.Bool("no-backup", false, "skip the pre-mutation table backup")
	f.String("on-duplicate", "first-wins", "ambiguous key handling: first-wins or abort")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	path := args[0]

	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		level = logging.LevelDebug
	}
	logger, closeLogs := logging.New(cfg.LogFile)
	defer closeLogs.Close()

	ctx := cmd.Context()
	db, err := pgdb.Open(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.DBName, err)
	}
	defer db.Close()

	opts := sync.Options{
		Schema:     cfg.Schema,
		Table:      cfg.Table,
		TargetEPSG: cfg.TargetEPSG,
		KeyColumn:  cfg.KeyColumn,
		NoBackup:   cfg.NoBackup,
	}
	if cfg.OnDuplicate == "abort" {
		opts.Policy = sync.AbortTable
	}
	if level == logging.LevelDebug {
		opts.OnEvent = func(e sync.Event) {
			logger.Printf("%s: feature %d %s (key %s)", e.Table, e.Feature, e.Type, e.Key)
		}
	}

	loader := sync.NewLoader(db, opts, logger)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	var report *sync.RunReport
	if info.IsDir() {
		report, err = loader.LoadDir(ctx, path)
		if err != nil {
			return err
		}
	} else {
		if !gio.SupportedFile(path) {
			return fmt.Errorf("unsupported file type: %s", path)
		}
		report = singleFileReport(ctx, loader, path)
	}

	renderReport(cmd.OutOrStdout(), report)
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d of %d files failed", len(report.Failures),
			len(report.Failures)+len(report.Summaries))
	}
	return nil
}

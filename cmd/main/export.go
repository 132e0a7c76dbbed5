package main

import (
	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"colmatch-service/internal/dataset"
	"colmatch-service/internal/export"
)

var (
	ef      matchFlags
	exTable string
	exDial  string
	exDSN   string
	exMode  string
	exCreds export.Credentials
	exBatch int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a table (optionally matched first) into MySQL or SQLite",
	Example: `  colmatch export -f stores.xlsx --table stores --dialect sqlite --dsn stores.db
  colmatch export -f stores.xlsx -s name -c alias --table stores --host db --user app --database shop`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig(true)
		ctx := cmd.Context()

		dialect, err := export.ParseDialect(exDial)
		if err != nil {
			return err
		}
		mode, err := export.ParseIfExists(exMode)
		if err != nil {
			return err
		}
		dsn := exDSN
		switch {
		case dsn != "":
		case exCreds.Host != "" || exCreds.User != "" || exCreds.Database != "":
			if err := exCreds.Validate(); err != nil {
				return err
			}
			dsn = exCreds.DSN()
		case dialect == export.MySQL && cfg.MySQLDSN != "":
			dsn = cfg.MySQLDSN
		default:
			return errors.WithHint(errors.New("no database connection"), "pass --dsn or --host/--user/--database, or set MYSQL_DSN")
		}

		var ds *dataset.Dataset
		if ef.source != "" || ef.candidate != "" {
			if ds, err = runMatch(ctx, cfg, &ef, logger); err != nil {
				return err
			}
		} else {
			path := ef.file
			if path == "" {
				return errors.New("--file is required without --source/--candidate")
			}
			if ds, err = readTable(ctx, path, ef.headerRow, ef.sheet, logger); err != nil {
				return err
			}
		}

		db, err := export.Open(ctx, dialect, dsn)
		if err != nil {
			return err
		}
		defer db.Close()

		ex := export.New(db, dialect, logger)
		if exBatch > 0 {
			ex.BatchSize = exBatch
		} else if cfg.BatchSize > 0 {
			ex.BatchSize = cfg.BatchSize
		}
		n, err := ex.Export(ctx, ds, exTable, mode)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("%d rows exported to %s (%s)", n, exTable, dialect)
		return nil
	},
}

func init() {
	ef.register(exportCmd)
	fl := exportCmd.Flags()
	fl.StringVar(&exTable, "table", "", "target table")
	fl.StringVar(&exDial, "dialect", string(export.MySQL), "mysql or sqlite")
	fl.StringVar(&exDSN, "dsn", "", "connection string (sqlite: file path)")
	fl.StringVar(&exMode, "if-exists", string(export.Fail), "fail, replace or append")
	fl.StringVar(&exCreds.Host, "host", "", "mysql host")
	fl.IntVar(&exCreds.Port, "port", 3306, "mysql port")
	fl.StringVar(&exCreds.User, "user", "", "mysql user")
	fl.StringVar(&exCreds.Password, "password", "", "mysql password")
	fl.StringVar(&exCreds.Database, "database", "", "mysql database")
	fl.IntVar(&exBatch, "batch", 0, "rows per INSERT (default from BATCH_SIZE)")
	_ = exportCmd.MarkFlagRequired("table")
}

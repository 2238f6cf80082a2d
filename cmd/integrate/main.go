// Command integrate builds the family-structure summary and the ENIGH master
// dataset for one survey year.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"enigh/adapters/excel"
	"enigh/adapters/postgres"
	"enigh/internal/config"
	"enigh/internal/errors"
	"enigh/internal/integration"
	"enigh/internal/logging"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	year     int
	baseDir  string
	xlsx     bool
	publish  bool
	jsonOut  bool
	logLevel string
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "integrate",
		Short: "Build the family-structure summary and master dataset of an ENIGH year",
		Long: `Reads poblacion.csv, hogares.csv and viviendas.csv from ENIGH/<year>, derives the
family structure of every household and writes

  outputs/estructura_familiar_<year>.csv
  outputs/dataset_maestro_enigh_<year>.csv

Example: integrate --year 2024 --xlsx`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}
			logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, f)
		},
	}

	cmd.Flags().IntVar(&f.year, "year", 0, "Survey year (default from ENIGH_YEAR, 2024)")
	cmd.Flags().StringVar(&f.baseDir, "base-dir", "", "Project directory holding ENIGH/ and outputs/ (default from ENIGH_BASE_DIR or the working directory)")
	cmd.Flags().BoolVar(&f.xlsx, "xlsx", false, "Also write the summary and its distribution as XLSX")
	cmd.Flags().BoolVar(&f.publish, "publish", false, "Also load the summary into PostgreSQL (DATABASE_URL)")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print the run report as JSON on stdout")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Override ENIGH_LOG_LEVEL")

	return cmd
}

// apply lets explicit flags override the environment.
func (f flags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("year") {
		cfg.Year = f.year
	}
	if changed("base-dir") {
		cfg.BaseDir = f.baseDir
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	return cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, f flags) error {
	var exporters []integration.Exporter

	if f.xlsx {
		name := strings.TrimSuffix(integration.SummaryFileName(cfg.Year), ".csv") + ".xlsx"
		exporters = append(exporters, excel.NewSummaryWorkbook(cfg.OutputPath(name)))
	}

	if f.publish {
		if cfg.DatabaseURL == "" {
			return errors.ConfigInvalid("--publish requires DATABASE_URL")
		}
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := postgres.NewSummaryRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		exporters = append(exporters, repo)
	}

	res, err := integration.New().Run(ctx, integration.Options{
		Year:      cfg.Year,
		InputDir:  cfg.YearDir(cfg.Year),
		OutputDir: cfg.OutputsRoot(),
		Exporters: exporters,
	})
	if err != nil {
		log.Error().Err(err).Str("code", errors.GetCode(err)).Msg("integration failed")
		return err
	}

	if f.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Println("Dataset maestro creado correctamente")
	fmt.Println("Estructura familiar:", res.SummaryPath)
	fmt.Println("Archivo:", res.MasterPath)
	fmt.Printf("Observaciones finales: (%d, %d)\n", res.Master.Rows, res.Master.Cols)
	return nil
}

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"eodl/config"
	"eodl/internal/errs"
	"eodl/pkg/utils"
)

// Exit codes for fatal errors.
const (
	ExitFailure = 1
	ExitConfig  = 2
	ExitAuth    = 3
	ExitQuery   = 4
)

var (
	settings *config.Settings
	v        = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "eodl",
	Short: "Download Earth observation products found by a catalog search",
	Long: `eodl queries an OpenSearch product catalog, lists the objects of every
product found in its S3-compatible object store, keeps the ones matching the
configured glob patterns and downloads them with bounded concurrency.

Every flag can also be set through an environment variable (KEYS_FILE,
PARALLELISM, ...) or a .env file in the working directory.
A JSON summary of the run is printed to stdout.`,
	Example: `  # Download the products described by query.json
  eodl -c query.json -k keys.json -o ./products

  # Restrict the search to an area of interest
  eodl -c query.json -k keys.json -g aoi.geojson

  # Only list what would be downloaded
  eodl -c query.json -k keys.json --no-download

  # Eight parallel transfers, always overwrite local copies
  eodl -c query.json -k keys.json -p 8 --overwrite always`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load(v)
		if err != nil {
			return err
		}
		settings = s
		return setupLogging(s.LogLevel)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(cmd)
	},
}

// Execute runs the root command until it completes or the process receives
// SIGINT or SIGTERM. Fatal errors are printed as JSON before returning.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		utils.PrintError(err, rootCmd.Name())
		return err
	}
	return nil
}

// ExitCode maps a fatal error to the process exit status.
func ExitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.KindConfig, errs.KindFilter:
		return ExitConfig
	case errs.KindAuth:
		return ExitAuth
	case errs.KindQuery, errs.KindNetwork:
		return ExitQuery
	default:
		return ExitFailure
	}
}

func setupLogging(level string) error {
	l, err := config.ParseLogLevel(level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return nil
}

func init() {
	rootCmd.AddCommand(checkAccessCmd)

	config.RegisterFlags(rootCmd.PersistentFlags())
	cobra.CheckErr(config.BindFlags(v, rootCmd.PersistentFlags()))

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		var kindErr *errs.Error
		if errors.As(err, &kindErr) {
			return err
		}
		return errs.New(errs.KindConfig, "parse flags", err)
	})
}

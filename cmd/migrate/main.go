// Command migrate backfills derivatives and rebuilds the metadata index for
// objects that were uploaded before the event pipeline existed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bitwise74/photo-api/config"
	"bitwise74/photo-api/db"
	"bitwise74/photo-api/internal"
	"bitwise74/photo-api/logger"
	"bitwise74/photo-api/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var errPartialFailure = errors.New("some objects could not be reconciled")

type migrateFlags struct {
	config string
	bucket string
	prefix string
	dryRun bool
	limit  int
}

func newRootCmd() *cobra.Command {
	var f migrateFlags

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Backfill thumbnails, previews and the metadata index",
		Long: strings.TrimSpace(`
Walks every original image in the bucket, generates the thumbnail and preview
that are missing and upserts its row in the metadata index. Safe to run more
than once, existing derivatives are left alone.
`),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(f); err != nil {
				return err
			}

			if err := logger.Setup(viper.GetString("app.log_level"), viper.GetString("app.env")); err != nil {
				return err
			}
			defer zap.L().Sync()

			database, err := db.New()
			if err != nil {
				return err
			}

			store, err := internal.NewStore(cmd.Context())
			if err != nil {
				db.Close(database)
				return err
			}

			d := internal.Assemble(database, store, nil)
			defer d.Close()

			return runMigrate(cmd.Context(), d.Reconciler, service.ReconcileOptions{
				Prefix: f.prefix,
				DryRun: f.dryRun,
				Limit:  f.limit,
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&f.config, "config", "", "path to a TOML config file")
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "bucket to reconcile, overrides storage.bucket")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "only visit keys under this prefix")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "list what would be processed without writing anything")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "stop after this many originals, 0 for no limit")

	return cmd
}

// loadConfig reads the config file and applies flag overrides before
// validating. Only storage and index settings are required here.
func loadConfig(f migrateFlags) error {
	if err := config.Load(f.config); err != nil {
		return err
	}

	if f.bucket != "" {
		viper.Set("storage.bucket", f.bucket)
	}

	return config.ValidateStore()
}

func runMigrate(ctx context.Context, r *service.Reconciler, opts service.ReconcileOptions, out io.Writer) error {
	zap.L().Info("Reconcile started",
		zap.String("prefix", opts.Prefix),
		zap.Bool("dryRun", opts.DryRun),
		zap.Int("limit", opts.Limit),
	)

	report, err := r.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("reconcile failed, %w", err)
	}

	fmt.Fprintf(out, "scanned=%d generated=%d indexed=%d pruned=%d failed=%d\n",
		report.Scanned, report.Generated, report.Indexed, report.Pruned, report.Failed)

	if report.Failed > 0 {
		return errPartialFailure
	}

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

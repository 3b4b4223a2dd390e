package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"eodl/config"
	"eodl/internal/catalog"
	"eodl/internal/downloader"
	"eodl/internal/errs"
	"eodl/internal/filter"
	"eodl/internal/geometry"
	"eodl/internal/models"
	"eodl/internal/retry"
	"eodl/internal/s3client"
	"eodl/pkg/utils"
)

func runDownload(cmd *cobra.Command) error {
	result, err := download(cmd.Context(), settings, slog.Default())
	if err != nil {
		return err
	}

	if err := utils.PrintJSON(result); err != nil {
		return err
	}
	utils.PrintSummary(cmd.ErrOrStderr(), result)
	return nil
}

// download resolves the run configuration, checks the catalog and the
// object store, then hands the product stream to the scheduler. Errors
// returned here are fatal; per-object failures end up in the result.
func download(ctx context.Context, s *config.Settings, logger *slog.Logger) (*models.RunResult, error) {
	if s.ConfigFile == "" {
		return nil, errs.Configf("a query configuration file is required (--%s or %s)", config.FlagConfig, config.EnvName(config.FlagConfig))
	}

	query, err := config.LoadQuery(s.ConfigFile)
	if err != nil {
		return nil, err
	}
	spec, err := query.Spec()
	if err != nil {
		return nil, err
	}

	if s.GeometryFile != "" {
		g, err := geometry.Load(s.GeometryFile)
		if err != nil {
			return nil, err
		}
		spec = catalog.ApplyGeometry(spec, g)
		logger.Debug("Geometry overlay applied", "file", s.GeometryFile, "wkt", g.WKT)
	}

	matcher, err := filter.Compile(spec.GlobPatterns)
	if err != nil {
		return nil, err
	}

	fileKeys, err := config.LoadKeys(s.KeysFile)
	if err != nil {
		return nil, err
	}
	keys, err := s.ResolveKeys(fileKeys)
	if err != nil {
		return nil, err
	}

	overwrite, err := downloader.ParseOverwritePolicy(s.Overwrite)
	if err != nil {
		return nil, err
	}

	if !s.NoDownload {
		if err := utils.EnsureDir(s.OutputDir); err != nil {
			return nil, errs.New(errs.KindConfig, "output directory", err)
		}
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = s.RetryAttempts

	pages := catalog.Pages(catalog.New(catalog.WithLogger(logger)), spec, policy)
	first, err := pages.Prefetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}

	store, err := s3client.New(ctx, s3client.Config{
		Endpoint:        keys.EndpointURL,
		AccessKeyID:     keys.AccessKeyID,
		SecretAccessKey: keys.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	if len(first.Products) > 0 {
		bucket := first.Products[0].Bucket
		if err := store.CheckAccess(ctx, bucket); err != nil {
			if errs.KindOf(err) == errs.KindAuth {
				return nil, fmt.Errorf("check storage access: %w", err)
			}
			logger.Warn("Storage access check failed, continuing", "bucket", bucket, "error", err)
		}
	}

	scheduler := downloader.New(store, downloader.Options{
		OutputDir:   s.OutputDir,
		Parallelism: s.Parallelism,
		Filter:      matcher,
		ListOnly:    s.NoDownload,
		Overwrite:   overwrite,
		Retry:       policy,
		Logger:      logger,
	})

	logger.Info("Starting downloads",
		"output", s.OutputDir,
		"parallelism", s.Parallelism,
		"patterns", matcher.Patterns(),
		"list_only", s.NoDownload)

	result := scheduler.Run(ctx, pages.Products(ctx))

	logger.Info("Run finished",
		"products", result.Products,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"pages", pages.PagesFetched())
	return result, nil
}

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"eodl/config"
	"eodl/internal/models"
	"eodl/internal/s3client"
	"eodl/pkg/utils"
)

const defaultBucket = "eodata"

var checkAccessCmd = &cobra.Command{
	Use:   "check-access [bucket]",
	Short: "Verify that the S3 credentials can reach a bucket",
	Long: `Verify that the configured S3 credentials are accepted by the object store.

The bucket defaults to "eodata". Credentials come from the keys file, the
--s3-* flags or their environment variables, exactly as for a download run.`,
	Example: `  # Check the default bucket
  eodl check-access -k keys.json

  # Check another bucket on a custom endpoint
  eodl check-access my-bucket --s3-endpoint-url http://localhost:9000`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket := defaultBucket
		if len(args) == 1 {
			bucket = args[0]
		}
		return runCheckAccess(cmd.Context(), settings, bucket)
	},
}

func runCheckAccess(ctx context.Context, s *config.Settings, bucket string) error {
	check, err := checkAccess(ctx, s, bucket)
	if err != nil {
		return err
	}
	return utils.PrintJSON(check)
}

func checkAccess(ctx context.Context, s *config.Settings, bucket string) (*models.AccessCheck, error) {
	fileKeys, err := config.LoadKeys(s.KeysFile)
	if err != nil {
		return nil, err
	}
	keys, err := s.ResolveKeys(fileKeys)
	if err != nil {
		return nil, err
	}

	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        keys.EndpointURL,
		AccessKeyID:     keys.AccessKeyID,
		SecretAccessKey: keys.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := client.CheckAccess(ctx, bucket); err != nil {
		return nil, err
	}
	return &models.AccessCheck{
		Bucket:     bucket,
		Endpoint:   keys.EndpointURL,
		Accessible: true,
		CheckedAt:  utils.FormatTime(time.Now()),
	}, nil
}

package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"eodl/internal/errs"
	"eodl/internal/models"
)

// DefaultEndpoint is the Copernicus Data Space object store.
const DefaultEndpoint = "https://eodata.dataspace.copernicus.eu/"

const defaultRegion = "us-east-1"

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string

	// HTTPClient overrides the SDK's HTTP client. Used by tests.
	HTTPClient *http.Client
}

// Client lists and fetches product objects. The underlying *s3.Client and
// its connection pool are shared by every download worker.
type Client struct {
	s3Client   *s3.Client
	downloader *manager.Downloader
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errs.Configf("S3 access key id and secret access key are required")
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithAppID("eodl"),
		// Retries are owned by the scheduler's retry policy.
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, config.WithHTTPClient(cfg.HTTPClient))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Configf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Client{
		s3Client: s3Client,
		downloader: manager.NewDownloader(s3Client, func(d *manager.Downloader) {
			d.Concurrency = 1
		}),
	}, nil
}

// CheckAccess verifies that the credentials are accepted for bucket.
func (c *Client) CheckAccess(ctx context.Context, bucket string) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return classify(fmt.Sprintf("head bucket %s", bucket), err)
	}
	return nil
}

// ListObjects lists every object under the product's prefix.
func (c *Client) ListObjects(ctx context.Context, product models.Product) ([]models.ObjectEntry, error) {
	prefix := strings.TrimSuffix(product.Prefix, "/") + "/"

	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(product.Bucket),
		Prefix: aws.String(prefix),
	})

	var entries []models.ObjectEntry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(fmt.Sprintf("list keys under %q in bucket %q", prefix, product.Bucket), err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, prefix)
			if rel == "" || strings.HasSuffix(key, "/") {
				continue
			}
			entry := models.ObjectEntry{
				Key:          key,
				RelativePath: rel,
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			}
			if obj.LastModified != nil {
				entry.LastModified = *obj.LastModified
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// Download writes the whole object into dst.
func (c *Client) Download(ctx context.Context, product models.Product, entry models.ObjectEntry, dst io.WriterAt) (int64, error) {
	n, err := c.downloader.Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(product.Bucket),
		Key:    aws.String(entry.Key),
	})
	if err != nil {
		return n, classify(fmt.Sprintf("download object %q from bucket %q", entry.Key, product.Bucket), err)
	}
	return n, nil
}

var (
	transientCodes = map[string]bool{
		"InternalError":      true,
		"ServiceUnavailable": true,
		"SlowDown":           true,
		"RequestTimeout":     true,
		"Throttling":         true,
	}
	authCodes = map[string]bool{
		"AccessDenied":          true,
		"InvalidAccessKeyId":    true,
		"SignatureDoesNotMatch": true,
		"ExpiredToken":          true,
	}
)

// classify maps SDK errors onto the error kinds: 5xx, throttling and
// transport failures are transient; missing objects and rejected
// credentials are not.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errs.New(errs.KindNetwork, op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case transientCodes[code]:
			return errs.Transient(op, err)
		case authCodes[code]:
			return errs.New(errs.KindAuth, op, err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		switch {
		case status >= 500 || status == http.StatusTooManyRequests:
			return errs.Transient(op, err)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return errs.New(errs.KindAuth, op, err)
		default:
			return errs.New(errs.KindDownload, op, err)
		}
	}

	if apiErr != nil {
		return errs.New(errs.KindDownload, op, err)
	}

	// No response at all: connection refused, reset or timed out.
	return errs.Transient(op, err)
}

package downloader

import (
	"context"
	"io"

	"eodl/internal/models"
)

// Store lists and fetches the objects of a product. Implementations must be
// safe for concurrent use by every worker.
//
//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks
type Store interface {
	ListObjects(ctx context.Context, product models.Product) ([]models.ObjectEntry, error)
	Download(ctx context.Context, product models.Product, entry models.ObjectEntry, dst io.WriterAt) (int64, error)
}

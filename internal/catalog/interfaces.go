package catalog

import (
	"context"

	"eodl/internal/models"
)

// PageFetcher issues a single search request. An empty token asks for the
// first page; otherwise token is the continuation returned with the previous page.
//
//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks
type PageFetcher interface {
	FetchPage(ctx context.Context, spec models.QuerySpec, token string) (*models.Page, error)
}

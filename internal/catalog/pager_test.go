package catalog

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"eodl/internal/catalog/mocks"
	"eodl/internal/errs"
	"eodl/internal/models"
	"eodl/internal/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func products(ids ...string) []models.Product {
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Product{ID: id, Identifier: "/eodata/" + id, Bucket: "eodata", Prefix: id})
	}
	return out
}

func collect(t *testing.T, it *PageIterator) ([]string, error) {
	t.Helper()
	var ids []string
	for p, err := range it.Products(context.Background()) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func TestDepaginateYieldsEveryProductOnceInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)
	spec := models.QuerySpec{Collection: "SENTINEL-2", Depaginate: true}

	gomock.InOrder(
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").Return(&models.Page{Products: products("a", "b"), Next: "t2"}, nil),
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t2").Return(&models.Page{Products: products("c"), Next: "t3"}, nil),
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t3").Return(&models.Page{Products: products("d", "e")}, nil),
	)

	it := Pages(fetcher, spec, testPolicy())
	ids, err := collect(t, it)

	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	require.Equal(t, 3, it.PagesFetched())
	require.False(t, it.HasMorePages())

	_, err = it.NextPage(context.Background())
	require.ErrorIs(t, err, ErrNoMorePages)
}

func TestWithoutDepaginateOnlyFirstPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)

	fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").
		Return(&models.Page{Products: products("a", "b"), Next: "t2"}, nil).Times(1)

	ids, err := collect(t, Pages(fetcher, models.QuerySpec{}, testPolicy()))

	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}

func TestTransientPageFailureIsRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)
	spec := models.QuerySpec{Depaginate: true}

	gomock.InOrder(
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").Return(&models.Page{Products: products("a"), Next: "t2"}, nil),
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t2").Return(nil, errs.Transient("search request", io.ErrUnexpectedEOF)).Times(2),
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t2").Return(&models.Page{Products: products("b")}, nil),
	)

	ids, err := collect(t, Pages(fetcher, spec, testPolicy()))

	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}

func TestExhaustedRetriesHaltAfterLastGoodPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)
	spec := models.QuerySpec{Depaginate: true}

	gomock.InOrder(
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").Return(&models.Page{Products: products("a", "b"), Next: "t2"}, nil),
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t2").Return(&models.Page{Products: products("c"), Next: "t3"}, nil),
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t3").Return(nil, errs.Transient("search request", io.EOF)).Times(3),
	)

	it := Pages(fetcher, spec, testPolicy())
	ids, err := collect(t, it)

	require.Equal(t, []string{"a", "b", "c"}, ids)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.Network)
	require.Contains(t, err.Error(), "fetch page 3")
	require.False(t, it.HasMorePages())
}

func TestQueryErrorIsNeverRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)
	spec := models.QuerySpec{Depaginate: true}

	gomock.InOrder(
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").Return(&models.Page{Products: products("a"), Next: "t2"}, nil),
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t2").Return(nil, errs.Queryf("decode", "unexpected shape")).Times(1),
	)

	ids, err := collect(t, Pages(fetcher, spec, testPolicy()))

	require.Equal(t, []string{"a"}, ids)
	require.ErrorIs(t, err, errs.Query)
}

func TestFirstPageIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)

	fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").
		Return(nil, errs.Transient("search request", io.EOF)).Times(1)

	it := Pages(fetcher, models.QuerySpec{Depaginate: true}, testPolicy())
	_, err := it.Prefetch(context.Background())

	require.Error(t, err)
	require.True(t, errs.IsRetryable(err))
	require.False(t, it.HasMorePages())
}

func TestPagesIsRestartable(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)
	spec := models.QuerySpec{Depaginate: true}

	fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").
		Return(&models.Page{Products: products("a"), Next: "t2"}, nil).Times(2)
	fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t2").
		Return(&models.Page{Products: products("b")}, nil).Times(2)

	first, err := collect(t, Pages(fetcher, spec, testPolicy()))
	require.NoError(t, err)
	second, err := collect(t, Pages(fetcher, spec, testPolicy()))
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestRepeatedTokenEndsTraversal(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)
	spec := models.QuerySpec{Depaginate: true}

	gomock.InOrder(
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").Return(&models.Page{Products: products("a"), Next: "t2"}, nil),
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t2").Return(&models.Page{Products: products("b"), Next: "t2"}, nil).Times(1),
	)

	ids, err := collect(t, Pages(fetcher, spec, testPolicy()))

	require.Equal(t, []string{"a", "b"}, ids)
	require.ErrorIs(t, err, errs.Query)
}

func TestPrefetchThenProducts(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)
	spec := models.QuerySpec{Depaginate: true}

	gomock.InOrder(
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").Return(&models.Page{Products: products("a", "b"), Next: "t2"}, nil),
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t2").Return(&models.Page{Products: products("c")}, nil),
	)

	it := Pages(fetcher, spec, testPolicy())
	first, err := it.Prefetch(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Products, 2)

	ids, err := collect(t, it)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestProductsStopsWhenConsumerBreaks(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)

	fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").
		Return(&models.Page{Products: products("a", "b", "c"), Next: "t2"}, nil)

	it := Pages(fetcher, models.QuerySpec{Depaginate: true}, testPolicy())
	for p, err := range it.Products(context.Background()) {
		require.NoError(t, err)
		require.Equal(t, "a", p.ID)
		break
	}
}

func TestCancelledContextStopsRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockPageFetcher(ctrl)
	ctx, cancel := context.WithCancel(context.Background())

	gomock.InOrder(
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "").Return(&models.Page{Products: products("a"), Next: "t2"}, nil),
		fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any(), "t2").DoAndReturn(
			func(context.Context, models.QuerySpec, string) (*models.Page, error) {
				cancel()
				return nil, errs.Transient("search request", io.EOF)
			}),
	)

	it := Pages(fetcher, models.QuerySpec{Depaginate: true}, retry.Policy{MaxAttempts: 5, BaseDelay: time.Hour})
	_, err := it.NextPage(ctx)
	require.NoError(t, err)
	_, err = it.NextPage(ctx)
	require.True(t, errors.Is(err, context.Canceled))
}

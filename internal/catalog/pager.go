package catalog

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"eodl/internal/errs"
	"eodl/internal/models"
	"eodl/internal/retry"
)

// ErrNoMorePages is returned by NextPage once traversal has ended.
var ErrNoMorePages = errors.New("catalog: no more pages")

// PageIterator walks search result pages forward, one request per page.
//
// The first page is never retried: failing to reach the catalog at all is a
// fatal condition for the caller. Later pages are fetched only when the query
// asks to depaginate and are retried under the policy while the error is a
// transient network failure. After any error the iterator is exhausted.
//
// A PageIterator is single-use. Call Pages again to restart from page one.
type PageIterator struct {
	fetcher PageFetcher
	spec    models.QuerySpec
	policy  retry.Policy

	next     string
	fetched  int
	done     bool
	pending  error
	consumed map[string]struct{}
	buffered []models.Product
}

// Pages returns a new iterator positioned before the first page.
func Pages(fetcher PageFetcher, spec models.QuerySpec, policy retry.Policy) *PageIterator {
	return &PageIterator{
		fetcher:  fetcher,
		spec:     spec.Clone(),
		policy:   policy,
		consumed: make(map[string]struct{}),
	}
}

// HasMorePages reports whether NextPage may return another page.
func (p *PageIterator) HasMorePages() bool {
	return !p.done
}

// PagesFetched is the number of pages successfully retrieved so far.
func (p *PageIterator) PagesFetched() int {
	return p.fetched
}

// NextPage fetches the next page of results.
func (p *PageIterator) NextPage(ctx context.Context) (*models.Page, error) {
	if p.done {
		return nil, ErrNoMorePages
	}
	if p.pending != nil {
		p.done = true
		return nil, p.pending
	}

	token := p.next
	policy := p.policy
	if p.fetched == 0 {
		policy = retry.Never()
	}

	var page *models.Page
	_, err := retry.Do(ctx, policy, func(ctx context.Context) error {
		pg, err := p.fetcher.FetchPage(ctx, p.spec, token)
		if err != nil {
			return err
		}
		page = pg
		return nil
	})
	if err != nil {
		p.done = true
		return nil, fmt.Errorf("fetch page %d: %w", p.fetched+1, err)
	}

	p.fetched++
	if token != "" {
		p.consumed[token] = struct{}{}
	}

	switch {
	case !p.spec.Depaginate || page.Next == "":
		p.done = true
		p.next = ""
	default:
		if _, seen := p.consumed[page.Next]; seen || page.Next == token {
			p.pending = errs.Queryf("paginate", "page %d links back to an already consumed page: %s", p.fetched, page.Next)
		}
		p.next = page.Next
	}
	return page, nil
}

// Prefetch retrieves the first page ahead of Products so that a catalog
// failure surfaces before any download work starts. It is a no-op once a
// page has been fetched.
func (p *PageIterator) Prefetch(ctx context.Context) (*models.Page, error) {
	if p.fetched > 0 || p.done {
		return &models.Page{Products: p.buffered}, nil
	}
	page, err := p.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	p.buffered = page.Products
	return page, nil
}

// Products yields every product of the remaining pages in page order,
// fetching lazily. A page failure is yielded once as (zero, err) and ends
// the sequence; products yielded before it remain valid.
func (p *PageIterator) Products(ctx context.Context) iter.Seq2[models.Product, error] {
	return func(yield func(models.Product, error) bool) {
		for len(p.buffered) > 0 {
			product := p.buffered[0]
			p.buffered = p.buffered[1:]
			if !yield(product, nil) {
				return
			}
		}

		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(models.Product{}, err)
				return
			}
			for i, product := range page.Products {
				if !yield(product, nil) {
					p.buffered = page.Products[i+1:]
					return
				}
			}
		}
	}
}

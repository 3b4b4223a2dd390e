// Package catalog queries the OpenSearch ("resto") catalogue and walks its
// result pages.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"eodl/internal/errs"
	"eodl/internal/models"
)

const (
	// DefaultEndpoint is the Copernicus Data Space collections root.
	DefaultEndpoint = "https://catalogue.dataspace.copernicus.eu/resto/api/collections/"

	maxErrorBody = 512
)

// Client talks to the search endpoint. It never retries; that is left to
// the PageIterator.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
		userAgent:  "eodl",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type feature struct {
	ID         string `json:"id"`
	Properties struct {
		ProductIdentifier string `json:"productIdentifier"`
		Title             string `json:"title"`
		Collection        string `json:"collection"`
	} `json:"properties"`
}

type searchResponse struct {
	Features   *[]feature `json:"features"`
	Properties struct {
		TotalResults *int   `json:"totalResults"`
		Links        []link `json:"links"`
	} `json:"properties"`
	Links []link `json:"links"`
}

// SearchURL builds the first-page URL for spec.
func SearchURL(spec models.QuerySpec) (string, error) {
	endpoint := strings.TrimSpace(spec.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	base := strings.TrimRight(endpoint, "/")
	if spec.Collection != "" {
		base += "/" + url.PathEscape(spec.Collection)
	}

	u, err := url.Parse(base + "/search.json")
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", errs.Configf("invalid search endpoint %q", spec.Endpoint)
	}

	q := u.Query()
	for k, v := range spec.Filters {
		q.Set(k, v)
	}
	if spec.Geometry != "" {
		q.Set("geometry", spec.Geometry)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchPage retrieves one page. The first page is built from spec; later
// pages follow the continuation link verbatim.
func (c *Client) FetchPage(ctx context.Context, spec models.QuerySpec, token string) (*models.Page, error) {
	target := token
	if target == "" {
		u, err := SearchURL(spec)
		if err != nil {
			return nil, err
		}
		target = u

		keys := slices.Sorted(maps.Keys(spec.Filters))
		if spec.Geometry != "" {
			keys = append(keys, "geometry")
		}
		c.logger.Info("Querying catalog", "url", target, "parameters", strings.Join(keys, ", "))
	} else {
		c.logger.Debug("Fetching next page", "url", target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.Queryf("build request", "%w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.New(errs.KindNetwork, "search request", ctx.Err())
		}
		return nil, errs.Transient("search request", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || isNetErr(err) {
			return nil, errs.Transient("read search response", err)
		}
		return nil, errs.Queryf("decode search response", "%w", err)
	}

	page, err := toPage(body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Results", "count", len(page.Products), "has_next", page.Next != "")
	return page, nil
}

func toPage(body searchResponse) (*models.Page, error) {
	if body.Features == nil {
		return nil, errs.Queryf("decode search response", "response has no features member")
	}

	products := make([]models.Product, 0, len(*body.Features))
	for i, f := range *body.Features {
		id := f.Properties.ProductIdentifier
		if id == "" {
			return nil, errs.Queryf("decode search response", "feature %d has no productIdentifier", i)
		}
		bucket, prefix, ok := models.ParseIdentifier(id)
		if !ok {
			return nil, errs.Queryf("decode search response", "product identifier isn't properly structured (missing bucket): %s", id)
		}
		products = append(products, models.Product{
			ID:         f.ID,
			Identifier: id,
			Title:      f.Properties.Title,
			Collection: f.Properties.Collection,
			Bucket:     bucket,
			Prefix:     prefix,
		})
	}

	next := nextLink(body.Properties.Links)
	if next == "" {
		next = nextLink(body.Links)
	}
	return &models.Page{Products: products, Next: next}, nil
}

func nextLink(links []link) string {
	for _, l := range links {
		if strings.EqualFold(l.Rel, "next") && l.Href != "" {
			return l.Href
		}
	}
	return ""
}

func checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	cause := fmt.Errorf("status %d: %s", code, strings.TrimSpace(string(snippet)))

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.KindAuth, "search request", cause)
	case code == http.StatusTooManyRequests || code >= 500:
		return errs.Transient("search request", cause)
	default:
		return errs.New(errs.KindQuery, "search request", cause)
	}
}

func isNetErr(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne)
}

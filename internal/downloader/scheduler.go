// Package downloader lists, filters and fetches the objects of catalog
// products with a fixed number of concurrent transfers.
//
// A single producer goroutine walks the product sequence in order, lists
// each product's objects and queues one job per object selected by the
// filter. Exactly Parallelism workers drain the queue. Every outcome is sent
// to one collector goroutine that builds the RunResult, so no counters are
// shared between goroutines.
//
// A failed object, product listing or page never cancels its siblings; it is
// recorded and the run continues. Cancelling the context stops the producer,
// fails queued jobs without starting them and interrupts transfers in flight.
package downloader

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"eodl/internal/errs"
	"eodl/internal/filter"
	"eodl/internal/models"
	"eodl/internal/retry"
	"eodl/pkg/utils"
)

const DefaultParallelism = 5

type OverwritePolicy string

const (
	// OverwriteIfChanged skips objects whose local copy has the same size
	// and a modification time equal to the object's LastModified.
	OverwriteIfChanged OverwritePolicy = "if-changed"
	OverwriteAlways    OverwritePolicy = "always"
)

func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch p := OverwritePolicy(s); p {
	case "", OverwriteIfChanged:
		return OverwriteIfChanged, nil
	case OverwriteAlways:
		return p, nil
	default:
		return "", errs.Configf("invalid overwrite policy %q: want %q or %q", s, OverwriteIfChanged, OverwriteAlways)
	}
}

type Options struct {
	OutputDir   string
	Parallelism int
	Filter      *filter.Matcher
	ListOnly    bool
	Overwrite   OverwritePolicy
	Retry       retry.Policy
	Logger      *slog.Logger
}

type Scheduler struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

func New(store Store, opts Options) *Scheduler {
	if opts.Parallelism < 1 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Filter == nil {
		opts.Filter, _ = filter.Compile(nil)
	}
	if opts.Overwrite == "" {
		opts.Overwrite = OverwriteIfChanged
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: store, opts: opts, logger: logger}
}

// event is one message to the collector. Exactly one field is set.
type event struct {
	product *models.Product
	skipped int
	job     *models.DownloadJob
	failure *models.Failure
}

// Run drives products through listing, filtering and download and returns
// once every queued job reached a terminal state.
func (s *Scheduler) Run(ctx context.Context, products iter.Seq2[models.Product, error]) *models.RunResult {
	startTime := time.Now()

	jobs := make(chan *models.DownloadJob, s.opts.Parallelism)
	events := make(chan event, s.opts.Parallelism)

	results := make(chan *models.RunResult, 1)
	go func() {
		results <- s.collect(events)
	}()

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		s.produce(ctx, products, jobs, events)
		return nil
	})
	for i := 0; i < s.opts.Parallelism; i++ {
		g.Go(func() error {
			s.work(ctx, jobs, events)
			return nil
		})
	}
	_ = g.Wait()
	close(events)

	result := <-results
	result.OperationTime = utils.FormatTime(startTime)
	result.DownloadDuration = time.Since(startTime).Round(time.Millisecond).String()
	return result
}

func (s *Scheduler) produce(ctx context.Context, products iter.Seq2[models.Product, error], jobs chan<- *models.DownloadJob, events chan<- event) {
	for product, err := range products {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error("Stopping product traversal", "error", err)
			events <- event{failure: &models.Failure{
				Scope:  models.ScopePage,
				Kind:   errs.KindOf(err).String(),
				Reason: err.Error(),
			}}
			return
		}

		events <- event{product: &product}

		entries, err := s.list(ctx, product)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("Failed to list product objects", "product", product.ID, "prefix", product.Prefix, "error", err)
			events <- event{failure: &models.Failure{
				Scope:     models.ScopeProduct,
				ProductID: product.ID,
				Product:   product.Identifier,
				Kind:      errs.KindOf(err).String(),
				Reason:    err.Error(),
			}}
			continue
		}

		skipped := 0
		for _, entry := range entries {
			if !s.opts.Filter.Matches(entry.RelativePath) {
				skipped++
				continue
			}

			localPath, err := utils.SafeJoin(s.opts.OutputDir, product.Prefix, entry.RelativePath)
			job := models.NewDownloadJob(product, entry, localPath)
			if err != nil {
				_ = job.Fail(errs.New(errs.KindDownload, "malformed path", err))
				events <- event{job: job}
				continue
			}

			select {
			case jobs <- job:
			case <-ctx.Done():
				_ = job.Fail(ctx.Err())
				events <- event{job: job}
				events <- event{skipped: skipped}
				return
			}
		}
		if skipped > 0 {
			events <- event{skipped: skipped}
		}
		s.logger.Debug("Queued product", "product", product.ID, "objects", len(entries), "skipped", skipped)
	}
}

func (s *Scheduler) list(ctx context.Context, product models.Product) ([]models.ObjectEntry, error) {
	var entries []models.ObjectEntry
	_, err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		e, err := s.store.ListObjects(ctx, product)
		if err != nil {
			s.logger.Warn("Listing attempt failed", "product", product.ID, "error", err)
			return err
		}
		entries = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list product %s: %w", product.ID, err)
	}
	return entries, nil
}

func (s *Scheduler) work(ctx context.Context, jobs <-chan *models.DownloadJob, events chan<- event) {
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			_ = job.Fail(err)
			events <- event{job: job}
			continue
		}
		_ = job.Start()
		s.process(ctx, job)
		events <- event{job: job}
	}
}

func (s *Scheduler) process(ctx context.Context, job *models.DownloadJob) {
	if s.opts.ListOnly {
		_ = job.Succeed()
		return
	}

	if s.opts.Overwrite == OverwriteIfChanged && utils.MatchesRemote(job.LocalPath, job.Entry.Size, job.Entry.LastModified) {
		job.UpToDate = true
		_ = job.Succeed()
		return
	}

	attempts, err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		err := s.fetch(ctx, job)
		if err != nil && errs.IsRetryable(err) {
			s.logger.Warn("Transfer attempt failed", "key", job.Entry.Key, "error", err)
		}
		return err
	})
	job.Attempts = attempts
	if err != nil {
		s.logger.Error("Failed to download object", "key", job.Entry.Key, "attempts", attempts, "error", err)
		_ = job.Fail(err)
		return
	}

	s.logger.Debug("Downloaded object", "key", job.Entry.Key, "path", job.LocalPath, "size", job.Entry.Size)
	_ = job.Succeed()
}

// fetch downloads one object into a temporary file beside its destination
// and renames it into place. The temporary file never outlives a failure.
func (s *Scheduler) fetch(ctx context.Context, job *models.DownloadJob) (err error) {
	dir := filepath.Dir(job.LocalPath)
	if err := utils.EnsureDir(dir); err != nil {
		return errs.New(errs.KindDownload, "prepare destination", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(job.LocalPath)+".*.part")
	if err != nil {
		return errs.New(errs.KindDownload, "create temporary file", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			if cleanupErr := utils.CleanupTempFile(tmp.Name()); cleanupErr != nil {
				s.logger.Warn("Failed to remove temporary file", "error", cleanupErr)
			}
		}
	}()

	n, err := s.store.Download(ctx, job.Product, job.Entry, tmp)
	if err != nil {
		return err
	}
	if n != job.Entry.Size {
		return errs.Transient("download", fmt.Errorf("object %s: got %d bytes, want %d", job.Entry.Key, n, job.Entry.Size))
	}

	if err = tmp.Close(); err != nil {
		return errs.New(errs.KindDownload, "write file", err)
	}
	if lm := job.Entry.LastModified; !lm.IsZero() {
		if err = os.Chtimes(tmp.Name(), lm, lm); err != nil {
			return errs.New(errs.KindDownload, "set modification time", err)
		}
	}
	if err = os.Rename(tmp.Name(), job.LocalPath); err != nil {
		return errs.New(errs.KindDownload, "rename into place", err)
	}
	return nil
}

func (s *Scheduler) collect(events <-chan event) *models.RunResult {
	result := &models.RunResult{
		OutputDir: s.opts.OutputDir,
		ListOnly:  s.opts.ListOnly,
		Items:     []models.DownloadItem{},
		Failures:  []models.Failure{},
	}
	order := make(map[string]int)

	for ev := range events {
		switch {
		case ev.product != nil:
			if _, seen := order[ev.product.Identifier]; !seen {
				order[ev.product.Identifier] = len(order)
			}
			result.Products++

		case ev.failure != nil:
			result.Failures = append(result.Failures, *ev.failure)

		case ev.job != nil:
			s.record(result, ev.job)

		default:
			result.Skipped += ev.skipped
		}
	}

	slices.SortStableFunc(result.Items, func(a, b models.DownloadItem) int {
		return cmp.Or(
			cmp.Compare(order[a.Product], order[b.Product]),
			cmp.Compare(a.RemoteKey, b.RemoteKey),
		)
	})
	result.TotalSizeHuman = utils.FormatBytes(result.TotalSizeBytes)
	return result
}

func (s *Scheduler) record(result *models.RunResult, job *models.DownloadJob) {
	item := models.DownloadItem{
		Product:   job.Product.Identifier,
		RemoteKey: job.Entry.Key,
		LocalPath: job.LocalPath,
		Size:      job.Entry.Size,
		Attempts:  job.Attempts,
	}
	result.TotalFiles++

	switch {
	case job.State == models.JobSucceeded:
		result.Succeeded++
		result.TotalSizeBytes += job.Entry.Size
		switch {
		case s.opts.ListOnly:
			item.Status = "listed"
		case job.UpToDate:
			item.Status = "up_to_date"
			result.UpToDate++
		default:
			item.Status = "downloaded"
		}

	default:
		result.Failed++
		item.Status = "failed"
		reason := "unknown error"
		if job.Err != nil {
			reason = job.Err.Error()
		}
		kind := errs.KindOf(job.Err)
		if kind == errs.KindUnknown && (errors.Is(job.Err, context.Canceled) || errors.Is(job.Err, context.DeadlineExceeded)) {
			kind = errs.KindNetwork
		}
		result.Failures = append(result.Failures, models.Failure{
			Scope:     models.ScopeObject,
			ProductID: job.Product.ID,
			Product:   job.Product.Identifier,
			Key:       job.Entry.Key,
			Kind:      kind.String(),
			Reason:    reason,
		})
	}

	result.Items = append(result.Items, item)
}

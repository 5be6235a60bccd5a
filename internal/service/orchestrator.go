package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediabatch/internal/core/domain"
	"mediabatch/internal/core/ports"
)

const defaultConcurrency = 3

// Options tunes the Orchestrator. Zero values fall back to defaults.
type Options struct {
	// Concurrency bounds the number of items processed at once.
	Concurrency int
	// KeyPrefix is prepended to every object key.
	KeyPrefix string
	// PreferredFormat is the container favored by format selection.
	PreferredFormat string
	// ResolveAttempts bounds extractor calls per item.
	ResolveAttempts int
	// RetryBackoff is the first delay between resolution attempts; it doubles each retry.
	RetryBackoff time.Duration
}

// JobRequest is one validated acquisition request.
type JobRequest struct {
	Listing domain.ListingReference
	Window  domain.PageWindow
	Mode    domain.DeliveryMode
}

// Orchestrator coordinates the acquisition workflow of one job at a time per call.
// It holds no per-job state and is safe for concurrent use.
type Orchestrator struct {
	listing  *ListingResolver
	media    *MediaResolver
	transfer *Transfer
	store    ports.ObjectStore
	storage  ports.Storage
	packager ports.Packager
	logger   *slog.Logger

	concurrency int
	keyPrefix   string
	newJobID    func() string
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	extractor ports.Extractor,
	downloader ports.Downloader,
	store ports.ObjectStore,
	storage ports.Storage,
	packager ports.Packager,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Orchestrator{
		listing:     NewListingResolver(extractor, logger),
		media:       NewMediaResolver(extractor, opts.PreferredFormat, opts.ResolveAttempts, opts.RetryBackoff, logger),
		transfer:    NewTransfer(downloader, store, logger),
		store:       store,
		storage:     storage,
		packager:    packager,
		logger:      logger,
		concurrency: opts.Concurrency,
		keyPrefix:   opts.KeyPrefix,
		newJobID:    func() string { return uuid.New().String() },
	}
}

// ListItems resolves the requested window without resolving or transferring media.
func (o *Orchestrator) ListItems(ctx context.Context, listing domain.ListingReference, window domain.PageWindow) (*domain.ListResult, error) {
	refs, err := o.resolveWindow(ctx, listing, window)
	if err != nil {
		return nil, o.windowError("", err)
	}
	return &domain.ListResult{
		ListingURL: listing.String(),
		PageIndex:  window.PageIndex,
		PageSize:   window.PageSize,
		Items:      refs,
	}, nil
}

// RunJob executes a complete acquisition job. Item failures are recorded in the
// result; only job-fatal failures are returned, as *domain.JobError.
func (o *Orchestrator) RunJob(ctx context.Context, req JobRequest) (*domain.JobResult, error) {
	jobID := o.newJobID()
	mode := req.Mode
	if mode == "" {
		mode = domain.DeliveryDirect
	}
	logger := o.logger.With(slog.String("job_id", jobID))

	result := &domain.JobResult{
		JobID:      jobID,
		ListingURL: req.Listing.String(),
		PageIndex:  req.Window.PageIndex,
		PageSize:   req.Window.PageSize,
		Mode:       mode,
		StartedAt:  time.Now().UTC(),
	}
	logger.Info("job started",
		slog.String("listing_url", result.ListingURL),
		slog.Int("page_index", result.PageIndex),
		slog.Int("page_size", result.PageSize),
		slog.String("mode", string(mode)))

	// Resolving
	refs, err := o.resolveWindow(ctx, req.Listing, req.Window)
	if err != nil {
		return nil, o.fail(logger, o.windowError(jobID, err))
	}
	logger.Info("listing resolved", slog.Int("items", len(refs)))

	var area ports.StagingArea
	if mode == domain.DeliveryArchive {
		area, err = o.storage.InitJob(ctx, jobID)
		if err != nil {
			return nil, o.fail(logger, domain.NewJobError(jobID, domain.FailureInternal, err))
		}
		defer func() { _ = area.Close() }()
	}

	// Downloading
	result.Items = o.runItems(ctx, logger, jobID, refs, mode, area)
	result.TotalAttempted = len(result.Items)
	for _, item := range result.Items {
		if item.Success {
			result.SuccessCount++
		}
	}
	if result.SuccessCount == 0 {
		err := fmt.Errorf("%w: %d of %d items failed", domain.ErrAllItemsFailed, result.TotalAttempted, result.TotalAttempted)
		return nil, o.fail(logger, domain.NewJobError(jobID, domain.FailureAllItemsFailed, err))
	}

	// Packaging, Uploading
	if mode == domain.DeliveryArchive {
		archive, err := o.packAndUpload(ctx, logger, jobID, area)
		if err != nil {
			return nil, o.fail(logger, domain.NewJobError(jobID, domain.FailureInternal, err))
		}
		result.Archive = archive
		for i := range result.Items {
			if result.Items[i].Success {
				result.Items[i].StorageKey = &archive.StorageKey
				result.Items[i].PublicURL = &archive.PublicURL
			}
		}
	}

	result.State = domain.JobCompletedFull
	if result.SuccessCount < result.TotalAttempted {
		result.State = domain.JobCompletedPartial
	}
	result.CompletedAt = time.Now().UTC()
	logger.Info("job completed",
		slog.String("state", string(result.State)),
		slog.Int("success_count", result.SuccessCount),
		slog.Int("total_attempted", result.TotalAttempted),
		slog.Duration("elapsed", result.CompletedAt.Sub(result.StartedAt)))
	return result, nil
}

// resolveWindow re-scans the listing from its start up to the end of the
// window and slices the window out of it.
func (o *Orchestrator) resolveWindow(ctx context.Context, listing domain.ListingReference, window domain.PageWindow) ([]domain.ItemReference, error) {
	all, err := o.listing.Resolve(ctx, listing, window.TotalNeeded())
	if err != nil {
		return nil, err
	}
	refs := window.Slice(all)
	if len(refs) == 0 {
		return nil, domain.ErrNoItems
	}
	return refs, nil
}

func (o *Orchestrator) windowError(jobID string, err error) *domain.JobError {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return domain.NewJobError(jobID, domain.FailureInvalidInput, err)
	case errors.Is(err, domain.ErrNoItems):
		return domain.NewJobError(jobID, domain.FailureNoItems, err)
	case errors.Is(err, domain.ErrResolution):
		return domain.NewJobError(jobID, domain.FailureUpstream, err)
	default:
		return domain.NewJobError(jobID, domain.FailureInternal, err)
	}
}

func (o *Orchestrator) fail(logger *slog.Logger, err *domain.JobError) error {
	logger.Error("job failed", slog.String("kind", string(err.Kind)), slog.String("error", err.Err.Error()))
	return err
}

// runItems processes refs on a bounded worker pool. Results are written to
// index-addressed slots, so they come back in window order.
func (o *Orchestrator) runItems(ctx context.Context, logger *slog.Logger, jobID string, refs []domain.ItemReference, mode domain.DeliveryMode, area ports.StagingArea) []domain.ItemResult {
	results := make([]domain.ItemResult, len(refs))
	tasks := make(chan int)
	var wg sync.WaitGroup

	workers := min(o.concurrency, len(refs))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				results[i] = o.processItem(ctx, logger, jobID, refs[i], mode, area)
			}
		}()
	}

	for i := range refs {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	return results
}

// processItem resolves and transfers one item. It never returns an error:
// failures, panics included, are captured in the ItemResult.
func (o *Orchestrator) processItem(ctx context.Context, logger *slog.Logger, jobID string, ref domain.ItemReference, mode domain.DeliveryMode, area ports.StagingArea) (res domain.ItemResult) {
	logger = logger.With(
		slog.Int("global_index", ref.GlobalIndex),
		slog.Int("page_local_index", ref.PageLocalIndex))
	res = domain.ItemResult{
		GlobalIndex:    ref.GlobalIndex,
		PageLocalIndex: ref.PageLocalIndex,
		ItemReference:  ref.URL,
	}
	failed := func(err error) domain.ItemResult {
		msg := err.Error()
		logger.Warn("item failed", slog.String("item_reference", ref.URL), slog.String("error", msg))
		return domain.ItemResult{
			GlobalIndex:    ref.GlobalIndex,
			PageLocalIndex: ref.PageLocalIndex,
			ItemReference:  ref.URL,
			Error:          &msg,
		}
	}
	defer func() {
		if r := recover(); r != nil {
			res = failed(fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(fmt.Errorf("%w: %w", domain.ErrTransfer, err))
	}

	desc, err := o.media.Resolve(ctx, ref)
	if err != nil {
		return failed(err)
	}
	logger.Debug("item resolved",
		slog.String("stable_id", desc.StableID),
		slog.String("format", desc.ContainerFormat))

	name := stagedName(ref.GlobalIndex, desc.StableID, desc.ContainerFormat)
	var n int64
	switch mode {
	case domain.DeliveryArchive:
		_, n, err = o.transfer.ToStaging(ctx, desc, area, name)
		if err != nil {
			return failed(err)
		}
	default:
		key := o.objectKey(jobID, name)
		var publicURL string
		publicURL, n, err = o.transfer.ToStore(ctx, desc, key)
		if err != nil {
			return failed(err)
		}
		res.StorageKey = &key
		res.PublicURL = &publicURL
	}

	res.Success = true
	res.Title = desc.Title
	res.DurationSeconds = desc.DurationSeconds
	logger.Info("item transferred", slog.String("file", name), slog.Int64("bytes", n))
	return res
}

func (o *Orchestrator) packAndUpload(ctx context.Context, logger *slog.Logger, jobID string, area ports.StagingArea) (*domain.ArchiveResult, error) {
	count, err := o.packager.Pack(ctx, area.Dir(), area.ArchivePath())
	if err != nil {
		return nil, err
	}
	logger.Info("archive packed", slog.Int("member_count", count))

	key := o.objectKey(jobID, jobID+".zip")
	publicURL, err := o.store.PutFile(ctx, key, area.ArchivePath(), "application/zip")
	if err != nil {
		return nil, err
	}
	logger.Info("archive uploaded", slog.String("storage_key", key))
	return &domain.ArchiveResult{StorageKey: key, PublicURL: publicURL, MemberCount: count}, nil
}

// objectKey embeds the job id so concurrent jobs never collide.
func (o *Orchestrator) objectKey(jobID, name string) string {
	return path.Join(o.keyPrefix, "jobs", jobID, name)
}

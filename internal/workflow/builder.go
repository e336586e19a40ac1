package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"discback/internal/catalog"
	"discback/internal/config"
	"discback/internal/image"
	"discback/internal/knapsack"
	"discback/internal/logging"
	"discback/internal/media"
	"discback/internal/metrics"
	"discback/internal/notifications"
	"discback/internal/preflight"
	"discback/internal/prune"
	"discback/internal/services"
	"discback/internal/upload"
)

// Builder runs backups for one configuration.
type Builder struct {
	cfg      *config.Config
	logger   *slog.Logger
	catalog  *catalog.Store
	metrics  *metrics.Recorder
	uploader *upload.Uploader
	notifier notifications.Service

	mkisofs   image.Executor
	cdrecord  image.Executor
	preflight func(context.Context, *config.Config) []preflight.Result
	now       func() time.Time
}

// Option configures optional Builder and Purger behavior.
type Option func(*runnerOptions)

type runnerOptions struct {
	catalog   *catalog.Store
	metrics   *metrics.Recorder
	uploader  *upload.Uploader
	notifier  notifications.Service
	mkisofs   image.Executor
	cdrecord  image.Executor
	preflight func(context.Context, *config.Config) []preflight.Result
	now       func() time.Time
}

// WithCatalog records runs in store.
func WithCatalog(store *catalog.Store) Option {
	return func(o *runnerOptions) { o.catalog = store }
}

// WithMetrics records run metrics into rec and exports them to the
// configured textfile.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *runnerOptions) { o.metrics = rec }
}

// WithUploader copies written images offsite.
func WithUploader(u *upload.Uploader) Option {
	return func(o *runnerOptions) { o.uploader = u }
}

// WithNotifier announces run outcomes through svc.
func WithNotifier(svc notifications.Service) Option {
	return func(o *runnerOptions) { o.notifier = svc }
}

// WithExecutors replaces the mkisofs and cdrecord runners (used in tests).
func WithExecutors(mkisofs, cdrecord image.Executor) Option {
	return func(o *runnerOptions) {
		o.mkisofs = mkisofs
		o.cdrecord = cdrecord
	}
}

// WithPreflight replaces the readiness checks (used in tests).
func WithPreflight(fn func(context.Context, *config.Config) []preflight.Result) Option {
	return func(o *runnerOptions) { o.preflight = fn }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *runnerOptions) { o.now = now }
}

func collectOptions(opts []Option) runnerOptions {
	options := runnerOptions{
		preflight: preflight.RunAll,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// NewBuilder constructs a backup runner.
func NewBuilder(cfg *config.Config, logger *slog.Logger, opts ...Option) *Builder {
	options := collectOptions(opts)
	return &Builder{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		catalog:   options.catalog,
		metrics:   options.metrics,
		uploader:  options.uploader,
		notifier:  options.notifier,
		mkisofs:   options.mkisofs,
		cdrecord:  options.cdrecord,
		preflight: options.preflight,
		now:       options.now,
	}
}

// BuildOptions adjusts a single run.
type BuildOptions struct {
	// Full ignores and replaces the saved digest maps.
	Full bool
	// DryRun stops before writing anything: no image, digests, catalog
	// entries, metrics, or uploads.
	DryRun bool
	// EstimateOnly stops after the first size estimate, without pruning.
	// It implies DryRun.
	EstimateOnly bool
}

// Report summarises a backup run.
type Report struct {
	RunID          string
	Mode           string
	Stage          string // last stage entered
	DryRun         bool
	ImagePath      string
	MediaType      string
	Capacity       media.Capacity
	CapacityBytes  int64
	EstimatedBytes int64
	FileBytes      int64
	Candidates     int
	Unchanged      int
	Entries        []image.Entry
	Prune          *prune.Result
	DigestPaths    []string
	Uploads        []upload.Result
}

// Fits reports whether the estimated image fits the capacity.
func (r *Report) Fits() bool {
	return r.EstimatedBytes <= r.CapacityBytes
}

// Run performs one backup.
func (b *Builder) Run(ctx context.Context, opts BuildOptions) (report *Report, err error) {
	if opts.EstimateOnly {
		opts.DryRun = true
	}
	mode := b.cfg.Collect.Mode
	if opts.Full {
		mode = config.CollectModeFull
	}
	report = &Report{Mode: mode, DryRun: opts.DryRun, MediaType: b.cfg.Store.MediaType}

	lock, err := acquireLock(b.cfg.Paths.LockPath)
	if err != nil {
		return report, err
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			b.logger.Warn("failed to release run lock", logging.Error(unlockErr))
		}
	}()

	if err = b.cfg.EnsureDirectories(); err != nil {
		return report, err
	}

	started := b.now()
	var run *catalog.Run
	if !opts.DryRun && b.catalog != nil {
		if count, markErr := b.catalog.MarkAbandoned(ctx); markErr != nil {
			b.logger.Warn("failed to mark abandoned runs", logging.Error(markErr))
		} else if count > 0 {
			logging.WarnWithContext(b.logger, "previous runs were interrupted", "runs_abandoned",
				logging.Int64("count", count),
				logging.String(logging.FieldImpact, "their images may be incomplete"))
		}
		run, err = b.catalog.BeginRun(ctx, catalog.KindBackup, mode)
		if err != nil {
			return report, err
		}
		report.RunID = run.ID
		ctx = services.WithRunID(ctx, run.ID)
	}
	logger := logging.WithContext(ctx, b.logger)

	defer func() {
		if !opts.DryRun {
			b.finish(ctx, logger, run, report, started, err)
		}
	}()

	report.Stage = "preflight"
	if err = b.runPreflightChecks(ctx, logger); err != nil {
		return report, err
	}

	logger.Info("backup started",
		logging.String("mode", mode),
		logging.Int("collect_dirs", len(b.cfg.Collect.Dirs)),
		logging.Bool("dry_run", opts.DryRun),
		logging.String(logging.FieldEventType, "backup_started"))

	img := b.newImage()
	report.Stage = "collect"
	targets, err := b.collect(services.WithStage(ctx, "collect"), logger, img, mode == config.CollectModeFull, report)
	if err != nil {
		return report, err
	}

	if img.Len() == 0 {
		logger.Info("no changed files to back up",
			logging.Int("candidates", report.Candidates),
			logging.Int("unchanged", report.Unchanged),
			logging.String(logging.FieldEventType, "backup_nothing_changed"))
		if !opts.DryRun {
			err = b.saveDigests(logger, targets, nil, report)
		}
		return report, err
	}

	report.Stage = "capacity"
	capacity, err := b.capacity(services.WithStage(ctx, "capacity"), logger)
	if err != nil {
		return report, err
	}
	report.Capacity = capacity
	report.CapacityBytes = capacity.Limit(b.cfg.Store.CapacityPercent)
	img.Device = b.cfg.Store.Device
	img.Boundaries = capacity.Boundaries

	report.Stage = "estimate"
	report.EstimatedBytes, err = img.EstimateSize(ctx)
	if err != nil {
		return report, err
	}
	report.Entries = img.Entries()
	_, report.FileBytes = image.CalculateSizes(report.Entries)
	logger.Info("image estimated",
		logging.Int64("estimated_bytes", report.EstimatedBytes),
		logging.Int64("capacity_bytes", report.CapacityBytes),
		logging.Any("capacity", capacity),
		logging.Int("entries", img.Len()))
	if opts.EstimateOnly {
		return report, nil
	}

	if report.EstimatedBytes > report.CapacityBytes {
		report.Stage = "prune"
		if err = b.prune(services.WithStage(ctx, "prune"), img, report); err != nil {
			return report, err
		}
	}

	if opts.DryRun {
		return report, nil
	}

	report.Stage = "write"
	report.ImagePath = b.cfg.ImagePath(started)
	if err = img.Write(services.WithStage(ctx, "write"), report.ImagePath); err != nil {
		return report, err
	}

	report.Stage = "digest"
	if err = b.saveDigests(logger, targets, img, report); err != nil {
		return report, err
	}
	if run != nil {
		b.recordFiles(ctx, logger, run.ID, report.Entries)
	}
	report.Stage = "upload"
	if err = b.upload(services.WithStage(ctx, "upload"), logger, report); err != nil {
		return report, err
	}

	logger.Info("backup completed",
		logging.String("image", report.ImagePath),
		logging.Int("entries", len(report.Entries)),
		logging.Int64("estimated_bytes", report.EstimatedBytes),
		logging.Duration("elapsed", b.now().Sub(started)),
		logging.String(logging.FieldEventType, "backup_completed"))
	return report, nil
}

func (b *Builder) newImage() *image.Image {
	img := image.NewWithExecutor(b.cfg.Image.MkisofsBinary, b.mkisofs, b.logger)
	img.RockRidge = b.cfg.Image.RockRidge
	img.ApplicationID = b.cfg.Image.ApplicationID
	img.BiblioFile = b.cfg.Image.BiblioFile
	img.PublisherID = b.cfg.Image.PublisherID
	img.PreparerID = b.cfg.Image.PreparerID
	img.VolumeID = b.cfg.Image.VolumeID
	img.DefaultGraft = b.cfg.Image.GraftPoint
	img.EstimateTimeout = b.cfg.EstimateTimeout()
	img.WriteTimeout = b.cfg.WriteTimeout()
	return img
}

// capacity reads the media definition and, when configured, the
// multisession boundaries of the disc in the device.
func (b *Builder) capacity(ctx context.Context, logger *slog.Logger) (media.Capacity, error) {
	def, err := media.Lookup(b.cfg.Store.MediaType)
	if err != nil {
		return media.Capacity{}, err
	}
	var boundaries *image.Boundaries
	if b.cfg.Store.CheckBoundaries {
		prober := media.NewProberWithExecutor(b.cfg.Store.CdrecordBinary, b.cfg.Store.Device, b.cdrecord, logger)
		boundaries, err = prober.Boundaries(ctx)
		if err != nil {
			return media.Capacity{}, err
		}
	}
	return def.Capacity(boundaries), nil
}

func (b *Builder) prune(ctx context.Context, img *image.Image, report *Report) error {
	if !b.cfg.Store.Prune {
		return services.Wrap(services.ErrUnfittable, "workflow", "fit",
			fmt.Sprintf("image of %d bytes exceeds capacity %d and pruning is disabled", report.EstimatedBytes, report.CapacityBytes), nil)
	}
	strategy, err := knapsack.ParseStrategy(b.cfg.Store.Strategy)
	if err != nil {
		return err
	}
	controller := prune.New(logging.WithContext(ctx, b.logger))
	controller.Strategy = strategy
	result, err := controller.Prune(ctx, img, report.CapacityBytes)
	if err != nil {
		return err
	}
	report.Prune = &result
	if result.State != prune.Fit {
		return result.Err()
	}
	report.EstimatedBytes = result.EstimatedSize
	report.Entries = img.Entries()
	_, report.FileBytes = image.CalculateSizes(report.Entries)
	return nil
}

func (b *Builder) upload(ctx context.Context, logger *slog.Logger, report *Report) error {
	if b.uploader == nil || !b.cfg.Upload.Enabled {
		return nil
	}
	res, err := b.uploader.UploadImage(ctx, report.ImagePath)
	if err != nil {
		return err
	}
	report.Uploads = append(report.Uploads, res)
	if b.cfg.Upload.IncludeDigest {
		for _, path := range report.DigestPaths {
			res, err := b.uploader.UploadDigest(ctx, path)
			if err != nil {
				return err
			}
			report.Uploads = append(report.Uploads, res)
		}
	}
	logger.Info("upload completed",
		logging.Int("objects", len(report.Uploads)),
		logging.String("bucket", b.cfg.Upload.Bucket))
	return nil
}

func (b *Builder) recordFiles(ctx context.Context, logger *slog.Logger, runID string, entries []image.Entry) {
	sizes, _ := image.CalculateSizes(entries)
	records := make([]catalog.FileRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, catalog.FileRecord{Path: e.Path, Graft: e.Graft, Size: sizes[e.Path]})
	}
	if err := b.catalog.RecordFiles(ctx, runID, records); err != nil {
		logging.WarnWithContext(logger, "failed to record image contents", "catalog_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history will not list the files on this disc"))
	}
}

// finish records the run outcome in the catalog and metrics. Failures here
// are logged, never returned.
func (b *Builder) finish(ctx context.Context, logger *slog.Logger, run *catalog.Run, report *Report, started time.Time, runErr error) {
	finished := b.now()
	status := services.Outcome(runErr)
	if runErr != nil {
		logger.Error("backup failed",
			logging.Error(runErr),
			logging.String("status", status),
			logging.String(logging.FieldEventType, "backup_failed"),
			logging.String(logging.FieldErrorHint, failureHint(runErr)))
	}

	if run != nil {
		run.ImagePath = report.ImagePath
		run.MediaType = report.MediaType
		run.CapacityBytes = report.CapacityBytes
		run.EstimatedBytes = report.EstimatedBytes
		run.FileBytes = report.FileBytes
		run.Candidates = report.Candidates
		run.Unchanged = report.Unchanged
		run.Selected = len(report.Entries)
		if report.Prune != nil {
			run.Pruned = true
			run.Dropped = report.Prune.Dropped
		}
		if len(report.Uploads) > 0 {
			run.UploadKey = report.Uploads[0].Key
		}
		// The caller's context may already be cancelled.
		if err := b.catalog.FinishRun(context.WithoutCancel(ctx), run, runErr); err != nil {
			logger.Warn("failed to record run outcome", logging.Error(err))
		}
	}

	if b.metrics != nil {
		stats := metrics.BackupStats{
			Status:         status,
			Duration:       finished.Sub(started),
			EstimatedBytes: report.EstimatedBytes,
			CapacityBytes:  report.CapacityBytes,
			Candidates:     report.Candidates,
			Unchanged:      report.Unchanged,
			Selected:       len(report.Entries),
		}
		if report.Prune != nil {
			stats.Dropped = report.Prune.Dropped
			stats.PruneAttempts = report.Prune.Attempts
		}
		b.metrics.RecordBackup(stats, finished)
		for _, u := range report.Uploads {
			b.metrics.RecordUpload(uploadObjectKind(u.Key), u.Bytes, u.Duration)
		}
		if err := b.metrics.WriteTextfile(b.cfg.Metrics.TextfilePath); err != nil {
			logger.Warn("failed to export metrics", logging.Error(err))
		}
	}

	b.notify(context.WithoutCancel(ctx), logger, report, finished.Sub(started), runErr)
}

func (b *Builder) notify(ctx context.Context, logger *slog.Logger, report *Report, elapsed time.Duration, runErr error) {
	if b.notifier == nil {
		return
	}
	var err error
	if runErr != nil {
		err = b.notifier.NotifyBackupFailed(ctx, runErr, report.Stage)
	} else {
		summary := notifications.BackupSummary{
			RunID:     report.RunID,
			Mode:      report.Mode,
			ImagePath: report.ImagePath,
			Entries:   len(report.Entries),
			Bytes:     report.FileBytes,
			Duration:  elapsed,
		}
		if report.Prune != nil {
			summary.Dropped = report.Prune.Dropped
		}
		err = b.notifier.NotifyBackupCompleted(ctx, summary)
	}
	if err != nil {
		logging.WarnWithContext(logger, "failed to send notification", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run outcome was not announced"))
	}
}

func uploadObjectKind(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "digest"
	}
	return "image"
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrUnfittable):
		return "use larger media, lower the number of collect dirs, or enable store.prune"
	case errors.Is(err, services.ErrConfiguration):
		return "run 'discback config validate' and 'discback check'"
	case errors.Is(err, services.ErrTimeout):
		return "raise image.estimate_timeout_seconds or image.write_timeout_seconds"
	case errors.Is(err, services.ErrExternalTool):
		return "check that mkisofs and cdrecord work from a shell"
	case errors.Is(err, ErrLocked):
		return "wait for the running backup to finish"
	default:
		return "check logs for details"
	}
}

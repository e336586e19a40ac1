package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"discback/internal/catalog"
	"discback/internal/config"
	"discback/internal/fsset"
	"discback/internal/logging"
	"discback/internal/metrics"
	"discback/internal/notifications"
	"discback/internal/services"
)

// Purger removes old files from the configured purge directories.
type Purger struct {
	cfg      *config.Config
	logger   *slog.Logger
	catalog  *catalog.Store
	metrics  *metrics.Recorder
	notifier notifications.Service
	now      func() time.Time
}

// PurgeDirReport describes one purge directory.
type PurgeDirReport struct {
	Path       string
	RetainDays int
	Skipped    bool
	Candidates int
	Files      int
	Dirs       int
}

// PurgeReport summarises a purge run.
type PurgeReport struct {
	RunID  string
	DryRun bool
	Dirs   []PurgeDirReport
}

// Totals sums the removed files and directories over every purge directory.
func (r *PurgeReport) Totals() (files, dirs int) {
	for _, d := range r.Dirs {
		files += d.Files
		dirs += d.Dirs
	}
	return files, dirs
}

// NewPurger constructs a purge runner. The executor, uploader and preflight
// options are ignored.
func NewPurger(cfg *config.Config, logger *slog.Logger, opts ...Option) *Purger {
	options := collectOptions(opts)
	return &Purger{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "purge"),
		catalog:  options.catalog,
		metrics:  options.metrics,
		notifier: options.notifier,
		now:      options.now,
	}
}

// Run purges every configured directory. With dryRun set nothing is
// removed; the report counts the candidates that would be.
func (p *Purger) Run(ctx context.Context, dryRun bool) (report *PurgeReport, err error) {
	report = &PurgeReport{DryRun: dryRun}

	lock, err := acquireLock(p.cfg.Paths.LockPath)
	if err != nil {
		return report, err
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			p.logger.Warn("failed to release run lock", logging.Error(unlockErr))
		}
	}()

	started := p.now()
	var run *catalog.Run
	if !dryRun && p.catalog != nil {
		run, err = p.catalog.BeginRun(ctx, catalog.KindPurge, "purge")
		if err != nil {
			return report, err
		}
		report.RunID = run.ID
		ctx = services.WithRunID(ctx, run.ID)
	}
	logger := logging.WithContext(ctx, p.logger)

	defer func() {
		if !dryRun {
			p.finish(ctx, logger, run, report, started, err)
		}
	}()

	for _, dir := range p.cfg.Purge.Dirs {
		if err = ctx.Err(); err != nil {
			return report, err
		}
		dirReport, dirErr := p.purgeDir(logging.WithContext(services.WithTarget(ctx, dir.Path), p.logger), dir, dryRun)
		if dirErr != nil {
			err = dirErr
			return report, err
		}
		report.Dirs = append(report.Dirs, dirReport)
	}

	files, dirs := report.Totals()
	logger.Info("purge completed",
		logging.Int("directories", len(report.Dirs)),
		logging.Int("files", files),
		logging.Int("dirs", dirs),
		logging.Bool("dry_run", dryRun),
		logging.String(logging.FieldEventType, "purge_completed"))
	return report, nil
}

func (p *Purger) purgeDir(logger *slog.Logger, dir config.PurgeDir, dryRun bool) (PurgeDirReport, error) {
	out := PurgeDirReport{Path: dir.Path, RetainDays: dir.RetainDays}

	list := fsset.NewPurgeList(logger)
	list.IgnoreFile = p.cfg.Collect.IgnoreFile
	list.SetClock(p.now)
	if _, err := list.AddDirContents(dir.Path, fsset.DefaultWalk); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			logging.WarnWithContext(logger, "purge directory missing", "purge_dir_missing",
				logging.String("path", dir.Path),
				logging.String(logging.FieldImpact, "directory skipped"))
			out.Skipped = true
			return out, nil
		}
		return out, err
	}
	list.RemoveYoungFiles(dir.RetainDays)
	out.Candidates = list.Len()

	if dryRun {
		for path := range list.All() {
			if fsset.Classify(path) == fsset.KindDir {
				out.Dirs++
			} else {
				out.Files++
			}
		}
		return out, nil
	}
	out.Files, out.Dirs = list.PurgeItems()
	return out, nil
}

func (p *Purger) finish(ctx context.Context, logger *slog.Logger, run *catalog.Run, report *PurgeReport, started time.Time, runErr error) {
	finished := p.now()
	if runErr != nil {
		logger.Error("purge failed",
			logging.Error(runErr),
			logging.String(logging.FieldEventType, "purge_failed"),
			logging.String(logging.FieldErrorHint, failureHint(runErr)))
	}
	files, dirs := report.Totals()
	if run != nil {
		run.Selected = files + dirs
		if err := p.catalog.FinishRun(context.WithoutCancel(ctx), run, runErr); err != nil {
			logger.Warn("failed to record run outcome", logging.Error(err))
		}
	}
	if p.metrics != nil {
		p.metrics.RecordPurge(services.Outcome(runErr), finished.Sub(started), files, dirs, finished)
		if err := p.metrics.WriteTextfile(p.cfg.Metrics.TextfilePath); err != nil {
			logger.Warn("failed to export metrics", logging.Error(err))
		}
	}
	if p.notifier != nil {
		notifyCtx := context.WithoutCancel(ctx)
		var err error
		if runErr != nil {
			err = p.notifier.NotifyBackupFailed(notifyCtx, runErr, "purge")
		} else {
			err = p.notifier.NotifyPurgeCompleted(notifyCtx, files, dirs)
		}
		if err != nil {
			logger.Warn("failed to send notification", logging.Error(err))
		}
	}
}

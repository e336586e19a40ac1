// Package prune shrinks an image until mkisofs estimates it within a
// capacity, dropping files chosen by a knapsack strategy.
package prune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"discback/internal/image"
	"discback/internal/knapsack"
	"discback/internal/logging"
	"discback/internal/services"
	"discback/internal/units"
)

// DefaultFactors shrink the file budget a little more on every attempt.
var DefaultFactors = []float64{1.00, 0.98, 0.95, 0.90}

// State is the terminal state of a pruning run.
type State string

const (
	Fit        State = "fit"
	Unfittable State = "unfittable"
)

// Result describes how pruning ended.
type Result struct {
	State  State
	Reason string
	// Attempts counts the selection passes that were re-estimated.
	Attempts      int
	EstimatedSize int64
	FileBytes     int64
	Overhead      int64
	Kept          int
	Dropped       int
}

// Err returns nil on Fit and an error wrapping services.ErrUnfittable
// otherwise.
func (r Result) Err() error {
	if r.State == Fit {
		return nil
	}
	return services.Wrap(services.ErrUnfittable, "prune", "", r.Reason, nil)
}

// Controller prunes images.
type Controller struct {
	Strategy knapsack.Strategy
	Factors  []float64
	Logger   *slog.Logger
}

// New returns a worst-fit controller with the default factors.
func New(logger *slog.Logger) *Controller {
	return &Controller{Strategy: knapsack.Worst, Factors: DefaultFactors, Logger: logger}
}

// Prune fits img within capacity bytes. The image overhead is measured
// once from the unpruned image; every attempt then selects files into the
// remaining budget scaled by the next factor and re-estimates the result.
// img is only changed when the state is Fit. Errors are returned for an
// empty image, a failing initial estimate, or cancellation; running out of
// attempts is reported through the Result.
func (c *Controller) Prune(ctx context.Context, img *image.Image, capacity int64) (Result, error) {
	logger := logging.NewComponentLogger(c.Logger, "prune")
	strategy := c.Strategy
	if strategy == "" {
		strategy = knapsack.Worst
	}
	factors := c.Factors
	if len(factors) == 0 {
		factors = DefaultFactors
	}
	if capacity < 0 {
		return Result{}, services.Wrap(services.ErrInvalidArgument, "prune", "", fmt.Sprintf("negative capacity %d", capacity), nil)
	}
	if img.Len() == 0 {
		return Result{}, services.Wrap(services.ErrInvalidArgument, "prune", "", "image does not contain any entries", nil)
	}

	expanded, err := img.Expand(img.Entries())
	if err != nil {
		return Result{}, err
	}
	sizes, fileBytes := image.CalculateSizes(expanded)
	estimate, err := img.EstimateSize(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{EstimatedSize: estimate, FileBytes: fileBytes, Overhead: estimate - fileBytes}
	logger.Info("pruning image",
		logging.Int64("capacity", capacity),
		logging.Int64("estimated_size", estimate),
		logging.Int64("file_bytes", fileBytes),
		logging.Int64("overhead", res.Overhead),
		logging.Int("leaves", len(expanded)),
		logging.String("strategy", string(strategy)))

	if res.Overhead > capacity {
		res.State = Unfittable
		res.Reason = fmt.Sprintf("required overhead %s exceeds capacity %s", units.Display(res.Overhead), units.Display(capacity))
		return res, nil
	}

	for i, factor := range factors {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		budget := int64(float64(capacity-res.Overhead) * factor)
		selection, err := knapsack.Select(sizes, budget, strategy)
		if err != nil {
			return res, err
		}
		if len(selection.Chosen) == 0 || selection.Used == 0 {
			res.State = Unfittable
			res.Reason = "unable to fit any entries into available capacity"
			return res, nil
		}

		pruned := image.BuildEntries(expanded, selection.Chosen)
		res.Attempts++
		size, err := img.EstimateEntries(ctx, pruned)
		if err != nil {
			if errors.Is(err, services.ErrExternalTool) && ctx.Err() == nil {
				logger.Warn("pruned estimate failed; trying a smaller budget",
					logging.Int("attempt", i+1),
					logging.Error(err),
					logging.String(logging.FieldEventType, "prune_estimate_failed"),
					logging.String(logging.FieldImpact, "attempt counted as not fitting"))
				continue
			}
			return res, err
		}
		logger.Debug("prune attempt",
			logging.Int("attempt", i+1),
			logging.Float64("factor", factor),
			logging.Int64("budget", budget),
			logging.Int64("selected_bytes", selection.Used),
			logging.Int64("estimated_size", size))
		if size <= capacity {
			img.SetEntries(pruned)
			res.State = Fit
			res.EstimatedSize = size
			res.Kept = len(pruned)
			res.Dropped = len(expanded) - len(pruned)
			logger.Info("image pruned to fit",
				logging.Int("attempts", res.Attempts),
				logging.Int("kept", res.Kept),
				logging.Int("dropped", res.Dropped),
				logging.Int64("estimated_size", size))
			return res, nil
		}
	}

	res.State = Unfittable
	res.Reason = fmt.Sprintf("unable to prune image to fit capacity after %d attempts", len(factors))
	return res, nil
}

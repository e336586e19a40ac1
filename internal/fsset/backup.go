package fsset

import (
	"context"
	"fmt"
	"log/slog"

	"discback/internal/digest"
	"discback/internal/knapsack"
	"discback/internal/logging"
	"discback/internal/services"
)

// BackupList collects the files that make up one backup. Real directories
// are never entries: a directory on disc is implied by the files below it.
// Symlinks, including symlinks to directories, are stored as files.
type BackupList struct {
	*List
}

// NewBackupList returns an empty backup list.
func NewBackupList(logger *slog.Logger) *BackupList {
	return &BackupList{List: newList(logger, variantBackup)}
}

// SpanItem is one disc worth of entries produced by GenerateSpan.
type SpanItem struct {
	Paths       []string
	Size        int64
	Capacity    int64
	Utilization float64
}

// SizeMap returns the byte cost of every entry. Symlinks cost nothing and
// entries that vanished are left out.
func (b *BackupList) SizeMap() map[string]int64 {
	sizes := make(map[string]int64, len(b.entries))
	for _, path := range b.entries {
		item, ok := Describe(path)
		if !ok {
			continue
		}
		switch item.Kind {
		case KindFile, KindLink:
			sizes[path] = item.Size
		}
	}
	return sizes
}

// TotalSize sums the sizes of the regular files in the list.
func (b *BackupList) TotalSize() int64 {
	var total int64
	for _, size := range b.SizeMap() {
		total += size
	}
	return total
}

// GenerateDigestMap fingerprints every regular file in the list.
func (b *BackupList) GenerateDigestMap(ctx context.Context) (digest.Map, error) {
	return digest.BuildMap(ctx, b.All(), b.logger)
}

// RemoveUnchanged drops files whose fingerprint matches prior. With capture
// set it also returns the fingerprints computed for every examined file.
func (b *BackupList) RemoveUnchanged(ctx context.Context, prior digest.Map, capture bool) (int, digest.Map, error) {
	var (
		kept    []string
		removed int
		current digest.Map
		err     error
	)
	if capture {
		kept, removed, current, err = digest.RemoveUnchangedCapture(ctx, b.entries, prior, b.logger)
	} else {
		kept, removed, err = digest.RemoveUnchanged(ctx, b.entries, prior, b.logger)
	}
	if err != nil {
		return 0, nil, err
	}
	b.replace(kept)
	return removed, current, nil
}

// GenerateFitted selects the entries that fit capacity with the given
// strategy. The list itself is not changed.
func (b *BackupList) GenerateFitted(capacity int64, strategy knapsack.Strategy) (knapsack.Result, error) {
	return knapsack.Select(b.SizeMap(), capacity, strategy)
}

// GenerateSpan splits the list into discs of at most capacity bytes each.
// Every disc is filled with the strategy from whatever is left over. It fails
// when any single entry is larger than capacity.
func (b *BackupList) GenerateSpan(capacity int64, strategy knapsack.Strategy) ([]SpanItem, error) {
	if capacity <= 0 {
		return nil, services.Wrap(services.ErrInvalidArgument, "fsset", "generate span", fmt.Sprintf("capacity must be positive, got %d", capacity), nil)
	}
	remaining := b.SizeMap()
	for path, size := range remaining {
		if size > capacity {
			return nil, services.Wrap(services.ErrInvalidArgument, "fsset", "generate span",
				fmt.Sprintf("%s is %d bytes, larger than capacity %d", path, size, capacity), nil)
		}
	}

	var spans []SpanItem
	for len(remaining) > 0 {
		res, err := knapsack.Select(remaining, capacity, strategy)
		if err != nil {
			return nil, err
		}
		if len(res.Chosen) == 0 {
			// Unreachable while every entry fits capacity.
			return nil, services.Wrap(services.ErrInvalidArgument, "fsset", "generate span", "no progress", nil)
		}
		spans = append(spans, SpanItem{
			Paths:       res.Chosen,
			Size:        res.Used,
			Capacity:    capacity,
			Utilization: float64(res.Used) / float64(capacity) * 100,
		})
		for _, path := range res.Chosen {
			delete(remaining, path)
		}
	}
	b.logger.Debug("span generated",
		logging.Int("discs", len(spans)),
		logging.Int64("capacity", capacity),
		logging.String("strategy", string(strategy)))
	return spans, nil
}

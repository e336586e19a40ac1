package digest

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/zeebo/blake3"

	"discback/internal/logging"
	"discback/internal/services"
)

// Algorithm identifies the content digest recorded in persisted maps. Maps
// written with a different algorithm are not comparable and load as empty.
const Algorithm = "blake3-256"

// Map associates regular file paths with their content fingerprint.
type Map map[string]string

// Keys returns the mapped paths in sorted order.
func (m Map) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// Fingerprint returns the hex BLAKE3 digest of the file at path. Symlinks and
// directories are rejected.
func Fingerprint(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", services.Wrap(services.ErrInvalidArgument, "digest", "fingerprint", fmt.Sprintf("%s is not a regular file", path), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// BuildMap fingerprints every regular file in paths. Anything that vanished,
// cannot be read, or is not a regular file is skipped.
func BuildMap(ctx context.Context, paths iter.Seq[string], logger *slog.Logger) (Map, error) {
	logger = logging.NewComponentLogger(logger, "digest")
	out := make(Map)
	for path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum, err := Fingerprint(path)
		if err != nil {
			logger.Debug("skipping file during digest", logging.String("path", path), logging.Error(err))
			continue
		}
		out[path] = sum
	}
	return out, nil
}

// RemoveUnchanged drops every path whose current fingerprint matches the one
// recorded in prior. Paths absent from prior are kept. It returns the
// surviving paths in their original order and the number removed.
func RemoveUnchanged(ctx context.Context, paths []string, prior Map, logger *slog.Logger) ([]string, int, error) {
	kept, removed, _, err := removeUnchanged(ctx, paths, prior, false, logger)
	return kept, removed, err
}

// RemoveUnchangedCapture behaves like RemoveUnchanged and also returns the
// fingerprints computed along the way, covering both kept and removed files,
// so callers can persist a fresh map without hashing twice.
func RemoveUnchangedCapture(ctx context.Context, paths []string, prior Map, logger *slog.Logger) ([]string, int, Map, error) {
	return removeUnchanged(ctx, paths, prior, true, logger)
}

func removeUnchanged(ctx context.Context, paths []string, prior Map, capture bool, logger *slog.Logger) ([]string, int, Map, error) {
	logger = logging.NewComponentLogger(logger, "digest")
	kept := make([]string, 0, len(paths))
	var current Map
	if capture {
		current = make(Map, len(paths))
	}
	removed := 0

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, 0, nil, err
		}
		info, err := os.Lstat(path)
		if err != nil {
			logger.Debug("dropping vanished file", logging.String("path", path), logging.Error(err))
			continue
		}
		if !info.Mode().IsRegular() {
			kept = append(kept, path)
			continue
		}
		previous, known := prior[path]
		if !known && !capture {
			kept = append(kept, path)
			continue
		}
		sum, err := Fingerprint(path)
		if err != nil {
			logger.Debug("dropping unreadable file", logging.String("path", path), logging.Error(err))
			continue
		}
		if capture {
			current[path] = sum
		}
		if known && previous == sum {
			removed++
			continue
		}
		kept = append(kept, path)
	}

	logger.Debug("filtered unchanged files",
		logging.Int("candidates", len(paths)),
		logging.Int("kept", len(kept)),
		logging.Int("removed", removed))
	return kept, removed, current, nil
}

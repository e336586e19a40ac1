package image

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"discback/internal/logging"
	"discback/internal/services"
)

// DefaultBinary is the size-estimation and image-writing tool.
const DefaultBinary = "mkisofs"

// Entry places one source path in the image. An empty Graft puts a file at
// the image root and merges a directory's contents into the root.
type Entry struct {
	Path  string
	Graft string
}

// Boundaries are the multisession sector boundaries reported by
// cdrecord -msinfo.
type Boundaries struct {
	SessionStart     int64
	NextSessionStart int64
}

// Executor abstracts command execution for mkisofs.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// commandExecutor executes commands using os/exec.
type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.Output()
}

// Image is the set of entries that make up one ISO image, along with the
// metadata passed to mkisofs. It is not safe for concurrent use.
type Image struct {
	// Device and Boundaries together request a multisession image. Either
	// one alone is ignored.
	Device     string
	Boundaries *Boundaries

	// DefaultGraft applies to entries added without their own graft.
	DefaultGraft string

	RockRidge     bool
	ApplicationID string
	BiblioFile    string
	PublisherID   string
	PreparerID    string
	VolumeID      string

	EstimateTimeout time.Duration
	WriteTimeout    time.Duration

	binary  string
	exec    Executor
	logger  *slog.Logger
	entries map[string]string
}

// New constructs an empty Rock Ridge image that runs binary.
func New(binary string, logger *slog.Logger) *Image {
	return NewWithExecutor(binary, commandExecutor{}, logger)
}

// NewWithExecutor allows injecting a custom executor for testing.
func NewWithExecutor(binary string, exec Executor, logger *slog.Logger) *Image {
	if exec == nil {
		exec = commandExecutor{}
	}
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	return &Image{
		RockRidge: true,
		binary:    binary,
		exec:      exec,
		logger:    logging.NewComponentLogger(logger, "image"),
		entries:   make(map[string]string),
	}
}

// Binary returns the configured tool.
func (img *Image) Binary() string { return img.binary }

// Len returns the number of entries.
func (img *Image) Len() int { return len(img.entries) }

// AddEntry registers a file or directory. A directory lands in the image as
// graft/basename, or as its contents directly under graft when contentsOnly
// is set. A file lands directly under graft. An empty graft falls back to
// DefaultGraft. Symlinks are never added directly.
func (img *Image) AddEntry(path, graft string, override, contentsOnly bool) error {
	if _, exists := img.entries[path]; exists && !override {
		return services.Wrap(services.ErrInvalidArgument, "image", "add entry", fmt.Sprintf("%s has already been added", path), nil)
	}
	info, err := os.Lstat(path)
	if err != nil {
		return services.Wrap(services.ErrInvalidArgument, "image", "add entry", fmt.Sprintf("%s does not exist", path), err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return services.Wrap(services.ErrInvalidArgument, "image", "add entry", fmt.Sprintf("%s is a symlink", path), nil)
	}
	if graft != "" {
		graft = cleanGraft(graft)
		if graft == "" {
			return services.Wrap(services.ErrInvalidArgument, "image", "add entry", "graft point must not be empty", nil)
		}
	} else {
		graft = cleanGraft(img.DefaultGraft)
	}

	switch {
	case info.IsDir():
		if !contentsOnly {
			graft = joinGraft(graft, filepath.Base(path))
		}
	case info.Mode().IsRegular():
	default:
		return services.Wrap(services.ErrInvalidArgument, "image", "add entry", fmt.Sprintf("%s is neither a file nor a directory", path), nil)
	}
	img.entries[path] = graft
	return nil
}

// Entries returns the entries sorted by source path.
func (img *Image) Entries() []Entry {
	return toEntries(img.entries)
}

// SetEntries replaces the entry set. Callers are expected to have built the
// entries through AddEntry, Expand, or BuildEntries.
func (img *Image) SetEntries(entries []Entry) {
	img.entries = make(map[string]string, len(entries))
	for _, e := range entries {
		img.entries[e.Path] = e.Graft
	}
}

// EstimateSize returns the size in bytes of the image mkisofs would write.
func (img *Image) EstimateSize(ctx context.Context) (int64, error) {
	if len(img.entries) == 0 {
		return 0, services.Wrap(services.ErrInvalidArgument, "image", "estimate size", "image does not contain any entries", nil)
	}
	return img.EstimateEntries(ctx, img.Entries())
}

// EstimateEntries estimates an image holding entries instead of the current
// entry set, using the same metadata. The image itself is not changed.
func (img *Image) EstimateEntries(ctx context.Context, entries []Entry) (int64, error) {
	if len(entries) == 0 {
		return 0, services.Wrap(services.ErrInvalidArgument, "image", "estimate size", "no entries to estimate", nil)
	}
	ctx, cancel := withTimeout(ctx, img.EstimateTimeout)
	defer cancel()

	start := time.Now()
	output, err := img.exec.Run(ctx, img.binary, img.sizeArgs(entries))
	if err != nil {
		return 0, toolError(ctx, "estimate size", img.binary, err)
	}
	size, err := parseSizeOutput(output)
	if err != nil {
		return 0, err
	}
	img.logger.Debug("estimated image size",
		logging.Int("entries", len(entries)),
		logging.Int64("bytes", size),
		logging.Duration("elapsed", time.Since(start)))
	return size, nil
}

// Write builds the image at imagePath.
func (img *Image) Write(ctx context.Context, imagePath string) error {
	if len(img.entries) == 0 {
		return services.Wrap(services.ErrInvalidArgument, "image", "write", "image does not contain any entries", nil)
	}
	if strings.TrimSpace(imagePath) == "" {
		return services.Wrap(services.ErrInvalidArgument, "image", "write", "image path must be set", nil)
	}
	ctx, cancel := withTimeout(ctx, img.WriteTimeout)
	defer cancel()

	start := time.Now()
	if _, err := img.exec.Run(ctx, img.binary, img.WriteArgs(imagePath)); err != nil {
		return toolError(ctx, "write", img.binary, err)
	}
	img.logger.Info("image written",
		logging.String("path", imagePath),
		logging.Int("entries", len(img.entries)),
		logging.Duration("elapsed", time.Since(start)))
	return nil
}

// SizeArgs returns the mkisofs arguments used by EstimateSize.
func (img *Image) SizeArgs() []string {
	return img.sizeArgs(img.Entries())
}

// WriteArgs returns the mkisofs arguments used by Write.
func (img *Image) WriteArgs(imagePath string) []string {
	args := img.generalArgs()
	args = append(args, "-graft-points")
	if img.RockRidge {
		args = append(args, "-r")
	}
	args = append(args, "-o", imagePath)
	args = append(args, img.multisessionArgs()...)
	return append(args, entryArgs(img.Entries())...)
}

func (img *Image) sizeArgs(entries []Entry) []string {
	args := img.generalArgs()
	args = append(args, "-print-size", "-graft-points")
	if img.RockRidge {
		args = append(args, "-r")
	}
	args = append(args, img.multisessionArgs()...)
	return append(args, entryArgs(entries)...)
}

func (img *Image) generalArgs() []string {
	var args []string
	for _, opt := range []struct{ flag, value string }{
		{"-A", img.ApplicationID},
		{"-biblio", img.BiblioFile},
		{"-publisher", img.PublisherID},
		{"-p", img.PreparerID},
		{"-V", img.VolumeID},
	} {
		if opt.value != "" {
			args = append(args, opt.flag, opt.value)
		}
	}
	return args
}

func (img *Image) multisessionArgs() []string {
	if img.Device == "" || img.Boundaries == nil {
		return nil
	}
	return []string{
		"-C", fmt.Sprintf("%d,%d", img.Boundaries.SessionStart, img.Boundaries.NextSessionStart),
		"-M", img.Device,
	}
}

func entryArgs(entries []Entry) []string {
	args := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Graft == "" {
			args = append(args, e.Path)
			continue
		}
		args = append(args, e.Graft+"/="+e.Path)
	}
	return args
}

func toEntries(m map[string]string) []Entry {
	out := make([]Entry, 0, len(m))
	for path, graft := range m {
		out = append(out, Entry{Path: path, Graft: graft})
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Path, b.Path) })
	return out
}

func cleanGraft(graft string) string {
	return strings.Trim(strings.TrimSpace(graft), "/")
}

func joinGraft(parts ...string) string {
	return cleanGraft(filepath.ToSlash(filepath.Join(parts...)))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func toolError(ctx context.Context, operation, binary string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrExternalTool, "image", operation, binary+" timed out", errors.Join(services.ErrTimeout, err))
	}
	message := binary + " failed"
	if stderr := strings.TrimSpace(string(extractStderr(err))); stderr != "" {
		message = fmt.Sprintf("%s failed (%s)", binary, lastLine(stderr))
	}
	return services.Wrap(services.ErrExternalTool, "image", operation, message, err)
}

func extractStderr(err error) []byte {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Stderr
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"discback/internal/config"
	"discback/internal/deps"
	"discback/internal/media"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckDirectoryReadable verifies that the directory exists and can be walked.
func CheckDirectoryReadable(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckFreeSpace verifies that the filesystem holding path has room for
// need bytes.
func CheckFreeSpace(name, path string, need int64) Result {
	free, err := media.FreeSpace(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if free < need {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s free, %s needed)",
			path, humanize.IBytes(uint64(free)), humanize.IBytes(uint64(need)))} //nolint:gosec
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s free)", path, humanize.IBytes(uint64(free)))} //nolint:gosec
}

// CheckSystemDeps evaluates the external binaries needed for the given
// config. Both the builder and the CLI check command use this to avoid
// duplicating the requirements list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:         "mkisofs",
			Command:      cfg.Image.MkisofsBinary,
			Alternatives: []string{"genisoimage", "xorrisofs"},
			VersionArgs:  []string{"-version"},
			Description:  "Required to size and write ISO images",
		},
		{
			Name:         "cdrecord",
			Command:      cfg.Store.CdrecordBinary,
			Alternatives: []string{"wodim"},
			VersionArgs:  []string{"-version"},
			Description:  "Reads multisession boundaries from the device",
			Optional:     !cfg.Store.CheckBoundaries,
		},
	}
	return deps.CheckBinaries(ctx, requirements)
}

// imageBudget returns the largest image the configured media can take.
func imageBudget(cfg *config.Config) (int64, error) {
	def, err := media.Lookup(cfg.Store.MediaType)
	if err != nil {
		return 0, err
	}
	return def.Capacity(nil).Limit(cfg.Store.CapacityPercent), nil
}

// Package units converts between byte, kilobyte, megabyte, gigabyte, and
// ISO sector sizes.
package units

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"discback/internal/services"
)

// Unit is a size unit. Kilo, mega, and giga are binary multiples.
type Unit int

const (
	Bytes Unit = iota
	KBytes
	MBytes
	GBytes
	Sectors
)

// SectorSize is the size of one ISO 9660 sector in bytes.
const SectorSize = 2048

var factors = map[Unit]float64{
	Bytes:   1,
	KBytes:  1024,
	MBytes:  1024 * 1024,
	GBytes:  1024 * 1024 * 1024,
	Sectors: SectorSize,
}

func (u Unit) String() string {
	switch u {
	case Bytes:
		return "bytes"
	case KBytes:
		return "KB"
	case MBytes:
		return "MB"
	case GBytes:
		return "GB"
	case Sectors:
		return "sectors"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// ConvertSize converts size from one unit to another.
func ConvertSize(size float64, from, to Unit) (float64, error) {
	fromFactor, ok := factors[from]
	if !ok {
		return 0, services.Wrap(services.ErrInvalidArgument, "units", "convert", fmt.Sprintf("unknown unit %d", int(from)), nil)
	}
	toFactor, ok := factors[to]
	if !ok {
		return 0, services.Wrap(services.ErrInvalidArgument, "units", "convert", fmt.Sprintf("unknown unit %d", int(to)), nil)
	}
	return size * fromFactor / toFactor, nil
}

// SectorsToBytes returns the byte size of n sectors.
func SectorsToBytes(n int64) int64 {
	return n * SectorSize
}

// BytesToSectors returns the number of whole sectors needed for n bytes.
func BytesToSectors(n int64) int64 {
	return int64(math.Ceil(float64(n) / SectorSize))
}

// Display renders a byte count for people, e.g. "650 MiB".
func Display(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

// ParseSize reads a byte count such as "4700000000", "650MiB", or "4.7 GB".
func ParseSize(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, services.Wrap(services.ErrInvalidArgument, "units", "parse size", "empty size", nil)
	}
	n, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return 0, services.Wrap(services.ErrInvalidArgument, "units", "parse size", fmt.Sprintf("invalid size %q", value), err)
	}
	if n > math.MaxInt64 {
		return 0, services.Wrap(services.ErrInvalidArgument, "units", "parse size", fmt.Sprintf("size %q out of range", value), nil)
	}
	return int64(n), nil
}

// Package media describes writable optical media and works out how much
// of a disc is left for the next image.
package media

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sys/unix"

	"discback/internal/image"
	"discback/internal/logging"
	"discback/internal/services"
	"discback/internal/units"
)

// Type names a kind of media as written in configuration.
type Type string

const (
	CDR74     Type = "cdr-74"
	CDRW74    Type = "cdrw-74"
	CDR80     Type = "cdr-80"
	CDRW80    Type = "cdrw-80"
	DVDPlusR  Type = "dvd+r"
	DVDPlusRW Type = "dvd+rw"
)

// Types lists every supported media type.
var Types = []Type{CDR74, CDRW74, CDR80, CDRW80, DVDPlusR, DVDPlusRW}

// Definition holds the fixed properties of a media type. Sizes are in ISO
// sectors.
type Definition struct {
	Type          Type
	Rewritable    bool
	Sectors       int64
	InitialLeadIn int64
	LeadIn        int64
}

// Lead-in figures come from the cdrecord documentation.
const (
	cdInitialLeadIn = 11400
	cdLeadIn        = 6900
)

// Lookup returns the definition for a media type name.
func Lookup(name string) (Definition, error) {
	t := Type(strings.ToLower(strings.TrimSpace(name)))
	switch t {
	case CDR74, CDRW74:
		return cdDefinition(t, 650), nil
	case CDR80, CDRW80:
		return cdDefinition(t, 700), nil
	case DVDPlusR, DVDPlusRW:
		// 4.4 binary gigabytes, sold as 4.7 GB.
		sectors, _ := units.ConvertSize(4.4, units.GBytes, units.Sectors)
		return Definition{Type: t, Rewritable: t == DVDPlusRW, Sectors: int64(sectors)}, nil
	default:
		return Definition{}, services.Wrap(services.ErrInvalidArgument, "media", "lookup", fmt.Sprintf("unknown media type %q", name), nil)
	}
}

func cdDefinition(t Type, megabytes float64) Definition {
	sectors, _ := units.ConvertSize(megabytes, units.MBytes, units.Sectors)
	return Definition{
		Type:          t,
		Rewritable:    slices.Contains([]Type{CDRW74, CDRW80}, t),
		Sectors:       int64(sectors),
		InitialLeadIn: cdInitialLeadIn,
		LeadIn:        cdLeadIn,
	}
}

// Capacity is the space on a disc in bytes, along with the boundaries an
// image must be built against to append a session.
type Capacity struct {
	BytesUsed      int64
	BytesAvailable int64
	Boundaries     *image.Boundaries
}

// Capacity works out the space left for an image. Without boundaries, or
// when the next session would start at sector zero, the whole disc is
// rewritten; otherwise a new session is appended after the existing data.
func (d Definition) Capacity(b *image.Boundaries) Capacity {
	if b == nil || b.NextSessionStart == 0 {
		available := max(d.Sectors-d.InitialLeadIn, 0)
		return Capacity{BytesAvailable: units.SectorsToBytes(available)}
	}
	available := max(d.Sectors-b.NextSessionStart-d.LeadIn, 0)
	return Capacity{
		BytesUsed:      units.SectorsToBytes(b.NextSessionStart),
		BytesAvailable: units.SectorsToBytes(available),
		Boundaries:     b,
	}
}

// Limit applies a capacity percentage to the available bytes.
func (c Capacity) Limit(percent int) int64 {
	if percent <= 0 || percent >= 100 {
		return c.BytesAvailable
	}
	return c.BytesAvailable * int64(percent) / 100
}

// LogValue renders the capacity for structured logs.
func (c Capacity) LogValue() slog.Value {
	attrs := []slog.Attr{
		logging.Int64("bytes_used", c.BytesUsed),
		logging.Int64("bytes_available", c.BytesAvailable),
	}
	if c.Boundaries != nil {
		attrs = append(attrs, logging.String("boundaries",
			fmt.Sprintf("%d,%d", c.Boundaries.SessionStart, c.Boundaries.NextSessionStart)))
	}
	return slog.GroupValue(attrs...)
}

// FreeSpace returns the bytes available to unprivileged users on the
// filesystem holding path.
func FreeSpace(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil //nolint:gosec
}

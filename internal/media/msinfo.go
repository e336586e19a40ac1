package media

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"discback/internal/image"
	"discback/internal/logging"
	"discback/internal/services"
)

// DefaultCdrecord is the tool queried for multisession boundaries.
const DefaultCdrecord = "cdrecord"

var boundaryPattern = regexp.MustCompile(`^\s*(\d+)\s*,\s*(\d+)\s*$`)

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.Output()
}

// Prober reads multisession boundaries with cdrecord -msinfo. It never
// writes to the device.
type Prober struct {
	binary string
	device string
	exec   image.Executor
	logger *slog.Logger
}

// NewProber constructs a Prober for device.
func NewProber(binary, device string, logger *slog.Logger) *Prober {
	return NewProberWithExecutor(binary, device, commandExecutor{}, logger)
}

// NewProberWithExecutor allows injecting a custom executor for testing.
func NewProberWithExecutor(binary, device string, exec image.Executor, logger *slog.Logger) *Prober {
	if exec == nil {
		exec = commandExecutor{}
	}
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultCdrecord
	}
	return &Prober{
		binary: binary,
		device: strings.TrimSpace(device),
		exec:   exec,
		logger: logging.NewComponentLogger(logger, "media"),
	}
}

// Args returns the cdrecord arguments used by Boundaries.
func (p *Prober) Args() []string {
	return []string{"-msinfo", "dev=" + p.device}
}

// Boundaries returns the session boundaries of the disc in the device, or
// nil when the disc is blank or unreadable and must be written whole.
func (p *Prober) Boundaries(ctx context.Context) (*image.Boundaries, error) {
	if p.device == "" {
		return nil, services.Wrap(services.ErrConfiguration, "media", "msinfo", "device not configured", nil)
	}
	output, err := p.exec.Run(ctx, p.binary, p.Args())
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "media", "msinfo", p.binary+" failed", err)
	}
	b, err := ParseBoundaries(output)
	if err != nil {
		return nil, err
	}
	if b == nil {
		p.logger.Warn("unable to read disc; assuming full capacity",
			logging.String("device", p.device),
			logging.String(logging.FieldEventType, "msinfo_empty"),
			logging.String(logging.FieldImpact, "image will be written as a new disc"))
		return nil, nil
	}
	p.logger.Debug("disc boundaries",
		logging.String("device", p.device),
		logging.Int64("session_start", b.SessionStart),
		logging.Int64("next_session_start", b.NextSessionStart))
	return b, nil
}

// ParseBoundaries reads the "start,next" pair printed by cdrecord -msinfo.
// Only the first line is considered. Empty output means the disc could not
// be read and yields nil.
func ParseBoundaries(output []byte) (*image.Boundaries, error) {
	text := strings.TrimSpace(string(output))
	if text == "" {
		return nil, nil
	}
	first, _, _ := strings.Cut(text, "\n")
	m := boundaryPattern.FindStringSubmatch(first)
	if m == nil {
		return nil, services.Wrap(services.ErrExternalTool, "media", "msinfo", fmt.Sprintf("unable to parse boundaries %q", first), nil)
	}
	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "media", "msinfo", "session start out of range", err)
	}
	next, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "media", "msinfo", "next session start out of range", err)
	}
	return &image.Boundaries{SessionStart: start, NextSessionStart: next}, nil
}

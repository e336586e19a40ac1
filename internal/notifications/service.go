package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"discback/internal/config"
)

const userAgent = "discback/0.1.0"

// BackupSummary is the part of a finished backup worth telling someone about.
type BackupSummary struct {
	RunID     string
	Mode      string
	ImagePath string
	Entries   int
	Bytes     int64
	Dropped   int
	Duration  time.Duration
}

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyBackupCompleted(ctx context.Context, summary BackupSummary) error
	NotifyBackupFailed(ctx context.Context, err error, stage string) error
	NotifyPurgeCompleted(ctx context.Context, files, dirs int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notify.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notify.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.Notify.OnSuccess,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
}

func (n *ntfyService) NotifyBackupCompleted(ctx context.Context, summary BackupSummary) error {
	if !n.onSuccess {
		return nil
	}
	var message strings.Builder
	if summary.Entries == 0 {
		message.WriteString("Nothing changed since the last backup")
	} else {
		fmt.Fprintf(&message, "Backed up %d files (%s)", summary.Entries, humanize.IBytes(uint64(max(summary.Bytes, 0))))
		if summary.Dropped > 0 {
			fmt.Fprintf(&message, ", %d left for the next disc", summary.Dropped)
		}
		if summary.ImagePath != "" {
			fmt.Fprintf(&message, "\nImage: %s", summary.ImagePath)
		}
	}
	fmt.Fprintf(&message, "\nTook %s", roundDuration(summary.Duration))

	data := payload{
		title:   "discback - Backup Complete",
		message: message.String(),
		tags:    []string{"discback", "backup", summary.Mode},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBackupFailed(ctx context.Context, err error, stage string) error {
	var builder strings.Builder
	builder.WriteString("Backup failed")
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString(" during ")
		builder.WriteString(stage)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "discback - Backup Failed",
		message:  builder.String(),
		tags:     []string{"discback", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPurgeCompleted(ctx context.Context, files, dirs int) error {
	if !n.onSuccess {
		return nil
	}
	data := payload{
		title:   "discback - Purge Complete",
		message: fmt.Sprintf("Removed %d files and %d directories", files, dirs),
		tags:    []string{"discback", "purge"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "discback - Test",
		message:  "Notification system test",
		tags:     []string{"discback", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if tags := nonEmpty(data.tags); len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func roundDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) NotifyBackupCompleted(context.Context, BackupSummary) error { return nil }
func (noopService) NotifyBackupFailed(context.Context, error, string) error    { return nil }
func (noopService) NotifyPurgeCompleted(context.Context, int, int) error       { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }

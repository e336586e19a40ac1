package workflow_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"discback/internal/config"
	"discback/internal/notifications"
	"discback/internal/preflight"
	"discback/internal/testsupport"
)

// fakeMkisofs sizes an image as the sum of its regular files plus a fixed
// overhead, and writes a small placeholder for -o.
type fakeMkisofs struct {
	mu       sync.Mutex
	overhead int64
	writeErr error
	sizeErr  error
	calls    [][]string
}

func (f *fakeMkisofs) Run(_ context.Context, _ string, args []string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, slices.Clone(args))

	if i := slices.Index(args, "-o"); i >= 0 {
		if f.writeErr != nil {
			return nil, f.writeErr
		}
		return nil, os.WriteFile(args[i+1], []byte("ISO"), 0o644)
	}
	if f.sizeErr != nil {
		return nil, f.sizeErr
	}
	total := f.overhead
	for _, arg := range args {
		source := arg
		if idx := strings.LastIndex(arg, "="); idx >= 0 {
			source = arg[idx+1:]
		}
		if !filepath.IsAbs(source) {
			continue
		}
		if info, err := os.Lstat(source); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	sectors := (total + 2047) / 2048
	return []byte(fmt.Sprintf("%d\n", sectors)), nil
}

func (f *fakeMkisofs) sizeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, args := range f.calls {
		if slices.Contains(args, "-print-size") {
			count++
		}
	}
	return count
}

func (f *fakeMkisofs) lastCall() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type stubCdrecord struct {
	output string
	args   []string
}

func (s *stubCdrecord) Run(_ context.Context, _ string, args []string) ([]byte, error) {
	s.args = slices.Clone(args)
	return []byte(s.output), nil
}

func passingPreflight(context.Context, *config.Config) []preflight.Result {
	return []preflight.Result{{Name: "stub", Passed: true}}
}

type recordingPutter struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingPutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, *params.Key)
	return &s3.PutObjectOutput{}, nil
}

// newBackupConfig builds a config whose single collect directory is named
// "data" and holds a.txt and sub/b.txt.
func newBackupConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithCollectDir("data", ""), testsupport.WithMetricsTextfile())
	data := cfg.Collect.Dirs[0].Path
	testsupport.WriteFile(t, filepath.Join(data, "a.txt"), 100)
	testsupport.WriteFile(t, filepath.Join(data, "sub", "b.txt"), 200)
	return cfg, data
}

// recordingNotifier keeps every announcement instead of sending it.
type recordingNotifier struct {
	mu        sync.Mutex
	completed []notifications.BackupSummary
	failures  []string
	purges    [][2]int
}

func (r *recordingNotifier) NotifyBackupCompleted(_ context.Context, summary notifications.BackupSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, summary)
	return nil
}

func (r *recordingNotifier) NotifyBackupFailed(_ context.Context, _ error, stage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, stage)
	return nil
}

func (r *recordingNotifier) NotifyPurgeCompleted(_ context.Context, files, dirs int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purges = append(r.purges, [2]int{files, dirs})
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

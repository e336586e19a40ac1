package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"discback/internal/catalog"
	"discback/internal/config"
	"discback/internal/digest"
	"discback/internal/metrics"
	"discback/internal/preflight"
	"discback/internal/prune"
	"discback/internal/services"
	"discback/internal/testsupport"
	"discback/internal/upload"
	"discback/internal/workflow"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestBuilder(cfg *config.Config, mk *fakeMkisofs, opts ...workflow.Option) *workflow.Builder {
	base := []workflow.Option{
		workflow.WithExecutors(mk, &stubCdrecord{}),
		workflow.WithPreflight(passingPreflight),
		workflow.WithClock(func() time.Time { return fixedNow }),
	}
	return workflow.NewBuilder(cfg, nil, append(base, opts...)...)
}

func TestBuilderWritesImageAndRecordsRun(t *testing.T) {
	cfg, data := newBackupConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	rec := metrics.New()
	mk := &fakeMkisofs{overhead: 40960}

	report, err := newTestBuilder(cfg, mk, workflow.WithCatalog(store), workflow.WithMetrics(rec)).
		Run(context.Background(), workflow.BuildOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantImage := filepath.Join(cfg.Paths.WorkingDir, "discback-20240102-030405.iso")
	if report.ImagePath != wantImage {
		t.Fatalf("image path = %q, want %q", report.ImagePath, wantImage)
	}
	if _, err := os.Stat(wantImage); err != nil {
		t.Fatalf("expected image to be written: %v", err)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", report.Entries)
	}
	if report.Entries[0].Graft != "data" || report.Entries[1].Graft != "data/sub" {
		t.Fatalf("unexpected grafts: %+v", report.Entries)
	}
	if report.EstimatedBytes != 43008 || report.FileBytes != 300 {
		t.Fatalf("unexpected sizes: estimated=%d files=%d", report.EstimatedBytes, report.FileBytes)
	}
	if report.Prune != nil {
		t.Fatal("small image should not be pruned")
	}
	if !slices.Contains(mk.lastCall(), wantImage) {
		t.Fatalf("expected write call to target the image, got %v", mk.lastCall())
	}

	saved := digest.NewStore(cfg.DigestPath(data), nil).Load()
	if len(saved) != 2 {
		t.Fatalf("expected 2 digests saved, got %v", saved.Keys())
	}

	run, err := store.GetRun(context.Background(), report.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v %#v", err, run)
	}
	if run.Status != "success" || run.Selected != 2 || run.ImagePath != wantImage || run.Candidates != report.Candidates {
		t.Fatalf("unexpected run record: %#v", run)
	}
	files, err := store.Files(context.Background(), report.RunID)
	if err != nil || len(files) != 2 || files[1].Size != 200 {
		t.Fatalf("unexpected recorded files: %#v err %v", files, err)
	}

	prom, err := os.ReadFile(cfg.Metrics.TextfilePath)
	if err != nil {
		t.Fatalf("read metrics textfile: %v", err)
	}
	if !strings.Contains(string(prom), "discback_files_selected 2") {
		t.Fatalf("metrics textfile missing selection gauge:\n%s", prom)
	}
}

func TestIncrementalRunSkipsUnchangedFiles(t *testing.T) {
	cfg, data := newBackupConfig(t)
	mk := &fakeMkisofs{overhead: 40960}
	builder := newTestBuilder(cfg, mk)
	ctx := context.Background()

	if _, err := builder.Run(ctx, workflow.BuildOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	callsAfterFirst := len(mk.calls)

	second, err := builder.Run(ctx, workflow.BuildOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.Entries) != 0 || second.Unchanged != 2 || second.ImagePath != "" {
		t.Fatalf("expected nothing to back up, got %+v", second)
	}
	if len(mk.calls) != callsAfterFirst {
		t.Fatal("mkisofs should not run when nothing changed")
	}

	testsupport.WriteFile(t, filepath.Join(data, "a.txt"), 150)
	third, err := builder.Run(ctx, workflow.BuildOptions{})
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if len(third.Entries) != 1 || third.Entries[0].Path != filepath.Join(data, "a.txt") {
		t.Fatalf("expected only the changed file, got %+v", third.Entries)
	}

	full, err := builder.Run(ctx, workflow.BuildOptions{Full: true})
	if err != nil {
		t.Fatalf("full run: %v", err)
	}
	if len(full.Entries) != 2 || full.Mode != config.CollectModeFull {
		t.Fatalf("full mode should ignore digests, got %+v", full)
	}
}

func pruneFixture(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithCollectDir("big", "srv"))
	data := cfg.Collect.Dirs[0].Path
	testsupport.WriteFile(t, filepath.Join(data, "big1.bin"), 3_000_000)
	testsupport.WriteFile(t, filepath.Join(data, "big2.bin"), 3_000_001)
	testsupport.WriteFile(t, filepath.Join(data, "small.txt"), 1_000_000)
	// One percent of a 74 minute disc is 6582272 bytes.
	cfg.Store.CapacityPercent = 1
	return cfg, data
}

func TestBuilderPrunesOversizedImage(t *testing.T) {
	cfg, data := pruneFixture(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	mk := &fakeMkisofs{overhead: 40960}
	builder := newTestBuilder(cfg, mk, workflow.WithCatalog(store))
	ctx := context.Background()

	report, err := builder.Run(ctx, workflow.BuildOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Prune == nil || report.Prune.State != prune.Fit || report.Prune.Dropped != 1 {
		t.Fatalf("expected a fitting prune dropping one file, got %+v", report.Prune)
	}
	if report.CapacityBytes != 6582272 || report.EstimatedBytes > report.CapacityBytes {
		t.Fatalf("unexpected capacity/estimate: %d/%d", report.CapacityBytes, report.EstimatedBytes)
	}
	var paths []string
	for _, e := range report.Entries {
		paths = append(paths, filepath.Base(e.Path))
		if e.Graft != "srv/big" {
			t.Fatalf("unexpected graft %q", e.Graft)
		}
	}
	if !slices.Equal(paths, []string{"big1.bin", "small.txt"}) {
		t.Fatalf("unexpected kept files: %v", paths)
	}

	run, _ := store.GetRun(ctx, report.RunID)
	if !run.Pruned || run.Dropped != 1 {
		t.Fatalf("prune not recorded: %#v", run)
	}

	// The dropped file was never written, so the next run picks it up.
	next, err := builder.Run(ctx, workflow.BuildOptions{})
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if len(next.Entries) != 1 || next.Entries[0].Path != filepath.Join(data, "big2.bin") {
		t.Fatalf("expected the dropped file in the next run, got %+v", next.Entries)
	}
}

func TestBuilderFailsWhenPruningDisabled(t *testing.T) {
	cfg, data := pruneFixture(t)
	cfg.Store.Prune = false
	store := testsupport.MustOpenCatalog(t, cfg)

	report, err := newTestBuilder(cfg, &fakeMkisofs{overhead: 40960}, workflow.WithCatalog(store)).
		Run(context.Background(), workflow.BuildOptions{})
	if !errors.Is(err, services.ErrUnfittable) {
		t.Fatalf("expected unfittable error, got %v", err)
	}
	if _, statErr := os.Stat(cfg.DigestPath(data)); !os.IsNotExist(statErr) {
		t.Fatal("digest map must not be saved when no image is written")
	}
	run, _ := store.GetRun(context.Background(), report.RunID)
	if run.Status != "unfittable" {
		t.Fatalf("expected unfittable status, got %q", run.Status)
	}
}

func TestBuilderKeepsDigestsWhenWriteFails(t *testing.T) {
	cfg, data := newBackupConfig(t)
	mk := &fakeMkisofs{writeErr: errors.New("disk full")}

	_, err := newTestBuilder(cfg, mk).Run(context.Background(), workflow.BuildOptions{})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, statErr := os.Stat(cfg.DigestPath(data)); !os.IsNotExist(statErr) {
		t.Fatal("digest map must not be saved after a failed write")
	}
}

func TestDryRunAndEstimateWriteNothing(t *testing.T) {
	cfg, data := newBackupConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	mk := &fakeMkisofs{overhead: 40960}
	builder := newTestBuilder(cfg, mk, workflow.WithCatalog(store))
	ctx := context.Background()

	report, err := builder.Run(ctx, workflow.BuildOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if report.ImagePath != "" || len(report.Entries) != 2 || !report.Fits() {
		t.Fatalf("unexpected dry-run report: %+v", report)
	}

	estimate, err := builder.Run(ctx, workflow.BuildOptions{EstimateOnly: true})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !estimate.DryRun || estimate.EstimatedBytes != 43008 {
		t.Fatalf("unexpected estimate report: %+v", estimate)
	}
	if mk.sizeCalls() != 2 {
		t.Fatalf("expected one size call per run, got %d", mk.sizeCalls())
	}

	if _, statErr := os.Stat(cfg.DigestPath(data)); !os.IsNotExist(statErr) {
		t.Fatal("dry runs must not save digests")
	}
	runs, err := store.Recent(ctx, 10)
	if err != nil || len(runs) != 0 {
		t.Fatalf("dry runs must not be recorded: %#v err %v", runs, err)
	}
}

func TestBuilderAppendsSessionWithBoundaries(t *testing.T) {
	cfg, _ := newBackupConfig(t)
	cfg.Store.CheckBoundaries = true
	cfg.Store.Device = "/dev/sr0"
	mk := &fakeMkisofs{overhead: 40960}
	cd := &stubCdrecord{output: "0,12000\n"}

	builder := workflow.NewBuilder(cfg, nil,
		workflow.WithExecutors(mk, cd),
		workflow.WithPreflight(passingPreflight),
		workflow.WithClock(func() time.Time { return fixedNow }))
	report, err := builder.Run(context.Background(), workflow.BuildOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !slices.Equal(cd.args, []string{"-msinfo", "dev=/dev/sr0"}) {
		t.Fatalf("unexpected cdrecord args: %v", cd.args)
	}
	if report.Capacity.BytesUsed != 12000*2048 || report.Capacity.Boundaries == nil {
		t.Fatalf("unexpected capacity: %+v", report.Capacity)
	}
	args := mk.lastCall()
	i := slices.Index(args, "-C")
	if i < 0 || args[i+1] != "0,12000" || args[i+2] != "-M" || args[i+3] != "/dev/sr0" {
		t.Fatalf("expected multisession args, got %v", args)
	}
}

func TestBuilderUploadsImageAndDigest(t *testing.T) {
	cfg, _ := newBackupConfig(t)
	cfg.Upload.Enabled = true
	cfg.Upload.Bucket = "backups"
	cfg.Upload.IncludeDigest = true
	store := testsupport.MustOpenCatalog(t, cfg)
	putter := &recordingPutter{}
	uploader := upload.New(putter, "backups", "nightly", nil)

	report, err := newTestBuilder(cfg, &fakeMkisofs{}, workflow.WithCatalog(store), workflow.WithUploader(uploader)).
		Run(context.Background(), workflow.BuildOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(putter.keys) != 2 {
		t.Fatalf("expected image and digest uploads, got %v", putter.keys)
	}
	if putter.keys[0] != "nightly/images/discback-20240102-030405.iso" || !strings.HasPrefix(putter.keys[1], "nightly/digests/") {
		t.Fatalf("unexpected keys: %v", putter.keys)
	}
	run, _ := store.GetRun(context.Background(), report.RunID)
	if run.UploadKey != putter.keys[0] {
		t.Fatalf("upload key not recorded: %q", run.UploadKey)
	}
}

func TestBuilderStopsOnPreflightFailure(t *testing.T) {
	cfg, _ := newBackupConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	mk := &fakeMkisofs{}
	failing := func(context.Context, *config.Config) []preflight.Result {
		return []preflight.Result{{Name: "Binary mkisofs", Detail: "binary \"mkisofs\" not found"}}
	}

	report, err := workflow.NewBuilder(cfg, nil,
		workflow.WithExecutors(mk, nil),
		workflow.WithPreflight(failing),
		workflow.WithCatalog(store)).Run(context.Background(), workflow.BuildOptions{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if len(mk.calls) != 0 {
		t.Fatal("mkisofs must not run after a failed preflight")
	}
	run, _ := store.GetRun(context.Background(), report.RunID)
	if run.Status != "rejected" {
		t.Fatalf("expected rejected status, got %q", run.Status)
	}
}

func TestBuilderRefusesConcurrentRun(t *testing.T) {
	cfg, _ := newBackupConfig(t)
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.LockPath), 0o755); err != nil {
		t.Fatal(err)
	}
	held := flock.New(cfg.Paths.LockPath)
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("acquire test lock: %v %v", ok, err)
	}
	defer held.Unlock()

	_, err = newTestBuilder(cfg, &fakeMkisofs{}).Run(context.Background(), workflow.BuildOptions{})
	if !errors.Is(err, workflow.ErrLocked) {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestBuilderMarksAbandonedRuns(t *testing.T) {
	cfg, _ := newBackupConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	stale := testsupport.BeginRun(t, store, config.CollectModeIncremental)

	if _, err := newTestBuilder(cfg, &fakeMkisofs{}, workflow.WithCatalog(store)).
		Run(context.Background(), workflow.BuildOptions{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	run, _ := store.GetRun(context.Background(), stale.ID)
	if run.Status != catalog.StatusAbandoned {
		t.Fatalf("expected stale run to be abandoned, got %q", run.Status)
	}
}

func TestBuilderAnnouncesOutcomes(t *testing.T) {
	cfg, _ := newBackupConfig(t)
	notifier := &recordingNotifier{}
	ctx := context.Background()

	report, err := newTestBuilder(cfg, &fakeMkisofs{overhead: 40960}, workflow.WithNotifier(notifier)).
		Run(ctx, workflow.BuildOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(notifier.completed) != 1 {
		t.Fatalf("expected one completion, got %+v", notifier.completed)
	}
	got := notifier.completed[0]
	if got.Entries != 2 || got.Bytes != 300 || got.ImagePath != report.ImagePath {
		t.Fatalf("unexpected summary: %+v", got)
	}

	failing := newTestBuilder(cfg, &fakeMkisofs{writeErr: errors.New("disk full")}, workflow.WithNotifier(notifier))
	if _, err := failing.Run(ctx, workflow.BuildOptions{Full: true}); err == nil {
		t.Fatal("expected write failure")
	}
	if !slices.Equal(notifier.failures, []string{"write"}) {
		t.Fatalf("expected a failure at the write stage, got %v", notifier.failures)
	}

	if _, err := failing.Run(ctx, workflow.BuildOptions{DryRun: true, Full: true}); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(notifier.completed) != 1 || len(notifier.failures) != 1 {
		t.Fatal("dry runs must not be announced")
	}
}

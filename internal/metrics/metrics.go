package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "discback"

// Recorder owns a private registry holding the run metrics.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.GaugeVec
	lastRun          *prometheus.GaugeVec
	lastSuccess      *prometheus.GaugeVec
	imageBytes       prometheus.Gauge
	capacityBytes    prometheus.Gauge
	filesCandidate   prometheus.Gauge
	filesUnchanged   prometheus.Gauge
	filesSelected    prometheus.Gauge
	filesDropped     prometheus.Gauge
	pruneAttempts    prometheus.Gauge
	purgedItems      *prometheus.GaugeVec
	uploadBytesTotal prometheus.Counter
	uploadDuration   *prometheus.GaugeVec
}

// BackupStats summarises one backup run.
type BackupStats struct {
	Status         string
	Duration       time.Duration
	EstimatedBytes int64
	CapacityBytes  int64
	Candidates     int
	Unchanged      int
	Selected       int
	Dropped        int
	PruneAttempts  int
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Runs by kind and final status",
			},
			[]string{"kind", "status"},
		),
		runDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of the most recent run",
			},
			[]string{"kind"},
		),
		lastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the most recent run finished",
			},
			[]string{"kind"},
		),
		lastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time the most recent successful run finished",
			},
			[]string{"kind"},
		),
		imageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_estimated_bytes",
			Help:      "Estimated size of the last image including filesystem overhead",
		}),
		capacityBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "media_capacity_bytes",
			Help:      "Capacity available to the last image",
		}),
		filesCandidate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_candidate",
			Help:      "Files found under the collect directories",
		}),
		filesUnchanged: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_unchanged",
			Help:      "Files skipped because their digest matched the previous run",
		}),
		filesSelected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_selected",
			Help:      "Files placed in the last image",
		}),
		filesDropped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_dropped",
			Help:      "Files removed from the last image by pruning",
		}),
		pruneAttempts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prune_attempts",
			Help:      "Selection passes the last prune needed",
		}),
		purgedItems: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "purged_items",
				Help:      "Items removed by the last purge",
			},
			[]string{"type"},
		),
		uploadBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes copied to offsite storage",
		}),
		uploadDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Duration of the most recent upload by object kind",
			},
			[]string{"object"},
		),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordBackup stores the outcome of a backup run.
func (r *Recorder) RecordBackup(stats BackupStats, finished time.Time) {
	r.recordRun("backup", stats.Status, stats.Duration, finished)
	r.imageBytes.Set(float64(stats.EstimatedBytes))
	r.capacityBytes.Set(float64(stats.CapacityBytes))
	r.filesCandidate.Set(float64(stats.Candidates))
	r.filesUnchanged.Set(float64(stats.Unchanged))
	r.filesSelected.Set(float64(stats.Selected))
	r.filesDropped.Set(float64(stats.Dropped))
	r.pruneAttempts.Set(float64(stats.PruneAttempts))
}

// RecordPurge stores the outcome of a purge run.
func (r *Recorder) RecordPurge(status string, duration time.Duration, files, dirs int, finished time.Time) {
	r.recordRun("purge", status, duration, finished)
	r.purgedItems.WithLabelValues("file").Set(float64(files))
	r.purgedItems.WithLabelValues("dir").Set(float64(dirs))
}

// RecordUpload stores one successful object upload.
func (r *Recorder) RecordUpload(object string, bytes int64, duration time.Duration) {
	r.uploadBytesTotal.Add(float64(bytes))
	r.uploadDuration.WithLabelValues(object).Set(duration.Seconds())
}

func (r *Recorder) recordRun(kind, status string, duration time.Duration, finished time.Time) {
	r.runsTotal.WithLabelValues(kind, status).Inc()
	r.runDuration.WithLabelValues(kind).Set(duration.Seconds())
	r.lastRun.WithLabelValues(kind).Set(float64(finished.Unix()))
	if status == "success" {
		r.lastSuccess.WithLabelValues(kind).Set(float64(finished.Unix()))
	}
}

// WriteTextfile exports the registry to path. An empty path disables the
// export.
func (r *Recorder) WriteTextfile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

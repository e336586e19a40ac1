package catalog

import "time"

// Kind distinguishes the work a run performed.
type Kind string

const (
	KindBackup Kind = "backup"
	KindPurge  Kind = "purge"
)

// Status values recorded for runs. Finished runs take the outcome of their
// error, see services.Outcome.
const (
	StatusRunning   = "running"
	StatusAbandoned = "abandoned"
)

// Run is one recorded invocation.
type Run struct {
	ID         string
	Kind       Kind
	Mode       string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time

	ImagePath      string
	MediaType      string
	CapacityBytes  int64
	EstimatedBytes int64
	FileBytes      int64
	Candidates     int
	Unchanged      int
	Selected       int
	Pruned         bool
	Dropped        int
	UploadKey      string
	ErrorMessage   string
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FileRecord is one path placed in a run's image.
type FileRecord struct {
	Path  string
	Graft string
	Size  int64
}

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// timeLayout keeps a fixed fraction width so stored timestamps sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = "id, kind, mode, status, started_at, finished_at, image_path, media_type, capacity_bytes, estimated_bytes, file_bytes, candidates, unchanged, selected, pruned, dropped, upload_key, error_message"

var prefixedRunColumns = "r." + strings.ReplaceAll(runColumns, ", ", ", r.")

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		kind        string
		startedRaw  string
		finishedRaw sql.NullString
		imagePath   sql.NullString
		mediaType   sql.NullString
		pruned      int
		uploadKey   sql.NullString
		errorMsg    sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&kind,
		&run.Mode,
		&run.Status,
		&startedRaw,
		&finishedRaw,
		&imagePath,
		&mediaType,
		&run.CapacityBytes,
		&run.EstimatedBytes,
		&run.FileBytes,
		&run.Candidates,
		&run.Unchanged,
		&run.Selected,
		&pruned,
		&run.Dropped,
		&uploadKey,
		&errorMsg,
	); err != nil {
		return nil, err
	}
	run.Kind = Kind(kind)
	run.ImagePath = imagePath.String
	run.MediaType = mediaType.String
	run.Pruned = pruned != 0
	run.UploadKey = uploadKey.String
	run.ErrorMessage = errorMsg.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

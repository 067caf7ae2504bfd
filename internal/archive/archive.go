package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
)

// FileName is the name offered to clients downloading the archive.
const FileName = "attendance_logs.zip"

// WriteAttendanceLogs writes one <day>.csv entry per logged day to w.
// Nothing is written when there are no logs yet; the caller gets ErrNoAttendanceLogs.
func WriteAttendanceLogs(ctx context.Context, w io.Writer, events repository.AttendanceRepositoryInterface) (int, error) {
	days, err := events.Days(ctx)
	if err != nil {
		return 0, domain.ErrStorageFailure.WithError(fmt.Errorf("list days: %w", err))
	}
	if len(days) == 0 {
		return 0, domain.ErrNoAttendanceLogs
	}

	zw := zip.NewWriter(w)
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		dayEvents, err := events.ListDay(ctx, day)
		if err != nil {
			return 0, domain.ErrStorageFailure.WithError(fmt.Errorf("read log %s: %w", day, err))
		}

		modified := time.Now()
		if n := len(dayEvents); n > 0 {
			modified = dayEvents[n-1].Time
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     day + ".csv",
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return 0, fmt.Errorf("create zip entry %s: %w", day, err)
		}
		if err := repository.WriteEventsCSV(entry, dayEvents); err != nil {
			return 0, fmt.Errorf("write zip entry %s: %w", day, err)
		}
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finalize zip: %w", err)
	}
	return len(days), nil
}

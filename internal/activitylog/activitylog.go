// Package activitylog reads and writes the per-session CSV of window samples.
package activitylog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dayflow/dayflow/internal/models"
)

// TimestampLayout is the local-time format of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the first row of every activity log.
var Header = []string{"timestamp", "application", "window_title"}

// FileName returns the log file name for a session started at start.
func FileName(start time.Time) string {
	return "activity_" + start.Format("2006-01-02_15-04-05") + ".csv"
}

// Writer appends activity records to a CSV file. Every Append is flushed so the
// file stays readable while the session is still running.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	csv    *csv.Writer
	path   string
	count  int
	closed bool
}

// Create creates the log at path, with its parent directory, and writes the header.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity log: %w", err)
	}

	w := &Writer{file: f, csv: csv.NewWriter(f), path: path}
	if err := w.csv.Write(Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	return w, nil
}

// Append writes one record.
func (w *Writer) Append(rec models.ActivityRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("activity log is closed")
	}

	row := []string{rec.Timestamp.Local().Format(TimestampLayout), rec.Application, rec.WindowTitle}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}

	w.count++
	return nil
}

// Count returns the number of records appended so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.csv.Flush()
	flushErr := w.csv.Error()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close activity log: %w", err)
	}
	return flushErr
}

// ReadResult holds the parsed records of a log and the number of rows skipped as malformed.
type ReadResult struct {
	Records []models.ActivityRecord
	Skipped int
}

// ReadAll parses the log at path. Rows with a wrong column count or an unparsable
// timestamp are skipped and counted.
func ReadAll(path string) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses activity records from r.
func Read(r io.Reader) (*ReadResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	result := &ReadResult{}
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Skipped++
				continue
			}
			return nil, fmt.Errorf("failed to read activity log: %w", err)
		}

		if first {
			first = false
			if len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), Header[0]) {
				continue
			}
		}

		if len(row) != len(Header) {
			result.Skipped++
			continue
		}

		ts, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(row[0]), time.Local)
		if err != nil {
			result.Skipped++
			continue
		}

		result.Records = append(result.Records, models.ActivityRecord{
			Timestamp:   ts,
			Application: row[1],
			WindowTitle: row[2],
		})
	}

	return result, nil
}

// Latest returns the most recently modified activity log in dir.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "activity_*.csv"))
	if err != nil {
		return "", err
	}

	var latest string
	var latestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest, latestMod = m, info.ModTime()
		}
	}

	if latest == "" {
		return "", fmt.Errorf("no activity logs found in %s", dir)
	}
	return latest, nil
}

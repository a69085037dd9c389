// Package activitylog keeps an append-only CSV record of sync errors and notable events.
package activitylog

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the severity of an entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Entry is one row in the activity log.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Component string
	Action    string
	Details   string
	Ref       string // bank or account the entry is about
}

// Header is the CSV header for activity-log.csv.
const Header = "timestamp,level,component,action,details,ref"

const (
	numFields    = 6
	logDir       = "logs"
	logFile      = "logs/activity-log.csv"
	colTimestamp = 0
	colLevel     = 1
	colComponent = 2
	colAction    = 3
	colDetails   = 4
	colRef       = 5
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colLevel] = string(e.Level)
	row[colComponent] = e.Component
	row[colAction] = e.Action
	row[colDetails] = e.Details
	row[colRef] = e.Ref
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	switch Level(record[colLevel]) {
	case LevelInfo, LevelError:
	default:
		return Entry{}, fmt.Errorf("unknown level %q", record[colLevel])
	}

	return Entry{
		Timestamp: ts,
		Level:     Level(record[colLevel]),
		Component: record[colComponent],
		Action:    record[colAction],
		Details:   record[colDetails],
		Ref:       record[colRef],
	}, nil
}

// Append writes entries to <dir>/logs/activity-log.csv, creating the file and header if needed.
func Append(dir string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Join(dir, logDir), 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(dir, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	return cw.Error()
}

// Read returns all entries from <dir>/logs/activity-log.csv.
// Returns an empty slice if the file does not exist.
func Read(dir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(dir, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading activity log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Recorder logs through slog and appends the same event to the activity log.
// A Recorder with an empty dir only logs.
type Recorder struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder writing under dir.
func NewRecorder(dir string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{dir: dir, logger: logger, now: time.Now}
}

// Info records a notable event.
func (r *Recorder) Info(component, action, ref, details string) {
	r.logger.Info(details, "component", component, "action", action, "ref", ref)
	r.append(Entry{Level: LevelInfo, Component: component, Action: action, Ref: ref, Details: details})
}

// Error records a failure.
func (r *Recorder) Error(component, action, ref string, err error) {
	r.logger.Error(action+" failed", "component", component, "ref", ref, "err", err)
	r.append(Entry{Level: LevelError, Component: component, Action: action, Ref: ref, Details: err.Error()})
}

func (r *Recorder) append(e Entry) {
	if r.dir == "" {
		return
	}
	e.Timestamp = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := Append(r.dir, []Entry{e}); err != nil {
		r.logger.Warn("writing activity log", "err", err)
	}
}

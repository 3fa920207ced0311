// Package auditlog keeps an append-only CSV record of import activity in
// the project directory.
package auditlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one row in the import log.
type Entry struct {
	Timestamp time.Time
	CompanyID string
	Action    string
	SessionID string
	Details   string
}

// Actions recorded by the CLI.
const (
	ActionUpload       = "upload"
	ActionPost         = "post"
	ActionDelete       = "delete_session"
	ActionApplyRules   = "apply_rules"
	ActionInvalidation = "cache_invalidated"
)

// Header is the CSV header for import-log.csv.
const Header = "timestamp,company_id,action,session_id,details"

// File is the log location relative to the project directory.
var File = filepath.Join("logs", "import-log.csv")

const (
	numFields    = 5
	colTimestamp = 0
	colCompany   = 1
	colAction    = 2
	colSession   = 3
	colDetails   = 4
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colCompany] = e.CompanyID
	row[colAction] = e.Action
	row[colSession] = e.SessionID
	row[colDetails] = e.Details
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
	return Entry{
		Timestamp: ts,
		CompanyID: record[colCompany],
		Action:    record[colAction],
		SessionID: record[colSession],
		Details:   record[colDetails],
	}, nil
}

// Log appends to the import log of one project. Appends from concurrent
// goroutines are serialized.
type Log struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New returns the log for the project rooted at dir.
func New(dir string) *Log {
	return &Log{path: filepath.Join(dir, File), now: time.Now}
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Append writes entries, creating the file and header if needed. Entries
// without a timestamp are stamped with the current time.
func (l *Log) Append(entries ...Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	needsHeader := false
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if e.Timestamp.IsZero() {
			e.Timestamp = l.now()
		}
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all entries. A missing file yields no entries.
func (l *Log) Read() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()
	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading import log: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	entries := make([]Entry, 0, len(records)-1)
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Invalidator records report cache invalidations in the import log. Write
// failures are logged and otherwise ignored so they never fail a posting.
type Invalidator struct {
	Log    *Log
	Logger zerolog.Logger
}

// Invalidate appends an invalidation entry to the log.
func (i Invalidator) Invalidate(_ context.Context, companyID, reason string) {
	err := i.Log.Append(Entry{CompanyID: companyID, Action: ActionInvalidation, Details: reason})
	if err != nil {
		i.Logger.Warn().Err(err).Str("company_id", companyID).Msg("recording cache invalidation")
		return
	}
	i.Logger.Info().Str("company_id", companyID).Str("reason", reason).Msg("report cache invalidated")
}

// internal/logsource/file.go
package logsource

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalnine/oncall/internal/filter"
	"github.com/signalnine/oncall/internal/protocol"
)

// maxLineBytes bounds a single exported entry
const maxLineBytes = 1 << 20

// FileSource reads a JSON Lines log export. Only the timestamp lower bound and severity
// floor of the predicate are evaluated; other clauses are ignored.
type FileSource struct {
	path string
	log  zerolog.Logger
}

// NewFileSource creates a source over a JSON Lines file
func NewFileSource(path string, log zerolog.Logger) *FileSource {
	return &FileSource{
		path: path,
		log:  log.With().Str("component", "logsource").Str("path", path).Logger(),
	}
}

// Name identifies the backend
func (s *FileSource) Name() string {
	return "file"
}

// fileRecord accepts both the service's own entry shape and Cloud Logging exports
type fileRecord struct {
	Severity    string            `json:"severity"`
	Timestamp   time.Time         `json:"timestamp"`
	LogName     string            `json:"logName"`
	LogNameAlt  string            `json:"log_name"`
	Resource    protocol.Resource `json:"resource"`
	Labels      map[string]string `json:"labels"`
	InsertID    string            `json:"insertId"`
	Message     string            `json:"message"`
	TextPayload string            `json:"textPayload"`
	JSONPayload json.RawMessage   `json:"jsonPayload"`
}

// Fetch opens the file and returns an iterator over matching entries
func (s *FileSource) Fetch(ctx context.Context, predicate string, limit int) (Iterator, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	f, err := os.Open(s.path)
	if err != nil {
		kind := KindUnavailable
		if errors.Is(err, fs.ErrPermission) {
			kind = KindAuth
		}
		return nil, &Error{Source: "file", Kind: kind, Predicate: predicate, Err: err}
	}

	it := &fileIterator{
		ctx:       ctx,
		f:         f,
		scanner:   bufio.NewScanner(f),
		predicate: predicate,
	}
	it.scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	it.since, it.hasSince = filter.LowerBound(predicate)
	it.floor, it.hasFloor = filter.MinSeverity(predicate)

	s.log.Debug().Str("predicate", predicate).Int("limit", limit).Msg("reading log export")
	return Limit(it, limit), nil
}

type fileIterator struct {
	ctx       context.Context
	f         *os.File
	scanner   *bufio.Scanner
	predicate string
	line      int

	since    time.Time
	hasSince bool
	floor    protocol.Severity
	hasFloor bool
}

func (it *fileIterator) Next() (protocol.LogEntry, error) {
	for it.scanner.Scan() {
		if err := it.ctx.Err(); err != nil {
			return protocol.LogEntry{}, &Error{Source: "file", Kind: KindUnavailable, Predicate: it.predicate, Err: err}
		}
		it.line++

		raw := strings.TrimSpace(it.scanner.Text())
		if raw == "" {
			continue
		}

		var rec fileRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return protocol.LogEntry{}, &Error{
				Source:    "file",
				Kind:      KindUnavailable,
				Predicate: it.predicate,
				Err:       fmt.Errorf("line %d: %w", it.line, err),
			}
		}

		entry := rec.toEntry()
		if it.hasSince && entry.Timestamp.Before(it.since) {
			continue
		}
		if it.hasFloor && entry.Severity < it.floor {
			continue
		}
		return entry, nil
	}
	if err := it.scanner.Err(); err != nil {
		return protocol.LogEntry{}, &Error{Source: "file", Kind: KindUnavailable, Predicate: it.predicate, Err: err}
	}
	return protocol.LogEntry{}, Done
}

func (it *fileIterator) Close() error {
	return it.f.Close()
}

func (r fileRecord) toEntry() protocol.LogEntry {
	sev := exportSeverity(r.Severity)

	msg := r.Message
	if msg == "" {
		msg = r.TextPayload
	}
	if msg == "" && len(r.JSONPayload) > 0 {
		msg = compactJSON(r.JSONPayload)
	}

	logName := r.LogName
	if logName == "" {
		logName = r.LogNameAlt
	}

	return protocol.LogEntry{
		Severity:  sev,
		Timestamp: r.Timestamp.UTC(),
		LogName:   logName,
		Resource:  r.Resource,
		Labels:    r.Labels,
		InsertID:  r.InsertID,
		Message:   msg,
	}
}

// exportSeverity maps Cloud Logging level names; unrecognized levels pass through as UNKNOWN
func exportSeverity(name string) protocol.Severity {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NOTICE":
		return protocol.SeverityInfo
	case "ALERT", "EMERGENCY":
		return protocol.SeverityCritical
	}
	sev, _ := protocol.ParseSeverity(name)
	return sev
}

// compactJSON re-encodes through a generic value so object keys come out sorted
func compactJSON(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(data)
}

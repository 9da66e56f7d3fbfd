// internal/logsource/gcp.go
package logsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/logging"
	"cloud.google.com/go/logging/logadmin"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalnine/oncall/internal/protocol"
)

// entryIterator is the subset of *logadmin.EntryIterator the source relies on
type entryIterator interface {
	Next() (*logging.Entry, error)
}

// GCPSource reads entries from Google Cloud Logging
type GCPSource struct {
	projectID string
	timeout   time.Duration
	client    *logadmin.Client
	list      func(ctx context.Context, predicate string) entryIterator
	log       zerolog.Logger
}

// NewGCPSource opens a Cloud Logging admin client for the project.
// An empty credentialsFile falls back to application default credentials.
func NewGCPSource(ctx context.Context, projectID, credentialsFile string, timeout time.Duration, log zerolog.Logger) (*GCPSource, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := logadmin.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, &Error{Source: "gcp", Kind: KindAuth, Err: fmt.Errorf("create logadmin client: %w", err)}
	}

	s := &GCPSource{
		projectID: projectID,
		timeout:   timeout,
		client:    client,
		log:       log.With().Str("component", "logsource").Str("project", projectID).Logger(),
	}
	s.list = func(ctx context.Context, predicate string) entryIterator {
		return client.Entries(ctx, logadmin.Filter(predicate), logadmin.NewestFirst())
	}
	return s, nil
}

// Name identifies the backend
func (s *GCPSource) Name() string {
	return "gcp"
}

// Close releases the underlying client
func (s *GCPSource) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Fetch starts a newest-first query bounded by limit and the configured timeout
func (s *GCPSource) Fetch(ctx context.Context, predicate string, limit int) (Iterator, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var cancel context.CancelFunc = func() {}
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}

	s.log.Debug().Str("predicate", predicate).Int("limit", limit).Msg("fetching log entries")

	return Limit(&gcpIterator{
		it:        s.list(ctx, predicate),
		predicate: predicate,
		cancel:    cancel,
	}, limit), nil
}

type gcpIterator struct {
	it        entryIterator
	predicate string
	cancel    context.CancelFunc
}

func (g *gcpIterator) Next() (protocol.LogEntry, error) {
	e, err := g.it.Next()
	if errors.Is(err, iterator.Done) {
		return protocol.LogEntry{}, Done
	}
	if err != nil {
		return protocol.LogEntry{}, &Error{Source: "gcp", Kind: classify(err), Predicate: g.predicate, Err: err}
	}
	return convertEntry(e), nil
}

func (g *gcpIterator) Close() error {
	g.cancel()
	return nil
}

// classify maps gRPC status codes onto source error kinds
func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return KindAuth
	case codes.InvalidArgument:
		return KindBadPredicate
	default:
		return KindUnavailable
	}
}

func convertEntry(e *logging.Entry) protocol.LogEntry {
	entry := protocol.LogEntry{
		Severity:  convertSeverity(e.Severity),
		Timestamp: e.Timestamp.UTC(),
		LogName:   e.LogName,
		Labels:    e.Labels,
		InsertID:  e.InsertID,
		Message:   payloadText(e.Payload),
	}
	if e.Resource != nil {
		entry.Resource = protocol.Resource{
			Type:   e.Resource.GetType(),
			Labels: e.Resource.GetLabels(),
		}
	}
	return entry
}

// convertSeverity never guesses: levels outside the enumeration become SeverityUnknown
func convertSeverity(s logging.Severity) protocol.Severity {
	switch s {
	case logging.Debug:
		return protocol.SeverityDebug
	case logging.Info, logging.Notice:
		return protocol.SeverityInfo
	case logging.Warning:
		return protocol.SeverityWarning
	case logging.Error:
		return protocol.SeverityError
	case logging.Critical, logging.Alert, logging.Emergency:
		return protocol.SeverityCritical
	default:
		return protocol.SeverityUnknown
	}
}

// payloadText renders an entry payload as text. Structured payloads are serialized with
// sorted keys so the same entry always yields the same message.
func payloadText(payload interface{}) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case string:
		return p
	case *structpb.Struct:
		data, err := json.Marshal(p.AsMap())
		if err != nil {
			return p.String()
		}
		return string(data)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Sprint(p)
		}
		return string(data)
	}
}

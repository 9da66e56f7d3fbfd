// internal/logsource/gcp_test.go
package logsource

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalnine/oncall/internal/protocol"
)

type fakeEntries struct {
	entries []*logging.Entry
	err     error
	calls   int
}

func (f *fakeEntries) Next() (*logging.Entry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.entries) == 0 {
		return nil, iterator.Done
	}
	e := f.entries[0]
	f.entries = f.entries[1:]
	return e, nil
}

func newFakeGCP(it *fakeEntries) (*GCPSource, *string) {
	var gotPredicate string
	src := &GCPSource{projectID: "test", timeout: time.Second, log: zerolog.Nop()}
	src.list = func(ctx context.Context, predicate string) entryIterator {
		gotPredicate = predicate
		return it
	}
	return src, &gotPredicate
}

func TestGCPFetchConvertsEntries(t *testing.T) {
	ts := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	payload, err := structpb.NewStruct(map[string]interface{}{"msg": "boom", "code": 500})
	require.NoError(t, err)

	fake := &fakeEntries{entries: []*logging.Entry{
		{Severity: logging.Error, Timestamp: ts, Payload: "connection refused", LogName: "projects/test/logs/app", InsertID: "a1"},
		{Severity: logging.Notice, Timestamp: ts, Payload: payload},
		{Severity: logging.Default, Timestamp: ts, Payload: "no level"},
	}}
	src, pred := newFakeGCP(fake)

	it, err := src.Fetch(context.Background(), `timestamp >= "x"`, 10)
	require.NoError(t, err)
	entries, err := Collect(it)
	require.NoError(t, err)

	assert.Equal(t, `timestamp >= "x"`, *pred)
	require.Len(t, entries, 3)
	assert.Equal(t, protocol.SeverityError, entries[0].Severity)
	assert.Equal(t, "connection refused", entries[0].Message)
	assert.Equal(t, "a1", entries[0].InsertID)
	assert.Equal(t, protocol.SeverityInfo, entries[1].Severity)
	assert.Equal(t, `{"code":500,"msg":"boom"}`, entries[1].Message)
	assert.Equal(t, protocol.SeverityUnknown, entries[2].Severity)
}

func TestGCPFetchStopsAtLimit(t *testing.T) {
	fake := &fakeEntries{}
	for i := 0; i < 10; i++ {
		fake.entries = append(fake.entries, &logging.Entry{Severity: logging.Info, Payload: "x"})
	}
	src, _ := newFakeGCP(fake)

	it, err := src.Fetch(context.Background(), "", 4)
	require.NoError(t, err)
	entries, err := Collect(it)
	require.NoError(t, err)

	assert.Len(t, entries, 4)
	assert.Equal(t, 4, fake.calls, "iterator must not be pulled past the limit")
}

func TestGCPFetchClassifiesErrors(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{status.Error(codes.PermissionDenied, "denied"), KindAuth},
		{status.Error(codes.Unauthenticated, "no creds"), KindAuth},
		{status.Error(codes.InvalidArgument, "bad filter"), KindBadPredicate},
		{status.Error(codes.Unavailable, "down"), KindUnavailable},
		{context.DeadlineExceeded, KindUnavailable},
	}

	for _, tt := range tests {
		src, _ := newFakeGCP(&fakeEntries{err: tt.err})
		it, err := src.Fetch(context.Background(), "severity>=ERROR", 5)
		require.NoError(t, err)

		_, err = Collect(it)
		var srcErr *Error
		require.True(t, errors.As(err, &srcErr), "got %v", err)
		assert.Equal(t, tt.kind, srcErr.Kind, "for %v", tt.err)
		assert.Equal(t, "severity>=ERROR", srcErr.Predicate)
	}
}

func TestGCPFetchRejectsNonPositiveLimit(t *testing.T) {
	src, _ := newFakeGCP(&fakeEntries{})
	_, err := src.Fetch(context.Background(), "", 0)
	assert.Error(t, err)
}

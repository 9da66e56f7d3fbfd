// internal/logsource/file_test.go
package logsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/oncall/internal/protocol"
)

const export = `{"severity":"ERROR","timestamp":"2026-03-10T12:00:00Z","logName":"projects/p/logs/run","resource":{"type":"cloud_run_revision","labels":{"service_name":"api"}},"textPayload":"db timeout"}
{"severity":"INFO","timestamp":"2026-03-10T11:59:00Z","message":"request served"}

{"severity":"WARNING","timestamp":"2026-03-10T11:58:00Z","jsonPayload":{"z":1,"a":"slow"}}
{"severity":"SEVERE","timestamp":"2026-03-10T11:57:00Z","message":"odd level"}
{"severity":"NOTICE","timestamp":"2026-03-09T01:00:00Z","message":"old notice"}
`

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFileSourceReadsAllEntries(t *testing.T) {
	src := NewFileSource(writeExport(t, export), zerolog.Nop())

	it, err := src.Fetch(context.Background(), "", 100)
	require.NoError(t, err)
	entries, err := Collect(it)
	require.NoError(t, err)

	require.Len(t, entries, 5)
	assert.Equal(t, protocol.SeverityError, entries[0].Severity)
	assert.Equal(t, "db timeout", entries[0].Message)
	assert.Equal(t, "cloud_run_revision", entries[0].Resource.Type)
	assert.Equal(t, "projects/p/logs/run", entries[0].LogName)
	assert.Equal(t, `{"a":"slow","z":1}`, entries[2].Message)
	// Unrecognized levels are kept, not dropped or guessed
	assert.Equal(t, protocol.SeverityUnknown, entries[3].Severity)
	assert.Equal(t, protocol.SeverityInfo, entries[4].Severity)
}

func TestFileSourceHonoursLimit(t *testing.T) {
	src := NewFileSource(writeExport(t, export), zerolog.Nop())

	it, err := src.Fetch(context.Background(), "", 2)
	require.NoError(t, err)
	entries, err := Collect(it)
	require.NoError(t, err)

	assert.Len(t, entries, 2)
}

func TestFileSourceAppliesBuilderClauses(t *testing.T) {
	src := NewFileSource(writeExport(t, export), zerolog.Nop())

	pred := `timestamp >= "2026-03-10T00:00:00Z" AND severity >= WARNING`
	it, err := src.Fetch(context.Background(), pred, 100)
	require.NoError(t, err)
	entries, err := Collect(it)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "db timeout", entries[0].Message)
	assert.Equal(t, protocol.SeverityWarning, entries[1].Severity)
}

func TestFileSourceZeroMatchesIsNotAnError(t *testing.T) {
	src := NewFileSource(writeExport(t, export), zerolog.Nop())

	it, err := src.Fetch(context.Background(), `timestamp >= "2030-01-01T00:00:00Z"`, 10)
	require.NoError(t, err)
	entries, err := Collect(it)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent.jsonl"), zerolog.Nop())

	_, err := src.Fetch(context.Background(), "pred", 10)
	var srcErr *Error
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, KindUnavailable, srcErr.Kind)
	assert.Equal(t, "pred", srcErr.Predicate)
}

func TestFileSourceMalformedLine(t *testing.T) {
	src := NewFileSource(writeExport(t, "{not json}\n"), zerolog.Nop())

	it, err := src.Fetch(context.Background(), "", 10)
	require.NoError(t, err)
	_, err = Collect(it)

	var srcErr *Error
	require.True(t, errors.As(err, &srcErr))
	assert.True(t, strings.Contains(srcErr.Error(), "line 1"))
}

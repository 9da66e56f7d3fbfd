// internal/logsource/source.go
package logsource

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalnine/oncall/internal/protocol"
)

// Done is returned by Iterator.Next when the sequence is exhausted
var Done = errors.New("no more entries")

// Source executes a bounded query against a log backend
type Source interface {
	// Fetch starts a query. The returned iterator yields at most limit entries in the
	// backend's native order. Each call re-queries the backend.
	Fetch(ctx context.Context, predicate string, limit int) (Iterator, error)
	Name() string
}

// Iterator is a finite, forward-only sequence of log entries
type Iterator interface {
	Next() (protocol.LogEntry, error)
	Close() error
}

// ErrorKind classifies source failures
type ErrorKind string

const (
	KindUnavailable  ErrorKind = "unavailable"
	KindAuth         ErrorKind = "auth"
	KindBadPredicate ErrorKind = "bad_predicate"
)

// Error is a fatal source failure carrying the predicate that triggered it
type Error struct {
	Source    string
	Kind      ErrorKind
	Predicate string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s source %s (predicate %q): %v", e.Source, e.Kind, e.Predicate, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Collect drains the iterator and closes it. It is the single point where a fetch is materialized.
func Collect(it Iterator) ([]protocol.LogEntry, error) {
	defer it.Close()

	entries := []protocol.LogEntry{}
	for {
		e, err := it.Next()
		if errors.Is(err, Done) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}

// limited caps any iterator at n entries
type limited struct {
	it   Iterator
	left int
}

// Limit wraps it so that it yields at most n entries
func Limit(it Iterator, n int) Iterator {
	return &limited{it: it, left: n}
}

func (l *limited) Next() (protocol.LogEntry, error) {
	if l.left <= 0 {
		return protocol.LogEntry{}, Done
	}
	e, err := l.it.Next()
	if err != nil {
		return protocol.LogEntry{}, err
	}
	l.left--
	return e, nil
}

func (l *limited) Close() error {
	return l.it.Close()
}

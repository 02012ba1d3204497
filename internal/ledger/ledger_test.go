package ledger

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANU-2524/JustCoding-sub000/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newMemoryLedger(t *testing.T) (*Ledger, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	return New(backend, quietLogger()), backend
}

func TestLoadDefaultsOnEmptyBackend(t *testing.T) {
	l, _ := newMemoryLedger(t)

	doc := l.Load()
	assert.NotNil(t, doc.Snippets)
	assert.NotNil(t, doc.Sessions)
	assert.NotNil(t, doc.Stats.Counters)
	assert.Empty(t, doc.Snippets)
	assert.Empty(t, doc.Sessions)
}

func TestLoadDefaultsOnCorruption(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{{{ not json"},
		{"wrong shape", `[1,2,3]`},
		{"partial object", `{"snippets": 42}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := NewMemoryBackend()
			backend.Seed([]byte(tc.data))

			doc := New(backend, quietLogger()).Load()

			// Same structural shape as an empty key.
			assert.NotNil(t, doc.Snippets)
			assert.NotNil(t, doc.Sessions)
			assert.NotNil(t, doc.Stats.Counters)
			assert.Empty(t, doc.Snippets)
		})
	}
}

func TestLoadNormalizesPartialDocument(t *testing.T) {
	backend := NewMemoryBackend()
	backend.Seed([]byte(`{"profile":{"username":"alice"}}`))

	l := New(backend, quietLogger())

	assert.Equal(t, "alice", l.Profile().Username)
	assert.NotNil(t, l.Snippets())
	assert.NotNil(t, l.Counters())
}

func TestAddSnippet(t *testing.T) {
	l, _ := newMemoryLedger(t)

	s := l.AddSnippet("Fib", "javascript", "function fib(n){}")

	require.NotEmpty(t, s.ID)
	assert.Equal(t, "Fib", s.Title)
	assert.Equal(t, "javascript", s.Language)
	assert.False(t, s.CreatedAt.IsZero())
	assert.Equal(t, s.CreatedAt, s.UpdatedAt)
	assert.Equal(t, 1, l.Counters()[models.CounterSnippetsCreated])
	assert.False(t, l.LastActiveAt().IsZero())
}

func TestAddSnippetClipsLongTitle(t *testing.T) {
	l, _ := newMemoryLedger(t)

	long := make([]byte, 0, 300)
	for i := 0; i < 300; i++ {
		long = append(long, 'x')
	}
	s := l.AddSnippet(string(long), "go", "")

	assert.Len(t, s.Title, models.MaxSnippetTitleLen)
}

func TestUpdateSnippet(t *testing.T) {
	l, _ := newMemoryLedger(t)
	s := l.AddSnippet("Fib", "javascript", "function fib(n){}")

	newCode := "function fib(n){ return n }"
	updated, err := l.UpdateSnippet(s.ID, SnippetPatch{Code: &newCode})

	require.NoError(t, err)
	assert.Equal(t, newCode, updated.Code)
	assert.Equal(t, "Fib", updated.Title)
	assert.Equal(t, s.ID, updated.ID)
	assert.True(t, !updated.UpdatedAt.Before(updated.CreatedAt))
}

func TestUpdateSnippetNotFound(t *testing.T) {
	l, _ := newMemoryLedger(t)

	title := "nope"
	_, err := l.UpdateSnippet("missing", SnippetPatch{Title: &title})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSnippetKeepsCreationCount(t *testing.T) {
	l, _ := newMemoryLedger(t)

	before := len(l.Snippets())
	s := l.AddSnippet("Fib", "javascript", "function fib(n){}")
	require.NoError(t, l.DeleteSnippet(s.ID))

	assert.Len(t, l.Snippets(), before)
	// Deletion does not decrement the creation count.
	assert.Equal(t, 1, l.Counters()[models.CounterSnippetsCreated])
	assert.ErrorIs(t, l.DeleteSnippet(s.ID), ErrNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	l, _ := newMemoryLedger(t)

	id := l.StartSession("r1", "alice")
	require.NotEmpty(t, id)

	sessions := l.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "r1", sessions[0].RoomID)
	assert.Equal(t, "alice", sessions[0].Username)
	assert.Nil(t, sessions[0].EndedAt)
	assert.True(t, sessions[0].Active())

	l.EndSession(id)

	sessions = l.Sessions()
	require.NotNil(t, sessions[0].EndedAt)
	assert.Equal(t, 1, l.Counters()[models.CounterSessionsJoined])
}

func TestEndSessionIdempotent(t *testing.T) {
	l, _ := newMemoryLedger(t)

	id := l.StartSession("r1", "alice")
	l.EndSession(id)

	first := *l.Sessions()[0].EndedAt
	l.EndSession(id)

	assert.Equal(t, first, *l.Sessions()[0].EndedAt)
}

func TestEndSessionUnknownIDIsNoop(t *testing.T) {
	l, _ := newMemoryLedger(t)
	l.EndSession("does-not-exist")
	assert.Empty(t, l.Sessions())
}

func TestCounterMonotonicity(t *testing.T) {
	l, _ := newMemoryLedger(t)

	amounts := []int{1, 0, 5, 2, 0, 7}
	sum := 0
	for _, n := range amounts {
		l.IncrementCounter("executionsRun", n)
		sum += n
	}

	assert.Equal(t, sum, l.Counters()["executionsRun"])
}

func TestIncrementCreatesCounter(t *testing.T) {
	l, _ := newMemoryLedger(t)

	l.IncrementCounter("brandNew", 3)

	assert.Equal(t, 3, l.Counters()["brandNew"])
}

func TestResetCounters(t *testing.T) {
	l, _ := newMemoryLedger(t)
	l.IncrementCounter("executionsRun", 4)

	l.ResetCounters()

	assert.Empty(t, l.Counters())
}

func TestWriteFailureKeepsInMemoryState(t *testing.T) {
	backend := NewMemoryBackend()
	l := New(backend, quietLogger())
	backend.WriteErr = errors.New("quota exceeded")

	s := l.AddSnippet("Fib", "javascript", "function fib(n){}")

	// The mutation survives in memory even though persistence failed.
	require.Len(t, l.Snippets(), 1)
	assert.Equal(t, s.ID, l.Snippets()[0].ID)

	// And later writes resume once storage recovers.
	backend.WriteErr = nil
	l.TouchLastActive()

	data, err := backend.Read()
	require.NoError(t, err)
	var doc models.ActivityDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Snippets, 1)
}

func TestSaveReplacesWholeDocument(t *testing.T) {
	l, backend := newMemoryLedger(t)
	l.AddSnippet("Fib", "javascript", "")

	l.Save(models.DefaultDocument())

	assert.Empty(t, l.Snippets())
	data, err := backend.Read()
	require.NoError(t, err)
	var doc models.ActivityDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Empty(t, doc.Snippets)
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "activity.json")
	backend := NewFileBackend(path)

	l := New(backend, quietLogger())
	l.AddSnippet("Fib", "javascript", "function fib(n){}")
	l.StartSession("r1", "alice")

	// A second ledger over the same file sees the persisted state.
	reopened := New(NewFileBackend(path), quietLogger())
	assert.Len(t, reopened.Snippets(), 1)
	assert.Len(t, reopened.Sessions(), 1)
	assert.Equal(t, 1, reopened.Counters()[models.CounterSnippetsCreated])
}

func TestFileBackendMissingFileReadsEmpty(t *testing.T) {
	backend := NewFileBackend(filepath.Join(t.TempDir(), "absent.json"))

	data, err := backend.Read()

	require.NoError(t, err)
	assert.Nil(t, data)
}

// Package ledger implements the local activity ledger: a single aggregate
// document of profile, snippets, sessions and usage counters, read-modify-
// written as a whole on every mutation. Persistence is best-effort — a
// failed write is logged and swallowed, and the in-memory document stays
// authoritative for the rest of the process lifetime.
package ledger

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ANU-2524/JustCoding-sub000/internal/models"
)

// ErrNotFound is returned by id lookups that miss.
var ErrNotFound = errors.New("record not found")

// SnippetPatch carries the fields of a snippet update. Nil fields keep the
// stored value.
type SnippetPatch struct {
	Title    *string
	Language *string
	Code     *string
}

// Ledger owns one activity document on one backend. All mutations are
// serialized; each one rewrites the whole document.
type Ledger struct {
	mu      sync.Mutex
	backend Backend
	doc     models.ActivityDocument
	logger  *logrus.Logger
	now     func() time.Time
}

// New loads the backend's current document and returns a ledger over it.
// Loading never fails: malformed or absent data is replaced with the
// default aggregate.
func New(backend Backend, logger *logrus.Logger) *Ledger {
	if logger == nil {
		logger = logrus.New()
	}
	l := &Ledger{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
	l.doc = l.load()
	return l
}

func (l *Ledger) load() models.ActivityDocument {
	data, err := l.backend.Read()
	if err != nil {
		l.logger.WithError(err).Warn("activity document unreadable, starting from defaults")
		return models.DefaultDocument()
	}
	if len(data) == 0 {
		return models.DefaultDocument()
	}

	var doc models.ActivityDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		l.logger.WithError(err).Warn("activity document malformed, starting from defaults")
		return models.DefaultDocument()
	}
	doc.Normalize()
	return doc
}

// persist serializes the current document and overwrites the backend key.
// Failures are logged, never propagated: losing a local analytics write
// must not block the user's primary workflow.
func (l *Ledger) persist() {
	data, err := json.Marshal(l.doc)
	if err != nil {
		l.logger.WithError(err).Error("activity document marshal failed")
		return
	}
	if err := l.backend.Write(data); err != nil {
		l.logger.WithError(err).Warn("activity document write failed, keeping in-memory state")
	}
}

func (l *Ledger) touch() {
	l.doc.Stats.LastActiveAt = l.now()
}

// Load returns a copy of the current aggregate.
func (l *Ledger) Load() models.ActivityDocument {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyDocument(l.doc)
}

// Save replaces the whole aggregate and persists it, last writer wins at
// the document granularity.
func (l *Ledger) Save(doc models.ActivityDocument) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc.Normalize()
	l.doc = copyDocument(doc)
	l.persist()
}

// AddSnippet creates a snippet, stamps both timestamps, bumps the
// snippetsCreated counter and persists. Titles are clipped to
// MaxSnippetTitleLen.
func (l *Ledger) AddSnippet(title, language, code string) models.Snippet {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	s := models.Snippet{
		ID:        uuid.NewString(),
		Title:     clipTitle(title),
		Language:  language,
		Code:      code,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.doc.Snippets = append(l.doc.Snippets, s)
	l.doc.Stats.Counters[models.CounterSnippetsCreated]++
	l.touch()
	l.persist()
	return s
}

// UpdateSnippet merges the patch into the snippet with the given id and
// refreshes UpdatedAt. Returns ErrNotFound when the id is unknown.
func (l *Ledger) UpdateSnippet(id string, patch SnippetPatch) (models.Snippet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.doc.Snippets {
		if l.doc.Snippets[i].ID != id {
			continue
		}
		s := &l.doc.Snippets[i]
		if patch.Title != nil {
			s.Title = clipTitle(*patch.Title)
		}
		if patch.Language != nil {
			s.Language = *patch.Language
		}
		if patch.Code != nil {
			s.Code = *patch.Code
		}
		s.UpdatedAt = l.now()
		l.touch()
		l.persist()
		return *s, nil
	}
	return models.Snippet{}, ErrNotFound
}

// DeleteSnippet removes the snippet with the given id. The snippetsCreated
// counter is not decremented: it counts creations, not survivors.
func (l *Ledger) DeleteSnippet(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.doc.Snippets {
		if l.doc.Snippets[i].ID != id {
			continue
		}
		l.doc.Snippets = append(l.doc.Snippets[:i], l.doc.Snippets[i+1:]...)
		l.touch()
		l.persist()
		return nil
	}
	return ErrNotFound
}

// StartSession appends a new active session, bumps sessionsJoined and
// returns the session id.
func (l *Ledger) StartSession(roomID, username string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := models.Session{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Username:  username,
		StartedAt: l.now(),
	}
	l.doc.Sessions = append(l.doc.Sessions, s)
	l.doc.Stats.Counters[models.CounterSessionsJoined]++
	l.touch()
	l.persist()
	return s.ID
}

// EndSession stamps EndedAt on the session, only if it is still unset.
// Closing twice, or closing an unknown id, is a no-op.
func (l *Ledger) EndSession(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.doc.Sessions {
		if l.doc.Sessions[i].ID != id {
			continue
		}
		if l.doc.Sessions[i].EndedAt != nil {
			return
		}
		ended := l.now()
		l.doc.Sessions[i].EndedAt = &ended
		l.touch()
		l.persist()
		return
	}
}

// IncrementCounter adds amount to the named counter, creating it at zero
// first if absent.
func (l *Ledger) IncrementCounter(name string, amount int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.doc.Stats.Counters[name] += amount
	l.touch()
	l.persist()
}

// ResetCounters zeroes every counter. The only sanctioned way counters go
// down.
func (l *Ledger) ResetCounters() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.doc.Stats.Counters = map[string]int{}
	l.touch()
	l.persist()
}

// TouchLastActive updates only the activity timestamp.
func (l *Ledger) TouchLastActive() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.touch()
	l.persist()
}

// SetProfile replaces the stored profile.
func (l *Ledger) SetProfile(p models.Profile) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.doc.Profile = p
	l.touch()
	l.persist()
}

// Profile returns the stored profile.
func (l *Ledger) Profile() models.Profile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc.Profile
}

// Snippets returns a copy of the snippet list.
func (l *Ledger) Snippets() []models.Snippet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Snippet(nil), l.doc.Snippets...)
}

// Sessions returns a copy of the session list.
func (l *Ledger) Sessions() []models.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Session, len(l.doc.Sessions))
	for i, s := range l.doc.Sessions {
		out[i] = s
		if s.EndedAt != nil {
			ended := *s.EndedAt
			out[i].EndedAt = &ended
		}
	}
	return out
}

// Counters returns a copy of the counter map.
func (l *Ledger) Counters() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.doc.Stats.Counters))
	for k, v := range l.doc.Stats.Counters {
		out[k] = v
	}
	return out
}

// LastActiveAt returns the last-activity timestamp.
func (l *Ledger) LastActiveAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc.Stats.LastActiveAt
}

func clipTitle(title string) string {
	if utf8.RuneCountInString(title) <= models.MaxSnippetTitleLen {
		return title
	}
	return string([]rune(title)[:models.MaxSnippetTitleLen])
}

func copyDocument(doc models.ActivityDocument) models.ActivityDocument {
	out := doc
	out.Snippets = append([]models.Snippet(nil), doc.Snippets...)
	out.Sessions = make([]models.Session, len(doc.Sessions))
	for i, s := range doc.Sessions {
		out.Sessions[i] = s
		if s.EndedAt != nil {
			ended := *s.EndedAt
			out.Sessions[i].EndedAt = &ended
		}
	}
	out.Stats.Counters = make(map[string]int, len(doc.Stats.Counters))
	for k, v := range doc.Stats.Counters {
		out.Stats.Counters[k] = v
	}
	return out
}

package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/samirtelegrambot/ACMProBot/internal/eventbus"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

// freshWindow is how long a cached snapshot is trusted before the next
// read goes back to disk. Within one process, mutations refresh the
// cache immediately; the window only matters for out-of-band edits.
const freshWindow = 60 * time.Second

// Store is the only owner of the state document. One instance per
// process; the file lock serializes against other processes, the
// mutex against other goroutines.
type Store struct {
	path    string
	ownerID string
	log     logx.Logger
	bus     eventbus.Bus
	fresh   time.Duration

	mu       sync.Mutex
	flk      *flock.Flock
	doc      *Document
	loadedAt time.Time
}

// Open loads (or initializes) the document at path. The owner id is
// seeded into the admin set and can never be removed.
func Open(path, ownerID string, log logx.Logger, bus eventbus.Bus) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("state path is required")
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, errors.New("owner id is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &Store{
		path:    path,
		ownerID: ownerID,
		log:     log,
		bus:     bus,
		fresh:   freshWindow,
		flk:     flock.New(path + ".lock"),
	}

	if err := s.flk.Lock(); err != nil {
		return nil, err
	}
	defer func() { _ = s.flk.Unlock() }()

	doc, dirty := s.readLocked()
	s.doc = doc
	s.loadedAt = time.Now()
	if dirty {
		if err := s.writeLocked(doc); err != nil {
			s.log.Error("state: initial write failed", logx.Err(err), logx.String("path", path))
		}
	}
	return s, nil
}

func (s *Store) Close() error {
	// The flock is acquired per operation; nothing is held here.
	return nil
}

// Owner returns the never-removable owner admin id.
func (s *Store) Owner() string { return s.ownerID }

// readLocked loads the document from disk. Missing or undecodable
// content falls back to defaults; dirty reports whether the caller
// should persist the result.
func (s *Store) readLocked() (doc *Document, dirty bool) {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Info("state: no document, starting fresh", logx.String("path", s.path))
		return defaultDocument(s.ownerID), true
	case err != nil:
		s.log.Error("state: read failed, using defaults", logx.Err(err), logx.String("path", s.path))
		s.publishReset(err)
		return defaultDocument(s.ownerID), true
	}

	doc = &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		s.log.Error("state: document corrupt, resetting to defaults", logx.Err(err), logx.String("path", s.path))
		s.publishReset(err)
		return defaultDocument(s.ownerID), true
	}
	doc.normalize(s.ownerID)
	return doc, false
}

// writeLocked persists atomically: temp file in the same directory,
// then rename.
func (s *Store) writeLocked(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) publishReset(cause error) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeStateReset, Data: cause.Error()})
}

// Snapshot returns a copy of the current document. Reads are served
// from cache until the freshness window lapses; reload failures fall
// back to the cached copy.
func (s *Store) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil || time.Since(s.loadedAt) > s.fresh {
		if err := s.flk.Lock(); err != nil {
			s.log.Warn("state: lock for refresh failed", logx.Err(err))
		} else {
			doc, dirty := s.readLocked()
			if dirty {
				if err := s.writeLocked(doc); err != nil {
					s.log.Error("state: save failed", logx.Err(err))
				}
			}
			_ = s.flk.Unlock()
			s.doc = doc
			s.loadedAt = time.Now()
		}
		if s.doc == nil {
			s.doc = defaultDocument(s.ownerID)
			s.loadedAt = time.Now()
		}
	}
	return s.doc.Clone()
}

// Settings is a convenience for the freshest delivery settings.
func (s *Store) Settings() Settings { return s.Snapshot().Settings }

// Mutate runs fn on the on-disk document under the cross-process lock
// and persists the result. fn errors abort without writing. Save
// failures are logged and swallowed: the in-memory state stays current
// so operator flows keep working.
func (s *Store) Mutate(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flk.Lock(); err != nil {
		return err
	}
	defer func() { _ = s.flk.Unlock() }()

	doc, _ := s.readLocked()
	if err := fn(doc); err != nil {
		// Keep the fresh read; the mutation itself was refused.
		s.doc = doc
		s.loadedAt = time.Now()
		return err
	}
	doc.normalize(s.ownerID)

	if err := s.writeLocked(doc); err != nil {
		s.log.Error("state: save failed", logx.Err(err), logx.String("path", s.path))
	}
	s.doc = doc
	s.loadedAt = time.Now()
	return nil
}

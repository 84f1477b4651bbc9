// Package nercache provides a persistent, capacity-bounded cache in front
// of an ner.Client, so that re-reading the same static reference document
// or re-submitting the same tool arguments doesn't re-pay the NER
// network round trip. This is adapted directly from the teacher's
// per-value Ollama cache (internal/anonymizer/cache.go and
// s3fifo_cache.go in the teacher repo) — same two-tier design (bbolt
// backing store + S3-FIFO in-memory eviction), repointed at NER chunk
// results instead of single-value anonymization tokens.
package nercache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"mcp-pii-proxy/internal/logger"
	"mcp-pii-proxy/internal/ner"
)

// entry is what gets persisted per chunk. ContainsDone/DetectDone record
// which of the two provider calls this entry actually answers, since a
// contains_pii-only entry (no entities ever computed) must not be
// misread as a detect_pii result with zero entities.
type entry struct {
	Labels       []string     `json:"labels"`
	ContainsDone bool         `json:"contains_done"`
	Entities     []ner.Entity `json:"entities"`
	DetectDone   bool         `json:"detect_done"`
}

// Result is what Store.Get returns: the cached answer to ContainsPII
// and/or DetectPII for a given key, each independently present or absent.
type Result struct {
	Labels       []string
	ContainsDone bool
	Entities     []ner.Entity
	DetectDone   bool
}

// Store is the persistence interface for cached NER results, keyed by a
// content fingerprint (see Key). All implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) (Result, bool)
	SetContains(key string, labels []string)
	SetDetect(key string, entities []ner.Entity)
	Delete(key string)
	Close() error
}

// Key fingerprints a chunk of text together with the language and the
// entity-type allowlist fingerprint in effect, so a cached result is never
// reused under a different compliance profile's allowlist.
func Key(text, language, allowlistFingerprint string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(allowlistFingerprint))
	return hex.EncodeToString(h.Sum(nil))
}

// --- memory store ---

type memoryStore struct {
	mu sync.Mutex
	m  map[string]entry
}

// NewMemoryStore returns an unbounded in-memory Store, suitable for tests
// and stateless deployments.
func NewMemoryStore() Store {
	return &memoryStore{m: make(map[string]entry)}
}

func (s *memoryStore) Get(key string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return Result{}, false
	}
	return Result{Labels: e.Labels, ContainsDone: e.ContainsDone, Entities: e.Entities, DetectDone: e.DetectDone}, true
}

func (s *memoryStore) SetContains(key string, labels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.m[key]
	e.Labels = labels
	e.ContainsDone = true
	s.m[key] = e
}

func (s *memoryStore) SetDetect(key string, entities []ner.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.m[key]
	e.Entities = entities
	e.DetectDone = true
	s.m[key] = e
}

func (s *memoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

func (s *memoryStore) Close() error { return nil }

// --- bbolt store ---

const bucketName = "ner_cache"

type bboltStore struct {
	db  *bolt.DB
	log *logger.Logger
}

// NewBboltStore opens (or creates) a bbolt database at path for the
// persistent NER cache.
func NewBboltStore(path string, log *logger.Logger) (Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("nercache: open bbolt %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("nercache: create bucket: %w", err)
	}
	log.Infof("open", "persistent NER cache opened at %s", path)
	return &bboltStore{db: db, log: log}, nil
}

func (s *bboltStore) Get(key string) (Result, bool) {
	var e entry
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		if jerr := json.Unmarshal(v, &e); jerr != nil {
			return jerr
		}
		found = true
		return nil
	})
	if err != nil {
		s.log.Warnf("get", "bbolt unmarshal error: %v", err)
		return Result{}, false
	}
	if !found {
		return Result{}, false
	}
	return Result{Labels: e.Labels, ContainsDone: e.ContainsDone, Entities: e.Entities, DetectDone: e.DetectDone}, true
}

func (s *bboltStore) readEntry(key string) entry {
	var e entry
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &e)
	})
	return e
}

func (s *bboltStore) writeEntry(key string, e entry) {
	data, err := json.Marshal(e)
	if err != nil {
		s.log.Warnf("set", "marshal error: %v", err)
		return
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketName)
		}
		return b.Put([]byte(key), data)
	}); err != nil {
		s.log.Warnf("set", "bbolt put error: %v", err)
	}
}

func (s *bboltStore) SetContains(key string, labels []string) {
	e := s.readEntry(key)
	e.Labels = labels
	e.ContainsDone = true
	s.writeEntry(key, e)
}

func (s *bboltStore) SetDetect(key string, entities []ner.Entity) {
	e := s.readEntry(key)
	e.Entities = entities
	e.DetectDone = true
	s.writeEntry(key, e)
}

func (s *bboltStore) Delete(key string) {
	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *bboltStore) Close() error {
	return s.db.Close()
}

// Package cache persists the last good reservation snapshot per
// (tenant, view) with a TTL. It is an optimization, not a source of
// truth: persistence failures are logged and swallowed, expired entries
// behave exactly like absent ones.
package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/applegrimm/reservesync/internal/models"
)

const filePrefix = "reservation_cache_"

// Entry is the stored shape: the snapshot plus the epoch-ms write time.
type Entry struct {
	Data      []models.Reservation `json:"data"`
	Timestamp int64                `json:"timestamp"`
	Hash      string               `json:"hash,omitempty"`
}

type Store struct {
	dir      string
	ttls     map[string]time.Duration
	fallback time.Duration

	now func() time.Time
}

// New creates a snapshot store under dir. ttls maps a view name to its
// TTL; views without an override use fallback.
func New(dir string, ttls map[string]time.Duration, fallback time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir, ttls: ttls, fallback: fallback, now: time.Now}, nil
}

func (s *Store) ttl(view string) time.Duration {
	if d, ok := s.ttls[view]; ok {
		return d
	}
	return s.fallback
}

// path keys the entry file by a digest of the tenant secret so the
// secret itself never lands on disk as a file name.
func (s *Store) path(tenant, view string) string {
	h := fnv.New32a()
	h.Write([]byte(tenant))
	return filepath.Join(s.dir, fmt.Sprintf("%s%08x_%s.json", filePrefix, h.Sum32(), view))
}

// Get returns the cached snapshot and true when a valid entry exists.
// An unparsable or expired entry is deleted on the way out.
func (s *Store) Get(tenant, view string) ([]models.Reservation, bool) {
	path := s.path(tenant, view)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		log.Printf("cache: dropping unparsable entry %s: %v", filepath.Base(path), err)
		_ = os.Remove(path)
		return nil, false
	}
	age := s.now().UnixMilli() - e.Timestamp
	if age >= s.ttl(view).Milliseconds() {
		_ = os.Remove(path)
		return nil, false
	}
	return e.Data, true
}

// Put overwrites the entry unconditionally. Failures are logged only.
func (s *Store) Put(tenant, view string, data []models.Reservation, hash string) {
	e := Entry{Data: data, Timestamp: s.now().UnixMilli(), Hash: hash}
	raw, err := json.Marshal(e)
	if err != nil {
		log.Printf("cache: encode entry: %v", err)
		return
	}
	if err := os.WriteFile(s.path(tenant, view), raw, 0644); err != nil {
		log.Printf("cache: persist entry: %v", err)
	}
}

// Invalidate removes the entry ahead of a forced full reload.
func (s *Store) Invalidate(tenant, view string) {
	_ = os.Remove(s.path(tenant, view))
}

// Prune deletes the oldest cache entries beyond the retention count.
// Part of the periodic reclamation pass.
func (s *Store) Prune(keep int) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Printf("cache: prune scan: %v", err)
		return 0
	}
	type aged struct {
		path string
		mod  time.Time
	}
	var files []aged
	for _, de := range entries {
		if de.IsDir() || !strings.HasPrefix(de.Name(), filePrefix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, aged{filepath.Join(s.dir, de.Name()), info.ModTime()})
	}
	if len(files) <= keep {
		return 0
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	victims := files[:len(files)-keep]
	for _, f := range victims {
		_ = os.Remove(f.path)
	}
	return len(victims)
}

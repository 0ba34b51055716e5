// Package store is the local archive layer: one durable file of daily bars
// per (ticker, source), plus a coverage sidecar recording which date ranges
// have already been fetched (so that non-trading days inside a fetched range
// are not re-requested).
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"barcache/internal/coverage"
	"barcache/internal/model"
)

// Key identifies one archive partition.
type Key struct {
	Ticker string
	Source string
}

// NewKey canonicalizes the pair: tickers are upper-case, sources lower-case.
func NewKey(ticker, source string) Key {
	return Key{
		Ticker: strings.ToUpper(strings.TrimSpace(ticker)),
		Source: strings.ToLower(strings.TrimSpace(source)),
	}
}

func (k Key) String() string { return k.Source + ":" + k.Ticker }

// archiveMeta is the coverage sidecar, kept next to the bars under .meta/.
type archiveMeta struct {
	Ticker string            `json:"ticker"`
	Source string            `json:"source"`
	Ranges []model.DateRange `json:"ranges"`
}

// Store owns all archives under one data directory. Access to a single
// archive is serialized by a per-key mutex; distinct keys never contend.
type Store struct {
	dir   string
	codec Codec

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

// New creates a Store rooted at dir, persisting bars with the given codec.
func New(dir string, codec Codec) *Store {
	return &Store{
		dir:   dir,
		codec: codec,
		locks: make(map[Key]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one archive, creating it on first use.
// The registry lives for the process lifetime.
func (s *Store) lockFor(key Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *Store) archivePath(key Key) string {
	return filepath.Join(s.dir, key.Source, key.Ticker+"."+s.codec.Extension())
}

func (s *Store) metaPath(key Key) string {
	return filepath.Join(s.dir, key.Source, ".meta", key.Ticker+".json")
}

// Load reads one archive. A missing archive is an empty result, not an
// error. An unparsable archive or sidecar returns *CorruptArchiveError.
func (s *Store) Load(key Key) (coverage.Set, map[time.Time]model.Bar, error) {
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()
	return s.loadLocked(key)
}

func (s *Store) loadLocked(key Key) (coverage.Set, map[time.Time]model.Bar, error) {
	bars := make(map[time.Time]model.Bar)
	var covered coverage.Set

	archive := s.archivePath(key)
	recs, err := s.codec.Read(archive)
	switch {
	case err == nil:
		for _, r := range recs {
			b := r.bar()
			bars[b.Date] = b
			covered.Add(model.DateRange{From: b.Date, To: b.Date})
		}
	case errors.Is(err, fs.ErrNotExist):
		// first request for this key, nothing cached yet
	default:
		return coverage.Set{}, nil, &CorruptArchiveError{Key: key, Path: archive, Err: err}
	}

	meta := s.metaPath(key)
	data, err := os.ReadFile(meta)
	switch {
	case err == nil:
		var m archiveMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return coverage.Set{}, nil, &CorruptArchiveError{Key: key, Path: meta, Err: err}
		}
		for _, r := range m.Ranges {
			covered.Add(model.NewDateRange(r.From, r.To))
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return coverage.Set{}, nil, fmt.Errorf("archive %s: read sidecar %s: %w", key, meta, err)
	}

	return covered, bars, nil
}

// MergeAndPersist folds newBars into the archive (last write wins per date),
// marks the fetched ranges covered, and writes both files durably via
// temp-file-then-rename. On write failure the previous archive state stays
// intact on disk, a *PersistenceError is returned, and the updated coverage
// is still returned so the current request can be served from memory.
func (s *Store) MergeAndPersist(key Key, newBars []model.Bar, fetched []model.DateRange) (coverage.Set, error) {
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	covered, existing, err := s.loadLocked(key)
	if err != nil {
		var corrupt *CorruptArchiveError
		if !errors.As(err, &corrupt) {
			return coverage.Set{}, err
		}
		// unreadable previous state is overwritten with the fresh data
		slog.Warn("overwriting corrupt archive", "key", key.String(), "path", corrupt.Path, "error", corrupt.Err)
		covered, existing = coverage.Set{}, make(map[time.Time]model.Bar)
	}

	for _, b := range newBars {
		b.Date = model.DateOf(b.Date)
		existing[b.Date] = b
		covered.Add(model.DateRange{From: b.Date, To: b.Date})
	}
	for _, r := range fetched {
		covered.Add(r)
	}

	recs := make([]barRecord, 0, len(existing))
	for _, b := range existing {
		recs = append(recs, recordOf(b))
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp < recs[j].Timestamp })

	archive := s.archivePath(key)
	if err := s.writeAtomic(archive, func(tmp string) error {
		return s.codec.Write(tmp, recs)
	}); err != nil {
		return covered, &PersistenceError{Key: key, Path: archive, Err: err}
	}

	meta := s.metaPath(key)
	m := archiveMeta{Ticker: key.Ticker, Source: key.Source, Ranges: covered.Ranges()}
	if err := s.writeAtomic(meta, func(tmp string) error {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(tmp, data, 0o644)
	}); err != nil {
		// bars are already durable; a stale sidecar only under-reports
		// coverage, which is safe (worst case a re-fetch)
		return covered, &PersistenceError{Key: key, Path: meta, Err: err}
	}

	return covered, nil
}

// Coverage returns the covered ranges for one archive without the bars.
func (s *Store) Coverage(key Key) (coverage.Set, error) {
	covered, _, err := s.Load(key)
	return covered, err
}

// writeAtomic writes through a unique temp file in the target directory and
// renames it over path. The temp file is removed on every failure path.
func (s *Store) writeAtomic(path string, write func(tmp string) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UnixNano())
	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

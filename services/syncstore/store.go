package syncstore

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/metrics"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/tracing"
)

const (
	formatName    = "feedsync-syncitems"
	formatVersion = 1
	maxRecordSize = 4 << 20
)

var header = formatName + " " + strconv.Itoa(formatVersion)

// Store is the durable map of sync items not yet acknowledged by the
// service. One mutex guards every access.
type Store struct {
	mu      sync.Mutex
	path    string
	items   map[string]models.SyncItem
	started bool
	log     logger.Logger
}

func NewStore(path string, log logger.Logger) *Store {
	return &Store{
		path:  path,
		items: make(map[string]models.SyncItem),
		log:   log,
	}
}

// Startup loads the persisted items. A missing or unreadable file leaves the
// store empty.
func (s *Store) Startup(ctx context.Context) error {
	span, _ := tracing.StartTracerSpan(ctx, "SyncStore.Startup")
	defer span.Finish()
	tracing.TagComponentStore(span)

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := readFile(s.path)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("Discarding unreadable sync item store %s: %v", s.path, err)
		items = make(map[string]models.SyncItem)
	}
	for id, item := range s.items {
		if existing, ok := items[id]; ok {
			existing.Merge(item)
			items[id] = existing
		} else {
			items[id] = item
		}
	}
	s.items = items
	s.started = true
	s.updateGauge()
	span.LogKV("items", len(items))
	return nil
}

// Shutdown writes the current items to disk.
func (s *Store) Shutdown(ctx context.Context) error {
	return s.Persist(ctx)
}

// Persist writes the items to a temporary file and renames it over the
// store file.
func (s *Store) Persist(ctx context.Context) error {
	span, _ := tracing.StartTracerSpan(ctx, "SyncStore.Persist")
	defer span.Finish()
	tracing.TagComponentStore(span)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return feedErrors.ErrStoreNotStarted
	}
	if err := writeFile(s.path, s.items); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// AddUncommitted merges items into the store by id.
func (s *Store) AddUncommitted(items ...models.SyncItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if existing, ok := s.items[item.ID]; ok {
			existing.Merge(item)
			s.items[item.ID] = existing
		} else {
			s.items[item.ID] = item.Clone()
		}
	}
	s.updateGauge()
}

func (s *Store) RemoveUncommitted(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.items, id)
	}
	s.updateGauge()
}

// RemoveAcknowledged drops each sent item unless a later mutation was merged
// into it while the request was in flight. Those entries stay for the next
// pass.
func (s *Store) RemoveAcknowledged(sent ...models.SyncItem) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, item := range sent {
		current, ok := s.items[item.ID]
		if !ok {
			continue
		}
		if current.StreamID != item.StreamID || current.EquivalenceKey() != item.EquivalenceKey() {
			continue
		}
		delete(s.items, item.ID)
		removed++
	}
	s.updateGauge()
	return removed
}

func (s *Store) ClearUncommittedItems() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]models.SyncItem)
	s.updateGauge()
}

// GetUncommittedItems returns a copy safe to use without the lock.
func (s *Store) GetUncommittedItems() map[string]models.SyncItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]models.SyncItem, len(s.items))
	for id, item := range s.items {
		out[id] = item.Clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

func (s *Store) updateGauge() {
	metrics.PendingSyncItems.Set(float64(len(s.items)))
}

func readFile(path string) (map[string]models.SyncItem, error) {
	items := make(map[string]models.SyncItem)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return items, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), maxRecordSize)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "read store header")
		}
		// empty file
		return items, nil
	}
	if strings.TrimSpace(scanner.Text()) != header {
		return nil, errors.Errorf("unsupported store header %q", scanner.Text())
	}

	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var item models.SyncItem
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return nil, errors.Wrapf(err, "decode record on line %d", line)
		}
		if item.ID == "" {
			return nil, errors.Errorf("record on line %d has no id", line)
		}
		items[item.ID] = item
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read store")
	}
	return items, nil
}

func writeFile(path string, items map[string]models.SyncItem) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create store dir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp store")
	}
	defer os.Remove(tmp.Name())

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(header + "\n"); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write store header")
	}
	encoder := json.NewEncoder(w)
	for _, id := range ids {
		if err := encoder.Encode(items[id]); err != nil {
			_ = tmp.Close()
			return errors.Wrapf(err, "write record %s", id)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "flush store")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync store")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close store")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "replace store")
}

package orderjournal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/bfxgate/internal/domain"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultJournalDir   = "./wal/orders"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	eventKeyPrefix      = "order_event_"
)

var errNotInitialized = errors.New("order journal is not initialized")

// Entry an order event together with its WAL index.
type Entry struct {
	Index uint64
	Event domain.OrderEvent
}

// WALStore appends order lifecycle events to a write-ahead log.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens (or creates) the journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "orders_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init order journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Record appends event. Venue and Type are required.
func (s *WALStore) Record(event domain.OrderEvent) error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}
	if event.Venue == "" || event.Type == "" {
		return fmt.Errorf("order event venue and type are required, got %q %q", event.Venue, event.Type)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal order event")
	}

	key := eventKeyPrefix + event.Venue + "_" + string(event.Type)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, key, payload)
}

// EventsAfter returns every order event written after the given WAL index.
func (s *WALStore) EventsAfter(index uint64) ([]Entry, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]Entry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "read order event at index %d", idx)
		}
		// empty key: the segment holding idx was rotated out
		if !strings.HasPrefix(key, eventKeyPrefix) {
			continue
		}
		var event domain.OrderEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrapf(err, "decode order event at index %d", idx)
		}
		entries = append(entries, Entry{Index: idx, Event: event})
	}

	return entries, nil
}

// History returns the events of one venue order in write order.
func (s *WALStore) History(venue string, id domain.OrderID) ([]domain.OrderEvent, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []domain.OrderEvent
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, eventKeyPrefix+venue+"_") {
			continue
		}
		var event domain.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return nil, errors.Wrapf(err, "decode order event at index %d", msg.Index)
		}
		if event.OrderID == id {
			events = append(events, event)
		}
	}

	return events, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

package natscache

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

type stubKeyValue struct {
	mu     sync.Mutex
	bucket string
	rev    uint64

	entries map[string]*stubEntry

	getErr    error
	putErr    error
	createErr error
	updateErr error
	deleteErr error
	purgeErr  error
	listErr   error
}

func newStubKeyValue(bucket string) *stubKeyValue {
	return &stubKeyValue{
		bucket:  bucket,
		entries: make(map[string]*stubEntry),
	}
}

func (s *stubKeyValue) Get(key string) (nats.KeyValueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}
	if entry.op == nats.KeyValueDelete || entry.op == nats.KeyValuePurge {
		return nil, nats.ErrKeyDeleted
	}
	return entry.clone(), nil
}

func (s *stubKeyValue) Put(key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return 0, s.putErr
	}
	return s.putLocked(key, value), nil
}

func (s *stubKeyValue) putLocked(key string, value []byte) uint64 {
	s.rev++
	s.entries[key] = &stubEntry{
		bucket:   s.bucket,
		key:      key,
		value:    cloneBytes(value),
		revision: s.rev,
		created:  time.Now(),
		op:       nats.KeyValuePut,
	}
	return s.rev
}

func (s *stubKeyValue) Create(key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return 0, s.createErr
	}
	if existing, ok := s.entries[key]; ok && existing.op == nats.KeyValuePut {
		return 0, nats.ErrKeyExists
	}
	return s.putLocked(key, value), nil
}

func (s *stubKeyValue) Update(key string, value []byte, last uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	existing, ok := s.entries[key]
	if !ok || existing.op != nats.KeyValuePut {
		return 0, nats.ErrKeyNotFound
	}
	if existing.revision != last {
		return 0, nats.ErrKeyExists
	}
	return s.putLocked(key, value), nil
}

func (s *stubKeyValue) Delete(key string, _ ...nats.DeleteOpt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.rev++
	s.entries[key] = &stubEntry{
		bucket:   s.bucket,
		key:      key,
		revision: s.rev,
		created:  time.Now(),
		op:       nats.KeyValueDelete,
	}
	return nil
}

func (s *stubKeyValue) Purge(key string, _ ...nats.DeleteOpt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.purgeErr != nil {
		return s.purgeErr
	}
	delete(s.entries, key)
	return nil
}

func (s *stubKeyValue) ListKeys(_ ...nats.WatchOpt) (nats.KeyLister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if entry.op == nats.KeyValuePut {
			keys = append(keys, key)
		}
	}
	return newStubLister(keys), nil
}

type stubEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
	delta    uint64
	op       nats.KeyValueOp
}

func (e *stubEntry) clone() *stubEntry {
	cp := *e
	cp.value = cloneBytes(e.value)
	return &cp
}

func (e *stubEntry) Bucket() string             { return e.bucket }
func (e *stubEntry) Key() string                { return e.key }
func (e *stubEntry) Value() []byte              { return cloneBytes(e.value) }
func (e *stubEntry) Revision() uint64           { return e.revision }
func (e *stubEntry) Created() time.Time         { return e.created }
func (e *stubEntry) Delta() uint64              { return e.delta }
func (e *stubEntry) Operation() nats.KeyValueOp { return e.op }

type stubLister struct {
	keysCh chan string
	errCh  chan error
}

func newStubLister(keys []string) *stubLister {
	keysCh := make(chan string, len(keys))
	errCh := make(chan error)
	for _, key := range keys {
		keysCh <- key
	}
	close(keysCh)
	close(errCh)
	return &stubLister{keysCh: keysCh, errCh: errCh}
}

func (l *stubLister) Keys() <-chan string { return l.keysCh }
func (l *stubLister) Error() <-chan error { return l.errCh }
func (l *stubLister) Stop() error         { return nil }

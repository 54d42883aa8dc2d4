// persistence/memory.go
package persistence

import (
	"errors"
	"sync"

	"github.com/imposterparty/roomserver/models"
)

// MemoryStore 内存文档存储
//
// One mutex per document serializes every read-modify-write on that room,
// which is the whole concurrency contract: a transaction always sees the
// result of the previous commit, and two transactions on the same room
// never interleave. Transactions on different rooms run independently.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*memoryDoc
}

type memoryDoc struct {
	mu      sync.Mutex
	room    *models.Room
	subs    map[*Subscription]struct{}
	deleted bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*memoryDoc)}
}

func (s *MemoryStore) Create(room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[room.Code]; exists {
		return ErrAlreadyExists
	}
	s.docs[room.Code] = &memoryDoc{
		room: room.Clone(),
		subs: make(map[*Subscription]struct{}),
	}
	return nil
}

func (s *MemoryStore) Get(code string) (*models.Room, error) {
	doc, err := s.doc(code)
	if err != nil {
		return nil, err
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if doc.deleted {
		return nil, ErrNotFound
	}
	return doc.room.Clone(), nil
}

// Update runs mutate against a private copy of the current document and
// commits the result atomically. A mutate error aborts the transaction:
// nothing is committed, nothing is delivered to subscribers, and the error
// is returned verbatim (ErrRollback is swallowed, matching a deliberate
// no-op abort).
func (s *MemoryStore) Update(code string, mutate func(room *models.Room) error) (*models.Room, error) {
	doc, err := s.doc(code)
	if err != nil {
		return nil, err
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if doc.deleted {
		return nil, ErrNotFound
	}

	next := doc.room.Clone()
	if err := mutate(next); err != nil {
		if errors.Is(err, ErrRollback) {
			return doc.room.Clone(), nil
		}
		return nil, err
	}

	doc.room = next
	for sub := range doc.subs {
		sub.publish(Event{Room: next.Clone()})
	}
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(code string) error {
	s.mu.Lock()
	doc, exists := s.docs[code]
	if !exists {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.docs, code)
	s.mu.Unlock()

	doc.mu.Lock()
	defer doc.mu.Unlock()
	doc.deleted = true
	for sub := range doc.subs {
		sub.publish(Event{Deleted: true})
	}
	doc.subs = make(map[*Subscription]struct{})
	return nil
}

// Subscribe registers a listener on the room. The current snapshot is
// queued immediately, then one snapshot per committed change.
func (s *MemoryStore) Subscribe(code string) (*Subscription, error) {
	doc, err := s.doc(code)
	if err != nil {
		return nil, err
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if doc.deleted {
		return nil, ErrNotFound
	}

	var sub *Subscription
	sub = newSubscription(func() {
		doc.mu.Lock()
		delete(doc.subs, sub)
		doc.mu.Unlock()
	})
	doc.subs[sub] = struct{}{}
	sub.publish(Event{Room: doc.room.Clone()})
	return sub, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	docs := make([]*memoryDoc, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	s.docs = make(map[string]*memoryDoc)
	s.mu.Unlock()

	for _, doc := range docs {
		doc.mu.Lock()
		doc.deleted = true
		for sub := range doc.subs {
			sub.publish(Event{Deleted: true})
		}
		doc.subs = make(map[*Subscription]struct{})
		doc.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) doc(code string) (*memoryDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, exists := s.docs[code]
	if !exists {
		return nil, ErrNotFound
	}
	return doc, nil
}

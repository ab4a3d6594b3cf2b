package application

import (
	"container/list"
	"sync"
)

// tombstones remembers recent deletes so a retried delete with the same
// token succeeds after the record is gone.
type tombstones struct {
	mu    sync.Mutex
	limit int
	order *list.List
	byID  map[string]*list.Element
}

type tombstone struct {
	id    string
	actor string
	token string
}

func newTombstones(limit int) *tombstones {
	return &tombstones{
		limit: limit,
		order: list.New(),
		byID:  make(map[string]*list.Element),
	}
}

func (t *tombstones) add(id, actor, token string) {
	if token == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.byID[id]; ok {
		t.order.Remove(el)
	}
	t.byID[id] = t.order.PushBack(tombstone{id: id, actor: actor, token: token})
	for t.order.Len() > t.limit {
		oldest := t.order.Front()
		t.order.Remove(oldest)
		delete(t.byID, oldest.Value.(tombstone).id)
	}
}

// replay reports whether (id, actor, token) matches a remembered delete.
func (t *tombstones) replay(id, actor, token string) bool {
	if token == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.byID[id]
	if !ok {
		return false
	}
	ts := el.Value.(tombstone)
	return ts.actor == actor && ts.token == token
}

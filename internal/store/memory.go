package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is the in-process store used by tests and `--store memory`. A
// mutex-guarded map plus a sequence counter to preserve insertion order.
type Memory struct {
	mu   sync.RWMutex
	docs map[memKey]*memDoc
	seq  int64
	now  func() time.Time
}

type memKey struct {
	kind string
	id   string
}

type memDoc struct {
	doc *Document
	seq int64
}

func NewMemory() *Memory {
	return &Memory{
		docs: map[memKey]*memDoc{},
		now:  time.Now,
	}
}

func copyDoc(d *Document) *Document {
	out := *d
	out.Data = append([]byte(nil), d.Data...)
	if d.TS != nil {
		ts := *d.TS
		out.TS = &ts
	}
	return &out
}

func (m *Memory) Get(ctx context.Context, kind, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	md, ok := m.docs[memKey{kind, id}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(md.doc), nil
}

func (m *Memory) List(ctx context.Context, kind, owner string) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		doc *Document
		seq int64
	}
	var entries []entry
	for key, md := range m.docs {
		if key.kind != kind || md.doc.Owner != owner {
			continue
		}
		entries = append(entries, entry{copyDoc(md.doc), md.seq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]*Document, len(entries))
	for i, e := range entries {
		out[i] = e.doc
	}
	return out, nil
}

func (m *Memory) ListRange(ctx context.Context, kind, owner string, start, end time.Time) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Document
	for key, md := range m.docs {
		if key.kind != kind || md.doc.Owner != owner || md.doc.TS == nil {
			continue
		}
		ts := *md.doc.TS
		if ts.Before(start) || ts.After(end) {
			continue
		}
		out = append(out, copyDoc(md.doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(*out[j].TS) })
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey{doc.Kind, doc.ID}
	if _, ok := m.docs[key]; ok {
		return ErrExists
	}
	now := m.now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	m.seq++
	m.docs[key] = &memDoc{doc: copyDoc(doc), seq: m.seq}
	return nil
}

func (m *Memory) Update(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey{doc.Kind, doc.ID}
	md, ok := m.docs[key]
	if !ok {
		return ErrNotFound
	}
	doc.CreatedAt = md.doc.CreatedAt
	doc.UpdatedAt = m.now().UTC()
	m.docs[key] = &memDoc{doc: copyDoc(doc), seq: md.seq}
	return nil
}

func (m *Memory) Delete(ctx context.Context, kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey{kind, id}
	if _, ok := m.docs[key]; !ok {
		return ErrNotFound
	}
	delete(m.docs, key)
	return nil
}

func (m *Memory) Close() error { return nil }

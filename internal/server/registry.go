package server

import (
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/rdgram/internal/protocol/session"
)

// SessionInfo is the admin view of one driven session.
type SessionInfo struct {
	ID        uint64    `json:"id"`
	Role      string    `json:"role"`
	Peer      string    `json:"peer"`
	Private   string    `json:"private"`
	OpenedAt  time.Time `json:"opened_at"`
	Bytes     int64     `json:"bytes"`
	Transfers int64     `json:"transfers"`
	LastError string    `json:"last_error,omitempty"`
}

type entry struct {
	info      SessionInfo
	bytes     atomic.Int64
	transfers atomic.Int64
	mu        sync.Mutex
	lastErr   string
}

func (e *entry) record(n int) {
	e.bytes.Add(int64(n))
	e.transfers.Add(1)
}

func (e *entry) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = err.Error()
}

func (e *entry) snapshot() SessionInfo {
	out := e.info
	out.Bytes = e.bytes.Load()
	out.Transfers = e.transfers.Load()
	e.mu.Lock()
	out.LastError = e.lastErr
	e.mu.Unlock()
	return out
}

// Registry tracks sessions by a process-local id.
type Registry struct {
	seq   atomic.Uint64
	mu    sync.RWMutex
	items map[uint64]*entry
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[uint64]*entry)}
}

func (r *Registry) add(sess session.Session, now time.Time) *entry {
	e := &entry{info: SessionInfo{
		ID:       r.seq.Add(1),
		Role:     sess.Role.String(),
		Peer:     addrString(sess.PeerAddr()),
		Private:  addrString(sess.LocalAddr()),
		OpenedAt: now,
	}}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[e.info.ID] = e
	return e
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

func (r *Registry) Get(id uint64) (SessionInfo, bool) {
	r.mu.RLock()
	e, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return SessionInfo{}, false
	}
	return e.snapshot(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	out := make([]SessionInfo, 0, len(r.items))
	for _, e := range r.items {
		out = append(out, e.snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func addrString(a *net.UDPAddr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

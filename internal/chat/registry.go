package chat

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Directory resolves display names to delivery queues.
type Directory interface {
	LookupHandlesByName(name string) []*Outbound
}

// Registry maps live sessions to their outbound queue and display name.
// Both maps, plus the join order used for deterministic name resolution,
// are always mutated together under one lock, and the lock is released
// before anything is published.
type Registry struct {
	mu      sync.RWMutex
	handles map[SessionID]*Outbound
	names   map[SessionID]string
	joined  map[SessionID]uint64
	seq     uint64

	broadcast *Broadcast
	log       *slog.Logger
}

// NewRegistry creates an empty registry announcing joins and departures on
// broadcast.
func NewRegistry(broadcast *Broadcast, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		handles:   make(map[SessionID]*Outbound),
		names:     make(map[SessionID]string),
		joined:    make(map[SessionID]uint64),
		broadcast: broadcast,
		log:       log,
	}
}

// Register adds a session and announces it. Ids are generated by sessions,
// so a duplicate means a programming error.
func (r *Registry) Register(id SessionID, name string, out *Outbound) error {
	r.mu.Lock()
	if _, exists := r.handles[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	r.seq++
	r.handles[id] = out
	r.names[id] = name
	r.joined[id] = r.seq
	count := len(r.handles)
	r.mu.Unlock()

	r.log.Info("session registered", "session", id, "name", name, "sessions", count)
	r.announce(SystemEvent{Kind: SystemJoined, DisplayName: name})
	return nil
}

// Unregister removes a session and announces its departure. It reports
// whether the session was present; a second call for the same id is a
// logged no-op.
func (r *Registry) Unregister(id SessionID) bool {
	r.mu.Lock()
	name, hasName := r.names[id]
	_, hasHandle := r.handles[id]
	if !hasName && !hasHandle {
		r.mu.Unlock()
		r.log.Warn("unregister of unknown session", "session", id)
		return false
	}
	delete(r.handles, id)
	delete(r.names, id)
	delete(r.joined, id)
	count := len(r.handles)
	r.mu.Unlock()

	if hasName != hasHandle {
		r.log.Error("registry entry was half-present", "session", id, "error", ErrRegistryInconsistent)
	}
	r.log.Info("session unregistered", "session", id, "name", name, "sessions", count)
	r.announce(SystemEvent{Kind: SystemLeft, DisplayName: name})
	return true
}

func (r *Registry) announce(ev SystemEvent) {
	if r.broadcast == nil {
		return
	}
	r.broadcast.Publish(EncodeSystem(ev.Text()))
}

// LookupHandleByName returns the queue of the earliest-joined live session
// registered under name.
func (r *Registry) LookupHandleByName(name string) (*Outbound, bool) {
	handles := r.LookupHandlesByName(name)
	if len(handles) == 0 {
		return nil, false
	}
	return handles[0], true
}

// LookupHandlesByName returns the queues of every live session registered
// under name, in join order. Names match exactly.
func (r *Registry) LookupHandlesByName(name string) []*Outbound {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []SessionID
	for id, n := range r.names {
		if n == name {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return r.joined[ids[i]] < r.joined[ids[j]] })

	handles := make([]*Outbound, 0, len(ids))
	for _, id := range ids {
		handles = append(handles, r.handles[id])
	}
	return handles
}

// SnapshotNames returns the sorted, de-duplicated display names of every
// connected session.
func (r *Registry) SnapshotNames() []string {
	r.mu.RLock()
	names := lo.Uniq(lo.Values(r.names))
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Snapshot copies the name-to-queue mapping, in join order per name.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.names)
	sort.Slice(ids, func(i, j int) bool { return r.joined[ids[i]] < r.joined[ids[j]] })

	snap := make(Snapshot, len(ids))
	for _, id := range ids {
		name := r.names[id]
		snap[name] = append(snap[name], r.handles[id])
	}
	return snap
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[id]
	return ok
}

// CheckConsistency verifies that every map holds the same set of sessions.
func (r *Registry) CheckConsistency() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.handles) != len(r.names) || len(r.handles) != len(r.joined) {
		return fmt.Errorf("%w: %d handles, %d names, %d join records",
			ErrRegistryInconsistent, len(r.handles), len(r.names), len(r.joined))
	}
	for id := range r.handles {
		if _, ok := r.names[id]; !ok {
			return fmt.Errorf("%w: %s has a handle but no name", ErrRegistryInconsistent, id)
		}
		if _, ok := r.joined[id]; !ok {
			return fmt.Errorf("%w: %s has no join record", ErrRegistryInconsistent, id)
		}
	}
	return nil
}

// Snapshot is a point-in-time copy of the registry's name resolution.
type Snapshot map[string][]*Outbound

// LookupHandlesByName implements Directory.
func (s Snapshot) LookupHandlesByName(name string) []*Outbound {
	return s[name]
}

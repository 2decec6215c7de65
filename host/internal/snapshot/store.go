package snapshot

import "sync"

// DefaultCap is how many snapshots a session retains before eviction.
const DefaultCap = 20

// Store is the bounded per-session snapshot cache. Overflow evicts the
// snapshot with the lowest epoch; eviction is never an error.
type Store struct {
	mu    sync.Mutex
	cap   int
	byID  map[string]*Snapshot
	order []*Snapshot // ascending epoch
}

// NewStore creates a Store retaining at most capacity snapshots.
// capacity <= 0 uses DefaultCap.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Store{cap: capacity, byID: make(map[string]*Snapshot, capacity)}
}

// Put stores a snapshot, evicting the oldest by epoch when full.
func (st *Store) Put(s *Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.byID[s.ID] = s
	st.order = append(st.order, s)
	for len(st.order) > st.cap {
		oldest := st.order[0]
		st.order = st.order[1:]
		delete(st.byID, oldest.ID)
	}
}

// Get returns the snapshot for id, or nil when missing or evicted.
func (st *Store) Get(id string) *Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.byID[id]
}

// Latest returns the snapshot with the highest epoch, or nil when empty.
func (st *Store) Latest() *Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.order) == 0 {
		return nil
	}
	return st.order[len(st.order)-1]
}

// Len reports how many snapshots are retained.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.order)
}

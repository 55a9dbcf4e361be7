package syncer

import (
	"sync"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
)

// subBuffer is the per-subscriber channel depth. Slow subscribers skip
// intermediate states rather than blocking the session.
const subBuffer = 16

// stateHub holds the observable sync state per owner and fans updates
// out to subscribers.
type stateHub struct {
	mu     sync.Mutex
	states map[string]domain.SyncState
	subs   map[string]map[int]chan domain.SyncState
	nextID int
}

func newStateHub() *stateHub {
	return &stateHub{
		states: make(map[string]domain.SyncState),
		subs:   make(map[string]map[int]chan domain.SyncState),
	}
}

// get returns the owner's current state; owners never synced are idle
func (h *stateHub) get(ownerID string) domain.SyncState {
	h.mu.Lock()
	defer h.mu.Unlock()

	if st, ok := h.states[ownerID]; ok {
		return st
	}
	return domain.SyncIdle()
}

// set updates the owner's state and notifies subscribers without
// blocking: a full subscriber buffer drops the oldest update.
func (h *stateHub) set(ownerID string, st domain.SyncState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.states[ownerID] = st
	for _, ch := range h.subs[ownerID] {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

// subscribe registers a state listener for an owner. The returned
// cancel function must be called to release the subscription.
func (h *stateHub) subscribe(ownerID string) (<-chan domain.SyncState, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[int]chan domain.SyncState)
	}
	id := h.nextID
	h.nextID++

	ch := make(chan domain.SyncState, subBuffer)
	h.subs[ownerID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs := h.subs[ownerID]; subs != nil {
			delete(subs, id)
		}
	}
	return ch, cancel
}

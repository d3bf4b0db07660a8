package host

import (
	"sync"

	"github.com/google/uuid"
)

// Runtime is one embedding of the host object runtime. Every call into the
// object model assumes the caller already holds the runtime's execution lock,
// same as the host's global interpreter lock. Nothing in this package takes
// the lock on its own behalf, the embedder brackets its calls with it.
type Runtime struct {
	gil sync.Mutex

	// handle heap. Instance regions are raw bytes, so any go value that a
	// region cell needs to reference is pinned here behind a non zero
	// handle. Handle 0 is reserved to mean an empty cell.
	heap   map[uint64]Value
	nextid uint64

	// weak reference registry, token -> referent. An entry is removed when
	// the referent clears its weakref list during teardown, which is what
	// invalidates every outstanding Weakref carrying that token.
	weaktab map[uuid.UUID]*Object

	// allocator accounting, used for leak checking
	liveobj int
}

func NewRuntime() *Runtime {
	return &Runtime{
		heap:    make(map[uint64]Value),
		weaktab: make(map[uuid.UUID]*Object),
	}
}

// Lock acquires the runtime's execution lock. The object model itself never
// calls this, it just documents the contract the embedder must follow.
func (r *Runtime) Lock() {
	r.gil.Lock()
}

func (r *Runtime) Unlock() {
	r.gil.Unlock()
}

// Pin stores a go value in the runtime heap and returns its handle. The
// handle stays valid until Release, regardless of what the collector on the
// go side does with other references to the value.
func (r *Runtime) Pin(v Value) uint64 {
	r.nextid++
	h := r.nextid
	r.heap[h] = v
	return h
}

func (r *Runtime) Resolve(h uint64) (Value, bool) {
	v, ok := r.heap[h]
	return v, ok
}

func (r *Runtime) Release(h uint64) {
	delete(r.heap, h)
}

// HeapSize reports how many values are currently pinned. Teardown paths are
// expected to bring this back to where they found it.
func (r *Runtime) HeapSize() int {
	return len(r.heap)
}

// LiveObjectCount reports how many instance regions are currently allocated.
func (r *Runtime) LiveObjectCount() int {
	return r.liveobj
}

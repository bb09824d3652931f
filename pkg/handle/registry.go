package handle

import (
	"sync"
	"sync/atomic"

	"github.com/Faultbox/nifbridge/pkg/status"
)

// Registry is a generation-checked handle table. It is safe for concurrent
// use; the lock is held only for table work.
type Registry struct {
	slots     []slot
	free      []uint32
	live      int
	max       int
	salt      uint32
	closed    bool
	mu        sync.RWMutex
	observers []Observer
}

type slot struct {
	value    any
	children map[Handle]struct{}
	owner    Handle
	gen      uint32
	kind     Kind
	live     bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxHandles caps the number of simultaneously live handles.
// Zero means unlimited.
func WithMaxHandles(n int) Option {
	return func(r *Registry) {
		r.max = n
	}
}

// WithObserver subscribes o to lifecycle events.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observers = append(r.observers, o)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		slots: make([]slot, 0, 64),
		free:  make([]uint32, 0, 16),
		salt:  nextSalt(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var registries atomic.Uint32

// nextSalt spreads consecutive registries across the generation space.
// The multiplier is odd, so salts repeat only after 1<<genBits registries.
func nextSalt() uint32 {
	return (registries.Add(1) * 0x9E3779B1) & genMask
}

func invalid(op string, h Handle, format string, args ...any) *status.Error {
	return status.New(status.InvalidHandle).Op(op).Detail(h.String()+": "+format, args...).Build()
}

// lookup returns the live slot for h. Caller holds mu.
func (r *Registry) lookup(op string, h Handle) (*slot, error) {
	idx := h.Index()
	if h == 0 || idx < 0 || idx >= len(r.slots) {
		return nil, invalid(op, h, "never issued")
	}
	s := &r.slots[idx]
	if !s.live || s.gen != h.Generation() || s.kind != h.Kind() {
		return nil, invalid(op, h, "released or stale")
	}
	return s, nil
}

// Create stores value under a new handle of the given kind. A non-zero
// owner must be live; the new handle is released together with it.
func (r *Registry) Create(kind Kind, owner Handle, value any) (Handle, error) {
	if kind == KindInvalid {
		return 0, status.New(status.InvalidHandle).Op("create").Detail("invalid kind").Build()
	}

	h, err := r.create(kind, owner, value)
	if err != nil {
		return 0, err
	}

	r.notify(Event{Type: EventCreated, Handle: h, Owner: owner, Kind: kind, Value: value})
	return h, nil
}

func (r *Registry) create(kind Kind, owner Handle, value any) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, status.New(status.ModelLibraryFailure).Op("create").Detail("registry closed").Build()
	}
	if r.max > 0 && r.live >= r.max {
		return 0, status.New(status.ModelLibraryFailure).Op("create").Detail("registry full (%d handles)", r.max).Build()
	}

	var parent *slot
	if owner != 0 {
		var err error
		if parent, err = r.lookup("create", owner); err != nil {
			return 0, err
		}
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{gen: r.salt})
		idx = uint32(len(r.slots) - 1)
	}

	s := &r.slots[idx]
	s.gen = nextGen(s.gen)
	s.kind = kind
	s.value = value
	s.owner = owner
	s.live = true
	r.live++

	h := pack(idx, s.gen, kind)
	if parent != nil {
		if parent.children == nil {
			parent.children = make(map[Handle]struct{})
		}
		parent.children[h] = struct{}{}
	}
	return h, nil
}

func nextGen(gen uint32) uint32 {
	gen = (gen + 1) & genMask
	if gen == 0 {
		gen = 1
	}
	return gen
}

// Resolve returns the value stored under h if h is live and of kind.
func (r *Registry) Resolve(h Handle, kind Kind) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.lookup("resolve", h)
	if err != nil {
		return nil, err
	}
	if s.kind != kind {
		return nil, invalid("resolve", h, "is a %s handle, want %s", s.kind, kind)
	}
	return s.value, nil
}

// Owner returns the handle h was created under, 0 for top-level handles.
func (r *Registry) Owner(h Handle) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.lookup("owner", h)
	if err != nil {
		return 0, err
	}
	return s.owner, nil
}

// Valid reports whether h is live.
func (r *Registry) Valid(h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, err := r.lookup("valid", h)
	return err == nil
}

// Release invalidates h and every handle owned by it.
func (r *Registry) Release(h Handle) error {
	events, err := r.release(h)
	if err != nil {
		return err
	}
	r.finish(events)
	return nil
}

func (r *Registry) release(h Handle) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookup("release", h)
	if err != nil {
		return nil, err
	}

	if s.owner != 0 {
		if parent, err := r.lookup("release", s.owner); err == nil {
			delete(parent.children, h)
		}
	}

	return r.drop(h, nil), nil
}

// drop frees h and its children, depth first. Caller holds mu.
func (r *Registry) drop(h Handle, events []Event) []Event {
	s := &r.slots[h.Index()]
	for child := range s.children {
		events = r.drop(child, events)
	}

	events = append(events, Event{Type: EventReleased, Handle: h, Owner: s.owner, Kind: s.kind, Value: s.value})

	s.value = nil
	s.children = nil
	s.owner = 0
	s.live = false
	r.live--
	r.free = append(r.free, uint32(h.Index()))
	return events
}

// finish runs observers outside the table lock.
func (r *Registry) finish(events []Event) {
	for _, e := range events {
		r.notify(e)
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// Close releases every live handle and rejects further creates.
func (r *Registry) Close() error {
	events := r.closeAll()
	r.finish(events)
	return nil
}

func (r *Registry) closeAll() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var events []Event
	for i := range r.slots {
		s := &r.slots[i]
		if s.live && s.owner == 0 {
			events = r.drop(pack(uint32(i), s.gen, s.kind), events)
		}
	}
	return events
}

func (r *Registry) notify(e Event) {
	for _, o := range r.observers {
		o.OnHandleEvent(e)
	}
}

// Resolve returns the value under h as T.
func Resolve[T any](r *Registry, h Handle, kind Kind) (T, error) {
	var zero T
	v, err := r.Resolve(h, kind)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, invalid("resolve", h, "holds %T", v)
	}
	return t, nil
}

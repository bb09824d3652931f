package handle

import "fmt"

// Handle is an opaque reference to a registry slot.
// Handle 0 is reserved and always invalid.
type Handle uint64

const (
	indexBits = 32
	genBits   = 24
	genMask   = 1<<genBits - 1
	kindShift = indexBits + genBits
)

func pack(index uint32, gen uint32, kind Kind) Handle {
	return Handle(uint64(index)+1) | Handle(gen&genMask)<<indexBits | Handle(kind)<<kindShift
}

// Index returns the slot index, or -1 for the zero handle.
func (h Handle) Index() int {
	return int(uint32(h)) - 1
}

// Generation returns the handle's generation.
func (h Handle) Generation() uint32 {
	return uint32(h>>indexBits) & genMask
}

// Kind returns the kind the handle was issued for.
func (h Handle) Kind() Kind {
	return Kind(h >> kindShift)
}

func (h Handle) String() string {
	if h == 0 {
		return "handle(nil)"
	}
	return fmt.Sprintf("%s#%d.%d", h.Kind(), h.Index(), h.Generation())
}

// Kind categorizes what a handle refers to.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindAsset
	KindNode
	KindShape
)

func (k Kind) String() string {
	switch k {
	case KindAsset:
		return "asset"
	case KindNode:
		return "node"
	case KindShape:
		return "shape"
	default:
		return "invalid"
	}
}

// EventType identifies a lifecycle event.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

func (t EventType) String() string {
	if t == EventCreated {
		return "created"
	}
	return "released"
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Owner  Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

package status

import "sync"

// Scope selects a last-error slot.
type Scope uint8

const (
	ScopeLibrary Scope = iota
	ScopeAsset
	ScopeNode
	ScopeShape

	scopeCount
)

func (s Scope) String() string {
	switch s {
	case ScopeLibrary:
		return "library"
	case ScopeAsset:
		return "asset"
	case ScopeNode:
		return "node"
	case ScopeShape:
		return "shape"
	default:
		return "unknown"
	}
}

// Slots holds the last failure message per scope. The zero value is ready
// to use.
type Slots struct {
	mu   sync.Mutex
	msgs [scopeCount]string
}

// Record stores err's message in the scope's slot, or clears the slot when
// err is nil, and returns err's code.
func (s *Slots) Record(scope Scope, err error) Code {
	if scope >= scopeCount {
		scope = ScopeLibrary
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.msgs[scope] = ""
		return OK
	}
	s.msgs[scope] = err.Error()
	return CodeOf(err)
}

// Message returns the scope's last failure message, empty if the last call
// succeeded.
func (s *Slots) Message(scope Scope) string {
	if scope >= scopeCount {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[scope]
}

// Copy writes the scope's message into dst. A short dst is left untouched
// and a BufferTooSmall error carrying the message length is returned.
func (s *Slots) Copy(scope Scope, dst []byte) (int, error) {
	msg := s.Message(scope)
	if len(dst) < len(msg) {
		return 0, TooSmall("last_error", len(msg), len(dst))
	}
	return copy(dst, msg), nil
}

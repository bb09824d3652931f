package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/nifbridge/pkg/handle"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/status"
)

// Handle is an opaque asset, node or shape reference.
type Handle = handle.Handle

// Library is the model library the bridge delegates load and save to.
type Library interface {
	Load(path string) (*nifly.File, error)
	LoadBytes(data []byte) (*nifly.File, error)
	Save(f *nifly.File, path string) error
	SaveBytes(f *nifly.File) ([]byte, error)
	New(game nifly.Game, rootName string) *nifly.File
}

// Bridge is the boundary surface.
type Bridge struct {
	lib   Library
	reg   *handle.Registry
	slots status.Slots
	log   *zap.Logger

	maxHandles int
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger. Failures are logged at debug level.
func WithLogger(log *zap.Logger) Option {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

// WithMaxHandles caps the number of live handles. Zero means unlimited.
func WithMaxHandles(n int) Option {
	return func(b *Bridge) {
		b.maxHandles = n
	}
}

// New creates a bridge over lib.
func New(lib Library, opts ...Option) *Bridge {
	b := &Bridge{
		lib: lib,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.reg = handle.NewRegistry(
		handle.WithMaxHandles(b.maxHandles),
		handle.WithObserver(handle.NewLogObserver(b.log)),
	)
	return b
}

// Close releases every handle.
func (b *Bridge) Close() error {
	return b.reg.Close()
}

// Live returns the number of live handles.
func (b *Bridge) Live() int {
	return b.reg.Len()
}

// asset is the registry value behind an asset handle.
type asset struct {
	file *nifly.File
	self Handle

	// Handle caches so enumeration hands out one handle per object.
	mu     sync.Mutex
	nodes  []Handle
	shapes []*shapeRef
}

type nodeRef struct {
	asset *asset
	index int
}

func (r *nodeRef) node() *nifly.Node {
	return &r.asset.file.Nodes[r.index]
}

type shapeRef struct {
	asset *asset
	index int
	self  Handle

	// bones is the caller-visible bone order, node indices. It only grows
	// until the next skin import replaces it.
	bones []int
}

func (r *shapeRef) shape() *nifly.Shape {
	return &r.asset.file.Shapes[r.index]
}

// call runs fn, recovering panics, and records the outcome in scope's slot.
func (b *Bridge) call(scope status.Scope, op string, fn func() error) status.Code {
	var err error
	func() {
		defer status.Recover(op, &err)
		err = fn()
	}()

	code := b.slots.Record(scope, err)
	if err != nil {
		b.log.Debug("bridge call failed",
			zap.String("op", op),
			zap.Stringer("code", code),
			zap.Stringer("scope", scope),
			zap.Error(err),
		)
	}
	return code
}

func (b *Bridge) resolveAsset(op string, h Handle) (*asset, error) {
	a, err := handle.Resolve[*asset](b.reg, h, handle.KindAsset)
	if err != nil {
		return nil, withOp(err, op)
	}
	return a, nil
}

func (b *Bridge) resolveNode(op string, h Handle) (*nodeRef, error) {
	n, err := handle.Resolve[*nodeRef](b.reg, h, handle.KindNode)
	if err != nil {
		return nil, withOp(err, op)
	}
	return n, nil
}

func (b *Bridge) resolveShape(op string, h Handle) (*shapeRef, error) {
	s, err := handle.Resolve[*shapeRef](b.reg, h, handle.KindShape)
	if err != nil {
		return nil, withOp(err, op)
	}
	return s, nil
}

// withOp names the boundary operation on registry errors.
func withOp(err error, op string) error {
	if se, ok := err.(*status.Error); ok {
		c := *se
		c.Op = op + ": " + se.Op
		return &c
	}
	return err
}

// nodeHandle returns the live handle for node i, issuing one if needed.
func (b *Bridge) nodeHandle(a *asset, i int) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i < len(a.nodes) && a.nodes[i] != 0 && b.reg.Valid(a.nodes[i]) {
		return a.nodes[i], nil
	}
	h, err := b.reg.Create(handle.KindNode, a.self, &nodeRef{asset: a, index: i})
	if err != nil {
		return 0, err
	}
	for len(a.nodes) <= i {
		a.nodes = append(a.nodes, 0)
	}
	a.nodes[i] = h
	return h, nil
}

// shapeHandle returns the live handle for shape i, issuing one if needed.
func (b *Bridge) shapeHandle(a *asset, i int) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i < len(a.shapes) && a.shapes[i] != nil && b.reg.Valid(a.shapes[i].self) {
		return a.shapes[i].self, nil
	}
	ref := &shapeRef{asset: a, index: i}
	h, err := b.reg.Create(handle.KindShape, a.self, ref)
	if err != nil {
		return 0, err
	}
	ref.self = h
	for len(a.shapes) <= i {
		a.shapes = append(a.shapes, nil)
	}
	a.shapes[i] = ref
	return h, nil
}

// sameAsset resolves a node handle that must belong to a.
func (b *Bridge) sameAsset(op string, a *asset, h Handle) (*nodeRef, error) {
	n, err := b.resolveNode(op, h)
	if err != nil {
		return nil, err
	}
	if n.asset != a {
		return nil, status.New(status.InvalidHandle).Op(op).Detail("%s belongs to another asset", h).Build()
	}
	return n, nil
}

// copyString copies s into dst.
func copyString(op, s string, dst []byte) (int, error) {
	if len(dst) < len(s) {
		return len(s), status.TooSmall(op, len(s), len(dst))
	}
	return copy(dst, s), nil
}

// LastError copies the last failure message of scope into dst. It does not
// touch the slots itself.
func (b *Bridge) LastError(scope status.Scope, dst []byte) (int, status.Code) {
	n, err := b.slots.Copy(scope, dst)
	if err != nil {
		return status.RequiredOf(err), status.CodeOf(err)
	}
	return n, status.OK
}

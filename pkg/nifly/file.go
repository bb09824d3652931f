package nifly

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Faultbox/nifbridge/pkg/math"
)

// MaxVertices is the largest vertex count a shape can hold; triangle
// indices are 16-bit.
const MaxVertices = 1 << 16

// RootName is the name given to the root node of new files.
const RootName = "Scene Root"

var (
	ErrInvalidMagic       = errors.New("invalid model file magic")
	ErrUnsupportedVersion = errors.New("unsupported model file version")
	ErrUnknownGame        = errors.New("unknown game")
	ErrNoRoot             = errors.New("file has no root node")
	ErrInvalidParent      = errors.New("invalid parent")
	ErrCyclicParent       = errors.New("cyclic parent chain")
	ErrDuplicateNode      = errors.New("duplicate node name")
	ErrMalformedShape     = errors.New("malformed shape")
	ErrInvalidSkin        = errors.New("invalid skin")
	ErrNonMonotonicTime   = errors.New("key times decrease")
	ErrStrict             = errors.New("rejected in strict mode")
)

// Node is a skeleton or grouping node.
type Node struct {
	Name      string
	Parent    int // -1 for the root
	Transform math.Transform
	Flags     uint32

	// Collision names the collision object block attached to the node,
	// empty for none. Collision shapes are carried, not modelled.
	Collision string
}

// Partition is a body part or segment a shape's triangles are assigned to.
type Partition struct {
	ID   uint16
	Name string
}

// BoneWeight is one vertex influenced by a bone.
type BoneWeight struct {
	Vertex uint16
	Weight float32
}

// Skin binds a shape to skeleton nodes.
type Skin struct {
	Bones        []int          // node indices
	Weights      [][]BoneWeight // per bone
	SkinToBone   []math.Transform
	GlobalToSkin math.Transform
}

// Shape is a triangle mesh.
type Shape struct {
	Name      string
	Parent    int // -1 when the shape hangs off nothing
	Transform math.Transform

	Vertices  []math.Vec3
	Triangles [][3]uint16
	Normals   []math.Vec3  // empty or one per vertex
	UVs       []math.Vec2  // empty or one per vertex
	Colors    [][4]float32 // RGBA, empty or one per vertex

	Partitions    []Partition
	PartitionTris []uint16 // per triangle, index into Partitions
	SegmentFile   string

	Skin *Skin

	// ExtraChannels names vertex channels the model carries but this
	// package does not model (tangents, eye data, ...).
	ExtraChannels []string

	Extra     []ExtraData
	Collision string
}

// KeyType is the interpolation type recorded on a track's rotation keys.
type KeyType uint32

const (
	KeyLinear    KeyType = 1
	KeyQuadratic KeyType = 2
	KeyTBC       KeyType = 3
	KeyXYZ       KeyType = 4
	KeyConst     KeyType = 5
)

func (k KeyType) String() string {
	switch k {
	case KeyLinear:
		return "linear"
	case KeyQuadratic:
		return "quadratic"
	case KeyTBC:
		return "tbc"
	case KeyXYZ:
		return "xyz"
	case KeyConst:
		return "const"
	default:
		return fmt.Sprintf("key(%d)", uint32(k))
	}
}

// TransformKey is one animation sample.
type TransformKey struct {
	Time        float32
	Translation math.Vec3
	Rotation    math.Quat
	Scale       float32
}

// TransformTrack is the keyed transform of one node.
type TransformTrack struct {
	RotationType KeyType
	Keys         []TransformKey
}

// TransformController is the only controller type tracks are read from.
const TransformController = "NiTransformController"

// ControlledBlock targets one node from a sequence.
type ControlledBlock struct {
	NodeName       string
	ControllerType string
	Track          TransformTrack
}

// Sequence is a named animation.
type Sequence struct {
	Name      string
	StartTime float32
	StopTime  float32
	Blocks    []ControlledBlock
}

// File is a complete model graph.
type File struct {
	ID        uuid.UUID
	Game      Game
	Nodes     []Node
	Shapes    []Shape
	Sequences []Sequence

	// Extra holds the root's extra data records.
	Extra []ExtraData
}

// NewFile creates a file holding only a root node.
func NewFile(game Game, rootName string) *File {
	if rootName == "" {
		rootName = RootName
	}
	return &File{
		ID:   uuid.New(),
		Game: game,
		Nodes: []Node{{
			Name:      rootName,
			Parent:    -1,
			Transform: math.IdentityTransform(),
		}},
	}
}

// FindNode returns the index of the named node, or -1.
func (f *File) FindNode(name string) int {
	for i := range f.Nodes {
		if f.Nodes[i].Name == name {
			return i
		}
	}
	return -1
}

// AddNode appends a node under parent and returns its index.
func (f *File) AddNode(name string, parent int, xf math.Transform) (int, error) {
	if parent < 0 || parent >= len(f.Nodes) {
		return -1, fmt.Errorf("%w: node %q parent %d", ErrInvalidParent, name, parent)
	}
	if f.FindNode(name) >= 0 {
		return -1, fmt.Errorf("%w: %q", ErrDuplicateNode, name)
	}
	f.Nodes = append(f.Nodes, Node{Name: name, Parent: parent, Transform: xf})
	return len(f.Nodes) - 1, nil
}

// AddShape validates s and appends it.
func (f *File) AddShape(s Shape) (int, error) {
	if s.Parent < -1 || s.Parent >= len(f.Nodes) {
		return -1, fmt.Errorf("%w: shape %q parent %d", ErrInvalidParent, s.Name, s.Parent)
	}
	if err := s.Validate(len(f.Nodes)); err != nil {
		return -1, err
	}
	f.Shapes = append(f.Shapes, s)
	return len(f.Shapes) - 1, nil
}

// GlobalTransform composes local transforms from the root down to node i.
func (f *File) GlobalTransform(i int) (math.Transform, error) {
	if i < 0 || i >= len(f.Nodes) {
		return math.Transform{}, fmt.Errorf("%w: node %d", ErrInvalidParent, i)
	}

	// Walk up collecting the chain, bounded by the node count.
	chain := make([]int, 0, 8)
	for n := i; n >= 0; n = f.Nodes[n].Parent {
		if len(chain) > len(f.Nodes) {
			return math.Transform{}, fmt.Errorf("%w: at node %q", ErrCyclicParent, f.Nodes[i].Name)
		}
		if n >= len(f.Nodes) {
			return math.Transform{}, fmt.Errorf("%w: node %d", ErrInvalidParent, n)
		}
		chain = append(chain, n)
	}

	global := math.IdentityTransform()
	for j := len(chain) - 1; j >= 0; j-- {
		global = global.Compose(f.Nodes[chain[j]].Transform)
	}
	return global, nil
}

// FindSequence returns the index of the named sequence, or -1.
func (f *File) FindSequence(name string) int {
	for i := range f.Sequences {
		if f.Sequences[i].Name == name {
			return i
		}
	}
	return -1
}

// Block returns the controlled block targeting node, or nil.
func (s *Sequence) Block(node string) *ControlledBlock {
	for i := range s.Blocks {
		if s.Blocks[i].NodeName == node {
			return &s.Blocks[i]
		}
	}
	return nil
}

// WeightCount returns the number of (vertex, bone) pairs in the skin.
func (s *Skin) WeightCount() int {
	n := 0
	for _, bw := range s.Weights {
		n += len(bw)
	}
	return n
}

package bridge

import (
	"github.com/Faultbox/nifbridge/pkg/math"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/status"
)

// TransformFloats is the flat transform length.
const TransformFloats = math.TransformFloats

func putTransform(op string, xf math.Transform, dst []float32) error {
	if len(dst) < TransformFloats {
		return status.TooSmall(op, TransformFloats, len(dst))
	}
	xf.Flatten(dst)
	return nil
}

func readTransform(op string, src []float32) (math.Transform, error) {
	if len(src) != TransformFloats {
		return math.Transform{}, status.Malformed(op, "transform has %d floats, want %d", len(src), TransformFloats)
	}
	return math.TransformFromFloats(src), nil
}

// NodeName copies the node's name into dst.
func (b *Bridge) NodeName(h Handle, dst []byte) (n int, code status.Code) {
	code = b.call(status.ScopeNode, "node_name", func() error {
		r, err := b.resolveNode("node_name", h)
		if err != nil {
			return err
		}
		n, err = copyString("node_name", r.node().Name, dst)
		return err
	})
	return n, code
}

// NodeParent returns the parent node handle, or 0 for the root.
func (b *Bridge) NodeParent(h Handle) (parent Handle, code status.Code) {
	code = b.call(status.ScopeNode, "node_parent", func() error {
		r, err := b.resolveNode("node_parent", h)
		if err != nil {
			return err
		}
		if p := r.node().Parent; p >= 0 {
			parent, err = b.nodeHandle(r.asset, p)
		}
		return err
	})
	return parent, code
}

// LocalTransform writes the node's transform relative to its parent.
func (b *Bridge) LocalTransform(h Handle, dst []float32) status.Code {
	return b.call(status.ScopeNode, "local_transform", func() error {
		r, err := b.resolveNode("local_transform", h)
		if err != nil {
			return err
		}
		return putTransform("local_transform", r.node().Transform, dst)
	})
}

// GlobalTransform writes the node's transform relative to the root: the
// product of local transforms from the root down to the node.
func (b *Bridge) GlobalTransform(h Handle, dst []float32) status.Code {
	return b.call(status.ScopeNode, "global_transform", func() error {
		r, err := b.resolveNode("global_transform", h)
		if err != nil {
			return err
		}
		if len(dst) < TransformFloats {
			return status.TooSmall("global_transform", TransformFloats, len(dst))
		}
		xf, err := r.asset.file.GlobalTransform(r.index)
		if err != nil {
			return status.Library("global_transform", err)
		}
		xf.Flatten(dst)
		return nil
	})
}

// SetLocalTransform replaces the node's local transform.
func (b *Bridge) SetLocalTransform(h Handle, src []float32) status.Code {
	return b.call(status.ScopeNode, "set_local_transform", func() error {
		r, err := b.resolveNode("set_local_transform", h)
		if err != nil {
			return err
		}
		xf, err := readTransform("set_local_transform", src)
		if err != nil {
			return err
		}
		r.node().Transform = xf
		return nil
	})
}

// AddNode adds a named node under parent, which must belong to the asset.
func (b *Bridge) AddNode(h Handle, name string, parent Handle, src []float32) (node Handle, code status.Code) {
	code = b.call(status.ScopeAsset, "add_node", func() error {
		a, err := b.resolveAsset("add_node", h)
		if err != nil {
			return err
		}
		p, err := b.sameAsset("add_node", a, parent)
		if err != nil {
			return err
		}
		xf, err := readTransform("add_node", src)
		if err != nil {
			return err
		}
		i, err := a.file.AddNode(name, p.index, xf)
		if err != nil {
			return status.Library("add_node", err)
		}
		node, err = b.nodeHandle(a, i)
		return err
	})
	return node, code
}

// ShapeTransform writes the shape's transform relative to its parent node.
func (b *Bridge) ShapeTransform(h Handle, dst []float32) status.Code {
	return b.call(status.ScopeShape, "shape_transform", func() error {
		s, err := b.resolveShape("shape_transform", h)
		if err != nil {
			return err
		}
		return putTransform("shape_transform", s.shape().Transform, dst)
	})
}

// SetShapeTransform replaces the shape's transform.
func (b *Bridge) SetShapeTransform(h Handle, src []float32) status.Code {
	return b.call(status.ScopeShape, "set_shape_transform", func() error {
		s, err := b.resolveShape("set_shape_transform", h)
		if err != nil {
			return err
		}
		xf, err := readTransform("set_shape_transform", src)
		if err != nil {
			return err
		}
		s.shape().Transform = xf
		return nil
	})
}

// bindPose is the skin-to-bone transform of a bone with no recorded one:
// the inverse of its rest global transform.
func bindPose(f *nifly.File, node int) math.Transform {
	global, err := f.GlobalTransform(node)
	if err != nil {
		return math.IdentityTransform()
	}
	return global.Inverse()
}

package bridge

import (
	"go.uber.org/zap"

	"github.com/Faultbox/nifbridge/pkg/handle"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/status"
)

func (b *Bridge) register(op string, f *nifly.File) (Handle, error) {
	a := &asset{file: f}
	h, err := b.reg.Create(handle.KindAsset, 0, a)
	if err != nil {
		return 0, withOp(err, op)
	}
	a.self = h
	b.log.Debug("asset opened", zap.String("op", op), zap.Stringer("asset_id", f.ID), zap.Stringer("handle", h))
	return h, nil
}

// LoadAsset loads a model through the library.
func (b *Bridge) LoadAsset(path string) (h Handle, code status.Code) {
	code = b.call(status.ScopeLibrary, "load_asset", func() error {
		f, err := b.lib.Load(path)
		if err != nil {
			return status.Library("load_asset", err)
		}
		h, err = b.register("load_asset", f)
		return err
	})
	return h, code
}

// LoadAssetBytes loads a model held in memory.
func (b *Bridge) LoadAssetBytes(data []byte) (h Handle, code status.Code) {
	code = b.call(status.ScopeLibrary, "load_asset_bytes", func() error {
		f, err := b.lib.LoadBytes(data)
		if err != nil {
			return status.Library("load_asset_bytes", err)
		}
		h, err = b.register("load_asset_bytes", f)
		return err
	})
	return h, code
}

// CreateAsset creates an empty model with a root node. An empty game
// selects the library default; an unknown one is Unsupported.
func (b *Bridge) CreateAsset(game, rootName string) (h Handle, code status.Code) {
	code = b.call(status.ScopeLibrary, "create_asset", func() error {
		var g nifly.Game
		if game != "" {
			var err error
			if g, err = nifly.ParseGame(game); err != nil {
				return status.New(status.Unsupported).Op("create_asset").Cause(err).Build()
			}
		}
		var err error
		h, err = b.register("create_asset", b.lib.New(g, rootName))
		return err
	})
	return h, code
}

// SaveAsset writes the asset through the library.
func (b *Bridge) SaveAsset(h Handle, path string) status.Code {
	return b.call(status.ScopeAsset, "save_asset", func() error {
		a, err := b.resolveAsset("save_asset", h)
		if err != nil {
			return err
		}
		if err := b.lib.Save(a.file, path); err != nil {
			return status.Library("save_asset", err)
		}
		return nil
	})
}

// SaveAssetBytes serializes the asset into dst.
func (b *Bridge) SaveAssetBytes(h Handle, dst []byte) (n int, code status.Code) {
	code = b.call(status.ScopeAsset, "save_asset_bytes", func() error {
		a, err := b.resolveAsset("save_asset_bytes", h)
		if err != nil {
			return err
		}
		data, err := b.lib.SaveBytes(a.file)
		if err != nil {
			return status.Library("save_asset_bytes", err)
		}
		n = len(data)
		if len(dst) < n {
			return status.TooSmall("save_asset_bytes", n, len(dst))
		}
		copy(dst, data)
		return nil
	})
	return n, code
}

// Release invalidates h. Releasing an asset invalidates every node and
// shape handle issued under it. Releasing twice reports InvalidHandle.
func (b *Bridge) Release(h Handle) status.Code {
	return b.call(scopeOf(h), "release", func() error {
		return withOp(b.reg.Release(h), "release")
	})
}

func scopeOf(h Handle) status.Scope {
	switch h.Kind() {
	case handle.KindNode:
		return status.ScopeNode
	case handle.KindShape:
		return status.ScopeShape
	default:
		return status.ScopeAsset
	}
}

// AssetGame copies the asset's game tag into dst.
func (b *Bridge) AssetGame(h Handle, dst []byte) (n int, code status.Code) {
	code = b.call(status.ScopeAsset, "asset_game", func() error {
		a, err := b.resolveAsset("asset_game", h)
		if err != nil {
			return err
		}
		n, err = copyString("asset_game", string(a.file.Game), dst)
		return err
	})
	return n, code
}

// AssetID copies the asset's identifier, in canonical text form, into dst.
func (b *Bridge) AssetID(h Handle, dst []byte) (n int, code status.Code) {
	code = b.call(status.ScopeAsset, "asset_id", func() error {
		a, err := b.resolveAsset("asset_id", h)
		if err != nil {
			return err
		}
		n, err = copyString("asset_id", a.file.ID.String(), dst)
		return err
	})
	return n, code
}

// NodeCount returns the number of nodes in the asset.
func (b *Bridge) NodeCount(h Handle) (n int, code status.Code) {
	code = b.call(status.ScopeAsset, "node_count", func() error {
		a, err := b.resolveAsset("node_count", h)
		if err != nil {
			return err
		}
		n = len(a.file.Nodes)
		return nil
	})
	return n, code
}

// NodeAt returns the handle of node i. Node 0 is the root. Repeated calls
// return the same handle while it is live.
func (b *Bridge) NodeAt(h Handle, i int) (node Handle, code status.Code) {
	code = b.call(status.ScopeAsset, "node_at", func() error {
		a, err := b.resolveAsset("node_at", h)
		if err != nil {
			return err
		}
		if i < 0 || i >= len(a.file.Nodes) {
			return status.New(status.InvalidHandle).Op("node_at").Detail("index %d of %d nodes", i, len(a.file.Nodes)).Build()
		}
		node, err = b.nodeHandle(a, i)
		return err
	})
	return node, code
}

// FindNode returns the handle of the named node.
func (b *Bridge) FindNode(h Handle, name string) (node Handle, code status.Code) {
	code = b.call(status.ScopeAsset, "find_node", func() error {
		a, err := b.resolveAsset("find_node", h)
		if err != nil {
			return err
		}
		i := a.file.FindNode(name)
		if i < 0 {
			return status.New(status.InvalidHandle).Op("find_node").Detail("no node named %q", name).Build()
		}
		node, err = b.nodeHandle(a, i)
		return err
	})
	return node, code
}

// ShapeCount returns the number of shapes in the asset.
func (b *Bridge) ShapeCount(h Handle) (n int, code status.Code) {
	code = b.call(status.ScopeAsset, "shape_count", func() error {
		a, err := b.resolveAsset("shape_count", h)
		if err != nil {
			return err
		}
		n = len(a.file.Shapes)
		return nil
	})
	return n, code
}

// ShapeAt returns the handle of shape i.
func (b *Bridge) ShapeAt(h Handle, i int) (shape Handle, code status.Code) {
	code = b.call(status.ScopeAsset, "shape_at", func() error {
		a, err := b.resolveAsset("shape_at", h)
		if err != nil {
			return err
		}
		if i < 0 || i >= len(a.file.Shapes) {
			return status.New(status.InvalidHandle).Op("shape_at").Detail("index %d of %d shapes", i, len(a.file.Shapes)).Build()
		}
		shape, err = b.shapeHandle(a, i)
		return err
	})
	return shape, code
}

// FindShape returns the handle of the named shape.
func (b *Bridge) FindShape(h Handle, name string) (shape Handle, code status.Code) {
	code = b.call(status.ScopeAsset, "find_shape", func() error {
		a, err := b.resolveAsset("find_shape", h)
		if err != nil {
			return err
		}
		for i := range a.file.Shapes {
			if a.file.Shapes[i].Name == name {
				shape, err = b.shapeHandle(a, i)
				return err
			}
		}
		return status.New(status.InvalidHandle).Op("find_shape").Detail("no shape named %q", name).Build()
	})
	return shape, code
}

// OwnerAsset returns the asset a node or shape handle belongs to.
func (b *Bridge) OwnerAsset(h Handle) (owner Handle, code status.Code) {
	code = b.call(scopeOf(h), "owner_asset", func() error {
		var err error
		owner, err = b.reg.Owner(h)
		if err != nil {
			return withOp(err, "owner_asset")
		}
		if owner == 0 {
			owner = h
		}
		return nil
	})
	return owner, code
}

package bridge

import (
	stdmath "math"
	"sort"

	"github.com/Faultbox/nifbridge/pkg/math"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/status"
)

// SkinWeight is one flat skin entry. Bone indexes the bone table returned
// by SkinBones (export) or supplied to SetSkinWeights (import).
type SkinWeight struct {
	Vertex uint32
	Bone   uint32
	Weight float32
}

// boneOrder returns the shape's caller-visible bone order, extending the
// cached order with bones the skin gained since it was established.
func (s *shapeRef) boneOrder() []int {
	skin := s.shape().Skin
	if skin == nil {
		return s.bones
	}

	known := make(map[int]struct{}, len(s.bones))
	for _, n := range s.bones {
		known[n] = struct{}{}
	}
	for _, n := range skin.Bones {
		if _, ok := known[n]; !ok {
			s.bones = append(s.bones, n)
			known[n] = struct{}{}
		}
	}
	return s.bones
}

// SkinBones writes the node handles of the shape's bone table. The order is
// fixed the first time it is exported and stays the same for the life of
// the shape handle; SetSkinWeights replaces it.
func (b *Bridge) SkinBones(h Handle, dst []Handle) (n int, code status.Code) {
	code = b.call(status.ScopeShape, "skin_bones", func() error {
		s, err := b.resolveShape("skin_bones", h)
		if err != nil {
			return err
		}
		order := s.boneOrder()
		n = len(order)
		if len(dst) < n {
			return status.TooSmall("skin_bones", n, len(dst))
		}
		handles := make([]Handle, n)
		for i, node := range order {
			if handles[i], err = b.nodeHandle(s.asset, node); err != nil {
				return err
			}
		}
		copy(dst, handles)
		return nil
	})
	return n, code
}

// SkinWeightCount returns the number of entries SkinWeights writes.
func (b *Bridge) SkinWeightCount(h Handle) (n int, code status.Code) {
	code = b.call(status.ScopeShape, "skin_weight_count", func() error {
		s, err := b.resolveShape("skin_weight_count", h)
		if err != nil {
			return err
		}
		if skin := s.shape().Skin; skin != nil {
			n = skin.WeightCount()
		}
		return nil
	})
	return n, code
}

// SkinWeights writes (vertex, bone, weight) entries sorted by vertex, then
// bone. Unweighted vertices contribute nothing. Weights are copied as
// stored, normalized or not.
func (b *Bridge) SkinWeights(h Handle, dst []SkinWeight) (n int, code status.Code) {
	code = b.call(status.ScopeShape, "skin_weights", func() error {
		s, err := b.resolveShape("skin_weights", h)
		if err != nil {
			return err
		}
		skin := s.shape().Skin
		if skin == nil {
			return nil
		}
		n = skin.WeightCount()
		if len(dst) < n {
			return status.TooSmall("skin_weights", n, len(dst))
		}

		pos := make(map[int]uint32, len(s.bones))
		for i, node := range s.boneOrder() {
			pos[node] = uint32(i)
		}

		out := dst[:0]
		for bi, weights := range skin.Weights {
			bone := pos[skin.Bones[bi]]
			for _, w := range weights {
				out = append(out, SkinWeight{Vertex: uint32(w.Vertex), Bone: bone, Weight: w.Weight})
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Vertex != out[j].Vertex {
				return out[i].Vertex < out[j].Vertex
			}
			return out[i].Bone < out[j].Bone
		})
		return nil
	})
	return n, code
}

// SetSkinWeights replaces the shape's skin. bones maps bone indexes to node
// handles of the same asset. Entries naming a bone index outside the table
// fail with UnknownBone; out of range vertices and negative weights are
// MalformedGeometry. Nothing changes unless every entry is valid. The
// supplied table becomes the shape's exported bone order.
func (b *Bridge) SetSkinWeights(h Handle, bones []Handle, weights []SkinWeight) status.Code {
	return b.call(status.ScopeShape, "set_skin_weights", func() error {
		s, err := b.resolveShape("set_skin_weights", h)
		if err != nil {
			return err
		}
		shape := s.shape()

		nodes := make([]int, len(bones))
		seen := make(map[int]struct{}, len(bones))
		for i, bh := range bones {
			r, err := b.sameAsset("set_skin_weights", s.asset, bh)
			if err != nil {
				return err
			}
			if _, dup := seen[r.index]; dup {
				return status.Malformed("set_skin_weights", "bone table lists %q twice", r.node().Name)
			}
			seen[r.index] = struct{}{}
			nodes[i] = r.index
		}

		perBone := make([][]nifly.BoneWeight, len(bones))
		type pair struct{ vertex, bone uint32 }
		pairs := make(map[pair]struct{}, len(weights))
		for i, w := range weights {
			if int(w.Bone) >= len(bones) {
				return status.New(status.UnknownBone).Op("set_skin_weights").
					Detail("entry %d names bone %d, table has %d", i, w.Bone, len(bones)).Build()
			}
			if int(w.Vertex) >= len(shape.Vertices) {
				return status.Malformed("set_skin_weights", "entry %d vertex %d >= vertex count %d", i, w.Vertex, len(shape.Vertices))
			}
			if w.Weight < 0 || stdmath.IsNaN(float64(w.Weight)) {
				return status.Malformed("set_skin_weights", "entry %d has weight %g", i, w.Weight)
			}
			p := pair{w.Vertex, w.Bone}
			if _, dup := pairs[p]; dup {
				return status.Malformed("set_skin_weights", "vertex %d weighted to bone %d twice", w.Vertex, w.Bone)
			}
			pairs[p] = struct{}{}
			perBone[w.Bone] = append(perBone[w.Bone], nifly.BoneWeight{Vertex: uint16(w.Vertex), Weight: w.Weight})
		}

		skin := &nifly.Skin{
			Bones:        nodes,
			Weights:      perBone,
			SkinToBone:   make([]math.Transform, len(nodes)),
			GlobalToSkin: math.IdentityTransform(),
		}
		prev := make(map[int]math.Transform)
		if old := shape.Skin; old != nil {
			skin.GlobalToSkin = old.GlobalToSkin
			for i, node := range old.Bones {
				if i < len(old.SkinToBone) {
					prev[node] = old.SkinToBone[i]
				}
			}
		}
		for i, node := range nodes {
			if xf, ok := prev[node]; ok {
				skin.SkinToBone[i] = xf
			} else {
				skin.SkinToBone[i] = bindPose(s.asset.file, node)
			}
		}
		skin.SortWeights()

		shape.Skin = skin
		s.bones = append([]int(nil), nodes...)
		return nil
	})
}

// skinBone returns the position of bone h in the shape's skin.
func (b *Bridge) skinBone(op string, s *shapeRef, h Handle) (*nifly.Skin, int, error) {
	r, err := b.sameAsset(op, s.asset, h)
	if err != nil {
		return nil, 0, err
	}
	skin := s.shape().Skin
	if skin != nil {
		for i, node := range skin.Bones {
			if node == r.index {
				return skin, i, nil
			}
		}
	}
	return nil, 0, status.New(status.UnknownBone).Op(op).Detail("%q is not a bone of shape %q", r.node().Name, s.shape().Name).Build()
}

// SkinToBone writes the transform from skin space to the bone's space.
func (b *Bridge) SkinToBone(h, bone Handle, dst []float32) status.Code {
	return b.call(status.ScopeShape, "skin_to_bone", func() error {
		s, err := b.resolveShape("skin_to_bone", h)
		if err != nil {
			return err
		}
		skin, i, err := b.skinBone("skin_to_bone", s, bone)
		if err != nil {
			return err
		}
		xf := math.IdentityTransform()
		if i < len(skin.SkinToBone) {
			xf = skin.SkinToBone[i]
		}
		return putTransform("skin_to_bone", xf, dst)
	})
}

// SetSkinToBone replaces the skin-to-bone transform of one bone.
func (b *Bridge) SetSkinToBone(h, bone Handle, src []float32) status.Code {
	return b.call(status.ScopeShape, "set_skin_to_bone", func() error {
		s, err := b.resolveShape("set_skin_to_bone", h)
		if err != nil {
			return err
		}
		skin, i, err := b.skinBone("set_skin_to_bone", s, bone)
		if err != nil {
			return err
		}
		xf, err := readTransform("set_skin_to_bone", src)
		if err != nil {
			return err
		}
		for len(skin.SkinToBone) < len(skin.Bones) {
			skin.SkinToBone = append(skin.SkinToBone, math.IdentityTransform())
		}
		skin.SkinToBone[i] = xf
		return nil
	})
}

// GlobalToSkin writes the shape's global-to-skin transform. Unskinned
// shapes report identity.
func (b *Bridge) GlobalToSkin(h Handle, dst []float32) status.Code {
	return b.call(status.ScopeShape, "global_to_skin", func() error {
		s, err := b.resolveShape("global_to_skin", h)
		if err != nil {
			return err
		}
		xf := math.IdentityTransform()
		if skin := s.shape().Skin; skin != nil {
			xf = skin.GlobalToSkin
		}
		return putTransform("global_to_skin", xf, dst)
	})
}

// SetGlobalToSkin replaces the global-to-skin transform of a skinned shape.
func (b *Bridge) SetGlobalToSkin(h Handle, src []float32) status.Code {
	return b.call(status.ScopeShape, "set_global_to_skin", func() error {
		s, err := b.resolveShape("set_global_to_skin", h)
		if err != nil {
			return err
		}
		xf, err := readTransform("set_global_to_skin", src)
		if err != nil {
			return err
		}
		skin := s.shape().Skin
		if skin == nil {
			return status.New(status.Unsupported).Op("set_global_to_skin").Detail("shape %q has no skin", s.shape().Name).Build()
		}
		skin.GlobalToSkin = xf
		return nil
	})
}

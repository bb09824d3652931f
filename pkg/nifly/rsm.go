package nifly

import (
	"fmt"
	"sort"

	"github.com/Faultbox/nifbridge/pkg/formats"
	"github.com/Faultbox/nifbridge/pkg/math"
)

// RSMSequence names the sequence RSM keyframes are imported into.
const RSMSequence = "Default"

// FromRSM converts a parsed RSM model. Every RSM node becomes a node under
// the scene root; nodes with faces also get a shape parented to that node.
// Per-corner texture coordinates are collapsed to the first corner seen for
// each vertex.
func FromRSM(rsm *formats.RSM, game Game) (*File, error) {
	f := NewFile(game, RootName)

	byName := make(map[string]int, len(rsm.Nodes))
	for i := range rsm.Nodes {
		n := &rsm.Nodes[i]
		if _, dup := byName[n.Name]; dup || n.Name == RootName {
			return nil, fmt.Errorf("%w: rsm node %q", ErrDuplicateNode, n.Name)
		}
		f.Nodes = append(f.Nodes, Node{Name: n.Name, Parent: 0, Transform: rsmNodeTransform(n)})
		byName[n.Name] = len(f.Nodes) - 1
	}
	for i := range rsm.Nodes {
		n := &rsm.Nodes[i]
		if p, ok := byName[n.Parent]; ok && n.Parent != n.Name {
			f.Nodes[byName[n.Name]].Parent = p
		}
	}
	if err := f.checkAcyclic(); err != nil {
		return nil, err
	}

	for i := range rsm.Nodes {
		n := &rsm.Nodes[i]
		if len(n.Faces) == 0 {
			continue
		}
		s, err := rsmShape(n, byName[n.Name])
		if err != nil {
			return nil, err
		}
		if _, err := f.AddShape(s); err != nil {
			return nil, err
		}
	}

	if rsm.HasAnimation() {
		f.Sequences = append(f.Sequences, rsmSequence(rsm))
	}

	return f, nil
}

func rsmNodeTransform(n *formats.RSMNode) math.Transform {
	xf := math.IdentityTransform()
	xf.Translation = math.Vec3{X: n.Position[0], Y: n.Position[1], Z: n.Position[2]}

	axis := math.Vec3{X: n.RotAxis[0], Y: n.RotAxis[1], Z: n.RotAxis[2]}
	if axis.Length() > math.Epsilon && n.RotAngle != 0 {
		xf.Rotation = math.RotationAxis(axis.Normalize(), n.RotAngle)
	}

	// The model carries non-uniform scale; keep the X component.
	if n.Scale[0] != 0 {
		xf.Scale = n.Scale[0]
	}
	return xf
}

func rsmShape(n *formats.RSMNode, parent int) (Shape, error) {
	if len(n.Vertices) > MaxVertices {
		return Shape{}, fmt.Errorf("%w: rsm node %q has %d vertices", ErrMalformedShape, n.Name, len(n.Vertices))
	}

	s := Shape{
		Name:   n.Name,
		Parent: parent,
		Transform: math.Transform{
			Translation: math.Vec3{X: n.Offset[0], Y: n.Offset[1], Z: n.Offset[2]},
			Rotation:    math.Mat3(n.Matrix),
			Scale:       1,
		},
		Vertices:  make([]math.Vec3, len(n.Vertices)),
		Triangles: make([][3]uint16, len(n.Faces)),
	}
	for i, v := range n.Vertices {
		s.Vertices[i] = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	}

	var assigned []bool
	if len(n.TexCoords) > 0 {
		s.UVs = make([]math.Vec2, len(n.Vertices))
		s.Colors = make([][4]float32, len(n.Vertices))
		assigned = make([]bool, len(n.Vertices))
	}

	for i, face := range n.Faces {
		s.Triangles[i] = face.VertexIDs
		if assigned == nil {
			continue
		}
		for c, vi := range face.VertexIDs {
			tci := int(face.TexCoordIDs[c])
			if int(vi) >= len(assigned) || assigned[vi] || tci >= len(n.TexCoords) {
				continue
			}
			tc := n.TexCoords[tci]
			s.UVs[vi] = math.Vec2{X: tc.U, Y: tc.V}
			s.Colors[vi] = [4]float32{
				float32(tc.Color[0]) / 255,
				float32(tc.Color[1]) / 255,
				float32(tc.Color[2]) / 255,
				float32(tc.Color[3]) / 255,
			}
			assigned[vi] = true
		}
	}

	return s, nil
}

// rsmSequence merges each node's position, rotation and scale keys into
// transform keys. A channel without a key at some frame holds its previous
// value (or the node's rest value before its first key).
func rsmSequence(rsm *formats.RSM) Sequence {
	seq := Sequence{
		Name:     RSMSequence,
		StopTime: float32(rsm.AnimLength) / 1000,
	}

	for i := range rsm.Nodes {
		n := &rsm.Nodes[i]
		if len(n.PosKeys)+len(n.RotKeys)+len(n.ScaleKeys) == 0 {
			continue
		}

		frames := make(map[int32]struct{})
		for _, k := range n.PosKeys {
			frames[k.Frame] = struct{}{}
		}
		for _, k := range n.RotKeys {
			frames[k.Frame] = struct{}{}
		}
		for _, k := range n.ScaleKeys {
			frames[k.Frame] = struct{}{}
		}
		order := make([]int32, 0, len(frames))
		for fr := range frames {
			order = append(order, fr)
		}
		sort.Slice(order, func(a, b int) bool { return order[a] < order[b] })

		posKeys := append([]formats.RSMPosKeyframe(nil), n.PosKeys...)
		sort.SliceStable(posKeys, func(a, b int) bool { return posKeys[a].Frame < posKeys[b].Frame })
		rotKeys := append([]formats.RSMRotKeyframe(nil), n.RotKeys...)
		sort.SliceStable(rotKeys, func(a, b int) bool { return rotKeys[a].Frame < rotKeys[b].Frame })
		scaleKeys := append([]formats.RSMScaleKeyframe(nil), n.ScaleKeys...)
		sort.SliceStable(scaleKeys, func(a, b int) bool { return scaleKeys[a].Frame < scaleKeys[b].Frame })

		rest := rsmNodeTransform(n)
		cur := TransformKey{
			Translation: rest.Translation,
			Rotation:    math.QuatFromMat3(rest.Rotation),
			Scale:       rest.Scale,
		}
		track := TransformTrack{RotationType: KeyLinear, Keys: make([]TransformKey, 0, len(order))}
		pi, ri, si := 0, 0, 0
		for _, fr := range order {
			for pi < len(posKeys) && posKeys[pi].Frame <= fr {
				p := posKeys[pi].Position
				cur.Translation = math.Vec3{X: p[0], Y: p[1], Z: p[2]}
				pi++
			}
			for ri < len(rotKeys) && rotKeys[ri].Frame <= fr {
				q := rotKeys[ri].Quaternion
				cur.Rotation = math.Quat{X: q[0], Y: q[1], Z: q[2], W: q[3]}
				ri++
			}
			for si < len(scaleKeys) && scaleKeys[si].Frame <= fr {
				cur.Scale = scaleKeys[si].Scale[0]
				si++
			}
			cur.Time = float32(fr) / 1000
			track.Keys = append(track.Keys, cur)
		}

		seq.Blocks = append(seq.Blocks, ControlledBlock{
			NodeName:       n.Name,
			ControllerType: TransformController,
			Track:          track,
		})
		if len(track.Keys) > 0 {
			if last := track.Keys[len(track.Keys)-1].Time; last > seq.StopTime {
				seq.StopTime = last
			}
		}
	}

	return seq
}

package bridge

import (
	"github.com/Faultbox/nifbridge/pkg/math"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/status"
)

// Geometry is a flat mesh for import. Optional channels are either empty or
// hold one entry per vertex.
type Geometry struct {
	Vertices  []float32 // xyz
	Triangles []uint16  // three indices per triangle
	Normals   []float32 // xyz
	UVs       []float32 // uv
	Colors    []float32 // rgba
}

// GeometryInfo describes a shape's buffers.
type GeometryInfo struct {
	Vertices   int
	Triangles  int
	HasNormals bool
	HasUVs     bool
	HasColors  bool
}

// GeometrySize reports the shape's vertex and triangle counts and which
// optional channels it carries.
func (b *Bridge) GeometrySize(h Handle) (info GeometryInfo, code status.Code) {
	code = b.call(status.ScopeShape, "geometry_size", func() error {
		s, err := b.resolveShape("geometry_size", h)
		if err != nil {
			return err
		}
		shape := s.shape()
		info = GeometryInfo{
			Vertices:   len(shape.Vertices),
			Triangles:  len(shape.Triangles),
			HasNormals: len(shape.Normals) > 0,
			HasUVs:     len(shape.UVs) > 0,
			HasColors:  len(shape.Colors) > 0,
		}
		return nil
	})
	return info, code
}

// exportFloats runs a float channel export: check capacity, then fill.
func (b *Bridge) exportFloats(op string, h Handle, dst []float32, stride int,
	count func(*nifly.Shape) int, fill func(*nifly.Shape, []float32)) (n int, code status.Code) {
	code = b.call(status.ScopeShape, op, func() error {
		s, err := b.resolveShape(op, h)
		if err != nil {
			return err
		}
		shape := s.shape()
		n = count(shape) * stride
		if len(dst) < n {
			return status.TooSmall(op, n, len(dst))
		}
		fill(shape, dst[:n])
		return nil
	})
	return n, code
}

func putVec3s(dst []float32, vs []math.Vec3) {
	for i, v := range vs {
		dst[i*3], dst[i*3+1], dst[i*3+2] = v.X, v.Y, v.Z
	}
}

// Vertices copies vertex positions, 3 floats each.
func (b *Bridge) Vertices(h Handle, dst []float32) (int, status.Code) {
	return b.exportFloats("vertices", h, dst, 3,
		func(s *nifly.Shape) int { return len(s.Vertices) },
		func(s *nifly.Shape, out []float32) { putVec3s(out, s.Vertices) })
}

// Normals copies vertex normals, 3 floats each. A shape without normals
// requires 0.
func (b *Bridge) Normals(h Handle, dst []float32) (int, status.Code) {
	return b.exportFloats("normals", h, dst, 3,
		func(s *nifly.Shape) int { return len(s.Normals) },
		func(s *nifly.Shape, out []float32) { putVec3s(out, s.Normals) })
}

// UVs copies texture coordinates, 2 floats each.
func (b *Bridge) UVs(h Handle, dst []float32) (int, status.Code) {
	return b.exportFloats("uvs", h, dst, 2,
		func(s *nifly.Shape) int { return len(s.UVs) },
		func(s *nifly.Shape, out []float32) {
			for i, uv := range s.UVs {
				out[i*2], out[i*2+1] = uv.X, uv.Y
			}
		})
}

// Colors copies RGBA vertex colors, 4 floats each.
func (b *Bridge) Colors(h Handle, dst []float32) (int, status.Code) {
	return b.exportFloats("colors", h, dst, 4,
		func(s *nifly.Shape) int { return len(s.Colors) },
		func(s *nifly.Shape, out []float32) {
			for i, c := range s.Colors {
				copy(out[i*4:i*4+4], c[:])
			}
		})
}

// Triangles copies triangle indices, 3 per triangle.
func (b *Bridge) Triangles(h Handle, dst []uint16) (n int, code status.Code) {
	code = b.call(status.ScopeShape, "triangles", func() error {
		s, err := b.resolveShape("triangles", h)
		if err != nil {
			return err
		}
		tris := s.shape().Triangles
		n = len(tris) * 3
		if len(dst) < n {
			return status.TooSmall("triangles", n, len(dst))
		}
		for i, t := range tris {
			copy(dst[i*3:i*3+3], t[:])
		}
		return nil
	})
	return n, code
}

// ExtraChannel reports on a vertex channel the flat layouts cannot carry.
// A channel the shape does not have requires 0 elements; one it has is
// Unsupported.
func (b *Bridge) ExtraChannel(h Handle, name string) (n int, code status.Code) {
	code = b.call(status.ScopeShape, "extra_channel", func() error {
		s, err := b.resolveShape("extra_channel", h)
		if err != nil {
			return err
		}
		shape := s.shape()
		for _, ch := range shape.ExtraChannels {
			if ch == name {
				return status.New(status.Unsupported).Op("extra_channel").
					Detail("shape %q carries %s, which has no flat layout", shape.Name, name).Build()
			}
		}
		return nil
	})
	return n, code
}

// toGeometry checks strides and unpacks g.
func toGeometry(op string, g Geometry) (nifly.Geometry, error) {
	if len(g.Vertices)%3 != 0 {
		return nifly.Geometry{}, status.Malformed(op, "%d vertex floats is not a multiple of 3", len(g.Vertices))
	}
	if len(g.Triangles)%3 != 0 {
		return nifly.Geometry{}, status.Malformed(op, "%d triangle indices is not a multiple of 3", len(g.Triangles))
	}
	nv := len(g.Vertices) / 3
	for _, ch := range []struct {
		name   string
		n      int
		stride int
	}{
		{"normal", len(g.Normals), 3},
		{"uv", len(g.UVs), 2},
		{"color", len(g.Colors), 4},
	} {
		if ch.n != 0 && ch.n != nv*ch.stride {
			return nifly.Geometry{}, status.Malformed(op, "%d %s floats for %d vertices (want %d)", ch.n, ch.name, nv, nv*ch.stride)
		}
	}

	out := nifly.Geometry{
		Vertices:  vec3s(g.Vertices),
		Triangles: make([][3]uint16, len(g.Triangles)/3),
		Normals:   vec3s(g.Normals),
	}
	for i := range out.Triangles {
		copy(out.Triangles[i][:], g.Triangles[i*3:i*3+3])
	}
	if len(g.UVs) > 0 {
		out.UVs = make([]math.Vec2, nv)
		for i := range out.UVs {
			out.UVs[i] = math.Vec2{X: g.UVs[i*2], Y: g.UVs[i*2+1]}
		}
	}
	if len(g.Colors) > 0 {
		out.Colors = make([][4]float32, nv)
		for i := range out.Colors {
			copy(out.Colors[i][:], g.Colors[i*4:i*4+4])
		}
	}

	if err := nifly.ValidateGeometry(out); err != nil {
		return nifly.Geometry{}, status.New(status.MalformedGeometry).Op(op).Cause(err).Build()
	}
	return out, nil
}

func vec3s(fs []float32) []math.Vec3 {
	if len(fs) == 0 {
		return nil
	}
	out := make([]math.Vec3, len(fs)/3)
	for i := range out {
		out[i] = math.Vec3{X: fs[i*3], Y: fs[i*3+1], Z: fs[i*3+2]}
	}
	return out
}

// SetGeometry replaces the shape's mesh. Nothing changes unless every
// stride, channel length and triangle index checks out. A new vertex count
// drops the skin; a new triangle count drops partition assignments.
func (b *Bridge) SetGeometry(h Handle, g Geometry) status.Code {
	return b.call(status.ScopeShape, "set_geometry", func() error {
		s, err := b.resolveShape("set_geometry", h)
		if err != nil {
			return err
		}
		geo, err := toGeometry("set_geometry", g)
		if err != nil {
			return err
		}
		shape := s.shape()
		if err := shape.SetGeometry(geo); err != nil {
			return status.New(status.MalformedGeometry).Op("set_geometry").Cause(err).Build()
		}
		if shape.Skin == nil {
			s.bones = nil
		}
		return nil
	})
}

// CreateShape adds a shape to the asset. parent may be 0 for a shape not
// attached to any node.
func (b *Bridge) CreateShape(h Handle, name string, parent Handle, g Geometry) (shape Handle, code status.Code) {
	code = b.call(status.ScopeAsset, "create_shape", func() error {
		a, err := b.resolveAsset("create_shape", h)
		if err != nil {
			return err
		}
		parentIdx := -1
		if parent != 0 {
			p, err := b.sameAsset("create_shape", a, parent)
			if err != nil {
				return err
			}
			parentIdx = p.index
		}
		geo, err := toGeometry("create_shape", g)
		if err != nil {
			return err
		}

		i, err := a.file.AddShape(nifly.Shape{
			Name:      name,
			Parent:    parentIdx,
			Transform: math.IdentityTransform(),
			Vertices:  geo.Vertices,
			Triangles: geo.Triangles,
			Normals:   geo.Normals,
			UVs:       geo.UVs,
			Colors:    geo.Colors,
		})
		if err != nil {
			return status.New(status.MalformedGeometry).Op("create_shape").Cause(err).Build()
		}
		shape, err = b.shapeHandle(a, i)
		return err
	})
	return shape, code
}

// ShapeName copies the shape's name into dst.
func (b *Bridge) ShapeName(h Handle, dst []byte) (n int, code status.Code) {
	code = b.call(status.ScopeShape, "shape_name", func() error {
		s, err := b.resolveShape("shape_name", h)
		if err != nil {
			return err
		}
		n, err = copyString("shape_name", s.shape().Name, dst)
		return err
	})
	return n, code
}

// ShapeParent returns the node the shape hangs off, or 0.
func (b *Bridge) ShapeParent(h Handle) (parent Handle, code status.Code) {
	code = b.call(status.ScopeShape, "shape_parent", func() error {
		s, err := b.resolveShape("shape_parent", h)
		if err != nil {
			return err
		}
		if p := s.shape().Parent; p >= 0 {
			parent, err = b.nodeHandle(s.asset, p)
		}
		return err
	})
	return parent, code
}

// Partitions copies the per-triangle partition indices. Shapes without
// partitions require 0.
func (b *Bridge) Partitions(h Handle, dst []uint16) (n int, code status.Code) {
	code = b.call(status.ScopeShape, "partitions", func() error {
		s, err := b.resolveShape("partitions", h)
		if err != nil {
			return err
		}
		tris := s.shape().PartitionTris
		n = len(tris)
		if len(dst) < n {
			return status.TooSmall("partitions", n, len(dst))
		}
		copy(dst, tris)
		return nil
	})
	return n, code
}

// PartitionIDs copies the body part or segment IDs the partition indices
// refer to.
func (b *Bridge) PartitionIDs(h Handle, dst []uint16) (n int, code status.Code) {
	code = b.call(status.ScopeShape, "partition_ids", func() error {
		s, err := b.resolveShape("partition_ids", h)
		if err != nil {
			return err
		}
		parts := s.shape().Partitions
		n = len(parts)
		if len(dst) < n {
			return status.TooSmall("partition_ids", n, len(dst))
		}
		for i, p := range parts {
			dst[i] = p.ID
		}
		return nil
	})
	return n, code
}

// SetPartitions replaces the partition table with ids and assigns every
// triangle a partition index. Names of IDs already present are kept.
func (b *Bridge) SetPartitions(h Handle, ids []uint16, tris []uint16) status.Code {
	return b.call(status.ScopeShape, "set_partitions", func() error {
		s, err := b.resolveShape("set_partitions", h)
		if err != nil {
			return err
		}
		shape := s.shape()
		if len(tris) != len(shape.Triangles) {
			return status.Malformed("set_partitions", "%d partition indices for %d triangles", len(tris), len(shape.Triangles))
		}
		for i, p := range tris {
			if int(p) >= len(ids) {
				return status.Malformed("set_partitions", "triangle %d partition %d of %d", i, p, len(ids))
			}
		}

		names := make(map[uint16]string, len(shape.Partitions))
		for _, p := range shape.Partitions {
			names[p.ID] = p.Name
		}
		parts := make([]nifly.Partition, len(ids))
		for i, id := range ids {
			parts[i] = nifly.Partition{ID: id, Name: names[id]}
		}

		shape.Partitions = parts
		shape.PartitionTris = append([]uint16(nil), tris...)
		return nil
	})
}

// SegmentFile copies the name of the external segment file that FO4-style
// partitions are described in. Empty when the shape has none.
func (b *Bridge) SegmentFile(h Handle, dst []byte) (n int, code status.Code) {
	code = b.call(status.ScopeShape, "segment_file", func() error {
		s, err := b.resolveShape("segment_file", h)
		if err != nil {
			return err
		}
		n, err = copyString("segment_file", s.shape().SegmentFile, dst)
		return err
	})
	return n, code
}

// SetSegmentFile records the segment file name; empty clears it.
func (b *Bridge) SetSegmentFile(h Handle, name string) status.Code {
	return b.call(status.ScopeShape, "set_segment_file", func() error {
		s, err := b.resolveShape("set_segment_file", h)
		if err != nil {
			return err
		}
		s.shape().SegmentFile = name
		return nil
	})
}

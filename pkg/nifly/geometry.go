package nifly

import (
	"fmt"

	"github.com/Faultbox/nifbridge/pkg/math"
)

// Geometry is the replaceable mesh payload of a shape.
type Geometry struct {
	Vertices  []math.Vec3
	Triangles [][3]uint16
	Normals   []math.Vec3
	UVs       []math.Vec2
	Colors    [][4]float32
}

// Geometry returns the shape's mesh channels. The slices are shared.
func (s *Shape) Geometry() Geometry {
	return Geometry{
		Vertices:  s.Vertices,
		Triangles: s.Triangles,
		Normals:   s.Normals,
		UVs:       s.UVs,
		Colors:    s.Colors,
	}
}

// ValidateGeometry checks channel lengths and triangle indices.
func ValidateGeometry(g Geometry) error {
	n := len(g.Vertices)
	if n > MaxVertices {
		return fmt.Errorf("%w: %d vertices exceeds %d", ErrMalformedShape, n, MaxVertices)
	}
	if len(g.Normals) != 0 && len(g.Normals) != n {
		return fmt.Errorf("%w: %d normals for %d vertices", ErrMalformedShape, len(g.Normals), n)
	}
	if len(g.UVs) != 0 && len(g.UVs) != n {
		return fmt.Errorf("%w: %d UVs for %d vertices", ErrMalformedShape, len(g.UVs), n)
	}
	if len(g.Colors) != 0 && len(g.Colors) != n {
		return fmt.Errorf("%w: %d colors for %d vertices", ErrMalformedShape, len(g.Colors), n)
	}
	for i, tri := range g.Triangles {
		for _, idx := range tri {
			if int(idx) >= n {
				return fmt.Errorf("%w: triangle %d index %d >= vertex count %d", ErrMalformedShape, i, idx, n)
			}
		}
	}
	return nil
}

// SetGeometry validates g and replaces every mesh channel at once. On error
// the shape is unchanged. A changed triangle count drops partitions and a
// changed vertex count drops the skin.
func (s *Shape) SetGeometry(g Geometry) error {
	if err := ValidateGeometry(g); err != nil {
		return fmt.Errorf("shape %q: %w", s.Name, err)
	}

	if len(g.Triangles) != len(s.Triangles) {
		s.PartitionTris = nil
	}
	if len(g.Vertices) != len(s.Vertices) {
		s.Skin = nil
	}

	s.Vertices = g.Vertices
	s.Triangles = g.Triangles
	s.Normals = g.Normals
	s.UVs = g.UVs
	s.Colors = g.Colors
	return nil
}

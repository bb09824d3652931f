package nifly

import (
	"fmt"
	stdmath "math"
	"sort"
)

// Validate checks the graph's structural invariants: a single root at node
// 0, in-range acyclic parents, well-formed shapes and skins, and
// non-decreasing key times.
func (f *File) Validate() error {
	if len(f.Nodes) == 0 {
		return ErrNoRoot
	}
	if f.Nodes[0].Parent != -1 {
		return fmt.Errorf("%w: node 0 has parent %d", ErrNoRoot, f.Nodes[0].Parent)
	}

	for i := 1; i < len(f.Nodes); i++ {
		p := f.Nodes[i].Parent
		if p < 0 || p >= len(f.Nodes) || p == i {
			return fmt.Errorf("%w: node %q parent %d", ErrInvalidParent, f.Nodes[i].Name, p)
		}
	}
	if err := f.checkAcyclic(); err != nil {
		return err
	}
	if err := ValidateExtra("root", f.Extra, true); err != nil {
		return err
	}

	for i := range f.Shapes {
		s := &f.Shapes[i]
		if s.Parent < -1 || s.Parent >= len(f.Nodes) {
			return fmt.Errorf("%w: shape %q parent %d", ErrInvalidParent, s.Name, s.Parent)
		}
		if err := s.Validate(len(f.Nodes)); err != nil {
			return err
		}
	}

	for i := range f.Sequences {
		seq := &f.Sequences[i]
		for j := range seq.Blocks {
			if err := CheckKeyTimes(seq.Blocks[j].Track.Keys); err != nil {
				return fmt.Errorf("sequence %q block %q: %w", seq.Name, seq.Blocks[j].NodeName, err)
			}
		}
	}

	return nil
}

// checkAcyclic colors nodes while walking each parent chain once.
func (f *File) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]uint8, len(f.Nodes))
	state[0] = done

	for i := range f.Nodes {
		var path []int
		n := i
		for state[n] == unvisited {
			state[n] = visiting
			path = append(path, n)
			n = f.Nodes[n].Parent
		}
		if state[n] == visiting {
			return fmt.Errorf("%w: through node %q", ErrCyclicParent, f.Nodes[n].Name)
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}

// Warnings reports recoverable oddities: unknown game tags and animation
// blocks that cannot be applied.
func (f *File) Warnings() []string {
	var warns []string
	if f.Game != "" && !f.Game.Known() {
		warns = append(warns, fmt.Sprintf("unknown game %q", f.Game))
	}
	for i := range f.Sequences {
		seq := &f.Sequences[i]
		for j := range seq.Blocks {
			b := &seq.Blocks[j]
			if b.ControllerType != "" && b.ControllerType != TransformController {
				warns = append(warns, fmt.Sprintf("sequence %q: unknown controller type %q", seq.Name, b.ControllerType))
			}
			if f.FindNode(b.NodeName) < 0 {
				warns = append(warns, fmt.Sprintf("sequence %q: controller target %q not found", seq.Name, b.NodeName))
			}
		}
	}
	return warns
}

// Validate checks the shape against a file with nodeCount nodes.
func (s *Shape) Validate(nodeCount int) error {
	if err := ValidateGeometry(s.Geometry()); err != nil {
		return fmt.Errorf("shape %q: %w", s.Name, err)
	}

	if len(s.PartitionTris) != 0 {
		if len(s.PartitionTris) != len(s.Triangles) {
			return fmt.Errorf("%w: shape %q has %d partition entries for %d triangles",
				ErrMalformedShape, s.Name, len(s.PartitionTris), len(s.Triangles))
		}
		for i, p := range s.PartitionTris {
			if int(p) >= len(s.Partitions) {
				return fmt.Errorf("%w: shape %q triangle %d partition %d out of range",
					ErrMalformedShape, s.Name, i, p)
			}
		}
	}

	if s.Skin != nil {
		if err := s.Skin.validate(len(s.Vertices), nodeCount); err != nil {
			return fmt.Errorf("shape %q: %w", s.Name, err)
		}
	}
	return ValidateExtra(fmt.Sprintf("shape %q", s.Name), s.Extra, false)
}

func (sk *Skin) validate(vertexCount, nodeCount int) error {
	if len(sk.Weights) != len(sk.Bones) {
		return fmt.Errorf("%w: %d weight lists for %d bones", ErrInvalidSkin, len(sk.Weights), len(sk.Bones))
	}
	if len(sk.SkinToBone) != 0 && len(sk.SkinToBone) != len(sk.Bones) {
		return fmt.Errorf("%w: %d skin-to-bone transforms for %d bones", ErrInvalidSkin, len(sk.SkinToBone), len(sk.Bones))
	}
	seen := make(map[int]struct{}, len(sk.Bones))
	for i, b := range sk.Bones {
		if b < 0 || b >= nodeCount {
			return fmt.Errorf("%w: bone %d is node %d", ErrInvalidSkin, i, b)
		}
		if _, dup := seen[b]; dup {
			return fmt.Errorf("%w: node %d bound twice", ErrInvalidSkin, b)
		}
		seen[b] = struct{}{}
		for _, w := range sk.Weights[i] {
			if int(w.Vertex) >= vertexCount {
				return fmt.Errorf("%w: bone %d weights vertex %d of %d", ErrInvalidSkin, i, w.Vertex, vertexCount)
			}
			if w.Weight < 0 {
				return fmt.Errorf("%w: bone %d has negative weight on vertex %d", ErrInvalidSkin, i, w.Vertex)
			}
		}
	}
	return nil
}

// CheckKeyTimes verifies key times never decrease. A NaN time has no
// order and is rejected.
func CheckKeyTimes(keys []TransformKey) error {
	for i := range keys {
		if stdmath.IsNaN(float64(keys[i].Time)) {
			return fmt.Errorf("%w: key %d has time NaN", ErrNonMonotonicTime, i)
		}
		if i > 0 && keys[i].Time < keys[i-1].Time {
			return fmt.Errorf("%w: key %d at %g after %g", ErrNonMonotonicTime, i, keys[i].Time, keys[i-1].Time)
		}
	}
	return nil
}

// SortWeights orders each bone's weights by vertex.
func (sk *Skin) SortWeights() {
	for _, bw := range sk.Weights {
		sort.Slice(bw, func(a, b int) bool { return bw[a].Vertex < bw[b].Vertex })
	}
}

package math

// TransformFloats is the number of float32 values in a flattened Transform:
// translation (3), row-major rotation (9), scale (1).
const TransformFloats = 13

// Transform is a node-local rigid transform with uniform scale, the form the
// model format uses for nodes, shapes and skin bindings.
type Transform struct {
	Translation Vec3
	Rotation    Mat3
	Scale       float32
}

// IdentityTransform returns the transform that leaves points unchanged.
func IdentityTransform() Transform {
	return Transform{Rotation: Identity3(), Scale: 1}
}

// Compose returns t ∘ child: the child transform expressed in t's parent
// space. Chaining Compose from the root down yields a global transform.
func (t Transform) Compose(child Transform) Transform {
	return Transform{
		Translation: t.Translation.Add(t.Rotation.MulVec(child.Translation.Scale(t.Scale))),
		Rotation:    t.Rotation.Mul(child.Rotation),
		Scale:       t.Scale * child.Scale,
	}
}

// Inverse returns the inverse transform. A zero scale yields the identity.
func (t Transform) Inverse() Transform {
	if t.Scale == 0 {
		return IdentityTransform()
	}
	rt := t.Rotation.Transpose()
	inv := 1 / t.Scale
	return Transform{
		Translation: rt.MulVec(t.Translation).Scale(-inv),
		Rotation:    rt,
		Scale:       inv,
	}
}

// Apply transforms a point.
func (t Transform) Apply(p Vec3) Vec3 {
	return t.Rotation.MulVec(p.Scale(t.Scale)).Add(t.Translation)
}

// ToMat4 returns the equivalent column-major matrix.
func (t Transform) ToMat4() Mat4 {
	m := FromMat3(t.Rotation).Mul(Scale(t.Scale, t.Scale, t.Scale))
	m[12] = t.Translation.X
	m[13] = t.Translation.Y
	m[14] = t.Translation.Z
	return m
}

// Flatten writes the transform into dst, which must hold TransformFloats
// values.
func (t Transform) Flatten(dst []float32) {
	_ = dst[TransformFloats-1]
	dst[0], dst[1], dst[2] = t.Translation.X, t.Translation.Y, t.Translation.Z
	copy(dst[3:12], t.Rotation[:])
	dst[12] = t.Scale
}

// TransformFromFloats reads a transform laid out as by Flatten.
func TransformFromFloats(src []float32) Transform {
	_ = src[TransformFloats-1]
	var t Transform
	t.Translation = Vec3{src[0], src[1], src[2]}
	copy(t.Rotation[:], src[3:12])
	t.Scale = src[12]
	return t
}

// NearEqual reports whether both transforms match within eps.
func (t Transform) NearEqual(other Transform, eps float32) bool {
	return t.Translation.NearEqual(other.Translation, eps) &&
		t.Rotation.NearEqual(other.Rotation, eps) &&
		near(t.Scale, other.Scale, eps)
}

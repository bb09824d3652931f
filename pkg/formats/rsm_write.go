package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Faultbox/nifbridge/pkg/encoding"
)

// Encode serializes the model in the layout ParseRSM reads for its version.
func (rsm *RSM) Encode() ([]byte, error) {
	if rsm.Version.Major < 1 || rsm.Version.Major > 2 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRSMVersion, rsm.Version)
	}

	var buf bytes.Buffer
	w := func(v any) {
		// bytes.Buffer writes cannot fail
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	name := func(s string) {
		buf.Write(encoding.UTF8ToFixedString(s, rsmNameLength))
	}

	buf.WriteString(rsmMagic)
	w(rsm.Version.Major)
	w(rsm.Version.Minor)
	w(rsm.AnimLength)
	w(rsm.Shading)
	if rsm.Version.AtLeast(1, 4) {
		w(uint8(rsm.Alpha * 255))
	}
	buf.Write(make([]byte, 16))

	w(int32(len(rsm.Textures)))
	for _, tex := range rsm.Textures {
		name(tex)
	}
	name(rsm.RootNode)

	w(int32(len(rsm.Nodes)))
	for i := range rsm.Nodes {
		node := &rsm.Nodes[i]
		name(node.Name)
		name(node.Parent)

		w(int32(len(node.TextureIDs)))
		w(node.TextureIDs)
		w(node.Matrix)
		w(node.Offset)
		w(node.Position)
		w(node.RotAngle)
		w(node.RotAxis)
		w(node.Scale)

		w(int32(len(node.Vertices)))
		w(node.Vertices)

		w(int32(len(node.TexCoords)))
		for _, tc := range node.TexCoords {
			if rsm.Version.AtLeast(1, 2) {
				w(tc.Color)
			}
			w(tc.U)
			w(tc.V)
		}

		w(int32(len(node.Faces)))
		for _, face := range node.Faces {
			w(face.VertexIDs)
			w(face.TexCoordIDs)
			w(face.TextureID)
			w(face.Padding)
			w(face.TwoSide)
			if rsm.Version.AtLeast(1, 2) {
				w(face.SmoothGroup)
			}
		}

		if !rsm.Version.AtLeast(1, 5) {
			w(int32(len(node.PosKeys)))
			w(node.PosKeys)
		}
		w(int32(len(node.RotKeys)))
		w(node.RotKeys)
		if rsm.Version.AtLeast(1, 5) {
			w(int32(len(node.ScaleKeys)))
			w(node.ScaleKeys)
		}
	}

	w(int32(len(rsm.VolumeBoxes)))
	for _, box := range rsm.VolumeBoxes {
		w(box.Size)
		w(box.Position)
		w(box.Rotation)
		if rsm.Version.AtLeast(1, 3) {
			w(box.Flag)
		}
	}

	return buf.Bytes(), nil
}

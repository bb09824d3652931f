package formats

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lidModel is a two-node model whose child precedes its parent, with one
// textured triangle on the parent and keys on the child.
func lidModel(ver RSMVersion) *RSM {
	return &RSM{
		Version:    ver,
		AnimLength: 2000,
		Shading:    RSMShadingSmooth,
		Alpha:      0.2,
		Textures:   []string{"chest.bmp"},
		RootNode:   "base",
		Nodes: []RSMNode{
			{
				Name:   "lid",
				Parent: "base",
				Offset: [3]float32{0, 0.5, 0},
				Scale:  [3]float32{1, 1, 1},
				RotKeys: []RSMRotKeyframe{
					{Frame: 0, Quaternion: [4]float32{0, 0, 0, 1}},
					{Frame: 1000, Quaternion: [4]float32{0, 0, 0.7071068, 0.7071068}},
				},
				PosKeys:   []RSMPosKeyframe{{Frame: 500, Position: [3]float32{0, 0, 1}}},
				ScaleKeys: []RSMScaleKeyframe{{Frame: 250, Scale: [3]float32{2, 2, 2}}},
			},
			{
				Name:       "base",
				TextureIDs: []int32{0},
				Matrix:     [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1},
				Position:   [3]float32{0, 5, 0},
				Scale:      [3]float32{2, 2, 2},
				Vertices:   [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
				TexCoords: []RSMTexCoord{
					{Color: [4]uint8{255, 0, 0, 255}, U: 0, V: 0},
					{Color: [4]uint8{0, 255, 0, 255}, U: 1, V: 0},
				},
				Faces: []RSMFace{
					{VertexIDs: [3]uint16{0, 1, 2}, TexCoordIDs: [3]uint16{0, 1, 1}, TwoSide: 1, SmoothGroup: 3},
				},
			},
		},
		VolumeBoxes: []RSMVolumeBox{{Size: [3]float32{1, 2, 1}, Flag: 1}},
	}
}

func encodeParse(t *testing.T, src *RSM) *RSM {
	t.Helper()
	data, err := src.Encode()
	require.NoError(t, err)
	got, err := ParseRSM(data)
	require.NoError(t, err)
	return got
}

func TestRSM_RoundTripByVersion(t *testing.T) {
	versions := []RSMVersion{{1, 1}, {1, 2}, {1, 3}, {1, 4}, {1, 5}, {2, 1}, {2, 3}}
	for _, ver := range versions {
		t.Run(ver.String(), func(t *testing.T) {
			src := lidModel(ver)
			got := encodeParse(t, src)

			assert.Equal(t, ver, got.Version)
			assert.Equal(t, int32(2000), got.AnimLength)
			assert.Equal(t, []string{"chest.bmp"}, got.Textures)
			assert.Equal(t, "base", got.RootNode)

			require.Len(t, got.Nodes, 2)
			lid, base := got.Nodes[0], got.Nodes[1]
			assert.Equal(t, "base", lid.Parent, "child before parent survives")
			assert.Empty(t, base.Parent)
			assert.Equal(t, src.Nodes[0].Offset, lid.Offset)
			assert.Equal(t, src.Nodes[1].Position, base.Position)
			assert.Equal(t, src.Nodes[1].Matrix, base.Matrix)
			assert.Equal(t, []int32{0}, base.TextureIDs)

			assert.Equal(t, src.Nodes[1].Vertices, base.Vertices)
			require.Len(t, base.Faces, 1)
			assert.Equal(t, [3]uint16{0, 1, 2}, base.Faces[0].VertexIDs)
			assert.Equal(t, [3]uint16{0, 1, 1}, base.Faces[0].TexCoordIDs)
			require.Len(t, base.TexCoords, 2)
			assert.Equal(t, float32(1), base.TexCoords[1].U)

			if ver.AtLeast(1, 2) {
				assert.Equal(t, [4]uint8{0, 255, 0, 255}, base.TexCoords[1].Color)
				assert.Equal(t, int32(3), base.Faces[0].SmoothGroup)
			} else {
				assert.Equal(t, [4]uint8{255, 255, 255, 255}, base.TexCoords[1].Color, "colorless versions read white")
				assert.Zero(t, base.Faces[0].SmoothGroup)
			}

			if ver.AtLeast(1, 4) {
				assert.InDelta(t, 0.2, got.Alpha, 2.0/255)
			} else {
				assert.Equal(t, float32(1), got.Alpha)
			}

			assert.Equal(t, src.Nodes[0].RotKeys, lid.RotKeys)
			if ver.AtLeast(1, 5) {
				assert.Empty(t, lid.PosKeys)
				assert.Equal(t, src.Nodes[0].ScaleKeys, lid.ScaleKeys)
			} else {
				assert.Equal(t, src.Nodes[0].PosKeys, lid.PosKeys)
				assert.Empty(t, lid.ScaleKeys)
			}
			assert.True(t, got.HasAnimation())

			require.Len(t, got.VolumeBoxes, 1)
			assert.Equal(t, [3]float32{1, 2, 1}, got.VolumeBoxes[0].Size)
			if ver.AtLeast(1, 3) {
				assert.Equal(t, int32(1), got.VolumeBoxes[0].Flag)
			}
		})
	}
}

func TestParseRSM_Rejects(t *testing.T) {
	good, err := lidModel(RSMVersion{1, 5}).Encode()
	require.NoError(t, err)

	patch := func(off int, b ...byte) []byte {
		data := append([]byte(nil), good...)
		copy(data[off:], b)
		return data
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncatedRSMData},
		{"short header", good[:10], ErrTruncatedRSMData},
		{"magic", patch(0, 'N', 'I', 'F', 'C'), ErrInvalidRSMMagic},
		{"major 0", patch(4, 0), ErrUnsupportedRSMVersion},
		{"major 3", patch(4, 3), ErrUnsupportedRSMVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRSM(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseRSM_TruncatedAnywhere(t *testing.T) {
	data, err := lidModel(RSMVersion{1, 4}).Encode()
	require.NoError(t, err)

	// One v1.4 box is 40 bytes after its 4-byte count. A cut inside the
	// count reads as "no boxes" and is covered by the optional-box test.
	boxCount := len(data) - 44
	for n := 0; n < len(data); n++ {
		if n >= boxCount && n < boxCount+4 {
			continue
		}
		_, err := ParseRSM(data[:n])
		require.ErrorIs(t, err, ErrTruncatedRSMData, "cut at %d of %d", n, len(data))
	}
}

func TestParseRSM_VolumeBoxesOptional(t *testing.T) {
	src := lidModel(RSMVersion{1, 5})
	src.VolumeBoxes = nil
	data, err := src.Encode()
	require.NoError(t, err)

	// Drop the trailing zero box count entirely.
	got, err := ParseRSM(data[:len(data)-4])
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 2)
	assert.Empty(t, got.VolumeBoxes)
}

func TestParseRSM_NodeCountBounds(t *testing.T) {
	src := &RSM{Version: RSMVersion{1, 5}, RootNode: "base"}
	data, err := src.Encode()
	require.NoError(t, err)

	// magic, version, anim length, shading, alpha, reserved, texture
	// count, root name
	off := 4 + 2 + 4 + 4 + 1 + 16 + 4 + rsmNameLength
	for _, n := range []int32{-1, maxRSMNodes + 1} {
		binary.LittleEndian.PutUint32(data[off:], uint32(n))
		_, err := ParseRSM(data)
		assert.ErrorIs(t, err, ErrInvalidNodeCount, "count %d", n)
	}
}

func TestRSM_EncodeRejectsVersion(t *testing.T) {
	_, err := (&RSM{Version: RSMVersion{3, 0}}).Encode()
	assert.ErrorIs(t, err, ErrUnsupportedRSMVersion)
}

func TestRSM_KoreanNames(t *testing.T) {
	src := &RSM{
		Version:  RSMVersion{1, 5},
		RootNode: "나무",
		Nodes:    []RSMNode{{Name: "잎", Parent: "나무"}, {Name: "나무"}},
	}
	got := encodeParse(t, src)
	assert.Equal(t, "나무", got.RootNode)
	assert.Equal(t, "잎", got.Nodes[0].Name)
	assert.Equal(t, "나무", got.Nodes[0].Parent)
}

func TestRSM_HasAnimation(t *testing.T) {
	still := lidModel(RSMVersion{1, 5})
	for i := range still.Nodes {
		still.Nodes[i].RotKeys = nil
		still.Nodes[i].PosKeys = nil
		still.Nodes[i].ScaleKeys = nil
	}
	assert.False(t, still.HasAnimation())

	still.Nodes[1].ScaleKeys = []RSMScaleKeyframe{{Frame: 10}}
	assert.True(t, still.HasAnimation())
}

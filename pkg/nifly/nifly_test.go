package nifly

import (
	stdmath "math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/nifbridge/pkg/formats"
	"github.com/Faultbox/nifbridge/pkg/math"
	"github.com/Faultbox/nifbridge/pkg/pack"
)

func translate(x, y, z float32) math.Transform {
	xf := math.IdentityTransform()
	xf.Translation = math.Vec3{X: x, Y: y, Z: z}
	return xf
}

// sampleFile builds root -> pelvis -> spine with one skinned, partitioned
// triangle and a two-key sequence.
func sampleFile(t *testing.T) *File {
	t.Helper()
	f := NewFile(GameSkyrimSE, "")

	pelvis, err := f.AddNode("NPC Pelvis", 0, translate(0, 0, 60))
	require.NoError(t, err)
	spine, err := f.AddNode("NPC Spine", pelvis, translate(0, 0, 10))
	require.NoError(t, err)

	_, err = f.AddShape(Shape{
		Name:      "Body",
		Parent:    0,
		Transform: math.IdentityTransform(),
		Vertices:  []math.Vec3{{X: 0}, {X: 1}, {Y: 1}},
		Triangles: [][3]uint16{{0, 1, 2}},
		Normals:   []math.Vec3{{Z: 1}, {Z: 1}, {Z: 1}},
		UVs:       []math.Vec2{{}, {X: 1}, {Y: 1}},
		Colors:    [][4]float32{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 0.5}},
		Partitions: []Partition{
			{ID: 32, Name: "SBP_32_BODY"},
		},
		PartitionTris: []uint16{0},
		Skin: &Skin{
			Bones: []int{pelvis, spine},
			Weights: [][]BoneWeight{
				{{Vertex: 0, Weight: 1}, {Vertex: 1, Weight: 0.25}},
				{{Vertex: 1, Weight: 0.75}},
			},
			SkinToBone:   []math.Transform{translate(0, 0, -60), translate(0, 0, -70)},
			GlobalToSkin: math.IdentityTransform(),
		},
		ExtraChannels: []string{"tangents"},
		SegmentFile:   "meshes\\body.ssf",
		Extra: []ExtraData{
			{Kind: ExtraString, Name: "Prn", Value: "SHIELD"},
		},
		Collision: "bhkCollisionObject",
	})
	require.NoError(t, err)

	f.Nodes[pelvis].Collision = "bhkSPCollisionObject"
	f.Extra = []ExtraData{
		{Kind: ExtraBSXFlags, Name: "BSX", Flags: 0x0b},
		{Kind: ExtraBehaviorGraph, Name: "BGED", Value: "Actors\\Character\\Behaviors.hkx", Flags: 1},
		{Kind: ExtraInvMarker, Name: "INV", Marker: [4]float32{4712, 0, 785, 1.1}},
	}

	f.Sequences = []Sequence{{
		Name:     "Idle",
		StopTime: 1,
		Blocks: []ControlledBlock{{
			NodeName:       "NPC Spine",
			ControllerType: TransformController,
			Track: TransformTrack{
				RotationType: KeyLinear,
				Keys: []TransformKey{
					{Time: 0, Rotation: math.QuatIdentity(), Scale: 1},
					{Time: 1, Translation: math.Vec3{Z: 2}, Rotation: math.QuatIdentity(), Scale: 1},
				},
			},
		}},
	}}
	return f
}

func TestNewFile(t *testing.T) {
	f := NewFile(GameFO4, "")
	require.Len(t, f.Nodes, 1)
	assert.Equal(t, RootName, f.Nodes[0].Name)
	assert.Equal(t, -1, f.Nodes[0].Parent)
	assert.NotZero(t, f.ID)
	assert.NoError(t, f.Validate())
}

func TestAddNode_Errors(t *testing.T) {
	f := NewFile(GameSkyrim, "root")

	_, err := f.AddNode("a", 5, math.IdentityTransform())
	assert.ErrorIs(t, err, ErrInvalidParent)

	_, err = f.AddNode("root", 0, math.IdentityTransform())
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestGlobalTransform_Chain(t *testing.T) {
	f := NewFile(GameSkyrim, "root")
	f.Nodes[0].Transform = translate(1, 0, 0)

	rotA := math.IdentityTransform()
	rotA.Rotation = math.RotationAxis(math.Vec3{Z: 1}, stdmath.Pi/2)
	rotA.Translation = math.Vec3{Y: 2}
	a, err := f.AddNode("A", 0, rotA)
	require.NoError(t, err)

	b, err := f.AddNode("B", a, translate(3, 0, 0))
	require.NoError(t, err)

	global, err := f.GlobalTransform(b)
	require.NoError(t, err)

	// A rotates B's +X offset onto +Y.
	assert.True(t, global.Translation.NearEqual(math.Vec3{X: 1, Y: 5}, math.Epsilon), "got %+v", global.Translation)

	want := f.Nodes[0].Transform.ToMat4().Mul(rotA.ToMat4()).Mul(translate(3, 0, 0).ToMat4())
	assert.True(t, global.ToMat4().NearEqual(want, math.Epsilon))
}

func TestValidate_Cycle(t *testing.T) {
	f := sampleFile(t)
	f.Nodes[1].Parent = 2 // pelvis <-> spine

	assert.ErrorIs(t, f.Validate(), ErrCyclicParent)

	_, err := f.GlobalTransform(2)
	assert.ErrorIs(t, err, ErrCyclicParent)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *File)
		want   error
	}{
		{"no nodes", func(f *File) { f.Nodes = nil }, ErrNoRoot},
		{"root with parent", func(f *File) { f.Nodes[0].Parent = 1 }, ErrNoRoot},
		{"second root", func(f *File) { f.Nodes[2].Parent = -1 }, ErrInvalidParent},
		{"self parent", func(f *File) { f.Nodes[2].Parent = 2 }, ErrInvalidParent},
		{"shape parent", func(f *File) { f.Shapes[0].Parent = 9 }, ErrInvalidParent},
		{"triangle index", func(f *File) { f.Shapes[0].Triangles[0][2] = 3 }, ErrMalformedShape},
		{"normals length", func(f *File) { f.Shapes[0].Normals = f.Shapes[0].Normals[:2] }, ErrMalformedShape},
		{"partition tris", func(f *File) { f.Shapes[0].PartitionTris = []uint16{0, 0} }, ErrMalformedShape},
		{"partition index", func(f *File) { f.Shapes[0].PartitionTris = []uint16{4} }, ErrMalformedShape},
		{"skin bone", func(f *File) { f.Shapes[0].Skin.Bones[0] = 40 }, ErrInvalidSkin},
		{"skin vertex", func(f *File) { f.Shapes[0].Skin.Weights[0][0].Vertex = 3 }, ErrInvalidSkin},
		{"skin weight", func(f *File) { f.Shapes[0].Skin.Weights[0][0].Weight = -1 }, ErrInvalidSkin},
		{"key order", func(f *File) { f.Sequences[0].Blocks[0].Track.Keys[1].Time = -1 }, ErrNonMonotonicTime},
		{"extra kind", func(f *File) { f.Extra[0].Kind = 9 }, ErrInvalidExtra},
		{"second bsx", func(f *File) { f.Extra = append(f.Extra, ExtraData{Kind: ExtraBSXFlags}) }, ErrInvalidExtra},
		{"marker on shape", func(f *File) {
			f.Shapes[0].Extra = append(f.Shapes[0].Extra, ExtraData{Kind: ExtraInvMarker})
		}, ErrInvalidExtra},
		{"key time NaN", func(f *File) { f.Sequences[0].Blocks[0].Track.Keys[0].Time = float32(stdmath.NaN()) }, ErrNonMonotonicTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := sampleFile(t)
			tt.mutate(f)
			assert.ErrorIs(t, f.Validate(), tt.want)
		})
	}
}

func TestSetGeometry(t *testing.T) {
	f := sampleFile(t)
	s := &f.Shapes[0]
	before := s.Geometry()

	err := s.SetGeometry(Geometry{
		Vertices:  []math.Vec3{{}, {X: 1}},
		Triangles: [][3]uint16{{0, 1, 2}},
	})
	require.ErrorIs(t, err, ErrMalformedShape)
	assert.Equal(t, before, s.Geometry(), "failed commit leaves the shape unchanged")
	assert.NotNil(t, s.Skin)

	require.NoError(t, s.SetGeometry(Geometry{
		Vertices:  []math.Vec3{{}, {X: 1}, {Y: 1}, {X: 1, Y: 1}},
		Triangles: [][3]uint16{{0, 1, 2}, {1, 3, 2}},
	}))
	assert.Nil(t, s.Skin, "vertex count changed")
	assert.Nil(t, s.PartitionTris, "triangle count changed")
	assert.Empty(t, s.Normals)
}

func TestValidateGeometry_TooManyVertices(t *testing.T) {
	err := ValidateGeometry(Geometry{Vertices: make([]math.Vec3, MaxVertices+1)})
	assert.ErrorIs(t, err, ErrMalformedShape)
	assert.NoError(t, ValidateGeometry(Geometry{Vertices: make([]math.Vec3, MaxVertices)}))
}

func TestCodec_RoundTrip(t *testing.T) {
	f := sampleFile(t)

	data, err := Encode(f)
	require.NoError(t, err)
	assert.Equal(t, fileMagic, string(data[:4]))

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	again, err := Encode(got)
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding is deterministic")
}

func TestExtraKind(t *testing.T) {
	for _, k := range []ExtraKind{ExtraString, ExtraBehaviorGraph, ExtraBSXFlags, ExtraInvMarker} {
		got, err := ParseExtraKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseExtraKind("BSClothExtraData")
	assert.ErrorIs(t, err, ErrInvalidExtra)
	assert.Equal(t, "extra(7)", ExtraKind(7).String())

	assert.True(t, ExtraBSXFlags.RootOnly())
	assert.False(t, ExtraBehaviorGraph.RootOnly())
}

func TestDecode_Errors(t *testing.T) {
	data, err := Encode(sampleFile(t))
	require.NoError(t, err)

	_, err = Decode([]byte("NIF"))
	assert.ErrorIs(t, err, ErrInvalidMagic)

	_, err = Decode(append([]byte("XXXX"), data[4:]...))
	assert.ErrorIs(t, err, ErrInvalidMagic)

	bumped := append([]byte(nil), data...)
	bumped[4] = 9
	_, err = Decode(bumped)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Decode(data[:len(data)-3])
	assert.Error(t, err)

	cyclic := sampleFile(t)
	cyclic.Nodes[1].Parent = 2
	raw, err := Encode(cyclic)
	require.NoError(t, err)
	_, err = Decode(raw)
	assert.ErrorIs(t, err, ErrCyclicParent)
}

func TestLibrary_SaveLoad(t *testing.T) {
	lib := NewLibrary()
	f := sampleFile(t)
	path := filepath.Join(t.TempDir(), "body.nifc")

	require.NoError(t, lib.Save(f, path))
	got, err := lib.Load(path)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	_, err = lib.Load(filepath.Join(t.TempDir(), "missing.nifc"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	f.Nodes[1].Parent = 2
	_, err = lib.SaveBytes(f)
	assert.ErrorIs(t, err, ErrCyclicParent)
}

func TestLibrary_LoadBytesUnknown(t *testing.T) {
	_, err := NewLibrary().LoadBytes([]byte("not a model"))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestLibrary_New(t *testing.T) {
	lib := NewLibrary(WithDefaultGame(GameFO76))
	assert.Equal(t, GameFO76, lib.New("", "").Game)
	assert.Equal(t, GameSkyrim, lib.New(GameSkyrim, "x").Game)
}

func TestLibrary_Warnings(t *testing.T) {
	f := sampleFile(t)
	f.Sequences[0].Blocks[0].NodeName = "Missing Bone"
	data, err := Encode(f)
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	_, err = NewLibrary(WithLogger(zap.New(core))).LoadBytes(data)
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "Missing Bone")

	_, err = NewLibrary(WithStrict(true)).LoadBytes(data)
	assert.ErrorIs(t, err, ErrStrict)
}

func TestParseGame(t *testing.T) {
	tests := []struct {
		in      string
		want    Game
		wantErr bool
	}{
		{"skyrim", GameSkyrim, false},
		{" SkyrimSE ", GameSkyrimSE, false},
		{"fonv", GameFO3, false},
		{"FO4", GameFO4, false},
		{"morrowind", "", true},
	}
	for _, tt := range tests {
		got, err := ParseGame(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownGame)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	assert.True(t, GameFO76.HasSegments())
	assert.False(t, GameSkyrim.HasSegments())
}

func sampleRSM() *formats.RSM {
	return &formats.RSM{
		Version:    formats.RSMVersion{Major: 1, Minor: 4},
		AnimLength: 2000,
		Alpha:      1,
		RootNode:   "base",
		Nodes: []formats.RSMNode{
			{
				Name:   "lid",
				Parent: "base",
				Scale:  [3]float32{1, 1, 1},
				RotKeys: []formats.RSMRotKeyframe{
					{Frame: 1000, Quaternion: [4]float32{0, 0, 0.7071068, 0.7071068}},
					{Frame: 0, Quaternion: [4]float32{0, 0, 0, 1}},
				},
				PosKeys: []formats.RSMPosKeyframe{
					{Frame: 500, Position: [3]float32{0, 0, 1}},
				},
			},
			{
				Name:     "base",
				Matrix:   [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1},
				Position: [3]float32{0, 5, 0},
				Scale:    [3]float32{2, 2, 2},
				Vertices: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
				TexCoords: []formats.RSMTexCoord{
					{Color: [4]uint8{255, 0, 0, 255}, U: 0, V: 0},
					{Color: [4]uint8{0, 255, 0, 255}, U: 1, V: 0},
				},
				Faces: []formats.RSMFace{
					{VertexIDs: [3]uint16{0, 1, 2}, TexCoordIDs: [3]uint16{0, 1, 1}},
				},
			},
		},
	}
}

func TestFromRSM(t *testing.T) {
	f, err := FromRSM(sampleRSM(), GameSkyrim)
	require.NoError(t, err)
	require.NoError(t, f.Validate())

	require.Len(t, f.Nodes, 3)
	lid, base := f.FindNode("lid"), f.FindNode("base")
	assert.Equal(t, base, f.Nodes[lid].Parent, "children may precede their parent")
	assert.Equal(t, 0, f.Nodes[base].Parent)
	assert.Equal(t, float32(2), f.Nodes[base].Transform.Scale)

	require.Len(t, f.Shapes, 1)
	s := f.Shapes[0]
	assert.Equal(t, base, s.Parent)
	assert.Equal(t, [][3]uint16{{0, 1, 2}}, s.Triangles)
	assert.Equal(t, math.Vec2{X: 1}, s.UVs[1])
	assert.Equal(t, [4]float32{0, 1, 0, 1}, s.Colors[2])

	require.Len(t, f.Sequences, 1)
	seq := f.Sequences[0]
	assert.Equal(t, RSMSequence, seq.Name)
	assert.Equal(t, float32(2), seq.StopTime)
	block := seq.Block("lid")
	require.NotNil(t, block)
	keys := block.Track.Keys
	require.Len(t, keys, 3)
	assert.Equal(t, []float32{0, 0.5, 1}, []float32{keys[0].Time, keys[1].Time, keys[2].Time})
	assert.Equal(t, math.Vec3{}, keys[0].Translation, "rest position before the first key")
	assert.Equal(t, math.Vec3{Z: 1}, keys[2].Translation, "position holds")
	assert.Equal(t, math.QuatIdentity(), keys[1].Rotation, "rotation holds")
	assert.NoError(t, CheckKeyTimes(keys))
}

func TestFromRSM_Cycle(t *testing.T) {
	rsm := sampleRSM()
	rsm.Nodes[1].Parent = "lid"
	_, err := FromRSM(rsm, GameSkyrim)
	assert.ErrorIs(t, err, ErrCyclicParent)
}

func TestLibrary_LoadRSMFromPack(t *testing.T) {
	raw, err := sampleRSM().Encode()
	require.NoError(t, err)

	w := pack.NewWriter()
	w.Add(`data\model\chest.rsm`, raw)
	packData, err := w.Bytes()
	require.NoError(t, err)
	archive, err := pack.OpenBytes(packData)
	require.NoError(t, err)

	packs := pack.NewManager()
	packs.AddArchive(archive)
	defer packs.Close()

	lib := NewLibrary(WithPacks(packs), WithDefaultGame(GameFO4))
	f, err := lib.Load("data/model/chest.rsm")
	require.NoError(t, err)
	assert.Equal(t, GameFO4, f.Game)
	assert.Equal(t, 1, len(f.Shapes))

	_, err = lib.Load("data/model/none.rsm")
	assert.ErrorIs(t, err, pack.ErrNotFound)
}

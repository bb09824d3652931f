package nifly

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/Faultbox/nifbridge/pkg/math"
)

const (
	fileMagic   = "NIFC"
	fileVersion = 1
	headerLen   = len(fileMagic) + 2
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		MaxArrayElements:  MaxVertices * 8,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Wire forms. Integer keys keep files small; new fields take new keys.

type wireFile struct {
	ID        []byte         `cbor:"1,keyasint"`
	Game      string         `cbor:"2,keyasint"`
	Nodes     []wireNode     `cbor:"3,keyasint"`
	Shapes    []wireShape    `cbor:"4,keyasint"`
	Sequences []wireSequence `cbor:"5,keyasint"`
	Extra     []wireExtra    `cbor:"6,keyasint,omitempty"`
}

type wireTransform [math.TransformFloats]float32

type wireNode struct {
	Name      string        `cbor:"1,keyasint"`
	Parent    int           `cbor:"2,keyasint"`
	Transform wireTransform `cbor:"3,keyasint"`
	Flags     uint32        `cbor:"4,keyasint,omitempty"`
	Collision string        `cbor:"5,keyasint,omitempty"`
}

type wirePartition struct {
	ID   uint16 `cbor:"1,keyasint"`
	Name string `cbor:"2,keyasint,omitempty"`
}

type wireSkin struct {
	Bones        []int           `cbor:"1,keyasint"`
	Weights      [][]wireWeight  `cbor:"2,keyasint"`
	SkinToBone   []wireTransform `cbor:"3,keyasint,omitempty"`
	GlobalToSkin wireTransform   `cbor:"4,keyasint"`
}

type wireWeight struct {
	_      struct{} `cbor:",toarray"`
	Vertex uint16
	Weight float32
}

type wireShape struct {
	Name          string          `cbor:"1,keyasint"`
	Parent        int             `cbor:"2,keyasint"`
	Transform     wireTransform   `cbor:"3,keyasint"`
	Vertices      [][3]float32    `cbor:"4,keyasint"`
	Triangles     [][3]uint16     `cbor:"5,keyasint"`
	Normals       [][3]float32    `cbor:"6,keyasint,omitempty"`
	UVs           [][2]float32    `cbor:"7,keyasint,omitempty"`
	Colors        [][4]float32    `cbor:"8,keyasint,omitempty"`
	Partitions    []wirePartition `cbor:"9,keyasint,omitempty"`
	PartitionTris []uint16        `cbor:"10,keyasint,omitempty"`
	SegmentFile   string          `cbor:"11,keyasint,omitempty"`
	Skin          *wireSkin       `cbor:"12,keyasint,omitempty"`
	ExtraChannels []string        `cbor:"13,keyasint,omitempty"`
	Extra         []wireExtra     `cbor:"14,keyasint,omitempty"`
	Collision     string          `cbor:"15,keyasint,omitempty"`
}

type wireExtra struct {
	Kind   uint8      `cbor:"1,keyasint"`
	Name   string     `cbor:"2,keyasint"`
	Value  string     `cbor:"3,keyasint,omitempty"`
	Flags  uint32     `cbor:"4,keyasint,omitempty"`
	Marker [4]float32 `cbor:"5,keyasint,omitempty"`
}

type wireKey struct {
	_           struct{} `cbor:",toarray"`
	Time        float32
	Translation [3]float32
	Rotation    [4]float32 // x, y, z, w
	Scale       float32
}

type wireBlock struct {
	NodeName       string    `cbor:"1,keyasint"`
	ControllerType string    `cbor:"2,keyasint,omitempty"`
	RotationType   uint32    `cbor:"3,keyasint"`
	Keys           []wireKey `cbor:"4,keyasint"`
}

type wireSequence struct {
	Name      string      `cbor:"1,keyasint"`
	StartTime float32     `cbor:"2,keyasint"`
	StopTime  float32     `cbor:"3,keyasint"`
	Blocks    []wireBlock `cbor:"4,keyasint"`
}

// Encode serializes f. It does not validate; see Library.SaveBytes.
func Encode(f *File) ([]byte, error) {
	body, err := encMode.Marshal(toWire(f))
	if err != nil {
		return nil, fmt.Errorf("encoding model: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(headerLen + len(body))
	buf.WriteString(fileMagic)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(fileVersion))
	buf.Write(body)
	return buf.Bytes(), nil
}

// Decode parses data written by Encode and validates the result.
func Decode(data []byte) (*File, error) {
	if len(data) < headerLen || string(data[:len(fileMagic)]) != fileMagic {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(data[len(fileMagic):]); v != fileVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	var wf wireFile
	if err := decMode.Unmarshal(data[headerLen:], &wf); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}

	f, err := fromWire(&wf)
	if err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func flatten(t math.Transform) wireTransform {
	var w wireTransform
	t.Flatten(w[:])
	return w
}

func vec3s(vs []math.Vec3) [][3]float32 {
	if len(vs) == 0 {
		return nil
	}
	out := make([][3]float32, len(vs))
	for i, v := range vs {
		out[i] = [3]float32{v.X, v.Y, v.Z}
	}
	return out
}

func fromVec3s(vs [][3]float32) []math.Vec3 {
	if len(vs) == 0 {
		return nil
	}
	out := make([]math.Vec3, len(vs))
	for i, v := range vs {
		out[i] = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	}
	return out
}

func toWireExtra(extra []ExtraData) []wireExtra {
	if len(extra) == 0 {
		return nil
	}
	out := make([]wireExtra, len(extra))
	for i, ed := range extra {
		out[i] = wireExtra{Kind: uint8(ed.Kind), Name: ed.Name, Value: ed.Value, Flags: ed.Flags, Marker: ed.Marker}
	}
	return out
}

func fromWireExtra(extra []wireExtra) []ExtraData {
	if len(extra) == 0 {
		return nil
	}
	out := make([]ExtraData, len(extra))
	for i, we := range extra {
		out[i] = ExtraData{Kind: ExtraKind(we.Kind), Name: we.Name, Value: we.Value, Flags: we.Flags, Marker: we.Marker}
	}
	return out
}

func toWire(f *File) *wireFile {
	wf := &wireFile{
		ID:    f.ID[:],
		Game:  string(f.Game),
		Extra: toWireExtra(f.Extra),
	}

	for _, n := range f.Nodes {
		wf.Nodes = append(wf.Nodes, wireNode{
			Name:      n.Name,
			Parent:    n.Parent,
			Transform: flatten(n.Transform),
			Flags:     n.Flags,
			Collision: n.Collision,
		})
	}

	for i := range f.Shapes {
		s := &f.Shapes[i]
		ws := wireShape{
			Name:          s.Name,
			Parent:        s.Parent,
			Transform:     flatten(s.Transform),
			Vertices:      vec3s(s.Vertices),
			Triangles:     s.Triangles,
			Normals:       vec3s(s.Normals),
			Colors:        s.Colors,
			PartitionTris: s.PartitionTris,
			SegmentFile:   s.SegmentFile,
			ExtraChannels: s.ExtraChannels,
			Extra:         toWireExtra(s.Extra),
			Collision:     s.Collision,
		}
		for _, uv := range s.UVs {
			ws.UVs = append(ws.UVs, [2]float32{uv.X, uv.Y})
		}
		for _, p := range s.Partitions {
			ws.Partitions = append(ws.Partitions, wirePartition{ID: p.ID, Name: p.Name})
		}
		if s.Skin != nil {
			sk := &wireSkin{
				Bones:        s.Skin.Bones,
				GlobalToSkin: flatten(s.Skin.GlobalToSkin),
			}
			for _, bw := range s.Skin.Weights {
				ww := make([]wireWeight, len(bw))
				for j, w := range bw {
					ww[j] = wireWeight{Vertex: w.Vertex, Weight: w.Weight}
				}
				sk.Weights = append(sk.Weights, ww)
			}
			for _, xf := range s.Skin.SkinToBone {
				sk.SkinToBone = append(sk.SkinToBone, flatten(xf))
			}
			ws.Skin = sk
		}
		wf.Shapes = append(wf.Shapes, ws)
	}

	for i := range f.Sequences {
		seq := &f.Sequences[i]
		wseq := wireSequence{Name: seq.Name, StartTime: seq.StartTime, StopTime: seq.StopTime}
		for _, b := range seq.Blocks {
			wb := wireBlock{
				NodeName:       b.NodeName,
				ControllerType: b.ControllerType,
				RotationType:   uint32(b.Track.RotationType),
				Keys:           make([]wireKey, len(b.Track.Keys)),
			}
			for j, k := range b.Track.Keys {
				wb.Keys[j] = wireKey{
					Time:        k.Time,
					Translation: [3]float32{k.Translation.X, k.Translation.Y, k.Translation.Z},
					Rotation:    [4]float32{k.Rotation.X, k.Rotation.Y, k.Rotation.Z, k.Rotation.W},
					Scale:       k.Scale,
				}
			}
			wseq.Blocks = append(wseq.Blocks, wb)
		}
		wf.Sequences = append(wf.Sequences, wseq)
	}

	return wf
}

func fromWire(wf *wireFile) (*File, error) {
	id, err := uuid.FromBytes(wf.ID)
	if err != nil {
		return nil, fmt.Errorf("decoding model id: %w", err)
	}

	f := &File{ID: id, Game: Game(wf.Game), Extra: fromWireExtra(wf.Extra)}

	for _, n := range wf.Nodes {
		f.Nodes = append(f.Nodes, Node{
			Name:      n.Name,
			Parent:    n.Parent,
			Transform: math.TransformFromFloats(n.Transform[:]),
			Flags:     n.Flags,
			Collision: n.Collision,
		})
	}

	for i := range wf.Shapes {
		ws := &wf.Shapes[i]
		s := Shape{
			Name:          ws.Name,
			Parent:        ws.Parent,
			Transform:     math.TransformFromFloats(ws.Transform[:]),
			Vertices:      fromVec3s(ws.Vertices),
			Triangles:     ws.Triangles,
			Normals:       fromVec3s(ws.Normals),
			Colors:        ws.Colors,
			PartitionTris: ws.PartitionTris,
			SegmentFile:   ws.SegmentFile,
			ExtraChannels: ws.ExtraChannels,
			Extra:         fromWireExtra(ws.Extra),
			Collision:     ws.Collision,
		}
		for _, uv := range ws.UVs {
			s.UVs = append(s.UVs, math.Vec2{X: uv[0], Y: uv[1]})
		}
		for _, p := range ws.Partitions {
			s.Partitions = append(s.Partitions, Partition{ID: p.ID, Name: p.Name})
		}
		if ws.Skin != nil {
			sk := &Skin{
				Bones:        ws.Skin.Bones,
				GlobalToSkin: math.TransformFromFloats(ws.Skin.GlobalToSkin[:]),
			}
			for _, ww := range ws.Skin.Weights {
				bw := make([]BoneWeight, len(ww))
				for j, w := range ww {
					bw[j] = BoneWeight{Vertex: w.Vertex, Weight: w.Weight}
				}
				sk.Weights = append(sk.Weights, bw)
			}
			for _, xf := range ws.Skin.SkinToBone {
				sk.SkinToBone = append(sk.SkinToBone, math.TransformFromFloats(xf[:]))
			}
			s.Skin = sk
		}
		f.Shapes = append(f.Shapes, s)
	}

	for _, wseq := range wf.Sequences {
		seq := Sequence{Name: wseq.Name, StartTime: wseq.StartTime, StopTime: wseq.StopTime}
		for _, wb := range wseq.Blocks {
			b := ControlledBlock{
				NodeName:       wb.NodeName,
				ControllerType: wb.ControllerType,
				Track:          TransformTrack{RotationType: KeyType(wb.RotationType)},
			}
			for _, k := range wb.Keys {
				b.Track.Keys = append(b.Track.Keys, TransformKey{
					Time:        k.Time,
					Translation: math.Vec3{X: k.Translation[0], Y: k.Translation[1], Z: k.Translation[2]},
					Rotation:    math.Quat{X: k.Rotation[0], Y: k.Rotation[1], Z: k.Rotation[2], W: k.Rotation[3]},
					Scale:       k.Scale,
				})
			}
			seq.Blocks = append(seq.Blocks, b)
		}
		f.Sequences = append(f.Sequences, seq)
	}

	return f, nil
}

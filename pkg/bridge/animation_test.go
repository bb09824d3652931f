package bridge

import (
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/nifbridge/pkg/math"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/status"
)

func samples(times ...float32) []float32 {
	out := make([]float32, 0, len(times)*TrackStride)
	for i, tm := range times {
		out = append(out, tm, float32(i), 0, 0, 1, 0, 0, 0, 1)
	}
	return out
}

func trackOf(t *testing.T, b *Bridge, node Handle, seq string) []float32 {
	t.Helper()
	n, code := b.TrackSize(node, seq)
	require.Equal(t, status.OK, code)
	out := make([]float32, n)
	_, code = b.Track(node, seq, out)
	require.Equal(t, status.OK, code)
	return out
}

func TestTrack_RoundTrip(t *testing.T) {
	b := newBridge(t)
	asset := mustAsset(t, b)
	root := mustRoot(t, b, asset)
	bone := mustNode(t, b, asset, "Bone", root, translated(0, 0, 0))

	in := samples(0, 0.5, 0.5, 1)
	require.Equal(t, status.OK, b.SetTrack(bone, "Walk", in))
	assert.Equal(t, in, trackOf(t, b, bone, "Walk"))

	n, code := b.SequenceCount(asset)
	require.Equal(t, status.OK, code)
	assert.Equal(t, 1, n)

	name := make([]byte, 8)
	n, code = b.SequenceName(asset, 0, name)
	require.Equal(t, status.OK, code)
	assert.Equal(t, "Walk", string(name[:n]))

	start, stop, code := b.SequenceRange(asset, "Walk")
	require.Equal(t, status.OK, code)
	assert.Equal(t, float32(0), start)
	assert.Equal(t, float32(1), stop)

	// A second node widens the range.
	require.Equal(t, status.OK, b.SetTrack(root, "Walk", samples(0.25, 3)))
	_, stop, _ = b.SequenceRange(asset, "Walk")
	assert.Equal(t, float32(3), stop)
	n, _ = b.SequenceCount(asset)
	assert.Equal(t, 1, n)
}

func TestTrack_NonMonotonicRejected(t *testing.T) {
	b := newBridge(t)
	asset := mustAsset(t, b)
	bone := mustRoot(t, b, asset)

	require.Equal(t, status.OK, b.SetTrack(bone, "Idle", samples(0, 1)))
	assert.Equal(t, status.NonMonotonicTime, b.SetTrack(bone, "Idle", samples(0, 0.5, 0.3)))
	assert.Contains(t, lastError(b, status.ScopeNode), "non_monotonic_time")
	assert.Equal(t, samples(0, 1), trackOf(t, b, bone, "Idle"))

	nan := float32(stdmath.NaN())
	for _, times := range [][]float32{{0, nan, -5}, {nan}, {0, 1, nan}} {
		assert.Equal(t, status.NonMonotonicTime, b.SetTrack(bone, "Idle", samples(times...)), "%v", times)
	}
	assert.Equal(t, samples(0, 1), trackOf(t, b, bone, "Idle"))

	assert.Equal(t, status.MalformedGeometry, b.SetTrack(bone, "Idle", make([]float32, TrackStride+1)))
	assert.Equal(t, status.MalformedGeometry, b.SetTrack(bone, "", samples(0)))
}

func TestTrack_Absent(t *testing.T) {
	b := newBridge(t)
	asset := mustAsset(t, b)
	root := mustRoot(t, b, asset)
	bone := mustNode(t, b, asset, "Bone", root, translated(0, 0, 0))
	require.Equal(t, status.OK, b.SetTrack(bone, "Idle", samples(0, 1)))

	for _, seq := range []string{"Idle", "Missing"} {
		n, code := b.TrackSize(root, seq)
		assert.Equal(t, status.OK, code)
		assert.Zero(t, n)
	}

	_, _, code := b.SequenceRange(asset, "Missing")
	assert.Equal(t, status.InvalidHandle, code)
	_, code = b.SequenceName(asset, 3, nil)
	assert.Equal(t, status.InvalidHandle, code)
}

func TestTrack_ShortBuffer(t *testing.T) {
	b := newBridge(t)
	asset := mustAsset(t, b)
	bone := mustRoot(t, b, asset)
	require.Equal(t, status.OK, b.SetTrack(bone, "Idle", samples(0, 1)))

	dst := make([]float32, 2*TrackStride-1)
	n, code := b.Track(bone, "Idle", dst)
	assert.Equal(t, status.BufferTooSmall, code)
	assert.Equal(t, 2*TrackStride, n)
	assert.Equal(t, make([]float32, 2*TrackStride-1), dst)
}

func TestTrack_XYZUnsupported(t *testing.T) {
	f := nifly.NewFile(nifly.GameSkyrim, "")
	f.Sequences = []nifly.Sequence{{
		Name:     "Spin",
		StopTime: 1,
		Blocks: []nifly.ControlledBlock{{
			NodeName:       nifly.RootName,
			ControllerType: nifly.TransformController,
			Track: nifly.TransformTrack{
				RotationType: nifly.KeyXYZ,
				Keys:         []nifly.TransformKey{{Rotation: math.QuatIdentity(), Scale: 1}},
			},
		}},
	}}
	data, err := nifly.Encode(f)
	require.NoError(t, err)

	b := newBridge(t)
	asset, code := b.LoadAssetBytes(data)
	require.Equal(t, status.OK, code)
	root := mustRoot(t, b, asset)

	_, code = b.TrackSize(root, "Spin")
	assert.Equal(t, status.Unsupported, code)
	_, code = b.Track(root, "Spin", make([]float32, TrackStride))
	assert.Equal(t, status.Unsupported, code)

	// Replacing the track converts it to quaternion keys.
	require.Equal(t, status.OK, b.SetTrack(root, "Spin", samples(0)))
	assert.Equal(t, samples(0), trackOf(t, b, root, "Spin"))
}

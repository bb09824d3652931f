package bridge

import (
	"errors"

	"github.com/Faultbox/nifbridge/pkg/math"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/status"
)

// TrackStride is the number of floats per flat animation sample: time,
// translation xyz, rotation quaternion w x y z, scale.
const TrackStride = 9

// SequenceCount returns the number of named sequences in the asset.
func (b *Bridge) SequenceCount(h Handle) (n int, code status.Code) {
	code = b.call(status.ScopeAsset, "sequence_count", func() error {
		a, err := b.resolveAsset("sequence_count", h)
		if err != nil {
			return err
		}
		n = len(a.file.Sequences)
		return nil
	})
	return n, code
}

// SequenceName copies the name of sequence i into dst.
func (b *Bridge) SequenceName(h Handle, i int, dst []byte) (n int, code status.Code) {
	code = b.call(status.ScopeAsset, "sequence_name", func() error {
		a, err := b.resolveAsset("sequence_name", h)
		if err != nil {
			return err
		}
		if i < 0 || i >= len(a.file.Sequences) {
			return status.New(status.InvalidHandle).Op("sequence_name").
				Detail("sequence %d of %d", i, len(a.file.Sequences)).Build()
		}
		n, err = copyString("sequence_name", a.file.Sequences[i].Name, dst)
		return err
	})
	return n, code
}

// SequenceRange returns the start and stop time of the named sequence.
func (b *Bridge) SequenceRange(h Handle, seq string) (start, stop float32, code status.Code) {
	code = b.call(status.ScopeAsset, "sequence_range", func() error {
		a, err := b.resolveAsset("sequence_range", h)
		if err != nil {
			return err
		}
		i := a.file.FindSequence(seq)
		if i < 0 {
			return status.New(status.InvalidHandle).Op("sequence_range").Detail("no sequence %q", seq).Build()
		}
		start, stop = a.file.Sequences[i].StartTime, a.file.Sequences[i].StopTime
		return nil
	})
	return start, stop, code
}

var errNoTrack = errors.New("no track")

// track returns the node's track in seq, or errNoTrack.
func track(op string, r *nodeRef, seq string) (*nifly.TransformTrack, error) {
	f := r.asset.file
	i := f.FindSequence(seq)
	if i < 0 {
		return nil, errNoTrack
	}
	blk := f.Sequences[i].Block(r.node().Name)
	if blk == nil || blk.ControllerType != nifly.TransformController {
		return nil, errNoTrack
	}
	if blk.Track.RotationType == nifly.KeyXYZ {
		return nil, status.New(status.Unsupported).Op(op).
			Detail("track of %q in %q uses xyz rotation keys", blk.NodeName, seq).Build()
	}
	return &blk.Track, nil
}

// TrackSize returns the float count of the node's flat track in seq. A node
// the sequence does not animate has an empty track.
func (b *Bridge) TrackSize(h Handle, seq string) (n int, code status.Code) {
	code = b.call(status.ScopeNode, "track_size", func() error {
		r, err := b.resolveNode("track_size", h)
		if err != nil {
			return err
		}
		t, err := track("track_size", r, seq)
		if errors.Is(err, errNoTrack) {
			return nil
		}
		if err != nil {
			return err
		}
		n = len(t.Keys) * TrackStride
		return nil
	})
	return n, code
}

// Track writes the node's samples in seq, stride TrackStride, in stored
// order. No resampling happens.
func (b *Bridge) Track(h Handle, seq string, dst []float32) (n int, code status.Code) {
	code = b.call(status.ScopeNode, "track", func() error {
		r, err := b.resolveNode("track", h)
		if err != nil {
			return err
		}
		t, err := track("track", r, seq)
		if errors.Is(err, errNoTrack) {
			return nil
		}
		if err != nil {
			return err
		}
		n = len(t.Keys) * TrackStride
		if len(dst) < n {
			return status.TooSmall("track", n, len(dst))
		}
		for i, k := range t.Keys {
			o := dst[i*TrackStride : (i+1)*TrackStride]
			o[0] = k.Time
			o[1], o[2], o[3] = k.Translation.X, k.Translation.Y, k.Translation.Z
			o[4], o[5], o[6], o[7] = k.Rotation.W, k.Rotation.X, k.Rotation.Y, k.Rotation.Z
			o[8] = k.Scale
		}
		return nil
	})
	return n, code
}

// SetTrack replaces the node's track in seq with samples, creating the
// sequence and its block when absent. Times must never decrease; they are
// not sorted. The sequence range grows to cover the new samples.
func (b *Bridge) SetTrack(h Handle, seq string, samples []float32) status.Code {
	return b.call(status.ScopeNode, "set_track", func() error {
		r, err := b.resolveNode("set_track", h)
		if err != nil {
			return err
		}
		if seq == "" {
			return status.Malformed("set_track", "empty sequence name")
		}
		if len(samples)%TrackStride != 0 {
			return status.Malformed("set_track", "%d floats is not a multiple of %d", len(samples), TrackStride)
		}

		keys := make([]nifly.TransformKey, len(samples)/TrackStride)
		for i := range keys {
			s := samples[i*TrackStride : (i+1)*TrackStride]
			keys[i] = nifly.TransformKey{
				Time:        s[0],
				Translation: math.Vec3{X: s[1], Y: s[2], Z: s[3]},
				Rotation:    math.Quat{W: s[4], X: s[5], Y: s[6], Z: s[7]},
				Scale:       s[8],
			}
		}
		if err := nifly.CheckKeyTimes(keys); err != nil {
			return status.New(status.NonMonotonicTime).Op("set_track").Cause(err).Build()
		}

		f := r.asset.file
		si := f.FindSequence(seq)
		if si < 0 {
			f.Sequences = append(f.Sequences, nifly.Sequence{Name: seq})
			si = len(f.Sequences) - 1
		}
		sq := &f.Sequences[si]
		name := r.node().Name
		blk := sq.Block(name)
		if blk == nil {
			sq.Blocks = append(sq.Blocks, nifly.ControlledBlock{NodeName: name})
			blk = &sq.Blocks[len(sq.Blocks)-1]
		}
		blk.ControllerType = nifly.TransformController
		blk.Track = nifly.TransformTrack{RotationType: nifly.KeyLinear, Keys: keys}

		if len(keys) > 0 {
			first, last := keys[0].Time, keys[len(keys)-1].Time
			if len(sq.Blocks) == 1 && sq.StartTime == 0 && sq.StopTime == 0 {
				sq.StartTime = first
			}
			sq.StartTime = min(sq.StartTime, first)
			sq.StopTime = max(sq.StopTime, last)
		}
		return nil
	})
}

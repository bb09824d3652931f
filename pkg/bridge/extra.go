package bridge

import (
	"github.com/Faultbox/nifbridge/pkg/handle"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/status"
)

// ExtraData is a name/value record on the root or a shape.
type ExtraData = nifly.ExtraData

// ExtraInfo describes one extra data record. Name and value bytes are
// fetched with ExtraName and ExtraValue.
type ExtraInfo struct {
	Kind     nifly.ExtraKind
	Flags    uint32
	Marker   [4]float32
	NameLen  int
	ValueLen int
}

type extraList struct {
	records *[]nifly.ExtraData
	owner   string
	root    bool
}

// extraOf resolves an asset handle to the root's records and a shape handle
// to the shape's.
func (b *Bridge) extraOf(op string, h Handle) (extraList, error) {
	if h.Kind() == handle.KindShape {
		s, err := b.resolveShape(op, h)
		if err != nil {
			return extraList{}, err
		}
		shape := s.shape()
		return extraList{records: &shape.Extra, owner: "shape " + shape.Name}, nil
	}
	a, err := b.resolveAsset(op, h)
	if err != nil {
		return extraList{}, err
	}
	return extraList{records: &a.file.Extra, owner: "root", root: true}, nil
}

func (l extraList) at(op string, i int) (*nifly.ExtraData, error) {
	if i < 0 || i >= len(*l.records) {
		return nil, status.New(status.InvalidHandle).Op(op).
			Detail("%s has no extra data record %d (%d records)", l.owner, i, len(*l.records)).Build()
	}
	return &(*l.records)[i], nil
}

// ExtraCount returns the number of extra data records on an asset's root
// or on a shape.
func (b *Bridge) ExtraCount(h Handle) (n int, code status.Code) {
	code = b.call(scopeOf(h), "extra_count", func() error {
		l, err := b.extraOf("extra_count", h)
		if err != nil {
			return err
		}
		n = len(*l.records)
		return nil
	})
	return n, code
}

// Extra describes record i.
func (b *Bridge) Extra(h Handle, i int) (info ExtraInfo, code status.Code) {
	code = b.call(scopeOf(h), "extra", func() error {
		l, err := b.extraOf("extra", h)
		if err != nil {
			return err
		}
		ed, err := l.at("extra", i)
		if err != nil {
			return err
		}
		info = ExtraInfo{
			Kind:     ed.Kind,
			Flags:    ed.Flags,
			Marker:   ed.Marker,
			NameLen:  len(ed.Name),
			ValueLen: len(ed.Value),
		}
		return nil
	})
	return info, code
}

// ExtraName copies record i's name into dst.
func (b *Bridge) ExtraName(h Handle, i int, dst []byte) (n int, code status.Code) {
	code = b.call(scopeOf(h), "extra_name", func() error {
		l, err := b.extraOf("extra_name", h)
		if err != nil {
			return err
		}
		ed, err := l.at("extra_name", i)
		if err != nil {
			return err
		}
		n, err = copyString("extra_name", ed.Name, dst)
		return err
	})
	return n, code
}

// ExtraValue copies record i's string value into dst.
func (b *Bridge) ExtraValue(h Handle, i int, dst []byte) (n int, code status.Code) {
	code = b.call(scopeOf(h), "extra_value", func() error {
		l, err := b.extraOf("extra_value", h)
		if err != nil {
			return err
		}
		ed, err := l.at("extra_value", i)
		if err != nil {
			return err
		}
		n, err = copyString("extra_value", ed.Value, dst)
		return err
	})
	return n, code
}

// AddExtra appends a record and returns its index. Kinds outside the four
// modelled block types are Unsupported; a BSXFlags or BSInvMarker record on
// a shape, or a second one on the root, is MalformedGeometry.
func (b *Bridge) AddExtra(h Handle, ed ExtraData) (i int, code status.Code) {
	code = b.call(scopeOf(h), "add_extra", func() error {
		l, err := b.extraOf("add_extra", h)
		if err != nil {
			return err
		}
		if _, err := nifly.ParseExtraKind(ed.Kind.String()); err != nil {
			return status.New(status.Unsupported).Op("add_extra").Cause(err).Build()
		}

		next := append(append([]nifly.ExtraData(nil), *l.records...), ed)
		if err := nifly.ValidateExtra(l.owner, next, l.root); err != nil {
			return status.New(status.MalformedGeometry).Op("add_extra").Cause(err).Build()
		}
		*l.records = next
		i = len(next) - 1
		return nil
	})
	return i, code
}

// RemoveExtra deletes record i. Later records shift down by one.
func (b *Bridge) RemoveExtra(h Handle, i int) status.Code {
	return b.call(scopeOf(h), "remove_extra", func() error {
		l, err := b.extraOf("remove_extra", h)
		if err != nil {
			return err
		}
		if _, err := l.at("remove_extra", i); err != nil {
			return err
		}
		recs := *l.records
		*l.records = append(recs[:i:i], recs[i+1:]...)
		return nil
	})
}

// Collision reports Unsupported when the node or shape carries a collision
// object, which has no flat layout, and OK otherwise.
func (b *Bridge) Collision(h Handle) status.Code {
	return b.call(scopeOf(h), "collision", func() error {
		var owner, block string
		if h.Kind() == handle.KindShape {
			s, err := b.resolveShape("collision", h)
			if err != nil {
				return err
			}
			owner, block = "shape "+s.shape().Name, s.shape().Collision
		} else {
			n, err := b.resolveNode("collision", h)
			if err != nil {
				return err
			}
			owner, block = "node "+n.node().Name, n.node().Collision
		}
		if block == "" {
			return nil
		}
		return status.New(status.Unsupported).Op("collision").
			Detail("%s carries %s, which has no flat layout", owner, block).Build()
	})
}

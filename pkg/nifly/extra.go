package nifly

import (
	"errors"
	"fmt"
)

var ErrInvalidExtra = errors.New("invalid extra data")

// ExtraKind is the block type of an extra data record.
type ExtraKind uint8

const (
	ExtraString        ExtraKind = 1 // NiStringExtraData: name, value
	ExtraBehaviorGraph ExtraKind = 2 // BSBehaviorGraphExtraData: name, graph file, controls-base-skeleton flag
	ExtraBSXFlags      ExtraKind = 3 // BSXFlags: name, flag bits
	ExtraInvMarker     ExtraKind = 4 // BSInvMarker: name, rotation x/y/z, zoom
)

var extraKindNames = map[ExtraKind]string{
	ExtraString:        "NiStringExtraData",
	ExtraBehaviorGraph: "BSBehaviorGraphExtraData",
	ExtraBSXFlags:      "BSXFlags",
	ExtraInvMarker:     "BSInvMarker",
}

func (k ExtraKind) String() string {
	if name, ok := extraKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("extra(%d)", uint8(k))
}

// ParseExtraKind maps a block type name to its kind.
func ParseExtraKind(name string) (ExtraKind, error) {
	for k, n := range extraKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidExtra, name)
}

// RootOnly reports whether records of kind k may only hang off the root.
func (k ExtraKind) RootOnly() bool {
	return k == ExtraBSXFlags || k == ExtraInvMarker
}

// ExtraData is a name/value record attached to the root or to a shape.
type ExtraData struct {
	Kind  ExtraKind
	Name  string
	Value string // string value or behavior graph file

	// Flags holds BSX flag bits, or 1 for a behavior graph that controls
	// the base skeleton.
	Flags uint32

	// Marker is the inventory marker's rotation x, y, z and zoom.
	Marker [4]float32
}

// ValidateExtra checks records attached to the root (root true) or to a
// shape. BSXFlags and BSInvMarker appear at most once, on the root.
func ValidateExtra(owner string, extra []ExtraData, root bool) error {
	var seen [ExtraInvMarker + 1]bool
	for i, ed := range extra {
		if _, ok := extraKindNames[ed.Kind]; !ok {
			return fmt.Errorf("%w: %s record %d has kind %d", ErrInvalidExtra, owner, i, ed.Kind)
		}
		if !ed.Kind.RootOnly() {
			continue
		}
		if !root {
			return fmt.Errorf("%w: %s cannot carry %s", ErrInvalidExtra, owner, ed.Kind)
		}
		if seen[ed.Kind] {
			return fmt.Errorf("%w: %s carries %s twice", ErrInvalidExtra, owner, ed.Kind)
		}
		seen[ed.Kind] = true
	}
	return nil
}

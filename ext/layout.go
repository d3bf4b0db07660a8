package ext

import (
	"fmt"

	"github.com/dianpeng/hostext/host"
)

// Layout is the computed memory plan of one native extension type. It is
// composed once when the type registers and then shared, immutable, by every
// instance. A composed layout nests its base's layout at offset 0 of the
// same region, the own level's fields follow after the base's size, so the
// base view and the own view alias one allocation with disjoint field
// ranges. There is no dispatch through the chain, every offset is a plain
// byte constant fixed at registration.
type Layout struct {
	// the level below this one, nil only for terminal layouts
	base *Layout

	// a terminal layout is owned by the host itself (the plain object
	// header, or some foreign native base), nothing of ours lives in it
	native bool

	// native payload cell. Size is zero for payload-less levels, one
	// cell otherwise, the payload value lives behind a runtime handle
	payloadOffset int
	payloadSize   int

	// optional instance dictionary / weakref list cells, offset 0 means
	// the slot is absent
	dictOffset    int
	weakrefOffset int

	size int
}

// TerminalLayout describes a region the host lays out on its own, identified
// only by its size.
func TerminalLayout(size int) *Layout {
	must(size >= host.HeaderSize, "terminal layout smaller than the object header")
	return &Layout{
		native: true,
		size:   size,
	}
}

// ComposeLayout stacks one level on top of base. Field order after the base
// is payload, dictionary cell, weakref cell, each offset strictly increasing
// and the total size exactly the sum of the parts.
func ComposeLayout(base *Layout, hasPayload bool, wantDict bool, wantWeakref bool) (*Layout, error) {
	if base == nil {
		return nil, fmt.Errorf("composed layout requires a base layout")
	}

	l := &Layout{base: base}
	off := base.size

	if hasPayload {
		l.payloadOffset = off
		l.payloadSize = host.CellSize
		off += host.CellSize
	}
	if wantDict {
		l.dictOffset = off
		off += host.CellSize
	}
	if wantWeakref {
		l.weakrefOffset = off
		off += host.CellSize
	}
	l.size = off

	must(l.size == base.size+l.payloadSize+
		cellIf(wantDict)+cellIf(wantWeakref), "layout size must be the sum of its parts")
	return l, nil
}

func cellIf(b bool) int {
	if b {
		return host.CellSize
	}
	return 0
}

func (l *Layout) Size() int {
	return l.size
}

func (l *Layout) Base() *Layout {
	return l.base
}

func (l *Layout) IsNative() bool {
	return l.native
}

// NeedInit reports whether construction must supply a payload for this
// level. Payload-less levels have nothing to initialize.
func (l *Layout) NeedInit() bool {
	return l.payloadSize != 0
}

func (l *Layout) PayloadOffset() int {
	return l.payloadOffset
}

func (l *Layout) DictOffset() int {
	return l.dictOffset
}

func (l *Layout) WeakrefOffset() int {
	return l.weakrefOffset
}

// writePayload pins v and performs the single raw cell write construction is
// allowed for this level. The cell must still be in its zeroed default
// state, a payload is never written twice.
func (l *Layout) writePayload(rt *host.Runtime, region []byte, v host.Value) {
	must(l.payloadSize != 0, "level has no payload slot")
	must(host.ReadCell(region, l.payloadOffset) == 0, "payload slot already written")
	host.WriteCell(region, l.payloadOffset, rt.Pin(v))
}

// payload returns the payload value stored at this level, if any.
func (l *Layout) payload(rt *host.Runtime, region []byte) (host.Value, bool) {
	if l.payloadSize == 0 {
		return nil, false
	}
	h := host.ReadCell(region, l.payloadOffset)
	if h == 0 {
		return nil, false
	}
	return rt.Resolve(h)
}

// dropPayload runs dtor on the stored payload, releases its handle and
// zeroes the cell. Safe to call on empty or payload-less levels.
func (l *Layout) dropPayload(rt *host.Runtime, region []byte, dtor func(*host.Runtime, host.Value)) {
	if l.payloadSize == 0 {
		return
	}
	h := host.ReadCell(region, l.payloadOffset)
	if h == 0 {
		return
	}
	if v, ok := rt.Resolve(h); ok && dtor != nil {
		dtor(rt, v)
	}
	rt.Release(h)
	host.WriteCell(region, l.payloadOffset, 0)
}

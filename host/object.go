package host

import (
	"encoding/binary"
)

// Value is any host visible value. Instances of registered native extension
// types show up as *Object, scalars and containers are whatever the embedder
// passes through, the object model does not interpret them.
type Value interface{}

const (
	// HeaderSize is the size of the host object header. Every instance
	// region starts with one, it stands in for the reference count and the
	// type link the host keeps at the front of each object.
	HeaderSize = 16

	// CellSize is the width of one slot cell inside an instance region.
	// Native payloads, instance dictionaries and weak reference lists all
	// occupy exactly one cell, holding a handle into the runtime heap.
	CellSize = 8
)

// Object is one instance of a host type. The region is a single contiguous
// allocation whose layout is fixed by the owning type object, byte 0 is the
// start of the object header. The header fields are mirrored here on the go
// side so they stay typed, the region bytes after HeaderSize belong to the
// type's composed layout.
type Object struct {
	typ    *TypeObject
	refcnt int64
	region []byte
}

func (o *Object) Type() *TypeObject {
	return o.typ
}

// Region exposes the raw instance memory. Callers index it with the byte
// offsets recorded on the type object, never with offsets of their own.
func (o *Object) Region() []byte {
	return o.region
}

func (o *Object) Refcnt() int64 {
	return o.refcnt
}

func Incref(o *Object) {
	o.refcnt++
}

// Decref drops one reference and runs the type's dealloc slot when the count
// reaches zero. The dealloc slot owns the rest of the teardown, including
// giving the region back to the allocator.
func Decref(rt *Runtime, o *Object) {
	o.refcnt--
	if o.refcnt > 0 {
		return
	}
	if o.typ != nil && o.typ.Dealloc != nil {
		o.typ.Dealloc(rt, o)
	} else {
		FreeFallback(rt, o)
	}
}

// ReadCell and WriteCell are the only way region cells are accessed. A cell
// holds either 0, meaning empty, or a handle pinned in the runtime heap.
func ReadCell(region []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(region[offset : offset+CellSize])
}

func WriteCell(region []byte, offset int, h uint64) {
	binary.LittleEndian.PutUint64(region[offset:offset+CellSize], h)
}

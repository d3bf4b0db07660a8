package host

import (
	"fmt"
)

// GenericAlloc is the host's default allocation hook. It hands out a zeroed
// region of the type's basic size with the header filled in and one strong
// reference held by the caller.
func GenericAlloc(rt *Runtime, t *TypeObject) (*Object, error) {
	if !t.IsReady() {
		return nil, fmt.Errorf("cannot allocate instance of %s, type is not ready", t.Name())
	}
	o := &Object{
		typ:    t,
		refcnt: 1,
		region: make([]byte, t.BasicSize),
	}
	rt.liveobj++
	return o, nil
}

// ObjectFree returns a non GC region to the allocator.
func ObjectFree(rt *Runtime, o *Object) {
	releaseRegion(rt, o)
}

// GCDel returns a GC tracked region to the allocator.
func GCDel(rt *Runtime, o *Object) {
	releaseRegion(rt, o)
}

func releaseRegion(rt *Runtime, o *Object) {
	rt.liveobj--
	o.region = nil
	o.typ = nil
}

// FreeFallback frees an instance whose type has no custom free hook. The
// free-vs-GC-free decision is made from the type's flag word at runtime, not
// at registration, so a flag flipped later is honored.
func FreeFallback(rt *Runtime, o *Object) {
	t := o.typ
	if t != nil && t.IsGC() {
		GCDel(rt, o)
	} else {
		ObjectFree(rt, o)
	}
}

// CallFinalizerFromDealloc runs the type's finalizer hook on the way down.
// A false return means the finalizer resurrected the object and the caller
// must abandon the rest of the teardown.
func CallFinalizerFromDealloc(rt *Runtime, o *Object) bool {
	t := o.typ
	if t == nil || t.Finalize == nil {
		return true
	}
	return t.Finalize(rt, o)
}

package host

import (
	"fmt"

	"github.com/google/uuid"
)

// instance dictionary and weak reference support. Both live behind one cell
// inside the instance region, at the byte offsets the type object records.
// An empty cell means the slot was never touched, the backing containers are
// created lazily on first use.

// GetDict returns the instance dictionary, creating it on first access. The
// type must have declared a dictionary slot.
func GetDict(rt *Runtime, o *Object) (map[string]Value, error) {
	t := o.typ
	if t.DictOffset == 0 {
		return nil, fmt.Errorf("'%s' object has no dictionary slot", t.Name())
	}
	h := ReadCell(o.region, t.DictOffset)
	if h != 0 {
		v, ok := rt.Resolve(h)
		if !ok {
			return nil, fmt.Errorf("'%s' object holds a dangling dictionary handle", t.Name())
		}
		return v.(map[string]Value), nil
	}
	d := make(map[string]Value)
	WriteCell(o.region, t.DictOffset, rt.Pin(d))
	return d, nil
}

// ClearDictCell empties the dictionary cell at offset inside region. Used by
// teardown, which walks every level of a composed layout and therefore may
// clear cells that belong to a base type rather than the instance's own.
func ClearDictCell(rt *Runtime, region []byte, offset int) {
	if offset == 0 {
		return
	}
	if h := ReadCell(region, offset); h != 0 {
		rt.Release(h)
		WriteCell(region, offset, 0)
	}
}

// Weakref is a non owning reference to an object. It carries a token rather
// than a pointer, once the referent clears its weakref list the token is
// gone from the registry and every outstanding Weakref goes dead at once.
type Weakref struct {
	rt    *Runtime
	token uuid.UUID
}

// Get returns the referent, or false if it has been torn down.
func (w *Weakref) Get() (*Object, bool) {
	o, ok := w.rt.weaktab[w.token]
	return o, ok
}

type weaklist struct {
	tokens []uuid.UUID
}

// NewWeakref creates a weak reference to o. The type must have declared a
// weak reference slot.
func NewWeakref(rt *Runtime, o *Object) (*Weakref, error) {
	t := o.typ
	if t.WeakrefOffset == 0 {
		return nil, fmt.Errorf("cannot create weak reference to '%s' object", t.Name())
	}
	var wl *weaklist
	h := ReadCell(o.region, t.WeakrefOffset)
	if h != 0 {
		v, ok := rt.Resolve(h)
		if !ok {
			return nil, fmt.Errorf("'%s' object holds a dangling weakref handle", t.Name())
		}
		wl = v.(*weaklist)
	} else {
		wl = &weaklist{}
		WriteCell(o.region, t.WeakrefOffset, rt.Pin(wl))
	}
	tok := uuid.New()
	wl.tokens = append(wl.tokens, tok)
	rt.weaktab[tok] = o
	return &Weakref{rt: rt, token: tok}, nil
}

// ClearWeakrefCell invalidates every weak reference recorded in the cell at
// offset and empties the cell.
func ClearWeakrefCell(rt *Runtime, region []byte, offset int) {
	if offset == 0 {
		return
	}
	h := ReadCell(region, offset)
	if h == 0 {
		return
	}
	if v, ok := rt.Resolve(h); ok {
		wl := v.(*weaklist)
		for _, tok := range wl.tokens {
			delete(rt.weaktab, tok)
		}
	}
	rt.Release(h)
	WriteCell(region, offset, 0)
}

package ext

import (
	"github.com/dianpeng/hostext/host"
)

// method descriptor kinds. The derive side tags every descriptor it emits
// with one of these, registration sorts them into the right place of the
// type object.
type MethodKind int

const (
	// the designated constructor, lands in the type's New slot
	MethodNew MethodKind = iota
	// the designated call entry, lands in the type's Call slot
	MethodCall
	MethodOrdinary
	MethodClass
	MethodStatic
	MethodGetter
	MethodSetter
)

// MethodDescr is one method or property descriptor of a class. Only the
// field matching Kind is consulted.
type MethodDescr struct {
	Kind MethodKind
	Name string
	Doc  string

	Meth   host.MethodFunc
	New    host.NewFunc
	Call   host.CallFunc
	Getter host.GetterFunc
	Setter host.SetterFunc
}

// ClassDef declares one native extension type. The derive machinery emits
// one of these per exported type, hand written here and in tests. All the
// capability style fields follow the usual convention, nil means the class
// simply does not have that capability, so the per class answers the
// registration engine needs are fixed before anything runs.
//
// A ClassDef is also where the engine parks its per type state, the shared
// type object, the composed layout and the permanent registration error if
// bringing the type up ever failed.
type ClassDef struct {
	Name   string
	Module string
	Doc    string

	// base chain. Base links another ClassDef of ours, BaseNative links a
	// terminal type the host itself laid out. At most one may be set,
	// neither set means the type extends the plain host object
	Base       *ClassDef
	BaseNative *host.TypeObject

	// HasPayload declares a native payload for this level. A payload-less
	// class contributes no bytes and needs no initialization
	HasPayload bool

	// Destructor runs on the payload value during instance teardown
	Destructor func(rt *host.Runtime, payload host.Value)

	WantDict    bool
	WantWeakref bool

	// GC requests cyclic collection support even without traverse/clear
	// hooks of its own
	GC bool

	// Subclassable opts the type into being usable as a base
	Subclassable bool

	// Extended requests extended placement, allocation delegates to a
	// native terminal base's constructor slot when one exists
	Extended bool

	Finalize host.FinalizeFunc
	Free     host.FreeFunc
	Alloc    host.AllocFunc
	Traverse host.TraverseFunc
	Clear    host.ClearFunc

	// ordinary descriptors from the derive side, plus the special method
	// descriptors the protocol table collaborators contribute
	Methods      []MethodDescr
	ProtoMethods []MethodDescr

	// optional capability tables, installed into the type object only
	// when present
	Number   *host.NumberMethods
	Mapping  *host.MappingMethods
	Sequence *host.SequenceMethods
	Async    *host.AsyncMethods
	Buffer   *host.BufferMethods

	// registration engine state
	typ         *host.TypeObject
	layout      *Layout
	regErr      error
	registering bool
}

func (d *ClassDef) QualName() string {
	return qualTypeName(d.Module, d.Name)
}

// Layout exposes the composed layout, available once the type has
// registered.
func (d *ClassDef) Layout() *Layout {
	return d.layout
}

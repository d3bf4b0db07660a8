package host

import (
	"fmt"
	"strings"
)

// function pointer slots of a type object. All of them receive the runtime
// whose lock the caller holds.
type (
	// NewFunc is the tp_new slot, it allocates and returns a fresh
	// instance of t (which may be a subtype of the slot's owner).
	NewFunc func(rt *Runtime, t *TypeObject, args []Value, kwargs map[string]Value) (*Object, error)

	// CallFunc is the tp_call slot.
	CallFunc func(rt *Runtime, self *Object, args []Value, kwargs map[string]Value) (Value, error)

	// MethodFunc backs one entry of a method table. For ordinary methods
	// self is the instance, for class methods it is the type object and
	// for static methods it is nil.
	MethodFunc func(rt *Runtime, self Value, args []Value, kwargs map[string]Value) (Value, error)

	GetterFunc func(rt *Runtime, self *Object) (Value, error)
	SetterFunc func(rt *Runtime, self *Object, v Value) error

	// DeallocFunc tears one instance down and returns its region to the
	// allocator. Runs when the reference count hits zero.
	DeallocFunc func(rt *Runtime, o *Object)

	// AllocFunc hands out a zeroed instance region for t.
	AllocFunc func(rt *Runtime, t *TypeObject) (*Object, error)

	// FreeFunc gives a region back to the allocator, nothing else.
	FreeFunc func(rt *Runtime, o *Object)

	// FinalizeFunc is the finalizer hook invoked from dealloc. Returning
	// false means the object was resurrected and teardown must stop.
	FinalizeFunc func(rt *Runtime, o *Object) bool

	VisitFunc    func(v Value) error
	TraverseFunc func(rt *Runtime, o *Object, visit VisitFunc) error
	ClearFunc    func(rt *Runtime, o *Object) error
)

// type flag bits. FlagReady is what the registration engine's state machine
// stores, a type whose flag word lacks it has never been finalized.
const (
	FlagDefault  uint32 = 1 << 0
	FlagHeapType uint32 = 1 << 9
	FlagBaseType uint32 = 1 << 10
	FlagReady    uint32 = 1 << 12
	FlagHaveGC   uint32 = 1 << 14
)

// method table flag bits
const (
	MethVarargs  uint32 = 1 << 0
	MethKeywords uint32 = 1 << 1
	MethClass    uint32 = 1 << 4
	MethStatic   uint32 = 1 << 5
)

// MethodDef is one entry of a type's method table. The zero value is the
// array sentinel, tables are always terminated by one.
type MethodDef struct {
	Name  string
	Meth  MethodFunc
	Flags uint32
	Doc   string
}

func (m *MethodDef) IsSentinel() bool {
	return m.Name == "" && m.Meth == nil
}

// GetSetDef is one entry of a type's property table, also sentinel
// terminated. A property with both a getter and a setter is one entry.
type GetSetDef struct {
	Name string
	Get  GetterFunc
	Set  SetterFunc
	Doc  string
}

func (g *GetSetDef) IsSentinel() bool {
	return g.Name == "" && g.Get == nil && g.Set == nil
}

// optional per capability tables. Each one is a fixed size record allocated
// separately and owned by the type object once installed. A nil table means
// the type does not implement that capability at all.
type (
	UnaryFunc  func(rt *Runtime, a Value) (Value, error)
	BinaryFunc func(rt *Runtime, a Value, b Value) (Value, error)
	LenFunc    func(rt *Runtime, a Value) (int, error)

	NumberMethods struct {
		Add      BinaryFunc
		Subtract BinaryFunc
		Multiply BinaryFunc
		Negative UnaryFunc
		Absolute UnaryFunc
	}

	MappingMethods struct {
		Length       LenFunc
		Subscript    BinaryFunc
		AssSubscript func(rt *Runtime, o Value, key Value, v Value) error
	}

	SequenceMethods struct {
		Length LenFunc
		Item   func(rt *Runtime, o Value, i int) (Value, error)
		Concat BinaryFunc
	}

	AsyncMethods struct {
		Await UnaryFunc
		AIter UnaryFunc
		ANext UnaryFunc
	}

	BufferMethods struct {
		GetBuffer     func(rt *Runtime, o Value) ([]byte, error)
		ReleaseBuffer func(rt *Runtime, o Value)
	}
)

// TypeObject is the host's per type record. The registration engine writes
// each field exactly once while bringing a type up, after TypeReady succeeds
// the whole record is immutable and shared by every instance.
type TypeObject struct {
	// qualified name, kept as an independently owned NUL terminated
	// buffer since the host hangs on to the raw pointer
	name []byte

	Doc  string
	Base *TypeObject

	BasicSize     int
	DictOffset    int
	WeakrefOffset int

	Dealloc  DeallocFunc
	Alloc    AllocFunc
	Free     FreeFunc
	Finalize FinalizeFunc
	New      NewFunc
	Call     CallFunc

	Traverse TraverseFunc
	Clear    ClearFunc

	AsNumber   *NumberMethods
	AsMapping  *MappingMethods
	AsSequence *SequenceMethods
	AsAsync    *AsyncMethods
	AsBuffer   *BufferMethods

	Methods []MethodDef
	GetSet  []GetSetDef

	Flags uint32
}

// SetName installs the qualified name. The buffer the host keeps must be a
// well formed C string, so a name with an embedded NUL cannot be installed.
func (t *TypeObject) SetName(qualname string) error {
	if strings.IndexByte(qualname, 0) >= 0 {
		return fmt.Errorf("type name %q must not contain NUL byte", qualname)
	}
	buf := make([]byte, len(qualname)+1)
	copy(buf, qualname)
	t.name = buf
	return nil
}

func (t *TypeObject) Name() string {
	if len(t.name) == 0 {
		return ""
	}
	return string(t.name[:len(t.name)-1])
}

func (t *TypeObject) HasFeature(f uint32) bool {
	return t.Flags&f != 0
}

func (t *TypeObject) IsReady() bool {
	return t.HasFeature(FlagReady)
}

// IsGC reports whether instances participate in cyclic garbage collection,
// which decides how FreeFallback returns their memory.
func (t *TypeObject) IsGC() bool {
	return t.HasFeature(FlagHaveGC)
}

// LookupMethod walks the sentinel terminated method table.
func (t *TypeObject) LookupMethod(name string) *MethodDef {
	for i := range t.Methods {
		m := &t.Methods[i]
		if m.IsSentinel() {
			break
		}
		if m.Name == name {
			return m
		}
	}
	return nil
}

// LookupGetSet walks the sentinel terminated property table.
func (t *TypeObject) LookupGetSet(name string) *GetSetDef {
	for i := range t.GetSet {
		g := &t.GetSet[i]
		if g.IsSentinel() {
			break
		}
		if g.Name == name {
			return g
		}
	}
	return nil
}

// TypeReady is the host's finalization step. It validates what the
// registration engine installed and then marks the type usable. A type that
// fails here stays unusable, the engine does not retry it.
func TypeReady(t *TypeObject) error {
	if len(t.name) == 0 {
		return fmt.Errorf("type has no name installed")
	}
	if t.name[len(t.name)-1] != 0 {
		return fmt.Errorf("type name buffer of %q is not NUL terminated", t.Name())
	}
	if t.BasicSize < HeaderSize {
		return fmt.Errorf("type %s basic size %d is smaller than the object header",
			t.Name(), t.BasicSize)
	}
	if t.Base != nil {
		if !t.Base.IsReady() {
			return fmt.Errorf("base type %s of %s is not ready", t.Base.Name(), t.Name())
		}
		if t.BasicSize < t.Base.BasicSize {
			return fmt.Errorf("type %s basic size %d shrinks below its base %s (%d)",
				t.Name(), t.BasicSize, t.Base.Name(), t.Base.BasicSize)
		}
	}
	if err := checkSlotOffset(t, "dictionary", t.DictOffset); err != nil {
		return err
	}
	if err := checkSlotOffset(t, "weakref", t.WeakrefOffset); err != nil {
		return err
	}
	if t.Methods != nil {
		if len(t.Methods) == 0 || !t.Methods[len(t.Methods)-1].IsSentinel() {
			return fmt.Errorf("method table of %s is not sentinel terminated", t.Name())
		}
	}
	if t.GetSet != nil {
		if len(t.GetSet) == 0 || !t.GetSet[len(t.GetSet)-1].IsSentinel() {
			return fmt.Errorf("property table of %s is not sentinel terminated", t.Name())
		}
	}
	t.Flags |= FlagReady
	return nil
}

func checkSlotOffset(t *TypeObject, what string, off int) error {
	if off == 0 {
		return nil
	}
	if off < HeaderSize || off+CellSize > t.BasicSize {
		return fmt.Errorf("%s offset %d of type %s falls outside the instance region",
			what, off, t.Name())
	}
	return nil
}

// the terminal host type every native extension chain bottoms out at. It owns
// nothing beyond the object header.
var baseObjectType = func() *TypeObject {
	t := &TypeObject{
		Doc:       "the root host object type",
		BasicSize: HeaderSize,
		Flags:     FlagDefault | FlagBaseType,
	}
	if err := t.SetName("object"); err != nil {
		panic(err)
	}
	if err := TypeReady(t); err != nil {
		panic(err)
	}
	return t
}()

func BaseObjectType() *TypeObject {
	return baseObjectType
}

package ext

import (
	"fmt"

	"github.com/dianpeng/hostext/host"
)

// the type registration engine. Per ClassDef the engine moves through
// unregistered -> registering -> ready exactly once, triggered lazily by the
// first use of the type and serialized by the runtime lock the caller holds.
// Ready is terminal and stored as the host flag on the one shared type
// object, a failure is just as terminal and every later use re-surfaces it.

// EnsureReady registers the type on first use and returns the shared type
// object. Idempotent, later calls return the same pointer.
func (d *ClassDef) EnsureReady(rt *host.Runtime) (*host.TypeObject, error) {
	if d.typ != nil && d.typ.IsReady() {
		return d.typ, nil
	}
	if d.regErr != nil {
		return nil, d.regErr
	}
	if d.registering {
		return nil, fmt.Errorf("type %s has a cyclic native base chain", d.QualName())
	}

	d.registering = true
	t, err := initializeType(rt, d)
	d.registering = false

	if err != nil {
		d.regErr = fmt.Errorf("cannot register type %s: %s", d.QualName(), err.Error())
		return nil, d.regErr
	}
	d.typ = t
	return t, nil
}

// TypeObject is the lazy lookup path generated code uses. A type that could
// not be registered cannot be used at all, so a registration failure here is
// deliberately fatal rather than an error return.
func (d *ClassDef) TypeObject(rt *host.Runtime) *host.TypeObject {
	t, err := d.EnsureReady(rt)
	if err != nil {
		panic(fmt.Sprintf("an error occurred while initializing class %s: %s",
			d.Name, err.Error()))
	}
	return t
}

// initializeType builds and installs the host type object for d. Every slot
// is written exactly once, in dependency order, and the host's own
// finalization runs last.
func initializeType(rt *host.Runtime, d *ClassDef) (*host.TypeObject, error) {
	// the whole ancestor chain must be ready before our own installation
	// runs
	var baseT *host.TypeObject
	var baseL *Layout
	switch {
	case d.Base != nil && d.BaseNative != nil:
		return nil, fmt.Errorf("class declares both a native extension base and a host base")

	case d.Base != nil:
		t, err := d.Base.EnsureReady(rt)
		if err != nil {
			return nil, err
		}
		baseT = t
		baseL = d.Base.layout

	case d.BaseNative != nil:
		if !d.BaseNative.IsReady() {
			return nil, fmt.Errorf("host base type %s is not ready", d.BaseNative.Name())
		}
		baseT = d.BaseNative
		baseL = TerminalLayout(baseT.BasicSize)

	default:
		baseT = host.BaseObjectType()
		baseL = TerminalLayout(host.HeaderSize)
	}

	t := &host.TypeObject{}

	// documentation and qualified name. The name is duplicated into a
	// stable buffer the host keeps a raw pointer to, so it must be a well
	// formed C string
	t.Doc = d.Doc
	if err := t.SetName(d.QualName()); err != nil {
		return nil, err
	}

	t.Base = baseT

	// teardown path
	t.Dealloc = func(rt *host.Runtime, o *host.Object) {
		classDealloc(rt, d, o)
	}
	t.Finalize = d.Finalize
	t.Free = d.Free
	t.Alloc = d.Alloc

	// composed instance layout and the slot offsets derived from it
	layout, err := ComposeLayout(baseL, d.HasPayload, d.WantDict, d.WantWeakref)
	if err != nil {
		return nil, err
	}
	d.layout = layout
	t.BasicSize = layout.Size()
	t.DictOffset = layout.DictOffset()
	t.WeakrefOffset = layout.WeakrefOffset()

	// cyclic GC hooks
	t.Traverse = d.Traverse
	t.Clear = d.Clear

	// optional capability tables. Each is copied into its own allocation,
	// owned by the type object from here on
	if d.Number != nil {
		n := *d.Number
		t.AsNumber = &n
	}
	if d.Mapping != nil {
		m := *d.Mapping
		t.AsMapping = &m
	}
	if d.Sequence != nil {
		s := *d.Sequence
		t.AsSequence = &s
	}
	if d.Async != nil {
		a := *d.Async
		t.AsAsync = &a
	}
	if d.Buffer != nil {
		b := *d.Buffer
		t.AsBuffer = &b
	}

	// merged method table plus the designated constructor/call slots
	newSlot, callSlot, defs := classMethodDefs(d)
	t.New = newSlot
	t.Call = callSlot
	if len(defs) != 0 {
		defs = append(defs, host.MethodDef{})
		t.Methods = defs
	}

	// merged property table, one entry per name, plus the synthetic
	// dictionary accessor when a dictionary slot exists
	props := classProperties(d)
	if layout.DictOffset() != 0 {
		props = append(props, dictProperty())
	}
	if len(props) != 0 {
		props = append(props, host.GetSetDef{})
		t.GetSet = props
	}

	t.Flags = classFlags(t, d)

	if err := host.TypeReady(t); err != nil {
		return nil, err
	}
	return t, nil
}

func classFlags(t *host.TypeObject, d *ClassDef) uint32 {
	flags := host.FlagDefault
	if t.Traverse != nil || t.Clear != nil || d.GC {
		flags |= host.FlagHaveGC
	}
	if d.Subclassable {
		flags |= host.FlagBaseType
	}
	return flags
}

// classMethodDefs splits the descriptor list into the designated New and
// Call slots and the flat method table. A later descriptor for a designated
// slot replaces an earlier one, the derive side emits at most one of each.
func classMethodDefs(d *ClassDef) (host.NewFunc, host.CallFunc, []host.MethodDef) {
	var newSlot host.NewFunc
	var callSlot host.CallFunc
	var defs []host.MethodDef

	for _, m := range d.Methods {
		switch m.Kind {
		case MethodNew:
			newSlot = m.New
		case MethodCall:
			callSlot = m.Call
		case MethodOrdinary:
			defs = append(defs, host.MethodDef{
				Name:  m.Name,
				Meth:  m.Meth,
				Flags: host.MethVarargs | host.MethKeywords,
				Doc:   m.Doc,
			})
		case MethodClass:
			defs = append(defs, host.MethodDef{
				Name:  m.Name,
				Meth:  m.Meth,
				Flags: host.MethVarargs | host.MethKeywords | host.MethClass,
				Doc:   m.Doc,
			})
		case MethodStatic:
			defs = append(defs, host.MethodDef{
				Name:  m.Name,
				Meth:  m.Meth,
				Flags: host.MethVarargs | host.MethKeywords | host.MethStatic,
				Doc:   m.Doc,
			})
		default:
			// getters/setters are merged by classProperties
		}
	}

	// special methods required by the protocol table collaborators join
	// the flat table
	for _, m := range d.ProtoMethods {
		must(m.Kind == MethodOrdinary, "protocol methods must be ordinary methods")
		defs = append(defs, host.MethodDef{
			Name:  m.Name,
			Meth:  m.Meth,
			Flags: host.MethVarargs | host.MethKeywords,
			Doc:   m.Doc,
		})
	}
	return newSlot, callSlot, defs
}

// classProperties merges getter and setter descriptors by property name so a
// name carrying both becomes one table entry. Declaration order is kept.
func classProperties(d *ClassDef) []host.GetSetDef {
	var defs []host.GetSetDef
	index := make(map[string]int)

	for _, m := range d.Methods {
		if m.Kind != MethodGetter && m.Kind != MethodSetter {
			continue
		}
		i, ok := index[m.Name]
		if !ok {
			i = len(defs)
			index[m.Name] = i
			defs = append(defs, host.GetSetDef{Name: m.Name})
		}
		g := &defs[i]
		if m.Kind == MethodGetter {
			g.Get = m.Getter
		} else {
			g.Set = m.Setter
		}
		if g.Doc == "" {
			g.Doc = m.Doc
		}
	}
	return defs
}

// dictProperty is the synthetic accessor exposing the instance dictionary
// when the layout carries one.
func dictProperty() host.GetSetDef {
	return host.GetSetDef{
		Name: "__dict__",
		Get: func(rt *host.Runtime, self *host.Object) (host.Value, error) {
			d, err := host.GetDict(rt, self)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		Set: func(rt *host.Runtime, self *host.Object, v host.Value) error {
			repl, ok := v.(map[string]host.Value)
			if !ok {
				return fmt.Errorf("__dict__ must be set to a mapping")
			}
			cur, err := host.GetDict(rt, self)
			if err != nil {
				return err
			}
			for k := range cur {
				delete(cur, k)
			}
			for k, val := range repl {
				cur[k] = val
			}
			return nil
		},
		Doc: "instance attribute dictionary",
	}
}

// classDrop tears down every level of the composed layout, most derived
// first. Payload destructor, then the level's dictionary and weakref cells,
// then the base level. The terminal host level owns nothing of ours.
func classDrop(rt *host.Runtime, d *ClassDef, region []byte) {
	l := d.layout
	l.dropPayload(rt, region, d.Destructor)
	host.ClearDictCell(rt, region, l.DictOffset())
	host.ClearWeakrefCell(rt, region, l.WeakrefOffset())
	if d.Base != nil {
		classDrop(rt, d.Base, region)
	}
}

// classDealloc is the dealloc slot installed on every registered type. It
// runs the composed teardown, gives the finalizer hook its chance to
// resurrect the object, then frees the region through the type's free hook
// or the host's runtime-queried fallback.
func classDealloc(rt *host.Runtime, d *ClassDef, o *host.Object) {
	classDrop(rt, d, o.Region())

	if !host.CallFinalizerFromDealloc(rt, o) {
		return
	}

	if d.typ != nil && d.typ.Free != nil {
		d.typ.Free(rt, o)
	} else {
		host.FreeFallback(rt, o)
	}
}

// defaultAlloc allocates one instance region for d. Extended placement over
// a terminal host base delegates to that base's constructor slot when it has
// one, everything else goes through the type's alloc hook or the host's
// generic allocator.
func defaultAlloc(rt *host.Runtime, d *ClassDef) (*host.Object, error) {
	t := d.typ
	if d.Extended && d.layout.Base().IsNative() && t.Base != nil && t.Base.New != nil {
		return t.Base.New(rt, t, nil, nil)
	}
	if t.Alloc != nil {
		return t.Alloc(rt, t)
	}
	return host.GenericAlloc(rt, t)
}

// NewObject allocates an instance and consumes the initializer chain into
// it. The dictionary and weakref cells are put into their default empty
// state before the chain applies. A failed chain abandons the construction,
// whatever the chain already wrote is dropped and the region goes back to
// the allocator.
func NewObject(rt *host.Runtime, init *Initializer) (*host.Object, error) {
	d := init.def
	if _, err := d.EnsureReady(rt); err != nil {
		return nil, err
	}

	o, err := defaultAlloc(rt, d)
	if err != nil {
		return nil, err
	}

	region := o.Region()
	if off := d.layout.DictOffset(); off != 0 {
		host.WriteCell(region, off, 0)
	}
	if off := d.layout.WeakrefOffset(); off != 0 {
		host.WriteCell(region, off, 0)
	}

	if err := init.applyTo(rt, region); err != nil {
		classDrop(rt, d, region)
		host.FreeFallback(rt, o)
		return nil, err
	}
	return o, nil
}

// NewRef builds an instance of d around payload and returns a shared
// reference to it.
func NewRef(rt *host.Runtime, d *ClassDef, payload host.Value) (*host.Object, error) {
	return NewObject(rt, InitializerOf(d, payload))
}

// NewMut is the exclusive-reference flavor of NewRef. The object model does
// not police aliasing on the go side, the split only preserves the intent
// the generated code expresses.
func NewMut(rt *host.Runtime, d *ClassDef, payload host.Value) (*host.Object, error) {
	return NewObject(rt, InitializerOf(d, payload))
}

// IsInstance reports whether o's type chain passes through d's registered
// type.
func IsInstance(o *host.Object, d *ClassDef) bool {
	if d.typ == nil {
		return false
	}
	for t := o.Type(); t != nil; t = t.Base {
		if t == d.typ {
			return true
		}
	}
	return false
}

// PayloadOf returns the native payload d's level stores inside o.
func PayloadOf(rt *host.Runtime, o *host.Object, d *ClassDef) (host.Value, error) {
	if !IsInstance(o, d) {
		return nil, fmt.Errorf("object of type %s is not an instance of %s",
			o.Type().Name(), d.QualName())
	}
	v, ok := d.layout.payload(rt, o.Region())
	if !ok {
		return nil, fmt.Errorf("instance of %s has no initialized payload at level %s",
			o.Type().Name(), d.QualName())
	}
	return v, nil
}

package ext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dianpeng/hostext/host"
)

func TestRegisterIdempotent(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()
	d := &ClassDef{Name: "Point", Module: "geo", HasPayload: true}

	t1, err := d.EnsureReady(rt)
	assert.Nil(err)
	assert.True(t1.IsReady())

	// first use registered the type, every later lookup returns the very
	// same object
	t2, err := d.EnsureReady(rt)
	assert.Nil(err)
	assert.True(t1 == t2)
	assert.True(t1 == d.TypeObject(rt))

	assert.Equal("geo.Point", t1.Name())
	assert.Equal(host.BaseObjectType(), t1.Base)
}

func TestRegisterBadName(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()
	d := &ClassDef{Name: "Bad\x00Name", Module: "demo"}

	_, err := d.EnsureReady(rt)
	assert.NotNil(err)
	assert.True(strings.Contains(err.Error(), "NUL"))

	// the failure is permanent, re-registration is not attempted and the
	// lazy lookup path fails hard
	_, err2 := d.EnsureReady(rt)
	assert.True(err == err2)
	assert.Panics(func() {
		d.TypeObject(rt)
	})
}

func TestRegisterOffsets(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()
	d := &ClassDef{
		Name:        "Bag",
		Module:      "demo",
		HasPayload:  true,
		WantDict:    true,
		WantWeakref: true,
	}

	to, err := d.EnsureReady(rt)
	assert.Nil(err)

	// header, payload cell, dict cell, weakref cell
	assert.Equal(host.HeaderSize+3*host.CellSize, to.BasicSize)
	assert.Equal(host.HeaderSize+host.CellSize, to.DictOffset)
	assert.Equal(host.HeaderSize+2*host.CellSize, to.WeakrefOffset)

	// a slotless type installs no offsets at all
	p := &ClassDef{Name: "Plain", Module: "demo", HasPayload: true}
	tp, err := p.EnsureReady(rt)
	assert.Nil(err)
	assert.Equal(0, tp.DictOffset)
	assert.Equal(0, tp.WeakrefOffset)
	assert.Equal(host.HeaderSize+host.CellSize, tp.BasicSize)
}

func TestRegisterMethodTables(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()

	nopMeth := func(_ *host.Runtime, _ host.Value, _ []host.Value, _ map[string]host.Value) (host.Value, error) {
		return nil, nil
	}

	d := &ClassDef{
		Name:   "Widget",
		Module: "demo",
		Methods: []MethodDescr{
			{Kind: MethodNew, New: func(rt *host.Runtime, t *host.TypeObject, _ []host.Value, _ map[string]host.Value) (*host.Object, error) {
				return host.GenericAlloc(rt, t)
			}},
			{Kind: MethodCall, Call: func(_ *host.Runtime, _ *host.Object, _ []host.Value, _ map[string]host.Value) (host.Value, error) {
				return "called", nil
			}},
			{Kind: MethodOrdinary, Name: "tick", Meth: nopMeth},
			{Kind: MethodClass, Name: "make", Meth: nopMeth},
			{Kind: MethodStatic, Name: "zero", Meth: nopMeth},
		},
		ProtoMethods: []MethodDescr{
			{Kind: MethodOrdinary, Name: "__repr__", Meth: nopMeth},
		},
	}

	to, err := d.EnsureReady(rt)
	assert.Nil(err)

	// designated slots pulled out of the flat table
	assert.NotNil(to.New)
	assert.NotNil(to.Call)

	// flat table is sentinel terminated and holds everything else
	assert.Equal(5, len(to.Methods))
	assert.True(to.Methods[4].IsSentinel())
	assert.NotNil(to.LookupMethod("tick"))
	assert.NotNil(to.LookupMethod("__repr__"))
	assert.Nil(to.LookupMethod("missing"))

	mk := to.LookupMethod("make")
	assert.True(mk.Flags&host.MethClass != 0)
	zr := to.LookupMethod("zero")
	assert.True(zr.Flags&host.MethStatic != 0)
}

func TestRegisterProperties(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()

	get := func(_ *host.Runtime, _ *host.Object) (host.Value, error) { return 1, nil }
	set := func(_ *host.Runtime, _ *host.Object, _ host.Value) error { return nil }

	d := &ClassDef{
		Name:     "Styled",
		Module:   "demo",
		WantDict: true,
		Methods: []MethodDescr{
			{Kind: MethodGetter, Name: "color", Getter: get},
			{Kind: MethodSetter, Name: "color", Setter: set},
			{Kind: MethodGetter, Name: "size", Getter: get},
		},
	}

	to, err := d.EnsureReady(rt)
	assert.Nil(err)

	// getter and setter for one name fuse into one entry, plus the
	// synthetic dictionary accessor, plus the sentinel
	assert.Equal(4, len(to.GetSet))
	assert.True(to.GetSet[3].IsSentinel())

	color := to.LookupGetSet("color")
	assert.NotNil(color)
	assert.NotNil(color.Get)
	assert.NotNil(color.Set)

	size := to.LookupGetSet("size")
	assert.NotNil(size)
	assert.NotNil(size.Get)
	assert.Nil(size.Set)

	dict := to.LookupGetSet("__dict__")
	assert.NotNil(dict)

	// and the accessor works against an instance
	o, err := NewObject(rt, NewInitializer(d))
	assert.Nil(err)
	v, err := dict.Get(rt, o)
	assert.Nil(err)
	m := v.(map[string]host.Value)
	m["x"] = 1

	err = dict.Set(rt, o, map[string]host.Value{"y": 2})
	assert.Nil(err)
	v, _ = dict.Get(rt, o)
	m = v.(map[string]host.Value)
	_, hasX := m["x"]
	assert.False(hasX)
	assert.Equal(2, m["y"])

	host.Decref(rt, o)
	assert.Equal(0, rt.HeapSize())
}

func TestRegisterFlags(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()

	// plain type
	{
		d := &ClassDef{Name: "A", Module: "demo"}
		to, _ := d.EnsureReady(rt)
		assert.True(to.HasFeature(host.FlagDefault))
		assert.False(to.IsGC())
		assert.False(to.HasFeature(host.FlagBaseType))
	}

	// traverse hook forces the GC flag
	{
		d := &ClassDef{
			Name: "B", Module: "demo",
			Traverse: func(_ *host.Runtime, _ *host.Object, _ host.VisitFunc) error {
				return nil
			},
		}
		to, _ := d.EnsureReady(rt)
		assert.True(to.IsGC())
	}

	// requesting GC without hooks also sets it
	{
		d := &ClassDef{Name: "C", Module: "demo", GC: true}
		to, _ := d.EnsureReady(rt)
		assert.True(to.IsGC())
	}

	// opting into subclassing
	{
		d := &ClassDef{Name: "D", Module: "demo", Subclassable: true}
		to, _ := d.EnsureReady(rt)
		assert.True(to.HasFeature(host.FlagBaseType))
	}
}

func TestRegisterProtocolTables(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()

	num := &host.NumberMethods{
		Add: func(_ *host.Runtime, a, b host.Value) (host.Value, error) {
			return a.(int) + b.(int), nil
		},
	}
	seq := &host.SequenceMethods{
		Length: func(_ *host.Runtime, _ host.Value) (int, error) { return 3, nil },
	}

	d := &ClassDef{
		Name:     "Vec",
		Module:   "demo",
		Number:   num,
		Sequence: seq,
	}
	to, err := d.EnsureReady(rt)
	assert.Nil(err)

	// installed tables are the type object's own copies
	assert.NotNil(to.AsNumber)
	assert.False(to.AsNumber == num)
	assert.NotNil(to.AsSequence)
	assert.False(to.AsSequence == seq)

	// absent capabilities stay absent
	assert.Nil(to.AsMapping)
	assert.Nil(to.AsAsync)
	assert.Nil(to.AsBuffer)

	v, err := to.AsNumber.Add(rt, 1, 2)
	assert.Nil(err)
	assert.Equal(3, v)
}

func TestDeallocOrder(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()

	var order []string
	base := &ClassDef{
		Name: "Base", Module: "demo",
		HasPayload:   true,
		Subclassable: true,
		Destructor: func(_ *host.Runtime, _ host.Value) {
			order = append(order, "base")
		},
	}
	sub := &ClassDef{
		Name: "Sub", Module: "demo",
		Base:        base,
		HasPayload:  true,
		WantDict:    true,
		WantWeakref: true,
		Destructor: func(_ *host.Runtime, _ host.Value) {
			order = append(order, "sub")
		},
	}

	init := InitializerOf(sub, "s")
	init.Super().Init("b")
	o, err := NewObject(rt, init)
	assert.Nil(err)

	// populate the dictionary and take a weak reference
	m, err := host.GetDict(rt, o)
	assert.Nil(err)
	m["k"] = "v"
	wr, err := host.NewWeakref(rt, o)
	assert.Nil(err)
	_, alive := wr.Get()
	assert.True(alive)

	host.Decref(rt, o)

	// most derived level first, then the base
	assert.Equal([]string{"sub", "base"}, order)

	// weak references died with the instance, nothing stays pinned
	_, alive = wr.Get()
	assert.False(alive)
	assert.Equal(0, rt.HeapSize())
	assert.Equal(0, rt.LiveObjectCount())
}

func TestFinalizerResurrect(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()
	d := &ClassDef{
		Name: "Phoenix", Module: "demo",
		Finalize: func(_ *host.Runtime, _ *host.Object) bool {
			return false
		},
	}

	o, err := NewObject(rt, NewInitializer(d))
	assert.Nil(err)
	assert.Equal(1, rt.LiveObjectCount())

	// the finalizer stops the teardown, the region is never freed
	host.Decref(rt, o)
	assert.Equal(1, rt.LiveObjectCount())
}

func TestExtendedPlacement(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()

	// a terminal host type with its own constructor slot
	baseNews := 0
	nt := &host.TypeObject{
		BasicSize: host.HeaderSize + host.CellSize,
		Flags:     host.FlagDefault | host.FlagBaseType,
		New: func(rt *host.Runtime, t *host.TypeObject, _ []host.Value, _ map[string]host.Value) (*host.Object, error) {
			baseNews++
			return host.GenericAlloc(rt, t)
		},
	}
	musterr("test", nt.SetName("native.Counter"))
	musterr("test", host.TypeReady(nt))

	d := &ClassDef{
		Name: "Fancy", Module: "demo",
		BaseNative: nt,
		Extended:   true,
		HasPayload: true,
	}

	o, err := NewRef(rt, d, "payload")
	assert.Nil(err)

	// allocation went through the base's constructor slot, the instance
	// still is the derived type with the composed size
	assert.Equal(1, baseNews)
	assert.True(o.Type() == d.TypeObject(rt))
	assert.Equal(nt.BasicSize+host.CellSize, o.Type().BasicSize)

	v, err := PayloadOf(rt, o, d)
	assert.Nil(err)
	assert.Equal("payload", v)

	host.Decref(rt, o)
	assert.Equal(0, rt.HeapSize())
}

func TestRegisterCyclicBase(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()
	a := &ClassDef{Name: "A", Module: "demo"}
	b := &ClassDef{Name: "B", Module: "demo", Base: a}
	a.Base = b

	_, err := b.EnsureReady(rt)
	assert.NotNil(err)
	assert.True(strings.Contains(err.Error(), "cyclic"))
}

func TestNewRefNewMut(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()
	d := &ClassDef{Name: "Cell", Module: "demo", HasPayload: true}

	o1, err := NewRef(rt, d, 1)
	assert.Nil(err)
	o2, err := NewMut(rt, d, 2)
	assert.Nil(err)

	v1, _ := PayloadOf(rt, o1, d)
	v2, _ := PayloadOf(rt, o2, d)
	assert.Equal(1, v1)
	assert.Equal(2, v2)

	// per instance memory is exclusive, two constructions never share
	assert.False(o1 == o2)

	host.Decref(rt, o1)
	host.Decref(rt, o2)
	assert.Equal(0, rt.LiveObjectCount())
}

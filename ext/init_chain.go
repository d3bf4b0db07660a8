package ext

import (
	"fmt"

	"github.com/dianpeng/hostext/host"
)

// Initializer is the deferred construction value for one level of a native
// inheritance chain. It is built bottom up, the subtype fills in its own
// payload and asks Super for a handle to the next base level, and consumed
// top down when the finished chain is applied to a freshly allocated
// instance region. Each Initializer is owned by the construction call that
// made it, a base link is owned by its parent and moved out by the apply.
type Initializer struct {
	def      *ClassDef
	value    host.Value
	hasValue bool
	super    *Initializer
	consumed bool
}

// NewInitializer makes an empty initializer for def. The payload, if the
// level has one, must be supplied through Init before the chain is applied.
func NewInitializer(def *ClassDef) *Initializer {
	return &Initializer{def: def}
}

// InitializerOf makes an initializer with this level's payload already
// supplied.
func InitializerOf(def *ClassDef, payload host.Value) *Initializer {
	return &Initializer{
		def:      def,
		value:    payload,
		hasValue: true,
	}
}

// Init supplies the payload for this level.
func (i *Initializer) Init(v host.Value) {
	i.value = v
	i.hasValue = true
}

// Super returns the initializer of the base level, creating it on first
// request. It is the native analogue of delegating to the base constructor.
func (i *Initializer) Super() *Initializer {
	must(i.def.Base != nil, "class has no native base to initialize")
	if i.super == nil {
		i.super = NewInitializer(i.def.Base)
	}
	return i.super
}

// applyTo consumes the chain against region. At every level a supplied
// payload is written into its slot exactly once, a level that supplies
// nothing but whose layout demands initialization fails the construction,
// and slots nobody touched keep the layout's zeroed default.
func (i *Initializer) applyTo(rt *host.Runtime, region []byte) error {
	must(!i.consumed, "initializer chain applied twice")
	i.consumed = true

	l := i.def.layout
	must(l != nil, "class must be registered before construction")

	if i.hasValue {
		l.writePayload(rt, region, i.value)
	} else if l.NeedInit() {
		return baseNotInitialized(i.def)
	}

	if i.super != nil {
		// the base link is consumed by this apply, the parent keeps
		// nothing to hand out twice
		sup := i.super
		i.super = nil
		return sup.applyTo(rt, region)
	}

	// no base link was ever requested. That is fine unless the base
	// level cannot do without its payload
	if i.def.Base != nil && i.def.Base.layout.NeedInit() {
		return baseNotInitialized(i.def.Base)
	}
	return nil
}

func baseNotInitialized(d *ClassDef) error {
	return fmt.Errorf("Base class '%s' is not initialized", d.Name)
}

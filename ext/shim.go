package ext

import (
	"sort"

	"github.com/dianpeng/hostext/host"
)

// glue between the host's calling convention and the binding engine. The
// derive side generates one shim per native callable, these helpers are what
// those shims call into.

// KwargsFromMap flattens a host keyword mapping into ordered pairs. The map
// has no order of its own, so the pairs are name sorted to keep diagnostics
// deterministic.
func KwargsFromMap(kwargs map[string]host.Value) []Kwarg {
	if len(kwargs) == 0 {
		return nil
	}
	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Kwarg, 0, len(names))
	for _, name := range names {
		out = append(out, Kwarg{Name: name, Value: kwargs[name]})
	}
	return out
}

// BoundEntry is the native side of one callable, it receives the filled slot
// array and the two excess containers.
type BoundEntry func(rt *host.Runtime, self host.Value,
	slots []host.Value, varargs []host.Value, varkw *KwDict) (host.Value, error)

// WrapFn turns a parameter signature plus a native entry into a method table
// entry. The slot array lives for one call, the engine fills it and the
// entry consumes it.
func WrapFn(d *FuncDescr, entry BoundEntry) host.MethodFunc {
	return func(rt *host.Runtime, self host.Value,
		args []host.Value, kwargs map[string]host.Value) (host.Value, error) {

		slots := make([]host.Value, d.NumSlots())
		varargs, varkw, err := d.ExtractArguments(args, KwargsFromMap(kwargs), slots)
		if err != nil {
			return nil, err
		}
		return entry(rt, self, slots, varargs, varkw)
	}
}

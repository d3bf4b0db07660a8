package ext

import (
	"bytes"
	"fmt"

	"github.com/dianpeng/hostext/host"
)

// the binding engine. A FuncDescr is the static description of what a native
// callable accepts, produced once by the derive/codegen side and shared by
// every call. ExtractArguments matches one caller supplied argument list
// against it and fills a slot array the generated shim then forwards into
// native parameter positions.
//
// the checks run fill-everything-then-validate rather than failing on the
// first hole, a failed call must name every missing or violating parameter
// in one message so the user does not diagnose it by repeated invocation

// KwOnlyParam describes one keyword only parameter.
type KwOnlyParam struct {
	Name     string
	Required bool
}

// Kwarg is one caller supplied (name, value) keyword pair. The pairs keep
// their call site order, duplicates can show up through dynamic call
// mechanisms even though the host syntax forbids them.
type Kwarg struct {
	Name  string
	Value host.Value
}

// FuncDescr is the parameter signature of one native callable.
type FuncDescr struct {
	// owning type name, empty for free functions. Only used in error
	// messages
	ClsName  string
	FuncName string

	// positional parameters in declared order. The first NPosOnly of them
	// can never be bound by keyword, the first NRequiredPos of them must
	// be bound for the call to succeed
	PosParamNames []string
	NPosOnly      int
	NRequiredPos  int

	KwOnlyParams []KwOnlyParam

	AcceptVarargs     bool
	AcceptVarKeywords bool
}

func (d *FuncDescr) FullName() string {
	if d.ClsName != "" {
		return fmt.Sprintf("%s.%s()", d.ClsName, d.FuncName)
	}
	return fmt.Sprintf("%s()", d.FuncName)
}

// NumSlots is the length the output slot array must have, positional
// parameters first, keyword only parameters after them.
func (d *FuncDescr) NumSlots() int {
	return len(d.PosParamNames) + len(d.KwOnlyParams)
}

// binding error kinds
const (
	BindTooManyPositional = iota
	BindMissingPositional
	BindMissingKeyword
	BindUnexpectedKeyword
	BindMultipleValues
	BindPosOnlyAsKeyword
)

// BindError is the host visible type error a failed binding produces. It is
// never retried, the caller of the bound function receives it as is.
type BindError struct {
	Kind int
	Msg  string
}

func (e *BindError) Error() string {
	return e.Msg
}

// KwDict collects keyword arguments that matched no declared parameter, for
// signatures that accept them. Insertion order is preserved.
type KwDict struct {
	keys []string
	vals map[string]host.Value

	// LastWins flips the duplicate policy. The default keeps the first
	// value seen for a name, which is what the host's own keyword dict
	// construction does, but embedders can select the other behavior
	LastWins bool
}

func NewKwDict() *KwDict {
	return &KwDict{
		vals: make(map[string]host.Value),
	}
}

func (d *KwDict) Set(name string, v host.Value) {
	if _, ok := d.vals[name]; ok {
		if d.LastWins {
			d.vals[name] = v
		}
		return
	}
	d.keys = append(d.keys, name)
	d.vals[name] = v
}

func (d *KwDict) Get(name string) (host.Value, bool) {
	v, ok := d.vals[name]
	return v, ok
}

func (d *KwDict) Len() int {
	return len(d.keys)
}

func (d *KwDict) Keys() []string {
	return d.keys
}

// ExtractArguments binds args and kwargs into output according to the
// signature. output must be pre sized to NumSlots entries, all nil, the
// engine only fills entries and never resizes it. On success the returned
// slice holds any extra positional arguments (non nil iff the signature
// accepts them) and the returned KwDict any extra keywords (nil when none
// showed up or the signature rejects them).
func (d *FuncDescr) ExtractArguments(
	args []host.Value,
	kwargs []Kwarg,
	output []host.Value,
) ([]host.Value, *KwDict, error) {
	nPos := len(d.PosParamNames)

	must(d.NPosOnly <= nPos, "positional only count out of range")
	must(d.NRequiredPos <= nPos, "required positional count out of range")
	must(len(output) == d.NumSlots(), "output slot array has the wrong length")

	// positional phase
	argsProvided := len(args)
	if d.AcceptVarargs {
		if argsProvided > nPos {
			argsProvided = nPos
		}
	} else if len(args) > nPos {
		return nil, nil, d.tooManyPositional(len(args))
	}
	for i := 0; i < argsProvided; i++ {
		output[i] = args[i]
	}

	var varargs []host.Value
	if d.AcceptVarargs {
		varargs = make([]host.Value, 0, len(args)-argsProvided)
		varargs = append(varargs, args[argsProvided:]...)
	}

	// keyword phase
	var varkw *KwDict
	if len(kwargs) != 0 {
		var sink func(string, host.Value) error
		if d.AcceptVarKeywords {
			sink = func(name string, v host.Value) error {
				if varkw == nil {
					varkw = NewKwDict()
				}
				varkw.Set(name, v)
				return nil
			}
		} else {
			sink = func(name string, _ host.Value) error {
				return d.unexpectedKeyword(name)
			}
		}
		if err := d.extractKeywords(kwargs, output, sink); err != nil {
			return nil, nil, err
		}
	}

	// required positional check, every hole is reported in one message
	var missingPos []string
	for i := 0; i < d.NRequiredPos; i++ {
		if output[i] == nil {
			missingPos = append(missingPos, d.PosParamNames[i])
		}
	}
	if len(missingPos) != 0 {
		return nil, nil, d.missingRequired("positional", missingPos)
	}

	// required keyword only check, same policy
	var missingKw []string
	for i, p := range d.KwOnlyParams {
		if p.Required && output[nPos+i] == nil {
			missingKw = append(missingKw, p.Name)
		}
	}
	if len(missingKw) != 0 {
		return nil, nil, d.missingRequired("keyword", missingKw)
	}

	return varargs, varkw, nil
}

// extractKeywords scans every keyword pair once. Matching is a linear walk
// over the parameter names, signatures are small enough that building a map
// per signature is not worth it. Positional only violations are collected
// across the whole scan and reported together at the end.
func (d *FuncDescr) extractKeywords(
	kwargs []Kwarg,
	output []host.Value,
	unexpected func(string, host.Value) error,
) error {
	nPos := len(d.PosParamNames)
	argsOutput := output[:nPos]
	kwOutput := output[nPos:]

	var posOnlyViolations []string

	for _, kw := range kwargs {
		if i := d.kwOnlyIndex(kw.Name); i >= 0 {
			// later duplicates overwrite silently, mirroring the
			// host's own keyword dict behavior
			kwOutput[i] = kw.Value
			continue
		}

		if i := d.posIndex(kw.Name); i >= 0 {
			if i < d.NPosOnly {
				posOnlyViolations = append(posOnlyViolations, d.PosParamNames[i])
			} else if argsOutput[i] != nil {
				return d.multipleValues(d.PosParamNames[i])
			} else {
				argsOutput[i] = kw.Value
			}
			continue
		}

		if err := unexpected(kw.Name, kw.Value); err != nil {
			return err
		}
	}

	if len(posOnlyViolations) != 0 {
		return d.positionalOnlyAsKeyword(posOnlyViolations)
	}
	return nil
}

func (d *FuncDescr) kwOnlyIndex(name string) int {
	for i, p := range d.KwOnlyParams {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (d *FuncDescr) posIndex(name string) int {
	for i, p := range d.PosParamNames {
		if p == name {
			return i
		}
	}
	return -1
}

func (d *FuncDescr) tooManyPositional(given int) *BindError {
	was := "were"
	if given == 1 {
		was = "was"
	}
	nPos := len(d.PosParamNames)

	var msg string
	if d.NRequiredPos != nPos {
		msg = fmt.Sprintf("%s takes from %d to %d positional arguments but %d %s given",
			d.FullName(), d.NRequiredPos, nPos, given, was)
	} else {
		msg = fmt.Sprintf("%s takes %d positional arguments but %d %s given",
			d.FullName(), nPos, given, was)
	}
	return &BindError{Kind: BindTooManyPositional, Msg: msg}
}

func (d *FuncDescr) multipleValues(name string) *BindError {
	return &BindError{
		Kind: BindMultipleValues,
		Msg: fmt.Sprintf("%s got multiple values for argument '%s'",
			d.FullName(), name),
	}
}

func (d *FuncDescr) unexpectedKeyword(name string) *BindError {
	return &BindError{
		Kind: BindUnexpectedKeyword,
		Msg: fmt.Sprintf("%s got an unexpected keyword argument '%s'",
			d.FullName(), name),
	}
}

func (d *FuncDescr) positionalOnlyAsKeyword(names []string) *BindError {
	b := new(bytes.Buffer)
	fmt.Fprintf(b, "%s got some positional-only arguments passed as keyword arguments: ",
		d.FullName())
	writeParamList(b, names)
	return &BindError{Kind: BindPosOnlyAsKeyword, Msg: b.String()}
}

func (d *FuncDescr) missingRequired(kind string, names []string) *BindError {
	word := "arguments"
	if len(names) == 1 {
		word = "argument"
	}
	b := new(bytes.Buffer)
	fmt.Fprintf(b, "%s missing %d required %s %s: ", d.FullName(), len(names), kind, word)
	writeParamList(b, names)

	k := BindMissingPositional
	if kind == "keyword" {
		k = BindMissingKeyword
	}
	return &BindError{Kind: k, Msg: b.String()}
}

// writeParamList renders a parameter name list the way the host quotes them
// in its own diagnostics, 'a' / 'a' and 'b' / 'a', 'b', and 'c'.
func writeParamList(b *bytes.Buffer, names []string) {
	for i, name := range names {
		if i != 0 {
			if len(names) > 2 {
				b.WriteRune(',')
			}
			if i == len(names)-1 {
				b.WriteString(" and ")
			} else {
				b.WriteRune(' ')
			}
		}
		b.WriteRune('\'')
		b.WriteString(name)
		b.WriteRune('\'')
	}
}

// DecorateArgError prefixes a per argument conversion failure with the
// argument's name. Anything that is not a binding class error passes through
// untouched.
func DecorateArgError(name string, err error) error {
	if be, ok := err.(*BindError); ok {
		return &BindError{
			Kind: be.Kind,
			Msg:  fmt.Sprintf("argument '%s': %s", name, be.Msg),
		}
	}
	return err
}

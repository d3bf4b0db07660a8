package ext

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/dianpeng/hostext/host"
)

// introspection report of a registered type, mostly for debugging an
// embedding that does not come up the way the author expects. The report is
// rendered through the template abstraction so an embedder can restyle it.

const typeReportGo = `type> {{.name}}
base> {{.base}}
size> {{.size}}
dict_offset> {{.dict_offset}}
weakref_offset> {{.weakref_offset}}
flags> {{.flags}}
methods> {{.num_methods}}
properties> {{.num_properties}}
protocols> {{.protocols}}
`

const typeReportPongo = `type> {{ name }}
base> {{ base }}
size> {{ size }}
dict_offset> {{ dict_offset }}
weakref_offset> {{ weakref_offset }}
flags> {{ flags }}
methods> {{ num_methods }}
properties> {{ num_properties }}
protocols> {{ protocols }}
`

func flagNames(t *host.TypeObject) []string {
	var out []string
	if t.HasFeature(host.FlagDefault) {
		out = append(out, "default")
	}
	if t.HasFeature(host.FlagHaveGC) {
		out = append(out, "gc")
	}
	if t.HasFeature(host.FlagBaseType) {
		out = append(out, "basetype")
	}
	if t.HasFeature(host.FlagHeapType) {
		out = append(out, "heaptype")
	}
	if t.IsReady() {
		out = append(out, "ready")
	}
	return out
}

func protocolNames(t *host.TypeObject) []string {
	var out []string
	if t.AsNumber != nil {
		out = append(out, "number")
	}
	if t.AsMapping != nil {
		out = append(out, "mapping")
	}
	if t.AsSequence != nil {
		out = append(out, "sequence")
	}
	if t.AsAsync != nil {
		out = append(out, "async")
	}
	if t.AsBuffer != nil {
		out = append(out, "buffer")
	}
	sort.Strings(out)
	return out
}

func tableLen(n int) int {
	// sentinel terminated, the trailing zero entry is not a member
	if n == 0 {
		return 0
	}
	return n - 1
}

func typeReportContext(t *host.TypeObject) map[string]interface{} {
	base := ""
	if t.Base != nil {
		base = t.Base.Name()
	}
	return map[string]interface{}{
		"name":           t.Name(),
		"base":           base,
		"size":           t.BasicSize,
		"dict_offset":    t.DictOffset,
		"weakref_offset": t.WeakrefOffset,
		"flags":          joinList(flagNames(t)),
		"num_methods":    tableLen(len(t.Methods)),
		"num_properties": tableLen(len(t.GetSet)),
		"protocols":      joinList(protocolNames(t)),
	}
}

func joinList(l []string) string {
	b := new(bytes.Buffer)
	for i, x := range l {
		if i != 0 {
			b.WriteRune('|')
		}
		b.WriteString(x)
	}
	return b.String()
}

// TypeReport renders a report of t with the selected template engine, "go",
// "pongo" or "md".
func TypeReport(t *host.TypeObject, engine string) (string, error) {
	tmpl := newTemplate(engine)
	if tmpl == nil {
		return "", fmt.Errorf("unknown template engine %s", engine)
	}

	var input string
	switch engine {
	case "go":
		input = typeReportGo
	case "pongo":
		input = typeReportPongo
	case "md":
		input = typeReportMarkdown(t)
	}

	if err := tmpl.Compile("type_report", input); err != nil {
		return "", err
	}
	return tmpl.Execute(typeReportContext(t))
}

// the markdown engine renders statically, so its input carries the values
// already. The type's doc string is treated as markdown and rendered along
// with the table.
func typeReportMarkdown(t *host.TypeObject) string {
	ctx := typeReportContext(t)
	b := new(bytes.Buffer)
	fmt.Fprintf(b, "# %s\n\n", ctx["name"])
	if t.Doc != "" {
		fmt.Fprintf(b, "%s\n\n", t.Doc)
	}
	fmt.Fprintf(b, "* base: %v\n", ctx["base"])
	fmt.Fprintf(b, "* size: %v\n", ctx["size"])
	fmt.Fprintf(b, "* dict offset: %v\n", ctx["dict_offset"])
	fmt.Fprintf(b, "* weakref offset: %v\n", ctx["weakref_offset"])
	fmt.Fprintf(b, "* flags: %v\n", ctx["flags"])
	fmt.Fprintf(b, "* methods: %v\n", ctx["num_methods"])
	fmt.Fprintf(b, "* properties: %v\n", ctx["num_properties"])
	fmt.Fprintf(b, "* protocols: %v\n", ctx["protocols"])
	return b.String()
}

// Dump is the plain text convenience wrapper.
func Dump(t *host.TypeObject) string {
	out, err := TypeReport(t, "go")
	musterr("Dump", err)
	return out
}

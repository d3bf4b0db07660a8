package ext

import (
	"bytes"

	// go template
	"text/template"

	// pongo
	"github.com/flosch/pongo2"

	// markdown
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
)

// small multi engine template abstraction, used by the introspection report
// below. The context is a plain string keyed map, the engines do not get to
// see anything of the object model.

type Template interface {
	Compile(name, input string) error
	Execute(context map[string]interface{}) (string, error)
}

type goTemplate struct {
	goT *template.Template
}

func (t *goTemplate) Compile(name, input string) error {
	tp, err := template.New(name).Parse(input)
	if err != nil {
		return err
	}
	t.goT = tp
	return nil
}

func (t *goTemplate) Execute(ctx map[string]interface{}) (string, error) {
	x := new(bytes.Buffer)
	if err := t.goT.Execute(x, ctx); err != nil {
		return "", err
	}
	return x.String(), nil
}

// markdown is static, the input renders once at compile time and the context
// is ignored
type mdTemplate struct {
	md string
}

func (t *mdTemplate) Compile(_, input string) error {
	r := html.NewRenderer(
		html.RendererOptions{Flags: html.CommonFlags})

	txt := markdown.ToHTML([]byte(input), nil, r)
	t.md = string(txt)
	return nil
}

func (t *mdTemplate) Execute(_ map[string]interface{}) (string, error) {
	return t.md, nil
}

type pongoTemplate struct {
	tpl *pongo2.Template
}

func (t *pongoTemplate) Compile(_, input string) error {
	r, err := pongo2.FromString(input)
	if err != nil {
		return err
	}
	t.tpl = r
	return nil
}

func (t *pongoTemplate) Execute(ctx map[string]interface{}) (string, error) {
	p := make(pongo2.Context)
	for k, v := range ctx {
		p[k] = v
	}
	return t.tpl.Execute(p)
}

func newTemplate(t string) Template {
	switch t {
	case "go":
		return &goTemplate{}
	case "md":
		return &mdTemplate{}
	case "pongo":
		return &pongoTemplate{}
	default:
		return nil
	}
}

package ext

import "fmt"

func must(cond bool, msg string) {
	if !cond {
		panic(fmt.Sprintf("must: %s", msg))
	}
}

func musterr(ctx string, err error) {
	if err != nil {
		panic(fmt.Sprintf("%s: %s", ctx, err.Error()))
	}
}

// qualified type name, module prefix joined the way the host renders it
func qualTypeName(mod string, name string) string {
	if mod == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", mod, name)
}

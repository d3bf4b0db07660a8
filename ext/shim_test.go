package ext

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dianpeng/hostext/host"
)

func TestKwargsFromMap(t *testing.T) {
	assert := assert.New(t)

	assert.Nil(KwargsFromMap(nil))

	kw := KwargsFromMap(map[string]host.Value{"b": 2, "a": 1})
	assert.Equal(2, len(kw))
	assert.Equal("a", kw[0].Name)
	assert.Equal("b", kw[1].Name)
}

func TestWrapFn(t *testing.T) {
	assert := assert.New(t)

	rt := host.NewRuntime()
	d := &FuncDescr{
		FuncName:      "join",
		PosParamNames: []string{"sep"},
		NRequiredPos:  1,
		AcceptVarargs: true,
	}

	fn := WrapFn(d, func(_ *host.Runtime, _ host.Value,
		slots []host.Value, varargs []host.Value, _ *KwDict) (host.Value, error) {

		out := ""
		for i, v := range varargs {
			if i != 0 {
				out += slots[0].(string)
			}
			out += v.(string)
		}
		return out, nil
	})

	v, err := fn(rt, nil, []host.Value{",", "a", "b", "c"}, nil)
	assert.Nil(err)
	assert.Equal("a,b,c", v)

	// binding failures surface to the caller untouched
	_, err = fn(rt, nil, nil, nil)
	assert.NotNil(err)
	assert.Equal("join() missing 1 required positional argument: 'sep'", err.Error())
}

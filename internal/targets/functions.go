package targets

import (
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions returns the functions available to expressions in a wait file.
// Only deterministic string, numeric and collection helpers are exposed.
func functions() map[string]function.Function {
	return map[string]function.Function{
		// strings
		"format":     stdlib.FormatFunc,
		"join":       stdlib.JoinFunc,
		"split":      stdlib.SplitFunc,
		"replace":    stdlib.ReplaceFunc,
		"regex":      stdlib.RegexFunc,
		"substr":     stdlib.SubstrFunc,
		"upper":      stdlib.UpperFunc,
		"lower":      stdlib.LowerFunc,
		"trim":       stdlib.TrimFunc,
		"trimprefix": stdlib.TrimPrefixFunc,
		"trimsuffix": stdlib.TrimSuffixFunc,
		"trimspace":  stdlib.TrimSpaceFunc,

		// numbers
		"max":      stdlib.MaxFunc,
		"min":      stdlib.MinFunc,
		"parseint": stdlib.ParseIntFunc,

		// collections
		"length":   stdlib.LengthFunc,
		"element":  stdlib.ElementFunc,
		"contains": stdlib.ContainsFunc,
		"lookup":   lookupFunc,
		"coalesce": stdlib.CoalesceFunc,

		// conversion
		"tostring": stdlib.MakeToFunc(cty.String),
		"tonumber": stdlib.MakeToFunc(cty.Number),

		"duration": durationFunc,
	}
}

// lookupFunc reads a key from a map or object, falling back to a default
var lookupFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "inputMap", Type: cty.DynamicPseudoType},
		{Name: "key", Type: cty.String},
		{Name: "default", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		m, key, def := args[0], args[1].AsString(), args[2]
		ty := m.Type()
		var v cty.Value
		switch {
		case ty.IsObjectType():
			if !ty.HasAttribute(key) {
				return def, nil
			}
			v = m.GetAttr(key)
		case ty.IsMapType():
			if !m.HasIndex(cty.StringVal(key)).True() {
				return def, nil
			}
			v = m.Index(cty.StringVal(key))
		default:
			return cty.UnknownVal(cty.String), fmt.Errorf("lookup requires a map or object, got %s", ty.FriendlyName())
		}
		if v.IsNull() || !v.Type().Equals(cty.String) {
			return def, nil
		}
		return v, nil
	},
})

// durationFunc normalizes a Go duration string, so "90s" becomes "1m30s".
// It rejects malformed values at evaluation time.
var durationFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "value", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		d, err := time.ParseDuration(args[0].AsString())
		if err != nil {
			return cty.UnknownVal(cty.String), fmt.Errorf("invalid duration: %w", err)
		}
		return cty.StringVal(d.String()), nil
	},
})

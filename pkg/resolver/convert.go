package resolver

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/slothlet/slothlet/pkg/engine"
)

// toStarlark converts a Go value to a Starlark value.
func toStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlark converts a Starlark value to a Go value. Callables are
// wrapped so they can be invoked later from Go on fresh threads; the
// module's globals are frozen after evaluation, so these calls are safe
// under concurrency.
func fromStarlark(unit string, v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlark(unit, val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, item := range val {
			goVal, err := fromStarlark(unit, item)
			if err != nil {
				return nil, err
			}
			list[i] = goVal
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlark(unit, item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlark(unit, attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	case starlark.Callable:
		return wrapStarlarkCallable(unit, val), nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

// wrapStarlarkCallable adapts a Starlark function into the engine's
// Callable shape.
func wrapStarlarkCallable(unit string, fn starlark.Callable) engine.Callable {
	return func(_ context.Context, args ...any) (any, error) {
		sargs := make(starlark.Tuple, 0, len(args))
		for _, a := range args {
			sv, err := toStarlark(a)
			if err != nil {
				return nil, fmt.Errorf("cannot convert argument for %s: %w", fn.Name(), err)
			}
			sargs = append(sargs, sv)
		}
		thread := &starlark.Thread{Name: "call:" + fn.Name()}
		res, err := starlark.Call(thread, fn, sargs, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s in %s failed: %w", fn.Name(), unit, err)
		}
		return fromStarlark(unit, res)
	}
}

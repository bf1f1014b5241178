package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/slothlet/slothlet/pkg/engine"
)

// WasmLoader loads .wasm units through wazero. Unlike the Starlark
// path, this is only a thin wrapper over the host's native isolation
// mechanism: wazero does the linking, the loader adapts exported
// functions into the unit descriptor shape.
type WasmLoader struct {
	logger zerolog.Logger

	mu       sync.Mutex
	runtimes []wazero.Runtime
}

// NewWasmLoader creates the wasm unit loader.
func NewWasmLoader(logger zerolog.Logger) *WasmLoader {
	return &WasmLoader{
		logger: logger.With().Str("component", "wasm-loader").Logger(),
	}
}

// LoadUnit instantiates the module at path and exposes its exported
// functions as named exports. A function exported as "default" becomes
// the unit's default export. Only scalar (i32/i64/f32/f64) signatures
// are supported.
func (l *WasmLoader) LoadUnit(ctx context.Context, path string) (*engine.UnitDescriptor, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read unit %s: %w", path, err)
	}

	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI for %s: %w", path, err)
	}
	module, err := runtime.Instantiate(ctx, source)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate unit %s: %w", path, err)
	}

	exports := make(map[string]any)
	for name, def := range module.ExportedFunctionDefinitions() {
		if name == "_start" || strings.HasPrefix(name, "__") {
			continue
		}
		fn := module.ExportedFunction(name)
		if fn == nil {
			continue
		}
		exports[name] = wrapWasmFunc(path, name, fn, def)
	}

	// The runtime must outlive the descriptor: its functions are the
	// exported values.
	l.mu.Lock()
	l.runtimes = append(l.runtimes, runtime)
	l.mu.Unlock()

	kind := engine.UnitObject
	if _, ok := exports[engine.DefaultExport]; ok {
		kind = engine.UnitFunction
	}
	l.logger.Debug().Str("unit", path).Int("exports", len(exports)).Msg("wasm unit instantiated")

	return &engine.UnitDescriptor{
		Path:    path,
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Kind:    kind,
		Exports: exports,
	}, nil
}

// Close releases all runtimes created for loaded units.
func (l *WasmLoader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, r := range l.runtimes {
		if err := r.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.runtimes = nil
	return firstErr
}

// wrapWasmFunc adapts one exported wasm function into a Callable,
// encoding scalar arguments per the function's declared signature.
func wrapWasmFunc(path, name string, fn api.Function, def api.FunctionDefinition) engine.Callable {
	params := def.ParamTypes()
	results := def.ResultTypes()

	return func(ctx context.Context, args ...any) (any, error) {
		if len(args) != len(params) {
			return nil, fmt.Errorf("%s in %s expects %d arguments, got %d", name, path, len(params), len(args))
		}
		raw := make([]uint64, len(params))
		for i, p := range params {
			enc, err := encodeWasmValue(p, args[i])
			if err != nil {
				return nil, fmt.Errorf("argument %d of %s: %w", i, name, err)
			}
			raw[i] = enc
		}
		out, err := fn.Call(ctx, raw...)
		if err != nil {
			return nil, fmt.Errorf("call %s in %s failed: %w", name, path, err)
		}
		if len(results) == 0 {
			return nil, nil
		}
		return decodeWasmValue(results[0], out[0]), nil
	}
}

func encodeWasmValue(t api.ValueType, v any) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		n, err := asInt64(v)
		if err != nil {
			return 0, err
		}
		return api.EncodeI32(int32(n)), nil
	case api.ValueTypeI64:
		n, err := asInt64(v)
		if err != nil {
			return 0, err
		}
		return api.EncodeI64(n), nil
	case api.ValueTypeF32:
		f, err := asFloat64(v)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(f)), nil
	case api.ValueTypeF64:
		f, err := asFloat64(v)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(f), nil
	default:
		return 0, fmt.Errorf("unsupported wasm value type %v", t)
	}
}

func decodeWasmValue(t api.ValueType, raw uint64) any {
	switch t {
	case api.ValueTypeI32:
		return int64(api.DecodeI32(raw))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(raw))
	case api.ValueTypeF64:
		return api.DecodeF64(raw)
	default:
		return int64(raw)
	}
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("expected float, got %T", v)
	}
}

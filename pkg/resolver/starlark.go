package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/slothlet/slothlet/pkg/engine"
)

// StarlarkLoader evaluates .star units in an isolated context, doing
// its own dependency-graph resolution over their static load()
// declarations.
type StarlarkLoader struct {
	logger zerolog.Logger
	binder BinderFunc
}

// NewStarlarkLoader creates the sandbox evaluator.
func NewStarlarkLoader(logger zerolog.Logger) *StarlarkLoader {
	return &StarlarkLoader{
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// LoadUnit evaluates the unit at path together with every unit it
// statically imports and returns its descriptor. The dependency graph
// lives only for this one load.
func (l *StarlarkLoader) LoadUnit(ctx context.Context, path string) (*engine.UnitDescriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve unit path %s: %w", path, err)
	}
	st := &loadState{
		loader:  l,
		visited: make(map[string]*loadEntry),
	}
	globals, err := st.exec(ctx, abs)
	if err != nil {
		return nil, err
	}
	return l.descriptorFromGlobals(path, globals)
}

// loadEntry is the per-load arena slot for one unit: its evaluated
// globals once done, and an in-progress marker while on the stack.
type loadEntry struct {
	globals starlark.StringDict
	loading bool
}

// loadState is the per-load dependency graph walk: an arena of entries
// keyed by absolute path, plus the current import chain for cycle
// reporting. It never outlives one LoadUnit call.
type loadState struct {
	loader  *StarlarkLoader
	visited map[string]*loadEntry
	stack   []string
}

// exec evaluates one unit file, resolving its imports recursively.
// Re-importing an already-evaluated unit returns the cached globals, so
// diamond-shaped graphs evaluate each unit once; re-entering a unit
// still on the stack is a cycle.
func (s *loadState) exec(ctx context.Context, path string) (starlark.StringDict, error) {
	if entry, ok := s.visited[path]; ok {
		if entry.loading {
			return nil, engine.NewCyclicImportError(s.cyclePath(path)).WithPath(path)
		}
		return entry.globals, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := &loadEntry{loading: true}
	s.visited[path] = entry
	s.stack = append(s.stack, path)
	defer func() {
		entry.loading = false
		s.stack = s.stack[:len(s.stack)-1]
	}()

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read unit %s: %w", path, err)
	}

	thread := &starlark.Thread{
		Name: path,
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			target, err := s.resolveImport(filepath.Dir(path), module)
			if err != nil {
				return nil, err
			}
			return s.exec(ctx, target)
		},
		Print: func(_ *starlark.Thread, msg string) {
			s.loader.logger.Debug().Str("unit", path).Msg(msg)
		},
	}

	globals, err := starlark.ExecFile(thread, path, src, s.loader.predeclared(path))
	if err != nil {
		// Errors returned from the Load callback come back wrapped in a
		// starlark.EvalError; surface classified errors (cycles) as-is.
		var classified *engine.Error
		if errors.As(err, &classified) {
			return nil, classified
		}
		return nil, fmt.Errorf("unit evaluation failed for %s: %w", path, err)
	}
	entry.globals = globals
	s.loader.logger.Debug().Str("unit", path).Int("globals", len(globals)).Msg("unit evaluated")
	return globals, nil
}

// resolveImport maps a static load() target to an absolute unit path.
// Only literal relative .star targets are supported; there is no
// computed or dynamic import surface.
func (s *loadState) resolveImport(baseDir, module string) (string, error) {
	if module == "" {
		return "", fmt.Errorf("empty import target")
	}
	if !strings.HasSuffix(module, ".star") {
		return "", fmt.Errorf("unsupported import target %q: only .star units can be imported", module)
	}
	if filepath.IsAbs(module) {
		return "", fmt.Errorf("unsupported import target %q: absolute paths are not allowed", module)
	}
	return filepath.Abs(filepath.Join(baseDir, module))
}

// cyclePath renders the import chain from the first occurrence of the
// re-entered unit, by base name.
func (s *loadState) cyclePath(path string) []string {
	start := 0
	for i, p := range s.stack {
		if p == path {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(s.stack)-start+1)
	for _, p := range s.stack[start:] {
		cycle = append(cycle, filepath.Base(p))
	}
	return append(cycle, filepath.Base(path))
}

// predeclared builds a unit's execution environment: the struct
// constructor plus config accessors bound to the unit's identity.
func (l *StarlarkLoader) predeclared(path string) starlark.StringDict {
	module := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var acc ConfigAccessor
	if l.binder != nil {
		acc = l.binder(module)
	}
	return starlark.StringDict{
		"struct":     starlark.NewBuiltin("struct", starlarkstruct.Make),
		"config_get": starlark.NewBuiltin("config_get", configGetBuiltin(acc)),
		"config_set": starlark.NewBuiltin("config_set", configSetBuiltin(acc)),
	}
}

func configGetBuiltin(acc ConfigAccessor) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var key string
		var def starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "default?", &def); err != nil {
			return nil, err
		}
		if acc == nil {
			if def != nil {
				return def, nil
			}
			return nil, fmt.Errorf("config store not available")
		}
		var goDef []any
		if def != nil {
			d, err := fromStarlark("", def)
			if err != nil {
				return nil, err
			}
			goDef = append(goDef, d)
		}
		v, err := acc.Get(key, goDef...)
		if err != nil {
			return nil, err
		}
		return toStarlark(v)
	}
}

func configSetBuiltin(acc ConfigAccessor) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var key string
		var value starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "value", &value); err != nil {
			return nil, err
		}
		if acc == nil {
			return nil, fmt.Errorf("config store not available")
		}
		goVal, err := fromStarlark("", value)
		if err != nil {
			return nil, err
		}
		if err := acc.Set(key, goVal); err != nil {
			return nil, err
		}
		return starlark.None, nil
	}
}

// descriptorFromGlobals extracts a unit's exported surface: every
// module global not prefixed with an underscore, with "default"
// reserved for the default export.
func (l *StarlarkLoader) descriptorFromGlobals(path string, globals starlark.StringDict) (*engine.UnitDescriptor, error) {
	exports := make(map[string]any, len(globals))
	for name, val := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		goVal, err := fromStarlark(path, val)
		if err != nil {
			return nil, fmt.Errorf("cannot convert export %s of %s: %w", name, path, err)
		}
		exports[name] = goVal
	}

	desc := &engine.UnitDescriptor{
		Path:    path,
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Exports: exports,
		Kind:    classifyExports(exports),
	}
	return desc, nil
}

func classifyExports(exports map[string]any) engine.UnitKind {
	if dv, ok := exports[engine.DefaultExport]; ok {
		switch dv.(type) {
		case engine.Callable:
			return engine.UnitFunction
		case map[string]any:
			return engine.UnitObject
		default:
			return engine.UnitPrimitive
		}
	}
	return engine.UnitObject
}

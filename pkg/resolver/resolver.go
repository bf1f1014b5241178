package resolver

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/slothlet/slothlet/pkg/engine"
	"github.com/slothlet/slothlet/pkg/telemetry"
)

// ConfigAccessor is the capability-scoped config surface handed to a
// loaded unit. Writes are confined to the unit's own module namespace
// by the token bound inside the accessor.
type ConfigAccessor interface {
	Get(key string, def ...any) (any, error)
	Set(key string, value any) error
}

// BinderFunc issues a config accessor bound to a unit's identity at
// load time. Binding by closure replaces any form of caller stack
// inspection.
type BinderFunc func(module string) ConfigAccessor

// Resolver dispatches unit loading by format.
type Resolver struct {
	star   *StarlarkLoader
	wasm   *WasmLoader
	tracer *telemetry.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConfigBinder wires config accessors into loaded units.
func WithConfigBinder(binder BinderFunc) Option {
	return func(r *Resolver) { r.star.binder = binder }
}

// WithTracer attaches a tracer; unit loads then produce spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

// New creates a resolver covering all supported unit formats.
func New(logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		star: NewStarlarkLoader(logger),
		wasm: NewWasmLoader(logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadUnit loads one unit file and its static imports.
func (r *Resolver) LoadUnit(ctx context.Context, path string) (*engine.UnitDescriptor, error) {
	format, ok := engine.FormatForPath(path)
	if !ok {
		return nil, engine.NewScanError("not a loadable unit", nil).WithPath(path)
	}
	ctx, span := r.tracer.StartSpan(ctx, "resolver.unit",
		telemetry.AttrUnitPath.String(path),
		telemetry.AttrUnitFormat.String(string(format)),
	)
	defer span.End()

	var desc *engine.UnitDescriptor
	var err error
	switch format {
	case engine.FormatWasm:
		desc, err = r.wasm.LoadUnit(ctx, path)
	default:
		desc, err = r.star.LoadUnit(ctx, path)
	}
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return desc, err
}

// Close releases resources held on behalf of loaded units.
func (r *Resolver) Close(ctx context.Context) error {
	return r.wasm.Close(ctx)
}

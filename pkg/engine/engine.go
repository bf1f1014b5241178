package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/slothlet/slothlet/pkg/telemetry"
)

// Engine composes mounted sources into a single addressable namespace.
// AddAPI registers mounts; Load scans, merges and (optionally lazily)
// materializes them.
type Engine struct {
	scanner Scanner
	loader  UnitLoader
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	mounts  []MountRequest
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger.With().Str("component", "engine").Logger() }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer attaches a tracer; Load calls then produce spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New creates an engine with the given discovery and loading
// collaborators.
func New(scanner Scanner, loader UnitLoader, opts ...Option) *Engine {
	e := &Engine{
		scanner: scanner,
		loader:  loader,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddAPI registers a directory (or single unit file) to be merged under
// the given namespace key. May be called repeatedly to compose the
// namespace from several sources.
func (e *Engine) AddAPI(key, sourcePath string) error {
	if key == "" {
		return NewExportCollisionError(key, "mount key must not be empty")
	}
	for _, m := range e.mounts {
		if strings.EqualFold(m.Key, key) {
			return NewExportCollisionError(key, "mount key already registered")
		}
	}
	e.mounts = append(e.mounts, MountRequest{Key: key, SourcePath: sourcePath})
	e.logger.Debug().Str("key", key).Str("source", sourcePath).Msg("registered mount")
	return nil
}

// Load builds the composed namespace from the optional root source and
// all registered mounts. With Options.Lazy the returned namespace
// contains deferred subtrees materialized on first access; otherwise
// the whole tree is resolved before it is exposed.
func (e *Engine) Load(ctx context.Context, opts Options) (*Namespace, error) {
	ctx, span := e.tracer.StartSpan(ctx, "engine.load",
		attribute.Bool("lazy", opts.Lazy),
		attribute.Int("mounts", len(e.mounts)),
	)
	defer span.End()

	b := &treeBuilder{
		loader:  e.loader,
		logger:  e.logger,
		metrics: e.metrics,
		lazy:    opts.Lazy,
	}

	root := NewObject()

	if opts.Dir != "" {
		if err := e.loadRoot(ctx, b, root, opts.Dir); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	for _, m := range e.mounts {
		node, err := e.buildSource(ctx, b, m.Key, m.SourcePath)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if err := installMount(root, m.Key, node); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	if !opts.Lazy {
		materialized, err := root.materialize(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		root = materialized
	}

	e.logger.Info().
		Int("mounts", len(e.mounts)).
		Bool("lazy", opts.Lazy).
		Msg("namespace loaded")
	return &Namespace{root: root, logger: e.logger}, nil
}

// loadRoot installs a root source: a directory whose entries become
// top-level keys, or a single unit file whose exports form the root
// itself (making the namespace directly invokable when the unit's
// default export is callable).
func (e *Engine) loadRoot(ctx context.Context, b *treeBuilder, root *Node, source string) error {
	info, err := os.Stat(source)
	if err != nil {
		return NewScanError("cannot stat root source", err).WithPath(source)
	}

	if !info.IsDir() {
		uf, err := unitFileFor(source)
		if err != nil {
			return err
		}
		node, err := b.unitGroupNode(ctx, []UnitFile{uf}).resolve(ctx)
		if err != nil {
			return err
		}
		return graftRootUnit(root, node)
	}

	dir, err := e.scanner.Scan(ctx, source)
	if err != nil {
		return err
	}
	order, groups := groupUnits(dir.Units)
	for _, name := range order {
		if err := root.put(name, b.unitGroupNode(ctx, groups[name])); err != nil {
			return err
		}
	}
	for _, sub := range dir.Subdirs {
		node, err := b.buildMount(ctx, sub.Name, sub)
		if err != nil {
			return err
		}
		if err := root.put(sub.Name, node); err != nil {
			return err
		}
	}
	return nil
}

// buildSource builds the node for one explicit mount request.
func (e *Engine) buildSource(ctx context.Context, b *treeBuilder, key, source string) (*Node, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, NewScanError("cannot stat mount source", err).WithPath(source).WithKey(key)
	}
	if !info.IsDir() {
		uf, err := unitFileFor(source)
		if err != nil {
			return nil, err
		}
		return b.unitGroupNode(ctx, []UnitFile{uf}), nil
	}
	dir, err := e.scanner.Scan(ctx, source)
	if err != nil {
		return nil, err
	}
	return b.buildMount(ctx, key, dir)
}

// installMount adds a mount node under key. A key already claimed by a
// leaf export fails; two object subtrees merge key-by-key. When either
// side is still deferred the merge itself is deferred, so lazy and
// eager composition produce the same namespace.
func installMount(root *Node, key string, node *Node) error {
	existing, ok := root.child(key)
	if !ok {
		return root.put(key, node)
	}
	if existing.typ == nodeDeferred || node.typ == nodeDeferred {
		root.children[key] = NewDeferred(func(ctx context.Context) (*Node, error) {
			left, err := existing.resolve(ctx)
			if err != nil {
				return nil, err
			}
			right, err := node.resolve(ctx)
			if err != nil {
				return nil, err
			}
			return mergeMountNodes(key, left, right)
		})
		return nil
	}
	merged, err := mergeMountNodes(key, existing, node)
	if err != nil {
		return err
	}
	root.children[key] = merged
	return nil
}

// mergeMountNodes combines two resolved nodes sharing one mount key.
// Only object pairs merge; anything else is a collision, as is a child
// key or default export claimed by both sides.
func mergeMountNodes(key string, left, right *Node) (*Node, error) {
	if left.typ != nodeObject || right.typ != nodeObject {
		return nil, NewExportCollisionError(key, "mount key collides with an existing export")
	}
	out := NewObject()
	out.fn = left.fn
	if right.fn != nil {
		if out.fn != nil {
			return nil, NewExportCollisionError(key, "two mounts claim the default export")
		}
		out.fn = right.fn
	}
	for _, name := range left.order {
		if err := out.put(name, left.children[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range right.order {
		if err := out.put(name, right.children[name]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// graftRootUnit merges a root unit node onto the namespace root.
func graftRootUnit(root *Node, node *Node) error {
	switch node.typ {
	case nodeLeaf:
		if fn, ok := node.value.(Callable); ok {
			root.fn = fn
			return nil
		}
		return NewExportCollisionError("", "root unit must export a callable or an object")
	case nodeObject:
		root.fn = node.fn
		for _, name := range node.order {
			if err := root.put(name, node.children[name]); err != nil {
				return err
			}
		}
		return nil
	default:
		return NewExportCollisionError("", "root unit did not materialize")
	}
}

func unitFileFor(path string) (UnitFile, error) {
	format, ok := FormatForPath(path)
	if !ok {
		return UnitFile{}, NewScanError("not a loadable unit", nil).WithPath(path)
	}
	return UnitFile{Path: path, Name: baseName(path), Format: format}, nil
}

func baseName(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// Namespace is the composed, read-mostly API tree handed to consumers.
// Property reads may trigger lazy materialization.
type Namespace struct {
	root   *Node
	logger zerolog.Logger
}

// Lookup walks the namespace along path, materializing deferred
// subtrees as needed. It returns a leaf value (Callable for functions)
// or a sub-namespace for object nodes.
func (ns *Namespace) Lookup(ctx context.Context, path ...string) (any, error) {
	node := ns.root
	for i, seg := range path {
		resolved, err := node.resolve(ctx)
		if err != nil {
			return nil, err
		}
		child, ok := resolved.child(seg)
		if !ok {
			return nil, NewKeyNotFoundError(strings.Join(path[:i+1], "."))
		}
		node = child
	}
	final, err := node.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if final.typ == nodeObject {
		return &Namespace{root: final, logger: ns.logger}, nil
	}
	return final.value, nil
}

// Call looks up path and invokes the result with args.
func (ns *Namespace) Call(ctx context.Context, path []string, args ...any) (any, error) {
	v, err := ns.Lookup(ctx, path...)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case Callable:
		return t(ctx, args...)
	case *Namespace:
		return t.Invoke(ctx, args...)
	default:
		return nil, fmt.Errorf("namespace path %s is not callable", strings.Join(path, "."))
	}
}

// Invoke calls the namespace itself. Valid when the root mount was a
// single callable unit.
func (ns *Namespace) Invoke(ctx context.Context, args ...any) (any, error) {
	node, err := ns.root.resolve(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case node.typ == nodeLeaf:
		if fn, ok := node.value.(Callable); ok {
			return fn(ctx, args...)
		}
	case node.typ == nodeObject && node.fn != nil:
		return node.fn(ctx, args...)
	}
	return nil, fmt.Errorf("namespace is not callable")
}

// Keys returns the top-level keys, materializing the root if deferred.
func (ns *Namespace) Keys(ctx context.Context) ([]string, error) {
	node, err := ns.root.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return node.Keys(), nil
}

// Dump renders the whole tree as an indented listing. It materializes
// every deferred subtree, so it is primarily a debugging aid.
func (ns *Namespace) Dump(ctx context.Context) (string, error) {
	var b strings.Builder
	if err := dumpNode(ctx, &b, ns.root, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

func dumpNode(ctx context.Context, b *strings.Builder, node *Node, depth int) error {
	resolved, err := node.resolve(ctx)
	if err != nil {
		return err
	}
	if resolved.typ != nodeObject {
		return nil
	}
	indent := strings.Repeat("  ", depth)
	for _, name := range resolved.order {
		child, err := resolved.children[name].resolve(ctx)
		if err != nil {
			return err
		}
		switch {
		case child.typ == nodeObject:
			fmt.Fprintf(b, "%s%s/\n", indent, name)
			if err := dumpNode(ctx, b, child, depth+1); err != nil {
				return err
			}
		default:
			if _, ok := child.value.(Callable); ok {
				fmt.Fprintf(b, "%s%s()\n", indent, name)
			} else {
				fmt.Fprintf(b, "%s%s = %v\n", indent, name, child.value)
			}
		}
	}
	return nil
}

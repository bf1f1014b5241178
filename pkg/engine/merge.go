package engine

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/slothlet/slothlet/pkg/telemetry"
)

// mountShape classifies a mounted directory relative to its target key.
// Computed once per mount, then dispatched by switch.
type mountShape int

const (
	// shapeSingleMatch: the directory contains exactly one unit whose
	// base name equals the target key; its exports flatten onto the key.
	shapeSingleMatch mountShape = iota

	// shapeMultiMatch: a matching unit plus sibling units; the match
	// flattens, siblings nest by name.
	shapeMultiMatch

	// shapeNoMatch: no unit matches the key; everything nests.
	shapeNoMatch

	// shapeSubdirOnly: no units at all, only subdirectories.
	shapeSubdirOnly
)

func (s mountShape) String() string {
	switch s {
	case shapeSingleMatch:
		return "single_match"
	case shapeMultiMatch:
		return "multi_match"
	case shapeNoMatch:
		return "no_match"
	default:
		return "subdir_only"
	}
}

// FormatForPath classifies a file path as a loadable unit format.
func FormatForPath(path string) (UnitFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".star":
		return FormatStarlark, true
	case ".wasm":
		return FormatWasm, true
	default:
		return "", false
	}
}

// treeBuilder turns scanned directories into namespace nodes. One
// builder serves one Load call.
type treeBuilder struct {
	loader  UnitLoader
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	lazy    bool
}

// groupUnits groups a directory's unit files by base name, preserving
// discovery order. Files like utils.star and utils.wasm form one group
// occupying one namespace key.
func groupUnits(units []UnitFile) ([]string, map[string][]UnitFile) {
	order := make([]string, 0, len(units))
	groups := make(map[string][]UnitFile, len(units))
	for _, u := range units {
		if _, seen := groups[u.Name]; !seen {
			order = append(order, u.Name)
		}
		groups[u.Name] = append(groups[u.Name], u)
	}
	return order, groups
}

// classifyMount computes the mount's shape and, for matching shapes, the
// name of the flattened unit group. Matching is case-insensitive.
func classifyMount(key string, dir *Dir) (mountShape, string) {
	order, _ := groupUnits(dir.Units)
	match := ""
	for _, name := range order {
		if strings.EqualFold(name, key) {
			match = name
			break
		}
	}
	switch {
	case len(order) == 0 && len(dir.Subdirs) > 0:
		return shapeSubdirOnly, ""
	case match != "" && len(order) == 1:
		return shapeSingleMatch, match
	case match != "":
		return shapeMultiMatch, match
	default:
		return shapeNoMatch, ""
	}
}

// buildMount decides the namespace shape of a directory mounted under
// key and builds its node. It recurses into subdirectories with each
// subdirectory's own name as the key, so a unit only ever flattens
// against its own directory, never against an ancestor key.
func (b *treeBuilder) buildMount(ctx context.Context, key string, dir *Dir) (*Node, error) {
	shape, match := classifyMount(key, dir)
	b.metrics.FlattenDecision(shape.String())
	b.logger.Debug().
		Str("key", key).
		Str("dir", dir.Path).
		Str("shape", shape.String()).
		Msg("classified mount")

	switch shape {
	case shapeSingleMatch, shapeMultiMatch:
		return b.buildFlatten(ctx, key, dir, match)
	default:
		return b.buildNested(ctx, key, dir)
	}
}

// buildNested nests every unit group and subdirectory under its own
// name (rules 3 and the subdir-only case).
func (b *treeBuilder) buildNested(ctx context.Context, key string, dir *Dir) (*Node, error) {
	node := NewObject()
	order, groups := groupUnits(dir.Units)
	for _, name := range order {
		child := b.unitGroupNode(ctx, groups[name])
		if err := node.put(name, child); err != nil {
			return nil, err
		}
	}
	for _, sub := range dir.Subdirs {
		child, err := b.buildMount(ctx, sub.Name, sub)
		if err != nil {
			return nil, err
		}
		if err := node.put(sub.Name, child); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// buildFlatten flattens the matching unit group's exports onto the
// target key. Siblings nest by name; a sibling whose key collides with
// one of the flattened exports is shadowed and reported, never merged.
// The flattened children are unknown until the matching unit is
// evaluated, so in lazy mode the whole mount node is deferred.
func (b *treeBuilder) buildFlatten(ctx context.Context, key string, dir *Dir, match string) (*Node, error) {
	order, groups := groupUnits(dir.Units)
	build := func(ctx context.Context) (*Node, error) {
		b.metrics.Materialization()
		node := NewObject()
		if err := b.applyGroup(ctx, node, groups[match]); err != nil {
			return nil, err
		}
		for _, name := range order {
			if name == match {
				continue
			}
			child := b.unitGroupNode(ctx, groups[name])
			if node.putShadow(name, child) {
				b.warnShadowed(key, name, dir.Path)
			}
		}
		for _, sub := range dir.Subdirs {
			child, err := b.buildMount(ctx, sub.Name, sub)
			if err != nil {
				return nil, err
			}
			if node.putShadow(sub.Name, child) {
				b.warnShadowed(key, sub.Name, dir.Path)
			}
		}
		return collapse(node), nil
	}
	if b.lazy {
		return NewDeferred(build), nil
	}
	return build(ctx)
}

func (b *treeBuilder) warnShadowed(key, sibling, path string) {
	b.metrics.Collision()
	b.logger.Warn().
		Str("key", key).
		Str("sibling", sibling).
		Str("dir", path).
		Msg("sibling shadowed by flattened export")
}

// unitGroupNode builds the node for one base-name group nested under
// its own key. In lazy mode evaluation is deferred behind a cell.
func (b *treeBuilder) unitGroupNode(ctx context.Context, group []UnitFile) *Node {
	build := func(ctx context.Context) (*Node, error) {
		b.metrics.Materialization()
		node := NewObject()
		if err := b.applyGroup(ctx, node, group); err != nil {
			return nil, err
		}
		return collapse(node), nil
	}
	if b.lazy {
		return NewDeferred(build)
	}
	// Eager unit nodes still go through a cell so load errors surface
	// at materialization with the same poisoning semantics.
	return NewDeferred(build)
}

// applyGroup loads every unit in a group and merges their exports onto
// node. Two units exporting the same name is a deterministic error.
func (b *treeBuilder) applyGroup(ctx context.Context, node *Node, group []UnitFile) error {
	for _, uf := range group {
		desc, err := b.loader.LoadUnit(ctx, uf.Path)
		b.metrics.UnitLoad(string(uf.Format), err == nil)
		if err != nil {
			return err
		}
		if err := applyExports(node, desc); err != nil {
			return err
		}
	}
	return nil
}

// applyExports merges one descriptor's exports onto an object node. The
// default export becomes the node's invocable surface when callable,
// spreads its entries when it is an object, and stays reachable under
// the reserved key otherwise.
func applyExports(node *Node, desc *UnitDescriptor) error {
	if dv, ok := desc.Default(); ok {
		switch v := dv.(type) {
		case Callable:
			if node.fn != nil {
				return NewExportCollisionError(DefaultExport,
					"two units claim the default export").WithPath(desc.Path)
			}
			node.fn = v
		case map[string]any:
			for _, k := range sortedKeys(v) {
				if err := node.put(k, leafFor(v[k])); err != nil {
					return wrapCollision(err, desc.Path)
				}
			}
		default:
			if err := node.put(DefaultExport, NewLeaf(v)); err != nil {
				return wrapCollision(err, desc.Path)
			}
		}
	}
	for _, name := range sortedKeys(desc.Exports) {
		if name == DefaultExport {
			continue
		}
		if err := node.put(name, leafFor(desc.Exports[name])); err != nil {
			return wrapCollision(err, desc.Path)
		}
	}
	return nil
}

// collapse reduces degenerate object nodes: a callable with no other
// exports becomes a callable leaf, a lone primitive default becomes a
// value leaf.
func collapse(node *Node) *Node {
	if len(node.children) == 0 && node.fn != nil {
		return NewLeaf(node.fn)
	}
	if node.fn == nil && len(node.children) == 1 {
		if child, ok := node.children[DefaultExport]; ok && child.typ == nodeLeaf {
			return child
		}
	}
	return node
}

func leafFor(v any) *Node {
	if m, ok := v.(map[string]any); ok {
		obj := NewObject()
		for _, k := range sortedKeys(m) {
			// Nested maps become nested namespace objects; duplicate
			// keys cannot occur inside one map.
			_ = obj.put(k, leafFor(m[k]))
		}
		return obj
	}
	return NewLeaf(v)
}

func wrapCollision(err error, path string) error {
	if e, ok := err.(*Error); ok && e.Path == "" {
		return e.WithPath(path)
	}
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

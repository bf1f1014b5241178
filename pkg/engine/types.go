package engine

import (
	"context"
)

// DefaultExport is the reserved export name for a unit's default value.
const DefaultExport = "default"

// UnitKind describes the shape of a unit's default export surface.
type UnitKind string

const (
	// UnitFunction is a unit whose default export is callable.
	UnitFunction UnitKind = "function"

	// UnitObject is a unit exposing a method group (default object or
	// named exports).
	UnitObject UnitKind = "object"

	// UnitPrimitive is a unit whose default export is a plain value.
	UnitPrimitive UnitKind = "primitive"
)

// Callable is the Go shape of a loaded unit function. Implementations
// wrap Starlark functions or WASM exports.
type Callable func(ctx context.Context, args ...any) (any, error)

// UnitDescriptor represents one loaded code unit and its exported
// surface. Immutable after creation.
type UnitDescriptor struct {
	// Path is the unit's unique filesystem identifier.
	Path string

	// Name is the unit's base name without extension.
	Name string

	// Kind classifies the unit's default export surface.
	Kind UnitKind

	// Exports maps export names (including the reserved "default" key)
	// to values. Function values are Callable.
	Exports map[string]any
}

// Default returns the unit's default export, if any.
func (u *UnitDescriptor) Default() (any, bool) {
	v, ok := u.Exports[DefaultExport]
	return v, ok
}

// DefaultCallable returns the default export as a Callable, if it is one.
func (u *UnitDescriptor) DefaultCallable() (Callable, bool) {
	v, ok := u.Exports[DefaultExport]
	if !ok {
		return nil, false
	}
	fn, ok := v.(Callable)
	return fn, ok
}

// MountRequest associates a namespace key with a source directory or
// single unit file. Consumed once by the merge engine.
type MountRequest struct {
	// Key is the target namespace key.
	Key string

	// SourcePath is the directory or unit file to mount.
	SourcePath string
}

// Options control a Load call.
type Options struct {
	// Lazy defers unit loading until first namespace access. When false
	// the whole tree is resolved before the namespace is returned.
	Lazy bool

	// Dir is an optional root source: a directory whose top-level units
	// and subdirectories become top-level namespace keys, or a single
	// unit file that becomes the (possibly callable) root itself.
	Dir string
}

// UnitFormat identifies how a discovered file is loaded.
type UnitFormat string

const (
	// FormatStarlark is a .star unit evaluated by the sandbox resolver.
	FormatStarlark UnitFormat = "starlark"

	// FormatWasm is a .wasm unit loaded through the native isolation
	// mechanism.
	FormatWasm UnitFormat = "wasm"
)

// UnitFile is a discovered candidate unit. Produced by the scanner;
// no code has been loaded yet.
type UnitFile struct {
	// Path is the file's location on disk.
	Path string

	// Name is the base name without extension, used for namespace keys
	// and flatten matching.
	Name string

	// Format selects the loader for this unit.
	Format UnitFormat
}

// Dir is one directory of the discovery forest: its candidate units and
// subdirectories in discovery order.
type Dir struct {
	// Path is the directory's location on disk.
	Path string

	// Name is the directory's base name.
	Name string

	// Units are the candidate unit files directly in this directory.
	Units []UnitFile

	// Subdirs are the child directories containing at least one unit
	// somewhere beneath them.
	Subdirs []*Dir
}

// Scanner discovers candidate units under a root directory. It returns
// paths and structure only; it never loads code.
type Scanner interface {
	Scan(ctx context.Context, root string) (*Dir, error)
}

// UnitLoader loads one unit file, resolving its static imports, and
// produces its descriptor.
type UnitLoader interface {
	LoadUnit(ctx context.Context, path string) (*UnitDescriptor, error)
}

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// fakeScanner serves hand-built discovery trees keyed by root path.
type fakeScanner struct {
	dirs map[string]*Dir
}

func (f *fakeScanner) Scan(_ context.Context, root string) (*Dir, error) {
	dir, ok := f.dirs[root]
	if !ok {
		return nil, NewScanError("unknown root", nil).WithPath(root)
	}
	return dir, nil
}

// writeUnitFixture creates an empty placeholder file so mount sources
// pass the stat check; the fake loader never reads it.
func writeUnitFixture(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("# fixture\n"), 0o644); err != nil {
		t.Fatalf("write fixture failed: %v", err)
	}
	return path
}

func TestAddAPIRejectsDuplicateKeys(t *testing.T) {
	e := New(&fakeScanner{}, newFakeLoader())
	if err := e.AddAPI("math", "/src/math"); err != nil {
		t.Fatalf("first AddAPI failed: %v", err)
	}
	if err := e.AddAPI("math", "/src/other"); !IsExportCollision(err) {
		t.Errorf("duplicate key: expected export collision, got %v", err)
	}
	if err := e.AddAPI("Math", "/src/other"); !IsExportCollision(err) {
		t.Errorf("case-folded duplicate: expected export collision, got %v", err)
	}
	if err := e.AddAPI("", "/src/other"); !IsExportCollision(err) {
		t.Errorf("empty key: expected export collision, got %v", err)
	}
}

func TestLoadMountAndLookup(t *testing.T) {
	tmp := t.TempDir()
	mathDir := filepath.Join(tmp, "math")
	unitPath := writeUnitFixture(t, mathDir, "math.star")

	loader := newFakeLoader()
	loader.add(unitPath, map[string]any{"add": echoFn("sum")})
	sc := &fakeScanner{dirs: map[string]*Dir{
		mathDir: {Path: mathDir, Name: "math", Units: []UnitFile{starFile(unitPath)}},
	}}

	for _, lazy := range []bool{true, false} {
		e := New(sc, loader)
		if err := e.AddAPI("math", mathDir); err != nil {
			t.Fatalf("AddAPI failed: %v", err)
		}
		ns, err := e.Load(context.Background(), Options{Lazy: lazy})
		if err != nil {
			t.Fatalf("Load(lazy=%v) failed: %v", lazy, err)
		}

		got, err := ns.Call(context.Background(), []string{"math", "add"}, 2, 3)
		if err != nil {
			t.Fatalf("Call(lazy=%v) failed: %v", lazy, err)
		}
		if got != "sum" {
			t.Errorf("Call(lazy=%v) = %v, want sum", lazy, got)
		}
	}
}

func TestLazyEagerParity(t *testing.T) {
	tmp := t.TempDir()
	apiDir := filepath.Join(tmp, "api")
	mathPath := writeUnitFixture(t, filepath.Join(apiDir, "math"), "math.star")
	datePath := writeUnitFixture(t, filepath.Join(apiDir, "nested", "date"), "date.star")

	loader := newFakeLoader()
	loader.add(mathPath, map[string]any{"add": echoFn("sum")})
	loader.add(datePath, map[string]any{"today": echoFn("today")})
	sc := &fakeScanner{dirs: map[string]*Dir{
		apiDir: {
			Path: apiDir,
			Name: "api",
			Subdirs: []*Dir{
				{Path: filepath.Join(apiDir, "math"), Name: "math", Units: []UnitFile{starFile(mathPath)}},
				{Path: filepath.Join(apiDir, "nested"), Name: "nested", Subdirs: []*Dir{
					{Path: filepath.Join(apiDir, "nested", "date"), Name: "date", Units: []UnitFile{starFile(datePath)}},
				}},
			},
		},
	}}

	dumps := make([]string, 0, 2)
	for _, lazy := range []bool{true, false} {
		e := New(sc, loader)
		ns, err := e.Load(context.Background(), Options{Lazy: lazy, Dir: apiDir})
		if err != nil {
			t.Fatalf("Load(lazy=%v) failed: %v", lazy, err)
		}
		dump, err := ns.Dump(context.Background())
		if err != nil {
			t.Fatalf("Dump(lazy=%v) failed: %v", lazy, err)
		}
		dumps = append(dumps, dump)
	}
	if dumps[0] != dumps[1] {
		t.Errorf("lazy and eager namespaces differ:\nlazy:\n%s\neager:\n%s", dumps[0], dumps[1])
	}
}

func TestLookupMissingKey(t *testing.T) {
	tmp := t.TempDir()
	mathDir := filepath.Join(tmp, "math")
	unitPath := writeUnitFixture(t, mathDir, "math.star")

	loader := newFakeLoader()
	loader.add(unitPath, map[string]any{"add": echoFn("sum")})
	sc := &fakeScanner{dirs: map[string]*Dir{
		mathDir: {Path: mathDir, Name: "math", Units: []UnitFile{starFile(unitPath)}},
	}}

	e := New(sc, loader)
	if err := e.AddAPI("math", mathDir); err != nil {
		t.Fatalf("AddAPI failed: %v", err)
	}
	ns, err := e.Load(context.Background(), Options{Lazy: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	_, err = ns.Lookup(context.Background(), "math", "subtract")
	if !IsKeyNotFound(err) {
		t.Errorf("expected key not found, got: %v", err)
	}
}

func TestLoadFailureIsDeterministic(t *testing.T) {
	tmp := t.TempDir()
	badDir := filepath.Join(tmp, "bad")
	unitPath := writeUnitFixture(t, badDir, "bad.star")

	loader := newFakeLoader()
	loader.fail[unitPath] = NewCyclicImportError([]string{"bad.star", "worse.star", "bad.star"})
	sc := &fakeScanner{dirs: map[string]*Dir{
		badDir: {Path: badDir, Name: "bad", Units: []UnitFile{starFile(unitPath)}},
	}}

	e := New(sc, loader)
	if err := e.AddAPI("bad", badDir); err != nil {
		t.Fatalf("AddAPI failed: %v", err)
	}
	ns, err := e.Load(context.Background(), Options{Lazy: true})
	if err != nil {
		t.Fatalf("lazy Load must not touch units: %v", err)
	}

	if _, err := ns.Lookup(context.Background(), "bad"); !IsCyclicImport(err) {
		t.Fatalf("first access: expected cyclic import, got %v", err)
	}
	if _, err := ns.Lookup(context.Background(), "bad"); !IsCyclicImport(err) {
		t.Fatalf("second access: expected the cached failure, got %v", err)
	}
	if got := loader.loadCount(unitPath); got != 1 {
		t.Errorf("loads = %d, failed subtree must not be retried", got)
	}
}

func TestEagerLoadSurfacesFailures(t *testing.T) {
	tmp := t.TempDir()
	badDir := filepath.Join(tmp, "bad")
	unitPath := writeUnitFixture(t, badDir, "bad.star")

	loader := newFakeLoader()
	loader.fail[unitPath] = NewScanError("unreadable", nil).WithPath(unitPath)
	sc := &fakeScanner{dirs: map[string]*Dir{
		badDir: {Path: badDir, Name: "bad", Units: []UnitFile{starFile(unitPath)}},
	}}

	e := New(sc, loader)
	if err := e.AddAPI("bad", badDir); err != nil {
		t.Fatalf("AddAPI failed: %v", err)
	}
	if _, err := e.Load(context.Background(), Options{Lazy: false}); !IsScan(err) {
		t.Errorf("eager Load must fail before exposing the namespace, got: %v", err)
	}
}

func TestRootUnitCallable(t *testing.T) {
	tmp := t.TempDir()
	rootUnit := writeUnitFixture(t, tmp, "greeter.star")

	loader := newFakeLoader()
	loader.add(rootUnit, map[string]any{
		DefaultExport: Callable(func(_ context.Context, args ...any) (any, error) {
			name, _ := args[0].(string)
			return "Hello, " + name + "!", nil
		}),
		"version": "1.0",
	})

	e := New(&fakeScanner{}, loader)
	ns, err := e.Load(context.Background(), Options{Lazy: true, Dir: rootUnit})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, err := ns.Invoke(context.Background(), "slothlet")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "Hello, slothlet!" {
		t.Errorf("Invoke = %v, want greeting", got)
	}

	version, err := ns.Lookup(context.Background(), "version")
	if err != nil {
		t.Fatalf("Lookup version failed: %v", err)
	}
	if version != "1.0" {
		t.Errorf("version = %v, want 1.0", version)
	}
}

func TestMountMergesWithDeferredRootKey(t *testing.T) {
	tmp := t.TempDir()
	apiDir := filepath.Join(tmp, "api")
	sharedPath := writeUnitFixture(t, filepath.Join(apiDir, "shared"), "shared.star")
	extraDir := filepath.Join(tmp, "extra")
	extraPath := writeUnitFixture(t, extraDir, "tools.star")

	loader := newFakeLoader()
	loader.add(sharedPath, map[string]any{"greet": echoFn("hi")})
	loader.add(extraPath, map[string]any{"run": echoFn("ran")})
	sc := &fakeScanner{dirs: map[string]*Dir{
		apiDir: {
			Path: apiDir,
			Name: "api",
			Subdirs: []*Dir{
				// Matches its directory, so in lazy mode this whole
				// subtree stays deferred until first access.
				{Path: filepath.Join(apiDir, "shared"), Name: "shared", Units: []UnitFile{starFile(sharedPath)}},
			},
		},
		extraDir: {Path: extraDir, Name: "extra", Units: []UnitFile{starFile(extraPath)}},
	}}

	dumps := make([]string, 0, 2)
	for _, lazy := range []bool{true, false} {
		e := New(sc, loader)
		if err := e.AddAPI("shared", extraDir); err != nil {
			t.Fatalf("AddAPI failed: %v", err)
		}
		ns, err := e.Load(context.Background(), Options{Lazy: lazy, Dir: apiDir})
		if err != nil {
			t.Fatalf("Load(lazy=%v) failed: %v", lazy, err)
		}

		got, err := ns.Call(context.Background(), []string{"shared", "greet"})
		if err != nil {
			t.Fatalf("shared.greet(lazy=%v) failed: %v", lazy, err)
		}
		if got != "hi" {
			t.Errorf("shared.greet(lazy=%v) = %v, want hi", lazy, got)
		}
		got, err = ns.Call(context.Background(), []string{"shared", "tools", "run"})
		if err != nil {
			t.Fatalf("shared.tools.run(lazy=%v) failed: %v", lazy, err)
		}
		if got != "ran" {
			t.Errorf("shared.tools.run(lazy=%v) = %v, want ran", lazy, got)
		}

		dump, err := ns.Dump(context.Background())
		if err != nil {
			t.Fatalf("Dump(lazy=%v) failed: %v", lazy, err)
		}
		dumps = append(dumps, dump)
	}
	if dumps[0] != dumps[1] {
		t.Errorf("lazy and eager merged mounts differ:\nlazy:\n%s\neager:\n%s", dumps[0], dumps[1])
	}
}

func TestMountOverlapStillCollides(t *testing.T) {
	tmp := t.TempDir()
	apiDir := filepath.Join(tmp, "api")
	sharedPath := writeUnitFixture(t, filepath.Join(apiDir, "shared"), "shared.star")
	extraDir := filepath.Join(tmp, "extra")
	extraPath := writeUnitFixture(t, extraDir, "shared.star")

	loader := newFakeLoader()
	loader.add(sharedPath, map[string]any{"greet": echoFn("root")})
	loader.add(extraPath, map[string]any{"greet": echoFn("mount")})
	sc := &fakeScanner{dirs: map[string]*Dir{
		apiDir: {
			Path: apiDir,
			Name: "api",
			Subdirs: []*Dir{
				{Path: filepath.Join(apiDir, "shared"), Name: "shared", Units: []UnitFile{starFile(sharedPath)}},
			},
		},
		extraDir: {Path: extraDir, Name: "extra", Units: []UnitFile{starFile(extraPath)}},
	}}

	// Both sides flatten a greet export onto the shared key, so the
	// merge must fail identically in both modes.
	for _, lazy := range []bool{true, false} {
		e := New(sc, loader)
		if err := e.AddAPI("shared", extraDir); err != nil {
			t.Fatalf("AddAPI failed: %v", err)
		}
		ns, err := e.Load(context.Background(), Options{Lazy: lazy, Dir: apiDir})
		if lazy {
			if err != nil {
				t.Fatalf("lazy Load must defer the merge: %v", err)
			}
			_, err = ns.Lookup(context.Background(), "shared", "greet")
		}
		if !IsExportCollision(err) {
			t.Errorf("lazy=%v: expected export collision, got %v", lazy, err)
		}
	}
}

func TestInstallMountMergesObjects(t *testing.T) {
	root := NewObject()
	first := NewObject()
	_ = first.put("a", NewLeaf(1))
	second := NewObject()
	_ = second.put("b", NewLeaf(2))

	if err := installMount(root, "shared", first); err != nil {
		t.Fatalf("first install failed: %v", err)
	}
	if err := installMount(root, "shared", second); err != nil {
		t.Fatalf("merging install failed: %v", err)
	}

	shared, _ := root.child("shared")
	for _, key := range []string{"a", "b"} {
		if _, ok := shared.child(key); !ok {
			t.Errorf("expected merged key %s", key)
		}
	}

	leafMount := NewLeaf(3)
	if err := installMount(root, "shared", leafMount); !IsExportCollision(err) {
		t.Errorf("leaf over object: expected export collision, got %v", err)
	}
}

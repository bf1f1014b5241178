package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestDeferredSingleFlight(t *testing.T) {
	var loads atomic.Int32
	node := NewDeferred(func(_ context.Context) (*Node, error) {
		loads.Add(1)
		return NewLeaf("done"), nil
	})

	const workers = 32
	results := make([]*Node, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			resolved, err := node.resolve(context.Background())
			if err != nil {
				t.Errorf("resolve failed: %v", err)
				return
			}
			results[i] = resolved
		}(i)
	}
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Errorf("loads = %d, want exactly 1", got)
	}
	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent resolvers observed different nodes")
		}
	}
}

func TestDeferredFailurePoisons(t *testing.T) {
	var loads atomic.Int32
	loadErr := errors.New("unit exploded")
	node := NewDeferred(func(_ context.Context) (*Node, error) {
		loads.Add(1)
		return nil, loadErr
	})

	if _, err := node.resolve(context.Background()); !errors.Is(err, loadErr) {
		t.Fatalf("first resolve: got %v, want %v", err, loadErr)
	}
	if _, err := node.resolve(context.Background()); !errors.Is(err, loadErr) {
		t.Fatalf("second resolve: got %v, want the cached failure", err)
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("loads = %d, a poisoned cell must never retry", got)
	}
	if node.State() != StateFailed {
		t.Errorf("state = %s, want %s", node.State(), StateFailed)
	}
}

func TestNodeStates(t *testing.T) {
	if s := NewLeaf(1).State(); s != StateResolved {
		t.Errorf("leaf state = %s, want %s", s, StateResolved)
	}
	if s := NewObject().State(); s != StateResolved {
		t.Errorf("object state = %s, want %s", s, StateResolved)
	}

	node := NewDeferred(func(_ context.Context) (*Node, error) {
		return NewLeaf(1), nil
	})
	if s := node.State(); s != StateDeferred {
		t.Errorf("untouched state = %s, want %s", s, StateDeferred)
	}
	if _, err := node.resolve(context.Background()); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if s := node.State(); s != StateResolved {
		t.Errorf("resolved state = %s, want %s", s, StateResolved)
	}
}

func TestPutRejectsDuplicates(t *testing.T) {
	node := NewObject()
	if err := node.put("x", NewLeaf(1)); err != nil {
		t.Fatalf("first put failed: %v", err)
	}
	err := node.put("x", NewLeaf(2))
	if !IsExportCollision(err) {
		t.Errorf("expected export collision, got: %v", err)
	}
}

func TestPutShadowReports(t *testing.T) {
	node := NewObject()
	if shadowed := node.putShadow("x", NewLeaf(1)); shadowed {
		t.Error("fresh key reported as shadowed")
	}
	if shadowed := node.putShadow("x", NewLeaf(2)); !shadowed {
		t.Error("duplicate key not reported as shadowed")
	}
	child, _ := node.child("x")
	if child.value != 1 {
		t.Error("shadowing replaced the existing child")
	}
}

func TestMaterializeResolvesWholeSubtree(t *testing.T) {
	inner := NewDeferred(func(_ context.Context) (*Node, error) {
		return NewLeaf("deep"), nil
	})
	mid := NewObject()
	_ = mid.put("inner", inner)
	root := NewObject()
	_ = root.put("mid", NewDeferred(func(_ context.Context) (*Node, error) {
		return mid, nil
	}))

	materialized, err := root.materialize(context.Background())
	if err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	midNode, _ := materialized.child("mid")
	if midNode.State() != StateResolved {
		t.Error("intermediate deferred node not materialized")
	}
	innerNode, _ := midNode.child("inner")
	if innerNode.typ != nodeLeaf || innerNode.value != "deep" {
		t.Errorf("inner node not materialized: %+v", innerNode)
	}
}

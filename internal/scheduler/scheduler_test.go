package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/contriboss/rv/internal/lockfile"
)

type fakeInstaller struct {
	mu        sync.Mutex
	installed []string
	fail      map[string]bool
	ext       map[string]bool
}

func (f *fakeInstaller) Install(ctx context.Context, spec lockfile.LockSpec) error {
	f.mu.Lock()
	f.installed = append(f.installed, spec.Name)
	f.mu.Unlock()
	if f.fail[spec.Name] {
		return fmt.Errorf("boom: %s", spec.Name)
	}
	return nil
}

func (f *fakeInstaller) HasExtension(spec lockfile.LockSpec) bool {
	return f.ext[spec.Name]
}

func specs(pairs ...[2]string) []lockfile.LockSpec {
	var out []lockfile.LockSpec
	for _, p := range pairs {
		out = append(out, lockfile.LockSpec{Name: p[0], Version: "1.0.0"})
	}
	return out
}

func TestRunRespectsDependencyOrder(t *testing.T) {
	a := lockfile.LockSpec{Name: "a", Version: "1.0.0"}
	b := lockfile.LockSpec{Name: "b", Version: "1.0.0", Deps: []lockfile.DepRef{{Name: "a"}}}
	c := lockfile.LockSpec{Name: "c", Version: "1.0.0", Deps: []lockfile.DepRef{{Name: "b"}}}

	var mu sync.Mutex
	order := map[string]int{}
	seq := 0
	inst := &fakeInstaller{fail: map[string]bool{}, ext: map[string]bool{}}
	wrap := &orderTrackingInstaller{inner: inst, order: order, seq: &seq, mu: &mu}

	sched := New(wrap, nil)
	sched.InstallConcurrency = 4
	if err := sched.Run(context.Background(), []lockfile.LockSpec{c, b, a}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if order["a"] >= order["b"] || order["b"] >= order["c"] {
		t.Errorf("expected a before b before c, got %v", order)
	}
}

// TestRunWithConcurrencyOneDoesNotDeadlock exercises a dependency chain
// (a -> b -> c) with InstallConcurrency forced to 1: the single worker
// must release its semaphore slot before the recursive dispatch() call
// that picks up the newly-unblocked dependent, or this hangs forever.
func TestRunWithConcurrencyOneDoesNotDeadlock(t *testing.T) {
	a := lockfile.LockSpec{Name: "a", Version: "1.0.0"}
	b := lockfile.LockSpec{Name: "b", Version: "1.0.0", Deps: []lockfile.DepRef{{Name: "a"}}}
	c := lockfile.LockSpec{Name: "c", Version: "1.0.0", Deps: []lockfile.DepRef{{Name: "b"}}}

	inst := &fakeInstaller{fail: map[string]bool{}, ext: map[string]bool{}}
	sched := New(inst, nil)
	sched.InstallConcurrency = 1

	done := make(chan error, 1)
	go func() {
		done <- sched.Run(context.Background(), []lockfile.LockSpec{c, b, a})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run deadlocked with InstallConcurrency=1")
	}

	if len(inst.installed) != 3 {
		t.Errorf("expected 3 installs, got %v", inst.installed)
	}
}

type orderTrackingInstaller struct {
	inner *fakeInstaller
	order map[string]int
	seq   *int
	mu    *sync.Mutex
}

func (o *orderTrackingInstaller) Install(ctx context.Context, spec lockfile.LockSpec) error {
	err := o.inner.Install(ctx, spec)
	o.mu.Lock()
	*o.seq++
	o.order[spec.Name] = *o.seq
	o.mu.Unlock()
	return err
}

func (o *orderTrackingInstaller) HasExtension(spec lockfile.LockSpec) bool {
	return o.inner.HasExtension(spec)
}

func TestRunDetectsCycle(t *testing.T) {
	a := lockfile.LockSpec{Name: "a", Version: "1.0.0", Deps: []lockfile.DepRef{{Name: "b"}}}
	b := lockfile.LockSpec{Name: "b", Version: "1.0.0", Deps: []lockfile.DepRef{{Name: "a"}}}

	inst := &fakeInstaller{fail: map[string]bool{}, ext: map[string]bool{}}
	sched := New(inst, nil)

	err := sched.Run(context.Background(), []lockfile.LockSpec{a, b})
	if err == nil {
		t.Fatal("expected a DependencyCycle error")
	}
	if _, ok := err.(*DependencyCycle); !ok {
		t.Errorf("expected *DependencyCycle, got %T: %v", err, err)
	}
}

func TestRunAggregatesFailuresAndStopsNewWork(t *testing.T) {
	a := lockfile.LockSpec{Name: "a", Version: "1.0.0"}
	b := lockfile.LockSpec{Name: "b", Version: "1.0.0", Deps: []lockfile.DepRef{{Name: "a"}}}
	c := lockfile.LockSpec{Name: "c", Version: "1.0.0", Deps: []lockfile.DepRef{{Name: "b"}}}

	inst := &fakeInstaller{fail: map[string]bool{"a": true}, ext: map[string]bool{}}
	sched := New(inst, nil)

	err := sched.Run(context.Background(), []lockfile.LockSpec{a, b, c})
	if err == nil {
		t.Fatal("expected an AggregateFailure")
	}
	agg, ok := err.(*AggregateFailure)
	if !ok {
		t.Fatalf("expected *AggregateFailure, got %T", err)
	}
	if len(agg.Errors) != 1 {
		t.Errorf("expected exactly 1 error (b,c never ready), got %d: %v", len(agg.Errors), agg.Errors)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	for _, name := range inst.installed {
		if name == "b" || name == "c" {
			t.Errorf("dependent %q must not be installed once its dependency failed", name)
		}
	}
}

func TestRunEmitsEventsInOrder(t *testing.T) {
	a := lockfile.LockSpec{Name: "a", Version: "1.0.0"}
	inst := &fakeInstaller{fail: map[string]bool{}, ext: map[string]bool{}}

	events := make(chan Event, 16)
	sched := New(inst, events)
	if err := sched.Run(context.Background(), []lockfile.LockSpec{a}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(events)

	var kinds []EventKind
	for e := range events {
		kinds = append(kinds, e.Kind)
	}
	want := []EventKind{EventDownloadStarted, EventDownloadDone, EventInstallStarted, EventInstallDone}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestReadyQueuePrioritizesExtensions(t *testing.T) {
	inst := &fakeInstaller{fail: map[string]bool{}, ext: map[string]bool{"nokogiri": true}}
	plain := lockfile.LockSpec{Name: "rake", Version: "1.0.0"}
	extGem := lockfile.LockSpec{Name: "nokogiri", Version: "1.0.0"}

	nodes, err := buildGraph([]lockfile.LockSpec{plain, extGem}, inst.HasExtension)
	if err != nil {
		t.Fatal(err)
	}
	if !nodes["nokogiri"].hasExt {
		t.Error("expected nokogiri node to be flagged hasExt")
	}
	if nodes["rake"].hasExt {
		t.Error("expected rake node not to be flagged hasExt")
	}
	q := readyQueue{items: []*node{nodes["rake"], nodes["nokogiri"]}}
	if !q.Less(1, 0) || q.Less(0, 1) {
		t.Error("expected the ready queue to order nokogiri (extension) before rake")
	}
}

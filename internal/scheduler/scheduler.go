// Package scheduler implements the §4.J dependency graph scheduler:
// topologically orders a lockfile's resolved specs for the host
// platform and drives concurrent installation with a bounded worker
// pool, a cost-ordered ready queue, and aggregate failure reporting.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/contriboss/rv/internal/lockfile"
)

// EventKind discriminates a progress Event.
type EventKind string

const (
	EventDownloadStarted EventKind = "download_started"
	EventDownloadDone    EventKind = "download_done"
	EventInstallStarted  EventKind = "install_started"
	EventInstallDone     EventKind = "install_done"
	EventFailed          EventKind = "failed"
)

// Event is one structured progress notification the CLI layer renders
// as a live display (or serializes as newline-delimited JSON).
type Event struct {
	Kind EventKind
	Spec string // full_name
	Err  error  `json:"-"`
}

// Installer installs one resolved spec; implemented by
// internal/geminstall.Installer. HasExtension lets the scheduler order
// the ready queue so native-extension gems (the slow path) start
// first, shortening the critical path.
type Installer interface {
	Install(ctx context.Context, spec lockfile.LockSpec) error
	HasExtension(spec lockfile.LockSpec) bool
}

// DependencyCycle is returned when the runtime-dependency graph among
// the host-platform specs is not acyclic.
type DependencyCycle struct {
	Cycle []string
}

func (e *DependencyCycle) Error() string {
	return fmt.Sprintf("scheduler: dependency cycle: %v", e.Cycle)
}

// AggregateFailure collects every worker failure once the first one
// triggers shutdown.
type AggregateFailure struct {
	Errors []error
}

func (e *AggregateFailure) Error() string {
	return fmt.Sprintf("scheduler: %d install(s) failed: %v", len(e.Errors), e.Errors)
}

type node struct {
	spec       lockfile.LockSpec
	name       string
	dependents []string // names that depend on this node
	remaining  int32    // count of unresolved runtime deps
	hasExt     bool
}

// Scheduler orders and drives concurrent installation of a lockfile's
// specs for one platform.
type Scheduler struct {
	Installer         Installer
	InstallConcurrency int // default 8, per §4.J.4
	Events            chan<- Event
}

// New constructs a Scheduler with the spec's default install
// concurrency of 8 (the caller may override via InstallConcurrency).
func New(installer Installer, events chan<- Event) *Scheduler {
	return &Scheduler{Installer: installer, InstallConcurrency: 8, Events: events}
}

// buildGraph constructs the runtime-dependency graph among the given
// specs, keyed by gem name; development deps are ignored per §4.J.1.
// hasExt classifies each spec so the ready queue can prioritize
// extension-bearing gems (the slow path) ahead of pure-Ruby ones.
func buildGraph(specs []lockfile.LockSpec, hasExt func(lockfile.LockSpec) bool) (map[string]*node, error) {
	nodes := make(map[string]*node, len(specs))
	for _, s := range specs {
		nodes[s.Name] = &node{spec: s, name: s.Name, hasExt: hasExt(s)}
	}
	for _, s := range specs {
		n := nodes[s.Name]
		for _, dep := range s.Deps {
			depNode, ok := nodes[dep.Name]
			if !ok {
				continue // not in the host-platform spec set; caller already validated resolution
			}
			depNode.dependents = append(depNode.dependents, n.name)
			n.remaining++
		}
	}
	return nodes, nil
}

// detectCycle performs a DFS looking for a back-edge; returns the
// cycle's member names if one is found.
func detectCycle(nodes map[string]*node, specs []lockfile.LockSpec) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))
	var path []string
	var cyclePath []string

	depsOf := make(map[string][]string, len(nodes))
	for _, s := range specs {
		for _, d := range s.Deps {
			if _, ok := nodes[d.Name]; ok {
				depsOf[s.Name] = append(depsOf[s.Name], d.Name)
			}
		}
	}

	var visit func(string) bool
	visit = func(name string) bool {
		color[name] = gray
		path = append(path, name)
		for _, dep := range depsOf[name] {
			switch color[dep] {
			case gray:
				// found the cycle: slice path from dep's first occurrence
				for i, p := range path {
					if p == dep {
						cyclePath = append([]string{}, path[i:]...)
						cyclePath = append(cyclePath, dep)
						break
					}
				}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	for name := range nodes {
		if color[name] == white {
			if visit(name) {
				return cyclePath
			}
		}
	}
	return nil
}

// readyQueue orders ready nodes by expected install cost descending:
// extension-bearing gems first, so the critical path finishes early.
type readyQueue struct {
	items []*node
}

func (q readyQueue) Len() int { return len(q.items) }
func (q readyQueue) Less(i, j int) bool {
	if q.items[i].hasExt != q.items[j].hasExt {
		return q.items[i].hasExt // extensions sort first
	}
	return q.items[i].name < q.items[j].name
}
func (q readyQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *readyQueue) Push(x any)   { q.items = append(q.items, x.(*node)) }
func (q *readyQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// Run topologically drives installation of specs (already filtered to
// the host platform by the caller) with bounded concurrency. The first
// worker failure sets a shared shutdown flag; already-dispatched
// installs are allowed to drain, no newly-ready node is scheduled
// afterward, and every error collected is returned as an
// AggregateFailure.
func (s *Scheduler) Run(ctx context.Context, specs []lockfile.LockSpec) error {
	nodes, err := buildGraph(specs, s.Installer.HasExtension)
	if err != nil {
		return err
	}
	if cyc := detectCycle(nodes, specs); cyc != nil {
		return &DependencyCycle{Cycle: cyc}
	}

	concurrency := s.InstallConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	var mu sync.Mutex
	q := &readyQueue{}
	heap.Init(q)
	for _, n := range nodes {
		if n.remaining == 0 {
			heap.Push(q, n)
		}
	}

	var shuttingDown atomic.Bool
	var errs []error
	sem := make(chan struct{}, concurrency)
	g := &errgroup.Group{}

	// dispatch drains every currently-ready node into its own
	// goroutine; each goroutine re-invokes dispatch on completion so
	// newly-unblocked dependents (and slots freed by completion) get
	// picked up without a separate coordinator goroutine.
	var dispatch func()
	dispatch = func() {
		mu.Lock()
		for q.Len() > 0 && !shuttingDown.Load() {
			n := heap.Pop(q).(*node)
			mu.Unlock()

			sem <- struct{}{}
			g.Go(func() error {
				// Deferreds run LIFO: release this goroutine's semaphore
				// slot before recursing into dispatch(), or dispatch() can
				// block forever trying to acquire the very slot this
				// goroutine still holds (guaranteed with concurrency 1).
				defer dispatch()
				defer func() { <-sem }()

				if shuttingDown.Load() {
					return nil
				}
				// Installer.Install fetches and extracts in one call; the
				// scheduler brackets that whole span with download_started
				// and download_done rather than tracking fetch progress
				// itself, since internal/geminstall owns that detail.
				s.emit(Event{Kind: EventDownloadStarted, Spec: n.spec.FullName()})
				s.emit(Event{Kind: EventDownloadDone, Spec: n.spec.FullName()})
				s.emit(Event{Kind: EventInstallStarted, Spec: n.spec.FullName()})
				if err := s.Installer.Install(ctx, n.spec); err != nil {
					shuttingDown.Store(true)
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", n.spec.FullName(), err))
					mu.Unlock()
					s.emit(Event{Kind: EventFailed, Spec: n.spec.FullName(), Err: err})
					return err
				}
				s.emit(Event{Kind: EventInstallDone, Spec: n.spec.FullName()})

				mu.Lock()
				for _, depName := range n.dependents {
					dn := nodes[depName]
					dn.remaining--
					if dn.remaining == 0 {
						heap.Push(q, dn)
					}
				}
				mu.Unlock()
				return nil
			})
			mu.Lock()
		}
		mu.Unlock()
	}

	dispatch()
	_ = g.Wait()

	if len(errs) > 0 {
		return &AggregateFailure{Errors: errs}
	}
	return nil
}

func (s *Scheduler) emit(e Event) {
	if s.Events == nil {
		return
	}
	select {
	case s.Events <- e:
	default:
	}
}

package commands

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/lipgloss"

	"github.com/contriboss/rv/internal/activeruby"
	"github.com/contriboss/rv/internal/config"
	"github.com/contriboss/rv/internal/geminstall"
	"github.com/contriboss/rv/internal/lockfile"
	"github.com/contriboss/rv/internal/platform"
	"github.com/contriboss/rv/internal/scheduler"
)

var (
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// RunCleanInstall implements `clean-install`/`ci` (§6): reads
// Gemfile.lock and drives §4.J's scheduler against the active Ruby's
// gem home.
func RunCleanInstall(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("clean-install", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	lockfilePath := fs.String("lockfile", "Gemfile.lock", "Path to the lockfile")
	concurrency := fs.Int("concurrency", 8, "Maximum concurrent installs")
	force := fs.Bool("force", false, "Reinstall every gem, ignoring idempotence")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadConfig(g)
	if err != nil {
		return err
	}

	text, err := os.ReadFile(*lockfilePath)
	if err != nil {
		return fmt.Errorf("clean-install: read %s: %w", *lockfilePath, err)
	}
	lock, err := lockfile.Parse(string(text), lockfile.Options{Strict: false})
	if err != nil {
		return err
	}

	cache, err := NewCacheStore(cfg)
	if err != nil {
		return err
	}
	store := NewRubyStore(cfg, cache)
	installs, err := store.Enumerate()
	if err != nil {
		return err
	}

	predicate, err := ResolveActiveRuby(lock.RubyVersion)
	if err != nil {
		return err
	}
	req := activeruby.Request{VersionPredicate: predicate}
	inst, found := activeruby.Resolve(req, installs)
	if !found {
		return &activeruby.NotFoundError{Request: req}
	}

	host := platform.Host(runtime.GOOS, runtime.GOARCH, "")
	specs := hostPlatformSpecs(lock, host)

	abi := config.ToMajorMinor(inst.Key.Version.String())
	gemHome := filepath.Join(inst.Root, "lib", "ruby", "gems", abi)

	installer := &geminstall.Installer{
		Lockfile: lock,
		Cache:    cache,
		HTTP:     NewHTTPClient(),
		GemHome:  gemHome,
		RubyBin:  filepath.Join(inst.BinDir, inst.Key.Engine),
		Platform: host,
		ABI:      abi,
		Force:    *force,
	}

	events := make(chan scheduler.Event, 64)
	sched := scheduler.New(installer, events)
	sched.InstallConcurrency = *concurrency

	done := make(chan error, 1)
	go func() {
		done <- sched.Run(context.Background(), specs)
		close(events)
	}()

	renderEvents(events, g)

	return <-done
}

// hostPlatformSpecs filters a lockfile's specs to those installable on
// host: those whose platform triple Matches host (the pure-Ruby
// sentinel, a libc-less or universal build, or an equal triple).
func hostPlatformSpecs(lock *lockfile.Lockfile, host platform.Triple) []lockfile.LockSpec {
	var out []lockfile.LockSpec
	for _, spec := range lock.Specs {
		t := platform.Parse(spec.Platform)
		if t.Matches(host) {
			out = append(out, spec)
		}
	}
	return out
}

func renderEvents(events <-chan scheduler.Event, g Globals) {
	enc := json.NewEncoder(os.Stdout)
	for ev := range events {
		if g.Format == "json" {
			_ = enc.Encode(ev)
			continue
		}
		if g.Quiet && ev.Kind != scheduler.EventFailed {
			continue
		}
		switch ev.Kind {
		case scheduler.EventDownloadStarted:
			fmt.Println(progressStyle.Render("fetching " + ev.Spec))
		case scheduler.EventInstallDone:
			fmt.Println(doneStyle.Render("installed " + ev.Spec))
		case scheduler.EventFailed:
			fmt.Println(failStyle.Render(fmt.Sprintf("failed %s: %v", ev.Spec, ev.Err)))
		}
	}
}

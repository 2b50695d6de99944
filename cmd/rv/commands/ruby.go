package commands

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/contriboss/rv/internal/activeruby"
)

type rubyListEntry struct {
	Engine   string `json:"engine"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Root     string `json:"root"`
	Source   string `json:"source"`
}

// RunRubyList implements `ruby list` (§6).
func RunRubyList(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("ruby list", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	installedOnly := fs.Bool("installed-only", true, "List only installed Rubies (the only kind rv tracks)")
	_ = installedOnly
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadConfig(g)
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
		return fmt.Errorf("ruby list: %w", err)
	}
	sort.Slice(installs, func(i, j int) bool {
		return installs[i].Key.Version.Compare(installs[j].Key.Version) > 0
	})

	entries := make([]rubyListEntry, 0, len(installs))
	for _, inst := range installs {
		entries = append(entries, rubyListEntry{
			Engine:   inst.Key.Engine,
			Version:  inst.Key.Version.String(),
			Platform: inst.Key.Platform.String(),
			Root:     inst.Root,
			Source:   inst.Source.String(),
		})
	}

	if g.Format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		fmt.Printf("%-8s %-12s %-14s %s (%s)\n", e.Engine, e.Version, e.Platform, e.Root, e.Source)
	}
	return nil
}

// RunRubyInstall implements `ruby install [version]` (§6).
func RunRubyInstall(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("ruby install", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	engine := fs.String("engine", "cruby", "Ruby engine to install")
	force := fs.Bool("force", false, "Reinstall even if already present")
	if err := fs.Parse(args); err != nil {
		return err
	}

	version := "latest"
	if fs.NArg() > 0 {
		version = fs.Arg(0)
	}

	cfg, err := LoadConfig(g)
	if err != nil {
		return err
	}
	cache, err := NewCacheStore(cfg)
	if err != nil {
		return err
	}
	store := NewRubyStore(cfg, cache)

	inst, err := store.Install(context.Background(), *engine, version, *force)
	if err != nil {
		return fmt.Errorf("ruby install: %w", err)
	}
	if !g.Quiet {
		fmt.Printf("installed %s %s at %s\n", inst.Key.Engine, inst.Key.Version.String(), inst.Root)
	}
	return nil
}

// RunRubyUninstall implements `ruby uninstall <version>` (§6).
func RunRubyUninstall(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("ruby uninstall", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	engine := fs.String("engine", "cruby", "Ruby engine")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: rv ruby uninstall <version>")
	}
	version := fs.Arg(0)

	cfg, err := LoadConfig(g)
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
	req := activeruby.Request{Engine: *engine, VersionPredicate: version, AllowPrerelease: true}
	inst, found := activeruby.Resolve(req, installs)
	if !found {
		return &activeruby.NotFoundError{Request: req}
	}
	if err := store.Uninstall(inst); err != nil {
		return fmt.Errorf("ruby uninstall: %w", err)
	}
	if !g.Quiet {
		fmt.Printf("uninstalled %s %s\n", inst.Key.Engine, inst.Key.Version.String())
	}
	return nil
}

// RunRubyPin implements `ruby pin <version>` (§6): writes .ruby-version
// in the nearest project root, idempotently.
func RunRubyPin(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("ruby pin", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: rv ruby pin <version>")
	}
	version := fs.Arg(0)

	root, err := FindProjectRoot()
	if err != nil {
		return err
	}
	if root == "" {
		root, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	path := filepath.Join(root, ".ruby-version")
	if existing, err := os.ReadFile(path); err == nil && string(existing) == version+"\n" {
		return nil // already pinned to this version
	}
	return os.WriteFile(path, []byte(version+"\n"), 0o644)
}

// RunRubyFind implements `ruby find [version]` (§6): prints the
// absolute path to the resolved interpreter.
func RunRubyFind(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("ruby find", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	engine := fs.String("engine", "cruby", "Ruby engine")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cliOverride := ""
	if fs.NArg() > 0 {
		cliOverride = fs.Arg(0)
	}

	predicate, err := ResolveActiveRuby(cliOverride)
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(g)
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
	req := activeruby.Request{Engine: *engine, VersionPredicate: predicate}
	inst, found := activeruby.Resolve(req, installs)
	if !found {
		return &activeruby.NotFoundError{Request: req}
	}
	fmt.Println(filepath.Join(inst.BinDir, inst.Key.Engine))
	return nil
}

// RunRubyRun implements `ruby run <version> -- <argv…>` (§6): installs
// the requested version if absent, then execs the interpreter with the
// remaining arguments, inheriting stdio and propagating its exit code.
func RunRubyRun(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("ruby run", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	engine := fs.String("engine", "cruby", "Ruby engine")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: rv ruby run <version> -- <argv...>")
	}
	version := fs.Arg(0)
	rubyArgs := fs.Args()[1:]
	if len(rubyArgs) > 0 && rubyArgs[0] == "--" {
		rubyArgs = rubyArgs[1:]
	}

	cfg, err := LoadConfig(g)
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
	req := activeruby.Request{Engine: *engine, VersionPredicate: version}
	inst, found := activeruby.Resolve(req, installs)
	if !found {
		inst, err = store.Install(context.Background(), *engine, version, false)
		if err != nil {
			return fmt.Errorf("ruby run: %w", err)
		}
	}

	bin := filepath.Join(inst.BinDir, inst.Key.Engine)
	cmd := exec.Command(bin, rubyArgs...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "GEM_HOME="+filepath.Join(inst.Root, "lib", "ruby", "gems", inst.Key.Version.String()))
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return fmt.Errorf("ruby run: %w", err)
	}
	return nil
}

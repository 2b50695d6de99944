package commands

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/contriboss/rv/internal/activeruby"
	"github.com/contriboss/rv/internal/config"
	"github.com/contriboss/rv/internal/shellhook"
)

// RunShellInit implements `shell init <shell>` (§6): prints the
// prompt-hook snippet a user's rc file sources.
func RunShellInit(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("shell init", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: rv shell init <shell>")
	}
	sh, err := shellhook.ParseShell(fs.Arg(0))
	if err != nil {
		return err
	}
	script, err := shellhook.RenderInit(sh, "rv")
	if err != nil {
		return err
	}
	fmt.Print(script)
	return nil
}

// RunShellEnv implements `shell env <shell>` (§6): prints the
// activation export block for the currently resolved Ruby.
func RunShellEnv(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("shell env", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: rv shell env <shell>")
	}
	sh, err := shellhook.ParseShell(fs.Arg(0))
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

	predicate, err := ResolveActiveRuby("")
	if err != nil {
		return err
	}
	req := activeruby.Request{VersionPredicate: predicate}
	inst, found := activeruby.Resolve(req, installs)
	if !found {
		return &activeruby.NotFoundError{Request: req}
	}

	abi := config.ToMajorMinor(inst.Key.Version.String())
	gemHome := filepath.Join(inst.Root, "lib", "ruby", "gems", abi)

	a := shellhook.Activation{
		RubyRoot:    inst.Root,
		RubyEngine:  inst.Key.Engine,
		RubyVersion: inst.Key.Version.String(),
		GemHome:     gemHome,
		GemPath:     []string{gemHome},
		PrevPath:    os.Getenv("PATH"),
		PrevManPath: os.Getenv("MANPATH"),
		PrevPrefix:  os.Getenv("__RV_ACTIVE_PREFIX"),
	}
	script, err := shellhook.RenderEnv(sh, a)
	if err != nil {
		return err
	}
	fmt.Print(script)
	return nil
}

// RunShellCompletions implements `shell completions <shell>` (§6).
func RunShellCompletions(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("shell completions", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: rv shell completions <shell>")
	}
	sh, err := shellhook.ParseShell(fs.Arg(0))
	if err != nil {
		return err
	}
	script, err := shellhook.RenderCompletions(sh)
	if err != nil {
		return err
	}
	fmt.Print(script)
	return nil
}

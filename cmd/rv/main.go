package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/contriboss/rv/cmd/rv/commands"
	"github.com/contriboss/rv/internal/activeruby"
	"github.com/contriboss/rv/internal/fetch"
	"github.com/contriboss/rv/internal/geminstall"
	"github.com/contriboss/rv/internal/gemspec"
	"github.com/contriboss/rv/internal/lockfile"
	"github.com/contriboss/rv/internal/scheduler"
	"github.com/contriboss/rv/internal/shellhook"
)

var (
	version     = "0.1.0"
	buildCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "--help", "-h", "help":
		printHelp()
	case "--version", "-V", "-v", "version":
		printVersion()
	case "ruby":
		dispatchRuby(args)
	case "clean-install", "ci":
		if err := commands.RunCleanInstall(args); err != nil {
			exitWithError(err)
		}
	case "shell":
		dispatchShell(args)
	case "cache":
		dispatchCache(args)
	default:
		fmt.Fprintf(os.Stderr, "rv: unknown command %q\n", cmd)
		printHelp()
		os.Exit(2)
	}
}

func dispatchRuby(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: rv ruby {list|install|uninstall|pin|find|run} ...")
		os.Exit(2)
	}
	sub, rest := args[0], args[1:]
	var err error
	switch sub {
	case "list":
		err = commands.RunRubyList(rest)
	case "install":
		err = commands.RunRubyInstall(rest)
	case "uninstall":
		err = commands.RunRubyUninstall(rest)
	case "pin":
		err = commands.RunRubyPin(rest)
	case "find":
		err = commands.RunRubyFind(rest)
	case "run":
		err = commands.RunRubyRun(rest)
	default:
		fmt.Fprintf(os.Stderr, "rv: unknown ruby subcommand %q\n", sub)
		os.Exit(2)
	}
	if err != nil {
		exitWithError(err)
	}
}

func dispatchShell(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: rv shell {init|env|completions} <shell>")
		os.Exit(2)
	}
	sub, rest := args[0], args[1:]
	var err error
	switch sub {
	case "init":
		err = commands.RunShellInit(rest)
	case "env":
		err = commands.RunShellEnv(rest)
	case "completions":
		err = commands.RunShellCompletions(rest)
	default:
		fmt.Fprintf(os.Stderr, "rv: unknown shell subcommand %q\n", sub)
		os.Exit(2)
	}
	if err != nil {
		exitWithError(err)
	}
}

func dispatchCache(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: rv cache {dir|prune}")
		os.Exit(2)
	}
	sub, rest := args[0], args[1:]
	var err error
	switch sub {
	case "dir":
		err = commands.RunCacheDir(rest)
	case "prune":
		err = commands.RunCachePrune(rest)
	default:
		fmt.Fprintf(os.Stderr, "rv: unknown cache subcommand %q\n", sub)
		os.Exit(2)
	}
	if err != nil {
		exitWithError(err)
	}
}

func printHelp() {
	fmt.Print(`rv — a Ruby toolchain: interpreter installs, activation, and lockfile-driven gem installs.

Usage: rv [OPTIONS] <COMMAND>

Commands:
    ruby list             List installed Rubies
    ruby install [ver]    Install a Ruby (family, exact, or "latest")
    ruby uninstall <ver>  Remove an installed Ruby
    ruby pin <ver>        Write .ruby-version in the nearest project root
    ruby find [ver]       Print the resolved interpreter's path
    ruby run <ver> -- ... Install if needed, then exec the interpreter
    clean-install, ci     Install every gem in Gemfile.lock
    shell init <shell>    Print the prompt-hook snippet for <shell>
    shell env <shell>     Print the activation export block for <shell>
    shell completions <shell>
                          Print command-line completions for <shell>
    cache dir             Print the resolved cache directory
    cache prune           Remove stale cache entries

Global flags: --no-cache --cache-dir <path> --ruby-dir <path> -q/--quiet -v/--verbose --format text|json
`)
}

func printVersion() {
	hash := buildCommit
	if hash == "" || hash == "unknown" {
		hash = "unknown"
	} else if len(hash) > 7 {
		hash = hash[:7]
	}
	fmt.Printf("rv v%s (%s)\n", version, hash)
}

// exitWithError prints err and exits with the §6 exit code matching
// its structured kind.
func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "rv: %v\n", err)
	os.Exit(exitCodeFor(err))
}

func exitCodeFor(err error) int {
	var lockErr *lockfile.ParseError
	if errors.As(err, &lockErr) {
		if lockErr.Kind == lockfile.ErrUnresolvedDependency {
			return 3
		}
		return 1
	}

	var notFound *activeruby.NotFoundError
	if errors.As(err, &notFound) {
		return 3
	}
	var cycle *scheduler.DependencyCycle
	if errors.As(err, &cycle) {
		return 3
	}

	var checksum *geminstall.ChecksumMismatch
	if errors.As(err, &checksum) {
		return 5
	}

	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		return 4
	}

	var unknownShell *shellhook.UnknownShellError
	if errors.As(err, &unknownShell) {
		return 2
	}

	var gemspecErr *gemspec.ParseError
	if errors.As(err, &gemspecErr) {
		return 1
	}
	var compileErr *geminstall.CompileFailed
	if errors.As(err, &compileErr) {
		return 1
	}
	var aggErr *scheduler.AggregateFailure
	if errors.As(err, &aggErr) {
		return 1
	}

	return 1
}

// Package shellhook implements the §4.L shell integration: per-shell
// activation ("env"), the prompt hook that re-runs it on every prompt
// ("init"), and static completion scripts, for bash, zsh, fish, nushell,
// and PowerShell.
package shellhook

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Shell identifies one of the supported targets.
type Shell string

const (
	Bash       Shell = "bash"
	Zsh        Shell = "zsh"
	Fish       Shell = "fish"
	Nushell    Shell = "nu"
	PowerShell Shell = "powershell"
)

// UnknownShellError is returned for any shell name outside the
// supported set.
type UnknownShellError struct {
	Shell string
}

func (e *UnknownShellError) Error() string {
	return fmt.Sprintf("shellhook: unknown shell %q (supported: bash, zsh, fish, nu, powershell)", e.Shell)
}

// ParseShell normalizes a shell name (as typically supplied via
// $SHELL's basename or a CLI argument) into a Shell constant.
func ParseShell(name string) (Shell, error) {
	switch strings.ToLower(filepath.Base(name)) {
	case "bash":
		return Bash, nil
	case "zsh":
		return Zsh, nil
	case "fish":
		return Fish, nil
	case "nu", "nushell":
		return Nushell, nil
	case "powershell", "pwsh":
		return PowerShell, nil
	default:
		return "", &UnknownShellError{Shell: name}
	}
}

// Activation is the resolved set of environment assignments "shell env"
// renders: one Ruby's root, gem home, and gem path, plus the previous
// PATH/MANPATH state so the renderer can strip stale rv-managed
// prefixes before prepending new ones.
type Activation struct {
	RubyRoot    string // e.g. /home/u/.local/share/rv/rubies/cruby-3.4.7
	RubyEngine  string
	RubyVersion string
	GemHome     string
	GemPath     []string
	PrevPath    string // current $PATH, to be de-duplicated against __RV_ACTIVE_PREFIX
	PrevManPath string
	PrevPrefix  string // current __RV_ACTIVE_PREFIX, empty if never activated
}

// sentinel is the env var name that records the previously activated
// prefix set, letting reactivation be a full replacement rather than an
// incremental addition that leaks stale entries across `cd`.
const sentinel = "__RV_ACTIVE_PREFIX"

// stripPrefixed removes every path component that starts with any of
// prefixes from the colon-separated value v, preserving the order of
// what remains.
func stripPrefixed(v string, prefixes []string) []string {
	var out []string
	for _, part := range strings.Split(v, string(filepath.ListSeparator)) {
		if part == "" {
			continue
		}
		stale := false
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(part, p) {
				stale = true
				break
			}
		}
		if !stale {
			out = append(out, part)
		}
	}
	return out
}

// newEnv computes this activation's PATH, MANPATH, and the new
// __RV_ACTIVE_PREFIX sentinel, with any previously-activated rv
// prefixes stripped first.
func (a Activation) newEnv() (path, manpath, prefix string) {
	var stalePrefixes []string
	if a.PrevPrefix != "" {
		stalePrefixes = strings.Split(a.PrevPrefix, "\x1f")
	}

	rubyBin := filepath.Join(a.RubyRoot, "bin")
	gemBin := filepath.Join(a.GemHome, "bin")
	manDir := filepath.Join(a.RubyRoot, "share", "man")

	pathParts := append([]string{rubyBin, gemBin}, stripPrefixed(a.PrevPath, stalePrefixes)...)
	manParts := append([]string{manDir}, stripPrefixed(a.PrevManPath, stalePrefixes)...)

	prefix = strings.Join([]string{rubyBin, gemBin, manDir}, "\x1f")
	return strings.Join(pathParts, string(filepath.ListSeparator)), strings.Join(manParts, string(filepath.ListSeparator)), prefix
}

// export is one shell-rendered NAME=VALUE assignment to emit.
type export struct {
	name  string
	value string
}

func (a Activation) exports() []export {
	path, manpath, prefix := a.newEnv()
	gemPath := strings.Join(a.GemPath, string(filepath.ListSeparator))
	return []export{
		{"RUBY_ROOT", a.RubyRoot},
		{"RUBY_ENGINE", a.RubyEngine},
		{"RUBY_VERSION", a.RubyVersion},
		{"GEM_HOME", a.GemHome},
		{"GEM_PATH", gemPath},
		{"PATH", path},
		{"MANPATH", manpath},
		{sentinel, prefix},
	}
}

// RenderEnv prints the shell-specific export statements for Activation,
// equivalent to what `rv shell env <shell>` writes to stdout for the
// calling shell to eval.
func RenderEnv(sh Shell, a Activation) (string, error) {
	exps := a.exports()
	var b strings.Builder
	switch sh {
	case Bash, Zsh:
		for _, e := range exps {
			fmt.Fprintf(&b, "export %s=%s\n", e.name, shQuote(e.value))
		}
	case Fish:
		for _, e := range exps {
			fmt.Fprintf(&b, "set -gx %s %s\n", e.name, shQuote(e.value))
		}
	case Nushell:
		for _, e := range exps {
			fmt.Fprintf(&b, "$env.%s = %s\n", e.name, nuQuote(e.value))
		}
	case PowerShell:
		for _, e := range exps {
			fmt.Fprintf(&b, "$env:%s = %s\n", e.name, psQuote(e.value))
		}
	default:
		return "", &UnknownShellError{Shell: string(sh)}
	}
	return b.String(), nil
}

func shQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

func nuQuote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}

func psQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// RenderInit prints the per-shell prompt hook that re-runs `rv shell
// env <shell>` and eval-applies its output on every prompt.
func RenderInit(sh Shell, exe string) (string, error) {
	switch sh {
	case Bash:
		return fmt.Sprintf(`__rv_hook() {
  eval "$(%s shell env bash)"
}
if [[ ";${PROMPT_COMMAND:-};" != *";__rv_hook;"* ]]; then
  PROMPT_COMMAND="__rv_hook${PROMPT_COMMAND:+;$PROMPT_COMMAND}"
fi
`, exe), nil
	case Zsh:
		return fmt.Sprintf(`__rv_hook() {
  eval "$(%s shell env zsh)"
}
autoload -Uz add-zsh-hook
add-zsh-hook precmd __rv_hook
`, exe), nil
	case Fish:
		return fmt.Sprintf(`function __rv_hook --on-event fish_prompt
    %s shell env fish | source
end
`, exe), nil
	case Nushell:
		return fmt.Sprintf(`$env.config = ($env.config | upsert hooks.pre_prompt {|orig|
    $orig | append {||
        %s shell env nu | str trim | from nuon | load-env
    }
})
`, exe), nil
	case PowerShell:
		return fmt.Sprintf(`function global:__rv_hook {
    & %s shell env powershell | Out-String | Invoke-Expression
}
if (-not (Test-Path function:__rv_prev_prompt)) {
    Copy-Item function:prompt function:__rv_prev_prompt -ErrorAction SilentlyContinue
}
function global:prompt {
    __rv_hook
    if (Test-Path function:__rv_prev_prompt) { __rv_prev_prompt } else { "PS $($executionContext.SessionState.Path.CurrentLocation)> " }
}
`, exe), nil
	default:
		return "", &UnknownShellError{Shell: string(sh)}
	}
}

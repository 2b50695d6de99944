package shellhook

import (
	"strings"
	"testing"
)

func TestParseShell(t *testing.T) {
	cases := map[string]Shell{
		"bash":       Bash,
		"/bin/zsh":   Zsh,
		"fish":       Fish,
		"nu":         Nushell,
		"nushell":    Nushell,
		"pwsh":       PowerShell,
		"powershell": PowerShell,
	}
	for in, want := range cases {
		got, err := ParseShell(in)
		if err != nil {
			t.Errorf("ParseShell(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseShell(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseShellRejectsUnknown(t *testing.T) {
	if _, err := ParseShell("csh"); err == nil {
		t.Fatal("expected an UnknownShellError")
	}
}

func TestRenderEnvStripsStalePrefixBeforePrepending(t *testing.T) {
	a := Activation{
		RubyRoot:    "/rv/rubies/cruby-3.4.7",
		RubyEngine:  "cruby",
		RubyVersion: "3.4.7",
		GemHome:     "/rv/gems/3.4.0",
		GemPath:     []string{"/rv/gems/3.4.0"},
		PrevPath:    "/rv/rubies/cruby-3.3.0/bin:/rv/gems/3.3.0/bin:/usr/bin",
		PrevManPath: "/rv/rubies/cruby-3.3.0/share/man:/usr/share/man",
		PrevPrefix:  "/rv/rubies/cruby-3.3.0/bin\x1f/rv/gems/3.3.0/bin\x1f/rv/rubies/cruby-3.3.0/share/man",
	}

	out, err := RenderEnv(Bash, a)
	if err != nil {
		t.Fatal(err)
	}
	if contains := "3.3.0"; strings.Contains(out, contains) {
		t.Errorf("expected stale 3.3.0 paths stripped, got:\n%s", out)
	}
	if !strings.Contains(out, "/rv/rubies/cruby-3.4.7/bin") {
		t.Errorf("expected new ruby bin prepended, got:\n%s", out)
	}
	if !strings.Contains(out, "/usr/bin") {
		t.Errorf("expected unrelated PATH entries preserved, got:\n%s", out)
	}
}

func TestRenderEnvPerShellSyntax(t *testing.T) {
	a := Activation{RubyRoot: "/rv/rubies/cruby-3.4.7", RubyEngine: "cruby", RubyVersion: "3.4.7", GemHome: "/rv/gems/3.4.0"}

	cases := []struct {
		sh   Shell
		want string
	}{
		{Bash, "export RUBY_ENGINE="},
		{Zsh, "export RUBY_ENGINE="},
		{Fish, "set -gx RUBY_ENGINE "},
		{Nushell, "$env.RUBY_ENGINE ="},
		{PowerShell, "$env:RUBY_ENGINE ="},
	}
	for _, c := range cases {
		out, err := RenderEnv(c.sh, a)
		if err != nil {
			t.Fatalf("RenderEnv(%s): %v", c.sh, err)
		}
		if !strings.Contains(out, c.want) {
			t.Errorf("RenderEnv(%s): expected to contain %q, got:\n%s", c.sh, c.want, out)
		}
	}
}

func TestRenderInitCoversEveryShell(t *testing.T) {
	for _, sh := range []Shell{Bash, Zsh, Fish, Nushell, PowerShell} {
		out, err := RenderInit(sh, "rv")
		if err != nil {
			t.Fatalf("RenderInit(%s): %v", sh, err)
		}
		if out == "" {
			t.Errorf("RenderInit(%s) returned empty script", sh)
		}
	}
}

func TestRenderCompletionsCoversEveryShell(t *testing.T) {
	for _, sh := range []Shell{Bash, Zsh, Fish, Nushell, PowerShell} {
		out, err := RenderCompletions(sh)
		if err != nil {
			t.Fatalf("RenderCompletions(%s): %v", sh, err)
		}
		if out == "" {
			t.Errorf("RenderCompletions(%s) returned empty script", sh)
		}
	}
}

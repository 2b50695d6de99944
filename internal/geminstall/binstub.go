package geminstall

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/contriboss/rv/internal/gemspec"
)

// generateBinstubs writes a wrapper executable for each of sp's
// executables: a POSIX shell script, plus a .bat wrapper beside it when
// running on Windows.
func (in *Installer) generateBinstubs(fullName, gemDir string, sp *gemspec.Spec) error {
	binDir := filepath.Join(in.GemHome, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	for _, name := range sp.Executables {
		target := filepath.Join(gemDir, "exe", name)
		if _, err := os.Stat(target); err != nil {
			target = filepath.Join(gemDir, "bin", name)
		}

		data := binstubData{
			Name:      name,
			RubyBin:   in.RubyBin,
			GemHome:   in.GemHome,
			EntryPath: target,
		}

		shPath := filepath.Join(binDir, name)
		var buf bytes.Buffer
		if err := binstubShTmpl.Execute(&buf, data); err != nil {
			return fmt.Errorf("geminstall: render binstub for %s: %w", name, err)
		}
		if err := writeAtomic(shPath, buf.Bytes(), 0o755); err != nil {
			return err
		}

		if runtime.GOOS == "windows" {
			batPath := shPath + ".bat"
			buf.Reset()
			if err := binstubBatTmpl.Execute(&buf, data); err != nil {
				return fmt.Errorf("geminstall: render .bat binstub for %s: %w", name, err)
			}
			if err := writeAtomic(batPath, buf.Bytes(), 0o755); err != nil {
				return err
			}
		}
	}
	return nil
}

type binstubData struct {
	Name      string
	RubyBin   string
	GemHome   string
	EntryPath string
}

var binstubShTmpl = template.Must(template.New("binstub.sh").Parse(`#!/bin/sh
# generated by rv for {{.Name}}
export GEM_HOME={{printf "%q" .GemHome}}
export GEM_PATH={{printf "%q" .GemHome}}
exec {{printf "%q" .RubyBin}} {{printf "%q" .EntryPath}} "$@"
`))

var binstubBatTmpl = template.Must(template.New("binstub.bat").Parse(`@ECHO OFF
REM generated by rv for {{.Name}}
SET GEM_HOME={{.GemHome}}
SET GEM_PATH={{.GemHome}}
"{{.RubyBin}}" "{{.EntryPath}}" %*
`))

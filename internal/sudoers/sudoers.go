// Package sudoers regenerates the managed sudoers drop-in.
//
// The file is assembled from the full configured group list, validated with
// visudo, and only then renamed over the live path. A failed validation
// leaves the previous file untouched: a malformed sudoers file can lock out
// every administrator on the host, so the old content must survive any
// failed regeneration.
package sudoers

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/automata-ops/glautomata/internal/logger"
)

// ErrValidation means the assembled content failed the visudo syntax check.
var ErrValidation = errors.New("sudoers content failed validation")

var whitespaceRe = regexp.MustCompile(`\s+`)

// SanitizeLine collapses internal whitespace runs to single spaces and trims
// the ends. Sudoers syntax does not care, and it keeps the generated file
// diffable across config edits.
func SanitizeLine(line string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(line), " ")
}

// Generator writes the managed sudoers file.
type Generator struct {
	path string

	// Validate checks one candidate file for sudoers syntax errors.
	// Defaults to visudo -c; tests substitute it.
	Validate func(file string) error
}

func NewGenerator(path string) *Generator {
	return &Generator{path: path, Validate: visudoCheck}
}

// Generate assembles the drop-in from the given policy lines, one line per
// configured group, and installs it atomically after validation.
func (g *Generator) Generate(lines []string) error {
	var buf bytes.Buffer
	buf.WriteString("# Managed by glautomata. Local edits are overwritten on every run.\n")
	for _, line := range lines {
		buf.WriteString(SanitizeLine(line))
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(g.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(g.path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0440); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := g.Validate(tmpName); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := os.Rename(tmpName, g.path); err != nil {
		return err
	}
	logger.Info("Wrote %d sudoers entries to %s.", len(lines), g.path)
	return nil
}

func visudoCheck(file string) error {
	cmd := exec.Command("visudo", "-c", "-q", "-f", file)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("visudo: %s", s)
		}
		return err
	}
	return nil
}

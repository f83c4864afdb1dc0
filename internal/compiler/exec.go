package compiler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/zjrosen/catalog-engine/internal/log"
)

// runFunc executes a command and returns its stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Exec drives a pyang-compatible command line compiler.
type Exec struct {
	binary  string
	locator *DirLocator
	run     runFunc
}

var _ Toolkit = (*Exec)(nil)

// NewExec creates a toolkit that shells out to binary with modulesDir on its search path.
func NewExec(binary string, locator *DirLocator) *Exec {
	return &Exec{binary: binary, locator: locator, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // G204: binary comes from operator config

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Parse validates the module at path.
func (e *Exec) Parse(ctx context.Context, path string) (*AST, error) {
	_, stderr, err := e.run(ctx, e.binary, "--path", e.locator.Dir(), path)
	if err != nil {
		log.Debug(log.CatCompiler, "parse failed", "path", path, "stderr", strings.TrimSpace(string(stderr)))
		return nil, &ParseError{Path: path, Output: strings.TrimSpace(string(stderr)), Err: err}
	}
	name, revision := splitFileName(path)
	return &AST{Path: path, Name: name, Revision: revision}, nil
}

// RenderTree renders the module's schema tree.
func (e *Exec) RenderTree(ctx context.Context, ast *AST) (string, error) {
	stdout, stderr, err := e.run(ctx, e.binary, "-f", "tree", "--path", e.locator.Dir(), ast.Path)
	if err != nil {
		if len(stderr) > 0 {
			return "", fmt.Errorf("render tree %s failed: %s", ast.Path, strings.TrimSpace(string(stderr)))
		}
		return "", fmt.Errorf("render tree %s failed: %w", ast.Path, err)
	}
	return string(stdout), nil
}

// CheckBackwardCompatible runs the checker with oldSchema as the baseline.
// A non-zero exit without any parseable error line is a checker failure.
func (e *Exec) CheckBackwardCompatible(ctx context.Context, oldSchema, newSchema string) ([]CompatError, error) {
	oldPath := e.locator.Resolve(oldSchema)
	newPath := e.locator.Resolve(newSchema)

	stdout, stderr, err := e.run(ctx, e.binary,
		"--check-update-from", oldPath,
		"--path", e.locator.Dir(),
		newPath)

	output := append(append([]byte{}, stdout...), stderr...)
	compatErrs := parseCompatOutput(output)
	if err != nil && len(compatErrs) == 0 {
		return nil, fmt.Errorf("%w: %s -> %s: %v", ErrCheckFailed, oldPath, newPath, err)
	}
	return compatErrs, nil
}

// compatLine matches "file:line: error: message" diagnostics.
var compatLine = regexp.MustCompile(`^(.+?):(\d+)(?:\s*\(at [^)]*\))?: (error|warning|minor error): (.*)$`)

// parseCompatOutput keeps error-severity diagnostics only.
func parseCompatOutput(output []byte) []CompatError {
	var errs []CompatError
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		m := compatLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil || m[3] == "warning" {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		errs = append(errs, CompatError{File: m[1], Line: line, Message: m[4]})
	}
	return errs
}

// Package compiler is the boundary to the external schema compiler toolkit.
// The toolkit is a black box that parses a module, renders its schema tree
// and checks backward compatibility between two revisions.
package compiler

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for toolkit operations.
var (
	// ErrModuleNotFound is returned when no file for a module exists on disk.
	ErrModuleNotFound = errors.New("module file not found")

	// ErrCheckFailed is returned when the compatibility checker itself fails
	// without reporting individual compatibility errors.
	ErrCheckFailed = errors.New("compatibility check failed")
)

// AST is the toolkit's handle on a parsed module.
type AST struct {
	Path     string
	Name     string
	Revision string
}

// CompatError is one backward-compatibility violation reported by the checker.
type CompatError struct {
	File    string
	Line    int
	Message string
}

func (e CompatError) String() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// ParseError is returned when the toolkit cannot parse a module.
type ParseError struct {
	Path   string
	Output string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("parse %s: %s", e.Path, e.Output)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Toolkit is the compiler collaborator contract.
type Toolkit interface {
	// Parse parses the module file at path.
	Parse(ctx context.Context, path string) (*AST, error)
	// RenderTree renders the schema tree of a parsed module as text.
	RenderTree(ctx context.Context, ast *AST) (string, error)
	// CheckBackwardCompatible compares two schema references and returns
	// the violations found in newSchema relative to oldSchema.
	CheckBackwardCompatible(ctx context.Context, oldSchema, newSchema string) ([]CompatError, error)
}

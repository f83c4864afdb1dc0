// Package catalog defines the catalog's module records and the structures a
// run works with: the read-only snapshot, revision chains and partial deltas.
package catalog

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// CompilationStatus is the result of compiling a module with the toolkit.
type CompilationStatus string

const (
	CompilationPassed             CompilationStatus = "passed"
	CompilationPassedWithWarnings CompilationStatus = "passed-with-warnings"
	CompilationFailed             CompilationStatus = "failed"
	CompilationPending            CompilationStatus = "pending"
	CompilationUnknown            CompilationStatus = "unknown"
)

// Passed reports whether the status is exactly "passed".
// Warnings count as a failed compilation for versioning purposes.
func (s CompilationStatus) Passed() bool {
	return s == CompilationPassed
}

// TreeType classifies how a module's read/write schema tree is organized.
type TreeType string

const (
	TreeNotApplicable     TreeType = "not-applicable"
	TreeNMDACompatible    TreeType = "nmda-compatible"
	TreeOpenconfig        TreeType = "openconfig"
	TreeSplit             TreeType = "split"
	TreeTransitionalExtra TreeType = "transitional-extra"
	TreeUnclassified      TreeType = "unclassified"
)

// MaturityLevel tracks the standardisation stage of the document defining a module.
type MaturityLevel string

const (
	MaturityInitial  MaturityLevel = "initial"
	MaturityAdopted  MaturityLevel = "adopted"
	MaturityRatified MaturityLevel = "ratified"
	MaturityUnknown  MaturityLevel = "unknown"
)

// ModuleType distinguishes top-level modules from submodules.
type ModuleType string

const (
	TypeModule    ModuleType = "module"
	TypeSubmodule ModuleType = "submodule"
)

// Expired is the tri-state expiration flag: true, false or not-applicable.
// The zero value means "not set".
type Expired string

const (
	ExpiredTrue          Expired = "true"
	ExpiredFalse         Expired = "false"
	ExpiredNotApplicable Expired = "not-applicable"
)

// MarshalJSON encodes true/false as JSON booleans and not-applicable as a string.
func (e Expired) MarshalJSON() ([]byte, error) {
	switch e {
	case ExpiredTrue:
		return []byte("true"), nil
	case ExpiredFalse:
		return []byte("false"), nil
	case ExpiredNotApplicable:
		return json.Marshal(string(e))
	case "":
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("invalid expired value %q", string(e))
	}
}

// UnmarshalJSON accepts booleans, "true"/"false" strings and "not-applicable".
func (e *Expired) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*e = ExpiredTrue
		} else {
			*e = ExpiredFalse
		}
		return nil
	}
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid expired value %s", string(data))
	}
	if s == nil {
		*e = ""
		return nil
	}
	switch Expired(strings.ToLower(*s)) {
	case ExpiredTrue:
		*e = ExpiredTrue
	case ExpiredFalse:
		*e = ExpiredFalse
	case ExpiredNotApplicable:
		*e = ExpiredNotApplicable
	default:
		return fmt.Errorf("invalid expired value %q", *s)
	}
	return nil
}

// Dependency is one edge endpoint: used both for declared dependencies and
// for the inverse dependents set. Dependents are unique by the full triple.
type Dependency struct {
	Name     string `json:"name"`
	Revision string `json:"revision,omitempty"`
	Schema   string `json:"schema,omitempty"`
}

// String renders the edge as name@revision (or just name when unconstrained).
func (d Dependency) String() string {
	if d.Revision == "" {
		return d.Name
	}
	return d.Name + "@" + d.Revision
}

// Module is one catalog record, identified by (name, revision, organization).
type Module struct {
	Name                   string            `json:"name"`
	Revision               string            `json:"revision"`
	Organization           string            `json:"organization"`
	CompilationStatus      CompilationStatus `json:"compilation-status,omitempty"`
	TreeType               TreeType          `json:"tree-type,omitempty"`
	DerivedSemanticVersion string            `json:"derived-semantic-version,omitempty"`
	MaturityLevel          MaturityLevel     `json:"maturity-level,omitempty"`
	Reference              string            `json:"reference,omitempty"`
	Expires                *time.Time        `json:"expires,omitempty"`
	Expired                Expired           `json:"expired,omitempty"`
	Schema                 string            `json:"schema,omitempty"`
	Dependencies           []Dependency      `json:"dependencies,omitempty"`
	Dependents             []Dependency      `json:"dependents,omitempty"`
	ModuleType             ModuleType        `json:"module-type,omitempty"`
}

// Key returns the catalog key name@revision.
func (m *Module) Key() string {
	return Key(m.Name, m.Revision)
}

// Identity returns the module's full identity triple.
func (m *Module) Identity() ModuleKey {
	return ModuleKey{Name: m.Name, Revision: m.Revision, Organization: m.Organization}
}

// AsDependent returns the edge other modules store in their dependents set.
func (m *Module) AsDependent() Dependency {
	return Dependency{Name: m.Name, Revision: m.Revision, Schema: m.Schema}
}

// HasDependent reports whether d is already in the module's dependents set.
func (m *Module) HasDependent(d Dependency) bool {
	return slices.Contains(m.Dependents, d)
}

// IsSubmodule reports whether the record describes a submodule.
func (m *Module) IsSubmodule() bool {
	return m.ModuleType == TypeSubmodule
}

// Clone returns a deep copy.
func (m *Module) Clone() Module {
	c := *m
	if m.Expires != nil {
		t := *m.Expires
		c.Expires = &t
	}
	c.Dependencies = slices.Clone(m.Dependencies)
	c.Dependents = slices.Clone(m.Dependents)
	return c
}

// ModuleKey is a module's identity.
type ModuleKey struct {
	Name         string `json:"name"`
	Revision     string `json:"revision"`
	Organization string `json:"organization,omitempty"`
}

// Key returns the catalog key name@revision.
func (k ModuleKey) Key() string {
	return Key(k.Name, k.Revision)
}

func (k ModuleKey) String() string {
	return k.Key()
}

// Key builds the catalog key for a name and revision.
func Key(name, revision string) string {
	return name + "@" + revision
}

// ParseKey splits name@revision. The organization is left empty.
func ParseKey(s string) (ModuleKey, error) {
	name, revision, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || name == "" || revision == "" {
		return ModuleKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return ModuleKey{Name: name, Revision: revision}, nil
}

// Expiration is the resolved expiration state of one module.
// A nil Expires means the field must be absent in the catalog.
type Expiration struct {
	Expired Expired
	Expires *time.Time
}

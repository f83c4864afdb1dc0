package catalog

import (
	"encoding/json"
	"slices"
	"time"
)

// Delta is a partial record: identity plus only the fields that differ from
// the snapshot. Nil fields must be left untouched by the writer.
// DeleteExpires asks for the expires field to be removed, which a partial
// update cannot express by omission.
type Delta struct {
	Name                   string
	Revision               string
	Organization           string
	TreeType               *TreeType
	DerivedSemanticVersion *string
	Expired                *Expired
	Expires                *time.Time
	Dependents             []Dependency
	DeleteExpires          bool
}

// NewDelta returns an empty delta for m's identity.
func NewDelta(m *Module) *Delta {
	return &Delta{Name: m.Name, Revision: m.Revision, Organization: m.Organization}
}

// Key returns the catalog key name@revision.
func (d *Delta) Key() string {
	return Key(d.Name, d.Revision)
}

// HasPatch reports whether the delta carries any field for a partial update.
func (d *Delta) HasPatch() bool {
	return d.TreeType != nil || d.DerivedSemanticVersion != nil || d.Expired != nil ||
		d.Expires != nil || len(d.Dependents) > 0
}

// Empty reports whether the delta changes nothing.
func (d *Delta) Empty() bool {
	return !d.HasPatch() && !d.DeleteExpires
}

// Fields lists the changed field names in catalog spelling.
func (d *Delta) Fields() []string {
	var fields []string
	if d.TreeType != nil {
		fields = append(fields, "tree-type")
	}
	if d.DerivedSemanticVersion != nil {
		fields = append(fields, "derived-semantic-version")
	}
	if d.Expired != nil {
		fields = append(fields, "expired")
	}
	if d.Expires != nil {
		fields = append(fields, "expires")
	}
	if len(d.Dependents) > 0 {
		fields = append(fields, "dependents")
	}
	if d.DeleteExpires {
		fields = append(fields, "-expires")
	}
	return fields
}

// ApplyTo writes the delta's fields onto m.
func (d *Delta) ApplyTo(m *Module) {
	if d.TreeType != nil {
		m.TreeType = *d.TreeType
	}
	if d.DerivedSemanticVersion != nil {
		m.DerivedSemanticVersion = *d.DerivedSemanticVersion
	}
	if d.Expired != nil {
		m.Expired = *d.Expired
	}
	if d.Expires != nil {
		t := *d.Expires
		m.Expires = &t
	}
	if len(d.Dependents) > 0 {
		m.Dependents = slices.Clone(d.Dependents)
	}
	if d.DeleteExpires {
		m.Expires = nil
	}
}

type patchBody struct {
	Name                   string       `json:"name"`
	Revision               string       `json:"revision"`
	Organization           string       `json:"organization"`
	TreeType               *TreeType    `json:"tree-type,omitempty"`
	DerivedSemanticVersion *string      `json:"derived-semantic-version,omitempty"`
	Expired                *Expired     `json:"expired,omitempty"`
	Expires                *time.Time   `json:"expires,omitempty"`
	Dependents             []Dependency `json:"dependents,omitempty"`
}

// MarshalJSON encodes the PATCH payload. DeleteExpires is not part of it.
func (d *Delta) MarshalJSON() ([]byte, error) {
	return json.Marshal(patchBody{
		Name:                   d.Name,
		Revision:               d.Revision,
		Organization:           d.Organization,
		TreeType:               d.TreeType,
		DerivedSemanticVersion: d.DerivedSemanticVersion,
		Expired:                d.Expired,
		Expires:                d.Expires,
		Dependents:             d.Dependents,
	})
}

// UnmarshalJSON decodes a PATCH payload.
func (d *Delta) UnmarshalJSON(data []byte) error {
	var body patchBody
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	*d = Delta{
		Name:                   body.Name,
		Revision:               body.Revision,
		Organization:           body.Organization,
		TreeType:               body.TreeType,
		DerivedSemanticVersion: body.DerivedSemanticVersion,
		Expired:                body.Expired,
		Expires:                body.Expires,
		Dependents:             body.Dependents,
	}
	return nil
}

// ChangeSet maps name@revision to the delta for that record.
type ChangeSet map[string]*Delta

// Keys returns the changed keys in lexical order.
func (c ChangeSet) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Deltas returns the deltas ordered by key.
func (c ChangeSet) Deltas() []*Delta {
	out := make([]*Delta, 0, len(c))
	for _, k := range c.Keys() {
		out = append(out, c[k])
	}
	return out
}

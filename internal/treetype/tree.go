// Package treetype classifies a module's rendered schema tree into a tree-type.
//
// Rendered trees are first parsed into structured node records; the
// classification rules are predicates over that structure.
package treetype

import (
	"regexp"
	"strconv"
	"strings"
)

// Access is the node's access marker in the rendered tree.
type Access string

const (
	AccessRW   Access = "rw"
	AccessRO   Access = "ro"
	AccessNone Access = ""
)

// Node is one schema node from a rendered tree.
type Node struct {
	// Section is 0 for the module body and i+1 for the i-th augment.
	Section    int
	Depth      int
	Access     Access
	Name       string
	Augment    bool
	Deprecated bool // status deprecated or obsolete
	List       bool
	Choice     bool
	Case       bool
	Leaf       bool
	// Path holds data node names from the section root to this node.
	// Choice and case names are never part of a path.
	Path []string
}

// Container reports whether the node is an interior data node (container or list).
func (n *Node) Container() bool {
	return !n.Leaf && !n.Choice && !n.Case
}

func (n *Node) parentPath() []string {
	if n.Choice || n.Case {
		return n.Path
	}
	return n.Path[:len(n.Path)-1]
}

// Augment is one "augment <target>:" section.
type Augment struct {
	Target string
	Nodes  []Node
}

// Deprecated reports whether every top-level node of the augment is deprecated or obsolete.
func (a *Augment) Deprecated() bool {
	top := 0
	for i := range a.Nodes {
		if a.Nodes[i].Depth != 0 {
			continue
		}
		if !a.Nodes[i].Deprecated {
			return false
		}
		top++
	}
	return top > 0
}

// TargetSegments returns the target's path segments without module prefixes.
func (a *Augment) TargetSegments() []string {
	var segs []string
	for _, s := range strings.Split(strings.Trim(a.Target, "/"), "/") {
		if _, local, ok := strings.Cut(s, ":"); ok {
			s = local
		}
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Tree is a parsed rendered tree. RPCs, notifications and groupings are not kept.
type Tree struct {
	Module   string
	Nodes    []Node
	Augments []Augment

	index map[string]*Node
}

// Empty reports whether the tree has no data nodes at all.
func (t *Tree) Empty() bool {
	if len(t.Nodes) > 0 {
		return false
	}
	for i := range t.Augments {
		if len(t.Augments[i].Nodes) > 0 {
			return false
		}
	}
	return true
}

// All returns the module nodes followed by every augment's nodes.
func (t *Tree) All() []*Node {
	out := make([]*Node, 0, len(t.Nodes))
	for i := range t.Nodes {
		out = append(out, &t.Nodes[i])
	}
	for i := range t.Augments {
		for j := range t.Augments[i].Nodes {
			out = append(out, &t.Augments[i].Nodes[j])
		}
	}
	return out
}

// Lookup finds the data node at path inside section.
func (t *Tree) Lookup(section int, path []string) (*Node, bool) {
	if t.index == nil {
		t.index = make(map[string]*Node)
		for _, n := range t.All() {
			if n.Choice || n.Case {
				continue
			}
			t.index[indexKey(n.Section, n.Path)] = n
		}
	}
	n, ok := t.index[indexKey(section, path)]
	return n, ok
}

func indexKey(section int, path []string) string {
	return strconv.Itoa(section) + "/" + strings.Join(path, "/")
}

var nodeLine = regexp.MustCompile(`^([ |]*)([+xo])--(?:(rw|ro|-x|-n|-w|-u|mp|--)\s+)?(\S.*)$`)

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionModule
	sectionAugment
	sectionSkipped
)

type stackEntry struct {
	name     string
	dataNode bool
	skip     bool
}

// ParseTree parses pyang-style tree output.
func ParseTree(text string) *Tree {
	t := &Tree{}

	kind := sectionNone
	section := 0
	baseCol := -1
	var stack []stackEntry
	pendingTarget := ""

	startSection := func(k sectionKind) {
		kind = k
		baseCol = -1
		stack = stack[:0]
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if pendingTarget != "" {
			pendingTarget += trimmed
			if strings.HasSuffix(pendingTarget, ":") {
				t.Augments = append(t.Augments, Augment{Target: strings.TrimSuffix(pendingTarget, ":")})
				section = len(t.Augments)
				pendingTarget = ""
			}
			continue
		}

		m := nodeLine.FindStringSubmatch(line)
		if m == nil {
			switch {
			case strings.HasPrefix(trimmed, "module:"), strings.HasPrefix(trimmed, "submodule:"):
				_, name, _ := strings.Cut(trimmed, ":")
				t.Module = strings.TrimSpace(name)
				startSection(sectionModule)
				section = 0
			case strings.HasPrefix(trimmed, "augment "):
				startSection(sectionAugment)
				target := strings.TrimSpace(strings.TrimPrefix(trimmed, "augment "))
				if strings.HasSuffix(target, ":") {
					t.Augments = append(t.Augments, Augment{Target: strings.TrimSuffix(target, ":")})
					section = len(t.Augments)
				} else {
					pendingTarget = target
				}
			case strings.HasSuffix(trimmed, ":"):
				startSection(sectionSkipped)
			}
			continue
		}
		if kind != sectionModule && kind != sectionAugment {
			continue
		}

		col := len(m[1])
		if baseCol < 0 {
			baseCol = col
		}
		depth := max((col-baseCol)/3, 0)

		n := parseNode(m[2], m[3], m[4])
		n.Section = section
		n.Depth = depth
		n.Augment = kind == sectionAugment

		if depth < len(stack) {
			stack = stack[:depth]
		}
		for len(stack) < depth {
			// Malformed indentation; pad so paths stay aligned.
			stack = append(stack, stackEntry{})
		}

		// Actions and their input/output are not part of the data tree.
		skip := isOperation(m[3])
		for _, e := range stack {
			skip = skip || e.skip
			if e.dataNode {
				n.Path = append(n.Path, e.name)
			}
		}
		if skip {
			stack = append(stack, stackEntry{skip: true})
			continue
		}
		dataNode := !n.Choice && !n.Case
		if dataNode {
			n.Path = append(n.Path, n.Name)
		}
		stack = append(stack, stackEntry{name: n.Name, dataNode: dataNode})

		if kind == sectionAugment {
			a := &t.Augments[section-1]
			a.Nodes = append(a.Nodes, n)
		} else {
			t.Nodes = append(t.Nodes, n)
		}
	}
	return t
}

func isOperation(flags string) bool {
	switch flags {
	case "-x", "-n", "-w", "-u":
		return true
	}
	return false
}

func parseNode(status, flags, rest string) Node {
	n := Node{Deprecated: status == "x" || status == "o"}
	switch flags {
	case "rw":
		n.Access = AccessRW
	case "ro":
		n.Access = AccessRO
	}

	fields := strings.Fields(rest)
	name := fields[0]
	switch {
	case strings.HasPrefix(name, ":("):
		n.Case = true
		name = strings.TrimSuffix(strings.TrimPrefix(name, ":("), ")")
	case strings.HasPrefix(name, "("):
		n.Choice = true
		name = strings.TrimSuffix(strings.TrimSuffix(name, "?"), ")")
		name = strings.TrimPrefix(name, "(")
	default:
		multi := strings.HasSuffix(name, "*")
		name = strings.TrimRight(name, "?*!")
		hasType := len(fields) > 1 && !strings.HasPrefix(fields[1], "[") && !strings.HasPrefix(fields[1], "{")
		n.Leaf = hasType
		n.List = multi && !hasType
	}
	n.Name = name
	return n
}

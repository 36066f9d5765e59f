// Package config holds the already-parsed declarative description of a
// negotiator component tree. Parsing the document format (YAML, JSON, ...)
// is the caller's job; this package only validates and consumes the typed
// tree. Nodes reference their children through stable indices instead of
// owning pointers, so trees built from flat documents are cycle-free by
// construction once validated.
package config

import (
	"fmt"
	"time"

	"github.com/gridmarket/negotiator/pkg/domain"
)

// Mode selects how a leaf component implementation is resolved.
type Mode string

const (
	// ModeStatic resolves the component from the build-time registry.
	ModeStatic Mode = "static"
	// ModeShared resolves the component from a dynamically loaded library.
	ModeShared Mode = "shared"
	// ModeComposite marks an aggregating node with child references.
	ModeComposite Mode = "composite"
)

// Fallback is the rule a composite applies when no child produced a usable
// reply within the window.
type Fallback string

const (
	// FallbackReject rejects the proposal. This is the default.
	FallbackReject Fallback = "reject"
	// FallbackAccept accepts the proposal with an undefined score.
	FallbackAccept Fallback = "accept"
)

// CompositePolicy configures a composite node's aggregation behaviour.
// Ties between equal scores always break by child registration order.
type CompositePolicy struct {
	// Window bounds how long the composite collects child replies.
	Window time.Duration `yaml:"window"`

	// CallTimeout bounds each child's individual Decide call. Zero means the
	// window is the only limit.
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`

	// Fallback applies when no child replied in time, all replies were
	// rejections, or every present score was undefined.
	Fallback Fallback `yaml:"fallback,omitempty"`
}

// Node describes one component instance in the tree.
type Node struct {
	Name string `yaml:"name"`
	Mode Mode   `yaml:"mode"`

	// Component names the registry entry (static mode).
	Component string `yaml:"component,omitempty"`

	// Path locates the shared library (shared mode).
	Path string `yaml:"path,omitempty"`

	// Params is the instance configuration, validated by the component itself
	// at construction.
	Params map[string]any `yaml:"params,omitempty"`

	// Children are indices into Tree.Nodes (composite mode).
	Children []int `yaml:"children,omitempty"`

	// Composite holds aggregation policy (composite mode).
	Composite *CompositePolicy `yaml:"composite,omitempty"`
}

// Tree is the full declarative component tree. Root indexes into Nodes.
type Tree struct {
	Nodes []Node `yaml:"nodes"`
	Root  int    `yaml:"root"`
}

// DefaultWindow applies when a composite omits its window.
const DefaultWindow = 500 * time.Millisecond

// Validate checks structural integrity: index ranges, per-mode required
// fields, and that no node is reachable through two parents or through
// itself. All failures are ConfigInvalid.
func (t *Tree) Validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: tree has no nodes", domain.ErrConfigInvalid)
	}
	if t.Root < 0 || t.Root >= len(t.Nodes) {
		return fmt.Errorf("%w: root index %d out of range", domain.ErrConfigInvalid, t.Root)
	}

	referenced := make(map[int]int) // child index -> parent index
	for i, node := range t.Nodes {
		if err := t.validateNode(i, node); err != nil {
			return err
		}
		for _, child := range node.Children {
			if child < 0 || child >= len(t.Nodes) {
				return fmt.Errorf("%w: node %q references child index %d out of range",
					domain.ErrConfigInvalid, node.Name, child)
			}
			if child == i {
				return fmt.Errorf("%w: node %q references itself", domain.ErrConfigInvalid, node.Name)
			}
			if parent, ok := referenced[child]; ok {
				return fmt.Errorf("%w: node index %d referenced by both %q and %q",
					domain.ErrConfigInvalid, child, t.Nodes[parent].Name, node.Name)
			}
			referenced[child] = i
		}
	}

	if _, ok := referenced[t.Root]; ok {
		return fmt.Errorf("%w: root node %q is also a child", domain.ErrConfigInvalid, t.Nodes[t.Root].Name)
	}
	return t.checkAcyclic()
}

func (t *Tree) validateNode(i int, node Node) error {
	if node.Name == "" {
		return fmt.Errorf("%w: node index %d has no name", domain.ErrConfigInvalid, i)
	}
	switch node.Mode {
	case ModeStatic:
		if node.Component == "" {
			return fmt.Errorf("%w: static node %q has no component", domain.ErrConfigInvalid, node.Name)
		}
	case ModeShared:
		if node.Path == "" {
			return fmt.Errorf("%w: shared node %q has no library path", domain.ErrConfigInvalid, node.Name)
		}
	case ModeComposite:
		if len(node.Children) == 0 {
			return fmt.Errorf("%w: composite node %q has no children", domain.ErrConfigInvalid, node.Name)
		}
		if node.Composite != nil && node.Composite.Window < 0 {
			return fmt.Errorf("%w: composite node %q has negative window", domain.ErrConfigInvalid, node.Name)
		}
	default:
		return fmt.Errorf("%w: node %q has unknown mode %q", domain.ErrConfigInvalid, node.Name, node.Mode)
	}
	if node.Mode != ModeComposite && len(node.Children) > 0 {
		return fmt.Errorf("%w: leaf node %q has children", domain.ErrConfigInvalid, node.Name)
	}
	return nil
}

// checkAcyclic walks from the root. Single-parent references already exclude
// shared subtrees, so a plain visited set detects any remaining cycle.
func (t *Tree) checkAcyclic() error {
	visited := make(map[int]bool)
	var walk func(i int) error
	walk = func(i int) error {
		if visited[i] {
			return fmt.Errorf("%w: cycle through node %q", domain.ErrConfigInvalid, t.Nodes[i].Name)
		}
		visited[i] = true
		for _, child := range t.Nodes[i].Children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(t.Root)
}

// Policy returns the node's composite policy with defaults applied.
func (n Node) Policy() CompositePolicy {
	policy := CompositePolicy{Window: DefaultWindow, Fallback: FallbackReject}
	if n.Composite != nil {
		if n.Composite.Window > 0 {
			policy.Window = n.Composite.Window
		}
		if n.Composite.CallTimeout > 0 {
			policy.CallTimeout = n.Composite.CallTimeout
		}
		if n.Composite.Fallback != "" {
			policy.Fallback = n.Composite.Fallback
		}
	}
	return policy
}

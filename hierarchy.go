package probgen

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one node of the domain hierarchy. A node with no children is a
// leaf technology; a node with children is a parent category. SampleCount is
// the minimum number of reference samples the seeder keeps available for it.
type Category struct {
	SampleCount int                  `yaml:"sample_count"`
	Children    map[string]*Category `yaml:"children,omitempty"`
}

// IsLeaf reports whether the node has no child categories.
func (c *Category) IsLeaf() bool {
	return len(c.Children) == 0
}

// Hierarchy is a static tree of domain categories used for retrieval
// fallback: when a technology has too few samples, its parent category is
// searched instead.
type Hierarchy struct {
	roots map[string]*Category
}

// ParseHierarchy reads a hierarchy from YAML.
func ParseHierarchy(data []byte) (*Hierarchy, error) {
	roots := map[string]*Category{}
	if err := yaml.Unmarshal(data, &roots); err != nil {
		return nil, fmt.Errorf("parse hierarchy: %w", err)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("parse hierarchy: empty document")
	}
	return &Hierarchy{roots: roots}, nil
}

// Parent returns the name of the category directly containing name, walking
// the whole tree. Lookup is case-insensitive.
func (h *Hierarchy) Parent(name string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return "", false
	}
	var walk func(parent string, nodes map[string]*Category) (string, bool)
	walk = func(parent string, nodes map[string]*Category) (string, bool) {
		for childName, child := range nodes {
			if strings.ToLower(childName) == want && parent != "" {
				return parent, true
			}
			if child == nil {
				continue
			}
			if found, ok := walk(childName, child.Children); ok {
				return found, ok
			}
		}
		return "", false
	}
	return walk("", h.roots)
}

// SampleCount returns the configured minimum sample count for a category,
// or 0 when the category is unknown.
func (h *Hierarchy) SampleCount(name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	var walk func(nodes map[string]*Category) int
	walk = func(nodes map[string]*Category) int {
		for childName, child := range nodes {
			if child == nil {
				continue
			}
			if strings.ToLower(childName) == want {
				return child.SampleCount
			}
			if n := walk(child.Children); n > 0 {
				return n
			}
		}
		return 0
	}
	return walk(h.roots)
}

// Leaves returns every leaf technology name under the given root category,
// or all leaves when root is empty. Used by the bulk seeder.
func (h *Hierarchy) Leaves(root string) []string {
	var out []string
	var walk func(name string, node *Category)
	walk = func(name string, node *Category) {
		if node == nil {
			return
		}
		if node.IsLeaf() {
			out = append(out, name)
			return
		}
		for childName, child := range node.Children {
			walk(childName, child)
		}
	}
	root = strings.ToLower(strings.TrimSpace(root))
	for name, node := range h.roots {
		if root == "" || strings.ToLower(name) == root {
			walk(name, node)
		}
	}
	return out
}

const defaultHierarchyYAML = `
frontend:
  sample_count: 10
  children:
    react: {sample_count: 8}
    vue: {sample_count: 6}
    javascript: {sample_count: 8}
    typescript: {sample_count: 6}
    css: {sample_count: 5}
backend:
  sample_count: 10
  children:
    node: {sample_count: 8}
    spring: {sample_count: 6}
    django: {sample_count: 6}
    go: {sample_count: 6}
database:
  sample_count: 8
  children:
    sql: {sample_count: 8}
    redis: {sample_count: 5}
    mongodb: {sample_count: 5}
cs:
  sample_count: 8
  children:
    algorithms: {sample_count: 8}
    datastructures: {sample_count: 8}
    os: {sample_count: 6}
    network: {sample_count: 6}
devops:
  sample_count: 6
  children:
    docker: {sample_count: 6}
    kubernetes: {sample_count: 6}
    aws: {sample_count: 5}
`

// DefaultHierarchy returns the built-in domain hierarchy.
func DefaultHierarchy() *Hierarchy {
	h, err := ParseHierarchy([]byte(defaultHierarchyYAML))
	if err != nil {
		panic(err) // built-in document, cannot fail
	}
	return h
}

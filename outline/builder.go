// Package outline arranges document sections into heading hierarchy.
package outline

import (
	"docaudit/ooxml"
)

const (
	RootTitle   = "Root"
	RootLocator = "document.xml#root"
)

// Node is a heading (or the synthetic root) owning everything up to the next
// heading of the same or higher rank.
type Node struct {
	ID       int    `yaml:"id"`
	Title    string `yaml:"title"`
	Level    uint8  `yaml:"level"`
	Locator  string `yaml:"locator"`
	Children []Item `yaml:"children,omitempty"`
}

// Item is exactly one of nested node or content section.
type Item struct {
	Subsection *Node
	Content    *ooxml.Section
}

func (it Item) MarshalYAML() (any, error) {
	if it.Subsection != nil {
		return map[string]*Node{"subsection": it.Subsection}, nil
	}
	return map[string]*ooxml.Section{"content": it.Content}, nil
}

type Metadata struct {
	TotalElements  int `yaml:"total_elements"`
	HeadingCount   int `yaml:"heading_count"`
	TableCount     int `yaml:"table_count"`
	ParagraphCount int `yaml:"paragraph_count"`
	EquationCount  int `yaml:"equation_count"`
}

type Tree struct {
	Root     *Node    `yaml:"root"`
	Metadata Metadata `yaml:"metadata"`
}

// arenaNode is a node under construction, children refer to arena indexes.
type arenaNode struct {
	node     Node
	children []arenaItem
}

type arenaItem struct {
	sub     int // arena index, -1 for content
	content *ooxml.Section
}

// Build places each heading under the nearest open heading of lower level
// and attaches other sections to the innermost open heading. Levels may skip,
// heading may be less deep than its predecessors, root is never closed.
func Build(sections []ooxml.Section) *Tree {
	arena := []arenaNode{{node: Node{Title: RootTitle, Locator: RootLocator}}}
	stack := []int{0}
	var meta Metadata

	for i := range sections {
		sec := sections[i]
		meta.TotalElements++

		if !sec.Type.IsHeading() {
			switch sec.Type {
			case ooxml.Table:
				meta.TableCount++
			case ooxml.Equation:
				meta.EquationCount++
			default:
				meta.ParagraphCount++
			}
			top := stack[len(stack)-1]
			arena[top].children = append(arena[top].children, arenaItem{sub: -1, content: &sec})
			continue
		}

		meta.HeadingCount++
		level := sec.Type.Level
		for len(stack) > 1 && arena[stack[len(stack)-1]].node.Level >= level {
			stack = stack[:len(stack)-1]
		}
		idx := len(arena)
		arena = append(arena, arenaNode{node: Node{
			ID:      sec.ID,
			Title:   sec.RawText,
			Level:   level,
			Locator: sec.Locator,
		}})
		parent := stack[len(stack)-1]
		arena[parent].children = append(arena[parent].children, arenaItem{sub: idx})
		stack = append(stack, idx)
	}

	// every arena node has exactly one parent, so pointers can be wired
	// without recursion
	nodes := make([]*Node, len(arena))
	for i := range arena {
		n := arena[i].node
		nodes[i] = &n
	}
	for i := range arena {
		if len(arena[i].children) == 0 {
			continue
		}
		children := make([]Item, len(arena[i].children))
		for j, c := range arena[i].children {
			if c.sub < 0 {
				children[j] = Item{Content: c.content}
			} else {
				children[j] = Item{Subsection: nodes[c.sub]}
			}
		}
		nodes[i].Children = children
	}
	return &Tree{Root: nodes[0], Metadata: meta}
}

// Walk visits nodes depth first, parents before children. Depth of root is 0.
func (t *Tree) Walk(fn func(n *Node, depth int)) {
	type frame struct {
		n     *Node
		depth int
	}
	stack := []frame{{t.Root, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(f.n, f.depth)
		for i := len(f.n.Children) - 1; i >= 0; i-- {
			if sub := f.n.Children[i].Subsection; sub != nil {
				stack = append(stack, frame{sub, f.depth + 1})
			}
		}
	}
}

// Find returns node for heading section id.
func (t *Tree) Find(id int) (*Node, bool) {
	var found *Node
	t.Walk(func(n *Node, _ int) {
		if found == nil && n != t.Root && n.ID == id {
			found = n
		}
	})
	return found, found != nil
}

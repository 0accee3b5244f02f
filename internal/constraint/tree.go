// Package constraint builds the tiered constraint tree from extracted
// entities.
//
// A Tree is an arena of nodes addressed by index. The root (index 0) is an
// AND node. Several values of an OR-able type are grouped under an OR node;
// everything else hangs directly off the root. Children are always stored
// after their parent, which lets evaluation run as a single reverse sweep.
//
// Trees are immutable once built. Relaxation produces a new tree.
package constraint

import (
	"sort"
	"strings"

	"github.com/reelquery/reelquery/internal/entity"
)

// Op is a logical combinator.
type Op string

// Logical combinators.
const (
	And Op = "AND"
	Or  Op = "OR"
)

// NoParent marks the root.
const NoParent = -1

// Node is one arena slot. Group nodes have a nil Value.
type Node struct {
	Key      string
	Value    entity.Value
	Tier     Tier
	Op       Op
	Parent   int
	Children []int

	// Entity is the index of the source entity, or -1 for groups.
	Entity int
}

// IsLeaf reports whether the node carries a value.
func (n Node) IsLeaf() bool {
	return n.Value != nil
}

// Leaf is a flattened leaf with its arena index.
type Leaf struct {
	Index int
	Node
}

// Tree is an immutable constraint tree.
type Tree struct {
	nodes []Node
}

type entry struct {
	entity int
	value  entity.Value
}

// Build creates a tree from typed values. values is index aligned with the
// source entities; nil values and media hints are skipped.
func Build(values []entity.Value) *Tree {
	entries := make([]entry, 0, len(values))
	for i, v := range values {
		if IsConstraint(v) {
			entries = append(entries, entry{entity: i, value: v})
		}
	}
	return build(entries)
}

// FromEntities parses the NLU envelopes and builds the tree. Any malformed
// envelope aborts with an extraction error.
func FromEntities(entities []entity.ExtractedEntity) (*Tree, []entity.Value, error) {
	values, err := entity.ParseAll(entities)
	if err != nil {
		return nil, nil, err
	}
	return Build(values), values, nil
}

func build(entries []entry) *Tree {
	t := &Tree{nodes: []Node{{Op: And, Parent: NoParent, Entity: -1}}}

	// slots keep first-appearance order; OR-able values of one key share a slot
	type slot struct {
		items []entry
	}
	var slots []*slot
	byKey := make(map[string]*slot)
	for _, e := range entries {
		if !combinesWithOr(e.value) {
			slots = append(slots, &slot{items: []entry{e}})
			continue
		}
		key := KeyOf(e.value)
		s, ok := byKey[key]
		if !ok {
			s = &slot{}
			byKey[key] = s
			slots = append(slots, s)
		}
		s.items = append(s.items, e)
	}

	for _, s := range slots {
		if len(s.items) == 1 {
			t.addLeaf(0, s.items[0])
			continue
		}
		g := t.addGroup(0, Or, TierOf(s.items[0].value))
		for _, e := range s.items {
			t.addLeaf(g, e)
		}
	}
	return t
}

func (t *Tree) addGroup(parent int, op Op, tier Tier) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, Node{Op: op, Tier: tier, Parent: parent, Entity: -1})
	t.nodes[parent].Children = append(t.nodes[parent].Children, idx)
	return idx
}

func (t *Tree) addLeaf(parent int, e entry) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, Node{
		Key:    KeyOf(e.value),
		Value:  e.value,
		Tier:   TierOf(e.value),
		Op:     And,
		Parent: parent,
		Entity: e.entity,
	})
	t.nodes[parent].Children = append(t.nodes[parent].Children, idx)
	return idx
}

// Size returns the number of arena nodes including groups and the root.
func (t *Tree) Size() int {
	return len(t.nodes)
}

// Node returns the node at index i.
func (t *Tree) Node(i int) Node {
	return t.nodes[i]
}

// Len returns the number of leaf constraints.
func (t *Tree) Len() int {
	n := 0
	for _, node := range t.nodes {
		if node.IsLeaf() {
			n++
		}
	}
	return n
}

// Empty reports whether the tree holds no constraints.
func (t *Tree) Empty() bool {
	return t.Len() == 0
}

// Flatten returns the leaves ordered by tier. Within a tier, leaves keep
// their tree order, which follows insertion order. The traversal uses an
// explicit stack.
func (t *Tree) Flatten() []Leaf {
	var leaves []Leaf
	stack := []int{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes[i]
		if n.IsLeaf() {
			leaves = append(leaves, Leaf{Index: i, Node: n})
			continue
		}
		for c := len(n.Children) - 1; c >= 0; c-- {
			stack = append(stack, n.Children[c])
		}
	}
	sort.SliceStable(leaves, func(a, b int) bool {
		return leaves[a].Tier < leaves[b].Tier
	})
	return leaves
}

// Evaluate combines leaf verdicts through the AND/OR structure. Because
// children always follow their parent in the arena, one reverse sweep
// resolves every node. A group with no children is satisfied.
func (t *Tree) Evaluate(leaf func(Node) bool) bool {
	result := make([]bool, len(t.nodes))
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := t.nodes[i]
		if n.IsLeaf() {
			result[i] = leaf(n)
			continue
		}
		if len(n.Children) == 0 {
			result[i] = true
			continue
		}
		switch n.Op {
		case Or:
			ok := false
			for _, c := range n.Children {
				ok = ok || result[c]
			}
			result[i] = ok
		default:
			ok := true
			for _, c := range n.Children {
				ok = ok && result[c]
			}
			result[i] = ok
		}
	}
	return result[0]
}

// HasTier reports whether any leaf belongs to tier.
func (t *Tree) HasTier(tier Tier) bool {
	for _, n := range t.nodes {
		if n.IsLeaf() && n.Tier == tier {
			return true
		}
	}
	return false
}

// TierCount returns the number of distinct tiers present.
func (t *Tree) TierCount() int {
	seen := make(map[Tier]bool)
	for _, n := range t.nodes {
		if n.IsLeaf() {
			seen[n.Tier] = true
		}
	}
	return len(seen)
}

// LeavesIn returns the flattened leaves of one tier.
func (t *Tree) LeavesIn(tier Tier) []Leaf {
	var out []Leaf
	for _, l := range t.Flatten() {
		if l.Tier == tier {
			out = append(out, l)
		}
	}
	return out
}

// Entities returns the source entity indices still represented by a leaf.
func (t *Tree) Entities() map[int]bool {
	out := make(map[int]bool)
	for _, n := range t.nodes {
		if n.IsLeaf() {
			out[n.Entity] = true
		}
	}
	return out
}

// Without returns a new tree holding the leaves for which drop is false,
// regrouped from scratch. The receiver is not modified.
func (t *Tree) Without(drop func(Leaf) bool) *Tree {
	var kept []entry
	for i, n := range t.nodes {
		if !n.IsLeaf() || drop(Leaf{Index: i, Node: n}) {
			continue
		}
		kept = append(kept, entry{entity: n.Entity, value: n.Value})
	}
	sort.SliceStable(kept, func(a, b int) bool { return kept[a].entity < kept[b].entity })
	return build(kept)
}

// WithoutTier returns a new tree without the leaves of tier, together with
// the removed leaves.
func (t *Tree) WithoutTier(tier Tier) (*Tree, []Leaf) {
	removed := t.LeavesIn(tier)
	return t.Without(func(l Leaf) bool { return l.Tier == tier }), removed
}

// Signature is a stable rendering of the tree, equal for equal trees.
func (t *Tree) Signature() string {
	return t.render(0)
}

func (t *Tree) String() string {
	return t.Signature()
}

func (t *Tree) render(i int) string {
	n := t.nodes[i]
	if n.IsLeaf() {
		return n.Key + "=" + n.Value.Label()
	}
	parts := make([]string, len(n.Children))
	for j, c := range n.Children {
		parts[j] = t.render(c)
	}
	return string(n.Op) + "(" + strings.Join(parts, ", ") + ")"
}

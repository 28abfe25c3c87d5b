package thread

// Node is a comment with its display replies.
type Node struct {
	Comment
	Replies []*Node `json:"replies"`
}

// Assemble groups a flat comment sequence into display trees.
//
// Nesting is one level deep: every comment whose ancestor chain reaches a
// comment in the set is attached to the top of that chain, so a reply to a
// reply is rendered as a sibling of the first reply. A comment whose parent is
// not in the set is a root. Root and reply order follow the input order.
func Assemble(comments []Comment) []*Node {
	nodes := make(map[int64]*Node, len(comments))
	index := make(map[int64]int, len(comments))
	for i, c := range comments {
		if _, dup := nodes[c.ID]; dup {
			continue
		}
		clone := c
		nodes[c.ID] = &Node{Comment: clone, Replies: []*Node{}}
		index[c.ID] = i
	}

	roots := make([]*Node, 0)
	placed := make(map[int64]bool, len(comments))
	for _, c := range comments {
		if placed[c.ID] {
			continue
		}
		placed[c.ID] = true
		node := nodes[c.ID]
		rootID := rootOf(c.ID, nodes, index)
		if rootID == c.ID {
			roots = append(roots, node)
			continue
		}
		root := nodes[rootID]
		root.Replies = append(root.Replies, node)
	}
	return roots
}

// rootOf follows parent pointers inside the set. A cycle is broken at the
// member that appears first in the input.
func rootOf(id int64, nodes map[int64]*Node, index map[int64]int) int64 {
	seen := map[int64]int{}
	chain := make([]int64, 0, 4)
	current := id
	for {
		if pos, loop := seen[current]; loop {
			best := chain[pos]
			for _, member := range chain[pos:] {
				if index[member] < index[best] {
					best = member
				}
			}
			return best
		}
		seen[current] = len(chain)
		chain = append(chain, current)

		parentID := nodes[current].ParentID
		if parentID == nil {
			return current
		}
		if _, ok := nodes[*parentID]; !ok {
			return current
		}
		current = *parentID
	}
}

// Flatten returns the comments of a tree in display order: each root
// followed by its replies.
func Flatten(roots []*Node) []Comment {
	out := make([]Comment, 0, len(roots))
	for _, root := range roots {
		out = append(out, root.Comment)
		for _, reply := range root.Replies {
			out = append(out, reply.Comment)
		}
	}
	return out
}

// Count returns the number of comments in a tree.
func Count(roots []*Node) int {
	total := 0
	for _, root := range roots {
		total += 1 + len(root.Replies)
	}
	return total
}

package hclust

// LeafOrder returns the observation indices in dendrogram display order: a
// depth-first traversal from the root that visits each merge's left child
// before its right child. Adjacent indices in the result belong to clusters
// that merged at low distance.
//
// The traversal is iterative so deep unbalanced trees cannot exhaust the
// stack.
func (t *Tree) LeafOrder() []int {
	order := make([]int, 0, t.N)
	stack := make([]int, 0, t.N)
	stack = append(stack, t.Root())
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id < t.N {
			order = append(order, id)
			continue
		}
		m := t.Merges[id-t.N]
		// Right below left so the left subtree is emitted first.
		stack = append(stack, m.Right, m.Left)
	}
	return order
}

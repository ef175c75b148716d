// SPDX-License-Identifier: Apache-2.0

package merge3

// entityGroup is one identity class: every root, head and update element the
// comparator links together, directly or through another element.
type entityGroup struct {
	root, head, update []int
}

// ambiguous reports that the comparator linked several head elements to one
// update element (or the reverse), so no one-to-one pairing exists.
func (g *entityGroup) ambiguous() bool {
	return len(g.head) >= 1 && len(g.update) >= 1 && len(g.head)+len(g.update) > 2
}

// paired reports a plain one-to-one correspondence between head and update.
func (g *entityGroup) paired() bool {
	return len(g.head) == 1 && len(g.update) == 1
}

// listMatch is the identity structure of one list across the three versions.
type listMatch struct {
	root, head, update []any
	headGroup          []*entityGroup
	updateGroup        []*entityGroup
}

// matchEntities groups the elements of the three lists into identity classes.
// Only elements from different versions are compared; duplicates within one
// version end up in the same group through a shared counterpart.
func matchEntities(root, head, update []any, cmp Comparator) *listMatch {
	nr, nh := len(root), len(head)
	n := nr + nh + len(update)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		if ra, rb := find(a), find(b); ra != rb {
			parent[rb] = ra
		}
	}
	link := func(xs []any, xoff int, ys []any, yoff int) {
		for i, x := range xs {
			for j, y := range ys {
				if cmp(x, y) {
					union(xoff+i, yoff+j)
				}
			}
		}
	}
	link(root, 0, head, nr)
	link(root, 0, update, nr+nh)
	link(head, nr, update, nr+nh)

	groups := make(map[int]*entityGroup)
	groupOf := func(i int) *entityGroup {
		r := find(i)
		g, ok := groups[r]
		if !ok {
			g = &entityGroup{}
			groups[r] = g
		}
		return g
	}
	lm := &listMatch{
		root:        root,
		head:        head,
		update:      update,
		headGroup:   make([]*entityGroup, nh),
		updateGroup: make([]*entityGroup, len(update)),
	}
	for i := range root {
		g := groupOf(i)
		g.root = append(g.root, i)
	}
	for i := range head {
		g := groupOf(nr + i)
		g.head = append(g.head, i)
		lm.headGroup[i] = g
	}
	for i := range update {
		g := groupOf(nr + nh + i)
		g.update = append(g.update, i)
		lm.updateGroup[i] = g
	}
	return lm
}

// base returns the root version of a group's entity, or missing when the
// entity is new. With duplicates in root the first occurrence wins.
func (lm *listMatch) base(g *entityGroup) any {
	if len(g.root) == 0 {
		return missing
	}
	return lm.root[g.root[0]]
}

// listBuilder accumulates the merged list so that every emitted element knows
// its final index.
type listBuilder struct {
	run     *mergeRun
	fp, ptr string
	lm      *listMatch
	out     []any
	emitted map[*entityGroup]bool
}

func (b *listBuilder) next() string {
	return indexPointer(b.ptr, len(b.out))
}

func (b *listBuilder) push(v any) {
	b.out = append(b.out, v)
}

// pushPaired emits the three-way merge of a one-to-one matched entity.
func (b *listBuilder) pushPaired(g *entityGroup) error {
	h := b.lm.head[g.head[0]]
	u := b.lm.update[g.update[0]]
	v, err := b.run.mergeNode(b.fp, b.next(), b.lm.base(g), h, u)
	if err != nil {
		return err
	}
	b.push(v)
	return nil
}

// pushAmbiguous keeps head's elements of an ambiguous group and raises a
// SET_FIELD conflict for every update element that differs from them.
func (b *listBuilder) pushAmbiguous(g *entityGroup) error {
	for _, hi := range g.head {
		h := b.lm.head[hi]
		for _, ui := range g.update {
			if u := b.lm.update[ui]; !equal(h, u) {
				if err := b.run.conflict(Conflict{Path: b.next(), Kind: SetField, Value: u}); err != nil {
					return err
				}
			}
		}
		b.push(h)
	}
	return nil
}

// mergeList reconciles a list both branches changed. fp is the list's field
// path; its elements share it.
func (r *mergeRun) mergeList(fp, ptr string, root, head, update []any) ([]any, error) {
	p := r.cfg.Resolve(fp)
	b := &listBuilder{
		run:     r,
		fp:      fp,
		ptr:     ptr,
		lm:      matchEntities(root, head, update, p.Comparator),
		emitted: make(map[*entityGroup]bool),
	}
	b.out = make([]any, 0, max(len(head), len(update)))

	var err error
	switch p.ListOp {
	case KeepOnlyHeadEntities:
		err = b.onlyHead()
	case KeepOnlyUpdateEntities:
		err = b.onlyUpdate()
	case KeepUpdateAndHeadEntitiesHeadFirst:
		err = b.unionHeadFirst()
	case KeepUpdateAndHeadEntitiesUpdateFirst:
		err = b.unionUpdateFirst()
	case KeepUpdateEntitiesConflictOnHeadDelete:
		err = b.updateConflictOnHeadDelete()
	default:
		err = &InvalidConfigError{Field: "list_merge_ops." + fp, Value: p.ListOp.String(), Message: "unknown list operation"}
	}
	if err != nil {
		return nil, err
	}
	return b.out, nil
}

// onlyHead keeps head's list as is, folding in update's edits to entities
// both branches still carry.
func (b *listBuilder) onlyHead() error {
	for i, h := range b.lm.head {
		if g := b.lm.headGroup[i]; g.paired() {
			if err := b.pushPaired(g); err != nil {
				return err
			}
			continue
		}
		b.push(h)
	}
	return nil
}

// onlyUpdate is the mirror of onlyHead.
func (b *listBuilder) onlyUpdate() error {
	for i, u := range b.lm.update {
		if g := b.lm.updateGroup[i]; g.paired() {
			if err := b.pushPaired(g); err != nil {
				return err
			}
			continue
		}
		b.push(u)
	}
	return nil
}

func (b *listBuilder) unionHeadFirst() error {
	for i, h := range b.lm.head {
		g := b.lm.headGroup[i]
		switch {
		case g.ambiguous():
			if !b.emitted[g] {
				if err := b.pushAmbiguous(g); err != nil {
					return err
				}
			}
		case b.emitted[g]:
			// duplicate identity, first occurrence already emitted
		case g.paired():
			if err := b.pushPaired(g); err != nil {
				return err
			}
		default:
			b.push(h)
		}
		b.emitted[g] = true
	}
	b.appendRest(b.lm.update, b.lm.updateGroup)
	return nil
}

func (b *listBuilder) unionUpdateFirst() error {
	for i, u := range b.lm.update {
		g := b.lm.updateGroup[i]
		switch {
		case b.emitted[g]:
		case g.ambiguous():
			if err := b.pushAmbiguous(g); err != nil {
				return err
			}
		case g.paired():
			if err := b.pushPaired(g); err != nil {
				return err
			}
		default:
			b.push(u)
		}
		b.emitted[g] = true
	}
	b.appendRest(b.lm.head, b.lm.headGroup)
	return nil
}

// appendRest emits the first element of every group not yet emitted.
func (b *listBuilder) appendRest(elems []any, groups []*entityGroup) {
	for i, v := range elems {
		if g := groups[i]; !b.emitted[g] {
			b.push(v)
			b.emitted[g] = true
		}
	}
}

// updateConflictOnHeadDelete follows update's list. Entities head deleted but
// update still carries are kept and reported as REMOVE_FIELD conflicts.
// Entities only head inserted are appended; entities update deleted are gone.
// Update elements with no head counterpart are all kept, duplicates included.
func (b *listBuilder) updateConflictOnHeadDelete() error {
	for i, u := range b.lm.update {
		g := b.lm.updateGroup[i]
		switch {
		case len(g.head) == 0:
			if len(g.root) > 0 {
				if err := b.run.conflict(Conflict{Path: b.next(), Kind: RemoveField, Value: u}); err != nil {
					return err
				}
			}
			b.push(u)
		case b.emitted[g]:
		case g.ambiguous():
			if err := b.pushAmbiguous(g); err != nil {
				return err
			}
		case g.paired():
			if err := b.pushPaired(g); err != nil {
				return err
			}
		default:
			b.push(u)
		}
		b.emitted[g] = true
	}
	for i, h := range b.lm.head {
		g := b.lm.headGroup[i]
		if b.emitted[g] || len(g.root) > 0 {
			continue
		}
		b.push(h)
		b.emitted[g] = true
	}
	return nil
}

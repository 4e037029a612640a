package compoundfiles

import "math/bits"

// Red-black tree maintenance over the sibling edges of one storage's
// child tree. Nodes are DirIds; NO_STREAM is the black nil leaf. Parent
// pointers are not stored on disk, so each operation rebuilds them for
// the affected subtree before rebalancing.

type treeOp struct {
	d       *Directory
	storage uint32
	parent  map[uint32]uint32
}

func (d *Directory) newTreeOp(storage uint32) *treeOp {
	t := &treeOp{d: d, storage: storage, parent: make(map[uint32]uint32)}
	root := d.entry(storage).Child
	if root != NO_STREAM {
		t.parent[root] = NO_STREAM
		stack := []uint32{root}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			entry := d.entry(id)
			if entry.LeftSibling != NO_STREAM {
				t.parent[entry.LeftSibling] = id
				stack = append(stack, entry.LeftSibling)
			}
			if entry.RightSibling != NO_STREAM {
				t.parent[entry.RightSibling] = id
				stack = append(stack, entry.RightSibling)
			}
		}
	}
	return t
}

func (d *Directory) colorOf(id uint32) Color {
	if id == NO_STREAM {
		return Black
	}
	return d.entry(id).Color
}

func (d *Directory) setColor(id uint32, c Color) {
	if id != NO_STREAM {
		d.entry(id).Color = c
	}
}

func (d *Directory) leftOf(id uint32) uint32 {
	if id == NO_STREAM {
		return NO_STREAM
	}
	return d.entry(id).LeftSibling
}

func (d *Directory) rightOf(id uint32) uint32 {
	if id == NO_STREAM {
		return NO_STREAM
	}
	return d.entry(id).RightSibling
}

func (d *Directory) setLeft(id, v uint32)  { d.entry(id).LeftSibling = v }
func (d *Directory) setRight(id, v uint32) { d.entry(id).RightSibling = v }

func (t *treeOp) rootId() uint32 {
	return t.d.entry(t.storage).Child
}

func (t *treeOp) setRoot(id uint32) {
	t.d.entry(t.storage).Child = id
	if id != NO_STREAM {
		t.parent[id] = NO_STREAM
	}
}

func (t *treeOp) parentOf(id uint32) uint32 {
	if p, ok := t.parent[id]; ok {
		return p
	}
	return NO_STREAM
}

func (t *treeOp) leftRotate(x uint32) {
	d := t.d
	y := d.rightOf(x)
	d.setRight(x, d.leftOf(y))
	if d.leftOf(y) != NO_STREAM {
		t.parent[d.leftOf(y)] = x
	}
	px := t.parentOf(x)
	t.parent[y] = px
	if px == NO_STREAM {
		t.setRoot(y)
	} else if x == d.leftOf(px) {
		d.setLeft(px, y)
	} else {
		d.setRight(px, y)
	}
	d.setLeft(y, x)
	t.parent[x] = y
}

func (t *treeOp) rightRotate(x uint32) {
	d := t.d
	y := d.leftOf(x)
	d.setLeft(x, d.rightOf(y))
	if d.rightOf(y) != NO_STREAM {
		t.parent[d.rightOf(y)] = x
	}
	px := t.parentOf(x)
	t.parent[y] = px
	if px == NO_STREAM {
		t.setRoot(y)
	} else if x == d.rightOf(px) {
		d.setRight(px, y)
	} else {
		d.setLeft(px, y)
	}
	d.setRight(y, x)
	t.parent[x] = y
}

// insertChild runs a BST insert of id into the storage's child tree and
// restores the red-black properties.
func (d *Directory) insertChild(storage, id uint32) {
	t := d.newTreeOp(storage)
	name := d.entry(id).Name

	y := NO_STREAM
	x := t.rootId()
	less := false
	for x != NO_STREAM {
		y = x
		less = CompareNames(name, d.entry(x).Name) == OrderLess
		if less {
			x = d.leftOf(x)
		} else {
			x = d.rightOf(x)
		}
	}

	d.setLeft(id, NO_STREAM)
	d.setRight(id, NO_STREAM)
	d.setColor(id, Red)
	t.parent[id] = y
	if y == NO_STREAM {
		t.setRoot(id)
	} else if less {
		d.setLeft(y, id)
	} else {
		d.setRight(y, id)
	}

	t.fixInsert(id)
	d.setColor(t.rootId(), Black)
}

func (t *treeOp) fixInsert(k uint32) {
	d := t.d
	for {
		p := t.parentOf(k)
		if p == NO_STREAM || d.colorOf(p) != Red {
			break
		}
		g := t.parentOf(p)
		if g == NO_STREAM {
			break
		}
		if p == d.rightOf(g) {
			u := d.leftOf(g)
			if d.colorOf(u) == Red {
				d.setColor(u, Black)
				d.setColor(p, Black)
				d.setColor(g, Red)
				k = g
			} else {
				if k == d.leftOf(p) {
					k = p
					t.rightRotate(k)
					p = t.parentOf(k)
					g = t.parentOf(p)
				}
				d.setColor(p, Black)
				d.setColor(g, Red)
				t.leftRotate(g)
			}
		} else {
			u := d.rightOf(g)
			if d.colorOf(u) == Red {
				d.setColor(u, Black)
				d.setColor(p, Black)
				d.setColor(g, Red)
				k = g
			} else {
				if k == d.rightOf(p) {
					k = p
					t.leftRotate(k)
					p = t.parentOf(k)
					g = t.parentOf(p)
				}
				d.setColor(p, Black)
				d.setColor(g, Red)
				t.rightRotate(g)
			}
		}
		if k == t.rootId() {
			break
		}
	}
}

func (t *treeOp) transplant(u, v uint32) {
	d := t.d
	pu := t.parentOf(u)
	if pu == NO_STREAM {
		t.setRoot(v)
	} else if u == d.leftOf(pu) {
		d.setLeft(pu, v)
	} else {
		d.setRight(pu, v)
	}
	if v != NO_STREAM {
		t.parent[v] = pu
	}
}

func (d *Directory) minimumOf(id uint32) uint32 {
	for d.leftOf(id) != NO_STREAM {
		id = d.leftOf(id)
	}
	return id
}

// removeChild unlinks z from the storage's child tree with successor
// replacement and restores the red-black properties. z's own edges are
// cleared; its slot and chain are the caller's concern.
func (d *Directory) removeChild(storage, z uint32) {
	t := d.newTreeOp(storage)

	y := z
	yColor := d.colorOf(y)
	var x, xParent uint32

	if d.leftOf(z) == NO_STREAM {
		x = d.rightOf(z)
		xParent = t.parentOf(z)
		t.transplant(z, x)
	} else if d.rightOf(z) == NO_STREAM {
		x = d.leftOf(z)
		xParent = t.parentOf(z)
		t.transplant(z, x)
	} else {
		y = d.minimumOf(d.rightOf(z))
		yColor = d.colorOf(y)
		x = d.rightOf(y)
		if t.parentOf(y) == z {
			xParent = y
			if x != NO_STREAM {
				t.parent[x] = y
			}
		} else {
			xParent = t.parentOf(y)
			t.transplant(y, x)
			d.setRight(y, d.rightOf(z))
			t.parent[d.rightOf(y)] = y
		}
		t.transplant(z, y)
		d.setLeft(y, d.leftOf(z))
		if d.leftOf(y) != NO_STREAM {
			t.parent[d.leftOf(y)] = y
		}
		d.setColor(y, d.colorOf(z))
	}

	if yColor == Black {
		t.fixDelete(x, xParent)
	}

	d.setLeft(z, NO_STREAM)
	d.setRight(z, NO_STREAM)
	d.setColor(z, Black)
	d.setColor(t.rootId(), Black)
}

func (t *treeOp) fixDelete(x, xParent uint32) {
	d := t.d
	for x != t.rootId() && d.colorOf(x) == Black {
		if xParent == NO_STREAM {
			break
		}
		if x == d.leftOf(xParent) {
			w := d.rightOf(xParent)
			if d.colorOf(w) == Red {
				d.setColor(w, Black)
				d.setColor(xParent, Red)
				t.leftRotate(xParent)
				w = d.rightOf(xParent)
			}
			if d.colorOf(d.leftOf(w)) == Black && d.colorOf(d.rightOf(w)) == Black {
				d.setColor(w, Red)
				x = xParent
				xParent = t.parentOf(x)
			} else {
				if d.colorOf(d.rightOf(w)) == Black {
					d.setColor(d.leftOf(w), Black)
					d.setColor(w, Red)
					t.rightRotate(w)
					w = d.rightOf(xParent)
				}
				d.setColor(w, d.colorOf(xParent))
				d.setColor(xParent, Black)
				d.setColor(d.rightOf(w), Black)
				t.leftRotate(xParent)
				x = t.rootId()
				break
			}
		} else {
			w := d.leftOf(xParent)
			if d.colorOf(w) == Red {
				d.setColor(w, Black)
				d.setColor(xParent, Red)
				t.rightRotate(xParent)
				w = d.leftOf(xParent)
			}
			if d.colorOf(d.rightOf(w)) == Black && d.colorOf(d.leftOf(w)) == Black {
				d.setColor(w, Red)
				x = xParent
				xParent = t.parentOf(x)
			} else {
				if d.colorOf(d.leftOf(w)) == Black {
					d.setColor(d.rightOf(w), Black)
					d.setColor(w, Red)
					t.leftRotate(w)
					w = d.leftOf(xParent)
				}
				d.setColor(w, d.colorOf(xParent))
				d.setColor(xParent, Black)
				d.setColor(d.leftOf(w), Black)
				t.rightRotate(xParent)
				x = t.rootId()
				break
			}
		}
	}
	d.setColor(x, Black)
}

// checkTree verifies BST order and red-black properties of a storage's
// child tree.
func (d *Directory) checkTree(storage uint32) (orderOK, colorsOK bool) {
	ids := d.InOrder(storage)
	orderOK = true
	for i := 1; i < len(ids); i++ {
		if CompareNames(d.entry(ids[i-1]).Name, d.entry(ids[i]).Name) != OrderLess {
			orderOK = false
			break
		}
	}

	var blackHeight func(id uint32) (int, bool)
	blackHeight = func(id uint32) (int, bool) {
		if id == NO_STREAM {
			return 1, true
		}
		lh, lok := blackHeight(d.leftOf(id))
		rh, rok := blackHeight(d.rightOf(id))
		ok := lok && rok && lh == rh
		if d.colorOf(id) == Red &&
			(d.colorOf(d.leftOf(id)) == Red || d.colorOf(d.rightOf(id)) == Red) {
			ok = false
		}
		h := lh
		if d.colorOf(id) == Black {
			h++
		}
		return h, ok
	}

	root := d.entry(storage).Child
	_, colorsOK = blackHeight(root)
	if root != NO_STREAM && d.colorOf(root) != Black {
		colorsOK = false
	}
	return orderOK, colorsOK
}

// repaintStorage rebuilds the storage's child tree from its in-order
// node list into a height-balanced red-black tree. Used on load when the
// on-disk coloring is inconsistent but the BST order is sound.
func (d *Directory) repaintStorage(storage uint32) {
	ids := d.InOrder(storage)
	if len(ids) == 0 {
		d.entry(storage).Child = NO_STREAM
		return
	}
	maxDepth := bits.Len(uint(len(ids))) - 1

	var build func(ids []uint32, depth int) uint32
	build = func(ids []uint32, depth int) uint32 {
		if len(ids) == 0 {
			return NO_STREAM
		}
		mid := len(ids) / 2
		id := ids[mid]
		d.setLeft(id, build(ids[:mid], depth+1))
		d.setRight(id, build(ids[mid+1:], depth+1))
		if depth == maxDepth {
			d.setColor(id, Red)
		} else {
			d.setColor(id, Black)
		}
		return id
	}

	root := build(ids, 0)
	d.setColor(root, Black)
	d.entry(storage).Child = root
}

package value

import mbits "math/bits"

// hamtNode is the Hash Array Mapped Trie node shared by Map and (via Map)
// Set, grounded on the teacher's evaluator/persistent_map.go HAMT.
type hamtNode struct {
	bitmap uint32
	// each populated slot holds either a *hamtEntry or a *hamtNode
	// (or, on hash collision, a *hamtCollision).
	slots []interface{}
}

type hamtEntry struct {
	hash  uint32
	key   Value
	val   Value
}

type hamtCollision struct {
	hash    uint32
	entries []*hamtEntry
}

func hamtHash(v Value) uint32 { return elemHash(v) }

func popcount(x uint32) int { return mbits.OnesCount32(x) }

func (n *hamtNode) get(hash uint32, key Value, shift uint) (Value, bool) {
	if n == nil {
		return nil, false
	}
	bit := uint32(1) << ((hash >> shift) & mask)
	if n.bitmap&bit == 0 {
		return nil, false
	}
	idx := popcount(n.bitmap & (bit - 1))
	switch child := n.slots[idx].(type) {
	case *hamtEntry:
		if child.hash == hash && Equal(child.key, key) {
			return child.val, true
		}
		return nil, false
	case *hamtCollision:
		if child.hash != hash {
			return nil, false
		}
		for _, e := range child.entries {
			if Equal(e.key, key) {
				return e.val, true
			}
		}
		return nil, false
	case *hamtNode:
		return child.get(hash, key, shift+bits)
	}
	return nil, false
}

// put returns a new root with key->val inserted, plus whether this
// insertion grew the map (false if it only replaced an existing key).
func (n *hamtNode) put(hash uint32, key, val Value, shift uint) (*hamtNode, bool) {
	bit := uint32(1) << ((hash >> shift) & mask)
	if n == nil {
		return &hamtNode{bitmap: bit, slots: []interface{}{&hamtEntry{hash: hash, key: key, val: val}}}, true
	}
	idx := popcount(n.bitmap & (bit - 1))
	if n.bitmap&bit == 0 {
		newSlots := make([]interface{}, len(n.slots)+1)
		copy(newSlots, n.slots[:idx])
		newSlots[idx] = &hamtEntry{hash: hash, key: key, val: val}
		copy(newSlots[idx+1:], n.slots[idx:])
		return &hamtNode{bitmap: n.bitmap | bit, slots: newSlots}, true
	}

	newSlots := make([]interface{}, len(n.slots))
	copy(newSlots, n.slots)
	var added bool
	switch child := n.slots[idx].(type) {
	case *hamtEntry:
		if child.hash == hash {
			if Equal(child.key, key) {
				newSlots[idx] = &hamtEntry{hash: hash, key: key, val: val}
				added = false
			} else {
				newSlots[idx] = &hamtCollision{hash: hash, entries: []*hamtEntry{child, {hash: hash, key: key, val: val}}}
				added = true
			}
		} else {
			sub, _ := (&hamtNode{}).put(child.hash, child.key, child.val, shift+bits)
			sub, added = sub.put(hash, key, val, shift+bits)
			newSlots[idx] = sub
		}
	case *hamtCollision:
		if child.hash == hash {
			entries := make([]*hamtEntry, 0, len(child.entries)+1)
			replaced := false
			for _, e := range child.entries {
				if Equal(e.key, key) {
					entries = append(entries, &hamtEntry{hash: hash, key: key, val: val})
					replaced = true
				} else {
					entries = append(entries, e)
				}
			}
			if !replaced {
				entries = append(entries, &hamtEntry{hash: hash, key: key, val: val})
				added = true
			}
			newSlots[idx] = &hamtCollision{hash: hash, entries: entries}
		} else {
			var sub *hamtNode
			for _, e := range child.entries {
				sub, _ = sub.put(e.hash, e.key, e.val, shift+bits)
			}
			sub, added = sub.put(hash, key, val, shift+bits)
			newSlots[idx] = sub
		}
	case *hamtNode:
		var sub *hamtNode
		sub, added = child.put(hash, key, val, shift+bits)
		newSlots[idx] = sub
	}
	return &hamtNode{bitmap: n.bitmap, slots: newSlots}, added
}

func (n *hamtNode) remove(hash uint32, key Value, shift uint) (*hamtNode, bool) {
	if n == nil {
		return nil, false
	}
	bit := uint32(1) << ((hash >> shift) & mask)
	if n.bitmap&bit == 0 {
		return n, false
	}
	idx := popcount(n.bitmap & (bit - 1))
	switch child := n.slots[idx].(type) {
	case *hamtEntry:
		if child.hash != hash || !Equal(child.key, key) {
			return n, false
		}
		newSlots := make([]interface{}, len(n.slots)-1)
		copy(newSlots, n.slots[:idx])
		copy(newSlots[idx:], n.slots[idx+1:])
		return &hamtNode{bitmap: n.bitmap &^ bit, slots: newSlots}, true
	case *hamtCollision:
		if child.hash != hash {
			return n, false
		}
		entries := make([]*hamtEntry, 0, len(child.entries))
		removed := false
		for _, e := range child.entries {
			if Equal(e.key, key) {
				removed = true
				continue
			}
			entries = append(entries, e)
		}
		if !removed {
			return n, false
		}
		newSlots := make([]interface{}, len(n.slots))
		copy(newSlots, n.slots)
		if len(entries) == 1 {
			newSlots[idx] = entries[0]
		} else {
			newSlots[idx] = &hamtCollision{hash: hash, entries: entries}
		}
		return &hamtNode{bitmap: n.bitmap, slots: newSlots}, true
	case *hamtNode:
		newChild, ok := child.remove(hash, key, shift+bits)
		if !ok {
			return n, false
		}
		newSlots := make([]interface{}, len(n.slots))
		copy(newSlots, n.slots)
		if newChild == nil || len(newChild.slots) == 0 {
			newSlots = append(newSlots[:idx], newSlots[idx+1:]...)
			return &hamtNode{bitmap: n.bitmap &^ bit, slots: newSlots}, true
		}
		newSlots[idx] = newChild
		return &hamtNode{bitmap: n.bitmap, slots: newSlots}, true
	}
	return n, false
}

// walk invokes fn for every entry in the node, depth first.
func (n *hamtNode) walk(fn func(k, v Value)) {
	if n == nil {
		return
	}
	for _, s := range n.slots {
		switch c := s.(type) {
		case *hamtEntry:
			fn(c.key, c.val)
		case *hamtCollision:
			for _, e := range c.entries {
				fn(e.key, e.val)
			}
		case *hamtNode:
			c.walk(fn)
		}
	}
}

package node

import (
	"fmt"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// Slot is a local, process-lifetime integer index into an Arena.
// Cross-node references on the wire always use PermanentId instead;
// Slot exists purely so in-memory traversal avoids pointer cycles
// (§3 "Lifecycle", §9).
type Slot int

// noParent marks the root's parent slot.
const noParent Slot = -1

// Arena owns every Node in a drive's graph by stable integer slot,
// alongside a PermanentId -> Slot index, so the node graph can contain
// diamonds or (in principle) cycles without Go ownership hazards
// (§3 "Lifecycle", §9).
type Arena struct {
	slots    []*Node
	free     []Slot
	byPermId map[codec.PermanentId]Slot
	root     Slot
}

// NewArena constructs an empty Arena with no root; callers insert the
// root via Insert and then call SetRoot.
func NewArena() *Arena {
	return &Arena{byPermId: make(map[codec.PermanentId]Slot), root: noParent}
}

// Insert adds n to the arena, assigning it a fresh slot and indexing it
// by permanent id.
func (a *Arena) Insert(n *Node) Slot {
	var slot Slot
	if len(a.free) > 0 {
		slot = a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		a.slots[slot] = n
	} else {
		slot = Slot(len(a.slots))
		a.slots = append(a.slots, n)
	}
	n.id = slot
	a.byPermId[n.permanentId] = slot
	return slot
}

// SetRoot marks slot as the arena's root node.
func (a *Arena) SetRoot(slot Slot) { a.root = slot }

// Root returns the arena's root slot.
func (a *Arena) Root() Slot { return a.root }

// Get returns the node at slot.
func (a *Arena) Get(slot Slot) (*Node, error) {
	if int(slot) < 0 || int(slot) >= len(a.slots) || a.slots[slot] == nil {
		return nil, fmt.Errorf("node: slot %d is not populated", slot)
	}
	return a.slots[slot], nil
}

// Resolve maps a PermanentId to its current slot.
func (a *Arena) Resolve(id codec.PermanentId) (Slot, bool) {
	slot, ok := a.byPermId[id]
	return slot, ok
}

// Lookup resolves a PermanentId directly to its Node.
func (a *Arena) Lookup(id codec.PermanentId) (*Node, error) {
	slot, ok := a.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("node: no node with permanent id %x", id)
	}
	return a.Get(slot)
}

// Remove detaches slot from the arena, freeing it for reuse and
// dropping its permanent-id index entry. It does not touch the parent's
// child map; callers detach from the parent first (§3 "Lifecycle").
func (a *Arena) Remove(slot Slot) error {
	n, err := a.Get(slot)
	if err != nil {
		return err
	}
	delete(a.byPermId, n.permanentId)
	a.slots[slot] = nil
	a.free = append(a.free, slot)
	return nil
}

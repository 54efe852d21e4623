package node

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// ChildEntry is one child-map value: the child's permanent id plus its
// most recently observed CID and serialized size, cached so the parent
// can summarize its subtree without re-walking it (§3).
type ChildEntry struct {
	PermanentId codec.PermanentId
	Cid         codec.Cid
	Size        uint64
}

// ChildMap is an ordered NodeName -> ChildEntry map (§3). Names are
// unique within a ChildMap (invariant 4); encoding order is ascending by
// permanent id (invariant 6), not by name.
type ChildMap struct {
	entries map[string]childMapPair
}

type childMapPair struct {
	name  codec.NodeName
	entry ChildEntry
}

// NewChildMap constructs an empty ChildMap.
func NewChildMap() *ChildMap {
	return &ChildMap{entries: make(map[string]childMapPair)}
}

// Len returns the number of children.
func (m *ChildMap) Len() int { return len(m.entries) }

// Get looks up a child by name.
func (m *ChildMap) Get(name codec.NodeName) (ChildEntry, bool) {
	p, ok := m.entries[name.String()]
	return p.entry, ok
}

// Put inserts or replaces a child-map entry under name.
func (m *ChildMap) Put(name codec.NodeName, entry ChildEntry) {
	m.entries[name.String()] = childMapPair{name: name, entry: entry}
}

// Delete removes a child-map entry by name.
func (m *ChildMap) Delete(name codec.NodeName) {
	delete(m.entries, name.String())
}

// ChildMapItem pairs a name with its entry, for iteration.
type ChildMapItem struct {
	Name  codec.NodeName
	Entry ChildEntry
}

// ItemsByPermanentId returns all entries ordered ascending by permanent
// id, the deterministic encoding order (§3 invariant 6).
func (m *ChildMap) ItemsByPermanentId() []ChildMapItem {
	items := make([]ChildMapItem, 0, len(m.entries))
	for _, p := range m.entries {
		items = append(items, ChildMapItem{Name: p.name, Entry: p.entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Entry.PermanentId.Less(items[j].Entry.PermanentId)
	})
	return items
}

// ItemsByName returns all entries ordered by name, the presentation
// order `ls` callers expect.
func (m *ChildMap) ItemsByName() []ChildMapItem {
	items := make([]ChildMapItem, 0, len(m.entries))
	for _, p := range m.entries {
		items = append(items, ChildMapItem{Name: p.name, Entry: p.entry})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name.Less(items[j].Name) })
	return items
}

// Encode writes the child count (u16) followed by (name, permanent_id,
// cid, size) tuples in ascending permanent-id order (§3 invariant 6,
// §4.4).
func (m *ChildMap) Encode(dst []byte) ([]byte, error) {
	if len(m.entries) > 0xFFFF {
		return nil, fmt.Errorf("node: child map has %d entries, exceeds u16 max", len(m.entries))
	}
	var count [2]byte
	binary.LittleEndian.PutUint16(count[:], uint16(len(m.entries)))
	dst = append(dst, count[:]...)

	for _, item := range m.ItemsByPermanentId() {
		dst = item.Name.Encode(dst)
		dst = item.Entry.PermanentId.Encode(dst)
		dst = item.Entry.Cid.Encode(dst)
		var size [8]byte
		binary.LittleEndian.PutUint64(size[:], item.Entry.Size)
		dst = append(dst, size[:]...)
	}
	return dst, nil
}

// ParseChildMap reads a child map from buf.
func ParseChildMap(buf []byte) ([]byte, *ChildMap, error) {
	if len(buf) < 2 {
		return buf, nil, codec.NeedMore(buf, 2)
	}
	count := int(binary.LittleEndian.Uint16(buf[:2]))
	rest := buf[2:]

	m := NewChildMap()
	for i := 0; i < count; i++ {
		next, name, err := codec.ParseNodeName(rest)
		if err != nil {
			return buf, nil, err
		}
		rest = next

		next, permId, err := codec.ParsePermanentId(rest)
		if err != nil {
			return buf, nil, err
		}
		rest = next

		next, cid, err := codec.ParseCid(rest)
		if err != nil {
			return buf, nil, err
		}
		rest = next

		if len(rest) < 8 {
			return buf, nil, codec.NeedMore(rest, 8)
		}
		size := binary.LittleEndian.Uint64(rest[:8])
		rest = rest[8:]

		if _, exists := m.Get(name); exists {
			return buf, nil, fmt.Errorf("node: duplicate child name %q", name.String())
		}
		m.Put(name, ChildEntry{PermanentId: permId, Cid: cid, Size: size})
	}
	return rest, m, nil
}

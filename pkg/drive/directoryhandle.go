package drive

import (
	"context"
	"io"
	"strings"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/node"
)

// DirectoryHandle is a cursor into a Drive's node graph: a shared
// pointer to the drive's inner state plus a current working node,
// itself an arena slot rather than a pointer (§3 "Deep cloning vs.
// shared inner state").
type DirectoryHandle struct {
	drive *Drive
	slot  node.Slot
}

// Slot returns the handle's current working-directory slot.
func (h *DirectoryHandle) Slot() node.Slot { return h.slot }

// walkResult is the outcome of resolving a path against the node graph
// (§3: "FoundNode(slot)" or "MissingComponent").
type walkResult struct {
	found       bool
	slot        node.Slot
	workingDir  node.Slot
	missingName string
	remaining   []string
}

// walk resolves path against start, one component at a time. "." stays
// in place; ".." moves to the parent (a no-op at the root). The first
// component with no matching child map entry yields a MissingComponent
// result instead of an error; every other failure (a non-directory
// component, a corrupt child map entry) is a hard error (§3, §4.4).
func (d *Drive) walk(start node.Slot, path []string) (walkResult, error) {
	cur := start
	for i, comp := range path {
		switch comp {
		case ".":
			continue
		case "..":
			n, err := d.arena.Get(cur)
			if err != nil {
				return walkResult{}, err
			}
			if parent, ok := n.ParentSlot(); ok {
				cur = parent
			}
			continue
		}

		n, err := d.arena.Get(cur)
		if err != nil {
			return walkResult{}, err
		}
		if !n.IsDirectory() {
			return walkResult{}, NewNotADirectoryError(path[:i])
		}

		name, err := codec.NewName(comp)
		if err != nil {
			return walkResult{workingDir: cur, missingName: comp, remaining: path[i+1:]}, nil
		}
		entry, ok := n.Children().Get(name)
		if !ok {
			return walkResult{workingDir: cur, missingName: comp, remaining: path[i+1:]}, nil
		}
		childSlot, ok := d.arena.Resolve(entry.PermanentId)
		if !ok {
			return walkResult{}, NewInternalCorruptionError(int(cur), "child map entry does not resolve to a node")
		}
		cur = childSlot
	}
	return walkResult{found: true, slot: cur}, nil
}

// validateComponentName checks a single path component intended to
// become a new node's name, distinguishing the three specific failure
// reasons §8's scenarios name: an empty component, a literal traversal
// sentinel or embedded separator, and an over-length component.
func validateComponentName(path []string, comp string) (codec.NodeName, error) {
	if comp == "" {
		return codec.NodeName{}, NewNameIsEmptyError(path)
	}
	if comp == "." || comp == ".." || strings.ContainsRune(comp, '/') {
		return codec.NodeName{}, NewReservedDirectoryTraversalError(path)
	}
	if len(comp) > codec.MaxNameLength {
		return codec.NodeName{}, NewTooLongError(path, len(comp))
	}
	name, err := codec.NewName(comp)
	if err != nil {
		return codec.NodeName{}, NewInternalCorruptionError(-1, err.Error())
	}
	return name, nil
}

func (d *Drive) actorId() codec.ActorId {
	return d.signingKey.VerifyingKey().ActorId()
}

// Mkdir walks path as far as it resolves. Landing on an existing
// directory succeeds idempotently; landing on a non-directory fails
// with NotADirectory. Past that point, a missing suffix is created one
// directory at a time, threading each new directory in as the next
// step's working directory, unless recursive is false and more than
// the final component is missing, which fails with PathNotFound
// (§4.4 `mkdir(path, recursive)`).
func (h *DirectoryHandle) Mkdir(path []string, recursive bool) (*DirectoryHandle, error) {
	d := h.drive
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(path) == 0 {
		return nil, NewNameIsEmptyError(path)
	}

	cur := h.slot
	remaining := path
	for {
		result, err := d.walk(cur, remaining)
		if err != nil {
			return nil, err
		}
		if result.found {
			n, err := d.arena.Get(result.slot)
			if err != nil {
				return nil, err
			}
			if !n.IsDirectory() {
				return nil, NewNotADirectoryError(path)
			}
			return &DirectoryHandle{drive: d, slot: result.slot}, nil
		}

		if !recursive && len(result.remaining) > 0 {
			return nil, NewPathNotFoundError(path)
		}

		name, err := validateComponentName(path, result.missingName)
		if err != nil {
			return nil, err
		}
		parent, err := d.arena.Get(result.workingDir)
		if err != nil {
			return nil, err
		}
		if !parent.IsDirectory() {
			return nil, NewParentMustBeDirectoryError(path)
		}

		dir, err := node.NewDirectory(d.actorId(), name, nowMillis())
		if err != nil {
			return nil, err
		}
		dir.SetParent(result.workingDir)
		slot := d.arena.Insert(dir)
		parent.Children().Put(name, node.ChildEntry{PermanentId: dir.PermanentId()})
		parent.Bump()

		if len(result.remaining) == 0 {
			return &DirectoryHandle{drive: d, slot: slot}, nil
		}
		cur = slot
		remaining = result.remaining
	}
}

// resolveParentFrom is resolveParent, but walking from start instead of
// the drive root, for handles not positioned at root.
func (d *Drive) resolveParentFrom(start node.Slot, path []string) (node.Slot, node.Slot, codec.NodeName, error) {
	if len(path) == 0 {
		return 0, 0, codec.NodeName{}, NewNameIsEmptyError(path)
	}
	final := path[len(path)-1]
	name, err := validateComponentName(path, final)
	if err != nil {
		return 0, 0, codec.NodeName{}, err
	}

	result, err := d.walk(start, path[:len(path)-1])
	if err != nil {
		return 0, 0, codec.NodeName{}, err
	}
	if !result.found {
		return 0, 0, codec.NodeName{}, NewPathNotFoundError(path)
	}
	parent, err := d.arena.Get(result.slot)
	if err != nil {
		return 0, 0, codec.NodeName{}, err
	}
	if !parent.IsDirectory() {
		return 0, 0, codec.NodeName{}, NewParentMustBeDirectoryError(path)
	}
	return start, result.slot, name, nil
}

// resolveOrCreateParentFrom is resolveParentFrom, but creates the
// immediate parent directory when it alone is missing, matching
// §4.4 `write`'s "creates parent directories if the final component
// is missing" — a single directory, not mkdir's recursive chain,
// since write takes no recursive flag.
func (d *Drive) resolveOrCreateParentFrom(start node.Slot, path []string) (node.Slot, codec.NodeName, error) {
	if len(path) == 0 {
		return 0, codec.NodeName{}, NewNameIsEmptyError(path)
	}
	name, err := validateComponentName(path, path[len(path)-1])
	if err != nil {
		return 0, codec.NodeName{}, err
	}

	result, err := d.walk(start, path[:len(path)-1])
	if err != nil {
		return 0, codec.NodeName{}, err
	}

	parentSlot := result.slot
	if !result.found {
		if len(result.remaining) > 0 {
			return 0, codec.NodeName{}, NewPathNotFoundError(path)
		}
		missingName, err := validateComponentName(path, result.missingName)
		if err != nil {
			return 0, codec.NodeName{}, err
		}
		workingDir, err := d.arena.Get(result.workingDir)
		if err != nil {
			return 0, codec.NodeName{}, err
		}
		if !workingDir.IsDirectory() {
			return 0, codec.NodeName{}, NewParentMustBeDirectoryError(path)
		}

		dir, err := node.NewDirectory(d.actorId(), missingName, nowMillis())
		if err != nil {
			return 0, codec.NodeName{}, err
		}
		dir.SetParent(result.workingDir)
		parentSlot = d.arena.Insert(dir)
		workingDir.Children().Put(missingName, node.ChildEntry{PermanentId: dir.PermanentId()})
		workingDir.Bump()
	}

	parent, err := d.arena.Get(parentSlot)
	if err != nil {
		return 0, codec.NodeName{}, err
	}
	if !parent.IsDirectory() {
		return 0, codec.NodeName{}, NewParentMustBeDirectoryError(path)
	}
	return parentSlot, name, nil
}

// Ls lists the children of the directory at path relative to h, ordered
// by name (§4.4).
func (h *DirectoryHandle) Ls(path []string) ([]node.ChildMapItem, error) {
	d := h.drive
	d.mu.RLock()
	defer d.mu.RUnlock()

	result, err := d.walk(h.slot, path)
	if err != nil {
		return nil, err
	}
	if !result.found {
		return nil, NewPathNotFoundError(path)
	}
	n, err := d.arena.Get(result.slot)
	if err != nil {
		return nil, err
	}
	if !n.IsDirectory() {
		return nil, NewNotADirectoryError(path)
	}
	return n.Children().ItemsByName(), nil
}

// Write creates or overwrites the file at path relative to h with data,
// encrypting it under a fresh per-file key (§4.4).
func (h *DirectoryHandle) Write(ctx context.Context, rng io.Reader, path []string, data []byte) error {
	d := h.drive
	d.mu.Lock()
	defer d.mu.Unlock()

	parentSlot, name, err := d.resolveOrCreateParentFrom(h.slot, path)
	if err != nil {
		return err
	}
	parent, err := d.arena.Get(parentSlot)
	if err != nil {
		return err
	}

	content, err := encryptFileContent(ctx, d, rng, data)
	if err != nil {
		return err
	}

	if entry, exists := parent.Children().Get(name); exists {
		slot, ok := d.arena.Resolve(entry.PermanentId)
		if !ok {
			return NewInternalCorruptionError(int(parentSlot), "child map entry does not resolve to a node")
		}
		existing, err := d.arena.Get(slot)
		if err != nil {
			return err
		}
		if existing.IsDirectory() {
			return NewExistsError(path)
		}
		if err := existing.SetContent(content, nowMillis()); err != nil {
			return err
		}
		existing.Bump()
		return nil
	}

	file, err := node.NewFile(d.actorId(), name, nowMillis())
	if err != nil {
		return err
	}
	if err := file.SetContent(content, nowMillis()); err != nil {
		return err
	}
	file.SetParent(parentSlot)
	d.arena.Insert(file)

	parent.Children().Put(name, node.ChildEntry{PermanentId: file.PermanentId()})
	parent.Bump()
	return nil
}

// Read returns the decrypted content of the file at path relative to h
// (§4.4).
func (h *DirectoryHandle) Read(ctx context.Context, path []string) ([]byte, error) {
	d := h.drive
	d.mu.RLock()
	defer d.mu.RUnlock()

	result, err := d.walk(h.slot, path)
	if err != nil {
		return nil, err
	}
	if !result.found {
		return nil, NewPathNotFoundError(path)
	}
	n, err := d.arena.Get(result.slot)
	if err != nil {
		return nil, err
	}
	if n.IsDirectory() {
		return nil, NewNotADirectoryError(path)
	}
	return decryptFileContent(ctx, d, n.Content())
}

// Mv moves the node at srcPath to dstPath, both relative to h. The
// node's permanent id and content are unchanged (§4.4, §8 "Moving a
// node does not change its permanent id").
func (h *DirectoryHandle) Mv(srcPath, dstPath []string) error {
	d := h.drive
	d.mu.Lock()
	defer d.mu.Unlock()

	srcResult, err := d.walk(h.slot, srcPath)
	if err != nil {
		return err
	}
	if !srcResult.found {
		return NewPathNotFoundError(srcPath)
	}
	n, err := d.arena.Get(srcResult.slot)
	if err != nil {
		return err
	}
	oldParentSlot, hasParent := n.ParentSlot()
	if !hasParent {
		return NewParentMustBeDirectoryError(srcPath)
	}
	oldParent, err := d.arena.Get(oldParentSlot)
	if err != nil {
		return err
	}

	_, newParentSlot, newName, err := d.resolveParentFrom(h.slot, dstPath)
	if err != nil {
		return err
	}
	newParent, err := d.arena.Get(newParentSlot)
	if err != nil {
		return err
	}
	if _, exists := newParent.Children().Get(newName); exists {
		return NewExistsError(dstPath)
	}

	oldParent.Children().Delete(n.Name())
	oldParent.Bump()

	n.Rename(newName)
	n.SetParent(newParentSlot)
	n.Bump()

	newParent.Children().Put(newName, node.ChildEntry{PermanentId: n.PermanentId()})
	newParent.Bump()
	return nil
}

// Rm removes the node at path relative to h, detaching it (and, if it
// is a directory, its whole subtree) from the arena (§4.4).
func (h *DirectoryHandle) Rm(path []string) error {
	d := h.drive
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.walk(h.slot, path)
	if err != nil {
		return err
	}
	if !result.found {
		return NewPathNotFoundError(path)
	}
	n, err := d.arena.Get(result.slot)
	if err != nil {
		return err
	}
	parentSlot, hasParent := n.ParentSlot()
	if !hasParent {
		return NewParentMustBeDirectoryError(path)
	}
	parent, err := d.arena.Get(parentSlot)
	if err != nil {
		return err
	}

	parent.Children().Delete(n.Name())
	parent.Bump()
	return d.detachSubtree(result.slot)
}

// detachSubtree removes slot and, recursively, every descendant from
// the arena. Called after a node has already been unlinked from its
// parent's child map.
func (d *Drive) detachSubtree(slot node.Slot) error {
	n, err := d.arena.Get(slot)
	if err != nil {
		return err
	}
	if n.IsDirectory() {
		for _, item := range n.Children().ItemsByPermanentId() {
			childSlot, ok := d.arena.Resolve(item.Entry.PermanentId)
			if !ok {
				continue
			}
			if err := d.detachSubtree(childSlot); err != nil {
				return err
			}
		}
	}
	return d.arena.Remove(slot)
}

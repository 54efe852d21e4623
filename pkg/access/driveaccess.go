package access

import (
	"fmt"
	"io"
	"sort"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
)

// PermissionKeys holds the three symmetric keys a live drive derives for
// an authorized actor (§3, §4.5). A zero-value AccessKey in a field the
// actor's AccessMask does not grant is never used.
type PermissionKeys struct {
	Filesystem  crypto.AccessKey
	Data        crypto.AccessKey
	Maintenance crypto.AccessKey
}

// DriveAccess maps ActorId to ActorSettings and, for live drives, holds
// the three permission keys (§4.5).
type DriveAccess struct {
	settings map[codec.ActorId]ActorSettings
	keys     PermissionKeys
}

// NewDriveAccess constructs an empty access table.
func NewDriveAccess() *DriveAccess {
	return &DriveAccess{settings: make(map[codec.ActorId]ActorSettings)}
}

// SetKeys installs the three permission keys this drive holds in memory.
func (a *DriveAccess) SetKeys(keys PermissionKeys) { a.keys = keys }

// Keys returns the permission keys currently held.
func (a *DriveAccess) Keys() PermissionKeys { return a.keys }

// Put registers or replaces an actor's settings.
func (a *DriveAccess) Put(settings ActorSettings) {
	a.settings[settings.ActorId()] = settings
}

// Remove drops an actor from the access table.
func (a *DriveAccess) Remove(id codec.ActorId) { delete(a.settings, id) }

// Get looks up an actor's settings.
func (a *DriveAccess) Get(id codec.ActorId) (ActorSettings, bool) {
	s, ok := a.settings[id]
	return s, ok
}

// Len reports the number of registered actors.
func (a *DriveAccess) Len() int { return len(a.settings) }

// Actors returns every registered actor's settings, sorted by ActorId so
// callers get a deterministic iteration order.
func (a *DriveAccess) Actors() []ActorSettings {
	out := make([]ActorSettings, 0, len(a.settings))
	for _, s := range a.settings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ActorId().Less(out[j].ActorId())
	})
	return out
}

// CanRead reports whether id is registered and its mask grants read
// access.
func (a *DriveAccess) CanRead(id codec.ActorId) bool {
	s, ok := a.settings[id]
	return ok && s.AccessMask.CanRead()
}

// CanWrite reports whether id is registered and its mask grants write
// access.
func (a *DriveAccess) CanWrite(id codec.ActorId) bool {
	s, ok := a.settings[id]
	return ok && s.AccessMask.CanWrite()
}

// BuildEscrowAndRecords produces the drive's escrow table (meta key
// wrapped per actor) and per-actor permission records (permission keys
// wrapped per actor), in the single pass a drive writer needs to
// construct a fresh encrypted header (§4.5).
func (a *DriveAccess) BuildEscrowAndRecords(rng io.Reader, metaKey MetaKey) (EscrowTable, []PermissionRecord, error) {
	actors := a.Actors()
	settingsList := make([]ActorSettings, len(actors))
	copy(settingsList, actors)

	escrow, err := BuildEscrowTable(rng, metaKey, settingsList)
	if err != nil {
		return EscrowTable{}, nil, err
	}

	records := make([]PermissionRecord, 0, len(actors))
	for _, s := range actors {
		rec, err := BuildPermissionRecord(rng, s, a.keys)
		if err != nil {
			return EscrowTable{}, nil, fmt.Errorf("access: build permission record for actor: %w", err)
		}
		records = append(records, rec)
	}
	return escrow, records, nil
}

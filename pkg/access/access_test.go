package access

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
)

func testActor(t *testing.T, mask AccessMask, agent string) (crypto.SigningKey, ActorSettings) {
	t.Helper()
	sk, err := crypto.GenerateSigningKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	settings, err := NewActorSettings(sk.VerifyingKey(), mask, agent)
	if err != nil {
		t.Fatalf("new actor settings: %v", err)
	}
	return sk, settings
}

func TestAccessMaskEncodeParseRoundTrip(t *testing.T) {
	mask := FullAccess()
	mask.Protected = true
	mask.Owner = true

	var buf []byte
	buf = mask.Encode(buf)
	if len(buf) != 1 {
		t.Fatalf("encoded length = %d, want 1", len(buf))
	}

	rest, parsed, err := ParseAccessMask(buf, true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}
	if parsed != mask {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, mask)
	}
}

func TestAccessMaskCanReadWrite(t *testing.T) {
	ro := ReadOnlyAccess()
	if !ro.CanRead() {
		t.Fatal("read-only mask should grant read")
	}
	if ro.CanWrite() {
		t.Fatal("read-only mask should not grant write")
	}

	full := FullAccess()
	if !full.CanWrite() {
		t.Fatal("full mask should grant write")
	}

	full.Historical = true
	if full.CanRead() || full.CanWrite() {
		t.Fatal("historical actor should be excluded from all key checks")
	}
}

func TestAccessMaskStrictRejectsReservedBits(t *testing.T) {
	buf := []byte{maskReserved}
	if _, _, err := ParseAccessMask(buf, true); err == nil {
		t.Fatal("expected error for reserved bits under strict mode")
	}
	if _, parsed, err := ParseAccessMask(buf, false); err != nil || parsed != (AccessMask{}) {
		t.Fatalf("non-strict mode should silently drop reserved bits, got %+v, err %v", parsed, err)
	}
}

func TestActorSettingsEncodeParseRoundTrip(t *testing.T) {
	_, settings := testActor(t, FullAccess(), "banyan-cli/1.0")

	buf, err := settings.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != ActorSettingsSize {
		t.Fatalf("encoded length = %d, want %d", len(buf), ActorSettingsSize)
	}

	rest, parsed, err := ParseActorSettings(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}
	if parsed.Agent != settings.Agent {
		t.Fatalf("agent mismatch: got %q, want %q", parsed.Agent, settings.Agent)
	}
	if parsed.AccessMask != settings.AccessMask {
		t.Fatalf("mask mismatch: got %+v, want %+v", parsed.AccessMask, settings.AccessMask)
	}
	if parsed.ActorId() != settings.ActorId() {
		t.Fatal("actor id mismatch after round trip")
	}
}

func TestActorSettingsRejectsOversizedAgent(t *testing.T) {
	sk, err := crypto.GenerateSigningKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	oversized := make([]byte, AgentStringSize+1)
	if _, err := NewActorSettings(sk.VerifyingKey(), FullAccess(), string(oversized)); err == nil {
		t.Fatal("expected error for oversized agent string")
	}
}

func TestEscrowTableBuildAndUnlock(t *testing.T) {
	_, owner := testActor(t, FullAccess(), "owner")
	otherSK, other := testActor(t, ReadOnlyAccess(), "other")
	outsiderSK, err := crypto.GenerateSigningKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	metaKey, err := crypto.GenerateAccessKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate meta key: %v", err)
	}

	table, err := BuildEscrowTable(rand.Reader, metaKey, []ActorSettings{owner, other})
	if err != nil {
		t.Fatalf("build escrow table: %v", err)
	}
	for i := 1; i < len(table.Records); i++ {
		if !table.Records[i-1].KeyId.Less(table.Records[i].KeyId) && table.Records[i-1].KeyId != table.Records[i].KeyId {
			t.Fatalf("escrow records not ascending by KeyId at index %d", i)
		}
	}

	unlocked, err := table.Unlock(otherSK)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if unlocked != metaKey {
		t.Fatal("unlocked meta key does not match original")
	}

	if _, err := table.Unlock(outsiderSK); err != ErrAccessUnavailable {
		t.Fatalf("expected ErrAccessUnavailable for unregistered actor, got %v", err)
	}
}

func TestEscrowTableEncodeParseRoundTrip(t *testing.T) {
	_, a1 := testActor(t, FullAccess(), "a1")
	_, a2 := testActor(t, ReadOnlyAccess(), "a2")

	metaKey, err := crypto.GenerateAccessKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate meta key: %v", err)
	}
	table, err := BuildEscrowTable(rand.Reader, metaKey, []ActorSettings{a1, a2})
	if err != nil {
		t.Fatalf("build escrow table: %v", err)
	}

	buf, err := table.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rest, parsed, err := ParseEscrowTable(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}
	if len(parsed.Records) != 2 {
		t.Fatalf("record count = %d, want 2", len(parsed.Records))
	}
}

func TestPermissionRecordRoundTripAndUnlock(t *testing.T) {
	sk, settings := testActor(t, FullAccess(), "writer")

	keys := PermissionKeys{}
	var err error
	if keys.Filesystem, err = crypto.GenerateAccessKey(rand.Reader); err != nil {
		t.Fatalf("generate fs key: %v", err)
	}
	if keys.Data, err = crypto.GenerateAccessKey(rand.Reader); err != nil {
		t.Fatalf("generate data key: %v", err)
	}
	if keys.Maintenance, err = crypto.GenerateAccessKey(rand.Reader); err != nil {
		t.Fatalf("generate maintenance key: %v", err)
	}

	rec, err := BuildPermissionRecord(rand.Reader, settings, keys)
	if err != nil {
		t.Fatalf("build permission record: %v", err)
	}

	buf, err := rec.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rest, parsed, err := ParsePermissionRecord(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}

	derived, err := parsed.Unlock(sk)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if derived.Filesystem != keys.Filesystem || derived.Data != keys.Data || derived.Maintenance != keys.Maintenance {
		t.Fatal("derived permission keys do not match originals")
	}
}

func TestPermissionRecordZeroFilledWhenAbsent(t *testing.T) {
	sk, settings := testActor(t, ReadOnlyAccess(), "reader")

	keys := PermissionKeys{}
	var err error
	if keys.Filesystem, err = crypto.GenerateAccessKey(rand.Reader); err != nil {
		t.Fatalf("generate fs key: %v", err)
	}

	rec, err := BuildPermissionRecord(rand.Reader, settings, keys)
	if err != nil {
		t.Fatalf("build permission record: %v", err)
	}
	if rec.Data.Present || rec.Maintenance.Present {
		t.Fatal("read-only actor should not have data/maintenance key slots present")
	}

	buf, err := rec.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != ActorSettingsSize+3*keySlotSize {
		t.Fatalf("record length = %d, want %d (constant regardless of presence)", len(buf), ActorSettingsSize+3*keySlotSize)
	}

	zero := make([]byte, lockedKeySize)
	dataSlot := buf[ActorSettingsSize+keySlotSize+1 : ActorSettingsSize+2*keySlotSize]
	if !bytes.Equal(dataSlot, zero) {
		t.Fatal("absent data key slot should be zero-filled")
	}

	derived, err := parseAndUnlock(t, buf, sk)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if derived.Filesystem != keys.Filesystem {
		t.Fatal("present filesystem key should still unlock correctly")
	}
	if derived.Data != (crypto.AccessKey{}) {
		t.Fatal("absent data key should not be populated")
	}
}

func parseAndUnlock(t *testing.T, buf []byte, sk crypto.SigningKey) (PermissionKeys, error) {
	t.Helper()
	_, parsed, err := ParsePermissionRecord(buf)
	if err != nil {
		return PermissionKeys{}, err
	}
	return parsed.Unlock(sk)
}

func TestDriveAccessBuildEscrowAndRecords(t *testing.T) {
	da := NewDriveAccess()
	_, owner := testActor(t, FullAccess(), "owner")
	_, reader := testActor(t, ReadOnlyAccess(), "reader")
	da.Put(owner)
	da.Put(reader)

	keys := PermissionKeys{}
	var err error
	if keys.Filesystem, err = crypto.GenerateAccessKey(rand.Reader); err != nil {
		t.Fatalf("generate fs key: %v", err)
	}
	da.SetKeys(keys)

	metaKey, err := crypto.GenerateAccessKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate meta key: %v", err)
	}

	escrow, records, err := da.BuildEscrowAndRecords(rand.Reader, metaKey)
	if err != nil {
		t.Fatalf("build escrow and records: %v", err)
	}
	if len(escrow.Records) != 2 {
		t.Fatalf("escrow record count = %d, want 2", len(escrow.Records))
	}
	if len(records) != 2 {
		t.Fatalf("permission record count = %d, want 2", len(records))
	}

	if !da.CanRead(owner.ActorId()) || !da.CanWrite(owner.ActorId()) {
		t.Fatal("owner should have read and write access")
	}
	if !da.CanRead(reader.ActorId()) || da.CanWrite(reader.ActorId()) {
		t.Fatal("reader should have read but not write access")
	}
}

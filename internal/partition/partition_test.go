package partition

import (
	"encoding/hex"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrfiwd/tieredkv/internal/serializer"
)

type noopSink struct {
	calls []string
}

func (s *noopSink) Replicate(partitionID int, key string, value serializer.Value) {
	s.calls = append(s.calls, key)
}

func newTestPartition(t *testing.T, dir string, role Role, sink ReplicationSink) *Partition {
	t.Helper()
	p, err := New(0, dir, role, sink, zerolog.Nop())
	require.NoError(t, err)
	return p
}

// TestTieredRead: puts land in hot, a fifth put crosses HotStorageLimit
// and flushes, and reads keep working from the cold path afterward.
func TestTieredRead(t *testing.T) {
	dir := t.TempDir()
	p := newTestPartition(t, dir, RoleLeader, &noopSink{})

	require.NoError(t, p.Put("nama", serializer.NewString("Andi")))
	require.NoError(t, p.Put("kota", serializer.NewString("Surabaya")))
	require.NoError(t, p.Put("pekerjaan", serializer.NewString("Insinyur")))

	v, err := p.Get("nama")
	require.NoError(t, err)
	assert.Equal(t, "Andi", v.Str)
	assert.Equal(t, Hot, p.Location("nama"))

	require.NoError(t, p.Put("email", serializer.NewString("andi@example.com")))
	require.NoError(t, p.Put("status", serializer.NewString("aktif")))

	assert.Equal(t, 0, p.hot.len())
	assert.Equal(t, Cold, p.Location("nama"))

	v, err = p.Get("nama")
	require.NoError(t, err)
	assert.Equal(t, "Andi", v.Str)
}

// TestRecovery: closing and reopening a partition from the same
// directory recovers every key that was ever put.
func TestRecovery(t *testing.T) {
	dir := t.TempDir()
	p := newTestPartition(t, dir, RoleLeader, &noopSink{})

	require.NoError(t, p.Put("nama", serializer.NewString("Andi")))
	require.NoError(t, p.Put("kota", serializer.NewString("Surabaya")))
	require.NoError(t, p.Put("pekerjaan", serializer.NewString("Insinyur")))
	require.NoError(t, p.Put("email", serializer.NewString("andi@example.com")))
	require.NoError(t, p.Put("status", serializer.NewString("aktif")))
	require.NoError(t, p.Put("last_event", serializer.NewTimestamped("Login terakhir dari perangkat mobile", 1700000000)))
	require.NoError(t, p.Close())

	reopened := newTestPartition(t, dir, RoleLeader, &noopSink{})

	v, err := reopened.Get("nama")
	require.NoError(t, err)
	assert.Equal(t, "Andi", v.Str)

	v, err = reopened.Get("kota")
	require.NoError(t, err)
	assert.Equal(t, "Surabaya", v.Str)

	v, err = reopened.Get("last_event")
	require.NoError(t, err)
	assert.Equal(t, serializer.KindTimestamped, v.Kind)
	assert.Equal(t, "Login terakhir dari perangkat mobile", v.Data)
	assert.Equal(t, uint64(1700000000), v.Timestamp)
}

func TestHotColdExclusivity(t *testing.T) {
	dir := t.TempDir()
	p := newTestPartition(t, dir, RoleLeader, &noopSink{})

	assert.Equal(t, NotFound, p.Location("missing"))

	require.NoError(t, p.Put("k", serializer.NewString("v")))
	assert.Equal(t, Hot, p.Location("k"))

	for i := 0; i < HotStorageLimit; i++ {
		require.NoError(t, p.Put("filler", serializer.NewString("x")))
	}
	require.NoError(t, p.Flush())
	assert.Equal(t, Cold, p.Location("k"))
}

func TestFlushMonotonicity(t *testing.T) {
	dir := t.TempDir()
	p := newTestPartition(t, dir, RoleLeader, &noopSink{})

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Put(string(rune('a'+i)), serializer.NewString("v")))
	}
	require.NoError(t, p.Flush())
	assert.Equal(t, 0, p.hot.len())

	for i := 0; i < 3; i++ {
		v, err := p.Get(string(rune('a' + i)))
		require.NoError(t, err)
		assert.Equal(t, "v", v.Str)
	}
}

func TestFlush_EmptyIsNoop(t *testing.T) {
	dir := t.TempDir()
	p := newTestPartition(t, dir, RoleLeader, &noopSink{})
	require.NoError(t, p.Flush())
	require.NoError(t, p.Flush())
}

func TestPut_ReplacesExistingHotKeyInPlace(t *testing.T) {
	dir := t.TempDir()
	p := newTestPartition(t, dir, RoleLeader, &noopSink{})

	require.NoError(t, p.Put("a", serializer.NewString("1")))
	require.NoError(t, p.Put("b", serializer.NewString("1")))
	require.NoError(t, p.Put("a", serializer.NewString("2")))

	assert.Equal(t, []string{"a", "b"}, p.hot.keysSnapshot())
	v, err := p.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "2", v.Str)
}

func TestRawBytes_OnlyConsultsCold(t *testing.T) {
	dir := t.TempDir()
	p := newTestPartition(t, dir, RoleLeader, &noopSink{})

	require.NoError(t, p.Put("k", serializer.NewString("v")))
	_, err := p.RawBytes("k")
	assert.ErrorIs(t, err, ErrNotFound, "key only in hot, not cold, should not be visible to RawBytes")

	for i := 0; i < HotStorageLimit; i++ {
		require.NoError(t, p.Put("filler", serializer.NewString("x")))
	}
	require.NoError(t, p.Flush())

	raw, err := p.RawBytes("k")
	require.NoError(t, err)
	assert.Equal(t, uint8(1), raw[0], "schema version byte should be V1 for a plain string")
	assert.NotEmpty(t, hex.EncodeToString(raw))
}

func TestLeaderReplicatesAfterLocalPut(t *testing.T) {
	dir := t.TempDir()
	sink := &noopSink{}
	p := newTestPartition(t, dir, RoleLeader, sink)

	require.NoError(t, p.Put("k", serializer.NewString("v")))
	assert.Equal(t, []string{"k"}, sink.calls)
}

func TestFollowerDoesNotReplicate(t *testing.T) {
	dir := t.TempDir()
	sink := &noopSink{}
	p := newTestPartition(t, dir, RoleFollower, sink)

	require.NoError(t, p.Put("k", serializer.NewString("v")))
	assert.Empty(t, sink.calls)
}

func TestGet_NotFound(t *testing.T) {
	dir := t.TempDir()
	p := newTestPartition(t, dir, RoleLeader, &noopSink{})
	_, err := p.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecovery_TruncatedTrailingFrameIsIgnored(t *testing.T) {
	dir := t.TempDir()
	p := newTestPartition(t, dir, RoleLeader, &noopSink{})
	require.NoError(t, p.Put("a", serializer.NewString("1")))
	require.NoError(t, p.Put("b", serializer.NewString("2")))
	require.NoError(t, p.Flush())

	// Simulate a crash mid-append by truncating the log.
	info, err := os.Stat(p.logPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(p.logPath, info.Size()-2))

	reopened := newTestPartition(t, dir, RoleLeader, &noopSink{})
	_, err = reopened.Get("b")
	assert.ErrorIs(t, err, ErrNotFound, "torn trailing record should be dropped by recovery")
	v, err := reopened.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v.Str)
}

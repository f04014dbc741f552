package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewIdentityRegistry()

	reg.Register("conn-1", "alice")

	identity, ok := reg.IdentityOf("conn-1")
	require.True(t, ok)
	assert.Equal(t, "alice", string(identity))

	_, ok = reg.IdentityOf("conn-2")
	assert.False(t, ok)
}

func TestIdentityRegistry_RegisterIsIdempotent(t *testing.T) {
	reg := NewIdentityRegistry()

	reg.Register("conn-1", "alice")
	reg.Register("conn-1", "alice")

	assert.Len(t, reg.ConnectionsFor("alice"), 1)
}

func TestIdentityRegistry_MultipleConnectionsOrderedOldestFirst(t *testing.T) {
	reg := NewIdentityRegistry()

	reg.Register("conn-1", "alice")
	reg.Register("conn-2", "alice")
	reg.Register("conn-3", "alice")

	conns := reg.ConnectionsFor("alice")
	require.Len(t, conns, 3)
	assert.Equal(t, "conn-1", string(conns[0]))
	assert.Equal(t, "conn-3", string(conns[2]))

	primary, ok := reg.PrimaryFor("alice")
	require.True(t, ok)
	assert.Equal(t, "conn-1", string(primary))
}

func TestIdentityRegistry_DeregisterPromotesOldestSurvivor(t *testing.T) {
	reg := NewIdentityRegistry()

	reg.Register("conn-1", "alice")
	reg.Register("conn-2", "alice")
	reg.Register("conn-3", "alice")

	identity, _, last, found := reg.Deregister("conn-1")
	require.True(t, found)
	assert.False(t, last)
	assert.Equal(t, "alice", string(identity))

	primary, ok := reg.PrimaryFor("alice")
	require.True(t, ok)
	assert.Equal(t, "conn-2", string(primary))
}

func TestIdentityRegistry_DeregisterLastConnection(t *testing.T) {
	reg := NewIdentityRegistry()

	reg.Register("conn-1", "alice")
	reg.SetRoom("conn-1", "the-room")

	identity, room, last, found := reg.Deregister("conn-1")
	require.True(t, found)
	assert.True(t, last)
	assert.Equal(t, "alice", string(identity))
	assert.Equal(t, "the-room", string(room))

	_, ok := reg.PrimaryFor("alice")
	assert.False(t, ok)
	assert.Empty(t, reg.ConnectionsFor("alice"))
}

func TestIdentityRegistry_DeregisterUnknownConnection(t *testing.T) {
	reg := NewIdentityRegistry()

	_, _, _, found := reg.Deregister("ghost")
	assert.False(t, found)
}

func TestIdentityRegistry_ReRegisterMigratesToNewIdentity(t *testing.T) {
	reg := NewIdentityRegistry()

	reg.Register("conn-1", "alice")
	reg.SetRoom("conn-1", "the-room")
	reg.Register("conn-1", "bob")

	// The old identity must not keep counting the connection.
	assert.Empty(t, reg.ConnectionsFor("alice"))
	_, ok := reg.PrimaryFor("alice")
	assert.False(t, ok)

	identity, room, ok := reg.SessionOf("conn-1")
	require.True(t, ok)
	assert.Equal(t, "bob", string(identity))
	assert.Empty(t, string(room), "room binding belongs to the old identity")

	require.Len(t, reg.ConnectionsFor("bob"), 1)
	primary, ok := reg.PrimaryFor("bob")
	require.True(t, ok)
	assert.Equal(t, "conn-1", string(primary))
}

func TestIdentityRegistry_ReRegisterPromotesSiblingPrimary(t *testing.T) {
	reg := NewIdentityRegistry()

	reg.Register("conn-1", "alice")
	reg.Register("conn-2", "alice")
	reg.Register("conn-1", "bob")

	require.Len(t, reg.ConnectionsFor("alice"), 1)
	primary, ok := reg.PrimaryFor("alice")
	require.True(t, ok)
	assert.Equal(t, "conn-2", string(primary))
}

func TestIdentityRegistry_SessionOfTracksRoom(t *testing.T) {
	reg := NewIdentityRegistry()

	reg.Register("conn-1", "alice")

	identity, room, ok := reg.SessionOf("conn-1")
	require.True(t, ok)
	assert.Equal(t, "alice", string(identity))
	assert.Empty(t, string(room))

	reg.SetRoom("conn-1", "the-room")
	_, room, _ = reg.SessionOf("conn-1")
	assert.Equal(t, "the-room", string(room))

	reg.ClearRoom("conn-1")
	_, room, _ = reg.SessionOf("conn-1")
	assert.Empty(t, string(room))
}

package memory

import (
	"testing"

	"parley/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomTable_EnsureAndStatus(t *testing.T) {
	table := NewRoomTable()

	assert.False(t, table.Status("the-room").Exists)

	table.EnsureRoom("the-room")
	status := table.Status("the-room")
	assert.True(t, status.Exists)
	assert.Equal(t, 0, status.OccupantCount)
	assert.False(t, status.Full)
}

func TestRoomTable_CapacityIsTwoIdentities(t *testing.T) {
	table := NewRoomTable()
	table.EnsureRoom("the-room")

	require.NoError(t, table.AddOccupant("the-room", "alice"))
	require.NoError(t, table.AddOccupant("the-room", "bob"))

	err := table.AddOccupant("the-room", "carol")
	assert.ErrorIs(t, err, domain.ErrRoomFull)

	status := table.Status("the-room")
	assert.Equal(t, domain.RoomCapacity, status.OccupantCount)
	assert.True(t, status.Full)
}

func TestRoomTable_AddOccupantIdempotentForSameIdentity(t *testing.T) {
	table := NewRoomTable()
	table.EnsureRoom("the-room")

	require.NoError(t, table.AddOccupant("the-room", "alice"))
	require.NoError(t, table.AddOccupant("the-room", "bob"))

	// A full room still admits an identity it already holds.
	assert.NoError(t, table.AddOccupant("the-room", "alice"))
	assert.Equal(t, 2, table.Status("the-room").OccupantCount)
}

func TestRoomTable_AddOccupantUnknownRoom(t *testing.T) {
	table := NewRoomTable()

	assert.ErrorIs(t, table.AddOccupant("ghost", "alice"), domain.ErrRoomNotFound)
}

func TestRoomTable_RemoveOccupantReportsEmpty(t *testing.T) {
	table := NewRoomTable()
	table.EnsureRoom("the-room")
	require.NoError(t, table.AddOccupant("the-room", "alice"))
	require.NoError(t, table.AddOccupant("the-room", "bob"))

	empty, err := table.RemoveOccupant("the-room", "alice")
	require.NoError(t, err)
	assert.False(t, empty)

	empty, err = table.RemoveOccupant("the-room", "bob")
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestRoomTable_DeleteRoomGuardsOccupants(t *testing.T) {
	table := NewRoomTable()
	table.EnsureRoom("the-room")
	require.NoError(t, table.AddOccupant("the-room", "alice"))

	assert.ErrorIs(t, table.DeleteRoom("the-room"), domain.ErrRoomNotEmpty)

	_, err := table.RemoveOccupant("the-room", "alice")
	require.NoError(t, err)
	require.NoError(t, table.DeleteRoom("the-room"))

	assert.False(t, table.Status("the-room").Exists)
	assert.ErrorIs(t, table.DeleteRoom("the-room"), domain.ErrRoomNotFound)
}

func TestRoomTable_ConnectionsAreSeparateFromOccupancy(t *testing.T) {
	table := NewRoomTable()
	table.EnsureRoom("the-room")
	require.NoError(t, table.AddOccupant("the-room", "alice"))

	table.AddConnection("the-room", "conn-1")
	table.AddConnection("the-room", "conn-2")

	assert.Len(t, table.Connections("the-room"), 2)
	assert.Equal(t, 1, table.Status("the-room").OccupantCount)

	table.RemoveConnection("the-room", "conn-1")
	assert.Len(t, table.Connections("the-room"), 1)
}

func TestRoomTable_ListIsSorted(t *testing.T) {
	table := NewRoomTable()
	table.EnsureRoom("zulu")
	table.EnsureRoom("alpha")
	require.NoError(t, table.AddOccupant("alpha", "bob"))
	require.NoError(t, table.AddOccupant("alpha", "alice"))

	infos := table.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", string(infos[0].ID))
	assert.Equal(t, "zulu", string(infos[1].ID))
	assert.Equal(t, []domain.Identity{"alice", "bob"}, infos[0].Occupants)
}

package app

import (
	"testing"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCall(id, caller, receiver, key string) domain.CallSession {
	return domain.CallSession{
		ID:         domain.CallID(id),
		CallerID:   domain.UserID(caller),
		ReceiverID: domain.UserID(receiver),
		RoomKey:    domain.RoomKey(key),
		Type:       domain.CallVideo,
	}
}

func TestCallTableAcceptEnd(t *testing.T) {
	tbl := NewCallTable()
	s, err := tbl.Create(newCall("c1", "alice", "bob", "k1"))
	require.NoError(t, err)
	assert.Equal(t, domain.CallRinging, s.State)

	_, err = tbl.Accept("c1", "alice")
	assert.ErrorIs(t, err, ErrNotParticipant, "only the receiver accepts")

	s, err = tbl.Accept("c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.CallConnected, s.State)

	_, err = tbl.Reject("c1", "bob")
	assert.ErrorIs(t, err, ErrCallState)

	got, ok := tbl.ByKey("k1")
	require.True(t, ok)
	assert.Equal(t, domain.CallID("c1"), got.ID)

	_, err = tbl.End("c1", "mallory")
	assert.ErrorIs(t, err, ErrNotParticipant)

	s, err = tbl.End("c1", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.CallEnded, s.State)
	_, ok = tbl.ByKey("k1")
	assert.False(t, ok)
	assert.False(t, tbl.Busy("bob"))
}

func TestCallTableReject(t *testing.T) {
	tbl := NewCallTable()
	_, err := tbl.Create(newCall("c1", "alice", "bob", "k1"))
	require.NoError(t, err)

	s, err := tbl.Reject("c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.CallRejected, s.State)
	assert.Empty(t, tbl.Sessions())

	_, err = tbl.Accept("c1", "bob")
	assert.ErrorIs(t, err, ErrCallNotFound)
}

func TestCallTableConflicts(t *testing.T) {
	tbl := NewCallTable()
	_, err := tbl.Create(newCall("c1", "alice", "bob", "k1"))
	require.NoError(t, err)

	_, err = tbl.Create(newCall("c2", "carol", "dave", "k1"))
	assert.ErrorIs(t, err, ErrDuplicateRoomKey)

	_, err = tbl.Create(newCall("c3", "carol", "bob", "k3"))
	assert.ErrorIs(t, err, ErrCallBusy)
}

func TestCallTableDisconnect(t *testing.T) {
	tbl := NewCallTable()
	_, err := tbl.Create(newCall("c1", "alice", "bob", "k1"))
	require.NoError(t, err)

	active, ok := tbl.ActiveFor("alice")
	require.True(t, ok)
	assert.Equal(t, domain.CallID("c1"), active.ID)
	_, ok = tbl.ActiveFor("carol")
	assert.False(t, ok)

	assert.Empty(t, tbl.Disconnect("carol"))
	ended := tbl.Disconnect("bob")
	require.Len(t, ended, 1)
	assert.Equal(t, domain.CallEnded, ended[0].State)
	assert.False(t, tbl.Busy("alice"))
	_, ok = tbl.ActiveFor("alice")
	assert.False(t, ok)
}

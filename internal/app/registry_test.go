package app

import (
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{ closed bool }

func (c *nopConn) TrySend(core.Frame) error { return nil }
func (c *nopConn) Close()                   { c.closed = true }

func TestRegistryRegisterResolve(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	conn := &nopConn{}

	_, ok := r.Resolve("t1")
	assert.False(t, ok)

	r.Attach("t1", conn, now)
	_, ok = r.Resolve("t1")
	assert.False(t, ok, "attached transport is not registered yet")
	assert.Equal(t, []domain.TransportID{"t1"}, r.Transports())

	_, superseded := r.Register("alice", "t1", conn, now)
	assert.False(t, superseded)

	uid, ok := r.Resolve("t1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), uid)

	tid, got, ok := r.ConnOf("alice")
	require.True(t, ok)
	assert.Equal(t, domain.TransportID("t1"), tid)
	assert.Same(t, conn, got)
}

func TestRegistryLastWriterWins(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	c1, c2 := &nopConn{}, &nopConn{}

	r.Register("alice", "t1", c1, now)
	prev, superseded := r.Register("alice", "t2", c2, now)
	require.True(t, superseded)
	assert.Equal(t, domain.TransportID("t1"), prev)

	tid, conn, ok := r.ConnOf("alice")
	require.True(t, ok)
	assert.Equal(t, domain.TransportID("t2"), tid)
	assert.Same(t, c2, conn)

	// the superseded transport still resolves until it goes away
	uid, ok := r.Resolve("t1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), uid)

	uid, current := r.Detach("t1")
	assert.Equal(t, domain.UserID("alice"), uid)
	assert.False(t, current)
	assert.True(t, r.IsOnline("alice"))

	_, current = r.Detach("t2")
	assert.True(t, current)
	assert.False(t, r.IsOnline("alice"))
	assert.Zero(t, r.Len())
}

func TestRegistryUnregisterUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	uid, current := r.Unregister("ghost")
	assert.Empty(t, uid)
	assert.False(t, current)
	uid, current = r.Detach("ghost")
	assert.Empty(t, uid)
	assert.False(t, current)
}

func TestRegistryReRegisterAsOtherUser(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	conn := &nopConn{}
	r.Register("alice", "t1", conn, now)
	r.Register("bob", "t1", conn, now)

	assert.False(t, r.IsOnline("alice"))
	uid, ok := r.Resolve("t1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("bob"), uid)
}

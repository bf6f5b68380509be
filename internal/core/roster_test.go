package core

import (
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRosterJoinLeaveRetract(t *testing.T) {
	r := NewRoster("general")
	now := time.Now()

	_, changed := r.Join("bob", "t2", "", now)
	assert.True(t, changed)
	_, changed = r.Join("alice", "t1", "Alice", now)
	assert.True(t, changed)
	m, changed := r.Join("alice", "t1", "", now)
	assert.False(t, changed)
	assert.Equal(t, "Alice", m.DisplayName, "empty name keeps the previous one")

	assert.Equal(t, 2, r.OnlineCount())
	assert.Equal(t, []domain.User{{ID: "alice", DisplayName: "Alice"}, {ID: "bob", DisplayName: "bob"}}, r.Snapshot())

	assert.False(t, r.Retract("alice", "t9"), "other transport")
	assert.True(t, r.Retract("alice", "t1"))
	assert.False(t, r.Leave("alice"))
	assert.False(t, r.Leave("ghost"))
	assert.Equal(t, 1, r.OnlineCount())

	m, ok := r.Member("alice")
	assert.True(t, ok)
	assert.False(t, m.Online)
}

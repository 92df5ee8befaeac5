package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstMemberBecomesHost(t *testing.T) {
	m := NewMembers(9)

	a, err := m.Add(Member{Id: "A", JoinedAt: t0})
	require.NoError(t, err)
	assert.True(t, a.IsHost)

	b, err := m.Add(Member{Id: "B", JoinedAt: t0.Add(5 * time.Second)})
	require.NoError(t, err)
	assert.False(t, b.IsHost)

	_, err = m.Add(Member{Id: "B"})
	assert.ErrorIs(t, err, ErrMemberAlreadyExists)
}

func TestHostReassignmentByJoinTime(t *testing.T) {
	m := NewMembers(9)
	_, _ = m.Add(Member{Id: "A", JoinedAt: t0})
	_, _ = m.Add(Member{Id: "C", JoinedAt: t0.Add(10 * time.Second)})
	// B rejoined with an older join time than C.
	_, _ = m.Add(Member{Id: "B", JoinedAt: t0.Add(5 * time.Second)})

	removed, newHost, err := m.RemoveById("A")
	require.NoError(t, err)
	assert.Equal(t, "A", removed.Id)
	require.NotNil(t, newHost)
	assert.Equal(t, "B", newHost.Id)

	host, ok := m.Host()
	require.True(t, ok)
	assert.Equal(t, "B", host.Id)

	_, newHost, err = m.RemoveById("C")
	require.NoError(t, err)
	assert.Nil(t, newHost, "removing a non host keeps the host")

	_, newHost, err = m.RemoveById("B")
	require.NoError(t, err)
	assert.Nil(t, newHost)
	assert.Equal(t, 0, m.Length())

	_, _, err = m.RemoveById("B")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestMembersLimit(t *testing.T) {
	m := NewMembers(1)
	_, err := m.Add(Member{Id: "A"})
	require.NoError(t, err)
	_, err = m.Add(Member{Id: "B"})
	assert.ErrorIs(t, err, ErrMembersLimitReached)
}

func TestReadyAndVotes(t *testing.T) {
	m := NewMembers(9)
	_, _ = m.Add(Member{Id: "A"})
	_, _ = m.Add(Member{Id: "B"})
	assert.False(t, m.AllReady())

	_, err := m.SetReady("A", true)
	require.NoError(t, err)
	_, err = m.SetReady("B", true)
	require.NoError(t, err)
	assert.True(t, m.AllReady())

	_, err = m.SetSkipVote("A", true)
	require.NoError(t, err)
	assert.Equal(t, 1, m.SkipVotes())

	m.resetVideoFlags()
	assert.False(t, m.AllReady())
	assert.Equal(t, 0, m.SkipVotes())
}

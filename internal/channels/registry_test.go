package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMember struct {
	id         string
	controller bool
	executor   bool
}

func (f *fakeMember) ID() string { return f.id }
func (f *fakeMember) ClassifiedAs() (bool, bool) { return f.controller, f.executor }

func TestJoin_CreatesChannelLazily(t *testing.T) {
	r := New()
	m := &fakeMember{id: "c1", controller: true}
	r.Join("fig-1", m)

	require.Equal(t, 1, r.Count())
	assert.True(t, r.IsMember("fig-1", "c1"))
}

func TestJoin_IsIdempotent(t *testing.T) {
	r := New()
	m := &fakeMember{id: "c1"}
	r.Join("fig-1", m)
	r.Join("fig-1", m)

	others := r.Others("fig-1", "")
	assert.Len(t, others, 1)
}

func TestLeave_DeletesChannelWhenEmpty(t *testing.T) {
	r := New()
	m := &fakeMember{id: "c1"}
	r.Join("fig-1", m)
	r.Leave("fig-1", "c1")

	assert.Equal(t, 0, r.Count())
	assert.False(t, r.IsMember("fig-1", "c1"))
}

func TestLeave_KeepsChannelIfOthersRemain(t *testing.T) {
	r := New()
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	r.Join("fig-1", a)
	r.Join("fig-1", b)

	r.Leave("fig-1", "a")
	assert.Equal(t, 1, r.Count())
	assert.True(t, r.IsMember("fig-1", "b"))
}

func TestRemoveMember_LeavesAllJoinedChannels(t *testing.T) {
	r := New()
	a := &fakeMember{id: "a"}
	r.Join("fig-1", a)
	r.Join("fig-2", a)

	r.RemoveMember("a")

	assert.Equal(t, 0, r.Count())
	assert.False(t, r.IsMember("fig-1", "a"))
	assert.False(t, r.IsMember("fig-2", "a"))
}

func TestOthers_ExcludesSender(t *testing.T) {
	r := New()
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	r.Join("fig-1", a)
	r.Join("fig-1", b)

	others := r.Others("fig-1", "a")
	require.Len(t, others, 1)
	assert.Equal(t, "b", others[0].ID())
}

func TestActiveChannels_SortedWithCounts(t *testing.T) {
	r := New()
	r.Join("zeta", &fakeMember{id: "a", controller: true})
	r.Join("alpha", &fakeMember{id: "b", executor: true})
	r.Join("alpha", &fakeMember{id: "c", controller: true})

	cc := r.ActiveChannels()
	require.Len(t, cc, 2)
	assert.Equal(t, "alpha", cc[0].Name)
	assert.Equal(t, 2, cc[0].Total)
	assert.Equal(t, 1, cc[0].ControllerCount)
	assert.Equal(t, 1, cc[0].ExecutorCount)
	assert.Equal(t, "zeta", cc[1].Name)
}

func TestMultiChannelJoin_OneConnectionMultipleChannels(t *testing.T) {
	// Open Question in spec: joining multiple channels from one connection
	// must work even though it is rarely exercised in practice.
	r := New()
	a := &fakeMember{id: "a"}
	r.Join("fig-1", a)
	r.Join("fig-2", a)

	assert.True(t, r.IsMember("fig-1", "a"))
	assert.True(t, r.IsMember("fig-2", "a"))
	assert.Equal(t, 2, r.Count())
}

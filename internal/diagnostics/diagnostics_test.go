package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/figbridge/channelbroker/internal/channels"
)

type fakeMember struct{ id string }

func (f fakeMember) ID() string { return f.id }

func TestSnapshot_HintsWhenNoExecutorConnected(t *testing.T) {
	reg := channels.New()
	reg.Join("fig-1", fakeMember{"controller-1"})

	c := New(3055)
	snap := c.Snapshot(reg)

	assert.Equal(t, 3055, snap.Port)
	assert.NotEmpty(t, snap.Hint)
	assert.Len(t, snap.Channels, 1)
}

func TestSnapshot_NoHintWhenExecutorPresent(t *testing.T) {
	reg := channels.New()
	reg.Join("fig-1", classifiedMember{id: "executor-1", executor: true})

	c := New(3055)
	snap := c.Snapshot(reg)

	assert.Empty(t, snap.Hint)
}

type classifiedMember struct {
	id         string
	controller bool
	executor   bool
}

func (m classifiedMember) ID() string { return m.id }
func (m classifiedMember) ClassifiedAs() (bool, bool) {
	return m.controller, m.executor
}

package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_PerKeyBurstThenBlocked(t *testing.T) {
	l := New(Config{KeyBurst: 2, KeyRate: 0.001, GlobalBurst: 100, GlobalRate: 100})
	defer l.Stop()

	assert.True(t, l.Allow("ip-a"))
	assert.True(t, l.Allow("ip-a"))
	assert.False(t, l.Allow("ip-a"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(Config{KeyBurst: 1, KeyRate: 0.001, GlobalBurst: 100, GlobalRate: 100})
	defer l.Stop()

	assert.True(t, l.Allow("ip-a"))
	assert.True(t, l.Allow("ip-b"))
	assert.False(t, l.Allow("ip-a"))
}

func TestLimiter_GlobalCeilingAppliesAcrossKeys(t *testing.T) {
	l := New(Config{KeyBurst: 10, KeyRate: 100, GlobalBurst: 1, GlobalRate: 0.001})
	defer l.Stop()

	assert.True(t, l.Allow("ip-a"))
	assert.False(t, l.Allow("ip-b"))
}

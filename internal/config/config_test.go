package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := Config{
		BrokerPort:            0,
		SnifferPort:           3056,
		OutboundQueueSize:     256,
		MaxFrameSize:          1024,
		DefaultRequestTimeout: 1,
		ProgressExtension:     1,
	}
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := Config{
		BrokerPort:            3055,
		SnifferPort:           3056,
		OutboundQueueSize:     256,
		MaxFrameSize:          1024,
		DefaultRequestTimeout: 1,
		ProgressExtension:     1,
	}
	assert.NoError(t, cfg.Validate())
}

func TestZerologLevel_FallsBackOnGarbage(t *testing.T) {
	cfg := Config{LogLevel: "not-a-level"}
	assert.Equal(t, "info", cfg.ZerologLevel().String())
}

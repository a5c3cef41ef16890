package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig("ce2ocf")
	assert.NoError(t, cfg.Validate(), "disabled config is always valid")

	cfg.Enabled = true
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.ServiceName = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.OTLPEndpoint = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SampleRatio = 1.5
	assert.Error(t, bad.Validate())
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), DefaultConfig("ce2ocf"), nil)
	require.NoError(t, err)
	assert.NoError(t, Shutdown(shutdown, nil))
}

func TestSetup_Enabled(t *testing.T) {
	cfg := DefaultConfig("ce2ocf")
	cfg.Enabled = true

	// the exporter connects lazily, so setup succeeds without a collector
	shutdown, err := Setup(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	_ = Shutdown(shutdown, nil)
}

func TestShutdown_Nil(t *testing.T) {
	assert.NoError(t, Shutdown(nil, nil))
}

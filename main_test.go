package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDevice(t *testing.T) {
	dev, err := openDevice("software")
	require.NoError(t, err)
	assert.Equal(t, "software", dev.Name())
	dev.Release()

	dev, err = openDevice("auto")
	require.NoError(t, err)
	assert.NotNil(t, dev)
	dev.Release()

	_, err = openDevice("vulkan")
	assert.Error(t, err)
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	old := *resolutionFlag
	t.Cleanup(func() { *resolutionFlag = old })

	*resolutionFlag = 256
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Resolution)
	assert.Equal(t, float32(0.5), cfg.TemporalAmount)

	*resolutionFlag = 100
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestMarkerFootprintIsDisc(t *testing.T) {
	fp := precomputeFootprint(2)
	assert.Len(t, fp, 13)
	for _, o := range fp {
		assert.LessOrEqual(t, o.dx*o.dx+o.dy*o.dy, 4)
	}
}

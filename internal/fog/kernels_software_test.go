package fog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fogofwar/internal/gpu"
)

func TestBlendTexel(t *testing.T) {
	tests := []struct {
		prev, target byte
		amount       float32
		want         byte
	}{
		{0, 255, 0.5, 128},
		{128, 0, 0.5, 64},
		{1, 0, 0.5, 0},
		{254, 255, 0.5, 255},
		{10, 200, 0, 10},
		{10, 200, 1, 200},
		{200, 10, 1, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, blendTexel(tt.prev, tt.target, tt.amount), "%d->%d @ %v", tt.prev, tt.target, tt.amount)
	}
}

func TestRasterizeSightIsRoundAndClipped(t *testing.T) {
	const size = 32
	raw := make([]byte, size*size*gpu.TexelBytes)
	nav := make([]byte, size*size*gpu.TexelBytes)
	for i := range nav {
		nav[i] = 255
	}
	rasterizeSight(raw, nav, size, 2, 2, 6)

	lit := func(x, y int) bool { return raw[(y*size+x)*gpu.TexelBytes] == 255 }
	assert.True(t, lit(2, 2))
	assert.True(t, lit(0, 0))
	assert.True(t, lit(8, 2))
	assert.False(t, lit(9, 2))
	assert.False(t, lit(7, 7), "corner of the bounding square is outside the circle")
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if lit(x, y) {
				dx, dy := x-2, y-2
				assert.LessOrEqual(t, dx*dx+dy*dy, 36)
			}
		}
	}
}

func TestOpenCLProgramMatchesSoftwareBindings(t *testing.T) {
	cl := OpenCLProgram()
	sw := SoftwareProgram()
	assert.Len(t, sw, len(cl.Kernels))
	for name, k := range cl.Kernels {
		assert.Contains(t, cl.Source, "__kernel void "+name+"(")
		assert.Equal(t, k.Args, sw[name].Bindings)
		for _, arg := range k.Args {
			assert.Contains(t, cl.Source, arg)
		}
	}
}

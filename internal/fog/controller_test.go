package fog

import (
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fogofwar/internal/gpu"
	"fogofwar/internal/navmask"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func downLight(pos mgl32.Vec3) *Light {
	return &Light{Type: DirectionalLight, Position: pos, Rotation: DownwardRotation()}
}

// smallConfig maps world X,Z one-to-one onto texels when the light sits at
// (32, 0, 32).
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Resolution = 64
	cfg.WorldSize = 64
	return cfg
}

func newTestController(t *testing.T, cfg Config, nav *image.Gray, light *Light) (*Controller, *gpu.SoftwareDevice) {
	t.Helper()
	dev := gpu.NewSoftwareDevice(SoftwareProgram())
	if nav == nil {
		nav = navmask.Open(cfg.Resolution)
	}
	if light == nil {
		light = downLight(mgl32.Vec3{})
	}
	c, err := NewController(dev, cfg, nav, light, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(c.OnShutdown)
	return c, dev
}

func texel(t *testing.T, dev gpu.Device, tex gpu.Texture, x, y int) byte {
	t.Helper()
	pix := make([]byte, tex.Size()*tex.Size()*gpu.TexelBytes)
	require.NoError(t, dev.ReadTexture(tex, pix))
	return pix[(y*tex.Size()+x)*gpu.TexelBytes]
}

func TestDefaultScale(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, float32(0.25), cfg.Scale())
	require.NoError(t, cfg.Validate())
}

func TestShouldUpdateThrottles(t *testing.T) {
	c, _ := newTestController(t, smallConfig(), nil, nil)
	assert.True(t, c.ShouldUpdate())
	assert.False(t, c.ShouldUpdate())

	require.NoError(t, c.OnFrame(0.01))
	assert.Equal(t, 0, c.Updates())
	require.NoError(t, c.OnFrame(0.01))
	assert.Equal(t, 1, c.Updates())
	require.NoError(t, c.OnFrame(0.005))
	assert.Equal(t, 1, c.Updates())
	assert.InDelta(t, 0.025, c.Clock(), 1e-9)
}

func TestFirstFrameAlwaysRenders(t *testing.T) {
	c, _ := newTestController(t, smallConfig(), nil, nil)
	require.NoError(t, c.OnFrame(0))
	assert.Equal(t, 1, c.Updates())
}

func TestNewControllerRejectsMisalignedResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolution = 513
	dev := gpu.NewSoftwareDevice(SoftwareProgram())
	_, err := NewController(dev, cfg, navmask.Open(513), downLight(mgl32.Vec3{}), WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrResolution))
}

func TestNewControllerValidatesNavigation(t *testing.T) {
	dev := gpu.NewSoftwareDevice(SoftwareProgram())
	cfg := smallConfig()

	_, err := NewController(dev, cfg, navmask.Open(32), downLight(mgl32.Vec3{}), WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrNavigationMask))

	wide := image.NewGray(image.Rect(0, 0, 64, 32))
	_, err = NewController(dev, cfg, wide, downLight(mgl32.Vec3{}), WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrNavigationMask))

	_, err = NewController(dev, cfg, nil, downLight(mgl32.Vec3{}), WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrNavigationMask))
}

func TestNewControllerValidatesLight(t *testing.T) {
	dev := gpu.NewSoftwareDevice(SoftwareProgram())
	cfg := smallConfig()
	nav := navmask.Open(cfg.Resolution)

	point := downLight(mgl32.Vec3{})
	point.Type = PointLight
	_, err := NewController(dev, cfg, nav, point, WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrLightType))

	sideways := &Light{Type: DirectionalLight, Rotation: mgl32.QuatIdent()}
	_, err = NewController(dev, cfg, nav, sideways, WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrLightOrientation))
}

func TestControllerAttachesCookie(t *testing.T) {
	light := downLight(mgl32.Vec3{})
	c, _ := newTestController(t, DefaultConfig(), nil, light)
	assert.Equal(t, c.Masks().Final, light.Cookie)
	assert.Equal(t, float32(128), light.CookieSize)
	assert.Equal(t, mgl32.Vec3{-64, 0, -64}, c.Offset())
	assert.Same(t, light, c.LightSource())
	assert.Equal(t, "software", c.Device().Name())
}

func TestEndToEndDispatch(t *testing.T) {
	c, dev := newTestController(t, DefaultConfig(), nil, nil)
	c.Sights().SetPosition(0, mgl32.Vec2{10, 20})
	c.Sights().SetRange(0, 32)
	dev.ResetDispatches()

	require.NoError(t, c.OnFrame(0))

	assert.Equal(t, []gpu.DispatchRecord{
		{Kernel: ClearMaskKernel, Groups: [3]int{64, 64, 1}},
		{Kernel: RenderSightKernel, Groups: [3]int{2, 1, 1}},
		{Kernel: BlendMaskKernel, Groups: [3]int{64, 64, 1}},
	}, dev.Dispatches())
	assert.Equal(t, 4096, c.Renderer().ClearGrid()[0]*c.Renderer().ClearGrid()[1])

	// (10, 20) - (-64, -64) = (74, 84) world units = (296, 336) texels.
	assert.Equal(t, byte(255), texel(t, dev, c.Masks().Raw, 296, 336))
	assert.Equal(t, byte(255), texel(t, dev, c.Masks().Final, 296, 336))
	assert.Equal(t, byte(0), texel(t, dev, c.Masks().Raw, 0, 0))
}

func TestTrackedSourceDrivesSlot(t *testing.T) {
	light := downLight(mgl32.Vec3{32, 0, 32})
	c, dev := newTestController(t, smallConfig(), nil, light)
	pos := mgl32.Vec3{5.5, 100, 40.5}
	c.Track(3, PositionFunc(func() mgl32.Vec3 { return pos }), 4)

	require.NoError(t, c.OnFrame(0))
	assert.Equal(t, mgl32.Vec2{5.5, 40.5}, c.Sights().Position(3))
	assert.Equal(t, byte(255), texel(t, dev, c.Masks().Raw, 5, 40))
	assert.Equal(t, byte(0), texel(t, dev, c.Masks().Raw, 20, 40))

	pos = mgl32.Vec3{20.5, 0, 40.5}
	require.NoError(t, c.OnFrame(1))
	assert.Equal(t, byte(0), texel(t, dev, c.Masks().Raw, 5, 40))
	assert.Equal(t, byte(255), texel(t, dev, c.Masks().Raw, 20, 40))

	c.Untrack(3)
	assert.Equal(t, int32(0), c.Sights().Range(3))
	require.NoError(t, c.OnFrame(1))
	assert.Equal(t, byte(0), texel(t, dev, c.Masks().Raw, 20, 40))
}

func TestWallsBlockSight(t *testing.T) {
	cfg := smallConfig()
	nav := navmask.Open(cfg.Resolution)
	for y := 0; y < cfg.Resolution; y++ {
		nav.Pix[nav.PixOffset(20, y)] = navmask.Blocked
	}
	c, dev := newTestController(t, cfg, nav, downLight(mgl32.Vec3{32, 0, 32}))
	c.Sights().SetPosition(0, mgl32.Vec2{10.5, 32.5})
	c.Sights().SetRange(0, 30)
	require.NoError(t, c.OnFrame(0))

	raw := c.Masks().Raw
	assert.Equal(t, byte(255), texel(t, dev, raw, 19, 32))
	assert.Equal(t, byte(255), texel(t, dev, raw, 20, 32), "wall texel is revealed")
	assert.Equal(t, byte(0), texel(t, dev, raw, 25, 32))
	assert.Equal(t, byte(0), texel(t, dev, raw, 45, 32))
	assert.Equal(t, byte(255), texel(t, dev, raw, 10, 5))
	assert.Equal(t, byte(0), texel(t, dev, raw, 10, 1), "outside range")
}

func TestTemporalBlendFades(t *testing.T) {
	c, dev := newTestController(t, smallConfig(), nil, downLight(mgl32.Vec3{32, 0, 32}))
	c.Sights().SetPosition(0, mgl32.Vec2{32.5, 32.5})
	c.Sights().SetRange(0, 5)
	require.NoError(t, c.OnFrame(0))

	m := c.Masks()
	assert.Equal(t, byte(128), texel(t, dev, m.Temporal, 32, 32))
	assert.Equal(t, byte(255), texel(t, dev, m.Final, 32, 32))

	c.Sights().SetRange(0, 0)
	require.NoError(t, c.OnFrame(1))
	assert.Equal(t, byte(0), texel(t, dev, m.Raw, 32, 32))
	assert.Equal(t, byte(64), texel(t, dev, m.Temporal, 32, 32))
	assert.Equal(t, byte(64), texel(t, dev, m.Final, 32, 32))

	for i := 0; i < 16; i++ {
		require.NoError(t, c.OnFrame(1))
	}
	assert.Equal(t, byte(0), texel(t, dev, m.Final, 32, 32))
}

func TestResizeRebuildsMasks(t *testing.T) {
	cfg := DefaultConfig()
	light := downLight(mgl32.Vec3{})
	c, dev := newTestController(t, cfg, nil, light)
	old := c.Masks().Textures()

	require.NoError(t, c.Resize(256, navmask.Open(256)))
	assert.Equal(t, 256, c.Config().Resolution)
	assert.Equal(t, float32(0.5), c.Scale())
	for _, tex := range c.Masks().Textures() {
		assert.Equal(t, 256, tex.Size())
	}
	for _, tex := range old {
		err := dev.ReadTexture(tex, make([]byte, 512*512*gpu.TexelBytes))
		assert.True(t, errors.Is(err, gpu.ErrReleased), tex.Name())
	}
	assert.Equal(t, c.Masks().Final, light.Cookie)

	// Kernels must see the new textures, not the released ones.
	c.Sights().SetPosition(0, mgl32.Vec2{0, 0})
	c.Sights().SetRange(0, 8)
	require.NoError(t, c.OnFrame(0))
	assert.Equal(t, byte(255), texel(t, dev, c.Masks().Final, 128, 128))
}

func TestResizeRevalidatesNavigation(t *testing.T) {
	c, _ := newTestController(t, DefaultConfig(), nil, nil)
	before := c.Masks()

	err := c.Resize(256, nil)
	assert.True(t, errors.Is(err, ErrNavigationMask))
	assert.Same(t, before, c.Masks())
	assert.Equal(t, 512, c.Masks().Resolution())

	assert.True(t, errors.Is(c.Resize(260, navmask.Open(260)), ErrResolution))

	require.NoError(t, c.OnFrame(0))
	assert.Equal(t, 1, c.Updates())
}

func TestShutdownReleasesEverything(t *testing.T) {
	light := downLight(mgl32.Vec3{})
	dev := gpu.NewSoftwareDevice(SoftwareProgram())
	c, err := NewController(dev, smallConfig(), navmask.Open(64), light, WithLogger(quietLogger()))
	require.NoError(t, err)
	raw := c.Masks().Raw
	positions := c.Sights().PositionBuffer()

	c.OnShutdown()
	c.OnShutdown()
	assert.Nil(t, light.Cookie)
	assert.Nil(t, c.Final())
	assert.True(t, errors.Is(dev.ReadTexture(raw, make([]byte, 64*64*gpu.TexelBytes)), gpu.ErrReleased))
	assert.True(t, errors.Is(dev.ReadFloat32(positions, make([]float32, 2*MaxSights)), gpu.ErrReleased))
	assert.NoError(t, c.OnFrame(1))
	assert.Equal(t, 0, c.Updates())
}

func TestSnapshotReadsFinalMask(t *testing.T) {
	c, _ := newTestController(t, smallConfig(), nil, downLight(mgl32.Vec3{32, 0, 32}))
	c.Sights().SetPosition(0, mgl32.Vec2{16.5, 16.5})
	c.Sights().SetRange(0, 3)
	require.NoError(t, c.OnFrame(0))

	img, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
	assert.Equal(t, uint8(255), img.GrayAt(16, 16).Y)
	assert.Equal(t, uint8(0), img.GrayAt(40, 40).Y)

	c.OnShutdown()
	_, err = c.Snapshot()
	assert.True(t, errors.Is(err, gpu.ErrReleased))
}

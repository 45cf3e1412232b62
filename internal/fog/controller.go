package fog

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"fogofwar/internal/gpu"
)

// PositionSource drives one visibility slot, typically a scene transform.
type PositionSource interface {
	Position() mgl32.Vec3
}

// PositionFunc adapts a function to PositionSource.
type PositionFunc func() mgl32.Vec3

func (f PositionFunc) Position() mgl32.Vec3 { return f() }

type Option func(*Controller)

// WithLogger sets the logger used for setup, resize and update messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller owns the fog resources, throttles updates and drives the
// renderer. It is meant to be called from a host loop through OnFrame and
// OnShutdown and is not safe for concurrent use.
type Controller struct {
	cfg      Config
	dev      gpu.Device
	light    *Light
	navImage *image.Gray
	nav      gpu.Texture
	sights   *SightSet
	masks    *MaskSet
	renderer *Renderer
	drivers  map[int]PositionSource
	log      *slog.Logger

	clock      float64
	lastUpdate float64
	updates    int
	shutdown   bool
}

// NewController validates the deployment and builds every resource. Any
// error is a configuration error; partially created resources are released.
func NewController(dev gpu.Device, cfg Config, nav *image.Gray, light *Light, opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg:        cfg,
		dev:        dev,
		light:      light,
		navImage:   nav,
		drivers:    make(map[int]PositionSource),
		log:        slog.Default(),
		lastUpdate: math.Inf(-1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateNavigation(nav, cfg.Resolution); err != nil {
		return nil, err
	}
	if err := validateLight(light); err != nil {
		return nil, err
	}
	if err := c.setup(); err != nil {
		c.release()
		return nil, err
	}
	c.log.Info("fog of war ready",
		"device", dev.Name(),
		"resolution", cfg.Resolution,
		"world_size", cfg.WorldSize,
		"capacity", cfg.Capacity)
	return c, nil
}

func (c *Controller) setup() error {
	var err error
	if c.sights, err = NewSightSet(c.dev, c.cfg.Capacity); err != nil {
		return err
	}
	if c.masks, err = NewMaskSet(c.dev, c.cfg.Resolution); err != nil {
		return err
	}
	if c.nav, err = uploadNavigation(c.dev, c.navImage); err != nil {
		return err
	}
	if c.renderer, err = NewRenderer(c.dev, c.sights, c.masks, c.nav); err != nil {
		return err
	}
	c.attachCookie()
	return nil
}

func (c *Controller) attachCookie() {
	c.light.Cookie = c.masks.Final
	c.light.CookieSize = c.cfg.WorldSize
}

func (c *Controller) Config() Config      { return c.cfg }
func (c *Controller) Sights() *SightSet   { return c.sights }
func (c *Controller) Masks() *MaskSet     { return c.masks }
func (c *Controller) Renderer() *Renderer { return c.renderer }
func (c *Controller) Device() gpu.Device  { return c.dev }
func (c *Controller) LightSource() *Light { return c.light }

// Clock is the sum of every dt passed to OnFrame.
func (c *Controller) Clock() float64 { return c.clock }

// Updates counts the renders OnFrame actually issued.
func (c *Controller) Updates() int { return c.updates }

// Final is the mask bound as the light cookie. It changes on Resize and is
// nil after OnShutdown.
func (c *Controller) Final() gpu.Texture {
	if c.masks == nil {
		return nil
	}
	return c.masks.Final
}

// Scale is the world-space size of one texel at the current resolution.
func (c *Controller) Scale() float32 { return c.cfg.Scale() }

// Offset is the world position of texel (0, 0): the light position minus
// half the covered extent on X and Z.
func (c *Controller) Offset() mgl32.Vec3 {
	half := c.cfg.WorldSize * 0.5
	return c.light.Position.Sub(mgl32.Vec3{half, 0, half})
}

// ShouldUpdate reports whether UpdateInterval has elapsed since the last
// accepted update and, if so, accepts this one. The first call always
// succeeds. Skipped updates are dropped, not queued.
func (c *Controller) ShouldUpdate() bool {
	if c.clock-c.lastUpdate < c.cfg.UpdateInterval {
		return false
	}
	c.lastUpdate = c.clock
	return true
}

// Track drives slot from src and sets its range. One driver per slot; a
// second Track on the same slot replaces the first.
func (c *Controller) Track(slot int, src PositionSource, rng int32) {
	c.sights.SetRange(slot, rng)
	c.drivers[slot] = src
}

// Untrack detaches the driver of slot and deactivates it.
func (c *Controller) Untrack(slot int) {
	delete(c.drivers, slot)
	c.sights.SetRange(slot, 0)
}

// OnFrame advances the clock by dt seconds and, when the throttle allows,
// pulls driver positions, syncs the sight buffers and renders.
func (c *Controller) OnFrame(dt float64) error {
	if c.shutdown {
		return nil
	}
	c.clock += dt
	if !c.ShouldUpdate() {
		return nil
	}
	for slot, src := range c.drivers {
		p := src.Position()
		c.sights.SetPosition(slot, mgl32.Vec2{p.X(), p.Z()})
	}
	if err := c.sights.Sync(); err != nil {
		return err
	}
	if err := c.renderer.Render(Params{
		Scale:          c.cfg.Scale(),
		TemporalAmount: c.cfg.TemporalAmount,
		Offset:         c.Offset(),
	}); err != nil {
		return fmt.Errorf("rendering fog: %w", err)
	}
	c.updates++
	c.log.Debug("fog updated", "clock", c.clock, "updates", c.updates)
	return nil
}

// Resize rebuilds the masks at resolution. A nil nav keeps the current
// navigation mask, which must then already match the new resolution.
// Nothing is touched when validation fails.
func (c *Controller) Resize(resolution int, nav *image.Gray) error {
	if nav == nil {
		nav = c.navImage
	}
	cfg := c.cfg
	cfg.Resolution = resolution
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := validateNavigation(nav, resolution); err != nil {
		return err
	}
	if resolution == c.cfg.Resolution && nav == c.navImage {
		return nil
	}

	masks, err := NewMaskSet(c.dev, resolution)
	if err != nil {
		return err
	}
	navTex := c.nav
	if nav != c.navImage {
		if navTex, err = uploadNavigation(c.dev, nav); err != nil {
			masks.Release()
			return err
		}
	}
	oldMasks, oldNav := c.masks, c.nav
	if err := c.renderer.Rebind(masks, navTex); err != nil {
		masks.Release()
		if navTex != oldNav {
			navTex.Release()
		}
		if rerr := c.renderer.Rebind(oldMasks, oldNav); rerr != nil {
			c.log.Error("restoring fog bindings", "err", rerr)
		}
		return err
	}
	oldMasks.Release()
	if navTex != oldNav {
		oldNav.Release()
	}
	c.masks, c.nav, c.navImage, c.cfg = masks, navTex, nav, cfg
	c.attachCookie()
	c.log.Info("fog resized", "resolution", resolution)
	return nil
}

// Snapshot reads the final mask back from the device.
func (c *Controller) Snapshot() (*image.Gray, error) {
	if c.shutdown {
		return nil, gpu.ErrReleased
	}
	return ReadMask(c.dev, c.masks.Final)
}

// OnShutdown releases every resource. Further calls are no-ops.
func (c *Controller) OnShutdown() {
	if c.shutdown {
		return
	}
	c.shutdown = true
	c.release()
	c.log.Info("fog of war released", "updates", c.updates)
}

func (c *Controller) release() {
	if c.sights != nil {
		c.sights.Release()
	}
	if c.masks != nil {
		c.masks.Release()
	}
	if c.nav != nil {
		c.nav.Release()
		c.nav = nil
	}
	if c.light != nil {
		c.light.Cookie = nil
	}
}

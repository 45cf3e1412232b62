package fog

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"fogofwar/internal/gpu"
)

// bindings holds every kernel and property id the renderer uses. It is
// resolved once per device and passed around by value.
type bindings struct {
	renderSight gpu.KernelID
	clearMask   gpu.KernelID
	blendMask   gpu.KernelID

	positions gpu.PropertyID
	ranges    gpu.PropertyID
	raw       gpu.PropertyID
	temporal  gpu.PropertyID
	final     gpu.PropertyID
	nav       gpu.PropertyID

	temporalAmount gpu.PropertyID
	scale          gpu.PropertyID
	offset         gpu.PropertyID
	resolution     gpu.PropertyID
}

func resolveBindings(dev gpu.Device) (bindings, error) {
	var b bindings
	var err error
	if b.renderSight, err = dev.FindKernel(RenderSightKernel); err != nil {
		return b, err
	}
	if b.clearMask, err = dev.FindKernel(ClearMaskKernel); err != nil {
		return b, err
	}
	if b.blendMask, err = dev.FindKernel(BlendMaskKernel); err != nil {
		return b, err
	}
	b.positions = dev.PropertyID(PositionsName)
	b.ranges = dev.PropertyID(RangesName)
	b.raw = dev.PropertyID(RawMaskName)
	b.temporal = dev.PropertyID(TemporalMaskName)
	b.final = dev.PropertyID(FinalMaskName)
	b.nav = dev.PropertyID(NavigationMaskName)
	b.temporalAmount = dev.PropertyID(TemporalAmountName)
	b.scale = dev.PropertyID(ScaleName)
	b.offset = dev.PropertyID(OffsetName)
	b.resolution = dev.PropertyID(ResolutionName)
	return b, nil
}

// Params are the per-update globals.
type Params struct {
	// Scale is world units per texel.
	Scale float32
	// TemporalAmount is the blend fraction of the new raw mask.
	TemporalAmount float32
	// Offset is the world position of the mask's texel (0, 0) corner.
	Offset mgl32.Vec3
}

// Renderer issues the per-update dispatch sequence: clear the raw mask,
// rasterize the sights into it, then blend it into the temporal and final
// masks. Submission order is the only synchronization between the passes.
type Renderer struct {
	dev    gpu.Device
	ids    bindings
	sights *SightSet
	masks  *MaskSet
	nav    gpu.Texture
}

// NewRenderer resolves the kernels on dev and binds the given resources.
func NewRenderer(dev gpu.Device, sights *SightSet, masks *MaskSet, nav gpu.Texture) (*Renderer, error) {
	ids, err := resolveBindings(dev)
	if err != nil {
		return nil, fmt.Errorf("resolving kernels: %w", err)
	}
	r := &Renderer{dev: dev, ids: ids, sights: sights, masks: masks, nav: nav}
	if err := r.Bind(); err != nil {
		return nil, err
	}
	return r, nil
}

// Bind attaches every buffer and texture to the kernels reading it. It must
// run again whenever one of them is recreated.
func (r *Renderer) Bind() error {
	if r.nav.Size() != r.masks.Resolution() {
		return fmt.Errorf("%w: navigation %d, masks %d", ErrNavigationMask, r.nav.Size(), r.masks.Resolution())
	}
	buffers := []struct {
		kernel gpu.KernelID
		prop   gpu.PropertyID
		buf    gpu.Buffer
	}{
		{r.ids.renderSight, r.ids.positions, r.sights.PositionBuffer()},
		{r.ids.renderSight, r.ids.ranges, r.sights.RangeBuffer()},
	}
	for _, b := range buffers {
		if err := r.dev.SetBuffer(b.kernel, b.prop, b.buf); err != nil {
			return fmt.Errorf("binding sight buffers: %w", err)
		}
	}
	textures := []struct {
		kernel gpu.KernelID
		prop   gpu.PropertyID
		tex    gpu.Texture
	}{
		{r.ids.clearMask, r.ids.raw, r.masks.Raw},
		{r.ids.renderSight, r.ids.raw, r.masks.Raw},
		{r.ids.renderSight, r.ids.nav, r.nav},
		{r.ids.blendMask, r.ids.raw, r.masks.Raw},
		{r.ids.blendMask, r.ids.temporal, r.masks.Temporal},
		{r.ids.blendMask, r.ids.final, r.masks.Final},
	}
	for _, t := range textures {
		if err := r.dev.SetTexture(t.kernel, t.prop, t.tex); err != nil {
			return fmt.Errorf("binding %s: %w", t.tex.Name(), err)
		}
	}
	return nil
}

// Rebind swaps in new masks and navigation texture and binds them.
func (r *Renderer) Rebind(masks *MaskSet, nav gpu.Texture) error {
	r.masks = masks
	r.nav = nav
	return r.Bind()
}

// ClearGrid is the thread-group grid of the mask kernels.
func (r *Renderer) ClearGrid() [3]int {
	n := r.masks.Resolution() / TileSize
	return [3]int{n, n, 1}
}

// SightGrid is the thread-group grid of the sight kernel.
func (r *Renderer) SightGrid() [3]int {
	return [3]int{r.sights.Capacity() / BatchSize, 1, 1}
}

// Render sets the globals and enqueues the three passes. The sight set must
// have been synced for this update.
func (r *Renderer) Render(p Params) error {
	if err := r.dev.SetFloat(r.ids.scale, p.Scale); err != nil {
		return fmt.Errorf("setting %s: %w", ScaleName, err)
	}
	if err := r.dev.SetFloat(r.ids.temporalAmount, p.TemporalAmount); err != nil {
		return fmt.Errorf("setting %s: %w", TemporalAmountName, err)
	}
	if err := r.dev.SetVector(r.ids.offset, p.Offset.Vec4(0)); err != nil {
		return fmt.Errorf("setting %s: %w", OffsetName, err)
	}
	if err := r.dev.SetInt(r.ids.resolution, int32(r.masks.Resolution())); err != nil {
		return fmt.Errorf("setting %s: %w", ResolutionName, err)
	}

	grid := r.ClearGrid()
	if err := r.dev.Dispatch(r.ids.clearMask, grid[0], grid[1], grid[2]); err != nil {
		return err
	}
	sight := r.SightGrid()
	if err := r.dev.Dispatch(r.ids.renderSight, sight[0], sight[1], sight[2]); err != nil {
		return err
	}
	return r.dev.Dispatch(r.ids.blendMask, grid[0], grid[1], grid[2])
}

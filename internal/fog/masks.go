package fog

import (
	"fmt"
	"image"

	"fogofwar/internal/gpu"
)

// Texture binding names. Each mask texture carries its binding name.
const (
	RawMaskName        = "RawMaskTexture"
	TemporalMaskName   = "TemporalMaskTexture"
	FinalMaskName      = "FinalMaskTexture"
	NavigationMaskName = "NavigationMaskTexture"
)

// MaskSet bundles the three fog masks. Raw holds the current rasterization,
// Temporal the blended history and Final the projected result. All three
// share one resolution and are only ever recreated together.
type MaskSet struct {
	Raw      gpu.Texture
	Temporal gpu.Texture
	Final    gpu.Texture

	resolution int
}

// NewMaskSet allocates the three masks at resolution.
func NewMaskSet(dev gpu.Device, resolution int) (*MaskSet, error) {
	if err := validateResolution(resolution); err != nil {
		return nil, err
	}
	m := &MaskSet{resolution: resolution}
	var err error
	if m.Raw, err = makeMask(dev, resolution, RawMaskName, gpu.FilterPoint); err != nil {
		return nil, err
	}
	if m.Final, err = makeMask(dev, resolution, FinalMaskName, gpu.FilterBilinear); err != nil {
		m.Release()
		return nil, err
	}
	if m.Temporal, err = makeMask(dev, resolution, TemporalMaskName, gpu.FilterBilinear); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func makeMask(dev gpu.Device, resolution int, name string, filter gpu.FilterMode) (gpu.Texture, error) {
	tex, err := dev.NewTexture(gpu.TextureDesc{
		Name:        name,
		Size:        resolution,
		Filter:      filter,
		RandomWrite: true,
	})
	if err != nil {
		return nil, fmt.Errorf("allocating %s: %w", name, err)
	}
	return tex, nil
}

func (m *MaskSet) Resolution() int { return m.resolution }

// Textures returns Raw, Temporal and Final in that order.
func (m *MaskSet) Textures() []gpu.Texture {
	return []gpu.Texture{m.Raw, m.Temporal, m.Final}
}

// Release frees every mask. The set must not be used afterwards.
func (m *MaskSet) Release() {
	for _, t := range []*gpu.Texture{&m.Raw, &m.Final, &m.Temporal} {
		if *t != nil {
			(*t).Release()
			*t = nil
		}
	}
}

// ReadMask copies the red channel of tex into a grayscale image.
func ReadMask(dev gpu.Device, tex gpu.Texture) (*image.Gray, error) {
	size := tex.Size()
	pix := make([]byte, size*size*gpu.TexelBytes)
	if err := dev.ReadTexture(tex, pix); err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = pix[i*gpu.TexelBytes]
	}
	return img, nil
}

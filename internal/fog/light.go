package fog

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"fogofwar/internal/gpu"
)

// LightType mirrors the lighting system's light kinds.
type LightType int

const (
	DirectionalLight LightType = iota
	PointLight
	SpotLight
)

func (t LightType) String() string {
	switch t {
	case DirectionalLight:
		return "directional"
	case PointLight:
		return "point"
	case SpotLight:
		return "spot"
	}
	return fmt.Sprintf("LightType(%d)", int(t))
}

// Light is the lighting-system light that projects the fog. Position is the
// owning transform's world position; the mask is centred on it.
type Light struct {
	Type     LightType
	Position mgl32.Vec3
	Rotation mgl32.Quat

	// Set by the controller.
	Cookie     gpu.Texture
	CookieSize float32
}

// DownwardRotation is the orientation of a light looking straight down.
func DownwardRotation() mgl32.Quat {
	return mgl32.QuatBetweenVectors(forward, down)
}

var (
	forward = mgl32.Vec3{0, 0, 1}
	down    = mgl32.Vec3{0, -1, 0}
)

// orientationEpsilon bounds the distance between the rotated forward vector
// and straight down.
const orientationEpsilon = 1e-4

// validateLight accepts only directional lights whose forward axis points
// straight down. Roll around the vertical axis is ignored.
func validateLight(l *Light) error {
	if l == nil {
		return fmt.Errorf("%w: no light", ErrLightType)
	}
	if l.Type != DirectionalLight {
		return fmt.Errorf("%w: got %s", ErrLightType, l.Type)
	}
	dir := l.Rotation.Normalize().Rotate(forward)
	if dir.Sub(down).Len() > orientationEpsilon {
		return fmt.Errorf("%w: forward is %v", ErrLightOrientation, dir)
	}
	return nil
}

// validateNavigation checks that the navigation mask is square and matches
// the mask resolution.
func validateNavigation(nav *image.Gray, resolution int) error {
	if nav == nil {
		return fmt.Errorf("%w: no navigation mask", ErrNavigationMask)
	}
	b := nav.Bounds()
	if b.Dx() != b.Dy() {
		return fmt.Errorf("%w: %dx%d is not square", ErrNavigationMask, b.Dx(), b.Dy())
	}
	if b.Dx() != resolution {
		return fmt.Errorf("%w: %d texels, resolution %d", ErrNavigationMask, b.Dx(), resolution)
	}
	return nil
}

// uploadNavigation creates the navigation texture. Walkable texels are
// bright; the kernels read the red channel.
func uploadNavigation(dev gpu.Device, nav *image.Gray) (gpu.Texture, error) {
	b := nav.Bounds()
	size := b.Dx()
	tex, err := dev.NewTexture(gpu.TextureDesc{
		Name:   NavigationMaskName,
		Size:   size,
		Filter: gpu.FilterPoint,
	})
	if err != nil {
		return nil, fmt.Errorf("allocating %s: %w", NavigationMaskName, err)
	}
	pix := make([]byte, size*size*gpu.TexelBytes)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := nav.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			i := (y*size + x) * gpu.TexelBytes
			pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 255
		}
	}
	if err := dev.WriteTexture(tex, pix); err != nil {
		tex.Release()
		return nil, fmt.Errorf("uploading %s: %w", NavigationMaskName, err)
	}
	return tex, nil
}

package navmask

import (
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(64, rand.New(rand.NewSource(7)), DefaultWallOptions(64))
	b := Generate(64, rand.New(rand.NewSource(7)), DefaultWallOptions(64))
	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, image.Rect(0, 0, 64, 64), a.Bounds())
}

func TestGenerateKeepsBorderAndExclusionOpen(t *testing.T) {
	opts := DefaultWallOptions(128)
	opts.Segments = 200
	opts.ExclusionRadius = 10
	m := Generate(128, rand.New(rand.NewSource(1)), opts)

	blocked := 0
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			if !IsBlocked(m, x, y) {
				continue
			}
			blocked++
			assert.True(t, x > 1 && x < 127 && y > 1 && y < 127, "wall on border at %d,%d", x, y)
			dx, dy := x-opts.ExclusionX, y-opts.ExclusionY
			assert.GreaterOrEqual(t, dx*dx+dy*dy, 100, "wall inside exclusion at %d,%d", x, y)
		}
	}
	assert.Positive(t, blocked)
}

func TestIsBlockedOutOfBounds(t *testing.T) {
	m := Open(8)
	assert.False(t, IsBlocked(m, 3, 3))
	assert.True(t, IsBlocked(m, -1, 0))
	assert.True(t, IsBlocked(m, 8, 0))
}

func TestLoadPNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			c := color.NRGBA{255, 255, 255, 255}
			if x == 5 {
				c = color.NRGBA{0, 0, 0, 255}
			}
			src.SetNRGBA(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), "nav.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, m.Bounds().Dx())
	assert.True(t, IsBlocked(m, 5, 9))
	assert.False(t, IsBlocked(m, 6, 9))
}

func TestLoadBMP(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range src.Pix {
		src.Pix[i] = Walkable
	}
	src.SetGray(3, 4, color.Gray{Blocked})
	path := filepath.Join(t.TempDir(), "nav.bmp")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, src))
	require.NoError(t, f.Close())

	m, err := Load(path)
	require.NoError(t, err)
	assert.True(t, IsBlocked(m, 3, 4))
	assert.False(t, IsBlocked(m, 4, 4))
}

func TestLoadTGA(t *testing.T) {
	// 2x2 uncompressed true-colour, 24 bpp, top-left origin.
	header := []byte{0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 0, 2, 0, 24, 0x20}
	pixels := []byte{
		0, 0, 0, 255, 255, 255,
		255, 255, 255, 255, 255, 255,
	}
	path := filepath.Join(t.TempDir(), "nav.tga")
	require.NoError(t, os.WriteFile(path, append(header, pixels...), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), m.Bounds())
	assert.True(t, IsBlocked(m, 0, 0))
	assert.False(t, IsBlocked(m, 1, 0))
	assert.False(t, IsBlocked(m, 1, 1))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestResample(t *testing.T) {
	m := Open(8)
	m.Pix[m.PixOffset(2, 3)] = Blocked

	up := Resample(m, 16)
	assert.Equal(t, image.Rect(0, 0, 16, 16), up.Bounds())
	assert.True(t, IsBlocked(up, 4, 6))
	assert.True(t, IsBlocked(up, 5, 7))
	assert.False(t, IsBlocked(up, 6, 6))

	assert.Same(t, m, Resample(m, 8))
}

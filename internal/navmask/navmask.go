// Package navmask loads and generates navigation masks: square grayscale
// images where bright texels are walkable and dark texels block sight.
package navmask

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"math/rand"
	"os"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
)

const (
	Walkable = 255
	Blocked  = 0
)

// Load decodes a PNG, BMP or TGA file into a grayscale mask.
func Load(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("navmask: open %s: %w", path, err)
	}
	defer f.Close()
	img, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("navmask: decode %s: %w", path, err)
	}
	return toGray(img), nil
}

var (
	pngMagic = []byte("\x89PNG\r\n\x1a\n")
	bmpMagic = []byte("BM")
)

// decode picks the decoder from the file header. TGA has no magic number, so
// anything that is neither PNG nor BMP is read as TGA. image.Decode is not
// used because the TGA package registers an empty magic that shadows PNG.
func decode(r *bufio.Reader) (image.Image, error) {
	head, err := r.Peek(len(pngMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(head, pngMagic):
		return png.Decode(r)
	case bytes.HasPrefix(head, bmpMagic):
		return bmp.Decode(r)
	}
	return tga.Decode(r)
}

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Resample scales m to size x size with nearest-neighbour sampling so walls
// stay hard-edged.
func Resample(m *image.Gray, size int) *image.Gray {
	if m.Bounds().Dx() == size && m.Bounds().Dy() == size {
		return m
	}
	dst := image.NewGray(image.Rect(0, 0, size, size))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), m, m.Bounds(), xdraw.Src, nil)
	return dst
}

// Open returns a fully walkable mask of the given size.
func Open(size int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, size, size))
	for i := range m.Pix {
		m.Pix[i] = Walkable
	}
	return m
}

// WallOptions shape the procedurally generated walls.
type WallOptions struct {
	Segments          int
	MinLen            int
	MaxLen            int
	ThicknessVariance int
	// ExclusionRadius keeps walls away from (ExclusionX, ExclusionY).
	ExclusionRadius int
	ExclusionX      int
	ExclusionY      int
}

// DefaultWallOptions scales the wall layout to size.
func DefaultWallOptions(size int) WallOptions {
	return WallOptions{
		Segments:          25,
		MinLen:            max(size/40, 2),
		MaxLen:            max(size/5, 4),
		ThicknessVariance: 2,
		ExclusionRadius:   max(size/32, 1),
		ExclusionX:        size / 2,
		ExclusionY:        size / 2,
	}
}

// Generate returns a walkable mask with random straight wall segments.
func Generate(size int, rng *rand.Rand, opts WallOptions) *image.Gray {
	m := Open(size)
	if size < 5 {
		return m
	}
	for s := 0; s < opts.Segments; s++ {
		lengthRange := opts.MaxLen - opts.MinLen + 1
		if lengthRange <= 0 {
			lengthRange = 1
		}
		length := opts.MinLen + rng.Intn(lengthRange)
		thickness := 1
		if opts.ThicknessVariance > 0 {
			thickness += rng.Intn(opts.ThicknessVariance + 1)
		}
		horizontal := rng.Intn(2) == 0
		x := rng.Intn(size-4) + 2
		y := rng.Intn(size-4) + 2
		dx, dy := 0, 1
		if horizontal {
			dx, dy = 1, 0
		}
		perpX, perpY := dy, dx
		cx, cy := x, y
		for l := 0; l < length; l++ {
			if cx <= 1 || cx >= size-1 || cy <= 1 || cy >= size-1 {
				break
			}
			for t := -thickness; t <= thickness; t++ {
				trySetWall(m, opts, cx+perpX*t, cy+perpY*t)
			}
			cx += dx
			cy += dy
		}
	}
	return m
}

// trySetWall blocks a texel unless it is on the border or inside the
// exclusion radius.
func trySetWall(m *image.Gray, opts WallOptions, x, y int) {
	size := m.Bounds().Dx()
	if x <= 1 || x >= size-1 || y <= 1 || y >= size-1 {
		return
	}
	dx := x - opts.ExclusionX
	dy := y - opts.ExclusionY
	if dx*dx+dy*dy < opts.ExclusionRadius*opts.ExclusionRadius {
		return
	}
	m.Pix[m.PixOffset(x, y)] = Blocked
}

// IsBlocked reports whether (x, y) blocks sight. Out-of-bounds texels do.
func IsBlocked(m *image.Gray, x, y int) bool {
	if !(image.Point{x, y}).In(m.Bounds()) {
		return true
	}
	return m.GrayAt(x, y).Y < 128
}

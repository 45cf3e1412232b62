package fog

import (
	"github.com/chewxy/math32"

	"fogofwar/internal/gpu"
)

// SoftwareProgram returns Go twins of the OpenCL kernels for
// gpu.SoftwareDevice. Bindings mirror the OpenCL argument lists.
func SoftwareProgram() gpu.SoftwareProgram {
	layouts := OpenCLProgram().Kernels
	return gpu.SoftwareProgram{
		ClearMaskKernel: {
			GroupSize: [3]int{TileSize, TileSize, 1},
			Bindings:  layouts[ClearMaskKernel].Args,
			Run:       clearMask,
		},
		RenderSightKernel: {
			GroupSize: [3]int{BatchSize, 1, 1},
			Serial:    true,
			Bindings:  layouts[RenderSightKernel].Args,
			Run:       renderSights,
		},
		BlendMaskKernel: {
			GroupSize: [3]int{TileSize, TileSize, 1},
			Bindings:  layouts[BlendMaskKernel].Args,
			Run:       blendMask,
		},
	}
}

func clearMask(g *gpu.Group) error {
	raw, size := g.Texels(RawMaskName)
	res := int(g.Int(ResolutionName))
	base := g.Base()
	for y := base[1]; y < base[1]+g.Size[1]; y++ {
		for x := base[0]; x < base[0]+g.Size[0]; x++ {
			if x >= res || y >= res || x >= size || y >= size {
				continue
			}
			i := (y*size + x) * gpu.TexelBytes
			clear(raw[i : i+gpu.TexelBytes])
		}
	}
	return nil
}

func renderSights(g *gpu.Group) error {
	raw, size := g.Texels(RawMaskName)
	nav, navSize := g.Texels(NavigationMaskName)
	if navSize != size {
		return ErrNavigationMask
	}
	positions := g.Float32s(PositionsName)
	ranges := g.Int32s(RangesName)
	scale := g.Float(ScaleName)
	offset := g.Vector(OffsetName)
	base := g.Base()[0]
	for id := base; id < base+g.Size[0] && id < len(ranges); id++ {
		rng := ranges[id]
		if rng <= 0 {
			continue
		}
		cx := int(math32.Floor((positions[2*id] - offset[0]) / scale))
		cy := int(math32.Floor((positions[2*id+1] - offset[2]) / scale))
		r := int(math32.Ceil(float32(rng) / scale))
		rasterizeSight(raw, nav, size, cx, cy, r)
	}
	return nil
}

// rasterizeSight marks every texel reachable from (cx, cy) within r texels
// by rays cast to the perimeter of the bounding square. Blocked navigation
// texels are revealed but stop the ray.
func rasterizeSight(raw, nav []byte, size, cx, cy, r int) {
	r2 := r * r
	for i := -r; i <= r; i++ {
		castRay(raw, nav, size, cx, cy, cx+i, cy-r, r2)
		castRay(raw, nav, size, cx, cy, cx+i, cy+r, r2)
		castRay(raw, nav, size, cx, cy, cx-r, cy+i, r2)
		castRay(raw, nav, size, cx, cy, cx+r, cy+i, r2)
	}
}

// castRay walks a Bresenham line from (x0, y0) towards (x1, y1).
func castRay(raw, nav []byte, size, x0, y0, x1, y1, r2 int) {
	ox, oy := x0, y0
	dx := absInt(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -absInt(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		if x0 < 0 || x0 >= size || y0 < 0 || y0 >= size {
			return
		}
		ddx, ddy := x0-ox, y0-oy
		if ddx*ddx+ddy*ddy > r2 {
			return
		}
		i := (y0*size + x0) * gpu.TexelBytes
		raw[i], raw[i+1], raw[i+2], raw[i+3] = 255, 255, 255, 255
		if nav[i] < navBlocked {
			return
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func blendMask(g *gpu.Group) error {
	raw, size := g.Texels(RawMaskName)
	temporal, _ := g.Texels(TemporalMaskName)
	final, _ := g.Texels(FinalMaskName)
	res := int(g.Int(ResolutionName))
	amount := g.Float(TemporalAmountName)
	base := g.Base()
	for y := base[1]; y < base[1]+g.Size[1]; y++ {
		for x := base[0]; x < base[0]+g.Size[0]; x++ {
			if x >= res || y >= res || x >= size || y >= size {
				continue
			}
			i := (y*size + x) * gpu.TexelBytes
			for c := i; c < i+gpu.TexelBytes; c++ {
				t := blendTexel(temporal[c], raw[c], amount)
				temporal[c] = t
				final[c] = max(raw[c], t)
			}
		}
	}
	return nil
}

// blendTexel moves prev towards target by amount, rounding away from prev
// so any non-zero amount eventually reaches target.
func blendTexel(prev, target byte, amount float32) byte {
	step := (float32(target) - float32(prev)) * amount
	if step > 0 {
		step = math32.Ceil(step)
	} else {
		step = math32.Floor(step)
	}
	v := float32(prev) + step
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

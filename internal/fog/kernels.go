package fog

import "fogofwar/internal/gpu"

// Kernel names. They are the contract with the kernel program and must not
// be renamed independently of it.
const (
	RenderSightKernel = "RenderSightMain"
	ClearMaskKernel   = "ClearMaskMain"
	BlendMaskKernel   = "BlendMaskMain"
)

// Global parameter names.
const (
	TemporalAmountName = "TemporalAmount"
	ScaleName          = "Scale"
	OffsetName         = "Offset"
	ResolutionName     = "Resolution"
)

// navBlocked is the red-channel threshold below which a navigation texel
// stops sight rays.
const navBlocked = 128

const kernelSource = `#define NAV_BLOCKED 128

__kernel void ClearMaskMain(
    const int Resolution,
    __global uchar4* RawMaskTexture)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= Resolution || y >= Resolution) {
        return;
    }
    RawMaskTexture[y * Resolution + x] = (uchar4)(0, 0, 0, 0);
}

static void cast_ray(
    int size,
    __global const uchar4* nav,
    __global uchar4* raw,
    int x0, int y0, int x1, int y1, int r2)
{
    int ox = x0;
    int oy = y0;
    int dx = abs(x1 - x0);
    int sx = x0 < x1 ? 1 : -1;
    int dy = -abs(y1 - y0);
    int sy = y0 < y1 ? 1 : -1;
    int err = dx + dy;
    for (;;) {
        if (x0 < 0 || x0 >= size || y0 < 0 || y0 >= size) {
            return;
        }
        int ddx = x0 - ox;
        int ddy = y0 - oy;
        if (ddx * ddx + ddy * ddy > r2) {
            return;
        }
        int idx = y0 * size + x0;
        raw[idx] = (uchar4)(255, 255, 255, 255);
        if (nav[idx].x < NAV_BLOCKED) {
            return;
        }
        if (x0 == x1 && y0 == y1) {
            return;
        }
        int e2 = 2 * err;
        if (e2 >= dy) {
            err += dy;
            x0 += sx;
        }
        if (e2 <= dx) {
            err += dx;
            y0 += sy;
        }
    }
}

__kernel void RenderSightMain(
    const int Resolution,
    const float Scale,
    const float4 Offset,
    __global const float2* EyesightWorldPositions,
    __global const int* EyesightRanges,
    __global const uchar4* NavigationMaskTexture,
    __global uchar4* RawMaskTexture)
{
    int id = get_global_id(0);
    int range = EyesightRanges[id];
    if (range <= 0) {
        return;
    }
    float2 pos = EyesightWorldPositions[id];
    int cx = (int)floor((pos.x - Offset.x) / Scale);
    int cy = (int)floor((pos.y - Offset.z) / Scale);
    int r = (int)ceil((float)range / Scale);
    int r2 = r * r;
    for (int i = -r; i <= r; i++) {
        cast_ray(Resolution, NavigationMaskTexture, RawMaskTexture, cx, cy, cx + i, cy - r, r2);
        cast_ray(Resolution, NavigationMaskTexture, RawMaskTexture, cx, cy, cx + i, cy + r, r2);
        cast_ray(Resolution, NavigationMaskTexture, RawMaskTexture, cx, cy, cx - r, cy + i, r2);
        cast_ray(Resolution, NavigationMaskTexture, RawMaskTexture, cx, cy, cx + r, cy + i, r2);
    }
}

__kernel void BlendMaskMain(
    const int Resolution,
    const float TemporalAmount,
    __global const uchar4* RawMaskTexture,
    __global uchar4* TemporalMaskTexture,
    __global uchar4* FinalMaskTexture)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    if (x >= Resolution || y >= Resolution) {
        return;
    }
    int idx = y * Resolution + x;
    float4 raw = convert_float4(RawMaskTexture[idx]);
    float4 prev = convert_float4(TemporalMaskTexture[idx]);
    float4 step = (raw - prev) * TemporalAmount;
    float4 next = prev + select(floor(step), ceil(step), step > (float4)(0.0f));
    uchar4 temporal = convert_uchar4_sat(next);
    TemporalMaskTexture[idx] = temporal;
    FinalMaskTexture[idx] = max(RawMaskTexture[idx], temporal);
}
`

// OpenCLProgram returns the fog kernels for the OpenCL backend.
func OpenCLProgram() gpu.CLProgram {
	return gpu.CLProgram{
		Source: kernelSource,
		Kernels: map[string]gpu.CLKernel{
			ClearMaskKernel: {
				Args:      []string{ResolutionName, RawMaskName},
				LocalSize: []int{TileSize, TileSize},
			},
			RenderSightKernel: {
				Args: []string{
					ResolutionName, ScaleName, OffsetName,
					PositionsName, RangesName,
					NavigationMaskName, RawMaskName,
				},
				LocalSize: []int{BatchSize},
			},
			BlendMaskKernel: {
				Args: []string{
					ResolutionName, TemporalAmountName,
					RawMaskName, TemporalMaskName, FinalMaskName,
				},
				LocalSize: []int{TileSize, TileSize},
			},
		},
	}
}

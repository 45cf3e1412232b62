package main

import (
	"fmt"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"fogofwar/internal/gpu"
)

// Draw composites the final fog mask over the level and overlays the
// player marker and optional debug text.
func (g *Game) Draw(screen *ebiten.Image) {
	final := g.ctrl.Final()
	if final == nil {
		return
	}
	res := final.Size()
	// A resize in Update is only picked up by Layout on the next frame.
	if screen.Bounds().Dx() != res || screen.Bounds().Dy() != res {
		return
	}
	n := res * res * gpu.TexelBytes
	if len(g.fogTexels) != n {
		g.fogTexels = make([]byte, n)
		g.pixels = make([]byte, n)
	}
	if err := g.ctrl.Device().ReadTexture(final, g.fogTexels); err != nil {
		log.Printf("Reading fog mask failed: %v", err)
		return
	}
	g.composite(res)
	g.drawMarker(res)
	screen.WritePixels(g.pixels)

	if *debugFlag {
		cfg := g.ctrl.Config()
		light := g.ctrl.LightSource().Position
		debugMsg := fmt.Sprintf("FPS: %.1f  TPS: %.1f\nDevice: %s\nFog: %dx%d  world %.0f  updates %d  clock %.1fs\nLight: %.1f, %.1f\nUpdate: %.2f ms\n[ ] resolution",
			ebiten.ActualFPS(), ebiten.ActualTPS(), g.ctrl.Device().Name(),
			cfg.Resolution, cfg.Resolution, cfg.WorldSize, g.ctrl.Updates(), g.ctrl.Clock(),
			light.X(), light.Z(),
			g.lastUpdate.Seconds()*1000)
		ebitenutil.DebugPrint(screen, debugMsg)
	}
}

// composite shades each texel of the level by the fog visibility.
func (g *Game) composite(res int) {
	for i := 0; i < res*res; i++ {
		rgb := floorRGB
		if g.nav.Pix[i] < 128 {
			rgb = wallRGB
		}
		v := uint32(g.fogTexels[i*gpu.TexelBytes])
		base := i * gpu.TexelBytes
		g.pixels[base] = byte(uint32(rgb[0]) * v / 255)
		g.pixels[base+1] = byte(uint32(rgb[1]) * v / 255)
		g.pixels[base+2] = byte(uint32(rgb[2]) * v / 255)
		g.pixels[base+3] = 255
	}
}

func (g *Game) drawMarker(res int) {
	cx, cy := g.worldToTexel(g.px, g.pz)
	for _, offset := range markerFootprint {
		x := cx + offset.dx
		y := cy + offset.dy
		if x < 0 || x >= res || y < 0 || y >= res {
			continue
		}
		base := (y*res + x) * gpu.TexelBytes
		g.pixels[base] = markerRGB[0]
		g.pixels[base+1] = markerRGB[1]
		g.pixels[base+2] = markerRGB[2]
		g.pixels[base+3] = 255
	}
}

// Layout reports the fog resolution as the logical screen size.
func (g *Game) Layout(_, _ int) (int, int) {
	res := g.ctrl.Config().Resolution
	return res, res
}

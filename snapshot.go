package main

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/HugoSmits86/nativewebp"
)

// writeSnapshot encodes the final fog mask as a lossless WebP file.
func (g *Game) writeSnapshot(path string) error {
	mask, err := g.ctrl.Snapshot()
	if err != nil {
		return err
	}
	b := mask.Bounds()
	img := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := mask.GrayAt(x, y).Y
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := nativewebp.Encode(f, img, nil); err != nil {
		return fmt.Errorf("WebP encode: %w", err)
	}
	return f.Close()
}

package screenshot

import (
	"image"
	"image/color"
)

var highlight = color.RGBA{R: 255, G: 0, B: 0, A: 255}

// pixelTolerance is the summed 8-bit RGB delta below which pixels count as equal.
const pixelTolerance = 24

// Diff renders changed pixels in red over a faded copy of the baseline.
// Areas covered by only one of the images are marked changed. It returns
// the diff image and the number of changed pixels.
func Diff(baseline, replay image.Image) (*image.RGBA, int) {
	bb, rb := baseline.Bounds(), replay.Bounds()
	w, h := max(bb.Dx(), rb.Dx()), max(bb.Dy(), rb.Dy())
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	changed := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			inBase := x < bb.Dx() && y < bb.Dy()
			inReplay := x < rb.Dx() && y < rb.Dy()
			if !inBase || !inReplay {
				out.SetRGBA(x, y, highlight)
				changed++
				continue
			}

			r1, g1, b1, _ := baseline.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			r2, g2, b2, _ := replay.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			delta := absDiff(r1>>8, r2>>8) + absDiff(g1>>8, g2>>8) + absDiff(b1>>8, b2>>8)
			if delta > pixelTolerance {
				out.SetRGBA(x, y, highlight)
				changed++
				continue
			}
			out.SetRGBA(x, y, fade(r1>>8, g1>>8, b1>>8))
		}
	}
	return out, changed
}

// fade blends a pixel 70% toward white.
func fade(r, g, b uint32) color.RGBA {
	mix := func(c uint32) uint8 {
		return uint8((c*30 + 255*70) / 100)
	}
	return color.RGBA{R: mix(r), G: mix(g), B: mix(b), A: 255}
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

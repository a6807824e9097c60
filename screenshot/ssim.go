package screenshot

import (
	"image"
)

const (
	windowSize = 8
	c1         = (0.01 * 255) * (0.01 * 255)
	c2         = (0.03 * 255) * (0.03 * 255)
)

// plane is one 8-bit channel of an image, row-major.
type plane struct {
	w, h int
	px   []float64
}

func planes(img image.Image) (gray, r, g, b plane) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	gray = plane{w, h, make([]float64, w*h)}
	r = plane{w, h, make([]float64, w*h)}
	g = plane{w, h, make([]float64, w*h)}
	b = plane{w, h, make([]float64, w*h)}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cr, cg, cb, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			fr, fg, fb := float64(cr>>8), float64(cg>>8), float64(cb>>8)
			i := y*w + x
			r.px[i], g.px[i], b.px[i] = fr, fg, fb
			gray.px[i] = 0.299*fr + 0.587*fg + 0.114*fb
		}
	}
	return gray, r, g, b
}

// ssim averages the structural similarity of non-overlapping windows.
// Images smaller than a window are compared as a single window.
func ssim(a, b plane) float64 {
	if a.w != b.w || a.h != b.h || a.w == 0 || a.h == 0 {
		return 0
	}

	var total float64
	var windows int
	for y0 := 0; y0 < a.h; y0 += windowSize {
		for x0 := 0; x0 < a.w; x0 += windowSize {
			x1, y1 := min(x0+windowSize, a.w), min(y0+windowSize, a.h)
			total += windowSSIM(a, b, x0, y0, x1, y1)
			windows++
		}
	}
	return total / float64(windows)
}

func windowSSIM(a, b plane, x0, y0, x1, y1 int) float64 {
	n := float64((x1 - x0) * (y1 - y0))

	var sumA, sumB float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			sumA += a.px[y*a.w+x]
			sumB += b.px[y*b.w+x]
		}
	}
	meanA, meanB := sumA/n, sumB/n

	var varA, varB, cov float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			da := a.px[y*a.w+x] - meanA
			db := b.px[y*b.w+x] - meanB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n
	varB /= n
	cov /= n

	return ((2*meanA*meanB + c1) * (2*cov + c2)) /
		((meanA*meanA + meanB*meanB + c1) * (varA + varB + c2))
}

// Similarity holds the structural and per-channel scores of two images.
type Similarity struct {
	Structural float64 `json:"structural"`
	Channels   float64 `json:"channels"`
}

// Min returns the lower of the two scores.
func (s Similarity) Min() float64 {
	return min(s.Structural, s.Channels)
}

// Measure scores two images. Images with different dimensions score zero.
func Measure(a, b image.Image) Similarity {
	if a.Bounds().Dx() != b.Bounds().Dx() || a.Bounds().Dy() != b.Bounds().Dy() {
		return Similarity{}
	}
	ga, ra, gra, ba := planes(a)
	gb, rb, grb, bb := planes(b)
	return Similarity{
		Structural: ssim(ga, gb),
		Channels:   (ssim(ra, rb) + ssim(gra, grb) + ssim(ba, bb)) / 3,
	}
}

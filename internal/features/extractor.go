package features

import "math"

const (
	centerLow  = 0.3
	centerHigh = 0.7

	// focusEpsilon keeps the focus ratio finite on flat frames
	focusEpsilon = 1e-6
)

func luma(r, g, b float64) float64 {
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// Extract computes the feature set of a frame in a single pass.
//
// Gradient energy uses the left and upper neighbours of each pixel, so the
// first row and column contribute to the color statistics only. Only the
// previous row of luma values is retained. A buffer that fails Validate
// yields the zero Features.
func Extract(buf PixelBuffer) Features {
	var f Features
	if buf.Validate() != nil {
		return f
	}

	w, h := buf.Width, buf.Height
	pixels := float64(w * h)

	cx0 := int(math.Floor(float64(w) * centerLow))
	cx1 := int(math.Floor(float64(w) * centerHigh))
	cy0 := int(math.Floor(float64(h) * centerLow))
	cy1 := int(math.Floor(float64(h) * centerHigh))

	prev := make([]float64, w)
	cur := make([]float64, w)

	var sumR, sumG, sumB, satSum, lumaSum float64
	var globalEnergy, centerEnergy float64
	var counts [HistogramBins]int

	pix := buf.Pix
	for y := 0; y < h; y++ {
		row := pix[y*w*4 : (y+1)*w*4]
		inCenterRow := y >= cy0 && y <= cy1

		for x := 0; x < w; x++ {
			i := x * 4
			r, g, b := row[i], row[i+1], row[i+2]

			sumR += float64(r)
			sumG += float64(g)
			sumB += float64(b)

			hi := max(r, g, b)
			if hi > 0 {
				lo := min(r, g, b)
				satSum += float64(hi-lo) / float64(hi)
			}

			l := luma(float64(r), float64(g), float64(b))
			lumaSum += l
			cur[x] = l

			bin := int(l / 16)
			if bin > HistogramBins-1 {
				bin = HistogramBins - 1
			}
			counts[bin]++

			if x == 0 || y == 0 {
				continue
			}

			grad := math.Abs(l-cur[x-1]) + math.Abs(l-prev[x])
			globalEnergy += grad
			if inCenterRow && x >= cx0 && x <= cx1 {
				centerEnergy += grad
			}
		}

		prev, cur = cur, prev
	}

	for i, c := range counts {
		f.Histogram[i] = float64(c) / pixels
	}

	f.AvgRGB = RGB{sumR / pixels, sumG / pixels, sumB / pixels}
	f.Saturation = satSum / pixels
	f.Brightness = lumaSum / pixels
	f.Texture = globalEnergy / pixels
	f.CenterFocusRatio = centerEnergy / (globalEnergy + focusEpsilon)

	return f
}

package features

import (
	"fmt"
	"image"
	"image/draw"
	"math"
)

// HistogramBins is the number of luma buckets per frame
const HistogramBins = 16

// RGB is a mean color with channels in [0, 255]
type RGB [3]float64

// Distance returns the euclidean distance between two colors
func (c RGB) Distance(o RGB) float64 {
	dr := c[0] - o[0]
	dg := c[1] - o[1]
	db := c[2] - o[2]
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Luma returns the BT.709 luma of the color
func (c RGB) Luma() float64 {
	return luma(c[0], c[1], c[2])
}

// Rounded returns the channels rounded to integers for display
func (c RGB) Rounded() [3]int {
	return [3]int{
		int(math.Floor(c[0] + 0.5)),
		int(math.Floor(c[1] + 0.5)),
		int(math.Floor(c[2] + 0.5)),
	}
}

// MeanRGB averages a list of colors; an empty list yields black
func MeanRGB(colors []RGB) RGB {
	var out RGB
	if len(colors) == 0 {
		return out
	}
	for _, c := range colors {
		out[0] += c[0]
		out[1] += c[1]
		out[2] += c[2]
	}
	n := float64(len(colors))
	return RGB{out[0] / n, out[1] / n, out[2] / n}
}

// Histogram is a normalized 16-bin luma histogram
type Histogram [HistogramBins]float64

// L1 returns the sum of absolute bin differences
func (h Histogram) L1(o Histogram) float64 {
	var d float64
	for i := range h {
		d += math.Abs(h[i] - o[i])
	}
	return d
}

// Sum returns the total mass of the histogram
func (h Histogram) Sum() float64 {
	var s float64
	for _, v := range h {
		s += v
	}
	return s
}

// Features describes one decoded frame
type Features struct {
	AvgRGB           RGB       `json:"avgRgb"`
	Histogram        Histogram `json:"histogram"`
	Saturation       float64   `json:"saturation"`
	Brightness       float64   `json:"brightness"`
	Texture          float64   `json:"texture"`
	CenterFocusRatio float64   `json:"centerFocusRatio"`
}

// Sample is the feature set of the frame shown at TimeSec
type Sample struct {
	TimeSec float64 `json:"timeSec"`
	Features
}

// PixelBuffer holds an 8-bit RGBA frame in row-major order with no padding
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// Validate checks that the buffer dimensions match its pixel data
func (b PixelBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", b.Width, b.Height)
	}
	if want := b.Width * b.Height * 4; len(b.Pix) < want {
		return fmt.Errorf("frame data too short: have %d bytes, want %d", len(b.Pix), want)
	}
	return nil
}

// Image wraps the buffer as an *image.RGBA without copying
func (b PixelBuffer) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// FromImage converts any image into a tightly packed PixelBuffer
func FromImage(img image.Image) PixelBuffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == w*4 && bounds.Min == (image.Point{}) {
		return PixelBuffer{Width: w, Height: h, Pix: rgba.Pix[:w*h*4]}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return PixelBuffer{Width: w, Height: h, Pix: dst.Pix}
}

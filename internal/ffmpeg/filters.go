package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter. A height of -2 keeps the aspect ratio with an
// even height.
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || (height <= 0 && height != -1 && height != -2) {
		// Return self without adding filter - allows chaining to continue
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// SceneSelect keeps only frames whose scene score exceeds threshold and
// logs them with showinfo
func (fb *FilterBuilder) SceneSelect(threshold float64) *FilterBuilder {
	if threshold <= 0 || threshold >= 1 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("select='gt(scene,%f)'", threshold),
		"metadata=print:key=lavfi.scene_score",
	)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

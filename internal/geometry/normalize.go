// Package geometry converts between pixel coordinates and the resolution
// independent [0,1000] box system used by the normalized action grammar.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// Scale is the upper bound of the normalized coordinate range.
const Scale = 1000

// ErrInvalidDimensions is returned when an image dimension is zero or negative.
var ErrInvalidDimensions = errors.New("image dimensions must be positive")

// ToNormalized maps a pixel coordinate onto the [0,Scale] range for the given
// image size. Results are rounded to the nearest integer and clamped, so any
// in-bounds pixel produces a valid normalized point.
func ToNormalized(x, y, width, height int) (nx, ny int, err error) {
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	nx = clamp(int(math.Round(float64(x) / float64(width) * Scale)))
	ny = clamp(int(math.Round(float64(y) / float64(height) * Scale)))
	return nx, ny, nil
}

// ToPixel is the inverse of ToNormalized. The round trip is lossy by design:
// the reconstructed pixel may differ from the original by up to one pixel in
// each coordinate.
func ToPixel(nx, ny, width, height int) (x, y int, err error) {
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	x = int(math.Round(float64(nx) / Scale * float64(width)))
	y = int(math.Round(float64(ny) / Scale * float64(height)))
	return x, y, nil
}

// InRange reports whether a coordinate lies inside the normalized range.
func InRange(n int) bool { return n >= 0 && n <= Scale }

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > Scale {
		return Scale
	}
	return n
}

// Package detections - detection records exchanged between detectors and the fusion core.
package detections

import "fmt"

// Box is an axis-aligned bounding box in image pixel space.
// Coordinates are kept in float32 as produced by the detectors;
// X1 <= X2 and Y1 <= Y2 for every valid box.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// String formats the box for display.
func (b Box) String() string {
	return fmt.Sprintf("(%.2f, %.2f), (%.2f, %.2f)", b.X1, b.Y1, b.X2, b.Y2)
}

// Area returns the box area in square pixels. Degenerate boxes have area 0.
func (b Box) Area() float32 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Valid reports whether the box satisfies the coordinate ordering invariant.
func (b Box) Valid() bool {
	return b.X1 <= b.X2 && b.Y1 <= b.Y2
}

// IoU calculates the Intersection over Union between two boxes.
//
// The intersection corners are the maximum of the two top-left corners and
// the minimum of the two bottom-right corners; a non-positive width or
// height means the boxes do not overlap. The union follows
// inclusion-exclusion: Area(A) + Area(B) - Area(A∩B).
//
// Arguments:
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0. Zero-area inputs yield 0.0
//     rather than a division by zero.
func (b Box) IoU(o Box) float32 {
	ix1 := max(b.X1, o.X1)
	iy1 := max(b.Y1, o.Y1)
	ix2 := min(b.X2, o.X2)
	iy2 := min(b.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	unionArea := b.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0
	}
	return interArea / unionArea
}

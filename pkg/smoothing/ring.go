package smoothing

import "github.com/sensai-labs/go-proctor/pkg/features"

// Ring is a fixed-capacity FIFO of float64 samples with an O(1)
// arithmetic mean. Pushing onto a full ring evicts the oldest sample.
type Ring struct {
	buf  []float64
	head int
	n    int
	sum  float64
}

// NewRing returns a ring holding at most capacity samples.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends a sample, evicting the oldest when full.
func (r *Ring) Push(v float64) {
	if r.n == len(r.buf) {
		r.sum -= r.buf[r.head]
	} else {
		r.n++
	}
	r.buf[r.head] = v
	r.sum += v
	r.head = (r.head + 1) % len(r.buf)
}

// Mean returns the arithmetic mean over the buffered samples, or zero
// when empty.
func (r *Ring) Mean() float64 {
	if r.n == 0 {
		return 0
	}
	return r.sum / float64(r.n)
}

// Len returns how many samples are buffered.
func (r *Ring) Len() int { return r.n }

// Full reports whether the ring is at capacity.
func (r *Ring) Full() bool { return r.n == len(r.buf) }

// Reset empties the ring without reallocating.
func (r *Ring) Reset() {
	r.head = 0
	r.n = 0
	r.sum = 0
}

// VecRing is a Ring over 2D vectors, smoothing each axis independently.
type VecRing struct {
	x, y Ring
}

// NewVecRing returns a vector ring holding at most capacity samples.
func NewVecRing(capacity int) *VecRing {
	return &VecRing{x: *NewRing(capacity), y: *NewRing(capacity)}
}

// Push appends a vector sample.
func (r *VecRing) Push(v features.Vec2) {
	r.x.Push(v.X)
	r.y.Push(v.Y)
}

// Mean returns the per-axis arithmetic mean.
func (r *VecRing) Mean() features.Vec2 {
	return features.Vec2{X: r.x.Mean(), Y: r.y.Mean()}
}

// Len returns how many samples are buffered.
func (r *VecRing) Len() int { return r.x.Len() }

// Reset empties both axes.
func (r *VecRing) Reset() {
	r.x.Reset()
	r.y.Reset()
}

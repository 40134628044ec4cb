package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/nestc/internal/ir"
)

// Buffer is a dense multi-dimensional array. Dimension 0 is innermost
// (stride 1). Each dimension covers [Min, Min+Extent).
//
// Bool and integer elements are stored as int64, floating-point elements as
// float64, already normalised to the element type.
type Buffer struct {
	typ    ir.ScalarType
	min    []int64
	extent []int64
	stride []int64

	ints   []int64
	floats []float64

	writes []int32 // per-element store counts, nil unless tracking
}

// NewBuffer allocates a zeroed buffer with the given extents, every
// dimension starting at 0. Extents must be positive.
func NewBuffer(t ir.ScalarType, extents ...int64) *Buffer {
	b := &Buffer{
		typ:    t,
		min:    make([]int64, len(extents)),
		extent: append([]int64(nil), extents...),
		stride: make([]int64, len(extents)),
	}
	size := int64(1)
	for d, e := range extents {
		if e < 1 {
			panic(fmt.Sprintf("engine: buffer extent %d in dimension %d", e, d))
		}
		b.stride[d] = size
		size *= e
	}
	if t.IsFloat() {
		b.floats = make([]float64, size)
	} else {
		b.ints = make([]int64, size)
	}
	return b
}

// NewBufferRegion allocates a zeroed buffer covering region.
func NewBufferRegion(t ir.ScalarType, region []ir.Range) *Buffer {
	extents := make([]int64, len(region))
	mins := make([]int64, len(region))
	for d, r := range region {
		extents[d] = r.Extent
		mins[d] = r.Min
	}
	return NewBuffer(t, extents...).WithMin(mins...)
}

// WithMin shifts the buffer's coordinates so dimension d starts at mins[d].
// It returns b for chaining.
func (b *Buffer) WithMin(mins ...int64) *Buffer {
	if len(mins) != len(b.min) {
		panic(fmt.Sprintf("engine: WithMin got %d mins for rank %d", len(mins), len(b.min)))
	}
	copy(b.min, mins)
	return b
}

// TrackWrites enables per-element store counting and resets the counts.
// It returns b for chaining.
func (b *Buffer) TrackWrites() *Buffer {
	b.writes = make([]int32, b.size())
	return b
}

func (b *Buffer) Type() ir.ScalarType { return b.typ }

func (b *Buffer) Rank() int { return len(b.extent) }

// Region returns the coordinates the buffer covers.
func (b *Buffer) Region() []ir.Range {
	out := make([]ir.Range, len(b.extent))
	for d := range b.extent {
		out[d] = ir.Range{Min: b.min[d], Extent: b.extent[d]}
	}
	return out
}

func (b *Buffer) size() int {
	if b.floats != nil {
		return len(b.floats)
	}
	return len(b.ints)
}

// offset maps coordinates to a flat index. It panics on coordinates outside
// the buffer.
func (b *Buffer) offset(coords []int64) int {
	if len(coords) != len(b.extent) {
		panic(fmt.Sprintf("engine: %d coordinates for rank %d buffer", len(coords), len(b.extent)))
	}
	off := 0
	for d, c := range coords {
		off += b.checked(d, c)
	}
	return off
}

// checked returns the flat offset contribution of coordinate c in dimension d.
func (b *Buffer) checked(d int, c int64) int {
	i := c - b.min[d]
	if i < 0 || i >= b.extent[d] {
		panic(fmt.Sprintf("engine: coordinate %d out of range %s in dimension %d",
			c, ir.Range{Min: b.min[d], Extent: b.extent[d]}, d))
	}
	return int(i * b.stride[d])
}

// At returns the element at coords.
func (b *Buffer) At(coords ...int64) Scalar {
	off := b.offset(coords)
	if b.floats != nil {
		return Scalar{Type: b.typ, F: b.floats[off]}
	}
	return Scalar{Type: b.typ, I: b.ints[off]}
}

// Set stores v, converted to the element type, at coords. Set does not
// count as a pipeline write.
func (b *Buffer) Set(v Scalar, coords ...int64) {
	off := b.offset(coords)
	v = v.Convert(b.typ)
	if b.floats != nil {
		b.floats[off] = v.F
		return
	}
	b.ints[off] = v.I
}

// Fill sets every element to v.
func (b *Buffer) Fill(v Scalar) {
	v = v.Convert(b.typ)
	for i := range b.floats {
		b.floats[i] = v.F
	}
	for i := range b.ints {
		b.ints[i] = v.I
	}
}

// Each calls fn with the coordinates and value of every element, dimension 0
// varying fastest. coords is reused between calls.
func (b *Buffer) Each(fn func(coords []int64, v Scalar)) {
	coords := append([]int64(nil), b.min...)
	for off := 0; off < b.size(); off++ {
		if b.floats != nil {
			fn(coords, Scalar{Type: b.typ, F: b.floats[off]})
		} else {
			fn(coords, Scalar{Type: b.typ, I: b.ints[off]})
		}
		for d := range coords {
			coords[d]++
			if coords[d] < b.min[d]+b.extent[d] {
				break
			}
			coords[d] = b.min[d]
		}
	}
}

// WriteCount returns how many pipeline stores hit coords since tracking was
// enabled. It is 0 when tracking is off.
func (b *Buffer) WriteCount(coords ...int64) int {
	if b.writes == nil {
		return 0
	}
	return int(atomic.LoadInt32(&b.writes[b.offset(coords)]))
}

func (b *Buffer) countWrite(off int) {
	if b.writes != nil {
		atomic.AddInt32(&b.writes[off], 1)
	}
}

// stagingCopy allocates an empty buffer with b's shape, tracking writes when
// b does.
func (b *Buffer) stagingCopy() *Buffer {
	s := NewBuffer(b.typ, b.extent...).WithMin(b.min...)
	if b.writes != nil {
		s.TrackWrites()
	}
	return s
}

// commit copies a fully computed staging buffer into b and adds its store
// counts. Shapes must match.
func (b *Buffer) commit(staged *Buffer) {
	copy(b.ints, staged.ints)
	copy(b.floats, staged.floats)
	if b.writes != nil && staged.writes != nil {
		for i, n := range staged.writes {
			b.writes[i] += n
		}
	}
}

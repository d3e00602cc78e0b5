package pipeflow

import (
	"fmt"
	"math"
)

// TimePoint is a position on the animation time axis, in ticks.
type TimePoint int

const (
	TimeNegativeInfinity TimePoint = math.MinInt
	TimePositiveInfinity TimePoint = math.MaxInt
)

// ValidityInterval is the closed range of animation times over which a
// computed result stays correct. The zero value is the empty interval.
type ValidityInterval struct {
	start TimePoint
	end   TimePoint
	valid bool
}

// NewInterval creates the closed interval [start, end].
// It panics if start > end; use EmptyInterval for an empty range.
func NewInterval(start, end TimePoint) ValidityInterval {
	if start > end {
		panic(fmt.Sprintf("pipeflow: malformed validity interval [%d, %d]", start, end))
	}
	return ValidityInterval{start: start, end: end, valid: true}
}

// EmptyInterval returns an interval containing no time at all.
func EmptyInterval() ValidityInterval {
	return ValidityInterval{}
}

// InfiniteInterval returns an interval covering the whole time axis.
func InfiniteInterval() ValidityInterval {
	return NewInterval(TimeNegativeInfinity, TimePositiveInfinity)
}

// PointInterval returns the interval [t, t].
func PointInterval(t TimePoint) ValidityInterval {
	return NewInterval(t, t)
}

// Start returns the first time of the interval.
func (v ValidityInterval) Start() TimePoint { return v.start }

// End returns the last time of the interval.
func (v ValidityInterval) End() TimePoint { return v.end }

// IsEmpty reports whether the interval contains no time.
func (v ValidityInterval) IsEmpty() bool {
	return !v.valid
}

// IsInfinite reports whether the interval covers the whole time axis.
func (v ValidityInterval) IsInfinite() bool {
	return v.valid && v.start == TimeNegativeInfinity && v.end == TimePositiveInfinity
}

// Contains reports whether t lies inside the interval.
func (v ValidityInterval) Contains(t TimePoint) bool {
	return v.valid && v.start <= t && t <= v.end
}

// ContainsInterval reports whether other lies completely inside v.
// The empty interval is contained in every interval.
func (v ValidityInterval) ContainsInterval(other ValidityInterval) bool {
	if other.IsEmpty() {
		return true
	}
	return v.valid && v.start <= other.start && other.end <= v.end
}

// Intersect returns the overlap of a and b.
func Intersect(a, b ValidityInterval) ValidityInterval {
	if a.IsEmpty() || b.IsEmpty() {
		return EmptyInterval()
	}
	start := max(a.start, b.start)
	end := min(a.end, b.end)
	if start > end {
		return EmptyInterval()
	}
	return ValidityInterval{start: start, end: end, valid: true}
}

// Union returns the smallest interval containing both a and b.
// The empty interval is the identity element.
func Union(a, b ValidityInterval) ValidityInterval {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	return ValidityInterval{start: min(a.start, b.start), end: max(a.end, b.end), valid: true}
}

// Intersect narrows v to its overlap with other.
func (v ValidityInterval) Intersect(other ValidityInterval) ValidityInterval {
	return Intersect(v, other)
}

func (v ValidityInterval) String() string {
	if v.IsEmpty() {
		return "[empty]"
	}
	return fmt.Sprintf("[%s, %s]", formatTime(v.start), formatTime(v.end))
}

func formatTime(t TimePoint) string {
	switch t {
	case TimeNegativeInfinity:
		return "-inf"
	case TimePositiveInfinity:
		return "+inf"
	default:
		return fmt.Sprintf("%d", int(t))
	}
}

// Package offset implements the comparable per-source progress markers used
// throughout the streaming core to identify how much of a Source has been
// consumed.
package offset

import (
	"fmt"
	"strings"
)

// Ordering is the result of comparing two offsets.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
)

// Offset is an opaque, totally-ordered progress marker for one Source.
// Comparison is only defined between offsets produced by the same
// underlying kind; comparing across kinds fails rather than guessing.
type Offset interface {
	fmt.Stringer

	// CompareTo orders this offset against other. It returns an error if
	// other is not comparable (different concrete kind).
	CompareTo(other Offset) (Ordering, error)
}

// LongOffset is a monotonic integer offset, e.g. a Kafka-style consumer
// position or a file line number.
type LongOffset int64

func (o LongOffset) String() string { return fmt.Sprintf("%d", int64(o)) }

// CompareTo implements Offset.
func (o LongOffset) CompareTo(other Offset) (Ordering, error) {
	peer, ok := other.(LongOffset)
	if !ok {
		return Equal, fmt.Errorf("offset: cannot compare LongOffset with %T", other)
	}
	switch {
	case o < peer:
		return Less, nil
	case o > peer:
		return Greater, nil
	default:
		return Equal, nil
	}
}

// CompositeOffset is an ordered, fixed-length vector of per-source offsets
// representing the progress of an entire query. A nil element at index i
// means "no data has ever been assigned for the source at index i"; it
// compares less than any concrete offset of that slot.
type CompositeOffset struct {
	offsets []Offset
}

// NewCompositeOffset builds a CompositeOffset from a slice of per-source
// offsets (which may contain nils for sources without progress yet). The
// slice is copied; callers may reuse it after this call.
func NewCompositeOffset(offsets []Offset) CompositeOffset {
	cp := make([]Offset, len(offsets))
	copy(cp, offsets)
	return CompositeOffset{offsets: cp}
}

// Len returns the number of component slots.
func (c CompositeOffset) Len() int { return len(c.offsets) }

// At returns the offset at index i, or nil if that slot is empty.
func (c CompositeOffset) At(i int) Offset { return c.offsets[i] }

func (c CompositeOffset) String() string {
	parts := make([]string, len(c.offsets))
	for i, o := range c.offsets {
		if o == nil {
			parts[i] = "-"
			continue
		}
		parts[i] = o.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// CompareTo implements Offset. Two CompositeOffsets are comparable only if
// they carry the same number of component slots; an empty slot is treated
// as strictly less than any concrete value in that slot, and equal to
// another empty slot.
//
// Composite comparison is strict per spec: the result is Greater only if
// every component is >= and at least one is strictly >, symmetrically for
// Less. Any mixed direction across components is incomparable.
func (c CompositeOffset) CompareTo(other Offset) (Ordering, error) {
	peer, ok := other.(CompositeOffset)
	if !ok {
		return Equal, fmt.Errorf("offset: cannot compare CompositeOffset with %T", other)
	}
	if len(c.offsets) != len(peer.offsets) {
		return Equal, fmt.Errorf("offset: composite offsets have different arity (%d vs %d)", len(c.offsets), len(peer.offsets))
	}

	sawGreater := false
	sawLess := false
	for i := range c.offsets {
		ord, err := compareSlot(c.offsets[i], peer.offsets[i])
		if err != nil {
			return Equal, fmt.Errorf("offset: component %d: %w", i, err)
		}
		switch ord {
		case Greater:
			sawGreater = true
		case Less:
			sawLess = true
		}
	}

	switch {
	case sawGreater && sawLess:
		return Equal, fmt.Errorf("offset: composite offsets are incomparable (mixed direction)")
	case sawGreater:
		return Greater, nil
	case sawLess:
		return Less, nil
	default:
		return Equal, nil
	}
}

// compareSlot compares a single component, treating nil as less than any
// concrete value and equal to another nil.
func compareSlot(a, b Offset) (Ordering, error) {
	switch {
	case a == nil && b == nil:
		return Equal, nil
	case a == nil:
		return Less, nil
	case b == nil:
		return Greater, nil
	default:
		return a.CompareTo(b)
	}
}

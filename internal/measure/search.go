// Package measure holds the numeric helpers used to drive instrument
// sweeps: binary search over bias codes, confidence-bound bit error rates,
// and monotonic interpolation of transfer curves.
package measure

import "fmt"

// BinaryIterator performs binary search over integers, bounded or unbounded,
// with a step size. Every value it yields is low + N*step. The caller looks
// at Next, measures, and moves the iterator Up or Down until HasNext is
// false.
type BinaryIterator struct {
	offset  int
	step    int
	low     int
	high    int
	bounded bool
	current int

	saveMarker int
	saved      bool
	saveInfo   any
}

// NewBinaryIterator returns an iterator over [low, high) with the given step.
func NewBinaryIterator(low, high, step int) (*BinaryIterator, error) {
	if step <= 0 {
		return nil, fmt.Errorf("measure: step must be positive, got %d", step)
	}
	if high < low {
		return nil, fmt.Errorf("measure: high %d below low %d", high, low)
	}

	nmax := (high - low) / step
	if low+step*nmax < high {
		nmax++
	}
	it := &BinaryIterator{
		offset:  low,
		step:    step,
		high:    nmax,
		bounded: true,
	}
	it.current = (it.low + it.high) / 2
	return it, nil
}

// NewUnboundedBinaryIterator returns an iterator with no upper bound: it
// doubles upward until the caller moves it Down, which bounds the search.
func NewUnboundedBinaryIterator(low, step int) (*BinaryIterator, error) {
	if step <= 0 {
		return nil, fmt.Errorf("measure: step must be positive, got %d", step)
	}
	return &BinaryIterator{
		offset: low,
		step:   step,
	}, nil
}

// HasNext reports whether the search interval is still open.
func (it *BinaryIterator) HasNext() bool {
	return !it.bounded || it.low < it.high
}

// Next returns the next value to measure at.
func (it *BinaryIterator) Next() int {
	return it.current*it.step + it.offset
}

// SetCurrent moves the marker to the given value, which must be low + N*step.
func (it *BinaryIterator) SetCurrent(val int) error {
	if (val-it.offset)%it.step != 0 {
		return fmt.Errorf("measure: value %d is not a multiple of step size", val)
	}
	it.current = (val - it.offset) / it.step
	return nil
}

// Up discards everything at or below the current value.
func (it *BinaryIterator) Up() {
	it.low = it.current + 1

	if it.bounded {
		it.current = (it.low + it.high) / 2
		return
	}
	if it.current > 0 {
		it.current *= 2
	} else {
		it.current = 1
	}
}

// Down discards everything above and including the current value. On an
// unbounded iterator this also bounds the search.
func (it *BinaryIterator) Down() {
	it.high = it.current
	it.bounded = true
	it.current = (it.low + it.high) / 2
}

// Save records the current value.
func (it *BinaryIterator) Save() {
	it.saveMarker = it.current
	it.saved = true
}

// SaveInfo records the current value together with caller data.
func (it *BinaryIterator) SaveInfo(info any) {
	it.Save()
	it.saveInfo = info
}

// LastSave returns the last saved value, if any.
func (it *BinaryIterator) LastSave() (int, bool) {
	if !it.saved {
		return 0, false
	}
	return it.saveMarker*it.step + it.offset, true
}

// LastSaveInfo returns the data recorded by the last SaveInfo.
func (it *BinaryIterator) LastSaveInfo() any {
	return it.saveInfo
}

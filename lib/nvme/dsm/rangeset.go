// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package dsm

import (
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/binstruct"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

// IndexError is returned when a range is placed at a slot that does
// not exist in a BufferSize-byte range list.
type IndexError struct {
	Index int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("dsm: range index %d out of bounds [0, %d): %v",
		e.Index, MaxRanges, nvmeprim.ErrCapacityExceeded)
}

func (e *IndexError) Unwrap() error { return nvmeprim.ErrCapacityExceeded }

// RangeSet is the ordered list of ranges carried by one Dataset
// Management command.  The zero RangeSet is empty and ready to use.
//
// Slots are addressed by index, the way a range list buffer is
// filled; setting a slot past the current end leaves zero ranges in
// the gap, exactly as the bytes of a zeroed buffer would.
type RangeSet struct {
	ranges [MaxRanges]Range
	n      int
}

// Set places r at slot index.  It fails immediately, before anything
// is encoded, if index does not fit in the buffer.
func (rs *RangeSet) Set(index int, r Range) error {
	if index < 0 || index >= MaxRanges {
		return &IndexError{Index: index}
	}
	rs.ranges[index] = r
	if index >= rs.n {
		rs.n = index + 1
	}
	return nil
}

// Append places r in the slot after the last used one.
func (rs *RangeSet) Append(r Range) error {
	return rs.Set(rs.n, r)
}

// SetDeallocate is shorthand for setting a range with no context
// attributes.
func (rs *RangeSet) SetDeallocate(index int, lba nvmeprim.LBA, length uint32) error {
	return rs.Set(index, Range{
		Length:      length,
		StartingLBA: lba,
	})
}

// Len returns the number of slots in use, including any zero-filled
// gaps.
func (rs *RangeSet) Len() int { return rs.n }

// Ranges returns a copy of the ranges in slot order.
func (rs *RangeSet) Ranges() []Range {
	ret := make([]Range, rs.n)
	copy(ret, rs.ranges[:rs.n])
	return ret
}

// Reset empties the set.
func (rs *RangeSet) Reset() {
	*rs = RangeSet{}
}

// Encode serializes the set into a fresh BufferSize-byte range list;
// slot i occupies bytes [16*i, 16*i+16) and unused slots are zero.
//
// The returned buffer does not alias the set, so editing the set
// afterward cannot disturb a command that is still in flight.
func Encode(rs *RangeSet) []byte {
	buf := make([]byte, BufferSize)
	for i, r := range rs.ranges[:rs.n] {
		if err := binstruct.MarshalAt(buf, i*RangeSize, r); err != nil {
			// Range is fixed-size and i < MaxRanges.
			panic(fmt.Errorf("should not happen: %w", err))
		}
	}
	return buf
}

// Decode parses the first nr ranges out of a range list buffer.
func Decode(buf []byte, nr int) (*RangeSet, error) {
	if nr < 0 || nr > MaxRanges {
		return nil, &EntryCountError{NR: nr}
	}
	var rs RangeSet
	for i := 0; i < nr; i++ {
		var r Range
		if _, err := binstruct.UnmarshalAt(buf, i*RangeSize, &r); err != nil {
			return nil, fmt.Errorf("dsm: range %d: %w: %v", i, nvmeprim.ErrDecode, err)
		}
		rs.ranges[i] = r
	}
	rs.n = nr
	return &rs, nil
}

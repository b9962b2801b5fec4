// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package dsm

import (
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/fmtutil"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

// Attributes are the CDW11 flags of a Dataset Management command.
type Attributes uint32

const (
	AttrIntegralRead  = Attributes(1 << 0) // IDR
	AttrIntegralWrite = Attributes(1 << 1) // IDW
	AttrDeallocate    = Attributes(1 << 2) // AD
)

var attributeNames = []string{
	"IDR",
	"IDW",
	"AD",
}

func (a Attributes) Has(flag Attributes) bool { return a&flag == flag }

func (a Attributes) String() string {
	return fmtutil.BitfieldString(a, attributeNames, fmtutil.HexNone)
}

// EntryCountError is a Number of Ranges that cannot be put in a
// command: the field is 8 bits wide and 0's based, so only 1 through
// MaxRanges are expressible.
type EntryCountError struct {
	NR int
}

func (e *EntryCountError) Error() string {
	return fmt.Sprintf("dsm: number of ranges %d not in [1, %d]", e.NR, MaxRanges)
}

// Unwrap classifies an over-long range count as a capacity overflow;
// a zero or negative count is merely invalid.
func (e *EntryCountError) Unwrap() error {
	if e.NR > MaxRanges {
		return nvmeprim.ErrCapacityExceeded
	}
	return nil
}

// Command is a Dataset Management command.  The range list travels
// separately, as the command's data buffer (see Encode).
//
// NR is the number of valid ranges the device is told to read from
// the buffer.  It is deliberately not checked against how many ranges
// the caller encoded: telling the device a different number is a
// device-side error scenario, not a local one.
type Command struct {
	NSID       nvmeprim.NSID
	NR         int
	Attributes Attributes
}

// Deallocate returns the usual TRIM command for nr ranges.
func Deallocate(nsid nvmeprim.NSID, nr int) Command {
	return Command{
		NSID:       nsid,
		NR:         nr,
		Attributes: AttrDeallocate,
	}
}

func (c Command) Validate() error {
	if c.NR < 1 || c.NR > MaxRanges {
		return &EntryCountError{NR: c.NR}
	}
	return nil
}

// CDW10 returns command dword 10: the 0's based number of ranges in
// bits 7:0.
func (c Command) CDW10() (uint32, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	return uint32(c.NR-1) & 0xff, nil
}

// CDW11 returns command dword 11: the attribute flags.
func (c Command) CDW11() uint32 {
	return uint32(c.Attributes) & 0x7
}

// ParseCDW returns the command that the given dwords describe.
func ParseCDW(nsid nvmeprim.NSID, cdw10, cdw11 uint32) Command {
	return Command{
		NSID:       nsid,
		NR:         int(cdw10&0xff) + 1,
		Attributes: Attributes(cdw11 & 0x7),
	}
}

// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dsm encodes the range list of the NVMe Dataset Management
// command.
package dsm

import (
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/binstruct"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

const (
	RangeSize  = 0x10
	BufferSize = 0x1000
	MaxRanges  = BufferSize / RangeSize
)

// Range is one entry of a Dataset Management range list.
type Range struct {
	ContextAttributes uint32       `bin:"off=0x0, siz=0x4"` // opaque; 0 if unused
	Length            uint32       `bin:"off=0x4, siz=0x4"` // in logical blocks
	StartingLBA       nvmeprim.LBA `bin:"off=0x8, siz=0x8"`
	binstruct.End     `bin:"off=0x10"`
}

func (r Range) String() string {
	return fmt.Sprintf("{attr=%#x len=%d lba=%v}", r.ContextAttributes, r.Length, r.StartingLBA)
}

// EndLBA returns the first LBA after the range.
func (r Range) EndLBA() nvmeprim.LBA {
	return r.StartingLBA.Add(nvmeprim.LBACount(r.Length))
}

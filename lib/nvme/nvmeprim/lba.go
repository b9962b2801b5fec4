// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package nvmeprim holds the primitive types shared by the NVMe
// command models: block addresses, namespace IDs, opcodes, and
// completion statuses.
package nvmeprim

import (
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/fmtutil"
)

type (
	// LBA is a logical block address within a namespace.
	LBA uint64
	// LBACount is a number of logical blocks, or a distance
	// between two LBAs.
	LBACount uint64
)

type NSID uint32

func formatAddr(addr uint64, f fmt.State, verb rune) {
	switch verb {
	case 'v', 's', 'q':
		str := fmt.Sprintf("%#x", addr)
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), str)
	default:
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), addr)
	}
}

func (a LBA) Format(f fmt.State, verb rune)      { formatAddr(uint64(a), f, verb) }
func (c LBACount) Format(f fmt.State, verb rune) { formatAddr(uint64(c), f, verb) }

func (a LBA) Sub(b LBA) LBACount { return LBACount(a - b) }
func (a LBA) Add(c LBACount) LBA { return a + LBA(c) }

// Bytes returns the size in bytes of c blocks of lbaSize bytes each.
func (c LBACount) Bytes(lbaSize uint32) int64 {
	return int64(c) * int64(lbaSize)
}

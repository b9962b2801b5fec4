// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package conformance

import (
	"encoding/binary"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

// stamp fills the first nlb blocks of buf so that each block begins
// with its own LBA and the rest of it is tag.
func stamp(buf []byte, blockSize uint32, slba nvmeprim.LBA, nlb nvmeprim.LBACount, tag byte) {
	for i := nvmeprim.LBACount(0); i < nlb; i++ {
		block := buf[i.Bytes(blockSize):(i + 1).Bytes(blockSize)]
		binary.LittleEndian.PutUint64(block, uint64(slba.Add(i)))
		for j := 8; j < len(block); j++ {
			block[j] = tag
		}
	}
}

// checkStamp verifies blocks written by stamp.
func checkStamp(buf []byte, blockSize uint32, slba nvmeprim.LBA, nlb nvmeprim.LBACount, tag byte) error {
	for i := nvmeprim.LBACount(0); i < nlb; i++ {
		lba := slba.Add(i)
		block := buf[i.Bytes(blockSize):(i + 1).Bytes(blockSize)]
		if got := nvmeprim.LBA(binary.LittleEndian.Uint64(block)); got != lba {
			return failf("block %v: stamped with LBA %v", lba, got)
		}
		for j := 8; j < len(block); j++ {
			if block[j] != tag {
				return failf("block %v: byte %d is %#02x, wrote %#02x", lba, j, block[j], tag)
			}
		}
	}
	return nil
}

// checkZero verifies that the first nlb blocks of buf are all zero.
func checkZero(buf []byte, blockSize uint32, slba nvmeprim.LBA, nlb nvmeprim.LBACount) error {
	for i, b := range buf[:nlb.Bytes(blockSize)] {
		if b != 0 {
			lba := slba.Add(nvmeprim.LBACount(uint64(i) / uint64(blockSize)))
			return failf("block %v: deallocated, but byte %d is %#02x", lba, i%int(blockSize), b)
		}
	}
	return nil
}

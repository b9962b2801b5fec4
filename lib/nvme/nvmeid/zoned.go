// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmeid

import (
	"git.lukeshu.com/nvmeconf-ng/lib/binstruct"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

// NoLimit is the value of MaxActive or MaxOpen for a namespace that
// does not limit the number of such zones.
const NoLimit = 0xffffffff

// ZoneFormat is an LBA Format Extension Data Structure.
type ZoneFormat struct {
	ZoneSize      nvmeprim.LBACount `bin:"off=0x0, siz=0x8"` // ZSZE
	DescExtSize   uint8             `bin:"off=0x8, siz=0x1"` // ZDES, in units of 64 bytes
	Reserved9     [7]byte           `bin:"off=0x9, siz=0x7"`
	binstruct.End `bin:"off=0x10"`
}

// ZonedNamespace is the I/O Command Set specific Identify Namespace
// data structure for the Zoned Namespace Command Set (CNS 05h, CSI
// 02h).
type ZonedNamespace struct {
	ZoneOpCaps      uint16 `bin:"off=0x0, siz=0x2"` // ZOC
	OptionalCmdSupp uint16 `bin:"off=0x2, siz=0x2"` // OZCS

	MaxActive uint32 `bin:"off=0x4, siz=0x4"` // MAR, 0's based
	MaxOpen   uint32 `bin:"off=0x8, siz=0x4"` // MOR, 0's based

	ResetRecommendedLimit  uint32 `bin:"off=0xc, siz=0x4"`  // RRL, seconds
	FinishRecommendedLimit uint32 `bin:"off=0x10, siz=0x4"` // FRL, seconds

	Reserved14 [0xdec]byte `bin:"off=0x14, siz=0xdec"`

	ZoneFormats [16]ZoneFormat `bin:"off=0xe00, siz=0x100"`

	Vendor [0x100]byte `bin:"off=0xf00, siz=0x100"`

	binstruct.End `bin:"off=0x1000"`
}

// ZOC bits.
const (
	ZoneCapVariableCapacity = 1 << 0
	ZoneCapActiveExcursions = 1 << 1
)

func DecodeZonedNamespace(buf []byte) (ZonedNamespace, error) {
	var zn ZonedNamespace
	err := decode(buf, &zn)
	return zn, err
}

func limit(field uint32) (int, bool) {
	if field == NoLimit {
		return 0, false
	}
	return int(field) + 1, true
}

// ActiveLimit returns the maximum number of active zones, and false
// if there is no limit.
func (z ZonedNamespace) ActiveLimit() (int, bool) { return limit(z.MaxActive) }

// OpenLimit returns the maximum number of open zones, and false if
// there is no limit.
func (z ZonedNamespace) OpenLimit() (int, bool) { return limit(z.MaxOpen) }

// ZoneSize returns the zone size for the given LBA format index,
// which is the FormatIndex of the Namespace.
func (z ZonedNamespace) ZoneSize(formatIndex int) nvmeprim.LBACount {
	if formatIndex < 0 || formatIndex >= len(z.ZoneFormats) {
		return 0
	}
	return z.ZoneFormats[formatIndex].ZoneSize
}

// SetLimits encodes open and active zone limits; a limit of 0
// means unlimited.
func (z *ZonedNamespace) SetLimits(maxOpen, maxActive int) {
	enc := func(n int) uint32 {
		if n <= 0 {
			return NoLimit
		}
		return uint32(n - 1)
	}
	z.MaxOpen = enc(maxOpen)
	z.MaxActive = enc(maxActive)
}

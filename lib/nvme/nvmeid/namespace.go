// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmeid

import (
	"git.lukeshu.com/nvmeconf-ng/lib/binstruct"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

// LBAFormat is an LBA Format Data Structure.
type LBAFormat struct {
	MetadataSize  uint16 `bin:"off=0x0, siz=0x2"` // MS
	LBADataSize   uint8  `bin:"off=0x2, siz=0x1"` // LBADS, as a power of 2
	RelPerf       uint8  `bin:"off=0x3, siz=0x1"` // RP, bits 1:0
	binstruct.End `bin:"off=0x4"`
}

// BlockSize returns the data size of an LBA in bytes, or 0 if the
// format is not in use.
func (f LBAFormat) BlockSize() uint32 {
	if f.LBADataSize < 9 || f.LBADataSize >= 32 {
		return 0
	}
	return 1 << f.LBADataSize
}

// Namespace is the Identify Namespace data structure (CNS 00h).
type Namespace struct {
	Size     nvmeprim.LBACount `bin:"off=0x0, siz=0x8"`  // NSZE
	Capacity nvmeprim.LBACount `bin:"off=0x8, siz=0x8"`  // NCAP
	Util     nvmeprim.LBACount `bin:"off=0x10, siz=0x8"` // NUSE

	Features       uint8 `bin:"off=0x18, siz=0x1"` // NSFEAT
	NumLBAFormats  uint8 `bin:"off=0x19, siz=0x1"` // NLBAF, 0's based
	FmtLBASize     uint8 `bin:"off=0x1a, siz=0x1"` // FLBAS
	MetadataCaps   uint8 `bin:"off=0x1b, siz=0x1"` // MC
	DataProtCaps   uint8 `bin:"off=0x1c, siz=0x1"` // DPC
	DataProtSet    uint8 `bin:"off=0x1d, siz=0x1"` // DPS
	MultiPathCaps  uint8 `bin:"off=0x1e, siz=0x1"` // NMIC
	ReservCaps     uint8 `bin:"off=0x1f, siz=0x1"` // RESCAP
	FmtProgress    uint8 `bin:"off=0x20, siz=0x1"` // FPI
	DeallocFeature uint8 `bin:"off=0x21, siz=0x1"` // DLFEAT

	AtomicWriteUnitNormal    uint16 `bin:"off=0x22, siz=0x2"` // NAWUN
	AtomicWriteUnitPowerFail uint16 `bin:"off=0x24, siz=0x2"` // NAWUPF
	AtomicCompareWriteUnit   uint16 `bin:"off=0x26, siz=0x2"` // NACWU
	AtomicBoundarySizeNormal uint16 `bin:"off=0x28, siz=0x2"` // NABSN
	AtomicBoundaryOffset     uint16 `bin:"off=0x2a, siz=0x2"` // NABO
	AtomicBoundaryPowerFail  uint16 `bin:"off=0x2c, siz=0x2"` // NABSPF
	OptimalIOBoundary        uint16 `bin:"off=0x2e, siz=0x2"` // NOIOB

	NVMCapacity [16]byte `bin:"off=0x30, siz=0x10"` // NVMCAP, 128-bit

	PreferredWriteGranularity      uint16 `bin:"off=0x40, siz=0x2"` // NPWG
	PreferredWriteAlignment        uint16 `bin:"off=0x42, siz=0x2"` // NPWA
	PreferredDeallocateGranularity uint16 `bin:"off=0x44, siz=0x2"` // NPDG
	PreferredDeallocateAlignment   uint16 `bin:"off=0x46, siz=0x2"` // NPDA
	OptimalWriteSize               uint16 `bin:"off=0x48, siz=0x2"` // NOWS

	Reserved4A [18]byte `bin:"off=0x4a, siz=0x12"`

	ANAGroupID       uint32  `bin:"off=0x5c, siz=0x4"`
	Reserved60       [3]byte `bin:"off=0x60, siz=0x3"`
	Attributes       uint8   `bin:"off=0x63, siz=0x1"` // NSATTR
	NVMSetID         uint16  `bin:"off=0x64, siz=0x2"`
	EnduranceGroupID uint16  `bin:"off=0x66, siz=0x2"`
	NGUID            NGUID   `bin:"off=0x68, siz=0x10"`
	EUI64            EUI64   `bin:"off=0x78, siz=0x8"`

	LBAFormats [16]LBAFormat `bin:"off=0x80, siz=0x40"`

	ReservedC0 [0xf40]byte `bin:"off=0xc0, siz=0xf40"`

	binstruct.End `bin:"off=0x1000"`
}

// NSFEAT bits.
const (
	FeatThinProvisioning = 1 << 0
	FeatNamespaceAtomics = 1 << 1
	FeatDeallocErrors    = 1 << 2
	FeatUIDReuse         = 1 << 3
	FeatOptPerf          = 1 << 4
)

func DecodeNamespace(buf []byte) (Namespace, error) {
	var ns Namespace
	err := decode(buf, &ns)
	return ns, err
}

// FormatIndex returns the index of the LBA format in use.
func (ns Namespace) FormatIndex() int {
	return int(ns.FmtLBASize & 0xf)
}

// Format returns the LBA format in use.
func (ns Namespace) Format() LBAFormat {
	return ns.LBAFormats[ns.FormatIndex()]
}

// BlockSize returns the size of a logical block in bytes.
func (ns Namespace) BlockSize() uint32 {
	return ns.Format().BlockSize()
}

// ExtendedMetadata reports whether metadata is transferred at the end
// of each block's data.
func (ns Namespace) ExtendedMetadata() bool {
	return ns.FmtLBASize&(1<<4) != 0
}

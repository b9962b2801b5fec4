// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package zns

import (
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/binstruct"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

const (
	HeaderSize     = 0x40
	DescriptorSize = 0x40
)

// ReportSize returns the size of a report buffer with room for n
// zone descriptors.
func ReportSize(n int) int {
	return HeaderSize + DescriptorSize*n
}

// ReportHeader is the start of a Zone Management Receive report.
type ReportHeader struct {
	NumZones      uint64   `bin:"off=0x0, siz=0x8"`
	Reserved      [56]byte `bin:"off=0x8, siz=0x38"`
	binstruct.End `bin:"off=0x40"`
}

// Descriptor is one zone descriptor of a Zone Management Receive
// report.
type Descriptor struct {
	Type          ZoneType          `bin:"off=0x0, siz=0x1"`
	State         ZoneState         `bin:"off=0x1, siz=0x1"`
	Attrs         ZoneAttrs         `bin:"off=0x2, siz=0x1"`
	AttrsInfo     uint8             `bin:"off=0x3, siz=0x1"`
	Reserved4     [4]byte           `bin:"off=0x4, siz=0x4"`
	Capacity      nvmeprim.LBACount `bin:"off=0x8, siz=0x8"`
	StartLBA      nvmeprim.LBA      `bin:"off=0x10, siz=0x8"`
	WritePointer  nvmeprim.LBA      `bin:"off=0x18, siz=0x8"`
	Reserved32    [32]byte          `bin:"off=0x20, siz=0x20"`
	binstruct.End `bin:"off=0x40"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("{zslba=%v state=%v wp=%v cap=%#x attrs=%v}",
		d.StartLBA, d.State, d.WritePointer, uint64(d.Capacity), d.Attrs)
}

// DecodeError is a report buffer that could not be parsed.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("zns: report offset %#x: %v: %v", e.Offset, nvmeprim.ErrDecode, e.Err)
}

func (e *DecodeError) Unwrap() error { return nvmeprim.ErrDecode }

// ZoneTypeError is a zone descriptor for a zone that is not
// sequential-write-required.
type ZoneTypeError struct {
	Index int
	Type  ZoneType
}

func (e *ZoneTypeError) Error() string {
	return fmt.Sprintf("zns: zone descriptor %d: %v: %v", e.Index, nvmeprim.ErrUnexpectedZoneType, e.Type)
}

func (e *ZoneTypeError) Unwrap() error { return nvmeprim.ErrUnexpectedZoneType }

// DecodeHeader parses the report header at the start of buf.
func DecodeHeader(buf []byte) (ReportHeader, error) {
	var hdr ReportHeader
	if _, err := binstruct.UnmarshalAt(buf, 0, &hdr); err != nil {
		return hdr, &DecodeError{Offset: 0, Err: err}
	}
	return hdr, nil
}

// DecodeDescriptor parses the zoneIndex'th zone descriptor of a
// report.  A descriptor of any zone type other than
// sequential-write-required is returned along with a *ZoneTypeError.
func DecodeDescriptor(buf []byte, zoneIndex int) (Descriptor, error) {
	var desc Descriptor
	off := ReportSize(zoneIndex)
	if zoneIndex < 0 {
		return desc, &DecodeError{Offset: off, Err: fmt.Errorf("negative zone index %d", zoneIndex)}
	}
	if _, err := binstruct.UnmarshalAt(buf, off, &desc); err != nil {
		return desc, &DecodeError{Offset: off, Err: err}
	}
	if desc.Type != ZoneTypeSequentialWriteRequired {
		return desc, &ZoneTypeError{Index: zoneIndex, Type: desc.Type}
	}
	return desc, nil
}

// DecodeReport parses a whole report: every descriptor that the
// header claims and that the buffer has room for.
func DecodeReport(buf []byte) (ReportHeader, []Descriptor, error) {
	hdr, err := DecodeHeader(buf)
	if err != nil {
		return hdr, nil, err
	}
	n := (len(buf) - HeaderSize) / DescriptorSize
	if hdr.NumZones < uint64(n) {
		n = int(hdr.NumZones)
	}
	descs := make([]Descriptor, 0, n)
	for i := 0; i < n; i++ {
		desc, err := DecodeDescriptor(buf, i)
		if err != nil {
			return hdr, descs, err
		}
		descs = append(descs, desc)
	}
	return hdr, descs, nil
}

// PutReport writes a report into buf, with as many of descs as fit,
// and returns the number of descriptors written.  The rest of buf is
// zeroed.
func PutReport(buf []byte, hdr ReportHeader, descs []Descriptor) int {
	for i := range buf {
		buf[i] = 0
	}
	if len(buf) < HeaderSize {
		return 0
	}
	mustMarshalAt(buf, 0, hdr)
	n := (len(buf) - HeaderSize) / DescriptorSize
	if len(descs) < n {
		n = len(descs)
	}
	for i, desc := range descs[:n] {
		mustMarshalAt(buf, ReportSize(i), desc)
	}
	return n
}

// EncodeReport returns a report buffer exactly large enough for descs.
func EncodeReport(hdr ReportHeader, descs []Descriptor) []byte {
	buf := make([]byte, ReportSize(len(descs)))
	PutReport(buf, hdr, descs)
	return buf
}

func mustMarshalAt(buf []byte, off int, obj any) {
	if err := binstruct.MarshalAt(buf, off, obj); err != nil {
		panic(fmt.Errorf("should not happen: %w", err))
	}
}

// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmedev

import (
	"context"
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/dsm"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeid"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

func IdentifyNamespace(ctx context.Context, ns Namespace) (nvmeid.Namespace, error) {
	buf := make([]byte, nvmeid.Size)
	if err := ns.Identify(ctx, nvmeid.CNSNamespace, buf); err != nil {
		return nvmeid.Namespace{}, err
	}
	return nvmeid.DecodeNamespace(buf)
}

func IdentifyZonedNamespace(ctx context.Context, ns Namespace) (nvmeid.ZonedNamespace, error) {
	buf := make([]byte, nvmeid.Size)
	if err := ns.Identify(ctx, nvmeid.CNSZonedNamespace, buf); err != nil {
		return nvmeid.ZonedNamespace{}, err
	}
	return nvmeid.DecodeZonedNamespace(buf)
}

// Geometry is the shape of a namespace, as far as the command models
// care.
type Geometry struct {
	BlockSize uint32
	Capacity  nvmeprim.LBACount // NCAP

	Zoned     bool
	ZoneSize  nvmeprim.LBACount
	MaxOpen   int // 0 if unlimited
	MaxActive int // 0 if unlimited
}

// NumZones returns the number of zones that fit in the namespace
// capacity.
func (g Geometry) NumZones() int {
	if !g.Zoned || g.ZoneSize == 0 {
		return 0
	}
	return int(g.Capacity / g.ZoneSize)
}

// ZoneStart returns the start LBA of the i'th zone.
func (g Geometry) ZoneStart(i int) nvmeprim.LBA {
	return nvmeprim.LBA(uint64(i) * uint64(g.ZoneSize))
}

// Probe issues the Identify commands that describe a namespace.  A
// namespace that does not support Zone Management Receive is taken to
// be conventional.
func Probe(ctx context.Context, ns Namespace) (Geometry, error) {
	id, err := IdentifyNamespace(ctx, ns)
	if err != nil {
		return Geometry{}, fmt.Errorf("identify namespace: %w", err)
	}
	geom := Geometry{
		BlockSize: id.BlockSize(),
		Capacity:  id.Capacity,
	}
	if geom.BlockSize == 0 {
		return geom, fmt.Errorf("identify namespace: %w: LBA format %d is not in use",
			nvmeprim.ErrDecode, id.FormatIndex())
	}
	if !ns.Supports(nvmeprim.OpcodeZoneManagementReceive) {
		return geom, nil
	}
	zid, err := IdentifyZonedNamespace(ctx, ns)
	if err != nil {
		return geom, fmt.Errorf("identify zoned namespace: %w", err)
	}
	geom.Zoned = true
	geom.ZoneSize = zid.ZoneSize(id.FormatIndex())
	if geom.ZoneSize == 0 {
		return geom, fmt.Errorf("identify zoned namespace: %w: zero zone size", nvmeprim.ErrDecode)
	}
	geom.MaxOpen, _ = zid.OpenLimit()
	geom.MaxActive, _ = zid.ActiveLimit()
	return geom, nil
}

// ReportZones asks for up to n descriptors, starting with the zone
// containing slba.
func ReportZones(ctx context.Context, ns Namespace, slba nvmeprim.LBA, filter zns.Filter, n int) (zns.ReportHeader, []zns.Descriptor, error) {
	buf := make([]byte, zns.ReportSize(n))
	err := ns.ZoneManagementReceive(ctx, zns.ReceiveCommand{
		NSID:   ns.ID(),
		SLBA:   slba,
		Action: zns.ReceiveReport,
		Filter: filter,
	}, buf)
	if err != nil {
		return zns.ReportHeader{}, nil, err
	}
	return zns.DecodeReport(buf)
}

// ReportZone returns the descriptor of the zone that starts at zslba.
func ReportZone(ctx context.Context, ns Namespace, zslba nvmeprim.LBA) (zns.Descriptor, error) {
	buf := make([]byte, zns.ReportSize(1))
	err := ns.ZoneManagementReceive(ctx, zns.ReceiveCommand{
		NSID:   ns.ID(),
		SLBA:   zslba,
		Action: zns.ReceiveReport,
		Filter: zns.FilterAll,
	}, buf)
	if err != nil {
		return zns.Descriptor{}, err
	}
	hdr, err := zns.DecodeHeader(buf)
	if err != nil {
		return zns.Descriptor{}, err
	}
	if hdr.NumZones == 0 {
		return zns.Descriptor{}, fmt.Errorf("zone %v: %w: empty report", zslba, nvmeprim.ErrDecode)
	}
	desc, err := zns.DecodeDescriptor(buf, 0)
	if err != nil {
		return desc, err
	}
	if desc.StartLBA != zslba {
		return desc, fmt.Errorf("zone %v: %w: report starts at zone %v", zslba, nvmeprim.ErrDecode, desc.StartLBA)
	}
	return desc, nil
}

// SendZoneAction issues a Zone Management Send for one zone.
func SendZoneAction(ctx context.Context, ns Namespace, zslba nvmeprim.LBA, action zns.Action) error {
	return ns.ZoneManagementSend(ctx, zns.SendCommand{
		NSID:   ns.ID(),
		SLBA:   zslba,
		Action: action,
	})
}

// Deallocate sends every range in rs with the Deallocate attribute.
func Deallocate(ctx context.Context, ns Namespace, rs *dsm.RangeSet) error {
	return ns.DatasetManagement(ctx, dsm.Deallocate(ns.ID(), rs.Len()), dsm.Encode(rs))
}

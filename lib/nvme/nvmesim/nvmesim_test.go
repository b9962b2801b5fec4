// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmesim_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/dsm"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmedev"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmesim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

func assertStatus(t *testing.T, err error, status nvmeprim.Status) {
	t.Helper()
	got, ok := nvmeprim.AsStatus(err)
	if assert.True(t, ok, "not a status error: %v", err) {
		assert.Equal(t, status, got, "error: %v", err)
	}
}

func newZoned(t *testing.T, maxOpen, maxActive int) *nvmesim.Namespace {
	t.Helper()
	cfg := nvmesim.Zoned(1, 4, 0x100, 0x80)
	cfg.MaxOpen = maxOpen
	cfg.MaxActive = maxActive
	ns, err := nvmesim.New(cfg, nil)
	require.NoError(t, err)
	return ns
}

func blocks(ns *nvmesim.Namespace, nlb nvmeprim.LBACount, b byte) []byte {
	return bytes.Repeat([]byte{b}, int(nlb.Bytes(ns.Config().BlockSize)))
}

func zoneState(t *testing.T, ctx context.Context, ns *nvmesim.Namespace, zslba nvmeprim.LBA) zns.Descriptor {
	t.Helper()
	desc, err := nvmedev.ReportZone(ctx, ns, zslba)
	require.NoError(t, err)
	return desc
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		Mut func(*nvmesim.Config)
		OK  bool
	}
	testcases := map[string]TestCase{
		"ok":            {func(*nvmesim.Config) {}, true},
		"nsid-0":        {func(c *nvmesim.Config) { c.NSID = 0 }, false},
		"block-size":    {func(c *nvmesim.Config) { c.BlockSize = 1024 }, false},
		"zone-size-0":   {func(c *nvmesim.Config) { c.ZoneSize = 0 }, false},
		"ragged":        {func(c *nvmesim.Config) { c.Capacity++ }, false},
		"zone-cap-big":  {func(c *nvmesim.Config) { c.ZoneCapacity = c.ZoneSize + 1 }, false},
		"open>active":   {func(c *nvmesim.Config) { c.MaxOpen, c.MaxActive = 3, 2 }, false},
		"unlimited-act": {func(c *nvmesim.Config) { c.MaxOpen = 3 }, true},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			cfg := nvmesim.Zoned(1, 4, 0x100, 0x80)
			tc.Mut(&cfg)
			if tc.OK {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)

	conv, err := nvmesim.New(nvmesim.Conventional(1, 0x10000), nil)
	require.NoError(t, err)
	geom, err := nvmedev.Probe(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, nvmedev.Geometry{BlockSize: 512, Capacity: 0x10000}, geom)

	zoned := newZoned(t, 2, 3)
	geom, err = nvmedev.Probe(ctx, zoned)
	require.NoError(t, err)
	assert.Equal(t, nvmedev.Geometry{
		BlockSize: 4096,
		Capacity:  0x400,
		Zoned:     true,
		ZoneSize:  0x100,
		MaxOpen:   2,
		MaxActive: 3,
	}, geom)
	assert.Equal(t, 4, geom.NumZones())
	assert.Equal(t, nvmeprim.LBA(0x300), geom.ZoneStart(3))
}

func TestReadWriteDeallocate(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns, err := nvmesim.New(nvmesim.Conventional(1, 0x1000), nil)
	require.NoError(t, err)

	require.NoError(t, ns.Write(ctx, 0x10, 8, blocks(ns, 8, 0xa5)))
	require.NoError(t, ns.Write(ctx, 0x40, 8, blocks(ns, 8, 0x5a)))

	var rs dsm.RangeSet
	require.NoError(t, rs.SetDeallocate(0, 0x10, 4))
	require.NoError(t, rs.SetDeallocate(1, 0x44, 4))
	require.NoError(t, nvmedev.Deallocate(ctx, ns, &rs))

	buf := make([]byte, 8*512)
	require.NoError(t, ns.Read(ctx, 0x10, 8, buf))
	assert.Equal(t, append(blocks(ns, 4, 0), blocks(ns, 4, 0xa5)...), buf)
	require.NoError(t, ns.Read(ctx, 0x40, 8, buf))
	assert.Equal(t, append(blocks(ns, 4, 0x5a), blocks(ns, 4, 0)...), buf)

	// One bad range fails the command, and nothing is deallocated.
	rs.Reset()
	require.NoError(t, rs.SetDeallocate(0, 0x14, 4))
	require.NoError(t, rs.SetDeallocate(1, 0xfff, 2))
	assertStatus(t, nvmedev.Deallocate(ctx, ns, &rs), nvmeprim.StatusLBAOutOfRange)
	require.NoError(t, ns.Read(ctx, 0x10, 8, buf))
	assert.Equal(t, append(blocks(ns, 4, 0), blocks(ns, 4, 0xa5)...), buf)

	assertStatus(t, ns.Read(ctx, 0x1000, 1, buf), nvmeprim.StatusLBAOutOfRange)
	assertStatus(t, ns.Write(ctx, 0xffc, 8, buf), nvmeprim.StatusLBAOutOfRange)
	assertStatus(t, ns.Read(ctx, 0, 0, buf), nvmeprim.StatusInvalidField)
}

func TestDeallocateMaxRanges(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns, err := nvmesim.New(nvmesim.Conventional(1, 0x1000), nil)
	require.NoError(t, err)

	var rs dsm.RangeSet
	for i := 0; i < dsm.MaxRanges; i++ {
		require.NoError(t, rs.SetDeallocate(i, nvmeprim.LBA(i*8), 8))
	}
	require.NoError(t, nvmedev.Deallocate(ctx, ns, &rs))

	assertStatus(t, ns.DatasetManagement(ctx, dsm.Deallocate(1, 0), dsm.Encode(&rs)), nvmeprim.StatusInvalidField)
	assertStatus(t, ns.DatasetManagement(ctx, dsm.Deallocate(1, 1), nil), nvmeprim.StatusDataTransferError)
}

func TestUnsupportedOpcode(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	zoned := newZoned(t, 0, 0)
	var rs dsm.RangeSet
	require.NoError(t, rs.SetDeallocate(0, 0, 1))
	assertStatus(t, nvmedev.Deallocate(ctx, zoned, &rs), nvmeprim.StatusInvalidOpcode)

	conv, err := nvmesim.New(nvmesim.Conventional(1, 0x1000), nil)
	require.NoError(t, err)
	assertStatus(t, nvmedev.SendZoneAction(ctx, conv, 0, zns.ActionOpen), nvmeprim.StatusInvalidOpcode)
	_, err = nvmedev.ReportZone(ctx, conv, 0)
	assertStatus(t, err, nvmeprim.StatusInvalidOpcode)
}

func TestZoneWrite(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns := newZoned(t, 0, 0)

	require.NoError(t, ns.Write(ctx, 0x100, 0x18, blocks(ns, 0x18, 1)))
	desc := zoneState(t, ctx, ns, 0x100)
	assert.Equal(t, zns.StateImplicitlyOpened, desc.State)
	assert.Equal(t, nvmeprim.LBA(0x118), desc.WritePointer)

	assertStatus(t, ns.Write(ctx, 0x100, 1, blocks(ns, 1, 1)), nvmeprim.StatusZoneInvalidWrite)
	assertStatus(t, ns.Write(ctx, 0x119, 1, blocks(ns, 1, 1)), nvmeprim.StatusZoneInvalidWrite)
	assertStatus(t, ns.Write(ctx, 0x118, 0x69, blocks(ns, 0x69, 1)), nvmeprim.StatusZoneBoundaryError)
	assert.Equal(t, nvmeprim.LBA(0x118), zoneState(t, ctx, ns, 0x100).WritePointer)

	require.NoError(t, ns.Write(ctx, 0x118, 0x68, blocks(ns, 0x68, 2)))
	desc = zoneState(t, ctx, ns, 0x100)
	assert.Equal(t, zns.StateFull, desc.State)
	assert.Equal(t, nvmeprim.LBA(0x180), desc.WritePointer)
	assertStatus(t, ns.Write(ctx, 0x180, 1, blocks(ns, 1, 1)), nvmeprim.StatusZoneIsFull)

	buf := make([]byte, 0x80*4096)
	require.NoError(t, ns.Read(ctx, 0x100, 0x80, buf))
	assert.Equal(t, append(blocks(ns, 0x18, 1), blocks(ns, 0x68, 2)...), buf)
}

func TestZoneSend(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns := newZoned(t, 0, 0)

	require.NoError(t, nvmedev.SendZoneAction(ctx, ns, 0, zns.ActionOpen))
	assert.Equal(t, zns.StateExplicitlyOpened, zoneState(t, ctx, ns, 0).State)
	require.NoError(t, nvmedev.SendZoneAction(ctx, ns, 0, zns.ActionOpen))
	require.NoError(t, nvmedev.SendZoneAction(ctx, ns, 0, zns.ActionClose))
	assert.Equal(t, zns.StateClosed, zoneState(t, ctx, ns, 0).State)
	require.NoError(t, nvmedev.SendZoneAction(ctx, ns, 0, zns.ActionFinish))
	desc := zoneState(t, ctx, ns, 0)
	assert.Equal(t, zns.StateFull, desc.State)
	assert.Equal(t, nvmeprim.LBA(0x80), desc.WritePointer)

	assertStatus(t, nvmedev.SendZoneAction(ctx, ns, 0, zns.ActionOpen), nvmeprim.StatusZoneInvalidTransition)
	assertStatus(t, nvmedev.SendZoneAction(ctx, ns, 0, zns.ActionClose), nvmeprim.StatusZoneInvalidTransition)
	assertStatus(t, nvmedev.SendZoneAction(ctx, ns, 0x10, zns.ActionReset), nvmeprim.StatusInvalidField)
	assertStatus(t, nvmedev.SendZoneAction(ctx, ns, 0x400, zns.ActionReset), nvmeprim.StatusLBAOutOfRange)
	assertStatus(t, nvmedev.SendZoneAction(ctx, ns, 0, zns.Action(0x7)), nvmeprim.StatusInvalidField)

	require.NoError(t, nvmedev.SendZoneAction(ctx, ns, 0, zns.ActionReset))
	desc = zoneState(t, ctx, ns, 0)
	assert.Equal(t, zns.StateEmpty, desc.State)
	assert.Equal(t, nvmeprim.LBA(0), desc.WritePointer)
}

func TestResetDiscards(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns := newZoned(t, 0, 0)

	require.NoError(t, ns.Write(ctx, 0x200, 4, blocks(ns, 4, 0xee)))
	require.NoError(t, nvmedev.SendZoneAction(ctx, ns, 0x200, zns.ActionReset))
	buf := make([]byte, 4*4096)
	require.NoError(t, ns.Read(ctx, 0x200, 4, buf))
	assert.Equal(t, blocks(ns, 4, 0), buf)
}

func TestSelectAll(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns := newZoned(t, 0, 0)

	require.NoError(t, ns.Write(ctx, 0x000, 1, blocks(ns, 1, 1)))
	require.NoError(t, ns.Write(ctx, 0x200, 1, blocks(ns, 1, 1)))
	require.NoError(t, ns.ZoneManagementSend(ctx, zns.SendCommand{NSID: 1, SelectAll: true, Action: zns.ActionClose}))

	hdr, descs, err := nvmedev.ReportZones(ctx, ns, 0, zns.FilterClosed, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), hdr.NumZones)
	require.Len(t, descs, 2)
	assert.Equal(t, nvmeprim.LBA(0x000), descs[0].StartLBA)
	assert.Equal(t, nvmeprim.LBA(0x200), descs[1].StartLBA)

	require.NoError(t, ns.ZoneManagementSend(ctx, zns.SendCommand{NSID: 1, SelectAll: true, Action: zns.ActionReset}))
	hdr, _, err = nvmedev.ReportZones(ctx, ns, 0, zns.FilterEmpty, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), hdr.NumZones)
}

func TestReport(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns := newZoned(t, 0, 0)
	require.NoError(t, ns.Write(ctx, 0x100, 0x10, blocks(ns, 0x10, 1)))

	hdr, descs, err := nvmedev.ReportZones(ctx, ns, 0, zns.FilterAll, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), hdr.NumZones)
	assert.Equal(t, []zns.Descriptor{
		{Type: zns.ZoneTypeSequentialWriteRequired, State: zns.StateEmpty, Capacity: 0x80, StartLBA: 0x000, WritePointer: 0x000},
		{Type: zns.ZoneTypeSequentialWriteRequired, State: zns.StateImplicitlyOpened, Capacity: 0x80, StartLBA: 0x100, WritePointer: 0x110},
	}, descs)

	// Starting mid-zone reports from that zone on.
	hdr, descs, err = nvmedev.ReportZones(ctx, ns, 0x150, zns.FilterEmpty, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), hdr.NumZones)
	require.Len(t, descs, 2)
	assert.Equal(t, nvmeprim.LBA(0x200), descs[0].StartLBA)

	buf := make([]byte, zns.ReportSize(1))
	require.NoError(t, ns.ZoneManagementReceive(ctx, zns.ReceiveCommand{
		NSID:    1,
		Action:  zns.ReceiveReport,
		Filter:  zns.FilterAll,
		Partial: true,
	}, buf))
	hdr, err = zns.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), hdr.NumZones)

	assertStatus(t, ns.ZoneManagementReceive(ctx, zns.ReceiveCommand{NSID: 1, SLBA: 0x400}, buf),
		nvmeprim.StatusLBAOutOfRange)
	assertStatus(t, ns.ZoneManagementReceive(ctx, zns.ReceiveCommand{NSID: 1, Filter: 0x3f}, buf),
		nvmeprim.StatusInvalidField)
	assertStatus(t, ns.ZoneManagementReceive(ctx, zns.ReceiveCommand{NSID: 1, Action: zns.ReceiveExtendedReport}, buf),
		nvmeprim.StatusInvalidField)
	assertStatus(t, ns.ZoneManagementReceive(ctx, zns.ReceiveCommand{NSID: 1}, buf[:10]),
		nvmeprim.StatusInvalidField)
}

func TestZoneResources(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns := newZoned(t, 2, 3)

	require.NoError(t, ns.Write(ctx, 0x000, 1, blocks(ns, 1, 1)))
	require.NoError(t, ns.Write(ctx, 0x100, 1, blocks(ns, 1, 1)))
	// A third implicit open closes the lowest implicitly opened
	// zone.
	require.NoError(t, ns.Write(ctx, 0x200, 1, blocks(ns, 1, 1)))
	assert.Equal(t, zns.StateClosed, zoneState(t, ctx, ns, 0x000).State)
	assert.Equal(t, zns.StateImplicitlyOpened, zoneState(t, ctx, ns, 0x100).State)
	assert.Equal(t, zns.StateImplicitlyOpened, zoneState(t, ctx, ns, 0x200).State)

	// 3 zones are active.
	assertStatus(t, ns.Write(ctx, 0x300, 1, blocks(ns, 1, 1)), nvmeprim.StatusTooManyActiveZones)
	assertStatus(t, nvmedev.SendZoneAction(ctx, ns, 0x300, zns.ActionOpen), nvmeprim.StatusTooManyActiveZones)
	// 2 zones are open, and explicit opens never make room.
	assertStatus(t, nvmedev.SendZoneAction(ctx, ns, 0x000, zns.ActionOpen), nvmeprim.StatusTooManyOpenZones)

	require.NoError(t, nvmedev.SendZoneAction(ctx, ns, 0x100, zns.ActionFinish))
	require.NoError(t, nvmedev.SendZoneAction(ctx, ns, 0x000, zns.ActionOpen))
	require.NoError(t, ns.Write(ctx, 0x300, 1, blocks(ns, 1, 1)))
	assert.Equal(t, zns.StateClosed, zoneState(t, ctx, ns, 0x200).State)
}

func TestForceZoneState(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns := newZoned(t, 0, 0)

	require.NoError(t, ns.ForceZoneState(0x100, zns.StateReadOnly))
	require.NoError(t, ns.ForceZoneState(0x200, zns.StateOffline))
	assert.Error(t, ns.ForceZoneState(0x210, zns.StateOffline))

	buf := blocks(ns, 1, 1)
	assertStatus(t, ns.Write(ctx, 0x100, 1, buf), nvmeprim.StatusZoneIsReadOnly)
	assert.NoError(t, ns.Read(ctx, 0x100, 1, buf))
	assertStatus(t, ns.Write(ctx, 0x200, 1, buf), nvmeprim.StatusZoneIsOffline)
	assertStatus(t, ns.Read(ctx, 0x200, 1, buf), nvmeprim.StatusZoneIsOffline)
	assertStatus(t, nvmedev.SendZoneAction(ctx, ns, 0x100, zns.ActionReset), nvmeprim.StatusZoneIsReadOnly)

	hdr, _, err := nvmedev.ReportZones(ctx, ns, 0, zns.FilterOffline, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), hdr.NumZones)
}

func TestFaults(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns := newZoned(t, 0, 0)

	ns.InjectReportFault(0x100, func(desc *zns.Descriptor) { desc.WritePointer += 3 })
	assert.Equal(t, nvmeprim.LBA(0x103), zoneState(t, ctx, ns, 0x100).WritePointer)

	ns.InjectDroppedAction(0x200, zns.ActionOpen, 1)
	require.NoError(t, nvmedev.SendZoneAction(ctx, ns, 0x200, zns.ActionOpen))
	assert.Equal(t, zns.StateEmpty, zoneState(t, ctx, ns, 0x200).State)
	require.NoError(t, nvmedev.SendZoneAction(ctx, ns, 0x200, zns.ActionOpen))
	assert.Equal(t, zns.StateExplicitlyOpened, zoneState(t, ctx, ns, 0x200).State)

	ns.InjectWriteFault(0x300, func(z zns.Zone) zns.Zone {
		z.WritePointer++
		return z
	})
	require.NoError(t, ns.Write(ctx, 0x300, 1, blocks(ns, 1, 1)))
	assert.Equal(t, nvmeprim.LBA(0x302), zoneState(t, ctx, ns, 0x300).WritePointer)

	ns.ClearFaults()
	assert.Equal(t, nvmeprim.LBA(0x100), zoneState(t, ctx, ns, 0x100).WritePointer)
}

func TestConcurrentWriters(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	ns := newZoned(t, 0, 0)

	done := make(chan error)
	for i := 0; i < 4; i++ {
		zslba := nvmeprim.LBA(i * 0x100)
		go func() {
			var err error
			for off := nvmeprim.LBACount(0); off < 0x80 && err == nil; off += 0x10 {
				err = ns.Write(ctx, zslba.Add(off), 0x10, blocks(ns, 0x10, byte(zslba>>8)))
			}
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		assert.NoError(t, <-done)
	}
	hdr, _, err := nvmedev.ReportZones(ctx, ns, 0, zns.FilterFull, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), hdr.NumZones)
}

// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package conformance

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmedev"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
	"git.lukeshu.com/nvmeconf-ng/lib/znscheck"
)

var znsRequires = []nvmeprim.Opcode{
	nvmeprim.OpcodeZoneManagementSend,
	nvmeprim.OpcodeZoneManagementReceive,
}

var znsWriteRequires = append([]nvmeprim.Opcode{nvmeprim.OpcodeWrite}, znsRequires...)

func init() {
	register(&Check{
		Name:  "zns/identify",
		Zoned: true,
		Fn:    checkZNSIdentify,
	})
	register(&Check{
		Name:     "zns/management-receive",
		Zoned:    true,
		Requires: znsRequires,
		Fn:       checkZNSManagementReceive,
	})
	register(&Check{
		Name:     "zns/management-send",
		Zoned:    true,
		Requires: znsRequires,
		Params:   inZones(0, 0),
		Fn:       checkZNSManagementSend,
	})
	register(&Check{
		Name:     "zns/state-machine",
		Zoned:    true,
		Requires: znsRequires,
		Params:   inZones(0, 0, 1, 2, 16, 32),
		Fn:       checkZNSStateMachine,
	})
	register(&Check{
		Name:     "zns/write-full-zone",
		Zoned:    true,
		Requires: znsWriteRequires,
		Params:   inZones(0, 0),
		Fn:       checkZNSWriteFullZone,
	})
	for _, c := range []struct {
		name   string
		writes []nvmeprim.LBACount // in units of writeChunk/4
	}{
		{"zns/write-1", []nvmeprim.LBACount{4}},
		{"zns/write-2", []nvmeprim.LBACount{2, 2}},
		{"zns/write-192k", []nvmeprim.LBACount{4, 4}},
	} {
		writes := c.writes
		register(&Check{
			Name:     c.name,
			Zoned:    true,
			Requires: znsWriteRequires,
			Params:   inRandomZone(c.name),
			Fn: func(ctx context.Context, env *Env, p Param) error {
				return checkZNSWrites(ctx, env, p, writes)
			},
		})
	}
	register(&Check{
		Name:     "zns/write-twice",
		Zoned:    true,
		Requires: znsWriteRequires,
		Params:   inRandomZone("zns/write-twice"),
		Fn:       checkZNSWriteTwice,
	})
	register(&Check{
		Name:     "zns/write-implicitly-open",
		Zoned:    true,
		Requires: znsWriteRequires,
		Params:   inZones(100, 0, 1, 32),
		Fn:       checkZNSWriteImplicitlyOpen,
	})
}

// writeChunk is the size of the writes that the zone checks issue.
const writeChunk = 96 * 1024

func (env *Env) chunkBlocks() nvmeprim.LBACount {
	return nvmeprim.LBACount(writeChunk / env.geom.BlockSize)
}

func expectZone(tz *znscheck.TrackedZone, state zns.ZoneState) error {
	if got := tz.Zone().State; got != state {
		return failf("zone %v: state is %v, expected %v", tz.Zone().StartLBA, got, state)
	}
	return nil
}

func expectWritePointer(tz *znscheck.TrackedZone, wp nvmeprim.LBA) error {
	if got := tz.Zone().WritePointer; got != wp {
		return failf("zone %v: write pointer is %v, expected %v", tz.Zone().StartLBA, got, wp)
	}
	return nil
}

// toFull finishes the zone unless it is already Full.
func toFull(ctx context.Context, tz *znscheck.TrackedZone) error {
	if tz.Zone().State == zns.StateFull {
		return nil
	}
	if err := tz.Apply(ctx, zns.ActionFinish); err != nil {
		return err
	}
	return expectZone(tz, zns.StateFull)
}

// toEmpty resets the zone unless it is already Empty.
func toEmpty(ctx context.Context, tz *znscheck.TrackedZone) error {
	if tz.Zone().State == zns.StateEmpty {
		return nil
	}
	if err := tz.Apply(ctx, zns.ActionReset); err != nil {
		return err
	}
	return expectZone(tz, zns.StateEmpty)
}

// toOpen leaves the zone Explicitly Opened and unwritten.
func toOpen(ctx context.Context, tz *znscheck.TrackedZone) error {
	if err := toEmpty(ctx, tz); err != nil {
		return err
	}
	if err := tz.Apply(ctx, zns.ActionOpen); err != nil {
		return err
	}
	if err := expectZone(tz, zns.StateExplicitlyOpened); err != nil {
		return err
	}
	return expectWritePointer(tz, tz.Zone().StartLBA)
}

func checkZNSIdentify(ctx context.Context, env *Env, _ Param) error {
	id, err := nvmedev.IdentifyNamespace(ctx, env.Namespace)
	if err != nil {
		return err
	}
	if id.Capacity > id.Size {
		return failf("NCAP %v exceeds NSZE %v", id.Capacity, id.Size)
	}
	zid, err := nvmedev.IdentifyZonedNamespace(ctx, env.Namespace)
	if err != nil {
		return err
	}
	zsze := zid.ZoneSize(id.FormatIndex())
	if zsze != env.geom.ZoneSize {
		return failf("zone size changed from %v to %v", env.geom.ZoneSize, zsze)
	}
	maxOpen, _ := zid.OpenLimit()
	maxActive, _ := zid.ActiveLimit()
	dlog.Infof(ctx, "block size=%d capacity=%v zone size=%v zones=%d max open=%d max active=%d",
		id.BlockSize(), id.Capacity, zsze, env.geom.NumZones(), maxOpen, maxActive)
	return nil
}

func checkZNSManagementReceive(ctx context.Context, env *Env, _ Param) error {
	hdr, _, err := nvmedev.ReportZones(ctx, env.Namespace, 0, zns.FilterAll, 0)
	if err != nil {
		return err
	}
	dlog.Infof(ctx, "number of zones: %d", hdr.NumZones)
	if hdr.NumZones != uint64(env.geom.NumZones()) {
		return failf("report lists %d zones, namespace has %d", hdr.NumZones, env.geom.NumZones())
	}

	n := env.geom.NumZones()
	if n > 10 {
		n = 10
	}
	for i := 0; i < n; i++ {
		buf := make([]byte, zns.ReportSize(1))
		err := env.Namespace.ZoneManagementReceive(ctx, zns.ReceiveCommand{
			NSID:   env.Namespace.ID(),
			SLBA:   env.geom.ZoneStart(i),
			Action: zns.ReceiveReport,
			Filter: zns.FilterAll,
		}, buf)
		if err != nil {
			return err
		}
		desc, err := zns.DecodeDescriptor(buf, 0)
		if err != nil {
			return err
		}
		tz, err := env.zone(ctx, i)
		if err != nil {
			return err
		}
		if desc.Capacity != tz.Zone().Capacity {
			return failf("zone %v: capacity %v, first reported as %v", desc.StartLBA, desc.Capacity, tz.Zone().Capacity)
		}
		dlog.Infof(ctx, "%v", desc)
	}
	return nil
}

func checkZNSManagementSend(ctx context.Context, env *Env, p Param) error {
	tz, err := env.zone(ctx, p.Zone)
	if err != nil {
		return err
	}
	if err := toEmpty(ctx, tz); err != nil {
		return err
	}
	if err := tz.Apply(ctx, zns.ActionFinish); err != nil {
		return err
	}
	return expectZone(tz, zns.StateFull)
}

func checkZNSStateMachine(ctx context.Context, env *Env, p Param) error {
	tz, err := env.zone(ctx, p.Zone)
	if err != nil {
		return err
	}
	if err := toFull(ctx, tz); err != nil {
		return err
	}
	walk := []struct {
		Action zns.Action
		State  zns.ZoneState
	}{
		{zns.ActionReset, zns.StateEmpty},
		{zns.ActionOpen, zns.StateExplicitlyOpened},
		{zns.ActionClose, zns.StateClosed},
		{zns.ActionOpen, zns.StateExplicitlyOpened},
		{zns.ActionClose, zns.StateClosed},
		{zns.ActionFinish, zns.StateFull},
		{zns.ActionReset, zns.StateEmpty},
		{zns.ActionOpen, zns.StateExplicitlyOpened},
		{zns.ActionReset, zns.StateEmpty},
		{zns.ActionOpen, zns.StateExplicitlyOpened},
		{zns.ActionClose, zns.StateClosed},
		{zns.ActionReset, zns.StateEmpty},
		{zns.ActionFinish, zns.StateFull},
	}
	for i, step := range walk {
		if err := tz.Apply(ctx, step.Action); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if err := expectZone(tz, step.State); err != nil {
			return fmt.Errorf("step %d: %v: %w", i, step.Action, err)
		}
	}
	return nil
}

func (env *Env) zoneWrite(ctx context.Context, tz *znscheck.TrackedZone, offset, nlb nvmeprim.LBACount) error {
	buf := env.getBuf(nlb)
	defer env.putBuf(buf)
	stamp(buf, env.geom.BlockSize, tz.Zone().StartLBA.Add(offset), nlb, 0)
	return tz.Write(ctx, offset, nlb, buf)
}

func checkZNSWriteFullZone(ctx context.Context, env *Env, p Param) error {
	tz, err := env.zone(ctx, p.Zone)
	if err != nil {
		return err
	}
	if err := toFull(ctx, tz); err != nil {
		return err
	}
	err = env.zoneWrite(ctx, tz, 0, env.chunkBlocks())
	status, ok := nvmeprim.AsStatus(err)
	switch {
	case err == nil:
		return failf("zone %v: write to a Full zone succeeded", tz.Zone().StartLBA)
	case !ok:
		return err
	case status.SCT() != nvmeprim.SCTCommandSpecific:
		return failf("zone %v: write to a Full zone: status %v, expected 01/xx", tz.Zone().StartLBA, status)
	}
	if err := tz.Apply(ctx, zns.ActionReset); err != nil {
		return err
	}
	return toFull(ctx, tz)
}

// checkZNSWrites writes to an opened zone in pieces of the given
// quarters of a chunk, then closes and finishes it.
func checkZNSWrites(ctx context.Context, env *Env, p Param, quarters []nvmeprim.LBACount) error {
	tz, err := env.zone(ctx, p.Zone)
	if err != nil {
		return err
	}
	if err := toOpen(ctx, tz); err != nil {
		return err
	}
	var off nvmeprim.LBACount
	for _, q := range quarters {
		n := q * env.chunkBlocks() / 4
		if err := env.zoneWrite(ctx, tz, off, n); err != nil {
			return err
		}
		off += n
	}
	if err := expectWritePointer(tz, tz.Zone().StartLBA.Add(off)); err != nil {
		return err
	}
	if err := tz.Apply(ctx, zns.ActionClose); err != nil {
		return err
	}
	if err := tz.Apply(ctx, zns.ActionFinish); err != nil {
		return err
	}
	return expectZone(tz, zns.StateFull)
}

func checkZNSWriteTwice(ctx context.Context, env *Env, p Param) error {
	tz, err := env.zone(ctx, p.Zone)
	if err != nil {
		return err
	}
	if err := toOpen(ctx, tz); err != nil {
		return err
	}
	n := env.chunkBlocks()
	if err := env.zoneWrite(ctx, tz, 0, n); err != nil {
		return err
	}
	// The second write is not at the write pointer.
	if err := expectStatus(env.zoneWrite(ctx, tz, 0, n), nvmeprim.StatusZoneInvalidWrite); err != nil {
		return fmt.Errorf("rewrite: %w", err)
	}
	if err := tz.Apply(ctx, zns.ActionClose); err != nil {
		return err
	}
	if err := tz.Apply(ctx, zns.ActionFinish); err != nil {
		return err
	}
	return expectZone(tz, zns.StateFull)
}

func checkZNSWriteImplicitlyOpen(ctx context.Context, env *Env, p Param) error {
	tz, err := env.zone(ctx, p.Zone)
	if err != nil {
		return err
	}
	slba := tz.Zone().StartLBA
	if err := toFull(ctx, tz); err != nil {
		return err
	}
	if err := tz.Apply(ctx, zns.ActionReset); err != nil {
		return err
	}
	if err := expectZone(tz, zns.StateEmpty); err != nil {
		return err
	}
	if err := expectWritePointer(tz, slba); err != nil {
		return err
	}

	n := env.chunkBlocks()
	if err := env.zoneWrite(ctx, tz, 0, n); err != nil {
		return err
	}
	if err := expectZone(tz, zns.StateImplicitlyOpened); err != nil {
		return err
	}
	if err := expectWritePointer(tz, slba.Add(n)); err != nil {
		return err
	}

	if err := tz.Apply(ctx, zns.ActionClose); err != nil {
		return err
	}
	if err := expectZone(tz, zns.StateClosed); err != nil {
		return err
	}
	if err := expectWritePointer(tz, slba.Add(n)); err != nil {
		return err
	}

	if err := tz.Apply(ctx, zns.ActionFinish); err != nil {
		return err
	}
	if err := expectZone(tz, zns.StateFull); err != nil {
		return err
	}
	return expectWritePointer(tz, tz.Zone().CapacityEnd())
}

// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmesim

import (
	"context"
	"errors"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/nvmeconf-ng/lib/diskio"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

func (ns *Namespace) zoneIndex(lba nvmeprim.LBA) int {
	return int(uint64(lba) / uint64(ns.cfg.ZoneSize))
}

// setZone stores the new state of zone i and keeps the open and
// active resource sets in step with it.  ns.mu must be held.
func (ns *Namespace) setZone(i int, zone zns.Zone) {
	ns.zones[i] = zone
	if zone.State.Open() {
		ns.open.Insert(i)
	} else {
		ns.open.Delete(i)
	}
	if zone.State.Active() {
		ns.active.Insert(i)
	} else {
		ns.active.Delete(i)
	}
}

// reserve checks that zone i may move from its current state to
// next without exceeding the open and active limits.  For an implicit
// open, an Implicitly Opened zone may be closed to make room.  ns.mu
// must be held.
func (ns *Namespace) reserve(ctx context.Context, op nvmeprim.Opcode, i int, next zns.ZoneState, implicit bool) error {
	cur := ns.zones[i].State
	if next.Active() && !cur.Active() && ns.cfg.MaxActive > 0 && len(ns.active) >= ns.cfg.MaxActive {
		return statusErr(op, nvmeprim.StatusTooManyActiveZones)
	}
	if next.Open() && !cur.Open() && ns.cfg.MaxOpen > 0 && len(ns.open) >= ns.cfg.MaxOpen {
		if !implicit {
			return statusErr(op, nvmeprim.StatusTooManyOpenZones)
		}
		victim := -1
		for _, j := range ns.open.Sorted() {
			if ns.zones[j].State == zns.StateImplicitlyOpened {
				victim = j
				break
			}
		}
		if victim < 0 {
			return statusErr(op, nvmeprim.StatusTooManyOpenZones)
		}
		closed, err := ns.zones[victim].Apply(zns.ActionClose)
		if err != nil {
			return err
		}
		dlog.Debugf(ctx, "ns%d: implicitly closing zone %v to open zone %v",
			ns.cfg.NSID, closed.StartLBA, ns.zones[i].StartLBA)
		ns.setZone(victim, closed)
	}
	return nil
}

// zoneWrite advances the zone state for a write.  ns.mu must be
// held.
func (ns *Namespace) zoneWrite(ctx context.Context, slba nvmeprim.LBA, nlb nvmeprim.LBACount) error {
	const op = nvmeprim.OpcodeWrite
	i := ns.zoneIndex(slba)
	zone := ns.zones[i]
	switch zone.State {
	case zns.StateFull:
		return statusErr(op, nvmeprim.StatusZoneIsFull)
	case zns.StateReadOnly:
		return statusErr(op, nvmeprim.StatusZoneIsReadOnly)
	case zns.StateOffline:
		return statusErr(op, nvmeprim.StatusZoneIsOffline)
	}
	if slba != zone.WritePointer {
		return statusErr(op, nvmeprim.StatusZoneInvalidWrite)
	}
	if slba.Add(nlb) > zone.CapacityEnd() {
		return statusErr(op, nvmeprim.StatusZoneBoundaryError)
	}
	next, err := zone.Write(slba.Sub(zone.StartLBA), nlb)
	if err != nil {
		return fmt.Errorf("%w: %v", statusErr(op, nvmeprim.StatusZoneInvalidWrite), err)
	}
	if err := ns.reserve(ctx, op, i, next.State, true); err != nil {
		return err
	}
	if f, ok := ns.faults.takeWrite(zone.StartLBA); ok {
		next = f(next)
	}
	ns.setZone(i, next)
	return nil
}

// selectAllFrom is the states that a Select All send acts on, per
// action.
var selectAllFrom = map[zns.Action][]zns.ZoneState{
	zns.ActionClose:  {zns.StateImplicitlyOpened, zns.StateExplicitlyOpened},
	zns.ActionFinish: {zns.StateImplicitlyOpened, zns.StateExplicitlyOpened, zns.StateClosed},
	zns.ActionOpen:   {zns.StateClosed},
	zns.ActionReset:  {zns.StateImplicitlyOpened, zns.StateExplicitlyOpened, zns.StateClosed, zns.StateFull},
}

func (ns *Namespace) ZoneManagementSend(ctx context.Context, cmd zns.SendCommand) error {
	const op = nvmeprim.OpcodeZoneManagementSend
	ctx, err := ns.begin(ctx, op, cmd.String())
	if err != nil {
		return ns.end(ctx, err)
	}
	from, ok := selectAllFrom[cmd.Action]
	if !ok {
		return ns.end(ctx, statusErr(op, nvmeprim.StatusInvalidField))
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	if cmd.SelectAll {
		for i, zone := range ns.zones {
			for _, state := range from {
				if zone.State == state {
					if err := ns.zoneSend(ctx, i, cmd.Action); err != nil {
						return ns.end(ctx, err)
					}
					break
				}
			}
		}
		return ns.end(ctx, nil)
	}

	if err := ns.checkRange(op, cmd.SLBA, 1); err != nil {
		return ns.end(ctx, err)
	}
	i := ns.zoneIndex(cmd.SLBA)
	if ns.zones[i].StartLBA != cmd.SLBA {
		return ns.end(ctx, statusErr(op, nvmeprim.StatusInvalidField))
	}
	return ns.end(ctx, ns.zoneSend(ctx, i, cmd.Action))
}

// zoneSend applies one action to zone i.  ns.mu must be held.
func (ns *Namespace) zoneSend(ctx context.Context, i int, action zns.Action) error {
	const op = nvmeprim.OpcodeZoneManagementSend
	zone := ns.zones[i]
	switch zone.State {
	case zns.StateReadOnly:
		return statusErr(op, nvmeprim.StatusZoneIsReadOnly)
	case zns.StateOffline:
		return statusErr(op, nvmeprim.StatusZoneIsOffline)
	}
	next, err := zone.Apply(action)
	if err != nil {
		if errors.Is(err, nvmeprim.ErrIllegalTransition) {
			return fmt.Errorf("%w: %v", statusErr(op, nvmeprim.StatusZoneInvalidTransition), err)
		}
		return err
	}
	if err := ns.reserve(ctx, op, i, next.State, false); err != nil {
		return err
	}
	if ns.faults.dropAction(zone.StartLBA, action) {
		dlog.Debugf(ctx, "ns%d: fault: ignoring %v of zone %v", ns.cfg.NSID, action, zone.StartLBA)
		return nil
	}
	if action == zns.ActionReset {
		off := ns.byteOff(zone.StartLBA)
		err := diskio.Discard(ns.media, off, zone.Size.Bytes(ns.cfg.BlockSize))
		if err := ns.mediaErr(op, err); err != nil {
			return err
		}
	}
	ns.setZone(i, next)
	return nil
}

func (ns *Namespace) ZoneManagementReceive(ctx context.Context, cmd zns.ReceiveCommand, buf []byte) error {
	const op = nvmeprim.OpcodeZoneManagementReceive
	ctx, err := ns.begin(ctx, op, cmd.String())
	if err != nil {
		return ns.end(ctx, err)
	}
	if cmd.Action != zns.ReceiveReport || !cmd.Filter.Valid() || len(buf) < zns.HeaderSize {
		return ns.end(ctx, statusErr(op, nvmeprim.StatusInvalidField))
	}
	if err := ns.checkRange(op, cmd.SLBA, 1); err != nil {
		return ns.end(ctx, err)
	}

	ns.mu.Lock()
	var descs []zns.Descriptor
	for _, zone := range ns.zones[ns.zoneIndex(cmd.SLBA):] {
		if cmd.Filter.Match(zone.State) {
			desc := zone.Descriptor()
			ns.faults.report(&desc)
			descs = append(descs, desc)
		}
	}
	ns.mu.Unlock()

	hdr := zns.ReportHeader{NumZones: uint64(len(descs))}
	n := zns.PutReport(buf, hdr, descs)
	if cmd.Partial {
		hdr.NumZones = uint64(n)
		zns.PutReport(buf, hdr, descs[:n])
	}
	return ns.end(ctx, nil)
}

// ForceZoneState puts a zone into a state that no command leads to,
// such as Read Only or Offline, the way a controller does when media
// wears out.
func (ns *Namespace) ForceZoneState(zslba nvmeprim.LBA, state zns.ZoneState) error {
	if !ns.cfg.Zoned || zslba >= nvmeprim.LBA(ns.cfg.Capacity) {
		return fmt.Errorf("nvmesim: no zone at %v", zslba)
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	i := ns.zoneIndex(zslba)
	zone := ns.zones[i]
	if zone.StartLBA != zslba {
		return fmt.Errorf("nvmesim: %v is not a zone start", zslba)
	}
	zone.State = state
	if state == zns.StateEmpty {
		zone.WritePointer = zone.StartLBA
	}
	ns.setZone(i, zone)
	return nil
}

// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package znscheck

import (
	"context"
	"fmt"

	"git.lukeshu.com/go/typedsync"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmedev"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

// Tracker holds the TrackedZones of one namespace, keyed by zone
// start LBA.  Distinct zones may be driven concurrently.
type Tracker struct {
	ns     nvmedev.Namespace
	geom   nvmedev.Geometry
	policy zns.Policy

	zones typedsync.Map[nvmeprim.LBA, *TrackedZone]
}

func NewTracker(ns nvmedev.Namespace, geom nvmedev.Geometry, policy zns.Policy) (*Tracker, error) {
	if !geom.Zoned {
		return nil, fmt.Errorf("znscheck: namespace %d is not zoned", ns.ID())
	}
	return &Tracker{
		ns:     ns,
		geom:   geom,
		policy: policy,
	}, nil
}

func (t *Tracker) Geometry() nvmedev.Geometry { return t.geom }

// Zone returns the tracked zone starting at zslba, reading it from
// the device the first time it is asked for.
func (t *Tracker) Zone(ctx context.Context, zslba nvmeprim.LBA) (*TrackedZone, error) {
	if tz, ok := t.zones.Load(zslba); ok {
		return tz, nil
	}
	if zslba >= nvmeprim.LBA(t.geom.Capacity) || uint64(zslba)%uint64(t.geom.ZoneSize) != 0 {
		return nil, fmt.Errorf("znscheck: %v is not the start of a zone", zslba)
	}
	tz, err := Track(ctx, t.ns, t.geom, zslba, t.policy)
	if err != nil {
		return nil, err
	}
	tz, _ = t.zones.LoadOrStore(zslba, tz)
	return tz, nil
}

// ZoneIndex is Zone by index rather than start LBA.
func (t *Tracker) ZoneIndex(ctx context.Context, i int) (*TrackedZone, error) {
	return t.Zone(ctx, t.geom.ZoneStart(i))
}

// Forget drops the model of a zone, so that the next Zone call
// re-reads it.  This is needed after a command that bypassed the
// tracker, such as a Select All send.
func (t *Tracker) Forget(zslba nvmeprim.LBA) {
	t.zones.Delete(zslba)
}

// VerifyAll checks every tracked zone against the device, and
// returns the first disagreement.
func (t *Tracker) VerifyAll(ctx context.Context) error {
	var err error
	t.zones.Range(func(_ nvmeprim.LBA, tz *TrackedZone) bool {
		err = tz.Verify(ctx)
		return err == nil
	})
	return err
}

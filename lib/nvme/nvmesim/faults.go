// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmesim

import (
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

// faults is the misbehavior injected into a namespace, keyed by zone
// start LBA.  It is guarded by Namespace.mu.
type faults struct {
	reports map[nvmeprim.LBA]func(*zns.Descriptor)
	writes  map[nvmeprim.LBA]func(zns.Zone) zns.Zone
	dropped map[nvmeprim.LBA]map[zns.Action]int
}

func (f *faults) report(desc *zns.Descriptor) {
	if fn, ok := f.reports[desc.StartLBA]; ok {
		fn(desc)
	}
}

func (f *faults) takeWrite(zslba nvmeprim.LBA) (func(zns.Zone) zns.Zone, bool) {
	fn, ok := f.writes[zslba]
	if ok {
		delete(f.writes, zslba)
	}
	return fn, ok
}

func (f *faults) dropAction(zslba nvmeprim.LBA, action zns.Action) bool {
	n := f.dropped[zslba][action]
	if n == 0 {
		return false
	}
	f.dropped[zslba][action] = n - 1
	return true
}

// InjectReportFault makes every report of the zone at zslba pass
// through fn before it is returned, without changing the zone.
func (ns *Namespace) InjectReportFault(zslba nvmeprim.LBA, fn func(*zns.Descriptor)) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.faults.reports == nil {
		ns.faults.reports = make(map[nvmeprim.LBA]func(*zns.Descriptor))
	}
	ns.faults.reports[zslba] = fn
}

// InjectWriteFault makes the next successful write to the zone at
// zslba store fn's result as the new zone state instead of the
// correct one.
func (ns *Namespace) InjectWriteFault(zslba nvmeprim.LBA, fn func(zns.Zone) zns.Zone) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.faults.writes == nil {
		ns.faults.writes = make(map[nvmeprim.LBA]func(zns.Zone) zns.Zone)
	}
	ns.faults.writes[zslba] = fn
}

// InjectDroppedAction makes the next count sends of action to the
// zone at zslba report success without doing anything.
func (ns *Namespace) InjectDroppedAction(zslba nvmeprim.LBA, action zns.Action, count int) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.faults.dropped == nil {
		ns.faults.dropped = make(map[nvmeprim.LBA]map[zns.Action]int)
	}
	if ns.faults.dropped[zslba] == nil {
		ns.faults.dropped[zslba] = make(map[zns.Action]int)
	}
	ns.faults.dropped[zslba][action] += count
}

// ClearFaults removes all injected faults.
func (ns *Namespace) ClearFaults() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.faults = faults{}
}

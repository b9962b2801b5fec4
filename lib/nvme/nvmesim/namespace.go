// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package nvmesim is an in-process NVMe namespace, conventional or
// zoned, that stands in for a device behind nvmedev.Namespace.
package nvmesim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/nvmeconf-ng/lib/containers"
	"git.lukeshu.com/nvmeconf-ng/lib/diskio"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/dsm"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmedev"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeid"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/zns"
)

// Namespace is a simulated namespace.  It is safe for concurrent
// use; commands are executed one at a time.
type Namespace struct {
	cfg     Config
	opcodes containers.Set[nvmeprim.Opcode]
	policy  zns.Policy
	media   diskio.File[int64]

	mu     sync.Mutex
	zones  []zns.Zone
	open   containers.Set[int] // indexes into zones
	active containers.Set[int]
	faults faults
}

var _ nvmedev.Namespace = (*Namespace)(nil)

// New returns a namespace stored in media, which must hold at least
// cfg.Capacity blocks.  If media is nil, a sparse in-memory store is
// used.  Every zone starts out Empty.
func New(cfg Config, media diskio.File[int64]) (*Namespace, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("nvmesim: %w", err)
	}
	size := cfg.Capacity.Bytes(cfg.BlockSize)
	if media == nil {
		media = diskio.NewMemFile(fmt.Sprintf("nvmesim-ns%d", cfg.NSID), size)
	}
	if media.Size() < size {
		return nil, fmt.Errorf("nvmesim: media %q is %d bytes, need %d", media.Name(), media.Size(), size)
	}
	ns := &Namespace{
		cfg:     cfg,
		opcodes: cfg.Opcodes,
		policy:  cfg.Policy.Or(zns.ControllerPolicy),
		media:   media,
		open:    containers.Set[int]{},
		active:  containers.Set[int]{},
	}
	if ns.opcodes == nil {
		ns.opcodes = cfg.defaultOpcodes()
	}
	if cfg.Zoned {
		n := int(cfg.Capacity / cfg.ZoneSize)
		ns.zones = make([]zns.Zone, n)
		for i := range ns.zones {
			start := nvmeprim.LBA(uint64(i) * uint64(cfg.ZoneSize))
			ns.zones[i] = zns.Zone{
				StartLBA:     start,
				Size:         cfg.ZoneSize,
				Capacity:     cfg.ZoneCapacity,
				State:        zns.StateEmpty,
				WritePointer: start,
				Policy:       ns.policy,
			}
		}
	}
	return ns, nil
}

func (ns *Namespace) Config() Config { return ns.cfg }

func (ns *Namespace) ID() nvmeprim.NSID { return ns.cfg.NSID }

func (ns *Namespace) Supports(op nvmeprim.Opcode) bool {
	return ns.opcodes.Has(op)
}

func statusErr(op nvmeprim.Opcode, status nvmeprim.Status) error {
	return &nvmeprim.StatusError{
		Opcode: op,
		Status: status,
	}
}

// begin does the checks common to every command and logs it.
func (ns *Namespace) begin(ctx context.Context, op nvmeprim.Opcode, desc string) (context.Context, error) {
	ctx = dlog.WithField(ctx, "nvmeconf.sim.op", op)
	dlog.Tracef(ctx, "ns%d: %s", ns.cfg.NSID, desc)
	if op != nvmeprim.OpcodeIdentify && !ns.Supports(op) {
		return ctx, statusErr(op, nvmeprim.StatusInvalidOpcode)
	}
	return ctx, nil
}

func (ns *Namespace) end(ctx context.Context, err error) error {
	if err != nil {
		dlog.Debugf(ctx, "ns%d: %v", ns.cfg.NSID, err)
	}
	return err
}

func (ns *Namespace) checkRange(op nvmeprim.Opcode, slba nvmeprim.LBA, nlb nvmeprim.LBACount) error {
	capacity := nvmeprim.LBA(ns.cfg.Capacity)
	if slba >= capacity || nlb > ns.cfg.Capacity || slba.Add(nlb) > capacity {
		return statusErr(op, nvmeprim.StatusLBAOutOfRange)
	}
	return nil
}

func (ns *Namespace) checkBuf(op nvmeprim.Opcode, nlb nvmeprim.LBACount, buf []byte) error {
	if nlb == 0 || int64(len(buf)) < nlb.Bytes(ns.cfg.BlockSize) {
		return statusErr(op, nvmeprim.StatusInvalidField)
	}
	return nil
}

func (ns *Namespace) byteOff(lba nvmeprim.LBA) int64 {
	return nvmeprim.LBACount(lba).Bytes(ns.cfg.BlockSize)
}

func (ns *Namespace) mediaErr(op nvmeprim.Opcode, err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: media %q: %v", statusErr(op, nvmeprim.StatusDataTransferError), ns.media.Name(), err)
}

func (ns *Namespace) Identify(ctx context.Context, cns nvmeid.CNS, buf []byte) error {
	const op = nvmeprim.OpcodeIdentify
	ctx, err := ns.begin(ctx, op, fmt.Sprintf("identify cns=%v", cns))
	if err != nil {
		return ns.end(ctx, err)
	}
	if len(buf) < nvmeid.Size {
		return ns.end(ctx, statusErr(op, nvmeprim.StatusInvalidField))
	}
	var obj any
	switch {
	case cns == nvmeid.CNSNamespace:
		obj = ns.identifyNamespace()
	case cns == nvmeid.CNSZonedNamespace && ns.cfg.Zoned:
		obj = ns.identifyZonedNamespace()
	default:
		return ns.end(ctx, statusErr(op, nvmeprim.StatusInvalidField))
	}
	dat, err := nvmeid.Encode(obj)
	if err != nil {
		return ns.end(ctx, err)
	}
	copy(buf, dat)
	return ns.end(ctx, nil)
}

func (ns *Namespace) formatIndex() int {
	if ns.cfg.BlockSize == 4096 {
		return 1
	}
	return 0
}

func (ns *Namespace) identifyNamespace() nvmeid.Namespace {
	id := nvmeid.Namespace{
		Size:           ns.cfg.Capacity,
		Capacity:       ns.cfg.Capacity,
		NumLBAFormats:  1,
		FmtLBASize:     uint8(ns.formatIndex()),
		DeallocFeature: 0x1, // deallocated blocks read as zeros
	}
	if ns.Supports(nvmeprim.OpcodeDatasetManagement) {
		id.Features |= nvmeid.FeatThinProvisioning
	}
	id.LBAFormats[0].LBADataSize = 9
	id.LBAFormats[1].LBADataSize = 12
	id.NGUID[15] = uint8(ns.cfg.NSID)
	ns.mu.Lock()
	for _, zone := range ns.zones {
		if zone.State != zns.StateEmpty {
			id.Util += zone.Offset()
		}
	}
	ns.mu.Unlock()
	if !ns.cfg.Zoned {
		id.Util = id.Capacity
	}
	return id
}

func (ns *Namespace) identifyZonedNamespace() nvmeid.ZonedNamespace {
	var id nvmeid.ZonedNamespace
	id.SetLimits(ns.cfg.MaxOpen, ns.cfg.MaxActive)
	id.ZoneFormats[ns.formatIndex()].ZoneSize = ns.cfg.ZoneSize
	return id
}

func (ns *Namespace) Read(ctx context.Context, slba nvmeprim.LBA, nlb nvmeprim.LBACount, buf []byte) error {
	const op = nvmeprim.OpcodeRead
	ctx, err := ns.begin(ctx, op, fmt.Sprintf("read slba=%v nlb=%d", slba, uint64(nlb)))
	if err != nil {
		return ns.end(ctx, err)
	}
	if err := ns.checkBuf(op, nlb, buf); err != nil {
		return ns.end(ctx, err)
	}
	if err := ns.checkRange(op, slba, nlb); err != nil {
		return ns.end(ctx, err)
	}
	if ns.cfg.Zoned {
		ns.mu.Lock()
		zone := ns.zones[ns.zoneIndex(slba)]
		ns.mu.Unlock()
		if zone.State == zns.StateOffline {
			return ns.end(ctx, statusErr(op, nvmeprim.StatusZoneIsOffline))
		}
	}
	_, err = ns.media.ReadAt(buf[:nlb.Bytes(ns.cfg.BlockSize)], ns.byteOff(slba))
	return ns.end(ctx, ns.mediaErr(op, err))
}

func (ns *Namespace) Write(ctx context.Context, slba nvmeprim.LBA, nlb nvmeprim.LBACount, buf []byte) error {
	const op = nvmeprim.OpcodeWrite
	ctx, err := ns.begin(ctx, op, fmt.Sprintf("write slba=%v nlb=%d", slba, uint64(nlb)))
	if err != nil {
		return ns.end(ctx, err)
	}
	if err := ns.checkBuf(op, nlb, buf); err != nil {
		return ns.end(ctx, err)
	}
	if err := ns.checkRange(op, slba, nlb); err != nil {
		return ns.end(ctx, err)
	}
	if ns.cfg.Zoned {
		ns.mu.Lock()
		defer ns.mu.Unlock()
		if err := ns.zoneWrite(ctx, slba, nlb); err != nil {
			return ns.end(ctx, err)
		}
	}
	_, err = ns.media.WriteAt(buf[:nlb.Bytes(ns.cfg.BlockSize)], ns.byteOff(slba))
	return ns.end(ctx, ns.mediaErr(op, err))
}

func (ns *Namespace) DatasetManagement(ctx context.Context, cmd dsm.Command, buf []byte) error {
	const op = nvmeprim.OpcodeDatasetManagement
	ctx, err := ns.begin(ctx, op, fmt.Sprintf("dsm nr=%d attr=%v", cmd.NR, cmd.Attributes))
	if err != nil {
		return ns.end(ctx, err)
	}
	if cmd.Validate() != nil {
		return ns.end(ctx, statusErr(op, nvmeprim.StatusInvalidField))
	}
	if len(buf) < dsm.BufferSize {
		return ns.end(ctx, statusErr(op, nvmeprim.StatusDataTransferError))
	}
	rs, err := dsm.Decode(buf, cmd.NR)
	if err != nil {
		return ns.end(ctx, statusErr(op, nvmeprim.StatusDataTransferError))
	}
	ranges := rs.Ranges()
	// All ranges are checked before any is acted on.
	for _, r := range ranges {
		if err := ns.checkRange(op, r.StartingLBA, nvmeprim.LBACount(r.Length)); err != nil {
			return ns.end(ctx, err)
		}
	}
	if !cmd.Attributes.Has(dsm.AttrDeallocate) {
		return ns.end(ctx, nil)
	}
	for _, r := range ranges {
		if r.Length == 0 {
			continue
		}
		err := diskio.Discard(ns.media, ns.byteOff(r.StartingLBA), nvmeprim.LBACount(r.Length).Bytes(ns.cfg.BlockSize))
		if err := ns.mediaErr(op, err); err != nil {
			return ns.end(ctx, err)
		}
	}
	return ns.end(ctx, nil)
}

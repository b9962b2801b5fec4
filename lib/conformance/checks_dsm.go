// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package conformance

import (
	"context"
	"errors"
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/dsm"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmedev"
	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

var dsmRequires = []nvmeprim.Opcode{
	nvmeprim.OpcodeDatasetManagement,
	nvmeprim.OpcodeRead,
	nvmeprim.OpcodeWrite,
}

func init() {
	register(&Check{
		Name:     "dsm/deallocate-and-write",
		Requires: dsmRequires,
		Params:   repeated(32),
		Fn:       checkDeallocateAndWrite,
	})
	register(&Check{
		Name:     "dsm/deallocate-and-read",
		Requires: dsmRequires,
		Params:   repeated(32),
		Fn:       checkDeallocateAndRead,
	})
	register(&Check{
		Name:     "dsm/out-of-range",
		Requires: dsmRequires,
		Fn:       checkDeallocateOutOfRange,
	})
	register(&Check{
		Name:     "dsm/nr-maximum",
		Requires: dsmRequires,
		Fn:       checkDeallocateNRMaximum,
	})
	register(&Check{
		Name:     "dsm/correct-range",
		Requires: dsmRequires,
		Fn:       checkDeallocateCorrectRange,
	})
	register(&Check{
		Name:     "dsm/multiple-range",
		Requires: dsmRequires,
		Fn:       checkDeallocateMultipleRange,
	})
}

// Repeated checks walk forward through the LBA space, 3 blocks at a
// time from LBA 1.
const (
	repeatStart = 1
	repeatStep  = 3
	repeatCount = 3
)

func repeatLBA(p Param) nvmeprim.LBA {
	return nvmeprim.LBA(repeatStart + p.Repeat*repeatStep)
}

func (env *Env) deallocate(ctx context.Context, ranges ...dsm.Range) error {
	var rs dsm.RangeSet
	for _, r := range ranges {
		if err := rs.Append(r); err != nil {
			return err
		}
	}
	return nvmedev.Deallocate(ctx, env.Namespace, &rs)
}

func deallocRange(lba nvmeprim.LBA, nlb uint32) dsm.Range {
	return dsm.Range{StartingLBA: lba, Length: nlb}
}

// readsZero reports whether the namespace promises that deallocated
// blocks read as zeros.
func (env *Env) readsZero() bool {
	return env.id.DeallocFeature&0x7 == 0x1
}

func (env *Env) writeStamped(ctx context.Context, slba nvmeprim.LBA, nlb nvmeprim.LBACount, tag byte) error {
	buf := env.getBuf(nlb)
	defer env.putBuf(buf)
	stamp(buf, env.geom.BlockSize, slba, nlb, tag)
	return env.Namespace.Write(ctx, slba, nlb, buf)
}

func (env *Env) readStamped(ctx context.Context, slba nvmeprim.LBA, nlb nvmeprim.LBACount, tag byte) error {
	buf := env.getBuf(nlb)
	defer env.putBuf(buf)
	if err := env.Namespace.Read(ctx, slba, nlb, buf); err != nil {
		return err
	}
	return checkStamp(buf, env.geom.BlockSize, slba, nlb, tag)
}

func (env *Env) readDeallocated(ctx context.Context, slba nvmeprim.LBA, nlb nvmeprim.LBACount) error {
	buf := env.getBuf(nlb)
	defer env.putBuf(buf)
	if err := env.Namespace.Read(ctx, slba, nlb, buf); err != nil {
		return err
	}
	if !env.readsZero() {
		return nil
	}
	return checkZero(buf, env.geom.BlockSize, slba, nlb)
}

func checkDeallocateAndWrite(ctx context.Context, env *Env, p Param) error {
	lba := repeatLBA(p)
	tag := byte(p.Repeat)
	if err := env.deallocate(ctx, deallocRange(lba, repeatCount)); err != nil {
		return err
	}
	if err := env.writeStamped(ctx, lba, repeatCount, tag); err != nil {
		return err
	}
	return env.readStamped(ctx, lba, repeatCount, tag)
}

func checkDeallocateAndRead(ctx context.Context, env *Env, p Param) error {
	lba := repeatLBA(p)
	if err := env.deallocate(ctx, deallocRange(lba, repeatCount)); err != nil {
		return err
	}
	return env.readDeallocated(ctx, lba, repeatCount)
}

func expectStatus(err error, status nvmeprim.Status) error {
	got, ok := nvmeprim.AsStatus(err)
	switch {
	case err == nil:
		return failf("succeeded, expected status %v", status)
	case !ok:
		return err
	case got != status:
		return failf("status %v (%s), expected %v (%s)", got, got.Name(), status, status.Name())
	}
	return nil
}

func checkDeallocateOutOfRange(ctx context.Context, env *Env, _ Param) error {
	ncap := nvmeprim.LBA(env.id.Capacity)
	if err := env.deallocate(ctx, deallocRange(ncap-1, 1)); err != nil {
		return fmt.Errorf("last block: %w", err)
	}
	if err := expectStatus(env.deallocate(ctx, deallocRange(ncap, 1)), nvmeprim.StatusLBAOutOfRange); err != nil {
		return fmt.Errorf("block past the end: %w", err)
	}
	if err := expectStatus(env.deallocate(ctx, deallocRange(ncap-1, 2)), nvmeprim.StatusLBAOutOfRange); err != nil {
		return fmt.Errorf("range across the end: %w", err)
	}
	return nil
}

func checkDeallocateNRMaximum(ctx context.Context, env *Env, _ Param) error {
	var rs dsm.RangeSet
	for i := 0; i < dsm.MaxRanges; i++ {
		if err := rs.SetDeallocate(i, nvmeprim.LBA(i), 1); err != nil {
			return err
		}
	}
	if err := nvmedev.Deallocate(ctx, env.Namespace, &rs); err != nil {
		return fmt.Errorf("%d ranges: %w", dsm.MaxRanges, err)
	}

	// One more does not fit, and is refused before anything is
	// sent.
	err := rs.SetDeallocate(dsm.MaxRanges, dsm.MaxRanges, 1)
	var idxErr *dsm.IndexError
	if !errors.As(err, &idxErr) || !errors.Is(err, nvmeprim.ErrCapacityExceeded) {
		return failf("range %d: expected an index error, got %v", dsm.MaxRanges, err)
	}
	if err := dsm.Deallocate(env.Namespace.ID(), dsm.MaxRanges+1).Validate(); !errors.Is(err, nvmeprim.ErrCapacityExceeded) {
		return failf("NR=%d: expected a capacity error, got %v", dsm.MaxRanges+1, err)
	}
	return nil
}

func checkDeallocateCorrectRange(ctx context.Context, env *Env, _ Param) error {
	if err := env.writeStamped(ctx, 1, 3, 0); err != nil {
		return err
	}
	if err := env.deallocate(ctx, deallocRange(2, 1)); err != nil {
		return err
	}
	if err := env.readStamped(ctx, 1, 1, 0); err != nil {
		return err
	}
	if err := env.readDeallocated(ctx, 2, 1); err != nil {
		return err
	}
	return env.readStamped(ctx, 3, 1, 0)
}

func checkDeallocateMultipleRange(ctx context.Context, env *Env, _ Param) error {
	if err := env.writeStamped(ctx, 1, 4, 0); err != nil {
		return err
	}
	err := env.deallocate(ctx,
		deallocRange(1, 1),
		deallocRange(2, 1),
		deallocRange(3, 1))
	if err != nil {
		return err
	}
	if err := env.readDeallocated(ctx, 1, 3); err != nil {
		return err
	}
	if err := env.readStamped(ctx, 4, 1, 0); err != nil {
		return err
	}

	if err := env.writeStamped(ctx, 1, 4, 0); err != nil {
		return err
	}
	return env.readStamped(ctx, 1, 4, 0)
}

// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package zns

import (
	"errors"
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

// Zone is the model's prediction of one sequential-write-required
// zone.  A Zone is a value; Apply and Write return the successor
// zone and never modify the receiver, so a rejected operation leaves
// the caller's zone exactly as it was.
type Zone struct {
	StartLBA nvmeprim.LBA
	Size     nvmeprim.LBACount
	Capacity nvmeprim.LBACount

	State        ZoneState
	WritePointer nvmeprim.LBA

	Policy Policy
}

// NewZone builds the model of a zone from the device's descriptor of
// it.
func NewZone(desc Descriptor, zoneSize nvmeprim.LBACount, policy Policy) (Zone, error) {
	if desc.Type != ZoneTypeSequentialWriteRequired {
		return Zone{}, &ZoneTypeError{Index: -1, Type: desc.Type}
	}
	if !desc.State.Valid() {
		return Zone{}, fmt.Errorf("zone %v: %w: invalid zone state %v",
			desc.StartLBA, nvmeprim.ErrDecode, desc.State)
	}
	if desc.Capacity > zoneSize {
		return Zone{}, fmt.Errorf("zone %v: %w: capacity %#x exceeds zone size %#x",
			desc.StartLBA, nvmeprim.ErrDecode, uint64(desc.Capacity), uint64(zoneSize))
	}
	zone := Zone{
		StartLBA:     desc.StartLBA,
		Size:         zoneSize,
		Capacity:     desc.Capacity,
		State:        desc.State,
		WritePointer: desc.WritePointer,
		Policy:       policy,
	}
	switch {
	case zone.State == StateEmpty && zone.WritePointer != zone.StartLBA,
		zone.State.Active() && (zone.WritePointer < zone.StartLBA || zone.WritePointer > zone.CapacityEnd()):
		return Zone{}, fmt.Errorf("zone %v: %w: write pointer %v invalid in state %v",
			desc.StartLBA, nvmeprim.ErrDecode, desc.WritePointer, desc.State)
	}
	return zone, nil
}

func (z Zone) String() string {
	if z.State == StateFull {
		return fmt.Sprintf("zone{zslba=%v state=%v}", z.StartLBA, z.State)
	}
	return fmt.Sprintf("zone{zslba=%v state=%v wp=%v}", z.StartLBA, z.State, z.WritePointer)
}

// CapacityEnd returns the LBA after the last writable block.
func (z Zone) CapacityEnd() nvmeprim.LBA {
	return z.StartLBA.Add(z.Capacity)
}

// Offset returns the write pointer relative to the zone start.
func (z Zone) Offset() nvmeprim.LBACount {
	return z.WritePointer.Sub(z.StartLBA)
}

// Remaining returns the number of blocks that may still be written.
func (z Zone) Remaining() nvmeprim.LBACount {
	switch z.State {
	case StateEmpty, StateImplicitlyOpened, StateExplicitlyOpened, StateClosed:
		return z.CapacityEnd().Sub(z.WritePointer)
	default:
		return 0
	}
}

// TransitionError is an action that the zone's state does not allow.
type TransitionError struct {
	StartLBA nvmeprim.LBA
	From     ZoneState
	Action   Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("zone %v: cannot %v a zone that is %v: %v",
		e.StartLBA, e.Action, e.From, nvmeprim.ErrIllegalTransition)
}

func (e *TransitionError) Unwrap() error { return nvmeprim.ErrIllegalTransition }

// WriteError is a write that the model rejects.  Err is one of
// nvmeprim.ErrSequentialityViolation, nvmeprim.ErrCapacityExceeded,
// nvmeprim.ErrIllegalTransition, or ErrZeroLengthWrite.
type WriteError struct {
	StartLBA     nvmeprim.LBA
	State        ZoneState
	WritePointer nvmeprim.LBA
	Offset       nvmeprim.LBACount
	Len          nvmeprim.LBACount
	Err          error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("zone %v (%v, wp=%v): write of %d blocks at offset %#x: %v",
		e.StartLBA, e.State, e.WritePointer, uint64(e.Len), uint64(e.Offset), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

var ErrZeroLengthWrite = errors.New("zero-length write")

// Apply predicts the result of a Zone Management Send action.
func (z Zone) Apply(action Action) (Zone, error) {
	ok := false
	switch action {
	case ActionReset:
		switch z.State {
		case StateEmpty, StateImplicitlyOpened, StateExplicitlyOpened, StateClosed, StateFull:
			z.State = StateEmpty
			z.WritePointer = z.StartLBA
			ok = true
		}
	case ActionFinish:
		switch z.State {
		case StateEmpty, StateImplicitlyOpened, StateExplicitlyOpened, StateClosed:
			z.State = StateFull
			z.WritePointer = z.CapacityEnd()
			ok = true
		case StateFull:
			ok = !z.Policy.StrictFinish
		}
	case ActionOpen:
		switch z.State {
		case StateEmpty, StateClosed:
			z.State = StateExplicitlyOpened
			ok = true
		case StateExplicitlyOpened:
			ok = z.Policy.RepeatOpenClose
		case StateImplicitlyOpened:
			if z.Policy.ExplicitOpenFromImplicit {
				z.State = StateExplicitlyOpened
				ok = true
			}
		}
	case ActionClose:
		switch z.State {
		case StateImplicitlyOpened, StateExplicitlyOpened:
			z.State = StateClosed
			ok = true
		case StateClosed:
			ok = z.Policy.RepeatOpenClose
		}
	}
	if !ok {
		return z, &TransitionError{
			StartLBA: z.StartLBA,
			From:     z.State,
			Action:   action,
		}
	}
	return z, nil
}

// Write predicts the result of writing n blocks at offset (relative
// to the zone start).  Nothing is applied unless the whole write is
// valid.
func (z Zone) Write(offset, n nvmeprim.LBACount) (Zone, error) {
	fail := func(err error) (Zone, error) {
		return z, &WriteError{
			StartLBA:     z.StartLBA,
			State:        z.State,
			WritePointer: z.WritePointer,
			Offset:       offset,
			Len:          n,
			Err:          err,
		}
	}
	switch z.State {
	case StateEmpty, StateImplicitlyOpened, StateExplicitlyOpened, StateClosed:
	case StateFull:
		return fail(nvmeprim.ErrCapacityExceeded)
	default:
		return fail(nvmeprim.ErrIllegalTransition)
	}
	switch {
	case n == 0:
		return fail(ErrZeroLengthWrite)
	case offset != z.Offset():
		return fail(nvmeprim.ErrSequentialityViolation)
	case n > z.Remaining():
		return fail(nvmeprim.ErrCapacityExceeded)
	}
	z.WritePointer = z.WritePointer.Add(n)
	switch {
	case z.WritePointer == z.CapacityEnd():
		z.State = StateFull
	case z.State == StateEmpty || z.State == StateClosed:
		z.State = StateImplicitlyOpened
	}
	return z, nil
}

// Descriptor returns the descriptor that a conforming device would
// report for the zone.
func (z Zone) Descriptor() Descriptor {
	return Descriptor{
		Type:         ZoneTypeSequentialWriteRequired,
		State:        z.State,
		Capacity:     z.Capacity,
		StartLBA:     z.StartLBA,
		WritePointer: z.WritePointer,
	}
}

// Agrees reports whether the device's descriptor of the zone matches
// the model.  The write pointer is not compared for zones whose
// write pointer is not meaningful.
func (z Zone) Agrees(desc Descriptor) bool {
	if desc.StartLBA != z.StartLBA || desc.State != z.State || desc.Capacity != z.Capacity {
		return false
	}
	switch z.State {
	case StateEmpty, StateImplicitlyOpened, StateExplicitlyOpened, StateClosed:
		return desc.WritePointer == z.WritePointer
	default:
		return true
	}
}

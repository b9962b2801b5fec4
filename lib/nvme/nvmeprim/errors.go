// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmeprim

import (
	"errors"
)

// These are the local error kinds.  The packages that detect them
// return richer error types that unwrap to one of these, so callers
// can classify a failure with errors.Is.
var (
	// ErrCapacityExceeded is an overflow caught locally: too many
	// ranges in a range set, or a write longer than the room left
	// in a zone.  A range set that overflows is never encoded.  A
	// write that the zone model rejects may still be sent by a
	// caller that wants the device's answer, in which case the
	// returned error matches both this and the device's status.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrIllegalTransition is an action that the zone state
	// machine does not permit from the zone's current state.
	ErrIllegalTransition = errors.New("illegal zone state transition")

	// ErrSequentialityViolation is a write that does not start
	// at the zone's write pointer.
	ErrSequentialityViolation = errors.New("write does not start at the write pointer")

	// ErrUnexpectedZoneType is a zone descriptor whose type is
	// not sequential-write-required.
	ErrUnexpectedZoneType = errors.New("unexpected zone type")

	// ErrDecode is malformed buffer content from the device.
	ErrDecode = errors.New("malformed device data")

	// ErrModelDeviceDivergence is a post-action consistency
	// check in which the model and the device disagree.
	ErrModelDeviceDivergence = errors.New("model and device disagree")
)

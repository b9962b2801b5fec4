// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvmeprim

import (
	"errors"
	"fmt"
)

// StatusCodeType is the SCT field of a completion queue entry's
// status.
type StatusCodeType uint8

const (
	SCTGeneric         = StatusCodeType(0x0)
	SCTCommandSpecific = StatusCodeType(0x1)
	SCTMediaError      = StatusCodeType(0x2)
	SCTPath            = StatusCodeType(0x3)
	SCTVendorSpecific  = StatusCodeType(0x7)
)

// Status is the (SCT, SC) pair from a completion queue entry, packed
// as SCT<<8 | SC.
type Status uint16

func MkStatus(sct StatusCodeType, sc uint8) Status {
	return Status(uint16(sct&0x7)<<8 | uint16(sc))
}

func (s Status) SCT() StatusCodeType { return StatusCodeType(s >> 8) }
func (s Status) SC() uint8           { return uint8(s) }
func (s Status) OK() bool            { return s == StatusSuccess }

var (
	StatusSuccess               = MkStatus(SCTGeneric, 0x00)
	StatusInvalidOpcode         = MkStatus(SCTGeneric, 0x01)
	StatusInvalidField          = MkStatus(SCTGeneric, 0x02)
	StatusDataTransferError     = MkStatus(SCTGeneric, 0x04)
	StatusInvalidNamespace      = MkStatus(SCTGeneric, 0x0B)
	StatusLBAOutOfRange         = MkStatus(SCTGeneric, 0x80)
	StatusCapacityExceeded      = MkStatus(SCTGeneric, 0x81)
	StatusNamespaceNotReady     = MkStatus(SCTGeneric, 0x82)
	StatusZoneBoundaryError     = MkStatus(SCTCommandSpecific, 0xB8)
	StatusZoneIsFull            = MkStatus(SCTCommandSpecific, 0xB9)
	StatusZoneIsReadOnly        = MkStatus(SCTCommandSpecific, 0xBA)
	StatusZoneIsOffline         = MkStatus(SCTCommandSpecific, 0xBB)
	StatusZoneInvalidWrite      = MkStatus(SCTCommandSpecific, 0xBC)
	StatusTooManyActiveZones    = MkStatus(SCTCommandSpecific, 0xBD)
	StatusTooManyOpenZones      = MkStatus(SCTCommandSpecific, 0xBE)
	StatusZoneInvalidTransition = MkStatus(SCTCommandSpecific, 0xBF)
)

var statusNames = map[Status]string{
	StatusSuccess:               "Successful Completion",
	StatusInvalidOpcode:         "Invalid Command Opcode",
	StatusInvalidField:          "Invalid Field in Command",
	StatusDataTransferError:     "Data Transfer Error",
	StatusInvalidNamespace:      "Invalid Namespace or Format",
	StatusLBAOutOfRange:         "LBA Out of Range",
	StatusCapacityExceeded:      "Capacity Exceeded",
	StatusNamespaceNotReady:     "Namespace Not Ready",
	StatusZoneBoundaryError:     "Zone Boundary Error",
	StatusZoneIsFull:            "Zone Is Full",
	StatusZoneIsReadOnly:        "Zone Is Read Only",
	StatusZoneIsOffline:         "Zone Is Offline",
	StatusZoneInvalidWrite:      "Zone Invalid Write",
	StatusTooManyActiveZones:    "Too Many Active Zones",
	StatusTooManyOpenZones:      "Too Many Open Zones",
	StatusZoneInvalidTransition: "Invalid Zone State Transition",
}

// String renders the status the way NVMe tooling conventionally
// prints it: "SCT/SC" in two-digit hex, e.g. "00/80".
func (s Status) String() string {
	return fmt.Sprintf("%02x/%02x", uint8(s.SCT()), s.SC())
}

// Name returns the human-readable name of the status, if known.
func (s Status) Name() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown status"
}

// StatusError is returned by a transport when the device completes a
// command with a non-successful status.  It is propagated upward
// as-is; nothing in this module retries on it.
type StatusError struct {
	Opcode Opcode
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: ERROR status: %v (%s)", e.Opcode, e.Status, e.Status.Name())
}

// Is makes errors.Is(err, &StatusError{Status: X}) match on the
// status alone.
func (e *StatusError) Is(target error) bool {
	other, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return other.Status == e.Status && (other.Opcode == 0 || other.Opcode == e.Opcode)
}

// AsStatus returns the device status carried by err, if any.
func AsStatus(err error) (Status, bool) {
	var se *StatusError
	if !errors.As(err, &se) {
		return StatusSuccess, false
	}
	return se.Status, true
}

// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package zns

import (
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/fmtutil"
)

type ZoneType uint8

const (
	ZoneTypeSequentialWriteRequired = ZoneType(0x2)
)

func (t ZoneType) String() string {
	if t == ZoneTypeSequentialWriteRequired {
		return "Sequential Write Required"
	}
	return fmt.Sprintf("ZoneType(%#x)", uint8(t))
}

// ZoneState is the Zone State field of a zone descriptor.  On the
// wire it lives in the high nibble of its byte; the low nibble is
// reserved.
type ZoneState uint8

const (
	StateEmpty            = ZoneState(0x1)
	StateImplicitlyOpened = ZoneState(0x2)
	StateExplicitlyOpened = ZoneState(0x3)
	StateClosed           = ZoneState(0x4)
	StateReadOnly         = ZoneState(0xD)
	StateFull             = ZoneState(0xE)
	StateOffline          = ZoneState(0xF)
)

var zoneStateNames = map[ZoneState]string{
	StateEmpty:            "Empty",
	StateImplicitlyOpened: "Implicitly Opened",
	StateExplicitlyOpened: "Explicitly Opened",
	StateClosed:           "Closed",
	StateReadOnly:         "Read Only",
	StateFull:             "Full",
	StateOffline:          "Offline",
}

func (s ZoneState) String() string {
	if name, ok := zoneStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ZoneState(%#x)", uint8(s))
}

func (s ZoneState) Valid() bool {
	_, ok := zoneStateNames[s]
	return ok
}

// Open reports whether the zone holds an open-zone resource.
func (s ZoneState) Open() bool {
	return s == StateImplicitlyOpened || s == StateExplicitlyOpened
}

// Active reports whether the zone holds an active-zone resource.
func (s ZoneState) Active() bool {
	return s.Open() || s == StateClosed
}

func (ZoneState) BinaryStaticSize() int { return 1 }

func (s ZoneState) MarshalBinary() ([]byte, error) {
	if s > 0xF {
		return nil, fmt.Errorf("zone state %#x does not fit in 4 bits", uint8(s))
	}
	return []byte{uint8(s) << 4}, nil
}

func (s *ZoneState) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < 1 {
		return 0, fmt.Errorf("need 1 byte, only have 0")
	}
	*s = ZoneState(dat[0] >> 4)
	return 1, nil
}

// ZoneAttrs is the Zone Attributes byte of a zone descriptor.
type ZoneAttrs uint8

const (
	AttrZoneFinishedByController = ZoneAttrs(1 << 0) // ZFC
	AttrFinishZoneRecommended    = ZoneAttrs(1 << 1) // FZR
	AttrResetZoneRecommended     = ZoneAttrs(1 << 2) // RZR
	AttrZoneDescriptorExtension  = ZoneAttrs(1 << 7) // ZDEV
)

var zoneAttrNames = []string{
	"ZFC",
	"FZR",
	"RZR",
	"(1<<3)",
	"(1<<4)",
	"(1<<5)",
	"(1<<6)",
	"ZDEV",
}

func (a ZoneAttrs) Has(flag ZoneAttrs) bool { return a&flag == flag }

func (a ZoneAttrs) String() string {
	return fmtutil.BitfieldString(a, zoneAttrNames, fmtutil.HexLower)
}

// Action is a Zone Send Action of the Zone Management Send command.
type Action uint8

const (
	ActionClose  = Action(0x1)
	ActionFinish = Action(0x2)
	ActionOpen   = Action(0x3)
	ActionReset  = Action(0x4)
)

func (a Action) String() string {
	switch a {
	case ActionClose:
		return "close"
	case ActionFinish:
		return "finish"
	case ActionOpen:
		return "open"
	case ActionReset:
		return "reset"
	default:
		return fmt.Sprintf("Action(%#x)", uint8(a))
	}
}

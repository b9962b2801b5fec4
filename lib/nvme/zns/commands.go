// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package zns

import (
	"fmt"

	"git.lukeshu.com/nvmeconf-ng/lib/nvme/nvmeprim"
)

// SendCommand is a Zone Management Send command.
type SendCommand struct {
	NSID nvmeprim.NSID
	SLBA nvmeprim.LBA
	// SelectAll applies Action to every zone for which it is
	// valid, and SLBA is ignored.
	SelectAll bool
	Action    Action
}

func (c SendCommand) String() string {
	if c.SelectAll {
		return fmt.Sprintf("zone-send %v all", c.Action)
	}
	return fmt.Sprintf("zone-send %v zslba=%v", c.Action, c.SLBA)
}

// CDW13 returns command dword 13: the action in bits 7:0 and Select
// All in bit 8.
func (c SendCommand) CDW13() uint32 {
	ret := uint32(c.Action)
	if c.SelectAll {
		ret |= 1 << 8
	}
	return ret
}

type ReceiveAction uint8

const (
	ReceiveReport         = ReceiveAction(0x0)
	ReceiveExtendedReport = ReceiveAction(0x1)
)

// Filter is the Reporting Options of a report: which zones to list.
type Filter uint8

const (
	FilterAll = Filter(iota)
	FilterEmpty
	FilterImplicitlyOpened
	FilterExplicitlyOpened
	FilterClosed
	FilterFull
	FilterReadOnly
	FilterOffline
)

var filterStates = map[Filter]ZoneState{
	FilterEmpty:            StateEmpty,
	FilterImplicitlyOpened: StateImplicitlyOpened,
	FilterExplicitlyOpened: StateExplicitlyOpened,
	FilterClosed:           StateClosed,
	FilterFull:             StateFull,
	FilterReadOnly:         StateReadOnly,
	FilterOffline:          StateOffline,
}

func (f Filter) Valid() bool {
	_, ok := filterStates[f]
	return ok || f == FilterAll
}

// Match reports whether a zone in state s belongs in a report with
// this filter.
func (f Filter) Match(s ZoneState) bool {
	if f == FilterAll {
		return true
	}
	want, ok := filterStates[f]
	return ok && want == s
}

func (f Filter) String() string {
	if f == FilterAll {
		return "all"
	}
	if s, ok := filterStates[f]; ok {
		return s.String()
	}
	return fmt.Sprintf("Filter(%#x)", uint8(f))
}

// ReceiveCommand is a Zone Management Receive command.  The report
// lists matching zones starting with the zone containing SLBA.
type ReceiveCommand struct {
	NSID   nvmeprim.NSID
	SLBA   nvmeprim.LBA
	Action ReceiveAction
	Filter Filter
	// Partial makes the header's zone count the number of
	// descriptors that fit in the buffer, rather than the number
	// of zones that match.
	Partial bool
}

func (c ReceiveCommand) String() string {
	return fmt.Sprintf("zone-receive zslba=%v filter=%v partial=%v", c.SLBA, c.Filter, c.Partial)
}

// CDW13 returns command dword 13: the action in bits 7:0, the filter
// in bits 15:8, and Partial Report in bit 16.
func (c ReceiveCommand) CDW13() uint32 {
	ret := uint32(c.Action) | uint32(c.Filter)<<8
	if c.Partial {
		ret |= 1 << 16
	}
	return ret
}

// ParseCDW13 fills in the fields of c that CDW13 carries.
func (c *ReceiveCommand) ParseCDW13(cdw13 uint32) {
	c.Action = ReceiveAction(cdw13 & 0xff)
	c.Filter = Filter((cdw13 >> 8) & 0xff)
	c.Partial = cdw13&(1<<16) != 0
}
